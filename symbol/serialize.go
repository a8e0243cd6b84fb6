package symbol

import (
	"bytes"
	"encoding/gob"
)

// wireGraph mirrors Graph but drops Binds, which carry caller-owned
// concrete tensors that have no business surviving a round trip through
// bytes.
type wireGraph struct {
	Tensors      []TensorSymbol
	Execs        []ExecSymbol
	Sources      []ExecID
	Destinations []ExecID
}

// Serialize encodes the graph's symbolic structure (not its binds) using
// gob. Tensor/exec symbols here carry variable-length slices (Dims,
// Strides, Successors), which a fixed-width binary layout handles poorly,
// so gob is the primary wire format rather than a fallback.
func (g *Graph) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	w := wireGraph{Tensors: g.Tensors, Execs: g.Execs, Sources: g.Sources, Destinations: g.Destinations}
	if err := gob.NewEncoder(&buf).Encode(&w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Deserialize reconstructs a Graph from Serialize's output. Binds is left
// nil; callers must re-supply pre-bound tensors for the new process.
func Deserialize(data []byte) (*Graph, error) {
	var w wireGraph
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return nil, err
	}
	return &Graph{Tensors: w.Tensors, Execs: w.Execs, Sources: w.Sources, Destinations: w.Destinations}, nil
}
