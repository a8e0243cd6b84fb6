// Package symbol defines the symbolic dataflow graph that the planner
// compiles: TensorSymbol and ExecSymbol nodes, and the Graph that ties
// them together. Construction of this graph (auto-shape filling, symbol
// tables) is external; this package only models the resolved arrays a
// symbol organizer hands over.
package symbol

import "fmt"

// MemType distinguishes host from device-resident tensors.
type MemType uint8

const (
	MemHost MemType = iota
	MemDevice
)

// TensorID identifies a TensorSymbol within a Graph.
type TensorID int

// ExecID identifies an ExecSymbol within a Graph.
type ExecID int

// TensorSymbol is a symbolic tensor: dimensions, memory placement, and
// optional alias/zero-init metadata. An alias's parent (AliasOf) is never
// itself an alias — enforced by Graph.Validate.
type TensorSymbol struct {
	ID TensorID

	Dims     []int64
	ElemSize int64

	MemType  MemType
	DeviceID int

	// AliasOf is the parent tensor id this symbol is a view into, or -1 if
	// this tensor is not an alias. A non-alias tensor may itself be
	// aliased by others.
	AliasOf TensorID
	// AliasOffset and AliasStrides describe the view when AliasOf >= 0.
	AliasOffset  int64
	AliasStrides []int64

	// InitToZero marks a tensor that must be zeroed before its first use.
	InitToZero bool
}

// IsAlias reports whether this symbol is a view into another tensor.
func (t *TensorSymbol) IsAlias() bool { return t.AliasOf >= 0 }

// Count returns the total element count implied by Dims.
func (t *TensorSymbol) Count() int64 {
	n := int64(1)
	for _, d := range t.Dims {
		n *= d
	}
	return n
}

// ExecSymbol is a symbolic kernel invocation: a command descriptor, a hint,
// ordered input/output tensor ids, an inplace-capability flag, and the set
// of successor exec ids in the dataflow DAG.
type ExecSymbol struct {
	ID ExecID

	Command string // opaque kernel command descriptor (external registry key)
	Hint    string // opaque hint passed through to the external kernel registry

	Inputs  []TensorID
	Outputs []TensorID

	InplaceCapable bool

	Successors []ExecID
}

// Graph is the resolved symbolic dataflow graph: all tensor and exec
// symbols, plus the caller-designated sources, destinations, and
// pre-bound tensor ids. ConcreteTensor is left as `any` — the planner
// never interprets it, only carries it through to the arena.
type Graph struct {
	Tensors []TensorSymbol
	Execs   []ExecSymbol

	Sources      []ExecID
	Destinations []ExecID

	// Binds maps a pre-bound tensor id to a caller-supplied concrete
	// tensor. The planner skips allocation for these ids.
	Binds map[TensorID]any
}

// Tensor returns the TensorSymbol for id, or nil if out of range.
func (g *Graph) Tensor(id TensorID) *TensorSymbol {
	if int(id) < 0 || int(id) >= len(g.Tensors) {
		return nil
	}
	return &g.Tensors[id]
}

// Exec returns the ExecSymbol for id, or nil if out of range.
func (g *Graph) Exec(id ExecID) *ExecSymbol {
	if int(id) < 0 || int(id) >= len(g.Execs) {
		return nil
	}
	return &g.Execs[id]
}

// Validate checks the structural invariants the planner relies on:
// alias-of-alias is forbidden, every referenced id is in range, and every
// source/destination exists.
func (g *Graph) Validate() error {
	for i := range g.Tensors {
		t := &g.Tensors[i]
		if t.ID != TensorID(i) {
			return fmt.Errorf("symbol: tensor at index %d has id %d", i, t.ID)
		}
		if t.IsAlias() {
			parent := g.Tensor(t.AliasOf)
			if parent == nil {
				return fmt.Errorf("symbol: tensor %d aliases out-of-range parent %d", t.ID, t.AliasOf)
			}
			if parent.IsAlias() {
				return fmt.Errorf("symbol: tensor %d aliases an alias (parent %d)", t.ID, parent.ID)
			}
		}
	}
	for i := range g.Execs {
		e := &g.Execs[i]
		if e.ID != ExecID(i) {
			return fmt.Errorf("symbol: exec at index %d has id %d", i, e.ID)
		}
		for _, in := range e.Inputs {
			if g.Tensor(in) == nil {
				return fmt.Errorf("symbol: exec %d references out-of-range input tensor %d", e.ID, in)
			}
		}
		for _, out := range e.Outputs {
			if g.Tensor(out) == nil {
				return fmt.Errorf("symbol: exec %d references out-of-range output tensor %d", e.ID, out)
			}
		}
		for _, s := range e.Successors {
			if g.Exec(s) == nil {
				return fmt.Errorf("symbol: exec %d references out-of-range successor %d", e.ID, s)
			}
		}
	}
	for _, s := range g.Sources {
		if g.Exec(s) == nil {
			return fmt.Errorf("symbol: source exec %d out of range", s)
		}
	}
	for _, d := range g.Destinations {
		if g.Exec(d) == nil {
			return fmt.Errorf("symbol: destination exec %d out of range", d)
		}
	}
	return nil
}
