// Package interference computes the symmetric overlap relation between
// computable tensors: whether their lifetimes could ever occupy the same
// bytes at the same time. The packer uses both the pairwise relation and
// each tensor's overlap count to decide placement order.
package interference

import (
	"go.uber.org/zap"

	"github.com/sbl8/arenac/depmatrix"
	"github.com/sbl8/arenac/liveness"
	"github.com/sbl8/arenac/symbol"
)

// Matrix holds the overlap relation and per-tensor overlap counts over
// the computable tensor ids of one graph.
type Matrix struct {
	overlap map[symbol.TensorID]map[symbol.TensorID]bool
	OC      map[symbol.TensorID]int
	ids     []symbol.TensorID
}

// Overlaps reports whether a and b's lifetimes could overlap.
func (m *Matrix) Overlaps(a, b symbol.TensorID) bool {
	if a == b {
		return false
	}
	if lo, hi := a, b; lo > hi {
		lo, hi = hi, lo
		return m.overlap[lo][hi]
	} else {
		return m.overlap[lo][hi]
	}
}

func (m *Matrix) set(a, b symbol.TensorID) {
	if a > b {
		a, b = b, a
	}
	if m.overlap[a] == nil {
		m.overlap[a] = make(map[symbol.TensorID]bool)
	}
	m.overlap[a][b] = true
}

// IDs returns the computable tensor ids this matrix was built over, in
// ascending id order.
func (m *Matrix) IDs() []symbol.TensorID { return m.ids }

// HeadAfterTail reports whether every element of a's head antichain is
// deterministically reachable from every element of b's tail antichain
// (i.e. a's storage can only become live after b's is fully dead). A
// tensor with an empty head or the other with an empty tail never
// qualifies. Exported so the packer can reuse it for its own edge
// compatibility checks.
func HeadAfterTail(dm *depmatrix.Matrix, a, b *liveness.Tensor) bool {
	if len(a.Head) == 0 || len(b.Tail) == 0 {
		return false
	}
	for _, h := range a.Head {
		for _, t := range b.Tail {
			if !dm.Precedes(t, h) {
				return false
			}
		}
	}
	return true
}

// Build computes the overlap relation over every computable tensor pair:
// Const tensors interfere with everything (conservative), otherwise two
// tensors don't interfere only when one is deterministically entirely
// before the other (head-after-tail in either direction); unknown
// ordering defaults to interference.
//
// Grounded directly on the reference compiler's overlap-count pass: the
// const-forces-interference rule, the head_after_tail double check in
// both directions, and the O(n^2) overlap-count accumulation it performs
// immediately afterward.
func Build(g *symbol.Graph, live *liveness.Info, dm *depmatrix.Matrix, log *zap.Logger) *Matrix {
	if log == nil {
		log = zap.NewNop()
	}

	m := &Matrix{overlap: make(map[symbol.TensorID]map[symbol.TensorID]bool), OC: make(map[symbol.TensorID]int)}
	for i := range g.Tensors {
		id := g.Tensors[i].ID
		tl := live.Tensors[id]
		if tl != nil && (tl.Class == liveness.ClassComputable || tl.Class == liveness.ClassConst) {
			m.ids = append(m.ids, id)
			m.OC[id] = 0
		}
	}

	for i, a := range m.ids {
		la := live.Tensors[a]
		for _, b := range m.ids[i+1:] {
			lb := live.Tensors[b]
			interferes := true
			if la.Class != liveness.ClassConst && lb.Class != liveness.ClassConst {
				aHopB := HeadAfterTail(dm, la, lb)
				bHopA := HeadAfterTail(dm, lb, la)
				interferes = !aHopB && !bHopA
			}
			if interferes {
				m.set(a, b)
			}
		}
	}

	for _, a := range m.ids {
		for _, b := range m.ids {
			if a != b && m.Overlaps(a, b) {
				m.OC[a]++
			}
		}
	}

	log.Debug("interference computed", zap.Int("computable_tensors", len(m.ids)))
	return m
}
