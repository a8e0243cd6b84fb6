// Package inplace collapses an inplace-capable exec's output tensor
// identity into its input tensor identity when their lifetimes and
// shapes allow it, so the packer never has to place storage for the
// folded output at all.
package inplace

import (
	"go.uber.org/zap"

	"github.com/sbl8/arenac/liveness"
	"github.com/sbl8/arenac/symbol"
)

// Result records which output tensors were folded onto which input
// tensors. Folded[out] = in means out no longer needs its own storage;
// arena.Build resolves it to in's bytes.
type Result struct {
	Folded map[symbol.TensorID]symbol.TensorID
}

func sameShape(a, b *symbol.TensorSymbol) bool {
	if len(a.Dims) != len(b.Dims) {
		return false
	}
	for i := range a.Dims {
		if a.Dims[i] != b.Dims[i] {
			return false
		}
	}
	return a.ElemSize == b.ElemSize && a.MemType == b.MemType && a.DeviceID == b.DeviceID
}

// chaseRef follows a prior fold until it lands on a tensor that still
// owns its liveness entry (i.e. wasn't itself folded away).
func chaseRef(folded map[symbol.TensorID]symbol.TensorID, id symbol.TensorID) symbol.TensorID {
	for {
		next, ok := folded[id]
		if !ok {
			return id
		}
		id = next
	}
}

// Fold walks the graph's execs in order and, for every InplaceCapable exec,
// tries to fold each output onto an eligible input. An input x is eligible
// when it is computable, not Const, and has exactly one tail exec; an
// output y is eligible when it is computable, not Const, has exactly one
// head exec, and that head exec equals x's single tail exec (both are the
// current node). Dims/elem size/mem type/device must match. On a fold, y's
// tail antichain is transplanted onto x, y is reclassified Unassigned (so
// interference and the packer skip it), and y is marked folded onto x.
//
// Grounded on the reference compiler's inplace-folding visitor: it walks
// ref chains to the first computable ancestor, requires tail->rnum==1 on
// the input and head->rnum==1 on the output with head[0]==tail[0], then
// memcmp's dims before transplanting.
func Fold(g *symbol.Graph, live *liveness.Info, log *zap.Logger) *Result {
	if log == nil {
		log = zap.NewNop()
	}
	res := &Result{Folded: make(map[symbol.TensorID]symbol.TensorID)}

	var folds int
	for i := range g.Execs {
		e := &g.Execs[i]
		if !e.InplaceCapable {
			continue
		}
		for _, outID := range e.Outputs {
			if _, already := res.Folded[outID]; already {
				continue
			}
			y := live.Tensors[outID]
			if y == nil || y.Class != liveness.ClassComputable || len(y.Head) != 1 {
				continue
			}
			for _, inID := range e.Inputs {
				xID := chaseRef(res.Folded, inID)
				if xID == outID {
					continue
				}
				x := live.Tensors[xID]
				if x == nil || x.Class != liveness.ClassComputable || len(x.Tail) != 1 {
					continue
				}
				if x.Tail[0] != y.Head[0] {
					continue
				}
				outSym, inSym := g.Tensor(outID), g.Tensor(xID)
				if outSym == nil || inSym == nil || !sameShape(outSym, inSym) {
					continue
				}

				x.Tail = y.Tail
				y.Class = liveness.ClassUnassigned
				res.Folded[outID] = xID
				folds++
				break
			}
		}
	}

	log.Debug("inplace folding complete", zap.Int("folds", folds))
	return res
}

// Resolve returns the tensor id that id's storage should ultimately be
// allocated under, chasing any fold chain to its end.
func (r *Result) Resolve(id symbol.TensorID) symbol.TensorID {
	return chaseRef(r.Folded, id)
}
