// Package liveness computes, for every computable tensor, the head and
// tail antichains of exec ids that touch it: head is the minimal set of
// execs that must have run before the tensor's storage is meaningful,
// tail is the minimal set after which the storage may be reused. Both
// are incomparable-by-construction (no element precedes another) because
// insertion folds any dominated element into the one that dominates it.
package liveness

import (
	"go.uber.org/zap"

	"github.com/sbl8/arenac/depmatrix"
	"github.com/sbl8/arenac/symbol"
)

// Class classifies a tensor for allocation purposes.
type Class uint8

const (
	// ClassUnassigned covers pre-bound and otherwise externally supplied
	// tensors, and outputs the inplace step folded onto an input: the
	// planner never allocates or schedules zero-init for them.
	ClassUnassigned Class = iota
	// ClassAlias tensors never get their own antichains; their parent
	// carries liveness for the whole view family.
	ClassAlias
	// ClassConst is assigned the first time a tensor is read before any
	// exec has written it: nothing needs to run before it is readable, so
	// it carries no head.
	ClassConst
	// ClassComputable tensors get a real head/tail pair and are the ones
	// the packer places into the arena.
	ClassComputable
)

// Tensor carries one tensor's classification and antichains.
type Tensor struct {
	Class Class
	Head  []symbol.ExecID
	Tail  []symbol.ExecID
}

// Info is the per-tensor liveness table for a graph.
type Info struct {
	Tensors map[symbol.TensorID]*Tensor
}

func resolve(g *symbol.Graph, id symbol.TensorID) symbol.TensorID {
	if t := g.Tensor(id); t != nil && t.IsAlias() {
		return t.AliasOf
	}
	return id
}

// Build classifies every tensor and computes head/tail antichains for the
// computable ones, walking sub.Order exactly once (the same walk
// depmatrix.Build used to construct dm).
func Build(g *symbol.Graph, sub *depmatrix.Subgraph, dm *depmatrix.Matrix, log *zap.Logger) *Info {
	if log == nil {
		log = zap.NewNop()
	}

	info := &Info{Tensors: make(map[symbol.TensorID]*Tensor, len(g.Tensors))}
	for i := range g.Tensors {
		t := &g.Tensors[i]
		cl := ClassUnassigned
		if t.IsAlias() {
			cl = ClassAlias
		}
		info.Tensors[t.ID] = &Tensor{Class: cl}
	}

	mark := func(id symbol.TensorID) {
		tid := resolve(g, id)
		tl := info.Tensors[tid]
		if tl.Class == ClassAlias {
			return
		}
		tl.Class = ClassComputable
	}
	for i := range g.Execs {
		e := &g.Execs[i]
		for _, in := range e.Inputs {
			mark(in)
		}
		for _, out := range e.Outputs {
			mark(out)
		}
	}
	// Pre-bound tensors stay unassigned regardless of how many execs
	// reference them; the caller owns their storage already.
	for id := range g.Binds {
		tid := resolve(g, id)
		if tl := info.Tensors[tid]; tl.Class != ClassAlias {
			tl.Class = ClassUnassigned
		}
	}

	var computed int
	var reclassified int
	for _, v := range sub.Order {
		e := g.Exec(v)
		if e == nil {
			continue
		}
		for _, in := range e.Inputs {
			tid := resolve(g, in)
			tl := info.Tensors[tid]
			if tl.Class == ClassUnassigned {
				continue
			}
			if len(tl.Head) == 0 {
				tl.Class = ClassConst
				reclassified++
				continue
			}
			insertExec(dm, tl, v)
		}
		for _, out := range e.Outputs {
			tid := resolve(g, out)
			tl := info.Tensors[tid]
			if tl.Class == ClassConst || tl.Class == ClassUnassigned {
				continue
			}
			insertExec(dm, tl, v)
			computed++
		}
	}

	log.Debug("liveness computed",
		zap.Int("tensors", len(g.Tensors)),
		zap.Int("output_refs", computed),
		zap.Int("const_reclassified", reclassified))
	return info
}

// insertExec inserts v into tl's head and tail antichains.
func insertExec(dm *depmatrix.Matrix, tl *Tensor, v symbol.ExecID) {
	tl.Head = insertAntichain(tl.Head, v, dm.Precedes)
	tl.Tail = insertAntichain(tl.Tail, v, func(a, b symbol.ExecID) bool { return dm.Precedes(b, a) })
}

// insertAntichain maintains list as a set of mutually incomparable ids
// under before(a, b) meaning "a strictly precedes b". Inserting x: if some
// existing element s strictly precedes x, x is dominated and discarded
// (found is marked and the scan stops); if x strictly precedes an
// existing element instead, that element is dominated by x and is
// replaced (the first match takes x directly, any later dominated
// matches are swap-removed); otherwise x is incomparable with everything
// seen and is appended.
func insertAntichain(list []symbol.ExecID, x symbol.ExecID, before func(a, b symbol.ExecID) bool) []symbol.ExecID {
	found := false
	i := 0
	for i < len(list) {
		if before(list[i], x) {
			found = true
			break
		} else if before(x, list[i]) {
			if !found {
				found = true
				list[i] = x
			} else {
				last := len(list) - 1
				list[i] = list[last]
				list = list[:last]
				continue
			}
		}
		i++
	}
	if !found {
		list = append(list, x)
	}
	return list
}
