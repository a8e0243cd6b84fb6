// Package packer assigns concrete byte offsets to every computable tensor
// inside a small number of dis-continuous buffers, reusing a predecessor's
// bytes for a successor whenever their lifetimes provably don't overlap.
package packer

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sbl8/arenac/core"
	"github.com/sbl8/arenac/depmatrix"
	"github.com/sbl8/arenac/interference"
	"github.com/sbl8/arenac/liveness"
	"github.com/sbl8/arenac/symbol"
)

// Placement is one tensor's final byte location: which buffer, and the
// offset within it.
type Placement struct {
	Buffer int // 1-based buffer index
	Offset uint64
}

// Plan is the packer's output: a placement for every computable tensor, the
// total size of each buffer, and the reuse edges (AllocDep) the
// materializer uses to order zero-init writes.
type Plan struct {
	BufferSize []uint64 // BufferSize[b-1] is buffer b's total byte size
	Placement  map[symbol.TensorID]Placement
	// AllocDep[x] lists the tensors whose storage immediately precedes x
	// in the same buffer: x's zero-init, if any, must be ordered after
	// every y in AllocDep[x] is fully dead.
	AllocDep map[symbol.TensorID][]symbol.TensorID
}

type edge struct {
	free   uint64
	offset uint64
}

// allocGraph is the SRC/SNK allocation multigraph: node 0 is SRC, node
// n+1 is SNK, nodes 1..n are computable tensors in dense index order. At
// most one edge exists between any ordered pair at a time.
type allocGraph struct {
	out map[int]map[int]edge
}

func newAllocGraph() *allocGraph { return &allocGraph{out: make(map[int]map[int]edge)} }

func (g *allocGraph) set(y, x int, e edge) {
	if g.out[y] == nil {
		g.out[y] = make(map[int]edge)
	}
	g.out[y][x] = e
}

func (g *allocGraph) forEach(fn func(y, x int, e edge)) {
	for y, row := range g.out {
		for x, e := range row {
			fn(y, x, e)
		}
	}
}

type candidate struct {
	index     int // dense index into ids/size
	companion int // dense index of companion, or -1
	size      uint64
}

// Build runs the greedy best-fit packing pass described in the design
// notes: at every step, pick the unassigned tensor(s) with the largest
// current overlap count, try to slot them (optionally paired with a
// larger non-overlapping companion) into existing buffer gaps with the
// fewest SRC/SNK boundary touches, and fall back to a fresh buffer when
// nothing fits.
//
// Grounded on the reference compiler's tensor_arena allocation loop
// (overlap-count candidate selection, companion search, the four
// edge-selection branches, residual-edge splitting, and the alloc_dep
// bookkeeping pass run over the final graph).
func Build(g *symbol.Graph, live *liveness.Info, dm *depmatrix.Matrix, itf *interference.Matrix, log *zap.Logger) *Plan {
	if log == nil {
		log = zap.NewNop()
	}

	ids := itf.IDs()
	n := len(ids)
	size := make([]uint64, n)
	for i, id := range ids {
		t := g.Tensor(id)
		size[i] = core.TensorBytes(uint64(t.ElemSize), uint64(t.Count()))
	}
	oc := make([]int, n)
	for i, id := range ids {
		oc[i] = itf.OC[id]
	}
	assigned := make([]int, n) // 0 = unassigned, else 1-based buffer id
	offset := make([]uint64, n)

	ht := func(aIdx, bIdx int) bool {
		return interference.HeadAfterTail(dm, live.Tensors[ids[aIdx]], live.Tensors[ids[bIdx]])
	}

	ag := newAllocGraph()
	var bufSize []uint64
	numAssigned := 0

	placed := 0
	for placed < n {
		maxOC := 0
		var opt []candidate
		for i := 0; i < n; i++ {
			if assigned[i] != 0 {
				continue
			}
			if oc[i] >= maxOC {
				if oc[i] > maxOC {
					opt = opt[:0]
					maxOC = oc[i]
				}
				opt = append(opt, candidate{index: i, companion: -1, size: size[i]})
			}
		}
		rnum := len(opt)
		for i := 0; i < rnum; i++ {
			a := opt[i]
			for k := 0; k < n; k++ {
				if assigned[k] == 0 && size[k] > a.size && !itf.Overlaps(ids[a.index], ids[k]) {
					opt = append(opt, candidate{index: a.index, companion: k, size: size[k]})
				}
			}
		}
		sort.SliceStable(opt, func(i, j int) bool { return opt[i].size > opt[j].size })

		minY, minX := 0, n+1
		var minEdge edge
		found := false
		chosen := -1

		for i, a := range opt {
			var aHopC bool
			if a.companion >= 0 {
				aHopC = ht(a.companion, a.index)
			}
			thisFound := false
			var thisY, thisX int
			var thisEdge edge
			thisTouches := 0

			ag.forEach(func(y, x int, e edge) {
				if e.free < a.size {
					return
				}
				ySentinel := y == 0
				xSentinel := x == n+1

				var yOK, xOK bool
				if a.companion < 0 {
					yOK = ySentinel || ht(a.index, y-1)
					xOK = xSentinel || ht(x-1, a.index)
				} else if aHopC {
					yOK = ySentinel || ht(a.index, y-1)
					xOK = xSentinel || ht(x-1, a.companion)
				} else {
					yOK = ySentinel || ht(a.companion, y-1)
					xOK = xSentinel || ht(x-1, a.index)
				}
				if !yOK || !xOK {
					return
				}
				touches := 0
				if ySentinel {
					touches++
				}
				if xSentinel {
					touches++
				}
				if !thisFound || touches < thisTouches {
					thisFound = true
					thisY, thisX, thisEdge, thisTouches = y, x, e, touches
				}
			})

			if thisFound {
				found = true
				minY, minX, minEdge = thisY, thisX, thisEdge
				chosen = i
				break
			}
		}

		if chosen < 0 {
			chosen = 0
		}
		a := opt[chosen]

		if !found {
			numAssigned++
			bufSize = append(bufSize, a.size)
		}

		var group int
		if minY > 0 {
			group = assigned[minY-1]
		} else if minX < n+1 {
			group = assigned[minX-1]
		} else {
			group = numAssigned
		}

		assigned[a.index] = group
		offset[a.index] = minEdge.offset
		for i := 0; i < n; i++ {
			if assigned[i] == 0 && itf.Overlaps(ids[i], ids[a.index]) {
				oc[i]--
			}
		}
		if a.companion >= 0 {
			assigned[a.companion] = group
			offset[a.companion] = minEdge.offset
			for i := 0; i < n; i++ {
				if assigned[i] == 0 && itf.Overlaps(ids[i], ids[a.companion]) {
					oc[i]--
				}
			}
		}

		if found {
			remaining := edge{free: minEdge.free - a.size, offset: minEdge.offset + a.size}
			ag.set(minY, minX, remaining)
		}

		if a.companion < 0 {
			e := edge{free: a.size, offset: minEdge.offset}
			ag.set(minY, a.index+1, e)
			ag.set(a.index+1, minX, e)
			placed++
		} else {
			aHopC := ht(a.companion, a.index)
			if aHopC {
				ag.set(minY, a.index+1, edge{free: size[a.index], offset: minEdge.offset})
				e := edge{free: a.size, offset: minEdge.offset}
				ag.set(a.index+1, a.companion+1, e)
				ag.set(a.companion+1, minX, e)
				if a.size > size[a.index] {
					ag.set(minY, a.companion+1, edge{free: a.size - size[a.index], offset: minEdge.offset + size[a.index]})
				}
			} else {
				ag.set(minY, a.companion+1, edge{free: a.size, offset: minEdge.offset})
				e := edge{free: size[a.index], offset: minEdge.offset}
				ag.set(a.companion+1, a.index+1, e)
				ag.set(a.index+1, minX, e)
				if a.size > size[a.index] {
					ag.set(a.companion+1, minX, edge{free: a.size - size[a.index], offset: minEdge.offset + size[a.index]})
				}
			}
			placed += 2
		}
	}

	plan := &Plan{BufferSize: bufSize, Placement: make(map[symbol.TensorID]Placement, n), AllocDep: make(map[symbol.TensorID][]symbol.TensorID)}
	for i, id := range ids {
		plan.Placement[id] = Placement{Buffer: assigned[i], Offset: offset[i]}
	}

	depSeen := make(map[symbol.TensorID]map[symbol.TensorID]bool)
	ag.forEach(func(y, x int, e edge) {
		if e.free == 0 || y == 0 || x == n+1 {
			return
		}
		xID, yID := ids[x-1], ids[y-1]
		if depSeen[xID] == nil {
			depSeen[xID] = make(map[symbol.TensorID]bool)
		}
		if !depSeen[xID][yID] {
			depSeen[xID][yID] = true
			plan.AllocDep[xID] = append(plan.AllocDep[xID], yID)
		}
	})

	log.Debug("packer placed tensors", zap.Int("tensors", n), zap.Int("buffers", numAssigned))
	return plan
}
