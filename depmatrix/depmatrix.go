// Package depmatrix builds the transitive partial order over exec nodes
// that Liveness and the Packer consult for ordering and tiebreaking.
//
// The topological walk here is computed once: liveness reuses the same
// Order slice instead of re-deriving it. execgraph's materializer does not
// walk it; it copies execs in index order.
package depmatrix

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/sbl8/arenac/symbol"
)

// Matrix is a sparse map (successor, ancestor) -> hop_count, hop_count > 0
// iff ancestor strictly precedes successor. Values are longest observed
// path lengths and are only used for Packer tiebreaking. Stored as a
// column-per-successor map so the builder can read all ancestors already
// recorded for a node in one lookup.
type Matrix struct {
	columns map[symbol.ExecID]map[symbol.ExecID]int32
	pairs   int
}

// Hops returns the longest path length from anc to succ, and whether anc
// precedes succ at all. The bool return is a dedicated none marker in
// place of a magic sentinel hop count.
func (m *Matrix) Hops(succ, anc symbol.ExecID) (int32, bool) {
	col, ok := m.columns[succ]
	if !ok {
		return 0, false
	}
	h, ok := col[anc]
	return h, ok
}

// Precedes reports whether anc strictly precedes succ.
func (m *Matrix) Precedes(anc, succ symbol.ExecID) bool {
	_, ok := m.Hops(succ, anc)
	return ok
}

// Ancestors returns the column of (ancestor -> hops) recorded for succ.
func (m *Matrix) Ancestors(succ symbol.ExecID) map[symbol.ExecID]int32 {
	return m.columns[succ]
}

func (m *Matrix) set(succ, anc symbol.ExecID, hops int32) {
	if m.columns == nil {
		m.columns = make(map[symbol.ExecID]map[symbol.ExecID]int32)
	}
	col, ok := m.columns[succ]
	if !ok {
		col = make(map[symbol.ExecID]int32)
		m.columns[succ] = col
	}
	if old, ok := col[anc]; !ok || hops > old {
		if !ok {
			m.pairs++
		}
		col[anc] = hops
	}
}

// Subgraph is the induced subgraph rooted at Sources and bounded at
// Destinations: Order lists its exec ids in topological order, and
// Members reports set membership.
type Subgraph struct {
	Order   []symbol.ExecID
	Members map[symbol.ExecID]bool
}

// BuildSubgraph computes the exec ids reachable from the given sources
// without expanding past any destination (a destination's own successors
// are not traversed), and returns them in topological order.
func BuildSubgraph(g *symbol.Graph, sources, destinations []symbol.ExecID) (*Subgraph, error) {
	destSet := make(map[symbol.ExecID]bool, len(destinations))
	for _, d := range destinations {
		destSet[d] = true
	}

	members := make(map[symbol.ExecID]bool)
	var visit func(id symbol.ExecID)
	visit = func(id symbol.ExecID) {
		if members[id] {
			return
		}
		members[id] = true
		if destSet[id] {
			return
		}
		e := g.Exec(id)
		if e == nil {
			return
		}
		for _, s := range e.Successors {
			visit(s)
		}
	}
	for _, s := range sources {
		visit(s)
	}

	dg := simple.NewDirectedGraph()
	for id := range members {
		dg.AddNode(simple.Node(id))
	}
	for id := range members {
		e := g.Exec(id)
		if e == nil || destSet[id] {
			continue
		}
		for _, s := range e.Successors {
			if members[s] {
				dg.SetEdge(dg.NewEdge(simple.Node(id), simple.Node(s)))
			}
		}
	}

	ordered, err := topo.Sort(dg)
	if err != nil {
		return nil, fmt.Errorf("depmatrix: subgraph is not a DAG: %w", err)
	}

	order := make([]symbol.ExecID, 0, len(ordered))
	for _, n := range ordered {
		order = append(order, symbol.ExecID(n.ID()))
	}
	return &Subgraph{Order: order, Members: members}, nil
}

// Build walks Order once: for each node v, read the column of ancestors
// already recorded for v; for each outgoing edge v->w within the
// subgraph, record (w,v):=1 and, for every (v,a)=h already known, record
// (w,a):=max(old,h+1). Destination nodes do not propagate themselves
// forward.
func Build(g *symbol.Graph, sub *Subgraph, log *zap.Logger) *Matrix {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Matrix{}

	for _, v := range sub.Order {
		e := g.Exec(v)
		if e == nil {
			continue
		}
		vColumn := m.Ancestors(v)
		for _, w := range e.Successors {
			if !sub.Members[w] {
				continue
			}
			m.set(w, v, 1)
			for anc, h := range vColumn {
				m.set(w, anc, h+1)
			}
		}
	}

	log.Debug("depmatrix built", zap.Int("nodes", len(sub.Order)), zap.Int("pairs", m.pairs))
	return m
}

var _ graph.Node = simple.Node(0)
