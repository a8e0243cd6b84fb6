// Package execgraph turns the symbolic exec graph plus a packer.Plan into
// the concrete graph an engine actually runs: real kernel invocations,
// a synthesized zero-init node per InitToZero tensor, and synthetic
// source/sink noops when the symbolic graph has more than one of either.
package execgraph

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sbl8/arenac/liveness"
	"github.com/sbl8/arenac/packer"
	"github.com/sbl8/arenac/symbol"
)

// ZeroInitCommand is the command descriptor synthesized zero-init nodes
// carry; the external kernel registry resolves it to a memset-style op.
const ZeroInitCommand = "arenac.zero_init"

// NoopCommand is the command descriptor synthetic source/sink nodes
// carry; it performs no work.
const NoopCommand = "arenac.noop"

// ConcreteExec is one node of the materialized graph.
type ConcreteExec struct {
	Command    string
	Hint       string
	Inputs     []symbol.TensorID
	Outputs    []symbol.TensorID
	Successors []int // indices into Graph.Execs
	Synthetic  bool
}

// Graph is the materialized graph: real execs in their original order
// (index i holds symbol exec id i), followed by synthesized zero-init and
// noop nodes. Source and Sink index the single entry and exit nodes.
type Graph struct {
	Execs  []ConcreteExec
	Source int
	Sink   int
}

// Materialize builds the concrete graph: every symbolic exec becomes a
// ConcreteExec at the same index, one zero-init node is synthesized per
// InitToZero computable tensor (wired after its AllocDep predecessors'
// tails and before its own head execs), and a synthetic noop source/sink
// is added whenever the resulting graph has more than one real source or
// destination.
//
// Grounded on the reference compiler's synthesized SET-to-zero nodes
// (inserted once per tensor needing zero-init, ordered by alloc_dep) and
// its source/destination normalization that funnels a graph with several
// roots or leaves through one synthetic no-op each, expressed here as
// successor-list edges between ConcreteExec nodes rather than a fixed
// node array.
func Materialize(g *symbol.Graph, live *liveness.Info, plan *packer.Plan, log *zap.Logger) (*Graph, error) {
	if log == nil {
		log = zap.NewNop()
	}

	mg := &Graph{}
	for i := range g.Execs {
		e := &g.Execs[i]
		succ := make([]int, len(e.Successors))
		for j, s := range e.Successors {
			succ[j] = int(s)
		}
		mg.Execs = append(mg.Execs, ConcreteExec{Command: e.Command, Hint: e.Hint, Inputs: e.Inputs, Outputs: e.Outputs, Successors: succ})
	}

	addEdge := func(from, to int) {
		mg.Execs[from].Successors = append(mg.Execs[from].Successors, to)
	}

	var zeroIDs []symbol.TensorID
	for id, tl := range live.Tensors {
		if tl.Class != liveness.ClassComputable {
			continue
		}
		if t := g.Tensor(id); t != nil && t.InitToZero {
			zeroIDs = append(zeroIDs, id)
		}
	}
	sort.Slice(zeroIDs, func(i, j int) bool { return zeroIDs[i] < zeroIDs[j] })

	var zeroNodes int
	for _, id := range zeroIDs {
		tl := live.Tensors[id]
		idx := len(mg.Execs)
		mg.Execs = append(mg.Execs, ConcreteExec{Command: ZeroInitCommand, Outputs: []symbol.TensorID{id}, Synthetic: true})
		zeroNodes++

		for _, depID := range plan.AllocDep[id] {
			depLive := live.Tensors[depID]
			if depLive == nil {
				continue
			}
			for _, p := range depLive.Tail {
				addEdge(int(p), idx)
			}
		}
		for _, h := range tl.Head {
			addEdge(idx, int(h))
		}
	}

	hasIncoming := make([]bool, len(mg.Execs))
	hasOutgoing := make([]bool, len(mg.Execs))
	for i := range mg.Execs {
		for _, s := range mg.Execs[i].Successors {
			hasOutgoing[i] = true
			hasIncoming[s] = true
		}
	}
	var sources, sinks []int
	for i := range mg.Execs {
		if !hasIncoming[i] {
			sources = append(sources, i)
		}
		if !hasOutgoing[i] {
			sinks = append(sinks, i)
		}
	}

	if len(sources) == 1 {
		mg.Source = sources[0]
	} else {
		mg.Source = len(mg.Execs)
		mg.Execs = append(mg.Execs, ConcreteExec{Command: NoopCommand, Synthetic: true})
		for _, s := range sources {
			addEdge(mg.Source, s)
		}
	}
	if len(sinks) == 1 {
		mg.Sink = sinks[0]
	} else {
		mg.Sink = len(mg.Execs)
		mg.Execs = append(mg.Execs, ConcreteExec{Command: NoopCommand, Synthetic: true})
		for _, s := range sinks {
			addEdge(s, mg.Sink)
		}
	}

	log.Debug("execgraph materialized", zap.Int("execs", len(mg.Execs)), zap.Int("zero_init_nodes", zeroNodes))
	return mg, nil
}
