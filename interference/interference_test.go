package interference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/arenac/depmatrix"
	"github.com/sbl8/arenac/liveness"
	"github.com/sbl8/arenac/symbol"
)

func TestBuildParallelBranchesInterfere(t *testing.T) {
	g := &symbol.Graph{
		Tensors: []symbol.TensorSymbol{{ID: 0, AliasOf: -1}, {ID: 1, AliasOf: -1}},
		Execs: []symbol.ExecSymbol{
			{ID: 0, Outputs: []symbol.TensorID{0}},
			{ID: 1, Outputs: []symbol.TensorID{1}},
		},
	}
	sub, err := depmatrix.BuildSubgraph(g, []symbol.ExecID{0, 1}, nil)
	require.NoError(t, err)
	dm := depmatrix.Build(g, sub, nil)

	live := &liveness.Info{Tensors: map[symbol.TensorID]*liveness.Tensor{
		0: {Class: liveness.ClassComputable, Head: []symbol.ExecID{0}, Tail: []symbol.ExecID{0}},
		1: {Class: liveness.ClassComputable, Head: []symbol.ExecID{1}, Tail: []symbol.ExecID{1}},
	}}

	m := Build(g, live, dm, nil)
	assert.True(t, m.Overlaps(0, 1))
	assert.Equal(t, 1, m.OC[0])
	assert.Equal(t, 1, m.OC[1])
}

func TestBuildSequentialTensorsDoNotInterfere(t *testing.T) {
	// tensor0 is fully dead (last touched by exec1) strictly before
	// tensor1 is born (produced by exec2): a genuine non-overlapping
	// lifetime, unlike a produce-then-consume-and-produce single exec
	// where the input and output would actually be co-alive.
	g := &symbol.Graph{
		Tensors: []symbol.TensorSymbol{{ID: 0, AliasOf: -1}, {ID: 1, AliasOf: -1}},
		Execs: []symbol.ExecSymbol{
			{ID: 0, Outputs: []symbol.TensorID{0}, Successors: []symbol.ExecID{1}},
			{ID: 1, Inputs: []symbol.TensorID{0}, Successors: []symbol.ExecID{2}},
			{ID: 2, Outputs: []symbol.TensorID{1}},
		},
	}
	sub, err := depmatrix.BuildSubgraph(g, []symbol.ExecID{0}, nil)
	require.NoError(t, err)
	dm := depmatrix.Build(g, sub, nil)

	live := &liveness.Info{Tensors: map[symbol.TensorID]*liveness.Tensor{
		0: {Class: liveness.ClassComputable, Head: []symbol.ExecID{0}, Tail: []symbol.ExecID{1}},
		1: {Class: liveness.ClassComputable, Head: []symbol.ExecID{2}, Tail: []symbol.ExecID{2}},
	}}

	m := Build(g, live, dm, nil)
	assert.False(t, m.Overlaps(0, 1))
	assert.Equal(t, 0, m.OC[0])
	assert.Equal(t, 0, m.OC[1])
}

func TestBuildConstAlwaysInterferes(t *testing.T) {
	g := &symbol.Graph{
		Tensors: []symbol.TensorSymbol{{ID: 0, AliasOf: -1}, {ID: 1, AliasOf: -1}},
		Execs: []symbol.ExecSymbol{
			{ID: 0, Inputs: []symbol.TensorID{0}, Outputs: []symbol.TensorID{1}},
		},
	}
	sub, err := depmatrix.BuildSubgraph(g, []symbol.ExecID{0}, nil)
	require.NoError(t, err)
	dm := depmatrix.Build(g, sub, nil)

	live := &liveness.Info{Tensors: map[symbol.TensorID]*liveness.Tensor{
		0: {Class: liveness.ClassConst},
		1: {Class: liveness.ClassComputable, Head: []symbol.ExecID{0}, Tail: []symbol.ExecID{0}},
	}}

	m := Build(g, live, dm, nil)
	assert.True(t, m.Overlaps(0, 1))
	assert.ElementsMatch(t, []symbol.TensorID{0, 1}, m.IDs())
}
