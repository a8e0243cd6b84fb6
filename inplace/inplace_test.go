package inplace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/arenac/liveness"
	"github.com/sbl8/arenac/symbol"
)

func tensorPair(dimsA, dimsB []int64) *symbol.Graph {
	return &symbol.Graph{
		Tensors: []symbol.TensorSymbol{
			{ID: 0, Dims: dimsA, ElemSize: 4, AliasOf: -1},
			{ID: 1, Dims: dimsB, ElemSize: 4, AliasOf: -1},
		},
		Execs: []symbol.ExecSymbol{
			{ID: 0, Inputs: []symbol.TensorID{0}, Outputs: []symbol.TensorID{1}, InplaceCapable: true},
		},
	}
}

func TestFoldMatchingShapes(t *testing.T) {
	g := tensorPair([]int64{4, 4}, []int64{4, 4})
	live := &liveness.Info{Tensors: map[symbol.TensorID]*liveness.Tensor{
		0: {Class: liveness.ClassComputable, Head: []symbol.ExecID{0}, Tail: []symbol.ExecID{0}},
		1: {Class: liveness.ClassComputable, Head: []symbol.ExecID{0}, Tail: []symbol.ExecID{0}},
	}}

	res := Fold(g, live, nil)
	require.Contains(t, res.Folded, symbol.TensorID(1))
	assert.Equal(t, symbol.TensorID(0), res.Folded[1])
	assert.Equal(t, symbol.TensorID(0), res.Resolve(1))
	// Folding transplants y's tail onto x.
	assert.Equal(t, []symbol.ExecID{0}, live.Tensors[0].Tail)
}

func TestFoldRejectsShapeMismatch(t *testing.T) {
	g := tensorPair([]int64{4, 4}, []int64{2, 8})
	live := &liveness.Info{Tensors: map[symbol.TensorID]*liveness.Tensor{
		0: {Class: liveness.ClassComputable, Head: []symbol.ExecID{0}, Tail: []symbol.ExecID{0}},
		1: {Class: liveness.ClassComputable, Head: []symbol.ExecID{0}, Tail: []symbol.ExecID{0}},
	}}

	res := Fold(g, live, nil)
	assert.Empty(t, res.Folded)
	assert.Equal(t, symbol.TensorID(1), res.Resolve(1))
}

func TestFoldRejectsMultiTailInput(t *testing.T) {
	g := tensorPair([]int64{4, 4}, []int64{4, 4})
	live := &liveness.Info{Tensors: map[symbol.TensorID]*liveness.Tensor{
		0: {Class: liveness.ClassComputable, Head: []symbol.ExecID{0}, Tail: []symbol.ExecID{0, 2}},
		1: {Class: liveness.ClassComputable, Head: []symbol.ExecID{0}, Tail: []symbol.ExecID{0}},
	}}

	res := Fold(g, live, nil)
	assert.Empty(t, res.Folded)
}

func TestFoldSkipsConstOutput(t *testing.T) {
	g := tensorPair([]int64{4, 4}, []int64{4, 4})
	live := &liveness.Info{Tensors: map[symbol.TensorID]*liveness.Tensor{
		0: {Class: liveness.ClassComputable, Head: []symbol.ExecID{0}, Tail: []symbol.ExecID{0}},
		1: {Class: liveness.ClassConst},
	}}

	res := Fold(g, live, nil)
	assert.Empty(t, res.Folded)
}

func TestFoldChainsThroughPriorFold(t *testing.T) {
	// Three tensors across two inplace execs: 0 -> 1 -> 2, where 2 should
	// ultimately resolve through 1 to 0.
	g := &symbol.Graph{
		Tensors: []symbol.TensorSymbol{
			{ID: 0, Dims: []int64{4}, ElemSize: 4, AliasOf: -1},
			{ID: 1, Dims: []int64{4}, ElemSize: 4, AliasOf: -1},
			{ID: 2, Dims: []int64{4}, ElemSize: 4, AliasOf: -1},
		},
		Execs: []symbol.ExecSymbol{
			{ID: 0, Inputs: []symbol.TensorID{0}, Outputs: []symbol.TensorID{1}, InplaceCapable: true},
			{ID: 1, Inputs: []symbol.TensorID{1}, Outputs: []symbol.TensorID{2}, InplaceCapable: true},
		},
	}
	live := &liveness.Info{Tensors: map[symbol.TensorID]*liveness.Tensor{
		0: {Class: liveness.ClassComputable, Head: []symbol.ExecID{0}, Tail: []symbol.ExecID{0}},
		1: {Class: liveness.ClassComputable, Head: []symbol.ExecID{0}, Tail: []symbol.ExecID{1}},
		2: {Class: liveness.ClassComputable, Head: []symbol.ExecID{1}, Tail: []symbol.ExecID{1}},
	}}

	res := Fold(g, live, nil)
	assert.Equal(t, symbol.TensorID(0), res.Resolve(1))
	assert.Equal(t, symbol.TensorID(0), res.Resolve(2))
}
