package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/arenac/inplace"
	"github.com/sbl8/arenac/packer"
	"github.com/sbl8/arenac/symbol"
)

func TestBuildAllocatesAndSlicesBuffers(t *testing.T) {
	g := &symbol.Graph{
		Tensors: []symbol.TensorSymbol{
			{ID: 0, Dims: []int64{4}, ElemSize: 4, AliasOf: -1},
			{ID: 1, Dims: []int64{2}, ElemSize: 4, AliasOf: 0, AliasOffset: 0},
		},
	}
	plan := &packer.Plan{
		BufferSize: []uint64{16},
		Placement:  map[symbol.TensorID]packer.Placement{0: {Buffer: 1, Offset: 0}},
		AllocDep:   map[symbol.TensorID][]symbol.TensorID{},
	}
	fold := &inplace.Result{Folded: map[symbol.TensorID]symbol.TensorID{}}

	ar, err := Build(g, fold, plan, nil, nil)
	require.NoError(t, err)
	require.Len(t, ar.Buffers, 1)
	assert.Len(t, ar.Buffers[0], 16)

	t0, _, ok := ar.Tensor(0)
	require.True(t, ok)
	assert.Len(t, t0.Bytes, 16)

	t1, _, ok := ar.Tensor(1)
	require.True(t, ok)
	assert.Len(t, t1.Bytes, 8)
	// The alias view must share the same backing array as its parent.
	t0.Bytes[0] = 0xAB
	assert.Equal(t, byte(0xAB), t1.Bytes[0])
}

func TestBuildFoldedOutputSharesOwnerBytes(t *testing.T) {
	g := &symbol.Graph{
		Tensors: []symbol.TensorSymbol{
			{ID: 0, Dims: []int64{4}, ElemSize: 4, AliasOf: -1},
			{ID: 1, Dims: []int64{4}, ElemSize: 4, AliasOf: -1},
		},
	}
	plan := &packer.Plan{
		BufferSize: []uint64{16},
		Placement:  map[symbol.TensorID]packer.Placement{0: {Buffer: 1, Offset: 0}},
		AllocDep:   map[symbol.TensorID][]symbol.TensorID{},
	}
	fold := &inplace.Result{Folded: map[symbol.TensorID]symbol.TensorID{1: 0}}

	ar, err := Build(g, fold, plan, nil, nil)
	require.NoError(t, err)

	t0, _, _ := ar.Tensor(0)
	t1, _, ok := ar.Tensor(1)
	require.True(t, ok)
	assert.Same(t, &t0.Bytes[0], &t1.Bytes[0])
}

func TestBuildCarriesBoundTensorsThrough(t *testing.T) {
	g := &symbol.Graph{
		Tensors: []symbol.TensorSymbol{{ID: 0, Dims: []int64{4}, ElemSize: 4, AliasOf: -1}},
		Binds:   map[symbol.TensorID]any{0: "external"},
	}
	plan := &packer.Plan{BufferSize: nil, Placement: map[symbol.TensorID]packer.Placement{}, AllocDep: map[symbol.TensorID][]symbol.TensorID{}}
	fold := &inplace.Result{Folded: map[symbol.TensorID]symbol.TensorID{}}

	ar, err := Build(g, fold, plan, nil, nil)
	require.NoError(t, err)

	_, v, ok := ar.Tensor(0)
	require.True(t, ok)
	assert.Equal(t, "external", v)
}
