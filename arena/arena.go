// Package arena turns a packer.Plan into real backing storage: one byte
// buffer per disjoint region the packer decided on, sliced into concrete
// tensor views, with aliases resolved one level deep and caller-supplied
// binds passed through untouched.
package arena

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sbl8/arenac/core"
	"github.com/sbl8/arenac/inplace"
	"github.com/sbl8/arenac/packer"
	"github.com/sbl8/arenac/symbol"
)

// Backend allocates and releases the byte buffers an Arena is built from.
// The default Host backend wraps core.AlignedBytes; a device backend
// would instead talk to a driver's allocator.
type Backend interface {
	Allocate(size uint64) ([]byte, error)
	Release(buf []byte)
}

// Host is the Backend used for host-resident tensors: plain
// cache-line-aligned Go byte slices.
type Host struct{}

// Allocate returns a zero-valued, cache-line-aligned buffer of size bytes.
// Buffers at or above a page in size are rounded up to a full page, since a
// buffer that large is a plausible mmap candidate for a real device backend
// and the host allocation should reflect the same footprint.
func (Host) Allocate(size uint64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	n := int(size)
	if n >= core.PageSize {
		n = core.AlignPage(n)
	}
	return core.AlignedBytes(n), nil
}

// Release is a no-op for the host backend; the garbage collector reclaims
// the buffer once the Arena is dropped.
func (Host) Release([]byte) {}

// ConcreteTensor is a materialized view into arena storage: a byte slice
// plus the symbolic shape it represents.
type ConcreteTensor struct {
	Bytes []byte
	Dims  []int64
	Elem  int64
}

// Arena is the fully resolved set of buffers and tensor views a compiled
// graph runs against.
type Arena struct {
	Buffers [][]byte // one per packer buffer group, index i holds group i+1

	// Tensors holds every allocated (non-bound) tensor view, keyed by its
	// own id — alias and inplace-folded ids resolve to a view backed by
	// the same bytes as their owner, not a duplicate allocation.
	Tensors map[symbol.TensorID]*ConcreteTensor

	// Bound holds the caller-supplied concrete tensors from Graph.Binds,
	// carried through without interpretation.
	Bound map[symbol.TensorID]any
}

// Build allocates one buffer per packer.Plan buffer group, constructs a
// ConcreteTensor for every computable (non-bound) tensor at its planned
// offset, resolves aliases and inplace folds to the owning tensor's
// bytes, and carries bound tensors through unchanged.
//
// Buffer allocation is generalized from a single fixed-layout region table
// to one independently allocated buffer per packer-assigned group, with
// Backend.Allocate as the swappable allocation primitive (core.AlignedBytes
// for the host case).
func Build(g *symbol.Graph, fold *inplace.Result, plan *packer.Plan, backend Backend, log *zap.Logger) (*Arena, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if backend == nil {
		backend = Host{}
	}

	ar := &Arena{
		Buffers: make([][]byte, len(plan.BufferSize)),
		Tensors: make(map[symbol.TensorID]*ConcreteTensor),
		Bound:   g.Binds,
	}
	for i, size := range plan.BufferSize {
		buf, err := backend.Allocate(size)
		if err != nil {
			return nil, fmt.Errorf("arena: allocate buffer %d (%d bytes): %w", i+1, size, err)
		}
		ar.Buffers[i] = buf
	}

	// Owning (non-alias) tensors first: these are exactly the ids the
	// packer placed.
	for id, p := range plan.Placement {
		t := g.Tensor(id)
		if t == nil {
			continue
		}
		bytes := core.TensorBytes(uint64(t.ElemSize), uint64(t.Count()))
		if p.Buffer < 1 || p.Buffer > len(ar.Buffers) {
			return nil, fmt.Errorf("arena: tensor %d placed in out-of-range buffer %d", id, p.Buffer)
		}
		buf := ar.Buffers[p.Buffer-1]
		if p.Offset+bytes > uint64(len(buf)) {
			return nil, fmt.Errorf("arena: tensor %d at offset %d (%d bytes) overflows buffer %d (%d bytes)", id, p.Offset, bytes, p.Buffer, len(buf))
		}
		ar.Tensors[id] = &ConcreteTensor{Bytes: buf[p.Offset : p.Offset+bytes], Dims: t.Dims, Elem: t.ElemSize}
	}

	// Inplace-folded outputs share their owner's bytes outright.
	for i := range g.Tensors {
		t := &g.Tensors[i]
		if t.IsAlias() {
			continue
		}
		owner := fold.Resolve(t.ID)
		if owner == t.ID {
			continue
		}
		ownerView, ok := ar.Tensors[owner]
		if !ok {
			continue
		}
		ar.Tensors[t.ID] = &ConcreteTensor{Bytes: ownerView.Bytes, Dims: t.Dims, Elem: t.ElemSize}
	}

	// Aliases resolve one level into their parent's bytes, per
	// symbol.Graph.Validate's alias-of-alias ban.
	for i := range g.Tensors {
		t := &g.Tensors[i]
		if !t.IsAlias() {
			continue
		}
		parent, ok := ar.Tensors[t.AliasOf]
		if !ok {
			if _, bound := ar.Bound[t.AliasOf]; bound {
				continue // alias of a bound tensor: caller resolves this view itself
			}
			return nil, fmt.Errorf("arena: alias %d has no resolved parent %d", t.ID, t.AliasOf)
		}
		length := uint64(t.ElemSize) * uint64(t.Count())
		start := uint64(t.AliasOffset)
		if start+length > uint64(len(parent.Bytes)) {
			return nil, fmt.Errorf("arena: alias %d view [%d:%d] overflows parent %d (%d bytes)", t.ID, start, start+length, t.AliasOf, len(parent.Bytes))
		}
		ar.Tensors[t.ID] = &ConcreteTensor{Bytes: parent.Bytes[start : start+length], Dims: t.Dims, Elem: t.ElemSize}
	}

	log.Debug("arena built", zap.Int("buffers", len(ar.Buffers)), zap.Int("tensors", len(ar.Tensors)))
	return ar, nil
}

// Release hands every allocated buffer back to the backend.
func (a *Arena) Release(backend Backend) {
	if backend == nil {
		backend = Host{}
	}
	for _, buf := range a.Buffers {
		backend.Release(buf)
	}
}

// Tensor returns the resolved concrete tensor for id, checking allocated
// storage first and then caller-bound tensors.
func (a *Arena) Tensor(id symbol.TensorID) (*ConcreteTensor, any, bool) {
	if t, ok := a.Tensors[id]; ok {
		return t, nil, true
	}
	if v, ok := a.Bound[id]; ok {
		return nil, v, true
	}
	return nil, nil, false
}
