// Package compile wires DepMatrix, Liveness, InplaceFolder, Interference,
// Packer, ArenaBuilder, and GraphMaterializer into the fixed pipeline a
// symbolic graph goes through to become a runnable one with a pre-planned
// arena.
package compile

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	units "github.com/docker/go-units"
	"go.uber.org/zap"

	"github.com/sbl8/arenac/arena"
	"github.com/sbl8/arenac/depmatrix"
	"github.com/sbl8/arenac/execgraph"
	"github.com/sbl8/arenac/inplace"
	"github.com/sbl8/arenac/interference"
	"github.com/sbl8/arenac/liveness"
	"github.com/sbl8/arenac/packer"
	"github.com/sbl8/arenac/symbol"
)

// The five fatal error kinds the pipeline can report. Call sites wrap one
// of these with fmt.Errorf("%w", ...) and callers discriminate with
// errors.Is.
var (
	ErrMixedMemoryType = errors.New("compile: tensor alias spans mismatched memory types")
	ErrAliasOfAlias    = errors.New("compile: tensor aliases another alias")
	ErrOrderingCycle   = errors.New("compile: exec successor graph is not a DAG")
	ErrOverflowOffset  = errors.New("compile: tensor placement overflows its buffer")
	ErrArenaExhausted  = errors.New("compile: arena backend could not satisfy an allocation")
)

// Options configures a Compile call. A nil Logger is replaced with
// zap.NewNop(), and a nil Backend defaults to arena.Host.
type Options struct {
	Logger  *zap.Logger
	Backend arena.Backend
}

// Result is everything a completed compile produced: the intermediate
// analyses (useful for diagnostics and the S1-S6 test scenarios) and the
// final arena and materialized exec graph.
type Result struct {
	Sub   *depmatrix.Subgraph
	Dep   *depmatrix.Matrix
	Live  *liveness.Info
	Fold  *inplace.Result
	Itf   *interference.Matrix
	Plan  *packer.Plan
	Arena *arena.Arena
	Exec  *execgraph.Graph
}

// Compile runs the full pipeline over g: validate, build the dependency
// matrix, compute liveness, fold inplace-capable execs, compute
// interference, pack tensors into buffers, build the arena, and
// materialize the concrete exec graph. When g.Sources is empty, every exec
// that is no other exec's successor is used as a source.
func Compile(g *symbol.Graph, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	backend := opts.Backend
	if backend == nil {
		backend = arena.Host{}
	}

	if err := g.Validate(); err != nil {
		if strings.Contains(err.Error(), "aliases an alias") {
			return nil, fmt.Errorf("%w: %v", ErrAliasOfAlias, err)
		}
		return nil, err
	}
	if err := checkMixedMemoryType(g); err != nil {
		return nil, err
	}

	sources := g.Sources
	if len(sources) == 0 {
		hasPred := make(map[symbol.ExecID]bool)
		for i := range g.Execs {
			for _, s := range g.Execs[i].Successors {
				hasPred[s] = true
			}
		}
		for i := range g.Execs {
			if !hasPred[g.Execs[i].ID] {
				sources = append(sources, g.Execs[i].ID)
			}
		}
	}
	sub, err := depmatrix.BuildSubgraph(g, sources, g.Destinations)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderingCycle, err)
	}
	dep := depmatrix.Build(g, sub, log)
	live := liveness.Build(g, sub, dep, log)
	fold := inplace.Fold(g, live, log)
	itf := interference.Build(g, live, dep, log)
	plan := packer.Build(g, live, dep, itf, log)

	ar, err := arena.Build(g, fold, plan, backend, log)
	if err != nil {
		if strings.Contains(err.Error(), "allocate buffer") {
			return nil, fmt.Errorf("%w: %v", ErrArenaExhausted, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrOverflowOffset, err)
	}

	exec, err := execgraph.Materialize(g, live, plan, log)
	if err != nil {
		return nil, err
	}

	var total uint64
	for _, sz := range plan.BufferSize {
		total += sz
	}
	log.Info("compile finished",
		zap.Int("buffers", len(plan.BufferSize)),
		zap.String("total_bytes", units.BytesSize(float64(total))),
		zap.Int("execs", len(exec.Execs)),
	)

	return &Result{Sub: sub, Dep: dep, Live: live, Fold: fold, Itf: itf, Plan: plan, Arena: ar, Exec: exec}, nil
}

func checkMixedMemoryType(g *symbol.Graph) error {
	for i := range g.Tensors {
		t := &g.Tensors[i]
		if !t.IsAlias() {
			continue
		}
		parent := g.Tensor(t.AliasOf)
		if parent == nil {
			continue
		}
		if parent.MemType != t.MemType || parent.DeviceID != t.DeviceID {
			return fmt.Errorf("%w: tensor %d (mem %d dev %d) aliases tensor %d (mem %d dev %d)",
				ErrMixedMemoryType, t.ID, t.MemType, t.DeviceID, parent.ID, parent.MemType, parent.DeviceID)
		}
	}
	return nil
}

// DumpPlan writes a plain-text table of buffer id, offset, byte size, and
// tensor id for every placed tensor in plan.
func DumpPlan(w io.Writer, g *symbol.Graph, plan *packer.Plan) error {
	ids := make([]symbol.TensorID, 0, len(plan.Placement))
	for id := range plan.Placement {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if _, err := fmt.Fprintf(w, "buffers: %d, total: %s\n", len(plan.BufferSize), units.BytesSize(float64(sumSizes(plan.BufferSize)))); err != nil {
		return err
	}
	for _, id := range ids {
		p := plan.Placement[id]
		t := g.Tensor(id)
		var bytes uint64
		if t != nil {
			bytes = uint64(t.ElemSize) * uint64(t.Count())
		}
		if _, err := fmt.Fprintf(w, "tensor %d: buffer=%d offset=%d bytes=%s\n", id, p.Buffer, p.Offset, units.BytesSize(float64(bytes))); err != nil {
			return err
		}
	}
	return nil
}

func sumSizes(sizes []uint64) uint64 {
	var total uint64
	for _, s := range sizes {
		total += s
	}
	return total
}
