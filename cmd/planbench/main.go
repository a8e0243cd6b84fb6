// Command planbench benchmarks the packer (and the rest of the compile
// pipeline it sits in) across synthetic graph sizes, in the flag-driven
// timing-loop style cmd/sublperf used for kernel throughput.
package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sbl8/arenac/compile"
	"github.com/sbl8/arenac/symbol"
)

func main() {
	var (
		sizes = flag.String("sizes", "10,100,1000,10000", "comma-separated synthetic graph sizes (exec count)")
		iter  = flag.Int("iter", 20, "iterations per size")
	)
	flag.Parse()

	fmt.Println("arenac packer benchmark")
	fmt.Println("========================")
	fmt.Printf("iterations per size: %d\n\n", *iter)

	for _, n := range parseSizes(*sizes) {
		g := syntheticChain(n)

		start := time.Now()
		var failed error
		for i := 0; i < *iter; i++ {
			if _, err := compile.Compile(g, compile.Options{}); err != nil {
				failed = err
				break
			}
		}
		if failed != nil {
			fmt.Printf("execs=%-7d FAILED: %v\n", n, failed)
			continue
		}
		elapsed := time.Since(start)
		avg := elapsed / time.Duration(*iter)
		rate := float64(n) * float64(*iter) / elapsed.Seconds()
		fmt.Printf("execs=%-7d total=%-14v avg=%-14v (%.0f execs/s)\n", n, elapsed, avg, rate)
	}
}

// syntheticChain builds a linear tensor-0 -> E0 -> tensor-1 -> E1 -> ... ->
// tensor-n chain of n execs. Each exec reads one tensor and writes the
// next, so neighbouring tensors interfere while tensors two steps apart
// can share storage, exercising the packer's candidate search at scale.
func syntheticChain(n int) *symbol.Graph {
	g := &symbol.Graph{Binds: map[symbol.TensorID]any{0: "input"}}
	for i := 0; i <= n; i++ {
		g.Tensors = append(g.Tensors, symbol.TensorSymbol{ID: symbol.TensorID(i), Dims: []int64{64}, ElemSize: 4, AliasOf: -1})
	}
	for i := 0; i < n; i++ {
		var successors []symbol.ExecID
		if i+1 < n {
			successors = []symbol.ExecID{symbol.ExecID(i + 1)}
		}
		g.Execs = append(g.Execs, symbol.ExecSymbol{
			ID:         symbol.ExecID(i),
			Command:    "copy",
			Inputs:     []symbol.TensorID{symbol.TensorID(i)},
			Outputs:    []symbol.TensorID{symbol.TensorID(i + 1)},
			Successors: successors,
		})
	}
	return g
}

func parseSizes(s string) []int {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
