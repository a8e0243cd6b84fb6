// Command planrun loads a compiled symbolic graph, runs it through
// compile.Compile, and prints the resulting arena layout. With -execute it
// also walks the materialized exec graph in dependency order and dispatches
// each command's reference kernel over its arena-backed output bytes.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/sbl8/arenac/compile"
	"github.com/sbl8/arenac/kernels"
	"github.com/sbl8/arenac/symbol"
)

func main() {
	var (
		execute = flag.Bool("execute", false, "dispatch registered kernels over the built arena")
		verbose = flag.Bool("verbose", false, "enable verbose logging")
		version = flag.Bool("version", false, "show version information")
	)
	flag.Parse()

	if *version {
		fmt.Println("planrun - arenac graph runner")
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <graph.bin>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatalf("read %s: %v", args[0], err)
	}
	g, err := symbol.Deserialize(raw)
	if err != nil {
		log.Fatalf("deserialize %s: %v", args[0], err)
	}

	logger := zap.NewNop()
	if *verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			log.Fatalf("logger: %v", err)
		}
	}
	defer logger.Sync()

	res, err := compile.Compile(g, compile.Options{Logger: logger})
	if err != nil {
		log.Fatalf("compile failed: %v", err)
	}

	if err := compile.DumpPlan(os.Stdout, g, res.Plan); err != nil {
		log.Fatalf("dump plan: %v", err)
	}

	if *execute {
		runGraph(res)
		fmt.Println("execution completed")
	}
}

// runGraph walks the materialized exec graph in topological order and
// dispatches each command's reference kernel over its output tensors'
// arena bytes. Synthetic zero-init nodes are handled directly since the
// kernels registry has no Catalog entry for them; synthetic noop nodes are
// skipped.
func runGraph(res *compile.Result) {
	mg := res.Exec
	indeg := make([]int, len(mg.Execs))
	for _, e := range mg.Execs {
		for _, s := range e.Successors {
			indeg[s]++
		}
	}

	var queue, order []int
	for i, d := range indeg {
		if d == 0 {
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, s := range mg.Execs[n].Successors {
			indeg[s]--
			if indeg[s] == 0 {
				queue = append(queue, s)
			}
		}
	}

	for _, idx := range order {
		e := mg.Execs[idx]
		switch e.Command {
		case "", "arenac.noop":
			continue
		case "arenac.zero_init":
			for _, id := range e.Outputs {
				if t, _, ok := res.Arena.Tensor(id); ok && t != nil {
					for i := range t.Bytes {
						t.Bytes[i] = 0
					}
				}
			}
		default:
			for _, id := range e.Outputs {
				if t, _, ok := res.Arena.Tensor(id); ok && t != nil {
					kernels.Dispatch(e.Command, t.Bytes)
				}
			}
		}
	}
}
