// Command planc compiles a YAML symbolic-graph description into the gob
// wire format symbol.Deserialize reads, the DSL-to-graph step whose output
// cmd/planrun loads.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sbl8/arenac/kernels"
	"github.com/sbl8/arenac/symbol"
)

// dslTensor mirrors symbol.TensorSymbol with YAML-friendly defaults: a nil
// AliasOf means "not an alias" (symbol.TensorSymbol uses -1 for the same,
// which collides with tensor 0 as a YAML zero value).
type dslTensor struct {
	ID           int     `yaml:"id"`
	Dims         []int64 `yaml:"dims"`
	ElemSize     int64   `yaml:"elem_size"`
	MemType      string  `yaml:"mem_type"` // "host" (default) or "device"
	DeviceID     int     `yaml:"device_id"`
	AliasOf      *int    `yaml:"alias_of"`
	AliasOffset  int64   `yaml:"alias_offset"`
	AliasStrides []int64 `yaml:"alias_strides"`
	InitToZero   bool    `yaml:"init_to_zero"`
}

// dslExec mirrors symbol.ExecSymbol. Inplace left nil defers to the
// kernels registry's Descriptor for Command; Hint left empty does the same
// for ShapeHint.
type dslExec struct {
	ID         int    `yaml:"id"`
	Command    string `yaml:"command"`
	Hint       string `yaml:"hint"`
	Inputs     []int  `yaml:"inputs"`
	Outputs    []int  `yaml:"outputs"`
	Inplace    *bool  `yaml:"inplace"`
	Successors []int  `yaml:"successors"`
}

type dslGraph struct {
	Tensors      []dslTensor `yaml:"tensors"`
	Execs        []dslExec   `yaml:"execs"`
	Sources      []int       `yaml:"sources"`
	Destinations []int       `yaml:"destinations"`
}

func main() {
	var (
		validate = flag.Bool("validate", true, "validate graph structure before emitting")
		version  = flag.Bool("version", false, "show version information")
	)
	flag.Parse()

	if *version {
		fmt.Println("planc - arenac graph compiler")
		return
	}

	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <src.yaml> <out.graph>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}
	srcFile, outFile := args[0], args[1]

	raw, err := os.ReadFile(srcFile)
	if err != nil {
		log.Fatalf("read %s: %v", srcFile, err)
	}

	var dg dslGraph
	if err := yaml.Unmarshal(raw, &dg); err != nil {
		log.Fatalf("parse %s: %v", srcFile, err)
	}

	g := buildGraph(&dg)

	if *validate {
		if err := g.Validate(); err != nil {
			log.Fatalf("validate: %v", err)
		}
	}

	out, err := g.Serialize()
	if err != nil {
		log.Fatalf("serialize: %v", err)
	}
	if err := os.WriteFile(outFile, out, 0o644); err != nil {
		log.Fatalf("write %s: %v", outFile, err)
	}

	fmt.Printf("Successfully compiled %s -> %s (%d tensors, %d execs)\n", srcFile, outFile, len(g.Tensors), len(g.Execs))
}

// buildGraph resolves a dslGraph into a symbol.Graph, consulting the
// kernels registry for any exec that leaves Inplace or Hint unset.
func buildGraph(dg *dslGraph) *symbol.Graph {
	g := &symbol.Graph{}

	for _, t := range dg.Tensors {
		aliasOf := symbol.TensorID(-1)
		if t.AliasOf != nil {
			aliasOf = symbol.TensorID(*t.AliasOf)
		}
		memType := symbol.MemHost
		if t.MemType == "device" {
			memType = symbol.MemDevice
		}
		g.Tensors = append(g.Tensors, symbol.TensorSymbol{
			ID:           symbol.TensorID(t.ID),
			Dims:         t.Dims,
			ElemSize:     t.ElemSize,
			MemType:      memType,
			DeviceID:     t.DeviceID,
			AliasOf:      aliasOf,
			AliasOffset:  t.AliasOffset,
			AliasStrides: t.AliasStrides,
			InitToZero:   t.InitToZero,
		})
	}

	for _, e := range dg.Execs {
		inputs := make([]symbol.TensorID, len(e.Inputs))
		for i, v := range e.Inputs {
			inputs[i] = symbol.TensorID(v)
		}
		outputs := make([]symbol.TensorID, len(e.Outputs))
		for i, v := range e.Outputs {
			outputs[i] = symbol.TensorID(v)
		}
		successors := make([]symbol.ExecID, len(e.Successors))
		for i, v := range e.Successors {
			successors[i] = symbol.ExecID(v)
		}

		hint := e.Hint
		var inplace bool
		if e.Inplace != nil {
			inplace = *e.Inplace
		}
		if d, ok := kernels.Lookup(e.Command); ok {
			if e.Inplace == nil {
				inplace = d.Inplace
			}
			if hint == "" {
				hint = d.ShapeHint
			}
		}

		g.Execs = append(g.Execs, symbol.ExecSymbol{
			ID:             symbol.ExecID(e.ID),
			Command:        e.Command,
			Hint:           hint,
			Inputs:         inputs,
			Outputs:        outputs,
			InplaceCapable: inplace,
			Successors:     successors,
		})
	}

	for _, s := range dg.Sources {
		g.Sources = append(g.Sources, symbol.ExecID(s))
	}
	for _, d := range dg.Destinations {
		g.Destinations = append(g.Destinations, symbol.ExecID(d))
	}

	return g
}
