// Package arenac compiles a symbolic tensor dataflow graph into a runnable
// graph with a pre-planned memory arena.
//
// A caller builds a symbol.Graph describing its tensors and execs, then
// calls compile.Compile: the pipeline computes per-tensor liveness, folds
// inplace-capable execs onto their inputs, derives the interference
// relation, packs tensors into as few overlapping buffers as legality
// allows, allocates the buffers, and materializes the concrete exec graph a
// runner walks.
//
// # Architecture Overview
//
//   - symbol: the resolved tensor/exec graph a compile starts from
//   - depmatrix: the transitive exec ordering a build walk establishes
//   - liveness: per-tensor head/tail antichains and classification
//   - inplace: folds an inplace-capable exec's output onto its input
//   - interference: the symmetric tensor overlap relation
//   - packer: the greedy best-fit buffer allocator
//   - arena: concrete storage and tensor views over the packed layout
//   - execgraph: the materialized graph a runner executes
//   - kernels: the external collaborator's command registry and reference
//     implementations
//   - compile: the fixed pipeline tying all of the above together
//
// # Basic Usage
//
//	// Compile a DSL description into the wire graph format
//	planc model.yaml model.graph
//
//	// Load, compile, and print the resulting arena layout
//	planrun model.graph
//
// # Package Structure
//
//   - core: aligned byte-buffer primitives and size math
//   - symbol, depmatrix, liveness, inplace, interference, packer, arena,
//     execgraph, compile: the planning pipeline
//   - kernels: opcode descriptor registry plus reference kernels
//   - cmd: command-line tools (planc, planrun, planbench)
package arenac
