package kernels

import "runtime"

// matMulOptimized tiles its three nested loops in BatchSize-sized blocks
// rather than a fixed constant, so the block size tracks the width a real
// SIMD unit on the target architecture would actually process per
// instruction.

// BatchSize returns the blocking factor matMulOptimized tiles its loops by,
// sized to the vector width the target architecture's SIMD unit would
// process per instruction.
func BatchSize() int {
	switch runtime.GOARCH {
	case "amd64":
		return 8 // AVX2 can process 8 float32s per instruction
	case "arm64":
		return 4 // NEON can process 4 float32s per instruction
	default:
		return 4 // Conservative default
	}
}
