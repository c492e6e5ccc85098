package native

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"

	"github.com/gogpu/gecs/internal/cache"
)

// compileWGSL compiles WGSL source to SPIR-V words.
func compileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShaderCompile, err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("%w: SPIR-V length %d is not word aligned", ErrShaderCompile, len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return code, nil
}

// spirvCacheSize bounds the compiled modules kept per device.
const spirvCacheSize = 64

// newSPIRVCache memoizes compiled modules by source. Vertex and fragment
// jobs usually share one WGSL file, and hot reload recompiles unchanged
// sources.
func newSPIRVCache() *cache.Cache[string, []uint32] {
	return cache.New[string, []uint32](spirvCacheSize)
}

// compileCached returns cached SPIR-V for source, compiling on a miss.
func compileCached(c *cache.Cache[string, []uint32], source string) ([]uint32, error) {
	return c.GetOrCreate(source, func() ([]uint32, error) { return compileWGSL(source) })
}
