package graphop

import (
	"fmt"

	"github.com/orneryd/tensorgpu/internal/cerr"
	"github.com/orneryd/tensorgpu/internal/driver"
	"github.com/orneryd/tensorgpu/internal/dtype"
	"github.com/orneryd/tensorgpu/internal/kernel"
	"github.com/orneryd/tensorgpu/internal/shape"
	"github.com/orneryd/tensorgpu/internal/symtab"
)

const matmulTile = 16

// MatMul implements the unfused M x K by K x N matmul primitive: a
// tiled shared-memory kernel, not a specialized/tuned variant. a is M x K,
// b is K x N, out is M x N. Both inputs are read as dense row-major buffers
// with no idx/valid guard, so a padded, sliced or permuted view must be made
// contiguous upstream.
type MatMul struct {
	base
	m, k, n int
}

// NewMatMul constructs and compiles a MatMul operator for the given
// operand dimensions.
func NewMatMul(m, k, n int, dev driver.Device, cache *kernel.Cache, t dtype.Type, dyn symtab.View, opts driver.CompileOptions) (*MatMul, error) {
	typeName := t.TypeName()
	source := fmt.Sprintf(`%s%s* out, const %s* inp0, const %s* inp1, int M, int K, int N) {
  __shared__ float tileA[%d][%d];
  __shared__ float tileB[%d][%d];

  int row = blockIdx.y * %d + threadIdx.y;
  int col = blockIdx.x * %d + threadIdx.x;
  float acc = 0.0f;

  int numTiles = (K + %d - 1) / %d;
  for (int t = 0; t < numTiles; t++) {
    int aCol = t * %d + threadIdx.x;
    int bRow = t * %d + threadIdx.y;

    tileA[threadIdx.y][threadIdx.x] = (row < M && aCol < K) ? (float)inp0[row * K + aCol] : 0.0f;
    tileB[threadIdx.y][threadIdx.x] = (bRow < K && col < N) ? (float)inp1[bRow * N + col] : 0.0f;
    __syncthreads();

    for (int i = 0; i < %d; i++) {
      acc += tileA[threadIdx.y][i] * tileB[i][threadIdx.x];
    }
    __syncthreads();
  }

  if (row < M && col < N) {
    out[row * N + col] = (%s)acc;
  }
}
`,
		`#include <cuda_fp16.h>
extern "C" __global__ void kernel(`,
		typeName, typeName, typeName,
		matmulTile, matmulTile, matmulTile, matmulTile,
		matmulTile, matmulTile,
		matmulTile, matmulTile,
		matmulTile, matmulTile,
		matmulTile,
		typeName,
	)

	mm := &MatMul{base: base{dev: dev, cache: cache, dtype: t, dynView: dyn, opts: opts}, m: m, k: k, n: n}
	if err := mm.compile(source); err != nil {
		return nil, err
	}
	return mm, nil
}

// Process runs the compiled tiled matmul kernel over a (M x K) and b
// (K x N), producing an M x N output.
func (mm *MatMul) Process(inputs []Tensor) (Tensor, error) {
	if len(inputs) != 2 {
		return Tensor{}, fmt.Errorf("graphop: MatMul expects exactly two inputs, got %d", len(inputs))
	}
	a, b := inputs[0], inputs[1]

	out, err := mm.dev.AllocZeros(mm.dtype.Size(), mm.m*mm.n)
	if err != nil {
		return Tensor{}, fmt.Errorf("%w: %v", cerr.ErrAllocFailed, err)
	}

	grid := uint32((mm.n + matmulTile - 1) / matmulTile)
	gridY := uint32((mm.m + matmulTile - 1) / matmulTile)
	cfg := driver.LaunchConfig{
		GridDimX: grid, GridDimY: gridY, GridDimZ: 1,
		BlockDimX: matmulTile, BlockDimY: matmulTile, BlockDimZ: 1,
	}

	params := launchParamsMatMul(out, a.Buffer, b.Buffer, mm.m, mm.k, mm.n)
	if err := mm.dev.Launch(cfg, mm.compiled, params); err != nil {
		return Tensor{}, fmt.Errorf("%w: %v", cerr.ErrLaunchFailed, err)
	}

	dims := []shape.Dim{shape.Lit(mm.m), shape.Lit(mm.n)}
	return Tensor{Buffer: out, Shape: shape.New(dims, a.Shape.IndexExpr(), a.Shape.ValidExpr())}, nil
}
