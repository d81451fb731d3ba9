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

// Contiguous materializes a (possibly padded, sliced, permuted) logical view
// into a densely packed physical buffer: out-of-bounds elements (where
// valid == 0) are simply not written, leaving the destination's
// zero-initialization in place.
type Contiguous struct {
	base
}

// NewContiguous constructs and compiles a Contiguous operator for in's view.
func NewContiguous(in shape.Tracker, dev driver.Device, cache *kernel.Cache, t dtype.Type, dyn symtab.View, opts driver.CompileOptions) (*Contiguous, error) {
	syms, dynSuffix := shape.RenderDynDims(in)
	idx, valid := shape.IdxValid(in)

	source := fmt.Sprintf(`%s%s) {
  int idx = blockIdx.x * blockDim.x + threadIdx.x;
  if (idx < numel && (%s) != 0) {
    out[idx] = inp0[%s];
  }
}
`, preamble, signature(t.TypeName(), 1, "", dynSuffix), valid, idx)

	c := &Contiguous{base: base{dev: dev, cache: cache, dtype: t, dynSyms: syms, dynView: dyn, opts: opts}}
	if err := c.compile(source); err != nil {
		return nil, err
	}
	return c, nil
}

// Process runs the compiled contiguous kernel, allocating a zeroed output
// so unwritten (invalid) positions read back as zero.
func (c *Contiguous) Process(inputs []Tensor) (Tensor, error) {
	if len(inputs) != 1 {
		return Tensor{}, fmt.Errorf("graphop: Contiguous expects exactly one input, got %d", len(inputs))
	}
	in := inputs[0]
	n := in.Shape.NumElements()

	out, err := c.dev.AllocZeros(c.dtype.Size(), n)
	if err != nil {
		return Tensor{}, fmt.Errorf("%w: %v", cerr.ErrAllocFailed, err)
	}

	params := launchParams(out, []driver.Buffer{in.Buffer}, nil, n, c.dynValues())
	cfg := driver.ForNumElems(n)
	if err := c.dev.Launch(cfg, c.compiled, params); err != nil {
		return Tensor{}, fmt.Errorf("%w: %v", cerr.ErrLaunchFailed, err)
	}

	return Tensor{Buffer: out, Shape: shape.New(in.Shape.Dims(), in.Shape.IndexExpr(), in.Shape.ValidExpr())}, nil
}
