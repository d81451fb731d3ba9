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

// UnaryFn identifies which unary elementwise kernel a Unary operator runs.
type UnaryFn int

const (
	Log2 UnaryFn = iota
	Exp2
	Sin
	Sqrt
	Recip
)

// unaryBody returns the CUDA expression applying fn to a scalar operand
// named v, specialized for element type t.
func unaryBody(fn UnaryFn, t dtype.Type, v string) string {
	switch fn {
	case Log2:
		return fmt.Sprintf("%s(%s)", t.Log2Intrinsic(), v)
	case Exp2:
		return fmt.Sprintf("%s(%s)", t.Exp2Intrinsic(), v)
	case Sin:
		return fmt.Sprintf("%s(%s)", t.SinIntrinsic(), v)
	case Sqrt:
		return fmt.Sprintf("%s(%s)", t.SqrtIntrinsic(), v)
	case Recip:
		return fmt.Sprintf("%s(%s)", t.RecipIntrinsic(), v)
	default:
		panic("graphop: unknown unary function")
	}
}

// Unary implements Log2, Exp2, Sin, Sqrt and Recip: one input, one output,
// out[i] = f(inp[i]) guarded by i < numel.
type Unary struct {
	base
	fn UnaryFn
}

// NewUnary constructs and compiles a Unary operator for the given function,
// input shape and element type. Unlike Binary and the reductions, Unary
// reads its operand with plain inp0[i] — no idx/valid masking — since a
// unary op never changes which physical elements are live.
func NewUnary(fn UnaryFn, in shape.Tracker, dev driver.Device, cache *kernel.Cache, t dtype.Type, dyn symtab.View, opts driver.CompileOptions) (*Unary, error) {
	syms, dynSuffix := shape.RenderDynDims(in)

	body := unaryBody(fn, t, "inp0[i]")
	source := fmt.Sprintf(`%s%s) {
  int i = blockIdx.x * blockDim.x + threadIdx.x;
  if (i < numel) {
    out[i] = %s;
  }
}
`, preamble, signature(t.TypeName(), 1, "", dynSuffix), body)

	u := &Unary{base: base{dev: dev, cache: cache, dtype: t, dynSyms: syms, dynView: dyn, opts: opts}, fn: fn}
	if err := u.compile(source); err != nil {
		return nil, err
	}
	return u, nil
}

// Process runs the compiled unary kernel over in, returning a freshly
// allocated output tensor of the same logical shape.
func (u *Unary) Process(inputs []Tensor) (Tensor, error) {
	if len(inputs) != 1 {
		return Tensor{}, fmt.Errorf("graphop: Unary expects exactly one input, got %d", len(inputs))
	}
	in := inputs[0]
	n := in.Shape.NumPhysicalElements()

	out, err := u.dev.Alloc(u.dtype.Size(), n)
	if err != nil {
		return Tensor{}, fmt.Errorf("%w: %v", cerr.ErrAllocFailed, err)
	}

	params := launchParams(out, []driver.Buffer{in.Buffer}, nil, n, u.dynValues())
	cfg := driver.ForNumElems(n)
	if err := u.dev.Launch(cfg, u.compiled, params); err != nil {
		return Tensor{}, fmt.Errorf("%w: %v", cerr.ErrLaunchFailed, err)
	}

	return Tensor{Buffer: out, Shape: shape.New(in.Shape.Dims(), in.Shape.IndexExpr(), in.Shape.ValidExpr())}, nil
}
