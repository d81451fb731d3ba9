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

// BinaryFn identifies which two-operand kernel a Binary operator runs.
type BinaryFn int

const (
	Add BinaryFn = iota
	Mul
	Mod
	LessThan
)

// binaryBody combines a and b, which are already masked by their respective
// valid expressions, into fn's CUDA expression.
func binaryBody(fn BinaryFn, typeName, a, b string) string {
	switch fn {
	case Add:
		return fmt.Sprintf("%s + %s", a, b)
	case Mul:
		return fmt.Sprintf("%s * %s", a, b)
	case Mod:
		return fmt.Sprintf("fmod(%s, %s)", a, b)
	case LessThan:
		return fmt.Sprintf("(%s) < (%s) ? (%s)1.0 : (%s)0.0", a, b, typeName, typeName)
	default:
		panic("graphop: unknown binary function")
	}
}

// Binary implements Add, Mul, Mod and LessThan: two inputs, each read
// through its own idx/valid mask (an out-of-bounds operand contributes
// zero), combined and written guarded by i < numel.
type Binary struct {
	base
	fn BinaryFn
}

// NewBinary constructs and compiles a Binary operator for the given
// function and two input shapes (which may differ, e.g. broadcasting).
func NewBinary(fn BinaryFn, a, b shape.Tracker, dev driver.Device, cache *kernel.Cache, t dtype.Type, dyn symtab.View, opts driver.CompileOptions) (*Binary, error) {
	syms, dynSuffix := shape.RenderDynDims(a, b)
	aIdx, aValid := shape.IdxValid(a)
	bIdx, bValid := shape.IdxValid(b)
	typeName := t.TypeName()

	maskedA := fmt.Sprintf("((%s) == 0 ? (%s)0.0 : inp0[%s])", aValid, typeName, aIdx)
	maskedB := fmt.Sprintf("((%s) == 0 ? (%s)0.0 : inp1[%s])", bValid, typeName, bIdx)
	body := binaryBody(fn, typeName, maskedA, maskedB)

	source := fmt.Sprintf(`%s%s) {
  int idx = blockIdx.x * blockDim.x + threadIdx.x;
  if (idx < numel) {
    out[idx] = %s;
  }
}
`, preamble, signature(typeName, 2, "", dynSuffix), body)

	bop := &Binary{base: base{dev: dev, cache: cache, dtype: t, dynSyms: syms, dynView: dyn, opts: opts}, fn: fn}
	if err := bop.compile(source); err != nil {
		return nil, err
	}
	return bop, nil
}

// Process runs the compiled binary kernel over a, b, allocating a fresh
// output sized to a's logical element count.
func (b *Binary) Process(inputs []Tensor) (Tensor, error) {
	if len(inputs) != 2 {
		return Tensor{}, fmt.Errorf("graphop: Binary expects exactly two inputs, got %d", len(inputs))
	}
	a, bb := inputs[0], inputs[1]
	n := a.Shape.NumElements()

	out, err := b.dev.Alloc(b.dtype.Size(), n)
	if err != nil {
		return Tensor{}, fmt.Errorf("%w: %v", cerr.ErrAllocFailed, err)
	}

	params := launchParams(out, []driver.Buffer{a.Buffer, bb.Buffer}, nil, n, b.dynValues())
	cfg := driver.ForNumElems(n)
	if err := b.dev.Launch(cfg, b.compiled, params); err != nil {
		return Tensor{}, fmt.Errorf("%w: %v", cerr.ErrLaunchFailed, err)
	}

	return Tensor{Buffer: out, Shape: shape.New(a.Shape.Dims(), a.Shape.IndexExpr(), a.Shape.ValidExpr())}, nil
}
