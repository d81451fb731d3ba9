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

// ReduceFn identifies which reduction a Reduce operator runs along its
// collapsed dimension.
type ReduceFn int

const (
	SumReduce ReduceFn = iota
	MaxReduce
)

// reduceIdentity and reduceCombine give each reduction its fold-start value
// and the float accumulation expression. Accumulation always happens in
// float regardless of the element type, matching the single-precision
// accumulator every reduce kernel here uses.
func reduceIdentity(fn ReduceFn) string {
	switch fn {
	case SumReduce:
		return "0.0"
	case MaxReduce:
		return "-__int_as_float(0x7f800000)"
	default:
		panic("graphop: unknown reduce function")
	}
}

func reduceCombine(fn ReduceFn, acc, v string) string {
	switch fn {
	case SumReduce:
		return fmt.Sprintf("%s + %s", acc, v)
	case MaxReduce:
		return fmt.Sprintf("max(%s, %s)", acc, v)
	default:
		panic("graphop: unknown reduce function")
	}
}

// Reduce implements SumReduce and MaxReduce: collapses one dimension of its
// input, folding physical elements along it with a float accumulator and
// casting the result back to the element type.
type Reduce struct {
	base
	fn        ReduceFn
	dim       int
	frontSize int
	backSize  int
	dimSize   int
}

// NewReduce constructs and compiles a Reduce operator collapsing dimension
// dim of in.
func NewReduce(fn ReduceFn, dim int, in shape.Tracker, dev driver.Device, cache *kernel.Cache, t dtype.Type, dyn symtab.View, opts driver.CompileOptions) (*Reduce, error) {
	syms, dynSuffix := shape.RenderDynDims(in)
	_, valid := shape.IdxValid(in)
	typeName := t.TypeName()

	front, back, dimSize := reduceSizes(in, dim)

	source := fmt.Sprintf(`%s%s) {
  int i_ = blockIdx.x * blockDim.x + threadIdx.x;
  if (i_ < numel) {
    int a_ = i_ / back_size;
    int b_ = i_ %% back_size;
    float reduce_value = %s;
    for (int c_ = 0; c_ < dim_size; c_++) {
      int idx = a_ * dim_size * back_size + c_ * back_size + b_;
      if ((%s) != 0) {
        reduce_value = %s;
      }
    }
    out[i_] = (%s)reduce_value;
  }
}
`, preamble, signature(typeName, 1, "const int front_size, const int back_size, const int dim_size", dynSuffix),
		reduceIdentity(fn), valid, reduceCombine(fn, "reduce_value", "(float)inp0[idx]"), typeName)

	r := &Reduce{
		base:      base{dev: dev, cache: cache, dtype: t, dynSyms: syms, dynView: dyn, opts: opts},
		fn:        fn,
		dim:       dim,
		frontSize: front,
		backSize:  back,
		dimSize:   dimSize,
	}
	if err := r.compile(source); err != nil {
		return nil, err
	}
	return r, nil
}

// reduceSizes computes the front (dims before dim, product), back (dims
// after dim, product) and dim_size (the collapsed dimension's own size) that
// the reduce kernel's index arithmetic needs.
func reduceSizes(in shape.Tracker, dim int) (front, back, dimSize int) {
	dims := in.Dims()
	front, back, dimSize = 1, 1, 1
	for i, d := range dims {
		if d.IsSymbolic() {
			continue
		}
		switch {
		case i < dim:
			front *= d.Size()
		case i == dim:
			dimSize = d.Size()
		default:
			back *= d.Size()
		}
	}
	return front, back, dimSize
}

// Process runs the compiled reduce kernel, producing an output with dim
// collapsed (front_size * back_size elements).
func (r *Reduce) Process(inputs []Tensor) (Tensor, error) {
	if len(inputs) != 1 {
		return Tensor{}, fmt.Errorf("graphop: Reduce expects exactly one input, got %d", len(inputs))
	}
	in := inputs[0]
	n := r.frontSize * r.backSize

	out, err := r.dev.AllocZeros(r.dtype.Size(), n)
	if err != nil {
		return Tensor{}, fmt.Errorf("%w: %v", cerr.ErrAllocFailed, err)
	}

	extra := []int{r.frontSize, r.backSize, r.dimSize}
	params := launchParams(out, []driver.Buffer{in.Buffer}, extra, n, r.dynValues())
	cfg := driver.ForNumElems(n)
	if err := r.dev.Launch(cfg, r.compiled, params); err != nil {
		return Tensor{}, fmt.Errorf("%w: %v", cerr.ErrLaunchFailed, err)
	}

	outDims := make([]shape.Dim, 0, len(in.Shape.Dims()))
	for i, d := range in.Shape.Dims() {
		if i == r.dim {
			continue
		}
		outDims = append(outDims, d)
	}
	return Tensor{Buffer: out, Shape: shape.New(outDims, in.Shape.IndexExpr(), in.Shape.ValidExpr())}, nil
}
