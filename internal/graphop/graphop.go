// Package graphop implements the operator factories (C4): per-primitive
// templates that synthesize CUDA kernel source parameterized by element
// type and input shapes, compile it once through the shared kernel cache,
// and hold the compiled kernel plus launch metadata for repeated Process
// calls.
//
// All kernels except MatMul share one launch convention: one thread per
// output element, driver.ForNumElems(N) picks the grid/block, and parameters
// are (output_ptr, input_ptrs..., numel, dyn_syms...) — reductions insert
// front_size, back_size, dim_size before numel. MatMul launches a 2D grid of
// square tiles and takes (out, a, b, M, K, N).
//
// Runtime polymorphism over element types: rather than generating one
// Go type per dtype.Type (monomorphizing), every factory here carries a
// single dtype.Type field and threads its TypeName()/intrinsic choices
// into the template at construction time. Either approach is valid per the
// design; this one keeps the factory count fixed regardless of how many
// element types the host registers.
package graphop

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/orneryd/tensorgpu/internal/driver"
	"github.com/orneryd/tensorgpu/internal/dtype"
	"github.com/orneryd/tensorgpu/internal/kernel"
	"github.com/orneryd/tensorgpu/internal/shape"
	"github.com/orneryd/tensorgpu/internal/symtab"
)

// Tensor is one (buffer, shape) pair — an operator's input or output.
type Tensor struct {
	Buffer driver.Buffer
	Shape  shape.Tracker
}

// Operator is the process contract every device operator satisfies:
// inputs in construction order in, one freshly allocated output tensor out.
// Out-of-memory and launch errors are fatal; there is no recovery surface.
type Operator interface {
	Process(inputs []Tensor) (Tensor, error)
}

// base holds the fields every factory needs: the device, compiled function,
// dynamic-symbol list/view, element type and shared kernel cache.
type base struct {
	dev      driver.Device
	cache    *kernel.Cache
	dtype    dtype.Type
	dynSyms  []byte
	dynView  symtab.View
	compiled driver.Function
	opts     driver.CompileOptions
}

func (b *base) compile(source string) error {
	fn, err := b.cache.CompileAndLoad(source, b.dev, b.opts)
	if err != nil {
		return err
	}
	b.compiled = fn
	return nil
}

// dynValues resolves the current values of b's dynamic symbols, in
// declaration order, as launch-time arguments.
func (b *base) dynValues() []int {
	vals := make([]int, len(b.dynSyms))
	for i, s := range b.dynSyms {
		vals[i] = b.dynView.Get(s)
	}
	return vals
}

// signature renders a kernel's parameter list:
// out, inp0, [inp1, ...], numel, <dyn syms>. extra is inserted between the
// input pointers and numel (used by reductions for front/back/dim sizes).
func signature(typeName string, nInputs int, extra string, dynSuffix string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s* out", typeName)
	for i := 0; i < nInputs; i++ {
		fmt.Fprintf(&b, ", const %s* inp%d", typeName, i)
	}
	if extra != "" {
		b.WriteString(", ")
		b.WriteString(extra)
	}
	b.WriteString(", int numel")
	b.WriteString(dynSuffix)
	return b.String()
}

const preamble = `#include <cuda_fp16.h>
extern "C" __global__ void kernel(`

// inputPtrNames returns "inp0, inp1, ..." for nInputs operands.
func inputPtrNames(n int) string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("inp%d", i)
	}
	return strings.Join(names, ", ")
}

// launchParams assembles a cuLaunchKernel-style parameter array: one
// unsafe.Pointer per argument, each pointing at that argument's own storage
// (the driver dereferences params[i] to read the actual value, per the
// void** convention). Order matches signature: out, inp0, [inp1, ...],
// extra..., numel, dyn...
func launchParams(out driver.Buffer, ins []driver.Buffer, extra []int, numel int, dyn []int) []unsafe.Pointer {
	ptrVals := make([]unsafe.Pointer, 1+len(ins))
	ptrVals[0] = out.Ptr()
	for i, in := range ins {
		ptrVals[1+i] = in.Ptr()
	}

	intVals := make([]int32, len(extra)+1+len(dyn))
	for i, v := range extra {
		intVals[i] = int32(v)
	}
	intVals[len(extra)] = int32(numel)
	for i, v := range dyn {
		intVals[len(extra)+1+i] = int32(v)
	}

	params := make([]unsafe.Pointer, 0, len(ptrVals)+len(intVals))
	for i := range ptrVals {
		params = append(params, unsafe.Pointer(&ptrVals[i]))
	}
	for i := range intVals {
		params = append(params, unsafe.Pointer(&intVals[i]))
	}
	return params
}

// launchParamsMatMul builds the (out, a, b, M, K, N) parameter list MatMul's
// kernel signature uses in place of the usual numel/dyn-syms convention.
func launchParamsMatMul(out driver.Buffer, a, b driver.Buffer, m, k, n int) []unsafe.Pointer {
	ptrVals := [3]unsafe.Pointer{out.Ptr(), a.Ptr(), b.Ptr()}
	intVals := [3]int32{int32(m), int32(k), int32(n)}

	params := make([]unsafe.Pointer, 0, 6)
	for i := range ptrVals {
		params = append(params, unsafe.Pointer(&ptrVals[i]))
	}
	for i := range intVals {
		params = append(params, unsafe.Pointer(&intVals[i]))
	}
	return params
}
