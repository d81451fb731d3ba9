package graphop

import (
	"fmt"

	"github.com/orneryd/tensorgpu/internal/cerr"
	"github.com/orneryd/tensorgpu/internal/driver"
	"github.com/orneryd/tensorgpu/internal/dtype"
	"github.com/orneryd/tensorgpu/internal/symbolic"
	"github.com/orneryd/tensorgpu/internal/symtab"
)

// ConstantValue is a Constant operator's value: either a fixed literal or a
// symbolic expression evaluated against the dynamic-symbol map every time
// Process runs (so a batch-size-derived constant tracks the map live).
type ConstantValue struct {
	Literal    float64
	Symbolic   symbolic.Expr
	IsSymbolic bool
}

// LiteralValue builds a fixed Constant value.
func LiteralValue(v float64) ConstantValue { return ConstantValue{Literal: v} }

// SymbolicValue builds a Constant value resolved from expr at Process time.
func SymbolicValue(expr symbolic.Expr) ConstantValue {
	return ConstantValue{Symbolic: expr, IsSymbolic: true}
}

// Constant uploads a single scalar value to the device on every Process
// call. It has no kernel: the value is computed host-side and copied with
// HtoD, never compiled.
type Constant struct {
	dev     driver.Device
	dtype   dtype.Type
	value   ConstantValue
	dynView symtab.View
}

// NewConstant builds a Constant operator for the given value and dtype.
func NewConstant(value ConstantValue, dev driver.Device, t dtype.Type, dyn symtab.View) *Constant {
	return &Constant{dev: dev, dtype: t, value: value, dynView: dyn}
}

// Process ignores its inputs (a Constant is a graph source) and returns a
// freshly allocated single-element device buffer holding the value.
func (c *Constant) Process(inputs []Tensor) (Tensor, error) {
	v := c.value.Literal
	if c.value.IsSymbolic {
		v = float64(c.value.Symbolic.Eval(func(s byte) int64 { return int64(c.dynView.Get(s)) }))
	}

	buf, err := c.dev.Alloc(c.dtype.Size(), 1)
	if err != nil {
		return Tensor{}, fmt.Errorf("%w: %v", cerr.ErrAllocFailed, err)
	}
	if err := c.dev.HtoD(c.dtype.Encode(float32(v)), buf); err != nil {
		return Tensor{}, fmt.Errorf("%w: %v", cerr.ErrLaunchFailed, err)
	}

	return Tensor{Buffer: buf}, nil
}
