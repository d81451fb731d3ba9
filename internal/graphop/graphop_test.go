package graphop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/tensorgpu/internal/driver"
	"github.com/orneryd/tensorgpu/internal/driver/faked"
	"github.com/orneryd/tensorgpu/internal/dtype"
	"github.com/orneryd/tensorgpu/internal/kernel"
	"github.com/orneryd/tensorgpu/internal/shape"
	"github.com/orneryd/tensorgpu/internal/symbolic"
	"github.com/orneryd/tensorgpu/internal/symtab"
)

// flatTracker builds a Tracker for a dense, unpadded 1D view of n elements:
// index is the identity (z), valid is always true.
func flatTracker(n int) shape.Tracker {
	idx := symbolic.New(symbolic.VarTerm('z'))
	valid := symbolic.New(symbolic.NumTerm(1))
	return shape.New([]shape.Dim{shape.Lit(n)}, idx, valid)
}

func emptyView() symtab.View {
	return symtab.New().Snapshot()
}

func TestUnaryCompilesAndLaunches(t *testing.T) {
	dev := faked.New()
	cache := kernel.NewCache()
	op, err := NewUnary(Sqrt, flatTracker(8), dev, cache, dtype.F32, emptyView(), driver.CompileOptions{Arch: "sm_75"})
	require.NoError(t, err)

	in := Tensor{Buffer: mustAlloc(t, dev, 8), Shape: flatTracker(8)}
	out, err := op.Process([]Tensor{in})
	require.NoError(t, err)
	assert.EqualValues(t, 8*4, out.Buffer.Bytes())
	assert.Len(t, dev.Launches, 1)
}

func TestUnaryRejectsWrongArity(t *testing.T) {
	dev := faked.New()
	op, err := NewUnary(Log2, flatTracker(4), dev, kernel.NewCache(), dtype.F32, emptyView(), driver.CompileOptions{})
	require.NoError(t, err)
	_, err = op.Process(nil)
	assert.Error(t, err)
}

func TestBinaryCompilesAndLaunches(t *testing.T) {
	dev := faked.New()
	op, err := NewBinary(Add, flatTracker(4), flatTracker(4), dev, kernel.NewCache(), dtype.F32, emptyView(), driver.CompileOptions{})
	require.NoError(t, err)

	a := Tensor{Buffer: mustAlloc(t, dev, 4), Shape: flatTracker(4)}
	b := Tensor{Buffer: mustAlloc(t, dev, 4), Shape: flatTracker(4)}
	out, err := op.Process([]Tensor{a, b})
	require.NoError(t, err)
	assert.EqualValues(t, 4*4, out.Buffer.Bytes())
}

func TestBinaryLessThanBodyDiffersFromAdd(t *testing.T) {
	dev := faked.New()
	addOp, err := NewBinary(Add, flatTracker(4), flatTracker(4), dev, kernel.NewCache(), dtype.F32, emptyView(), driver.CompileOptions{})
	require.NoError(t, err)
	ltOp, err := NewBinary(LessThan, flatTracker(4), flatTracker(4), dev, kernel.NewCache(), dtype.F32, emptyView(), driver.CompileOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, addOp.compiled.Name(), ltOp.compiled.Name())
}

func TestContiguousAllocatesLogicalElementCount(t *testing.T) {
	dev := faked.New()
	op, err := NewContiguous(flatTracker(4), dev, kernel.NewCache(), dtype.F32, emptyView(), driver.CompileOptions{})
	require.NoError(t, err)

	in := Tensor{Buffer: mustAlloc(t, dev, 4), Shape: flatTracker(4)}
	out, err := op.Process([]Tensor{in})
	require.NoError(t, err)
	assert.EqualValues(t, 4*4, out.Buffer.Bytes())
}

func TestReduceComputesSizes(t *testing.T) {
	dev := faked.New()
	tr := shape.New([]shape.Dim{shape.Lit(2), shape.Lit(3), shape.Lit(4)},
		symbolic.New(symbolic.VarTerm('z')), symbolic.New(symbolic.NumTerm(1)))

	op, err := NewReduce(SumReduce, 1, tr, dev, kernel.NewCache(), dtype.F32, emptyView(), driver.CompileOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, op.frontSize)
	assert.Equal(t, 4, op.backSize)
	assert.Equal(t, 3, op.dimSize)

	in := Tensor{Buffer: mustAlloc(t, dev, 24), Shape: tr}
	out, err := op.Process([]Tensor{in})
	require.NoError(t, err)
	assert.EqualValues(t, 2*4*4, out.Buffer.Bytes())
	assert.Len(t, out.Shape.Dims(), 2)
}

func TestConstantLiteralUploadsValue(t *testing.T) {
	dev := faked.New()
	op := NewConstant(LiteralValue(3.5), dev, dtype.F32, emptyView())
	out, err := op.Process(nil)
	require.NoError(t, err)
	assert.EqualValues(t, 4, out.Buffer.Bytes())
}

func TestConstantSymbolicEvaluatesAgainstDynMap(t *testing.T) {
	dev := faked.New()
	tab := symtab.New()
	tab.Set('s', 7)
	op := NewConstant(SymbolicValue(symbolic.New(symbolic.VarTerm('s'))), dev, dtype.F32, tab.Snapshot())

	out, err := op.Process(nil)
	require.NoError(t, err)
	raw, err := dev.DtoH(out.Buffer)
	require.NoError(t, err)
	assert.Equal(t, float32(7), dtype.F32.Decode(raw))
}

func TestCopyToDevicePassesThroughWhenAlreadyDeviceResident(t *testing.T) {
	dev := faked.New()
	c := NewCopyToDevice(dev, dtype.F32)
	in := Tensor{Buffer: mustAlloc(t, dev, 4)}
	out, err := c.ProcessHost(nil, in)
	require.NoError(t, err)
	assert.Same(t, in.Buffer, out.Buffer)
}

func TestCopyToDeviceUploadsHostData(t *testing.T) {
	dev := faked.New()
	c := NewCopyToDevice(dev, dtype.F32)
	out, err := c.ProcessHost(&HostBuffer{Data: []float32{1, 2, 3}}, Tensor{})
	require.NoError(t, err)
	assert.EqualValues(t, 3*4, out.Buffer.Bytes())
}

func TestCopyFromDeviceDownloadsAndDecodes(t *testing.T) {
	dev := faked.New()
	buf := mustAlloc(t, dev, 2)
	require.NoError(t, dev.HtoD(dtype.EncodeSlice(dtype.F32, []float32{1, 2}), buf))

	c := NewCopyFromDevice(dev, dtype.F32)
	host, err := c.ProcessDevice(Tensor{Buffer: buf})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, host.Data)
}

func TestMatMulLaunchesWithTiledGrid(t *testing.T) {
	dev := faked.New()
	op, err := NewMatMul(32, 16, 32, dev, kernel.NewCache(), dtype.F32, emptyView(), driver.CompileOptions{})
	require.NoError(t, err)

	a := Tensor{Buffer: mustAlloc(t, dev, 32*16)}
	b := Tensor{Buffer: mustAlloc(t, dev, 16*32)}
	out, err := op.Process([]Tensor{a, b})
	require.NoError(t, err)
	assert.EqualValues(t, 32*32*4, out.Buffer.Bytes())
	assert.Len(t, out.Shape.Dims(), 2)

	// 32 x 32 output in 16 x 16 tiles: a 2 x 2 grid of 16 x 16 blocks.
	require.Len(t, dev.Launches, 1)
	cfg := dev.Launches[0].Cfg
	assert.EqualValues(t, 2, cfg.GridDimX)
	assert.EqualValues(t, 2, cfg.GridDimY)
	assert.EqualValues(t, 16, cfg.BlockDimX)
	assert.EqualValues(t, 16, cfg.BlockDimY)
}

func mustAlloc(t *testing.T, dev driver.Device, n int) driver.Buffer {
	t.Helper()
	buf, err := dev.Alloc(4, n)
	require.NoError(t, err)
	return buf
}
