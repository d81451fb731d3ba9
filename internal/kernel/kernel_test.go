package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/tensorgpu/internal/driver"
	"github.com/orneryd/tensorgpu/internal/driver/faked"
)

const sampleSource = `extern "C" __global__ void kernel(float* out, const float* inp, int numel) {
  int i = blockIdx.x * blockDim.x + threadIdx.x;
  if (i < numel) out[i] = inp[i];
}`

func TestCompileAndLoadCompilesOnce(t *testing.T) {
	dev := faked.New()
	c := NewCache()
	opts := driver.CompileOptions{Arch: "sm_75"}

	fn1, err := c.CompileAndLoad(sampleSource, dev, opts)
	require.NoError(t, err)

	fn2, err := c.CompileAndLoad(sampleSource, dev, opts)
	require.NoError(t, err)

	assert.Equal(t, fn1.Name(), fn2.Name())
	assert.Equal(t, 1, dev.Compiles, "second call must hit the cache, not recompile")
}

func TestCompileAndLoadRenamesEntryPoint(t *testing.T) {
	dev := faked.New()
	c := NewCache()

	fn, err := c.CompileAndLoad(sampleSource, dev, driver.CompileOptions{})
	require.NoError(t, err)

	expected := Name(sampleSource)
	assert.Equal(t, expected, fn.Name())

	src, ok := dev.Source(expected)
	require.True(t, ok)
	assert.Contains(t, src, "void "+expected+"(")
	assert.NotContains(t, src, "void kernel(")
}

func TestCompileAndLoadIsAFunctionOfSourceTextOnly(t *testing.T) {
	dev := faked.New()
	c := NewCache()

	withSpace := sampleSource + " "
	fn1, err := c.CompileAndLoad(sampleSource, dev, driver.CompileOptions{})
	require.NoError(t, err)
	fn2, err := c.CompileAndLoad(withSpace, dev, driver.CompileOptions{})
	require.NoError(t, err)

	// Allowed, not required, to differ — but must each be internally
	// consistent and independently cached.
	assert.NotEqual(t, fn1.Name(), fn2.Name())
	assert.Equal(t, 2, dev.Compiles)
}

func TestDifferentCachesAreIndependent(t *testing.T) {
	dev := faked.New()
	c1 := NewCache()
	c2 := NewCache()

	_, err := c1.CompileAndLoad(sampleSource, dev, driver.CompileOptions{})
	require.NoError(t, err)
	_, err = c2.CompileAndLoad(sampleSource, dev, driver.CompileOptions{})
	require.NoError(t, err)

	// Device-level HasFunc means the second cache's miss still avoids a
	// redundant device compile.
	assert.Equal(t, 1, dev.Compiles)
}
