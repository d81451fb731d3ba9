package dtype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestF32RoundTrip(t *testing.T) {
	for _, v := range []float32{0, 1, -1, 3.5, 1234.25, -0.001} {
		got := F32.Decode(F32.Encode(v))
		assert.Equal(t, v, got)
	}
}

func TestF16RoundTripWithinRounding(t *testing.T) {
	for _, v := range []float32{0, 1, -1, 2, 0.5, -0.5, 100} {
		got := F16.Decode(F16.Encode(v))
		assert.InDelta(t, v, got, 0.01)
	}
}

func TestTypeNamesAndIntrinsics(t *testing.T) {
	assert.Equal(t, "float", F32.TypeName())
	assert.True(t, F32.IsF32())
	assert.Equal(t, "sqrt", F32.SqrtIntrinsic())
	assert.Equal(t, "__frcp_rn", F32.RecipIntrinsic())

	assert.Equal(t, "__half", F16.TypeName())
	assert.False(t, F16.IsF32())
	assert.Equal(t, "hsqrt", F16.SqrtIntrinsic())
	assert.Equal(t, "hrcp", F16.RecipIntrinsic())
}

func TestEncodeDecodeSliceRoundTrip(t *testing.T) {
	vals := []float32{1, 2, 3, 4.5}
	raw := EncodeSlice(F32, vals)
	assert.Equal(t, vals, DecodeSlice(F32, raw))
}
