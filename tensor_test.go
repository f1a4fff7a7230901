package edgedecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantParamRoundTrip(t *testing.T) {

	q := QuantParam{Scale: 0.5, ZeroPoint: -3}

	assert.Equal(t, float32(5), q.Dequantize(7))
	assert.Equal(t, float32(7), q.Quantize(5, TensorInt8))

	for raw := -128; raw <= 127; raw++ {
		v := q.Dequantize(float32(raw))
		assert.Equal(t, float32(raw), q.Quantize(v, TensorInt8), "raw %d", raw)
	}
}

func TestQuantizeClips(t *testing.T) {

	q := QuantParam{Scale: 0.1, ZeroPoint: 0}

	assert.Equal(t, float32(127), q.Quantize(1000, TensorInt8))
	assert.Equal(t, float32(-128), q.Quantize(-1000, TensorInt8))
	assert.Equal(t, float32(0), q.Quantize(-1000, TensorUint8))
	assert.Equal(t, float32(255), q.Quantize(1000, TensorUint8))

	// float types and unscaled params pass the value through
	assert.Equal(t, float32(0.25), q.Quantize(0.25, TensorFloat32))
	assert.Equal(t, float32(0.25), QuantParam{}.Quantize(0.25, TensorInt8))
}

func TestTensorAccessors(t *testing.T) {

	i8 := NewTensor(TensorInt8, []byte{0xff, 0x80, 0x7f})
	assert.Equal(t, 3, i8.Len())
	assert.Equal(t, float32(-1), i8.At(0))
	assert.Equal(t, float32(-128), i8.At(1))
	assert.Equal(t, float32(127), i8.At(2))

	u8 := NewTensor(TensorUint8, []byte{0xff})
	assert.Equal(t, float32(255), u8.At(0))

	i16 := NewTensor(TensorInt16, []byte{0x34, 0x12, 0xff, 0xff})
	assert.Equal(t, 2, i16.Len())
	assert.Equal(t, float32(4660), i16.At(0))
	assert.Equal(t, float32(-1), i16.At(1))

	q := QuantParam{Scale: 0.25, ZeroPoint: 4}
	assert.Equal(t, float32(2), NewTensor(TensorUint8, []byte{12}).Dequantize(0, q))

	f32 := NewTensor(TensorFloat32, make([]byte, 8))
	f32.SetFloat32(1, 0.75)
	assert.Equal(t, float32(0.75), f32.At(1))
	assert.Equal(t, float32(0.75), f32.Dequantize(1, q), "float tensors ignore quant params")

	assert.Equal(t, 0, NewTensor(TensorUndefined, []byte{1, 2}).Len())
	assert.Panics(t, func() { NewTensor(TensorUndefined, []byte{1}).At(0) })
}

func TestTensorFloat16(t *testing.T) {

	f16 := NewTensor(TensorFloat16, make([]byte, 6))

	f16.SetFloat32(0, 0.5)
	f16.SetFloat32(1, -2)
	f16.SetFloat32(2, 1.0/3)

	assert.Equal(t, float32(0.5), f16.At(0))
	assert.Equal(t, float32(-2), f16.At(1))
	assert.InDelta(t, 1.0/3, f16.At(2), 1e-3)
}

func TestTensorSetFloat32Saturates(t *testing.T) {

	u8 := NewTensor(TensorUint8, make([]byte, 2))
	u8.SetFloat32(0, 300)
	u8.SetFloat32(1, -5)
	assert.Equal(t, []byte{255, 0}, u8.Bytes())

	i8 := NewTensor(TensorInt8, make([]byte, 2))
	i8.SetFloat32(0, -200)
	i8.SetFloat32(1, 12.9)
	assert.Equal(t, float32(-128), i8.At(0))
	assert.Equal(t, float32(12), i8.At(1))
}

func TestTensorInt8s(t *testing.T) {

	buf := []byte{0x01, 0xfe}
	vals, err := NewTensor(TensorInt8, buf).Int8s()
	require.NoError(t, err)
	assert.Equal(t, []int8{1, -2}, vals)

	// shares memory with the tensor
	vals[0] = 5
	assert.Equal(t, byte(5), buf[0])

	_, err = NewTensor(TensorUint8, buf).Int8s()
	assert.Equal(t, ErrInvalidArgument, CodeOf(err))
}

func TestTensorSetInt8(t *testing.T) {

	i8 := NewTensor(TensorInt8, make([]byte, 2))
	i8.SetInt8(0, -100)
	i8.SetUint8(1, 200)

	assert.Equal(t, float32(-100), i8.At(0))
	assert.Equal(t, float32(-56), i8.At(1))
}

func TestParseTensorType(t *testing.T) {

	for tt := TensorInt8; tt <= TensorFloat32; tt++ {
		got, err := ParseTensorType(tt.String())
		require.NoError(t, err)
		assert.Equal(t, tt, got)
	}

	got, err := ParseTensorType("fp16")
	require.NoError(t, err)
	assert.Equal(t, TensorFloat16, got)

	_, err = ParseTensorType("int4")
	assert.Equal(t, ErrInvalidArgument, CodeOf(err))
}

func TestShape(t *testing.T) {

	s := NewShape(1, 2, 3)

	assert.Equal(t, 3, s.Rank())
	assert.Equal(t, 6, s.Elements())
	assert.Equal(t, 2, s.Dim(1))
	assert.Equal(t, 0, s.Dim(3))
	assert.Equal(t, 0, s.Dim(-1))
	assert.Equal(t, "[1, 2, 3]", s.String())

	assert.Equal(t, 0, NewShape().Elements())
}
