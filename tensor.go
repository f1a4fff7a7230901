package edgedecode

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unsafe"

	"github.com/pkg/errors"
)

// TensorType is the element type of a tensor buffer
type TensorType int

const (
	TensorUndefined TensorType = iota
	TensorInt8
	TensorUint8
	TensorInt16
	TensorInt32
	TensorFloat16
	TensorFloat32
)

// String returns a readable description of the TensorType
func (t TensorType) String() string {
	switch t {
	case TensorInt8:
		return "INT8"
	case TensorUint8:
		return "UINT8"
	case TensorInt16:
		return "INT16"
	case TensorInt32:
		return "INT32"
	case TensorFloat16:
		return "FP16"
	case TensorFloat32:
		return "FP32"
	default:
		return "UNDEFINED"
	}
}

// ParseTensorType returns the TensorType named by s as returned by String
func ParseTensorType(s string) (TensorType, error) {

	for t := TensorInt8; t <= TensorFloat32; t++ {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}

	return TensorUndefined, errors.Wrapf(ErrInvalidArgument, "unknown tensor type %q", s)
}

// Size returns the number of bytes used by one element of the type
func (t TensorType) Size() int {
	switch t {
	case TensorInt8, TensorUint8:
		return 1
	case TensorInt16, TensorFloat16:
		return 2
	case TensorInt32, TensorFloat32:
		return 4
	default:
		return 0
	}
}

// IsFloat reports if elements of the type are stored as real values rather
// than quantized integers
func (t TensorType) IsFloat() bool {
	return t == TensorFloat16 || t == TensorFloat32
}

// bounds returns the representable integer range of a quantized type
func (t TensorType) bounds() (float32, float32) {
	switch t {
	case TensorInt8:
		return math.MinInt8, math.MaxInt8
	case TensorUint8:
		return 0, math.MaxUint8
	case TensorInt16:
		return math.MinInt16, math.MaxInt16
	case TensorInt32:
		return math.MinInt32, math.MaxInt32
	default:
		return -math.MaxFloat32, math.MaxFloat32
	}
}

// Shape is the ordered list of dimension sizes of a tensor
type Shape struct {
	Dims []int
}

// NewShape returns a Shape with the given dimensions
func NewShape(dims ...int) Shape {
	return Shape{Dims: dims}
}

// Rank returns the number of dimensions
func (s Shape) Rank() int {
	return len(s.Dims)
}

// Dim returns the size of dimension i, or 0 if the shape has no such
// dimension
func (s Shape) Dim(i int) int {

	if i < 0 || i >= len(s.Dims) {
		return 0
	}

	return s.Dims[i]
}

// Elements returns the number of elements described by the shape
func (s Shape) Elements() int {

	if len(s.Dims) == 0 {
		return 0
	}

	n := 1

	for _, d := range s.Dims {
		n *= d
	}

	return n
}

// String returns the shape formatted as [d0, d1, ...]
func (s Shape) String() string {

	parts := make([]string, len(s.Dims))

	for i, d := range s.Dims {
		parts[i] = fmt.Sprintf("%d", d)
	}

	return "[" + strings.Join(parts, ", ") + "]"
}

// QuantParam holds the affine quantization parameters of a tensor
type QuantParam struct {
	Scale     float32
	ZeroPoint int32
}

// Dequantize converts a raw quantized value back to a real value
func (q QuantParam) Dequantize(raw float32) float32 {
	return (raw - float32(q.ZeroPoint)) * q.Scale
}

// Quantize converts a real value into the raw domain of a tensor of type t,
// rounding to the nearest step and clipping to the type's range.  Float
// types are returned unchanged.
func (q QuantParam) Quantize(v float32, t TensorType) float32 {

	if t.IsFloat() || q.Scale == 0 {
		return v
	}

	raw := float32(math.Round(float64(v/q.Scale))) + float32(q.ZeroPoint)
	lo, hi := t.bounds()

	if raw < lo {
		return lo
	}

	if raw > hi {
		return hi
	}

	return raw
}

// Tensor is a typed view over the raw bytes of an engine buffer.  Elements
// are stored little endian.
type Tensor struct {
	// Type is the element type
	Type TensorType
	// buf is the backing memory, which may be owned by the engine
	buf []byte
}

// NewTensor returns a Tensor view of buf holding elements of type t
func NewTensor(t TensorType, buf []byte) Tensor {
	return Tensor{
		Type: t,
		buf:  buf,
	}
}

// Len returns the number of elements in the view
func (t Tensor) Len() int {

	size := t.Type.Size()

	if size == 0 {
		return 0
	}

	return len(t.buf) / size
}

// Bytes returns the backing memory of the view
func (t Tensor) Bytes() []byte {
	return t.buf
}

// At returns the raw value of element i.  For quantized types this is the
// integer value, for float types the real value.  It panics when i is out
// of range.
func (t Tensor) At(i int) float32 {

	switch t.Type {
	case TensorInt8:
		return float32(int8(t.buf[i]))
	case TensorUint8:
		return float32(t.buf[i])
	case TensorInt16:
		return float32(int16(binary.LittleEndian.Uint16(t.buf[i*2:])))
	case TensorInt32:
		return float32(int32(binary.LittleEndian.Uint32(t.buf[i*4:])))
	case TensorFloat16:
		return f16LookupTable[binary.LittleEndian.Uint16(t.buf[i*2:])]
	case TensorFloat32:
		return math.Float32frombits(binary.LittleEndian.Uint32(t.buf[i*4:]))
	default:
		panic(fmt.Sprintf("tensor element type %s has no accessor", t.Type))
	}
}

// Dequantize returns element i converted to a real value with the given
// quantization parameters.  Float tensors ignore q.
func (t Tensor) Dequantize(i int, q QuantParam) float32 {

	if t.Type.IsFloat() {
		return t.At(i)
	}

	return q.Dequantize(t.At(i))
}

// Int8s returns the elements of an int8 tensor without copying
func (t Tensor) Int8s() ([]int8, error) {

	if t.Type != TensorInt8 {
		return nil, errors.Wrapf(ErrInvalidArgument, "tensor is %s, not %s", t.Type, TensorInt8)
	}

	if len(t.buf) == 0 {
		return nil, nil
	}

	return unsafe.Slice((*int8)(unsafe.Pointer(&t.buf[0])), len(t.buf)), nil
}

// SetUint8 stores v into element i of a uint8 or int8 tensor
func (t Tensor) SetUint8(i int, v uint8) {
	t.buf[i] = v
}

// SetInt8 stores v into element i of an int8 or uint8 tensor
func (t Tensor) SetInt8(i int, v int8) {
	t.buf[i] = byte(v)
}

// SetFloat32 stores v into element i converting to the tensor type.  Values
// are truncated and saturated for quantized integer types.
func (t Tensor) SetFloat32(i int, v float32) {

	switch t.Type {
	case TensorFloat32:
		binary.LittleEndian.PutUint32(t.buf[i*4:], math.Float32bits(v))
	case TensorFloat16:
		binary.LittleEndian.PutUint16(t.buf[i*2:], f16FromFloat32(v))
	case TensorInt8, TensorUint8, TensorInt16, TensorInt32:
		lo, hi := t.Type.bounds()
		v = float32(math.Max(float64(lo), math.Min(float64(hi), float64(v))))

		switch t.Type {
		case TensorInt8:
			t.buf[i] = byte(int8(v))
		case TensorUint8:
			t.buf[i] = byte(v)
		case TensorInt16:
			binary.LittleEndian.PutUint16(t.buf[i*2:], uint16(int16(v)))
		case TensorInt32:
			binary.LittleEndian.PutUint32(t.buf[i*4:], uint32(int32(v)))
		}
	default:
		panic(fmt.Sprintf("tensor element type %s has no accessor", t.Type))
	}
}
