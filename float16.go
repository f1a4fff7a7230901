package edgedecode

import "github.com/x448/float16"

var f16LookupTable [65536]float32

func init() {
	// precompute float16 lookup table so fp16 output tensors decode with a
	// single index on the hot path
	for i := range f16LookupTable {
		f16 := float16.Frombits(uint16(i))
		f16LookupTable[i] = f16.Float32()
	}
}

// f16FromFloat32 returns the IEEE 754 half precision bits nearest to v
func f16FromFloat32(v float32) uint16 {
	return float16.Fromfloat32(v).Bits()
}
