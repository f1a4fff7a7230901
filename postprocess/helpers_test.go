package postprocess

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/swdee/go-edgedecode"
	"github.com/swdee/go-edgedecode/replay"
)

// newEngine returns a replay engine with one input of the given shape and
// type, and the given outputs
func newEngine(t *testing.T, inType string, input []int,
	outputs ...replay.TensorSpec) *replay.Engine {

	t.Helper()

	e, err := replay.New(replay.Model{
		Name: t.Name(),
		Inputs: []replay.TensorSpec{
			{Type: inType, Shape: input, Scale: 1},
		},
		Outputs: outputs,
	})
	require.NoError(t, err)

	return e
}

// tensor returns a tensor spec of the given type and quantization
func tensor(typ string, scale float32, zp int32, shape ...int) replay.TensorSpec {
	return replay.TensorSpec{
		Type:      typ,
		Shape:     shape,
		Scale:     scale,
		ZeroPoint: zp,
	}
}

// fp32 returns a float32 tensor spec
func fp32(shape ...int) replay.TensorSpec {
	return tensor("FP32", 0, 0, shape...)
}

// withData returns spec holding data
func withData(spec replay.TensorSpec, data []float32) replay.TensorSpec {
	spec.Data = data
	return spec
}

// filled returns n values set to v
func filled(n int, v float32) []float32 {

	data := make([]float32, n)

	for i := range data {
		data[i] = v
	}

	return data
}

// newFrame returns an RGB888 frame with every byte set to v
func newFrame(w, h int, v byte) *edgedecode.Image {

	data := make([]byte, w*h*3)

	for i := range data {
		data[i] = v
	}

	return edgedecode.NewImage(data, w, h, edgedecode.PixelRGB888)
}
