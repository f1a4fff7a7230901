package replay

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-edgedecode"
)

const dump = `
name: classifier
inputs:
  - type: UINT8
    shape: [1, 4, 4, 3]
    scale: 1
outputs:
  - type: INT8
    shape: [1, 4]
    scale: 0.5
    zero_point: -10
    data: [-10, 0, 30]
`

func TestParse(t *testing.T) {

	e, err := Parse([]byte(dump))
	require.NoError(t, err)

	assert.Equal(t, "classifier", e.Model().Name)
	assert.Equal(t, 1, e.NumInputs())
	assert.Equal(t, 1, e.NumOutputs())
	assert.Equal(t, []int{1, 4, 4, 3}, e.InputShape(0).Dims)
	assert.Equal(t, []int{1, 4}, e.OutputShape(0).Dims)
	assert.Equal(t, edgedecode.QuantParam{Scale: 0.5, ZeroPoint: -10}, e.OutputQuantParam(0))

	in := e.Input(0)
	assert.Equal(t, edgedecode.TensorUint8, in.Type)
	assert.Equal(t, 48, in.Len())

	out := e.Output(0)
	assert.Equal(t, edgedecode.TensorInt8, out.Type)
	assert.Equal(t, float32(0), out.Dequantize(0, e.OutputQuantParam(0)))
	assert.Equal(t, float32(5), out.Dequantize(1, e.OutputQuantParam(0)))
	assert.Equal(t, float32(20), out.Dequantize(2, e.OutputQuantParam(0)))
	assert.Equal(t, float32(0), out.At(3), "missing values are zero")
}

func TestParseErrors(t *testing.T) {

	tests := []struct {
		name string
		doc  string
	}{
		{"yaml", "outputs: [\n"},
		{"type", "outputs:\n  - type: INT4\n    shape: [1]\n"},
		{"empty shape", "outputs:\n  - type: INT8\n    shape: []\n"},
		{"too many values", "outputs:\n  - type: INT8\n    shape: [2]\n    data: [1, 2, 3]\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			assert.Equal(t, edgedecode.ErrInvalidArgument, edgedecode.CodeOf(err))
		})
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, edgedecode.ErrIO, edgedecode.CodeOf(err))
}

func TestRunAndFail(t *testing.T) {

	e, err := Parse([]byte(dump))
	require.NoError(t, err)

	require.NoError(t, e.Run())
	require.NoError(t, e.Run())
	assert.Equal(t, 2, e.Runs())

	e.FailRun(errors.Wrap(edgedecode.ErrTimeout, "npu"))
	assert.Equal(t, edgedecode.ErrTimeout, edgedecode.CodeOf(e.Run()))
	assert.Equal(t, 2, e.Runs())

	e.FailRun(nil)
	require.NoError(t, e.Run())
	assert.Equal(t, 3, e.Runs())
}

func TestSetOutput(t *testing.T) {

	e, err := Parse([]byte(dump))
	require.NoError(t, err)

	require.NoError(t, e.SetOutput(0, []float32{1, 2}))

	out := e.Output(0)
	assert.Equal(t, float32(1), out.At(0))
	assert.Equal(t, float32(2), out.At(1))
	assert.Equal(t, float32(0), out.At(2), "previous values are cleared")

	assert.Error(t, e.SetOutput(1, nil))
	assert.Error(t, e.SetOutput(0, make([]float32, 5)))
}

func TestCaptureSaveLoad(t *testing.T) {

	e, err := Parse([]byte(dump))
	require.NoError(t, err)

	e.Input(0).SetUint8(0, 200)

	m := Capture("copy", e)
	assert.Equal(t, "copy", m.Name)
	assert.Empty(t, m.Inputs[0].Data, "inputs are captured without values")
	assert.Equal(t, []float32{-10, 0, 30, 0}, m.Outputs[0].Data)

	file := filepath.Join(t.TempDir(), "copy.yaml")
	require.NoError(t, m.Save(file))

	loaded, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, m, loaded.Model())
	assert.Equal(t, e.Output(0).Bytes(), loaded.Output(0).Bytes())
	assert.Equal(t, e.OutputQuantParam(0), loaded.OutputQuantParam(0))
}
