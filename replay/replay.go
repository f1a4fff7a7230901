// Package replay provides an edgedecode.Engine that plays back tensors from
// a model dump instead of running a model.  Dumps are YAML documents holding
// the shape, type and quantization of each tensor together with the raw
// output values captured from a real engine.
package replay

import (
	"os"

	"github.com/pkg/errors"
	"github.com/swdee/go-edgedecode"
	"gopkg.in/yaml.v3"
)

// TensorSpec describes one tensor of a model dump
type TensorSpec struct {
	// Type is the element type name, eg: INT8, UINT8, FP16, FP32
	Type string `yaml:"type"`
	// Shape is the tensor dimensions
	Shape []int `yaml:"shape"`
	// Scale and ZeroPoint are the affine quantization parameters
	Scale     float32 `yaml:"scale"`
	ZeroPoint int32   `yaml:"zero_point"`
	// Data holds raw element values in the domain of Type.  Missing
	// elements are zero.
	Data []float32 `yaml:"data,omitempty"`
}

// Model is a model dump
type Model struct {
	Name    string       `yaml:"name"`
	Inputs  []TensorSpec `yaml:"inputs"`
	Outputs []TensorSpec `yaml:"outputs"`
}

// Engine replays a Model.  Input buffers are writable and Run leaves the
// outputs unchanged, so each cycle decodes the dumped outputs.
type Engine struct {
	model    Model
	inTypes  []edgedecode.TensorType
	outTypes []edgedecode.TensorType
	inputs   [][]byte
	outputs  [][]byte
	runs     int
	runErr   error
}

// New returns an Engine replaying m
func New(m Model) (*Engine, error) {

	e := &Engine{model: m}

	for i, spec := range m.Inputs {
		t, buf, err := allocate(spec)

		if err != nil {
			return nil, errors.Wrapf(err, "input %d", i)
		}

		e.inTypes = append(e.inTypes, t)
		e.inputs = append(e.inputs, buf)
	}

	for i, spec := range m.Outputs {
		t, buf, err := allocate(spec)

		if err != nil {
			return nil, errors.Wrapf(err, "output %d", i)
		}

		e.outTypes = append(e.outTypes, t)
		e.outputs = append(e.outputs, buf)
	}

	return e, nil
}

// allocate returns the buffer for a tensor filled with its dumped values
func allocate(spec TensorSpec) (edgedecode.TensorType, []byte, error) {

	t, err := edgedecode.ParseTensorType(spec.Type)

	if err != nil {
		return t, nil, err
	}

	shape := edgedecode.NewShape(spec.Shape...)
	n := shape.Elements()

	if n <= 0 {
		return t, nil, errors.Wrapf(edgedecode.ErrInvalidArgument, "empty shape %s", shape)
	}

	if len(spec.Data) > n {
		return t, nil, errors.Wrapf(edgedecode.ErrInvalidArgument,
			"%d values for shape %s", len(spec.Data), shape)
	}

	view := edgedecode.NewTensor(t, make([]byte, n*t.Size()))

	for i, v := range spec.Data {
		view.SetFloat32(i, v)
	}

	return t, view.Bytes(), nil
}

// Parse returns an Engine replaying the YAML model dump in data
func Parse(data []byte) (*Engine, error) {

	var m Model

	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(edgedecode.ErrInvalidArgument, "parse model dump: %v", err)
	}

	return New(m)
}

// Load returns an Engine replaying the YAML model dump in file
func Load(file string) (*Engine, error) {

	data, err := os.ReadFile(file)

	if err != nil {
		return nil, errors.Wrapf(edgedecode.ErrIO, "read model dump %s: %v", file, err)
	}

	return Parse(data)
}

// Model returns the dump being replayed
func (e *Engine) Model() Model {
	return e.model
}

// NumInputs returns the number of input tensors
func (e *Engine) NumInputs() int {
	return len(e.inputs)
}

// NumOutputs returns the number of output tensors
func (e *Engine) NumOutputs() int {
	return len(e.outputs)
}

// InputShape returns the shape of input i
func (e *Engine) InputShape(i int) edgedecode.Shape {
	return edgedecode.NewShape(e.model.Inputs[i].Shape...)
}

// OutputShape returns the shape of output i
func (e *Engine) OutputShape(i int) edgedecode.Shape {
	return edgedecode.NewShape(e.model.Outputs[i].Shape...)
}

// InputQuantParam returns the quantization of input i
func (e *Engine) InputQuantParam(i int) edgedecode.QuantParam {
	s := e.model.Inputs[i]
	return edgedecode.QuantParam{Scale: s.Scale, ZeroPoint: s.ZeroPoint}
}

// OutputQuantParam returns the quantization of output i
func (e *Engine) OutputQuantParam(i int) edgedecode.QuantParam {
	s := e.model.Outputs[i]
	return edgedecode.QuantParam{Scale: s.Scale, ZeroPoint: s.ZeroPoint}
}

// Input returns a view of input buffer i
func (e *Engine) Input(i int) edgedecode.Tensor {
	return edgedecode.NewTensor(e.inTypes[i], e.inputs[i])
}

// Output returns a view of output buffer i
func (e *Engine) Output(i int) edgedecode.Tensor {
	return edgedecode.NewTensor(e.outTypes[i], e.outputs[i])
}

// Run counts the cycle and returns the error set with FailRun
func (e *Engine) Run() error {

	if e.runErr != nil {
		return e.runErr
	}

	e.runs++

	return nil
}

// Runs returns the number of successful Run calls
func (e *Engine) Runs() int {
	return e.runs
}

// FailRun makes every following Run return err, nil restores normal runs
func (e *Engine) FailRun(err error) {
	e.runErr = err
}

// SetOutput replaces the raw values of output i, zeroing any elements past
// the end of values
func (e *Engine) SetOutput(i int, values []float32) error {

	if i < 0 || i >= len(e.outputs) {
		return errors.Wrapf(edgedecode.ErrInvalidArgument, "no output %d", i)
	}

	view := e.Output(i)

	if len(values) > view.Len() {
		return errors.Wrapf(edgedecode.ErrInvalidArgument,
			"%d values for output of %d elements", len(values), view.Len())
	}

	clear(e.outputs[i])

	for j, v := range values {
		view.SetFloat32(j, v)
	}

	return nil
}

// Capture returns a dump of the shapes, quantization and current outputs of
// engine src
func Capture(name string, src edgedecode.Engine) Model {

	m := Model{Name: name}

	for i := 0; i < src.NumInputs(); i++ {
		m.Inputs = append(m.Inputs, spec(src.InputShape(i), src.InputQuantParam(i),
			src.Input(i), false))
	}

	for i := 0; i < src.NumOutputs(); i++ {
		m.Outputs = append(m.Outputs, spec(src.OutputShape(i), src.OutputQuantParam(i),
			src.Output(i), true))
	}

	return m
}

// spec describes a tensor, copying its values when withData is set
func spec(s edgedecode.Shape, q edgedecode.QuantParam, t edgedecode.Tensor,
	withData bool) TensorSpec {

	ts := TensorSpec{
		Type:      t.Type.String(),
		Shape:     append([]int(nil), s.Dims...),
		Scale:     q.Scale,
		ZeroPoint: q.ZeroPoint,
	}

	if withData {
		ts.Data = make([]float32, t.Len())

		for i := range ts.Data {
			ts.Data[i] = t.At(i)
		}
	}

	return ts
}

// Save writes m to file as YAML
func (m Model) Save(file string) error {

	data, err := yaml.Marshal(m)

	if err != nil {
		return errors.Wrapf(edgedecode.ErrInvalidArgument, "encode model dump: %v", err)
	}

	if err := os.WriteFile(file, data, 0o644); err != nil {
		return errors.Wrapf(edgedecode.ErrIO, "write model dump %s: %v", file, err)
	}

	return nil
}
