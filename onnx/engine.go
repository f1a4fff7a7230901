// Package onnx runs float ONNX models through ONNX Runtime and exposes them
// as an edgedecode.Engine
package onnx

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/swdee/go-edgedecode"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// envOnce guards the process wide ONNX Runtime environment
var (
	envOnce sync.Once
	envErr  error
)

// Option configures an Engine
type Option func(*options)

type options struct {
	libraryPath string
	threads     int
	log         *zap.Logger
}

// WithLibraryPath sets the path of the onnxruntime shared library.  It only
// has effect on the first Engine created in the process.
func WithLibraryPath(path string) Option {
	return func(o *options) {
		o.libraryPath = path
	}
}

// WithThreads sets the number of intra op threads of the session
func WithThreads(n int) Option {
	return func(o *options) {
		o.threads = n
	}
}

// WithLogger sets the logger used by the Engine
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// port is one model input or output with the tensor bound to the session
type port struct {
	name   string
	shape  edgedecode.Shape
	typ    edgedecode.TensorType
	tensor *ort.CustomDataTensor
}

// Engine is an edgedecode.Engine over an ONNX Runtime session.  Inputs are
// exposed as NHWC float32 buffers and transposed on Run for channel first
// models, outputs are exposed in their native element type.
type Engine struct {
	session *ort.AdvancedSession
	inputs  []port
	outputs []port
	// staging holds the NHWC input written by preprocessing
	staging [][]byte
	// channelFirst marks inputs the model expects in NCHW order
	channelFirst []bool
	log          *zap.Logger
}

// New loads the ONNX model file and creates a session bound to freshly
// allocated input and output tensors
func New(modelFile string, opts ...Option) (*Engine, error) {

	o := options{
		log: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(&o)
	}

	err := initEnvironment(o.libraryPath)

	if err != nil {
		return nil, err
	}

	inInfo, outInfo, err := ort.GetInputOutputInfo(modelFile)

	if err != nil {
		return nil, errors.Wrap(edgedecode.ErrIO, err.Error())
	}

	e := &Engine{
		log: o.log,
	}

	err = e.bind(inInfo, outInfo)

	if err != nil {
		e.destroyTensors()
		return nil, err
	}

	sessOpts, err := ort.NewSessionOptions()

	if err != nil {
		e.destroyTensors()
		return nil, errors.Wrap(edgedecode.ErrIO, err.Error())
	}

	defer sessOpts.Destroy()

	if o.threads > 0 {
		if err := sessOpts.SetIntraOpNumThreads(o.threads); err != nil {
			e.destroyTensors()
			return nil, errors.Wrap(edgedecode.ErrInvalidArgument, err.Error())
		}
	}

	e.session, err = ort.NewAdvancedSession(modelFile,
		names(e.inputs), names(e.outputs),
		values(e.inputs), values(e.outputs),
		sessOpts,
	)

	if err != nil {
		e.destroyTensors()
		return nil, errors.Wrap(edgedecode.ErrIO, err.Error())
	}

	e.log.Info("onnx model loaded",
		zap.String("model", modelFile),
		zap.Int("inputs", len(e.inputs)),
		zap.Int("outputs", len(e.outputs)),
	)

	return e, nil
}

// initEnvironment initializes ONNX Runtime once per process
func initEnvironment(libraryPath string) error {

	envOnce.Do(func() {

		if ort.IsInitialized() {
			return
		}

		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}

		if err := ort.InitializeEnvironment(); err != nil {
			envErr = errors.Wrap(edgedecode.ErrNotSupported, err.Error())
		}
	})

	return envErr
}

// bind allocates a tensor for every model input and output
func (e *Engine) bind(inInfo, outInfo []ort.InputOutputInfo) error {

	for i, info := range inInfo {

		p, err := newPort(info)

		if err != nil {
			return errors.WithMessagef(err, "input %d %q", i, info.Name)
		}

		if p.typ != edgedecode.TensorFloat32 {
			p.tensor.Destroy()
			return errors.Wrapf(edgedecode.ErrNotSupported,
				"input %d %q is %s, only float inputs are supported", i, info.Name, p.typ)
		}

		nhwc, first, err := inputLayout(p.shape)

		if err != nil {
			p.tensor.Destroy()
			return errors.WithMessagef(err, "input %d %q", i, info.Name)
		}

		p.shape = nhwc
		e.inputs = append(e.inputs, p)
		e.channelFirst = append(e.channelFirst, first)

		staging := p.tensor.GetData()

		if first {
			staging = make([]byte, len(staging))
		}

		e.staging = append(e.staging, staging)
	}

	for i, info := range outInfo {

		p, err := newPort(info)

		if err != nil {
			return errors.WithMessagef(err, "output %d %q", i, info.Name)
		}

		e.outputs = append(e.outputs, p)
	}

	return nil
}

// newPort allocates the tensor described by info
func newPort(info ort.InputOutputInfo) (port, error) {

	typ, ok := elementType(info.DataType)

	if !ok {
		return port{}, errors.Wrapf(edgedecode.ErrNotSupported, "element type %v", info.DataType)
	}

	shape, err := fixedShape(info.Dimensions)

	if err != nil {
		return port{}, err
	}

	buf := make([]byte, shape.Elements()*typ.Size())
	tensor, err := ort.NewCustomDataTensor(info.Dimensions, buf, info.DataType)

	if err != nil {
		return port{}, errors.Wrap(edgedecode.ErrIO, err.Error())
	}

	return port{
		name:   info.Name,
		shape:  shape,
		typ:    typ,
		tensor: tensor,
	}, nil
}

// elementType maps an ONNX element type onto the tensor view types
func elementType(t ort.TensorElementDataType) (edgedecode.TensorType, bool) {
	switch t {
	case ort.TensorElementDataTypeFloat:
		return edgedecode.TensorFloat32, true
	case ort.TensorElementDataTypeFloat16:
		return edgedecode.TensorFloat16, true
	case ort.TensorElementDataTypeInt8:
		return edgedecode.TensorInt8, true
	case ort.TensorElementDataTypeUint8:
		return edgedecode.TensorUint8, true
	case ort.TensorElementDataTypeInt16:
		return edgedecode.TensorInt16, true
	case ort.TensorElementDataTypeInt32:
		return edgedecode.TensorInt32, true
	default:
		return edgedecode.TensorUndefined, false
	}
}

// fixedShape converts model dimensions into a Shape.  A dynamic batch
// dimension is pinned to 1 in place, any other dynamic dimension is
// rejected.
func fixedShape(dims ort.Shape) (edgedecode.Shape, error) {

	out := make([]int, len(dims))

	for i, d := range dims {

		if d < 0 && i == 0 {
			dims[i] = 1
			d = 1
		}

		if d <= 0 {
			return edgedecode.Shape{}, errors.Wrapf(edgedecode.ErrNotSupported,
				"dimension %d of %v is dynamic", i, dims)
		}

		out[i] = int(d)
	}

	return edgedecode.NewShape(out...), nil
}

// inputLayout returns the NHWC shape of a four dimensional image input and
// whether the model stores it channel first
func inputLayout(s edgedecode.Shape) (edgedecode.Shape, bool, error) {

	if s.Rank() != 4 {
		return edgedecode.Shape{}, false, errors.Wrapf(edgedecode.ErrNotSupported,
			"input shape %s is not four dimensional", s)
	}

	isChannels := func(d int) bool { return d == 1 || d == 3 }

	if isChannels(s.Dim(1)) && !isChannels(s.Dim(3)) {
		return edgedecode.NewShape(s.Dim(0), s.Dim(2), s.Dim(3), s.Dim(1)), true, nil
	}

	return s, false, nil
}

// nhwcToNCHW transposes a float32 image from src in NHWC order into dst in
// NCHW order
func nhwcToNCHW(dst, src edgedecode.Tensor, h, w, c int) {

	plane := h * w

	for p := 0; p < plane; p++ {
		for ch := 0; ch < c; ch++ {
			dst.SetFloat32(ch*plane+p, src.At(p*c+ch))
		}
	}
}

func names(ports []port) []string {

	out := make([]string, len(ports))

	for i, p := range ports {
		out[i] = p.name
	}

	return out
}

func values(ports []port) []ort.Value {

	out := make([]ort.Value, len(ports))

	for i, p := range ports {
		out[i] = p.tensor
	}

	return out
}

// NumInputs returns the number of model inputs
func (e *Engine) NumInputs() int {
	return len(e.inputs)
}

// NumOutputs returns the number of model outputs
func (e *Engine) NumOutputs() int {
	return len(e.outputs)
}

// InputShape returns the NHWC shape of input i
func (e *Engine) InputShape(i int) edgedecode.Shape {
	return e.inputs[i].shape
}

// OutputShape returns the shape of output i
func (e *Engine) OutputShape(i int) edgedecode.Shape {
	return e.outputs[i].shape
}

// InputQuantParam returns zero parameters as inputs are real valued
func (e *Engine) InputQuantParam(i int) edgedecode.QuantParam {
	return edgedecode.QuantParam{}
}

// OutputQuantParam returns zero parameters.  Quantized element types of a
// float model carry no affine parameters in the graph interface.
func (e *Engine) OutputQuantParam(i int) edgedecode.QuantParam {
	return edgedecode.QuantParam{}
}

// Input returns a float32 NHWC view of input i
func (e *Engine) Input(i int) edgedecode.Tensor {
	return edgedecode.NewTensor(edgedecode.TensorFloat32, e.staging[i])
}

// Output returns a view of output i as written by the last Run
func (e *Engine) Output(i int) edgedecode.Tensor {
	return edgedecode.NewTensor(e.outputs[i].typ, e.outputs[i].tensor.GetData())
}

// Run transposes channel first inputs and executes the session
func (e *Engine) Run() error {

	if e.session == nil {
		return errors.Wrap(edgedecode.ErrInvalidArgument, "engine is closed")
	}

	for i, in := range e.inputs {
		if e.channelFirst[i] {
			nhwcToNCHW(
				edgedecode.NewTensor(edgedecode.TensorFloat32, in.tensor.GetData()),
				e.Input(i),
				in.shape.Dim(1), in.shape.Dim(2), in.shape.Dim(3),
			)
		}
	}

	if err := e.session.Run(); err != nil {
		return errors.Wrap(edgedecode.ErrIO, err.Error())
	}

	return nil
}

// destroyTensors releases the bound tensors
func (e *Engine) destroyTensors() {

	for _, p := range e.inputs {
		p.tensor.Destroy()
	}

	for _, p := range e.outputs {
		p.tensor.Destroy()
	}

	e.inputs = nil
	e.outputs = nil
}

// Close destroys the session and its tensors.  The process wide
// environment is left running for other engines.
func (e *Engine) Close() error {

	if e.session == nil {
		return nil
	}

	err := e.session.Destroy()
	e.session = nil
	e.destroyTensors()

	if err != nil {
		return errors.Wrap(edgedecode.ErrIO, err.Error())
	}

	return nil
}
