package postprocess

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/swdee/go-edgedecode"
	"github.com/swdee/go-edgedecode/preprocess"
	"go.uber.org/zap"
)

// Type identifies a decoder family
type Type int

const (
	TypeUndefined Type = iota
	TypeGridHeatmap
	TypeClassifier
	TypeLandmark
	TypeAnchorGrid
	TypeDecoupled
	TypeStride
	TypePose
	TypeSplitGrid
)

// String returns the registered name of the decoder family
func (t Type) String() string {

	if info := AlgorithmInfo(t); info.Type != TypeUndefined {
		return info.Name
	}

	return "undefined"
}

// Category is the kind of result a decoder family produces
type Category int

const (
	CategoryUndefined Category = iota
	CategoryDetection
	CategoryPose
	CategoryClassification
)

// String returns a readable description of the Category
func (c Category) String() string {
	switch c {
	case CategoryDetection:
		return "detection"
	case CategoryPose:
		return "pose"
	case CategoryClassification:
		return "classification"
	default:
		return "undefined"
	}
}

// Sensor is the kind of input a decoder family expects
type Sensor int

const (
	SensorUndefined Sensor = iota
	SensorCamera
)

// Info describes a decoder family
type Info struct {
	Type     Type
	Category Category
	Sensor   Sensor
	Name     string
}

// Config holds the thresholds used during post processing.  Both values are
// percentages in the range 0-100.
type Config struct {
	// ScoreThreshold is the minimum score a result must exceed to be kept
	ScoreThreshold uint8
	// IoUThreshold is the maximum Intersection over Union allowed between two
	// kept boxes
	IoUThreshold uint8
}

// DefaultConfig returns the thresholds decoders start with
func DefaultConfig() Config {
	return Config{
		ScoreThreshold: 50,
		IoUThreshold:   45,
	}
}

// defaultMaxResults is the number of results kept per cycle unless changed
// with WithMaxResults
const defaultMaxResults = 100

// options holds the settings applied by Option functions
type options struct {
	logger           *zap.Logger
	converter        edgedecode.Converter
	config           Config
	maxResults       int
	normalizedCoords bool
}

// Option configures a decoder at construction
type Option func(*options)

// WithLogger sets the logger used by the decoder
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithConverter sets the Converter used to bring captured frames into the
// engine input geometry
func WithConverter(c edgedecode.Converter) Option {
	return func(o *options) {
		o.converter = c
	}
}

// WithConfig sets the initial thresholds
func WithConfig(c Config) Option {
	return func(o *options) {
		o.config = c
	}
}

// WithMaxResults caps the number of results kept per cycle
func WithMaxResults(n int) Option {
	return func(o *options) {
		o.maxResults = n
	}
}

// WithNormalizedCoords tells the anchor grid and pose decoders the model
// emits box coordinates in the range 0-1 when its output scale is below the
// normalized limit
func WithNormalizedCoords(on bool) Option {
	return func(o *options) {
		o.normalizedCoords = on
	}
}

// Decoder is implemented by every decoder family in this package.  The set
// is closed, new families can not be added outside the package.
type Decoder interface {
	// Run preprocesses img into the engine input, runs the engine and
	// decodes its outputs
	Run(img *edgedecode.Image) error
	// Info returns the decoder family description
	Info() Info
	// Config returns the current thresholds
	Config() Config
	// SetConfig replaces the thresholds
	SetConfig(c Config) error
	// PreprocessTime returns the duration of the last preprocess stage
	PreprocessTime() time.Duration
	// RunTime returns the duration of the last engine run
	RunTime() time.Duration
	// PostprocessTime returns the duration of the last postprocess stage
	PostprocessTime() time.Duration

	// postprocess decodes the engine outputs of the last run into results.
	// Being unexported it keeps the set of decoders closed.
	postprocess() error
}

// Algorithm implements the parts of the decode cycle shared by every
// decoder family.  It is embedded in each decoder.
type Algorithm struct {
	info      Info
	engine    edgedecode.Engine
	converter edgedecode.Converter
	log       *zap.Logger

	// thresholds are written by a control goroutine and read once at the
	// start of each postprocess
	scoreThreshold atomic.Uint32
	iouThreshold   atomic.Uint32

	maxResults       int
	normalizedCoords bool

	geo      geometry
	channels int
	format   edgedecode.PixelFormat

	// scratch holds the converted frame when the input tensor is not 8 bit
	scratch []byte

	preprocessTime  time.Duration
	runTime         time.Duration
	postprocessTime time.Duration

	// decoder is the concrete family embedding this Algorithm
	decoder Decoder
}

// inputDims returns the height, width and channels of an NHWC input tensor
// with a batch size of one and 1 or 3 channels
func inputDims(e edgedecode.Engine) (int, int, int, bool) {

	if e == nil || e.NumInputs() < 1 {
		return 0, 0, 0, false
	}

	s := e.InputShape(0)

	if s.Rank() != 4 || s.Dim(0) != 1 {
		return 0, 0, 0, false
	}

	h, w, c := s.Dim(1), s.Dim(2), s.Dim(3)

	if h <= 0 || w <= 0 || (c != 1 && c != 3) {
		return 0, 0, 0, false
	}

	return h, w, c, true
}

// squareInput returns the side of a square NHWC input tensor whose side is
// a multiple of 32
func squareInput(e edgedecode.Engine) (int, bool) {

	h, w, _, ok := inputDims(e)

	if !ok || h != w || h%32 != 0 {
		return 0, false
	}

	return h, true
}

// strideCells returns the number of cells over the 8, 16 and 32 stride grids
// of a square input with the given side
func strideCells(side int) int {

	total := 0

	for _, s := range strides {
		split := side / s
		total += split * split
	}

	return total
}

// newAlgorithm returns the shared decoder state bound to engine e
func newAlgorithm(info Info, e edgedecode.Engine, opts []Option) (*Algorithm, error) {

	o := options{
		config:     DefaultConfig(),
		maxResults: defaultMaxResults,
	}

	for _, opt := range opts {
		opt(&o)
	}

	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	if o.converter == nil {
		o.converter = preprocess.NewConverter()
	}

	if o.maxResults <= 0 {
		return nil, errors.Wrapf(edgedecode.ErrInvalidArgument,
			"max results must be positive, got %d", o.maxResults)
	}

	h, w, c, ok := inputDims(e)

	if !ok {
		return nil, errors.Wrapf(edgedecode.ErrInvalidArgument,
			"%s: unsupported input shape", info.Name)
	}

	a := &Algorithm{
		info:             info,
		engine:           e,
		converter:        o.converter,
		log:              o.logger.With(zap.String("algorithm", info.Name)),
		maxResults:       o.maxResults,
		normalizedCoords: o.normalizedCoords,
		geo: geometry{
			inputW: w,
			inputH: h,
			frameW: w,
			frameH: h,
		},
		channels: c,
		format:   edgedecode.PixelRGB888,
	}

	if c == 1 {
		a.format = edgedecode.PixelGray
	}

	if err := a.SetConfig(o.config); err != nil {
		return nil, err
	}

	in := e.Input(0)

	switch in.Type {
	case edgedecode.TensorInt8, edgedecode.TensorUint8:
	case edgedecode.TensorFloat32, edgedecode.TensorFloat16:
		a.scratch = make([]byte, w*h*c)
	default:
		return nil, errors.Wrapf(edgedecode.ErrNotSupported,
			"%s: input tensor type %s", info.Name, in.Type)
	}

	if in.Len() < w*h*c {
		return nil, errors.Wrapf(edgedecode.ErrInvalidArgument,
			"%s: input buffer holds %d elements, need %d", info.Name, in.Len(), w*h*c)
	}

	a.log.Info("decoder bound to engine",
		zap.Int("input_width", w),
		zap.Int("input_height", h),
		zap.Int("input_channels", c),
		zap.Stringer("input_type", in.Type),
		zap.Int("outputs", e.NumOutputs()),
	)

	return a, nil
}

// Info returns the decoder family description
func (a *Algorithm) Info() Info {
	return a.info
}

// Config returns the current thresholds
func (a *Algorithm) Config() Config {
	return Config{
		ScoreThreshold: uint8(a.scoreThreshold.Load()),
		IoUThreshold:   uint8(a.iouThreshold.Load()),
	}
}

// SetConfig replaces both thresholds.  Values above 100 are rejected and
// leave the current configuration unchanged.
func (a *Algorithm) SetConfig(c Config) error {

	if c.ScoreThreshold > maxScore || c.IoUThreshold > maxScore {
		return errors.Wrapf(edgedecode.ErrInvalidArgument,
			"thresholds must be 0-100, got score=%d iou=%d", c.ScoreThreshold, c.IoUThreshold)
	}

	a.scoreThreshold.Store(uint32(c.ScoreThreshold))
	a.iouThreshold.Store(uint32(c.IoUThreshold))

	return nil
}

// SetScoreThreshold replaces the score threshold
func (a *Algorithm) SetScoreThreshold(v uint8) error {

	if v > maxScore {
		return errors.Wrapf(edgedecode.ErrInvalidArgument, "score threshold %d above 100", v)
	}

	a.scoreThreshold.Store(uint32(v))
	return nil
}

// SetIoUThreshold replaces the IoU threshold
func (a *Algorithm) SetIoUThreshold(v uint8) error {

	if v > maxScore {
		return errors.Wrapf(edgedecode.ErrInvalidArgument, "iou threshold %d above 100", v)
	}

	a.iouThreshold.Store(uint32(v))
	return nil
}

// thresholds returns the score and IoU thresholds for this cycle
func (a *Algorithm) thresholds() (uint8, uint8) {
	return uint8(a.scoreThreshold.Load()), uint8(a.iouThreshold.Load())
}

// PreprocessTime returns the duration of the last preprocess stage
func (a *Algorithm) PreprocessTime() time.Duration {
	return a.preprocessTime
}

// RunTime returns the duration of the last engine run
func (a *Algorithm) RunTime() time.Duration {
	return a.runTime
}

// PostprocessTime returns the duration of the last postprocess stage
func (a *Algorithm) PostprocessTime() time.Duration {
	return a.postprocessTime
}

// Run performs one decode cycle on img.  The first stage to fail stops the
// cycle and its error is returned, stages that did not run report a zero
// duration.  A nil img leaves the engine input as the caller filled it.
func (a *Algorithm) Run(img *edgedecode.Image) error {

	a.preprocessTime = 0
	a.runTime = 0
	a.postprocessTime = 0

	start := time.Now()
	err := a.preprocess(img)
	a.preprocessTime = time.Since(start)

	if err != nil {
		a.log.Warn("decode stage failed", zap.String("stage", "preprocess"), zap.Error(err))
		return err
	}

	start = time.Now()
	err = a.engine.Run()
	a.runTime = time.Since(start)

	if err != nil {
		a.log.Warn("decode stage failed", zap.String("stage", "run"), zap.Error(err))
		return err
	}

	start = time.Now()
	err = a.decoder.postprocess()
	a.postprocessTime = time.Since(start)

	if err != nil {
		a.log.Warn("decode stage failed", zap.String("stage", "postprocess"), zap.Error(err))
		return err
	}

	a.log.Debug("decode cycle",
		zap.Duration("preprocess", a.preprocessTime),
		zap.Duration("run", a.runTime),
		zap.Duration("postprocess", a.postprocessTime),
	)

	return nil
}

// preprocess converts img into the engine input tensor and applies the mean
// subtraction expected by the tensor type
func (a *Algorithm) preprocess(img *edgedecode.Image) error {

	if img == nil {
		a.geo.frameW = a.geo.inputW
		a.geo.frameH = a.geo.inputH
		return nil
	}

	in := a.engine.Input(0)
	size := a.geo.inputW * a.geo.inputH * a.channels

	buf := a.scratch

	if buf == nil {
		buf = in.Bytes()[:size]
	}

	dst := &edgedecode.Image{
		Data:   buf,
		Width:  a.geo.inputW,
		Height: a.geo.inputH,
		Size:   size,
		Format: a.format,
	}

	if err := a.converter.Convert(img, dst); err != nil {
		return errors.Wrap(err, "convert frame")
	}

	a.geo.frameW, a.geo.frameH = img.RotatedSize()

	switch in.Type {
	case edgedecode.TensorInt8:
		for i := range buf {
			buf[i] ^= 0x80
		}
	case edgedecode.TensorFloat32, edgedecode.TensorFloat16:
		for i, v := range buf {
			in.SetFloat32(i, float32(v)/255)
		}
	}

	return nil
}

// capResults truncates results to at most n entries
func capResults[T any](results []T, n int) []T {

	if len(results) > n {
		return results[:n]
	}

	return results
}
