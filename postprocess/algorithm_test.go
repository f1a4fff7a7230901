package postprocess

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-edgedecode"
	"github.com/swdee/go-edgedecode/replay"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// slowEngine delays every Run
type slowEngine struct {
	*replay.Engine
	delay time.Duration
}

func (s *slowEngine) Run() error {
	time.Sleep(s.delay)
	return s.Engine.Run()
}

// shortInputEngine exposes an input buffer smaller than its shape
type shortInputEngine struct {
	*replay.Engine
}

func (s *shortInputEngine) Input(i int) edgedecode.Tensor {
	in := s.Engine.Input(i)
	return edgedecode.NewTensor(in.Type, in.Bytes()[:len(in.Bytes())/2])
}

// newClassifierEngine returns an engine for a 3 class classifier scoring
// class 1 at 75
func newClassifierEngine(t *testing.T, inType string) *replay.Engine {
	return newEngine(t, inType, []int{1, 8, 12, 3},
		withData(fp32(1, 3), []float32{0.125, 0.75, 0.25}))
}

func TestRunTimesEachStage(t *testing.T) {

	e := &slowEngine{Engine: newClassifierEngine(t, "UINT8"), delay: 5 * time.Millisecond}

	c, err := NewClassifier(e)
	require.NoError(t, err)

	require.NoError(t, c.Run(newFrame(24, 16, 0)))

	assert.GreaterOrEqual(t, c.RunTime(), 5*time.Millisecond)
	assert.Greater(t, c.PreprocessTime(), time.Duration(0))
	assert.Len(t, c.Results(), 1)
}

func TestRunStopsOnEngineFailure(t *testing.T) {

	e := newClassifierEngine(t, "UINT8")

	c, err := NewClassifier(e)
	require.NoError(t, err)

	e.FailRun(edgedecode.ErrTimeout)

	err = c.Run(nil)
	require.ErrorIs(t, err, edgedecode.ErrTimeout)
	assert.Equal(t, edgedecode.ErrTimeout, edgedecode.CodeOf(err))
	assert.Zero(t, c.PostprocessTime())
	assert.Empty(t, c.Results())

	e.FailRun(nil)

	require.NoError(t, c.Run(nil))
	assert.Len(t, c.Results(), 1)
}

func TestRunStopsOnPreprocessFailure(t *testing.T) {

	e := newClassifierEngine(t, "UINT8")

	c, err := NewClassifier(e)
	require.NoError(t, err)

	// frame claims more pixels than its buffer holds
	bad := edgedecode.NewImage(make([]byte, 5), 10, 10, edgedecode.PixelRGB888)

	err = c.Run(bad)
	require.Error(t, err)
	assert.Equal(t, edgedecode.ErrInvalidArgument, edgedecode.CodeOf(err))
	assert.Zero(t, e.Runs())
	assert.Zero(t, c.RunTime())
	assert.Zero(t, c.PostprocessTime())
}

func TestRunLogsStageFailure(t *testing.T) {

	core, logs := observer.New(zap.WarnLevel)

	e := newClassifierEngine(t, "UINT8")

	c, err := NewClassifier(e, WithLogger(zap.New(core)))
	require.NoError(t, err)

	e.FailRun(edgedecode.ErrIO)
	require.Error(t, c.Run(nil))

	entries := logs.FilterField(zap.String("stage", "run")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "classifier", entries[0].ContextMap()["algorithm"])
}

func TestPreprocessMeanSubtraction(t *testing.T) {

	t.Run("int8 input", func(t *testing.T) {

		e := newClassifierEngine(t, "INT8")

		c, err := NewClassifier(e)
		require.NoError(t, err)
		require.NoError(t, c.Run(newFrame(12, 8, 0x10)))

		in := e.Input(0)

		for i := 0; i < in.Len(); i++ {
			require.Equal(t, float32(0x10-128), in.At(i))
		}
	})

	t.Run("uint8 input", func(t *testing.T) {

		e := newClassifierEngine(t, "UINT8")

		c, err := NewClassifier(e)
		require.NoError(t, err)
		require.NoError(t, c.Run(newFrame(12, 8, 0x10)))

		assert.Equal(t, float32(0x10), e.Input(0).At(0))
	})

	t.Run("float input", func(t *testing.T) {

		e := newClassifierEngine(t, "FP32")

		c, err := NewClassifier(e)
		require.NoError(t, err)
		require.NoError(t, c.Run(newFrame(12, 8, 255)))

		in := e.Input(0)

		for i := 0; i < in.Len(); i++ {
			require.Equal(t, float32(1), in.At(i))
		}
	})
}

func TestPreprocessRotatedFrame(t *testing.T) {

	e := newEngine(t, "UINT8", []int{1, 16, 16, 3},
		withData(tensor("UINT8", 1, 0, 1, 2), []float32{8, 8}))

	l, err := NewLandmark(e)
	require.NoError(t, err)

	frame := newFrame(32, 16, 0)
	frame.Rotation = edgedecode.Rotate90

	require.NoError(t, l.Run(frame))

	// the rotated frame is 16 wide and 32 high
	require.Len(t, l.Results(), 1)
	assert.Equal(t, uint16(8), l.Results()[0].X)
	assert.Equal(t, uint16(16), l.Results()[0].Y)
}

func TestConfig(t *testing.T) {

	c, err := NewClassifier(newClassifierEngine(t, "UINT8"),
		WithConfig(Config{ScoreThreshold: 30, IoUThreshold: 60}))
	require.NoError(t, err)

	assert.Equal(t, Config{ScoreThreshold: 30, IoUThreshold: 60}, c.Config())

	err = c.SetConfig(Config{ScoreThreshold: 101, IoUThreshold: 10})
	assert.Equal(t, edgedecode.ErrInvalidArgument, edgedecode.CodeOf(err))
	assert.Equal(t, Config{ScoreThreshold: 30, IoUThreshold: 60}, c.Config())

	require.NoError(t, c.SetScoreThreshold(80))
	require.NoError(t, c.SetIoUThreshold(20))
	assert.Equal(t, Config{ScoreThreshold: 80, IoUThreshold: 20}, c.Config())

	assert.Error(t, c.SetScoreThreshold(200))
	assert.Error(t, c.SetIoUThreshold(101))

	// class 1 at 75 is now under the threshold
	require.NoError(t, c.Run(nil))
	assert.Empty(t, c.Results())
}

func TestConstructionErrors(t *testing.T) {

	e := newClassifierEngine(t, "UINT8")

	_, err := NewClassifier(e, WithMaxResults(0))
	assert.Equal(t, edgedecode.ErrInvalidArgument, edgedecode.CodeOf(err))

	_, err = NewClassifier(e, WithConfig(Config{ScoreThreshold: 120}))
	assert.Equal(t, edgedecode.ErrInvalidArgument, edgedecode.CodeOf(err))

	_, err = NewGridHeatmap(e)
	assert.Equal(t, edgedecode.ErrInvalidArgument, edgedecode.CodeOf(err))

	int16In := newEngine(t, "INT16", []int{1, 8, 12, 3}, fp32(1, 3))
	_, err = NewClassifier(int16In)
	assert.Equal(t, edgedecode.ErrNotSupported, edgedecode.CodeOf(err))
}

func TestShortInputBuffer(t *testing.T) {

	for _, inType := range []string{"UINT8", "INT8", "FP32", "FP16"} {
		t.Run(inType, func(t *testing.T) {

			e := &shortInputEngine{Engine: newClassifierEngine(t, inType)}

			_, err := NewClassifier(e)
			assert.Equal(t, edgedecode.ErrInvalidArgument, edgedecode.CodeOf(err))
		})
	}
}

func TestDecoderBoundToAlgorithm(t *testing.T) {

	c, err := NewClassifier(newClassifierEngine(t, "FP32"))
	require.NoError(t, err)

	assert.Same(t, c, c.decoder)

	d, err := New(TypeClassifier, newClassifierEngine(t, "UINT8"))
	require.NoError(t, err)

	require.NoError(t, d.Run(nil))
	require.Len(t, d.(*Classifier).Results(), 1)
	assert.Equal(t, uint16(1), d.(*Classifier).Results()[0].Target)
}

func TestConcurrentThresholdUpdates(t *testing.T) {

	c, err := NewClassifier(newClassifierEngine(t, "UINT8"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()

		for v := uint8(0); ; v = (v + 7) % 100 {
			select {
			case <-done:
				return
			default:
				_ = c.SetScoreThreshold(v)
			}
		}
	}()

	for i := 0; i < 100; i++ {
		require.NoError(t, c.Run(nil))
		assert.LessOrEqual(t, len(c.Results()), 1)
	}

	close(done)
	wg.Wait()
}
