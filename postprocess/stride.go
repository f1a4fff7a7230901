package postprocess

import (
	"github.com/pkg/errors"
	"github.com/swdee/go-edgedecode"
	"github.com/swdee/go-edgedecode/postprocess/result"
	"gonum.org/v1/gonum/mat"
)

// strides are the downsampling factors of the detection heads
var strides = [...]int{8, 16, 32}

const (
	// strideOutputs is one score and one box tensor per stride level
	strideOutputs = 2 * len(strides)
	// dflBins is the number of distribution bins per box side
	dflBins = 16
)

var strideInfo = Info{
	Type:     TypeStride,
	Category: CategoryDetection,
	Sensor:   SensorCamera,
	Name:     "stride",
}

// strideLevel is one detection head and the tensors matched to it
type strideLevel struct {
	stride int
	split  int
	cells  int
	// boxIdx and scoreIdx are the engine output indexes, -1 until matched
	boxIdx   int
	scoreIdx int
	// boxFields is 4 for direct distances or 64 for DFL bins
	boxFields int
	classes   int
	// anchors holds the (x, y) centre of each cell in grid units
	anchors *mat.Dense
}

// strideTable returns the stride levels of a square input with the given
// side
func strideTable(side int) []strideLevel {

	levels := make([]strideLevel, len(strides))

	for i, s := range strides {
		split := side / s
		levels[i] = strideLevel{
			stride:   s,
			split:    split,
			cells:    split * split,
			boxIdx:   -1,
			scoreIdx: -1,
		}
	}

	return levels
}

// matchStrides assigns each engine output to the stride level with the same
// cell count.  Every level must receive exactly one box tensor, carrying 4
// or 64 fields, and exactly one score tensor.
func matchStrides(e edgedecode.Engine) ([]strideLevel, error) {

	side, ok := squareInput(e)

	if !ok {
		return nil, errors.Wrap(edgedecode.ErrInvalidArgument,
			"input must be square with a side divisible by 32")
	}

	if _, _, c, _ := inputDims(e); c != 3 {
		return nil, errors.Wrapf(edgedecode.ErrInvalidArgument,
			"input must have 3 channels, got %d", c)
	}

	if n := e.NumOutputs(); n != strideOutputs {
		return nil, errors.Wrapf(edgedecode.ErrInvalidArgument,
			"need %d outputs, got %d", strideOutputs, n)
	}

	levels := strideTable(side)

	for i := 0; i < strideOutputs; i++ {

		s := e.OutputShape(i)

		if s.Rank() != 3 || s.Dim(0) != 1 || s.Dim(2) < 1 {
			return nil, errors.Wrapf(edgedecode.ErrInvalidArgument,
				"output %d has shape %s", i, s)
		}

		lvl := -1

		for j := range levels {
			if levels[j].cells == s.Dim(1) {
				lvl = j
				break
			}
		}

		if lvl < 0 {
			return nil, errors.Wrapf(edgedecode.ErrInvalidArgument,
				"output %d has %d cells which matches no stride level", i, s.Dim(1))
		}

		l := &levels[lvl]
		fields := s.Dim(2)

		if fields == 4 || fields == 4*dflBins {
			if l.boxIdx >= 0 {
				return nil, errors.Wrapf(edgedecode.ErrInvalidArgument,
					"stride %d has more than one box output", l.stride)
			}

			l.boxIdx = i
			l.boxFields = fields
			continue
		}

		if l.scoreIdx >= 0 {
			return nil, errors.Wrapf(edgedecode.ErrInvalidArgument,
				"stride %d has more than one score output", l.stride)
		}

		l.scoreIdx = i
		l.classes = fields
	}

	for _, l := range levels {
		if l.boxIdx < 0 || l.scoreIdx < 0 {
			return nil, errors.Wrapf(edgedecode.ErrInvalidArgument,
				"stride %d is missing its box or score output", l.stride)
		}
	}

	return levels, nil
}

// anchorMatrix returns the cell centres of a split x split grid as a cells
// x 2 matrix
func anchorMatrix(split int) *mat.Dense {

	cells := split * split
	m := mat.NewDense(cells, 2, nil)

	for j := 0; j < cells; j++ {
		m.Set(j, 0, float64(j%split)+0.5)
		m.Set(j, 1, float64(j/split)+0.5)
	}

	return m
}

// IsStrideModel reports if the engine's shapes match a multi head stride
// detector, a square 3 channel input with a side divisible by 32 and a box
// and score output for each of the 8, 16 and 32 strides
func IsStrideModel(e edgedecode.Engine) bool {
	_, err := matchStrides(e)
	return err == nil
}

// Stride decodes a detector with one score and one box tensor per stride
// level.  Scores are pre sigmoid logits.  Box tensors hold the distances
// from the cell centre to each side, either directly or as 16 bin
// distributions decoded by their expectation.
type Stride struct {
	*Algorithm
	levels  []strideLevel
	bins    [dflBins]float32
	results []result.Box
}

// NewStride returns a stride detector decoder bound to engine e
func NewStride(e edgedecode.Engine, opts ...Option) (*Stride, error) {

	levels, err := matchStrides(e)

	if err != nil {
		return nil, errors.Wrap(err, "engine shapes do not match a stride model")
	}

	a, err := newAlgorithm(strideInfo, e, opts)

	if err != nil {
		return nil, err
	}

	for i := range levels {
		levels[i].anchors = anchorMatrix(levels[i].split)
	}

	s := &Stride{
		Algorithm: a,
		levels:    levels,
		results:   make([]result.Box, 0, a.maxResults),
	}
	a.decoder = s

	return s, nil
}

// Results returns the boxes kept after NMS over all stride levels in the
// last cycle, highest score first.  The slice is reused by the next Run.
func (s *Stride) Results() []result.Box {
	return s.results
}

func (s *Stride) postprocess() error {

	s.results = s.results[:0]
	threshold, iou := s.thresholds()

	// threshold in the pre sigmoid domain
	logit := inverseSigmoid(float32(threshold) / maxScore)

	for i := range s.levels {
		if err := s.decodeLevel(&s.levels[i], logit); err != nil {
			return err
		}
	}

	s.results = NMS(s.results, iou, threshold, false, true)
	s.results = capResults(s.results, s.maxResults)

	return nil
}

// decodeLevel appends the boxes of one stride level scoring above logit
func (s *Stride) decodeLevel(l *strideLevel, logit float32) error {

	scores := s.engine.Output(l.scoreIdx)
	scoreQ := s.engine.OutputQuantParam(l.scoreIdx)
	boxes := s.engine.Output(l.boxIdx)
	boxQ := s.engine.OutputQuantParam(l.boxIdx)

	if scores.Len() < l.cells*l.classes || boxes.Len() < l.cells*l.boxFields {
		return errors.Wrapf(edgedecode.ErrInvalidArgument,
			"stride %d outputs hold %d and %d elements", l.stride, scores.Len(), boxes.Len())
	}

	// compare raw values so cells below threshold are never dequantized
	rawThreshold := scoreQ.Quantize(logit, scores.Type)
	stride := float32(l.stride)

	for j := 0; j < l.cells; j++ {

		target, raw := argMax(scores, j*l.classes, l.classes, 1)

		if raw <= rawThreshold {
			continue
		}

		score := sigmoid(scores.Dequantize(j*l.classes+target, scoreQ)) * maxScore

		var dist [4]float32

		for side := 0; side < 4; side++ {
			if l.boxFields == 4 {
				dist[side] = boxes.Dequantize(j*4+side, boxQ)
				continue
			}

			base := j*l.boxFields + side*dflBins

			for b := 0; b < dflBins; b++ {
				s.bins[b] = boxes.Dequantize(base+b, boxQ)
			}

			dist[side] = dflExpectation(s.bins[:])
		}

		ax := float32(l.anchors.At(j, 0))
		ay := float32(l.anchors.At(j, 1))

		s.results = append(s.results, s.geo.cornerBox(
			(ax-dist[0])*stride,
			(ay-dist[1])*stride,
			(ax+dist[2])*stride,
			(ay+dist[3])*stride,
			toScore(score), target,
		))
	}

	return nil
}
