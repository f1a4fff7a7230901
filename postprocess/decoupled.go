package postprocess

import (
	"github.com/pkg/errors"
	"github.com/swdee/go-edgedecode"
	"github.com/swdee/go-edgedecode/postprocess/result"
)

var decoupledInfo = Info{
	Type:     TypeDecoupled,
	Category: CategoryDetection,
	Sensor:   SensorCamera,
	Name:     "decoupled",
}

// Decoupled decodes a detector with separate box and score tensors.  Boxes
// are [1, N, 4] corner pairs (x1, y1, x2, y2) in input pixels and scores are
// [1, N, C] where the class count C is only known from the model.
type Decoupled struct {
	*Algorithm
	anchors  int
	classes  int
	boxIdx   int
	scoreIdx int
	results  []result.Box
}

// decoupledLayout returns the box and score output indexes of a decoupled
// model
func decoupledLayout(e edgedecode.Engine) (int, int, bool) {

	side, ok := squareInput(e)

	if !ok || e.NumOutputs() != 2 {
		return 0, 0, false
	}

	anchors := strideCells(side)

	for i := 0; i < 2; i++ {
		s := e.OutputShape(i)

		if s.Rank() != 3 || s.Dim(0) != 1 || s.Dim(1) != anchors || s.Dim(2) < 1 {
			return 0, 0, false
		}
	}

	if e.OutputShape(0).Dim(2) == 4 {
		return 0, 1, true
	}

	if e.OutputShape(1).Dim(2) == 4 {
		return 1, 0, true
	}

	return 0, 0, false
}

// IsDecoupledModel reports if the engine's shapes match a decoupled
// detector, a square input with a side divisible by 32 and two outputs
// sharing the anchor count of the 8, 16 and 32 stride grids
func IsDecoupledModel(e edgedecode.Engine) bool {
	_, _, ok := decoupledLayout(e)
	return ok
}

// NewDecoupled returns a decoupled detector decoder bound to engine e
func NewDecoupled(e edgedecode.Engine, opts ...Option) (*Decoupled, error) {

	boxIdx, scoreIdx, ok := decoupledLayout(e)

	if !ok {
		return nil, errors.Wrap(edgedecode.ErrInvalidArgument,
			"engine shapes do not match a decoupled model")
	}

	a, err := newAlgorithm(decoupledInfo, e, opts)

	if err != nil {
		return nil, err
	}

	d := &Decoupled{
		Algorithm: a,
		anchors:   e.OutputShape(scoreIdx).Dim(1),
		classes:   e.OutputShape(scoreIdx).Dim(2),
		boxIdx:    boxIdx,
		scoreIdx:  scoreIdx,
		results:   make([]result.Box, 0, a.maxResults),
	}
	a.decoder = d

	return d, nil
}

// Results returns the boxes kept after NMS in the last cycle, highest score
// first.  The slice is reused by the next Run.
func (d *Decoupled) Results() []result.Box {
	return d.results
}

func (d *Decoupled) postprocess() error {

	d.results = d.results[:0]
	threshold, iou := d.thresholds()

	boxes := d.engine.Output(d.boxIdx)
	boxQ := d.engine.OutputQuantParam(d.boxIdx)
	scores := d.engine.Output(d.scoreIdx)
	scoreQ := d.engine.OutputQuantParam(d.scoreIdx)

	if boxes.Len() < d.anchors*4 || scores.Len() < d.anchors*d.classes {
		return errors.Wrapf(edgedecode.ErrInvalidArgument,
			"decoupled outputs hold %d and %d elements", boxes.Len(), scores.Len())
	}

	factor := rescaleFactor(scoreQ, maxScore)

	// every class is swept over every anchor
	for c := 0; c < d.classes; c++ {
		for n := 0; n < d.anchors; n++ {

			score := scores.Dequantize(n*d.classes+c, scoreQ) * factor

			if score <= float32(threshold) {
				continue
			}

			d.results = append(d.results, d.geo.cornerBox(
				boxes.Dequantize(n*4, boxQ),
				boxes.Dequantize(n*4+1, boxQ),
				boxes.Dequantize(n*4+2, boxQ),
				boxes.Dequantize(n*4+3, boxQ),
				toScore(score), c,
			))
		}
	}

	d.results = NMS(d.results, iou, threshold, false, true)
	d.results = capResults(d.results, d.maxResults)

	return nil
}
