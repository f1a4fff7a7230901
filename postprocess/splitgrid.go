package postprocess

import (
	"github.com/pkg/errors"
	"github.com/swdee/go-edgedecode"
	"github.com/swdee/go-edgedecode/postprocess/result"
)

// splitGridDownsample is the ratio between the input and grid sides
const splitGridDownsample = 16

var splitGridInfo = Info{
	Type:     TypeSplitGrid,
	Category: CategoryDetection,
	Sensor:   SensorCamera,
	Name:     "split-grid",
}

// SplitGridParams defines the box encoding constants of a split grid model
type SplitGridParams struct {
	// Stride is the input pixel size of one grid cell
	Stride float32
	// Offset is added to the cell origin to give its reference point
	Offset float32
	// Scale multiplies the encoded side distances
	Scale float32
	// Gate is the confidence, 0-100, a slot must exceed before it is
	// decoded.  It applies in addition to the configured score threshold.
	Gate float32
}

// DefaultSplitGridParams returns the constants used by split grid models
// with a 16 pixel cell
func DefaultSplitGridParams() SplitGridParams {
	return SplitGridParams{
		Stride: 16,
		Offset: 0.5,
		Scale:  35,
		Gate:   10,
	}
}

// SplitGrid decodes a detector with a [1, H/16, W/16, C] confidence tensor
// and a [1, H/16, W/16, 4C] box tensor.  Each cell holds one box slot per
// class encoded as distances from the cell reference point to the box
// sides.
type SplitGrid struct {
	*Algorithm
	// Params are the box encoding constants
	Params  SplitGridParams
	gridH   int
	gridW   int
	classes int
	confIdx int
	boxIdx  int
	results []result.Box
}

// splitGridLayout returns the confidence and box output indexes of a split
// grid model
func splitGridLayout(e edgedecode.Engine) (int, int, bool) {

	h, w, _, ok := inputDims(e)

	if !ok || h%splitGridDownsample != 0 || w%splitGridDownsample != 0 ||
		e.NumOutputs() != 2 {
		return 0, 0, false
	}

	for i := 0; i < 2; i++ {
		s := e.OutputShape(i)

		if s.Rank() != 4 || s.Dim(0) != 1 || s.Dim(3) < 1 ||
			s.Dim(1) != h/splitGridDownsample || s.Dim(2) != w/splitGridDownsample {
			return 0, 0, false
		}
	}

	c0, c1 := e.OutputShape(0).Dim(3), e.OutputShape(1).Dim(3)

	switch {
	case c1 == 4*c0:
		return 0, 1, true
	case c0 == 4*c1:
		return 1, 0, true
	}

	return 0, 0, false
}

// IsSplitGridModel reports if the engine's shapes match a split grid
// detector, an input with sides divisible by 16 and a confidence and box
// output over the same H/16 x W/16 grid
func IsSplitGridModel(e edgedecode.Engine) bool {
	_, _, ok := splitGridLayout(e)
	return ok
}

// NewSplitGrid returns a split grid decoder bound to engine e
func NewSplitGrid(e edgedecode.Engine, opts ...Option) (*SplitGrid, error) {

	confIdx, boxIdx, ok := splitGridLayout(e)

	if !ok {
		return nil, errors.Wrap(edgedecode.ErrInvalidArgument,
			"engine shapes do not match a split grid model")
	}

	a, err := newAlgorithm(splitGridInfo, e, opts)

	if err != nil {
		return nil, err
	}

	conf := e.OutputShape(confIdx)

	g := &SplitGrid{
		Algorithm: a,
		Params:    DefaultSplitGridParams(),
		gridH:     conf.Dim(1),
		gridW:     conf.Dim(2),
		classes:   conf.Dim(3),
		confIdx:   confIdx,
		boxIdx:    boxIdx,
		results:   make([]result.Box, 0, a.maxResults),
	}
	a.decoder = g

	return g, nil
}

// Results returns the boxes kept after NMS in the last cycle, highest score
// first.  The slice is reused by the next Run.
func (g *SplitGrid) Results() []result.Box {
	return g.results
}

func (g *SplitGrid) postprocess() error {

	g.results = g.results[:0]
	threshold, iou := g.thresholds()

	conf := g.engine.Output(g.confIdx)
	confQ := g.engine.OutputQuantParam(g.confIdx)
	boxes := g.engine.Output(g.boxIdx)
	boxQ := g.engine.OutputQuantParam(g.boxIdx)

	cells := g.gridH * g.gridW

	if conf.Len() < cells*g.classes || boxes.Len() < cells*g.classes*4 {
		return errors.Wrapf(edgedecode.ErrInvalidArgument,
			"split grid outputs hold %d and %d elements", conf.Len(), boxes.Len())
	}

	factor := rescaleFactor(confQ, maxScore)
	p := g.Params

	for gy := 0; gy < g.gridH; gy++ {
		for gx := 0; gx < g.gridW; gx++ {

			cell := gy*g.gridW + gx
			cx := float32(gx)*p.Stride + p.Offset
			cy := float32(gy)*p.Stride + p.Offset

			for c := 0; c < g.classes; c++ {

				score := conf.Dequantize(cell*g.classes+c, confQ) * factor

				if score <= p.Gate || score <= float32(threshold) {
					continue
				}

				base := (cell*g.classes + c) * 4

				g.results = append(g.results, g.geo.cornerBox(
					cx-boxes.Dequantize(base, boxQ)*p.Scale,
					cy-boxes.Dequantize(base+1, boxQ)*p.Scale,
					cx+boxes.Dequantize(base+2, boxQ)*p.Scale,
					cy+boxes.Dequantize(base+3, boxQ)*p.Scale,
					toScore(score), c,
				))
			}
		}
	}

	g.results = NMS(g.results, iou, threshold, false, true)
	g.results = capResults(g.results, g.maxResults)

	return nil
}
