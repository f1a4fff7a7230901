package postprocess

import (
	"github.com/pkg/errors"
	"github.com/swdee/go-edgedecode"
	"github.com/swdee/go-edgedecode/postprocess/result"
)

const (
	// anchorsPerCell is the number of anchor boxes predicted for each cell
	anchorsPerCell = 3
	// anchorGridMinFields is a record of box, objectness and one class
	anchorGridMinFields = 6
	// anchorGridMaxFields is a record of box, objectness and 80 classes
	anchorGridMaxFields = 85
)

var anchorGridInfo = Info{
	Type:     TypeAnchorGrid,
	Category: CategoryDetection,
	Sensor:   SensorCamera,
	Name:     "anchor-grid",
}

// AnchorGrid decodes a single fused detection tensor where each record is
// [cx, cy, w, h, objectness, class scores...].  The tensor is either record
// major [1, R, F] or channel major [1, F, R].
type AnchorGrid struct {
	*Algorithm
	records     int
	fields      int
	recordMajor bool
	results     []result.Box
}

// anchorGridLayout returns the record count, field count and layout of an
// anchor grid model
func anchorGridLayout(e edgedecode.Engine) (int, int, bool, bool) {

	side, ok := squareInput(e)

	if !ok || e.NumOutputs() != 1 {
		return 0, 0, false, false
	}

	out := e.OutputShape(0)

	if out.Rank() != 3 || out.Dim(0) != 1 {
		return 0, 0, false, false
	}

	records := anchorsPerCell * strideCells(side)
	validFields := func(f int) bool {
		return f >= anchorGridMinFields && f <= anchorGridMaxFields
	}

	switch {
	case out.Dim(1) == records && validFields(out.Dim(2)):
		return records, out.Dim(2), true, true
	case out.Dim(2) == records && validFields(out.Dim(1)):
		return records, out.Dim(1), false, true
	}

	return 0, 0, false, false
}

// IsAnchorGridModel reports if the engine's shapes match an anchor grid
// detector, a square input with a side divisible by 32 and one output
// holding 3 records per cell over the 8, 16 and 32 stride grids
func IsAnchorGridModel(e edgedecode.Engine) bool {
	_, _, _, ok := anchorGridLayout(e)
	return ok
}

// NewAnchorGrid returns an anchor grid decoder bound to engine e
func NewAnchorGrid(e edgedecode.Engine, opts ...Option) (*AnchorGrid, error) {

	records, fields, recordMajor, ok := anchorGridLayout(e)

	if !ok {
		return nil, errors.Wrap(edgedecode.ErrInvalidArgument,
			"engine shapes do not match an anchor grid model")
	}

	a, err := newAlgorithm(anchorGridInfo, e, opts)

	if err != nil {
		return nil, err
	}

	g := &AnchorGrid{
		Algorithm:   a,
		records:     records,
		fields:      fields,
		recordMajor: recordMajor,
		results:     make([]result.Box, 0, a.maxResults),
	}
	a.decoder = g

	return g, nil
}

// Results returns the boxes kept after NMS in the last cycle, highest score
// first.  The slice is reused by the next Run.
func (g *AnchorGrid) Results() []result.Box {
	return g.results
}

// index returns the tensor index of field f of record r
func (g *AnchorGrid) index(r, f int) int {

	if g.recordMajor {
		return r*g.fields + f
	}

	return f*g.records + r
}

func (g *AnchorGrid) postprocess() error {

	g.results = g.results[:0]
	threshold, iou := g.thresholds()

	out := g.engine.Output(0)
	q := g.engine.OutputQuantParam(0)

	if out.Len() < g.records*g.fields {
		return errors.Wrapf(edgedecode.ErrInvalidArgument,
			"detection output holds %d elements, need %d", out.Len(), g.records*g.fields)
	}

	scoreFactor := rescaleFactor(q, maxScore)
	fx, fy := float32(1), float32(1)

	if g.normalizedCoords {
		fx = rescaleFactor(q, float32(g.geo.inputW))
		fy = rescaleFactor(q, float32(g.geo.inputH))
	}

	classStride := g.records

	if g.recordMajor {
		classStride = 1
	}

	for r := 0; r < g.records; r++ {

		score := out.Dequantize(g.index(r, 4), q) * scoreFactor

		if score <= float32(threshold) {
			continue
		}

		target, _ := argMax(out, g.index(r, 5), g.fields-5, classStride)

		g.results = append(g.results, g.geo.box(
			out.Dequantize(g.index(r, 0), q)*fx,
			out.Dequantize(g.index(r, 1), q)*fy,
			out.Dequantize(g.index(r, 2), q)*fx,
			out.Dequantize(g.index(r, 3), q)*fy,
			toScore(score), target,
		))
	}

	g.results = NMS(g.results, iou, threshold, false, true)
	g.results = capResults(g.results, g.maxResults)

	return nil
}
