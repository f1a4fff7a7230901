package postprocess

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/swdee/go-edgedecode"
	"github.com/swdee/go-edgedecode/postprocess/result"
)

// gridHeatmapDownsample is the ratio between the input and heatmap sides
const gridHeatmapDownsample = 8

var gridHeatmapInfo = Info{
	Type:     TypeGridHeatmap,
	Category: CategoryDetection,
	Sensor:   SensorCamera,
	Name:     "grid-heatmap",
}

// GridHeatmap decodes a dense per cell classification heatmap into one fixed
// size box per cell whose winning channel is not the background channel 0.
// Box Target is the winning channel index.
type GridHeatmap struct {
	*Algorithm
	results []result.Box
}

// IsGridHeatmapModel reports if the engine's shapes match a grid heatmap
// model, an input of at least 16x16 and one [1, H/8, W/8, T] output with two
// or more channels
func IsGridHeatmapModel(e edgedecode.Engine) bool {

	h, w, _, ok := inputDims(e)

	if !ok || h < 16 || w < 16 || e.NumOutputs() != 1 {
		return false
	}

	out := e.OutputShape(0)

	return out.Rank() == 4 &&
		out.Dim(0) == 1 &&
		out.Dim(1) == h/gridHeatmapDownsample &&
		out.Dim(2) == w/gridHeatmapDownsample &&
		out.Dim(3) >= 2
}

// NewGridHeatmap returns a grid heatmap decoder bound to engine e
func NewGridHeatmap(e edgedecode.Engine, opts ...Option) (*GridHeatmap, error) {

	if !IsGridHeatmapModel(e) {
		return nil, errors.Wrap(edgedecode.ErrInvalidArgument,
			"engine shapes do not match a grid heatmap model")
	}

	a, err := newAlgorithm(gridHeatmapInfo, e, opts)

	if err != nil {
		return nil, err
	}

	g := &GridHeatmap{
		Algorithm: a,
		results:   make([]result.Box, 0, a.maxResults),
	}
	a.decoder = g

	return g, nil
}

// Results returns the boxes of the last cycle sorted by ascending X.  The
// slice is reused by the next Run.
func (g *GridHeatmap) Results() []result.Box {
	return g.results
}

func (g *GridHeatmap) postprocess() error {

	g.results = g.results[:0]
	threshold, _ := g.thresholds()

	shape := g.engine.OutputShape(0)
	gridH, gridW, channels := shape.Dim(1), shape.Dim(2), shape.Dim(3)

	out := g.engine.Output(0)
	q := g.engine.OutputQuantParam(0)

	if out.Len() < gridH*gridW*channels {
		return errors.Wrapf(edgedecode.ErrInvalidArgument,
			"heatmap holds %d elements, shape %s", out.Len(), shape)
	}

	scoreFactor := rescaleFactor(q, maxScore)
	cellW := float32(g.geo.inputW) / float32(gridW)
	cellH := float32(g.geo.inputH) / float32(gridH)

	for i := 0; i < gridH; i++ {
		for j := 0; j < gridW; j++ {

			offset := (i*gridW + j) * channels
			target, _ := argMax(out, offset, channels, 1)

			if target == 0 {
				continue
			}

			score := out.Dequantize(offset+target, q) * scoreFactor

			if score <= float32(threshold) {
				continue
			}

			g.results = append(g.results, g.geo.box(
				(float32(j)+0.5)*cellW,
				(float32(i)+0.5)*cellH,
				cellW, cellH,
				toScore(score), target,
			))
		}
	}

	slices.SortStableFunc(g.results, func(a, b result.Box) int {
		return int(a.X) - int(b.X)
	})

	g.results = capResults(g.results, g.maxResults)

	return nil
}
