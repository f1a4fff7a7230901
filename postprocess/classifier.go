package postprocess

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/swdee/go-edgedecode"
	"github.com/swdee/go-edgedecode/postprocess/result"
)

var classifierInfo = Info{
	Type:     TypeClassifier,
	Category: CategoryClassification,
	Sensor:   SensorCamera,
	Name:     "classifier",
}

// Classifier decodes a whole frame classification vector
type Classifier struct {
	*Algorithm
	results []result.Class
}

// IsClassifierModel reports if the engine's shapes match a classifier, one
// [1, C] output with two or more classes
func IsClassifierModel(e edgedecode.Engine) bool {

	if _, _, _, ok := inputDims(e); !ok || e.NumOutputs() != 1 {
		return false
	}

	out := e.OutputShape(0)

	return out.Rank() == 2 && out.Dim(0) == 1 && out.Dim(1) >= 2
}

// NewClassifier returns a classifier decoder bound to engine e
func NewClassifier(e edgedecode.Engine, opts ...Option) (*Classifier, error) {

	if !IsClassifierModel(e) {
		return nil, errors.Wrap(edgedecode.ErrInvalidArgument,
			"engine shapes do not match a classifier model")
	}

	a, err := newAlgorithm(classifierInfo, e, opts)

	if err != nil {
		return nil, err
	}

	c := &Classifier{
		Algorithm: a,
		results:   make([]result.Class, 0, a.maxResults),
	}
	a.decoder = c

	return c, nil
}

// Results returns the classes scoring above the threshold in the last
// cycle, highest score first.  The slice is reused by the next Run.
func (c *Classifier) Results() []result.Class {
	return c.results
}

func (c *Classifier) postprocess() error {

	c.results = c.results[:0]
	threshold, _ := c.thresholds()

	classes := c.engine.OutputShape(0).Dim(1)
	out := c.engine.Output(0)
	q := c.engine.OutputQuantParam(0)

	if out.Len() < classes {
		return errors.Wrapf(edgedecode.ErrInvalidArgument,
			"classifier output holds %d elements, need %d", out.Len(), classes)
	}

	factor := rescaleFactor(q, maxScore)

	for i := 0; i < classes; i++ {

		score := out.Dequantize(i, q) * factor

		if score <= float32(threshold) {
			continue
		}

		c.results = append(c.results, result.Class{
			Score:  toScore(score),
			Target: uint16(i),
		})
	}

	slices.SortStableFunc(c.results, func(a, b result.Class) int {
		return int(b.Score) - int(a.Score)
	})

	c.results = capResults(c.results, c.maxResults)

	return nil
}
