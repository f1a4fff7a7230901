package postprocess

import (
	"github.com/pkg/errors"
	"github.com/swdee/go-edgedecode"
	"github.com/swdee/go-edgedecode/postprocess/result"
)

var landmarkInfo = Info{
	Type:     TypeLandmark,
	Category: CategoryPose,
	Sensor:   SensorCamera,
	Name:     "landmark",
}

// Landmark decodes a vector of (x, y) pairs into one keypoint per pair.
// There is no thresholding, every pair is emitted with a score of 100 and
// its pair index as Target.
type Landmark struct {
	*Algorithm
	results []result.KeyPoint
}

// IsLandmarkModel reports if the engine's shapes match a landmark regressor,
// a square input and one [1, 2N] output
func IsLandmarkModel(e edgedecode.Engine) bool {

	h, w, _, ok := inputDims(e)

	if !ok || h != w || e.NumOutputs() != 1 {
		return false
	}

	out := e.OutputShape(0)
	n := out.Dim(1)

	return out.Rank() == 2 && out.Dim(0) == 1 && n >= 2 && n%2 == 0
}

// NewLandmark returns a landmark decoder bound to engine e
func NewLandmark(e edgedecode.Engine, opts ...Option) (*Landmark, error) {

	if !IsLandmarkModel(e) {
		return nil, errors.Wrap(edgedecode.ErrInvalidArgument,
			"engine shapes do not match a landmark model")
	}

	a, err := newAlgorithm(landmarkInfo, e, opts)

	if err != nil {
		return nil, err
	}

	l := &Landmark{
		Algorithm: a,
		results:   make([]result.KeyPoint, 0, e.OutputShape(0).Dim(1)/2),
	}
	a.decoder = l

	return l, nil
}

// Results returns the keypoints of the last cycle in output order.  The
// slice is reused by the next Run.
func (l *Landmark) Results() []result.KeyPoint {
	return l.results
}

func (l *Landmark) postprocess() error {

	l.results = l.results[:0]

	n := l.engine.OutputShape(0).Dim(1)
	out := l.engine.Output(0)
	q := l.engine.OutputQuantParam(0)

	if out.Len() < n {
		return errors.Wrapf(edgedecode.ErrInvalidArgument,
			"landmark output holds %d elements, need %d", out.Len(), n)
	}

	fx := rescaleFactor(q, float32(l.geo.inputW))
	fy := rescaleFactor(q, float32(l.geo.inputH))

	for i := 0; i < n/2; i++ {
		l.results = append(l.results, result.KeyPoint{
			X:          l.geo.x(out.Dequantize(i*2, q) * fx),
			Y:          l.geo.y(out.Dequantize(i*2+1, q) * fy),
			Score:      maxScore,
			Target:     uint16(i),
			Visibility: maxScore,
		})
	}

	return nil
}
