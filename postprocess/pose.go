package postprocess

import (
	"math"

	"github.com/pkg/errors"
	"github.com/swdee/go-edgedecode"
	"github.com/swdee/go-edgedecode/postprocess/result"
)

// poseBoxFields are cx, cy, w, h and score ahead of the keypoints
const poseBoxFields = 5

var poseInfo = Info{
	Type:     TypePose,
	Category: CategoryPose,
	Sensor:   SensorCamera,
	Name:     "pose",
}

// Pose decodes a fused box and keypoint tensor of shape [1, 5+3K, N] where
// each of the N detections holds a box, its score and K (x, y, visibility)
// keypoints.  Each decoded pose ends with two extra keypoints, the top left
// and bottom right corners of its box, with Targets K and K+1.
type Pose struct {
	*Algorithm
	detections int
	keypoints  int
	boxes      []result.Box
	points     []result.KeyPoint
	results    []result.Pose
}

// IsPoseModel reports if the engine's shapes match a pose detector, a square
// input with a side divisible by 32 and one [1, 5+3K, N] output where N is
// the cell count of the 8, 16 and 32 stride grids
func IsPoseModel(e edgedecode.Engine) bool {

	side, ok := squareInput(e)

	if !ok || e.NumOutputs() != 1 {
		return false
	}

	out := e.OutputShape(0)
	n := strideCells(side)
	fields := out.Dim(1)

	// the detection index is carried in a box Target during NMS
	return out.Rank() == 3 &&
		out.Dim(0) == 1 &&
		out.Dim(2) == n &&
		n <= math.MaxUint16 &&
		fields >= poseBoxFields+3 &&
		(fields-poseBoxFields)%3 == 0
}

// NewPose returns a pose decoder bound to engine e
func NewPose(e edgedecode.Engine, opts ...Option) (*Pose, error) {

	if !IsPoseModel(e) {
		return nil, errors.Wrap(edgedecode.ErrInvalidArgument,
			"engine shapes do not match a pose model")
	}

	a, err := newAlgorithm(poseInfo, e, opts)

	if err != nil {
		return nil, err
	}

	out := e.OutputShape(0)
	k := (out.Dim(1) - poseBoxFields) / 3

	p := &Pose{
		Algorithm:  a,
		detections: out.Dim(2),
		keypoints:  k,
		boxes:      make([]result.Box, 0, a.maxResults),
		points:     make([]result.KeyPoint, 0, a.maxResults*(k+2)),
		results:    make([]result.Pose, 0, a.maxResults),
	}
	a.decoder = p

	return p, nil
}

// KeyPointCount returns the number of keypoints the model predicts per
// object, excluding the two box corners
func (p *Pose) KeyPointCount() int {
	return p.keypoints
}

// Results returns the poses kept after NMS in the last cycle, highest score
// first.  The slice and the keypoints it references are reused by the next
// Run.
func (p *Pose) Results() []result.Pose {
	return p.results
}

func (p *Pose) postprocess() error {

	p.boxes = p.boxes[:0]
	p.points = p.points[:0]
	p.results = p.results[:0]

	threshold, iou := p.thresholds()

	out := p.engine.Output(0)
	q := p.engine.OutputQuantParam(0)
	n := p.detections

	if out.Len() < (poseBoxFields+3*p.keypoints)*n {
		return errors.Wrapf(edgedecode.ErrInvalidArgument,
			"pose output holds %d elements", out.Len())
	}

	scoreFactor := rescaleFactor(q, maxScore)
	fx, fy := float32(1), float32(1)

	if p.normalizedCoords {
		fx = rescaleFactor(q, float32(p.geo.inputW))
		fy = rescaleFactor(q, float32(p.geo.inputH))
	}

	for i := 0; i < n; i++ {

		score := out.Dequantize(4*n+i, q) * scoreFactor

		if score <= float32(threshold) {
			continue
		}

		// Target holds the detection index until keypoints are decoded
		p.boxes = append(p.boxes, p.geo.box(
			out.Dequantize(i, q)*fx,
			out.Dequantize(n+i, q)*fy,
			out.Dequantize(2*n+i, q)*fx,
			out.Dequantize(3*n+i, q)*fy,
			toScore(score), i,
		))
	}

	p.boxes = NMS(p.boxes, iou, threshold, false, false)
	p.boxes = capResults(p.boxes, p.maxResults)

	for _, b := range p.boxes {

		i := int(b.Target)
		b.Target = 0
		start := len(p.points)

		for k := 0; k < p.keypoints; k++ {

			field := poseBoxFields + k*3

			p.points = append(p.points, result.KeyPoint{
				X:          p.geo.x(out.Dequantize(field*n+i, q) * fx),
				Y:          p.geo.y(out.Dequantize((field+1)*n+i, q) * fy),
				Score:      b.Score,
				Target:     uint16(k),
				Visibility: toScore(out.Dequantize((field+2)*n+i, q) * scoreFactor),
			})
		}

		p.points = append(p.points,
			p.corner(b.Left(), b.Top(), b.Score, p.keypoints),
			p.corner(b.Right(), b.Bottom(), b.Score, p.keypoints+1),
		)

		end := len(p.points)

		p.results = append(p.results, result.Pose{
			Box:       b,
			KeyPoints: p.points[start:end:end],
		})
	}

	return nil
}

// corner returns a box corner as a keypoint clipped to the frame
func (p *Pose) corner(x, y int, score uint8, target int) result.KeyPoint {
	return result.KeyPoint{
		X:          toCoord(clamp(float32(x), 0, float32(p.geo.frameW))),
		Y:          toCoord(clamp(float32(y), 0, float32(p.geo.frameH))),
		Score:      score,
		Target:     uint16(target),
		Visibility: maxScore,
	}
}
