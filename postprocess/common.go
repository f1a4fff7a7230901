package postprocess

import (
	"github.com/chewxy/math32"
	"github.com/swdee/go-edgedecode"
	"github.com/swdee/go-edgedecode/postprocess/result"
)

const (
	// normalizedScaleLimit is the quantization scale below which an output
	// tensor is treated as holding normalized (0-1) values rather than
	// percentages or pixels
	normalizedScaleLimit = 0.1
	// maxScore is the top of the score range
	maxScore = 100
)

// rescaleFactor returns full when the quantization scale indicates a
// normalized output, otherwise 1.  Scores use full=100, coordinates use the
// input dimension.
func rescaleFactor(q edgedecode.QuantParam, full float32) float32 {

	if q.Scale < normalizedScaleLimit {
		return full
	}

	return 1
}

// clamp restricts val to the range min and max
func clamp(val, min, max float32) float32 {
	return math32.Max(min, math32.Min(max, val))
}

// toScore converts a percentage to a score, saturating at 0 and 100
func toScore(v float32) uint8 {
	return uint8(clamp(v, 0, maxScore))
}

// toCoord converts a frame coordinate to its unsigned 16 bit encoding
func toCoord(v float32) uint16 {
	return uint16(clamp(v, 0, 65535))
}

// geometry holds the model input and original frame dimensions used to
// bring decoded coordinates back to frame units
type geometry struct {
	inputW int
	inputH int
	frameW int
	frameH int
}

// ratioW returns the scale factor from input x coordinates to frame x
// coordinates
func (g geometry) ratioW() float32 {

	if g.inputW == 0 {
		return 1
	}

	return float32(g.frameW) / float32(g.inputW)
}

// ratioH returns the scale factor from input y coordinates to frame y
// coordinates
func (g geometry) ratioH() float32 {

	if g.inputH == 0 {
		return 1
	}

	return float32(g.frameH) / float32(g.inputH)
}

// x clips an input x coordinate to the input width then scales it to the
// frame
func (g geometry) x(v float32) uint16 {
	return toCoord(clamp(v, 0, float32(g.inputW)) * g.ratioW())
}

// y clips an input y coordinate to the input height then scales it to the
// frame
func (g geometry) y(v float32) uint16 {
	return toCoord(clamp(v, 0, float32(g.inputH)) * g.ratioH())
}

// argMax returns the index and raw value of the largest of count elements
// of t starting at offset, stepping by stride.  Ties keep the first index.
func argMax(t edgedecode.Tensor, offset, count, stride int) (int, float32) {

	best := 0
	bestVal := t.At(offset)

	for i := 1; i < count; i++ {
		if v := t.At(offset + i*stride); v > bestVal {
			best = i
			bestVal = v
		}
	}

	return best, bestVal
}

// box clips the centre box (cx, cy, w, h) given in input coordinates and
// scales it to the frame
func (g geometry) box(cx, cy, w, h float32, score uint8, target int) result.Box {
	return result.Box{
		X:      g.x(cx),
		Y:      g.y(cy),
		W:      g.x(w),
		H:      g.y(h),
		Score:  score,
		Target: uint16(target),
	}
}

// cornerBox converts the corner pair (x1, y1) (x2, y2) given in input
// coordinates into a frame box.  Corners are clipped to the input bounds
// before conversion.
func (g geometry) cornerBox(x1, y1, x2, y2 float32, score uint8, target int) result.Box {

	x1 = clamp(x1, 0, float32(g.inputW))
	x2 = clamp(x2, 0, float32(g.inputW))
	y1 = clamp(y1, 0, float32(g.inputH))
	y2 = clamp(y2, 0, float32(g.inputH))

	return g.box((x1+x2)/2, (y1+y2)/2, x2-x1, y2-y1, score, target)
}
