package postprocess

import (
	"slices"

	"github.com/swdee/go-edgedecode/postprocess/result"
)

// IoU returns the Intersection over Union of two boxes as a percentage.
// Box edges are computed in signed arithmetic so boxes reaching past the
// frame origin do not wrap.
func IoU(a, b result.Box) uint8 {

	x1 := max(a.Left(), b.Left())
	y1 := max(a.Top(), b.Top())
	x2 := min(a.Right(), b.Right())
	y2 := min(a.Bottom(), b.Bottom())

	w := max(x2-x1, 0)
	h := max(y2-y1, 0)
	inter := w * h

	union := int(a.W)*int(a.H) + int(b.W)*int(b.H) - inter

	if union <= 0 {
		return 0
	}

	return uint8(inter * 100 / union)
}

// NMS implements greedy Non-Maximum Suppression over boxes.
//
// The boxes are stably sorted by descending score, then each box in turn
// suppresses every later box whose IoU with it exceeds iouThreshold.  When
// multiTarget is set only boxes of the same Target suppress each other.
// Hard suppression zeroes the later box's score.  Soft suppression decays it
// by (1 - iou/100) and drops it once it falls below scoreThreshold.
//
// Zero score boxes are removed and the compacted boxes are returned as a
// re-slice of the input, so no memory is allocated.
func NMS(boxes []result.Box, iouThreshold, scoreThreshold uint8,
	soft, multiTarget bool) []result.Box {

	slices.SortStableFunc(boxes, func(a, b result.Box) int {
		return int(b.Score) - int(a.Score)
	})

	for i := range boxes {

		if boxes[i].Score == 0 {
			continue
		}

		for j := i + 1; j < len(boxes); j++ {

			if boxes[j].Score == 0 {
				continue
			}

			if multiTarget && boxes[i].Target != boxes[j].Target {
				continue
			}

			iou := IoU(boxes[i], boxes[j])

			if iou <= iouThreshold {
				continue
			}

			if !soft {
				boxes[j].Score = 0
				continue
			}

			decayed := uint8(int(boxes[j].Score) * (100 - int(iou)) / 100)

			if decayed < scoreThreshold {
				decayed = 0
			}

			boxes[j].Score = decayed
		}
	}

	kept := boxes[:0]

	for _, b := range boxes {
		if b.Score != 0 {
			kept = append(kept, b)
		}
	}

	return kept
}
