package render

import (
	"image"

	"github.com/swdee/go-edgedecode/postprocess/result"
	"gocv.io/x/gocv"
)

/* COCO skeleton keypoints
0: Nose
1: Left Eye
2: Right Eye
3: Left Ear
4: Right Ear
5: Left Shoulder
6: Right Shoulder
7: Left Elbow
8: Right Elbow
9: Left Wrist
10: Right Wrist
11: Left Hip
12: Right Hip
13: Left Knee
14: Right Knee
15: Left Ankle
16: Right Ankle
*/

var (
	// skeleton pairs the 1 based keypoints to join with a line, so (16,14)
	// draws a line from the right ankle to the right knee
	skeleton = [38]int{16, 14, 14, 12, 17, 15, 15, 13, 12, 13, 6, 12, 7, 13, 6, 7, 6, 8,
		7, 9, 8, 10, 9, 11, 2, 3, 1, 2, 1, 3, 2, 4, 3, 5, 4, 6, 5, 7}
	// skeletonPoints is the number of keypoints of a COCO skeleton
	skeletonPoints = 17
)

// Poses draws each pose's box and keypoints.  Keypoints with a visibility
// below minVisibility are skipped, and skeletons are joined with limbs when
// the model produces the 17 COCO keypoints.
func Poses(img *gocv.Mat, poses []result.Pose, labels []string, font Font,
	lineThickness int, minVisibility uint8) {

	boxLabels := make([]boxLabel, 0, len(poses))

	for _, p := range poses {

		boxLabels = append(boxLabels, drawBox(img, p.Box, labels, font, lineThickness))

		// the last two keypoints are the box corners
		points := p.KeyPoints

		if len(points) >= 2 {
			points = points[:len(points)-2]
		}

		if len(points) == skeletonPoints {
			drawSkeleton(img, points, lineThickness, minVisibility)
		}

		for i, k := range points {

			if k.Visibility < minVisibility {
				continue
			}

			clr := targetColor(k.Target)

			if len(points) == skeletonPoints {
				clr = keyPointColors[i]
			}

			gocv.Circle(img, image.Pt(int(k.X), int(k.Y)), 3, clr, -1)
		}
	}

	drawLabels(img, boxLabels, font)
}

// drawSkeleton joins the visible keypoints of a COCO skeleton
func drawSkeleton(img *gocv.Mat, points []result.KeyPoint, lineThickness int,
	minVisibility uint8) {

	for j := 0; j < len(skeleton)/2; j++ {

		a := points[skeleton[2*j]-1]
		b := points[skeleton[2*j+1]-1]

		if a.Visibility < minVisibility || b.Visibility < minVisibility {
			continue
		}

		gocv.Line(img, image.Pt(int(a.X), int(a.Y)), image.Pt(int(b.X), int(b.Y)),
			limbColors[j], lineThickness)
	}
}

// Landmarks draws a filled circle at each landmark
func Landmarks(img *gocv.Mat, points []result.KeyPoint, radius int) {

	for _, k := range points {
		gocv.Circle(img, image.Pt(int(k.X), int(k.Y)), radius, targetColor(k.Target), -1)
	}
}
