// Package render draws decoded results onto a gocv.Mat
package render

import (
	"image"

	"github.com/swdee/go-edgedecode/postprocess/result"
	"gocv.io/x/gocv"
)

// Boxes draws each box with a label of its class name and score
func Boxes(img *gocv.Mat, boxes []result.Box, labels []string, font Font,
	lineThickness int) {

	boxLabels := make([]boxLabel, 0, len(boxes))

	for _, b := range boxes {
		boxLabels = append(boxLabels, drawBox(img, b, labels, font, lineThickness))
	}

	drawLabels(img, boxLabels, font)
}

// drawBox draws the outline of b and returns its pending label
func drawBox(img *gocv.Mat, b result.Box, labels []string, font Font,
	lineThickness int) boxLabel {

	clr := targetColor(b.Target)

	gocv.Rectangle(img, image.Rect(b.Left(), b.Top(), b.Right(), b.Bottom()),
		clr, lineThickness)

	return font.label(b, labels, clr, lineThickness)
}
