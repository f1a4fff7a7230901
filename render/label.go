package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/swdee/go-edgedecode"
	"github.com/swdee/go-edgedecode/postprocess/result"
	"gocv.io/x/gocv"
)

// Alignment is the horizontal placement of a label relative to its box
type Alignment int

const (
	Left Alignment = iota + 1
	Center
	Right
)

// Padding is the space in pixels kept around the label text
type Padding struct {
	Left, Right, Top, Bottom int
}

// Font describes how the class label of a result is drawn
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType
	Pad       Padding
	Alignment Alignment
	// ShowScore appends the score percentage to the class name
	ShowScore bool
}

// DefaultFont returns a small white font for labels placed over the left
// edge of a box, showing the score
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Color:     White,
		Thickness: 1,
		LineType:  gocv.LineAA,
		Pad:       Padding{Left: 4, Right: 4, Top: 4, Bottom: 6},
		Alignment: Left,
		ShowScore: true,
	}
}

// boxLabel is a label drawn after all boxes so it stays on top
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// text returns the label text of b
func (f Font) text(b result.Box, labels []string) string {

	name := edgedecode.Label(labels, int(b.Target))

	if !f.ShowScore {
		return name
	}

	return fmt.Sprintf("%s %d%%", name, b.Score)
}

// place returns the filled background rectangle and the text origin of a
// label of textSize sitting on the top edge of b.  A label that would leave
// the top of the image is moved inside the box.
func (f Font) place(b result.Box, textSize image.Point,
	lineThickness int) (image.Rectangle, image.Point) {

	var centerX int

	switch f.Alignment {
	case Center:
		centerX = (b.Left() + b.Right()) / 2
	case Right:
		centerX = b.Right() - textSize.X/2 - f.Pad.Right + lineThickness/2
	default:
		centerX = b.Left() + textSize.X/2 + f.Pad.Left - lineThickness/2
	}

	top := b.Top()
	height := textSize.Y + f.Pad.Top + f.Pad.Bottom

	if top-height < 0 {
		top += height
	}

	rect := image.Rect(centerX-textSize.X/2-f.Pad.Left, top-height,
		centerX+textSize.X/2+f.Pad.Right, top)

	return rect, image.Pt(centerX-textSize.X/2, top-f.Pad.Bottom)
}

// label measures and places the label of b
func (f Font) label(b result.Box, labels []string, clr color.RGBA,
	lineThickness int) boxLabel {

	text := f.text(b, labels)
	size := gocv.GetTextSize(text, f.Face, f.Scale, f.Thickness)
	rect, pos := f.place(b, size, lineThickness)

	return boxLabel{
		rect:    rect,
		clr:     clr,
		text:    text,
		textPos: pos,
	}
}

// drawLabels draws the label backgrounds and text
func drawLabels(img *gocv.Mat, boxLabels []boxLabel, font Font) {

	for _, l := range boxLabels {
		gocv.Rectangle(img, l.rect, l.clr, -1)
		gocv.PutTextWithParams(img, l.text, l.textPos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}
