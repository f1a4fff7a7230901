// Package result defines the values produced by the decoders.  Coordinates
// are in the units of the original captured frame and scores are in the
// range 0-100.
package result

import "fmt"

// Box is a detected object.  X and Y are the centre of the box.
type Box struct {
	X      uint16
	Y      uint16
	W      uint16
	H      uint16
	Score  uint8
	Target uint16
}

// Left returns the x coordinate of the left edge, which may be negative
// for a box reaching past the frame
func (b Box) Left() int {
	return int(b.X) - int(b.W)/2
}

// Top returns the y coordinate of the top edge
func (b Box) Top() int {
	return int(b.Y) - int(b.H)/2
}

// Right returns the x coordinate of the right edge
func (b Box) Right() int {
	return b.Left() + int(b.W)
}

// Bottom returns the y coordinate of the bottom edge
func (b Box) Bottom() int {
	return b.Top() + int(b.H)
}

// String returns the box formatted for logging
func (b Box) String() string {
	return fmt.Sprintf("box(x=%d, y=%d, w=%d, h=%d, score=%d, target=%d)",
		b.X, b.Y, b.W, b.H, b.Score, b.Target)
}

// KeyPoint is a single landmark or body keypoint
type KeyPoint struct {
	X      uint16
	Y      uint16
	Score  uint8
	Target uint16
	// Visibility is the model's visibility estimate for the keypoint, 0-100.
	// Decoders without a visibility output leave it at 100.
	Visibility uint8
}

// String returns the keypoint formatted for logging
func (k KeyPoint) String() string {
	return fmt.Sprintf("point(x=%d, y=%d, score=%d, target=%d)",
		k.X, k.Y, k.Score, k.Target)
}

// Class is a whole frame classification score
type Class struct {
	Score  uint8
	Target uint16
}

// String returns the class formatted for logging
func (c Class) String() string {
	return fmt.Sprintf("class(score=%d, target=%d)", c.Score, c.Target)
}

// Pose is a detected object together with its keypoints.  The keypoint
// list ends with the top left and bottom right corners of Box.
type Pose struct {
	Box       Box
	KeyPoints []KeyPoint
}
