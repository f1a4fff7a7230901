package edgedecode

import "fmt"

// PixelFormat is the encoding of an Image's pixel buffer
type PixelFormat int

const (
	PixelRGB888 PixelFormat = iota
	PixelRGB565
	PixelGray
	PixelYUV422
	PixelJPEG
)

// String returns a readable description of the PixelFormat
func (p PixelFormat) String() string {
	switch p {
	case PixelRGB888:
		return "RGB888"
	case PixelRGB565:
		return "RGB565"
	case PixelGray:
		return "GRAY"
	case PixelYUV422:
		return "YUV422"
	case PixelJPEG:
		return "JPEG"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(p))
	}
}

// BytesPerPixel returns the size of one pixel, or 0 for compressed formats
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case PixelRGB888:
		return 3
	case PixelRGB565, PixelYUV422:
		return 2
	case PixelGray:
		return 1
	default:
		return 0
	}
}

// Rotation is the clockwise rotation to apply to a captured frame
type Rotation int

const (
	Rotate0 Rotation = iota
	Rotate90
	Rotate180
	Rotate270
)

// Image is a captured frame or a model input buffer.  The pixel buffer is
// owned by whoever created the Image.
type Image struct {
	// Data is the pixel buffer
	Data []byte
	// Width is the image width in pixels
	Width int
	// Height is the image height in pixels
	Height int
	// Size is the number of valid bytes in Data
	Size int
	// Format is the pixel encoding of Data
	Format PixelFormat
	// Rotation is applied to the image when it is converted
	Rotation Rotation
}

// NewImage returns an Image over data sized for the given geometry
func NewImage(data []byte, width, height int, format PixelFormat) *Image {
	return &Image{
		Data:   data,
		Width:  width,
		Height: height,
		Size:   width * height * format.BytesPerPixel(),
		Format: format,
	}
}

// RotatedSize returns the width and height of the image once its Rotation
// has been applied
func (img *Image) RotatedSize() (int, int) {

	if img.Rotation == Rotate90 || img.Rotation == Rotate270 {
		return img.Height, img.Width
	}

	return img.Width, img.Height
}

// Converter converts a source frame into the geometry and pixel format of
// dst, applying the source rotation.  dst.Data must already be allocated.
type Converter interface {
	Convert(src, dst *Image) error
}
