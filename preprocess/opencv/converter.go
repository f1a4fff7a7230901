// Package opencv provides an edgedecode.Converter backed by OpenCV through
// gocv.  It is kept apart from the pure Go converter so packages that do not
// need it build without cgo.
package opencv

import (
	"image"

	"github.com/pkg/errors"
	"github.com/swdee/go-edgedecode"
	"gocv.io/x/gocv"
)

// MatConverter converts frames using OpenCV
type MatConverter struct {
	// Interpolation is the resize interpolation, defaults to
	// gocv.InterpolationArea
	Interpolation gocv.InterpolationFlags
	// srcMat, rgbMat, rotMat and outMat are reused between calls
	srcMat gocv.Mat
	rgbMat gocv.Mat
	rotMat gocv.Mat
	outMat gocv.Mat
}

// NewMatConverter returns a MatConverter.  Close must be called to free the
// Mats it allocates.
func NewMatConverter() *MatConverter {
	return &MatConverter{
		Interpolation: gocv.InterpolationArea,
		srcMat:        gocv.NewMat(),
		rgbMat:        gocv.NewMat(),
		rotMat:        gocv.NewMat(),
		outMat:        gocv.NewMat(),
	}
}

// Close frees memory allocated by the converter
func (c *MatConverter) Close() error {

	for _, m := range []*gocv.Mat{&c.srcMat, &c.rgbMat, &c.rotMat, &c.outMat} {
		if err := m.Close(); err != nil {
			return err
		}
	}

	return nil
}

// Convert writes src, rotated and resized, into dst.  dst must be RGB888 or
// GRAY with its Data already allocated.
func (c *MatConverter) Convert(src, dst *edgedecode.Image) error {

	if src == nil || dst == nil {
		return errors.Wrap(edgedecode.ErrInvalidArgument, "nil image")
	}

	if dst.Format != edgedecode.PixelRGB888 && dst.Format != edgedecode.PixelGray {
		return errors.Wrapf(edgedecode.ErrNotSupported, "convert to %s", dst.Format)
	}

	need := dst.Width * dst.Height * dst.Format.BytesPerPixel()

	if dst.Width <= 0 || dst.Height <= 0 || len(dst.Data) < need {
		return errors.Wrapf(edgedecode.ErrInvalidArgument,
			"destination buffer holds %d bytes, need %d", len(dst.Data), need)
	}

	if err := c.toRGB(src); err != nil {
		return err
	}

	rotated := c.rgbMat

	switch src.Rotation {
	case edgedecode.Rotate90:
		gocv.Rotate(c.rgbMat, &c.rotMat, gocv.Rotate90Clockwise)
		rotated = c.rotMat
	case edgedecode.Rotate180:
		gocv.Rotate(c.rgbMat, &c.rotMat, gocv.Rotate180Clockwise)
		rotated = c.rotMat
	case edgedecode.Rotate270:
		gocv.Rotate(c.rgbMat, &c.rotMat, gocv.Rotate90CounterClockwise)
		rotated = c.rotMat
	}

	gocv.Resize(rotated, &c.outMat, image.Pt(dst.Width, dst.Height),
		0, 0, c.Interpolation)

	if dst.Format == edgedecode.PixelGray {
		gocv.CvtColor(c.outMat, &c.outMat, gocv.ColorRGBToGray)
	}

	data := c.outMat.ToBytes()

	if len(data) < need {
		return errors.Wrapf(edgedecode.ErrIO,
			"opencv produced %d bytes, need %d", len(data), need)
	}

	copy(dst.Data, data[:need])

	return nil
}

// toRGB loads src into rgbMat as 8 bit RGB
func (c *MatConverter) toRGB(src *edgedecode.Image) error {

	if src.Format == edgedecode.PixelJPEG {
		data := src.Data

		if src.Size > 0 && src.Size <= len(data) {
			data = data[:src.Size]
		}

		bgr, err := gocv.IMDecode(data, gocv.IMReadColor)

		if err != nil {
			return errors.Wrapf(edgedecode.ErrInvalidArgument, "decode jpeg: %v", err)
		}

		defer bgr.Close()

		if bgr.Empty() {
			return errors.Wrap(edgedecode.ErrInvalidArgument, "decode jpeg: empty image")
		}

		gocv.CvtColor(bgr, &c.rgbMat, gocv.ColorBGRToRGB)
		return nil
	}

	var matType gocv.MatType
	var code gocv.ColorConversionCode

	switch src.Format {
	case edgedecode.PixelRGB888:
		matType = gocv.MatTypeCV8UC3
	case edgedecode.PixelGray:
		matType, code = gocv.MatTypeCV8UC1, gocv.ColorGrayToBGR
	case edgedecode.PixelRGB565:
		matType, code = gocv.MatTypeCV8UC2, gocv.ColorBGR565ToRGB
	case edgedecode.PixelYUV422:
		matType, code = gocv.MatTypeCV8UC2, gocv.ColorYUVToRGBYUYV
	default:
		return errors.Wrapf(edgedecode.ErrNotSupported, "convert from %s", src.Format)
	}

	need := src.Width * src.Height * src.Format.BytesPerPixel()

	if src.Width <= 0 || src.Height <= 0 || len(src.Data) < need {
		return errors.Wrapf(edgedecode.ErrInvalidArgument,
			"%s frame %dx%d with %d bytes", src.Format, src.Width, src.Height, len(src.Data))
	}

	mat, err := gocv.NewMatFromBytes(src.Height, src.Width, matType, src.Data[:need])

	if err != nil {
		return errors.Wrapf(edgedecode.ErrInvalidArgument, "wrap frame: %v", err)
	}

	defer mat.Close()

	if src.Format == edgedecode.PixelRGB888 {
		mat.CopyTo(&c.rgbMat)
		return nil
	}

	gocv.CvtColor(mat, &c.rgbMat, code)

	return nil
}
