package preprocess

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/swdee/go-edgedecode"
	"golang.org/x/image/draw"
)

// Converter is a pure Go edgedecode.Converter.  It decodes the source
// frame, applies its rotation with imaging and scales it to the destination
// size with bilinear interpolation.  A Converter is not safe for concurrent
// use as it reuses its scaling buffer between calls.
type Converter struct {
	// Interpolator is used to scale frames, defaults to draw.ApproxBiLinear
	Interpolator draw.Interpolator
	scaled       *image.NRGBA
}

// NewConverter returns a Converter using bilinear scaling
func NewConverter() *Converter {
	return &Converter{
		Interpolator: draw.ApproxBiLinear,
	}
}

// Convert writes src, rotated and scaled, into dst.  dst must be RGB888 or
// GRAY with its Data already allocated.
func (c *Converter) Convert(src, dst *edgedecode.Image) error {

	if src == nil || dst == nil {
		return errors.Wrap(edgedecode.ErrInvalidArgument, "nil image")
	}

	if dst.Format != edgedecode.PixelRGB888 && dst.Format != edgedecode.PixelGray {
		return errors.Wrapf(edgedecode.ErrNotSupported,
			"convert to %s", dst.Format)
	}

	need := dst.Width * dst.Height * dst.Format.BytesPerPixel()

	if dst.Width <= 0 || dst.Height <= 0 || len(dst.Data) < need {
		return errors.Wrapf(edgedecode.ErrInvalidArgument,
			"destination buffer holds %d bytes, need %d", len(dst.Data), need)
	}

	// unrotated frames already in the destination geometry are copied
	if src.Format == dst.Format && src.Rotation == edgedecode.Rotate0 &&
		src.Width == dst.Width && src.Height == dst.Height && len(src.Data) >= need {
		copy(dst.Data, src.Data[:need])
		return nil
	}

	img, err := Decode(src)

	if err != nil {
		return err
	}

	img = rotate(img, src.Rotation)

	if c.scaled == nil || c.scaled.Rect.Dx() != dst.Width || c.scaled.Rect.Dy() != dst.Height {
		c.scaled = image.NewNRGBA(image.Rect(0, 0, dst.Width, dst.Height))
	}

	interp := c.Interpolator

	if interp == nil {
		interp = draw.ApproxBiLinear
	}

	interp.Scale(c.scaled, c.scaled.Rect, img, img.Bounds(), draw.Src, nil)

	pix := c.scaled.Pix

	for i := 0; i < dst.Width*dst.Height; i++ {

		r, g, b := pix[i*4], pix[i*4+1], pix[i*4+2]

		if dst.Format == edgedecode.PixelGray {
			dst.Data[i] = color.GrayModel.Convert(color.NRGBA{R: r, G: g, B: b, A: 0xff}).(color.Gray).Y
			continue
		}

		dst.Data[i*3] = r
		dst.Data[i*3+1] = g
		dst.Data[i*3+2] = b
	}

	return nil
}

// rotate applies a clockwise rotation.  imaging rotates counter clockwise.
func rotate(img image.Image, r edgedecode.Rotation) image.Image {
	switch r {
	case edgedecode.Rotate90:
		return imaging.Rotate270(img)
	case edgedecode.Rotate180:
		return imaging.Rotate180(img)
	case edgedecode.Rotate270:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// Decode returns src as an image.Image.  Rotation is not applied.
func Decode(src *edgedecode.Image) (image.Image, error) {

	if src.Format == edgedecode.PixelJPEG {
		data := src.Data

		if src.Size > 0 && src.Size <= len(data) {
			data = data[:src.Size]
		}

		img, _, err := image.Decode(bytes.NewReader(data))

		if err != nil {
			return nil, errors.Wrapf(edgedecode.ErrInvalidArgument, "decode jpeg: %v", err)
		}

		return img, nil
	}

	w, h := src.Width, src.Height
	need := w * h * src.Format.BytesPerPixel()

	if w <= 0 || h <= 0 || need == 0 || len(src.Data) < need {
		return nil, errors.Wrapf(edgedecode.ErrInvalidArgument,
			"%s frame %dx%d with %d bytes", src.Format, w, h, len(src.Data))
	}

	switch src.Format {
	case edgedecode.PixelGray:
		return &image.Gray{
			Pix:    src.Data[:need],
			Stride: w,
			Rect:   image.Rect(0, 0, w, h),
		}, nil

	case edgedecode.PixelRGB888:
		img := image.NewNRGBA(image.Rect(0, 0, w, h))

		for i := 0; i < w*h; i++ {
			copy(img.Pix[i*4:i*4+3], src.Data[i*3:i*3+3])
			img.Pix[i*4+3] = 0xff
		}

		return img, nil

	case edgedecode.PixelRGB565:
		img := image.NewNRGBA(image.Rect(0, 0, w, h))

		for i := 0; i < w*h; i++ {
			v := binary.LittleEndian.Uint16(src.Data[i*2:])
			img.Pix[i*4] = uint8(v>>11&0x1f) << 3
			img.Pix[i*4+1] = uint8(v>>5&0x3f) << 2
			img.Pix[i*4+2] = uint8(v&0x1f) << 3
			img.Pix[i*4+3] = 0xff
		}

		return img, nil

	case edgedecode.PixelYUV422:
		// packed YUYV, two pixels share one U and V sample
		img := image.NewNRGBA(image.Rect(0, 0, w, h))

		for i := 0; i+1 < w*h; i += 2 {
			y0 := src.Data[i*2]
			u := src.Data[i*2+1]
			y1 := src.Data[i*2+2]
			v := src.Data[i*2+3]

			r, g, b := color.YCbCrToRGB(y0, u, v)
			copy(img.Pix[i*4:], []uint8{r, g, b, 0xff})

			r, g, b = color.YCbCrToRGB(y1, u, v)
			copy(img.Pix[(i+1)*4:], []uint8{r, g, b, 0xff})
		}

		return img, nil
	}

	return nil, errors.Wrapf(edgedecode.ErrNotSupported, "decode %s", src.Format)
}

// FromImage returns img as an RGB888 frame
func FromImage(img image.Image) *edgedecode.Image {

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	data := make([]byte, w*h*3)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := (y*w + x) * 3
			data[i] = c.R
			data[i+1] = c.G
			data[i+2] = c.B
		}
	}

	return edgedecode.NewImage(data, w, h, edgedecode.PixelRGB888)
}
