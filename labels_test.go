package edgedecode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLabels(t *testing.T) {

	file := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(file, []byte("person\n\n car \n"), 0o644))

	labels, err := LoadLabels(file)
	require.NoError(t, err)
	assert.Equal(t, []string{"person", "", "car"}, labels)

	assert.Equal(t, "person", Label(labels, 0))
	assert.Equal(t, "class 1", Label(labels, 1))
	assert.Equal(t, "car", Label(labels, 2))
	assert.Equal(t, "class 3", Label(labels, 3))
	assert.Equal(t, "class -1", Label(labels, -1))
}

func TestLoadLabelsMissing(t *testing.T) {
	_, err := LoadLabels(filepath.Join(t.TempDir(), "none.txt"))
	assert.Error(t, err)
}

func TestImageGeometry(t *testing.T) {

	img := NewImage(make([]byte, 4*2*2), 4, 2, PixelRGB565)
	assert.Equal(t, 16, img.Size)

	w, h := img.RotatedSize()
	assert.Equal(t, []int{4, 2}, []int{w, h})

	img.Rotation = Rotate90
	w, h = img.RotatedSize()
	assert.Equal(t, []int{2, 4}, []int{w, h})

	img.Rotation = Rotate180
	w, h = img.RotatedSize()
	assert.Equal(t, []int{4, 2}, []int{w, h})

	assert.Equal(t, 0, PixelJPEG.BytesPerPixel())
	assert.Equal(t, "YUV422", PixelYUV422.String())
	assert.Equal(t, "PixelFormat(9)", PixelFormat(9).String())
}
