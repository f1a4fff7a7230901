package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-edgedecode/postprocess/result"
	"github.com/swdee/go-edgedecode/replay"
)

func TestDecoupled(t *testing.T) {

	const anchors, classes = 21, 2

	boxes := make([]float32, anchors*4)
	copy(boxes[0:], []float32{4, 4, 12, 12})
	copy(boxes[4:], []float32{4, 4, 12, 12})
	// IoU 62 with the first anchor
	copy(boxes[8:], []float32{5, 5, 13, 13})

	scores := make([]float32, anchors*classes)
	scores[0*classes+0] = 0.75
	scores[1*classes+1] = 0.625
	scores[2*classes+0] = 0.5625

	boxSpec := withData(fp32(1, anchors, 4), boxes)
	scoreSpec := withData(fp32(1, anchors, classes), scores)

	want := []result.Box{
		{X: 8, Y: 8, W: 8, H: 8, Score: 75, Target: 0},
		{X: 8, Y: 8, W: 8, H: 8, Score: 62, Target: 1},
	}

	tests := []struct {
		name    string
		outputs []replay.TensorSpec
	}{
		{"boxes first", []replay.TensorSpec{boxSpec, scoreSpec}},
		{"scores first", []replay.TensorSpec{scoreSpec, boxSpec}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {

			e := newEngine(t, "UINT8", []int{1, 32, 32, 3}, tc.outputs...)

			d, err := NewDecoupled(e)
			require.NoError(t, err)
			require.NoError(t, d.Run(nil))

			assert.Equal(t, want, d.Results())
		})
	}
}

func TestDecoupledClipsCorners(t *testing.T) {

	boxes := make([]float32, 21*4)
	copy(boxes, []float32{-8, -8, 40, 16})

	scores := make([]float32, 21)
	scores[0] = 0.75

	e := newEngine(t, "UINT8", []int{1, 32, 32, 3},
		withData(fp32(1, 21, 4), boxes),
		withData(fp32(1, 21, 1), scores))

	d, err := NewDecoupled(e)
	require.NoError(t, err)
	require.NoError(t, d.Run(newFrame(64, 64, 0)))

	// corners clipped to (0, 0) (32, 16) then doubled to the frame
	assert.Equal(t, []result.Box{
		{X: 32, Y: 16, W: 64, H: 32, Score: 75, Target: 0},
	}, d.Results())
}
