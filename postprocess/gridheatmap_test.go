package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-edgedecode/postprocess/result"
)

func TestGridHeatmapSingleCell(t *testing.T) {

	const grid, channels = 8, 3

	data := make([]float32, grid*grid*channels)
	at := func(row, col, ch int) int {
		return (row*grid+col)*channels + ch
	}

	// 218/256 dequantizes to a score of 85
	data[at(2, 3, 1)] = 218
	// background wins this cell
	data[at(0, 0, 0)] = 250
	data[at(0, 0, 2)] = 240
	// below threshold
	data[at(5, 5, 2)] = 100

	e := newEngine(t, "UINT8", []int{1, 64, 64, 3},
		withData(tensor("UINT8", 1.0/256, 0, 1, grid, grid, channels), data))

	g, err := NewGridHeatmap(e, WithConfig(Config{ScoreThreshold: 80, IoUThreshold: 45}))
	require.NoError(t, err)

	require.NoError(t, g.Run(nil))

	assert.Equal(t, []result.Box{
		{X: 28, Y: 20, W: 8, H: 8, Score: 85, Target: 1},
	}, g.Results())
}

func TestGridHeatmapSortedByX(t *testing.T) {

	const grid, channels = 4, 2

	data := make([]float32, grid*grid*channels)

	for _, cell := range []int{3, 1, 14, 8} {
		data[cell*channels+1] = 0.9
	}

	e := newEngine(t, "UINT8", []int{1, 32, 32, 1},
		withData(fp32(1, grid, grid, channels), data))

	g, err := NewGridHeatmap(e)
	require.NoError(t, err)
	require.NoError(t, g.Run(nil))

	results := g.Results()
	require.Len(t, results, 4)

	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].X, results[i].X)
	}
}

func TestGridHeatmapScalesToFrame(t *testing.T) {

	const grid, channels = 2, 2

	data := make([]float32, grid*grid*channels)
	data[(1*grid+1)*channels+1] = 0.75

	e := newEngine(t, "UINT8", []int{1, 16, 16, 3},
		withData(fp32(1, grid, grid, channels), data))

	g, err := NewGridHeatmap(e)
	require.NoError(t, err)

	frame := newFrame(64, 32, 10)
	require.NoError(t, g.Run(frame))

	assert.Equal(t, []result.Box{
		{X: 48, Y: 24, W: 32, H: 16, Score: 75, Target: 1},
	}, g.Results())
}

func TestGridHeatmapPercentScores(t *testing.T) {

	const grid, channels = 8, 3

	data := make([]float32, grid*grid*channels)
	data[(2*grid+3)*channels+1] = 5
	data[(6*grid+1)*channels+2] = 90

	// a scale of 1 means the heatmap already holds percentages
	e := newEngine(t, "UINT8", []int{1, 64, 64, 3},
		withData(tensor("UINT8", 1, 0, 1, grid, grid, channels), data))

	g, err := NewGridHeatmap(e, WithConfig(Config{ScoreThreshold: 80, IoUThreshold: 45}))
	require.NoError(t, err)
	require.NoError(t, g.Run(nil))

	assert.Equal(t, []result.Box{
		{X: 12, Y: 52, W: 8, H: 8, Score: 90, Target: 2},
	}, g.Results())
}
