package postprocess

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-edgedecode/postprocess/result"
)

func TestIoU(t *testing.T) {

	tests := []struct {
		name string
		a, b result.Box
		want uint8
	}{
		{"identical", result.Box{X: 10, Y: 10, W: 10, H: 10}, result.Box{X: 10, Y: 10, W: 10, H: 10}, 100},
		{"disjoint", result.Box{X: 10, Y: 10, W: 10, H: 10}, result.Box{X: 50, Y: 50, W: 10, H: 10}, 0},
		{"touching", result.Box{X: 10, Y: 10, W: 10, H: 10}, result.Box{X: 20, Y: 10, W: 10, H: 10}, 0},
		// intersection 50, union 150
		{"half overlap", result.Box{X: 10, Y: 10, W: 10, H: 10}, result.Box{X: 15, Y: 10, W: 10, H: 10}, 33},
		// box reaching past the origin
		{"negative edge", result.Box{X: 2, Y: 2, W: 10, H: 10}, result.Box{X: 2, Y: 2, W: 10, H: 10}, 100},
		{"empty", result.Box{}, result.Box{}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IoU(tc.a, tc.b))
			assert.Equal(t, tc.want, IoU(tc.b, tc.a))
		})
	}
}

func TestNMSSuppressesOverlap(t *testing.T) {

	// 100 wide boxes offset by 25 give intersection 75 x 100 and union
	// 125 x 100, an IoU of 60
	low := result.Box{X: 125, Y: 100, W: 100, H: 100, Score: 70, Target: 1}
	high := result.Box{X: 100, Y: 100, W: 100, H: 100, Score: 90, Target: 2}

	require.Equal(t, uint8(60), IoU(low, high))

	boxes := NMS([]result.Box{low, high}, 50, 0, false, false)

	require.Len(t, boxes, 1)
	assert.Equal(t, high, boxes[0])
}

func TestNMSMultiTarget(t *testing.T) {

	a := result.Box{X: 100, Y: 100, W: 100, H: 100, Score: 90, Target: 1}
	b := result.Box{X: 105, Y: 100, W: 100, H: 100, Score: 80, Target: 2}
	c := result.Box{X: 102, Y: 100, W: 100, H: 100, Score: 70, Target: 1}

	boxes := NMS([]result.Box{c, b, a}, 50, 0, false, true)

	assert.Equal(t, []result.Box{a, b}, boxes)
}

func TestNMSSortsStable(t *testing.T) {

	a := result.Box{X: 10, Y: 10, W: 4, H: 4, Score: 50, Target: 1}
	b := result.Box{X: 100, Y: 10, W: 4, H: 4, Score: 80, Target: 2}
	c := result.Box{X: 200, Y: 10, W: 4, H: 4, Score: 50, Target: 3}
	zero := result.Box{X: 300, Y: 10, W: 4, H: 4, Score: 0}

	boxes := NMS([]result.Box{a, zero, b, c}, 50, 0, false, false)

	assert.Equal(t, []result.Box{b, a, c}, boxes)
}

func TestNMSInPlace(t *testing.T) {

	in := []result.Box{
		{X: 100, Y: 100, W: 100, H: 100, Score: 90},
		{X: 101, Y: 100, W: 100, H: 100, Score: 80},
	}

	out := NMS(in, 50, 0, false, false)

	require.Len(t, out, 1)
	assert.Same(t, &in[0], &out[0])
}

func TestSoftNMS(t *testing.T) {

	high := result.Box{X: 100, Y: 100, W: 100, H: 100, Score: 90}
	// IoU 60 with high, decays to 80 x 0.4 = 32
	mid := result.Box{X: 125, Y: 100, W: 100, H: 100, Score: 80}
	// IoU 60 with high, decays to 60 x 0.4 = 24 which is under 30
	low := result.Box{X: 100, Y: 125, W: 100, H: 100, Score: 60}

	boxes := NMS([]result.Box{low, mid, high}, 50, 30, true, false)

	require.Len(t, boxes, 2)
	assert.Equal(t, uint8(90), boxes[0].Score)
	assert.Equal(t, uint16(125), boxes[1].X)
	assert.Equal(t, uint8(32), boxes[1].Score)
}

// randomBoxes returns n boxes clustered so many of them overlap
func randomBoxes(r *rand.Rand, n int) []result.Box {

	boxes := make([]result.Box, n)

	for i := range boxes {
		boxes[i] = result.Box{
			X:      uint16(50 + r.Intn(100)),
			Y:      uint16(50 + r.Intn(100)),
			W:      uint16(10 + r.Intn(60)),
			H:      uint16(10 + r.Intn(60)),
			Score:  uint8(1 + r.Intn(100)),
			Target: uint16(r.Intn(3)),
		}
	}

	return boxes
}

func TestNMSProperties(t *testing.T) {

	r := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {

		iou := uint8(r.Intn(101))
		multi := trial%2 == 0

		kept := NMS(randomBoxes(r, 40), iou, 0, false, multi)

		for i := range kept {
			for j := i + 1; j < len(kept); j++ {

				if multi && kept[i].Target != kept[j].Target {
					continue
				}

				require.LessOrEqual(t, IoU(kept[i], kept[j]), iou,
					"trial %d boxes %s and %s", trial, kept[i], kept[j])
			}
		}

		again := NMS(append([]result.Box(nil), kept...), iou, 0, false, multi)

		require.Equal(t, kept, again, "trial %d not idempotent", trial)
	}
}

func TestSoftNMSNeverRaisesScores(t *testing.T) {

	r := rand.New(rand.NewSource(7))

	for trial := 0; trial < 200; trial++ {

		boxes := randomBoxes(r, 30)

		// highest original score of each box geometry
		type key struct{ x, y, w, h, target uint16 }
		orig := make(map[key]uint8)

		for _, b := range boxes {
			k := key{b.X, b.Y, b.W, b.H, b.Target}

			if s, ok := orig[k]; !ok || b.Score > s {
				orig[k] = b.Score
			}
		}

		kept := NMS(boxes, uint8(r.Intn(101)), uint8(r.Intn(50)), true, false)

		for _, b := range kept {
			k := key{b.X, b.Y, b.W, b.H, b.Target}
			require.LessOrEqual(t, b.Score, orig[k])
			require.NotZero(t, b.Score)
		}
	}
}
