package affinity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-edgedecode"
)

func TestCoreMask(t *testing.T) {
	assert.Equal(t, RK3588FastCores, CoreMask([]int{4, 5, 6, 7}))
	assert.Equal(t, RK3582AllCores, CoreMask([]int{0, 1, 2, 3, 4, 5}))
	assert.Equal(t, uintptr(0), CoreMask(nil))
}

func TestPlatformMask(t *testing.T) {

	tests := []struct {
		platform string
		ct       CoreType
		want     uintptr
	}{
		{"rk3588", FastCores, RK3588FastCores},
		{" RK3588 ", SlowCores, RK3588SlowCores},
		{"rk3576", AllCores, RK3576AllCores},
		{"rk3566", FastCores, RK3566AllCores},
	}

	for _, tc := range tests {
		mask, err := PlatformMask(tc.platform, tc.ct)
		require.NoError(t, err, tc.platform)
		assert.Equal(t, tc.want, mask, tc.platform)
	}

	_, err := PlatformMask("rk1808", FastCores)
	assert.Equal(t, edgedecode.ErrInvalidArgument, edgedecode.CodeOf(err))
}

func TestParseCoreType(t *testing.T) {

	ct, err := ParseCoreType("Fast")
	require.NoError(t, err)
	assert.Equal(t, FastCores, ct)

	ct, err = ParseCoreType("all")
	require.NoError(t, err)
	assert.Equal(t, AllCores, ct)

	_, err = ParseCoreType("medium")
	assert.Error(t, err)
}
