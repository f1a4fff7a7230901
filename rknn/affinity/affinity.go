// Package affinity pins the process to the CPU cores of Rockchip RK35xx SoCs
package affinity

import (
	"strings"
	"syscall"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/swdee/go-edgedecode"
)

const (
	// RK3588FastCores is the cpu affinity mask of the fast cortex A76 cores 4-7
	RK3588FastCores = uintptr(0b11110000)
	// RK3588SlowCores is the cpu affinity mask of the efficient cortex A55 cores 0-3
	RK3588SlowCores = uintptr(0b00001111)
	// RK3588Allcores is the cpu affinity mask for all cortex A76 and A55 cores 0-7
	RK3588AllCores = uintptr(0b11111111)

	// RK3582FastCores is the cpu affinity mask of the fast cortex A76 cores 4-5
	RK3582FastCores = uintptr(0b00110000)
	// RK3582SlowCores is the cpu affinity mask of the efficient cortex A55 cores 0-3
	RK3582SlowCores = uintptr(0b00001111)
	// RK3582Allcores is the cpu affinity mask for all cortex A76 and A55 cores 0-5
	RK3582AllCores = uintptr(0b00111111)

	// RK3576FastCores is the cpu affinity mask of the fast cortex A72 cores 4-7
	RK3576FastCores = uintptr(0b11110000)
	// RK3576SlowCores is the cpu affinity mask of the efficient cortex A53 cores 0-3
	RK3576SlowCores = uintptr(0b00001111)
	// RK3576Allcores is the cpu affinity mask for all cortex A72 and A53 cores 0-7
	RK3576AllCores = uintptr(0b11111111)

	// RK3568AllCores is the cpu affinity mask of all cortex A55 (2Ghz) cores 0-3
	RK3568AllCores = uintptr(0b00001111)

	// RK3566AllCores is the cpu affinity mask of all cortex A55 (1.6Ghz) cores 0-3
	RK3566AllCores = uintptr(0b00001111)

	// RK3562AllCores is the cpu affinity mask of all cortex A53 cores 0-3
	RK3562AllCores = uintptr(0b00001111)
)

// CoreType specifies the CPU core type
type CoreType int

// ParseCoreType returns the CoreType named fast, slow or all
func ParseCoreType(s string) (CoreType, error) {
	switch strings.ToLower(s) {
	case "fast":
		return FastCores, nil
	case "slow":
		return SlowCores, nil
	case "all":
		return AllCores, nil
	default:
		return 0, errors.Wrapf(edgedecode.ErrInvalidArgument, "unknown core type %q", s)
	}
}

const (
	FastCores CoreType = 0
	SlowCores CoreType = 1
	AllCores  CoreType = 2
)

// coreMaskList defines a list of CPU core masks for lookup by key
var coreMaskList = map[string]map[CoreType]uintptr{
	"rk3562": {
		SlowCores: RK3562AllCores,
		FastCores: RK3562AllCores,
		AllCores:  RK3562AllCores,
	},
	"rk3566": {
		SlowCores: RK3566AllCores,
		FastCores: RK3566AllCores,
		AllCores:  RK3566AllCores,
	},
	"rk3568": {
		SlowCores: RK3568AllCores,
		FastCores: RK3568AllCores,
		AllCores:  RK3568AllCores,
	},
	"rk3576": {
		SlowCores: RK3576SlowCores,
		FastCores: RK3576FastCores,
		AllCores:  RK3576AllCores,
	},
	"rk3582": {
		SlowCores: RK3582SlowCores,
		FastCores: RK3582FastCores,
		AllCores:  RK3582AllCores,
	},
	"rk3588": {
		SlowCores: RK3588SlowCores,
		FastCores: RK3588FastCores,
		AllCores:  RK3588AllCores,
	},
}

// Set pins the program to the cores in mask
func Set(mask uintptr) error {

	_, _, err := syscall.RawSyscall(syscall.SYS_SCHED_SETAFFINITY, 0,
		unsafe.Sizeof(mask), uintptr(unsafe.Pointer(&mask)))

	if err != 0 {
		return errors.Wrap(err, "setting CPU affinity")
	}

	return nil
}

// Get returns the CPU affinity mask the program is running on
func Get() (uintptr, error) {

	var mask uintptr

	_, _, err := syscall.RawSyscall(syscall.SYS_SCHED_GETAFFINITY, 0,
		unsafe.Sizeof(mask), uintptr(unsafe.Pointer(&mask)))

	if err != 0 {
		return 0, errors.Wrap(err, "getting CPU affinity")
	}

	return mask, nil
}

// CoreMask returns the mask selecting the given core numbers, eg: []int{4,5,6,7}
func CoreMask(cores []int) uintptr {

	var mask uintptr

	for _, core := range cores {
		mask |= 1 << core
	}

	return mask
}

// SetByPlatform pins the program to the cores of the given type on
// a platform of rk3562|rk3566|rk3568|rk3576|rk3582|rk3588
func SetByPlatform(platform string, ct CoreType) error {

	mask, err := PlatformMask(platform, ct)

	if err != nil {
		return err
	}

	return Set(mask)
}

// PlatformMask returns the CPU affinity mask of the core type on the
// given platform
func PlatformMask(platform string, ct CoreType) (uintptr, error) {

	platform = strings.ToLower(strings.TrimSpace(platform))

	if masks, ok := coreMaskList[platform]; ok {
		if mask, ok := masks[ct]; ok {
			return mask, nil
		}
	}

	return 0, errors.Wrapf(edgedecode.ErrInvalidArgument, "unknown platform %q", platform)
}
