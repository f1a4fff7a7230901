// Package rknn runs RKNN compiled models on the Rockchip NPU and exposes
// them as an edgedecode.Engine
package rknn

/*
#cgo LDFLAGS: -lrknnrt
#include "rknn_api.h"
#include <stdlib.h>
*/
import "C"
import (
	"fmt"
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/swdee/go-edgedecode"
	"go.uber.org/zap"
)

// CoreMask wraps C.rknn_core_mask
type CoreMask int

// rknn_core_mask values used to target which cores on the NPU the model is run
// on. The rk3588 has three cores, auto will pick an idle core to run the model
// on, whilst the others specify the specific core or combined number of cores
// to run.
const (
	NPUCoreAuto    CoreMask = C.RKNN_NPU_CORE_AUTO
	NPUCore0       CoreMask = C.RKNN_NPU_CORE_0
	NPUCore1       CoreMask = C.RKNN_NPU_CORE_1
	NPUCore2       CoreMask = C.RKNN_NPU_CORE_2
	NPUCore01      CoreMask = C.RKNN_NPU_CORE_0_1
	NPUCore012     CoreMask = C.RKNN_NPU_CORE_0_1_2
	NPUSkipSetCore CoreMask = 9999
)

// ErrorCodes are the result codes returned by the C API
type ErrorCodes int

// error code values returned by the C API
const (
	Success                ErrorCodes = C.RKNN_SUCC
	ErrFail                ErrorCodes = C.RKNN_ERR_FAIL
	ErrTimeout             ErrorCodes = C.RKNN_ERR_TIMEOUT
	ErrDeviceUnavailable   ErrorCodes = C.RKNN_ERR_DEVICE_UNAVAILABLE
	ErrMallocFail          ErrorCodes = C.RKNN_ERR_MALLOC_FAIL
	ErrParamInvalid        ErrorCodes = C.RKNN_ERR_PARAM_INVALID
	ErrModelInvalid        ErrorCodes = C.RKNN_ERR_MODEL_INVALID
	ErrCtxInvalid          ErrorCodes = C.RKNN_ERR_CTX_INVALID
	ErrInputInvalid        ErrorCodes = C.RKNN_ERR_INPUT_INVALID
	ErrOutputInvalid       ErrorCodes = C.RKNN_ERR_OUTPUT_INVALID
	ErrDeviceMismatch      ErrorCodes = C.RKNN_ERR_DEVICE_UNMATCH
	ErrPreCompiledModel    ErrorCodes = C.RKNN_ERR_INCOMPATILE_PRE_COMPILE_MODEL
	ErrOptimizationVersion ErrorCodes = C.RKNN_ERR_INCOMPATILE_OPTIMIZATION_LEVEL_VERSION
	ErrPlatformMismatch    ErrorCodes = C.RKNN_ERR_TARGET_PLATFORM_UNMATCH
)

// String returns a readable description of the error code
func (e ErrorCodes) String() string {
	switch e {
	case Success:
		return "execution successful"
	case ErrFail:
		return "execution failed"
	case ErrTimeout:
		return "execution timed out"
	case ErrDeviceUnavailable:
		return "device is unavailable"
	case ErrMallocFail:
		return "C memory allocation failed"
	case ErrParamInvalid:
		return "parameter is invalid"
	case ErrModelInvalid:
		return "model file is invalid"
	case ErrCtxInvalid:
		return "context is invalid"
	case ErrInputInvalid:
		return "input is invalid"
	case ErrOutputInvalid:
		return "output is invalid"
	case ErrDeviceMismatch:
		return "device mismatch, please update rknn sdk and npu driver/firmware"
	case ErrPreCompiledModel:
		return "the RKNN model uses pre_compile mode, but is not compatible with current driver"
	case ErrOptimizationVersion:
		return "the RKNN model optimization level is not compatible with current driver"
	case ErrPlatformMismatch:
		return "the RKNN model target platform is not compatible with the current platform"
	default:
		return fmt.Sprintf("unknown error code %d", int(e))
	}
}

// Code maps the C API result onto the pipeline error codes
func (e ErrorCodes) Code() edgedecode.ErrorCode {
	switch e {
	case Success:
		return edgedecode.OK
	case ErrTimeout:
		return edgedecode.ErrTimeout
	case ErrMallocFail:
		return edgedecode.ErrOutOfMemory
	case ErrParamInvalid, ErrInputInvalid, ErrOutputInvalid, ErrModelInvalid, ErrCtxInvalid:
		return edgedecode.ErrInvalidArgument
	case ErrDeviceMismatch, ErrPreCompiledModel, ErrOptimizationVersion, ErrPlatformMismatch:
		return edgedecode.ErrNotSupported
	default:
		return edgedecode.ErrIO
	}
}

// callError wraps a failed C API result so edgedecode.CodeOf reports the
// matching pipeline code
func callError(fn string, ret C.int) error {
	return errors.Wrapf(ErrorCodes(ret).Code(), "C.%s failed with code %d, %s",
		fn, int(ret), ErrorCodes(ret))
}

// Option configures a Runtime
type Option func(*Runtime)

// WithLogger sets the logger used by the Runtime
func WithLogger(log *zap.Logger) Option {
	return func(r *Runtime) {
		r.log = log
	}
}

// Runtime defines the RKNN run time instance.  It implements
// edgedecode.Engine with uint8 NHWC input buffers held in C memory and output
// tensors left in their native quantized type.
type Runtime struct {
	// ctx is the C runtime context
	ctx C.rknn_context
	// ioNum caches the IONumber of Model Input/Output tensors
	ioNum IONumber
	// inputAttrs caches the Input Tensor Attributes of the Model
	inputAttrs []TensorAttr
	// outputAttrs caches the Output Tensor Attributes of the Model
	outputAttrs []TensorAttr
	// inputs are the C allocated input buffers written by preprocessing
	inputs []inputBuffer
	// outputs holds the outputs of the last run until the next run or Close
	outputs *outputSet
	log     *zap.Logger
	closed  bool
}

// NewRuntime returns a RKNN run time instance.  Provide the full path and
// filename of the RKNN compiled model file to run.
func NewRuntime(modelFile string, core CoreMask, opts ...Option) (*Runtime, error) {

	r := &Runtime{
		log: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(r)
	}

	err := r.init(modelFile)

	if err != nil {
		return nil, err
	}

	// setCoreMask is only supported on RK3588 and RK3576, allow skipping for
	// other Rockchip models like RK3566
	if core != NPUSkipSetCore {
		err = r.setCoreMask(core)

		if err != nil {
			r.destroy()
			return nil, err
		}
	}

	err = r.cacheAttrs()

	if err != nil {
		r.destroy()
		return nil, err
	}

	err = r.allocInputs()

	if err != nil {
		r.destroy()
		return nil, err
	}

	r.log.Info("rknn model loaded",
		zap.String("model", modelFile),
		zap.Uint32("inputs", r.ioNum.NumberInput),
		zap.Uint32("outputs", r.ioNum.NumberOutput),
	)

	return r, nil
}

// init wraps C.rknn_init which initializes the RKNN context with the given
// model.  The modelFile is the full path and filename of the RKNN compiled
// model file to run.
func (r *Runtime) init(modelFile string) error {

	// check file exists in Go, before passing to C
	info, err := os.Stat(modelFile)

	if err != nil {
		return errors.Wrap(edgedecode.ErrIO, err.Error())
	}

	if info.IsDir() {
		return errors.Wrapf(edgedecode.ErrInvalidArgument, "model file %s is a directory", modelFile)
	}

	cModelFile := C.CString(modelFile)
	defer C.free(unsafe.Pointer(cModelFile))

	ret := C.rknn_init(&r.ctx, unsafe.Pointer(cModelFile), 0, 0, nil)

	if ret != C.RKNN_SUCC {
		return callError("rknn_init", ret)
	}

	return nil
}

// setCoreMask wraps C.rknn_set_core_mask and specifies the NPU core
// configuration to run the model on
func (r *Runtime) setCoreMask(mask CoreMask) error {

	ret := C.rknn_set_core_mask(r.ctx, C.rknn_core_mask(mask))

	if ret != C.RKNN_SUCC {
		return callError("rknn_set_core_mask", ret)
	}

	return nil
}

// cacheAttrs queries and caches the model's tensor counts and attributes
func (r *Runtime) cacheAttrs() error {

	var err error

	r.ioNum, err = r.QueryModelIONumber()

	if err != nil {
		return err
	}

	r.inputAttrs, err = r.QueryInputTensors()

	if err != nil {
		return err
	}

	r.outputAttrs, err = r.QueryOutputTensors()

	if err != nil {
		return err
	}

	for i, attr := range r.inputAttrs {
		if attr.NDims != 4 {
			return errors.Wrapf(edgedecode.ErrNotSupported,
				"input %d has %d dimensions, expected 4", i, attr.NDims)
		}
	}

	return nil
}

// Close releases any held outputs, destroys the context and frees the input
// buffers.  It is safe to call more than once.
func (r *Runtime) Close() error {

	if r.closed {
		return nil
	}

	r.closed = true

	err := r.releaseOutputs()
	r.freeInputs()

	if derr := r.destroy(); derr != nil {
		return derr
	}

	return err
}

// destroy wraps C.rknn_destroy which unloads the RKNN model from the runtime
// and destroys the context
func (r *Runtime) destroy() error {

	ret := C.rknn_destroy(r.ctx)

	if ret != C.RKNN_SUCC {
		return callError("rknn_destroy", ret)
	}

	return nil
}

// SDKVersion represents the C.rknn_sdk_version struct
type SDKVersion struct {
	DriverVersion string
	APIVersion    string
}

// SDKVersion returns the RKNN API and Driver versions
func (r *Runtime) SDKVersion() (SDKVersion, error) {

	var cSdkVer C.rknn_sdk_version

	ret := C.rknn_query(
		r.ctx,
		C.RKNN_QUERY_SDK_VERSION,
		unsafe.Pointer(&cSdkVer),
		C.uint(C.sizeof_rknn_sdk_version),
	)

	if ret != C.RKNN_SUCC {
		return SDKVersion{}, callError("rknn_query", ret)
	}

	return SDKVersion{
		DriverVersion: C.GoString(&(cSdkVer.drv_version[0])),
		APIVersion:    C.GoString(&(cSdkVer.api_version[0])),
	}, nil
}

// InputAttrs returns the loaded model's input tensor attributes
func (r *Runtime) InputAttrs() []TensorAttr {
	return r.inputAttrs
}

// OutputAttrs returns the loaded model's output tensor attributes
func (r *Runtime) OutputAttrs() []TensorAttr {
	return r.outputAttrs
}
