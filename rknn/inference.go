package rknn

/*
#include "rknn_api.h"
#include <stdlib.h>
#include <string.h>
*/
import "C"
import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/swdee/go-edgedecode"
	"go.uber.org/zap"
)

// inputBuffer is a uint8 NHWC input held in C memory so it can be handed to
// C.rknn_inputs_set without copying
type inputBuffer struct {
	ptr  unsafe.Pointer
	size int
}

// bytes returns a Go slice header over the C buffer
func (b inputBuffer) bytes() []byte {
	return unsafe.Slice((*byte)(b.ptr), b.size)
}

// outputSet holds the C outputs of one run along with the tensor views over
// them
type outputSet struct {
	cOutputs []C.rknn_output
	views    []edgedecode.Tensor
}

// allocInputs allocates one uint8 buffer per model input sized from its
// NHWC shape
func (r *Runtime) allocInputs() error {

	r.inputs = make([]inputBuffer, len(r.inputAttrs))

	for i, attr := range r.inputAttrs {

		size := attr.NHWC().Elements()
		ptr := C.malloc(C.size_t(size))

		if ptr == nil {
			r.freeInputs()
			return errors.Wrapf(edgedecode.ErrOutOfMemory, "allocating %d bytes for input %d", size, i)
		}

		C.memset(ptr, 0, C.size_t(size))

		r.inputs[i] = inputBuffer{ptr: ptr, size: size}
	}

	return nil
}

// freeInputs releases the C input buffers
func (r *Runtime) freeInputs() {

	for i, in := range r.inputs {
		if in.ptr != nil {
			C.free(in.ptr)
			r.inputs[i].ptr = nil
		}
	}
}

// NumInputs returns the number of input tensors of the loaded model
func (r *Runtime) NumInputs() int {
	return len(r.inputAttrs)
}

// NumOutputs returns the number of output tensors of the loaded model
func (r *Runtime) NumOutputs() int {
	return len(r.outputAttrs)
}

// InputShape returns the NHWC shape of input i
func (r *Runtime) InputShape(i int) edgedecode.Shape {
	return r.inputAttrs[i].NHWC()
}

// OutputShape returns the shape of output i
func (r *Runtime) OutputShape(i int) edgedecode.Shape {
	return r.outputAttrs[i].Shape()
}

// InputQuantParam returns the quantization parameters of input i.  Inputs
// are always written as uint8 pixels and quantized by the runtime, so the
// identity mapping is reported.
func (r *Runtime) InputQuantParam(i int) edgedecode.QuantParam {
	return edgedecode.QuantParam{Scale: 1}
}

// OutputQuantParam returns the quantization parameters of output i
func (r *Runtime) OutputQuantParam(i int) edgedecode.QuantParam {

	if _, ok := r.outputAttrs[i].Type.engineType(); !ok {
		return edgedecode.QuantParam{}
	}

	return r.outputAttrs[i].QuantParam()
}

// Input returns a uint8 view over the C buffer of input i
func (r *Runtime) Input(i int) edgedecode.Tensor {
	return edgedecode.NewTensor(edgedecode.TensorUint8, r.inputs[i].bytes())
}

// Output returns a view over output i of the last run.  Before the first run
// the view is empty.
func (r *Runtime) Output(i int) edgedecode.Tensor {

	if r.outputs == nil {
		t, _ := r.outputAttrs[i].Type.engineType()
		return edgedecode.NewTensor(t, nil)
	}

	return r.outputs.views[i]
}

// Run sets the input buffers, executes the model and fetches the outputs.
// Outputs of the previous run are released first so views returned by Output
// before this call must not be used afterwards.
func (r *Runtime) Run() error {

	if r.closed {
		return errors.Wrap(edgedecode.ErrInvalidArgument, "runtime is closed")
	}

	err := r.releaseOutputs()

	if err != nil {
		return err
	}

	err = r.setInputs()

	if err != nil {
		return errors.WithMessage(err, "setting inputs")
	}

	err = r.runModel()

	if err != nil {
		return errors.WithMessage(err, "running model")
	}

	r.outputs, err = r.getOutputs()

	if err != nil {
		return errors.WithMessage(err, "getting outputs")
	}

	return nil
}

// setInputs wraps C.rknn_inputs_set handing over the uint8 NHWC buffers for
// the runtime to convert to the model's input type
func (r *Runtime) setInputs() error {

	cInputs := make([]C.rknn_input, len(r.inputs))

	for i, in := range r.inputs {
		cInputs[i].index = C.uint32_t(i)
		cInputs[i].buf = in.ptr
		cInputs[i].size = C.uint32_t(in.size)
		cInputs[i].pass_through = C.uint8_t(0)
		cInputs[i]._type = C.rknn_tensor_type(TensorUint8)
		cInputs[i].fmt = C.rknn_tensor_format(TensorNHWC)
	}

	ret := C.rknn_inputs_set(r.ctx, C.uint32_t(len(cInputs)), &cInputs[0])

	if ret != C.RKNN_SUCC {
		return callError("rknn_inputs_set", ret)
	}

	return nil
}

// runModel wraps C.rknn_run
func (r *Runtime) runModel() error {

	ret := C.rknn_run(r.ctx, nil)

	if ret < 0 {
		return callError("rknn_run", ret)
	}

	return nil
}

// getOutputs wraps C.rknn_outputs_get.  Outputs are left in their native
// type, only those a tensor view cannot read are converted to float32.
func (r *Runtime) getOutputs() (*outputSet, error) {

	n := len(r.outputAttrs)

	set := &outputSet{
		cOutputs: make([]C.rknn_output, n),
		views:    make([]edgedecode.Tensor, n),
	}

	for i, attr := range r.outputAttrs {
		set.cOutputs[i].index = C.uint32_t(i)

		if _, ok := attr.Type.engineType(); !ok {
			set.cOutputs[i].want_float = C.uint8_t(1)
		}
	}

	ret := C.rknn_outputs_get(r.ctx, C.uint32_t(n),
		(*C.rknn_output)(unsafe.Pointer(&set.cOutputs[0])), nil)

	if ret < 0 {
		return nil, callError("rknn_outputs_get", ret)
	}

	for i, attr := range r.outputAttrs {
		t, _ := attr.Type.engineType()
		out := set.cOutputs[i]
		set.views[i] = edgedecode.NewTensor(t, unsafe.Slice((*byte)(out.buf), int(out.size)))
	}

	return set, nil
}

// releaseOutputs returns the outputs of the last run to the runtime
func (r *Runtime) releaseOutputs() error {

	if r.outputs == nil {
		return nil
	}

	set := r.outputs
	r.outputs = nil

	ret := C.rknn_outputs_release(r.ctx, C.uint32_t(len(set.cOutputs)),
		(*C.rknn_output)(unsafe.Pointer(&set.cOutputs[0])))

	if ret != C.RKNN_SUCC {
		r.log.Warn("releasing outputs", zap.Int("code", int(ret)))
		return callError("rknn_outputs_release", ret)
	}

	return nil
}
