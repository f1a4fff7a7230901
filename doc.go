/*
go-edgedecode turns the raw, quantized output tensors of an edge inference
engine into structured results: bounding boxes, keypoints and class scores
expressed in the units of the original captured frame.

It is written for constrained devices, so the hot decode paths favour
comparisons in the quantized domain, approximate transcendental functions
and result slices that are reused between calls.

The root package holds the collaborator contracts (Engine, Converter) and
the value types shared by every decoder (Tensor, Shape, QuantParam, Image,
ErrorCode).  Decoders, the algorithm registry and NMS live in the
postprocess subpackage, image conversion in preprocess, and engine adapters
in replay, rknn and onnx.  The render subpackage draws results over gocv
mats and rknn/affinity pins the invoke loop to chosen CPU cores.

See example code and usage in the example subdirectory.
*/
package edgedecode
