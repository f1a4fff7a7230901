package edgedecode

// Engine is the inference engine a decoder is bound to.  Shapes and quant
// params are read once when a decoder is constructed and cached, so a
// decoder must be rebuilt if the engine loads a different model.
type Engine interface {
	// NumInputs returns the number of input tensors of the loaded model
	NumInputs() int
	// NumOutputs returns the number of output tensors of the loaded model
	NumOutputs() int
	// InputShape returns the shape of input tensor i
	InputShape(i int) Shape
	// OutputShape returns the shape of output tensor i
	OutputShape(i int) Shape
	// InputQuantParam returns the quantization parameters of input tensor i
	InputQuantParam(i int) QuantParam
	// OutputQuantParam returns the quantization parameters of output tensor i
	OutputQuantParam(i int) QuantParam
	// Input returns a view of the buffer backing input tensor i.  Writes to
	// the view are visible to the next Run.
	Input(i int) Tensor
	// Output returns a view of the buffer holding output tensor i as
	// produced by the last Run
	Output(i int) Tensor
	// Run executes the model on the current input buffers
	Run() error
}
