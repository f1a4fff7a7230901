package postprocess

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/swdee/go-edgedecode"
)

// descriptor is a registry entry for a decoder family
type descriptor struct {
	info  Info
	valid func(edgedecode.Engine) bool
	build func(edgedecode.Engine, ...Option) (Decoder, error)
}

var (
	registryOnce sync.Once
	registry     []descriptor
)

// descriptors returns the registered decoder families in detection priority
// order.  The table is built on first use and never modified afterwards.
func descriptors() []descriptor {

	registryOnce.Do(func() {
		registry = []descriptor{
			{
				info:  gridHeatmapInfo,
				valid: IsGridHeatmapModel,
				build: builder(NewGridHeatmap),
			},
			{
				info:  poseInfo,
				valid: IsPoseModel,
				build: builder(NewPose),
			},
			{
				info:  anchorGridInfo,
				valid: IsAnchorGridModel,
				build: builder(NewAnchorGrid),
			},
			{
				info:  strideInfo,
				valid: IsStrideModel,
				build: builder(NewStride),
			},
			{
				info:  decoupledInfo,
				valid: IsDecoupledModel,
				build: builder(NewDecoupled),
			},
			{
				info:  splitGridInfo,
				valid: IsSplitGridModel,
				build: builder(NewSplitGrid),
			},
			{
				info:  landmarkInfo,
				valid: IsLandmarkModel,
				build: builder(NewLandmark),
			},
			{
				info:  classifierInfo,
				valid: IsClassifierModel,
				build: builder(NewClassifier),
			},
		}
	})

	return registry
}

// builder adapts a typed decoder constructor to the registry signature so a
// failed construction returns a nil Decoder
func builder[D Decoder](fn func(edgedecode.Engine, ...Option) (D, error)) func(edgedecode.Engine, ...Option) (Decoder, error) {
	return func(e edgedecode.Engine, opts ...Option) (Decoder, error) {

		d, err := fn(e, opts...)

		if err != nil {
			return nil, err
		}

		return d, nil
	}
}

// lookup returns the descriptor of type t
func lookup(t Type) (descriptor, bool) {

	for _, d := range descriptors() {
		if d.info.Type == t {
			return d, true
		}
	}

	return descriptor{}, false
}

// AlgorithmInfo returns the description of decoder family t, or a zero Info
// when t is not registered
func AlgorithmInfo(t Type) Info {
	d, _ := lookup(t)
	return d.info
}

// AllAlgorithmInfo returns the description of every registered decoder
// family in registration order
func AllAlgorithmInfo() []Info {

	descs := descriptors()
	infos := make([]Info, len(descs))

	for i, d := range descs {
		infos[i] = d.info
	}

	return infos
}

// ParseType returns the registered decoder family named name
func ParseType(name string) (Type, error) {

	for _, info := range AllAlgorithmInfo() {
		if strings.EqualFold(info.Name, name) {
			return info.Type, nil
		}
	}

	return TypeUndefined, errors.Wrapf(edgedecode.ErrInvalidArgument, "unknown decoder %q", name)
}

// HasAlgorithm reports if decoder family t is registered
func HasAlgorithm(t Type) bool {
	_, ok := lookup(t)
	return ok
}

// DetectType returns the first decoder family, in priority order, whose
// shape predicate accepts the engine's tensors.  TypeUndefined is returned
// when none match.
func DetectType(e edgedecode.Engine) Type {

	for _, d := range descriptors() {
		if d.valid(e) {
			return d.info.Type
		}
	}

	return TypeUndefined
}

// New constructs a decoder of family t bound to engine e.  Passing
// TypeUndefined detects the family from the engine's shapes.
func New(t Type, e edgedecode.Engine, opts ...Option) (Decoder, error) {

	if t == TypeUndefined {
		t = DetectType(e)

		if t == TypeUndefined {
			return nil, errors.Wrap(edgedecode.ErrNotSupported,
				"engine shapes match no registered decoder")
		}
	}

	d, ok := lookup(t)

	if !ok {
		return nil, errors.Wrapf(edgedecode.ErrNotSupported, "decoder type %d", int(t))
	}

	return d.build(e, opts...)
}

// MustNew is like New but panics when the decoder can not be constructed
func MustNew(t Type, e edgedecode.Engine, opts ...Option) Decoder {

	d, err := New(t, e, opts...)

	if err != nil {
		panic(err)
	}

	return d
}
