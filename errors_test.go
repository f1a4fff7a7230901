package edgedecode

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {

	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, OK},
		{"bare code", ErrTimeout, ErrTimeout},
		{"wrapped", errors.Wrap(ErrNotSupported, "decoder"), ErrNotSupported},
		{"message", errors.WithMessage(errors.Wrap(ErrOutOfMemory, "alloc"), "engine"), ErrOutOfMemory},
		{"stdlib wrapped", fmt.Errorf("run: %w", ErrInvalidArgument), ErrInvalidArgument},
		{"foreign", errors.New("disk on fire"), ErrIO},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CodeOf(tc.err))
		})
	}
}

func TestErrorCodeString(t *testing.T) {
	assert.Equal(t, "not supported", ErrNotSupported.Error())
	assert.Equal(t, "unknown error code 99", ErrorCode(99).String())
	assert.Contains(t, errors.Wrap(ErrIO, "reading").Error(), "input/output failure")
}
