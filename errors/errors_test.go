package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapFormatsContext(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "EventLoop", "Next", "input dispatch")
	require.Error(t, err)
	assert.Equal(t, "EventLoop.Next: input dispatch failed: boom", err.Error())
	assert.ErrorIs(t, err, base)
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "c", "m", "a"))
	assert.NoError(t, WrapInvalid(nil, "c", "m", "a"))
	assert.NoError(t, WrapFatal(nil, "c", "m", "a"))
	assert.NoError(t, WrapTransient(nil, "c", "m", "a"))
}

func TestClassifiedErrorUnwraps(t *testing.T) {
	err := WrapInvalid(ErrModuleName, "Loader", "Load", "name parsing")

	var ce *ClassifiedError
	require.True(t, stderrors.As(err, &ce))
	assert.Equal(t, ErrorInvalid, ce.Class)
	assert.Equal(t, "Loader", ce.Component)
	assert.ErrorIs(t, err, ErrModuleName)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorTransient},
		{"module name", ErrModuleName, ErrorInvalid},
		{"missing config", ErrMissingConfig, ErrorInvalid},
		{"mixed input", ErrMixedInput, ErrorInvalid},
		{"abort", ErrAbortRequested, ErrorFatal},
		{"os", ErrOS, ErrorFatal},
		{"worker cap", ErrTooManyWorkers, ErrorFatal},
		{"wrapped fatal", WrapFatal(stderrors.New("x"), "c", "m", "a"), ErrorFatal},
		{"wrapped invalid", WrapInvalid(stderrors.New("x"), "c", "m", "a"), ErrorInvalid},
		{"unknown", stderrors.New("weird"), ErrorTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}
