package repoerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsByKind(t *testing.T) {
	cause := errors.New("bolt: not found")
	err := New(NotFound, "GetNode", cause)

	assert.True(t, errors.Is(err, IsNotFound))
	assert.False(t, errors.Is(err, IsCorruptBlob))

	wrapped := fmt.Errorf("loading repository data: %w", err)
	assert.True(t, errors.Is(wrapped, IsNotFound))

	var asErr *Error
	require.True(t, errors.As(wrapped, &asErr))
	assert.Equal(t, cause, asErr.Unwrap())
}

func TestWrapNilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(Fatal, "op", nil))
	assert.NotNil(t, Wrap(Fatal, "op", errors.New("boom")))
}

func TestKindOf(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)

	kind, ok := KindOf(New(Aborted, "readPart", nil))
	assert.True(t, ok)
	assert.Equal(t, Aborted, kind)
}

func TestErrorMessage(t *testing.T) {
	err := New(CorruptBlob, "readIndexSafe", errors.New("checksum mismatch"))
	assert.Equal(t, "readIndexSafe: corrupt_blob: checksum mismatch", err.Error())
}
