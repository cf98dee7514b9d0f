package storeerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfUnwraps(t *testing.T) {
	base := New(NotFound, "slot %d missing", 3)
	wrapped := fmt.Errorf("get: %w", base)

	assert.Equal(t, NotFound, KindOf(wrapped))
	assert.True(t, Is(wrapped, NotFound))
	assert.False(t, Is(wrapped, Corruption))
}

func TestKindOfNilAndPlainError(t *testing.T) {
	assert.Equal(t, Unknown, KindOf(nil))
	assert.Equal(t, Unknown, KindOf(errors.New("boom")))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk exploded")
	err := Wrap(IOError, cause, "write page %d", 7)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, IOError, KindOf(err))
}

func TestWrapNilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(IOError, nil, "anything"))
}
