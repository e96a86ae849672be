package prompt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/manifoldco/promptui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmWithForce(t *testing.T) {
	ok, err := ConfirmWithForce("Format /dev/pmem0?", true)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsAborted(t *testing.T) {
	assert.True(t, IsAborted(ErrAborted))
	assert.True(t, IsAborted(promptui.ErrInterrupt))
	assert.True(t, IsAborted(promptui.ErrAbort))
	assert.True(t, IsAborted(fmt.Errorf("format: %w", ErrAborted)))
	assert.False(t, IsAborted(errors.New("eio")))
	assert.False(t, IsAborted(nil))
}
