package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleUI_InputBox(t *testing.T) {
	var out strings.Builder
	ui := NewConsoleUI(strings.NewReader("  abc123\n"), &out)

	value, cancelled, err := ui.InputBox("enter the digest", "Verification")
	require.NoError(t, err)
	assert.False(t, cancelled)
	assert.Equal(t, "abc123", value)
	assert.Contains(t, out.String(), "Verification")
	assert.Contains(t, out.String(), "enter the digest")
}

func TestConsoleUI_EmptyLineCancels(t *testing.T) {
	var out strings.Builder
	ui := NewConsoleUI(strings.NewReader("\n"), &out)

	_, cancelled, err := ui.InputBox("prompt", "title")
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestConsoleUI_ClosedInputCancels(t *testing.T) {
	var out strings.Builder
	ui := NewConsoleUI(strings.NewReader(""), &out)

	_, cancelled, err := ui.InputBox("prompt", "title")
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestConsoleUI_MessageBox(t *testing.T) {
	var out strings.Builder
	ui := NewConsoleUI(strings.NewReader(""), &out)

	ui.MessageBox("The public key does not match. Aborting.", "Debugging Verification")
	assert.Contains(t, out.String(), "Debugging Verification")
	assert.Contains(t, out.String(), "The public key does not match. Aborting.")
}
