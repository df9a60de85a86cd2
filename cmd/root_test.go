package cmd

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func execute(t *testing.T, args ...string) int {
	t.Helper()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(io.Discard)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	return Execute()
}

func TestExecuteReturnsExitCode(t *testing.T) {
	assert.Equal(t, 0, execute(t, "--version"))
	assert.Equal(t, 1, execute(t, "join"), "missing room code")
	assert.Equal(t, 1, execute(t, "join", "  "), "empty room code")
}
