package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebugSuppressedByDefault(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	SetVerbose(false)

	Debug("hidden %d", 1)
	Info("hidden")
	Warn("hidden")
	Section("hidden")

	assert.Empty(t, buf.String())
}

func TestVerboseEnablesLevels(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	SetVerbose(true)
	defer SetVerbose(false)

	Debug("d %d", 1)
	Info("i")
	Warn("w")
	Section("s")

	out := buf.String()
	assert.Contains(t, out, "[DEBUG] d 1")
	assert.Contains(t, out, "[INFO] i")
	assert.Contains(t, out, "[WARN] w")
	assert.Contains(t, out, "=== s ===")
}

func TestErrorAlwaysPrinted(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	SetVerbose(false)

	Error("boom: %s", "disk")

	assert.Contains(t, buf.String(), "[ERROR] boom: disk")
}
