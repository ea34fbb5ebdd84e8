package msg

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev, prevNoColor := Output, color.NoColor
	Output, color.NoColor = &buf, true
	t.Cleanup(func() {
		Output, color.NoColor = prev, prevNoColor
		SetVerbose(false)
	})
	return &buf
}

func TestLevels(t *testing.T) {
	buf := captureOutput(t)

	Info("wrote %s", "build.sh")
	Warn("careful")
	Debug("hidden")
	SetVerbose(true)
	Debug("shown %d", 1)

	assert.Equal(t, "info: wrote build.sh\nwarn: careful\ndebug: shown 1\n", buf.String())
}

func TestIndentWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &IndentWriter{Indent: "  ", W: &buf}

	fmt.Fprint(w, "a\nb")
	fmt.Fprint(w, "c\n\nd\n")

	assert.Equal(t, "  a\n  bc\n  \n  d\n", buf.String())
}
