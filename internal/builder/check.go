package builder

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/qobs-build/plbuild/internal/msg"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// checkScripts compares each script against the file on disk and writes a
// line diff for every stale one to w.
func checkScripts(scripts []Script, w io.Writer) error {
	if w == nil {
		w = io.Discard
	}
	stale := 0
	for _, s := range scripts {
		data, err := os.ReadFile(s.Path)
		if errors.Is(err, fs.ErrNotExist) {
			msg.Warn("%s is missing", s.Path)
			stale++
			continue
		} else if err != nil {
			return err
		}
		if string(data) == s.Text {
			msg.Debug("%s is up to date", s.Path)
			continue
		}
		stale++
		msg.Warn("%s is out of date", s.Path)
		writeLineDiff(&msg.IndentWriter{Indent: "    ", W: w}, string(data), s.Text)
	}
	if stale > 0 {
		return fmt.Errorf("%w: %d of %d", ErrStale, stale, len(scripts))
	}
	return nil
}

// writeLineDiff prints the changed lines between before and after, prefixed with
// "-" and "+".
func writeLineDiff(w io.Writer, before, after string) {
	// batch scripts are CRLF; compare lines, not line endings
	before = strings.ReplaceAll(before, "\r\n", "\n")
	after = strings.ReplaceAll(after, "\r\n", "\n")

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	for _, d := range diffs {
		var prefix string
		var paint func(format string, a ...any) string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix, paint = "+", color.GreenString
		case diffmatchpatch.DiffDelete:
			prefix, paint = "-", color.RedString
		default:
			continue
		}
		for _, line := range strings.SplitAfter(strings.TrimSuffix(d.Text, "\n"), "\n") {
			fmt.Fprintln(w, paint("%s%s", prefix, strings.TrimSuffix(line, "\n")))
		}
	}
}
