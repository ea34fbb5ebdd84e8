package gen

import (
	"path"
	"strings"
)

func write(sb *strings.Builder, s ...string) {
	for _, str := range s {
		sb.WriteString(str)
	}
}

func writeln(sb *strings.Builder, s ...string) {
	write(sb, s...)
	sb.WriteByte('\n')
}

// batchPath converts a slash-separated path for cmd.exe.
func batchPath(s string) string {
	return strings.ReplaceAll(path.Clean(s), "/", `\`)
}

// bashPath double-quotes a path, leaving '*' globs outside the quotes.
func bashPath(s string) string {
	parts := strings.Split(s, "*")
	for i, part := range parts {
		if part != "" {
			parts[i] = `"` + bashEscaper.Replace(part) + `"`
		}
	}
	return strings.Join(parts, "*")
}
