package gen

import (
	"fmt"
	"strings"
)

// vsBuildDirs are prepended to PATH so vcvarsall.bat is found without a
// developer prompt.
var vsBuildDirs = []string{
	`C:\Program Files\Microsoft Visual Studio\2022\Community\VC\Auxiliary\Build`,
	`C:\Program Files\Microsoft Visual Studio\2022\Professional\VC\Auxiliary\Build`,
	`C:\Program Files\Microsoft Visual Studio\2022\Enterprise\VC\Auxiliary\Build`,
	`C:\Program Files (x86)\Microsoft Visual Studio\2019\Community\VC\Auxiliary\Build`,
	`C:\Program Files (x86)\Microsoft Visual Studio\2019\Professional\VC\Auxiliary\Build`,
	`C:\Program Files (x86)\Microsoft Visual Studio\2019\Enterprise\VC\Auxiliary\Build`,
}

// batchPrinter renders a Plan as a cmd.exe script. Conditionals become flat
// goto jumps: variables are expanded when a line is parsed, and a
// parenthesized block would see values from before the block started.
type batchPrinter struct {
	sb     strings.Builder
	labels int
}

var batchEscaper = strings.NewReplacer(
	"^", "^^",
	"&", "^&",
	"|", "^|",
	"<", "^<",
	">", "^>",
	"%", "%%",
)

// PrintBatch renders plan as a Windows batch script with CRLF line endings.
func PrintBatch(plan *Plan) string {
	p := &batchPrinter{}
	p.preamble(plan)
	p.nodes(plan.Body)
	p.epilogue()
	return strings.ReplaceAll(p.sb.String(), "\n", "\r\n")
}

func (p *batchPrinter) label(prefix string) string {
	p.labels++
	return fmt.Sprintf("%s_%d", prefix, p.labels)
}

func (p *batchPrinter) preamble(plan *Plan) {
	sb := &p.sb
	writeln(sb, "@echo off")
	p.nodes(plan.Header)
	writeln(sb)
	writeln(sb, "setlocal")
	writeln(sb, "pushd %~dp0")
	writeln(sb, "set dir=%~dp0")
	writeln(sb)
	writeln(sb, "rem setup development environment")
	for _, dir := range vsBuildDirs {
		writeln(sb, "set PATH=", dir, ";%PATH%")
	}
	writeln(sb, "@call vcvarsall.bat amd64 > nul")
	writeln(sb)
	writeln(sb, "rem default configuration")
	writeln(sb, "set ", VarConfig, "=", plan.DefaultConfig)
	writeln(sb)
	writeln(sb, "rem parse -c <configuration>")
	writeln(sb, ":CheckOpts")
	writeln(sb, `if "%~1"=="-c" (`)
	writeln(sb, "    set ", VarConfig, "=%~2")
	writeln(sb, "    shift")
	writeln(sb, "    shift")
	writeln(sb, "    goto CheckOpts")
	writeln(sb, ")")
	writeln(sb)
	p.nodes(plan.Init)
	writeln(sb)
}

func (p *batchPrinter) epilogue() {
	sb := &p.sb
	writeln(sb, ":PL_EXIT")
	writeln(sb, "popd")
	writeln(sb, "exit /b %", VarExitCode, "%")
}

// word renders w outside of quotes; escape controls whether literal text is
// protected from the command parser (messages) or kept as is (commands).
func (p *batchPrinter) word(w Word, escape bool) string {
	var sb strings.Builder
	for _, part := range w {
		switch part.Kind {
		case PartLit:
			if escape {
				sb.WriteString(batchEscaper.Replace(part.Text))
			} else {
				sb.WriteString(part.Text)
			}
		case PartPath:
			write(&sb, `"`, part.Text, `"`)
		case PartRef:
			write(&sb, "%", part.Text, "%")
		case PartColor:
			write(&sb, "\x1b[", colorTable[part.Color].sgr, "m")
		}
	}
	return sb.String()
}

// cond renders the "if ..." head of c, or of its negation when negate is set.
func batchCond(c Cond, negate bool) string {
	switch c := c.(type) {
	case Equals:
		if negate {
			return fmt.Sprintf(`if not "%%%s%%"=="%s"`, c.Name, c.Value)
		}
		return fmt.Sprintf(`if "%%%s%%"=="%s"`, c.Name, c.Value)
	case NonZero:
		if negate {
			return fmt.Sprintf(`if "%%%s%%"=="0"`, c.Name)
		}
		return fmt.Sprintf(`if not "%%%s%%"=="0"`, c.Name)
	case Not:
		return batchCond(c.Cond, !negate)
	}
	panic(fmt.Sprintf("gen: unknown condition %T", c))
}

func (p *batchPrinter) nodes(nodes []Node) {
	for _, n := range nodes {
		p.node(n)
	}
}

func (p *batchPrinter) node(n Node) {
	sb := &p.sb
	switch n := n.(type) {
	case Comment:
		writeln(sb, "rem ", n.Text)
	case Title:
		bar := strings.Repeat("#", 79)
		writeln(sb, "rem ", bar)
		writeln(sb, "rem ", n.Text)
		writeln(sb, "rem ", bar)
	case Blank:
		writeln(sb)
	case Set:
		writeln(sb, "set ", n.Name, "=", p.word(n.Value, false))
	case Append:
		writeln(sb, "set ", n.Name, "=%", n.Name, "% ", p.word(n.Value, false))
	case Echo:
		if len(n.Text) == 0 {
			writeln(sb, "echo.")
			return
		}
		writeln(sb, "echo ", p.word(n.Text, true))
	case Run:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = p.word(a, false)
		}
		write(sb, strings.Join(args, " "))
		if n.Quiet {
			write(sb, " > nul 2>&1")
		}
		writeln(sb)
	case CaptureStatus:
		writeln(sb, "set ", n.Name, "=%ERRORLEVEL%")
	case MakeDir:
		dir := batchPath(n.Path)
		writeln(sb, `if not exist "`, dir, `" mkdir "`, dir, `"`)
	case Remove:
		file := batchPath(n.Path)
		writeln(sb, `if exist "`, file, `" del /q "`, file, `"`)
	case WriteLock:
		writeln(sb, `>"`, batchPath(n.Path), `" echo LOCKING `, n.Token)
	case ProbeInUse:
		// opening a running image for append fails with a sharing violation
		file := batchPath(n.Path)
		done := p.label("PL_PROBE")
		writeln(sb, `if not exist "`, file, `" goto `, done)
		writeln(sb, `2>nul (>>"`, file, `" echo off) && goto `, done)
		writeln(sb, "set ", n.Name, "=1")
		writeln(sb, ":", done)
	case If:
		p.ifNode(n)
	case Switch:
		p.switchNode(n)
	default:
		panic(fmt.Sprintf("gen: unknown node %T", n))
	}
}

func (p *batchPrinter) ifNode(n If) {
	sb := &p.sb
	end := p.label("PL_ENDIF")
	if len(n.Else) == 0 {
		writeln(sb, batchCond(n.Cond, true), " goto ", end)
		p.nodes(n.Then)
		writeln(sb, ":", end)
		return
	}
	els := p.label("PL_ELSE")
	writeln(sb, batchCond(n.Cond, true), " goto ", els)
	p.nodes(n.Then)
	writeln(sb, "goto ", end)
	writeln(sb, ":", els)
	p.nodes(n.Else)
	writeln(sb, ":", end)
}

func (p *batchPrinter) switchNode(n Switch) {
	sb := &p.sb
	cases := make([]string, len(n.Cases))
	for i, c := range n.Cases {
		cases[i] = p.label("PL_CASE")
		writeln(sb, batchCond(Equals{Name: n.Name, Value: c.Value}, false), " goto ", cases[i])
	}
	def := p.label("PL_DEFAULT")
	end := p.label("PL_ENDSWITCH")
	writeln(sb, "goto ", def)
	writeln(sb)
	for i, c := range n.Cases {
		writeln(sb, ":", cases[i])
		p.nodes(c.Body)
		writeln(sb, "goto ", end)
		writeln(sb)
	}
	writeln(sb, ":", def)
	p.nodes(n.Default)
	writeln(sb, ":", end)
	writeln(sb)
}
