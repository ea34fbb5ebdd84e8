package gen

import (
	"fmt"
	"strings"
)

// bashPrinter renders a Plan as a bash script.
type bashPrinter struct {
	sb     strings.Builder
	indent int
}

// characters that stay special inside double quotes
var bashEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`", "$", `\$`)

// PrintBash renders plan as a bash script.
func PrintBash(plan *Plan) string {
	p := &bashPrinter{}
	p.preamble(plan)
	p.nodes(plan.Body)
	p.epilogue()
	return p.sb.String()
}

func (p *bashPrinter) line(s ...string) {
	if len(s) > 0 {
		write(&p.sb, strings.Repeat("    ", p.indent))
	}
	writeln(&p.sb, s...)
}

func (p *bashPrinter) preamble(plan *Plan) {
	p.line("#!/bin/bash")
	p.nodes(plan.Header)
	p.line()
	p.line("# colors")
	for _, c := range colorTable {
		p.line(c.name, `=$'\e[`, c.sgr, `m'`)
	}
	p.line()
	p.line("# find directory of this script")
	p.line(`SOURCE=${BASH_SOURCE[0]}`)
	p.line(`while [ -L "$SOURCE" ]; do`)
	p.line(`    DIR=$( cd -P "$( dirname "$SOURCE" )" >/dev/null 2>&1 && pwd )`)
	p.line(`    SOURCE=$(readlink "$SOURCE")`)
	p.line(`    [[ $SOURCE != /* ]] && SOURCE=$DIR/$SOURCE`)
	p.line("done")
	p.line(`DIR=$( cd -P "$( dirname "$SOURCE" )" >/dev/null 2>&1 && pwd )`)
	p.line(`pushd "$DIR" >/dev/null`)
	p.line()
	p.line("# platform and architecture")
	p.line("PLAT=$(uname)")
	p.line(VarArch, "=$(uname -m)")
	p.line()
	p.line("# default configuration")
	p.line(VarConfig, `="`, bashEscaper.Replace(plan.DefaultConfig), `"`)
	p.line()
	p.line("# parse -c <configuration>")
	p.line(`while getopts ":c:" option; do`)
	p.line(`    case $option in`)
	p.line(`    c)`)
	p.line(`        `, VarConfig, `=$OPTARG;;`)
	p.line(`    \?)`)
	p.line(`        echo "Error: invalid option"`)
	p.line(`        popd >/dev/null`)
	p.line(`        exit 1;;`)
	p.line(`    esac`)
	p.line("done")
	p.line()
	p.nodes(plan.Init)
	p.line()
}

func (p *bashPrinter) epilogue() {
	p.line("popd >/dev/null")
	p.line("exit $", VarExitCode)
}

// quoted renders w as one double-quoted word.
func (p *bashPrinter) quoted(w Word) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, part := range w {
		switch part.Kind {
		case PartLit, PartPath:
			sb.WriteString(bashEscaper.Replace(part.Text))
		case PartRef:
			write(&sb, "${", part.Text, "}")
		case PartColor:
			write(&sb, "${", colorTable[part.Color].name, "}")
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// arg renders w as command arguments. Literals carry their own quoting and
// references are expanded unquoted so list variables split into words.
func (p *bashPrinter) arg(w Word) string {
	var sb strings.Builder
	for _, part := range w {
		switch part.Kind {
		case PartLit:
			sb.WriteString(part.Text)
		case PartPath:
			write(&sb, `"`, bashEscaper.Replace(part.Text), `"`)
		case PartRef:
			write(&sb, "$", part.Text)
		case PartColor:
			write(&sb, "${", colorTable[part.Color].name, "}")
		}
	}
	return sb.String()
}

func bashCond(c Cond) string {
	switch c := c.(type) {
	case Equals:
		return fmt.Sprintf(`[[ "$%s" == "%s" ]]`, c.Name, bashEscaper.Replace(c.Value))
	case NonZero:
		return fmt.Sprintf(`[ "$%s" -ne 0 ]`, c.Name)
	case Not:
		return "! " + bashCond(c.Cond)
	}
	panic(fmt.Sprintf("gen: unknown condition %T", c))
}

func (p *bashPrinter) nodes(nodes []Node) {
	for _, n := range nodes {
		p.node(n)
	}
}

func (p *bashPrinter) node(n Node) {
	switch n := n.(type) {
	case Comment:
		p.line("# ", n.Text)
	case Title:
		bar := strings.Repeat("#", 79)
		p.line(bar)
		p.line("# ", n.Text)
		p.line(bar)
	case Blank:
		p.line()
	case Set:
		p.line(n.Name, "=", p.quoted(n.Value))
	case Append:
		p.line(n.Name, "+=", p.quoted(append(W(Lit(" ")), n.Value...)))
	case Echo:
		if len(n.Text) == 0 {
			p.line("echo")
			return
		}
		p.line("echo ", p.quoted(n.Text))
	case Run:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = p.arg(a)
		}
		cmd := strings.Join(args, " ")
		if n.Quiet {
			cmd += " >/dev/null 2>&1"
		}
		p.line(cmd)
	case CaptureStatus:
		p.line(n.Name, "=$?")
	case MakeDir:
		p.line("mkdir -p ", bashPath(n.Path))
	case Remove:
		p.line("rm -f ", bashPath(n.Path))
	case WriteLock:
		p.line(`echo "LOCKING `, n.Token, `" > `, bashPath(n.Path))
	case ProbeInUse:
		file := bashPath(n.Path)
		p.line("if [ -e ", file, " ] && lsof ", file, " >/dev/null 2>&1; then ", n.Name, "=1; fi")
	case If:
		p.line("if ", bashCond(n.Cond), "; then")
		p.block(n.Then)
		if len(n.Else) > 0 {
			p.line("else")
			p.block(n.Else)
		}
		p.line("fi")
	case Switch:
		for i, c := range n.Cases {
			kw := "elif "
			if i == 0 {
				kw = "if "
			}
			p.line(kw, bashCond(Equals{Name: n.Name, Value: c.Value}), "; then")
			p.block(c.Body)
		}
		if len(n.Cases) == 0 {
			p.nodes(n.Default)
			return
		}
		if len(n.Default) > 0 {
			p.line("else")
			p.block(n.Default)
		}
		p.line("fi")
	default:
		panic(fmt.Sprintf("gen: unknown node %T", n))
	}
}

// block prints nodes one level deeper. bash rejects an empty then/else body.
func (p *bashPrinter) block(nodes []Node) {
	p.indent++
	if !hasCommand(nodes) {
		p.line(":")
	}
	p.nodes(nodes)
	p.indent--
}

func hasCommand(nodes []Node) bool {
	for _, n := range nodes {
		switch n.(type) {
		case Comment, Title, Blank:
		default:
			return true
		}
	}
	return false
}
