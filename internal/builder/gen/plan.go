package gen

// The command plan is a small shell-neutral program: an ordered tree of
// comments, variable assignments, conditionals and command invocations. It is
// built once per (project, toolchain) and printed by a dialect printer.

// PartKind tells a printer how to render a Part.
type PartKind int

const (
	PartLit   PartKind = iota // literal text, emitted as is
	PartRef                   // reference to a script variable
	PartColor                 // terminal color switch
	PartPath                  // file path, quoted by the printer
)

// Part is one piece of a shell word.
type Part struct {
	Kind PartKind
	Text string
	// Color is only meaningful for PartColor.
	Color Color
}

func Lit(s string) Part    { return Part{Kind: PartLit, Text: s} }
func Ref(name string) Part { return Part{Kind: PartRef, Text: name} }
func Paint(c Color) Part   { return Part{Kind: PartColor, Color: c} }
func W(parts ...Part) Word { return Word(parts) }
func L(s string) Word      { return Word{Lit(s)} }
func R(name string) Word   { return Word{Ref(name)} }
func Path(s string) Part   { return Part{Kind: PartPath, Text: s} }
func quoted(s string) Word { return Word{Path(s)} }

// Word is a concatenation of parts forming one shell word or message.
type Word []Part

// Color is a terminal color used in progress messages.
type Color int

const (
	Reset Color = iota
	Bold
	Red
	RedBG
	Green
	GreenBG
	Cyan
	Magenta
	Yellow
	White
)

// colorTable holds the variable name the bash preamble defines for each
// color and the SGR parameters batch scripts emit inline.
var colorTable = [...]struct{ name, sgr string }{
	Reset:   {"NC", "0"},
	Bold:    {"BOLD", "0;1"},
	Red:     {"RED", "0;31"},
	RedBG:   {"RED_BG", "0;41"},
	Green:   {"GREEN", "0;32"},
	GreenBG: {"GREEN_BG", "0;42"},
	Cyan:    {"CYAN", "0;36"},
	Magenta: {"MAGENTA", "0;35"},
	Yellow:  {"YELLOW", "0;33"},
	White:   {"WHITE", "0;97"},
}

// Script variables shared by every dialect.
const (
	VarConfig      = "PL_CONFIG"
	VarHotReload   = "PL_HOT_RELOAD_STATUS"
	VarExitCode    = "PL_EXIT_CODE"
	VarBuildStatus = "PL_BUILD_STATUS"
	VarStepFailed  = "PL_STEP_FAILED"
	VarResult      = "PL_RESULT"
	VarArch        = "ARCH"

	VarDefines      = "PL_DEFINES"
	VarIncludeDirs  = "PL_INCLUDE_DIRECTORIES"
	VarLinkDirs     = "PL_LINK_DIRECTORIES"
	VarCompileFlags = "PL_COMPILER_FLAGS"
	VarLinkerFlags  = "PL_LINKER_FLAGS"
	VarLinkLibs     = "PL_LINK_LIBRARIES"
	VarSources      = "PL_SOURCES"
)

// Node is one plan instruction.
type Node interface{ node() }

type (
	Comment struct{ Text string }
	// Title is a banner comment.
	Title struct{ Text string }
	Blank struct{}
	// Set assigns Value to variable Name.
	Set struct {
		Name  string
		Value Word
	}
	// Append adds Value to the list variable Name, separated by a space.
	// Appends keep their order.
	Append struct {
		Name  string
		Value Word
	}
	// Echo prints a message; an empty Text prints a blank line.
	Echo struct{ Text Word }
	// Run invokes Args[0] with the remaining args.
	Run struct {
		Args  []Word
		Quiet bool
	}
	// CaptureStatus stores the exit status of the preceding Run in Name.
	CaptureStatus struct{ Name string }
	MakeDir       struct{ Path string }

	// Remove deletes Path if it exists. Path may contain '*' globs.
	Remove struct{ Path string }
	// WriteLock writes a "build in progress" marker.
	WriteLock struct{ Path, Token string }
	// ProbeInUse sets Name to 1 if Path exists and is held open by a running
	// process. Best effort: a miss only costs a rebuild.
	ProbeInUse struct{ Path, Name string }

	If struct {
		Cond       Cond
		Then, Else []Node
	}
	// Switch runs the body of the Case whose Value equals variable Name, or
	// Default when none does.
	Switch struct {
		Name    string
		Cases   []Case
		Default []Node
	}
)

type Case struct {
	Value string
	Body  []Node
}

func (Comment) node()       {}
func (Title) node()         {}
func (Blank) node()         {}
func (Set) node()           {}
func (Append) node()        {}
func (Echo) node()          {}
func (Run) node()           {}
func (CaptureStatus) node() {}
func (MakeDir) node()       {}
func (Remove) node()        {}
func (WriteLock) node()     {}
func (ProbeInUse) node()    {}
func (If) node()            {}
func (Switch) node()        {}

// Cond is a condition over script variables.
type Cond interface{ cond() }

type (
	// Equals holds when variable Name equals Value.
	Equals struct{ Name, Value string }
	// NonZero holds when numeric variable Name is not 0.
	NonZero struct{ Name string }
	Not     struct{ Cond Cond }
)

func (Equals) cond()  {}
func (NonZero) cond() {}
func (Not) cond()     {}

// Plan is the dialect-neutral program for one project and toolchain.
type Plan struct {
	Project       string
	Toolchain     string
	Header        []Node // comments printed right after the interpreter line
	DefaultConfig string
	// Init runs after option parsing, before Body.
	Init []Node
	Body []Node
}

// walk calls fn for every node of nodes in order, descending into
// conditionals and switch cases.
func walk(nodes []Node, fn func(Node)) {
	for _, n := range nodes {
		fn(n)
		switch n := n.(type) {
		case If:
			walk(n.Then, fn)
			walk(n.Else, fn)
		case Switch:
			for _, c := range n.Cases {
				walk(c.Body, fn)
			}
			walk(n.Default, fn)
		}
	}
}
