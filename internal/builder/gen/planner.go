package gen

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/qobs-build/plbuild/internal/model"
)

// flavor holds everything toolchain-specific about command lines.
type flavor struct {
	tc        model.Toolchain
	cc        string
	objExt    string
	archFlags bool // append -arch for the host CPU at run time
	// cleanObjects removes intermediate objects once a target is done
	cleanObjects bool

	define     func(string) string
	include    func(string) string
	linkDir    func(string) string
	linkerFlag func(string) string
	linkLib    func(string) string
	source     func(string) string
}

func unixLinkerFlag(flag string) string {
	if strings.HasPrefix(flag, "-") {
		return flag
	}
	return "-l" + flag
}

func identity(s string) string { return s }

var flavors = map[model.Toolchain]flavor{
	model.MSVC: {
		tc:           model.MSVC,
		cc:           "cl",
		objExt:       ".obj",
		cleanObjects: true,
		define:       func(d string) string { return "-D" + d },
		include:      func(dir string) string { return `-I"` + dir + `"` },
		linkDir:      func(dir string) string { return `-LIBPATH:"` + dir + `"` },
		linkerFlag:   identity,
		linkLib:      identity,
		source:       func(src string) string { return `"` + src + `"` },
	},
	model.GCC: {
		tc:         model.GCC,
		cc:         "gcc",
		objExt:     ".o",
		define:     func(d string) string { return "-D" + d },
		include:    func(dir string) string { return "-I" + dir },
		linkDir:    func(dir string) string { return "-L" + dir },
		linkerFlag: unixLinkerFlag,
		linkLib:    func(lib string) string { return "-l" + lib },
		source:     identity,
	},
	model.Clang: {
		tc:         model.Clang,
		cc:         "clang",
		objExt:     ".o",
		archFlags:  true,
		define:     func(d string) string { return "-D" + d },
		include:    func(dir string) string { return "-I" + dir },
		linkDir:    func(dir string) string { return "-L" + dir },
		linkerFlag: unixLinkerFlag,
		linkLib:    func(lib string) string { return "-framework " + lib },
		source:     identity,
	},
}

var (
	msgSuccess = W(Paint(Bold), Paint(Green), Lit("Successful."), Paint(Reset))
	msgFailed  = W(Paint(Bold), Paint(Red), Lit("Failed."), Paint(Reset))
	msgRule    = W(Paint(Cyan), Lit("~~~~~~~~~~~~~~~~~~~~~~"), Paint(Reset))
	msgBanner  = W(Paint(Bold), Paint(White), Paint(RedBG), Lit("--------"), Paint(GreenBG),
		Lit(" HOT RELOADING "), Paint(RedBG), Lit("--------"), Paint(Reset))
)

// BuildPlan lowers project p into the command plan for toolchain tc. The
// project must be resolved (see model.ResolveDefaults); p is not modified.
func BuildPlan(p *model.Project, tc model.Toolchain) (*Plan, error) {
	if err := model.Validate(p); err != nil {
		return nil, err
	}
	fl, ok := flavors[tc]
	if !ok {
		return nil, fmt.Errorf("no command flavor for toolchain %s", tc)
	}

	plan := &Plan{
		Project:       p.Name,
		Toolchain:     tc.String(),
		DefaultConfig: p.RegisteredConfigurations[0],
		Init: []Node{
			Set{Name: VarExitCode, Value: L("0")},
			Set{Name: VarHotReload, Value: L("0")},
		},
	}
	plan.Header = append(plan.Header, Comment{Text: fmt.Sprintf("build script for project %s (%s), generated by plbuild; do not edit", p.Name, tc)})
	if p.Revision != "" {
		plan.Header = append(plan.Header, Comment{Text: "source revision " + p.Revision})
	}

	sw := Switch{Name: VarConfig}
	for _, config := range p.RegisteredConfigurations {
		sw.Cases = append(sw.Cases, Case{Value: config, Body: planConfig(p, config, fl)})
	}
	sw.Default = []Node{
		Echo{Text: W(Paint(Bold), Paint(Red), Lit("Error: unknown configuration "), Ref(VarConfig), Paint(Reset))},
		Set{Name: VarExitCode, Value: L("1")},
	}
	plan.Body = []Node{sw}
	return plan, nil
}

// outPath joins a file name onto the settings' output directory.
func outPath(s *model.Settings, file string) string {
	return path.Join(s.OutputDirectory, file)
}

func planConfig(p *model.Project, config string, fl flavor) []Node {
	var body []Node

	// hot reload probe
	main := p.MainTarget()
	var mainSettings *model.Settings
	if main != nil && main.Kind == model.Executable {
		mainSettings = main.Settings(config, fl.tc)
	}
	probe := mainSettings != nil
	if probe {
		body = append(body,
			Comment{Text: "check whether " + main.Name + " is running"},
			Set{Name: VarHotReload, Value: L("0")},
			ProbeInUse{Path: outPath(mainSettings, mainSettings.OutputFile()), Name: VarHotReload},
			If{Cond: NonZero{Name: VarHotReload}, Then: []Node{
				Echo{},
				Echo{Text: msgBanner},
				Echo{},
			}},
			Blank{},
		)
	}

	// cleanup
	var cleanup []Node
	for _, t := range p.Targets {
		s := t.Settings(config, fl.tc)
		if s == nil {
			continue
		}
		rm := Remove{Path: outPath(s, s.OutputFile())}
		if probe && t.Kind == model.Executable {
			// executables are not rebuilt while the host runs, so keep them
			cleanup = append(cleanup, If{Cond: Not{Cond: NonZero{Name: VarHotReload}}, Then: []Node{rm}})
		} else {
			cleanup = append(cleanup, rm)
		}
		if t.Kind == model.DynamicLibrary {
			cleanup = append(cleanup, Remove{Path: outPath(s, s.OutputBinaryName+"_*"+s.Extension())})
			if fl.tc == model.MSVC {
				cleanup = append(cleanup, Remove{Path: outPath(s, s.OutputBinaryName+"_*.pdb")})
			}
		}
	}
	if len(cleanup) > 0 {
		body = append(body, Comment{Text: "remove previous build artifacts"})
		body = append(body, cleanup...)
		body = append(body, Blank{})
	}

	for _, t := range p.Targets {
		s := t.Settings(config, fl.tc)
		if s == nil {
			continue
		}
		body = append(body, planTarget(p, t, config, s, fl, probe)...)
	}
	return body
}

// lockToken identifies which build holds a lock file. It is derived from the
// build coordinates so regenerating yields the same script.
func lockToken(p *model.Project, t *model.Target, config string, tc model.Toolchain) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(strings.Join([]string{p.Name, t.Name, config, tc.String()}, "/"))).String()
}

func listVar(name string, values []string, format func(string) string) []Node {
	nodes := []Node{Set{Name: name}}
	for _, v := range values {
		nodes = append(nodes, Append{Name: name, Value: L(format(v))})
	}
	return nodes
}

// checkStatus records the exit status of the preceding command and marks the
// step failed when it is nonzero.
func checkStatus() []Node {
	return []Node{
		CaptureStatus{Name: VarBuildStatus},
		If{Cond: NonZero{Name: VarBuildStatus}, Then: []Node{
			Echo{Text: W(Paint(Bold), Paint(Red), Lit("Failed with error code: "), Ref(VarBuildStatus), Paint(Reset))},
			Set{Name: VarResult, Value: msgFailed},
			Set{Name: VarStepFailed, Value: L("1")},
			Set{Name: VarExitCode, Value: R(VarBuildStatus)},
		}},
	}
}

// objectName flattens the source path into a file name so sources sharing a
// base name in different directories get distinct objects.
func objectName(fl flavor, src string) string {
	segs := strings.Split(strings.TrimPrefix(path.Clean(src), "/"), "/")
	for i, seg := range segs {
		if seg == ".." {
			segs[i] = "__"
		}
	}
	return strings.Join(segs, "_") + fl.objExt
}

func planTarget(p *model.Project, t *model.Target, config string, s *model.Settings, fl flavor, probe bool) []Node {
	lockPath := outPath(s, t.LockFileName)
	output := outPath(s, s.OutputFile())

	nodes := []Node{
		Title{Text: config + " | " + t.Name},
		Blank{},
		Comment{Text: "create output directory"},
		MakeDir{Path: s.OutputDirectory},
		WriteLock{Path: lockPath, Token: lockToken(p, t, config, fl.tc)},
		Blank{},
	}

	nodes = append(nodes, listVar(VarDefines, s.Definitions, fl.define)...)
	nodes = append(nodes, listVar(VarIncludeDirs, s.IncludeDirectories, fl.include)...)
	nodes = append(nodes, listVar(VarLinkDirs, s.LinkDirectories, fl.linkDir)...)
	nodes = append(nodes, listVar(VarCompileFlags, s.CompilerFlags, identity)...)
	if fl.archFlags {
		nodes = append(nodes, If{
			Cond: Equals{Name: VarArch, Value: "arm64"},
			Then: []Node{Append{Name: VarCompileFlags, Value: L("-arch arm64")}},
			Else: []Node{Append{Name: VarCompileFlags, Value: L("-arch x86_64")}},
		})
	}
	nodes = append(nodes, listVar(VarLinkerFlags, s.LinkerFlags, fl.linkerFlag)...)
	nodes = append(nodes, listVar(VarLinkLibs, s.LinkLibraries, fl.linkLib)...)
	nodes = append(nodes,
		Blank{},
		Set{Name: VarResult, Value: msgSuccess},
		Set{Name: VarStepFailed, Value: L("0")},
		Echo{},
		Echo{Text: W(Paint(Yellow), Lit("Step: "+t.Name), Paint(Reset))},
		Echo{Text: W(Paint(Yellow), Lit("~~~~~~~~~~~~~~~~~~~~~~"), Paint(Reset))},
	)

	var objects []string
	switch t.Kind {
	case model.StaticLibrary:
		nodes = append(nodes, Echo{Text: W(Paint(Cyan), Lit("Compiling..."), Paint(Reset))})
		seen := make(map[string]bool)
		for i, src := range s.SourceFiles {
			obj := outPath(s, objectName(fl, src))
			if seen[obj] {
				obj = outPath(s, fmt.Sprintf("%d_%s", i, objectName(fl, src)))
			}
			seen[obj] = true
			objects = append(objects, obj)
			nodes = append(nodes, compileObject(fl, src, obj))
			nodes = append(nodes, checkStatus()...)
		}
		archive := []Node{
			Echo{Text: W(Paint(Cyan), Lit("Archiving..."), Paint(Reset))},
			archiveObjects(fl, output, objects),
		}
		archive = append(archive, checkStatus()...)
		nodes = append(nodes, If{Cond: Not{Cond: NonZero{Name: VarStepFailed}}, Then: archive})

	case model.DynamicLibrary, model.Executable:
		nodes = append(nodes, listVar(VarSources, s.SourceFiles, fl.source)...)
		for _, src := range s.SourceFiles {
			objects = append(objects, outPath(s, strings.TrimSuffix(path.Base(src), path.Ext(src))+fl.objExt))
		}
		step := []Node{
			Echo{Text: W(Paint(Cyan), Lit("Compiling and Linking..."), Paint(Reset))},
			compileAndLink(fl, t.Kind, s, output),
		}
		step = append(step, checkStatus()...)
		if t.Kind == model.Executable && probe {
			// the running host keeps its loaded image; only its libraries are rebuilt
			nodes = append(nodes, If{
				Cond: Not{Cond: NonZero{Name: VarHotReload}},
				Then: step,
				Else: []Node{Echo{Text: W(Paint(Magenta), Lit("Skipped, "+t.Name+" is running."), Paint(Reset))}},
			})
		} else {
			nodes = append(nodes, step...)
		}
	}

	if fl.cleanObjects && len(objects) > 0 {
		nodes = append(nodes, Comment{Text: "remove intermediate objects"})
		for _, obj := range objects {
			nodes = append(nodes, Remove{Path: obj})
		}
	}

	nodes = append(nodes,
		Remove{Path: lockPath},
		Echo{Text: W(Paint(Cyan), Lit("Result: "), Paint(Reset), Ref(VarResult))},
		Echo{Text: msgRule},
		Blank{},
	)
	return nodes
}

func compileObject(fl flavor, src, obj string) Run {
	if fl.tc == model.MSVC {
		return Run{Args: []Word{
			L("cl"), L("-c"), R(VarIncludeDirs), R(VarDefines), R(VarCompileFlags),
			quoted(src), W(Lit("-Fo"), Path(obj)),
		}}
	}
	return Run{Args: []Word{
		L(fl.cc), L("-c"), L("-fPIC"), R(VarIncludeDirs), R(VarDefines), R(VarCompileFlags),
		quoted(src), L("-o"), quoted(obj),
	}}
}

func archiveObjects(fl flavor, output string, objects []string) Run {
	var args []Word
	if fl.tc == model.MSVC {
		args = []Word{L("lib"), L("-nologo"), W(Lit("-OUT:"), Path(output))}
	} else {
		args = []Word{L("ar"), L("rcs"), quoted(output)}
	}
	for _, obj := range objects {
		args = append(args, quoted(obj))
	}
	return Run{Args: args}
}

func compileAndLink(fl flavor, kind model.TargetKind, s *model.Settings, output string) Run {
	if fl.tc == model.MSVC {
		args := []Word{
			L("cl"), R(VarIncludeDirs), R(VarDefines), R(VarCompileFlags), R(VarSources),
			W(Lit("-Fe"), Path(output)), W(Lit("-Fo"), Path(strings.TrimSuffix(s.OutputDirectory, "/")+"/")),
		}
		if kind == model.DynamicLibrary {
			args = append(args, L("-LD"), L("-link"), R(VarLinkerFlags),
				L(`-PDB:"`+outPath(s, s.OutputBinaryName)+`_%random%.pdb"`))
		} else {
			args = append(args, L("-link"), R(VarLinkerFlags))
		}
		args = append(args, R(VarLinkDirs), R(VarLinkLibs))
		return Run{Args: args}
	}

	args := []Word{L(fl.cc)}
	if kind == model.DynamicLibrary {
		args = append(args, L("-shared"))
	}
	args = append(args,
		L("-fPIC"), R(VarSources), R(VarIncludeDirs), R(VarDefines), R(VarCompileFlags),
		R(VarLinkDirs), R(VarLinkerFlags), R(VarLinkLibs), L("-o"), quoted(output),
	)
	return Run{Args: args}
}
