package gen

import (
	"errors"
	"strings"
	"testing"

	"github.com/qobs-build/plbuild/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type settingsFunc func(config string, tc model.Toolchain, sb *model.SettingsBuilder) error

// addTarget registers a target with settings for every configuration of
// configs and every toolchain of tcs.
func addTarget(t *testing.T, b *model.ProjectBuilder, name string, kind model.TargetKind, configs []string, tcs []model.Toolchain, fn settingsFunc) {
	t.Helper()
	err := b.WithTarget(name, kind, func(tb *model.TargetBuilder) error {
		for _, config := range configs {
			err := tb.WithConfiguration(config, func(cb *model.ConfigurationBuilder) error {
				for _, tc := range tcs {
					err := cb.WithCompiler("", tc, func(sb *model.SettingsBuilder) error {
						return fn(config, tc, sb)
					})
					if err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

// hostProject is a host executable "app" that hot reloads the dynamic
// library "game", in debug and release.
func hostProject(t *testing.T) *model.Project {
	t.Helper()
	configs := []string{"debug", "release"}

	b, err := model.NewProject("pilotlight")
	require.NoError(t, err)
	require.NoError(t, b.AddConfiguration(configs...))
	require.NoError(t, b.SetMainTarget("app"))

	addTarget(t, b, "game", model.DynamicLibrary, configs, model.Toolchains, func(config string, tc model.Toolchain, sb *model.SettingsBuilder) error {
		if err := sb.SetOutputDirectory("out"); err != nil {
			return err
		}
		if err := sb.SetOutputBinary("game"); err != nil {
			return err
		}
		if config == "debug" {
			if err := sb.AddDefinitions("_DEBUG", "PL_PROFILE"); err != nil {
				return err
			}
		}
		if err := sb.AddIncludeDirectories("../src", "../extensions"); err != nil {
			return err
		}
		if tc == model.Clang {
			if err := sb.AddLinkLibraries("Cocoa", "Metal"); err != nil {
				return err
			}
		}
		if tc == model.GCC {
			if err := sb.AddLinkerFlags("-ldl", "m"); err != nil {
				return err
			}
		}
		return sb.AddSourceFiles("game.c")
	})
	addTarget(t, b, "app", model.Executable, configs, model.Toolchains, func(config string, tc model.Toolchain, sb *model.SettingsBuilder) error {
		if err := sb.SetOutputDirectory("out"); err != nil {
			return err
		}
		if err := sb.SetOutputBinary("app"); err != nil {
			return err
		}
		return sb.AddSourceFiles("app.c", "platform.c")
	})

	p, err := b.Close()
	require.NoError(t, err)
	model.ResolveDefaults(p)
	return p
}

// machine runs a plan symbolically: every command succeeds and the hot
// reload probe reports a running host when probeHit is set.
type machine struct {
	env      map[string]string
	probeHit bool
	runs     []string
	removed  []string
}

func run(t *testing.T, plan *Plan, config string, probeHit bool) *machine {
	t.Helper()
	m := &machine{env: map[string]string{VarArch: "x86_64"}, probeHit: probeHit}
	m.env[VarConfig] = plan.DefaultConfig
	if config != "" {
		m.env[VarConfig] = config
	}
	m.exec(plan.Init)
	m.exec(plan.Body)
	return m
}

func (m *machine) text(w Word) string {
	var sb strings.Builder
	for _, part := range w {
		switch part.Kind {
		case PartLit:
			sb.WriteString(part.Text)
		case PartPath:
			sb.WriteString(`"` + part.Text + `"`)
		case PartRef:
			sb.WriteString(m.env[part.Text])
		}
	}
	return sb.String()
}

func (m *machine) holds(c Cond) bool {
	switch c := c.(type) {
	case Equals:
		return m.env[c.Name] == c.Value
	case NonZero:
		return m.env[c.Name] != "0" && m.env[c.Name] != ""
	case Not:
		return !m.holds(c.Cond)
	}
	panic("unknown condition")
}

func (m *machine) exec(nodes []Node) {
	for _, n := range nodes {
		switch n := n.(type) {
		case Set:
			m.env[n.Name] = m.text(n.Value)
		case Append:
			m.env[n.Name] += " " + m.text(n.Value)
		case Run:
			args := make([]string, len(n.Args))
			for i, a := range n.Args {
				args[i] = m.text(a)
			}
			m.runs = append(m.runs, strings.Join(strings.Fields(strings.Join(args, " ")), " "))
		case CaptureStatus:
			m.env[n.Name] = "0"
		case Remove:
			m.removed = append(m.removed, n.Path)
		case ProbeInUse:
			if m.probeHit {
				m.env[n.Name] = "1"
			}
		case If:
			if m.holds(n.Cond) {
				m.exec(n.Then)
			} else {
				m.exec(n.Else)
			}
		case Switch:
			matched := false
			for _, c := range n.Cases {
				if m.env[n.Name] == c.Value {
					m.exec(c.Body)
					matched = true
					break
				}
			}
			if !matched {
				m.exec(n.Default)
			}
		}
	}
}

func (m *machine) ran(substr string) bool {
	for _, r := range m.runs {
		if strings.Contains(r, substr) {
			return true
		}
	}
	return false
}

func TestHotReloadGuard(t *testing.T) {
	p := hostProject(t)

	for _, tc := range model.Toolchains {
		t.Run(tc.String(), func(t *testing.T) {
			plan, err := BuildPlan(p, tc)
			require.NoError(t, err)
			fl := flavors[tc]
			app := outPath(p.Target("app").Settings("debug", tc), p.Target("app").Settings("debug", tc).OutputFile())
			game := outPath(p.Target("game").Settings("debug", tc), p.Target("game").Settings("debug", tc).OutputFile())

			idle := run(t, plan, "", false)
			assert.True(t, idle.ran(fl.cc), "compiler never invoked")
			assert.True(t, idle.ran(`"`+app+`"`), "host executable must be rebuilt when idle")
			assert.Contains(t, idle.removed, app)

			hot := run(t, plan, "", true)
			assert.False(t, hot.ran(`"`+app+`"`), "running host executable must not be rebuilt")
			assert.NotContains(t, hot.removed, app, "running host executable must not be removed")
			assert.True(t, hot.ran(`"`+game+`"`), "dynamic library must still be rebuilt")
			assert.Contains(t, hot.removed, game)
		})
	}

	// a second executable is skipped together with the host, so it must
	// survive cleanup as well
	b, err := model.NewProject("p")
	require.NoError(t, err)
	require.NoError(t, b.AddConfiguration("debug"))
	require.NoError(t, b.SetMainTarget("app"))
	for _, name := range []string{"app", "tool"} {
		addTarget(t, b, name, model.Executable, []string{"debug"}, []model.Toolchain{model.GCC}, func(_ string, _ model.Toolchain, sb *model.SettingsBuilder) error {
			if err := sb.SetOutputDirectory("out"); err != nil {
				return err
			}
			if err := sb.SetOutputBinary(name); err != nil {
				return err
			}
			return sb.AddSourceFiles(name + ".c")
		})
	}
	p, err = b.Close()
	require.NoError(t, err)
	model.ResolveDefaults(p)

	plan, err := BuildPlan(p, model.GCC)
	require.NoError(t, err)
	hot := run(t, plan, "", true)
	assert.NotContains(t, hot.removed, "out/tool")
	assert.False(t, hot.ran(`"out/tool"`))
	idle := run(t, plan, "", false)
	assert.Contains(t, idle.removed, "out/tool")
	assert.True(t, idle.ran(`-o "out/tool"`), "%q", idle.runs)
}

func TestNoProbeWithoutMainSettings(t *testing.T) {
	b, err := model.NewProject("p")
	require.NoError(t, err)
	require.NoError(t, b.AddConfiguration("debug"))
	require.NoError(t, b.SetMainTarget("app"))
	addTarget(t, b, "app", model.Executable, []string{"debug"}, []model.Toolchain{model.MSVC}, func(_ string, _ model.Toolchain, sb *model.SettingsBuilder) error {
		return sb.SetOutputBinary("app")
	})
	p, err := b.Close()
	require.NoError(t, err)
	model.ResolveDefaults(p)

	plan, err := BuildPlan(p, model.GCC)
	require.NoError(t, err)
	walk(plan.Body, func(n Node) {
		switch n.(type) {
		case ProbeInUse, Run, WriteLock:
			t.Errorf("unexpected %T in a plan without gcc settings", n)
		}
	})

	plan, err = BuildPlan(p, model.MSVC)
	require.NoError(t, err)
	probes := 0
	walk(plan.Body, func(n Node) {
		if _, ok := n.(ProbeInUse); ok {
			probes++
		}
	})
	assert.Equal(t, 1, probes)
}

func TestConfigurationSelection(t *testing.T) {
	p := hostProject(t)
	plan, err := BuildPlan(p, model.GCC)
	require.NoError(t, err)
	assert.Equal(t, "debug", plan.DefaultConfig)

	debug := run(t, plan, "", false)
	assert.True(t, debug.ran("-D_DEBUG -DPL_PROFILE"))
	assert.Equal(t, "0", debug.env[VarExitCode])

	release := run(t, plan, "release", false)
	assert.False(t, release.ran("-D_DEBUG"))
	assert.True(t, release.ran(`-o "out/game.so"`))

	unknown := run(t, plan, "profile", false)
	assert.Empty(t, unknown.runs)
	assert.Equal(t, "1", unknown.env[VarExitCode])
}

func TestToolchainFlags(t *testing.T) {
	p := hostProject(t)

	gcc, err := BuildPlan(p, model.GCC)
	require.NoError(t, err)
	m := run(t, gcc, "", false)
	assert.True(t, m.ran(`gcc -shared -fPIC game.c -I../src -I../extensions -D_DEBUG -DPL_PROFILE -ldl -lm -o "out/game.so"`), "%q", m.runs)

	clang, err := BuildPlan(p, model.Clang)
	require.NoError(t, err)
	m = run(t, clang, "", false)
	assert.True(t, m.ran("-arch x86_64"), "%q", m.runs)
	assert.True(t, m.ran("-framework Cocoa -framework Metal"), "%q", m.runs)
	m.env = map[string]string{VarArch: "arm64"}
	m.runs = nil
	m.env[VarConfig] = "debug"
	m.exec(clang.Init)
	m.exec(clang.Body)
	assert.True(t, m.ran("-arch arm64"), "%q", m.runs)

	msvc, err := BuildPlan(p, model.MSVC)
	require.NoError(t, err)
	m = run(t, msvc, "", false)
	assert.True(t, m.ran(`cl -I"../src" -I"../extensions" -D_DEBUG -DPL_PROFILE "game.c" -Fe"out/game.dll" -Fo"out/" -LD -link -PDB:"out/game_%random%.pdb"`), "%q", m.runs)
	assert.Contains(t, m.removed, "out/game_*.pdb")
	assert.Contains(t, m.removed, "out/game.obj", "intermediate objects are cleaned up")
}

func TestStaticLibraryGCC(t *testing.T) {
	b, err := model.NewProject("p")
	require.NoError(t, err)
	require.NoError(t, b.AddConfiguration("debug"))
	addTarget(t, b, "pl_lib", model.StaticLibrary, []string{"debug"}, []model.Toolchain{model.GCC}, func(_ string, _ model.Toolchain, sb *model.SettingsBuilder) error {
		if err := sb.SetOutputDirectory("../out"); err != nil {
			return err
		}
		if err := sb.SetOutputBinary("pilotlight"); err != nil {
			return err
		}
		return sb.AddSourceFiles("pilotlight.c")
	})
	p, err := b.Close()
	require.NoError(t, err)
	model.ResolveDefaults(p)

	plan, err := BuildPlan(p, model.GCC)
	require.NoError(t, err)
	m := run(t, plan, "", false)
	require.Len(t, m.runs, 2)
	assert.Equal(t, `gcc -c -fPIC "pilotlight.c" -o "../out/pilotlight.c.o"`, m.runs[0])
	assert.Equal(t, `ar rcs "../out/pilotlight.o" "../out/pilotlight.c.o"`, m.runs[1])

	script, err := NewLinuxGen().Generate(p)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(script, "gcc -c "))
	assert.NotContains(t, script, "-shared")
	assert.NotContains(t, script, "Compiling and Linking")
	assert.NotContains(t, script, "lsof", "no main target, no probe")
}

func TestStaticLibrarySameBaseName(t *testing.T) {
	b, err := model.NewProject("p")
	require.NoError(t, err)
	require.NoError(t, b.AddConfiguration("debug"))
	addTarget(t, b, "lib", model.StaticLibrary, []string{"debug"}, []model.Toolchain{model.GCC, model.MSVC}, func(_ string, _ model.Toolchain, sb *model.SettingsBuilder) error {
		if err := sb.SetOutputDirectory("out"); err != nil {
			return err
		}
		if err := sb.SetOutputBinary("lib"); err != nil {
			return err
		}
		return sb.AddSourceFiles("core/util.c", "draw/util.c", "../ext/util.c", "core/util.c")
	})
	p, err := b.Close()
	require.NoError(t, err)
	model.ResolveDefaults(p)

	plan, err := BuildPlan(p, model.GCC)
	require.NoError(t, err)
	m := run(t, plan, "", false)
	require.Len(t, m.runs, 5)
	assert.Equal(t, `gcc -c -fPIC "core/util.c" -o "out/core_util.c.o"`, m.runs[0])
	assert.Equal(t, `gcc -c -fPIC "draw/util.c" -o "out/draw_util.c.o"`, m.runs[1])
	assert.Equal(t, `gcc -c -fPIC "../ext/util.c" -o "out/___ext_util.c.o"`, m.runs[2])
	assert.Equal(t, `gcc -c -fPIC "core/util.c" -o "out/3_core_util.c.o"`, m.runs[3])
	assert.Equal(t, `ar rcs "out/lib.o" "out/core_util.c.o" "out/draw_util.c.o" "out/___ext_util.c.o" "out/3_core_util.c.o"`, m.runs[4])

	plan, err = BuildPlan(p, model.MSVC)
	require.NoError(t, err)
	m = run(t, plan, "", false)
	assert.True(t, m.ran(`-Fo"out/core_util.c.obj"`), "%q", m.runs)
	assert.True(t, m.ran(`-Fo"out/draw_util.c.obj"`), "%q", m.runs)
}

func TestStaticLibraryStopsOnCompileFailure(t *testing.T) {
	b, err := model.NewProject("p")
	require.NoError(t, err)
	require.NoError(t, b.AddConfiguration("debug"))
	addTarget(t, b, "lib", model.StaticLibrary, []string{"debug"}, []model.Toolchain{model.GCC}, func(_ string, _ model.Toolchain, sb *model.SettingsBuilder) error {
		if err := sb.SetOutputBinary("lib"); err != nil {
			return err
		}
		return sb.AddSourceFiles("a.c", "b.c")
	})
	p, err := b.Close()
	require.NoError(t, err)
	model.ResolveDefaults(p)

	plan, err := BuildPlan(p, model.GCC)
	require.NoError(t, err)

	// the archive step only runs while no compile has failed
	var archive *If
	walk(plan.Body, func(n Node) {
		if n, ok := n.(If); ok {
			if not, ok := n.Cond.(Not); ok && not.Cond == (NonZero{Name: VarStepFailed}) {
				archive = &n
			}
		}
	})
	require.NotNil(t, archive)
	var runs []Run
	walk(archive.Then, func(n Node) {
		if r, ok := n.(Run); ok {
			runs = append(runs, r)
		}
	})
	require.Len(t, runs, 1)
	assert.Equal(t, L("ar"), runs[0].Args[0])
}

func TestBuildPlanRejectsInvalidModel(t *testing.T) {
	p := hostProject(t)
	p.RegisteredConfigurations = nil

	var modelErr *model.InvalidModelError
	_, err := BuildPlan(p, model.GCC)
	assert.True(t, errors.As(err, &modelErr))

	for _, g := range []Generator{NewWin32Gen(), NewLinuxGen(), NewMacOSGen()} {
		_, err := g.Generate(p)
		assert.True(t, errors.As(err, &modelErr), g.Platform())
	}
}

func TestLockToken(t *testing.T) {
	p := hostProject(t)
	game, app := p.Target("game"), p.Target("app")
	assert.Equal(t, lockToken(p, game, "debug", model.GCC), lockToken(p, game, "debug", model.GCC))
	assert.NotEqual(t, lockToken(p, game, "debug", model.GCC), lockToken(p, app, "debug", model.GCC))
	assert.NotEqual(t, lockToken(p, game, "debug", model.GCC), lockToken(p, game, "debug", model.Clang))
}
