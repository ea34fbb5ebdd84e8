package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderWellNested(t *testing.T) {
	b, err := NewProject("pilotlight")
	require.NoError(t, err)
	require.NoError(t, b.AddConfiguration("debug", "release"))
	require.NoError(t, b.SetMainTarget("app"))
	require.NoError(t, b.SetScriptName(Linux, "build_linux"))

	err = b.WithTarget("lib", StaticLibrary, func(tb *TargetBuilder) error {
		return tb.WithConfiguration("debug", func(cb *ConfigurationBuilder) error {
			return cb.WithCompiler("gcc", GCC, func(sb *SettingsBuilder) error {
				require.NoError(t, sb.SetOutputBinary("lib"))
				require.NoError(t, sb.AddDefinitions("A", "B"))
				require.NoError(t, sb.AddDefinitions("A"))
				return sb.AddSourceFiles("lib.c")
			})
		})
	})
	require.NoError(t, err)

	tb, err := b.Target("app", Executable)
	require.NoError(t, err)
	cb, err := tb.Configuration("debug")
	require.NoError(t, err)
	sb, err := cb.Compiler("", Clang)
	require.NoError(t, err)
	assert.Equal(t, 4, b.Depth())
	require.NoError(t, sb.SetOutputBinary("app"))
	require.NoError(t, sb.Close())
	require.NoError(t, cb.Close())
	require.NoError(t, tb.Close())

	p, err := b.Close()
	require.NoError(t, err)
	assert.Equal(t, 0, b.Depth())

	require.Len(t, p.Targets, 2)
	assert.Equal(t, "lib", p.Targets[0].Name)
	assert.Equal(t, "app", p.Targets[1].Name)
	assert.Equal(t, []string{"debug", "release"}, p.RegisteredConfigurations)
	assert.Equal(t, "build_linux", p.ScriptName(Linux))
	assert.Equal(t, "build_pilotlight_win32", p.ScriptName(Win32))

	lib := p.Targets[0].Settings("debug", GCC)
	require.NotNil(t, lib)
	assert.Equal(t, []string{"A", "B", "A"}, lib.Definitions)
	assert.Equal(t, DefaultOutputDirectory, lib.OutputDirectory)
	assert.Nil(t, lib.OutputExtension)
	assert.Equal(t, DefaultLockFile, p.Targets[0].LockFileName)

	app := p.Targets[1].Settings("debug", Clang)
	require.NotNil(t, app)
	assert.Equal(t, "clang", app.Name)
}

func TestBuilderScopeErrors(t *testing.T) {
	var scopeErr *InvalidScopeError

	tests := []struct {
		name string
		run  func(b *ProjectBuilder) error
	}{
		{
			name: "close target while configuration is open",
			run: func(b *ProjectBuilder) error {
				tb, _ := b.Target("t", Executable)
				_, _ = tb.Configuration("debug")
				return tb.Close()
			},
		},
		{
			name: "close project while target is open",
			run: func(b *ProjectBuilder) error {
				_, _ = b.Target("t", Executable)
				_, err := b.Close()
				return err
			},
		},
		{
			name: "mutate settings after close",
			run: func(b *ProjectBuilder) error {
				tb, _ := b.Target("t", Executable)
				cb, _ := tb.Configuration("debug")
				sb, _ := cb.Compiler("gcc", GCC)
				_ = sb.Close()
				return sb.AddDefinitions("LATE")
			},
		},
		{
			name: "open a second target while one is open",
			run: func(b *ProjectBuilder) error {
				_, _ = b.Target("a", Executable)
				_, err := b.Target("b", Executable)
				return err
			},
		},
		{
			name: "open configuration from a closed target",
			run: func(b *ProjectBuilder) error {
				tb, _ := b.Target("t", Executable)
				_ = tb.Close()
				_, err := tb.Configuration("debug")
				return err
			},
		},
		{
			name: "mutate target while settings are open",
			run: func(b *ProjectBuilder) error {
				tb, _ := b.Target("t", Executable)
				cb, _ := tb.Configuration("debug")
				_, _ = cb.Compiler("gcc", GCC)
				return tb.SetLockFile("other.tmp")
			},
		},
		{
			name: "duplicate toolchain on a closed configuration",
			run: func(b *ProjectBuilder) error {
				tb, _ := b.Target("t", Executable)
				cb, _ := tb.Configuration("debug")
				_ = cb.WithCompiler("", GCC, func(*SettingsBuilder) error { return nil })
				_ = cb.Close()
				_, err := cb.Compiler("", GCC)
				return err
			},
		},
		{
			name: "unnamed target from a closed project",
			run: func(b *ProjectBuilder) error {
				_, _ = b.Close()
				_, err := b.Target("", Executable)
				return err
			},
		},
		{
			name: "close twice",
			run: func(b *ProjectBuilder) error {
				tb, _ := b.Target("t", Executable)
				_ = tb.Close()
				return tb.Close()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewProject("p")
			require.NoError(t, err)
			err = tt.run(b)
			require.Error(t, err)
			assert.True(t, errors.As(err, &scopeErr), "got %T: %v", err, err)
		})
	}
}

func TestBuilderModelErrors(t *testing.T) {
	var modelErr *InvalidModelError

	_, err := NewProject("")
	assert.True(t, errors.As(err, &modelErr))

	b, err := NewProject("p")
	require.NoError(t, err)

	_, err = b.Target("", Executable)
	assert.True(t, errors.As(err, &modelErr))

	err = b.WithTarget("t", Executable, func(tb *TargetBuilder) error {
		return tb.WithConfiguration("debug", func(cb *ConfigurationBuilder) error {
			require.NoError(t, cb.WithCompiler("gcc", GCC, func(*SettingsBuilder) error { return nil }))
			_, err := cb.Compiler("gcc-again", GCC)
			return err
		})
	})
	assert.True(t, errors.As(err, &modelErr))

	assert.Error(t, b.SetScriptName("plan9", "x"))
}

func TestBuilderReleasesScopesOnFailure(t *testing.T) {
	b, err := NewProject("p")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = b.WithTarget("t", DynamicLibrary, func(tb *TargetBuilder) error {
		return tb.WithConfiguration("debug", func(cb *ConfigurationBuilder) error {
			_, err := cb.Compiler("gcc", GCC) // left open on purpose
			require.NoError(t, err)
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, b.Depth())

	assert.Panics(t, func() {
		_ = b.WithTarget("t2", Executable, func(tb *TargetBuilder) error {
			_, _ = tb.Configuration("debug")
			panic("abnormal exit")
		})
	})
	assert.Equal(t, 1, b.Depth())

	p, err := b.Close()
	require.NoError(t, err)
	assert.Empty(t, p.Targets, "aborted scopes must not be appended")
}

func TestBuilderRegistrationAfterClose(t *testing.T) {
	b, err := NewProject("p")
	require.NoError(t, err)
	_, err = b.Close()
	require.NoError(t, err)

	var scopeErr *InvalidScopeError
	assert.True(t, errors.As(b.AddConfiguration("debug"), &scopeErr))
	assert.True(t, errors.As(b.SetMainTarget("x"), &scopeErr))
}
