package builder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"runtime"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/pelletier/go-toml/v2"
)

const ManifestFile = "Build.toml"

// Manifest is the parsed form of a Build.toml file
type Manifest struct {
	Project ProjectSection             `toml:"project"`
	Common  map[string]CompilerSection `toml:"common"`
	Targets []TargetSection            `toml:"target"`
}

// ProjectSection defines the [project] section
type ProjectSection struct {
	Name             string            `toml:"name"`
	Configurations   []string          `toml:"configurations"`
	WorkingDirectory string            `toml:"working-directory"`
	MainTarget       string            `toml:"main-target"`
	Scripts          map[string]string `toml:"scripts"`
}

// TargetSection defines a [[target]] entry
type TargetSection struct {
	Name           string                 `toml:"name"`
	Kind           string                 `toml:"kind"`
	LockFile       string                 `toml:"lock-file"`
	When           string                 `toml:"when"`
	Configurations []ConfigurationSection `toml:"configuration"`
}

// ConfigurationSection defines a [[target.configuration]] entry
type ConfigurationSection struct {
	Name      string            `toml:"name"`
	When      string            `toml:"when"`
	Compilers []CompilerSection `toml:"compiler"`
}

// CompilerSection defines a [[target.configuration.compiler]] entry and the
// reusable [common.*] groups it can pull in with `use`.
type CompilerSection struct {
	Name      string   `toml:"name"`
	Toolchain string   `toml:"toolchain"`
	Use       []string `toml:"use"`
	When      string   `toml:"when"`

	OutputDirectory string  `toml:"output-directory"`
	OutputBinary    string  `toml:"output-binary"`
	OutputExtension *string `toml:"output-extension"`

	Definitions        []string `toml:"definitions"`
	CompilerFlags      []string `toml:"compiler-flags"`
	LinkerFlags        []string `toml:"linker-flags"`
	IncludeDirectories []string `toml:"include-directories"`
	LinkDirectories    []string `toml:"link-directories"`
	LinkLibraries      []string `toml:"link-libraries"`
	SourceFiles        []string `toml:"source-files"`
}

// resolveUse returns c with its `use` groups applied: groups first in listed
// order, then c itself. List fields append, scalars are overridden.
func (m *Manifest) resolveUse(c CompilerSection) (CompilerSection, error) {
	var merged CompilerSection
	for _, name := range c.Use {
		group, ok := m.Common[name]
		if !ok {
			return merged, fmt.Errorf("unknown common group %q", name)
		}
		if len(group.Use) > 0 {
			return merged, fmt.Errorf("common group %q: `use` is not allowed inside a common group", name)
		}
		if err := mergeStructs(&merged, group); err != nil {
			return merged, err
		}
	}
	// a group's `when` never leaks into the entry using it
	merged.When = ""
	if err := mergeStructs(&merged, c); err != nil {
		return merged, err
	}
	merged.Use = c.Use
	return merged, nil
}

// mergeStructs merges the fields of the src struct into the dst struct
func mergeStructs(dst, src any) error {
	dstVal := reflect.ValueOf(dst)
	if dstVal.Kind() != reflect.Pointer || dstVal.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("dst must be a pointer to a struct")
	}

	dstElem := dstVal.Elem()
	srcVal := reflect.ValueOf(src)

	if srcVal.Kind() == reflect.Pointer {
		srcVal = srcVal.Elem()
	}

	if srcVal.Kind() != reflect.Struct {
		return fmt.Errorf("src must be a struct or a pointer to a struct")
	}

	if dstElem.Type() != srcVal.Type() {
		return fmt.Errorf("dst and src must be of the same struct type")
	}

	for i := range srcVal.NumField() {
		srcField := srcVal.Field(i)
		dstField := dstElem.Field(i)

		if !dstField.CanSet() {
			continue
		}

		switch dstField.Kind() {
		case reflect.Slice:
			if !srcField.IsNil() {
				dstField.Set(reflect.AppendSlice(dstField, srcField))
			}
		case reflect.Map:
			if !srcField.IsNil() {
				if dstField.IsNil() {
					dstField.Set(reflect.MakeMap(dstField.Type()))
				}
				for _, key := range srcField.MapKeys() {
					dstField.SetMapIndex(key, srcField.MapIndex(key))
				}
			}
		default:
			if !srcField.IsZero() {
				dstField.Set(srcField)
			}
		}
	}

	return nil
}

func mustMarshal(v any) string {
	b, err := toml.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

var exprRegex = regexp.MustCompile(`\{\{(.+?)\}\}`)

// evaluateString finds and evaluates all {{...}} expressions in a string
func evaluateString(s string, env ManifestEnv) (string, error) {
	matches := exprRegex.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	var builder strings.Builder
	lastIndex := 0

	for _, matchIndexes := range matches {
		fullMatchStart := matchIndexes[0]
		fullMatchEnd := matchIndexes[1]
		expressionStart := matchIndexes[2]
		expressionEnd := matchIndexes[3]

		builder.WriteString(s[lastIndex:fullMatchStart])

		expression := strings.TrimSpace(s[expressionStart:expressionEnd])
		program, err := expr.Compile(expression, expr.Env(env))
		if err != nil {
			return "", fmt.Errorf("failed to compile expression %q: %w", expression, err)
		}

		result, err := expr.Run(program, env)
		if err != nil {
			return "", fmt.Errorf("failed to run expression %q: %w", expression, err)
		}

		builder.WriteString(fmt.Sprintf("%v", result))
		lastIndex = fullMatchEnd
	}

	builder.WriteString(s[lastIndex:])

	return builder.String(), nil
}

// processExpressions recursively walks the parsed TOML data and evaluates expressions in strings
func processExpressions(data any, env ManifestEnv) (any, error) {
	switch v := data.(type) {
	case map[string]any:
		for key, val := range v {
			processedVal, err := processExpressions(val, env)
			if err != nil {
				return nil, err
			}
			v[key] = processedVal
		}
		return v, nil
	case []any:
		for i, item := range v {
			processedItem, err := processExpressions(item, env)
			if err != nil {
				return nil, err
			}
			v[i] = processedItem
		}
		return v, nil
	case []map[string]any:
		// arrays of tables ([[target]]) decode to this
		for _, item := range v {
			if _, err := processExpressions(item, env); err != nil {
				return nil, err
			}
		}
		return v, nil
	case string:
		return evaluateString(v, env)
	default:
		return data, nil
	}
}

// evaluateCondition runs a `when` expression. An empty condition holds.
func evaluateCondition(cond string, env ManifestEnv) (bool, error) {
	if strings.TrimSpace(cond) == "" {
		return true, nil
	}
	program, err := expr.Compile(cond, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("failed to compile condition %q: %w", cond, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("failed to run condition %q: %w", cond, err)
	}
	return result.(bool), nil
}

// ParseManifest decodes a manifest and evaluates its {{ }} interpolations.
// `when` conditions are kept as written; they are evaluated per entry while
// the project model is constructed.
func ParseManifest(rdr io.Reader, env ManifestEnv) (*Manifest, error) {
	var rawConfig map[string]any
	dec := toml.NewDecoder(rdr)
	if err := dec.Decode(&rawConfig); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			return nil, errors.New(derr.String())
		}
		return nil, err
	}

	if project, ok := rawConfig["project"].(map[string]any); ok {
		if name, ok := project["name"].(string); ok {
			env.Project = name
		}
	}

	processedConfig, err := processExpressions(rawConfig, env)
	if err != nil {
		return nil, fmt.Errorf("error processing expressions in manifest: %w", err)
	}

	m := new(Manifest)
	dec = toml.NewDecoder(strings.NewReader(mustMarshal(processedConfig)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(m); err != nil {
		var serr *toml.StrictMissingError
		if errors.As(err, &serr) {
			return nil, errors.New(serr.String())
		}
		return nil, err
	}
	return m, nil
}

// ParseManifestFromFile parses a manifest from a filepath
func ParseManifestFromFile(path string, env ManifestEnv) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseManifest(bufio.NewReader(f), env)
}

//
// expr-lang environment
//

type ManifestEnv struct {
	HostOS   string            `expr:"host_os"`
	HostArch string            `expr:"host_arch"`
	Environ  map[string]string `expr:"environ"`
	Project  string            `expr:"project"`

	// set while evaluating `when` conditions
	Target    string `expr:"target"`
	Kind      string `expr:"kind"`
	Config    string `expr:"config"`
	Toolchain string `expr:"toolchain"`

	basedir string
}

// NewManifestEnv captures the host and the process environment. Entries of
// dotenv override the process environment.
func NewManifestEnv(basedir string, dotenv map[string]string) ManifestEnv {
	environ := make(map[string]string)
	for _, e := range os.Environ() {
		if i := strings.Index(e, "="); i >= 0 {
			environ[e[:i]] = e[i+1:]
		}
	}
	for k, v := range dotenv {
		environ[k] = v
	}

	return ManifestEnv{
		HostOS:   runtime.GOOS,
		HostArch: runtime.GOARCH,
		Environ:  environ,
		basedir:  basedir,
	}
}

// projectPath joins path onto the project directory, refusing paths that
// escape it.
func (env ManifestEnv) projectPath(path string) (string, error) {
	fullPath := filepath.Join(env.basedir, path)
	rel, err := filepath.Rel(env.basedir, fullPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside of project directory %q", path, env.basedir)
	}
	return fullPath, nil
}

// ReadFile returns the trimmed contents of a file inside the project
// directory, e.g. `{{ ReadFile("VERSION") }}`.
func (env ManifestEnv) ReadFile(path string) (string, error) {
	fullPath, err := env.projectPath(path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Exists reports whether path exists inside the project directory. Paths
// outside of it never exist.
func (env ManifestEnv) Exists(path string) bool {
	fullPath, err := env.projectPath(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(fullPath)
	return err == nil
}
