// plbuild init [name], plbuild new [path]
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/qobs-build/plbuild/internal/builder"
	"github.com/qobs-build/plbuild/internal/msg"
	"github.com/spf13/cobra"
)

func writefile(content string, elem ...string) {
	path := filepath.Join(elem...)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err = os.WriteFile(path, []byte(content), 0o644); err != nil {
			msg.Fatal("create file %s: %v", path, err)
		}
		fmt.Printf("%s file: %s\n", color.HiGreenString("Created"), filepath.ToSlash(path))
	}
}

func mkdir(elem ...string) {
	path := filepath.Join(elem...)
	if err := os.MkdirAll(path, 0o755); err != nil {
		msg.Fatal("mkdir %s: %v", path, err)
	}
}

func getProgramName() string {
	if len(os.Args) == 0 {
		return "plbuild"
	}
	basename := filepath.Base(os.Args[0])
	return strings.TrimSuffix(basename, filepath.Ext(basename))
}

// manifestTemplate is a host executable with one hot-reloadable library,
// for every toolchain, in debug and release.
func manifestTemplate(name string) string {
	return `[project]
name = "` + name + `"
configurations = ["debug", "release"]
working-directory = "scripts"
main-target = "` + name + `"

[common.msvc]
include-directories = ["../src"]
compiler-flags = ["-Zc:preprocessor", "-nologo", "-std:c11", "-W4"]

[common.unix]
include-directories = ["../src"]
compiler-flags = ["-std=gnu11", "-Wall"]

[common.debug]
definitions = ["_DEBUG"]

[[target]]
name = "app"
kind = "dynamic"

  [[target.configuration]]
  name = "debug"

    [[target.configuration.compiler]]
    toolchain = "msvc"
    use = ["msvc", "debug"]
    output-directory = "../out"
    output-binary = "app"
    compiler-flags = ["-Od", "-Z7"]
    source-files = ["../src/app.c"]

    [[target.configuration.compiler]]
    toolchain = "gcc"
    use = ["unix", "debug"]
    output-directory = "../out"
    output-binary = "app"
    compiler-flags = ["-g"]
    source-files = ["../src/app.c"]

    [[target.configuration.compiler]]
    toolchain = "clang"
    use = ["unix", "debug"]
    output-directory = "../out"
    output-binary = "app"
    compiler-flags = ["-g"]
    source-files = ["../src/app.c"]

  [[target.configuration]]
  name = "release"

    [[target.configuration.compiler]]
    toolchain = "msvc"
    use = ["msvc"]
    output-directory = "../out"
    output-binary = "app"
    compiler-flags = ["-O2"]
    source-files = ["../src/app.c"]

    [[target.configuration.compiler]]
    toolchain = "gcc"
    use = ["unix"]
    output-directory = "../out"
    output-binary = "app"
    compiler-flags = ["-O2"]
    source-files = ["../src/app.c"]

    [[target.configuration.compiler]]
    toolchain = "clang"
    use = ["unix"]
    output-directory = "../out"
    output-binary = "app"
    compiler-flags = ["-O2"]
    source-files = ["../src/app.c"]

[[target]]
name = "` + name + `"
kind = "executable"

  [[target.configuration]]
  name = "debug"

    [[target.configuration.compiler]]
    toolchain = "msvc"
    use = ["msvc", "debug"]
    output-directory = "../out"
    output-binary = "` + name + `"
    compiler-flags = ["-Od", "-Z7"]
    source-files = ["../src/main.c"]

    [[target.configuration.compiler]]
    toolchain = "gcc"
    use = ["unix", "debug"]
    output-directory = "../out"
    output-binary = "` + name + `"
    compiler-flags = ["-g"]
    linker-flags = ["dl"]
    source-files = ["../src/main.c"]

    [[target.configuration.compiler]]
    toolchain = "clang"
    use = ["unix", "debug"]
    output-directory = "../out"
    output-binary = "` + name + `"
    compiler-flags = ["-g"]
    source-files = ["../src/main.c"]

  [[target.configuration]]
  name = "release"

    [[target.configuration.compiler]]
    toolchain = "msvc"
    use = ["msvc"]
    output-directory = "../out"
    output-binary = "` + name + `"
    compiler-flags = ["-O2"]
    source-files = ["../src/main.c"]

    [[target.configuration.compiler]]
    toolchain = "gcc"
    use = ["unix"]
    output-directory = "../out"
    output-binary = "` + name + `"
    compiler-flags = ["-O2"]
    linker-flags = ["dl"]
    source-files = ["../src/main.c"]

    [[target.configuration.compiler]]
    toolchain = "clang"
    use = ["unix"]
    output-directory = "../out"
    output-binary = "` + name + `"
    compiler-flags = ["-O2"]
    source-files = ["../src/main.c"]
`
}

// initIn initializes a project in an existing specified directory
func initIn(dir, name string, git bool) {
	writefile(manifestTemplate(name), dir, builder.ManifestFile)

	mkdir(dir, "src")

	// src/app.c
	writefile(`#include <stdio.h>

// Rebuilt while the host keeps running; the host reloads it.
void app_update(void) {
    puts("Hello, World!");
}
`, dir, "src", "app.c")

	// src/main.c
	writefile(`#include <stdio.h>

int main(void) {
    puts("Hello from the host!");
    return 0;
}
`, dir, "src", "main.c")

	// .gitignore
	writefile(`out/
.env
`, dir, ".gitignore")

	if git {
		if err := builder.InitRepository(dir); err != nil {
			msg.Fatal("git init %s: %v", dir, err)
		}
		fmt.Printf("%s git repository in %s\n", color.HiGreenString("Initialized"), filepath.ToSlash(dir))
	}

	programName := getProgramName()
	fmt.Printf("You can now do %s to generate the build scripts.\n", color.HiCyanString(programName+" "+dir))
}

var initGit bool

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Create a new project in the current directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		initIn(".", args[0], initGit)
	},
}

var newCmd = &cobra.Command{
	Use:   "new [path]",
	Short: "Create a new project in a new directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mkdir(args[0])
		initIn(args[0], filepath.Base(args[0]), initGit)
	},
}

func init() {
	// plbuild init subcommand
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initGit, "git", false, "Initialize a git repository")

	// plbuild new subcommand
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().BoolVar(&initGit, "git", false, "Initialize a git repository")
}
