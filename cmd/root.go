// plbuild [path], plbuild gen [path]
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/qobs-build/plbuild/internal/builder"
	"github.com/qobs-build/plbuild/internal/model"
	"github.com/qobs-build/plbuild/internal/msg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	flagPlatform EnumValue = NewEnumValue("all", map[string]string{
		"all":   "Generate every script (default)",
		"win32": "Windows batch script driving MSVC",
		"linux": "Linux bash script driving GCC",
		"macos": "macOS bash script driving Clang",
	})
	flagVerbose bool
)

// platforms maps the --platform value to the scripts to generate.
func platforms(value string) ([]model.Platform, error) {
	if value == "all" {
		return model.Platforms, nil
	}
	if err := flagPlatform.Set(value); err != nil {
		return nil, fmt.Errorf("invalid platform %q: %w", value, err)
	}
	return []model.Platform{model.Platform(value)}, nil
}

func targetDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

func doGen(cmd *cobra.Command, args []string) {
	// flags are shared by name between root and gen; bind the invoked ones
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		msg.Fatal("%v", err)
	}
	selected, err := platforms(viper.GetString("platform"))
	if err != nil {
		msg.Fatal("%v", err)
	}

	b, err := builder.NewBuilderInDirectory(targetDir(args))
	if err != nil {
		msg.Fatal("%v", err)
	}
	err = b.Build(builder.Options{
		Platforms: selected,
		Check:     viper.GetBool("check"),
		Stamp:     viper.GetBool("stamp"),
		Diff:      msg.Output,
	})
	if err != nil {
		msg.Fatal("%v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "plbuild [project path]",
	Short: "Generate standalone build scripts from a Build.toml",
	Long: `Generate standalone build scripts from a Build.toml.

Emits a batch script for Windows (MSVC) and bash scripts for Linux (GCC)
and macOS (Clang). The scripts do not need plbuild to run.`,
	Args: cobra.MaximumNArgs(1),
	Run:  doGen,
}

var genCmd = &cobra.Command{
	Use:   "gen [project path]",
	Short: "Generate the build scripts",
	Long:  `Generate the build scripts. If no project path is given, uses "."`,
	Args:  cobra.MaximumNArgs(1),
	Run:   doGen,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Print debug output")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	addGenFlags(rootCmd)

	// plbuild gen subcommand
	rootCmd.AddCommand(genCmd)
	addGenFlags(genCmd)
}

func addGenFlags(cmd *cobra.Command) {
	cmd.Flags().VarP(&flagPlatform, "platform", "p", "Script to generate, one of "+flagPlatform.HelpString())
	cmd.RegisterFlagCompletionFunc("platform", flagPlatform.CompletionFunc())
	cmd.Flags().Bool("check", false, "Do not write; fail if the scripts on disk are out of date")
	cmd.Flags().Bool("stamp", false, "Record the git revision of the project in the script headers")
}

// initConfig lets PLBUILD_* environment variables stand in for flags.
func initConfig() {
	viper.SetEnvPrefix("PLBUILD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	msg.SetVerbose(viper.GetBool("verbose"))
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
