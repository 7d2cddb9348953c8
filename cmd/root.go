// modbuild [path] — build a project rooted at path (default ".").
package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/modbuild/modbuild/internal/msg"
	"github.com/modbuild/modbuild/internal/orchestrate"
)

var (
	flagOutput          string
	flagPackages        string
	flagDebug           bool
	flagNoBuild         bool
	flagCompileCommands bool
	flagCompiler        string
	flagJobs            int
)

func doBuild(cmd *cobra.Command, args []string) {
	projectDir := "."
	if len(args) > 0 {
		projectDir = args[0]
	}

	packagesRoot := flagPackages
	if packagesRoot == "" {
		packagesRoot = os.Getenv("PACKAGES_ROOT")
	}

	outputRoot := flagOutput
	if outputRoot == "" {
		outputRoot = "build"
	}

	result, err := orchestrate.Run(orchestrate.Options{
		ProjectDir:      projectDir,
		OutputRoot:      outputRoot,
		PackagesRoot:    packagesRoot,
		Debug:           flagDebug,
		NoBuild:         flagNoBuild,
		CompileCommands: flagCompileCommands,
		CompilerName:    flagCompiler,
		Parallelism:     flagJobs,
	})
	if err != nil {
		msg.Fatal("%v", err)
	}

	if flagNoBuild {
		msg.Info("resolved %s, nothing built (--no-build)", projectDir)
		return
	}
	msg.Info("built %s", result.OutputPath)
	if flagCompileCommands {
		msg.Info("wrote %d entries to compile_commands.json", result.CompileCommandsLen)
	}
}

var rootCmd = &cobra.Command{
	Use:   "modbuild [project path]",
	Short: "Module-aware build orchestrator",
	Long:  `modbuild resolves a project's packages, precompiles its module interfaces, and builds its artifact.`,
	Args:  cobra.MaximumNArgs(1),
	Run:   doBuild,
}

var buildCmd = &cobra.Command{
	Use:   "build [project path]",
	Short: "Build the project",
	Long:  `Build the project. If no project path is given, uses "."`,
	Args:  cobra.MaximumNArgs(1),
	Run:   doBuild,
}

func init() {
	addBuildFlags(rootCmd)

	rootCmd.AddCommand(buildCmd)
	addBuildFlags(buildCmd)
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", `Build output directory (default "build")`)
	cmd.Flags().StringVar(&flagPackages, "packages", "", "Packages root directory (defaults to $PACKAGES_ROOT)")
	cmd.Flags().BoolVarP(&flagDebug, "debug", "d", false, "Build with debug information, no optimization")
	cmd.Flags().BoolVar(&flagNoBuild, "no-build", false, "Resolve packages and module dependencies without building the project (sources are still scanned and package build scripts still run)")
	cmd.Flags().BoolVar(&flagCompileCommands, "compile-commands", false, "Emit a compile_commands.json alongside the output")
	cmd.Flags().StringVar(&flagCompiler, "compiler", "", "Compiler to invoke (defaults to $CXX/$CC, then PATH lookup)")
	cmd.Flags().IntVarP(&flagJobs, "jobs", "j", runtime.NumCPU(), "Maximum number of concurrent build actions")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
