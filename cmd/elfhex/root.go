// Package elfhex is the command-line front end: argument parsing,
// config/environment defaults, and wiring the pipeline of
// internal/preprocessor, internal/transformer and internal/elf
// together. It is the one package allowed to touch the filesystem
// outside of internal/fileloader.
package elfhex

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	memoryStartHex   string
	maxFragmentDepth int
	entryLabel       string
	includePaths     []string
	noHeader         bool
	headerSegment    bool
	verbose          bool
)

// RootCmd is ELFHex's single command: there are no subcommands, only
// one assembler invocation.
var RootCmd = &cobra.Command{
	Use:   "elfhex <input_path> <output_path>",
	Short: "A minimal hexadecimal ELF32 assembler",
	Long: `ELFHex turns a source file of raw hex bytes, numeric and string literals,
labels, label references, segment declarations, include directives and
parameterised fragments into a statically linkable 32-bit ELF executable.`,
	Args: cobra.ExactArgs(2),
	RunE: runAssemble,

	// The error report is already printed by reportAndFail; cobra's own
	// "Error: ..." plus usage dump would duplicate and reformat it.
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs RootCmd, exiting with status 1 on error.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := RootCmd.Flags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default $HOME/.elfhexrc.yaml)")
	flags.StringVarP(&memoryStartHex, "memory-start", "s", "08048000", "starting memory address, in hexadecimal")
	flags.IntVarP(&maxFragmentDepth, "max-fragment-depth", "f", 16, "maximum depth when resolving fragment references")
	flags.StringVarP(&entryLabel, "entry-label", "e", "_start", "the label to use as the entry point")
	flags.StringSliceVarP(&includePaths, "include-path", "i", []string{"."}, "a path to search for source files (repeatable)")
	flags.BoolVarP(&noHeader, "no-header", "r", false, "do not output the ELF header")
	flags.BoolVarP(&headerSegment, "header-segment", "H", false, "place the ELF header in a dedicated PT_LOAD segment")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log each pipeline stage to stderr")

	for _, name := range []string{"memory-start", "max-fragment-depth", "entry-label", "include-path"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}

	cobra.OnInitialize(initConfig)
}
