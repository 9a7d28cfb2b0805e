package elfhex

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Manu343726/elfhex/internal/elf"
	"github.com/Manu343726/elfhex/internal/elflog"
	"github.com/Manu343726/elfhex/internal/elfherr"
	"github.com/Manu343726/elfhex/internal/extreg"
	"github.com/Manu343726/elfhex/internal/fileloader"
	"github.com/Manu343726/elfhex/internal/preprocessor"
	"github.com/Manu343726/elfhex/internal/transformer"
	"github.com/Manu343726/elfhex/pkg/utils"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
)

func runAssemble(cmd *cobra.Command, args []string) error {
	inputPath, outputPath := args[0], args[1]

	logger := elflog.New(verbose)

	memoryStart64, err := strconv.ParseUint(viper.GetString("memory-start"), 16, 32)
	if err != nil {
		return reportAndFail(fmt.Errorf("invalid --memory-start %q: %w", viper.GetString("memory-start"), err))
	}

	includePath := viper.GetStringSlice("include-path")
	loader := fileloader.New(includePath)

	elflog.Stage(logger, "preprocess", "input", inputPath, "include_path", utils.FormatSlice(includePath, ":"))
	pp, err := preprocessor.New(loader, viper.GetInt("max-fragment-depth"))
	if err != nil {
		return reportAndFail(err)
	}
	canonical, err := pp.Preprocess(inputPath)
	if err != nil {
		return reportAndFail(err)
	}

	elflog.Stage(logger, "transform")
	prog, err := transformer.Transform(canonical, extreg.Default())
	if err != nil {
		return reportAndFail(err)
	}
	for _, seg := range prog.Segments {
		elflog.Stage(logger, "segment", "name", seg.Name, "flags", utils.FormatUintBinary(uint64(seg.Flags), 3))
	}

	mode := elf.HeaderPrepended
	switch {
	case noHeader:
		mode = elf.HeaderNone
	case headerSegment:
		mode = elf.HeaderSegment
	}

	elflog.Stage(logger, "layout+render", "mode", mode, "memory_start", utils.FormatUintHex(memoryStart64, 8))
	output, err := elf.Assemble(prog, elf.Options{
		Mode:        mode,
		MemoryStart: uint32(memoryStart64),
		EntryLabel:  viper.GetString("entry-label"),
	})
	if err != nil {
		return reportAndFail(err)
	}

	if verbose {
		if dump, err := prog.Dump(); err == nil {
			logger.Debug("laid-out program", "dump", string(dump))
		}
	}

	if err := os.WriteFile(outputPath, output, 0o644); err != nil {
		return reportAndFail(fmt.Errorf("writing %q: %w", outputPath, err))
	}

	successColor.Printf("Assembled. Total size: %d bytes.\n", len(output))
	return nil
}

// reportAndFail prints the two-line error report: the error itself,
// then a trailing summary line. Both go to stdout rather than stderr
// (`print(e, file=sys.stdout)` in the Python original's __main__.py);
// kept as-is instead of "fixing" it.
func reportAndFail(err error) error {
	errorColor.Println(err)
	errorColor.Println("Errors were encountered while processing input.")
	return elfherr.ErrAssembly
}
