// Package elflog sets up the structured logger every pipeline stage
// (preprocessor, transformer, layout, renderer) logs a debug entry
// line to: a fanout handler so a verbose run can narrate the pipeline
// without changing what a quiet run prints.
package elflog

import (
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// New builds the pipeline logger. With verbose set, debug-level
// entries (one per stage, see Stage) are fanned out to stderr as
// human-readable level-tagged lines; without it, only warnings and
// above are logged.
func New(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	handler := slogmulti.Fanout(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	)

	return slog.New(handler)
}

// Stage logs a stage's entry into the pipeline at debug level, the
// narration a verbose run shows for the Source → Preprocessor →
// Transformer → Layout → Renderer flow.
func Stage(logger *slog.Logger, name string, attrs ...any) {
	logger.Debug("pipeline stage", append([]any{"stage", name}, attrs...)...)
}
