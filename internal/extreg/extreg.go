// Package extreg is the one place that wires a concrete extension
// implementation (internal/x86ext) into the core's
// program.ExtensionRegistry, keeping internal/transformer and
// internal/program ignorant of which extensions exist: the x86
// arguments extension is a pluggable collaborator, not a core
// dependency.
package extreg

import (
	"github.com/Manu343726/elfhex/internal/program"
	"github.com/Manu343726/elfhex/internal/x86ext"
)

// Default returns the extension registry the CLI installs by default.
func Default() program.ExtensionRegistry {
	reg := make(program.ExtensionRegistry)
	x86ext.Register(reg)
	return reg
}
