package x86ext

import "github.com/Manu343726/elfhex/internal/program"

// ExtensionName is the name a source file uses to reach this extension,
// e.g. `:x86 { ecx, [esi + 8] }`.
const ExtensionName = "x86"

// Factory adapts Parse to program.ExtensionFactory, ready to be
// registered under ExtensionName.
func Factory(payload string) (program.ExtensionPayload, error) {
	return Parse(payload)
}

// Register installs this extension's factory into reg under
// ExtensionName.
func Register(reg program.ExtensionRegistry) {
	reg[ExtensionName] = Factory
}
