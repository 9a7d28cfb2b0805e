// Package x86ext implements an optional x86 ModR/M argument extension,
// a pluggable "x86 arguments" collaborator the core only knows through
// the program.ExtensionPayload interface: parsing `reg, mem` text into
// a ModR/M (and, when needed, SIB plus displacement) byte sequence,
// following Intel operand order (register first).
package x86ext

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Manu343726/elfhex/pkg/utils"
)

// Register is one of the eight 32-bit general-purpose x86 registers,
// identified by its 3-bit ModR/M encoding.
type Register uint8

const (
	EAX Register = iota
	ECX
	EDX
	EBX
	ESP
	EBP
	ESI
	EDI
)

func (Register) operand() {}

// registerNames maps the canonical 32-bit register names to their
// encoding.
var registerNames = map[string]Register{
	"EAX": EAX, "ECX": ECX, "EDX": EDX, "EBX": EBX,
	"ESP": ESP, "EBP": EBP, "ESI": ESI, "EDI": EDI,
}

// registerAliases gives unary-opcode callers a second name for the
// register field when the surface syntax wants an 8-bit-register-style
// name instead of a bare number; the mapping itself is arbitrary (it
// mirrors the positional index of the 8-bit low/high register names),
// not a claim that e.g. AL and EAX are interchangeable operands.
var registerAliases = map[string]Register{
	"AL": EAX, "CL": ECX, "DL": EDX, "BL": EBX,
	"AH": ESP, "CH": EBP, "DH": ESI, "BH": EDI,
}

// RegisterFromName resolves name, which may be a register mnemonic
// (any case), an alias, or a bare decimal encoding (0-7) used when an
// opcode's unary operand needs only the register field.
func RegisterFromName(name string) (Register, error) {
	name = strings.TrimSpace(name)
	if n, err := strconv.Atoi(name); err == nil {
		if n < 0 || n > 7 {
			return 0, fmt.Errorf("register number %d out of range 0-7", n)
		}
		return Register(n), nil
	}
	upper := strings.ToUpper(name)
	if r, ok := registerAliases[upper]; ok {
		return r, nil
	}
	if r, ok := registerNames[upper]; ok {
		return r, nil
	}
	return 0, fmt.Errorf("unrecognized x86 register %q", name)
}

// Value returns the register's plain 3-bit encoding, used for the base
// and rm fields.
func (r Register) Value() uint8 { return uint8(r) }

// Bitmask returns the register's encoding pre-shifted into bits 3-5,
// the position a ModR/M reg field or a SIB index field occupies.
func (r Register) Bitmask() uint8 {
	var b uint8
	view := utils.CreateBitView(&b)
	view.Write(uint8(r), 3, 3)
	return b
}

// Scale is the SIB byte's 2-bit scale factor for a scaled index.
type Scale uint8

const (
	ScaleOne   Scale = 1
	ScaleTwo   Scale = 2
	ScaleFour  Scale = 4
	ScaleEight Scale = 8
)

// ScaleFromNumber validates a parsed scale literal against the four
// values the SIB byte can encode.
func ScaleFromNumber(n int) (Scale, error) {
	switch n {
	case 1, 2, 4, 8:
		return Scale(n), nil
	default:
		return 0, fmt.Errorf("invalid x86 scale %d, must be 1, 2, 4 or 8", n)
	}
}

// Bitmask returns the scale pre-shifted into the SIB byte's bits 6-7.
func (s Scale) Bitmask() uint8 {
	var log2 uint8
	for v := uint8(s); v > 1; v >>= 1 {
		log2++
	}
	var b uint8
	view := utils.CreateBitView(&b)
	view.Write(log2, 6, 2)
	return b
}

// Index is a SIB byte's scaled-index component.
type Index struct {
	Register Register
	Scale    Scale
}

// Bitmask returns the combined scale and index-register bits of the SIB
// byte (bits 3-7); the base register contributes bits 0-2 separately.
func (i Index) Bitmask() uint8 {
	return i.Scale.Bitmask() | i.Register.Bitmask()
}
