package x86ext

import (
	"encoding/binary"

	"github.com/Manu343726/elfhex/internal/program"
)

func (*Memory) operand() {}

// operand is either a bare Register (mod=11, register-direct addressing)
// or a *Memory (any other addressing mode).
type operand interface {
	operand()
}

// Displacement is the constant or label-relative offset added to a
// memory operand, resolved at render time (a label's address isn't
// known until layout has run).
type Displacement interface {
	isDisplacement()
}

// IntDisp is a literal displacement.
type IntDisp int32

func (IntDisp) isDisplacement() {}

// LabelDisp is a `dword ptr label` / `dword ptr segment:label`
// displacement: always rendered as a 4-byte address, since its value
// isn't known until the whole program has been laid out.
type LabelDisp struct {
	Label   string
	Segment string
}

func (LabelDisp) isDisplacement() {}

// Memory is the non-register-direct memory operand of an x86
// instruction: some combination of a base register, a scaled index,
// and a displacement.
type Memory struct {
	Base  *Register
	Index *Index
	Disp  Displacement
}

// resolveFunc looks up a LabelDisp's address; for a size-only pass the
// caller supplies a resolver that always returns 0, matching the
// address-independent encoding (a pointer displacement is always 4
// bytes, however it resolves).
type resolveFunc func(label, segment string) (uint32, error)

func isZero(d Displacement) bool {
	if d == nil {
		return true
	}
	i, ok := d.(IntDisp)
	return ok && i == 0
}

// render produces this memory operand's ModR/M (+ SIB, + displacement)
// bytes for the given register field, following the same case-by-case
// structure as the reference x86 argument encoder.
func (m *Memory) render(reg Register, defaultSegment string, resolve resolveFunc) ([]byte, error) {
	firstByte := reg.Bitmask()

	if m.Base == nil && m.Index == nil {
		return extendDisp([]byte{firstByte | 0b00000101}, m.Disp, defaultSegment, resolve, false, true)
	}

	if m.Index == nil {
		firstByte |= m.Base.Value()
		if *m.Base == ESP {
			return extendDisp([]byte{firstByte, 0x24}, m.Disp, defaultSegment, resolve, true, false)
		}
		if isZero(m.Disp) && *m.Base == EBP {
			return []byte{firstByte | (1 << 6), 0}, nil
		}
		return extendDisp([]byte{firstByte}, m.Disp, defaultSegment, resolve, true, false)
	}

	firstByte |= 0b100
	secondByte := m.Index.Bitmask()
	if m.Base == nil {
		secondByte |= 0b101
		return extendDisp([]byte{firstByte, secondByte}, m.Disp, defaultSegment, resolve, false, true)
	}
	secondByte |= m.Base.Value()
	return extendDisp([]byte{firstByte, secondByte}, m.Disp, defaultSegment, resolve, true, false)
}

// extendDisp appends the displacement bytes (if any) to output, setting
// the mod bits in output[0] unless setMod is false (the no-base,
// disp32-only and index-only-with-disp forms encode mod=00 regardless
// of the displacement). fix32 forces a 4-byte displacement even when
// the value would fit in one byte (the disp32-only and index-only forms
// have no other way to represent "no base").
func extendDisp(output []byte, disp Displacement, defaultSegment string, resolve resolveFunc, setMod, fix32 bool) ([]byte, error) {
	firstByte := output[0]
	var dispBytes []byte

	switch d := disp.(type) {
	case nil:
		// an absent displacement behaves like IntDisp(0): fix32 still
		// forces the 4 zero bytes the index-only SIB form requires.
		if fix32 {
			dispBytes = make([]byte, 4)
			firstByte |= 0b10 << 6
		}
	case IntDisp:
		v := int32(d)
		if v != 0 || fix32 {
			if !fix32 && v >= -128 && v <= 127 {
				dispBytes = []byte{byte(int8(v))}
				firstByte |= 1 << 6
			} else {
				dispBytes = make([]byte, 4)
				binary.LittleEndian.PutUint32(dispBytes, uint32(v))
				firstByte |= 0b10 << 6
			}
		}
	case LabelDisp:
		segment := d.Segment
		if segment == "" {
			segment = defaultSegment
		}
		addr, err := resolve(d.Label, segment)
		if err != nil {
			return nil, err
		}
		dispBytes = make([]byte, 4)
		binary.LittleEndian.PutUint32(dispBytes, addr)
		firstByte |= 0b10 << 6
	}

	if setMod {
		output[0] = firstByte
	}
	return append(output, dispBytes...), nil
}

// Args is the full `register, operand` pair an x86 extension block
// parses to, implementing program.ExtensionPayload.
type Args struct {
	Register Register
	Operand  operand
}

func (a *Args) bytes(defaultSegment string, resolve resolveFunc) ([]byte, error) {
	switch op := a.Operand.(type) {
	case Register:
		return []byte{(0b11 << 6) | op.Value() | a.Register.Bitmask()}, nil
	case *Memory:
		return op.render(a.Register, defaultSegment, resolve)
	default:
		return nil, nil
	}
}

// Size returns the number of bytes this operand renders to. A pointer
// displacement always renders as 4 bytes regardless of the address it
// eventually resolves to, so sizing never needs a real program/segment
// context.
func (a *Args) Size() int {
	b, _ := a.bytes("", func(string, string) (uint32, error) { return 0, nil })
	return len(b)
}

// Render resolves any pointer displacement against ctx and produces the
// final byte sequence.
func (a *Args) Render(ctx *program.RenderContext) ([]byte, error) {
	return a.bytes(ctx.Segment.Name, func(label, segment string) (uint32, error) {
		return ctx.Program.LabelAddress(label, segment)
	})
}
