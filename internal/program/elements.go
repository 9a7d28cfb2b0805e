package program

import (
	"encoding/binary"

	"github.com/Manu343726/elfhex/internal/elfherr"
)

// RenderContext is what an Element needs to resolve itself at render
// time: the owning Program (for absolute reference lookups across
// segments) and the current Segment (for relative reference lookups
// within it).
type RenderContext struct {
	Program *Program
	Segment *Segment
}

func (c *RenderContext) byteOrder() binary.ByteOrder {
	if c.Program.Metadata.Endianness == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Element is the sum type every segment's contents are built from:
// every variant knows its own size (used during layout pass 1 without
// needing to render) and how to render itself once all labels are
// resolved.
type Element interface {
	Size() int
	Render(ctx *RenderContext) ([]byte, error)
}

// Byte is a single literal byte.
type Byte struct {
	Value byte
}

func (b *Byte) Size() int { return 1 }
func (b *Byte) Render(*RenderContext) ([]byte, error) {
	return []byte{b.Value}, nil
}

// Number is a packed integer literal.
type Number struct {
	Value  int64
	Width  int
	Signed bool
}

func (n *Number) Size() int { return n.Width }

func (n *Number) Render(ctx *RenderContext) ([]byte, error) {
	return packInt(n.Value, n.Width, n.Signed, ctx.byteOrder())
}

func packInt(value int64, width int, signed bool, order binary.ByteOrder) ([]byte, error) {
	if !signed {
		if value < 0 || !fitsUnsigned(value, width) {
			return nil, elfherr.Render("number %d does not fit in %d unsigned byte(s)", value, width)
		}
	} else if !fitsSigned(value, width) {
		return nil, elfherr.Render("number %d does not fit in %d signed byte(s)", value, width)
	}

	buf := make([]byte, width)
	u := uint64(value)
	switch order {
	case binary.LittleEndian:
		for i := 0; i < width; i++ {
			buf[i] = byte(u >> (8 * uint(i)))
		}
	default:
		for i := 0; i < width; i++ {
			buf[width-1-i] = byte(u >> (8 * uint(i)))
		}
	}
	return buf, nil
}

func fitsUnsigned(value int64, width int) bool {
	if width >= 8 {
		return true
	}
	max := int64(1)<<uint(8*width) - 1
	return value <= max
}

func fitsSigned(value int64, width int) bool {
	if width >= 8 {
		return true
	}
	bits := uint(8 * width)
	min := -(int64(1) << (bits - 1))
	max := int64(1)<<(bits-1) - 1
	return value >= min && value <= max
}

// String is a sequence of literal ASCII bytes.
type String struct {
	Value []byte
}

func (s *String) Size() int { return len(s.Value) }
func (s *String) Render(*RenderContext) ([]byte, error) {
	return s.Value, nil
}

// LabelDef binds a label at the current offset during layout pass 1.
// It contributes no bytes.
type LabelDef struct {
	Name string
}

func (l *LabelDef) Size() int { return 0 }
func (l *LabelDef) Render(*RenderContext) ([]byte, error) {
	return nil, nil
}

// RelativeReference resolves to the signed distance from the end of
// this element to Target, a label within the same segment.
type RelativeReference struct {
	Target string
	Width  int

	// LocationInSegment is set during layout pass 1.
	LocationInSegment int
}

func (r *RelativeReference) Size() int { return r.Width }

func (r *RelativeReference) Render(ctx *RenderContext) ([]byte, error) {
	target, ok := ctx.Segment.Labels[r.Target]
	if !ok {
		return nil, elfherr.Render("relative reference to non-existent label %q in segment %q", r.Target, ctx.Segment.Name)
	}
	difference := int64(target.LocationInSegment) - int64(r.LocationInSegment) - int64(r.Width)
	return packInt(difference, r.Width, true, ctx.byteOrder())
}

// AbsoluteReference resolves to label_address(Target, Segment) + Offset,
// packed as a little-/big-endian u32. Segment is filled in with the
// owning segment's name during layout pass 1 if left unset.
type AbsoluteReference struct {
	Target  string
	Offset  int
	Segment string
}

func (a *AbsoluteReference) Size() int { return 4 }

func (a *AbsoluteReference) Render(ctx *RenderContext) ([]byte, error) {
	addr, err := ctx.Program.LabelAddress(a.Target, a.Segment)
	if err != nil {
		return nil, err
	}
	value := int64(addr) + int64(a.Offset)
	buf := make([]byte, 4)
	ctx.byteOrder().PutUint32(buf, uint32(value))
	return buf, nil
}

// ExtensionPayload is the interface a pluggable "x86 arguments"-style
// extension implements: the core only ever calls Size/Render on it.
// Render receives the same
// program/segment context an ordinary reference resolves against, since
// an extension payload (e.g. a ModR/M displacement) may itself embed a
// pointer to a label.
type ExtensionPayload interface {
	Size() int
	Render(ctx *RenderContext) ([]byte, error)
}

// Extension wraps an extension-defined payload inside the Element sum
// type.
type Extension struct {
	Name    string
	Payload ExtensionPayload
}

func (e *Extension) Size() int { return e.Payload.Size() }

func (e *Extension) Render(ctx *RenderContext) ([]byte, error) {
	bytes, err := e.Payload.Render(ctx)
	if err != nil {
		return nil, elfherr.Render("rendering extension %q: %w", e.Name, err)
	}
	return bytes, nil
}
