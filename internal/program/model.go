// Package program implements the data model (Program, Segment,
// Element, Label) and the two-pass layout engine. It has no I/O and no
// knowledge of the surface syntax: internal/transformer is the only
// producer of a Program, and internal/elf is the only consumer of a
// laid-out one.
package program

import "github.com/Manu343726/elfhex/internal/elfherr"

// Endianness selects the byte order used to pack every multi-byte
// field the renderer emits.
type Endianness int

const (
	LittleEndian Endianness = iota
	BigEndian
)

// Metadata is the per-program configuration: the ELF machine value,
// byte order, and default segment alignment.
type Metadata struct {
	Machine    int
	Endianness Endianness
	Align      int
}

// Flag bits for Segment.Flags, matching ELF32 p_flags.
const (
	FlagRead    = 0x4
	FlagWrite   = 0x2
	FlagExecute = 0x1
)

// Label is a named position within a segment. Size 0: it contributes
// no bytes to the rendered output.
type Label struct {
	Name              string
	LocationInSegment int
	AbsoluteLocation  uint32
}

// AutoLabel reserves in-memory space after a segment's file-backed
// content without contributing file bytes.
type AutoLabel struct {
	Name  string
	Width int
}

// Segment is a PT_LOAD region: an ordered run of Elements plus the
// auto-labels appended after them, and the fields layout fills in.
type Segment struct {
	Name  string
	Flags byte

	// Align is the segment's explicit alignment override, or 0 to fall
	// back to the program default (segment_align).
	Align int

	// MinSize is segment_args.segment_size, or 0 if unset.
	MinSize int

	Contents   []Element
	AutoLabels []AutoLabel

	// Labels is populated by layout pass 1, keyed by name.
	Labels map[string]*Label

	FileSize int
	Size     int

	LocationInFile   uint32
	LocationInMemory uint32
}

// EffectiveAlign returns the alignment this segment lays out at, given
// the program's default.
func (s *Segment) EffectiveAlign(programAlign int) int {
	if s.Align != 0 {
		return s.Align
	}
	return programAlign
}

// Program is the ordered mapping from segment name to Segment plus
// Metadata. Insertion order is preserved and significant.
type Program struct {
	Metadata Metadata
	Segments []*Segment

	index map[string]int
}

// New returns an empty Program with the given metadata.
func New(metadata Metadata) *Program {
	return &Program{Metadata: metadata, index: make(map[string]int)}
}

// AddSegment appends seg to the program. Segment names must be unique
// within a program.
func (p *Program) AddSegment(seg *Segment) error {
	if _, exists := p.index[seg.Name]; exists {
		return elfherr.Layout("segment %q defined more than once", seg.Name)
	}
	p.index[seg.Name] = len(p.Segments)
	p.Segments = append(p.Segments, seg)
	return nil
}

// Segment looks up a segment by name.
func (p *Program) Segment(name string) (*Segment, bool) {
	i, ok := p.index[name]
	if !ok {
		return nil, false
	}
	return p.Segments[i], true
}

// LabelAddress resolves an absolute reference target: if segment is
// non-empty, the label must exist in that segment; otherwise every
// segment is searched in insertion order and the first match wins.
func (p *Program) LabelAddress(target, segment string) (uint32, error) {
	if segment != "" {
		seg, ok := p.Segment(segment)
		if !ok {
			return 0, elfherr.Render("reference to non-existent segment %q", segment)
		}
		lbl, ok := seg.Labels[target]
		if !ok {
			return 0, elfherr.Render("absolute reference to non-existent label %s:%s", segment, target)
		}
		return lbl.AbsoluteLocation, nil
	}
	for _, seg := range p.Segments {
		if lbl, ok := seg.Labels[target]; ok {
			return lbl.AbsoluteLocation, nil
		}
	}
	return 0, elfherr.Render("absolute reference to non-existent label %q", target)
}

// EntryAddress returns the absolute address of the label named
// entryLabel, found by a linear scan over every segment's labels:
// there is no dedicated symbol table, only per-segment label bindings.
func (p *Program) EntryAddress(entryLabel string) (uint32, error) {
	for _, seg := range p.Segments {
		if lbl, ok := seg.Labels[entryLabel]; ok {
			return lbl.AbsoluteLocation, nil
		}
	}
	return 0, elfherr.Render("entry point label %q not defined", entryLabel)
}
