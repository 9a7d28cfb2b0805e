package program

import (
	"golang.org/x/exp/constraints"

	"github.com/Manu343726/elfhex/internal/elfherr"
)

// alignUp rounds n up to the next multiple of alignment, expressed
// generically over golang.org/x/exp/constraints the same way
// pkg/utils.Max/Min are.
func alignUp[T constraints.Integer](n, alignment T) T {
	if alignment == 0 {
		return n
	}
	if n%alignment == 0 {
		return n
	}
	return (n/alignment + 1) * alignment
}

// Layout runs the two-pass algorithm: pass 1 assigns every label a
// segment-relative position, pass 2 computes each segment's file
// offset and virtual address from a starting memory address and a
// pre-header size.
func Layout(p *Program, headerSize uint32, memoryStart uint32) error {
	for _, seg := range p.Segments {
		if err := layoutSegmentPass1(seg); err != nil {
			return err
		}
	}
	layoutPass2(p, headerSize, memoryStart)
	return nil
}

// layoutSegmentPass1 walks a segment's contents, binding labels to
// their offset, recording relative references' own offsets, defaulting
// an absolute reference's segment to the enclosing one, and finally
// placing the auto-labels after the file-backed content.
func layoutSegmentPass1(seg *Segment) error {
	seg.Labels = make(map[string]*Label)
	offset := 0

	for _, el := range seg.Contents {
		switch e := el.(type) {
		case *LabelDef:
			if _, exists := seg.Labels[e.Name]; exists {
				return elfherr.Layout("label %q defined more than once in segment %q", e.Name, seg.Name)
			}
			seg.Labels[e.Name] = &Label{Name: e.Name, LocationInSegment: offset}
		case *RelativeReference:
			e.LocationInSegment = offset
		case *AbsoluteReference:
			if e.Segment == "" {
				e.Segment = seg.Name
			}
		}
		offset += el.Size()
	}

	seg.FileSize = offset

	for _, al := range seg.AutoLabels {
		if _, exists := seg.Labels[al.Name]; exists {
			return elfherr.Layout("label %q defined more than once in segment %q", al.Name, seg.Name)
		}
		seg.Labels[al.Name] = &Label{Name: al.Name, LocationInSegment: offset}
		offset += al.Width
	}

	seg.Size = offset
	if seg.MinSize > seg.Size {
		seg.Size = seg.MinSize
	}
	return nil
}

// layoutPass2 places every segment in file and memory order, honouring
// per-segment alignment while keeping file offset and virtual address
// congruent modulo that alignment: this is what makes
// p_vaddr ≡ p_offset (mod p_align) hold for every PT_LOAD.
func layoutPass2(p *Program, headerSize uint32, memoryStart uint32) {
	fileCursor := headerSize
	memCursor := memoryStart + alignUp(headerSize, uint32(p.Metadata.Align))

	for _, seg := range p.Segments {
		align := uint32(seg.EffectiveAlign(p.Metadata.Align))

		// Signed arithmetic: the per-spec shift (file_cursor mod A) -
		// (mem_cursor mod A) can be negative, and uint32 subtraction
		// would wrap instead of moving mem_cursor backwards.
		shift := int64(fileCursor%align) - int64(memCursor%align)
		memCursor = uint32(int64(memCursor) + shift)

		seg.LocationInFile = fileCursor
		seg.LocationInMemory = memCursor

		for _, lbl := range seg.Labels {
			lbl.AbsoluteLocation = memCursor + uint32(lbl.LocationInSegment)
		}

		fileCursor += uint32(seg.FileSize)
		memCursor += alignUp(uint32(seg.Size), uint32(p.Metadata.Align))
	}
}

// Render renders every segment's file-backed content in program order,
// resolving all references against the now-populated label table.
// Labels must already be laid out (Layout must have run first).
func (p *Program) Render() ([]byte, error) {
	var out []byte
	for _, seg := range p.Segments {
		bytes, err := seg.Render(p)
		if err != nil {
			return nil, err
		}
		out = append(out, bytes...)
	}
	return out, nil
}

// Render renders this segment's file-backed elements in order.
func (s *Segment) Render(p *Program) ([]byte, error) {
	ctx := &RenderContext{Program: p, Segment: s}
	var out []byte
	for _, el := range s.Contents {
		bytes, err := el.Render(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, bytes...)
	}
	return out, nil
}
