// Package elf implements the binary emitter: a byte-exact ELF32
// file header and PT_LOAD program header table prefixed to the
// segment payloads internal/program has already laid out and can
// render.
package elf

import (
	"encoding/binary"

	"github.com/Manu343726/elfhex/internal/program"
)

const (
	fileHeaderSize  = 52
	progHeaderSize  = 32
	elfclass32      = 1
	littleEndianTag = 1
	bigEndianTag    = 2
	etExec          = 2
	ptLoad          = 1
)

// HeaderMode selects where the ELF header and program header table are
// placed relative to the user's segments.
type HeaderMode int

const (
	// HeaderNone omits the header entirely: the renderer output is the
	// concatenation of segment payloads only.
	HeaderNone HeaderMode = iota
	// HeaderPrepended writes the header and program header table at the
	// start of the file, ahead of the first segment; no PT_LOAD entry
	// covers them, and the first segment's file offset and address
	// start after the reserved header bytes.
	HeaderPrepended
	// HeaderSegment inserts a synthetic `__header__` segment carrying
	// the header as its own PT_LOAD entry.
	HeaderSegment
)

// Options configures Assemble's placement of the header and where the
// program is loaded in memory.
type Options struct {
	Mode        HeaderMode
	MemoryStart uint32
	EntryLabel  string
}

// HeaderSize returns the number of header bytes pass-2 layout must
// reserve: 52 + 32*(N+K), where N is the user segment count and K is 1
// when a dedicated header segment is added.
func HeaderSize(mode HeaderMode, userSegmentCount int) uint32 {
	if mode == HeaderNone {
		return 0
	}
	k := 0
	if mode == HeaderSegment {
		k = 1
	}
	return fileHeaderSize + progHeaderSize*uint32(userSegmentCount+k)
}

// Assemble lays out p and renders the final ELF image (or raw payload,
// with HeaderNone). p must not have been laid out yet.
//
// In HeaderPrepended mode the header occupies no segment of its own:
// pass-2 layout is told to reserve headerSize bytes before the first
// user segment, and the rendered header and program header table are
// concatenated in front of the segment bytes afterwards. In
// HeaderSegment mode the header instead IS a segment — a synthetic
// `__header__` entry inserted at the front of the segment list, sized
// with a placeholder before layout runs (so pass-1 accounts for it like
// any other segment) and filled in with the real bytes once the entry
// address, which depends on layout having already run, is known.
func Assemble(p *program.Program, opts Options) ([]byte, error) {
	userSegmentCount := len(p.Segments)

	var headerSeg *program.Segment
	var preHeaderSize uint32

	switch opts.Mode {
	case HeaderSegment:
		size := int(HeaderSize(HeaderSegment, userSegmentCount))
		headerSeg = &program.Segment{
			Name:     "__header__",
			Flags:    program.FlagRead,
			Contents: []program.Element{rawBytes(make([]byte, size))},
		}
		p.Segments = append([]*program.Segment{headerSeg}, p.Segments...)
	case HeaderPrepended:
		preHeaderSize = HeaderSize(HeaderPrepended, userSegmentCount)
	}

	if err := program.Layout(p, preHeaderSize, opts.MemoryStart); err != nil {
		return nil, err
	}

	if opts.Mode == HeaderNone {
		return p.Render()
	}

	entryAddr, err := p.EntryAddress(opts.EntryLabel)
	if err != nil {
		return nil, err
	}

	// p.Segments includes the synthetic header segment itself in
	// HeaderSegment mode: it is laid out and described by a PT_LOAD
	// entry of its own, which is exactly why HeaderSize reserves K=1
	// extra program header table entry for it.
	header := renderFileHeader(p, entryAddr, len(p.Segments))
	pht := renderProgramHeaderTable(p, p.Segments)

	if opts.Mode == HeaderSegment {
		combined := append(append([]byte{}, header...), pht...)
		headerSeg.Contents = []program.Element{rawBytes(combined)}
		return p.Render()
	}

	body, err := p.Render()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(header)+len(pht)+len(body))
	out = append(out, header...)
	out = append(out, pht...)
	out = append(out, body...)
	return out, nil
}

// rawBytes wraps a pre-rendered byte slice as an Element so the header
// segment can be rendered through the ordinary segment render path.
type rawBytes []byte

func (r rawBytes) Size() int { return len(r) }
func (r rawBytes) Render(*program.RenderContext) ([]byte, error) {
	return []byte(r), nil
}

func byteOrder(e program.Endianness) binary.ByteOrder {
	if e == program.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func renderFileHeader(p *program.Program, entry uint32, phnum int) []byte {
	order := byteOrder(p.Metadata.Endianness)
	buf := make([]byte, fileHeaderSize)

	copy(buf[0:4], []byte{0x7F, 'E', 'L', 'F'})
	buf[4] = elfclass32
	if p.Metadata.Endianness == program.BigEndian {
		buf[5] = bigEndianTag
	} else {
		buf[5] = littleEndianTag
	}
	buf[6] = 1 // ei_version
	// buf[7] ei_osabi, buf[8] ei_abiversion, buf[9:16] padding: zero.

	order.PutUint16(buf[16:18], etExec)
	order.PutUint16(buf[18:20], uint16(p.Metadata.Machine))
	order.PutUint32(buf[20:24], 1) // e_version
	order.PutUint32(buf[24:28], entry)
	order.PutUint32(buf[28:32], fileHeaderSize) // e_phoff
	order.PutUint32(buf[32:36], 0)              // e_shoff
	order.PutUint32(buf[36:40], 0)              // e_flags
	order.PutUint16(buf[40:42], fileHeaderSize)
	order.PutUint16(buf[42:44], progHeaderSize)
	order.PutUint16(buf[44:46], uint16(phnum))
	order.PutUint16(buf[46:48], 0) // e_shentsize
	order.PutUint16(buf[48:50], 0) // e_shnum
	order.PutUint16(buf[50:52], 0) // e_shstrndx

	return buf
}

func renderProgramHeaderTable(p *program.Program, segs []*program.Segment) []byte {
	order := byteOrder(p.Metadata.Endianness)
	out := make([]byte, 0, progHeaderSize*len(segs))

	for _, seg := range segs {
		entry := make([]byte, progHeaderSize)
		order.PutUint32(entry[0:4], ptLoad)
		order.PutUint32(entry[4:8], seg.LocationInFile)
		order.PutUint32(entry[8:12], seg.LocationInMemory)
		order.PutUint32(entry[12:16], seg.LocationInMemory) // p_paddr
		order.PutUint32(entry[16:20], uint32(seg.FileSize))
		order.PutUint32(entry[20:24], uint32(seg.Size))
		order.PutUint32(entry[24:28], uint32(seg.Flags))
		order.PutUint32(entry[28:32], uint32(seg.EffectiveAlign(p.Metadata.Align)))
		out = append(out, entry...)
	}

	return out
}
