package elf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manu343726/elfhex/internal/program"
)

func simpleProgram() *program.Program {
	p := program.New(program.Metadata{Machine: 3, Endianness: program.LittleEndian, Align: 0x1000})
	seg := &program.Segment{
		Name:  "text",
		Flags: program.FlagRead | program.FlagExecute,
		Contents: []program.Element{
			&program.LabelDef{Name: "_start"},
			&program.Byte{Value: 0x90},
		},
	}
	_ = p.AddSegment(seg)
	return p
}

func TestHeaderSize(t *testing.T) {
	assert.Equal(t, uint32(0), HeaderSize(HeaderNone, 3))
	assert.Equal(t, uint32(52+32*2), HeaderSize(HeaderPrepended, 2))
	assert.Equal(t, uint32(52+32*3), HeaderSize(HeaderSegment, 2))
}

func TestAssemble_HeaderNone_IsJustSegmentBytes(t *testing.T) {
	p := simpleProgram()
	out, err := Assemble(p, Options{Mode: HeaderNone, MemoryStart: 0x08048000, EntryLabel: "_start"})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x90}, out)
}

func TestAssemble_HeaderPrepended(t *testing.T) {
	p := simpleProgram()
	out, err := Assemble(p, Options{Mode: HeaderPrepended, MemoryStart: 0x08048000, EntryLabel: "_start"})
	require.NoError(t, err)

	require.True(t, len(out) >= fileHeaderSize+progHeaderSize)
	assert.Equal(t, []byte{0x7F, 'E', 'L', 'F'}, out[0:4])
	assert.Equal(t, byte(elfclass32), out[4])
	assert.Equal(t, byte(littleEndianTag), out[5])

	order := binary.LittleEndian
	entry := order.Uint32(out[24:28])
	// memory start + header size aligned up to 0x1000, shifted by the
	// header size so the address stays congruent with file offset 84.
	assert.Equal(t, uint32(0x08048000+0x1000+fileHeaderSize+progHeaderSize), entry)

	phoff := order.Uint32(out[28:32])
	assert.Equal(t, uint32(fileHeaderSize), phoff)

	phnum := order.Uint16(out[44:46])
	assert.Equal(t, uint16(1), phnum)

	pOffset := order.Uint32(out[fileHeaderSize+4 : fileHeaderSize+8])
	assert.Equal(t, uint32(fileHeaderSize+progHeaderSize), pOffset)

	// One payload byte (0x90) after header+table.
	assert.Equal(t, byte(0x90), out[len(out)-1])
}

func TestAssemble_HeaderSegment(t *testing.T) {
	p := simpleProgram()
	out, err := Assemble(p, Options{Mode: HeaderSegment, MemoryStart: 0x08048000, EntryLabel: "_start"})
	require.NoError(t, err)

	order := binary.LittleEndian
	phnum := order.Uint16(out[44:46])
	assert.Equal(t, uint16(2), phnum, "header segment itself is a PT_LOAD entry, plus the user's text segment")

	headerSegSize := int(HeaderSize(HeaderSegment, 1))
	assert.Equal(t, []byte{0x7F, 'E', 'L', 'F'}, out[0:4])
	// file offset of the first program header entry (the header
	// segment's own) must be 0: it's the first bytes in the file.
	firstEntryOffset := order.Uint32(out[fileHeaderSize+4 : fileHeaderSize+8])
	assert.Equal(t, uint32(0), firstEntryOffset)
	assert.Equal(t, byte(0x90), out[headerSegSize])
}

func TestAssemble_BigEndian(t *testing.T) {
	p := program.New(program.Metadata{Machine: 8, Endianness: program.BigEndian, Align: 0x1000})
	seg := &program.Segment{
		Name:     "text",
		Flags:    program.FlagRead | program.FlagExecute,
		Contents: []program.Element{&program.LabelDef{Name: "_start"}, &program.Byte{Value: 1}},
	}
	require.NoError(t, p.AddSegment(seg))

	out, err := Assemble(p, Options{Mode: HeaderPrepended, MemoryStart: 0x400000, EntryLabel: "_start"})
	require.NoError(t, err)
	assert.Equal(t, byte(bigEndianTag), out[5])
	assert.Equal(t, uint16(8), binary.BigEndian.Uint16(out[18:20]))
}

func TestAssemble_UndefinedEntryLabel(t *testing.T) {
	p := simpleProgram()
	_, err := Assemble(p, Options{Mode: HeaderPrepended, MemoryStart: 0x08048000, EntryLabel: "missing"})
	assert.Error(t, err)
}
