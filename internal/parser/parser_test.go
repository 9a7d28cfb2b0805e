package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manu343726/elfhex/internal/ast"
)

func TestParse_Metadata(t *testing.T) {
	file, err := Parse(`program 3 < 4`)
	require.NoError(t, err)
	assert.Equal(t, 3, file.Metadata.Machine)
	assert.Equal(t, ast.LittleEndian, file.Metadata.Endianness)
	assert.Equal(t, 4, file.Metadata.Align)

	file, err = Parse(`program 62 > 1`)
	require.NoError(t, err)
	assert.Equal(t, ast.BigEndian, file.Metadata.Endianness)
}

func TestParse_BytesAndStrings(t *testing.T) {
	file, err := Parse(`program 3 < 1 segment seg() { ff 00 "hi" }`)
	require.NoError(t, err)
	require.Len(t, file.TopLevel, 1)
	seg := file.TopLevel[0].(*ast.Segment)
	require.Len(t, seg.Contents, 3)
	assert.Equal(t, uint8(0xff), seg.Contents[0].(*ast.Byte).Value)
	assert.Equal(t, uint8(0x00), seg.Contents[1].(*ast.Byte).Value)
	assert.Equal(t, []byte("hi"), seg.Contents[2].(*ast.String).Value)
}

func TestParse_Numbers(t *testing.T) {
	cases := []struct {
		text   string
		value  int64
		width  int
		signed bool
	}{
		{"=10d4", 10, 4, false},
		{"=ffh1", 0xff, 1, false},
		{"=101b1", 5, 1, false},
		{"+5d1", 5, 1, true},
		{"-5d1", -5, 1, true},
		{"=42d1", 42, 1, false},
	}
	for _, c := range cases {
		file, err := Parse(`program 3 < 1 segment seg() { ` + c.text + ` }`)
		require.NoError(t, err, c.text)
		seg := file.TopLevel[0].(*ast.Segment)
		num := seg.Contents[0].(*ast.Number)
		assert.Equal(t, c.value, num.Value, c.text)
		assert.Equal(t, c.width, num.Width, c.text)
		assert.Equal(t, c.signed, num.Signed, c.text)
	}
}

func TestParse_LabelsAndReferences(t *testing.T) {
	file, err := Parse(`program 3 < 1
		segment seg() {
			[start]
			<start>
			<start:4>
			<<start>>
			<<start + 4>>
			<<other:start>>
		}`)
	require.NoError(t, err)
	seg := file.TopLevel[0].(*ast.Segment)
	require.Len(t, seg.Contents, 6)

	lbl := seg.Contents[0].(*ast.Label)
	assert.Equal(t, "start", lbl.Name)

	rel := seg.Contents[1].(*ast.RelRef)
	assert.Equal(t, "start", rel.Target)
	assert.Equal(t, 1, rel.Width)

	rel4 := seg.Contents[2].(*ast.RelRef)
	assert.Equal(t, 4, rel4.Width)

	abs := seg.Contents[3].(*ast.AbsRef)
	assert.Equal(t, "start", abs.Target)
	assert.Equal(t, "", abs.Segment)
	assert.Equal(t, 0, abs.Offset)

	absOffset := seg.Contents[4].(*ast.AbsRef)
	assert.Equal(t, 4, absOffset.Offset)

	absSeg := seg.Contents[5].(*ast.AbsRef)
	assert.Equal(t, "other", absSeg.Segment)
	assert.Equal(t, "start", absSeg.Target)
}

func TestParse_SegmentArgs(t *testing.T) {
	file, err := Parse(`program 3 < 1
		segment seg(segment_flags: rwx, segment_align: 4096, segment_size: 128) { }`)
	require.NoError(t, err)
	seg := file.TopLevel[0].(*ast.Segment)
	assert.Equal(t, "rwx", seg.Args.Flags)
	assert.True(t, seg.Args.HasFlags)
	assert.Equal(t, 4096, seg.Args.Align)
	assert.True(t, seg.Args.HasAlign)
	assert.Equal(t, 128, seg.Args.Size)
	assert.True(t, seg.Args.HasSize)
}

func TestParse_AutoLabels(t *testing.T) {
	file, err := Parse(`program 3 < 1
		segment seg() { ff } [[ bss: 64 other: 4 ]]`)
	require.NoError(t, err)
	seg := file.TopLevel[0].(*ast.Segment)
	require.Len(t, seg.AutoLabels, 2)
	assert.Equal(t, "bss", seg.AutoLabels[0].Name)
	assert.Equal(t, 64, seg.AutoLabels[0].Width)
	assert.Equal(t, "other", seg.AutoLabels[1].Name)
	assert.Equal(t, 4, seg.AutoLabels[1].Width)
}

func TestParse_IncludeAndFragment(t *testing.T) {
	file, err := Parse(`program 3 < 1
		include "a.hex"
		include fragments "b.hex"
		fragment foo($x $y) {
			$x
			@bar($y)
		}
		segment seg() {
			@foo(=1d1, =2d1)
			@!unique_one()
			@baz()(alias)
		}`)
	require.NoError(t, err)
	require.Len(t, file.TopLevel, 4)

	inc := file.TopLevel[0].(*ast.Include)
	assert.Equal(t, "a.hex", inc.Path)
	assert.False(t, inc.FragmentsOnly)

	incFrag := file.TopLevel[1].(*ast.Include)
	assert.Equal(t, "b.hex", incFrag.Path)
	assert.True(t, incFrag.FragmentsOnly)

	frag := file.TopLevel[2].(*ast.Fragment)
	assert.Equal(t, "foo", frag.Name)
	assert.Equal(t, []string{"x", "y"}, frag.Parameters)
	require.Len(t, frag.Contents, 2)
	assert.Equal(t, "x", frag.Contents[0].(*ast.FragmentVar).Name)
	nestedRef := frag.Contents[1].(*ast.FragmentRef)
	assert.Equal(t, "bar", nestedRef.Name)

	seg := file.TopLevel[3].(*ast.Segment)
	require.Len(t, seg.Contents, 3)

	ref := seg.Contents[0].(*ast.FragmentRef)
	assert.Equal(t, "foo", ref.Name)
	require.Len(t, ref.Actuals, 2)
	assert.False(t, ref.Unique)

	unique := seg.Contents[1].(*ast.FragmentRef)
	assert.Equal(t, "unique_one", unique.Name)
	assert.True(t, unique.Unique)

	aliased := seg.Contents[2].(*ast.FragmentRef)
	assert.Equal(t, "baz", aliased.Name)
	assert.Equal(t, "alias", aliased.Alias)
}

func TestParse_Extension(t *testing.T) {
	file, err := Parse(`program 3 < 1
		segment seg() {
			:x86 { mov EAX, [ EBX + 4 ] }
			::vendor.x86 { nop }
		}`)
	require.NoError(t, err)
	seg := file.TopLevel[0].(*ast.Segment)
	require.Len(t, seg.Contents, 2)

	ext := seg.Contents[0].(*ast.Extension)
	assert.Equal(t, "x86", ext.Name)
	assert.False(t, ext.Qualified)
	assert.Contains(t, ext.Payload, "mov")

	qualified := seg.Contents[1].(*ast.Extension)
	assert.Equal(t, "vendor.x86", qualified.Name)
	assert.True(t, qualified.Qualified)
}

func TestParse_Errors(t *testing.T) {
	t.Run("missing closing brace", func(t *testing.T) {
		_, err := Parse(`program 3 < 1 segment seg() { ff `)
		assert.Error(t, err)
	})

	t.Run("unknown segment arg", func(t *testing.T) {
		_, err := Parse(`program 3 < 1 segment seg(bogus: 1) { }`)
		assert.Error(t, err)
	})

	t.Run("invalid machine", func(t *testing.T) {
		_, err := Parse(`program notanumber < 1`)
		assert.Error(t, err)
	})
}
