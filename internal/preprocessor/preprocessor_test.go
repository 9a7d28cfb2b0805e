package preprocessor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manu343726/elfhex/internal/ast"
)

// memLoader is a fileloader.Loader backed by an in-memory map, so these
// tests exercise include resolution without touching a filesystem.
type memLoader struct {
	files map[string]string
}

func (m memLoader) Load(path string) (string, string, error) {
	contents, ok := m.files[path]
	if !ok {
		return "", "", assert.AnError
	}
	return contents, path, nil
}

func TestPreprocess_SingleFileNoFragments(t *testing.T) {
	loader := memLoader{files: map[string]string{
		"main.hex": `program 3 < 1 segment text() { ff }`,
	}}
	pp, err := New(loader, 16)
	require.NoError(t, err)

	file, err := pp.Preprocess("main.hex")
	require.NoError(t, err)
	require.Len(t, file.TopLevel, 1)
	seg := file.TopLevel[0].(*ast.Segment)
	assert.Equal(t, "text", seg.Name)
}

func TestPreprocess_IncludeMergesSegments(t *testing.T) {
	loader := memLoader{files: map[string]string{
		"main.hex": `program 3 < 1
			include "other.hex"
			segment text() { ff }`,
		"other.hex": `program 3 < 1 segment text() { 00 }`,
	}}
	pp, err := New(loader, 16)
	require.NoError(t, err)

	file, err := pp.Preprocess("main.hex")
	require.NoError(t, err)
	require.Len(t, file.TopLevel, 1)
	seg := file.TopLevel[0].(*ast.Segment)
	require.Len(t, seg.Contents, 2)
}

func TestPreprocess_IncludeCycleIsSilentlySuppressed(t *testing.T) {
	loader := memLoader{files: map[string]string{
		"a.hex": `program 3 < 1 include "b.hex" segment text() { ff }`,
		"b.hex": `program 3 < 1 include "a.hex" segment text() { 00 }`,
	}}
	pp, err := New(loader, 16)
	require.NoError(t, err)

	file, err := pp.Preprocess("a.hex")
	require.NoError(t, err)
	seg := file.TopLevel[0].(*ast.Segment)
	// a.hex contributes once, b.hex contributes once; the second visit
	// to a.hex (from b.hex's include) contributes nothing.
	assert.Len(t, seg.Contents, 2)
}

func TestPreprocess_FragmentsOnlyIncludeDropsSegments(t *testing.T) {
	loader := memLoader{files: map[string]string{
		"main.hex": `program 3 < 1
			include fragments "frag.hex"
			segment text() { @greet() }`,
		"frag.hex": `program 3 < 1
			fragment greet() { ff }
			segment unused() { 00 }`,
	}}
	pp, err := New(loader, 16)
	require.NoError(t, err)

	file, err := pp.Preprocess("main.hex")
	require.NoError(t, err)
	require.Len(t, file.TopLevel, 1)
	seg := file.TopLevel[0].(*ast.Segment)
	require.Len(t, seg.Contents, 1)
	assert.Equal(t, uint8(0xff), seg.Contents[0].(*ast.Byte).Value)
}

func TestPreprocess_MetadataConflict(t *testing.T) {
	loader := memLoader{files: map[string]string{
		"main.hex": `program 3 < 1 include "other.hex" segment text() { }`,
		"other.hex": `program 62 < 1 segment text2() { }`,
	}}
	pp, err := New(loader, 16)
	require.NoError(t, err)

	_, err = pp.Preprocess("main.hex")
	assert.Error(t, err)
}

func TestPreprocess_AlignIsMaxAcrossFiles(t *testing.T) {
	loader := memLoader{files: map[string]string{
		"main.hex": `program 3 < 1 include "other.hex" segment text() { }`,
		"other.hex": `program 3 < 4096 segment text2() { }`,
	}}
	pp, err := New(loader, 16)
	require.NoError(t, err)

	file, err := pp.Preprocess("main.hex")
	require.NoError(t, err)
	assert.Equal(t, 4096, file.Metadata.Align)
}

func TestPreprocess_FragmentExpansion(t *testing.T) {
	loader := memLoader{files: map[string]string{
		"main.hex": `program 3 < 1
			fragment pair($a $b) { $a $b }
			segment text() { @pair(=1d1, =2d1) }`,
	}}
	pp, err := New(loader, 16)
	require.NoError(t, err)

	file, err := pp.Preprocess("main.hex")
	require.NoError(t, err)
	seg := file.TopLevel[0].(*ast.Segment)
	require.Len(t, seg.Contents, 2)
	assert.Equal(t, int64(1), seg.Contents[0].(*ast.Number).Value)
	assert.Equal(t, int64(2), seg.Contents[1].(*ast.Number).Value)
}

func TestPreprocess_NestedFragmentExpansion(t *testing.T) {
	loader := memLoader{files: map[string]string{
		"main.hex": `program 3 < 1
			fragment inner() { ff }
			fragment outer() { @inner() @inner() }
			segment text() { @outer() }`,
	}}
	pp, err := New(loader, 16)
	require.NoError(t, err)

	file, err := pp.Preprocess("main.hex")
	require.NoError(t, err)
	seg := file.TopLevel[0].(*ast.Segment)
	require.Len(t, seg.Contents, 2)
}

func TestPreprocess_UniqueFragmentExpandsOnce(t *testing.T) {
	loader := memLoader{files: map[string]string{
		"main.hex": `program 3 < 1
			fragment once() { ff }
			segment text() { @!once() @!once() }`,
	}}
	pp, err := New(loader, 16)
	require.NoError(t, err)

	file, err := pp.Preprocess("main.hex")
	require.NoError(t, err)
	seg := file.TopLevel[0].(*ast.Segment)
	assert.Len(t, seg.Contents, 1)
}

func TestPreprocess_LocalLabelHygiene(t *testing.T) {
	loader := memLoader{files: map[string]string{
		"main.hex": `program 3 < 1
			fragment loop() { [__top] ff <__top> }
			segment text() { @loop() @loop() }`,
	}}
	pp, err := New(loader, 16)
	require.NoError(t, err)

	file, err := pp.Preprocess("main.hex")
	require.NoError(t, err)
	seg := file.TopLevel[0].(*ast.Segment)

	first := seg.Contents[0].(*ast.Label).Name
	second := seg.Contents[3].(*ast.Label).Name
	assert.NotEqual(t, first, second)
	assert.Equal(t, first, seg.Contents[2].(*ast.RelRef).Target)
	assert.Equal(t, second, seg.Contents[5].(*ast.RelRef).Target)
}

func TestPreprocess_AliasNamespacesLabels(t *testing.T) {
	loader := memLoader{files: map[string]string{
		"main.hex": `program 3 < 1
			fragment loop() { [__top] ff <__top> }
			segment text() { @loop()(a) }`,
	}}
	pp, err := New(loader, 16)
	require.NoError(t, err)

	file, err := pp.Preprocess("main.hex")
	require.NoError(t, err)
	seg := file.TopLevel[0].(*ast.Segment)
	name := seg.Contents[0].(*ast.Label).Name
	assert.Contains(t, name, "a.")
}

func TestPreprocess_MissingFragment(t *testing.T) {
	loader := memLoader{files: map[string]string{
		"main.hex": `program 3 < 1 { text { @nope() } }`,
	}}
	pp, err := New(loader, 16)
	require.NoError(t, err)

	_, err = pp.Preprocess("main.hex")
	assert.Error(t, err)
}

func TestPreprocess_ArityMismatch(t *testing.T) {
	loader := memLoader{files: map[string]string{
		"main.hex": `program 3 < 1
			fragment f($a) { $a }
			segment text() { @f(=1d1, =2d1) }`,
	}}
	pp, err := New(loader, 16)
	require.NoError(t, err)

	_, err = pp.Preprocess("main.hex")
	assert.Error(t, err)
}

func TestPreprocess_InfiniteRecursionHitsDepthLimit(t *testing.T) {
	loader := memLoader{files: map[string]string{
		"main.hex": `program 3 < 1
			fragment rec() { @rec() }
			segment text() { @rec() }`,
	}}
	pp, err := New(loader, 4)
	require.NoError(t, err)

	_, err = pp.Preprocess("main.hex")
	assert.Error(t, err)
}

func TestNew_RejectsNegativeDepth(t *testing.T) {
	_, err := New(memLoader{}, -1)
	assert.Error(t, err)
}
