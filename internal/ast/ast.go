// Package ast defines the syntax tree produced by the external parser
// collaborator: grammar parsing of the surface syntax, treated as a
// black box producing an abstract syntax tree. Nothing in this package
// touches the filesystem or performs semantic checks; it is a plain
// data representation of the surface language.
package ast

import "github.com/samber/lo"

// Endianness is metadata.endianness.
type Endianness int

const (
	LittleEndian Endianness = iota
	BigEndian
)

// Metadata is the `program MACHINE ENDIAN ALIGN` declaration found at
// the top of every source file.
type Metadata struct {
	Machine    int
	Endianness Endianness
	Align      int
}

// SourceFile is one parsed file, before preprocessing has resolved its
// includes or expanded its fragment references.
type SourceFile struct {
	Metadata Metadata
	TopLevel []TopLevelNode
}

// TopLevelNode is a declaration directly under a program: an include
// directive, a fragment definition, or a segment.
type TopLevelNode interface {
	topLevelNode()
}

// Include is `include "path"` or `include fragments "path"`.
type Include struct {
	Path          string
	FragmentsOnly bool
}

func (*Include) topLevelNode() {}

// Fragment is a `fragment name(p1 p2 ...) { body }` definition.
type Fragment struct {
	Name       string
	Parameters []string
	Contents   []Node
}

func (*Fragment) topLevelNode() {}

// SegmentArgs is the `(key: value, ...)` configuration attached to a
// segment declaration. The Has* fields distinguish "not set" (use the
// program/segment default) from an explicit zero value.
type SegmentArgs struct {
	Flags    string
	HasFlags bool

	Align    int
	HasAlign bool

	Size    int
	HasSize bool
}

// Segment is `segment name(args) { content }` plus its trailing
// `[[l1: w1 l2: w2]]` auto-labels block.
type Segment struct {
	Name       string
	Args       SegmentArgs
	Contents   []Node
	AutoLabels []AutoLabel
}

func (*Segment) topLevelNode() {}

// AutoLabel reserves in-memory space after a segment's file-backed
// content without contributing file bytes.
type AutoLabel struct {
	Name  string
	Width int
}

// Node is an element that can appear in a segment's (or fragment's)
// content list.
type Node interface {
	node()
}

// Byte is a literal hex byte pair, e.g. `ff`.
type Byte struct {
	Value uint8
}

func (*Byte) node() {}

// Number is a numeric literal `[sign]<digits><base><width>`.
type Number struct {
	Value  int64
	Width  int
	Signed bool
}

func (*Number) node() {}

// String is a `"..."` string literal; Value holds the raw bytes between
// the quotes (ASCII, one byte per character).
type String struct {
	Value []byte
}

func (*String) node() {}

// Label is a label definition `[name]`.
type Label struct {
	Name string
}

func (*Label) node() {}

// RelRef is a relative reference `<name>` or `<name:width>`.
type RelRef struct {
	Target string
	Width  int
}

func (*RelRef) node() {}

// AbsRef is an absolute reference `<<name>>`, `<<name + offset>>`, or
// `<<seg:name>>`. Segment is empty when no segment was named.
type AbsRef struct {
	Target  string
	Segment string
	Offset  int
}

func (*AbsRef) node() {}

// Extension is a `:ext { text }` or `::qualified.ext { text }` block.
// Qualified marks the `::` form.
type Extension struct {
	Name      string
	Qualified bool
	Payload   string
}

func (*Extension) node() {}

// FragmentVar is a `$name` placeholder inside a fragment body, replaced
// by the bound actual during fragment expansion. One surviving past
// expansion into the transformer is a fatal bug.
type FragmentVar struct {
	Name string
}

func (*FragmentVar) node() {}

// FragmentRef is a fragment invocation `@name(args)`, `@!name(args)`
// (unique), or `@name(args)(alias)`, before expansion.
type FragmentRef struct {
	Name    string
	Actuals [][]Node
	Alias   string
	Unique  bool
}

func (*FragmentRef) node() {}

// Segments extracts the *Segment nodes from a file's top level, in
// order, ignoring includes and fragment definitions.
func Segments(file *SourceFile) []*Segment {
	return lo.FilterMap(file.TopLevel, func(node TopLevelNode, _ int) (*Segment, bool) {
		seg, ok := node.(*Segment)
		return seg, ok
	})
}
