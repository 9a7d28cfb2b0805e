// Package parser is the external parser collaborator treated as a
// black box by the rest of the pipeline: it turns ELFHex surface
// syntax into an internal/ast.SourceFile. Any parser generator would
// serve the same role; this one is a small hand-written
// recursive-descent reader over a flat, pre-lexed token buffer.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Manu343726/elfhex/internal/ast"
)

// Parse parses the full text of one source file into a SourceFile.
func Parse(src string) (*ast.SourceFile, error) {
	toks, err := lexAll(src)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	p := &parser{toks: toks, src: []rune(src)}
	file, err := p.parseProgram()
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return file, nil
}

func lexAll(src string) ([]token, error) {
	l := newLexer(src)
	var toks []token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, t)
		if t.kind == tokEOF {
			break
		}
	}
	return toks, nil
}

type parser struct {
	toks []token
	pos  int
	src  []rune
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) atEOF() bool { return p.cur().kind == tokEOF }

func (p *parser) advance() token {
	t := p.cur()
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expectPunct(text string) (token, error) {
	t := p.cur()
	if t.kind != tokPunct || t.text != text {
		return token{}, fmt.Errorf("expected %q, got %v at line %d", text, t, t.line)
	}
	return p.advance(), nil
}

// expectCompoundPunct consumes two immediately consecutive punct tokens
// (no intervening whitespace) each equal to ch, e.g. "<<", ">>", "[[",
// "]]", "::".
func (p *parser) expectCompoundPunct(ch string) error {
	first, err := p.expectPunct(ch)
	if err != nil {
		return err
	}
	second := p.cur()
	if second.kind != tokPunct || second.text != ch || second.line != first.line || second.col != first.col+1 {
		return fmt.Errorf("expected %q%q, got %v at line %d", ch, ch, second, first.line)
	}
	p.advance()
	return nil
}

func (p *parser) peekCompoundPunct(ch string) bool {
	if p.cur().kind != tokPunct || p.cur().text != ch {
		return false
	}
	next := p.toks[p.pos+1]
	return next.kind == tokPunct && next.text == ch && next.line == p.cur().line && next.col == p.cur().col+1
}

func (p *parser) expectWord() (string, error) {
	t := p.cur()
	if t.kind != tokWord {
		return "", fmt.Errorf("expected identifier, got %v at line %d", t, t.line)
	}
	p.advance()
	return t.text, nil
}

func (p *parser) expectString() (string, error) {
	t := p.cur()
	if t.kind != tokString {
		return "", fmt.Errorf("expected string literal, got %v at line %d", t, t.line)
	}
	p.advance()
	return t.text, nil
}

func (p *parser) parseProgram() (*ast.SourceFile, error) {
	if _, err := p.expectKeyword("program"); err != nil {
		return nil, err
	}
	machineStr, err := p.expectWord()
	if err != nil {
		return nil, fmt.Errorf("parsing machine: %w", err)
	}
	machine, err := strconv.Atoi(machineStr)
	if err != nil {
		return nil, fmt.Errorf("invalid machine value %q: %w", machineStr, err)
	}

	endianTok, err := p.expectAnyPunct("<", ">")
	if err != nil {
		return nil, fmt.Errorf("parsing endianness: %w", err)
	}
	endianness := ast.LittleEndian
	if endianTok == ">" {
		endianness = ast.BigEndian
	}

	alignStr, err := p.expectWord()
	if err != nil {
		return nil, fmt.Errorf("parsing align: %w", err)
	}
	align, err := strconv.Atoi(alignStr)
	if err != nil {
		return nil, fmt.Errorf("invalid align value %q: %w", alignStr, err)
	}

	file := &ast.SourceFile{
		Metadata: ast.Metadata{Machine: machine, Endianness: endianness, Align: align},
	}

	for !p.atEOF() {
		node, err := p.parseTopLevel()
		if err != nil {
			return nil, err
		}
		file.TopLevel = append(file.TopLevel, node)
	}
	return file, nil
}

func (p *parser) expectKeyword(kw string) (string, error) {
	t := p.cur()
	if t.kind != tokWord || t.text != kw {
		return "", fmt.Errorf("expected keyword %q, got %v at line %d", kw, t, t.line)
	}
	p.advance()
	return t.text, nil
}

func (p *parser) expectAnyPunct(options ...string) (string, error) {
	t := p.cur()
	if t.kind == tokPunct {
		for _, o := range options {
			if t.text == o {
				p.advance()
				return o, nil
			}
		}
	}
	return "", fmt.Errorf("expected one of %v, got %v at line %d", options, t, t.line)
}

func (p *parser) parseTopLevel() (ast.TopLevelNode, error) {
	t := p.cur()
	if t.kind != tokWord {
		return nil, fmt.Errorf("expected include/fragment/segment, got %v at line %d", t, t.line)
	}
	switch t.text {
	case "include":
		return p.parseInclude()
	case "fragment":
		return p.parseFragmentDef()
	case "segment":
		p.advance() // "segment"
		return p.parseSegment()
	default:
		return p.parseSegment()
	}
}

func (p *parser) parseInclude() (*ast.Include, error) {
	p.advance() // "include"
	fragmentsOnly := false
	if p.cur().kind == tokWord && p.cur().text == "fragments" {
		p.advance()
		fragmentsOnly = true
	}
	path, err := p.expectString()
	if err != nil {
		return nil, fmt.Errorf("parsing include path: %w", err)
	}
	return &ast.Include{Path: path, FragmentsOnly: fragmentsOnly}, nil
}

func (p *parser) parseFragmentDef() (*ast.Fragment, error) {
	p.advance() // "fragment"
	name, err := p.expectWord()
	if err != nil {
		return nil, fmt.Errorf("parsing fragment name: %w", err)
	}
	// fragment names are written directly followed by "(params)"; our
	// lexer stops a word at "(" regardless of adjacency, so name is
	// already isolated correctly even without a space before it.
	if _, err := p.expectPunct("("); err != nil {
		return nil, fmt.Errorf("parsing fragment %q parameters: %w", name, err)
	}
	var params []string
	for !p.peekPunct(")") {
		param, err := p.expectWord()
		if err != nil {
			return nil, fmt.Errorf("parsing fragment %q parameters: %w", name, err)
		}
		params = append(params, strings.TrimPrefix(param, "$"))
	}
	if _, err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	if _, err := p.expectPunct("{"); err != nil {
		return nil, fmt.Errorf("parsing fragment %q body: %w", name, err)
	}
	contents, err := p.parseContentUntil("}")
	if err != nil {
		return nil, fmt.Errorf("parsing fragment %q body: %w", name, err)
	}
	if _, err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return &ast.Fragment{Name: name, Parameters: params, Contents: contents}, nil
}

func (p *parser) peekPunct(text string) bool {
	return p.cur().kind == tokPunct && p.cur().text == text
}

func (p *parser) parseSegment() (*ast.Segment, error) {
	name, err := p.expectWord()
	if err != nil {
		return nil, fmt.Errorf("parsing segment name: %w", err)
	}
	args, err := p.parseSegmentArgs()
	if err != nil {
		return nil, fmt.Errorf("parsing segment %q args: %w", name, err)
	}
	if _, err := p.expectPunct("{"); err != nil {
		return nil, fmt.Errorf("parsing segment %q content: %w", name, err)
	}
	contents, err := p.parseContentUntil("}")
	if err != nil {
		return nil, fmt.Errorf("parsing segment %q content: %w", name, err)
	}
	if _, err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	var autoLabels []ast.AutoLabel
	if p.peekCompoundPunct("[") {
		autoLabels, err = p.parseAutoLabels()
		if err != nil {
			return nil, fmt.Errorf("parsing segment %q auto-labels: %w", name, err)
		}
	}
	return &ast.Segment{Name: name, Args: args, Contents: contents, AutoLabels: autoLabels}, nil
}

func (p *parser) parseSegmentArgs() (ast.SegmentArgs, error) {
	var args ast.SegmentArgs
	if _, err := p.expectPunct("("); err != nil {
		return args, err
	}
	for !p.peekPunct(")") {
		key, err := p.expectWord()
		if err != nil {
			return args, err
		}
		if _, err := p.expectPunct(":"); err != nil {
			return args, fmt.Errorf("after key %q: %w", key, err)
		}
		switch key {
		case "segment_flags":
			value, err := p.expectWord()
			if err != nil {
				return args, err
			}
			args.Flags = value
			args.HasFlags = true
		case "segment_align":
			value, err := p.expectWord()
			if err != nil {
				return args, err
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return args, fmt.Errorf("invalid segment_align %q: %w", value, err)
			}
			args.Align = n
			args.HasAlign = true
		case "segment_size":
			value, err := p.expectWord()
			if err != nil {
				return args, err
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return args, fmt.Errorf("invalid segment_size %q: %w", value, err)
			}
			args.Size = n
			args.HasSize = true
		default:
			return args, fmt.Errorf("unknown segment arg %q", key)
		}
		if p.peekPunct(",") {
			p.advance()
		}
	}
	if _, err := p.expectPunct(")"); err != nil {
		return args, err
	}
	return args, nil
}

func (p *parser) parseAutoLabels() ([]ast.AutoLabel, error) {
	if err := p.expectCompoundPunct("["); err != nil {
		return nil, err
	}
	var labels []ast.AutoLabel
	for !p.peekCompoundPunct("]") {
		name, err := p.expectWord()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		widthStr, err := p.expectWord()
		if err != nil {
			return nil, err
		}
		width, err := strconv.Atoi(widthStr)
		if err != nil {
			return nil, fmt.Errorf("invalid auto-label width %q: %w", widthStr, err)
		}
		labels = append(labels, ast.AutoLabel{Name: name, Width: width})
	}
	if err := p.expectCompoundPunct("]"); err != nil {
		return nil, err
	}
	return labels, nil
}

// parseContentUntil parses a segment/fragment body: a sequence of
// content elements up to (not including) a closing punct token.
func (p *parser) parseContentUntil(closing string) ([]ast.Node, error) {
	var nodes []ast.Node
	for !p.peekPunct(closing) {
		if p.atEOF() {
			return nil, fmt.Errorf("unexpected end of input, expected %q", closing)
		}
		node, err := p.parseElement()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (p *parser) parseElement() (ast.Node, error) {
	t := p.cur()
	switch {
	case t.kind == tokString:
		p.advance()
		return &ast.String{Value: []byte(t.text)}, nil
	case t.kind == tokPunct && t.text == "[":
		return p.parseLabelDef()
	case t.kind == tokPunct && t.text == "<":
		return p.parseAngleRef()
	case t.kind == tokPunct && t.text == "@":
		return p.parseFragmentRef()
	case t.kind == tokPunct && t.text == ":":
		return p.parseExtension()
	case t.kind == tokWord:
		return p.parseWordElement()
	}
	return nil, fmt.Errorf("unexpected token %v at line %d", t, t.line)
}

func (p *parser) parseLabelDef() (ast.Node, error) {
	p.advance() // "["
	name, err := p.expectWord()
	if err != nil {
		return nil, fmt.Errorf("parsing label: %w", err)
	}
	if _, err := p.expectPunct("]"); err != nil {
		return nil, fmt.Errorf("parsing label %q: %w", name, err)
	}
	return &ast.Label{Name: name}, nil
}

// parseAngleRef parses either a relative reference `<name>`/`<name:width>`
// or, when the opening angle is doubled, an absolute reference
// `<<name>>`, `<<name + offset>>`, or `<<seg:name>>`.
func (p *parser) parseAngleRef() (ast.Node, error) {
	if p.peekCompoundPunct("<") {
		return p.parseAbsRef()
	}
	p.advance() // "<"
	target, err := p.expectWord()
	if err != nil {
		return nil, fmt.Errorf("parsing relative reference: %w", err)
	}
	width := 1
	if p.peekPunct(":") {
		p.advance()
		w, err := p.expectWord()
		if err != nil {
			return nil, fmt.Errorf("parsing relative reference width: %w", err)
		}
		width, err = strconv.Atoi(w)
		if err != nil {
			return nil, fmt.Errorf("invalid relative reference width %q: %w", w, err)
		}
	}
	if _, err := p.expectPunct(">"); err != nil {
		return nil, fmt.Errorf("closing relative reference to %q: %w", target, err)
	}
	return &ast.RelRef{Target: target, Width: width}, nil
}

func (p *parser) parseAbsRef() (ast.Node, error) {
	if err := p.expectCompoundPunct("<"); err != nil {
		return nil, err
	}
	first, err := p.expectWord()
	if err != nil {
		return nil, fmt.Errorf("parsing absolute reference: %w", err)
	}
	segment, label := "", first
	if p.peekPunct(":") {
		p.advance()
		label, err = p.expectWord()
		if err != nil {
			return nil, fmt.Errorf("parsing absolute reference: %w", err)
		}
		segment = first
	}
	offset := 0
	if !p.peekCompoundPunct(">") {
		offset, err = p.parseLabelOffset()
		if err != nil {
			return nil, fmt.Errorf("parsing absolute reference %q offset: %w", label, err)
		}
	}
	if err := p.expectCompoundPunct(">"); err != nil {
		return nil, fmt.Errorf("closing absolute reference to %q: %w", label, err)
	}
	return &ast.AbsRef{Target: label, Segment: segment, Offset: offset}, nil
}

// parseLabelOffset parses a `+ N` or `- N` (or a single token `+N`/`-N`)
// signed displacement.
func (p *parser) parseLabelOffset() (int, error) {
	t := p.cur()
	if t.kind != tokWord || (t.text[0] != '+' && t.text[0] != '-') {
		return 0, fmt.Errorf("expected +/- offset, got %v at line %d", t, t.line)
	}
	p.advance()
	if len(t.text) > 1 {
		n, err := strconv.Atoi(t.text)
		if err != nil {
			return 0, fmt.Errorf("invalid offset %q: %w", t.text, err)
		}
		return n, nil
	}
	sign := t.text
	digits, err := p.expectWord()
	if err != nil {
		return 0, fmt.Errorf("expected offset magnitude: %w", err)
	}
	n, err := strconv.Atoi(sign + digits)
	if err != nil {
		return 0, fmt.Errorf("invalid offset %q%q: %w", sign, digits, err)
	}
	return n, nil
}

func (p *parser) parseFragmentRef() (ast.Node, error) {
	p.advance() // "@"
	raw, err := p.expectWord()
	if err != nil {
		return nil, fmt.Errorf("parsing fragment reference: %w", err)
	}
	unique := false
	name := raw
	if strings.HasPrefix(raw, "!") {
		unique = true
		name = strings.TrimPrefix(raw, "!")
	}
	if _, err := p.expectPunct("("); err != nil {
		return nil, fmt.Errorf("parsing fragment reference %q args: %w", name, err)
	}
	var actuals [][]ast.Node
	for !p.peekPunct(")") {
		actual, err := p.parseActual()
		if err != nil {
			return nil, fmt.Errorf("parsing fragment reference %q args: %w", name, err)
		}
		actuals = append(actuals, actual)
		if p.peekPunct(",") {
			p.advance()
		}
	}
	if _, err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	alias := ""
	if p.peekPunct("(") {
		p.advance()
		alias, err = p.expectWord()
		if err != nil {
			return nil, fmt.Errorf("parsing fragment reference %q alias: %w", name, err)
		}
		if _, err := p.expectPunct(")"); err != nil {
			return nil, err
		}
	}
	return &ast.FragmentRef{Name: name, Actuals: actuals, Alias: alias, Unique: unique}, nil
}

// parseActual parses one comma-separated argument to a fragment
// reference: a run of one or more content elements.
func (p *parser) parseActual() ([]ast.Node, error) {
	var nodes []ast.Node
	for !p.peekPunct(",") && !p.peekPunct(")") {
		node, err := p.parseElement()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("empty fragment argument")
	}
	return nodes, nil
}

func (p *parser) parseExtension() (ast.Node, error) {
	qualified := p.peekCompoundPunct(":")
	if qualified {
		if err := p.expectCompoundPunct(":"); err != nil {
			return nil, err
		}
	} else {
		p.advance() // ":"
	}
	name, err := p.expectWord()
	if err != nil {
		return nil, fmt.Errorf("parsing extension name: %w", err)
	}
	if _, err := p.expectPunct("{"); err != nil {
		return nil, fmt.Errorf("parsing extension %q body: %w", name, err)
	}
	payload, err := p.readRawUntilMatchingBrace()
	if err != nil {
		return nil, fmt.Errorf("parsing extension %q body: %w", name, err)
	}
	return &ast.Extension{Name: name, Qualified: qualified, Payload: payload}, nil
}

// readRawUntilMatchingBrace consumes tokens up to (and including) the
// closing "}" matching the one already opened, joining the consumed
// token texts with single spaces. Extension payloads are opaque to the
// core: the concrete extension re-parses this string on its own terms,
// so token-exact source spacing does not matter.
func (p *parser) readRawUntilMatchingBrace() (string, error) {
	depth := 1
	var parts []string
	for {
		if p.atEOF() {
			return "", fmt.Errorf("unterminated extension body")
		}
		t := p.cur()
		if t.kind == tokPunct && t.text == "{" {
			depth++
		} else if t.kind == tokPunct && t.text == "}" {
			depth--
			if depth == 0 {
				p.advance()
				break
			}
		}
		if t.kind == tokString {
			parts = append(parts, strconv.Quote(t.text))
		} else {
			parts = append(parts, t.text)
		}
		p.advance()
	}
	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

func (p *parser) parseWordElement() (ast.Node, error) {
	t := p.advance()
	text := t.text
	switch text[0] {
	case '$':
		return &ast.FragmentVar{Name: strings.TrimPrefix(text, "$")}, nil
	case '=', '+', '-':
		return parseNumber(text)
	}
	if len(text) == 2 && isHexPair(text) {
		v, err := strconv.ParseUint(text, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte %q: %w", text, err)
		}
		return &ast.Byte{Value: uint8(v)}, nil
	}
	return nil, fmt.Errorf("unrecognized token %q at line %d", text, t.line)
}

func isHexPair(s string) bool {
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}

// parseNumber parses a `[sign]<digits><base><width>` literal, per spec
// §4.2: the base character is required and is one of b=2, d=10, h=16;
// width defaults to 1, and a trailing digit 1/2/4/8 after the base
// character is consumed as the width.
func parseNumber(text string) (*ast.Number, error) {
	sign := text[0]
	body := text[1:]
	if len(body) == 0 {
		return nil, fmt.Errorf("empty numeric literal %q", text)
	}

	width := 1
	baseChar := body[len(body)-1]
	digits := body[:len(body)-1]
	if strings.IndexByte("1248", baseChar) >= 0 && len(body) >= 2 {
		possibleBase := body[len(body)-2]
		if possibleBase == 'b' || possibleBase == 'd' || possibleBase == 'h' {
			w, err := strconv.Atoi(string(baseChar))
			if err == nil {
				width = w
				baseChar = possibleBase
				digits = body[:len(body)-2]
			}
		}
	}

	var base int
	switch baseChar {
	case 'b':
		base = 2
	case 'h':
		base = 16
	case 'd':
		base = 10
	default:
		return nil, fmt.Errorf("invalid numeric literal %q: unknown base character %q", text, string(baseChar))
	}

	value, err := strconv.ParseInt(digits, base, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid numeric literal %q: %w", text, err)
	}
	if sign == '-' {
		value = -value
	}
	return &ast.Number{Value: value, Width: width, Signed: sign != '='}, nil
}
