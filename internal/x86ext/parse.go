package x86ext

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse reads `register, operand` text (Intel order: register first)
// into an Args value, ready to be installed as an extension payload.
func Parse(text string) (*Args, error) {
	comma := strings.IndexByte(text, ',')
	if comma < 0 {
		return nil, fmt.Errorf("x86 arguments must be `register, operand`, got %q", text)
	}

	regText := strings.TrimSpace(text[:comma])
	operandText := strings.TrimSpace(text[comma+1:])

	reg, err := RegisterFromName(regText)
	if err != nil {
		return nil, err
	}

	op, err := parseOperand(operandText)
	if err != nil {
		return nil, err
	}

	return &Args{Register: reg, Operand: op}, nil
}

func parseOperand(text string) (operand, error) {
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		return parseMemory(strings.TrimSpace(text[1 : len(text)-1]))
	}
	return RegisterFromName(text)
}

// term is one +/- separated piece of a memory expression, e.g. "esi",
// "ebx * 4", or "dword ptr label".
type term struct {
	negative bool
	words    []string
}

func splitTerms(expr string) []term {
	var terms []term
	negative := false
	var words []string

	flush := func() {
		if len(words) > 0 {
			terms = append(terms, term{negative: negative, words: words})
			words = nil
		}
	}

	for _, tok := range strings.Fields(expr) {
		switch tok {
		case "+":
			flush()
			negative = false
		case "-":
			flush()
			negative = true
		default:
			words = append(words, tok)
		}
	}
	flush()

	return terms
}

// parseMemory interprets the inside of a `[...]` memory operand: zero
// or one base register, zero or one scaled index, and zero or one
// displacement (a literal or a `dword ptr [segment:]label` pointer), in
// any order.
func parseMemory(expr string) (*Memory, error) {
	mem := &Memory{}
	haveBase := false

	for _, t := range splitTerms(expr) {
		switch {
		case len(t.words) >= 2 && strings.EqualFold(t.words[0], "dword") && strings.EqualFold(t.words[1], "ptr"):
			// the source parser re-joins tokens with spaces, so a
			// qualified `segment:label` can arrive as `segment : label`.
			if len(t.words) == 5 && t.words[3] == ":" {
				t.words = []string{t.words[0], t.words[1], t.words[2] + ":" + t.words[4]}
			}
			if len(t.words) != 3 {
				return nil, fmt.Errorf("malformed pointer displacement %q", strings.Join(t.words, " "))
			}
			label, segment := t.words[2], ""
			if colon := strings.IndexByte(label, ':'); colon >= 0 {
				segment, label = label[:colon], label[colon+1:]
			}
			mem.Disp = LabelDisp{Label: label, Segment: segment}

		case len(t.words) == 3 && t.words[1] == "*":
			indexReg, err := RegisterFromName(t.words[0])
			if err != nil {
				return nil, err
			}
			scaleN, err := strconv.Atoi(t.words[2])
			if err != nil {
				return nil, fmt.Errorf("invalid x86 scale %q", t.words[2])
			}
			scale, err := ScaleFromNumber(scaleN)
			if err != nil {
				return nil, err
			}
			if indexReg == ESP {
				return nil, fmt.Errorf("the esp register can't be used as an index")
			}
			mem.Index = &Index{Register: indexReg, Scale: scale}

		case len(t.words) == 1:
			if reg, err := RegisterFromName(t.words[0]); err == nil {
				if !haveBase {
					mem.Base = regPtr(reg)
					haveBase = true
				} else if mem.Index == nil {
					if reg == ESP {
						return nil, fmt.Errorf("the esp register can't be used as an index")
					}
					mem.Index = &Index{Register: reg, Scale: ScaleOne}
				} else {
					return nil, fmt.Errorf("too many registers in memory operand %q", expr)
				}
				continue
			}
			n, err := parseX86Number(t.words[0])
			if err != nil {
				return nil, fmt.Errorf("invalid memory operand term %q", t.words[0])
			}
			if t.negative {
				n = -n
			}
			mem.Disp = IntDisp(n)

		default:
			return nil, fmt.Errorf("unrecognized memory operand term %q", strings.Join(t.words, " "))
		}
	}

	return mem, nil
}

func regPtr(r Register) *Register { return &r }

// parseX86Number parses an x86 extension numeric literal: decimal by
// default, hexadecimal when suffixed with h/H (e.g. "aah" is 0xaa).
func parseX86Number(s string) (int, error) {
	if len(s) > 0 && (s[len(s)-1] == 'h' || s[len(s)-1] == 'H') {
		n, err := strconv.ParseInt(s[:len(s)-1], 16, 64)
		return int(n), err
	}
	n, err := strconv.Atoi(s)
	return n, err
}
