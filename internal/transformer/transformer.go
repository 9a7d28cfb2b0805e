// Package transformer implements a pure structural walk converting a
// canonical internal/ast.SourceFile (includes resolved, fragment
// references expanded — internal/preprocessor's job) into an
// internal/program.Program. There is no I/O and no error recovery
// beyond a fixed set of structural checks.
package transformer

import (
	"fmt"

	"github.com/Manu343726/elfhex/internal/ast"
	"github.com/Manu343726/elfhex/internal/elfherr"
	"github.com/Manu343726/elfhex/internal/program"
)

// Transform converts a canonical AST into a Program. extensions
// resolves `:name { ... }` blocks to concrete ExtensionPayload values;
// pass an empty registry if the input uses no extensions.
func Transform(file *ast.SourceFile, extensions program.ExtensionRegistry) (*program.Program, error) {
	metadata := program.Metadata{
		Machine:    file.Metadata.Machine,
		Endianness: convertEndianness(file.Metadata.Endianness),
		Align:      file.Metadata.Align,
	}
	p := program.New(metadata)

	for _, node := range file.TopLevel {
		segNode, ok := node.(*ast.Segment)
		if !ok {
			// include/fragment nodes never reach the transformer once
			// internal/preprocessor has produced a canonical tree; skip
			// rather than fail on an already-handled node kind.
			continue
		}
		seg, err := transformSegment(segNode, extensions)
		if err != nil {
			return nil, err
		}
		if err := p.AddSegment(seg); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func convertEndianness(e ast.Endianness) program.Endianness {
	if e == ast.BigEndian {
		return program.BigEndian
	}
	return program.LittleEndian
}

func transformSegment(s *ast.Segment, extensions program.ExtensionRegistry) (*program.Segment, error) {
	seg := &program.Segment{
		Name:  s.Name,
		Flags: segmentFlags(s.Args),
	}
	if s.Args.HasAlign {
		seg.Align = s.Args.Align
	}
	if s.Args.HasSize {
		seg.MinSize = s.Args.Size
	}

	for _, node := range s.Contents {
		el, err := transformNode(node, extensions)
		if err != nil {
			return nil, err
		}
		seg.Contents = append(seg.Contents, el)
	}

	for _, al := range s.AutoLabels {
		seg.AutoLabels = append(seg.AutoLabels, program.AutoLabel{Name: al.Name, Width: al.Width})
	}

	return seg, nil
}

func segmentFlags(args ast.SegmentArgs) byte {
	spec := "r"
	if args.HasFlags {
		spec = args.Flags
	}
	var flags byte
	for _, c := range spec {
		switch c {
		case 'r':
			flags |= program.FlagRead
		case 'w':
			flags |= program.FlagWrite
		case 'x':
			flags |= program.FlagExecute
		}
	}
	return flags
}

func transformNode(node ast.Node, extensions program.ExtensionRegistry) (program.Element, error) {
	switch n := node.(type) {
	case *ast.Byte:
		return &program.Byte{Value: n.Value}, nil
	case *ast.Number:
		return &program.Number{Value: n.Value, Width: n.Width, Signed: n.Signed}, nil
	case *ast.String:
		return &program.String{Value: n.Value}, nil
	case *ast.Label:
		return &program.LabelDef{Name: n.Name}, nil
	case *ast.RelRef:
		return &program.RelativeReference{Target: n.Target, Width: n.Width}, nil
	case *ast.AbsRef:
		return &program.AbsoluteReference{Target: n.Target, Offset: n.Offset, Segment: n.Segment}, nil
	case *ast.Extension:
		return extensions.Build(n.Name, n.Payload)
	case *ast.FragmentVar:
		return nil, elfherr.Preprocess("fragment variable reference $%s found in segment", n.Name)
	case *ast.FragmentRef:
		return nil, elfherr.Preprocess("fragment reference to %q reached the transformer: preprocessor bug", n.Name)
	default:
		return nil, fmt.Errorf("unsupported AST node %T", node)
	}
}
