// Package preprocessor resolves a source file's include graph into one
// canonical internal/ast.SourceFile and expands every fragment
// reference it contains. internal/transformer never sees an Include,
// Fragment or FragmentRef node; by the time Preprocess returns, those
// node kinds are gone from the tree (or it has failed).
package preprocessor

import (
	"strconv"

	"github.com/samber/lo"

	"github.com/Manu343726/elfhex/internal/ast"
	"github.com/Manu343726/elfhex/internal/elfherr"
	"github.com/Manu343726/elfhex/internal/fileloader"
	"github.com/Manu343726/elfhex/internal/parser"
	"github.com/Manu343726/elfhex/pkg/utils"
)

// Preprocessor holds the two inputs that aren't part of the source text
// itself: where includes are searched for, and how many fragment
// expansion passes to allow before giving up.
type Preprocessor struct {
	Loader           fileloader.Loader
	MaxFragmentDepth int
}

// New validates maxFragmentDepth up front: a negative bound can never be
// satisfied, so it's rejected here rather than failing confusingly mid
// expansion.
func New(loader fileloader.Loader, maxFragmentDepth int) (*Preprocessor, error) {
	if maxFragmentDepth < 0 {
		return nil, elfherr.Preprocess("max fragment depth must be >= 0, got %d", maxFragmentDepth)
	}
	return &Preprocessor{Loader: loader, MaxFragmentDepth: maxFragmentDepth}, nil
}

// parsedFile is one node of the include graph after parsing: the parsed
// tree plus whether it (or an ancestor include) was reached through an
// `include fragments` edge, meaning its segments must be discarded when
// merging.
type parsedFile struct {
	tree          *ast.SourceFile
	fragmentsOnly bool
}

// Preprocess walks the include graph rooted at entryPath, merges every
// reachable file's fragments and segments into one canonical tree, and
// expands fragment references to a fixed point (or fails trying).
func (pp *Preprocessor) Preprocess(entryPath string) (*ast.SourceFile, error) {
	files, err := pp.processIncludes(entryPath, map[string]bool{}, false)
	if err != nil {
		return nil, err
	}

	fragments := gatherFragments(files)

	canonical, err := merge(files)
	if err != nil {
		return nil, err
	}

	for i := 0; i < pp.MaxFragmentDepth; i++ {
		expanded, err := expandOnce(canonical, fragments)
		if err != nil {
			return nil, err
		}
		if expanded == 0 {
			break
		}
	}

	if hasFragmentRef(canonical) {
		return nil, elfherr.Preprocess("max recursion depth reached while expanding fragments")
	}

	return canonical, nil
}

// processIncludes parses path and recurses into its include directives
// depth-first, in source order. seen is the set of canonical paths
// already visited across the whole traversal: a file reached a second
// time (an include cycle, direct or indirect) silently contributes
// nothing the second time, rather than erroring or looping forever.
func (pp *Preprocessor) processIncludes(path string, seen map[string]bool, fragmentsOnly bool) ([]parsedFile, error) {
	contents, canonicalPath, err := pp.Loader.Load(path)
	if err != nil {
		return nil, err
	}
	if seen[canonicalPath] {
		return nil, nil
	}
	seen[canonicalPath] = true

	tree, err := parser.Parse(contents)
	if err != nil {
		return nil, elfherr.Parse("%q: %w", path, err)
	}

	files := []parsedFile{{tree: tree, fragmentsOnly: fragmentsOnly}}

	for _, node := range tree.TopLevel {
		inc, ok := node.(*ast.Include)
		if !ok {
			continue
		}
		children, err := pp.processIncludes(inc.Path, seen, fragmentsOnly || inc.FragmentsOnly)
		if err != nil {
			return nil, err
		}
		files = append(files, children...)
	}

	return files, nil
}

// gatherFragments collects every fragment definition reachable from the
// entry file, regardless of fragmentsOnly: a fragment's availability
// doesn't depend on whether the file that defines it also contributes
// segments. A name defined more than once keeps the last definition
// encountered in traversal order.
func gatherFragments(files []parsedFile) map[string]*ast.Fragment {
	fragments := make(map[string]*ast.Fragment)
	for _, f := range files {
		defs := lo.FilterMap(f.tree.TopLevel, func(node ast.TopLevelNode, _ int) (*ast.Fragment, bool) {
			frag, ok := node.(*ast.Fragment)
			return frag, ok
		})
		for _, frag := range defs {
			fragments[frag.Name] = frag
		}
	}
	return fragments
}

// merge reconciles metadata across every reachable file and concatenates
// same-named segments in first-seen order, skipping segments that came
// from a fragments-only include.
func merge(files []parsedFile) (*ast.SourceFile, error) {
	metadata := files[0].tree.Metadata

	aligns := make([]int, 0, len(files))
	for _, f := range files {
		aligns = append(aligns, f.tree.Metadata.Align)
	}
	metadata.Align = utils.Max(aligns)

	for _, f := range files[1:] {
		m := f.tree.Metadata
		if m.Machine != metadata.Machine || m.Endianness != metadata.Endianness {
			return nil, elfherr.Preprocess("conflicting program declarations across included files: machine/endianness mismatch")
		}
	}

	var order []string
	bySegment := make(map[string]*ast.Segment)

	for _, f := range files {
		if f.fragmentsOnly {
			continue
		}
		for _, seg := range ast.Segments(f.tree) {
			existing, found := bySegment[seg.Name]
			if !found {
				merged := &ast.Segment{
					Name:       seg.Name,
					Args:       seg.Args,
					Contents:   append([]ast.Node{}, seg.Contents...),
					AutoLabels: append([]ast.AutoLabel{}, seg.AutoLabels...),
				}
				bySegment[seg.Name] = merged
				order = append(order, seg.Name)
				continue
			}
			existing.Contents = append(existing.Contents, seg.Contents...)
			existing.AutoLabels = append(existing.AutoLabels, seg.AutoLabels...)
		}
	}

	canonical := &ast.SourceFile{Metadata: metadata}
	for _, name := range order {
		canonical.TopLevel = append(canonical.TopLevel, bySegment[name])
	}
	return canonical, nil
}

// expandOnce walks every segment's content list once, replacing each
// top-level fragment reference with its expanded body. It returns how
// many references it replaced; the caller treats zero as "fully
// expanded" and stops iterating.
//
// seen and refNum are local to a single pass, mirroring the reference
// implementation: a `unique` fragment may be expanded again in the next
// outer pass if the first expansion produced a fresh reference to it.
func expandOnce(file *ast.SourceFile, fragments map[string]*ast.Fragment) (int, error) {
	seen := make(map[string]bool)
	refNum := 0

	for _, seg := range ast.Segments(file) {
		var replaced []ast.Node
		for _, child := range seg.Contents {
			ref, ok := child.(*ast.FragmentRef)
			if !ok {
				replaced = append(replaced, child)
				continue
			}
			expansion, err := expandFragmentRef(ref, fragments, refNum, seen)
			if err != nil {
				return 0, err
			}
			replaced = append(replaced, expansion...)
			refNum++
		}
		seg.Contents = replaced
	}

	return refNum, nil
}

// expandFragmentRef resolves one `@name(args)` (or `@!name(args)`,
// `@name(args)(alias)`) invocation to the fragment body it stands for,
// binding parameters to actuals and renaming local labels hygienically.
func expandFragmentRef(ref *ast.FragmentRef, fragments map[string]*ast.Fragment, refNum int, seen map[string]bool) ([]ast.Node, error) {
	if ref.Unique {
		if seen[ref.Name] {
			return nil, nil
		}
		seen[ref.Name] = true
	}

	frag, ok := fragments[ref.Name]
	if !ok {
		return nil, elfherr.Preprocess("reference to non-existent fragment %q", ref.Name)
	}
	if len(ref.Actuals) != len(frag.Parameters) {
		return nil, elfherr.Preprocess("fragment %q expects %d argument(s), got %d", ref.Name, len(frag.Parameters), len(ref.Actuals))
	}

	bindings := make(map[string][]ast.Node, len(frag.Parameters))
	for i, param := range frag.Parameters {
		bindings[param] = ref.Actuals[i]
	}

	return substitute(frag.Contents, ref.Alias, refNum, bindings)
}

// substitute walks a fragment body, replacing `$var` placeholders with
// their bound actual and renaming every local label (one starting with
// `__`) so that two expansions of the same fragment never collide.
// Nested fragment references are left in place for the next outer pass,
// except that their own actuals are substituted now so that a `$var`
// used as an argument to a nested reference resolves correctly.
func substitute(contents []ast.Node, alias string, refNum int, bindings map[string][]ast.Node) ([]ast.Node, error) {
	var out []ast.Node

	for _, node := range contents {
		switch n := node.(type) {
		case *ast.FragmentVar:
			bound, ok := bindings[n.Name]
			if !ok {
				return nil, elfherr.Preprocess("unbound fragment variable $%s", n.Name)
			}
			out = append(out, bound...)
		case *ast.FragmentRef:
			actuals := make([][]ast.Node, len(n.Actuals))
			for i, actual := range n.Actuals {
				substituted, err := substitute(actual, alias, refNum, bindings)
				if err != nil {
					return nil, err
				}
				actuals[i] = substituted
			}
			out = append(out, &ast.FragmentRef{Name: n.Name, Actuals: actuals, Alias: n.Alias, Unique: n.Unique})
		case *ast.Label:
			out = append(out, &ast.Label{Name: renameLocal(n.Name, alias, refNum)})
		case *ast.RelRef:
			out = append(out, &ast.RelRef{Target: renameLocal(n.Target, alias, refNum), Width: n.Width})
		case *ast.AbsRef:
			out = append(out, &ast.AbsRef{Target: renameLocal(n.Target, alias, refNum), Segment: n.Segment, Offset: n.Offset})
		default:
			out = append(out, node)
		}
	}

	return out, nil
}

// renameLocal implements the label hygiene rule: a name starting with
// `__` is local to this expansion and is tagged with refNum so
// distinct invocations of the same fragment never share a label; an
// alias, when present, namespaces every name the fragment introduces.
func renameLocal(name, alias string, refNum int) string {
	if alias != "" {
		name = alias + "." + name
	}
	if len(name) >= 2 && name[0] == '_' && name[1] == '_' {
		name = "__" + strconv.Itoa(refNum) + name
	}
	return name
}

// hasFragmentRef reports whether any segment still contains an
// unexpanded fragment reference.
func hasFragmentRef(file *ast.SourceFile) bool {
	return lo.SomeBy(ast.Segments(file), func(seg *ast.Segment) bool {
		return lo.SomeBy(seg.Contents, func(child ast.Node) bool {
			_, ok := child.(*ast.FragmentRef)
			return ok
		})
	})
}
