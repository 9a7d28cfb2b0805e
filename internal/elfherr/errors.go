// Package elfherr implements the single "assembly error" kind that
// crosses the package boundary into cmd/elfhex: every internal failure
// category wraps the same sentinel so callers can test with
// errors.Is(err, elfherr.ErrAssembly) while the message stays specific.
package elfherr

import "fmt"

// ErrAssembly is the one error kind that surfaces to the CLI.
var ErrAssembly = fmt.Errorf("assembly error")

// make wraps ErrAssembly with a detail message formatted from
// detailsBody and args, in the `%w: detail` shape.
func make(detailsBody string, args ...any) error {
	return fmt.Errorf("%w: "+detailsBody, append([]any{ErrAssembly}, args...)...)
}

// Input wraps a file-resolution failure (include or entry path not found
// in any search directory).
func Input(detailsBody string, args ...any) error {
	return make(detailsBody, args...)
}

// Parse wraps a surface-syntax error from the parser collaborator.
func Parse(detailsBody string, args ...any) error {
	return make(detailsBody, args...)
}

// Preprocess wraps a fatal preprocessing failure: missing fragment,
// arity mismatch, metadata mismatch, excessive/negative recursion depth,
// a fragment variable surviving to the transformer.
func Preprocess(detailsBody string, args ...any) error {
	return make(detailsBody, args...)
}

// Layout wraps a fatal layout failure (duplicate label within a segment).
func Layout(detailsBody string, args ...any) error {
	return make(detailsBody, args...)
}

// Render wraps a fatal rendering failure: undefined label, wrong
// segment, literal or displacement out of range for its width.
func Render(detailsBody string, args ...any) error {
	return make(detailsBody, args...)
}
