package program

import "github.com/Manu343726/elfhex/internal/elfherr"

// ExtensionFactory parses an extension block's opaque payload text
// into a concrete ExtensionPayload. Registered factories are the only
// thing that needs to know how a particular extension's surface text
// (the contents of `:name { ... }`) maps to bytes.
type ExtensionFactory func(payload string) (ExtensionPayload, error)

// ExtensionRegistry maps a (possibly dotted, for `::qualified.ext`)
// extension name to the factory that understands it.
type ExtensionRegistry map[string]ExtensionFactory

// Build invokes the factory registered for name, producing the
// Extension element the transformer installs in a segment's contents.
func (r ExtensionRegistry) Build(name, payload string) (*Extension, error) {
	factory, ok := r[name]
	if !ok {
		return nil, elfherr.Preprocess("unknown extension %q", name)
	}
	p, err := factory(payload)
	if err != nil {
		return nil, elfherr.Preprocess("parsing extension %q: %w", name, err)
	}
	return &Extension{Name: name, Payload: p}, nil
}
