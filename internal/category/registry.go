package category

import "strings"

// DefaultDirs are the production candidate storage directories, in
// priority order. The local fallback makes devel runs work when
// /var/lib is not writable.
var DefaultDirs = []string{"/var/lib/sidecar", "."}

// Registry is the fixed set of categories the sidecar knows about,
// built once at startup and immutable afterwards.
type Registry struct {
	order  []*Category
	byName map[string]*Category
}

// NewRegistry builds the standard testbed registry and loads the
// persistent categories from the given candidate directories.
func NewRegistry(dirs []string) *Registry {
	reg := &Registry{byName: map[string]*Category{}}
	for _, entry := range []struct {
		name  string
		keyed bool
	}{
		{"nodes", true},
		{"phones", true},
		{"pdus", true},
		{"leases", false},
	} {
		cat := newCategory(entry.name, entry.keyed, dirs)
		cat.Load()
		reg.order = append(reg.order, cat)
		reg.byName[cat.name] = cat
	}
	return reg
}

// Lookup finds a category by name.
func (reg *Registry) Lookup(name string) (*Category, bool) {
	cat, ok := reg.byName[name]
	return cat, ok
}

// All enumerates the categories in registration order.
func (reg *Registry) All() []*Category {
	return reg.order
}

// Summary renders a one-line account of all categories, for the
// periodic diagnostic dump.
func (reg *Registry) Summary() string {
	parts := make([]string, 0, len(reg.order))
	for _, cat := range reg.order {
		parts = append(parts, cat.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
