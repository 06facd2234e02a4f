// Package corpus loads and snapshots the source sets rules are simulated
// against. A loaded Set is a read-only cache populated once per
// initialization and shared by every simulation until the engine is reset.
package corpus

import (
	"sort"
)

// Set is an immutable snapshot of one loaded source set. Accessors return
// copies so callers can never mutate the shared cache.
type Set struct {
	id         string
	files      map[string]string
	order      []string
	manifest   Manifest
	totalBytes int64
}

// ID returns the source set identifier the snapshot was loaded from.
func (s *Set) ID() string {
	return s.id
}

// File returns the content of the named file and whether it exists.
func (s *Set) File(name string) (string, bool) {
	content, ok := s.files[name]
	return content, ok
}

// Names returns the file names in deterministic (sorted) order.
func (s *Set) Names() []string {
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// Len returns the number of files in the snapshot.
func (s *Set) Len() int {
	return len(s.order)
}

// TotalBytes returns the summed size of all file contents.
func (s *Set) TotalBytes() int64 {
	return s.totalBytes
}

// Manifest returns the source set manifest (zero value if none was found).
func (s *Set) Manifest() Manifest {
	return s.manifest
}

// GlobalView is the aggregate corpus view used by repo-wide facts: the
// loaded snapshot optionally layered with caller-injected synthetic files.
// Injected files take precedence on name collision.
type GlobalView struct {
	base    *Set
	overlay map[string]string
	order   []string
}

// NewGlobalView builds an aggregate view over base. additional may be nil;
// when present its entries shadow same-named files from the snapshot.
func NewGlobalView(base *Set, additional map[string]string) *GlobalView {
	v := &GlobalView{base: base}
	if len(additional) > 0 {
		v.overlay = make(map[string]string, len(additional))
		for name, content := range additional {
			v.overlay[name] = content
		}
	}

	seen := make(map[string]bool, base.Len()+len(v.overlay))
	for _, name := range base.order {
		seen[name] = true
	}
	v.order = base.Names()
	extra := make([]string, 0, len(v.overlay))
	for name := range v.overlay {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	v.order = append(v.order, extra...)

	return v
}

// File returns the content of the named file, preferring injected files.
func (v *GlobalView) File(name string) (string, bool) {
	if content, ok := v.overlay[name]; ok {
		return content, true
	}
	return v.base.File(name)
}

// Names returns every visible file name: snapshot files in sorted order,
// then injected-only names in sorted order.
func (v *GlobalView) Names() []string {
	names := make([]string, len(v.order))
	copy(names, v.order)
	return names
}

// Len returns the number of visible files.
func (v *GlobalView) Len() int {
	return len(v.order)
}

// TotalBytes returns the summed size of all visible file contents.
func (v *GlobalView) TotalBytes() int64 {
	var total int64
	for _, name := range v.order {
		content, _ := v.File(name)
		total += int64(len(content))
	}
	return total
}
