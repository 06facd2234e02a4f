// Package registry holds the pluggable fact and operator registries the
// simulation engine calls by name. Both registries are explicit maps from
// string name to typed function values, injected into the engine at
// construction time.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/liamcoop/rulesim/corpus"
)

// ErrUnknownFact is returned when a condition references an unregistered
// fact name.
var ErrUnknownFact = errors.New("unknown fact")

// Scope classifies where a fact is meaningful: against a single file or
// against the whole corpus.
type Scope int

const (
	// ScopeFile facts resolve against one artifact (file name + content).
	ScopeFile Scope = iota
	// ScopeGlobal facts resolve against the aggregate corpus view.
	ScopeGlobal
)

func (s Scope) String() string {
	switch s {
	case ScopeFile:
		return "file"
	case ScopeGlobal:
		return "global"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// FileContext is the per-file artifact a condition is evaluated against.
type FileContext struct {
	Name    string
	Content string
}

// Context is the artifact context handed to fact providers. File is nil for
// global-scope runs; Corpus is always present once the engine is ready.
type Context struct {
	File   *FileContext
	Corpus *corpus.GlobalView
}

// FactFunc resolves a named fact. params comes from the condition (may be
// nil) and must not be mutated; the returned value is handed to the operator
// after optional JSONPath extraction.
type FactFunc func(ctx context.Context, params map[string]any, ec Context) (any, error)

type factEntry struct {
	fn    FactFunc
	scope Scope
}

// FactRegistry maps fact names to resolver functions.
type FactRegistry struct {
	mu    sync.RWMutex
	facts map[string]factEntry
}

// NewFactRegistry creates an empty fact registry.
func NewFactRegistry() *FactRegistry {
	return &FactRegistry{facts: make(map[string]factEntry)}
}

// Register adds or replaces a fact provider under the given name.
func (r *FactRegistry) Register(name string, scope Scope, fn FactFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.facts[name] = factEntry{fn: fn, scope: scope}
}

// Resolve looks up the named fact and invokes it.
func (r *FactRegistry) Resolve(ctx context.Context, name string, params map[string]any, ec Context) (any, error) {
	r.mu.RLock()
	entry, ok := r.facts[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFact, name)
	}
	return entry.fn(ctx, params, ec)
}

// IsGlobal reports whether the named fact is registered with global scope.
// Unknown names report false; they surface as resolution errors later.
func (r *FactRegistry) IsGlobal(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.facts[name]
	return ok && entry.scope == ScopeGlobal
}

// Names returns the registered fact names (unordered).
func (r *FactRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.facts))
	for name := range r.facts {
		names = append(names, name)
	}
	return names
}
