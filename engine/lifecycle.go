package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/liamcoop/rulesim/corpus"
	"github.com/liamcoop/rulesim/facts"
	"github.com/liamcoop/rulesim/parser"
	"github.com/liamcoop/rulesim/plugins"
	"github.com/liamcoop/rulesim/registry"
)

// ErrNotReady is returned by corpus accessors and simulations invoked
// before initialization completed.
var ErrNotReady = errors.New("engine is not initialized")

// ErrInitInProgress is returned when Initialize is called while another
// initialization is still running.
var ErrInitInProgress = errors.New("initialization already in progress")

// State is the lifecycle state of the controller.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ProgressFunc receives initialization progress: a stage label and a
// percentage in [0,100]. Percentages are monotonically non-decreasing and
// end at 100; each stage reports exactly once per Initialize call.
type ProgressFunc func(step string, percent int)

// The fixed initialization stages, in order.
var initStages = []struct {
	label   string
	percent int
}{
	{"Loading fixture data", 10},
	{"Initializing AST parser", 45},
	{"Initializing plugins", 80},
	{"Ready", 100},
}

// Controller owns the engine lifecycle: staged initialization with progress
// reporting, the read-only corpus cache, the registries, and reset
// semantics. A Controller is safe for concurrent use; Initialize and Reset
// take the write path, everything else reads.
type Controller struct {
	fixturesRoot string

	newFactRegistry func(p *parser.Parser) *registry.FactRegistry
	newOperators    func() *registry.OperatorRegistry

	mu      sync.RWMutex
	state   State
	initErr error
	// generation increments on every Reset; an in-flight initialization
	// compares its own generation before reporting progress or committing,
	// so a reset mid-init suppresses both.
	generation uint64
	cancelInit context.CancelFunc

	snapshot  *corpus.Set
	astParser *parser.Parser
	factReg   *registry.FactRegistry
	operators *registry.OperatorRegistry
}

// ControllerOption customizes a Controller at construction time.
type ControllerOption func(*Controller)

// WithFactRegistry replaces the builtin fact set; used to inject stub
// providers.
func WithFactRegistry(build func(p *parser.Parser) *registry.FactRegistry) ControllerOption {
	return func(c *Controller) { c.newFactRegistry = build }
}

// WithOperatorRegistry replaces the builtin operator set.
func WithOperatorRegistry(build func() *registry.OperatorRegistry) ControllerOption {
	return func(c *Controller) { c.newOperators = build }
}

// NewController creates an uninitialized controller. fixturesRoot is the
// directory holding source sets, one subdirectory per source set id.
func NewController(fixturesRoot string, opts ...ControllerOption) *Controller {
	c := &Controller{
		fixturesRoot: fixturesRoot,
		newFactRegistry: func(p *parser.Parser) *registry.FactRegistry {
			reg := registry.NewFactRegistry()
			facts.Register(reg, p)
			return reg
		},
		newOperators: registry.NewDefaultOperatorRegistry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize runs the staged initialization sequence for the given source
// set. It is idempotent while Ready: a second call is a no-op that re-runs
// nothing and reports no progress. From the Error state it starts over.
// A concurrent call during Initializing fails with ErrInitInProgress.
func (c *Controller) Initialize(ctx context.Context, sourceSetID string, onProgress ProgressFunc) error {
	c.mu.Lock()
	switch c.state {
	case StateReady:
		c.mu.Unlock()
		return nil
	case StateInitializing:
		c.mu.Unlock()
		return ErrInitInProgress
	}
	c.state = StateInitializing
	c.initErr = nil
	gen := c.generation
	ictx, cancel := context.WithCancel(ctx)
	c.cancelInit = cancel
	c.mu.Unlock()

	defer cancel()

	report := func(stage int) {
		// Read the generation without holding the lock across the user
		// callback, so the callback itself may call Reset.
		c.mu.RLock()
		live := c.generation == gen && c.state == StateInitializing
		c.mu.RUnlock()
		if live && onProgress != nil {
			onProgress(initStages[stage].label, initStages[stage].percent)
		}
	}

	// abort handles cancellation of the in-flight sequence: if the parent
	// context (rather than Reset) cancelled it, the controller returns to
	// Uninitialized so a fresh Initialize can run.
	abort := func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generation == gen && c.state == StateInitializing {
			c.state = StateUninitialized
			c.cancelInit = nil
		}
		return ictx.Err()
	}

	fail := func(stage int, err error) error {
		wrapped := fmt.Errorf("initialization failed at %q: %w", initStages[stage].label, err)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generation != gen {
			// Reset happened mid-flight; it already owns the state.
			return err
		}
		c.state = StateError
		c.initErr = wrapped
		c.cancelInit = nil
		return wrapped
	}

	// Stage 1: fixture data.
	report(0)
	snapshot, err := corpus.Load(ictx, c.fixturesRoot, sourceSetID)
	if err != nil {
		if ictx.Err() != nil {
			return abort()
		}
		return fail(0, err)
	}

	// Stage 2: AST parser.
	report(1)
	astParser := parser.New()
	if err := astParser.Bootstrap(ictx); err != nil {
		if ictx.Err() != nil {
			return abort()
		}
		return fail(1, err)
	}

	// Stage 3: plugins.
	report(2)
	factReg := c.newFactRegistry(astParser)
	operators := c.newOperators()
	manifest, err := plugins.LoadManifest(filepath.Join(c.fixturesRoot, sourceSetID))
	if err == nil {
		err = plugins.Apply(manifest, factReg, operators)
	}
	if err != nil {
		if ictx.Err() != nil {
			return abort()
		}
		return fail(2, err)
	}
	if ictx.Err() != nil {
		return abort()
	}

	// Stage 4: commit and announce readiness.
	report(3)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		// Reset raced the final stage; discard everything we built.
		return context.Canceled
	}
	c.snapshot = snapshot
	c.astParser = astParser
	c.factReg = factReg
	c.operators = operators
	c.state = StateReady
	c.cancelInit = nil
	return nil
}

// Reset drives the controller back to Uninitialized, clearing the cached
// corpus, parser and registries. Safe to call at any time: a reset during
// an in-flight Initialize aborts the sequence, suppresses its remaining
// progress callbacks, and discards whatever it built.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	if c.cancelInit != nil {
		c.cancelInit()
		c.cancelInit = nil
	}
	c.state = StateUninitialized
	c.initErr = nil
	c.snapshot = nil
	c.astParser = nil
	c.factReg = nil
	c.operators = nil
}

// IsInitialized reports whether the controller is Ready. Synchronous and
// side-effect free.
func (c *Controller) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateReady
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// InitError returns the consolidated initialization error, if the
// controller is in the Error state.
func (c *Controller) InitError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initErr
}

// AvailableFiles returns the loaded corpus file names. Fails fast with
// ErrNotReady before initialization completes.
func (c *Controller) AvailableFiles() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateReady {
		return nil, fmt.Errorf("%w (state: %s)", ErrNotReady, c.state)
	}
	return c.snapshot.Names(), nil
}

// Corpus returns the loaded snapshot. Fails fast with ErrNotReady before
// initialization completes.
func (c *Controller) Corpus() (*corpus.Set, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateReady {
		return nil, fmt.Errorf("%w (state: %s)", ErrNotReady, c.state)
	}
	return c.snapshot, nil
}

// registries returns the live registries, or ErrNotReady.
func (c *Controller) registries() (*registry.FactRegistry, *registry.OperatorRegistry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateReady {
		return nil, nil, fmt.Errorf("%w (state: %s)", ErrNotReady, c.state)
	}
	return c.factReg, c.operators, nil
}
