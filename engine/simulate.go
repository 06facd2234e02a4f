package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/rulesim/corpus"
	"github.com/liamcoop/rulesim/registry"
	"github.com/liamcoop/rulesim/rules"
)

// ErrUnknownFile is returned by Simulate when the named file is not part of
// the loaded corpus.
var ErrUnknownFile = errors.New("unknown file")

// Simulator is the public entry point for rule simulation. Concurrent
// simulations against a ready controller are safe; fact providers are
// expected to be stateless.
type Simulator struct {
	ctrl *Controller
}

// NewSimulator creates a simulator over an initialized (or to-be-
// initialized) controller.
func NewSimulator(ctrl *Controller) *Simulator {
	return &Simulator{ctrl: ctrl}
}

// IsGlobalRule reports whether the rule references any repo-wide fact and
// therefore belongs to SimulateGlobal. Requires a ready engine (fact scopes
// live in the registry).
func (s *Simulator) IsGlobalRule(rule *rules.Rule) (bool, error) {
	factReg, _, err := s.ctrl.registries()
	if err != nil {
		return false, err
	}
	return rules.UsesGlobalFacts(rule, factReg.IsGlobal), nil
}

// Simulate evaluates the rule against one file from the loaded corpus.
// It fails with ErrNotReady before initialization and ErrUnknownFile when
// the file is not in the corpus; rule problems land in the result instead.
func (s *Simulator) Simulate(ctx context.Context, rule *rules.Rule, fileName string, opts Options) (*SimulationResult, error) {
	snapshot, err := s.ctrl.Corpus()
	if err != nil {
		return nil, err
	}

	content, ok := snapshot.File(fileName)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not part of the loaded corpus", ErrUnknownFile, fileName)
	}

	ec := registry.Context{
		File:   &registry.FileContext{Name: fileName, Content: content},
		Corpus: corpus.NewGlobalView(snapshot, nil),
	}
	return s.run(ctx, rule, fileName, ec, opts)
}

// SimulateWithContent evaluates the rule against inline content instead of
// a corpus lookup, for ad-hoc testing. The supplied fileName still drives
// extension-based behavior (language detection, extension facts).
func (s *Simulator) SimulateWithContent(ctx context.Context, rule *rules.Rule, fileName, content string, opts Options) (*SimulationResult, error) {
	snapshot, err := s.ctrl.Corpus()
	if err != nil {
		return nil, err
	}

	ec := registry.Context{
		File:   &registry.FileContext{Name: fileName, Content: content},
		Corpus: corpus.NewGlobalView(snapshot, nil),
	}
	return s.run(ctx, rule, fileName, ec, opts)
}

// SimulateGlobal evaluates the rule against the aggregate corpus view.
// additionalFiles, when non-nil, are layered on top of the loaded corpus
// and take precedence on name collision.
func (s *Simulator) SimulateGlobal(ctx context.Context, rule *rules.Rule, additionalFiles map[string]string, opts Options) (*SimulationResult, error) {
	snapshot, err := s.ctrl.Corpus()
	if err != nil {
		return nil, err
	}

	ec := registry.Context{
		Corpus: corpus.NewGlobalView(snapshot, additionalFiles),
	}
	return s.run(ctx, rule, GlobalScopeFileName, ec, opts)
}

// run performs the shared validate-walk-compose sequence.
func (s *Simulator) run(ctx context.Context, rule *rules.Rule, fileName string, ec registry.Context, opts Options) (*SimulationResult, error) {
	factReg, operators, err := s.ctrl.registries()
	if err != nil {
		return nil, err
	}

	result := &SimulationResult{
		ID:               uuid.NewString(),
		FileName:         fileName,
		Timestamp:        time.Now().UTC(),
		ConditionResults: []ConditionResult{},
	}
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
	}()

	if err := rules.Validate(rule); err != nil {
		result.FinalResult = FinalError
		result.Error = err.Error()
		return result, nil
	}

	ev := &evaluator{facts: factReg, operators: operators, opts: opts}
	trace := make([]ConditionResult, 0, rule.LeafCount())
	rootValue, err := ev.evaluateRoot(ctx, rule, ec, &trace)
	result.ConditionResults = trace
	if err != nil {
		result.FinalResult = FinalError
		result.Error = err.Error()
		return result, nil
	}

	if !rootValue {
		result.FinalResult = FinalNotTriggered
		return result, nil
	}

	result.FinalResult = FinalTriggered
	result.Event = expandEvent(rule, fileName)
	return result, nil
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// expandEvent flattens the rule's event params into a message/details pair,
// expanding {{fileName}}, {{ruleName}} and {{params.<key>}} placeholders in
// the message. Unknown placeholders are left verbatim so a template typo
// never turns a triggered rule into an error.
func expandEvent(rule *rules.Rule, fileName string) *EmittedEvent {
	params := rule.Event.Params

	details := make(map[string]any, len(params))
	for key, value := range params {
		if key == "message" {
			continue
		}
		details[key] = value
	}
	if len(details) == 0 {
		details = nil
	}

	message := placeholderPattern.ReplaceAllStringFunc(rule.Event.Message(), func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		switch {
		case name == "fileName":
			return fileName
		case name == "ruleName":
			return rule.Name
		case strings.HasPrefix(name, "params."):
			if value, ok := params[strings.TrimPrefix(name, "params.")]; ok {
				return fmt.Sprintf("%v", value)
			}
		}
		return match
	})

	return &EmittedEvent{
		Type:    rule.Event.Type,
		Message: message,
		Details: details,
	}
}
