package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/liamcoop/rulesim/parser"
	"github.com/liamcoop/rulesim/registry"
	"github.com/liamcoop/rulesim/rules"
)

func newTestSimulator(t *testing.T) *Simulator {
	t.Helper()
	return NewSimulator(newReadyController(t))
}

func containsRule(fact, operator string, value any) *rules.Rule {
	return &rules.Rule{
		Name: "test rule",
		Conditions: rules.Conditions{All: []rules.Condition{
			{Fact: fact, Operator: operator, Value: value},
		}},
		Event: rules.Event{Type: rules.EventTypeWarning, Params: map[string]any{"message": "matched {{fileName}}"}},
	}
}

func TestSimulateSimpleAndBothMatch(t *testing.T) {
	sim := newTestSimulator(t)
	rule := containsRule("fileName", "contains", "App")

	result, err := sim.Simulate(context.Background(), rule, "src/App.tsx", Options{})
	if err != nil {
		t.Fatalf("Simulate() failed: %v", err)
	}

	if result.FinalResult != FinalTriggered {
		t.Errorf("FinalResult = %q, want triggered", result.FinalResult)
	}
	if len(result.ConditionResults) != 1 {
		t.Fatalf("len(ConditionResults) = %d, want 1", len(result.ConditionResults))
	}
	cr := result.ConditionResults[0]
	if !cr.Result {
		t.Error("condition should have matched")
	}
	if cr.FactName != "fileName" || cr.Operator != "contains" {
		t.Errorf("unexpected condition result: %+v", cr)
	}
	if !reflect.DeepEqual(cr.Path, []string{"conditions", "all", "0"}) {
		t.Errorf("Path = %v", cr.Path)
	}
	if cr.FactValue != "src/App.tsx" {
		t.Errorf("FactValue = %v", cr.FactValue)
	}
	if result.Event == nil {
		t.Fatal("triggered result must carry the event")
	}
	if result.Event.Message != "matched src/App.tsx" {
		t.Errorf("Event.Message = %q", result.Event.Message)
	}
	if result.FileName != "src/App.tsx" {
		t.Errorf("FileName = %q", result.FileName)
	}
}

func TestSimulateAndOneMismatch(t *testing.T) {
	sim := newTestSimulator(t)
	rule := containsRule("fileName", "contains", "App")

	result, err := sim.Simulate(context.Background(), rule, "src/index.ts", Options{})
	if err != nil {
		t.Fatalf("Simulate() failed: %v", err)
	}

	if result.FinalResult != FinalNotTriggered {
		t.Errorf("FinalResult = %q, want not-triggered", result.FinalResult)
	}
	if len(result.ConditionResults) != 1 || result.ConditionResults[0].Result {
		t.Errorf("unexpected trace: %+v", result.ConditionResults)
	}
	if result.Event != nil {
		t.Error("not-triggered result must not carry an event")
	}
}

func TestSimulateOrSemantics(t *testing.T) {
	sim := newTestSimulator(t)
	rule := &rules.Rule{
		Name: "or rule",
		Conditions: rules.Conditions{Any: []rules.Condition{
			{Fact: "fileName", Operator: "contains", Value: "nope"},
			{Fact: "fileExtension", Operator: "equal", Value: ".tsx"},
		}},
		Event: rules.Event{Type: rules.EventTypeInfo, Params: map[string]any{"message": "m"}},
	}

	result, err := sim.Simulate(context.Background(), rule, "src/App.tsx", Options{})
	if err != nil {
		t.Fatalf("Simulate() failed: %v", err)
	}

	if result.FinalResult != FinalTriggered {
		t.Errorf("FinalResult = %q, want triggered", result.FinalResult)
	}
	if len(result.ConditionResults) != 2 {
		t.Fatalf("OR must still trace every child, got %d results", len(result.ConditionResults))
	}
	if result.ConditionResults[0].Result || !result.ConditionResults[1].Result {
		t.Errorf("unexpected child results: %+v", result.ConditionResults)
	}
}

func TestTraceCompletenessDespiteEarlyDecision(t *testing.T) {
	sim := newTestSimulator(t)

	// First AND child is false; a short-circuiting evaluator would skip the
	// remaining three leaves.
	rule := &rules.Rule{
		Name: "deep rule",
		Conditions: rules.Conditions{All: []rules.Condition{
			{Fact: "fileName", Operator: "contains", Value: "nope"},
			{Fact: "fileExtension", Operator: "equal", Value: ".tsx"},
			{Any: []rules.Condition{
				{Fact: "lineCount", Operator: "greaterThan", Value: 0},
				{Fact: "fileContent", Operator: "contains", Value: "TODO"},
			}},
		}},
		Event: rules.Event{Type: rules.EventTypeInfo, Params: map[string]any{"message": "m"}},
	}

	result, err := sim.Simulate(context.Background(), rule, "src/App.tsx", Options{})
	if err != nil {
		t.Fatalf("Simulate() failed: %v", err)
	}

	if got, want := len(result.ConditionResults), rule.LeafCount(); got != want {
		t.Fatalf("len(ConditionResults) = %d, want %d (full trace)", got, want)
	}
	if result.FinalResult != FinalNotTriggered {
		t.Errorf("FinalResult = %q, want not-triggered", result.FinalResult)
	}

	wantPaths := [][]string{
		{"conditions", "all", "0"},
		{"conditions", "all", "1"},
		{"conditions", "all", "2", "any", "0"},
		{"conditions", "all", "2", "any", "1"},
	}
	for i, cr := range result.ConditionResults {
		if !reflect.DeepEqual(cr.Path, wantPaths[i]) {
			t.Errorf("result %d path = %v, want %v", i, cr.Path, wantPaths[i])
		}
	}
}

func TestOrderDeterminism(t *testing.T) {
	sim := newTestSimulator(t)
	rule := &rules.Rule{
		Name: "deterministic",
		Conditions: rules.Conditions{Any: []rules.Condition{
			{Fact: "fileName", Operator: "startsWith", Value: "src/"},
			{Fact: "lineCount", Operator: "greaterThan", Value: 1},
			{Fact: "fileContent", Operator: "contains", Value: "React"},
		}},
		Event: rules.Event{Type: rules.EventTypeInfo, Params: map[string]any{"message": "m"}},
	}

	first, err := sim.Simulate(context.Background(), rule, "src/App.tsx", Options{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := sim.Simulate(context.Background(), rule, "src/App.tsx", Options{})
	if err != nil {
		t.Fatal(err)
	}

	if len(first.ConditionResults) != len(second.ConditionResults) {
		t.Fatal("runs produced different trace lengths")
	}
	for i := range first.ConditionResults {
		a, b := first.ConditionResults[i], second.ConditionResults[i]
		if a.FactName != b.FactName || a.Result != b.Result || a.Error != b.Error ||
			!reflect.DeepEqual(a.Path, b.Path) || !reflect.DeepEqual(a.FactValue, b.FactValue) {
			t.Errorf("result %d differs between runs:\n%+v\n%+v", i, a, b)
		}
	}
}

func TestConditionErrorContainment(t *testing.T) {
	fixtures := newTestFixtures(t)
	ctrl := NewController(fixtures, WithFactRegistry(func(p *parser.Parser) *registry.FactRegistry {
		reg := registry.NewFactRegistry()
		reg.Register("exploding", registry.ScopeFile, func(context.Context, map[string]any, registry.Context) (any, error) {
			return nil, fmt.Errorf("boom")
		})
		reg.Register("fileName", registry.ScopeFile, func(_ context.Context, _ map[string]any, ec registry.Context) (any, error) {
			return ec.File.Name, nil
		})
		return reg
	}))
	if err := ctrl.Initialize(context.Background(), "react-app", nil); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	sim := NewSimulator(ctrl)

	rule := &rules.Rule{
		Name: "containment",
		Conditions: rules.Conditions{Any: []rules.Condition{
			{Fact: "exploding", Operator: "equal", Value: 1},
			{Fact: "fileName", Operator: "contains", Value: "App"},
		}},
		Event: rules.Event{Type: rules.EventTypeWarning, Params: map[string]any{"message": "m"}},
	}

	result, err := sim.Simulate(context.Background(), rule, "src/App.tsx", Options{})
	if err != nil {
		t.Fatalf("Simulate() failed: %v", err)
	}

	if len(result.ConditionResults) != 2 {
		t.Fatalf("sibling of a failing condition must still be evaluated, got %d results", len(result.ConditionResults))
	}
	failed := result.ConditionResults[0]
	if failed.Error == "" {
		t.Error("failing condition must record its error")
	}
	if failed.Result {
		t.Error("a condition error must force result=false, never true")
	}
	if !result.ConditionResults[1].Result {
		t.Error("healthy sibling should still match")
	}
	// OR of (error→false, true) is true.
	if result.FinalResult != FinalTriggered {
		t.Errorf("FinalResult = %q, want triggered", result.FinalResult)
	}
}

func TestAndWithErroredLeafCannotTrigger(t *testing.T) {
	fixtures := newTestFixtures(t)
	ctrl := NewController(fixtures, WithFactRegistry(func(p *parser.Parser) *registry.FactRegistry {
		reg := registry.NewFactRegistry()
		reg.Register("exploding", registry.ScopeFile, func(context.Context, map[string]any, registry.Context) (any, error) {
			return nil, fmt.Errorf("boom")
		})
		reg.Register("fileName", registry.ScopeFile, func(_ context.Context, _ map[string]any, ec registry.Context) (any, error) {
			return ec.File.Name, nil
		})
		return reg
	}))
	if err := ctrl.Initialize(context.Background(), "react-app", nil); err != nil {
		t.Fatal(err)
	}
	sim := NewSimulator(ctrl)

	rule := &rules.Rule{
		Name: "and with error",
		Conditions: rules.Conditions{All: []rules.Condition{
			{Fact: "exploding", Operator: "equal", Value: 1},
			{Fact: "fileName", Operator: "contains", Value: "App"},
		}},
		Event: rules.Event{Type: rules.EventTypeWarning, Params: map[string]any{"message": "m"}},
	}

	result, err := sim.Simulate(context.Background(), rule, "src/App.tsx", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.FinalResult != FinalNotTriggered {
		t.Errorf("FinalResult = %q, want not-triggered (errored leaf is false)", result.FinalResult)
	}
}

func TestSimulateUnknownFile(t *testing.T) {
	sim := newTestSimulator(t)
	rule := containsRule("fileName", "contains", "App")

	_, err := sim.Simulate(context.Background(), rule, "src/Ghost.tsx", Options{})
	if err == nil {
		t.Fatal("Simulate() should fail for an unknown file")
	}
	if !errors.Is(err, ErrUnknownFile) {
		t.Errorf("error should wrap ErrUnknownFile, got: %v", err)
	}
}

func TestSimulateNotReady(t *testing.T) {
	sim := NewSimulator(NewController(newTestFixtures(t)))
	rule := containsRule("fileName", "contains", "App")

	_, err := sim.Simulate(context.Background(), rule, "src/App.tsx", Options{})
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("error should wrap ErrNotReady, got: %v", err)
	}
}

func TestSimulateMalformedRuleLandsInResult(t *testing.T) {
	sim := newTestSimulator(t)
	rule := &rules.Rule{
		Name:  "malformed",
		Event: rules.Event{Type: rules.EventTypeInfo, Params: map[string]any{"message": "m"}},
	}

	result, err := sim.Simulate(context.Background(), rule, "src/App.tsx", Options{})
	if err != nil {
		t.Fatalf("validation problems must not surface as call errors: %v", err)
	}
	if result.FinalResult != FinalError {
		t.Errorf("FinalResult = %q, want error", result.FinalResult)
	}
	if result.Error == "" {
		t.Error("result must carry the validation error")
	}
	if len(result.ConditionResults) != 0 {
		t.Errorf("malformed rule should produce an empty trace, got %d", len(result.ConditionResults))
	}
}

func TestSimulateWithContentManualScenario(t *testing.T) {
	sim := newTestSimulator(t)
	rule := &rules.Rule{
		Name: "todo check",
		Conditions: rules.Conditions{All: []rules.Condition{
			{Fact: "fileData", Operator: "contains", Value: "TODO", Path: "$.content"},
		}},
		Event: rules.Event{Type: rules.EventTypeWarning, Params: map[string]any{"message": "todo found in {{fileName}}"}},
	}

	result, err := sim.SimulateWithContent(context.Background(), rule, "temp.ts", "TODO: fix me", Options{})
	if err != nil {
		t.Fatalf("SimulateWithContent() failed: %v", err)
	}

	if result.FinalResult != FinalTriggered {
		t.Errorf("FinalResult = %q, want triggered", result.FinalResult)
	}
	cr := result.ConditionResults[0]
	if cr.JSONPath != "$.content" {
		t.Errorf("JSONPath = %q", cr.JSONPath)
	}
	if cr.FactValue != "TODO: fix me" {
		t.Errorf("FactValue should be the extracted value, got %v", cr.FactValue)
	}
	if result.Event.Message != "todo found in temp.ts" {
		t.Errorf("Event.Message = %q", result.Event.Message)
	}
}

func TestPathExtractionFailureIsContained(t *testing.T) {
	sim := newTestSimulator(t)
	rule := &rules.Rule{
		Name: "bad path",
		Conditions: rules.Conditions{All: []rules.Condition{
			{Fact: "fileData", Operator: "equal", Value: "x", Path: "$.noSuchKey"},
		}},
		Event: rules.Event{Type: rules.EventTypeInfo, Params: map[string]any{"message": "m"}},
	}

	result, err := sim.Simulate(context.Background(), rule, "src/App.tsx", Options{})
	if err != nil {
		t.Fatal(err)
	}

	if result.FinalResult != FinalNotTriggered {
		t.Errorf("FinalResult = %q, want not-triggered", result.FinalResult)
	}
	cr := result.ConditionResults[0]
	if cr.Error == "" {
		t.Error("extraction failure must populate the condition error")
	}
	if cr.Result {
		t.Error("extraction failure must force result=false")
	}
	// FactValue keeps whatever resolution produced.
	if cr.FactValue == nil {
		t.Error("FactValue should keep the resolved value on extraction failure")
	}
}

func TestSimulateGlobalWithInjectedFile(t *testing.T) {
	sim := newTestSimulator(t)
	rule := &rules.Rule{
		Name: "sees injected file",
		Conditions: rules.Conditions{All: []rules.Condition{
			{Fact: "repoFiles", Operator: "contains", Value: "extra.ts"},
		}},
		Event: rules.Event{Type: rules.EventTypeInfo, Params: map[string]any{"message": "m"}},
	}

	// Without the injected file the aggregate fact must not see it.
	result, err := sim.SimulateGlobal(context.Background(), rule, nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.FinalResult != FinalNotTriggered {
		t.Errorf("FinalResult without injection = %q, want not-triggered", result.FinalResult)
	}

	result, err = sim.SimulateGlobal(context.Background(), rule, map[string]string{"extra.ts": "// x"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.FinalResult != FinalTriggered {
		t.Errorf("FinalResult with injection = %q, want triggered", result.FinalResult)
	}
	if result.FileName != GlobalScopeFileName {
		t.Errorf("FileName = %q, want %q", result.FileName, GlobalScopeFileName)
	}
}

func TestSimulateGlobalDependencyFacts(t *testing.T) {
	sim := newTestSimulator(t)
	rule := &rules.Rule{
		Name: "react version gate",
		Conditions: rules.Conditions{All: []rules.Condition{
			{Fact: "dependencies", Operator: "semverSatisfies", Value: ">=18.0.0", Params: map[string]any{"name": "react"}},
		}},
		Event: rules.Event{Type: rules.EventTypeInfo, Params: map[string]any{"message": "modern react"}},
	}

	result, err := sim.SimulateGlobal(context.Background(), rule, nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.FinalResult != FinalTriggered {
		t.Errorf("FinalResult = %q, want triggered (react ^18.2.0 satisfies >=18)", result.FinalResult)
	}
}

func TestIsGlobalRule(t *testing.T) {
	sim := newTestSimulator(t)

	perFile := containsRule("fileName", "contains", "App")
	global := containsRule("repoFiles", "contains", "package.json")

	got, err := sim.IsGlobalRule(perFile)
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Error("fileName rule should not be global")
	}

	got, err = sim.IsGlobalRule(global)
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Error("repoFiles rule should be global")
	}
}

func TestEventDetailsFlattened(t *testing.T) {
	sim := newTestSimulator(t)
	rule := &rules.Rule{
		Name: "detailed",
		Conditions: rules.Conditions{All: []rules.Condition{
			{Fact: "fileName", Operator: "contains", Value: "App"},
		}},
		Event: rules.Event{Type: rules.EventTypeFatality, Params: map[string]any{
			"message":  "severity {{params.severity}} in {{ruleName}}",
			"severity": "high",
			"docs":     "https://example.test/rules",
		}},
	}

	result, err := sim.Simulate(context.Background(), rule, "src/App.tsx", Options{})
	if err != nil {
		t.Fatal(err)
	}

	if result.Event == nil {
		t.Fatal("expected an event")
	}
	if result.Event.Type != rules.EventTypeFatality {
		t.Errorf("Event.Type = %q", result.Event.Type)
	}
	if result.Event.Message != "severity high in detailed" {
		t.Errorf("Event.Message = %q", result.Event.Message)
	}
	if result.Event.Details["severity"] != "high" || result.Event.Details["docs"] != "https://example.test/rules" {
		t.Errorf("Details = %v", result.Event.Details)
	}
	if _, ok := result.Event.Details["message"]; ok {
		t.Error("message must not be duplicated into details")
	}
}
