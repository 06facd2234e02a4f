// Package engine implements the rule simulation engine: a staged-
// initialization lifecycle controller over a read-only corpus cache, a
// full-trace condition evaluator, and the simulation orchestrator.
//
// Simulation deliberately trades runtime for transparency: every leaf
// condition in the rule tree is evaluated and traced even when an earlier
// sibling already decided the combinator's outcome. A production evaluator
// may short-circuit; simulation output always shows all conditions.
package engine

import (
	"time"
)

// FinalResult is the overall outcome of one simulation run.
type FinalResult string

const (
	FinalTriggered    FinalResult = "triggered"
	FinalNotTriggered FinalResult = "not-triggered"
	FinalError        FinalResult = "error"
)

// GlobalScopeFileName is the FileName sentinel for whole-corpus runs.
const GlobalScopeFileName = "<global>"

// ConditionResult records the evaluation of one leaf condition, in the
// order conditions are visited (pre-order, depth-first, left-to-right).
type ConditionResult struct {
	// Path is the positional address within the rule tree, e.g.
	// ["conditions","all","0"].
	Path []string `json:"path"`
	// FactName is the fact the condition referenced.
	FactName string `json:"factName"`
	// JSONPath echoes the condition's path extraction expression, if any.
	JSONPath string `json:"jsonPath,omitempty"`
	// Operator is the comparison operator name.
	Operator string `json:"operator"`
	// CompareValue is the condition's literal comparison operand.
	CompareValue any `json:"compareValue"`
	// FactValue is the resolved (and, when extraction succeeded,
	// post-extraction) value. Nil if resolution itself failed.
	FactValue any `json:"factValue,omitempty"`
	// Result is true when the condition matched, i.e. contributed toward
	// firing. Forced false whenever Error is set.
	Result bool `json:"result"`
	// Error holds the resolution/extraction/comparison failure, if any.
	Error string `json:"error,omitempty"`
	// Duration covers only this condition's own resolve-extract-compare
	// work, excluding sibling and ancestor cost.
	Duration time.Duration `json:"duration"`
	// Params echoes the condition params for display.
	Params map[string]any `json:"params,omitempty"`
}

// EmittedEvent is the rule's event with templated fields expanded, attached
// to a result only when the rule triggered.
type EmittedEvent struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// SimulationResult is the immutable value returned by one engine
// invocation. The engine retains no reference to it; result history, if
// wanted, is the caller's concern.
type SimulationResult struct {
	ID               string            `json:"id"`
	FileName         string            `json:"fileName"`
	Timestamp        time.Time         `json:"timestamp"`
	Duration         time.Duration     `json:"duration"`
	ConditionResults []ConditionResult `json:"conditionResults"`
	FinalResult      FinalResult       `json:"finalResult"`
	Event            *EmittedEvent     `json:"event,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// Options tunes a simulation run. The zero value matches the default
// semantics exactly.
type Options struct {
	// ConditionTimeout, when positive, bounds each condition's fact
	// resolution. Zero disables the timeout.
	ConditionTimeout time.Duration
}
