package rules

// EventTypeInfo, EventTypeWarning and EventTypeFatality are the allowed
// values for Event.Type.
const (
	EventTypeInfo     = "info"
	EventTypeWarning  = "warning"
	EventTypeFatality = "fatality"
)

// EventTypes lists the closed set of event types a rule may emit.
var EventTypes = []string{EventTypeInfo, EventTypeWarning, EventTypeFatality}

// Rule is a declarative evaluation rule: a named boolean tree of conditions
// plus the event emitted when the tree evaluates true. Rules are supplied
// fresh per simulation call and are never mutated by the engine.
type Rule struct {
	Name       string     `json:"name" yaml:"name"`
	Conditions Conditions `json:"conditions" yaml:"conditions"`
	Event      Event      `json:"event" yaml:"event"`
}

// Conditions is the root combinator of a rule. Exactly one of All or Any
// must be populated: All is conjunction (every child must match), Any is
// disjunction (at least one child must match).
type Conditions struct {
	All []Condition `json:"all,omitempty" yaml:"all,omitempty"`
	Any []Condition `json:"any,omitempty" yaml:"any,omitempty"`
}

// Condition is one slot in the rule tree. A slot is either a leaf (Fact,
// Operator and Value set) or a nested combinator (All or Any set); the two
// forms are mutually exclusive.
//
// For a leaf, Fact names a registered fact provider, Operator names a
// registered comparison operator, Value is the comparison operand, Path is
// an optional JSONPath expression applied to the resolved fact value before
// comparison, and Params is an optional bag forwarded to the fact provider.
type Condition struct {
	Fact     string         `json:"fact,omitempty" yaml:"fact,omitempty"`
	Operator string         `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value    any            `json:"value,omitempty" yaml:"value,omitempty"`
	Path     string         `json:"path,omitempty" yaml:"path,omitempty"`
	Params   map[string]any `json:"params,omitempty" yaml:"params,omitempty"`

	All []Condition `json:"all,omitempty" yaml:"all,omitempty"`
	Any []Condition `json:"any,omitempty" yaml:"any,omitempty"`
}

// IsLeaf reports whether the slot is an atomic condition rather than a
// nested combinator.
func (c *Condition) IsLeaf() bool {
	return len(c.All) == 0 && len(c.Any) == 0
}

// Event describes what a rule emits when it fires. Params is an arbitrary
// key/value bag and must contain at least a "message" entry; the message may
// reference {{fileName}}, {{ruleName}} and {{params.<key>}} placeholders.
type Event struct {
	Type   string         `json:"type" yaml:"type"`
	Params map[string]any `json:"params" yaml:"params"`
}

// Message returns the raw, un-templated message from the event params, or
// the empty string if none is set.
func (e *Event) Message() string {
	if e.Params == nil {
		return ""
	}
	msg, _ := e.Params["message"].(string)
	return msg
}

// LeafCount returns the number of atomic conditions in the rule tree. A
// well-formed simulation produces exactly one condition result per leaf.
func (r *Rule) LeafCount() int {
	return countLeaves(r.Conditions.All) + countLeaves(r.Conditions.Any)
}

func countLeaves(children []Condition) int {
	n := 0
	for i := range children {
		c := &children[i]
		if c.IsLeaf() {
			n++
			continue
		}
		n += countLeaves(c.All) + countLeaves(c.Any)
	}
	return n
}

// UsesGlobalFacts walks the rule tree and reports whether any leaf condition
// references a fact the provided predicate classifies as repo-wide. It is a
// pure function over the tree; scope selection never lives in engine state.
func UsesGlobalFacts(r *Rule, isGlobal func(factName string) bool) bool {
	return anyLeaf(r.Conditions.All, isGlobal) || anyLeaf(r.Conditions.Any, isGlobal)
}

func anyLeaf(children []Condition, isGlobal func(string) bool) bool {
	for i := range children {
		c := &children[i]
		if c.IsLeaf() {
			if isGlobal(c.Fact) {
				return true
			}
			continue
		}
		if anyLeaf(c.All, isGlobal) || anyLeaf(c.Any, isGlobal) {
			return true
		}
	}
	return false
}
