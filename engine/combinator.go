package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/liamcoop/rulesim/registry"
	"github.com/liamcoop/rulesim/rules"
)

// combinator kinds used for positional addresses and error messages.
const (
	combinatorAll = "all"
	combinatorAny = "any"
)

// evaluateRoot walks the rule's root combinator and returns its boolean
// value along with the complete trace. A malformed node is a top-level
// configuration error that aborts the run.
func (e *evaluator) evaluateRoot(ctx context.Context, r *rules.Rule, ec registry.Context, trace *[]ConditionResult) (bool, error) {
	addr := []string{"conditions"}
	switch {
	case len(r.Conditions.All) > 0 && len(r.Conditions.Any) > 0:
		return false, fmt.Errorf("root combinator has both \"all\" and \"any\"")
	case len(r.Conditions.All) > 0:
		return e.evaluateChildren(ctx, combinatorAll, r.Conditions.All, addr, ec, trace)
	case len(r.Conditions.Any) > 0:
		return e.evaluateChildren(ctx, combinatorAny, r.Conditions.Any, addr, ec, trace)
	default:
		return false, fmt.Errorf("root combinator is empty")
	}
}

// evaluateChildren visits every child of a combinator node in tree order,
// appending each leaf's result to the trace as it is produced. No
// short-circuiting: the node's boolean is computed from the complete child
// set after the full visit, so the trace is observational, never
// suppressive.
func (e *evaluator) evaluateChildren(ctx context.Context, kind string, children []rules.Condition, addr []string, ec registry.Context, trace *[]ConditionResult) (bool, error) {
	addr = append(addr, kind)

	values := make([]bool, 0, len(children))
	for i := range children {
		child := &children[i]
		childAddr := append(append([]string(nil), addr...), strconv.Itoa(i))

		value, err := e.evaluateNode(ctx, child, childAddr, ec, trace)
		if err != nil {
			return false, err
		}
		values = append(values, value)
	}

	if kind == combinatorAll {
		for _, v := range values {
			if !v {
				return false, nil
			}
		}
		return true, nil
	}
	for _, v := range values {
		if v {
			return true, nil
		}
	}
	return false, nil
}

// evaluateNode dispatches one tree slot: leaves go through the condition
// evaluator, nested combinators recurse depth-first.
func (e *evaluator) evaluateNode(ctx context.Context, node *rules.Condition, addr []string, ec registry.Context, trace *[]ConditionResult) (bool, error) {
	nested := len(node.All) > 0 || len(node.Any) > 0

	switch {
	case nested && node.Fact != "":
		return false, fmt.Errorf("node at %v is both a leaf and a combinator", addr)
	case len(node.All) > 0 && len(node.Any) > 0:
		return false, fmt.Errorf("node at %v has both \"all\" and \"any\"", addr)
	case len(node.All) > 0:
		return e.evaluateChildren(ctx, combinatorAll, node.All, addr, ec, trace)
	case len(node.Any) > 0:
		return e.evaluateChildren(ctx, combinatorAny, node.Any, addr, ec, trace)
	case node.Fact == "":
		return false, fmt.Errorf("node at %v is neither a condition nor a combinator", addr)
	default:
		result := e.evaluateCondition(ctx, node, addr, ec)
		*trace = append(*trace, result)
		return result.Result, nil
	}
}
