package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/liamcoop/rulesim/registry"
	"github.com/liamcoop/rulesim/rules"
)

// evaluator runs one simulation pass. It holds the registries resolved at
// the start of the run so a concurrent Reset cannot swap them mid-walk.
type evaluator struct {
	facts     *registry.FactRegistry
	operators *registry.OperatorRegistry
	opts      Options
}

// evaluateCondition resolves, extracts and compares one leaf condition,
// containing any failure in the returned result. It never mutates the
// condition or the artifact context.
func (e *evaluator) evaluateCondition(ctx context.Context, cond *rules.Condition, addr []string, ec registry.Context) ConditionResult {
	result := ConditionResult{
		Path:         append([]string(nil), addr...),
		FactName:     cond.Fact,
		JSONPath:     cond.Path,
		Operator:     cond.Operator,
		CompareValue: cond.Value,
		Params:       cond.Params,
	}

	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
	}()

	if e.opts.ConditionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.ConditionTimeout)
		defer cancel()
	}

	factValue, err := e.facts.Resolve(ctx, cond.Fact, cond.Params, ec)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.FactValue = factValue

	compared := factValue
	if cond.Path != "" {
		extracted, err := jsonpath.Get(cond.Path, factValue)
		if err != nil {
			// Extraction failure is a real error, not a silent mismatch;
			// FactValue keeps the value resolution produced.
			result.Error = fmt.Sprintf("path %q: %v", cond.Path, err)
			return result
		}
		compared = extracted
		result.FactValue = extracted
	}

	matched, err := e.operators.Evaluate(cond.Operator, compared, cond.Value)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Result = matched
	return result
}
