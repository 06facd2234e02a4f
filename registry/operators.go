package registry

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// ErrUnknownOperator is returned when a condition references an unregistered
// operator name.
var ErrUnknownOperator = errors.New("unknown operator")

// OperatorFunc compares a resolved fact value against a condition's literal
// comparison value.
type OperatorFunc func(factValue, compareValue any) (bool, error)

// OperatorRegistry maps operator names to comparison functions.
type OperatorRegistry struct {
	mu  sync.RWMutex
	ops map[string]OperatorFunc
}

// NewOperatorRegistry creates an empty operator registry. Use
// NewDefaultOperatorRegistry for one pre-populated with the builtins.
func NewOperatorRegistry() *OperatorRegistry {
	return &OperatorRegistry{ops: make(map[string]OperatorFunc)}
}

// NewDefaultOperatorRegistry creates a registry with all builtin operators
// registered.
func NewDefaultOperatorRegistry() *OperatorRegistry {
	r := NewOperatorRegistry()
	for name, fn := range builtinOperators {
		r.Register(name, fn)
	}
	return r
}

// Register adds or replaces an operator under the given name.
func (r *OperatorRegistry) Register(name string, fn OperatorFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[name] = fn
}

// Evaluate looks up the named operator and applies it.
func (r *OperatorRegistry) Evaluate(name string, factValue, compareValue any) (bool, error) {
	r.mu.RLock()
	fn, ok := r.ops[name]
	r.mu.RUnlock()

	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, name)
	}
	return fn(factValue, compareValue)
}

// Names returns the registered operator names (unordered).
func (r *OperatorRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	return names
}

var builtinOperators = map[string]OperatorFunc{
	"equal":                opEqual,
	"notEqual":             opNotEqual,
	"in":                   opIn,
	"notIn":                opNotIn,
	"contains":             opContains,
	"doesNotContain":       opDoesNotContain,
	"lessThan":             numericOp(func(a, b float64) bool { return a < b }),
	"lessThanInclusive":    numericOp(func(a, b float64) bool { return a <= b }),
	"greaterThan":          numericOp(func(a, b float64) bool { return a > b }),
	"greaterThanInclusive": numericOp(func(a, b float64) bool { return a >= b }),
	"startsWith":           stringOp(strings.HasPrefix),
	"endsWith":             stringOp(strings.HasSuffix),
	"matches":              opMatches,
	"semverSatisfies":      opSemverSatisfies,
}

func opEqual(factValue, compareValue any) (bool, error) {
	return looseEqual(factValue, compareValue), nil
}

func opNotEqual(factValue, compareValue any) (bool, error) {
	return !looseEqual(factValue, compareValue), nil
}

func opIn(factValue, compareValue any) (bool, error) {
	items, err := asSlice(compareValue)
	if err != nil {
		return false, fmt.Errorf("operator \"in\" requires a list comparison value: %w", err)
	}
	for _, item := range items {
		if looseEqual(factValue, item) {
			return true, nil
		}
	}
	return false, nil
}

func opNotIn(factValue, compareValue any) (bool, error) {
	items, err := asSlice(compareValue)
	if err != nil {
		return false, fmt.Errorf("operator \"notIn\" requires a list comparison value: %w", err)
	}
	for _, item := range items {
		if looseEqual(factValue, item) {
			return false, nil
		}
	}
	return true, nil
}

// opContains matches a substring when the fact value is a string and element
// membership when it is a list.
func opContains(factValue, compareValue any) (bool, error) {
	if s, ok := factValue.(string); ok {
		needle, err := asString(compareValue)
		if err != nil {
			return false, err
		}
		return strings.Contains(s, needle), nil
	}
	items, err := asSlice(factValue)
	if err != nil {
		return false, fmt.Errorf("operator \"contains\" requires a string or list fact value, got %T", factValue)
	}
	for _, item := range items {
		if looseEqual(item, compareValue) {
			return true, nil
		}
	}
	return false, nil
}

func opDoesNotContain(factValue, compareValue any) (bool, error) {
	ok, err := opContains(factValue, compareValue)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func opMatches(factValue, compareValue any) (bool, error) {
	s, err := asString(factValue)
	if err != nil {
		return false, fmt.Errorf("operator \"matches\" requires a string fact value: %w", err)
	}
	pattern, err := asString(compareValue)
	if err != nil {
		return false, fmt.Errorf("operator \"matches\" requires a string pattern: %w", err)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re.MatchString(s), nil
}

// opSemverSatisfies checks a version string against a constraint range,
// e.g. factValue "18.2.0" against compareValue ">=18.0.0 <19".
func opSemverSatisfies(factValue, compareValue any) (bool, error) {
	raw, err := asString(factValue)
	if err != nil {
		return false, fmt.Errorf("operator \"semverSatisfies\" requires a version string: %w", err)
	}
	rangeStr, err := asString(compareValue)
	if err != nil {
		return false, fmt.Errorf("operator \"semverSatisfies\" requires a constraint string: %w", err)
	}

	// npm-style manifests prefix versions with range markers; strip the
	// common ones so "^18.2.0" still parses as a version.
	raw = strings.TrimLeft(raw, "^~=v")

	version, err := semver.NewVersion(raw)
	if err != nil {
		return false, fmt.Errorf("invalid version %q: %w", raw, err)
	}
	constraint, err := semver.NewConstraint(rangeStr)
	if err != nil {
		return false, fmt.Errorf("invalid constraint %q: %w", rangeStr, err)
	}
	return constraint.Check(version), nil
}

func numericOp(cmp func(a, b float64) bool) OperatorFunc {
	return func(factValue, compareValue any) (bool, error) {
		a, err := asFloat(factValue)
		if err != nil {
			return false, fmt.Errorf("fact value is not numeric: %w", err)
		}
		b, err := asFloat(compareValue)
		if err != nil {
			return false, fmt.Errorf("comparison value is not numeric: %w", err)
		}
		return cmp(a, b), nil
	}
}

func stringOp(cmp func(s, arg string) bool) OperatorFunc {
	return func(factValue, compareValue any) (bool, error) {
		s, err := asString(factValue)
		if err != nil {
			return false, fmt.Errorf("fact value is not a string: %w", err)
		}
		arg, err := asString(compareValue)
		if err != nil {
			return false, fmt.Errorf("comparison value is not a string: %w", err)
		}
		return cmp(s, arg), nil
	}
}
