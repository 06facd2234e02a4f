package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// Validate checks a rule definition structurally: the root must be exactly
// one of all/any with a non-empty child list, every nested combinator must
// likewise be unambiguous and non-empty, every leaf must name a fact and an
// operator and carry a comparison value, and the event must use a known type
// and include a message.
//
// Validation reports configuration errors only; whether a fact or operator
// name actually resolves is a per-condition concern at evaluation time.
func Validate(r *Rule) error {
	if r == nil {
		return fmt.Errorf("rule is nil")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name is required")
	}

	switch {
	case len(r.Conditions.All) > 0 && len(r.Conditions.Any) > 0:
		return fmt.Errorf("rule %q: root combinator must be exactly one of \"all\" or \"any\", not both", r.Name)
	case len(r.Conditions.All) == 0 && len(r.Conditions.Any) == 0:
		return fmt.Errorf("rule %q: root combinator must contain a non-empty \"all\" or \"any\" list", r.Name)
	}

	var children []Condition
	addr := "conditions."
	if len(r.Conditions.All) > 0 {
		children = r.Conditions.All
		addr += "all"
	} else {
		children = r.Conditions.Any
		addr += "any"
	}
	if err := validateChildren(children, addr); err != nil {
		return fmt.Errorf("rule %q: %w", r.Name, err)
	}

	if err := validateEvent(&r.Event); err != nil {
		return fmt.Errorf("rule %q: %w", r.Name, err)
	}

	return nil
}

func validateChildren(children []Condition, addr string) error {
	for i := range children {
		c := &children[i]
		childAddr := addr + "[" + strconv.Itoa(i) + "]"

		nested := len(c.All) > 0 || len(c.Any) > 0
		leafish := c.Fact != "" || c.Operator != ""

		switch {
		case nested && leafish:
			return fmt.Errorf("%s: a condition cannot be both a leaf and a nested combinator", childAddr)
		case nested:
			if len(c.All) > 0 && len(c.Any) > 0 {
				return fmt.Errorf("%s: nested combinator must be exactly one of \"all\" or \"any\", not both", childAddr)
			}
			if len(c.All) > 0 {
				if err := validateChildren(c.All, childAddr+".all"); err != nil {
					return err
				}
			} else {
				if err := validateChildren(c.Any, childAddr+".any"); err != nil {
					return err
				}
			}
		default:
			if c.Fact == "" {
				return fmt.Errorf("%s: condition fact is required", childAddr)
			}
			if c.Operator == "" {
				return fmt.Errorf("%s: condition operator is required", childAddr)
			}
			if c.Value == nil {
				return fmt.Errorf("%s: condition value is required", childAddr)
			}
		}
	}
	return nil
}

func validateEvent(e *Event) error {
	if !isKnownEventType(e.Type) {
		return fmt.Errorf("event type %q is invalid (must be one of: %s)", e.Type, strings.Join(EventTypes, ", "))
	}
	if e.Message() == "" {
		return fmt.Errorf("event params must include a non-empty \"message\"")
	}
	return nil
}

func isKnownEventType(t string) bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}
