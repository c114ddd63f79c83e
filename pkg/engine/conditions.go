package engine

import (
	"strings"

	"github.com/dukex/ruleflow/pkg/models"
)

// EvaluateGroup applies the group op over its conditions. "all"
// short-circuits on the first failure and "any" on the first success; an
// empty group holds under either op. An unknown op never holds.
func EvaluateGroup(group models.ConditionGroup, payload map[string]any) bool {
	switch group.Op {
	case models.GroupOpAll:
		for _, condition := range group.Conditions {
			if !Evaluate(condition, payload) {
				return false
			}
		}

		return true
	case models.GroupOpAny:
		if len(group.Conditions) == 0 {
			return true
		}

		for _, condition := range group.Conditions {
			if Evaluate(condition, payload) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

// Evaluate reports whether a single condition holds for payload. Missing or
// mistyped data makes the condition false instead of failing.
func Evaluate(condition models.Condition, payload map[string]any) bool {
	actual, present := Lookup(payload, condition.Path)

	switch condition.Operator {
	case models.OperatorExists:
		return present
	case models.OperatorNotExists:
		return !present
	}

	if !present {
		return false
	}

	switch condition.Operator {
	case models.OperatorEquals, models.OperatorContains, models.OperatorStartsWith, models.OperatorEndsWith:
		return compareStrings(condition.Operator, actual, condition.Value)
	case models.OperatorGt, models.OperatorGte, models.OperatorLt, models.OperatorLte:
		return compareNumbers(condition.Operator, actual, condition.Value)
	default:
		return false
	}
}

func compareStrings(operator models.Operator, actual, expected any) bool {
	left, ok := asString(actual)
	if !ok {
		return false
	}

	right, ok := asString(expected)
	if !ok {
		return false
	}

	switch operator {
	case models.OperatorEquals:
		return left == right
	case models.OperatorContains:
		return strings.Contains(left, right)
	case models.OperatorStartsWith:
		return strings.HasPrefix(left, right)
	case models.OperatorEndsWith:
		return strings.HasSuffix(left, right)
	default:
		return false
	}
}

func compareNumbers(operator models.Operator, actual, expected any) bool {
	left, ok := asNumber(actual)
	if !ok {
		return false
	}

	right, ok := asNumber(expected)
	if !ok {
		return false
	}

	switch operator {
	case models.OperatorGt:
		return left > right
	case models.OperatorGte:
		return left >= right
	case models.OperatorLt:
		return left < right
	case models.OperatorLte:
		return left <= right
	default:
		return false
	}
}
