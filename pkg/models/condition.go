package models

import (
	"errors"
	"fmt"
	"slices"
)

// GroupOp combines the conditions of a ConditionGroup.
type GroupOp string

const (
	GroupOpAll GroupOp = "all" // every condition must hold
	GroupOpAny GroupOp = "any" // at least one condition must hold
)

// Operator is the comparison applied by a Condition.
type Operator string

const (
	OperatorEquals     Operator = "equals"
	OperatorContains   Operator = "contains"
	OperatorStartsWith Operator = "starts_with"
	OperatorEndsWith   Operator = "ends_with"
	OperatorExists     Operator = "exists"
	OperatorNotExists  Operator = "not_exists"
	OperatorGt         Operator = "gt"
	OperatorGte        Operator = "gte"
	OperatorLt         Operator = "lt"
	OperatorLte        Operator = "lte"
)

// Operators lists every supported operator.
var Operators = []Operator{
	OperatorEquals,
	OperatorContains,
	OperatorStartsWith,
	OperatorEndsWith,
	OperatorExists,
	OperatorNotExists,
	OperatorGt,
	OperatorGte,
	OperatorLt,
	OperatorLte,
}

var (
	ErrUnknownGroupOp  = errors.New("unknown condition group op")
	ErrUnknownOperator = errors.New("unknown condition operator")
)

// ConditionGroup is a boolean combination of conditions over an event payload.
type ConditionGroup struct {
	Op         GroupOp     `json:"op"`
	Conditions []Condition `json:"conditions"`
}

// Condition compares the payload value found at Path with Value.
type Condition struct {
	Path     string   `json:"path"     validate:"required"`
	Operator Operator `json:"operator" validate:"required"`
	Value    any      `json:"value,omitempty"`
}

func (g *ConditionGroup) Validate() error {
	if g.Op != GroupOpAll && g.Op != GroupOpAny {
		return fmt.Errorf("%w: %q", ErrUnknownGroupOp, g.Op)
	}

	for i, condition := range g.Conditions {
		if err := validate.Struct(condition); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}

		if !slices.Contains(Operators, condition.Operator) {
			return fmt.Errorf("condition %d: %w: %q", i, ErrUnknownOperator, condition.Operator)
		}
	}

	return nil
}
