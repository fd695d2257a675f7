// Package rules implements the ordered, conditional transformation chain
// applied to transactions after creation.
package rules

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/centavohq/centavo/internal/domain/transaction"
)

// ConditionType selects which transaction field a rule inspects.
type ConditionType string

const (
	ConditionAmount      ConditionType = "amount"
	ConditionIBAN        ConditionType = "iban"
	ConditionDescription ConditionType = "description"
)

// Operator compares the inspected field with the condition value.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorContains    Operator = "contains"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
)

// ActionType selects the mutation a matched rule performs.
type ActionType string

const (
	ActionAddTag      ActionType = "add_tag"
	ActionSetCategory ActionType = "set_category"
	ActionSetType     ActionType = "set_type"
)

// Condition is the predicate half of a rule.
type Condition struct {
	Type     ConditionType
	Operator Operator
	Value    string
}

// Action is the mutation half of a rule.
type Action struct {
	Type  ActionType
	Value string
}

// Rule is one user-owned transformation step. Rules are evaluated in
// ascending Order; inactive rules are skipped entirely.
type Rule struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Condition Condition
	Action    Action
	IsActive  bool
	Order     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Matches evaluates the rule's condition against the transaction. Malformed
// conditions evaluate false so one bad rule cannot block the chain.
func (r *Rule) Matches(tx *transaction.Transaction) bool {
	switch r.Condition.Type {
	case ConditionAmount:
		value, err := decimal.NewFromString(strings.TrimSpace(r.Condition.Value))
		if err != nil {
			return false
		}
		switch r.Condition.Operator {
		case OperatorGreaterThan:
			return tx.Amount.GreaterThan(value)
		case OperatorLessThan:
			return tx.Amount.LessThan(value)
		case OperatorEquals:
			return tx.Amount.Equal(value)
		}

	case ConditionIBAN:
		// IBAN comparison is case-sensitive.
		iban := tx.IBAN()
		switch r.Condition.Operator {
		case OperatorContains:
			return iban != "" && strings.Contains(iban, r.Condition.Value)
		case OperatorEquals:
			return iban != "" && iban == r.Condition.Value
		}

	case ConditionDescription:
		desc := strings.ToLower(tx.Description)
		value := strings.ToLower(r.Condition.Value)
		switch r.Condition.Operator {
		case OperatorContains:
			return strings.Contains(desc, value)
		case OperatorEquals:
			return desc == value
		}
	}
	return false
}
