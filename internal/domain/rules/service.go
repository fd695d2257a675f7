package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotRuleOwner rejects calls on rules owned by another user.
var ErrNotRuleOwner = errors.New("rule belongs to another user")

// RuleParams is the user-editable half of a rule.
type RuleParams struct {
	Name      string
	Condition Condition
	Action    Action
	IsActive  bool
	Order     int
}

func (p *RuleParams) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("rule name is required")
	}

	switch p.Condition.Type {
	case ConditionAmount:
		switch p.Condition.Operator {
		case OperatorEquals, OperatorGreaterThan, OperatorLessThan:
		default:
			return fmt.Errorf("operator %q is not valid for amount conditions", p.Condition.Operator)
		}
		if _, err := decimal.NewFromString(strings.TrimSpace(p.Condition.Value)); err != nil {
			return fmt.Errorf("amount condition value %q is not a number", p.Condition.Value)
		}
	case ConditionIBAN, ConditionDescription:
		switch p.Condition.Operator {
		case OperatorEquals, OperatorContains:
		default:
			return fmt.Errorf("operator %q is not valid for %s conditions", p.Condition.Operator, p.Condition.Type)
		}
		if p.Condition.Value == "" {
			return errors.New("condition value is required")
		}
	default:
		return fmt.Errorf("unknown condition type %q", p.Condition.Type)
	}

	switch p.Action.Type {
	case ActionAddTag, ActionSetCategory, ActionSetType:
	default:
		return fmt.Errorf("unknown action type %q", p.Action.Type)
	}
	if p.Action.Value == "" {
		return errors.New("action value is required")
	}
	return nil
}

// RuleService owns rule CRUD with per-user ownership checks.
type RuleService struct {
	repo   Repository
	logger *slog.Logger
}

func NewRuleService(repo Repository, logger *slog.Logger) *RuleService {
	return &RuleService{repo: repo, logger: logger}
}

// Create validates and stores a new rule for the user.
func (s *RuleService) Create(ctx context.Context, userID uuid.UUID, params RuleParams) (*Rule, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	rule := &Rule{
		UserID:    userID,
		Name:      params.Name,
		Condition: params.Condition,
		Action:    params.Action,
		IsActive:  params.IsActive,
		Order:     params.Order,
	}
	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, err
	}
	s.logger.Info("rule created", "rule_id", rule.ID, "user_id", userID, "name", rule.Name)
	return rule, nil
}

// List returns all of the user's rules in evaluation order.
func (s *RuleService) List(ctx context.Context, userID uuid.UUID) ([]*Rule, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Update rewrites a rule the user owns.
func (s *RuleService) Update(ctx context.Context, userID, ruleID uuid.UUID, params RuleParams) (*Rule, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	rule, err := s.ownedRule(ctx, userID, ruleID)
	if err != nil {
		return nil, err
	}

	rule.Name = params.Name
	rule.Condition = params.Condition
	rule.Action = params.Action
	rule.IsActive = params.IsActive
	rule.Order = params.Order
	if err := s.repo.Update(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// Delete removes a rule the user owns.
func (s *RuleService) Delete(ctx context.Context, userID, ruleID uuid.UUID) error {
	if _, err := s.ownedRule(ctx, userID, ruleID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, ruleID)
}

func (s *RuleService) ownedRule(ctx context.Context, userID, ruleID uuid.UUID) (*Rule, error) {
	rule, err := s.repo.GetByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if rule.UserID != userID {
		return nil, ErrNotRuleOwner
	}
	return rule, nil
}
