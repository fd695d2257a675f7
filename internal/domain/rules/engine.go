package rules

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/centavohq/centavo/internal/domain/transaction"
)

// RuleRepository loads the rules the engine evaluates.
type RuleRepository interface {
	ListActive(ctx context.Context, userID uuid.UUID) ([]*Rule, error)
}

// TagStore resolves tag names to ids, creating missing tags.
type TagStore interface {
	LookupOrCreate(ctx context.Context, userID uuid.UUID, name string) (uuid.UUID, error)
}

// CategoryStore resolves category names to ids, creating missing categories.
type CategoryStore interface {
	LookupOrCreate(ctx context.Context, userID uuid.UUID, name string) (uuid.UUID, error)
}

// Engine folds transactions through a user's active rules in ascending order.
// Each rule sees the possibly-already-mutated transaction from the prior one.
type Engine struct {
	repo       RuleRepository
	tags       TagStore
	categories CategoryStore
	logger     *slog.Logger
}

// NewEngine creates a rule engine.
func NewEngine(repo RuleRepository, tags TagStore, categories CategoryStore, logger *slog.Logger) *Engine {
	return &Engine{
		repo:       repo,
		tags:       tags,
		categories: categories,
		logger:     logger,
	}
}

// ApplyRules mutates the transaction through the user's rule chain. Rule
// loading failures are returned; a single rule's action failure is logged
// and skipped so the chain keeps going.
func (e *Engine) ApplyRules(ctx context.Context, tx *transaction.Transaction, userID uuid.UUID) error {
	ruleSet, err := e.repo.ListActive(ctx, userID)
	if err != nil {
		return err
	}

	for _, rule := range ruleSet {
		if !rule.Matches(tx) {
			continue
		}
		if err := e.apply(ctx, rule, tx, userID); err != nil {
			e.logger.Warn("rule action failed",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
				"action", rule.Action.Type,
				"error", err)
		}
	}
	return nil
}

// apply performs the action of a matched rule. Unrecognized action types are
// a no-op.
func (e *Engine) apply(ctx context.Context, rule *Rule, tx *transaction.Transaction, userID uuid.UUID) error {
	switch rule.Action.Type {
	case ActionAddTag:
		tagID, err := e.tags.LookupOrCreate(ctx, userID, rule.Action.Value)
		if err != nil {
			return err
		}
		tx.AddTag(tagID)

	case ActionSetCategory:
		categoryID, err := e.categories.LookupOrCreate(ctx, userID, rule.Action.Value)
		if err != nil {
			return err
		}
		tx.CategoryID = &categoryID

	case ActionSetType:
		tx.Type = rule.Action.Value
	}
	return nil
}
