package categorization

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

const (
	engineCacheTTL     = 5 * time.Minute
	engineCacheCleanup = 10 * time.Minute
)

// Service resolves descriptions to categories. Engines are built per user
// from their stored patterns and cached; pattern writes invalidate the
// cached engine so the next import sees them.
type Service struct {
	repo    Repository
	engines *cache.Cache
	logger  *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		engines: cache.New(engineCacheTTL, engineCacheCleanup),
		logger:  logger,
	}
}

// Categorize returns the category for a description, or nil when no
// pattern matches.
func (s *Service) Categorize(ctx context.Context, userID uuid.UUID, description string) (*uuid.UUID, error) {
	engine, err := s.engineFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	match := engine.Match(description)
	if match == nil {
		return nil, nil
	}
	categoryID := match.CategoryID
	return &categoryID, nil
}

// AddPattern stores a pattern and invalidates the user's cached engine.
func (s *Service) AddPattern(ctx context.Context, p *Pattern) error {
	if err := s.repo.Create(ctx, p); err != nil {
		return err
	}
	s.engines.Delete(p.UserID.String())
	s.logger.Info("category pattern added",
		"user_id", p.UserID, "keyword", p.Keyword, "category_id", p.CategoryID)
	return nil
}

// RemovePattern deletes a pattern and invalidates the user's cached engine.
func (s *Service) RemovePattern(ctx context.Context, userID, patternID uuid.UUID) error {
	if err := s.repo.Delete(ctx, patternID); err != nil {
		return err
	}
	s.engines.Delete(userID.String())
	return nil
}

// Patterns lists the user's patterns.
func (s *Service) Patterns(ctx context.Context, userID uuid.UUID) ([]Pattern, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) engineFor(ctx context.Context, userID uuid.UUID) (*Engine, error) {
	key := userID.String()
	if cached, ok := s.engines.Get(key); ok {
		return cached.(*Engine), nil
	}

	patterns, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	engine := NewEngine(patterns)
	s.engines.Set(key, engine, cache.DefaultExpiration)
	return engine, nil
}
