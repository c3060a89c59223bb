// Package impact serves aggregate seva figures for the public scoreboard
// endpoint and the weekly broadcast, with a short Redis cache in front of
// the aggregate query.
package impact

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bot-sankalp/internal/cache"
	"bot-sankalp/internal/repo"
)

const (
	cacheKey = "impact:totals"
	cacheTTL = 5 * time.Minute
)

// Service computes and caches impact totals.
type Service struct {
	logger *slog.Logger
	store  repo.Store
	cache  *cache.Redis
	now    func() time.Time
}

// New creates an impact service.
func New(logger *slog.Logger, store repo.Store, redis *cache.Redis) *Service {
	return &Service{
		logger: logger.With("component", "impact"),
		store:  store,
		cache:  redis,
		now:    time.Now,
	}
}

// Totals returns the current aggregate figures, served from cache when
// fresh.
func (s *Service) Totals(ctx context.Context) (*repo.ImpactTotals, error) {
	if s.cache != nil {
		var cached repo.ImpactTotals
		ok, err := s.cache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			s.logger.Warn("impact cache read failed", "error", err)
		} else if ok {
			return &cached, nil
		}
	}

	totals, err := s.store.GetImpactTotals(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("load impact totals: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKey, totals, cacheTTL); err != nil {
			s.logger.Warn("impact cache write failed", "error", err)
		}
	}
	return totals, nil
}

// UserMeals returns the verified meal count attributed to one user.
func (s *Service) UserMeals(ctx context.Context, userID string) (int, error) {
	meals, err := s.store.GetUserImpact(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load user impact: %w", err)
	}
	return meals, nil
}
