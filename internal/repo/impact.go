package repo

import (
	"context"
	"fmt"
	"time"
)

// ImpactTotals aggregates verified seva executions for public reporting.
// Only rows with status = 'verified' count.
type ImpactTotals struct {
	LifetimeMeals  int `json:"lifetime_meals"`
	MonthMeals     int `json:"month_meals"`
	WeekMeals      int `json:"week_meals"`
	ActiveDevotees int `json:"active_devotees"`
	Cities         int `json:"cities"`
}

// GetImpactTotals computes the public impact aggregates as of now.
func (r *Repository) GetImpactTotals(ctx context.Context, now time.Time) (*ImpactTotals, error) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	weekStart := now.AddDate(0, 0, -7)

	const q = `
SELECT
    COALESCE(SUM(meals_served), 0),
    COALESCE(SUM(meals_served) FILTER (WHERE verified_at >= $1), 0),
    COALESCE(SUM(meals_served) FILTER (WHERE verified_at >= $2), 0),
    COUNT(DISTINCT s.user_id),
    COUNT(DISTINCT e.location) FILTER (WHERE e.location IS NOT NULL)
FROM seva_executions e
JOIN sankalps s ON s.id = e.sankalp_id
WHERE e.status = 'verified';
`
	var totals ImpactTotals
	err := r.pool.QueryRow(ctx, q, monthStart, weekStart).Scan(
		&totals.LifetimeMeals, &totals.MonthMeals, &totals.WeekMeals,
		&totals.ActiveDevotees, &totals.Cities,
	)
	if err != nil {
		return nil, fmt.Errorf("impact totals: %w", err)
	}
	return &totals, nil
}

// GetUserImpact returns the lifetime verified meals backed by one user's
// paid sankalps.
func (r *Repository) GetUserImpact(ctx context.Context, userID string) (int, error) {
	const q = `
SELECT COALESCE(SUM(e.meals_served), 0)
FROM seva_executions e
JOIN sankalps s ON s.id = e.sankalp_id
WHERE e.status = 'verified' AND s.user_id = $1;
`
	var meals int
	if err := r.pool.QueryRow(ctx, q, userID).Scan(&meals); err != nil {
		return 0, fmt.Errorf("user impact: %w", err)
	}
	return meals, nil
}
