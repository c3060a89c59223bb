package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const userColumns = `id, phone, display_name, timezone, rashi, nakshatra, birth_time,
preferred_deity, auspicious_day, dob, wedding_anniversary, state, cycle_day,
devotional_cycle, ritual_phase, sankalp_prompts_this_month, intensity_score,
last_sankalp_prompt_at, last_sankalp_at, total_sankalps, engagement_streak,
days_sent, next_daily_message_at, next_nurture_at, last_monthly_reset_month,
onboarded_at, last_engagement_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Phone, &u.DisplayName, &u.Timezone, &u.Rashi, &u.Nakshatra, &u.BirthTime,
		&u.Deity, &u.AuspiciousDay, &u.DOB, &u.Anniversary, &u.State, &u.CycleDay,
		&u.DevotionalCycle, &u.RitualPhase, &u.PromptsThisMonth, &u.IntensityScore,
		&u.LastSankalpPromptAt, &u.LastSankalpAt, &u.TotalSankalps, &u.EngagementStreak,
		&u.DaysSent, &u.NextDailyMessageAt, &u.NextNurtureAt, &u.LastMonthlyResetYYMM,
		&u.OnboardedAt, &u.LastEngagementAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetOrCreateUser returns the user for a canonical phone, creating both the
// user and its conversation row on first sight. An empty display name is
// filled from the inbound profile when available; nothing else is mutated.
func (r *Repository) GetOrCreateUser(ctx context.Context, phone string, displayName *string) (*User, error) {
	var user *User
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		q := `
INSERT INTO users (phone, display_name)
VALUES ($1, $2)
ON CONFLICT (phone) DO UPDATE SET
    display_name = COALESCE(users.display_name, EXCLUDED.display_name),
    updated_at = NOW()
RETURNING ` + userColumns + `;`
		u, err := scanUser(tx.QueryRow(ctx, q, phone, displayName))
		if err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}

		const qc = `
INSERT INTO conversations (user_id)
VALUES ($1)
ON CONFLICT (user_id) DO NOTHING;`
		if _, err := tx.Exec(ctx, qc, u.ID); err != nil {
			return fmt.Errorf("ensure conversation: %w", err)
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID returns user by internal identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1;`
	u, err := scanUser(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// GetUserByPhone returns user by canonical phone.
func (r *Repository) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE phone = $1 LIMIT 1;`
	u, err := scanUser(r.pool.QueryRow(ctx, q, phone))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by phone: %w", err)
	}
	return u, nil
}

// LockUserTx loads the user row under FOR UPDATE inside tx. All per-user
// mutations are serialized through this lock.
func (r *Repository) LockUserTx(ctx context.Context, tx pgx.Tx, id string) (*User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE;`
	u, err := scanUser(tx.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock user: %w", err)
	}
	return u, nil
}

// SaveUserTx writes back every mutable user field inside tx.
func (r *Repository) SaveUserTx(ctx context.Context, tx pgx.Tx, u *User) error {
	const q = `
UPDATE users SET
    display_name = $2,
    timezone = $3,
    rashi = $4,
    nakshatra = $5,
    birth_time = $6,
    preferred_deity = $7,
    auspicious_day = $8,
    dob = $9,
    wedding_anniversary = $10,
    state = $11,
    cycle_day = $12,
    devotional_cycle = $13,
    ritual_phase = $14,
    sankalp_prompts_this_month = $15,
    intensity_score = $16,
    last_sankalp_prompt_at = $17,
    last_sankalp_at = $18,
    total_sankalps = $19,
    engagement_streak = $20,
    days_sent = $21,
    next_daily_message_at = $22,
    next_nurture_at = $23,
    last_monthly_reset_month = $24,
    onboarded_at = $25,
    last_engagement_at = $26,
    updated_at = NOW()
WHERE id = $1;
`
	ct, err := tx.Exec(ctx, q,
		u.ID, u.DisplayName, u.Timezone, u.Rashi, u.Nakshatra, u.BirthTime,
		u.Deity, u.AuspiciousDay, u.DOB, u.Anniversary, u.State, u.CycleDay,
		u.DevotionalCycle, u.RitualPhase, u.PromptsThisMonth, u.IntensityScore,
		u.LastSankalpPromptAt, u.LastSankalpAt, u.TotalSankalps, u.EngagementStreak,
		u.DaysSent, u.NextDailyMessageAt, u.NextNurtureAt, u.LastMonthlyResetYYMM,
		u.OnboardedAt, u.LastEngagementAt,
	)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("save user %s: %w", u.ID, ErrNotFound)
	}
	return nil
}

// ListUsersDue returns users whose daily or nurture schedule has passed.
func (r *Repository) ListUsersDue(ctx context.Context, now time.Time, limit int) ([]User, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	q := `
SELECT ` + userColumns + `
FROM users
WHERE next_daily_message_at <= $1 OR next_nurture_at <= $1
ORDER BY COALESCE(next_daily_message_at, next_nurture_at) ASC
LIMIT $2;`
	return r.queryUsers(ctx, q, now, limit)
}

// ListUsersForWeeklyPrompt returns passive users whose auspicious day matches
// weekday and whose last paid sankalp predates the cooldown cutoff.
func (r *Repository) ListUsersForWeeklyPrompt(ctx context.Context, weekday string, cutoff time.Time) ([]User, error) {
	q := `
SELECT ` + userColumns + `
FROM users
WHERE auspicious_day = $1
  AND state = 'DAILY_PASSIVE'
  AND (last_sankalp_at IS NULL OR last_sankalp_at < $2);`
	return r.queryUsers(ctx, q, weekday, cutoff)
}

// ListUsersByStates returns users currently in any of the given states.
func (r *Repository) ListUsersByStates(ctx context.Context, states []string) ([]User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE state = ANY($1);`
	return r.queryUsers(ctx, q, states)
}

// ResetMonthlyPromptCounts zeroes the monthly prompt counter for users whose
// counter has not yet been reset for yyyymm. Returns rows affected.
func (r *Repository) ResetMonthlyPromptCounts(ctx context.Context, yyyymm int) (int64, error) {
	const q = `
UPDATE users
SET sankalp_prompts_this_month = 0,
    last_monthly_reset_month = $1,
    updated_at = NOW()
WHERE last_monthly_reset_month <> $1;
`
	ct, err := r.pool.Exec(ctx, q, yyyymm)
	if err != nil {
		return 0, fmt.Errorf("reset monthly prompt counts: %w", err)
	}
	return ct.RowsAffected(), nil
}

// ListUsersWithDOB returns users whose date of birth matches day/month.
func (r *Repository) ListUsersWithDOB(ctx context.Context, month, day int) ([]User, error) {
	q := `
SELECT ` + userColumns + `
FROM users
WHERE dob IS NOT NULL
  AND EXTRACT(MONTH FROM dob) = $1
  AND EXTRACT(DAY FROM dob) = $2;`
	return r.queryUsers(ctx, q, month, day)
}

// ListUsersWithAnniversary returns users whose wedding anniversary matches day/month.
func (r *Repository) ListUsersWithAnniversary(ctx context.Context, month, day int) ([]User, error) {
	q := `
SELECT ` + userColumns + `
FROM users
WHERE wedding_anniversary IS NOT NULL
  AND EXTRACT(MONTH FROM wedding_anniversary) = $1
  AND EXTRACT(DAY FROM wedding_anniversary) = $2;`
	return r.queryUsers(ctx, q, month, day)
}

func (r *Repository) queryUsers(ctx context.Context, q string, args ...any) ([]User, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}
