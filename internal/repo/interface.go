package repo

import (
	"context"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"
)

// Store defines the persistence surface consumed by the conversation
// engine, payment resolver, and workers. *Repository implements it.
type Store interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error

	// Users
	GetOrCreateUser(ctx context.Context, phone string, displayName *string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByPhone(ctx context.Context, phone string) (*User, error)
	LockUserTx(ctx context.Context, tx pgx.Tx, id string) (*User, error)
	SaveUserTx(ctx context.Context, tx pgx.Tx, u *User) error
	ListUsersDue(ctx context.Context, now time.Time, limit int) ([]User, error)
	ListUsersForWeeklyPrompt(ctx context.Context, weekday string, cutoff time.Time) ([]User, error)
	ListUsersByStates(ctx context.Context, states []string) ([]User, error)
	ResetMonthlyPromptCounts(ctx context.Context, yyyymm int) (int64, error)
	ListUsersWithDOB(ctx context.Context, month, day int) ([]User, error)
	ListUsersWithAnniversary(ctx context.Context, month, day int) ([]User, error)

	// Conversations
	GetConversation(ctx context.Context, userID string) (*Conversation, error)
	SaveConversationTx(ctx context.Context, tx pgx.Tx, c *Conversation) error

	// Sankalps
	InsertSankalpTx(ctx context.Context, tx pgx.Tx, s Sankalp) (*Sankalp, error)
	GetSankalpByID(ctx context.Context, id string) (*Sankalp, error)
	GetSankalpTx(ctx context.Context, tx pgx.Tx, id string) (*Sankalp, error)
	SaveSankalpTx(ctx context.Context, tx pgx.Tx, s *Sankalp) error
	ListFollowUpsDue(ctx context.Context, now time.Time, limit int) ([]Sankalp, error)
	ListSankalpsPaidBetween(ctx context.Context, from, to time.Time) ([]Sankalp, error)
	ListSankalpsByUser(ctx context.Context, userID string, limit int) ([]Sankalp, error)

	// Payments
	HasPaymentEvent(ctx context.Context, eventID string) (bool, error)
	InsertPaymentTx(ctx context.Context, tx pgx.Tx, p Payment) (*Payment, error)
	InsertPayment(ctx context.Context, p Payment) (*Payment, error)
	CountPaymentsBySankalp(ctx context.Context, sankalpID string) (int, error)

	// Seva ledger, batches, executions, media
	InsertSevaLedgerTx(ctx context.Context, tx pgx.Tx, l SevaLedger) (*SevaLedger, error)
	GetLedgerBySankalp(ctx context.Context, sankalpID string) (*SevaLedger, error)
	CreateSevaBatch(ctx context.Context, start, end time.Time) (*SevaBatch, error)
	MarkBatchTransferred(ctx context.Context, batchID, reference string) error
	ListSevaBatches(ctx context.Context) ([]SevaBatch, error)
	GetVerifiedExecution(ctx context.Context, sankalpID string) (*SevaExecution, error)
	AddSevaMedia(ctx context.Context, m SevaMedia) (*SevaMedia, error)
	PickLeastUsedMedia(ctx context.Context) (*SevaMedia, error)
	IncrementMediaUsed(ctx context.Context, mediaID string) error
	GetMediaPoolStats(ctx context.Context) (*MediaPoolStats, error)

	// Analytics & logs
	InsertRitualEvent(ctx context.Context, e RitualEvent) error
	InsertMessage(ctx context.Context, msg MessageRecord) error
	ListRecentMessages(ctx context.Context, userID string, limit int) ([]MessageRecord, error)
	GetImpactTotals(ctx context.Context, now time.Time) (*ImpactTotals, error)
	GetUserImpact(ctx context.Context, userID string) (int, error)
}

var _ Store = (*Repository)(nil)
