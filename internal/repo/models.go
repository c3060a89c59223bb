package repo

import "time"

// User represents the users table row.
type User struct {
	ID            string
	Phone         string
	DisplayName   *string
	Timezone      string
	Rashi         *string
	Nakshatra     *string
	BirthTime     *string
	Deity         *string
	AuspiciousDay *string
	DOB           *time.Time
	Anniversary   *time.Time

	State string

	CycleDay             int
	DevotionalCycle      int
	RitualPhase          string
	PromptsThisMonth     int
	IntensityScore       int
	LastSankalpPromptAt  *time.Time
	LastSankalpAt        *time.Time
	TotalSankalps        int
	EngagementStreak     int
	DaysSent             int
	NextDailyMessageAt   *time.Time
	NextNurtureAt        *time.Time
	LastMonthlyResetYYMM int

	OnboardedAt      *time.Time
	LastEngagementAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Conversation is the 1:1 per-user conversation row holding context and
// the durable inbound dedupe cursor.
type Conversation struct {
	ID               string
	UserID           string
	Context          map[string]string
	LastInboundMsgID *string
	LastOutboundID   *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Sankalp represents one paid-intent row.
type Sankalp struct {
	ID              string
	UserID          string
	Category        string
	Deity           *string
	AuspiciousDay   *string
	Tier            string
	Amount          int64 // minor units
	Currency        string
	Status          string
	PaymentLinkID   *string
	PaymentShortURL *string
	FollowUpDay     int
	NextFollowUpAt  *time.Time
	PaidAt          *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Payment is the durable ledger of consumed external payment events.
type Payment struct {
	ID                string
	SankalpID         *string
	ExternalEventID   string
	EventType         string
	Amount            int64
	Currency          *string
	SignatureVerified bool
	RawPayload        map[string]any
	CreatedAt         time.Time
}

// SevaLedger splits a paid amount into platform fee and seva amount.
type SevaLedger struct {
	ID          string
	SankalpID   string
	Amount      int64
	PlatformFee int64
	SevaAmount  int64
	BatchID     *string
	CreatedAt   time.Time
}

// SevaBatch groups ledger rows by period for downstream transfer.
type SevaBatch struct {
	ID                string
	PeriodStart       time.Time
	PeriodEnd         time.Time
	TotalAmount       int64
	Status            string
	TransferReference *string
	TransferredAt     *time.Time
	CreatedAt         time.Time
}

// SevaExecution is a proof-of-delivery record per sankalp.
type SevaExecution struct {
	ID          string
	SankalpID   string
	TempleName  *string
	Location    *string
	MealsServed int
	Status      string
	PhotoURL    *string
	VerifiedAt  *time.Time
	CreatedAt   time.Time
}

// SevaMedia is a pooled proof-footage entry.
type SevaMedia struct {
	ID          string
	MediaURL    string
	MediaType   string
	TempleName  *string
	Location    *string
	SevaDate    *time.Time
	FamiliesFed *int
	Caption     *string
	UsedCount   int
	CreatedAt   time.Time
}

// RitualEvent is an append-only analytics record.
type RitualEvent struct {
	ID        string
	UserID    string
	EventType string
	Phase     *string
	Intensity *string
	Converted bool
	EventData map[string]any
	CreatedAt time.Time
}

// MessageRecord is used to persist conversation logs.
type MessageRecord struct {
	UserID        string
	Direction     string
	Type          string
	Content       *string
	ProviderMsgID *string
	CreatedAt     time.Time
}
