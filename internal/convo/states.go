// Package convo implements the per-user conversation state machine: inbound
// messages are routed by the user's current state to one handler, which
// mutates state under the user row lock and queues outbound sends for after
// commit.
package convo

// Conversation states. The onboarding chain runs NEW through
// WAITING_FOR_AUSPICIOUS_DAY; the weekly sankalp flow runs from
// DAILY_PASSIVE through COOLDOWN and back.
const (
	StateNew           = "NEW"
	StateWaitRashi     = "WAITING_FOR_RASHI"
	StateWaitNakshatra = "WAITING_FOR_NAKSHATRA"
	StateWaitBirthTime = "WAITING_FOR_BIRTH_TIME"
	StateWaitDeity     = "WAITING_FOR_DEITY"
	StateWaitDay       = "WAITING_FOR_AUSPICIOUS_DAY"
	StateDailyPassive  = "DAILY_PASSIVE"
	StateWaitCategory  = "WAITING_FOR_CATEGORY"
	StateWaitTyagam    = "WAITING_FOR_TYAGAM_DECISION"
	StateWaitTier      = "WAITING_FOR_TIER"
	StatePaymentLink   = "PAYMENT_LINK_SENT"
	StatePaymentDone   = "PAYMENT_CONFIRMED"
	StateCooldown      = "COOLDOWN"
)

// Button payload prefixes and tokens.
const (
	PrefixRashi     = "RASHI_"
	PrefixNakshatra = "NAKSH_"
	PrefixDeity     = "DEITY_"
	PrefixDay       = "DAY_"
	PrefixCategory  = "CAT_"
	PrefixTier      = "TIER_"

	PayloadTyagamYes     = "TYAGAM_YES"
	PayloadTyagamNo      = "TYAGAM_NO"
	PayloadSkipNakshatra = "SKIP_NAKSHATRA"
	PayloadSkipBirthTime = "SKIP_BIRTH_TIME"
	PayloadMainMenu      = "CMD_MAIN_MENU"
)

// Conversation context keys.
const (
	ctxSelectedCategory = "selected_category"
	ctxPendingSankalpID = "pending_sankalp_id"
)

// Sankalp statuses.
const (
	SankalpInitiated      = "INITIATED"
	SankalpPaymentPending = "PAYMENT_PENDING"
	SankalpPaid           = "PAID"
	SankalpReceiptSent    = "RECEIPT_SENT"
	SankalpClosed         = "CLOSED"
	SankalpExpired        = "EXPIRED"
)
