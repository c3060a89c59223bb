package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"bot-sankalp/internal/cache"
	"bot-sankalp/internal/content"
	"bot-sankalp/internal/convo"
	"bot-sankalp/internal/metrics"
	"bot-sankalp/internal/repo"
	"bot-sankalp/internal/wa"
)

// PlatformFeePercent of every paid amount is retained; the remainder funds
// seva. The split is computed once at settlement and never recomputed.
const PlatformFeePercent = 20

const (
	eventDedupeTTL    = 24 * time.Hour
	firstFollowUpDay  = 3
	firstFollowUpWait = 3 * 24 * time.Hour
)

// SplitAmount divides a paid amount into (platform fee, seva amount) in
// minor units. The two always sum back to the input.
func SplitAmount(amount int64) (fee, seva int64) {
	fee = amount * PlatformFeePercent / 100
	return fee, amount - fee
}

// Resolver settles verified payment events against sankalps, the seva
// ledger, and user ritual state. Every event is consumed exactly once:
// a cache fast path, then the unique external_event_id index.
type Resolver struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	store   repo.Store
	cache   *cache.Redis
	sender  wa.Sender
	now     func() time.Time
}

// NewResolver creates a payment event resolver.
func NewResolver(logger *slog.Logger, metricRegistry *metrics.Metrics, store repo.Store, redis *cache.Redis, sender wa.Sender) *Resolver {
	return &Resolver{
		logger:  logger.With("component", "payment_resolver"),
		metrics: metricRegistry,
		store:   store,
		cache:   redis,
		sender:  sender,
		now:     time.Now,
	}
}

var _ EventProcessor = (*Resolver)(nil)

// eventEnvelope mirrors the provider webhook payload shape.
type eventEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		PaymentLink struct {
			Entity struct {
				ID     string            `json:"id"`
				Amount int64             `json:"amount"`
				Notes  map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment_link"`
		Payment struct {
			Entity struct {
				ID       string            `json:"id"`
				Amount   int64             `json:"amount"`
				Currency string            `json:"currency"`
				Notes    map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
		Subscription struct {
			Entity struct {
				ID    string            `json:"id"`
				Notes map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"subscription"`
	} `json:"payload"`
}

// HandlePaymentEvent satisfies EventProcessor.
func (r *Resolver) HandlePaymentEvent(ctx context.Context, event Event) error {
	if r.cache != nil {
		seen, err := r.cache.MarkOnce(ctx, "dedupe:pay:"+event.ID, eventDedupeTTL)
		if err != nil {
			r.logger.Warn("dedupe cache unavailable", "error", err)
		} else if seen {
			return nil
		}
	}
	consumed, err := r.store.HasPaymentEvent(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("check payment event: %w", err)
	}
	if consumed {
		return nil
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return fmt.Errorf("decode payment event: %w", err)
	}

	sankalpID := envelope.Payload.PaymentLink.Entity.Notes["sankalp_id"]
	if sankalpID == "" {
		sankalpID = envelope.Payload.Payment.Entity.Notes["sankalp_id"]
	}
	if sankalpID == "" {
		sankalpID = envelope.Payload.Subscription.Entity.Notes["sankalp_id"]
	}
	amount := envelope.Payload.Payment.Entity.Amount
	if amount == 0 {
		amount = envelope.Payload.PaymentLink.Entity.Amount
	}
	currency := envelope.Payload.Payment.Entity.Currency

	outcome := "ok"
	var procErr error
	switch event.Type {
	case "payment_link.paid", "payment.captured", "subscription.charged":
		procErr = r.resolvePaid(ctx, event, sankalpID, amount, currency)
	case "payment_link.expired":
		procErr = r.resolveExpired(ctx, event, sankalpID, amount, currency)
	case "payment.failed":
		procErr = r.resolveFailed(ctx, event, sankalpID, amount, currency)
	default:
		// Consume unrecognized event types so retries stop.
		_, procErr = r.store.InsertPayment(ctx, r.paymentRow(event, sankalpID, amount, currency))
		if errors.Is(procErr, repo.ErrDuplicateEvent) {
			procErr = nil
		}
	}
	if procErr != nil {
		outcome = "error"
		// Consume the event before surfacing the error: the webhook answers
		// 200 either way and a replay must not re-run side effects.
		if _, err := r.store.InsertPayment(ctx, r.paymentRow(event, sankalpID, amount, currency)); err != nil && !errors.Is(err, repo.ErrDuplicateEvent) {
			r.logger.Error("failed to consume payment event after error", "error", err, "event_id", event.ID)
		}
	}
	r.metrics.PaymentEvents.WithLabelValues(event.Type, outcome).Inc()
	return procErr
}

func (r *Resolver) paymentRow(event Event, sankalpID string, amount int64, currency string) repo.Payment {
	var sankalpRef *string
	if sankalpID != "" {
		sankalpRef = &sankalpID
	}
	var currencyRef *string
	if currency != "" {
		currencyRef = &currency
	}
	var raw map[string]any
	_ = json.Unmarshal(event.Payload, &raw)
	return repo.Payment{
		SankalpID:         sankalpRef,
		ExternalEventID:   event.ID,
		EventType:         event.Type,
		Amount:            amount,
		Currency:          currencyRef,
		SignatureVerified: true,
		RawPayload:        raw,
	}
}

// resolvePaid settles a captured payment: sankalp PAID, ledger split, user
// into cooldown. All state commits in one transaction under the user row
// lock; confirmations go out after commit.
func (r *Resolver) resolvePaid(ctx context.Context, event Event, sankalpID string, amount int64, currency string) error {
	if sankalpID == "" {
		return fmt.Errorf("paid event %s carries no sankalp reference", event.ID)
	}

	var (
		user      *repo.User
		sankalp   *repo.Sankalp
		alreadyOK bool
	)
	err := r.store.WithTx(ctx, func(tx pgx.Tx) error {
		s, err := r.store.GetSankalpTx(ctx, tx, sankalpID)
		if err != nil {
			return fmt.Errorf("load sankalp %s: %w", sankalpID, err)
		}
		u, err := r.store.LockUserTx(ctx, tx, s.UserID)
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}

		if _, err := r.store.InsertPaymentTx(ctx, tx, r.paymentRow(event, sankalpID, amount, currency)); err != nil {
			if errors.Is(err, repo.ErrDuplicateEvent) {
				alreadyOK = true
				return nil
			}
			return fmt.Errorf("insert payment: %w", err)
		}

		switch s.Status {
		case convo.SankalpPaid, convo.SankalpReceiptSent, convo.SankalpClosed:
			// A second event for an already settled sankalp only needed its
			// payment row; the split and user state are settled.
			alreadyOK = true
			return nil
		}

		paidAmount := amount
		if paidAmount == 0 {
			paidAmount = s.Amount
		}
		fee, seva := SplitAmount(paidAmount)
		if _, err := r.store.InsertSevaLedgerTx(ctx, tx, repo.SevaLedger{
			SankalpID:   s.ID,
			Amount:      paidAmount,
			PlatformFee: fee,
			SevaAmount:  seva,
		}); err != nil {
			return fmt.Errorf("insert seva ledger: %w", err)
		}

		now := r.now()
		s.Status = convo.SankalpPaid
		s.PaidAt = &now
		s.FollowUpDay = firstFollowUpDay
		next := now.Add(firstFollowUpWait)
		s.NextFollowUpAt = &next
		if err := r.store.SaveSankalpTx(ctx, tx, s); err != nil {
			return fmt.Errorf("save sankalp: %w", err)
		}

		u.State = convo.StateCooldown
		u.LastSankalpAt = &now
		u.TotalSankalps++
		u.IntensityScore++
		if err := r.store.SaveUserTx(ctx, tx, u); err != nil {
			return fmt.Errorf("save user: %w", err)
		}

		user, sankalp = u, s
		return nil
	})
	if err != nil || alreadyOK {
		return err
	}

	r.sendText(ctx, user, content.ClosureMessage(sankalp.Category))
	receiptCurrency := currency
	if receiptCurrency == "" {
		receiptCurrency = sankalp.Currency
	}
	r.sendText(ctx, user, content.ReceiptMessage(sankalp.Amount, receiptCurrency, sankalp.Category))
	r.markReceiptSent(ctx, sankalp.ID)

	phase := user.RitualPhase
	if err := r.store.InsertRitualEvent(ctx, repo.RitualEvent{
		UserID:    user.ID,
		EventType: "sankalp_paid",
		Phase:     &phase,
		Converted: true,
	}); err != nil {
		r.logger.Warn("failed to record ritual event", "error", err)
	}
	return nil
}

func (r *Resolver) markReceiptSent(ctx context.Context, sankalpID string) {
	err := r.store.WithTx(ctx, func(tx pgx.Tx) error {
		s, err := r.store.GetSankalpTx(ctx, tx, sankalpID)
		if err != nil {
			return err
		}
		if s.Status != convo.SankalpPaid {
			return nil
		}
		s.Status = convo.SankalpReceiptSent
		return r.store.SaveSankalpTx(ctx, tx, s)
	})
	if err != nil {
		r.logger.Error("failed to mark receipt sent", "error", err, "sankalp_id", sankalpID)
	}
}

// resolveExpired returns the user to the passive state when a link lapses
// unpaid.
func (r *Resolver) resolveExpired(ctx context.Context, event Event, sankalpID string, amount int64, currency string) error {
	if sankalpID == "" {
		return fmt.Errorf("expired event %s carries no sankalp reference", event.ID)
	}

	var user *repo.User
	err := r.store.WithTx(ctx, func(tx pgx.Tx) error {
		s, err := r.store.GetSankalpTx(ctx, tx, sankalpID)
		if err != nil {
			return fmt.Errorf("load sankalp %s: %w", sankalpID, err)
		}
		u, err := r.store.LockUserTx(ctx, tx, s.UserID)
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}

		if _, err := r.store.InsertPaymentTx(ctx, tx, r.paymentRow(event, sankalpID, amount, currency)); err != nil {
			if errors.Is(err, repo.ErrDuplicateEvent) {
				return nil
			}
			return fmt.Errorf("insert payment: %w", err)
		}

		switch s.Status {
		case convo.SankalpPaid, convo.SankalpReceiptSent, convo.SankalpClosed:
			// Paid beat the expiry; nothing to undo.
			return nil
		}
		s.Status = convo.SankalpExpired
		if err := r.store.SaveSankalpTx(ctx, tx, s); err != nil {
			return fmt.Errorf("save sankalp: %w", err)
		}
		if u.State == convo.StatePaymentLink {
			u.State = convo.StateDailyPassive
			if err := r.store.SaveUserTx(ctx, tx, u); err != nil {
				return fmt.Errorf("save user: %w", err)
			}
			user = u
		}
		return nil
	})
	if err != nil || user == nil {
		return err
	}

	r.sendText(ctx, user, content.ExpiredNotice)
	return nil
}

// resolveFailed notifies the user; the link stays live for a retry.
func (r *Resolver) resolveFailed(ctx context.Context, event Event, sankalpID string, amount int64, currency string) error {
	if _, err := r.store.InsertPayment(ctx, r.paymentRow(event, sankalpID, amount, currency)); err != nil {
		if errors.Is(err, repo.ErrDuplicateEvent) {
			return nil
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	if sankalpID == "" {
		return nil
	}

	sankalp, err := r.store.GetSankalpByID(ctx, sankalpID)
	if err != nil {
		return fmt.Errorf("load sankalp %s: %w", sankalpID, err)
	}
	user, err := r.store.GetUserByID(ctx, sankalp.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	if sankalp.PaymentShortURL != nil {
		r.sendText(ctx, user, content.PaymentFailedRetry+"\n\n"+*sankalp.PaymentShortURL)
	} else {
		r.sendText(ctx, user, content.PaymentLinkRetryNA)
	}
	return nil
}

func (r *Resolver) sendText(ctx context.Context, user *repo.User, body string) {
	msgID, err := r.sender.Text(ctx, user.Phone, body)
	if err != nil {
		r.logger.Error("failed to send message", "error", err, "phone", user.Phone)
		r.metrics.Errors.WithLabelValues("wa_send").Inc()
		return
	}
	if err := r.store.InsertMessage(ctx, repo.MessageRecord{
		UserID:        user.ID,
		Direction:     "outbound",
		Type:          "text",
		ProviderMsgID: &msgID,
	}); err != nil {
		r.logger.Warn("failed to log outbound message", "error", err)
	}
}
