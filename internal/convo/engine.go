package convo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"bot-sankalp/internal/cache"
	"bot-sankalp/internal/content"
	"bot-sankalp/internal/llm"
	"bot-sankalp/internal/metrics"
	"bot-sankalp/internal/repo"
	"bot-sankalp/internal/ritual"
	"bot-sankalp/internal/wa"
)

const dedupeTTL = 24 * time.Hour

// PaymentLinker creates a hosted payment link for a sankalp.
type PaymentLinker interface {
	CreateLink(ctx context.Context, req LinkRequest) (*Link, error)
}

// LinkRequest describes the payment link to create.
type LinkRequest struct {
	SankalpID   string
	UserID      string
	Phone       string
	Amount      int64 // minor units
	Currency    string
	Description string
}

// Link is the created hosted payment link.
type Link struct {
	ID       string
	ShortURL string
}

// Engine routes inbound messages through the conversation state machine.
// State changes commit under the user row lock before any outbound send, so
// a transport failure never rolls back a transition.
type Engine struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	store   repo.Store
	cache   *cache.Redis
	sender  wa.Sender
	llm     *llm.Client
	links   PaymentLinker
	now     func() time.Time
}

// New creates a conversation engine.
func New(logger *slog.Logger, metricRegistry *metrics.Metrics, store repo.Store, redis *cache.Redis, sender wa.Sender, llmClient *llm.Client, links PaymentLinker) *Engine {
	return &Engine{
		logger:  logger.With("component", "convo"),
		metrics: metricRegistry,
		store:   store,
		cache:   redis,
		sender:  sender,
		llm:     llmClient,
		links:   links,
		now:     time.Now,
	}
}

// outbound is a deferred side effect executed after the state transaction
// commits.
type outbound func(ctx context.Context)

// HandleInbound satisfies wa.InboundProcessor.
func (e *Engine) HandleInbound(ctx context.Context, in wa.Inbound) error {
	phone := NormalizePhone(in.From)
	if phone == "" || in.MessageID == "" {
		return nil
	}

	if e.cache != nil {
		seen, err := e.cache.MarkOnce(ctx, "dedupe:wa:"+in.MessageID, dedupeTTL)
		if err != nil {
			e.logger.Warn("dedupe cache unavailable", "error", err)
		} else if seen {
			return nil
		}
	}

	var displayName *string
	if name := strings.TrimSpace(in.ProfileName); name != "" {
		displayName = &name
	}
	user, err := e.store.GetOrCreateUser(ctx, phone, displayName)
	if err != nil {
		return fmt.Errorf("get or create user: %w", err)
	}

	logText := in.Text
	if in.ButtonPayload != "" {
		logText = in.ButtonPayload
	}
	if err := e.store.InsertMessage(ctx, repo.MessageRecord{
		UserID:        user.ID,
		Direction:     "inbound",
		Type:          "text",
		Content:       &logText,
		ProviderMsgID: &in.MessageID,
	}); err != nil {
		e.logger.Warn("failed to log inbound message", "error", err)
	}

	var replies []outbound
	err = e.store.WithTx(ctx, func(tx pgx.Tx) error {
		locked, err := e.store.LockUserTx(ctx, tx, user.ID)
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		conv, err := e.store.GetConversation(ctx, locked.ID)
		if err != nil {
			return fmt.Errorf("load conversation: %w", err)
		}
		if conv.LastInboundMsgID != nil && *conv.LastInboundMsgID == in.MessageID {
			return nil
		}

		replies = e.dispatch(ctx, tx, locked, conv, in)

		now := e.now()
		locked.LastEngagementAt = &now
		conv.LastInboundMsgID = &in.MessageID
		if err := e.store.SaveUserTx(ctx, tx, locked); err != nil {
			return fmt.Errorf("save user: %w", err)
		}
		if err := e.store.SaveConversationTx(ctx, tx, conv); err != nil {
			return fmt.Errorf("save conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("handle inbound for %s: %w", phone, err)
	}

	for _, send := range replies {
		send(ctx)
	}
	return nil
}

// dispatch routes by current state. Handlers mutate user and conv in place
// and return the sends to run after commit.
func (e *Engine) dispatch(ctx context.Context, tx pgx.Tx, u *repo.User, conv *repo.Conversation, in wa.Inbound) []outbound {
	if isMenuEscape(in.Text, in.ButtonPayload) && u.State != StateNew {
		return e.resetToMenu(u, conv)
	}
	if isHistoryCommand(in.Text) && !isOnboardingState(u.State) {
		return e.sendHistory(u)
	}

	switch u.State {
	case StateNew:
		return e.handleNew(u)
	case StateWaitRashi:
		return e.handleWaitRashi(u, in)
	case StateWaitNakshatra:
		return e.handleWaitNakshatra(u, in)
	case StateWaitBirthTime:
		return e.handleWaitBirthTime(u, in)
	case StateWaitDeity:
		return e.handleWaitDeity(u, in)
	case StateWaitDay:
		return e.handleWaitDay(u, in)
	case StateDailyPassive:
		return []outbound{e.text(u, content.PassiveAck)}
	case StateWaitCategory:
		return e.handleWaitCategory(u, conv, in)
	case StateWaitTyagam:
		return e.handleWaitTyagam(ctx, tx, u, conv, in)
	case StateWaitTier:
		return e.handleWaitTier(ctx, tx, u, conv, in)
	case StatePaymentLink:
		return e.handlePaymentLink(ctx, conv, u)
	case StatePaymentDone, StateCooldown:
		return []outbound{e.text(u, content.PassiveAck)}
	default:
		e.logger.Error("unknown conversation state", "state", u.State, "user_id", u.ID)
		return e.resetToMenu(u, conv)
	}
}

func isOnboardingState(state string) bool {
	switch state {
	case StateNew, StateWaitRashi, StateWaitNakshatra, StateWaitBirthTime, StateWaitDeity, StateWaitDay:
		return true
	}
	return false
}

func (e *Engine) transition(u *repo.User, to string) {
	e.metrics.FSMTransitions.WithLabelValues(u.State, to).Inc()
	u.State = to
}

func (e *Engine) resetToMenu(u *repo.User, conv *repo.Conversation) []outbound {
	if isOnboardingState(u.State) && u.State != StateNew {
		// Mid-onboarding there is no menu to fall back to; restart the chain.
		e.transition(u, StateWaitRashi)
		return []outbound{e.rashiList(u)}
	}
	delete(conv.Context, ctxSelectedCategory)
	delete(conv.Context, ctxPendingSankalpID)
	if u.State != StateCooldown && u.State != StatePaymentDone {
		e.transition(u, StateDailyPassive)
	}
	return []outbound{e.text(u, content.MainMenuReset)}
}

func (e *Engine) handleNew(u *repo.User) []outbound {
	e.transition(u, StateWaitRashi)
	return []outbound{e.rashiList(u)}
}

func (e *Engine) handleWaitRashi(u *repo.User, in wa.Inbound) []outbound {
	code, ok := resolveOption(in, PrefixRashi, content.Rashis)
	if !ok {
		return []outbound{e.text(u, content.UnknownInputReprompt)}
	}
	u.Rashi = &code
	e.transition(u, StateWaitNakshatra)
	return []outbound{e.nakshatraList(u)}
}

func (e *Engine) handleWaitNakshatra(u *repo.User, in wa.Inbound) []outbound {
	if in.ButtonPayload != PayloadSkipNakshatra {
		code, ok := resolveOption(in, PrefixNakshatra, content.Nakshatras)
		if !ok {
			return []outbound{e.text(u, content.UnknownInputReprompt)}
		}
		u.Nakshatra = &code
	}
	e.transition(u, StateWaitBirthTime)
	return []outbound{e.buttons(u, content.AskBirthTime, []wa.Button{
		{ID: PayloadSkipBirthTime, Title: "దాటవేయి"},
	})}
}

func (e *Engine) handleWaitBirthTime(u *repo.User, in wa.Inbound) []outbound {
	if in.ButtonPayload != PayloadSkipBirthTime {
		canonical, ok := ParseBirthTime(in.Text)
		if !ok {
			return []outbound{e.buttons(u, content.UnknownInputReprompt, []wa.Button{
				{ID: PayloadSkipBirthTime, Title: "దాటవేయి"},
			})}
		}
		u.BirthTime = &canonical
	}
	e.transition(u, StateWaitDeity)
	return []outbound{e.optionList(u, content.AskDeity, "ఎంచుకోండి", PrefixDeity, content.Deities)}
}

func (e *Engine) handleWaitDeity(u *repo.User, in wa.Inbound) []outbound {
	code, ok := resolveOption(in, PrefixDeity, content.Deities)
	if !ok {
		return []outbound{e.text(u, content.UnknownInputReprompt)}
	}
	u.Deity = &code
	e.transition(u, StateWaitDay)
	return []outbound{e.optionList(u, content.AskDay, "ఎంచుకోండి", PrefixDay, content.Days)}
}

func (e *Engine) handleWaitDay(u *repo.User, in wa.Inbound) []outbound {
	code, ok := resolveOption(in, PrefixDay, content.Days)
	if !ok {
		return []outbound{e.text(u, content.UnknownInputReprompt)}
	}
	now := e.now()
	u.AuspiciousDay = &code
	u.CycleDay = 1
	if u.DevotionalCycle < 1 {
		u.DevotionalCycle = 1
	}
	u.RitualPhase = string(ritual.PhaseInitiation)
	u.OnboardedAt = &now
	u.DaysSent = 1
	nextDaily := ritual.JitterAround(now.Add(24 * time.Hour))
	nextNurture := ritual.JitterAround(now.Add(24 * time.Hour))
	u.NextDailyMessageAt = &nextDaily
	u.NextNurtureAt = &nextNurture
	e.transition(u, StateDailyPassive)

	return []outbound{
		e.dayZeroHoroscope(u),
		e.event(u, "onboarding_completed", nil),
	}
}

func (e *Engine) handleWaitCategory(u *repo.User, conv *repo.Conversation, in wa.Inbound) []outbound {
	code, ok := resolveOption(in, PrefixCategory, content.Categories)
	if !ok {
		return []outbound{e.text(u, content.UnknownInputReprompt)}
	}
	if conv.Context == nil {
		conv.Context = map[string]string{}
	}
	conv.Context[ctxSelectedCategory] = code
	e.transition(u, StateWaitTyagam)
	return []outbound{e.buttons(u, content.TyagamPrompt, tyagamButtons())}
}

func tyagamButtons() []wa.Button {
	return []wa.Button{
		{ID: PayloadTyagamYes, Title: "అవును 🙏"},
		{ID: PayloadTyagamNo, Title: "ఈసారి కాదు"},
	}
}

func (e *Engine) handleWaitTyagam(ctx context.Context, tx pgx.Tx, u *repo.User, conv *repo.Conversation, in wa.Inbound) []outbound {
	switch {
	case in.ButtonPayload == PayloadTyagamYes || strings.EqualFold(strings.TrimSpace(in.Text), "yes"):
		e.transition(u, StateWaitTier)
		return []outbound{e.buttons(u, content.TierPrompt(), tierButtons())}

	case in.ButtonPayload == PayloadTyagamNo || strings.EqualFold(strings.TrimSpace(in.Text), "no"):
		delete(conv.Context, ctxSelectedCategory)
		e.transition(u, StateDailyPassive)
		phase := u.RitualPhase
		return []outbound{
			e.text(u, content.FreePathBlessing),
			e.event(u, "free_sankalp", &phase),
		}

	default:
		return []outbound{e.buttons(u, content.UnknownInputReprompt, tyagamButtons())}
	}
}

func tierButtons() []wa.Button {
	buttons := make([]wa.Button, 0, len(content.Tiers))
	for _, t := range content.Tiers {
		buttons = append(buttons, wa.Button{
			ID:    PrefixTier + t.Code,
			Title: fmt.Sprintf("$%d", t.Amount/100),
		})
	}
	return buttons
}

func (e *Engine) handleWaitTier(ctx context.Context, tx pgx.Tx, u *repo.User, conv *repo.Conversation, in wa.Inbound) []outbound {
	code := payloadSuffix(in.ButtonPayload, PrefixTier)
	if code == "" {
		code = strings.TrimPrefix(strings.TrimSpace(in.Text), "$")
		if _, err := fmt.Sscanf(code, "%d", new(int)); err == nil {
			code = "S" + code
		}
	}
	tier, ok := content.TierByCode(code)
	if !ok {
		return []outbound{e.buttons(u, content.UnknownInputReprompt, tierButtons())}
	}

	category := conv.Context[ctxSelectedCategory]
	if category == "" {
		category = "FAMILY"
	}
	sankalp, err := e.store.InsertSankalpTx(ctx, tx, repo.Sankalp{
		UserID:        u.ID,
		Category:      category,
		Deity:         u.Deity,
		AuspiciousDay: u.AuspiciousDay,
		Tier:          tier.Code,
		Amount:        tier.Amount,
		Currency:      "USD",
		Status:        SankalpInitiated,
	})
	if err != nil {
		e.logger.Error("failed to create sankalp", "error", err, "user_id", u.ID)
		e.metrics.Errors.WithLabelValues("convo").Inc()
		return []outbound{e.text(u, content.PaymentLinkFailed)}
	}

	if conv.Context == nil {
		conv.Context = map[string]string{}
	}
	conv.Context[ctxPendingSankalpID] = sankalp.ID
	e.transition(u, StatePaymentLink)
	phase := u.RitualPhase
	return []outbound{
		e.createAndSendLink(u, sankalp, tier),
		e.event(u, "sankalp_initiated", &phase),
	}
}

// createAndSendLink runs after commit: the external link API call must not
// hold the user row lock.
func (e *Engine) createAndSendLink(u *repo.User, sankalp *repo.Sankalp, tier content.Tier) outbound {
	userID, phone := u.ID, u.Phone
	sankalpID := sankalp.ID
	category := sankalp.Category
	return func(ctx context.Context) {
		link, err := e.links.CreateLink(ctx, LinkRequest{
			SankalpID:   sankalpID,
			UserID:      userID,
			Phone:       phone,
			Amount:      tier.Amount,
			Currency:    "USD",
			Description: content.OptionName(content.Categories, category),
		})
		if err != nil {
			e.logger.Error("failed to create payment link", "error", err, "sankalp_id", sankalpID)
			e.metrics.Errors.WithLabelValues("payment_link").Inc()
			e.abandonPendingLink(ctx, userID, sankalpID)
			e.send(ctx, userID, phone, "text", func(c context.Context) (string, error) {
				return e.sender.Text(c, phone, content.PaymentLinkFailed)
			})
			return
		}

		err = e.store.WithTx(ctx, func(tx pgx.Tx) error {
			s, err := e.store.GetSankalpTx(ctx, tx, sankalpID)
			if err != nil {
				return err
			}
			s.Status = SankalpPaymentPending
			s.PaymentLinkID = &link.ID
			s.PaymentShortURL = &link.ShortURL
			return e.store.SaveSankalpTx(ctx, tx, s)
		})
		if err != nil {
			e.logger.Error("failed to persist payment link", "error", err, "sankalp_id", sankalpID)
		}

		body := content.PaymentLinkMessage(link.ShortURL)
		e.send(ctx, userID, phone, "cta_url", func(c context.Context) (string, error) {
			return e.sender.CTAURL(c, phone, body, "చెల్లించండి", link.ShortURL)
		})
	}
}

// abandonPendingLink returns the user to the passive state after a link
// creation failure so the next auspicious day can re-prompt.
func (e *Engine) abandonPendingLink(ctx context.Context, userID, sankalpID string) {
	err := e.store.WithTx(ctx, func(tx pgx.Tx) error {
		locked, err := e.store.LockUserTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if locked.State == StatePaymentLink {
			e.transition(locked, StateDailyPassive)
		}
		if err := e.store.SaveUserTx(ctx, tx, locked); err != nil {
			return err
		}
		conv, err := e.store.GetConversation(ctx, userID)
		if err != nil {
			return err
		}
		delete(conv.Context, ctxPendingSankalpID)
		return e.store.SaveConversationTx(ctx, tx, conv)
	})
	if err != nil {
		e.logger.Error("failed to reset state after link failure", "error", err, "user_id", userID, "sankalp_id", sankalpID)
	}
}

func (e *Engine) handlePaymentLink(ctx context.Context, conv *repo.Conversation, u *repo.User) []outbound {
	sankalpID := conv.Context[ctxPendingSankalpID]
	if sankalpID == "" {
		e.transition(u, StateDailyPassive)
		return []outbound{e.text(u, content.MainMenuReset)}
	}
	sankalp, err := e.store.GetSankalpByID(ctx, sankalpID)
	if err != nil || sankalp.PaymentShortURL == nil {
		return []outbound{e.text(u, content.PaymentLinkRetryNA)}
	}
	return []outbound{e.text(u, content.PaymentLinkMessage(*sankalp.PaymentShortURL))}
}

func (e *Engine) sendHistory(u *repo.User) []outbound {
	userID, phone := u.ID, u.Phone
	return []outbound{func(ctx context.Context) {
		sankalps, err := e.store.ListSankalpsByUser(ctx, userID, 5)
		if err != nil {
			e.logger.Error("failed to list sankalp history", "error", err, "user_id", userID)
			return
		}
		body := renderHistory(sankalps)
		e.send(ctx, userID, phone, "text", func(c context.Context) (string, error) {
			return e.sender.Text(c, phone, body)
		})
	}}
}

func renderHistory(sankalps []repo.Sankalp) string {
	if len(sankalps) == 0 {
		return "మీరు ఇంకా సంకల్పం చేయలేదు. వచ్చే శుభ దినాన మొదలుపెట్టవచ్చు. 🙏"
	}
	var b strings.Builder
	b.WriteString("📿 మీ సంకల్పాలు:\n")
	for _, s := range sankalps {
		mark := "⏳"
		switch s.Status {
		case SankalpPaid, SankalpReceiptSent, SankalpClosed:
			mark = "✅"
		case SankalpExpired:
			mark = "⌛"
		}
		fmt.Fprintf(&b, "\n%s %s — $%d (%s)", mark,
			content.OptionName(content.Categories, s.Category), s.Amount/100,
			s.CreatedAt.Format("02 Jan 2006"))
	}
	return b.String()
}

// dayZeroHoroscope sends the first daily message right after onboarding.
func (e *Engine) dayZeroHoroscope(u *repo.User) outbound {
	userID, phone := u.ID, u.Phone
	rashi, deity := derefOr(u.Rashi, ""), derefOr(u.Deity, "")
	return func(ctx context.Context) {
		fallback := content.DailyHoroscopeFallback(rashi, deity)
		body := fallback
		if e.llm != nil {
			body = e.llm.GenerateOrFallback(ctx, llm.Request{
				System:      "You write short, warm Telugu daily devotional horoscopes. Plain text, under 400 characters.",
				User:        fmt.Sprintf("Rashi: %s. Preferred deity: %s. Write today's message.", content.OptionName(content.Rashis, rashi), content.OptionName(content.Deities, deity)),
				MaxTokens:   300,
				Temperature: 0.8,
			}, fallback)
		}
		e.send(ctx, userID, phone, "text", func(c context.Context) (string, error) {
			return e.sender.Text(c, phone, body)
		})
	}
}

func (e *Engine) rashiList(u *repo.User) outbound {
	sections := optionSections("రాశులు", PrefixRashi, content.Rashis, 6)
	body := content.Welcome(derefOr(u.DisplayName, ""))
	userID, phone := u.ID, u.Phone
	return func(ctx context.Context) {
		e.send(ctx, userID, phone, "list", func(c context.Context) (string, error) {
			return e.sender.List(c, phone, body, "రాశి ఎంచుకోండి", sections)
		})
	}
}

func (e *Engine) nakshatraList(u *repo.User) outbound {
	sections := optionSections("నక్షత్రాలు", PrefixNakshatra, content.Nakshatras, 9)
	sections = append(sections, wa.Section{
		Title: "తెలియదు",
		Rows:  []wa.Row{{ID: PayloadSkipNakshatra, Title: "దాటవేయి"}},
	})
	userID, phone := u.ID, u.Phone
	return func(ctx context.Context) {
		e.send(ctx, userID, phone, "list", func(c context.Context) (string, error) {
			return e.sender.List(c, phone, content.AskNakshatra, "ఎంచుకోండి", sections)
		})
	}
}

func (e *Engine) optionList(u *repo.User, body, label, prefix string, table []content.Option) outbound {
	sections := optionSections("", prefix, table, 10)
	userID, phone := u.ID, u.Phone
	return func(ctx context.Context) {
		e.send(ctx, userID, phone, "list", func(c context.Context) (string, error) {
			return e.sender.List(c, phone, body, label, sections)
		})
	}
}

// optionSections splits a table into list sections of at most perSection rows
// (transport caps a section at 10 rows).
func optionSections(title, prefix string, table []content.Option, perSection int) []wa.Section {
	var sections []wa.Section
	for start := 0; start < len(table); start += perSection {
		end := start + perSection
		if end > len(table) {
			end = len(table)
		}
		rows := make([]wa.Row, 0, end-start)
		for _, opt := range table[start:end] {
			rows = append(rows, wa.Row{ID: prefix + opt.Code, Title: opt.Telugu})
		}
		sections = append(sections, wa.Section{Title: title, Rows: rows})
	}
	return sections
}

func (e *Engine) text(u *repo.User, body string) outbound {
	userID, phone := u.ID, u.Phone
	return func(ctx context.Context) {
		e.send(ctx, userID, phone, "text", func(c context.Context) (string, error) {
			return e.sender.Text(c, phone, body)
		})
	}
}

func (e *Engine) buttons(u *repo.User, body string, buttons []wa.Button) outbound {
	userID, phone := u.ID, u.Phone
	return func(ctx context.Context) {
		e.send(ctx, userID, phone, "buttons", func(c context.Context) (string, error) {
			return e.sender.Buttons(c, phone, body, buttons)
		})
	}
}

// event records an analytics row after commit, best effort.
func (e *Engine) event(u *repo.User, eventType string, phase *string) outbound {
	userID := u.ID
	return func(ctx context.Context) {
		if err := e.store.InsertRitualEvent(ctx, repo.RitualEvent{
			UserID:    userID,
			EventType: eventType,
			Phase:     phase,
		}); err != nil {
			e.logger.Warn("failed to record ritual event", "error", err, "event", eventType)
		}
	}
}

// send executes one outbound call, logging the result to message_log.
func (e *Engine) send(ctx context.Context, userID, phone, kind string, fn func(context.Context) (string, error)) {
	msgID, err := fn(ctx)
	if err != nil {
		e.logger.Error("failed to send message", "error", err, "phone", phone, "kind", kind)
		e.metrics.Errors.WithLabelValues("wa_send").Inc()
		return
	}
	if err := e.store.InsertMessage(ctx, repo.MessageRecord{
		UserID:        userID,
		Direction:     "outbound",
		Type:          kind,
		ProviderMsgID: &msgID,
	}); err != nil {
		e.logger.Warn("failed to log outbound message", "error", err)
	}
}

// resolveOption maps a button payload (preferred) or free text to a table
// code.
func resolveOption(in wa.Inbound, prefix string, table []content.Option) (string, bool) {
	if suffix := payloadSuffix(in.ButtonPayload, prefix); suffix != "" {
		return content.FindOption(table, suffix)
	}
	if in.ButtonPayload != "" {
		return "", false
	}
	return content.FindOption(table, in.Text)
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
