// Package conversation interprets chat messages of company owners. Each
// message is read against the stored dialog state of its chat user, the
// transition is saved with a version check and only then are billing
// changes run.
package conversation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/linebilling/pkg/logger"
	"github.com/dmitrymomot/linebilling/pkg/statemachine"
	"github.com/dmitrymomot/linebilling/svc/billing"
	"github.com/dmitrymomot/linebilling/svc/entitlement"
	"github.com/dmitrymomot/linebilling/svc/reconcile"
)

// Store is the part of the persistence gateway the dialog needs.
type Store interface {
	ConversationState(ctx context.Context, chatUserID string) (*billing.ConversationState, error)
	SaveConversationState(ctx context.Context, st billing.ConversationState) (int64, error)
	DeleteConversationState(ctx context.Context, chatUserID string) error
	LinkLineUser(ctx context.Context, email, lineUserID string) (*billing.Company, error)
	UnlinkLineUser(ctx context.Context, lineUserID string) error
	ContentItems(ctx context.Context, companyID uuid.UUID) ([]billing.ContentItem, error)
}

// Gate decides whether a chat user may use the bot.
type Gate interface {
	ResolveChatUser(ctx context.Context, chatUserID string) (entitlement.Decision, error)
}

// Billing applies confirmed content changes.
type Billing interface {
	Add(ctx context.Context, companyID uuid.UUID, contentType billing.ContentType) (reconcile.AddResult, error)
	Cancel(ctx context.Context, companyID uuid.UUID, itemIDs []uuid.UUID) (reconcile.CancelResult, error)
	CancelSubscription(ctx context.Context, companyID uuid.UUID) (reconcile.SubscriptionCancelResult, error)
}

var (
	_ Gate    = (*entitlement.Resolver)(nil)
	_ Billing = (*reconcile.Engine)(nil)
)

const defaultMaxAttempts = 3

// Service runs dialog turns.
type Service struct {
	store    Store
	gate     Gate
	billing  Billing
	machine  *statemachine.Machine
	attempts int
	log      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxAttempts bounds how often a turn is re-read after losing a race
// against another message of the same user.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// New returns a Service. It panics if a dependency is nil.
func New(store Store, gate Gate, b Billing, opts ...Option) *Service {
	if store == nil || gate == nil || b == nil {
		panic("conversation: store, gate and billing are required")
	}
	s := &Service{
		store:    store,
		gate:     gate,
		billing:  b,
		machine:  newMachine(),
		attempts: defaultMaxAttempts,
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleText answers a text message or a postback carrying text.
func (s *Service) HandleText(ctx context.Context, chatUserID, text string) Reply {
	log := s.log.With(logger.ChatUserID(chatUserID))

	d, err := s.gate.ResolveChatUser(ctx, chatUserID)
	if err != nil {
		log.ErrorContext(ctx, "resolve entitlement", logger.Error(err))
		return systemError()
	}
	if !d.Allowed {
		switch {
		case d.Reason == billing.KindNotRegistered && LooksLikeEmail(text):
			return s.link(ctx, chatUserID, text)
		case d.Reason == billing.KindNotRegistered:
			return Reply{Kind: ReplyNotRegistered, ErrKind: d.Reason}
		default:
			return Reply{Kind: ReplyInactive, Company: d.Company, ErrKind: d.Reason}
		}
	}

	for attempt := 1; attempt <= s.attempts; attempt++ {
		r, err := s.turn(ctx, d, chatUserID, text)
		if errors.Is(err, billing.ErrStateConflict) {
			log.DebugContext(ctx, "conversation state changed concurrently", "attempt", attempt)
			continue
		}
		if err != nil {
			log.ErrorContext(ctx, "conversation turn failed", logger.Error(err))
			return systemError()
		}
		return r
	}
	log.WarnContext(ctx, "conversation turn gave up after state conflicts", "attempts", s.attempts)
	return systemError()
}

// turn interprets one message against the stored state. The new state is
// saved before any side effect runs.
func (s *Service) turn(ctx context.Context, d entitlement.Decision, chatUserID, text string) (Reply, error) {
	stored, err := s.store.ConversationState(ctx, chatUserID)
	if err != nil {
		return Reply{}, err
	}
	items, err := s.store.ContentItems(ctx, d.Company.ID)
	if err != nil {
		return Reply{}, err
	}

	from := loadPosition(stored)
	event, nums := classify(text)
	t := newTurn(d.Company, d.Subscription, items, from.payload, nums)

	next, err := s.machine.Fire(ctx, from.state, event, t)
	if err != nil {
		return Reply{}, err
	}
	to := position{state: State(next.Name()), payload: t.next}

	if !to.equal(from) {
		_, err := s.store.SaveConversationState(ctx, billing.ConversationState{
			ChatUserID: chatUserID,
			State:      string(to.state),
			Payload:    to.payload.encode(),
			Version:    stored.Version,
		})
		if err != nil {
			return Reply{}, err
		}
	}
	s.log.DebugContext(ctx, "conversation transition",
		logger.ChatUserID(chatUserID), logger.EventType(event.Name()),
		"from", string(from.state), logger.State(string(to.state)))

	reply := t.reply
	if t.effect != nil {
		reply = t.effect(ctx, s)
	}
	reply.State = to.state
	return reply, nil
}

// Follow greets a chat user who added the bot as a friend.
func (s *Service) Follow(ctx context.Context, chatUserID string) Reply {
	d, err := s.gate.ResolveChatUser(ctx, chatUserID)
	switch {
	case err != nil:
		s.log.ErrorContext(ctx, "resolve entitlement", logger.ChatUserID(chatUserID), logger.Error(err))
		return systemError()
	case d.Reason == billing.KindNotRegistered:
		return Reply{Kind: ReplyLinkPrompt}
	case !d.Allowed:
		return Reply{Kind: ReplyInactive, Company: d.Company, ErrKind: d.Reason}
	}
	return Reply{Kind: ReplyWelcome, Company: d.Company, State: StateWelcome}
}

// Unfollow detaches a chat user who blocked the bot and forgets its dialog.
func (s *Service) Unfollow(ctx context.Context, chatUserID string) error {
	return errors.Join(
		s.store.UnlinkLineUser(ctx, chatUserID),
		s.store.DeleteConversationState(ctx, chatUserID),
	)
}

func (s *Service) link(ctx context.Context, chatUserID, text string) Reply {
	email := NormalizeEmail(text)
	c, err := s.store.LinkLineUser(ctx, email, chatUserID)
	switch {
	case errors.Is(err, billing.ErrCompanyNotFound):
		return Reply{Kind: ReplyEmailNotFound, ErrKind: billing.KindNotRegistered}
	case errors.Is(err, billing.ErrEmailAlreadyLinked):
		return Reply{Kind: ReplyEmailLinked, ErrKind: billing.KindNotRegistered}
	case err != nil:
		s.log.ErrorContext(ctx, "link chat user", logger.ChatUserID(chatUserID), logger.Error(err))
		return systemError()
	}
	if err := s.store.DeleteConversationState(ctx, chatUserID); err != nil {
		s.log.WarnContext(ctx, "reset conversation state", logger.ChatUserID(chatUserID), logger.Error(err))
	}
	s.log.InfoContext(ctx, "chat user linked", logger.ChatUserID(chatUserID), logger.CompanyID(c.ID))
	return Reply{Kind: ReplyLinked, Company: c, State: StateWelcome}
}

func (s *Service) add(ctx context.Context, company *billing.Company, ct billing.ContentType) Reply {
	content, _ := billing.LookupContent(ct)
	res, err := s.billing.Add(ctx, company.ID, ct)
	if err != nil {
		return s.refused(ctx, company, err, Reply{Kind: ReplyAlreadyAdded, Content: content})
	}
	if res.Partial {
		s.log.WarnContext(ctx, "content added with billing discrepancy",
			logger.CompanyID(company.ID), logger.ContentType(string(ct)), logger.Error(res.Err))
	}
	return Reply{
		Kind:      ReplyAdded,
		Company:   company,
		Content:   content,
		Statement: res.Statement,
		Add:       &res,
		Partial:   res.Partial,
		ErrKind:   res.Kind(),
	}
}

func (s *Service) cancel(ctx context.Context, company *billing.Company, ids []uuid.UUID) Reply {
	res, err := s.billing.Cancel(ctx, company.ID, ids)
	if err != nil {
		return s.refused(ctx, company, err, Reply{Kind: ReplyInvalidSelection})
	}
	if res.Partial {
		s.log.WarnContext(ctx, "content cancelled with billing discrepancy",
			logger.CompanyID(company.ID), logger.Error(res.Err))
	}
	return Reply{
		Kind:      ReplyCancelled,
		Company:   company,
		Selected:  res.Cancelled,
		Statement: res.Statement,
		Cancel:    &res,
		Partial:   res.Partial,
		ErrKind:   res.Kind(),
	}
}

func (s *Service) cancelSubscription(ctx context.Context, company *billing.Company) Reply {
	res, err := s.billing.CancelSubscription(ctx, company.ID)
	if err != nil {
		return s.refused(ctx, company, err, Reply{Kind: ReplyMenu, Company: company})
	}
	return Reply{Kind: ReplySubscriptionCancelled, Company: company, SubscriptionCancel: &res}
}

// refused maps an aborted billing operation to a reply. Selection errors
// answer with invalid.
func (s *Service) refused(ctx context.Context, company *billing.Company, err error, invalid Reply) Reply {
	switch kind := billing.KindOf(err); kind {
	case billing.KindInvalidSelection:
		invalid.ErrKind = kind
		return invalid
	case billing.KindSubscriptionInactive, billing.KindNotRegistered:
		return Reply{Kind: ReplyInactive, Company: company, ErrKind: kind}
	default:
		s.log.ErrorContext(ctx, "billing operation failed", logger.CompanyID(company.ID), logger.Error(err))
		return Reply{Kind: ReplySystemError, Company: company, ErrKind: kind}
	}
}
