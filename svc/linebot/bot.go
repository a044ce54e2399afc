// Package linebot receives LINE webhook events, drives the conversation for
// each chat user and delivers the rendered reply.
//
// The webhook processes every event of the request before it answers 200; a
// body that does not decode gets 400. Events are claimed by webhookEventId before they are processed, so a
// redelivered event is dropped. Events of one chat user are processed in
// order, different users in parallel.
package linebot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/linebilling/pkg/lineapi"
	"github.com/dmitrymomot/linebilling/pkg/logger"
	"github.com/dmitrymomot/linebilling/pkg/ratelimiter"
	"github.com/dmitrymomot/linebilling/svc/conversation"
	"github.com/dmitrymomot/linebilling/svc/responder"
)

// Conversation interprets chat input.
type Conversation interface {
	HandleText(ctx context.Context, chatUserID, text string) conversation.Reply
	Follow(ctx context.Context, chatUserID string) conversation.Reply
	Unfollow(ctx context.Context, chatUserID string) error
}

// Renderer turns a reply into LINE messages.
type Renderer interface {
	Render(rep conversation.Reply) ([]lineapi.Message, error)
}

// Messenger delivers messages.
type Messenger interface {
	Reply(ctx context.Context, replyToken string, messages ...lineapi.Message) error
	Push(ctx context.Context, to string, messages ...lineapi.Message) error
}

// Limiter throttles chat input per user.
type Limiter interface {
	Allow(ctx context.Context, key string) (*ratelimiter.Result, error)
}

var (
	_ Limiter      = (*ratelimiter.Bucket)(nil)
	_ Conversation = (*conversation.Service)(nil)
	_ Renderer     = (*responder.Responder)(nil)
	_ Messenger    = (*lineapi.Client)(nil)
)

// Bot handles the webhook.
type Bot struct {
	cfg       Config
	conv      Conversation
	renderer  Renderer
	messenger Messenger
	dedup     Deduplicator
	limiter   Limiter
	metrics   *Metrics
	log       *slog.Logger
}

// Option configures a Bot.
type Option func(*Bot)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bot) {
		if l != nil {
			b.log = l
		}
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *Metrics) Option {
	return func(b *Bot) {
		if m != nil {
			b.metrics = m
		}
	}
}

// WithDeduplicator enables redelivery filtering. Without it every event is
// processed.
func WithDeduplicator(d Deduplicator) Option {
	return func(b *Bot) {
		b.dedup = d
	}
}

// WithRateLimiter drops chat input of users over the limit.
func WithRateLimiter(l Limiter) Option {
	return func(b *Bot) {
		b.limiter = l
	}
}

// New returns a Bot. It panics if a dependency is nil.
func New(cfg Config, conv Conversation, renderer Renderer, messenger Messenger, opts ...Option) *Bot {
	if conv == nil || renderer == nil || messenger == nil {
		panic("linebot: conversation, renderer and messenger are required")
	}
	b := &Bot{
		cfg:       cfg.withDefaults(),
		conv:      conv,
		renderer:  renderer,
		messenger: messenger,
		metrics:   NewMetrics(nil),
		log:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With(logger.Component("linebot"))
	return b
}

// Routes mounts the webhook on r.
func (b *Bot) Routes(r chi.Router) {
	r.Post(b.cfg.Path, b.Webhook)
}

// Webhook decodes the request and processes its events before answering.
func (b *Bot) Webhook(w http.ResponseWriter, r *http.Request) {
	var req lineapi.WebhookRequest
	body := http.MaxBytesReader(w, r.Body, b.cfg.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		b.log.WarnContext(r.Context(), "invalid webhook body", logger.Error(errors.Join(ErrInvalidBody, err)))
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	// LINE cancels the request when it gives up waiting; the events are ours by then.
	ctx := context.WithoutCancel(r.Context())
	b.Process(ctx, req.Events)
	w.WriteHeader(http.StatusOK)
}

// Process handles events. Events of the same user keep their order.
func (b *Bot) Process(ctx context.Context, events []lineapi.Event) {
	var (
		order  []string
		byUser = make(map[string][]lineapi.Event)
	)
	for _, ev := range events {
		uid := ev.Source.UserID
		if _, ok := byUser[uid]; !ok {
			order = append(order, uid)
		}
		byUser[uid] = append(byUser[uid], ev)
	}

	var g errgroup.Group
	g.SetLimit(b.cfg.Workers)
	for _, uid := range order {
		g.Go(func() error {
			for _, ev := range byUser[uid] {
				b.handle(ctx, ev)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (b *Bot) handle(ctx context.Context, ev lineapi.Event) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.EventTimeout)
	defer cancel()

	start := time.Now()
	log := b.log.With(logger.EventType(ev.Type), logger.ChatUserID(ev.Source.UserID), slog.String("webhook_event_id", ev.WebhookEventID))

	if ev.Source.UserID == "" || ev.Mode == "standby" {
		b.metrics.event(ev.Type, resultIgnored)
		return
	}
	if !b.claim(ctx, log, ev) {
		log.DebugContext(ctx, "duplicate event dropped", slog.Bool("redelivery", ev.DeliveryContext.IsRedelivery))
		b.metrics.event(ev.Type, resultDuplicate)
		return
	}

	var rep conversation.Reply
	switch ev.Type {
	case lineapi.EventMessage, lineapi.EventPostback:
		text := ev.Text()
		if text == "" {
			b.metrics.event(ev.Type, resultIgnored)
			return
		}
		if !b.allow(ctx, log, ev.Source.UserID) {
			log.WarnContext(ctx, "chat input throttled")
			b.metrics.event(ev.Type, resultThrottled)
			return
		}
		rep = b.conv.HandleText(ctx, ev.Source.UserID, text)
	case lineapi.EventFollow:
		rep = b.conv.Follow(ctx, ev.Source.UserID)
	case lineapi.EventUnfollow:
		if err := b.conv.Unfollow(ctx, ev.Source.UserID); err != nil {
			log.ErrorContext(ctx, "unfollow failed", logger.Error(err))
			b.metrics.event(ev.Type, resultFailed)
			return
		}
		b.metrics.event(ev.Type, resultHandled)
		return
	default:
		b.metrics.event(ev.Type, resultIgnored)
		return
	}

	if err := b.deliver(ctx, ev, rep); err != nil {
		log.ErrorContext(ctx, "reply not delivered",
			logger.State(string(rep.State)), slog.String("reply", string(rep.Kind)), logger.Error(err))
		b.metrics.event(ev.Type, resultFailed)
		return
	}
	log.InfoContext(ctx, "event handled",
		logger.State(string(rep.State)), slog.String("reply", string(rep.Kind)), logger.Duration(time.Since(start)))
	b.metrics.event(ev.Type, resultHandled)
}

// claim reports whether ev should be processed. A de-duplication failure lets
// the event through: a replayed message is re-interpreted against the state
// the first delivery left behind.
func (b *Bot) claim(ctx context.Context, log *slog.Logger, ev lineapi.Event) bool {
	if b.dedup == nil || ev.WebhookEventID == "" {
		return true
	}
	ok, err := b.dedup.Claim(ctx, ev.WebhookEventID)
	if err != nil {
		log.WarnContext(ctx, "event de-duplication unavailable", logger.Error(err))
		return true
	}
	return ok
}

// allow reports whether the user is within the input rate. A limiter
// failure lets the input through.
func (b *Bot) allow(ctx context.Context, log *slog.Logger, chatUserID string) bool {
	if b.limiter == nil {
		return true
	}
	res, err := b.limiter.Allow(ctx, chatUserID)
	if err != nil {
		log.WarnContext(ctx, "rate limiter unavailable", logger.Error(err))
		return true
	}
	return res.Allowed()
}

// deliver sends the rendered reply, falling back to a push message when the
// reply token has expired.
func (b *Bot) deliver(ctx context.Context, ev lineapi.Event, rep conversation.Reply) error {
	msgs, err := b.renderer.Render(rep)
	if err != nil {
		return errors.Join(ErrRender, err)
	}
	if len(msgs) == 0 {
		return nil
	}

	err = lineapi.ErrMissingRecipient
	if ev.ReplyToken != "" {
		err = b.messenger.Reply(ctx, ev.ReplyToken, msgs...)
	}
	if err == nil {
		return nil
	}
	if !lineapi.IsInvalidReplyToken(err) && !errors.Is(err, lineapi.ErrMissingRecipient) {
		return errors.Join(ErrDeliver, err)
	}
	if err := b.messenger.Push(ctx, ev.Source.UserID, msgs...); err != nil {
		return errors.Join(ErrDeliver, err)
	}
	return nil
}
