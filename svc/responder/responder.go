package responder

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dmitrymomot/linebilling/pkg/i18n"
	"github.com/dmitrymomot/linebilling/pkg/lineapi"
	"github.com/dmitrymomot/linebilling/pkg/logger"
	"github.com/dmitrymomot/linebilling/svc/billing"
	"github.com/dmitrymomot/linebilling/svc/conversation"
)

//go:embed locales
var locales embed.FS

// maxMessages is the number of messages a single reply may carry.
const maxMessages = 5

// required lists every key Render depends on.
var required = []string{
	"menu.alt", "menu.title", "menu.text", "menu.add", "menu.status", "menu.cancel", "menu.help", "menu.back",
	"welcome", "linked", "link_prompt", "not_registered", "email_not_found", "email_already_linked",
	"inactive", "system_error", "partial", "invalid_selection", "help",
	"status.header", "status.base", "status.item_free", "status.item_billed", "status.none",
	"status.total", "status.renews", "status.trial", "status.ends",
	"add.menu", "add.option", "add.price_free", "add.price_billed", "add.confirm", "add.confirm_free",
	"add.confirm_billed", "add.done", "add.done_free", "add.done_billed", "add.done_trial",
	"add.aborted", "add.nothing", "add.already",
	"cancel.menu", "cancel.item_free", "cancel.item_billed", "cancel.confirm", "cancel.done",
	"cancel.aborted", "cancel.nothing", "cancel.unchanged",
	"subscription_cancel.confirm", "subscription_cancel.immediate", "subscription_cancel.at_period_end",
	"subscription_cancel.aborted",
	"answer.accept", "answer.decline",
}

// ErrUnknownReply is returned for a reply kind without a rendering.
var ErrUnknownReply = errors.New("responder: unknown reply kind")

// Responder turns conversation replies into LINE messages.
type Responder struct {
	tr      *i18n.Translator
	lang    string
	printer *message.Printer
	loc     *time.Location
	lpURL   string
	log     *slog.Logger
}

// Option configures a Responder.
type Option func(*Responder)

// WithLandingURL sets the sign-up page shown to unregistered and inactive users.
func WithLandingURL(url string) Option {
	return func(r *Responder) {
		r.lpURL = url
	}
}

// WithLocation sets the time zone dates are shown in.
func WithLocation(loc *time.Location) Option {
	return func(r *Responder) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Responder) {
		if l != nil {
			r.log = l
		}
	}
}

// New loads the embedded copy and fails if any key Render needs is missing.
func New(ctx context.Context, opts ...Option) (*Responder, error) {
	r := &Responder{
		lang:    i18n.DefaultLanguage,
		printer: message.NewPrinter(language.Japanese),
		loc:     time.FixedZone("JST", 9*60*60),
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}

	tr, err := i18n.NewTranslator(ctx,
		i18n.NewEmbeddedFSAdapter(i18n.NewYAMLParser(), locales, "locales"),
		i18n.WithDefaultLanguage(r.lang),
		i18n.WithLogger(r.log),
		i18n.WithMissingTranslationsLogging(true),
	)
	if err != nil {
		return nil, fmt.Errorf("responder: load copy: %w", err)
	}
	if err := tr.Require(r.lang, required...); err != nil {
		return nil, fmt.Errorf("responder: %w", err)
	}
	r.tr = tr
	return r, nil
}

// Render returns the messages answering rep. ReplyNone renders nothing.
func (r *Responder) Render(rep conversation.Reply) ([]lineapi.Message, error) {
	msgs, err := r.render(rep)
	if err != nil {
		return nil, err
	}
	if rep.Partial {
		msgs = append(msgs, r.text("partial"))
	}
	if len(msgs) > maxMessages {
		msgs = msgs[:maxMessages]
	}
	return msgs, nil
}

func (r *Responder) render(rep conversation.Reply) ([]lineapi.Message, error) {
	switch rep.Kind {
	case conversation.ReplyNone:
		return nil, nil
	case conversation.ReplyMenu:
		return []lineapi.Message{r.menu()}, nil
	case conversation.ReplyWelcome:
		return []lineapi.Message{r.text("welcome", "company", companyName(rep.Company)), r.menu()}, nil
	case conversation.ReplyHelp:
		return []lineapi.Message{r.text("help",
			"base", r.yen(billing.BasePrice),
			"additional", r.yen(billing.AdditionalPrice),
		), r.menu()}, nil
	case conversation.ReplyStatus:
		return []lineapi.Message{r.status(rep)}, nil

	case conversation.ReplyAddMenu:
		return r.addMenu(rep), nil
	case conversation.ReplyAddConfirm:
		return []lineapi.Message{r.addConfirm(rep)}, nil
	case conversation.ReplyAdded:
		return []lineapi.Message{r.added(rep)}, nil
	case conversation.ReplyAddAborted:
		return []lineapi.Message{r.text("add.aborted"), r.menu()}, nil
	case conversation.ReplyNothingToAdd:
		return []lineapi.Message{r.text("add.nothing"), r.menu()}, nil
	case conversation.ReplyAlreadyAdded:
		return []lineapi.Message{r.text("add.already", "name", rep.Content.Name), r.menu()}, nil

	case conversation.ReplyCancelMenu:
		return []lineapi.Message{r.cancelMenu(rep)}, nil
	case conversation.ReplyCancelConfirm:
		return []lineapi.Message{r.confirm(r.tr.T(r.lang, "cancel.confirm",
			"names", itemNames(rep.Selected),
			"total", r.yen(totalAfterCancel(rep.Statement, len(rep.Selected))),
		))}, nil
	case conversation.ReplyCancelled:
		if len(rep.Selected) == 0 {
			return []lineapi.Message{r.text("cancel.unchanged", "total", r.yen(rep.Statement.Total)), r.menu()}, nil
		}
		return []lineapi.Message{r.text("cancel.done",
			"names", itemNames(rep.Selected),
			"total", r.yen(rep.Statement.Total),
		)}, nil
	case conversation.ReplyCancelAborted:
		return []lineapi.Message{r.text("cancel.aborted"), r.menu()}, nil
	case conversation.ReplyNothingToCancel:
		return []lineapi.Message{r.text("cancel.nothing"), r.menu()}, nil

	case conversation.ReplySubscriptionCancelConfirm:
		return []lineapi.Message{r.confirm(r.tr.T(r.lang, "subscription_cancel.confirm"))}, nil
	case conversation.ReplySubscriptionCancelled:
		res := rep.SubscriptionCancel
		if res == nil || res.Immediate {
			return []lineapi.Message{r.text("subscription_cancel.immediate")}, nil
		}
		return []lineapi.Message{r.text("subscription_cancel.at_period_end", "date", r.date(res.EndsAt))}, nil
	case conversation.ReplySubscriptionCancelAborted:
		return []lineapi.Message{r.text("subscription_cancel.aborted"), r.menu()}, nil

	case conversation.ReplyInvalidSelection:
		msgs := []lineapi.Message{r.text("invalid_selection")}
		if rep.Prompt == nil {
			return msgs, nil
		}
		prompt, err := r.render(*rep.Prompt)
		if err != nil {
			return nil, err
		}
		return append(msgs, prompt...), nil

	case conversation.ReplyLinkPrompt:
		return []lineapi.Message{r.text("link_prompt")}, nil
	case conversation.ReplyLinked:
		var email string
		if rep.Company != nil {
			email = rep.Company.Email
		}
		return []lineapi.Message{r.text("linked", "company", companyName(rep.Company), "email", email), r.menu()}, nil
	case conversation.ReplyEmailNotFound:
		return []lineapi.Message{r.text("email_not_found")}, nil
	case conversation.ReplyEmailLinked:
		return []lineapi.Message{r.text("email_already_linked")}, nil
	case conversation.ReplyNotRegistered:
		return []lineapi.Message{r.text("not_registered", "url", r.lpURL)}, nil
	case conversation.ReplyInactive:
		return []lineapi.Message{r.text("inactive", "url", r.lpURL)}, nil
	case conversation.ReplySystemError:
		return []lineapi.Message{r.text("system_error")}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownReply, rep.Kind)
}

func (r *Responder) text(key string, args ...string) lineapi.TextMessage {
	return lineapi.TextMessage{Text: r.tr.T(r.lang, key, args...)}
}

func (r *Responder) menu() lineapi.ButtonsTemplate {
	return lineapi.ButtonsTemplate{
		AltText: r.tr.T(r.lang, "menu.alt"),
		Title:   r.tr.T(r.lang, "menu.title"),
		Text:    r.tr.T(r.lang, "menu.text"),
		Actions: []lineapi.Action{
			r.say("menu.add", "追加"),
			r.say("menu.status", "状態"),
			r.say("menu.cancel", "解約"),
			r.say("menu.help", "ヘルプ"),
		},
	}
}

// say is a button that sends text as if the user typed it.
func (r *Responder) say(labelKey, text string) lineapi.MessageAction {
	return lineapi.MessageAction{Label: r.tr.T(r.lang, labelKey), Text: text}
}

// confirm asks a yes/no question. Answers arrive as postbacks carrying the
// same words a user would type.
func (r *Responder) confirm(text string) lineapi.ConfirmTemplate {
	yes, no := r.tr.T(r.lang, "answer.accept"), r.tr.T(r.lang, "answer.decline")
	return lineapi.ConfirmTemplate{
		AltText: truncate(text, 400),
		Text:    truncate(text, 240),
		Yes:     lineapi.PostbackAction{Label: yes, Data: yes, DisplayText: yes},
		No:      lineapi.PostbackAction{Label: no, Data: no, DisplayText: no},
	}
}

// numbers is a quick reply offering 1..n and a way back to the menu.
func (r *Responder) numbers(n int) *lineapi.QuickReply {
	// A quick reply carries at most 13 items.
	n = min(n, 12)
	items := make([]lineapi.Action, 0, n+1)
	for i := 1; i <= n; i++ {
		s := strconv.Itoa(i)
		items = append(items, lineapi.MessageAction{Label: s, Text: s})
	}
	items = append(items, r.say("menu.back", "メニュー"))
	return &lineapi.QuickReply{Items: items}
}

func (r *Responder) status(rep conversation.Reply) lineapi.TextMessage {
	st := rep.Statement
	lines := []string{
		r.tr.T(r.lang, "status.header", "company", companyName(rep.Company)),
		"",
		r.tr.T(r.lang, "status.base", "price", r.yen(st.Base)),
	}
	if len(st.Items) == 0 {
		lines = append(lines, r.tr.T(r.lang, "status.none"))
	}
	for i, li := range st.Items {
		args := []string{"index", strconv.Itoa(i + 1), "name", billing.DisplayName(li.Item.ContentType)}
		if li.Free {
			lines = append(lines, r.tr.T(r.lang, "status.item_free", args...))
			continue
		}
		lines = append(lines, r.tr.T(r.lang, "status.item_billed", append(args, "price", r.yen(li.Price))...))
	}
	lines = append(lines, "", r.tr.T(r.lang, "status.total", "total", r.yen(st.Total)))
	if !st.RenewsAt.IsZero() {
		key := "status.renews"
		if st.EndsAtEnd {
			key = "status.ends"
		}
		lines = append(lines, r.tr.T(r.lang, key, "date", r.date(st.RenewsAt)))
	}
	if st.Trialing {
		lines = append(lines, r.tr.T(r.lang, "status.trial"))
	}
	return lineapi.TextMessage{Text: strings.Join(lines, "\n")}
}

func (r *Responder) addMenu(rep conversation.Reply) []lineapi.Message {
	lines := []string{r.tr.T(r.lang, "add.menu"), ""}
	for i, c := range rep.Options {
		lines = append(lines, r.tr.T(r.lang, "add.option",
			"index", strconv.Itoa(i+1),
			"name", c.Name,
			"description", c.Description,
		))
	}
	lines = append(lines, "")
	if len(rep.Statement.Items) == 0 {
		lines = append(lines, r.tr.T(r.lang, "add.price_free"))
	} else {
		lines = append(lines, r.tr.T(r.lang, "add.price_billed", "price", r.yen(billing.AdditionalPrice)))
	}
	return []lineapi.Message{lineapi.TextMessage{
		Text:       strings.Join(lines, "\n"),
		QuickReply: r.numbers(len(rep.Options)),
	}}
}

func (r *Responder) addConfirm(rep conversation.Reply) lineapi.ConfirmTemplate {
	free := len(rep.Statement.Items) == 0
	price := r.tr.T(r.lang, "add.confirm_free")
	total := rep.Statement.Total
	if !free {
		price = r.tr.T(r.lang, "add.confirm_billed", "price", r.yen(rep.Content.Price))
		total = total.Add(rep.Content.Price, 1)
	}
	return r.confirm(r.tr.T(r.lang, "add.confirm",
		"name", rep.Content.Name,
		"price", price,
		"total", r.yen(total),
	))
}

func (r *Responder) added(rep conversation.Reply) lineapi.TextMessage {
	var price string
	switch {
	case rep.Add == nil || rep.Add.IsFree:
		price = r.tr.T(r.lang, "add.done_free")
	case rep.Add.PendingCharge:
		price = r.tr.T(r.lang, "add.done_trial", "price", r.yen(rep.Content.Price))
	default:
		price = r.tr.T(r.lang, "add.done_billed", "price", r.yen(rep.Content.Price))
	}
	return r.text("add.done",
		"name", rep.Content.Name,
		"url", rep.Content.URL,
		"price", price,
		"total", r.yen(rep.Statement.Total),
	)
}

func (r *Responder) cancelMenu(rep conversation.Reply) lineapi.TextMessage {
	lines := []string{r.tr.T(r.lang, "cancel.menu"), ""}
	for i, it := range rep.Items {
		args := []string{"index", strconv.Itoa(i + 1), "name", billing.DisplayName(it.ContentType)}
		// Items are oldest first, so the first one is the free item.
		if i == 0 {
			lines = append(lines, r.tr.T(r.lang, "cancel.item_free", args...))
			continue
		}
		lines = append(lines, r.tr.T(r.lang, "cancel.item_billed", append(args, "price", r.yen(billing.AdditionalPrice))...))
	}
	return lineapi.TextMessage{
		Text:       strings.Join(lines, "\n"),
		QuickReply: r.numbers(len(rep.Items)),
	}
}

// totalAfterCancel is the monthly total once n of the statement's items are gone.
func totalAfterCancel(st billing.Statement, n int) billing.Money {
	return billing.BasePrice.Add(billing.AdditionalPrice, billing.BillableCount(len(st.Items)-n))
}

func (r *Responder) yen(m billing.Money) string {
	return r.printer.Sprintf("%d円", m.Amount)
}

func (r *Responder) date(t time.Time) string {
	return t.In(r.loc).Format("2006年1月2日")
}

func companyName(c *billing.Company) string {
	if c == nil {
		return ""
	}
	return c.Name
}

func itemNames(items []billing.ContentItem) string {
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, "・"+billing.DisplayName(it.ContentType))
	}
	return strings.Join(names, "\n")
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if rs := []rune(s); len(rs) > n {
		return string(rs[:n-1]) + "…"
	}
	return s
}
