package conversation

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/dmitrymomot/linebilling/pkg/statemachine"
	"github.com/dmitrymomot/linebilling/svc/billing"
)

// turn is the data a single message is interpreted against. Actions fill in
// next, reply and effect; nothing is written until the new state is saved.
type turn struct {
	nums      []int
	company   *billing.Company
	sub       *billing.MonthlySubscription
	active    []billing.ContentItem
	available []billing.Content
	current   payload

	next   payload
	reply  Reply
	effect effect
}

// effect is a side effect deferred until the state transition is stored.
type effect func(ctx context.Context, s *Service) Reply

func newTurn(company *billing.Company, sub *billing.MonthlySubscription, items []billing.ContentItem, current payload, nums []int) *turn {
	active := billing.ActiveItems(items)
	return &turn{
		nums:      nums,
		company:   company,
		sub:       sub,
		active:    active,
		available: billing.Available(active),
		current:   current,
	}
}

func (t *turn) statement() billing.Statement {
	return billing.NewStatement(t.sub, t.active)
}

// selected returns the active items named by ids, oldest first.
func (t *turn) selected(ids []uuid.UUID) []billing.ContentItem {
	out := make([]billing.ContentItem, 0, len(ids))
	for _, it := range t.active {
		if slices.Contains(ids, it.ID) {
			out = append(out, it)
		}
	}
	return out
}

func act(fn func(t *turn, from State)) statemachine.TransitionOption {
	return statemachine.WithAction(func(_ context.Context, from, _ statemachine.State, _ statemachine.Event, data any) error {
		fn(data.(*turn), State(from.Name()))
		return nil
	})
}

func guard(fn func(t *turn) bool) statemachine.TransitionOption {
	return statemachine.WithGuard(func(_ context.Context, _ statemachine.State, _ statemachine.Event, data any) bool {
		return fn(data.(*turn))
	})
}

func stateGuard(fn func(t *turn, from State) bool) statemachine.TransitionOption {
	return statemachine.WithGuard(func(_ context.Context, from statemachine.State, _ statemachine.Event, data any) bool {
		return fn(data.(*turn), State(from.Name()))
	})
}

// newMachine builds the dialog table. Global commands are registered on
// statemachine.Any, so they win over whatever the current state expects.
func newMachine() *statemachine.Machine {
	opts := []statemachine.Option{
		statemachine.WithTransition(statemachine.Any, StateAddSelect, EventAdd, guard(hasAvailable), act(showAddMenu)),
		statemachine.WithTransition(statemachine.Any, StateWelcome, EventAdd, act(nothingToAdd)),
		statemachine.WithTransition(statemachine.Any, StateCancelSelect, EventCancel, guard(hasActive), act(showCancelMenu)),
		statemachine.WithTransition(statemachine.Any, StateWelcome, EventCancel, act(nothingToCancel)),
		statemachine.WithTransition(statemachine.Any, StateWelcome, EventStatus, act(showStatus)),
		statemachine.WithTransition(statemachine.Any, StateWelcome, EventMenu, act(showMenu)),
		statemachine.WithTransition(statemachine.Any, StateWelcome, EventHelp, act(showHelp)),
		statemachine.WithTransition(statemachine.Any, StateSubscriptionCancelConfirm, EventSubscriptionCancel, act(askSubscriptionCancel)),

		statemachine.WithTransition(StateAddSelect, StateAddConfirm, EventNumber, guard(validAddChoice), act(selectAdd)),

		statemachine.WithTransition(StateAddConfirm, StateWelcome, EventYes, guard(pendingAdd), act(confirmAdd)),
		statemachine.WithTransition(StateAddConfirm, StateWelcome, EventNo, act(abortAdd)),

		statemachine.WithTransition(StateCancelSelect, StateCancelConfirm, EventNumber, guard(validCancelChoice), act(selectCancel)),

		statemachine.WithTransition(StateCancelConfirm, StateWelcome, EventYes, guard(pendingCancel), act(confirmCancel)),
		statemachine.WithTransition(StateCancelConfirm, StateWelcome, EventNo, act(abortCancel)),

		statemachine.WithTransition(StateSubscriptionCancelConfirm, StateWelcome, EventYes, act(confirmSubscriptionCancel)),
		statemachine.WithTransition(StateSubscriptionCancelConfirm, StateWelcome, EventNo, act(abortSubscriptionCancel)),
	}

	// Anything else re-asks the pending question, or shows the menu.
	for _, ev := range []statemachine.StringEvent{EventNumber, EventYes, EventNo, EventText} {
		opts = append(opts, statemachine.WithTransition(StateWelcome, StateWelcome, ev, act(showMenu)))
		for _, s := range states[1:] {
			opts = append(opts,
				statemachine.WithTransition(s, statemachine.Self, ev, stateGuard(canReprompt), act(reprompt)),
				statemachine.WithTransition(s, StateWelcome, ev, act(showMenu)),
			)
		}
	}
	return statemachine.MustNew(opts...)
}

func hasAvailable(t *turn) bool { return len(t.available) > 0 }
func hasActive(t *turn) bool    { return len(t.active) > 0 }

func validAddChoice(t *turn) bool {
	return len(t.nums) == 1 && InRange(t.nums, len(t.available))
}

func validCancelChoice(t *turn) bool {
	return InRange(t.nums, len(t.active))
}

func pendingAdd(t *turn) bool { return t.current.ContentType != "" }

func pendingCancel(t *turn) bool { return len(t.current.ItemIDs) > 0 }

// canReprompt reports whether the question of the current state can still be
// asked. A question whose subject is gone falls back to the menu.
func canReprompt(t *turn, from State) bool {
	switch from {
	case StateAddSelect:
		return len(t.available) > 0
	case StateAddConfirm:
		_, ok := billing.LookupContent(t.current.ContentType)
		return ok
	case StateCancelSelect:
		return len(t.active) > 0
	case StateCancelConfirm:
		return len(t.selected(t.current.ItemIDs)) > 0
	default:
		return true
	}
}

func showMenu(t *turn, _ State) {
	t.reply = Reply{Kind: ReplyMenu, Company: t.company}
}

func showHelp(t *turn, _ State) {
	t.reply = Reply{Kind: ReplyHelp, Company: t.company}
}

func showStatus(t *turn, _ State) {
	t.reply = Reply{Kind: ReplyStatus, Company: t.company, Statement: t.statement()}
}

func showAddMenu(t *turn, _ State) {
	t.reply = Reply{Kind: ReplyAddMenu, Options: t.available, Statement: t.statement()}
}

func nothingToAdd(t *turn, _ State) {
	t.reply = Reply{Kind: ReplyNothingToAdd, Statement: t.statement()}
}

func showCancelMenu(t *turn, _ State) {
	t.reply = Reply{Kind: ReplyCancelMenu, Items: t.active, Statement: t.statement()}
}

func nothingToCancel(t *turn, _ State) {
	t.reply = Reply{Kind: ReplyNothingToCancel}
}

func askSubscriptionCancel(t *turn, _ State) {
	t.reply = Reply{Kind: ReplySubscriptionCancelConfirm, Company: t.company, Statement: t.statement()}
}

func selectAdd(t *turn, _ State) {
	c := t.available[t.nums[0]-1]
	t.next = payload{ContentType: c.Type}
	t.reply = addConfirm(t, c)
}

func addConfirm(t *turn, c billing.Content) Reply {
	return Reply{Kind: ReplyAddConfirm, Content: c, Statement: t.statement()}
}

func confirmAdd(t *turn, _ State) {
	company, ct := t.company, t.current.ContentType
	t.effect = func(ctx context.Context, s *Service) Reply {
		return s.add(ctx, company, ct)
	}
}

func abortAdd(t *turn, _ State) {
	t.reply = Reply{Kind: ReplyAddAborted}
}

func selectCancel(t *turn, _ State) {
	ids := make([]uuid.UUID, 0, len(t.nums))
	for _, n := range t.nums {
		ids = append(ids, t.active[n-1].ID)
	}
	t.next = payload{ItemIDs: ids}
	t.reply = cancelConfirm(t, ids)
}

func cancelConfirm(t *turn, ids []uuid.UUID) Reply {
	return Reply{Kind: ReplyCancelConfirm, Selected: t.selected(ids), Statement: t.statement()}
}

func confirmCancel(t *turn, _ State) {
	company, ids := t.company, t.current.ItemIDs
	t.effect = func(ctx context.Context, s *Service) Reply {
		return s.cancel(ctx, company, ids)
	}
}

func abortCancel(t *turn, _ State) {
	t.reply = Reply{Kind: ReplyCancelAborted}
}

func confirmSubscriptionCancel(t *turn, _ State) {
	company := t.company
	t.effect = func(ctx context.Context, s *Service) Reply {
		return s.cancelSubscription(ctx, company)
	}
}

func abortSubscriptionCancel(t *turn, _ State) {
	t.reply = Reply{Kind: ReplySubscriptionCancelAborted}
}

// reprompt keeps the state and its payload and asks its question again.
func reprompt(t *turn, from State) {
	t.next = t.current
	var prompt Reply
	switch from {
	case StateAddSelect:
		prompt = Reply{Kind: ReplyAddMenu, Options: t.available, Statement: t.statement()}
	case StateAddConfirm:
		c, _ := billing.LookupContent(t.current.ContentType)
		prompt = addConfirm(t, c)
	case StateCancelSelect:
		prompt = Reply{Kind: ReplyCancelMenu, Items: t.active, Statement: t.statement()}
	case StateCancelConfirm:
		prompt = cancelConfirm(t, t.current.ItemIDs)
	case StateSubscriptionCancelConfirm:
		prompt = Reply{Kind: ReplySubscriptionCancelConfirm, Company: t.company, Statement: t.statement()}
	}
	t.reply = Reply{Kind: ReplyInvalidSelection, Prompt: &prompt, ErrKind: billing.KindInvalidSelection}
}
