package conversation

import (
	"github.com/dmitrymomot/linebilling/svc/billing"
	"github.com/dmitrymomot/linebilling/svc/reconcile"
)

// ReplyKind names the message a turn answers with.
type ReplyKind string

const (
	ReplyMenu    ReplyKind = "menu"
	ReplyWelcome ReplyKind = "welcome"
	ReplyHelp    ReplyKind = "help"
	ReplyStatus  ReplyKind = "status"

	ReplyAddMenu      ReplyKind = "add_menu"
	ReplyAddConfirm   ReplyKind = "add_confirm"
	ReplyAdded        ReplyKind = "added"
	ReplyAddAborted   ReplyKind = "add_aborted"
	ReplyNothingToAdd ReplyKind = "nothing_to_add"
	ReplyAlreadyAdded ReplyKind = "already_added"

	ReplyCancelMenu      ReplyKind = "cancel_menu"
	ReplyCancelConfirm   ReplyKind = "cancel_confirm"
	ReplyCancelled       ReplyKind = "cancelled"
	ReplyCancelAborted   ReplyKind = "cancel_aborted"
	ReplyNothingToCancel ReplyKind = "nothing_to_cancel"

	ReplySubscriptionCancelConfirm ReplyKind = "subscription_cancel_confirm"
	ReplySubscriptionCancelled     ReplyKind = "subscription_cancelled"
	ReplySubscriptionCancelAborted ReplyKind = "subscription_cancel_aborted"

	// ReplyInvalidSelection re-prompts the question of the current state.
	ReplyInvalidSelection ReplyKind = "invalid_selection"

	ReplyLinkPrompt     ReplyKind = "link_prompt"
	ReplyLinked         ReplyKind = "linked"
	ReplyEmailNotFound  ReplyKind = "email_not_found"
	ReplyEmailLinked    ReplyKind = "email_already_linked"
	ReplyNotRegistered  ReplyKind = "not_registered"
	ReplyInactive       ReplyKind = "subscription_inactive"
	ReplySystemError    ReplyKind = "system_error"
	ReplyNone           ReplyKind = ""
)

// Reply is everything the responder needs to render the answer to a turn.
// Only the fields relevant to Kind are set.
type Reply struct {
	Kind  ReplyKind
	State State

	Company   *billing.Company
	Statement billing.Statement

	// Options are the selectable content products of an add menu.
	Options []billing.Content
	// Items are the selectable active items of a cancel menu, oldest first.
	Items []billing.ContentItem

	// Content is the product awaiting confirmation of an add.
	Content billing.Content
	// Selected are the items awaiting confirmation of a cancel.
	Selected []billing.ContentItem

	// Prompt is the question re-asked by ReplyInvalidSelection.
	Prompt *Reply

	Add                *reconcile.AddResult
	Cancel             *reconcile.CancelResult
	SubscriptionCancel *reconcile.SubscriptionCancelResult

	// Partial is set when the change was recorded locally but the payment
	// provider may not reflect it yet. ErrKind tells why.
	Partial bool
	ErrKind billing.Kind
}

func systemError() Reply {
	return Reply{Kind: ReplySystemError, ErrKind: billing.KindSystemError}
}
