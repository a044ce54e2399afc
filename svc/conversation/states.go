package conversation

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/dmitrymomot/linebilling/pkg/statemachine"
	"github.com/dmitrymomot/linebilling/svc/billing"
)

// State is a position in the dialog.
type State = statemachine.StringState

const (
	StateWelcome                   State = "welcome_sent"
	StateAddSelect                 State = "add_select"
	StateAddConfirm                State = "add_confirm"
	StateCancelSelect              State = "cancel_select"
	StateCancelConfirm             State = "cancel_confirm"
	StateSubscriptionCancelConfirm State = "subscription_cancel_confirm"
)

var states = []State{
	StateWelcome,
	StateAddSelect,
	StateAddConfirm,
	StateCancelSelect,
	StateCancelConfirm,
	StateSubscriptionCancelConfirm,
}

// Events derived from a chat message.
const (
	EventAdd                = statemachine.StringEvent("add")
	EventCancel             = statemachine.StringEvent("cancel")
	EventStatus             = statemachine.StringEvent("status")
	EventMenu               = statemachine.StringEvent("menu")
	EventHelp               = statemachine.StringEvent("help")
	EventSubscriptionCancel = statemachine.StringEvent("subscription_cancel")
	EventNumber             = statemachine.StringEvent("number")
	EventYes                = statemachine.StringEvent("yes")
	EventNo                 = statemachine.StringEvent("no")
	EventText               = statemachine.StringEvent("text")
)

var commandEvents = map[Command]statemachine.StringEvent{
	CommandAdd:                EventAdd,
	CommandCancel:             EventCancel,
	CommandStatus:             EventStatus,
	CommandMenu:               EventMenu,
	CommandHelp:               EventHelp,
	CommandSubscriptionCancel: EventSubscriptionCancel,
}

// classify turns a message into an event. Commands win over answers, answers
// over numbers.
func classify(text string) (statemachine.StringEvent, []int) {
	if c, ok := ParseCommand(text); ok {
		return commandEvents[c], nil
	}
	switch ParseAnswer(text) {
	case Yes:
		return EventYes, nil
	case No:
		return EventNo, nil
	}
	if nums, ok := ParseNumbers(text); ok {
		return EventNumber, nums
	}
	return EventText, nil
}

// payload is the data a confirmation state carries.
type payload struct {
	ContentType billing.ContentType `json:"content_type,omitempty"`
	ItemIDs     []uuid.UUID         `json:"item_ids,omitempty"`
}

func (p payload) encode() json.RawMessage {
	if p.ContentType == "" && len(p.ItemIDs) == 0 {
		return json.RawMessage("{}")
	}
	b, _ := json.Marshal(p)
	return b
}

func decodePayload(raw json.RawMessage) payload {
	var p payload
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &p)
	}
	return p
}

// position is a state together with its payload, as stored.
type position struct {
	state   State
	payload payload
}

// loadPosition reads a stored state. Unknown or empty states fall back to
// the welcome state.
func loadPosition(st *billing.ConversationState) position {
	if st == nil {
		return position{state: StateWelcome}
	}
	for _, s := range states {
		if string(s) == st.State {
			return position{state: s, payload: decodePayload(st.Payload)}
		}
	}
	return position{state: StateWelcome}
}

func (p position) equal(o position) bool {
	return p.state == o.state && bytes.Equal(p.payload.encode(), o.payload.encode())
}
