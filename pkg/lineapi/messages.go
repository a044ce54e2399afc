package lineapi

import "encoding/json"

// Message is an outbound LINE message object.
type Message interface {
	json.Marshaler
	messageType() string
}

// Action is a template or quick-reply action object.
type Action interface {
	json.Marshaler
	actionType() string
}

// QuickReply holds up to 13 quick reply buttons attached to a message.
type QuickReply struct {
	Items []Action
}

func (q *QuickReply) MarshalJSON() ([]byte, error) {
	type item struct {
		Type   string `json:"type"`
		Action Action `json:"action"`
	}
	items := make([]item, 0, len(q.Items))
	for _, a := range q.Items {
		items = append(items, item{Type: "action", Action: a})
	}
	return json.Marshal(struct {
		Items []item `json:"items"`
	}{items})
}

// TextMessage is a plain text message.
type TextMessage struct {
	Text       string
	QuickReply *QuickReply
}

func (TextMessage) messageType() string { return "text" }

func (m TextMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type       string      `json:"type"`
		Text       string      `json:"text"`
		QuickReply *QuickReply `json:"quickReply,omitempty"`
	}{m.messageType(), m.Text, m.QuickReply})
}

// ButtonsTemplate renders up to four actions under a text and optional title.
type ButtonsTemplate struct {
	AltText string
	Title   string
	Text    string
	Actions []Action
}

func (ButtonsTemplate) messageType() string { return "template" }

func (m ButtonsTemplate) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string `json:"type"`
		AltText  string `json:"altText"`
		Template any    `json:"template"`
	}{
		Type:    m.messageType(),
		AltText: m.AltText,
		Template: struct {
			Type    string   `json:"type"`
			Title   string   `json:"title,omitempty"`
			Text    string   `json:"text"`
			Actions []Action `json:"actions"`
		}{"buttons", m.Title, m.Text, m.Actions},
	})
}

// ConfirmTemplate renders exactly two actions, typically yes and no.
type ConfirmTemplate struct {
	AltText string
	Text    string
	Yes     Action
	No      Action
}

func (ConfirmTemplate) messageType() string { return "template" }

func (m ConfirmTemplate) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string `json:"type"`
		AltText  string `json:"altText"`
		Template any    `json:"template"`
	}{
		Type:    m.messageType(),
		AltText: m.AltText,
		Template: struct {
			Type    string   `json:"type"`
			Text    string   `json:"text"`
			Actions []Action `json:"actions"`
		}{"confirm", m.Text, []Action{m.Yes, m.No}},
	})
}

// MessageAction sends Text as a user message when tapped.
type MessageAction struct {
	Label string
	Text  string
}

func (MessageAction) actionType() string { return "message" }

func (a MessageAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		Label string `json:"label"`
		Text  string `json:"text"`
	}{a.actionType(), a.Label, a.Text})
}

// PostbackAction delivers Data in a postback event and shows DisplayText in the chat.
type PostbackAction struct {
	Label       string
	Data        string
	DisplayText string
}

func (PostbackAction) actionType() string { return "postback" }

func (a PostbackAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        string `json:"type"`
		Label       string `json:"label"`
		Data        string `json:"data"`
		DisplayText string `json:"displayText,omitempty"`
	}{a.actionType(), a.Label, a.Data, a.DisplayText})
}

// URIAction opens URI.
type URIAction struct {
	Label string
	URI   string
}

func (URIAction) actionType() string { return "uri" }

func (a URIAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		Label string `json:"label"`
		URI   string `json:"uri"`
	}{a.actionType(), a.Label, a.URI})
}
