package lineapi

// Event types delivered to the webhook.
const (
	EventMessage  = "message"
	EventPostback = "postback"
	EventFollow   = "follow"
	EventUnfollow = "unfollow"
)

// WebhookRequest is the body LINE posts to the webhook URL.
type WebhookRequest struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// Event is a single webhook event. Only the fields this service reads are decoded.
type Event struct {
	Type            string          `json:"type"`
	Mode            string          `json:"mode"`
	Timestamp       int64           `json:"timestamp"`
	WebhookEventID  string          `json:"webhookEventId"`
	ReplyToken      string          `json:"replyToken"`
	Source          Source          `json:"source"`
	DeliveryContext DeliveryContext `json:"deliveryContext"`
	Message         *MessageContent `json:"message,omitempty"`
	Postback        *Postback       `json:"postback,omitempty"`
}

// Source identifies the sender.
type Source struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// DeliveryContext reports whether the event is a redelivery.
type DeliveryContext struct {
	IsRedelivery bool `json:"isRedelivery"`
}

// MessageContent is the message object of a message event.
type MessageContent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}

// Postback carries the data of a tapped postback action.
type Postback struct {
	Data string `json:"data"`
}

// Text returns the user input carried by a message or postback event.
// Non-text messages yield an empty string.
func (e Event) Text() string {
	switch {
	case e.Message != nil && e.Message.Type == "text":
		return e.Message.Text
	case e.Postback != nil:
		return e.Postback.Data
	default:
		return ""
	}
}
