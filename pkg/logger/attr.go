package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// CompanyID records the company identifier under the key "company_id".
func CompanyID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("company_id", id)
}

// ChatUserID records the messaging platform user under the key "chat_user_id".
func ChatUserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("chat_user_id", id)
}

// ContentType records a content product identifier.
func ContentType(t string) slog.Attr {
	return slog.String("content_type", t)
}

// State records a conversation state name.
func State(name string) slog.Attr {
	return slog.String("state", name)
}

// Operation records the name of a billing operation (add, cancel, ...).
func Operation(name string) slog.Attr {
	return slog.String("operation", name)
}

// RequestID records the request identifier under the key "request_id".
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// EventType records the event type under the key "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
