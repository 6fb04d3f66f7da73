package domain

import "context"

// Event is a session event. The set of variants is closed: PairingCodeIssued,
// SessionReady and MessageReceived.
type Event interface {
	eventKind() string
}

// EventHandler consumes session events.
type EventHandler func(ctx context.Context, ev Event) error

// PairingCodeIssued carries a one-time code that links this device to an account.
type PairingCodeIssued struct {
	Code string
}

// SessionReady signals that the session is authenticated and able to send.
type SessionReady struct{}

// MessageReceived is an inbound message. Attachment is nil when the message
// carries no downloadable media.
type MessageReceived struct {
	ID         string
	From       string
	Body       string
	HasMedia   bool
	Attachment AttachmentSource
}

// AttachmentSource fetches the media of an inbound message on demand.
type AttachmentSource interface {
	Download(ctx context.Context) (*Media, error)
}

func (PairingCodeIssued) eventKind() string { return "pairing_code" }
func (SessionReady) eventKind() string      { return "ready" }
func (MessageReceived) eventKind() string   { return "message" }

// Kind returns a short name of the event variant, for logs.
func Kind(ev Event) string {
	if ev == nil {
		return "unknown"
	}
	return ev.eventKind()
}
