package domain

import (
	"context"
	"errors"
)

// ErrNotReady is returned when a send is attempted before the session is ready.
var ErrNotReady = errors.New("session not ready")

// Media is an attachment payload. Data holds the decoded bytes.
type Media struct {
	MimeType string
	Filename string
	Data     []byte
}

// Session is the long-lived messaging session used for outbound sends.
type Session interface {
	SendText(ctx context.Context, to string, text string) error
	SendMedia(ctx context.Context, to string, media Media, caption string) error
}

// Readiness reports whether the session can send.
type Readiness interface {
	Ready() bool
}
