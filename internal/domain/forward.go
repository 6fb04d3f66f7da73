package domain

// Route names a downstream endpoint.
type Route string

const (
	RouteEvent       Route = "event"
	RouteSpreadsheet Route = "spreadsheet"
)

// InboundEvent is the generic payload forwarded for every inbound message.
type InboundEvent struct {
	From     string `json:"From"`
	Body     string `json:"Body"`
	HasMedia bool   `json:"HasMedia"`
}

// SpreadsheetNotice tells the downstream that a guest list was uploaded.
type SpreadsheetNotice struct {
	From string `json:"from"`
}

// Forwarder delivers payloads to the downstream backend on a best-effort basis.
// Forward must not block; it reports whether the payload was accepted.
type Forwarder interface {
	Forward(route Route, payload any) bool
}
