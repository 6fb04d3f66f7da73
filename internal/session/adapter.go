// Package session mediates between the session event stream and the rest of
// warelay: it owns the readiness state and turns inbound messages into
// downstream forwards.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"warelay/internal/domain"
	"warelay/internal/metrics"
)

const (
	DefaultPairingCodePath = "last_qr.txt"
	DefaultGuestListPath   = "invitados.xlsx"
)

// AdapterConfig configures an Adapter.
type AdapterConfig struct {
	State           *State
	Forwarder       domain.Forwarder
	PairingCodePath string
	GuestListPath   string
	SpreadsheetExt  string
	QRWriter        io.Writer // terminal for pairing codes; nil disables rendering
	Logger          *slog.Logger
}

// Adapter consumes session events.
type Adapter struct {
	state           *State
	forwarder       domain.Forwarder
	pairingCodePath string
	guestListPath   string
	spreadsheetExt  string
	qrWriter        io.Writer
	logger          *slog.Logger
}

func NewAdapter(cfg AdapterConfig) *Adapter {
	if cfg.State == nil {
		cfg.State = NewState()
	}
	if cfg.PairingCodePath == "" {
		cfg.PairingCodePath = DefaultPairingCodePath
	}
	if cfg.GuestListPath == "" {
		cfg.GuestListPath = DefaultGuestListPath
	}
	if cfg.SpreadsheetExt == "" {
		cfg.SpreadsheetExt = DefaultSpreadsheetExt
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Adapter{
		state:           cfg.State,
		forwarder:       cfg.Forwarder,
		pairingCodePath: cfg.PairingCodePath,
		guestListPath:   cfg.GuestListPath,
		spreadsheetExt:  cfg.SpreadsheetExt,
		qrWriter:        cfg.QRWriter,
		logger:          cfg.Logger,
	}
}

// State returns the readiness holder shared with the gateway.
func (a *Adapter) State() *State { return a.state }

// Dispatch handles one session event. Only pairing-code persistence can fail;
// inbound message faults are logged and swallowed.
func (a *Adapter) Dispatch(ctx context.Context, ev domain.Event) error {
	switch ev := ev.(type) {
	case domain.PairingCodeIssued:
		return a.handlePairingCode(ev)
	case domain.SessionReady:
		a.handleReady()
		return nil
	case domain.MessageReceived:
		a.handleMessage(ctx, ev)
		return nil
	default:
		return fmt.Errorf("unknown session event %T", ev)
	}
}

func (a *Adapter) handlePairingCode(ev domain.PairingCodeIssued) error {
	metrics.PairingCodes.Inc()
	a.logger.Info("pairing code issued, scan it with WhatsApp on your phone", "file", a.pairingCodePath)
	renderQR(a.qrWriter, ev.Code)

	if err := writeFileAtomic(a.pairingCodePath, []byte(ev.Code)); err != nil {
		return fmt.Errorf("save pairing code: %w", err)
	}
	return nil
}

func (a *Adapter) handleReady() {
	if a.state.MarkReady() {
		a.logger.Info("whatsapp session ready")
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg domain.MessageReceived) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("inbound message panic", "from", msg.From, "id", msg.ID, "panic", r)
		}
	}()

	metrics.InboundMessages.Inc()
	a.logger.Info("message received",
		"from", msg.From, "id", msg.ID, "body_len", len(msg.Body), "has_media", msg.HasMedia)

	if err := a.processMessage(ctx, msg); err != nil {
		a.logger.Error("process inbound message", "from", msg.From, "id", msg.ID, "err", err)
	}
}

// processMessage saves spreadsheet uploads and forwards the message. An error
// abandons the message before the generic forward.
func (a *Adapter) processMessage(ctx context.Context, msg domain.MessageReceived) error {
	sender := domain.StripAddress(msg.From)

	if msg.HasMedia && msg.Attachment != nil {
		media, err := msg.Attachment.Download(ctx)
		if err != nil {
			return fmt.Errorf("download media: %w", err)
		}

		if IsGuestList(media, a.spreadsheetExt) {
			if err := writeFileAtomic(a.guestListPath, media.Data); err != nil {
				return fmt.Errorf("save guest list: %w", err)
			}
			metrics.GuestListUploads.Inc()
			a.logger.Info("guest list received", "from", sender, "file", a.guestListPath, "bytes", len(media.Data))
			a.forward(domain.RouteSpreadsheet, domain.SpreadsheetNotice{From: sender})
		}
	}

	a.forward(domain.RouteEvent, domain.InboundEvent{
		From:     sender,
		Body:     msg.Body,
		HasMedia: msg.HasMedia,
	})
	return nil
}

func (a *Adapter) forward(route domain.Route, payload any) {
	if a.forwarder == nil {
		return
	}
	a.forwarder.Forward(route, payload)
}
