package channel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"warelay/internal/domain"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"
)

const defaultStorePath = "whatsapp-bot.db"

// WhatsAppConfig configures the WhatsApp session.
type WhatsAppConfig struct {
	StorePath       string // SQLite file holding the linked-device credentials
	DeviceName      string // shown in the phone's linked devices list
	LibraryLogLevel string // debug | info | warn | error
	Logger          *slog.Logger
}

// conn is the part of the whatsmeow client that drives the session lifecycle.
type conn interface {
	AddEventHandler(handler whatsmeow.EventHandler) uint32
	GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error)
	Connect() error
	Disconnect()
}

// WhatsApp implements domain.Session on top of a whatsmeow client and turns
// library events into domain events.
type WhatsApp struct {
	cfg    WhatsAppConfig
	logger *slog.Logger
	db     io.Closer
	client *whatsmeow.Client
	conn   conn
	dl     downloader
	paired func() bool

	ctx    context.Context
	handle domain.EventHandler
	wg     sync.WaitGroup

	mu       sync.Mutex
	stopping bool
	stopOnce sync.Once
	stopErr  error
}

// NewWhatsApp opens (or creates) the device store and prepares a client.
func NewWhatsApp(ctx context.Context, cfg WhatsAppConfig) (*WhatsApp, error) {
	if cfg.StorePath == "" {
		cfg.StorePath = defaultStorePath
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DeviceName != "" {
		store.DeviceProps.Os = proto.String(cfg.DeviceName)
	}

	if dir := filepath.Dir(cfg.StorePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create session store directory: %w", err)
		}
	}

	libLog := newLibraryLogger(cfg.Logger, cfg.LibraryLogLevel)

	db, err := sql.Open("sqlite", storeDSN(cfg.StorePath))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	container := sqlstore.NewWithDB(db, "sqlite3", libLog.Sub("Database"))
	if err := container.Upgrade(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("upgrade session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	client := whatsmeow.NewClient(device, libLog.Sub("Client"))
	return &WhatsApp{
		cfg:    cfg,
		logger: cfg.Logger,
		db:     db,
		client: client,
		conn:   client,
		dl:     client,
		paired: func() bool { return client.Store.ID != nil },
	}, nil
}

func storeDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Start connects the session and delivers events to handle until ctx is done.
// When the store holds no credentials, pairing codes are emitted first and a
// fresh pairing round is started whenever one times out without a scan.
func (w *WhatsApp) Start(ctx context.Context, handle domain.EventHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.ctx = ctx
	w.handle = handle
	w.conn.AddEventHandler(w.onEvent)

	w.logger.Info("connecting whatsapp session", "store", w.cfg.StorePath, "paired", w.paired())
	if err := w.connect(ctx); err != nil {
		cancel()
		return errors.Join(err, w.Stop())
	}

	<-ctx.Done()
	w.logger.Info("whatsapp session shutting down")
	return w.Stop()
}

// connect opens the socket, first arming a pairing watcher when unpaired.
func (w *WhatsApp) connect(ctx context.Context) error {
	if !w.paired() {
		qrChan, err := w.conn.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}
		if !w.spawn(func() { w.watchPairing(ctx, qrChan) }) {
			return nil
		}
	}
	if err := w.conn.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Stop disconnects, waits for in-flight event handlers and closes the store.
// It is safe to call more than once.
func (w *WhatsApp) Stop() error {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopping = true
		w.mu.Unlock()

		w.conn.Disconnect()
		w.wg.Wait()
		if err := w.db.Close(); err != nil {
			w.stopErr = fmt.Errorf("close session store: %w", err)
		}
	})
	return w.stopErr
}

// spawn runs fn on a tracked goroutine unless Stop has begun.
func (w *WhatsApp) spawn(fn func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopping {
		return false
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn()
	}()
	return true
}

func (w *WhatsApp) watchPairing(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	timedOut := false
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			w.emit(domain.PairingCodeIssued{Code: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			w.logger.Info("device linked")
		case whatsmeow.QRChannelTimeout.Event:
			timedOut = true
		case whatsmeow.QRChannelEventError:
			w.logger.Error("pairing failed", "err", item.Error)
		default:
			w.logger.Warn("pairing event", "event", item.Event)
		}
	}

	if !timedOut || ctx.Err() != nil || w.paired() {
		return
	}
	w.logger.Warn("pairing timed out without a scan, issuing new codes")
	w.conn.Disconnect()
	if err := w.connect(ctx); err != nil {
		w.logger.Error("restart pairing", "err", err)
	}
}

func (w *WhatsApp) onEvent(evt any) {
	switch v := evt.(type) {
	case *events.Connected:
		w.emit(domain.SessionReady{})
	case *events.Message:
		if v.Info.IsFromMe {
			return
		}
		if isControlOnly(v.Message) {
			w.logger.Debug("skipping control message", "id", v.Info.ID, "chat", v.Info.Chat)
			return
		}
		msg := toMessageReceived(v, w.dl)
		// Media downloads must not stall the library's event loop.
		if !w.spawn(func() { w.emit(msg) }) {
			w.logger.Warn("session stopping, inbound message dropped", "id", msg.ID)
		}
	case *events.Disconnected:
		w.logger.Warn("whatsapp disconnected, library will reconnect")
	case *events.LoggedOut:
		w.logger.Error("whatsapp session logged out", "reason", v.Reason)
	}
}

func (w *WhatsApp) emit(ev domain.Event) {
	if w.handle == nil {
		return
	}
	if err := w.handle(w.ctx, ev); err != nil {
		w.logger.Error("session event handler", "event", domain.Kind(ev), "err", err)
	}
}

// SendText sends a text message to a relay address.
func (w *WhatsApp) SendText(ctx context.Context, to string, text string) error {
	jid, err := jidFromAddress(to)
	if err != nil {
		return err
	}
	if _, err := w.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)}); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendMedia uploads media and sends it with an optional caption.
func (w *WhatsApp) SendMedia(ctx context.Context, to string, media domain.Media, caption string) error {
	jid, err := jidFromAddress(to)
	if err != nil {
		return err
	}
	up, err := w.client.Upload(ctx, media.Data, mediaTypeFor(media.MimeType))
	if err != nil {
		return fmt.Errorf("upload media: %w", err)
	}
	if _, err := w.client.SendMessage(ctx, jid, buildMediaMessage(media, caption, up)); err != nil {
		return fmt.Errorf("send media: %w", err)
	}
	return nil
}
