// Package forward delivers inbound session events to the downstream backend.
// Delivery is best-effort: payloads are queued without blocking, sent once by a
// fixed worker pool, and dropped with a log line on any failure.
package forward

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"warelay/internal/domain"
	"warelay/internal/metrics"

	"github.com/google/uuid"
)

const (
	defaultQueueSize = 256
	defaultWorkers   = 4

	// SignatureHeader carries the HMAC-SHA256 of the body when a secret is set.
	SignatureHeader = "X-Signature-256"
)

// Config configures a Forwarder.
type Config struct {
	BaseURL   string                  // e.g. http://localhost:5000
	Routes    map[domain.Route]string // route -> path
	Secret    string                  // optional HMAC secret
	QueueSize int
	Workers   int
	Timeout   time.Duration // 0 = no client timeout
	Client    *http.Client  // overrides Timeout when set
	Logger    *slog.Logger
}

// Forwarder is a bounded fire-and-forget queue of downstream POSTs.
type Forwarder struct {
	baseURL string
	routes  map[domain.Route]string
	secret  string
	client  *http.Client
	logger  *slog.Logger

	jobs   chan job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

type job struct {
	id    string
	route domain.Route
	url   string
	body  []byte
}

// New creates a Forwarder and starts its workers.
func New(cfg Config) *Forwarder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	client := cfg.Client
	if client == nil {
		client = newHTTPClient(cfg.Timeout)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	f := &Forwarder{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		routes:  cfg.Routes,
		secret:  cfg.Secret,
		client:  client,
		logger:  logger,
		jobs:    make(chan job, cfg.QueueSize),
	}

	f.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go f.worker()
	}
	return f
}

// Forward queues payload for delivery to route. It never blocks: when the
// queue is full, or the forwarder is closed, the payload is dropped.
func (f *Forwarder) Forward(route domain.Route, payload any) bool {
	path, ok := f.routes[route]
	if !ok {
		f.logger.Error("forward: unknown route", "route", route)
		metrics.ForwardDropped.WithLabelValues(string(route), "unknown_route").Inc()
		return false
	}

	body, err := json.Marshal(payload)
	if err != nil {
		f.logger.Error("forward: marshal payload", "route", route, "err", err)
		metrics.ForwardDropped.WithLabelValues(string(route), "marshal").Inc()
		return false
	}

	j := job{
		id:    uuid.NewString(),
		route: route,
		url:   f.baseURL + path,
		body:  body,
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		f.logger.Warn("forward: queue closed, payload dropped", "route", route)
		metrics.ForwardDropped.WithLabelValues(string(route), "closed").Inc()
		return false
	}

	select {
	case f.jobs <- j:
		return true
	default:
		f.logger.Error("forward: queue full, payload dropped", "route", route, "job", j.id)
		metrics.ForwardDropped.WithLabelValues(string(route), "queue_full").Inc()
		return false
	}
}

// Close stops accepting payloads and waits for queued ones to be attempted.
func (f *Forwarder) Close() {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.jobs)
	}
	f.mu.Unlock()
	f.wg.Wait()
	f.client.CloseIdleConnections()
}

func (f *Forwarder) worker() {
	defer f.wg.Done()
	for j := range f.jobs {
		f.deliver(j)
	}
}

// deliver performs one POST. Failures are logged and counted, never retried.
func (f *Forwarder) deliver(j job) {
	start := time.Now()
	if err := f.post(context.Background(), j); err != nil {
		result := "error"
		var se *statusError
		if errors.As(err, &se) {
			result = "status"
		}
		metrics.ForwardedTotal.WithLabelValues(string(j.route), result).Inc()
		f.logger.Error("forward failed", "route", j.route, "url", j.url, "job", j.id, "err", err)
		return
	}
	metrics.ForwardedTotal.WithLabelValues(string(j.route), "ok").Inc()
	f.logger.Debug("forwarded", "route", j.route, "job", j.id, "latency_ms", time.Since(start).Milliseconds())
}

func (f *Forwarder) post(ctx context.Context, j job) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(j.body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", j.id)
	if f.secret != "" {
		req.Header.Set(SignatureHeader, Sign(j.body, f.secret))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: string(snippet)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return "downstream " + strconv.Itoa(e.code) + ": " + e.body
}

// Sign returns the X-Signature-256 value for body: "sha256=" + hex(HMAC-SHA256).
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
