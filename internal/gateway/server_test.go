package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"warelay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentText struct {
	to, text string
}

type sentMedia struct {
	to      string
	media   domain.Media
	caption string
}

type fakeSession struct {
	mu     sync.Mutex
	texts  []sentText
	medias []sentMedia
	err    error
}

func (f *fakeSession) SendText(ctx context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, sentText{to, text})
	return f.err
}

func (f *fakeSession) SendMedia(ctx context.Context, to string, media domain.Media, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.medias = append(f.medias, sentMedia{to, media, caption})
	return f.err
}

func (f *fakeSession) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts) + len(f.medias)
}

type fakeReadiness struct{ ready atomic.Bool }

func (r *fakeReadiness) Ready() bool { return r.ready.Load() }

func newTestServer(t *testing.T, ready bool) (*fakeSession, *fakeReadiness, http.Handler) {
	t.Helper()
	sess := &fakeSession{}
	rd := &fakeReadiness{}
	rd.ready.Store(ready)
	srv := New(Config{
		Session:     sess,
		Readiness:   rd,
		MetricsPath: "/metrics",
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return sess, rd, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestSendMessage_NotReady(t *testing.T) {
	sess, _, h := newTestServer(t, false)

	rec, resp := do(t, h, http.MethodPost, "/send-message", `{"number":"5551234567","message":"hi"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "WhatsApp client is not ready. Please scan the QR code.", resp.Message)
	assert.Zero(t, sess.calls())
}

func TestSendMessage_NotReadyBeforeValidation(t *testing.T) {
	sess, _, h := newTestServer(t, false)

	rec, _ := do(t, h, http.MethodPost, "/send-message", `not json`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Zero(t, sess.calls())
}

func TestSendMessage_Success(t *testing.T) {
	sess, _, h := newTestServer(t, true)

	rec, resp := do(t, h, http.MethodPost, "/send-message", `{"number":"5551234567","message":"hello"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", resp.Status)
	require.Len(t, sess.texts, 1)
	assert.Equal(t, sentText{"5551234567@c.us", "hello"}, sess.texts[0])
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestSendMessage_AlreadyNormalized(t *testing.T) {
	sess, _, h := newTestServer(t, true)

	rec, _ := do(t, h, http.MethodPost, "/send-message", `{"number":"5551234567@c.us","message":"x"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sess.texts, 1)
	assert.Equal(t, "5551234567@c.us", sess.texts[0].to)
}

func TestSendMessage_SessionFault(t *testing.T) {
	sess, _, h := newTestServer(t, true)
	sess.err = errors.New("socket closed")

	rec, resp := do(t, h, http.MethodPost, "/send-message", `{"number":"1","message":"x"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "socket closed", resp.Message)
	assert.Len(t, sess.texts, 1, "faults are not retried")
}

func TestSendMessage_BadRequests(t *testing.T) {
	cases := map[string]string{
		"invalid json":   `{"number":`,
		"missing number": `{"message":"hi"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			sess, _, h := newTestServer(t, true)
			rec, resp := do(t, h, http.MethodPost, "/send-message", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "error", resp.Status)
			assert.Zero(t, sess.calls())
		})
	}
}

func TestSendFile_NotReady(t *testing.T) {
	sess, _, h := newTestServer(t, false)

	rec, resp := do(t, h, http.MethodPost, "/send-file", `{"number":"1","filePath":"/nope"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "error", resp.Status)
	assert.Zero(t, sess.calls())
}

func TestSendFile_Missing(t *testing.T) {
	sess, _, h := newTestServer(t, true)
	path := filepath.Join(t.TempDir(), "missing.pdf")

	body, _ := json.Marshal(SendFileRequest{Number: "1", FilePath: path})
	rec, resp := do(t, h, http.MethodPost, "/send-file", string(body))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "file not found: "+path, resp.Message)
	assert.Zero(t, sess.calls())
}

func TestSendFile_Success(t *testing.T) {
	sess, _, h := newTestServer(t, true)
	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0o644))

	body, _ := json.Marshal(SendFileRequest{Number: "5551234567", FilePath: path, Caption: "monthly"})
	rec, resp := do(t, h, http.MethodPost, "/send-file", string(body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", resp.Status)
	require.Len(t, sess.medias, 1)
	got := sess.medias[0]
	assert.Equal(t, "5551234567@c.us", got.to)
	assert.Equal(t, "monthly", got.caption)
	assert.Equal(t, "report.pdf", got.media.Filename)
	assert.Equal(t, "application/pdf", got.media.MimeType)
	assert.Equal(t, []byte("%PDF-1.4 test"), got.media.Data)
}

func TestSendFile_SessionFault(t *testing.T) {
	sess, _, h := newTestServer(t, true)
	sess.err = errors.New("upload failed")
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	body, _ := json.Marshal(SendFileRequest{Number: "1", FilePath: path})
	rec, resp := do(t, h, http.MethodPost, "/send-file", string(body))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "upload failed", resp.Message)
}

func TestStatus(t *testing.T) {
	_, rd, h := newTestServer(t, false)

	rec, resp := do(t, h, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, response{Status: "not_ready", Message: "WhatsApp client not connected"}, resp)

	rd.ready.Store(true)
	rec, resp = do(t, h, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, response{Status: "ready", Message: "WhatsApp client connected"}, resp)
}

func TestHealthz(t *testing.T) {
	_, _, h := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	_, _, h := newTestServer(t, true)
	do(t, h, http.MethodGet, "/status", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "warelay_http_request_duration_seconds")
}

func TestRateLimit(t *testing.T) {
	sess := &fakeSession{}
	rd := &fakeReadiness{}
	rd.ready.Store(true)
	h := New(Config{
		Session:            sess,
		Readiness:          rd,
		RateLimitPerMinute: 2,
		Logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	}).Handler()

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/send-message", bytes.NewBufferString(`{"number":"1","message":"x"}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Len(t, sess.texts, 2)
}

func TestLoadMedia_SniffsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob.unknownext")
	require.NoError(t, os.WriteFile(path, []byte("plain words"), 0o644))

	m, err := loadMedia(path)
	require.NoError(t, err)
	assert.Equal(t, "blob.unknownext", m.Filename)
	assert.True(t, strings.HasPrefix(m.MimeType, "text/plain"))
}

func TestSendRoutes_NotReadyBeatsRateLimit(t *testing.T) {
	sess := &fakeSession{}
	h := New(Config{
		Session:            sess,
		Readiness:          &fakeReadiness{},
		RateLimitPerMinute: 2,
		Logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	}).Handler()

	counts := map[int]int{}
	for i := range 10 {
		path := "/send-message"
		if i%2 == 1 {
			path = "/send-file"
		}
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"number":"1","message":"x","filePath":"/tmp/x"}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		counts[rec.Code]++
	}

	assert.Equal(t, map[int]int{http.StatusServiceUnavailable: 10}, counts)
	assert.Zero(t, sess.calls())
}

func TestObserve_RecordsWrittenStatus(t *testing.T) {
	_, _, h := newTestServer(t, false)
	do(t, h, http.MethodPost, "/send-message", `{"number":"1","message":"x"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), `path="/send-message",status="503"`)
}
