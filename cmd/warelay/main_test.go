package main

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"warelay/internal/config"
	"warelay/internal/domain"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(config.LogConfig{Level: "info", Format: "json"}, &buf)
	l.Info("hello", "k", "v")
	l.Debug("hidden")

	out := buf.String()
	if !strings.HasPrefix(out, "{") || !strings.Contains(out, `"k":"v"`) {
		t.Fatalf("expected JSON line, got %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatal("debug line should be filtered at info level")
	}
}

func TestRoutes(t *testing.T) {
	r := routes(config.Defaults().Downstream)
	if r[domain.RouteEvent] != "/webhook" {
		t.Errorf("event route: %q", r[domain.RouteEvent])
	}
	if r[domain.RouteSpreadsheet] != "/process-excel" {
		t.Errorf("spreadsheet route: %q", r[domain.RouteSpreadsheet])
	}
}

func TestRenderService(t *testing.T) {
	unit := renderService(systemdTemplate, map[string]string{
		"EXEC":    "/usr/local/bin/warelay",
		"CONFIG":  "/home/u/.warelay/config.json",
		"WORKDIR": "/home/u/.warelay",
	})
	if !strings.Contains(unit, "ExecStart=/usr/local/bin/warelay serve --config /home/u/.warelay/config.json") {
		t.Fatalf("unexpected unit:\n%s", unit)
	}
	if strings.Contains(unit, "{{") {
		t.Fatalf("unreplaced placeholder:\n%s", unit)
	}
}

func TestServicePath(t *testing.T) {
	if p, err := servicePath("/home/u", "linux"); err != nil || p != "/home/u/.config/systemd/user/warelay.service" {
		t.Fatalf("linux: %q, %v", p, err)
	}
	if _, err := servicePath("/home/u", "plan9"); err == nil {
		t.Fatal("expected error for unsupported OS")
	}
}

func TestStatusCmd_Wait(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ready","message":"WhatsApp client connected"}`))
	}))
	defer srv.Close()
	defer func() { relayURL = "" }()

	cmd := statusCmd()
	cmd.SetArgs([]string{"--url", srv.URL, "--wait", "5s"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("status: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected a readiness poll then a status call, got %d requests", n)
	}
}
