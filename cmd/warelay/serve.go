package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"warelay/internal/channel"
	"warelay/internal/config"
	"warelay/internal/domain"
	"warelay/internal/forward"
	"warelay/internal/gateway"
	"warelay/internal/session"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Link the WhatsApp session and start the REST gateway",
		Long: `Connects the WhatsApp session (printing a QR code when the device is not
linked yet), starts the HTTP API and forwards incoming messages downstream.
Press Ctrl+C to stop.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = newLogger(cfg.Log, os.Stderr)

	if cfg.Admin.Number != "" {
		logger.Info("admin number configured but unused")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fwd := forward.New(forward.Config{
		BaseURL:   cfg.Downstream.URL,
		Routes:    routes(cfg.Downstream),
		Secret:    cfg.Downstream.Secret,
		QueueSize: cfg.Downstream.QueueSize,
		Workers:   cfg.Downstream.Workers,
		Timeout:   cfg.DownstreamTimeout(),
		Logger:    logger,
	})
	defer fwd.Close()

	adapter := session.NewAdapter(session.AdapterConfig{
		State:           session.NewState(),
		Forwarder:       fwd,
		PairingCodePath: cfg.Files.PairingCode,
		GuestListPath:   cfg.Files.GuestList,
		SpreadsheetExt:  cfg.Files.SpreadsheetExt,
		QRWriter:        os.Stdout,
		Logger:          logger,
	})

	wa, err := channel.NewWhatsApp(ctx, channel.WhatsAppConfig{
		StorePath:       cfg.Session.StorePath,
		DeviceName:      cfg.Session.DeviceName,
		LibraryLogLevel: cfg.Session.LibraryLogLevel,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("whatsapp session: %w", err)
	}

	var metricsPath string
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Endpoint
	}
	gw := gateway.New(gateway.Config{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		Session:            wa,
		Readiness:          adapter.State(),
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		MaxBodyBytes:       cfg.Server.MaxBodyBytes,
		MetricsPath:        metricsPath,
		Logger:             logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return wa.Start(gctx, adapter.Dispatch) })
	g.Go(func() error { return gw.Start(gctx) })

	logger.Info("warelay started", "version", version, "port", cfg.Server.Port, "downstream", cfg.Downstream.URL)
	err = g.Wait()
	logger.Info("warelay stopped")
	return err
}

func routes(cfg config.DownstreamConfig) map[domain.Route]string {
	return map[domain.Route]string{
		domain.RouteEvent:       cfg.EventPath,
		domain.RouteSpreadsheet: cfg.SpreadsheetPath,
	}
}
