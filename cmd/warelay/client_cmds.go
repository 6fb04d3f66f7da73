package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"warelay/internal/client"

	"github.com/spf13/cobra"
)

var relayURL string

// relayClient targets --url, or the locally configured gateway port.
func relayClient() *client.Client {
	base := relayURL
	if base == "" {
		port := 3000
		if cfg, err := loadConfig(); err == nil {
			port = cfg.Server.Port
		}
		base = fmt.Sprintf("http://localhost:%d", port)
	}
	return client.New(client.Config{BaseURL: base, Logger: logger})
}

func addRelayFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&relayURL, "url", "", "relay base URL (default: http://localhost:<server.port>)")
}

func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [number] [message]",
		Short: "Send a text through a running relay",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			resp, err := relayClient().SendMessage(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println(resp.Message)
			return nil
		},
	}
	addRelayFlag(cmd)
	return cmd
}

func sendFileCmd() *cobra.Command {
	var caption string
	cmd := &cobra.Command{
		Use:   "send-file [number] [path]",
		Short: "Send a file through a running relay",
		Long:  "The path is resolved on the relay's host, so relative paths are made absolute first.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			resp, err := relayClient().SendFile(ctx, args[0], path, caption)
			if err != nil {
				return err
			}
			fmt.Println(resp.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&caption, "caption", "", "caption shown with the file")
	addRelayFlag(cmd)
	return cmd
}

func statusCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a running relay's session is ready",
		RunE: func(cmd *cobra.Command, args []string) error {
			rc := relayClient()
			if wait > 0 {
				ctx, cancel := context.WithTimeout(cmd.Context(), wait)
				defer cancel()
				if err := rc.WaitReady(ctx, 2*time.Second); err != nil {
					return err
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			resp, err := rc.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", resp.Status, resp.Message)
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "block until the session is ready, up to this long")
	addRelayFlag(cmd)
	return cmd
}
