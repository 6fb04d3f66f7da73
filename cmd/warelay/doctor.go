package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your warelay installation",
		Long: `Verifies the configuration, the session store, the gateway port and the
downstream backend. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("warelay doctor v%s\n\n", version)

			var passed, failed, warned int

			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s, using defaults and environment", cfgPath))
				warned++
			} else {
				printPass("Config file", cfgPath)
				passed++
			}

			cfg, err := loadConfig()
			if err != nil {
				printFail("Config validation", err.Error())
				fmt.Printf("\n%d passed, %d warnings, 1 failed\n", passed, warned)
				return fmt.Errorf("invalid config")
			}
			printPass("Config validation", "valid")
			passed++

			if linked, err := checkSessionStore(cmd.Context(), cfg.Session.StorePath); err != nil {
				printFail("Session store", err.Error())
				failed++
			} else if !linked {
				printWarn("Session store", cfg.Session.StorePath+" (no linked device, serve will print a QR code)")
				warned++
			} else {
				printPass("Session store", cfg.Session.StorePath+" (device linked)")
				passed++
			}

			if err := checkWritableDir(cfg.Files.GuestList); err != nil {
				printFail("Guest list file", err.Error())
				failed++
			} else {
				printPass("Guest list file", cfg.Files.GuestList)
				passed++
			}

			if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
				printWarn("Gateway port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
				warned++
			} else {
				printPass("Gateway port", fmt.Sprintf(":%d available", cfg.Server.Port))
				passed++
			}

			if err := checkDownstream(cmd.Context(), cfg.Downstream.URL); err != nil {
				printWarn("Downstream", fmt.Sprintf("%s not reachable: %v", cfg.Downstream.URL, err))
				warned++
			} else {
				printPass("Downstream", cfg.Downstream.URL)
				passed++
			}

			if cfg.Admin.Number != "" {
				printWarn("Admin number", "set but not used by any feature")
				warned++
			}

			fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

// checkSessionStore opens the device store database, proves it is writable
// and reports whether a device has been linked.
func checkSessionStore(ctx context.Context, dbPath string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return false, fmt.Errorf("cannot create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return false, fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return false, fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return false, fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	// The table only exists once serve has upgraded the store.
	var devices int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM whatsmeow_device").Scan(&devices); err != nil {
		return false, nil
	}
	return devices > 0, nil
}

func checkWritableDir(path string) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".warelay-doctor-*")
	if err != nil {
		return fmt.Errorf("directory %s not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return ln.Close()
}

// checkDownstream only proves something answers HTTP; any status counts.
func checkDownstream(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
