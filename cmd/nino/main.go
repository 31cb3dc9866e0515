package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"nino/internal/config"
	"nino/internal/logging"
)

const (
	programName = "nino"
	version     = "0.1.0"
)

func main() {
	defer panicHook()

	var dsnFlag string
	root := &cobra.Command{
		Use:   programName + " [connection-string]",
		Short: "nino runs a database-resident JavaScript application server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var positional string
			if len(args) == 1 {
				positional = args[0]
			}
			if dsnFlag != "" {
				positional = dsnFlag
			}
			return run(cmd.Context(), positional)
		},
	}
	root.Flags().StringVar(&dsnFlag, "dsn", "", "Postgres connection string (overrides the positional argument)")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, positional string) error {
	logging.InitStructured("text", "info")

	connString, ok := config.ConnStringFromArgs(positional, os.Getenv("NINO"))
	if !ok {
		return fmt.Errorf("nino: connection string required (positional arg or NINO env var)")
	}

	proc, err := boot(ctx, connString)
	if err != nil {
		return fmt.Errorf("nino: boot: %w", err)
	}
	logging.Op().Info("nino started", "web_addr", proc.webAddr, "isolates", proc.pool.Size())

	<-ctx.Done()
	logging.Op().Info("shutdown signal received")
	proc.shutdown()
	return nil
}

// panicHook logs a diagnostic line and exits 1 on a panic; there is no
// recovery. It is deferred in main, so it covers panics on the main
// goroutine only; a panic in another goroutine ends the process through
// the Go runtime without this line.
func panicHook() {
	if r := recover(); r != nil {
		logging.Op().Error("fatal panic",
			"program", programName,
			"version", version,
			"panic", r,
			"os", runtime.GOOS,
			"arch", runtime.GOARCH,
		)
		os.Exit(1)
	}
}
