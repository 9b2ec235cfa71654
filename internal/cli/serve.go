package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openpantry/gatekeeper/internal/server"
)

var (
	serveAddr    string
	serveRules   string
	serveWeights string
	serveLedger  string
	serveSweep   string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "HTTP listen address")
	serveCmd.Flags().StringVar(&serveRules, "rules", "", "Path to rule table YAML")
	serveCmd.Flags().StringVar(&serveWeights, "weights", "", "Path to allocation weights YAML")
	serveCmd.Flags().StringVar(&serveLedger, "ledger", "", "Path to decision ledger JSONL file")
	serveCmd.Flags().StringVar(&serveSweep, "sweep", "", "Cron spec for the eviction sweep (default @hourly)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gate server",
	Long:  "Runs the classification gate and project allocator over HTTP.\nSupports hot-reload of the rule table file.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	srv, err := server.New(server.Config{
		Addr:        serveAddr,
		RulesPath:   serveRules,
		WeightsPath: serveWeights,
		LedgerPath:  serveLedger,
		SweepSpec:   serveSweep,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	// Start hot-reload watcher for the rule table
	reloader, err := server.NewReloader(srv, []string{serveRules})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if reloader != nil {
		go reloader.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down gate server...")
		cancel()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		srv.GracefulStop(stopCtx)
	}()

	fmt.Fprintf(os.Stderr, "gatekeeper listening on %s\n", serveAddr)
	if serveRules != "" {
		fmt.Fprintf(os.Stderr, "Rules: %s (hot-reload enabled)\n", serveRules)
	}
	if serveLedger != "" {
		fmt.Fprintf(os.Stderr, "Ledger: %s\n", serveLedger)
	}
	fmt.Fprintln(os.Stderr)

	return srv.Serve()
}
