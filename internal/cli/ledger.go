package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openpantry/gatekeeper/internal/ledger"
)

var tailLines int

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerVerifyCmd)
	ledgerCmd.AddCommand(ledgerTailCmd)
	ledgerTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Decision ledger operations",
	Long:  "Commands for verifying and inspecting the hash-chained decision ledger.",
}

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of a decision ledger",
	Long:  "Walks the JSONL ledger and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerVerify,
}

var ledgerTailCmd = &cobra.Command{
	Use:   "tail <path>",
	Short: "Show recent ledger entries",
	Long:  "Reads the last N entries from the JSONL ledger and pretty-prints them.",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerTail,
}

func runLedgerVerify(cmd *cobra.Command, args []string) error {
	result := ledger.Verify(args[0])
	if result.Valid {
		fmt.Printf("OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	os.Exit(1)
	return nil
}

func runLedgerTail(cmd *cobra.Command, args []string) error {
	var entries []ledger.Entry
	err := ledger.Replay(args[0], func(e ledger.Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}

	start := len(entries) - tailLines
	if start < 0 {
		start = 0
	}
	for _, e := range entries[start:] {
		out, _ := json.MarshalIndent(e, "", "  ")
		fmt.Println(string(out))
	}
	return nil
}
