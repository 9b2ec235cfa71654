package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openpantry/gatekeeper/internal/sim"
)

var (
	simLog   string
	simRules string
)

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simLog, "log", "", "Path to recorded request log JSONL (replay mode)")
	simulateCmd.Flags().StringVar(&simRules, "rules", "", "Path to candidate rule table YAML (optional)")
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run synthetic traffic profiles or replay a request log",
	Long: "Without --log, drives the built-in traffic profiles (browser, scripted\n" +
		"client, commercial scraper, allowlisted crawler) through the gate and\n" +
		"reports per-profile outcomes.\n\n" +
		"With --log, replays a recorded request log against the given rule table\n" +
		"and shows which decisions changed. Use this to preview rule changes\n" +
		"before deploying them.",
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simLog != "" {
		result, err := sim.Replay(simLog, simRules)
		if err != nil {
			return err
		}
		fmt.Print(sim.FormatReplay(result))
		return nil
	}

	result, err := sim.Run(simRules, nil)
	if err != nil {
		return err
	}
	fmt.Print(sim.FormatRun(result))
	return nil
}
