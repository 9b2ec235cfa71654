package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openpantry/gatekeeper/internal/allocator"
	"github.com/openpantry/gatekeeper/internal/rules"
)

var initDir string

func init() {
	rootCmd.AddCommand(initRulesCmd)
	initRulesCmd.Flags().StringVar(&initDir, "dir", "", "Target directory (default ~/.gatekeeper)")
}

var initRulesCmd = &cobra.Command{
	Use:   "init-rules",
	Short: "Generate default rules.yaml and weights.yaml with comments",
	Long:  "Creates ~/.gatekeeper/rules.yaml and weights.yaml with the default rule\ntable, thresholds, and allocation weights. Edit these files and pass them\nto serve via --rules and --weights.",
	RunE:  runInitRules,
}

func runInitRules(cmd *cobra.Command, args []string) error {
	dir := initDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, ".gatekeeper")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	files := []struct {
		name    string
		content string
	}{
		{"rules.yaml", rules.DefaultConfigYAML()},
		{"weights.yaml", allocator.DefaultConfigYAML()},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists at %s", f.name, path)
		}
		if err := os.WriteFile(path, []byte(f.content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.name, err)
		}
		fmt.Printf("Created %s\n", path)
	}
	return nil
}
