package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/openpantry/gatekeeper/internal/classify"
	"github.com/openpantry/gatekeeper/internal/model"
	"github.com/openpantry/gatekeeper/internal/rules"
)

var (
	checkRules     string
	checkUserAgent string
	checkPath      string
	checkBody      string
	checkSource    string
	checkHeaders   []string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkRules, "rules", "", "Path to rule table YAML (optional, defaults apply)")
	checkCmd.Flags().StringVar(&checkUserAgent, "user-agent", "", "User-Agent header value")
	checkCmd.Flags().StringVar(&checkPath, "path", "/", "Request path")
	checkCmd.Flags().StringVar(&checkBody, "body", "", "Request body")
	checkCmd.Flags().StringVar(&checkSource, "source", "", "Source identifier")
	checkCmd.Flags().StringArrayVarP(&checkHeaders, "header", "H", nil, "Extra header as name:value (repeatable)")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Classify a single request and print the verdict",
	Long: "Builds a request from flags, runs it through the classifier, and\n" +
		"prints the verdict as JSON. Stateless: the offender tracker is not\n" +
		"consulted or updated.\n\n" +
		"Use this to test rule changes against a known request shape.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, hash, err := rules.LoadWithHash(checkRules)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	headers := map[string]string{}
	if checkUserAgent != "" {
		headers["user-agent"] = checkUserAgent
	}
	for _, h := range checkHeaders {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("invalid header %q, expected name:value", h)
		}
		headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}

	verdict := classify.New(cfg).Classify(model.RequestFacts{
		Method:     "GET",
		Path:       checkPath,
		Headers:    headers,
		Body:       checkBody,
		SourceID:   checkSource,
		ReceivedAt: time.Now().UTC(),
	})

	out, err := json.MarshalIndent(struct {
		Verdict   model.Verdict `json:"verdict"`
		RulesHash string        `json:"rules_hash"`
	}{verdict, hash}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
