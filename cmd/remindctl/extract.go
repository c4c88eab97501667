package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/remindd/internal/commitment"
	"github.com/fyrsmithlabs/remindd/internal/dateparse"
)

var (
	extractReference string
	analyzeReference string
)

func init() {
	extractCmd.Flags().StringVar(&extractReference, "reference", "", "reference date as YYYY-MM-DD (default: today, UTC)")
	analyzeCmd.Flags().StringVar(&analyzeReference, "reference", "", "reference date as YYYY-MM-DD (default: today, UTC)")
}

// extractCmd runs the date extractor locally, without a daemon
var extractCmd = &cobra.Command{
	Use:   "extract [text]",
	Short: "Extract a future date from text",
	Long: `Extract a future date from text using the same recognizers the daemon
runs. Only dates strictly after the reference day qualify. Runs entirely
offline.

Examples:
  # Extract from an argument
  remindctl extract "I will submit the report by 2025-09-01"

  # Extract from stdin
  echo "gym on 2025-08-15" | remindctl extract -

  # Anchor "future" at a specific day
  remindctl extract --reference 2025-08-10 "gym on 2025-08-15"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

// analyzeCmd runs the keyword commitment analyzer locally
var analyzeCmd = &cobra.Command{
	Use:   "analyze [text]",
	Short: "Analyze text for a commitment with a future date",
	Long: `Analyze text for a commitment using the deterministic keyword strategy.
Model-backed analysis only runs inside the daemon; this command is its
offline fallback and useful for checking what the daemon would do
without model access.

Examples:
  # Analyze an argument
  remindctl analyze "I promise to call the dentist on 2025-09-01"

  # Analyze from stdin
  cat message.txt | remindctl analyze -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

// resolveReference parses a --reference flag value, defaulting to the
// current UTC day.
func resolveReference(value string) (time.Time, error) {
	if value == "" {
		return time.Now().UTC(), nil
	}
	ref, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid reference date %q (want YYYY-MM-DD): %w", value, err)
	}
	return ref, nil
}

// runExtract handles the extract command
func runExtract(cmd *cobra.Command, args []string) error {
	text, err := readTextInput(args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("no text to extract from")
	}

	ref, err := resolveReference(extractReference)
	if err != nil {
		return err
	}

	result := dateparse.Extract(text, ref)
	if !result.HasDate {
		fmt.Println("No future date found.")
		return nil
	}

	fmt.Printf("Date:       %s\n", result.DateISO)
	fmt.Printf("Confidence: %.2f\n", result.Confidence)
	fmt.Printf("Matched:    %q\n", result.MatchedSpan)

	return nil
}

// runAnalyze handles the analyze command
func runAnalyze(cmd *cobra.Command, args []string) error {
	text, err := readTextInput(args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("no text to analyze")
	}

	ref, err := resolveReference(analyzeReference)
	if err != nil {
		return err
	}

	analyzer := commitment.NewKeywordAnalyzer()
	result, err := analyzer.Analyze(cmd.Context(), text, ref)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if !result.HasCommitment {
		fmt.Println("No commitment found.")
		return nil
	}

	fmt.Printf("Commitment: %q\n", result.Commitment.Text)
	fmt.Printf("Date:       %s\n", result.Commitment.DateISO)
	fmt.Printf("Confidence: %.2f\n", result.Commitment.Confidence)
	fmt.Printf("Matched:    %q\n", result.Commitment.MatchedSpan)

	return nil
}
