package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/model"
)

var (
	scoreFile   string
	scoreFormat string
	scoreOutput string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Validate and score a lead file without enrichment",
	Long: `Maps, validates, dedupes, and scores a lead file against the configured
rule set without calling any provider or sync target. Useful for tuning
rule weights against data already in hand.

Examples:
  # Print a score table to stdout
  score --file leads.csv

  # Export scores to CSV
  score --file leads.xlsx --format csv --output scores.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if scoreFormat != "table" && scoreFormat != "csv" {
			return eris.Errorf("score: --format must be table or csv (got %q)", scoreFormat)
		}

		runner, err := buildRunner(nil, nil)
		if err != nil {
			return err
		}

		result, err := runner.RunFile(cmd.Context(), scoreFile)
		if err != nil {
			return err
		}

		if err := outputScores(result.Accepted, scoreFormat, scoreOutput); err != nil {
			return err
		}

		if len(result.Rejected) > 0 {
			fmt.Printf("\n%d record(s) rejected:\n", len(result.Rejected))
			for _, r := range result.Rejected {
				fmt.Printf("  row %d: %s\n", r.Record.Provenance.RowIndex, r.Reason)
			}
		}
		return nil
	},
}

func outputScores(records []model.LeadRecord, format, outputPath string) error {
	w := os.Stdout
	if outputPath != "" {
		var err error
		w, err = os.Create(outputPath)
		if err != nil {
			return eris.Wrapf(err, "score: create output file %s", outputPath)
		}
		defer w.Close() //nolint:errcheck
	}

	switch format {
	case "csv":
		return writeScoreCSV(w, records)
	default:
		return writeScoreTable(w, records)
	}
}

func writeScoreCSV(w *os.File, records []model.LeadRecord) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"name", "company", "email", "title", "priority", "rule_labels"}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "score: write CSV header")
	}

	for _, r := range records {
		row := []string{
			r.FullName(),
			r.Company,
			r.BestEmail(),
			r.Enrichment.Title,
			fmt.Sprintf("%.1f", r.Priority),
			strings.Join(r.RuleLabels, ";"),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "score: write CSV row")
		}
	}
	return nil
}

func writeScoreTable(w *os.File, records []model.LeadRecord) error {
	header := fmt.Sprintf("%-25s %-25s %-30s %8s  %s\n",
		"Name", "Company", "Email", "Score", "Labels")
	if _, err := fmt.Fprint(w, header); err != nil {
		return eris.Wrap(err, "score: write table header")
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", 100)); err != nil {
		return eris.Wrap(err, "score: write table separator")
	}

	for _, r := range records {
		name := truncate(r.FullName(), 25)
		company := truncate(r.Company, 25)
		line := fmt.Sprintf("%-25s %-25s %-30s %8.1f  %s\n",
			name, company, r.BestEmail(), r.Priority, strings.Join(r.RuleLabels, ", "))
		if _, err := fmt.Fprint(w, line); err != nil {
			return eris.Wrap(err, "score: write table row")
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	scoreCmd.Flags().StringVar(&scoreFile, "file", "", "lead file to score, CSV or XLSX (required)")
	scoreCmd.Flags().StringVar(&scoreFormat, "format", "table", "output format: table or csv")
	scoreCmd.Flags().StringVar(&scoreOutput, "output", "", "output file path (default: stdout)")
	_ = scoreCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(scoreCmd)
}
