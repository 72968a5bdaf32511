package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/outreach-cli/internal/model"
)

var snapshotHeader = []string{
	"First Name", "Last Name", "Company", "Email", "Email Confidence",
	"Title", "Company Size", "Industry", "LinkedIn URL",
	"Priority", "Rule Labels", "Status", "Failure Reason",
	"Source", "Enriched By", "Enriched At",
}

// XLSXSyncer writes the run's final records to a snapshot workbook.
type XLSXSyncer struct {
	Path string // output path; {run} expands to the run ID
}

func (s *XLSXSyncer) Name() string { return "xlsx" }

// Publish writes one row per record plus a header row to a single sheet.
func (s *XLSXSyncer) Publish(_ context.Context, run *model.BatchRun, records []model.LeadRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leads")
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	hdr := sheet.AddRow()
	for _, col := range snapshotHeader {
		hdr.AddCell().SetString(col)
	}

	for _, rec := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(rec.FirstName)
		row.AddCell().SetString(rec.LastName)
		row.AddCell().SetString(rec.Company)
		row.AddCell().SetString(rec.BestEmail())
		row.AddCell().SetInt(rec.Enrichment.EmailConfidence)
		row.AddCell().SetString(rec.Enrichment.Title)
		row.AddCell().SetInt(rec.Enrichment.CompanySize)
		row.AddCell().SetString(rec.Enrichment.Industry)
		row.AddCell().SetString(rec.Enrichment.LinkedInURL)
		row.AddCell().SetFloat(rec.Priority)
		row.AddCell().SetString(strings.Join(rec.RuleLabels, ", "))
		row.AddCell().SetString(string(rec.Status))
		row.AddCell().SetString(rec.FailureReason)
		row.AddCell().SetString(rec.Provenance.SourceFile)
		row.AddCell().SetString(rec.EnrichedBy)
		if !rec.EnrichedAt.IsZero() {
			row.AddCell().SetString(rec.EnrichedAt.Format(time.RFC3339))
		} else {
			row.AddCell().SetString("")
		}
	}

	path := strings.ReplaceAll(s.Path, "{run}", run.ID)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return eris.Wrap(err, "xlsx: create snapshot dir")
		}
	}
	if err := f.Save(path); err != nil {
		return eris.Wrap(err, fmt.Sprintf("xlsx: save snapshot %s", path))
	}
	return nil
}
