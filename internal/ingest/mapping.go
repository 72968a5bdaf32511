// Package ingest parses tabular lead sources and maps their columns onto
// canonical lead fields using a configured field mapping.
package ingest

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/outreach-cli/internal/model"
)

// canonicalFields are the targets a mapping may point a source column at.
var canonicalFields = map[string]bool{
	"first_name":   true,
	"last_name":    true,
	"company":      true,
	"email":        true,
	"domain":       true,
	"title":        true,
	"company_size": true,
	"industry":     true,
	"linkedin_url": true,
}

// Mapping maps source column headers to canonical lead fields. Header
// matching is case-insensitive and ignores surrounding whitespace.
type Mapping struct {
	Columns map[string]string `yaml:"columns"` // source header -> canonical field

	byHeader map[string]string // lowercased source header -> canonical field
}

// LoadMapping reads and validates a YAML field mapping. A malformed mapping
// is a configuration error and aborts the run before any provider calls.
func LoadMapping(path string) (*Mapping, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read mapping %s", path)
	}
	return ParseMapping(raw)
}

// ParseMapping decodes and validates a YAML field mapping.
func ParseMapping(raw []byte) (*Mapping, error) {
	var m Mapping
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, eris.Wrap(err, "ingest: parse mapping")
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Mapping) validate() error {
	if len(m.Columns) == 0 {
		return eris.New("ingest: mapping must define at least one column")
	}

	var errs []string
	m.byHeader = make(map[string]string, len(m.Columns))
	seen := make(map[string]string)

	for src, field := range m.Columns {
		if !canonicalFields[field] {
			errs = append(errs, fmt.Sprintf("column %q maps to unknown field %q", src, field))
			continue
		}
		key := strings.ToLower(strings.TrimSpace(src))
		if prev, dup := seen[field]; dup {
			errs = append(errs, fmt.Sprintf("field %q mapped twice (%q and %q)", field, prev, src))
			continue
		}
		seen[field] = src
		m.byHeader[key] = field
	}

	if len(errs) > 0 {
		return eris.Errorf("ingest: mapping validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// MapRows converts raw rows into lead records using the header to locate
// mapped columns. Unmapped columns are ignored; mapped columns absent from
// the header are simply empty on every record. Short rows are padded.
func (m *Mapping) MapRows(source string, header []string, rows [][]string) []model.LeadRecord {
	fieldAt := make(map[int]string) // column index -> canonical field
	for i, h := range header {
		if field, ok := m.byHeader[strings.ToLower(strings.TrimSpace(h))]; ok {
			fieldAt[i] = field
		}
	}
	if len(fieldAt) == 0 {
		zap.L().Warn("no mapped columns found in header",
			zap.String("source", source),
			zap.Strings("header", header),
		)
	}

	now := time.Now().UTC()
	records := make([]model.LeadRecord, 0, len(rows))
	for n, row := range rows {
		rec := model.LeadRecord{
			Status: model.EnrichmentPending,
			Provenance: model.Provenance{
				SourceFile: source,
				RowIndex:   n + 1, // header is row 0
				IngestedAt: now,
			},
		}
		for i, field := range fieldAt {
			if i >= len(row) {
				continue
			}
			setField(&rec, field, strings.TrimSpace(row[i]))
		}
		records = append(records, rec)
	}
	return records
}

func setField(rec *model.LeadRecord, field, value string) {
	switch field {
	case "first_name":
		rec.FirstName = value
	case "last_name":
		rec.LastName = value
	case "company":
		rec.Company = value
	case "email":
		rec.RawEmail = value
	case "domain":
		rec.Domain = value
	case "title":
		rec.Enrichment.Title = value
	case "company_size":
		// Sources write sizes like "1,200" or "1200 employees".
		if n, err := strconv.Atoi(cleanNumber(value)); err == nil {
			rec.Enrichment.CompanySize = n
		}
	case "industry":
		rec.Enrichment.Industry = value
	case "linkedin_url":
		rec.Enrichment.LinkedInURL = value
	}
}

func cleanNumber(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
