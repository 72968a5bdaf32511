package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Lead holds the Salesforce Lead fields this application reads back.
type Lead struct {
	ID      string `json:"Id"`
	Email   string `json:"Email"`
	Company string `json:"Company"`
}

// LeadUpdate holds a lead ID and the fields to update on it.
type LeadUpdate struct {
	ID     string
	Fields map[string]any
}

// FindLeadsByEmail queries Salesforce for Leads matching any of the given
// emails and returns them keyed by lowercased email.
func FindLeadsByEmail(ctx context.Context, c Client, emails []string) (map[string]Lead, error) {
	found := make(map[string]Lead)
	if len(emails) == 0 {
		return found, nil
	}

	quoted := make([]string, len(emails))
	for i, e := range emails {
		quoted[i] = "'" + escapeSoql(strings.ToLower(e)) + "'"
	}
	soql := fmt.Sprintf("SELECT Id, Email, Company FROM Lead WHERE Email IN (%s)",
		strings.Join(quoted, ", "))

	var leads []Lead
	if err := c.Query(ctx, soql, &leads); err != nil {
		return nil, eris.Wrap(err, "sf: find leads by email")
	}
	for _, l := range leads {
		found[strings.ToLower(l.Email)] = l
	}
	return found, nil
}

// BulkInsertLeads creates leads in batches of 200 (Collections API limit).
func BulkInsertLeads(ctx context.Context, c Client, records []map[string]any) ([]CollectionResult, error) {
	var all []CollectionResult
	for start := 0; start < len(records); start += maxBatchSize {
		end := min(start+maxBatchSize, len(records))
		results, err := c.InsertCollection(ctx, "Lead", records[start:end])
		if err != nil {
			return all, eris.Wrap(err, "sf: bulk insert leads")
		}
		all = append(all, results...)
	}
	return all, nil
}

// BulkUpdateLeads updates leads in batches of 200 (Collections API limit).
func BulkUpdateLeads(ctx context.Context, c Client, updates []LeadUpdate) ([]CollectionResult, error) {
	var all []CollectionResult
	for start := 0; start < len(updates); start += maxBatchSize {
		end := min(start+maxBatchSize, len(updates))

		batch := make([]CollectionRecord, end-start)
		for i, u := range updates[start:end] {
			batch[i] = CollectionRecord{ID: u.ID, Fields: u.Fields}
		}
		results, err := c.UpdateCollection(ctx, "Lead", batch)
		if err != nil {
			return all, eris.Wrap(err, "sf: bulk update leads")
		}
		all = append(all, results...)
	}
	return all, nil
}

// escapeSoql escapes single quotes and backslashes in SOQL string literals.
func escapeSoql(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}
