package sync

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/salesforce"
)

// SalesforceSyncer upserts run records as Salesforce Leads, matching
// existing leads by email.
type SalesforceSyncer struct {
	Client salesforce.Client

	// Retry bounds re-attempts of API calls that fail transiently. The zero
	// value uses the package defaults.
	Retry resilience.RetryConfig
}

func (s *SalesforceSyncer) retry(op string) resilience.RetryConfig {
	cfg := s.Retry
	cfg.OnRetry = resilience.RetryLogger("salesforce", op)
	return cfg
}

func (s *SalesforceSyncer) Name() string { return "salesforce" }

// Publish inserts records with no matching lead and updates the rest.
// Records without an email cannot be matched and are skipped.
func (s *SalesforceSyncer) Publish(ctx context.Context, run *model.BatchRun, records []model.LeadRecord) error {
	var emails []string
	for _, rec := range records {
		if e := rec.BestEmail(); e != "" {
			emails = append(emails, e)
		}
	}

	existing, err := resilience.DoVal(ctx, s.retry("match"), func(ctx context.Context) (map[string]salesforce.Lead, error) {
		return salesforce.FindLeadsByEmail(ctx, s.Client, emails)
	})
	if err != nil {
		return eris.Wrap(err, "sf sync: match existing leads")
	}

	var inserts []map[string]any
	var updates []salesforce.LeadUpdate
	skipped := 0

	for _, rec := range records {
		email := rec.BestEmail()
		if email == "" {
			skipped++
			continue
		}
		fields := leadFields(rec)
		if lead, ok := existing[strings.ToLower(email)]; ok {
			updates = append(updates, salesforce.LeadUpdate{ID: lead.ID, Fields: fields})
		} else {
			inserts = append(inserts, fields)
		}
	}

	if len(inserts) > 0 {
		results, err := resilience.DoVal(ctx, s.retry("insert"), func(ctx context.Context) ([]salesforce.CollectionResult, error) {
			return salesforce.BulkInsertLeads(ctx, s.Client, inserts)
		})
		if err != nil {
			return err
		}
		logFailures(run.ID, "insert", results)
	}
	if len(updates) > 0 {
		results, err := resilience.DoVal(ctx, s.retry("update"), func(ctx context.Context) ([]salesforce.CollectionResult, error) {
			return salesforce.BulkUpdateLeads(ctx, s.Client, updates)
		})
		if err != nil {
			return err
		}
		logFailures(run.ID, "update", results)
	}

	zap.L().Info("salesforce sync complete",
		zap.String("run_id", run.ID),
		zap.Int("inserted", len(inserts)),
		zap.Int("updated", len(updates)),
		zap.Int("skipped_no_email", skipped),
	)
	return nil
}

// leadFields maps a record onto Salesforce Lead fields. LastName and Company
// are required by Salesforce; validation guarantees both upstream.
func leadFields(rec model.LeadRecord) map[string]any {
	fields := map[string]any{
		"FirstName": rec.FirstName,
		"LastName":  rec.LastName,
		"Company":   rec.Company,
		"Email":     rec.BestEmail(),
	}
	if rec.Enrichment.Title != "" {
		fields["Title"] = rec.Enrichment.Title
	}
	if rec.Enrichment.Industry != "" {
		fields["Industry"] = rec.Enrichment.Industry
	}
	if rec.Enrichment.CompanySize > 0 {
		fields["NumberOfEmployees"] = rec.Enrichment.CompanySize
	}
	if rec.Domain != "" {
		fields["Website"] = rec.Domain
	}
	fields["Priority_Score__c"] = rec.Priority
	if len(rec.RuleLabels) > 0 {
		fields["Rule_Labels__c"] = strings.Join(rec.RuleLabels, ";")
	}
	return fields
}

func logFailures(runID, op string, results []salesforce.CollectionResult) {
	for _, r := range results {
		if !r.Success {
			zap.L().Warn("salesforce lead "+op+" failed",
				zap.String("run_id", runID),
				zap.String("lead_id", r.ID),
				zap.Strings("errors", r.Errors),
			)
		}
	}
}
