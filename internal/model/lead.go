// Package model defines the shared data types flowing through the outreach pipeline.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EnrichmentStatus tracks what happened to a record during enrichment.
type EnrichmentStatus string

const (
	EnrichmentPending  EnrichmentStatus = "pending"
	EnrichmentComplete EnrichmentStatus = "enriched"
	EnrichmentCacheHit EnrichmentStatus = "cache_hit"
	EnrichmentFailed   EnrichmentStatus = "failed"
	EnrichmentSkipped  EnrichmentStatus = "skipped"
)

// ErrorKind classifies pipeline errors for audit output.
type ErrorKind string

const (
	ErrKindTransientProvider ErrorKind = "TransientProviderError"
	ErrKindPermanentProvider ErrorKind = "PermanentProviderError"
	ErrKindValidation        ErrorKind = "ValidationError"
	ErrKindConfiguration     ErrorKind = "ConfigurationError"
)

// Provenance records where a lead row came from.
type Provenance struct {
	SourceFile string    `json:"source_file"`
	RowIndex   int       `json:"row_index"`
	IngestedAt time.Time `json:"ingested_at"`
	RunID      string    `json:"run_id"`
}

// EnrichmentPayload holds the fields a lookup provider can supply.
type EnrichmentPayload struct {
	Email           string `json:"email,omitempty"`
	EmailConfidence int    `json:"email_confidence,omitempty"`
	Title           string `json:"title,omitempty"`
	CompanySize     int    `json:"company_size,omitempty"`
	Industry        string `json:"industry,omitempty"`
	LinkedInURL     string `json:"linkedin_url,omitempty"`
}

// IsZero reports whether the payload carries no data at all.
func (p EnrichmentPayload) IsZero() bool {
	return p == EnrichmentPayload{}
}

// Complete reports whether every payload field is populated.
func (p EnrichmentPayload) Complete() bool {
	return p.Email != "" && p.Title != "" && p.CompanySize > 0 && p.Industry != "" && p.LinkedInURL != ""
}

// FillFrom copies fields from other into p only where p is empty. Existing
// values are never overwritten, so a higher-precedence provider's data wins.
func (p *EnrichmentPayload) FillFrom(other EnrichmentPayload) {
	if p.Email == "" {
		p.Email = other.Email
		p.EmailConfidence = other.EmailConfidence
	}
	if p.Title == "" {
		p.Title = other.Title
	}
	if p.CompanySize == 0 {
		p.CompanySize = other.CompanySize
	}
	if p.Industry == "" {
		p.Industry = other.Industry
	}
	if p.LinkedInURL == "" {
		p.LinkedInURL = other.LinkedInURL
	}
}

// LeadRecord is a single prospective contact moving through the pipeline.
// Only the stage currently processing a record mutates it; once emitted in a
// BatchRun's final record set it is treated as immutable.
type LeadRecord struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	RawEmail  string `json:"raw_email,omitempty"`
	Domain    string `json:"domain,omitempty"`

	Enrichment EnrichmentPayload `json:"enrichment"`
	EnrichedAt time.Time         `json:"enriched_at"`
	EnrichedBy string            `json:"enriched_by,omitempty"`

	Status        EnrichmentStatus `json:"status"`
	FailureKind   ErrorKind        `json:"failure_kind,omitempty"`
	FailureReason string           `json:"failure_reason,omitempty"`

	Priority   float64  `json:"priority"`
	RuleLabels []string `json:"rule_labels,omitempty"`

	Provenance Provenance `json:"provenance"`
}

// FullName returns the contact's display name.
func (r LeadRecord) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(r.FirstName) + " " + strings.TrimSpace(r.LastName))
}

// BestEmail returns the enriched email when present, falling back to the raw
// ingested email.
func (r LeadRecord) BestEmail() string {
	if r.Enrichment.Email != "" {
		return r.Enrichment.Email
	}
	return strings.TrimSpace(r.RawEmail)
}

// RejectedRecord is a record dropped by validation, kept for audit.
type RejectedRecord struct {
	Record LeadRecord `json:"record"`
	Reason string     `json:"reason"`
}

// RunStats summarizes per-outcome counts for a batch run.
type RunStats struct {
	Input            int `json:"input"`
	Enriched         int `json:"enriched"`
	CacheHits        int `json:"cache_hits"`
	Failed           int `json:"failed"`
	Skipped          int `json:"skipped"`
	Deduped          int `json:"deduped"`
	Rejected         int `json:"rejected"`
	Scored           int `json:"scored"`
	Synced           int `json:"synced"`
	ProviderCalls    int `json:"provider_calls"`
	ProviderAttempts int `json:"provider_attempts"`
}

// BatchRun is the unit of work: an ordered set of records ingested together.
type BatchRun struct {
	ID        string           `json:"id"`
	Source    string           `json:"source"`
	StartedAt time.Time        `json:"started_at"`
	Records   []LeadRecord     `json:"records"`
	Rejected  []RejectedRecord `json:"rejected,omitempty"`
	Stats     RunStats         `json:"stats"`
}

// NewBatchRun creates a run over the given records, stamping each record's
// provenance with the run ID.
func NewBatchRun(source string, records []LeadRecord) *BatchRun {
	run := &BatchRun{
		ID:        uuid.New().String(),
		Source:    source,
		StartedAt: time.Now().UTC(),
		Records:   records,
	}
	run.Stats.Input = len(records)
	for i := range run.Records {
		run.Records[i].Provenance.RunID = run.ID
		if run.Records[i].Status == "" {
			run.Records[i].Status = EnrichmentPending
		}
	}
	return run
}
