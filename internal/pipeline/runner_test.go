package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/cache"
	"github.com/sells-group/outreach-cli/internal/enrich"
	"github.com/sells-group/outreach-cli/internal/identity"
	"github.com/sells-group/outreach-cli/internal/ingest"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/monitoring"
	"github.com/sells-group/outreach-cli/internal/provider"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/scorer"
	syncpkg "github.com/sells-group/outreach-cli/internal/sync"
	"github.com/sells-group/outreach-cli/internal/validate"
)

// scriptedProvider returns a canned response sequence per key, so tests can
// exercise retry behavior end to end.
type scriptedProvider struct {
	mu      sync.Mutex
	name    string
	scripts map[identity.Key][]fetchResult
	calls   map[identity.Key]int
}

type fetchResult struct {
	payload model.EnrichmentPayload
	err     error
}

func newScriptedProvider(name string) *scriptedProvider {
	return &scriptedProvider{
		name:    name,
		scripts: make(map[identity.Key][]fetchResult),
		calls:   make(map[identity.Key]int),
	}
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Fetch(_ context.Context, q provider.Query) (model.EnrichmentPayload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	script := p.scripts[q.Key]
	i := p.calls[q.Key]
	p.calls[q.Key]++
	if i >= len(script) {
		if len(script) == 0 {
			return model.EnrichmentPayload{}, nil
		}
		i = len(script) - 1 // repeat the final response
	}
	return script[i].payload, script[i].err
}

func (p *scriptedProvider) callCount(key identity.Key) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[key]
}

// recordingSyncer captures what the pipeline publishes.
type recordingSyncer struct {
	mu       sync.Mutex
	name     string
	err      error
	received []model.LeadRecord
	calls    int
}

func (s *recordingSyncer) Name() string { return s.name }

func (s *recordingSyncer) Publish(_ context.Context, _ *model.BatchRun, records []model.LeadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.received = append([]model.LeadRecord{}, records...)
	return s.err
}

var testMappingYAML = []byte(`
columns:
  "First Name": first_name
  "Last Name": last_name
  "Company": company
  "Email": email
  "Employees": company_size
`)

var testRulesYAML = []byte(`
max_score: 100
rules:
  - label: title-match
    field: title
    op: contains
    value: sales
    weight: 10
  - label: size-match
    field: company_size
    op: gte
    value: "500"
    weight: 5
`)

var testHeader = []string{"First Name", "Last Name", "Company", "Email", "Employees"}

func testRunner(t *testing.T, providers []provider.Provider, targets []syncpkg.Syncer) *Runner {
	t.Helper()

	mapping, err := ingest.ParseMapping(testMappingYAML)
	require.NoError(t, err)
	rules, err := scorer.ParseRuleSet(testRulesYAML)
	require.NoError(t, err)

	retry := resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2.0,
	}
	client := provider.NewClient(retry, 2)
	ttls := make(map[string]time.Duration)
	for _, p := range providers {
		ttls[p.Name()] = time.Hour
	}
	orch := enrich.New(cache.NewMemory(), client, providers, ttls, enrich.Config{})

	return New(mapping, orch, validate.Config{RequiredFields: []string{"last_name", "company"}}, rules, targets, monitoring.Thresholds{})
}

func lead(first, last, company, email string) model.LeadRecord {
	return model.LeadRecord{FirstName: first, LastName: last, Company: company, RawEmail: email}
}

func TestRun_DedupesSharedIdentity(t *testing.T) {
	p := newScriptedProvider("hunter")
	key := identity.Normalize(lead("Jane", "Doe", "Example", "jane.doe@example.com"))
	p.scripts[key] = []fetchResult{{payload: model.EnrichmentPayload{Title: "VP of Sales"}}}

	rows := [][]string{
		{"Jane", "Doe", "Example", "Jane.Doe@Example.com", ""},
		{"jane", "DOE ", "Example", " jane.doe@example.com ", ""},
	}

	target := &recordingSyncer{name: "memo"}
	r := testRunner(t, []provider.Provider{p}, []syncpkg.Syncer{target})
	res, err := r.Run(context.Background(), "leads.csv", testHeader, rows)
	require.NoError(t, err)

	assert.Equal(t, 1, p.callCount(key), "shared identities coalesce to one provider call")
	require.Len(t, res.Accepted, 1, "duplicates merge to a single output record")
	assert.Equal(t, 1, res.Run.Stats.Deduped)
	assert.Equal(t, "VP of Sales", res.Accepted[0].Enrichment.Title)
	require.Len(t, target.received, 1)
}

func TestRun_TransientFailuresRetryThenSucceed(t *testing.T) {
	p := newScriptedProvider("hunter")
	key := identity.Normalize(lead("Jane", "Doe", "Acme", "jane@acme.com"))
	timeout := resilience.NewTransientError(eris.New("upstream timeout"), 504)
	p.scripts[key] = []fetchResult{
		{err: timeout},
		{err: timeout},
		{payload: model.EnrichmentPayload{Email: "jane@acme.com", EmailConfidence: 95, Title: "Head of Sales"}},
	}

	rows := [][]string{{"Jane", "Doe", "Acme", "jane@acme.com", ""}}
	r := testRunner(t, []provider.Provider{p}, nil)
	res, err := r.Run(context.Background(), "leads.csv", testHeader, rows)
	require.NoError(t, err)

	assert.Equal(t, 3, p.callCount(key), "two transient failures then success")
	assert.Equal(t, 3, res.Run.Stats.ProviderAttempts)
	require.Len(t, res.Accepted, 1)
	assert.Equal(t, model.EnrichmentComplete, res.Accepted[0].Status)
	assert.Equal(t, "Head of Sales", res.Accepted[0].Enrichment.Title)
}

func TestRun_ScoresAcceptedRecords(t *testing.T) {
	p := newScriptedProvider("hunter")
	key := identity.Normalize(lead("Jane", "Doe", "Acme", "jane@acme.com"))
	p.scripts[key] = []fetchResult{{payload: model.EnrichmentPayload{
		Email: "jane@acme.com", EmailConfidence: 90, Title: "VP of Sales", CompanySize: 1200,
	}}}

	rows := [][]string{{"Jane", "Doe", "Acme", "jane@acme.com", ""}}
	r := testRunner(t, []provider.Provider{p}, nil)
	res, err := r.Run(context.Background(), "leads.csv", testHeader, rows)
	require.NoError(t, err)

	require.Len(t, res.Accepted, 1)
	got := res.Accepted[0]
	assert.InDelta(t, 15.0, got.Priority, 0.001)
	assert.Equal(t, []string{"title-match", "size-match"}, got.RuleLabels)
	assert.Equal(t, 1, res.Run.Stats.Scored)
}

func TestRun_PermanentFailureContinuesUnenriched(t *testing.T) {
	p := newScriptedProvider("hunter")
	badKey := identity.Normalize(lead("Bad", "Lead", "Nope", "bad@nope.invalid"))
	goodKey := identity.Normalize(lead("Jane", "Doe", "Acme", "jane@acme.com"))
	p.scripts[badKey] = []fetchResult{{err: resilience.NewPermanentError(eris.New("rejected"), 400)}}
	p.scripts[goodKey] = []fetchResult{{payload: model.EnrichmentPayload{Title: "VP of Sales"}}}

	rows := [][]string{
		{"Bad", "Lead", "Nope", "bad@nope.invalid", ""},
		{"Jane", "Doe", "Acme", "jane@acme.com", ""},
	}

	target := &recordingSyncer{name: "memo"}
	r := testRunner(t, []provider.Provider{p}, []syncpkg.Syncer{target})
	res, err := r.Run(context.Background(), "leads.csv", testHeader, rows)
	require.NoError(t, err)

	require.Len(t, res.Accepted, 2, "failed records proceed unenriched, never dropped")
	assert.Equal(t, model.EnrichmentFailed, res.Accepted[0].Status)
	assert.Equal(t, model.ErrKindPermanentProvider, res.Accepted[0].FailureKind)
	assert.Equal(t, model.EnrichmentComplete, res.Accepted[1].Status)
	assert.Equal(t, 1, res.Run.Stats.Failed)
	require.Len(t, target.received, 2)
}

func TestRun_RejectedRecordsCarryReasons(t *testing.T) {
	rows := [][]string{
		{"Jane", "Doe", "Acme", "jane@acme.com", ""},
		{"No", "", "Acme", "nobody@acme.com", ""}, // missing last_name
	}

	r := testRunner(t, []provider.Provider{newScriptedProvider("hunter")}, nil)
	res, err := r.Run(context.Background(), "leads.csv", testHeader, rows)
	require.NoError(t, err)

	assert.Len(t, res.Accepted, 1)
	require.Len(t, res.Rejected, 1)
	assert.Contains(t, res.Rejected[0].Reason, "last_name")
	assert.Equal(t, 1, res.Run.Stats.Rejected)
}

func TestRun_NilRuleSetIsConfigurationError(t *testing.T) {
	mapping, err := ingest.ParseMapping(testMappingYAML)
	require.NoError(t, err)
	r := New(mapping, nil, validate.Config{}, nil, nil, monitoring.Thresholds{})

	_, err = r.Run(context.Background(), "leads.csv", testHeader, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule set")
}

func TestRun_NilMappingIsConfigurationError(t *testing.T) {
	rules, err := scorer.ParseRuleSet(testRulesYAML)
	require.NoError(t, err)
	r := New(nil, nil, validate.Config{}, rules, nil, monitoring.Thresholds{})

	_, err = r.Run(context.Background(), "leads.csv", testHeader, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapping")
}

func TestRun_SyncErrorReturnsResultAndError(t *testing.T) {
	rows := [][]string{{"Jane", "Doe", "Acme", "jane@acme.com", ""}}

	broken := &recordingSyncer{name: "memo", err: eris.New("endpoint down")}
	r := testRunner(t, []provider.Provider{newScriptedProvider("hunter")}, []syncpkg.Syncer{broken})
	res, err := r.Run(context.Background(), "leads.csv", testHeader, rows)

	require.Error(t, err)
	require.NotNil(t, res, "records survive a failed publish")
	assert.Len(t, res.Accepted, 1)
	assert.Equal(t, 0, res.Run.Stats.Synced)
}

func TestRun_CollectsSnapshot(t *testing.T) {
	rows := [][]string{{"Jane", "Doe", "Acme", "jane@acme.com", ""}}

	r := testRunner(t, []provider.Provider{newScriptedProvider("hunter")}, nil)
	res, err := r.Run(context.Background(), "leads.csv", testHeader, rows)
	require.NoError(t, err)

	require.NotNil(t, res.Snapshot)
	assert.Equal(t, res.Run.ID, res.Snapshot.RunID)
	assert.Equal(t, 1, res.Snapshot.Input)
	assert.Empty(t, res.Breaches)
}
