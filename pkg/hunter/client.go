// Package hunter implements the Hunter.io email-finder as an enrichment
// provider, rotating across multiple API keys to preserve per-key credits.
package hunter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/provider"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

const defaultBaseURL = "https://api.hunter.io"

// domainRe mirrors the validation layer's domain shape: an alphabetic TLD of
// at least two characters. Anything else would burn a credit on a lookup that
// cannot succeed.
var domainRe = regexp.MustCompile(`^[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// APIKey is one Hunter.io credential with its remaining credit count.
type APIKey struct {
	Key     string
	Credits int
	Active  bool
}

// Option configures the provider.
type Option func(*Provider)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = u }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) { p.http = hc }
}

// Provider calls GET /v2/email-finder. It satisfies the enrichment provider
// contract: transient errors are typed for retry, a 404 marks the subject
// gone, and a 200 without an email is a cacheable negative result.
type Provider struct {
	mu      sync.Mutex
	keys    []APIKey
	baseURL string
	http    *http.Client
}

// New creates a Hunter provider. At least one active key is required to
// serve requests; with none, every fetch fails permanently.
func New(keys []APIKey, opts ...Option) *Provider {
	p := &Provider{
		keys:    keys,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "hunter" }

// emailFinderResponse mirrors the subset of the Hunter response we read.
// Hunter reports confidence as "score".
type emailFinderResponse struct {
	Data struct {
		Email           string `json:"email"`
		Score           int    `json:"score"`
		Position        string `json:"position"`
		LinkedInURL     string `json:"linkedin_url"`
		EmailsRemaining *int   `json:"emails_remaining"`
	} `json:"data"`
}

// Fetch implements provider.Provider.
func (p *Provider) Fetch(ctx context.Context, q provider.Query) (model.EnrichmentPayload, error) {
	var empty model.EnrichmentPayload

	if q.Domain == "" {
		return empty, resilience.NewPermanentError(
			eris.Errorf("hunter: no domain for key %s", q.Key), 0)
	}
	if !domainRe.MatchString(q.Domain) {
		return empty, resilience.NewPermanentError(
			eris.Errorf("hunter: invalid domain %q for key %s", q.Domain, q.Key), 0)
	}

	key, idx, err := p.leaseKey()
	if err != nil {
		return empty, resilience.NewPermanentError(err, 0)
	}

	params := url.Values{}
	params.Set("api_key", key)
	params.Set("domain", q.Domain)
	params.Set("first_name", q.FirstName)
	params.Set("last_name", q.LastName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+"/v2/email-finder?"+params.Encode(), nil)
	if err != nil {
		return empty, resilience.NewPermanentError(eris.Wrap(err, "hunter: create request"), 0)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		// Network-level failures (timeouts included) are worth retrying.
		return empty, resilience.NewTransientError(eris.Wrap(err, "hunter: send request"), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, resilience.NewTransientError(eris.Wrap(err, "hunter: read response"), resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return empty, resilience.NewPermanentError(
			eris.Wrapf(provider.ErrGone, "hunter: domain %s not found", q.Domain), resp.StatusCode)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return empty, resilience.NewTransientError(
			eris.Errorf("hunter: status %d: %s", resp.StatusCode, truncate(body)), resp.StatusCode)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return empty, resilience.NewPermanentError(
			eris.Errorf("hunter: status %d: %s", resp.StatusCode, truncate(body)), resp.StatusCode)
	}

	var result emailFinderResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return empty, resilience.NewPermanentError(
			eris.Wrap(err, "hunter: malformed response"), resp.StatusCode)
	}

	if result.Data.EmailsRemaining != nil {
		p.updateCredits(idx, *result.Data.EmailsRemaining)
	}

	if result.Data.Email == "" {
		// No email on file: a valid, cacheable negative.
		zap.L().Debug("hunter found no email",
			zap.String("domain", q.Domain), zap.String("key", string(q.Key)))
		return empty, nil
	}

	return model.EnrichmentPayload{
		Email:           result.Data.Email,
		EmailConfidence: result.Data.Score,
		Title:           result.Data.Position,
		LinkedInURL:     result.Data.LinkedInURL,
	}, nil
}

// leaseKey returns the active key with the most remaining credits; earlier
// keys win ties so rotation stays deterministic.
func (p *Provider) leaseKey() (string, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	type candidate struct {
		key     string
		idx     int
		credits int
	}
	var active []candidate
	for i, k := range p.keys {
		if k.Active {
			active = append(active, candidate{key: k.Key, idx: i, credits: k.Credits})
		}
	}
	if len(active) == 0 {
		return "", -1, eris.New("hunter: no active api keys configured")
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].credits != active[j].credits {
			return active[i].credits > active[j].credits
		}
		return active[i].idx < active[j].idx
	})
	return active[0].key, active[0].idx, nil
}

func (p *Provider) updateCredits(idx, remaining int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[idx].Credits = remaining
	if remaining <= 0 {
		p.keys[idx].Active = false
		zap.L().Warn("hunter api key exhausted", zap.Int("key_index", idx))
	}
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max])
	}
	return string(b)
}
