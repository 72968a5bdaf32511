// Package apollo implements an Apollo-style people-match lookup as an
// enrichment provider, supplying title, company size, industry, and
// LinkedIn profile.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/provider"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

const defaultBaseURL = "https://api.apollo.io"

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

// Provider calls POST /v1/people/match.
type Provider struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// New creates an Apollo provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
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
func (p *Provider) Name() string { return "apollo" }

type matchRequest struct {
	FirstName        string `json:"first_name,omitempty"`
	LastName         string `json:"last_name,omitempty"`
	OrganizationName string `json:"organization_name,omitempty"`
	Domain           string `json:"domain,omitempty"`
}

type matchResponse struct {
	Person *struct {
		Title        string `json:"title"`
		Email        string `json:"email"`
		LinkedInURL  string `json:"linkedin_url"`
		Organization *struct {
			EstimatedNumEmployees int    `json:"estimated_num_employees"`
			Industry              string `json:"industry"`
		} `json:"organization"`
	} `json:"person"`
}

// Fetch implements provider.Provider.
func (p *Provider) Fetch(ctx context.Context, q provider.Query) (model.EnrichmentPayload, error) {
	var empty model.EnrichmentPayload

	if q.LastName == "" && q.Company == "" && q.Domain == "" {
		return empty, resilience.NewPermanentError(
			eris.Errorf("apollo: query %s carries no matchable fields", q.Key), 0)
	}

	body, err := json.Marshal(matchRequest{
		FirstName:        q.FirstName,
		LastName:         q.LastName,
		OrganizationName: q.Company,
		Domain:           q.Domain,
	})
	if err != nil {
		return empty, resilience.NewPermanentError(eris.Wrap(err, "apollo: marshal request"), 0)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/people/match", bytes.NewReader(body))
	if err != nil {
		return empty, resilience.NewPermanentError(eris.Wrap(err, "apollo: create request"), 0)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return empty, resilience.NewTransientError(eris.Wrap(err, "apollo: send request"), 0)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, resilience.NewTransientError(eris.Wrap(err, "apollo: read response"), resp.StatusCode)
	}

	switch {
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return empty, resilience.NewTransientError(
			eris.Errorf("apollo: status %d", resp.StatusCode), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return empty, resilience.NewPermanentError(
			eris.Errorf("apollo: status %d", resp.StatusCode), resp.StatusCode)
	}

	var result matchResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return empty, resilience.NewPermanentError(
			eris.Wrap(err, "apollo: malformed response"), resp.StatusCode)
	}

	if result.Person == nil {
		// No match is a valid, cacheable negative.
		return empty, nil
	}

	payload := model.EnrichmentPayload{
		Email:       result.Person.Email,
		Title:       result.Person.Title,
		LinkedInURL: result.Person.LinkedInURL,
	}
	if org := result.Person.Organization; org != nil {
		payload.CompanySize = org.EstimatedNumEmployees
		payload.Industry = org.Industry
	}
	return payload, nil
}
