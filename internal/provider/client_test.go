package provider

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/identity"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

// scriptedProvider returns a scripted sequence of errors per key before
// succeeding, and counts calls.
type scriptedProvider struct {
	mu       sync.Mutex
	name     string
	failures map[identity.Key][]error // consumed one per call
	payloads map[identity.Key]model.EnrichmentPayload
	calls    map[identity.Key]int
}

func newScriptedProvider(name string) *scriptedProvider {
	return &scriptedProvider{
		name:     name,
		failures: make(map[identity.Key][]error),
		payloads: make(map[identity.Key]model.EnrichmentPayload),
		calls:    make(map[identity.Key]int),
	}
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Fetch(_ context.Context, q Query) (model.EnrichmentPayload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[q.Key]++
	if errs := p.failures[q.Key]; len(errs) > 0 {
		err := errs[0]
		p.failures[q.Key] = errs[1:]
		return model.EnrichmentPayload{}, err
	}
	return p.payloads[q.Key], nil
}

func (p *scriptedProvider) callCount(key identity.Key) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[key]
}

var testRetry = resilience.RetryConfig{
	MaxAttempts:    5,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     5 * time.Millisecond,
	Multiplier:     2.0,
	JitterFraction: 0,
}

func TestClient_Fetch_Success(t *testing.T) {
	p := newScriptedProvider("hunter")
	key := identity.Key("acme.com|jane doe")
	p.payloads[key] = model.EnrichmentPayload{Email: "jane@acme.com", EmailConfidence: 90}

	c := NewClient(testRetry, 2)
	results := c.Fetch(context.Background(), []Query{{Key: key, Domain: "acme.com"}}, p)

	require.Len(t, results, 1)
	res := results[key]
	require.NoError(t, res.Err)
	assert.Equal(t, "jane@acme.com", res.Payload.Email)
	assert.Equal(t, "hunter", res.Provider)
	assert.Equal(t, 1, res.Attempts)
}

func TestClient_Fetch_TransientRetriesThenSucceeds(t *testing.T) {
	// Times out twice, succeeds on the third attempt, within a max of 5.
	p := newScriptedProvider("hunter")
	key := identity.Key("acme.com|jane doe")
	p.failures[key] = []error{
		resilience.NewTransientError(eris.New("timeout"), 504),
		resilience.NewTransientError(eris.New("timeout"), 504),
	}
	p.payloads[key] = model.EnrichmentPayload{Email: "jane@acme.com"}

	c := NewClient(testRetry, 2)
	results := c.Fetch(context.Background(), []Query{{Key: key}}, p)

	res := results[key]
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Attempts, "exactly 3 recorded call attempts")
	assert.Equal(t, 3, p.callCount(key))
}

func TestClient_Fetch_TransientExhaustsBudget(t *testing.T) {
	p := newScriptedProvider("hunter")
	key := identity.Key("acme.com|jane doe")
	for range 10 {
		p.failures[key] = append(p.failures[key], resilience.NewTransientError(eris.New("throttled"), 429))
	}

	c := NewClient(testRetry, 2)
	results := c.Fetch(context.Background(), []Query{{Key: key}}, p)

	res := results[key]
	require.Error(t, res.Err)
	assert.Equal(t, model.ErrKindPermanentProvider, res.Kind)
	assert.Equal(t, testRetry.MaxAttempts, res.Attempts)
	assert.Equal(t, testRetry.MaxAttempts, p.callCount(key))
}

func TestClient_Fetch_PermanentFailsImmediately(t *testing.T) {
	p := newScriptedProvider("hunter")
	key := identity.Key("bad|key")
	p.failures[key] = []error{resilience.NewPermanentError(eris.New("invalid domain"), 400)}

	c := NewClient(testRetry, 2)
	results := c.Fetch(context.Background(), []Query{{Key: key}}, p)

	res := results[key]
	require.Error(t, res.Err)
	assert.Equal(t, 1, res.Attempts, "permanent failures are never retried")
	assert.Equal(t, model.ErrKindPermanentProvider, res.Kind)
}

func TestClient_Fetch_PartialBatch(t *testing.T) {
	p := newScriptedProvider("hunter")
	good := identity.Key("acme.com|jane doe")
	bad := identity.Key("bad|key")
	p.payloads[good] = model.EnrichmentPayload{Email: "jane@acme.com"}
	p.failures[bad] = []error{resilience.NewPermanentError(eris.New("invalid"), 422)}

	c := NewClient(testRetry, 2)
	results := c.Fetch(context.Background(), []Query{{Key: good}, {Key: bad}}, p)

	require.Len(t, results, 2)
	assert.NoError(t, results[good].Err, "one bad key must not fail the batch")
	assert.Error(t, results[bad].Err)
}

func TestClient_Fetch_GoneFlag(t *testing.T) {
	p := newScriptedProvider("hunter")
	key := identity.Key("dead.com|ghost")
	p.failures[key] = []error{resilience.NewPermanentError(eris.Wrap(ErrGone, "domain retired"), 404)}

	c := NewClient(testRetry, 2)
	results := c.Fetch(context.Background(), []Query{{Key: key}}, p)

	res := results[key]
	require.Error(t, res.Err)
	assert.True(t, res.Gone)
}

func TestClient_Fetch_CancellationStopsDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newScriptedProvider("hunter")
	key := identity.Key("acme.com|jane doe")
	p.payloads[key] = model.EnrichmentPayload{Email: "jane@acme.com"}

	c := NewClient(testRetry, 2)
	results := c.Fetch(ctx, []Query{{Key: key}}, p)

	res := results[key]
	require.Error(t, res.Err)
	assert.Equal(t, 0, p.callCount(key), "no dispatch after cancellation")
}

func TestClient_Fetch_RateLimitCeiling(t *testing.T) {
	p := newScriptedProvider("hunter")
	var queries []Query
	for _, k := range []identity.Key{"a|a", "b|b", "c|c"} {
		queries = append(queries, Query{Key: k})
		p.payloads[k] = model.EnrichmentPayload{Email: string(k)}
	}

	c := NewClient(testRetry, 3)
	// 2 tokens up front, then 100/s: 3 calls need at least one refill wait.
	c.SetLimit("hunter", 100, 2)

	start := time.Now()
	results := c.Fetch(context.Background(), queries, p)
	elapsed := time.Since(start)

	for _, q := range queries {
		assert.NoError(t, results[q.Key].Err)
	}
	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond, "third call must wait for a token")
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry()
	r.Register(newScriptedProvider("hunter"))
	r.Register(newScriptedProvider("apollo"))

	ps, err := r.Resolve([]string{"apollo", "hunter"})
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "apollo", ps[0].Name())
	assert.Equal(t, "hunter", ps[1].Name())

	_, err = r.Resolve([]string{"clearbit"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Get("hunter"))
	r.Register(newScriptedProvider("hunter"))
	assert.NotNil(t, r.Get("hunter"))
}
