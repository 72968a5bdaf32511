package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/outreach-cli/internal/identity"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

// Result is the outcome for one key in a fetched batch.
type Result struct {
	Payload  model.EnrichmentPayload
	Provider string
	Attempts int
	Err      error           // nil on success
	Kind     model.ErrorKind // set when Err != nil
	Gone     bool            // provider reported the subject gone
}

// requestState tracks one in-flight query through the retry lifecycle.
type requestState int

const (
	statePending requestState = iota
	stateRetrying
	stateSucceeded
	stateFailed
)

type request struct {
	query        Query
	state        requestState
	attempts     int
	nextEligible time.Time
	payload      model.EnrichmentPayload
	err          error
}

// Client calls providers under a shared per-provider token-bucket rate
// limit, retrying transient failures with backoff. Retry control flow is an
// explicit per-request state machine (pending → retrying → succeeded |
// failed) driven by a scheduler loop, so many requests interleave their
// backoff waits instead of each blocking a goroutine for its full retry
// span.
type Client struct {
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	retry       resilience.RetryConfig
	concurrency int
	now         func() time.Time
}

// NewClient creates a Client. concurrency bounds simultaneous in-flight
// calls per Fetch; the rate limiters bound aggregate call rate across
// concurrent Fetches.
func NewClient(retry resilience.RetryConfig, concurrency int) *Client {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Client{
		limiters:    make(map[string]*rate.Limiter),
		retry:       retry,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// SetLimit configures the token-bucket ceiling for a provider. Callers that
// skip this get an uncapped limiter.
func (c *Client) SetLimit(provider string, rps float64, burst int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if burst < 1 {
		burst = 1
	}
	c.limiters[provider] = rate.NewLimiter(rate.Limit(rps), burst)
}

func (c *Client) limiterFor(provider string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[provider]
	if !ok {
		l = rate.NewLimiter(rate.Inf, 1)
		c.limiters[provider] = l
	}
	return l
}

// Fetch looks up every query against p and returns a per-key outcome.
// Partial failure is normal: some keys succeed while others fail, and one
// bad key never fails the batch. Transient failures are retried with
// exponential backoff up to the configured attempt budget, then reported as
// permanent for this call. On cancellation, in-flight calls run to
// completion but nothing new is dispatched.
func (c *Client) Fetch(ctx context.Context, queries []Query, p Provider) map[identity.Key]Result {
	reqs := make([]*request, len(queries))
	for i, q := range queries {
		reqs[i] = &request{query: q}
	}

	limiter := c.limiterFor(p.Name())

	for {
		now := c.now()
		var eligible []*request
		var nextWake time.Time
		for _, r := range reqs {
			switch r.state {
			case statePending:
				eligible = append(eligible, r)
			case stateRetrying:
				if !r.nextEligible.After(now) {
					eligible = append(eligible, r)
				} else if nextWake.IsZero() || r.nextEligible.Before(nextWake) {
					nextWake = r.nextEligible
				}
			}
		}

		if len(eligible) == 0 {
			if nextWake.IsZero() {
				break // all requests settled
			}
			timer := time.NewTimer(nextWake.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				c.cancelRemaining(reqs, ctx.Err())
				return collect(reqs, p.Name())
			case <-timer.C:
			}
			continue
		}

		if ctx.Err() != nil {
			c.cancelRemaining(reqs, ctx.Err())
			break
		}

		// One dispatch pass: eligible requests run concurrently, bounded.
		// Goroutines only mutate their own request, so no lock is needed.
		g := new(errgroup.Group)
		g.SetLimit(c.concurrency)
		for _, r := range eligible {
			g.Go(func() error {
				c.attempt(ctx, limiter, p, r)
				return nil
			})
		}
		_ = g.Wait()
	}

	return collect(reqs, p.Name())
}

// attempt performs a single provider call for r and advances its state.
func (c *Client) attempt(ctx context.Context, limiter *rate.Limiter, p Provider, r *request) {
	if err := limiter.Wait(ctx); err != nil {
		r.state = stateFailed
		r.err = err
		return
	}

	r.attempts++
	payload, err := p.Fetch(ctx, r.query)
	if err == nil {
		r.state = stateSucceeded
		r.payload = payload
		r.err = nil
		return
	}

	r.err = err
	if !resilience.IsTransient(err) {
		r.state = stateFailed
		return
	}
	if r.attempts >= c.retry.MaxAttempts {
		// Exhausted: transient becomes permanent for this call.
		r.state = stateFailed
		return
	}

	r.state = stateRetrying
	r.nextEligible = c.now().Add(resilience.Backoff(r.attempts-1, c.retry))
	zap.L().Debug("provider call retrying",
		zap.String("provider", p.Name()),
		zap.String("key", string(r.query.Key)),
		zap.Int("attempt", r.attempts),
		zap.Error(err),
	)
}

// cancelRemaining fails every unsettled request with the context error.
func (c *Client) cancelRemaining(reqs []*request, err error) {
	for _, r := range reqs {
		if r.state == statePending || r.state == stateRetrying {
			r.state = stateFailed
			r.err = err
		}
	}
}

func collect(reqs []*request, providerName string) map[identity.Key]Result {
	out := make(map[identity.Key]Result, len(reqs))
	for _, r := range reqs {
		res := Result{
			Payload:  r.payload,
			Provider: providerName,
			Attempts: r.attempts,
			Err:      r.err,
		}
		if r.err != nil {
			// Every terminal failure is permanent for this call, including
			// transient errors that exhausted their retry budget.
			res.Kind = model.ErrKindPermanentProvider
			res.Gone = errors.Is(r.err, ErrGone)
		}
		out[r.query.Key] = res
	}
	return out
}
