// Package apiclient is the resilient HTTP client for the Workzone case API.
// Every call goes through a per-attempt timeout, retry with exponential
// backoff and a circuit breaker shared by all calls of the client.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/workzone/workzone-mcp/internal/metrics"
)

const tracerName = "github.com/workzone/workzone-mcp/internal/apiclient"

// maxErrorBody bounds how much of a failed response ends up in error messages.
const maxErrorBody = 256

type (
	// Option configures the Client.
	Option func(*Client)

	// Client issues JSON requests against the Workzone API.
	Client struct {
		baseURL    string
		http       *http.Client
		headers    http.Header
		timeout    time.Duration
		maxRetries int
		backoff    Backoff
		breaker    *Breaker
		limiter    *rate.Limiter
		metrics    *metrics.Metrics
		tracer     trace.Tracer
		group      singleflight.Group

		// sleep waits between retries; replaced in tests.
		sleep func(ctx context.Context, d time.Duration) error
	}
)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithBearerToken sends an Authorization Bearer header on every request.
// An empty token sends nothing.
func WithBearerToken(token string) Option {
	return func(cl *Client) {
		if token != "" {
			cl.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithRetry sets the number of retries after the first attempt and the
// backoff base delay.
func WithRetry(maxRetries int, base time.Duration) Option {
	return func(cl *Client) {
		if maxRetries >= 0 {
			cl.maxRetries = maxRetries
		}
		cl.backoff.Base = base
	}
}

// WithMaxRetryDelay caps a single backoff wait. Zero leaves it uncapped.
func WithMaxRetryDelay(d time.Duration) Option {
	return func(cl *Client) {
		if d >= 0 {
			cl.backoff.Max = d
		}
	}
}

// WithBreaker replaces the default circuit breaker policy.
func WithBreaker(threshold int, cooldown time.Duration) Option {
	return func(cl *Client) {
		cl.breaker = NewBreaker(threshold, cooldown)
	}
}

// WithRateLimit caps outbound attempts per second. Zero disables it.
func WithRateLimit(perSecond float64) Option {
	return func(cl *Client) {
		if perSecond > 0 {
			burst := int(perSecond)
			if burst < 1 {
				burst = 1
			}
			cl.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithMetrics records attempts, retries and breaker transitions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) {
		cl.metrics = m
	}
}

// New constructs a Client for baseURL, which must be absolute.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("base url %q is not absolute", baseURL)
	}

	cl := &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		http:       &http.Client{},
		headers:    make(http.Header),
		timeout:    30 * time.Second,
		maxRetries: 3,
		backoff:    Backoff{Base: time.Second, Max: 30 * time.Second},
		breaker:    NewBreaker(5, 30*time.Second),
		tracer:     otel.Tracer(tracerName),
		sleep:      sleepContext,
	}
	cl.headers.Set("Accept", "application/json")
	for _, opt := range opts {
		if opt != nil {
			opt(cl)
		}
	}
	if cl.http == nil {
		cl.http = &http.Client{}
	}
	cl.breaker.onChange = cl.breakerChanged
	return cl, nil
}

// BreakerState reports the circuit state, for health checks.
func (c *Client) BreakerState() State {
	return c.breaker.State()
}

// Get decodes the JSON body of GET path into out. Concurrent identical GETs
// share one round trip.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	res, err := c.getShared(ctx, path)
	if err != nil {
		return err
	}
	return c.decode(http.MethodGet, path, res, out)
}

// Post sends body as JSON and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	res, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return c.decode(http.MethodPost, path, res, out)
}

// Put sends body as JSON and decodes the response into out.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	res, err := c.do(ctx, http.MethodPut, path, body)
	if err != nil {
		return err
	}
	return c.decode(http.MethodPut, path, res, out)
}

// Delete reports whether the backend accepted the deletion. A 4xx answer
// is a plain false; transport failures and exhausted retries are errors.
func (c *Client) Delete(ctx context.Context, path string) (bool, error) {
	_, err := c.do(ctx, http.MethodDelete, path, nil)
	if err == nil {
		return true, nil
	}
	if KindOf(err) == Permanent && StatusCodeOf(err) != 0 {
		return false, nil
	}
	return false, err
}

func (c *Client) getShared(ctx context.Context, path string) (result, error) {
	ch := c.group.DoChan(http.MethodGet+" "+path, func() (any, error) {
		return c.do(ctx, http.MethodGet, path, nil)
	})
	select {
	case <-ctx.Done():
		return result{}, &Error{Kind: Canceled, Method: http.MethodGet, Path: path, Err: ctx.Err()}
	case res := <-ch:
		// A follower must not inherit the leader's cancellation.
		if res.Err != nil && res.Shared && KindOf(res.Err) == Canceled && ctx.Err() == nil {
			return c.do(ctx, http.MethodGet, path, nil)
		}
		if res.Err != nil {
			return result{}, res.Err
		}
		return res.Val.(result), nil
	}
}

// result is a 2xx body and the number of network attempts it took.
type result struct {
	body     []byte
	attempts int
}

// do runs one logical call: breaker check and attempt, retried with backoff
// while failures stay transient.
func (c *Client) do(ctx context.Context, method, path string, body any) (result, error) {
	ctx, span := c.tracer.Start(ctx, "workzone "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		))
	defer span.End()

	res, err := c.retry(ctx, method, path, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result{}, err
	}
	span.SetAttributes(attribute.Int("workzone.attempts", res.attempts))
	return res, nil
}

func (c *Client) retry(ctx context.Context, method, path string, body any) (result, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return result{}, &Error{Kind: Permanent, Method: method, Path: path, Err: fmt.Errorf("marshal request: %w", err)}
		}
		payload = b
	}

	var last *Error
	attempts := 0
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff.Delay(attempt)
			log.Warn().
				Str("method", method).
				Str("path", path).
				Int("retry", attempt).
				Dur("delay", delay).
				Msgf("Retry %d after %dms", attempt, delay.Milliseconds())
			c.metrics.ObserveRetry(method)
			if err := c.sleep(ctx, delay); err != nil {
				return result{}, &Error{Kind: Canceled, Method: method, Path: path, Attempts: attempts, Err: err}
			}
		}

		if err := c.breaker.Allow(); err != nil {
			c.metrics.ObserveBackend(method, CircuitOpen.String())
			return result{}, &Error{Kind: CircuitOpen, Method: method, Path: path, Attempts: attempts, Err: err}
		}

		attempts++
		resp, apiErr := c.attempt(ctx, method, path, payload)
		if apiErr == nil {
			c.breaker.Success()
			c.metrics.ObserveBackend(method, "success")
			return result{body: resp, attempts: attempts}, nil
		}
		apiErr.Attempts = attempts
		c.metrics.ObserveBackend(method, apiErr.Kind.String())

		switch apiErr.Kind {
		case Transient:
			c.breaker.Failure()
			last = apiErr
		case Canceled:
			c.breaker.Release()
			return result{}, apiErr
		default:
			// The backend answered; it is healthy even if the request was bad.
			c.breaker.Success()
			return result{}, apiErr
		}
	}
	return result{}, last
}

// attempt performs a single HTTP round trip under the per-attempt timeout.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte) ([]byte, *Error) {
	fail := func(kind Kind, status int, err error) *Error {
		return &Error{Kind: kind, Method: method, Path: path, StatusCode: status, Err: err}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, fail(Canceled, 0, ctx.Err())
			}
			return nil, fail(Transient, 0, fmt.Errorf("rate limit: %w", err))
		}
	}

	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(actx, method, c.baseURL+"/"+strings.TrimLeft(path, "/"), reqBody)
	if err != nil {
		return nil, fail(Permanent, 0, fmt.Errorf("build request: %w", err))
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Debug().Str("method", method).Str("path", path).Msgf("%s request to %s", method, path)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := classifyStatus(resp.StatusCode)
		log.Error().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("kind", kind.String()).
			Msgf("HTTP error during %s request to %s", method, path)
		return nil, fail(kind, resp.StatusCode, statusError(resp.Status, body))
	}
	return body, nil
}

func (c *Client) transportError(ctx context.Context, method, path string, err error) *Error {
	if ctx.Err() != nil {
		return &Error{Kind: Canceled, Method: method, Path: path, Err: ctx.Err()}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		log.Error().Err(err).Str("method", method).Str("path", path).Msgf("Timeout during %s request to %s", method, path)
		err = fmt.Errorf("timeout after %s: %w", c.timeout, err)
	} else {
		log.Error().Err(err).Str("method", method).Str("path", path).Msgf("HTTP error during %s request to %s", method, path)
	}
	return &Error{Kind: Transient, Method: method, Path: path, Err: err}
}

// decode parses a 2xx body into out. An empty body is JSON null.
func (c *Client) decode(method, path string, res result, out any) error {
	if out == nil {
		return nil
	}
	body := res.body
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("null")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: Permanent, Method: method, Path: path, Attempts: res.attempts, Err: fmt.Errorf("malformed response: %w", err)}
	}
	return nil
}

func (c *Client) breakerChanged(from, to State) {
	c.metrics.SetBreakerState(int(to))
	switch to {
	case StateOpen:
		log.Warn().Str("from", from.String()).Msg("circuit breaker opened")
	case StateClosed:
		log.Info().Str("from", from.String()).Msg("circuit breaker reset")
	default:
		log.Info().Msg("circuit breaker half-open, admitting trial call")
	}
}

func statusError(status string, body []byte) error {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxErrorBody {
		snippet = snippet[:maxErrorBody] + "..."
	}
	if snippet == "" {
		return fmt.Errorf("status %s", status)
	}
	return fmt.Errorf("status %s: %s", status, snippet)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
