package vpic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/WessleyAI/vinwizard/engine/domain"
	"github.com/WessleyAI/vinwizard/pkg/fn"
	"github.com/WessleyAI/vinwizard/pkg/resilience"
)

// maxBody caps how much of a response is read; decodevin payloads are ~10KB.
const maxBody = 4 << 20

// Client decodes VINs against the vPIC API. It never retries.
type Client struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	record  fn.Stage[string, domain.VehicleRecord]
}

// NewClient creates a Client. Zero fields in cfg fall back to DefaultConfig.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	c := &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: resilience.NewBreaker(resilience.BreakerOpts{
			FailThreshold: cfg.BreakerThreshold,
			Timeout:       cfg.BreakerCooldown,
			IsFailure:     upstreamFault,
		}),
	}
	c.record = fn.Then(fn.Lift(c.Decode), fn.Lift(normalizeResponse))
	if cfg.Rate > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}
	return c
}

// DecodeURL returns the request URL for vin.
func (c *Client) DecodeURL(vin string) string {
	return fmt.Sprintf("%s/decodevin/%s?format=json", c.cfg.BaseURL, url.PathEscape(vin))
}

// Decode fetches the raw decoding for vin. An empty vin performs no request
// and returns nil, nil.
func (c *Client) Decode(ctx context.Context, vin string) (*Response, error) {
	if vin == "" {
		return nil, nil
	}
	result := resilience.CallResult(c.breaker, ctx, func(ctx context.Context) fn.Result[*Response] {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fn.Err[*Response](fmt.Errorf("%w: %w", ErrThrottled, err))
			}
		}
		return c.doGet(ctx, c.DecodeURL(vin))
	})
	resp, err := result.Unwrap()
	if err != nil {
		return nil, fmt.Errorf("vpic decode %s: %w", vin, err)
	}
	return resp, nil
}

// DecodeRecord fetches vin and normalizes the result.
func (c *Client) DecodeRecord(ctx context.Context, vin string) (domain.VehicleRecord, error) {
	return c.record(ctx, vin).Unwrap()
}

func normalizeResponse(_ context.Context, resp *Response) (domain.VehicleRecord, error) {
	if resp == nil {
		return nil, nil
	}
	return Normalize(resp.Results), nil
}

// upstreamFault counts only failures of the decoding service against the
// breaker. Caller cancellations and limiter waits are not its fault.
func upstreamFault(ctx context.Context, err error) bool {
	return err != nil && !resilience.CallerFault(ctx, err) && !errors.Is(err, ErrThrottled)
}

// BreakerState reports the circuit breaker state, for health output.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

func (c *Client) doGet(ctx context.Context, url string) fn.Result[*Response] {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fn.Err[*Response](err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fn.Err[*Response](err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return fn.Err[*Response](&StatusError{Code: resp.StatusCode, URL: url})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fn.Err[*Response](err)
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return fn.Errf[*Response]("%w: %v", ErrMalformed, err)
	}
	if out.Results == nil {
		return fn.Errf[*Response]("%w: no Results", ErrMalformed)
	}
	return fn.Ok(&out)
}
