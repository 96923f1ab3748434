package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/watchlogapp/watchlog-server/internal/domain"
	"github.com/watchlogapp/watchlog-server/internal/metrics"
	"github.com/watchlogapp/watchlog-server/internal/ratelimit"
)

const (
	defaultRPS     = 2.0
	defaultBurst   = 4
	defaultTimeout = 10 * time.Second

	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second

	// maxBodyBytes caps how much of a provider response is read.
	maxBodyBytes = 4 << 20

	userAgent = "Watchlog/1.0"
)

// Config configures a Client. Zero values fall back to defaults.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	// BreakerFailures is the number of consecutive failures that opens the circuit.
	BreakerFailures uint32
	// BreakerTimeout is how long the circuit stays open before a trial request.
	BreakerTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = defaultRPS
	}
	if c.Burst <= 0 {
		c.Burst = defaultBurst
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = defaultBreakerFailures
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = defaultBreakerTimeout
	}
	return c
}

// Client is a rate-limited, circuit-broken client of the metadata provider.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	limiter *ratelimit.KeyedRateLimiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
}

// New creates a provider client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse provider url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("provider url %q: scheme must be http or https", cfg.BaseURL)
	}

	c := &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: base,
		limiter: ratelimit.New(cfg.RequestsPerSecond, cfg.Burst),
		logger:  logger,
	}

	failures := cfg.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "metadata-provider",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A missing title or a rejected query says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, ErrBadRequest) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.ProviderBreakerTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
		},
	})

	return c, nil
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// Search returns the provider's candidates for query. An empty query returns no candidates without a request.
func (c *Client) Search(ctx context.Context, category domain.Category, query string) ([]Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	body, err := c.execute(ctx, "search", category, []string{string(category), "search"}, url.Values{"q": {query}})
	if err != nil {
		return nil, wrapError("search", category, "", err)
	}

	var raw rawSearchResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, wrapError("search", category, "", fmt.Errorf("decode response: %w", err))
	}

	candidates := make([]Candidate, 0, len(raw.Results))
	for _, r := range raw.Results {
		if r.ID == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			ExternalID: r.ID,
			Title:      strings.TrimSpace(r.Title),
			Year:       ParseYear(r.Released),
			Poster:     r.Poster,
		})
	}
	return candidates, nil
}

// Detail fetches the descriptive record of one external title.
func (c *Client) Detail(ctx context.Context, category domain.Category, externalID string) (*Detail, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, wrapError("detail", category, externalID, ErrBadRequest)
	}

	body, err := c.execute(ctx, "detail", category, []string{string(category), externalID}, nil)
	if err != nil {
		return nil, wrapError("detail", category, externalID, err)
	}

	var raw rawDetail
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, wrapError("detail", category, externalID, fmt.Errorf("decode response: %w", err))
	}

	d := &Detail{
		ExternalID:  raw.ID,
		Title:       strings.TrimSpace(raw.Title),
		Description: descriptionMarkdown(raw.Description),
		Rating:      raw.Rating,
		Released:    raw.Released,
		Year:        ParseYear(raw.Released),
		Poster:      raw.Poster,
		Genres:      raw.Genres,
	}
	if d.ExternalID == "" {
		d.ExternalID = externalID
	}
	return d, nil
}

// execute runs one request through the circuit breaker.
func (c *Client) execute(ctx context.Context, op string, category domain.Category, path []string, query url.Values) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.doRequest(ctx, op, category, path, query)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Debug("provider request rejected by circuit breaker", "operation", op, "error", err)
		metrics.RecordProviderRequest(op, 0)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return body, err
}

// doRequest executes an HTTP request with rate limiting.
func (c *Client) doRequest(ctx context.Context, op string, category domain.Category, path []string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx, string(category)); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := c.baseURL.JoinPath(path...)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("provider request",
		"operation", op,
		"category", category,
		"path", u.Path,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordProviderRequest(op, 0)
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	metrics.RecordProviderRequest(op, resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case http.StatusBadRequest:
		return nil, ErrBadRequest
	default:
		if resp.StatusCode >= 500 {
			return nil, ErrServer
		}
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}
