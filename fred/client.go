// Package fred is a client for the FRED (Federal Reserve Economic Data) REST
// API. It reshapes raw responses into compact payloads for tool callers.
package fred

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vishpuri/FRED/config"
	"github.com/vishpuri/FRED/errors"
	"github.com/vishpuri/FRED/metrics"
)

const DefaultBaseURL = "https://api.stlouisfed.org/fred"

// ErrMissingAPIKey is returned by every call when no API key is configured.
var ErrMissingAPIKey = errors.Sentinel("FRED API key is required; set FRED_API_KEY")

// APIError is a failed upstream call. Status is set for non-200 replies, Code
// for error payloads embedded in a 200 reply.
type APIError struct {
	Status  int
	Body    string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("FRED API Error (%d): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("FRED API error (%d): %s", e.Status, e.Body)
}

type Options struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
	CacheTTL  time.Duration
	// CacheSize is the cache budget in bytes; zero disables caching.
	CacheSize int64
}

// OptionsFromConfig maps configuration onto Options, reading the API key
// from the environment.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL:   cfg.FRED.BaseURL,
		APIKey:    cfg.APIKey(),
		Timeout:   cfg.FRED.Timeout,
		RateLimit: cfg.FRED.RateLimit,
		Burst:     cfg.FRED.Burst,
		CacheTTL:  cfg.FRED.CacheTTL,
		CacheSize: cfg.FRED.CacheSize,
	}
}

// Client performs rate-limited, cached GETs against the FRED API.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	cache    *ristretto.Cache[string, []byte]
	ttl      time.Duration
	log      zerolog.Logger
	registry *Registry
}

func NewClient(opts Options, registry *Registry, log zerolog.Logger) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if registry == nil {
		registry = NewRegistry()
	}
	c := &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		apiKey:   opts.APIKey,
		http:     &http.Client{Timeout: opts.Timeout},
		limiter:  rate.NewLimiter(limit, opts.Burst),
		ttl:      opts.CacheTTL,
		log:      log.With().Str("component", "fred").Logger(),
		registry: registry,
	}
	if opts.CacheSize > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
			NumCounters: 10_000,
			MaxCost:     opts.CacheSize,
			BufferItems: 64,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create FRED response cache")
		}
		c.cache = cache
	}
	return c, nil
}

// Registry returns the series registry the client was built with.
func (c *Client) Registry() *Registry { return c.registry }

// Close releases the response cache.
func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
}

var apiKeyPattern = regexp.MustCompile(`api_key=[^&]+`)

func redact(s string) string {
	return apiKeyPattern.ReplaceAllString(s, "api_key=***")
}

// Get fetches endpoint with params and returns the raw JSON body.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	endpoint = strings.Trim(endpoint, "/")
	key := endpoint + "?" + params.Encode()
	if c.cache != nil {
		if body, ok := c.cache.Get(key); ok {
			metrics.RecordCacheHit(endpoint)
			c.log.Debug().Str("endpoint", endpoint).Msg("FRED cache hit")
			return body, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("api_key", c.apiKey)
	q.Set("file_type", "json")
	u := c.baseURL + "/" + endpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build FRED request")
	}
	req.Header.Set("Accept", "application/json")
	c.log.Debug().Str("url", redact(u)).Msg("fetching FRED API")

	body, err := c.do(req)
	metrics.RecordUpstreamRequest(endpoint, err == nil)
	if err != nil {
		return nil, err
	}
	if c.cache != nil && c.ttl > 0 {
		c.cache.SetWithTTL(key, body, int64(len(body)), c.ttl)
	}
	return body, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error embeds the full URL, key included.
		return nil, errors.New("network error: %s", redact(err.Error()))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read FRED response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var probe struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, errors.New("invalid JSON response from FRED API: %v", err)
	}
	if probe.ErrorCode != 0 {
		return nil, &APIError{Status: resp.StatusCode, Code: probe.ErrorCode, Message: probe.ErrorMessage}
	}
	return body, nil
}
