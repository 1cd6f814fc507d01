// Package remote is the HTTP client for the restaurant review server.
//
// Each method maps to one server endpoint:
//
//	FetchRestaurants  GET  /restaurants
//	FetchReviews      GET  /reviews?restaurant_id={id}
//	PutFavorite       PUT  /restaurants/{id}?is_favorite={bool}
//	PostReview        POST /reviews
//
// The client performs no retries and no caching. Transport failures are
// reported as ErrUnreachable and non-2xx responses as *ServerError, so the
// caller can decide between cache fallback and queuing.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/schema"
)

// DefaultBaseURL is the development server address.
const DefaultBaseURL = "http://localhost:1337"

// maxErrorBody bounds how much of a failed response is kept for diagnostics.
const maxErrorBody = 4096

var (
	// ErrUnreachable means the request never produced an HTTP response:
	// connection refused, DNS failure, timeout, or an open circuit breaker.
	ErrUnreachable = errors.New("server unreachable")

	// ErrServerError matches any *ServerError through errors.Is.
	ErrServerError = errors.New("server error")
)

// ServerError is a response the server produced but that cannot be used:
// a non-2xx status or an undecodable body.
type ServerError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// Is lets errors.Is(err, ErrServerError) match.
func (e *ServerError) Is(target error) bool {
	return target == ErrServerError
}

// Permanent reports whether replaying the same request cannot succeed.
func (e *ServerError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 &&
		e.StatusCode != http.StatusRequestTimeout &&
		e.StatusCode != http.StatusTooManyRequests
}

// IsNetworkError reports whether err is one of the errors the sync layer
// recovers from by falling back to the cache or the retry queue.
func IsNetworkError(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrServerError)
}

// BreakerConfig configures the optional circuit breaker.
type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker (default: 5)
	ConsecutiveFailures uint32

	// Cooldown is how long the breaker stays open before probing (default: 30s)
	Cooldown time.Duration
}

// Config holds client configuration.
type Config struct {
	// BaseURL of the review server (default: DefaultBaseURL)
	BaseURL string

	// Timeout bounds every request (default: 10s, 0 disables)
	Timeout time.Duration

	// HTTPClient overrides the transport (default: a new http.Client)
	HTTPClient *http.Client

	// Breaker enables fast failure while the server is down (nil disables)
	Breaker *BreakerConfig

	// Logger for breaker state changes
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Timeout: 10 * time.Second,
		Logger:  log.New(os.Stderr, "[remote] ", log.LstdFlags),
	}
}

// Client talks to the review server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	breaker    *gobreaker.CircuitBreaker
	logger     *log.Logger
}

// NewClient creates a client from config. A nil config uses DefaultConfig.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	base := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", base)
	}

	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    base,
		timeout:    config.Timeout,
		logger:     logger,
	}
	if config.Breaker != nil {
		c.breaker = newBreaker(*config.Breaker, logger)
	}
	return c, nil
}

// BaseURL returns the server address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func newBreaker(config BreakerConfig, logger *log.Logger) *gobreaker.CircuitBreaker {
	if config.ConsecutiveFailures == 0 {
		config.ConsecutiveFailures = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "review-server",
		MaxRequests: 1,
		Timeout:     config.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ConsecutiveFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Printf("Circuit breaker '%s' state changed from %v to %v", name, from, to)
		},
		// Only an unreachable or failing server counts against the breaker.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var se *ServerError
			if errors.As(err, &se) {
				return se.StatusCode < 500
			}
			return !errors.Is(err, ErrUnreachable)
		},
	})
}

// FetchRestaurants returns every restaurant known to the server.
func (c *Client) FetchRestaurants(ctx context.Context) ([]schema.Restaurant, error) {
	var out []schema.Restaurant
	if err := c.do(ctx, http.MethodGet, "/restaurants", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []schema.Restaurant{}
	}
	return out, nil
}

// FetchReviews returns the server's reviews for one restaurant.
func (c *Client) FetchReviews(ctx context.Context, restaurantID int64) ([]schema.Review, error) {
	q := url.Values{}
	q.Set("restaurant_id", strconv.FormatInt(restaurantID, 10))

	var out []schema.Review
	if err := c.do(ctx, http.MethodGet, "/reviews?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []schema.Review{}
	}
	return out, nil
}

// PutFavorite sets the favorite flag of a restaurant. The response body is
// ignored.
func (c *Client) PutFavorite(ctx context.Context, restaurantID int64, isFavorite bool) error {
	q := url.Values{}
	q.Set("is_favorite", strconv.FormatBool(isFavorite))
	path := fmt.Sprintf("/restaurants/%d?%s", restaurantID, q.Encode())
	return c.do(ctx, http.MethodPut, path, nil, nil)
}

// PostReview submits a review and returns the server's canonical record.
// The local key never leaves the client.
func (c *Client) PostReview(ctx context.Context, review schema.Review) (*schema.Review, error) {
	review.LocalKey = 0

	var out schema.Review
	if err := c.do(ctx, http.MethodPost, "/reviews", review, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if c.breaker == nil {
		return c.roundTrip(ctx, method, path, body, out)
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s %s: %v", ErrUnreachable, method, path, err)
	}
	return err
}

// roundTrip makes one request. When the caller's own context ends the call,
// its error is returned as is: the server was never judged.
func (c *Client) roundTrip(ctx context.Context, method, path string, body any, out any) error {
	caller := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("failed to build request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if callerErr := caller.Err(); callerErr != nil {
			return callerErr
		}
		return fmt.Errorf("%w: %s %s: %v", ErrUnreachable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ServerError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if callerErr := caller.Err(); callerErr != nil {
			return callerErr
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s %s: %v", ErrUnreachable, method, path, err)
		}
		return &ServerError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       fmt.Sprintf("invalid response body: %v", err),
		}
	}
	return nil
}
