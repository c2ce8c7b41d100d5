// Package profile implements the child profile and access collaborators:
// an HTTP client for the profile service and a static in-memory provider.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/titinauta/journey-engine/internal/domain/child"
	"github.com/titinauta/journey-engine/internal/domain/shared"
	"github.com/titinauta/journey-engine/pkg/circuitbreaker"
	"github.com/titinauta/journey-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the profile service client.
type ClientConfig struct {
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	Timeout time.Duration

	// RateLimit throttles outgoing calls. The zero value uses
	// DefaultRateLimiterConfig.
	RateLimit RateLimiterConfig

	Logger *logger.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:   baseURL,
		Timeout:   5 * time.Second,
		RateLimit: DefaultRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client calls the child profile service. It implements child.ProfileProvider
// and child.Authorizer. Transport failures, 429 and 5xx responses count
// against a circuit breaker; other 4xx responses do not.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	limiter    *RateLimiter
	breaker    *circuitbreaker.CircuitBreaker
	log        *logger.Logger
}

// NewClient creates a new profile service client.
func NewClient(config ClientConfig) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("profile_client"))

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    NewRateLimiter(config.RateLimit),
		breaker: circuitbreaker.ProfileServiceBreaker(shared.IsExternalService, func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
		log: log,
	}
}

// GetChild fetches a child's profile.
func (c *Client) GetChild(ctx context.Context, childID string) (*child.Child, error) {
	var dto ChildDTO
	err := c.doRequest(ctx, "GetChild", "/children/"+url.PathEscape(childID), &dto)
	if err != nil {
		var apiErr *APIErrorDTO
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, shared.ErrChildNotFound
		}
		return nil, err
	}
	if dto.ID == "" {
		dto.ID = childID
	}

	c2, err := dto.ToDomain()
	if err != nil {
		return nil, shared.External("profile", "GetChild", err)
	}
	return c2, nil
}

// CanAccess asks the profile service whether userID may act on childID.
// A 403 or 404 answer means no access.
func (c *Client) CanAccess(ctx context.Context, userID, childID string) (bool, error) {
	path := fmt.Sprintf("/users/%s/children/%s/access", url.PathEscape(userID), url.PathEscape(childID))

	var dto AccessDTO
	err := c.doRequest(ctx, "CanAccess", path, &dto)
	if err != nil {
		var apiErr *APIErrorDTO
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusForbidden || apiErr.Status == http.StatusNotFound) {
			return false, nil
		}
		return false, err
	}
	return dto.Allowed, nil
}

// Ping checks that the service answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.doRequest(ctx, "Ping", "/health", nil)
}

// BreakerState reports the circuit breaker state for health output.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

// doRequest performs a GET through the circuit breaker. Errors that should
// trip the breaker or be retried come back as shared.External; 4xx
// responses come back as *APIErrorDTO.
func (c *Client) doRequest(ctx context.Context, op, path string, result any) error {
	if err := c.limiter.Allow(ctx); err != nil {
		c.log.Warn("profile api throttled", logger.Operation(op), logger.Err(err))
		return shared.External("profile", op, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err))
	}
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.doSingleRequest(ctx, op, path, result)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return shared.External("profile", op, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err))
	}
	return err
}

func (c *Client) doSingleRequest(ctx context.Context, op, path string, result any) error {
	fullURL := strings.TrimRight(c.config.BaseURL, "/") + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return shared.External("profile", op, fmt.Errorf("%w: %v", shared.ErrTimeout, err))
		}
		return shared.External("profile", op, fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return shared.External("profile", op, fmt.Errorf("read response: %w", err))
	}

	c.log.Debug("profile api request",
		logger.Operation(op),
		logger.Int("status", resp.StatusCode),
		logger.Latency(time.Since(start)),
	)

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.RecordRateLimitHit(parseRetryAfter(resp.Header))
		return shared.External("profile", op, fmt.Errorf("%w: status 429", shared.ErrServiceUnavailable))
	}
	if resp.StatusCode >= 500 {
		return shared.External("profile", op, fmt.Errorf("%w: status %d", shared.ErrServiceUnavailable, resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIErrorDTO{Status: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return shared.External("profile", op, fmt.Errorf("unmarshal response: %w", err))
		}
	}
	return nil
}

var (
	_ child.ProfileProvider = (*Client)(nil)
	_ child.Authorizer      = (*Client)(nil)
)
