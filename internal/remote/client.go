package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"resty.dev/v3"
)

// Config configures the HTTP record client.
type Config struct {
	BaseURL    string        `mapstructure:"base_url"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Retries    uint          `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	RatePerSec float64       `mapstructure:"rate_per_sec"`
}

// DefaultConfig returns conservative client settings with no base URL.
func DefaultConfig() Config {
	return Config{
		Timeout:    10 * time.Second,
		Retries:    2,
		RetryDelay: 200 * time.Millisecond,
		RatePerSec: 5,
	}
}

// Client talks to the record service over HTTP/JSON:
//
//	PUT    /sessions/{id}
//	GET    /sessions/{id}
//	DELETE /sessions/{id}
//	GET    /owners/{owner}/sessions?status=in_progress
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	cfg     Config
	log     *zap.Logger
}

type listResponse struct {
	Sessions []Record `json:"sessions"`
}

// NewClient creates a record service client.
func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote: base URL is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	hc := resty.New()
	hc.SetBaseURL(cfg.BaseURL)
	hc.SetHeader("Content-Type", "application/json")
	if cfg.Token != "" {
		hc.SetAuthToken(cfg.Token)
	}
	if cfg.Timeout > 0 {
		hc.SetTimeout(cfg.Timeout)
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}

	return &Client{
		http:    hc,
		limiter: rate.NewLimiter(limit, 1),
		cfg:     cfg,
		log:     log,
	}, nil
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.http.Close()
}

// CreateOrUpdate upserts rec.
func (c *Client) CreateOrUpdate(ctx context.Context, rec Record) error {
	return c.do(ctx, "create or update", func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetPathParam("id", rec.SessionID).
			SetBody(rec).
			Put("/sessions/{id}")
		if err != nil {
			return err
		}
		if resp.IsError() {
			return &StatusError{Code: resp.StatusCode(), Body: resp.String()}
		}
		return nil
	})
}

// GetInProgress lists the owner's in-progress records.
func (c *Client) GetInProgress(ctx context.Context, ownerID string) ([]Record, error) {
	var out []Record
	err := c.do(ctx, "list in progress", func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetPathParam("owner", ownerID).
			SetQueryParam("status", "in_progress").
			SetResult(&listResponse{}).
			Get("/owners/{owner}/sessions")
		if err != nil {
			return err
		}
		if resp.IsError() {
			return &StatusError{Code: resp.StatusCode(), Body: resp.String()}
		}
		if body, ok := resp.Result().(*listResponse); ok && body != nil {
			out = body.Sessions
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID fetches one record. A 404 means the service has no such record.
func (c *Client) GetByID(ctx context.Context, id string) (*Record, error) {
	var out *Record
	err := c.do(ctx, "get", func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetPathParam("id", id).
			SetResult(&Record{}).
			Get("/sessions/{id}")
		if err != nil {
			return err
		}
		if resp.StatusCode() == http.StatusNotFound {
			out = nil
			return nil
		}
		if resp.IsError() {
			return &StatusError{Code: resp.StatusCode(), Body: resp.String()}
		}
		rec, ok := resp.Result().(*Record)
		if !ok || rec == nil || rec.SessionID == "" {
			return fmt.Errorf("empty record body: %s", resp.String())
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a record. A 404 is treated as success.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, "delete", func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetPathParam("id", id).
			Delete("/sessions/{id}")
		if err != nil {
			return err
		}
		if resp.StatusCode() == http.StatusNotFound {
			return nil
		}
		if resp.IsError() {
			return &StatusError{Code: resp.StatusCode(), Body: resp.String()}
		}
		return nil
	})
}

// do runs call under the rate limiter, retrying transport failures and
// temporary statuses with backoff. Transport failures are reported as
// ErrUnreachable.
func (c *Client) do(ctx context.Context, op string, call func() error) error {
	err := retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			err := call()
			if err == nil {
				return nil
			}
			var se *StatusError
			if errors.As(err, &se) {
				if !se.Temporary() {
					return retry.Unrecoverable(err)
				}
				return err
			}
			if ctx.Err() != nil {
				return retry.Unrecoverable(err)
			}
			return fmt.Errorf("%w: %v", ErrUnreachable, err)
		},
		retry.Context(ctx),
		retry.Attempts(c.cfg.Retries+1),
		retry.Delay(c.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.log.Debug("retrying remote call", zap.String("op", op), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return fmt.Errorf("remote %s: %w", op, err)
	}
	return nil
}
