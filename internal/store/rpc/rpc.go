// Package rpc calls the intersection procedure through the store's REST RPC
// endpoint (PostgREST, as exposed by Supabase).
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mohammed-shakir/zoning-relay/internal/core/config"
	"github.com/mohammed-shakir/zoning-relay/internal/core/geo"
	"github.com/mohammed-shakir/zoning-relay/internal/core/model"
	"github.com/mohammed-shakir/zoning-relay/internal/core/observability"
	"github.com/mohammed-shakir/zoning-relay/internal/store"
)

const upstream = "rpc"

func init() {
	store.Register(config.BackendRPC, func(_ context.Context, cfg config.Config, deps store.Deps) (store.Interface, error) {
		return New(deps.Logger, deps.HTTP, cfg.Store)
	})
}

type Client struct {
	logger   *slog.Logger
	client   *http.Client
	endpoint string
	key      string
	param    string
	encoding string
	timeout  time.Duration
	startNow func() time.Time // for tests
}

func New(logger *slog.Logger, client *http.Client, cfg config.StoreCfg) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("parse store url %q: invalid absolute URL", cfg.URL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		logger:   logger,
		client:   client,
		endpoint: base.JoinPath("rest", "v1", "rpc", cfg.Function).String(),
		key:      cfg.Key,
		param:    cfg.Param,
		encoding: cfg.Encoding,
		timeout:  cfg.Timeout,
		startNow: time.Now,
	}, nil
}

// Intersect posts {param: expression} and returns the response array as sent.
func (c *Client) Intersect(ctx context.Context, p model.UserPolygon) (json.RawMessage, error) {
	expr, err := geo.Expression(p, c.encoding)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(map[string]string{c.param: expr})
	if err != nil {
		return nil, fmt.Errorf("encode rpc body: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)

	start := c.startNow()
	resp, err := c.client.Do(req)
	if err != nil {
		kind := "transport"
		if errors.Is(err, context.DeadlineExceeded) {
			kind = "timeout"
		}
		observability.IncUpstreamError(upstream, kind)
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	dur := time.Since(start)
	observability.ObserveUpstreamLatency(upstream, dur.Seconds())
	c.logger.DebugContext(ctx, "rpc done",
		"status", resp.StatusCode,
		"duration", dur.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		observability.IncUpstreamError(upstream, "status")
		return nil, &store.Error{Status: resp.StatusCode, Message: errorMessage(b, resp.Status)}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return b, nil
}

// errorMessage pulls the message out of a PostgREST error body.
func errorMessage(b []byte, status string) string {
	var pgErr struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(b, &pgErr); err == nil {
		if pgErr.Message != "" {
			return pgErr.Message
		}
		if pgErr.Error != "" {
			return pgErr.Error
		}
	}
	if s := strings.TrimSpace(string(b)); s != "" {
		return s
	}
	return status
}
