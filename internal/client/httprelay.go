package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mohammed-shakir/zoning-relay/internal/core/model"
)

// HTTPRelay calls the relay's check endpoint over HTTP.
type HTTPRelay struct {
	URL    string
	Field  string
	Key    string // sent as apikey and bearer token when set
	Client *http.Client
}

func (r *HTTPRelay) Check(ctx context.Context, polygon json.RawMessage) ([]model.IntersectionResult, error) {
	field := r.Field
	if field == "" {
		field = "userPolygonGeoJSON"
	}
	body, err := json.Marshal(map[string]json.RawMessage{field: polygon})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if r.Key != "" {
		req.Header.Set("apikey", r.Key)
		req.Header.Set("Authorization", "Bearer "+r.Key)
	}

	cli := r.Client
	if cli == nil {
		cli = http.DefaultClient
	}
	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call relay: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read relay response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(relayError(b, resp.Status))
	}
	return model.DecodeResults(b)
}

func relayError(b []byte, status string) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		return e.Error
	}
	if s := strings.TrimSpace(string(b)); s != "" {
		return s
	}
	return status
}
