// Package relay serves the zoning check endpoint: it accepts a user polygon,
// forwards it to the spatial store and passes the result array back.
package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mohammed-shakir/zoning-relay/internal/core/config"
	"github.com/mohammed-shakir/zoning-relay/internal/core/geo"
	"github.com/mohammed-shakir/zoning-relay/internal/core/model"
	"github.com/mohammed-shakir/zoning-relay/internal/core/observability"
	"github.com/mohammed-shakir/zoning-relay/internal/store"
)

// HandleCheck validates the request, calls the store and relays its answer.
// route is only used as the metrics label.
func HandleCheck(logger *slog.Logger, cfg config.RelayCfg, st store.Interface, route string) http.HandlerFunc {
	field := cfg.PolygonField
	if field == "" {
		field = "userPolygonGeoJSON"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
		}()

		if r.Method != http.MethodPost {
			sw.Header().Set("Allow", http.MethodPost)
			writeError(sw, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if cfg.MaxBodyBytes > 0 {
			r.Body = http.MaxBytesReader(sw, r.Body, cfg.MaxBodyBytes)
		}
		poly, status, err := ParseCheckRequest(r.Body, field)
		if err != nil {
			logger.DebugContext(r.Context(), "rejected check request", "status", status, "err", err)
			writeError(sw, status, err.Error())
			return
		}

		out, err := st.Intersect(r.Context(), poly)
		if err != nil {
			logger.ErrorContext(r.Context(), "intersect failed", "err", err)
			writeError(sw, http.StatusInternalServerError, storeMessage(err))
			return
		}

		out, n, err := normalizeResults(out)
		if err != nil {
			logger.ErrorContext(r.Context(), "store returned unexpected payload", "err", err)
			writeError(sw, http.StatusInternalServerError, "spatial store returned an unexpected payload")
			return
		}
		observability.ObserveResults(n)

		sw.Header().Set("Content-Type", "application/json")
		sw.WriteHeader(http.StatusOK)
		_, _ = sw.Write(out)
	}
}

// ParseCheckRequest reads {field: <GeoJSON polygon>} and returns the polygon,
// or the HTTP status to answer with.
func ParseCheckRequest(body io.Reader, field string) (model.UserPolygon, int, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return model.UserPolygon{}, http.StatusRequestEntityTooLarge,
				fmt.Errorf("request body exceeds %d bytes", tooBig.Limit)
		}
		return model.UserPolygon{}, http.StatusBadRequest, fmt.Errorf("read body: %w", err)
	}

	var req map[string]json.RawMessage
	if err := json.Unmarshal(raw, &req); err != nil {
		return model.UserPolygon{}, http.StatusBadRequest, errors.New("request body must be a JSON object")
	}
	v, ok := req[field]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return model.UserPolygon{}, http.StatusBadRequest, fmt.Errorf("missing %s in request body", field)
	}

	// Some clients send the geometry as a JSON string.
	var s string
	if json.Unmarshal(v, &s) == nil {
		v = []byte(s)
	}

	p, err := geo.ParsePolygon(v)
	if err != nil {
		return model.UserPolygon{}, http.StatusBadRequest, fmt.Errorf("invalid %s: %w", field, err)
	}
	return p, http.StatusOK, nil
}

// normalizeResults checks the store answered with an array and counts it.
// null becomes [].
func normalizeResults(b []byte) ([]byte, int, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return []byte("[]"), 0, nil
	}
	var items []json.RawMessage
	if b[0] != '[' {
		return nil, 0, errors.New("result is not a JSON array")
	}
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, 0, fmt.Errorf("decode result array: %w", err)
	}
	return b, len(items), nil
}

func storeMessage(err error) string {
	var se *store.Error
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return err.Error()
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
