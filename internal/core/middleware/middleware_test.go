package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mylog "github.com/mohammed-shakir/zoning-relay/internal/logger"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLogging_PropagatesAndEchoesRequestID(t *testing.T) {
	var seen string
	h := Logging(discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = mylog.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/check", nil)
	req.Header.Set("X-Request-ID", "abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if seen != "abc" || rr.Header().Get("X-Request-ID") != "abc" {
		t.Fatalf("seen=%q header=%q want abc", seen, rr.Header().Get("X-Request-ID"))
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/check", nil))
	if seen == "" || rr.Header().Get("X-Request-ID") != seen {
		t.Fatalf("generated id not echoed: seen=%q header=%q", seen, rr.Header().Get("X-Request-ID"))
	}
}

func TestBackend_TagsRequestLogs(t *testing.T) {
	var buf bytes.Buffer
	zl := mylog.Build(mylog.Config{Level: "debug"}, &buf)
	l := mylog.NewSlog(&zl)

	h := Logging(discard())(Backend("postgis")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		l.InfoContext(r.Context(), "handled")
	})))
	req := httptest.NewRequest(http.MethodPost, "/check", nil)
	req.Header.Set("X-Request-ID", "rid-7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if line["backend"] != "postgis" || line["request_id"] != "rid-7" {
		t.Fatalf("line=%v want backend postgis and request id rid-7", line)
	}
}

func TestRecover_PanicBecomesJSON500(t *testing.T) {
	h := Recover(discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/check", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"error"`) {
		t.Fatalf("body=%q want JSON error", rr.Body.String())
	}
}

func TestCORS_OptionsReachesHandlerByDefault(t *testing.T) {
	called := false
	h := CORS("https://map.example", false)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	req := httptest.NewRequest(http.MethodOptions, "/check", nil)
	req.Header.Set("Origin", "https://map.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if !called || rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d called=%v want handler to answer", rr.Code, called)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://map.example" {
		t.Fatalf("allow-origin=%q", got)
	}
}

func TestCORS_PreflightEnabled(t *testing.T) {
	cases := []struct {
		name       string
		origin     string
		reqMethod  string
		wantStatus int
		wantCalled bool
	}{
		{"browser preflight", "https://map.example", "POST", http.StatusNoContent, false},
		{"bare options", "", "", http.StatusMethodNotAllowed, true},
		{"origin only", "https://map.example", "", http.StatusMethodNotAllowed, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			h := CORS("https://map.example", true)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				called = true
				w.WriteHeader(http.StatusMethodNotAllowed)
			}))
			req := httptest.NewRequest(http.MethodOptions, "/check", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.reqMethod != "" {
				req.Header.Set("Access-Control-Request-Method", tc.reqMethod)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus || called != tc.wantCalled {
				t.Fatalf("status=%d called=%v want %d/%v", rr.Code, called, tc.wantStatus, tc.wantCalled)
			}
			if tc.wantStatus == http.StatusNoContent && !strings.Contains(rr.Header().Get("Access-Control-Allow-Methods"), "POST") {
				t.Fatalf("allow-methods=%q", rr.Header().Get("Access-Control-Allow-Methods"))
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	if NewLimiter(0, 5) != nil {
		t.Fatal("zero rps should disable limiting")
	}

	h := RateLimit(NewLimiter(0.001, 1))(ok)
	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/check", nil))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/check", nil))

	if first.Code != http.StatusOK {
		t.Fatalf("first status=%d want 200", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status=%d want 429", second.Code)
	}

	unlimited := RateLimit(nil)(ok)
	rr := httptest.NewRecorder()
	unlimited.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/check", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("nil limiter status=%d", rr.Code)
	}
}
