package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/flowstudio/api/handlers"
	"github.com/BaSui01/flowstudio/config"
	"github.com/BaSui01/flowstudio/types"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *handlers.ErrorInfo {
	t.Helper()
	var resp handlers.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders()(okHandler())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
}

func TestSecurityHeaders_ChainedWithOtherMiddleware(t *testing.T) {
	handler := Chain(okHandler(), SecurityHeaders(), RequestID())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = types.RequestID(r.Context())
	}))

	t.Run("preserves client id", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-ID", "client-1")
		handler.ServeHTTP(w, r)
		assert.Equal(t, "client-1", w.Header().Get("X-Request-ID"))
		assert.Equal(t, "client-1", seen)
	})

	t.Run("generates when missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		id := w.Header().Get("X-Request-ID")
		assert.True(t, strings.HasPrefix(id, "req-"))
		assert.Len(t, id, 4+32)
		assert.Equal(t, id, seen)
	})

	t.Run("replaces oversized id", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-ID", strings.Repeat("x", 200))
		handler.ServeHTTP(w, r)
		assert.True(t, strings.HasPrefix(w.Header().Get("X-Request-ID"), "req-"))
	})
}

func TestRecovery(t *testing.T) {
	handler := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), Recovery(zap.NewNop()))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(types.ErrInternalError), decodeError(t, w).Code)
}

func TestRecovery_RepanicsAbortHandler(t *testing.T) {
	handler := Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimiter(ctx, 1, 2, zap.NewNop())(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		handler.ServeHTTP(w, r)
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			info := decodeError(t, w)
			assert.Equal(t, string(types.ErrRateLimited), info.Code)
			assert.True(t, info.Retryable)
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// another client has its own bucket
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.2:1234"
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter_DisabledWithoutRate(t *testing.T) {
	handler := RateLimiter(context.Background(), 0, 0, zap.NewNop())(okHandler())
	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

// =============================================================================
// 🔐 JWT
// =============================================================================

const testSecret = "test-secret-with-enough-length"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func TestJWTAuth(t *testing.T) {
	cfg := config.JWTConfig{Enabled: true, Secret: testSecret, Issuer: "flowstudio"}
	var user string
	handler := JWTAuth(cfg, []string{"/health"}, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ = types.UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	valid := signToken(t, jwt.MapClaims{
		"sub": "alice",
		"iss": "flowstudio",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	tests := []struct {
		name     string
		method   string
		path     string
		header   string
		wantCode int
		wantUser string
	}{
		{name: "valid token", method: http.MethodGet, path: "/api/v1/workflows", header: "Bearer " + valid, wantCode: http.StatusNoContent, wantUser: "alice"},
		{name: "missing header", method: http.MethodGet, path: "/api/v1/workflows", wantCode: http.StatusUnauthorized},
		{name: "not bearer", method: http.MethodGet, path: "/api/v1/workflows", header: "Basic abc", wantCode: http.StatusUnauthorized},
		{name: "garbage token", method: http.MethodGet, path: "/api/v1/workflows", header: "Bearer abc.def.ghi", wantCode: http.StatusUnauthorized},
		{name: "skipped path", method: http.MethodGet, path: "/health", wantCode: http.StatusNoContent},
		{name: "preflight", method: http.MethodOptions, path: "/api/v1/workflows", wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user = ""
			w := httptest.NewRecorder()
			r := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			handler.ServeHTTP(w, r)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantUser, user)
			if tt.wantCode == http.StatusUnauthorized {
				assert.Equal(t, string(types.ErrUnauthorized), decodeError(t, w).Code)
			}
		})
	}
}

func TestJWTAuth_RejectsWrongIssuerAndExpired(t *testing.T) {
	cfg := config.JWTConfig{Enabled: true, Secret: testSecret, Issuer: "flowstudio"}
	handler := JWTAuth(cfg, nil, zap.NewNop())(okHandler())

	for name, claims := range map[string]jwt.MapClaims{
		"wrong issuer": {"sub": "bob", "iss": "someone-else", "exp": time.Now().Add(time.Hour).Unix()},
		"expired":      {"sub": "bob", "iss": "flowstudio", "exp": time.Now().Add(-time.Hour).Unix()},
	} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/v1/workflows", nil)
			r.Header.Set("Authorization", "Bearer "+signToken(t, claims))
			handler.ServeHTTP(w, r)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestJWTAuth_UserIDClaimAndQueryToken(t *testing.T) {
	cfg := config.JWTConfig{Enabled: true, Secret: testSecret}
	var user string
	handler := JWTAuth(cfg, nil, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ = types.UserID(r.Context())
	}))
	tok := signToken(t, jwt.MapClaims{"user_id": "u-42", "exp": time.Now().Add(time.Hour).Unix()})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/executions/e1/events?access_token="+tok, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-42", user)

	// query tokens are only honoured on event streams
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/executions/e1?access_token="+tok, nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// =============================================================================
// 📊 Metrics
// =============================================================================

type httpCall struct {
	method, path string
	status       int
	respSize     int64
}

type fakeHTTPRecorder struct {
	mu    sync.Mutex
	calls []httpCall
}

func (f *fakeHTTPRecorder) RecordHTTPRequest(method, path string, status int, _ time.Duration, _, respSize int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, httpCall{method: method, path: path, status: status, respSize: respSize})
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	rec := &fakeHTTPRecorder{}
	r := chi.NewRouter()
	r.Use(MetricsMiddleware(rec))
	r.Get("/workflows/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	})

	for _, path := range []string{"/workflows/a", "/workflows/b", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Len(t, rec.calls, 3)
	assert.Equal(t, httpCall{http.MethodGet, "/workflows/{id}", http.StatusOK, 5}, rec.calls[0])
	assert.Equal(t, "/workflows/{id}", rec.calls[1].path)
	assert.Equal(t, "unmatched", rec.calls[2].path)
	assert.Equal(t, http.StatusNotFound, rec.calls[2].status)
}

// =============================================================================
// 🔌 statusWriter
// =============================================================================

type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestStatusWriter_Hijack(t *testing.T) {
	inner := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	sw := newStatusWriter(inner)

	_, _, err := sw.Hijack()
	require.NoError(t, err)
	assert.True(t, inner.hijacked)
	assert.Equal(t, http.StatusSwitchingProtocols, sw.status)
	assert.Same(t, http.ResponseWriter(inner), sw.Unwrap())
}

func TestStatusWriter_HijackUnsupported(t *testing.T) {
	sw := newStatusWriter(httptest.NewRecorder())
	_, _, err := sw.Hijack()
	assert.Error(t, err)
}
