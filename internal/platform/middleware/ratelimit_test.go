package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opsboard/opsboard/internal/platform/middleware"
	"github.com/opsboard/opsboard/internal/platform/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

type countingObserver struct{ scopes []string }

func (o *countingObserver) ObserveRateLimited(scope string) { o.scopes = append(o.scopes, scope) }

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	obs := &countingObserver{}
	handler := middleware.RateLimit(ratelimit.NewMemory(1, time.Minute), "login", nil, obs)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = "192.0.2.10:5555"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
	assert.Equal(t, []string{"login"}, obs.scopes)

	// A different client is unaffected
	other := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	other.RemoteAddr = "192.0.2.11:5555"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, other)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	called := false
	handler := middleware.RateLimit(failingLimiter{}, "login", nil, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		}),
	)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	handler := middleware.RateLimit(ratelimit.NewMemory(1, time.Minute), "login", nil, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	codes := make([]int, 0, 3)
	for _, spoofed := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "192.0.2.10:5555"
		req.Header.Set("X-Forwarded-For", spoofed)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestRateLimit_KeysOnClientBehindTrustedProxy(t *testing.T) {
	proxies, err := middleware.ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	handler := middleware.RateLimit(ratelimit.NewMemory(1, time.Minute), "login", proxies, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	send := func(client string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "10.0.0.2:5555"
		req.Header.Set("X-Forwarded-For", client)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.5"))
	assert.Equal(t, http.StatusOK, send("203.0.113.6"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.5"))
}

func TestTrustedProxies_ClientIP(t *testing.T) {
	proxies, err := middleware.ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		proxies middleware.TrustedProxies
		remote  string
		xff     string
		want    string
	}{
		{"no proxies configured", nil, "198.51.100.7:1234", "203.0.113.5", "198.51.100.7"},
		{"untrusted peer", proxies, "198.51.100.7:1234", "203.0.113.5", "198.51.100.7"},
		{"trusted peer", proxies, "10.1.2.3:1234", "203.0.113.5", "203.0.113.5"},
		{"spoofed leftmost hop", proxies, "10.1.2.3:1234", "1.2.3.4, 203.0.113.5", "203.0.113.5"},
		{"chain of proxies", proxies, "192.0.2.1:1234", "203.0.113.5, 10.9.9.9", "203.0.113.5"},
		{"trusted peer without header", proxies, "10.1.2.3:1234", "", "10.1.2.3"},
		{"malformed hop", proxies, "10.1.2.3:1234", "not-an-ip", "10.1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, tt.proxies.ClientIP(req))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	proxies, err := middleware.ParseTrustedProxies([]string{" 10.0.0.0/8 ", "", "::1"})
	require.NoError(t, err)
	assert.Len(t, proxies, 2)

	_, err = middleware.ParseTrustedProxies([]string{"10.0.0.0/99"})
	assert.Error(t, err)
	_, err = middleware.ParseTrustedProxies([]string{"proxy.internal"})
	assert.Error(t, err)
}
