package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteProblem(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "req-1")
	r := httptest.NewRequest(http.MethodPost, "/api/calculator/submit", nil)

	p := Problem(http.StatusUnprocessableEntity, "Please fix the highlighted fields.")
	p.Fields = map[string]string{"importer": "Please select an importer."}
	WriteProblem(w, r, p)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	var got ProblemDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Unprocessable Entity", got.Title)
	assert.Equal(t, "/api/calculator/submit", got.Instance)
	assert.Equal(t, "req-1", got.TraceID)
	assert.Equal(t, "Please select an importer.", got.Fields["importer"])
}

func TestWriteInternal_HidesError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternal(w, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("db password=hunter2"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")
}

func TestWriteUnauthorized_DefaultDetail(t *testing.T) {
	w := httptest.NewRecorder()
	WriteUnauthorized(w, httptest.NewRequest(http.MethodGet, "/", nil), "")
	assert.Contains(t, w.Body.String(), "Authentication required")
}

func TestRateLimiter_Middleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, 1, 1)

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) int {
		r := httptest.NewRequest(http.MethodPost, "/auth/signin", nil)
		r.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:1235"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1234"), "limits are per IP")
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, 10, 10)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(visitorIdle + time.Second)
	rl.Allow("b")
	rl.evictIdle()

	assert.Equal(t, 1, rl.Len())
}
