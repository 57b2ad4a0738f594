package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkonrad/go-concord/internal/application"
	"github.com/rkonrad/go-concord/internal/domain"
	"github.com/rkonrad/go-concord/internal/testutils"
)

func newTestServer(t *testing.T, mutate ...func(*ServerConfig)) *Server {
	t.Helper()

	set := &application.ProfileSet{
		Version:  "1.0.0",
		Profiles: []application.Profile{{Name: application.DefaultProfileName}},
	}
	engine, err := set.DefaultEngine()
	require.NoError(t, err)

	reconciler, err := application.NewReconciler(
		application.DefaultReconcilerConfig(), engine, testutils.NewMemStore(), nil)
	require.NoError(t, err)

	config := DefaultServerConfig()
	config.Addr = "127.0.0.1:0"
	for _, fn := range mutate {
		fn(&config)
	}

	server, err := NewServer(config, reconciler, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	return server
}

func doJSON(t *testing.T, handler http.Handler, method, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
}

type errorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func createReview(t *testing.T, handler http.Handler, id string) {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/reviews", map[string]string{"id": id})
	require.Equal(t, http.StatusCreated, rec.Code)
}

func putOrdering(t *testing.T, handler http.Handler, reviewID, participant string, items []string) {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPut, "/api/v1/reviews/"+reviewID+"/orderings",
		map[string]any{"participant": participant, "items": items})
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestNewServerValidation(t *testing.T) {
	set := &application.ProfileSet{
		Version:  "1.0.0",
		Profiles: []application.Profile{{Name: application.DefaultProfileName}},
	}
	engine, err := set.DefaultEngine()
	require.NoError(t, err)
	reconciler, err := application.NewReconciler(
		application.DefaultReconcilerConfig(), engine, testutils.NewMemStore(), nil)
	require.NoError(t, err)

	t.Run("nil reconciler is rejected", func(t *testing.T) {
		_, err := NewServer(DefaultServerConfig(), nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reconciler")
	})

	t.Run("missing address is rejected", func(t *testing.T) {
		config := DefaultServerConfig()
		config.Addr = ""
		_, err := NewServer(config, reconciler, nil)
		require.Error(t, err)
	})

	t.Run("zero rate limit is rejected", func(t *testing.T) {
		config := DefaultServerConfig()
		config.RateLimit = 0
		_, err := NewServer(config, reconciler, nil)
		require.Error(t, err)
	})

	t.Run("nil logger falls back to the default logger", func(t *testing.T) {
		server, err := NewServer(DefaultServerConfig(), reconciler, nil)
		require.NoError(t, err)
		assert.NotNil(t, server.logger)
	})
}

func TestCreateAndListReviews(t *testing.T) {
	handler := newTestServer(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/reviews", map[string]string{"id": "pr-42"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]string
	decodeJSON(t, rec, &created)
	assert.Equal(t, "pr-42", created["id"])

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/reviews", map[string]string{"id": "pr-42"})
	require.Equal(t, http.StatusConflict, rec.Code)
	var conflict errorPayload
	decodeJSON(t, rec, &conflict)
	assert.Equal(t, "conflict", conflict.Code)

	// Without a body the server assigns an identifier.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/reviews", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	decodeJSON(t, rec, &created)
	assert.NotEmpty(t, created["id"])
	assert.NotEqual(t, "pr-42", created["id"])

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/reviews", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed map[string][]string
	decodeJSON(t, rec, &listed)
	assert.Len(t, listed["reviews"], 2)
	assert.Contains(t, listed["reviews"], "pr-42")
}

func TestPutOrderingRejectsMalformedInput(t *testing.T) {
	handler := newTestServer(t).Handler()
	createReview(t, handler, "pr-1")

	tests := []struct {
		name       string
		target     string
		payload    any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing participant",
			target:     "/api/v1/reviews/pr-1/orderings",
			payload:    map[string]any{"items": []string{"a.go"}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_input",
		},
		{
			name:       "missing item sequence",
			target:     "/api/v1/reviews/pr-1/orderings",
			payload:    map[string]any{"participant": "alice"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_input",
		},
		{
			name:       "duplicate item",
			target:     "/api/v1/reviews/pr-1/orderings",
			payload:    map[string]any{"participant": "alice", "items": []string{"a.go", "a.go"}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_input",
		},
		{
			name:       "unknown review",
			target:     "/api/v1/reviews/missing/orderings",
			payload:    map[string]any{"participant": "alice", "items": []string{"a.go"}},
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, handler, http.MethodPut, tt.target, tt.payload)
			require.Equal(t, tt.wantStatus, rec.Code)
			var payload errorPayload
			decodeJSON(t, rec, &payload)
			assert.Equal(t, tt.wantCode, payload.Code)
			assert.NotEmpty(t, payload.Error)
		})
	}

	t.Run("malformed JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/reviews/pr-1/orderings",
			strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty vote is accepted", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPut, "/api/v1/reviews/pr-1/orderings",
			map[string]any{"participant": "carol", "items": []string{}})
		require.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestConsensusEndpoint(t *testing.T) {
	handler := newTestServer(t).Handler()
	createReview(t, handler, "pr-7")
	putOrdering(t, handler, "pr-7", "alice", []string{"a.go", "b.go", "c.go", "d.go"})
	putOrdering(t, handler, "pr-7", "bob", []string{"d.go", "c.go", "b.go", "a.go"})

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/reviews/pr-7/consensus", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp consensusResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "pr-7", resp.ReviewID)
	assert.Equal(t, domain.Consensus{"a.go", "b.go", "c.go", "d.go"}, resp.Consensus)
	assert.Equal(t, 2, resp.Metadata.ParticipantCount)
	assert.InDelta(t, 0.5, resp.Metadata.AgreementScore, 1e-9)

	// Opposite orderings disagree most about the endpoints.
	require.Len(t, resp.Metadata.Conflicts, 2)
	assert.Equal(t, "a.go", resp.Metadata.Conflicts[0].Item)
	assert.Equal(t, "d.go", resp.Metadata.Conflicts[1].Item)
	assert.InDelta(t, 1.5, resp.Metadata.Conflicts[0].StdDev, 1e-9)

	t.Run("conflict_limit truncates", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/v1/reviews/pr-7/consensus?conflict_limit=1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var limited consensusResponse
		decodeJSON(t, rec, &limited)
		require.Len(t, limited.Metadata.Conflicts, 1)
		assert.Equal(t, "a.go", limited.Metadata.Conflicts[0].Item)
	})

	t.Run("conflict_limit zero returns everything", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/v1/reviews/pr-7/consensus?conflict_limit=0", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var unlimited consensusResponse
		decodeJSON(t, rec, &unlimited)
		assert.Len(t, unlimited.Metadata.Conflicts, 2)
	})

	t.Run("negative conflict_limit is rejected", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/v1/reviews/pr-7/consensus?conflict_limit=-1", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-numeric conflict_limit is rejected", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/v1/reviews/pr-7/consensus?conflict_limit=many", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown review", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/v1/reviews/missing/consensus", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
		var payload errorPayload
		decodeJSON(t, rec, &payload)
		assert.Equal(t, "not_found", payload.Code)
	})
}

func TestDeleteOrderingEndpoint(t *testing.T) {
	handler := newTestServer(t).Handler()
	createReview(t, handler, "pr-3")
	putOrdering(t, handler, "pr-3", "alice", []string{"a.go"})

	rec := doJSON(t, handler, http.MethodDelete, "/api/v1/reviews/pr-3/orderings/alice", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/reviews/pr-3/orderings/alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/reviews/missing/orderings/alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMergeEndpoint(t *testing.T) {
	handler := newTestServer(t).Handler()
	createReview(t, handler, "pr-9")
	putOrdering(t, handler, "pr-9", "alice", []string{"a.go", "b.go", "c.go"})

	t.Run("explicit weight favors the incoming ordering", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/reviews/pr-9/merge",
			map[string]any{"items": []string{"b.go", "a.go", "d.go"}, "weight": 0.9})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			ReviewID string   `json:"review_id"`
			Merged   []string `json:"merged"`
		}
		decodeJSON(t, rec, &resp)
		assert.Equal(t, "pr-9", resp.ReviewID)
		assert.Equal(t, []string{"b.go", "a.go", "d.go", "c.go"}, resp.Merged)
	})

	t.Run("omitted weight uses the profile default", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/reviews/pr-9/merge",
			map[string]any{"items": []string{"b.go", "a.go", "d.go"}})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Merged []string `json:"merged"`
		}
		decodeJSON(t, rec, &resp)
		assert.Equal(t, []string{"a.go", "b.go", "c.go", "d.go"}, resp.Merged)
	})

	t.Run("out of range weight is rejected", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/reviews/pr-9/merge",
			map[string]any{"items": []string{"a.go"}, "weight": 1.5})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var payload errorPayload
		decodeJSON(t, rec, &payload)
		assert.Equal(t, "invalid_input", payload.Code)
	})

	t.Run("unknown review", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/reviews/missing/merge",
			map[string]any{"items": []string{"a.go"}})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDiffEndpoint(t *testing.T) {
	handler := newTestServer(t).Handler()

	t.Run("adjacent swap", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/diff", map[string]any{
			"a": []string{"a.go", "b.go", "c.go", "d.go"},
			"b": []string{"b.go", "a.go", "c.go", "d.go"},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Diff    domain.OrderDiff    `json:"diff"`
			Renames []domain.RenamePair `json:"renames"`
		}
		decodeJSON(t, rec, &resp)
		assert.Equal(t, 83, resp.Diff.Similarity)
		assert.Equal(t, 2, resp.Diff.TotalDisplacement)
		assert.Equal(t, 2, resp.Diff.Unchanged)
		assert.Equal(t, 2, resp.Diff.Moved)
		assert.NotNil(t, resp.Renames)
		assert.Empty(t, resp.Renames)
	})

	t.Run("rename detection", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/diff", map[string]any{
			"a": []string{"main.go", "internal/auth/login.go"},
			"b": []string{"main.go", "internal/auth/signin.go"},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Diff    domain.OrderDiff    `json:"diff"`
			Renames []domain.RenamePair `json:"renames"`
		}
		decodeJSON(t, rec, &resp)
		require.Len(t, resp.Renames, 1)
		assert.Equal(t, "internal/auth/login.go", resp.Renames[0].From)
		assert.Equal(t, "internal/auth/signin.go", resp.Renames[0].To)
		assert.InDelta(t, 1.0-3.0/23.0, resp.Renames[0].Similarity, 1e-9)
	})
}

func TestValidationEndpoint(t *testing.T) {
	handler := newTestServer(t).Handler()
	createReview(t, handler, "pr-5")
	putOrdering(t, handler, "pr-5", "alice", []string{"a.go", "b.go"})
	putOrdering(t, handler, "pr-5", "bob", []string{"b.go", "a.go"})

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/reviews/pr-5/validation", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result domain.ValidationResult
	decodeJSON(t, rec, &result)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Violations)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/reviews/missing/validation", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReconcileEndpoint(t *testing.T) {
	handler := newTestServer(t).Handler()
	createReview(t, handler, "pr-a")
	putOrdering(t, handler, "pr-a", "alice", []string{"a.go", "b.go"})
	putOrdering(t, handler, "pr-a", "bob", []string{"a.go", "b.go"})
	createReview(t, handler, "pr-b")
	putOrdering(t, handler, "pr-b", "carol", []string{"x.go"})

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/reconcile",
		map[string]any{"review_ids": []string{"pr-a", "pr-b", "missing"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Results []reconcileResult `json:"results"`
	}
	decodeJSON(t, rec, &resp)
	require.Len(t, resp.Results, 3)

	assert.Equal(t, "pr-a", resp.Results[0].ReviewID)
	assert.Equal(t, domain.Consensus{"a.go", "b.go"}, resp.Results[0].Consensus)
	require.NotNil(t, resp.Results[0].Metadata)
	assert.Equal(t, 2, resp.Results[0].Metadata.ParticipantCount)
	assert.Empty(t, resp.Results[0].Error)

	assert.Equal(t, "pr-b", resp.Results[1].ReviewID)
	assert.Empty(t, resp.Results[1].Error)

	// One broken review must not fail the batch.
	assert.Equal(t, "missing", resp.Results[2].ReviewID)
	assert.NotEmpty(t, resp.Results[2].Error)
	assert.Nil(t, resp.Results[2].Metadata)

	t.Run("empty batch is rejected", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/reconcile",
			map[string]any{"review_ids": []string{}})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing review_ids field is rejected", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/reconcile", map[string]any{})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRequestIDHeader(t *testing.T) {
	handler := newTestServer(t).Handler()

	t.Run("caller supplied id is echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(requestIDHeader, "req-abc-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, "req-abc-123", rec.Header().Get(requestIDHeader))
	})

	t.Run("missing id is generated", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/healthz", nil)
		assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
	})
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health struct {
		Status        string `json:"status"`
		UptimeSeconds int64  `json:"uptime_seconds"`
	}
	decodeJSON(t, rec, &health)
	assert.Equal(t, "ok", health.Status)
	assert.GreaterOrEqual(t, health.UptimeSeconds, int64(0))
}

func TestMetricsEndpoint(t *testing.T) {
	handler := newTestServer(t).Handler()

	// Drive one API request through the middleware so the HTTP series exist.
	doJSON(t, handler, http.MethodGet, "/api/v1/reviews", nil)

	rec := doJSON(t, handler, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRateLimiting(t *testing.T) {
	server := newTestServer(t, func(c *ServerConfig) {
		c.RateLimit = 1
		c.RateBurst = 1
	})
	handler := server.Handler()

	first := doJSON(t, handler, http.MethodGet, "/api/v1/reviews", nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := doJSON(t, handler, http.MethodGet, "/api/v1/reviews", nil)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
	var payload errorPayload
	decodeJSON(t, second, &payload)
	assert.Equal(t, "rate_limited", payload.Code)

	// Health stays reachable when the API bucket is drained.
	health := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, health.Code)
}

func TestMaxBodyBytes(t *testing.T) {
	server := newTestServer(t, func(c *ServerConfig) {
		c.MaxBodyBytes = 64
	})
	handler := server.Handler()
	createReview(t, handler, "pr-1")

	items := make([]string, 0, 32)
	for i := 0; i < 32; i++ {
		items = append(items, strings.Repeat("x", 8)+".go")
	}
	rec := doJSON(t, handler, http.MethodPut, "/api/v1/reviews/pr-1/orderings",
		map[string]any{"participant": "alice", "items": items})
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	var payload errorPayload
	decodeJSON(t, rec, &payload)
	assert.Equal(t, "payload_too_large", payload.Code)
}

func TestServerStartShutdown(t *testing.T) {
	server := newTestServer(t)
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})

	addr := server.Addr()
	require.NotEmpty(t, addr)

	// A second start on a running server must fail.
	require.Error(t, server.Start(context.Background()))

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))
	// Shutdown is idempotent.
	require.NoError(t, server.Shutdown(ctx))
}
