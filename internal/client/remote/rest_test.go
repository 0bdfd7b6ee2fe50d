package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/storyline/internal/client/models"
)

type waits struct {
	mu  sync.Mutex
	got []time.Duration
}

func (w *waits) observe(_ int, d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.got = append(w.got, d)
}

func (w *waits) all() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.got...)
}

func newREST(t *testing.T, h http.HandlerFunc, w *waits) *RESTClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts := RetryOptions{Max: 2, Base: time.Millisecond}
	if w != nil {
		opts.Observer = w.observe
	}
	c := NewRESTClient(RESTConfig{
		BaseURL:      srv.URL + "/",
		AnonKey:      "anon",
		AccessToken:  "session",
		Table:        "timeline_overrides",
		EditorsTable: "timeline_editors",
		TimelineID:   "history",
		Author:       "ed@example.com",
		Timeout:      5 * time.Second,
		Retry:        opts,
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestREST_PullRow(t *testing.T) {
	c := newREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/timeline_overrides", r.URL.Path)
		assert.Equal(t, "eq.history", r.URL.Query().Get("timeline_id"))
		assert.Equal(t, "data,updated_at,updated_by", r.URL.Query().Get("select"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `[{"data": {"1": {"title": "x"}}, "updated_at": "2024-03-01T10:00:00.5+00:00", "updated_by": "uid-1"}]`)
	}, nil)

	snap, err := c.Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "x", *snap.Patches["1"].Title)
	require.NotNil(t, snap.Meta.UpdatedAt)
	assert.True(t, time.Date(2024, 3, 1, 10, 0, 0, 500_000_000, time.UTC).Equal(*snap.Meta.UpdatedAt))
	assert.Equal(t, "uid-1", *snap.Meta.UpdatedBy)
}

func TestREST_PullVariants(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKeys []string
		wantMeta bool
	}{
		{"no row", `[]`, []string{}, false},
		{"null data", `[{"data": null, "updated_at": null, "updated_by": null}]`, []string{}, false},
		{"text column", `[{"data": "{\"7\":{\"__deleted\":true}}", "updated_at": "2024-03-01T10:00:00Z"}]`, []string{"7"}, true},
		{"data not an object", `[{"data": [1,2], "updated_at": "2024-03-01T10:00:00Z"}]`, []string{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newREST(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			}, nil)
			snap, err := c.Pull(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantKeys, snap.Patches.Keys())
			assert.Equal(t, tt.wantMeta, snap.Meta.UpdatedAt != nil)
		})
	}
}

func TestREST_PullErrors(t *testing.T) {
	c := newREST(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}, nil)
	_, err := c.Pull(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	c = newREST(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"not": "rows"}`)
	}, nil)
	_, err = c.Pull(context.Background())
	require.ErrorContains(t, err, "decode rows")
}

func TestREST_PushRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	w := &waits{}
	c := newREST(t, func(rw http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(rw, "busy", http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "timeline_id", r.URL.Query().Get("on_conflict"))
		assert.Equal(t, "Bearer session", r.Header.Get("Authorization"))
		assert.Contains(t, r.Header.Get("Prefer"), "resolution=merge-duplicates")

		var body map[string]json.RawMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.JSONEq(t, `"history"`, string(body["timeline_id"]))
		assert.JSONEq(t, `{"1":{"title":"y"}}`, string(body["data"]))
		assert.JSONEq(t, `"ed@example.com"`, string(body["updated_by"]))

		_, _ = io.WriteString(rw, `[{"data": {}, "updated_at": "2024-03-02T00:00:00Z", "updated_by": "ed"}]`)
	}, w)

	meta, err := c.Push(context.Background(), models.PatchSet{"1": {Title: models.Str("y")}})
	require.NoError(t, err)
	require.NotNil(t, meta.UpdatedAt)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, w.all())
}

func TestREST_PushGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	w := &waits{}
	c := newREST(t, func(rw http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(rw, "down", http.StatusBadGateway)
	}, w)

	_, err := c.Push(context.Background(), models.PatchSet{})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, w.all(), 2)
}

func TestREST_PushNonRetryable(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict} {
		var calls atomic.Int32
		w := &waits{}
		c := newREST(t, func(rw http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(rw, "no", code)
		}, w)

		_, err := c.Push(context.Background(), models.PatchSet{})
		require.Error(t, err)
		assert.False(t, IsTransient(err))
		if code == http.StatusConflict {
			assert.ErrorIs(t, err, ErrRejected)
		} else {
			assert.ErrorIs(t, err, ErrUnauthorized)
		}
		assert.Equal(t, int32(1), calls.Load())
		assert.Empty(t, w.all())
	}
}

func TestREST_PushWithoutToken(t *testing.T) {
	c := newREST(t, func(rw http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}, nil)
	c.cfg.AccessToken = ""

	_, err := c.Push(context.Background(), models.PatchSet{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestREST_PushReadsBackMetadata(t *testing.T) {
	c := newREST(t, func(rw http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			rw.WriteHeader(http.StatusCreated)
			return
		}
		_, _ = io.WriteString(rw, `[{"data": {}, "updated_at": "2024-03-02T00:00:00Z", "updated_by": "ed"}]`)
	}, nil)

	meta, err := c.Push(context.Background(), models.PatchSet{})
	require.NoError(t, err)
	require.NotNil(t, meta.UpdatedBy)
	assert.Equal(t, "ed", *meta.UpdatedBy)
}

func TestREST_PushNetworkErrorIsTransient(t *testing.T) {
	w := &waits{}
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := NewRESTClient(RESTConfig{BaseURL: addr, AccessToken: "t", Table: "t", TimelineID: "x",
		Retry: RetryOptions{Max: 2, Base: time.Millisecond, Observer: w.observe}})
	_, err := c.Push(context.Background(), models.PatchSet{})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Len(t, w.all(), 2)
}

func TestREST_IsEditor(t *testing.T) {
	c := newREST(t, func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/timeline_editors", r.URL.Path)
		assert.Equal(t, "Bearer session", r.Header.Get("Authorization"))
		// The allowlist row is stored as Ed@Example.com; the store folds case.
		if strings.EqualFold(r.URL.Query().Get("email"), "ilike.ed@example.com") {
			_, _ = io.WriteString(rw, `[{"email": "Ed@Example.com"}]`)
			return
		}
		_, _ = io.WriteString(rw, `[]`)
	}, nil)

	ok, err := c.IsEditor(context.Background(), "ed@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.IsEditor(context.Background(), "other@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.IsEditor(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestREST_IsEditorEscapesWildcards(t *testing.T) {
	var got string
	c := newREST(t, func(rw http.ResponseWriter, r *http.Request) {
		got = r.URL.Query().Get("email")
		_, _ = io.WriteString(rw, `[]`)
	}, nil)

	ok, err := c.IsEditor(context.Background(), "first_last%x@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, `ilike.first\_last\%x@example.com`, got)
}

func TestDisabled(t *testing.T) {
	var c Client = Disabled{}
	snap, err := c.Pull(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Patches)
	assert.True(t, snap.Meta.IsZero())

	_, err = c.Push(context.Background(), models.PatchSet{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	ok, err := c.IsEditor(context.Background(), "a@b")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Close())
}

func TestStatusError(t *testing.T) {
	assert.ErrorIs(t, statusError(500, ""), ErrTransient)
	assert.ErrorIs(t, statusError(401, ""), ErrUnauthorized)
	assert.ErrorIs(t, statusError(404, ""), ErrRejected)
	assert.Equal(t, "remote answered 418: teapot", statusError(418, "teapot").Error())
}
