package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/dmitrijs2005/storyline/internal/client/models"
	"github.com/dmitrijs2005/storyline/internal/logging"
)

// RESTConfig describes a PostgREST-style endpoint (Supabase and friends).
type RESTConfig struct {
	BaseURL      string
	AnonKey      string
	AccessToken  string
	Table        string
	EditorsTable string
	TimelineID   string
	// Author is sent as updated_by when set.
	Author  string
	Timeout time.Duration
	Retry   RetryOptions
	Logger  logging.Logger
}

// RESTClient reads with the anonymous key and writes with the session token.
// Only pushes are retried.
type RESTClient struct {
	cfg   RESTConfig
	read  *retryablehttp.Client
	write *retryablehttp.Client
}

var _ Client = (*RESTClient)(nil)

func NewRESTClient(cfg RESTConfig) *RESTClient {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	write := retryablehttp.NewClient()
	write.HTTPClient.Timeout = cfg.Timeout
	write.Logger = leveledLogger{cfg.Logger}
	write.RetryMax = cfg.Retry.Max
	write.RetryWaitMin = cfg.Retry.Base
	write.RetryWaitMax = cfg.Retry.Base << max(cfg.Retry.Max, 0)
	write.CheckRetry = checkRetry
	write.Backoff = observedBackoff(cfg.Retry)
	write.ErrorHandler = retryablehttp.PassthroughErrorHandler

	read := retryablehttp.NewClient()
	read.HTTPClient = write.HTTPClient
	read.Logger = write.Logger
	read.RetryMax = 0
	read.CheckRetry = checkRetry
	read.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &RESTClient{cfg: cfg, read: read, write: write}
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	return resp.StatusCode >= 500, nil
}

// observedBackoff doubles from o.Base and reports each wait.
func observedBackoff(o RetryOptions) retryablehttp.Backoff {
	return func(_, _ time.Duration, attemptNum int, _ *http.Response) time.Duration {
		wait := o.Base << attemptNum
		o.observe(attemptNum+1, wait)
		return wait
	}
}

func (c *RESTClient) tableURL(table string, q url.Values) string {
	u := c.cfg.BaseURL + "/rest/v1/" + url.PathEscape(table)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *RESTClient) authorize(req *retryablehttp.Request, token string) {
	req.Header.Set("Accept", "application/json")
	if c.cfg.AnonKey != "" {
		req.Header.Set("apikey", c.cfg.AnonKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *RESTClient) readToken() string {
	if c.cfg.AnonKey != "" {
		return c.cfg.AnonKey
	}
	return c.cfg.AccessToken
}

func (c *RESTClient) do(client *retryablehttp.Client, req *retryablehttp.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (c *RESTClient) Pull(ctx context.Context) (models.Snapshot, error) {
	q := url.Values{}
	q.Set("timeline_id", "eq."+c.cfg.TimelineID)
	q.Set("select", "data,updated_at,updated_by")

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.tableURL(c.cfg.Table, q), nil)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("build pull request: %w", err)
	}
	c.authorize(req, c.readToken())

	body, err := c.do(c.read, req)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("pull: %w", err)
	}
	return firstRow(ctx, body, c.cfg.Logger)
}

func firstRow(ctx context.Context, body []byte, log logging.Logger) (models.Snapshot, error) {
	var rows []row
	if err := json.Unmarshal(body, &rows); err != nil {
		return models.Snapshot{}, fmt.Errorf("pull: decode rows: %w", err)
	}
	if len(rows) == 0 {
		return models.Snapshot{Patches: models.PatchSet{}}, nil
	}
	snap, err := rows[0].snapshot()
	if err != nil {
		log.Warn(ctx, "remote overrides unreadable, treating as empty", "error", err)
	}
	return snap, nil
}

func (c *RESTClient) Push(ctx context.Context, set models.PatchSet) (models.RemoteMeta, error) {
	if c.cfg.AccessToken == "" {
		return models.RemoteMeta{}, fmt.Errorf("push: %w: no session token", ErrUnauthorized)
	}

	payload := map[string]any{"timeline_id": c.cfg.TimelineID, "data": set}
	if c.cfg.Author != "" {
		payload["updated_by"] = c.cfg.Author
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return models.RemoteMeta{}, fmt.Errorf("push: encode: %w", err)
	}

	q := url.Values{}
	q.Set("on_conflict", "timeline_id")
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.tableURL(c.cfg.Table, q), bytes.NewReader(data))
	if err != nil {
		return models.RemoteMeta{}, fmt.Errorf("build push request: %w", err)
	}
	c.authorize(req, c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=representation")

	body, err := c.do(c.write, req)
	if err != nil {
		return models.RemoteMeta{}, fmt.Errorf("push: %w", err)
	}

	if len(bytes.TrimSpace(body)) > 0 {
		snap, err := firstRow(ctx, body, c.cfg.Logger)
		if err == nil && snap.Meta.UpdatedAt != nil {
			return snap.Meta, nil
		}
	}

	// The store did not echo the row; read the provenance back.
	snap, err := c.Pull(ctx)
	if err != nil {
		return models.RemoteMeta{}, fmt.Errorf("push succeeded, metadata read failed: %w", err)
	}
	return snap.Meta, nil
}

func (c *RESTClient) IsEditor(ctx context.Context, email string) (bool, error) {
	if email == "" {
		return false, nil
	}
	q := url.Values{}
	q.Set("email", "ilike."+likeLiteral(email))
	q.Set("select", "email")
	q.Set("limit", "1")

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.tableURL(c.cfg.EditorsTable, q), nil)
	if err != nil {
		return false, fmt.Errorf("build editor request: %w", err)
	}
	token := c.cfg.AccessToken
	if token == "" {
		token = c.cfg.AnonKey
	}
	c.authorize(req, token)

	body, err := c.do(c.read, req)
	if err != nil {
		return false, fmt.Errorf("editor lookup: %w", err)
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return false, fmt.Errorf("editor lookup: decode: %w", err)
	}
	return len(rows) > 0, nil
}

// likeEscaper neutralizes LIKE wildcards so ilike only folds case.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `\*`)

func likeLiteral(s string) string { return likeEscaper.Replace(s) }

func (c *RESTClient) Close() error {
	c.write.HTTPClient.CloseIdleConnections()
	return nil
}

// leveledLogger feeds retryablehttp's request log into ours at debug level.
type leveledLogger struct{ log logging.Logger }

func (l leveledLogger) Error(msg string, kv ...interface{}) {
	l.log.Error(context.Background(), msg, kv...)
}
func (l leveledLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug(context.Background(), msg, kv...)
}
func (l leveledLogger) Debug(msg string, kv ...interface{}) {
	l.log.Debug(context.Background(), msg, kv...)
}
func (l leveledLogger) Warn(msg string, kv ...interface{}) {
	l.log.Warn(context.Background(), msg, kv...)
}
