package remote

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/storyline/internal/client/models"
	"github.com/dmitrijs2005/storyline/internal/client/remote/migrations"
	"github.com/dmitrijs2005/storyline/internal/dbx"
	"github.com/dmitrijs2005/storyline/internal/logging"
)

// PostgresConfig describes a direct connection to the row store.
type PostgresConfig struct {
	DSN          string
	Table        string
	EditorsTable string
	TimelineID   string
	Author       string
	Retry        RetryOptions
	// Migrate creates the default tables when they are missing.
	Migrate bool
	Logger  logging.Logger
}

// PostgresClient keeps the override row in a Postgres table.
type PostgresClient struct {
	db  *sql.DB
	cfg PostgresConfig

	pullQuery   string
	pushQuery   string
	editorQuery string
}

var _ Client = (*PostgresClient)(nil)

// OpenPostgres connects through the pgx stdlib driver and optionally runs
// the embedded migrations.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if cfg.Migrate {
		if err := dbx.Migrate(ctx, db, migrations.Migrations, "pgx"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migration error: %w", err)
		}
	}
	return NewPostgresClient(db, cfg), nil
}

func NewPostgresClient(db *sql.DB, cfg PostgresConfig) *PostgresClient {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	t := pgx.Identifier{cfg.Table}.Sanitize()
	e := pgx.Identifier{cfg.EditorsTable}.Sanitize()
	return &PostgresClient{
		db:  db,
		cfg: cfg,
		pullQuery: `SELECT data, updated_at, updated_by FROM ` + t + `
		 WHERE timeline_id = $1`,
		pushQuery: `INSERT INTO ` + t + ` (timeline_id, data, updated_at, updated_by)
		 VALUES ($1, $2, now(), $3)
		 ON CONFLICT (timeline_id) DO UPDATE
		 SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at, updated_by = EXCLUDED.updated_by
		 RETURNING updated_at, updated_by`,
		editorQuery: `SELECT 1 FROM ` + e + `
		 WHERE lower(email) = lower($1) LIMIT 1`,
	}
}

func (c *PostgresClient) Pull(ctx context.Context) (models.Snapshot, error) {
	var (
		data []byte
		at   sql.NullTime
		by   sql.NullString
	)
	err := c.db.QueryRowContext(ctx, c.pullQuery, c.cfg.TimelineID).Scan(&data, &at, &by)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Snapshot{Patches: models.PatchSet{}}, nil
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("pull: %w", classify(err))
	}

	r := row{Data: data}
	snap, perr := r.snapshot()
	if perr != nil {
		c.cfg.Logger.Warn(ctx, "remote overrides unreadable, treating as empty", "error", perr)
	}
	if at.Valid {
		t := at.Time.UTC()
		snap.Meta.UpdatedAt = &t
	}
	if by.Valid {
		s := by.String
		snap.Meta.UpdatedBy = &s
	}
	return snap, nil
}

func (c *PostgresClient) Push(ctx context.Context, set models.PatchSet) (models.RemoteMeta, error) {
	data, err := json.Marshal(set)
	if err != nil {
		return models.RemoteMeta{}, fmt.Errorf("push: encode: %w", err)
	}
	author := sql.NullString{String: c.cfg.Author, Valid: c.cfg.Author != ""}

	var (
		at time.Time
		by sql.NullString
	)
	err = retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		err := c.db.QueryRowContext(ctx, c.pushQuery, c.cfg.TimelineID, string(data), author).Scan(&at, &by)
		if err == nil {
			return nil
		}
		if isTransientPG(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.RemoteMeta{}, ctxErr
		}
		return models.RemoteMeta{}, fmt.Errorf("push: %w", classify(err))
	}

	at = at.UTC()
	meta := models.RemoteMeta{UpdatedAt: &at}
	if by.Valid {
		s := by.String
		meta.UpdatedBy = &s
	}
	return meta, nil
}

// backoff doubles from the base wait and stops after Retry.Max retries.
func (c *PostgresClient) backoff() retry.Backoff {
	o := c.cfg.Retry
	base := o.Base
	if base <= 0 {
		base = DefaultRetryOptions().Base
	}
	limit := o.Max
	if limit < 0 {
		limit = 0
	}
	inner := retry.WithMaxRetries(uint64(limit), retry.NewExponential(base))

	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		wait, stop := inner.Next()
		if !stop {
			attempt++
			o.observe(attempt, wait)
		}
		return wait, stop
	})
}

func (c *PostgresClient) IsEditor(ctx context.Context, email string) (bool, error) {
	if email == "" {
		return false, nil
	}
	var one int
	err := c.db.QueryRowContext(ctx, c.editorQuery, email).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("editor lookup: %w", classify(err))
	}
	return true, nil
}

func (c *PostgresClient) Close() error {
	return c.db.Close()
}

func isTransientPG(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception
			strings.HasPrefix(pgErr.Code, "53"), // insufficient resources
			strings.HasPrefix(pgErr.Code, "57P"),
			pgErr.Code == "40001", pgErr.Code == "40P01":
			return true
		}
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}

// classify tags err with the matching sentinel.
func classify(err error) error {
	if isTransientPG(err) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "42501" || strings.HasPrefix(pgErr.Code, "28")) {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return fmt.Errorf("%w: %w", ErrRejected, err)
}
