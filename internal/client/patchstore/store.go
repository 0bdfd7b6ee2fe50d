// Package patchstore persists the override set of one timeline in the local
// database, together with the time of the last local edit.
package patchstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storyline/internal/client/models"
	"github.com/dmitrijs2005/storyline/internal/client/repositories/kv"
	"github.com/dmitrijs2005/storyline/internal/common"
	"github.com/dmitrijs2005/storyline/internal/dbx"
	"github.com/dmitrijs2005/storyline/internal/logging"
)

// OverridesKey is where the override set of timeline lives.
func OverridesKey(timeline string) string {
	return common.KeyNamespace + "/" + timeline + "/overrides"
}

// ModifiedKey holds the RFC 3339 time of the last local edit. Its presence
// is the dirty marker: local work not yet accepted by the remote.
func ModifiedKey(timeline string) string {
	return common.KeyNamespace + "/" + timeline + "/modified_at"
}

type Store struct {
	db       *sql.DB
	repo     func(dbx.DBTX) kv.Repository
	timeline string
	log      logging.Logger
	now      func() time.Time
}

func New(db *sql.DB, timeline string, log logging.Logger) *Store {
	return &Store{
		db:       db,
		repo:     func(tx dbx.DBTX) kv.Repository { return kv.NewSQLiteRepository(tx) },
		timeline: timeline,
		log:      log.With("timeline", timeline),
		now:      time.Now,
	}
}

// WithClock replaces the time source used to stamp local edits.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Timeline() string { return s.timeline }

// Load returns the stored override set. A missing or unreadable value yields
// an empty set; only database failures are returned as errors.
func (s *Store) Load(ctx context.Context) (models.PatchSet, error) {
	raw, err := s.repo(s.db).Get(ctx, OverridesKey(s.timeline))
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}
	if raw == nil {
		return models.PatchSet{}, nil
	}
	set, dropped, err := models.ParsePatchSet(raw)
	if err != nil {
		s.log.Warn(ctx, "stored overrides are corrupted, starting empty", "error", err)
		return models.PatchSet{}, nil
	}
	if len(dropped) > 0 {
		s.log.Warn(ctx, "dropped malformed stored overrides", "keys", dropped)
	}
	return set, nil
}

// Save persists set as a local edit: the value and the dirty marker are
// written in one transaction.
func (s *Store) Save(ctx context.Context, set models.PatchSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode overrides: %w", err)
	}
	stamp := s.now().UTC().Format(time.RFC3339Nano)

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		r := s.repo(tx)
		if err := r.Set(ctx, OverridesKey(s.timeline), data); err != nil {
			return err
		}
		return r.Set(ctx, ModifiedKey(s.timeline), []byte(stamp))
	})
	if err != nil {
		return fmt.Errorf("save overrides: %w", err)
	}
	return nil
}

// Replace persists set without touching the dirty marker. It is used for
// sets that came from reconciliation or seeding rather than from the user.
func (s *Store) Replace(ctx context.Context, set models.PatchSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode overrides: %w", err)
	}
	if err := s.repo(s.db).Set(ctx, OverridesKey(s.timeline), data); err != nil {
		return fmt.Errorf("replace overrides: %w", err)
	}
	return nil
}

// ModifiedAt returns the time of the last unsynced local edit, or nil.
func (s *Store) ModifiedAt(ctx context.Context) (*time.Time, error) {
	raw, err := s.repo(s.db).Get(ctx, ModifiedKey(s.timeline))
	if err != nil {
		return nil, fmt.Errorf("load modified_at: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		s.log.Warn(ctx, "ignoring unreadable modified_at", "value", string(raw))
		return nil, nil
	}
	return &t, nil
}

// ClearModified drops the dirty marker once the remote holds the local set.
func (s *Store) ClearModified(ctx context.Context) error {
	if err := s.repo(s.db).Delete(ctx, ModifiedKey(s.timeline)); err != nil {
		return fmt.Errorf("clear modified_at: %w", err)
	}
	return nil
}

// Reset removes everything stored for this timeline.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.repo(s.db).Clear(ctx, common.KeyNamespace+"/"+s.timeline+"/"); err != nil {
		return fmt.Errorf("reset local store: %w", err)
	}
	return nil
}
