// Package session owns the state of one running storyline client: the base
// dataset, the current override set, the materialized stories, the editing
// capability and the last remote write seen.
//
// All state sits behind one mutex. A mutation reloads the local store,
// applies the change, saves it and re-materializes before any network call
// is dispatched, so readers never see a stale view while a push is pending.
package session

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/storyline/internal/client/auth"
	"github.com/dmitrijs2005/storyline/internal/client/merge"
	"github.com/dmitrijs2005/storyline/internal/client/metrics"
	"github.com/dmitrijs2005/storyline/internal/client/models"
	"github.com/dmitrijs2005/storyline/internal/client/patchstore"
	"github.com/dmitrijs2005/storyline/internal/client/remote"
	"github.com/dmitrijs2005/storyline/internal/client/schedule"
	"github.com/dmitrijs2005/storyline/internal/client/view"
	"github.com/dmitrijs2005/storyline/internal/common"
	"github.com/dmitrijs2005/storyline/internal/logging"
)

// PatchStore is the local persistence the session needs.
type PatchStore interface {
	Load(ctx context.Context) (models.PatchSet, error)
	Save(ctx context.Context, set models.PatchSet) error
	Replace(ctx context.Context, set models.PatchSet) error
	ModifiedAt(ctx context.Context) (*time.Time, error)
	ClearModified(ctx context.Context) error
}

// Options configure a Session.
type Options struct {
	Timeline  string
	BasePath  string
	SeedPath  string
	Mode      auth.Mode
	Token     string
	JWTSecret string

	// PushDebounce is the quiet period before a push; 600ms when zero.
	PushDebounce time.Duration
}

const defaultPushDebounce = 600 * time.Millisecond

type Session struct {
	id      string
	opts    Options
	store   PatchStore
	remote  remote.Client
	log     logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	pusher  *schedule.Debouncer

	// pullMu serializes pull+reconcile rounds with pushes.
	pullMu sync.Mutex

	mu         sync.RWMutex
	base       models.Dataset
	patches    models.PatchSet
	records    []models.Record
	capability auth.Capability
	lastRemote models.RemoteMeta
	status     string
}

// New builds a session. m may be nil. Call Boot before anything else.
func New(opts Options, store PatchStore, rc remote.Client, log logging.Logger, m *metrics.Metrics) *Session {
	if rc == nil {
		rc = remote.Disabled{}
	}
	id := uuid.NewString()
	s := &Session{
		id:         id,
		opts:       opts,
		store:      store,
		remote:     rc,
		log:        log.With("session", id, "timeline", opts.Timeline),
		metrics:    m,
		now:        time.Now,
		patches:    models.PatchSet{},
		capability: auth.Capability{Mode: opts.Mode},
	}
	delay := opts.PushDebounce
	if delay <= 0 {
		delay = defaultPushDebounce
	}
	s.pusher = schedule.NewDebouncer(context.Background(), delay, s.push, nil)
	return s
}

// WithClock replaces the time source used for status messages.
func (s *Session) WithClock(now func() time.Time) *Session {
	s.now = now
	return s
}

func (s *Session) ID() string { return s.id }

// Boot loads the base dataset, the local overrides layered over the optional
// seed file, resolves the capability and runs the first pull. Only an
// unreadable base file or a local store failure is fatal.
func (s *Session) Boot(ctx context.Context) error {
	data, err := os.ReadFile(s.opts.BasePath)
	if err != nil {
		return fmt.Errorf("read base dataset: %w", err)
	}
	base := models.NormalizeDataset(data)

	local, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	seed := patchstore.LoadSeed(ctx, s.opts.SeedPath, s.log)
	if len(seed) > 0 {
		local = patchstore.MergeSeed(seed, local)
		if err := s.store.Replace(ctx, local); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.base = base
	s.patches = local
	s.rematerializeLocked()
	s.mu.Unlock()

	s.log.Info(ctx, "session booted",
		"stories", len(base.Stories), "categories", len(base.Categories),
		"overrides", len(local), "seeded", len(seed))

	s.resolveCapability(ctx, s.opts.Mode)

	if err := s.PullAndApply(ctx); err != nil {
		s.log.Warn(ctx, "initial pull failed", "error", err)
	}
	return nil
}

// SetMode switches between view and edit mode and re-resolves the
// capability.
func (s *Session) SetMode(ctx context.Context, mode auth.Mode) auth.Capability {
	s.opts.Mode = mode
	return s.resolveCapability(ctx, mode)
}

func (s *Session) resolveCapability(ctx context.Context, mode auth.Mode) auth.Capability {
	var (
		c   auth.Capability
		err error
	)
	if s.remoteEnabled() {
		c, err = auth.Resolve(ctx, mode, s.opts.Token, s.opts.JWTSecret, s.remote)
	} else {
		// Without a shared store there is no allowlist to consult; edits stay
		// on this machine.
		c = auth.Capability{Mode: mode, CanEdit: mode == auth.ModeEdit}
	}
	if err != nil {
		s.log.Warn(ctx, "capability resolved as read-only", "error", err)
		s.setStatus("read-only: " + err.Error())
	}
	s.mu.Lock()
	s.capability = c
	s.mu.Unlock()
	s.log.Info(ctx, "capability", "mode", c.Mode, "email", c.Email, "can_edit", c.CanEdit)
	return c
}

// Close stops the push scheduler, waiting for a push in flight, and closes
// the remote client.
func (s *Session) Close() error {
	s.pusher.Stop()
	return s.remote.Close()
}

func (s *Session) rematerializeLocked() {
	s.records = merge.Materialize(s.base.Stories, s.patches)
	s.metrics.SetRecords(len(s.records))
}

func (s *Session) Capability() auth.Capability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capability
}

// Base returns the base dataset as loaded.
func (s *Session) Base() models.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base
}

// Records returns a copy of the materialized stories, tombstones included.
func (s *Session) Records() []models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneRecords(s.records)
}

// Categories returns the base categories ordered by title.
func (s *Session) Categories() []models.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view.SortCategories(s.base.Categories)
}

// CategoryTitle resolves a category id for display.
func (s *Session) CategoryTitle(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view.CategoryTitle(s.base.Categories, id)
}

// Patches returns a copy of the current override set.
func (s *Session) Patches() models.PatchSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.patches.Clone()
}

func (s *Session) Project(f view.Filter) []models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view.Project(models.CloneRecords(s.records), f)
}

// Get returns the visible story with the given id.
func (s *Session) Get(id string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ID.Key() == id {
			if r.IsDeleted {
				break
			}
			return r.Clone(), nil
		}
	}
	return models.Record{}, fmt.Errorf("story %s: %w", id, common.ErrNotFound)
}

func (s *Session) YearBounds() (min, max int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view.YearBounds(s.records)
}

// Status returns the last user-facing status message.
func (s *Session) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastRemote returns the provenance of the last remote write seen.
func (s *Session) LastRemote() models.RemoteMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRemote
}

// PushPending reports whether a debounced push is waiting.
func (s *Session) PushPending() bool {
	return s.pusher.Pending()
}

func (s *Session) setStatus(msg string) {
	s.mu.Lock()
	s.status = msg
	s.mu.Unlock()
}

func (s *Session) remoteEnabled() bool {
	_, disabled := s.remote.(remote.Disabled)
	return !disabled
}
