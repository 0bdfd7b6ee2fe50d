package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/storyline/internal/client/models"
	"github.com/dmitrijs2005/storyline/internal/client/reconcile"
	"github.com/dmitrijs2005/storyline/internal/client/remote"
	"github.com/dmitrijs2005/storyline/internal/client/snapshot"
)

// PullAndApply fetches the remote row and reconciles it with the local set.
// A pull whose provenance matches the last write seen is a no-op. Failures
// only reach the status line and leave local state alone.
func (s *Session) PullAndApply(ctx context.Context) error {
	_, err := s.pullAndApply(ctx, false)
	return err
}

// pullAndApply reports whether a reconciliation ran. When polling, a row
// without updated_at is not worth reconciling.
func (s *Session) pullAndApply(ctx context.Context, polling bool) (bool, error) {
	if !s.remoteEnabled() {
		if !polling {
			s.setStatus("no remote configured: overrides stay on this machine")
		}
		return false, nil
	}

	s.pullMu.Lock()
	defer s.pullMu.Unlock()

	snap, err := s.remote.Pull(ctx)
	s.metrics.ObservePull(err)
	if err != nil {
		s.log.Warn(ctx, "pull failed", "error", err)
		s.setStatus("reload failed: " + err.Error())
		return false, err
	}

	s.mu.Lock()
	if polling && snap.Meta.UpdatedAt == nil {
		s.mu.Unlock()
		return false, nil
	}
	if !snap.Meta.IsZero() && snap.Meta.Same(s.lastRemote) {
		s.mu.Unlock()
		return false, nil
	}

	local, err := s.store.Load(ctx)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	modifiedAt, err := s.store.ModifiedAt(ctx)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}

	out := reconcile.Reconcile(reconcile.Input{
		Local:           local,
		LocalModifiedAt: modifiedAt,
		Remote:          snap.Patches,
		RemoteUpdatedAt: snap.Meta.UpdatedAt,
	})
	if err := s.store.Replace(ctx, out.Patches); err != nil {
		s.mu.Unlock()
		return false, err
	}
	s.patches = out.Patches
	s.rematerializeLocked()
	s.lastRemote = snap.Meta
	s.status = s.remoteStatus(snap.Meta, out)
	needPush := out.Source == reconcile.SourceLocal && modifiedAt != nil && s.capability.Check() == nil
	s.mu.Unlock()

	s.metrics.ObserveReconcile(string(out.Source))
	s.log.Info(ctx, "reconciled",
		"source", out.Source, "reason", out.Reason, "changed", len(out.ChangedKeys))

	if needPush {
		s.pusher.Trigger()
	}
	return true, nil
}

func (s *Session) remoteStatus(meta models.RemoteMeta, out reconcile.Outcome) string {
	when, who := "-", "-"
	if meta.UpdatedAt != nil {
		when = meta.UpdatedAt.In(time.Local).Format("2006-01-02 15:04:05")
	}
	if meta.UpdatedBy != nil && *meta.UpdatedBy != "" {
		who = "uid " + *meta.UpdatedBy
	}
	changes := out.Summary(reconcile.SummaryLimit)
	if changes == "" {
		changes = "no changes detected"
	}
	parts := []string{"remote: last change " + when, who, changes}
	if out.Source == reconcile.SourceLocal {
		parts = append(parts, "kept local ("+out.Reason+")")
	}
	return strings.Join(parts, " | ")
}

// Push sends the current set now, after any push in flight.
func (s *Session) Push(ctx context.Context) error {
	return s.pusher.Flush(ctx)
}

// push is the scheduled task. The dirty marker is cleared only when the
// remote accepted exactly the set that is current once it answers.
//
// It holds pullMu until the new row's metadata is recorded: a pull landing
// between commit and reply would otherwise take our own write for a newer
// remote one and replace edits made meanwhile.
func (s *Session) push(ctx context.Context) error {
	if err := s.Capability().Check(); err != nil {
		return err
	}

	s.pullMu.Lock()
	defer s.pullMu.Unlock()

	s.mu.RLock()
	set := s.patches.Clone()
	s.mu.RUnlock()

	meta, err := s.remote.Push(ctx, set)
	s.metrics.ObservePush(err)
	if err != nil {
		if errors.Is(err, remote.ErrNotConfigured) {
			s.setStatus("saved locally (no remote configured)")
			return err
		}
		s.log.Warn(ctx, "push failed", "error", err, "transient", remote.IsTransient(err))
		s.setStatus("remote save failed: " + err.Error())
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRemote = meta
	if len(reconcile.DiffKeys(set, s.patches)) == 0 {
		if err := s.store.ClearModified(ctx); err != nil {
			s.log.Warn(ctx, "could not clear dirty marker", "error", err)
		}
	}
	s.status = "saved to remote"
	s.log.Info(ctx, "pushed overrides", "overrides", len(set))
	return nil
}

// Poll checks the remote every interval until ctx is done and reconciles
// when it moved.
func (s *Session) Poll(ctx context.Context, interval time.Duration) {
	if !s.remoteEnabled() {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.pullAndApply(ctx, true); err != nil && ctx.Err() == nil {
				s.log.Debug(ctx, "poll failed", "error", err)
			}
		}
	}
}

// ReloadLocal re-reads the local store after another process changed it.
func (s *Session) ReloadLocal(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	local, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	if len(reconcile.DiffKeys(s.patches, local)) == 0 {
		return nil
	}
	s.patches = local
	s.rematerializeLocked()
	s.status = "local store changed elsewhere, reloaded"
	s.log.Info(ctx, "reloaded local overrides", "overrides", len(local))
	return nil
}

// ExportSnapshot writes the base dataset and the current overrides to sink.
func (s *Session) ExportSnapshot(ctx context.Context, sink snapshot.Sink) ([]string, error) {
	s.mu.RLock()
	base, patches := s.base, s.patches.Clone()
	s.mu.RUnlock()

	locs, err := snapshot.Export(ctx, sink, s.opts.Timeline, base, patches, s.now())
	if err != nil {
		return locs, fmt.Errorf("snapshot: %w", err)
	}
	s.setStatus("snapshot written: " + strings.Join(locs, ", "))
	return locs, nil
}
