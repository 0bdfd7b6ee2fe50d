package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dmitrijs2005/storyline/internal/client/merge"
	"github.com/dmitrijs2005/storyline/internal/client/models"
	"github.com/dmitrijs2005/storyline/internal/common"
)

// mutate runs one read-modify-write of the local override set: permission
// check, reload from the store, fn, save with the dirty marker, rematerialize,
// then a debounced push.
func (s *Session) mutate(ctx context.Context, op string, fn func(set models.PatchSet) (models.PatchSet, error)) error {
	if err := s.Capability().Check(); err != nil {
		s.setStatus(err.Error())
		return err
	}

	s.mu.Lock()
	local, err := s.store.Load(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	next, err := fn(local)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.store.Save(ctx, next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.patches = next
	s.rematerializeLocked()
	s.status = op + ": saved locally"
	s.mu.Unlock()

	s.log.Debug(ctx, "overrides changed", "op", op, "overrides", len(next))
	s.pusher.Trigger()
	return nil
}

func (s *Session) inBase(key string) bool {
	_, ok := merge.Index(s.base.Stories)[key]
	return ok
}

// Update merges p sparsely into the patch for id. Stories that are not in
// the base dataset keep their new marker.
func (s *Session) Update(ctx context.Context, id string, p models.Patch) error {
	p.New, p.Deleted = false, false
	return s.mutate(ctx, "update "+id, func(set models.PatchSet) (models.PatchSet, error) {
		prev, patched := set[id]
		base := s.inBase(id)
		if (!base && !(patched && prev.New)) || prev.Deleted {
			return nil, fmt.Errorf("story %s: %w", id, common.ErrNotFound)
		}
		next := prev.Overlay(p)
		if !base {
			next.New = true
		}
		set[id] = next
		return set, nil
	})
}

// Create adds a story under the next free integer id and returns that id.
func (s *Session) Create(ctx context.Context, p models.Patch) (models.StoryID, error) {
	var id models.StoryID
	p.Deleted = false
	p.New = true
	if p.Title == nil || *p.Title == "" {
		p.Title = models.Str(common.UntitledTitle)
	}
	err := s.mutate(ctx, "create", func(set models.PatchSet) (models.PatchSet, error) {
		id = models.IntID(merge.NextID(s.base.Stories, set))
		set[id.Key()] = p.Clone()
		return set, nil
	})
	return id, err
}

// Delete tombstones a base story and drops a story that only exists as a
// patch.
func (s *Session) Delete(ctx context.Context, id string) error {
	return s.mutate(ctx, "delete "+id, func(set models.PatchSet) (models.PatchSet, error) {
		prev, patched := set[id]
		switch {
		case s.inBase(id):
			prev.Deleted = true
			set[id] = prev
		case patched && prev.New && !prev.Deleted:
			delete(set, id)
		default:
			return nil, fmt.Errorf("story %s: %w", id, common.ErrNotFound)
		}
		return set, nil
	})
}

// Import replaces the whole override set with the one read from r. A file
// that is not an overrides object aborts the import and leaves everything
// untouched. It returns the number of imported patches.
func (s *Session) Import(ctx context.Context, r io.Reader) (int, error) {
	if err := s.Capability().Check(); err != nil {
		s.setStatus(err.Error())
		return 0, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrInvalidPatchFile, err)
	}
	if !models.IsPatchSetShape(data) {
		err := fmt.Errorf("%w: not an overrides object", common.ErrInvalidPatchFile)
		s.setStatus("import failed: " + err.Error())
		return 0, err
	}
	imported, dropped, err := models.ParsePatchSet(data)
	if err != nil {
		err = fmt.Errorf("%w: %v", common.ErrInvalidPatchFile, err)
		s.setStatus("import failed: " + err.Error())
		return 0, err
	}
	if len(dropped) > 0 {
		s.log.Warn(ctx, "import dropped malformed entries", "keys", dropped)
	}

	err = s.mutate(ctx, "import", func(models.PatchSet) (models.PatchSet, error) {
		return imported, nil
	})
	if err != nil {
		return 0, err
	}
	return len(imported), nil
}

// Export writes the current override set as indented JSON.
func (s *Session) Export(w io.Writer) error {
	b, err := json.MarshalIndent(s.Patches(), "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}
