package patchstore

import (
	"context"
	"os"

	"github.com/dmitrijs2005/storyline/internal/client/models"
	"github.com/dmitrijs2005/storyline/internal/logging"
)

// LoadSeed reads an optional bundled overrides file. A missing or unreadable
// file, or one that looks like a base export, counts as no seed.
func LoadSeed(ctx context.Context, path string, log logging.Logger) models.PatchSet {
	if path == "" {
		return models.PatchSet{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn(ctx, "seed overrides unreadable", "path", path, "error", err)
		}
		return models.PatchSet{}
	}
	if !models.IsPatchSetShape(data) {
		log.Warn(ctx, "seed file is not an overrides file, ignoring", "path", path)
		return models.PatchSet{}
	}
	set, dropped, err := models.ParsePatchSet(data)
	if err != nil {
		log.Warn(ctx, "seed overrides unparseable", "path", path, "error", err)
		return models.PatchSet{}
	}
	if len(dropped) > 0 {
		log.Warn(ctx, "dropped malformed seed entries", "keys", dropped)
	}
	return set
}

// MergeSeed layers local over seed. Local entries replace seed entries with
// the same key as a whole.
func MergeSeed(seed, local models.PatchSet) models.PatchSet {
	out := seed.Clone()
	for k, p := range local {
		out[k] = p.Clone()
	}
	return out
}
