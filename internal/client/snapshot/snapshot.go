// Package snapshot exports the base dataset and the current overrides as a
// pair of dated JSON files.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/dmitrijs2005/storyline/internal/client/models"
)

// Sink stores one named snapshot file and reports where it went.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Names returns the file names for a snapshot of timeline taken on day:
// base_<timeline>_<YYYY-MM-DD>.json and overrides_<timeline>_<YYYY-MM-DD>.json.
func Names(timeline string, day time.Time) (base, overrides string) {
	tl := unsafeName.ReplaceAllString(timeline, "_")
	if tl == "" {
		tl = "timeline"
	}
	d := day.Format(time.DateOnly)
	return fmt.Sprintf("base_%s_%s.json", tl, d), fmt.Sprintf("overrides_%s_%s.json", tl, d)
}

// Export writes both files to sink and returns their locations, base first.
func Export(ctx context.Context, sink Sink, timeline string, base models.Dataset, patches models.PatchSet, now time.Time) ([]string, error) {
	baseName, ovName := Names(timeline, now)

	baseJSON, err := json.MarshalIndent(base, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode base: %w", err)
	}
	ovJSON, err := json.MarshalIndent(patches, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode overrides: %w", err)
	}

	var out []string
	for _, f := range []struct {
		name string
		data []byte
	}{{baseName, baseJSON}, {ovName, ovJSON}} {
		loc, err := sink.Put(ctx, f.name, append(f.data, '\n'))
		if err != nil {
			return out, fmt.Errorf("write %s: %w", f.name, err)
		}
		out = append(out, loc)
	}
	return out, nil
}
