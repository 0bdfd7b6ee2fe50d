package remote

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/storyline/internal/client/models"
)

// row is the stored shape: timeline_id, data, updated_at, updated_by.
type row struct {
	Data      json.RawMessage `json:"data"`
	UpdatedAt *string         `json:"updated_at"`
	UpdatedBy *string         `json:"updated_by"`
}

// snapshot converts a row into a Snapshot. A data column that is not an
// override object reads as an empty set; the error says why.
func (r row) snapshot() (models.Snapshot, error) {
	snap := models.Snapshot{Patches: models.PatchSet{}, Meta: models.RemoteMeta{UpdatedBy: r.UpdatedBy}}
	if r.UpdatedAt != nil {
		if t, ok := parseTimestamp(*r.UpdatedAt); ok {
			snap.Meta.UpdatedAt = &t
		}
	}

	data := bytes.TrimSpace(r.Data)
	// Some stores keep the document in a text column.
	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err == nil {
			data = []byte(inner)
		}
	}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return snap, nil
	}
	set, _, err := models.ParsePatchSet(data)
	if err != nil {
		return snap, err
	}
	snap.Patches = set
	return snap, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05.999999-07:00",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
