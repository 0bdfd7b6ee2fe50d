// Package merge materializes the visible story set from an immutable base
// collection and a set of override patches.
package merge

import (
	"strconv"

	"github.com/dmitrijs2005/storyline/internal/client/models"
	"github.com/dmitrijs2005/storyline/internal/common"
)

// Materialize returns base with patches applied. Inputs are never modified.
//
// A patch marked new on an unknown id creates a record; on a known id it acts
// as a plain update. Patches for unknown ids that are not new are skipped.
// A deleted patch tombstones the record and nothing else in it is applied.
// Newly created records are appended in ascending key order.
func Materialize(base []models.Record, patches models.PatchSet) []models.Record {
	out := make([]models.Record, len(base), len(base)+len(patches))
	for i, r := range base {
		out[i] = r.Clone()
	}
	byKey := Index(out)

	for _, key := range patches.Keys() {
		p := patches[key]
		i, ok := byKey[key]
		if !ok {
			if !p.New {
				continue
			}
			out = append(out, synthesize(key, p))
			byKey[key] = len(out) - 1
			continue
		}
		if p.Deleted {
			out[i].IsDeleted = true
			continue
		}
		apply(&out[i], p)
	}
	return out
}

// Index maps each record key to its position. On duplicate keys the first
// occurrence wins.
func Index(records []models.Record) map[string]int {
	idx := make(map[string]int, len(records))
	for i, r := range records {
		if _, dup := idx[r.ID.Key()]; !dup {
			idx[r.ID.Key()] = i
		}
	}
	return idx
}

func synthesize(key string, p models.Patch) models.Record {
	r := models.Record{
		ID:           models.NewStoryID(key),
		Title:        deref(p.Title),
		StartDate:    deref(p.StartDate),
		EndDate:      deref(p.EndDate),
		Category:     deref(p.Category),
		FullText:     deref(p.FullText),
		Text:         deref(p.Text),
		Tags:         deref(p.Tags),
		ExternalLink: deref(p.ExternalLink),
		Media:        []models.Media{},
		IsNew:        true,
	}
	if r.Title == "" {
		r.Title = common.UntitledTitle
	}
	if p.HasMedia {
		r.Media = p.Clone().Media
		if r.Media == nil {
			r.Media = []models.Media{}
		}
	}
	if p.HasManualLinks {
		r.ManualLinks = append([]models.Link{}, p.ManualLinks...)
	}
	return r
}

func apply(r *models.Record, p models.Patch) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&r.Title, p.Title)
	set(&r.StartDate, p.StartDate)
	set(&r.EndDate, p.EndDate)
	set(&r.Category, p.Category)
	set(&r.FullText, p.FullText)
	set(&r.Text, p.Text)
	set(&r.Tags, p.Tags)
	set(&r.ExternalLink, p.ExternalLink)
	if p.HasMedia {
		r.Media = p.Clone().Media
		if r.Media == nil {
			r.Media = []models.Media{}
		}
	}
	if p.HasManualLinks {
		r.ManualLinks = append([]models.Link{}, p.ManualLinks...)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// NextID returns one more than the largest integer id found in base or among
// the patch keys, starting from 1.
func NextID(base []models.Record, patches models.PatchSet) int64 {
	var max int64
	consider := func(key string) {
		if n, err := strconv.ParseInt(key, 10, 64); err == nil && n > max {
			max = n
		}
	}
	for _, r := range base {
		consider(r.ID.Key())
	}
	for k := range patches {
		consider(k)
	}
	return max + 1
}
