// Package view filters and orders materialized stories for display.
package view

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/storyline/internal/client/models"
)

// Filter selects stories. Zero values disable a criterion.
type Filter struct {
	Text       string
	CategoryID string
	YearMin    *int
	YearMax    *int
}

// Project returns the visible stories matching f, ordered by StartDate as a
// plain string comparison. Tombstones are never returned. Stories whose start
// date has no leading year pass the year bounds.
func Project(records []models.Record, f Filter) []models.Record {
	q := strings.ToLower(strings.TrimSpace(f.Text))
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		if r.IsDeleted {
			continue
		}
		if f.CategoryID != "" && r.Category != f.CategoryID {
			continue
		}
		if y, ok := ParseYear(r.StartDate); ok {
			if f.YearMin != nil && y < *f.YearMin {
				continue
			}
			if f.YearMax != nil && y > *f.YearMax {
				continue
			}
		}
		if q != "" && !strings.Contains(haystack(r), q) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartDate < out[j].StartDate })
	return out
}

func haystack(r models.Record) string {
	return strings.ToLower(r.Title + " " + r.FullText + " " + r.Text + " " + r.Tags)
}

var yearRe = regexp.MustCompile(`^(\d{4})(?:-\d{2}(?:-\d{2})?)?`)

// ParseYear reads the leading four-digit year of YYYY, YYYY-MM or YYYY-MM-DD.
func ParseYear(date string) (int, bool) {
	m := yearRe.FindStringSubmatch(date)
	if m == nil {
		return 0, false
	}
	y, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return y, true
}

// YearBounds returns the smallest and largest parseable year among visible
// stories. ok is false when none has one.
func YearBounds(records []models.Record) (min, max int, ok bool) {
	for _, r := range records {
		if r.IsDeleted {
			continue
		}
		y, parsed := ParseYear(r.StartDate)
		if !parsed {
			continue
		}
		if !ok || y < min {
			min = y
		}
		if !ok || y > max {
			max = y
		}
		ok = true
	}
	return min, max, ok
}

// SortCategories returns categories ordered by title, case-insensitively.
func SortCategories(cats []models.Category) []models.Category {
	out := append([]models.Category(nil), cats...)
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Title) < strings.ToLower(out[j].Title)
	})
	return out
}

// CategoryTitle returns the title of the category id, falling back to
// "Cat <id>" for untitled or unknown ids and "" for no category.
func CategoryTitle(cats []models.Category, id string) string {
	if id == "" {
		return ""
	}
	for _, c := range cats {
		if c.ID == id && c.Title != "" {
			return c.Title
		}
	}
	return "Cat " + id
}

// FormatDate drops anything after the first space.
func FormatDate(s string) string {
	date, _, _ := strings.Cut(s, " ")
	return date
}
