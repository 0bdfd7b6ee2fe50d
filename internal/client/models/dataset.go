package models

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Dataset is a normalized base timeline.
type Dataset struct {
	Meta       map[string]any
	Categories []Category
	Stories    []Record
}

// Title returns meta.title, or "" when it is missing.
func (d Dataset) Title() string {
	if s, ok := d.Meta["title"].(string); ok {
		return s
	}
	return ""
}

func (d Dataset) MarshalJSON() ([]byte, error) {
	meta := d.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	cats := d.Categories
	if cats == nil {
		cats = []Category{}
	}
	stories := d.Stories
	if stories == nil {
		stories = []Record{}
	}
	return json.Marshal(struct {
		Meta       map[string]any `json:"meta"`
		Categories []Category     `json:"categories"`
		Stories    []Record       `json:"stories"`
	}{meta, cats, stories})
}

// NormalizeDataset accepts the standard {meta, categories, stories} export or
// a legacy object keyed by story id. Anything else yields an empty dataset.
func NormalizeDataset(data []byte) Dataset {
	empty := Dataset{Meta: map[string]any{}}
	if !gjson.ValidBytes(data) {
		return empty
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return empty
	}

	if stories := root.Get("stories"); stories.IsArray() {
		ds := empty
		if meta := root.Get("meta"); meta.IsObject() {
			if m, ok := meta.Value().(map[string]any); ok {
				ds.Meta = m
			}
		}
		if cats := root.Get("categories"); cats.IsArray() {
			cats.ForEach(func(_, v gjson.Result) bool {
				var c Category
				if v.IsObject() && json.Unmarshal([]byte(v.Raw), &c) == nil {
					ds.Categories = append(ds.Categories, c)
				}
				return true
			})
		}
		stories.ForEach(func(_, v gjson.Result) bool {
			var r Record
			if v.IsObject() && json.Unmarshal([]byte(v.Raw), &r) == nil {
				ds.Stories = append(ds.Stories, r)
			}
			return true
		})
		return ds
	}

	return normalizeLegacy(root)
}

func normalizeLegacy(root gjson.Result) Dataset {
	title := "Timeline"
	for _, k := range []string{"title", "name"} {
		if v := root.Get(k); v.Type == gjson.String && v.Str != "" {
			title = v.Str
			break
		}
	}
	ds := Dataset{Meta: map[string]any{"title": title}}

	seen := make(map[string]bool)
	root.ForEach(func(key, v gjson.Result) bool {
		if !v.IsObject() {
			return true
		}
		var r Record
		if json.Unmarshal([]byte(v.Raw), &r) != nil {
			return true
		}
		if r.ID.IsZero() {
			r.ID = StringID(key.String())
		}
		cid := legacyCategory(v)
		if cid != "" {
			if r.Category == "" {
				r.Category = cid
			}
			if !seen[cid] {
				seen[cid] = true
				ds.Categories = append(ds.Categories, Category{ID: cid, Title: cid})
			}
		}
		ds.Stories = append(ds.Stories, r)
		return true
	})
	return ds
}

func legacyCategory(v gjson.Result) string {
	for _, k := range []string{"categoryId", "category", "category_id"} {
		c := v.Get(k)
		if !c.Exists() || c.Type == gjson.Null {
			continue
		}
		return c.String()
	}
	return ""
}

// IsPatchSetShape reports whether data looks like an override file rather
// than a base export.
func IsPatchSetShape(data []byte) bool {
	if !gjson.ValidBytes(data) {
		return false
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return false
	}
	for _, k := range []string{"stories", "categories", "meta"} {
		if root.Get(k).Exists() {
			return false
		}
	}
	return true
}
