package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Patch is a sparse override for one story. Nil string fields and unset Has*
// flags mean "leave the field alone". Values of the wrong type are not part of
// the typed view: they stay in Extra and are listed in Issues.
type Patch struct {
	Title        *string
	StartDate    *string
	EndDate      *string
	Category     *string
	FullText     *string
	Text         *string
	Tags         *string
	ExternalLink *string

	Media          []Media
	HasMedia       bool
	ManualLinks    []Link
	HasManualLinks bool

	New     bool
	Deleted bool

	Extra  map[string]json.RawMessage
	Issues []FieldIssue
}

// Str returns a pointer to s, for building patches.
func Str(s string) *string { return &s }

func (p *Patch) stringFields() []struct {
	key string
	ptr **string
} {
	return []struct {
		key string
		ptr **string
	}{
		{keyTitle, &p.Title},
		{keyStartDate, &p.StartDate},
		{keyEndDate, &p.EndDate},
		{keyCategory, &p.Category},
		{keyFullText, &p.FullText},
		{keyText, &p.Text},
		{keyTags, &p.Tags},
		{keyExternalLink, &p.ExternalLink},
	}
}

// ParsePatch decodes one patch object. Every known key is checked on its own;
// a bad value only disables that key.
func ParsePatch(data []byte) (Patch, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return Patch{}, &ParseError{Source: "patch", Reason: "not a JSON object", Err: err}
	}
	return patchFromObject(obj), nil
}

func patchFromObject(obj map[string]json.RawMessage) Patch {
	var p Patch
	extra := make(map[string]json.RawMessage)

	for _, f := range p.stringFields() {
		raw, ok := obj[f.key]
		if !ok {
			continue
		}
		delete(obj, f.key)
		var s string
		if rawKind(raw) != '"' || json.Unmarshal(raw, &s) != nil {
			p.issue(f.key, "expected a string")
			extra[f.key] = raw
			continue
		}
		*f.ptr = &s
	}

	if raw, ok := obj[keyMedia]; ok {
		delete(obj, keyMedia)
		if media, ok := parseMedia(raw); ok {
			p.Media, p.HasMedia = media, true
		} else {
			p.issue(keyMedia, "expected an array of objects")
			extra[keyMedia] = raw
		}
	}

	if raw, ok := obj[keyManualLinks]; ok {
		delete(obj, keyManualLinks)
		if links, ok := parseLinks(raw); ok {
			p.ManualLinks, p.HasManualLinks = links, true
		} else {
			p.issue(keyManualLinks, "expected an array of {url, title} objects")
			extra[keyManualLinks] = raw
		}
	}

	for _, flag := range []struct {
		key string
		dst *bool
	}{{keyNew, &p.New}, {keyDeleted, &p.Deleted}} {
		raw, ok := obj[flag.key]
		if !ok {
			continue
		}
		delete(obj, flag.key)
		*flag.dst = truthy(raw)
	}
	if p.New && p.Deleted {
		p.issue(keyNew, "both __new and __deleted are set")
	}

	for k, v := range obj {
		extra[k] = v
	}
	if len(extra) > 0 {
		p.Extra = extra
	}
	return p
}

func (p *Patch) issue(field, reason string) {
	p.Issues = append(p.Issues, FieldIssue{Field: field, Reason: reason})
}

func parseMedia(raw json.RawMessage) ([]Media, bool) {
	var items []json.RawMessage
	if rawKind(raw) != '[' || json.Unmarshal(raw, &items) != nil {
		return nil, false
	}
	out := make([]Media, 0, len(items))
	for _, it := range items {
		if rawKind(it) != '{' {
			return nil, false
		}
		var m Media
		if err := m.UnmarshalJSON(it); err != nil {
			return nil, false
		}
		out = append(out, m)
	}
	return out, true
}

func parseLinks(raw json.RawMessage) ([]Link, bool) {
	var items []json.RawMessage
	if rawKind(raw) != '[' || json.Unmarshal(raw, &items) != nil {
		return nil, false
	}
	out := make([]Link, 0, len(items))
	for _, it := range items {
		obj, err := decodeObject(it)
		if err != nil || rawKind(it) != '{' {
			return nil, false
		}
		out = append(out, Link{URL: looseString(obj["url"]), Title: looseString(obj["title"])})
	}
	return out, true
}

// truthy follows loose JSON truthiness for the marker flags: false, null, 0
// and "" are unset; any other value, such as 1 or "yes", is set.
func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	switch rawKind(raw) {
	case 0, 'n', 'f':
		return false
	case '"':
		var s string
		return json.Unmarshal(raw, &s) == nil && s != ""
	case 't', '{', '[':
		return true
	}
	var n float64
	return json.Unmarshal(raw, &n) == nil && n != 0
}

func rawKind(raw json.RawMessage) byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	return raw[0]
}

// IsEmpty reports whether the patch carries nothing at all.
func (p Patch) IsEmpty() bool {
	if p.New || p.Deleted || p.HasMedia || p.HasManualLinks || len(p.Extra) > 0 {
		return false
	}
	for _, f := range p.stringFields() {
		if *f.ptr != nil {
			return false
		}
	}
	return true
}

// Overlay returns p with every field present in q copied over it. Issues are
// not carried.
func (p Patch) Overlay(q Patch) Patch {
	out := p.Clone()
	out.Issues = nil
	qf := q.stringFields()
	for i, f := range out.stringFields() {
		if v := *qf[i].ptr; v != nil {
			s := *v
			*f.ptr = &s
		}
	}
	if q.HasMedia {
		out.Media, out.HasMedia = cloneMedia(q.Media), true
		if out.Media == nil {
			out.Media = []Media{}
		}
	}
	if q.HasManualLinks {
		out.ManualLinks, out.HasManualLinks = append([]Link{}, q.ManualLinks...), true
	}
	out.New = out.New || q.New
	out.Deleted = out.Deleted || q.Deleted
	for k, v := range q.Extra {
		if out.Extra == nil {
			out.Extra = make(map[string]json.RawMessage)
		}
		out.Extra[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Clone returns a deep copy of p.
func (p Patch) Clone() Patch {
	c := p
	for _, f := range c.stringFields() {
		if v := *f.ptr; v != nil {
			s := *v
			*f.ptr = &s
		}
	}
	c.Media = cloneMedia(p.Media)
	if p.ManualLinks != nil {
		c.ManualLinks = append([]Link(nil), p.ManualLinks...)
	}
	c.Extra = cloneRaw(p.Extra)
	if p.Issues != nil {
		c.Issues = append([]FieldIssue(nil), p.Issues...)
	}
	return c
}

// MarshalJSON writes the canonical form: sorted keys, compact values.
func (p Patch) MarshalJSON() ([]byte, error) {
	out := cloneRaw(p.Extra)
	if out == nil {
		out = make(map[string]json.RawMessage)
	}
	for _, f := range p.stringFields() {
		if v := *f.ptr; v != nil {
			putString(out, f.key, *v)
		}
	}
	if p.HasMedia {
		media := p.Media
		if media == nil {
			media = []Media{}
		}
		if err := putValue(out, keyMedia, media); err != nil {
			return nil, err
		}
	}
	if p.HasManualLinks {
		links := p.ManualLinks
		if links == nil {
			links = []Link{}
		}
		if err := putValue(out, keyManualLinks, links); err != nil {
			return nil, err
		}
	}
	if p.New {
		out[keyNew] = json.RawMessage("true")
	}
	if p.Deleted {
		out[keyDeleted] = json.RawMessage("true")
	}
	return json.Marshal(out)
}

func (p *Patch) UnmarshalJSON(b []byte) error {
	parsed, err := ParsePatch(b)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// PatchSet maps a story key to its override.
type PatchSet map[string]Patch

// ParsePatchSet decodes a whole override set. The input must be a JSON
// object; entries whose value is not an object are dropped and their keys
// returned.
func ParsePatchSet(data []byte) (PatchSet, []string, error) {
	if rawKind(data) != '{' {
		return nil, nil, &ParseError{Source: "patch set", Reason: "not a JSON object"}
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil, &ParseError{Source: "patch set", Reason: "invalid JSON", Err: err}
	}
	set := make(PatchSet, len(entries))
	var dropped []string
	for k, raw := range entries {
		if rawKind(raw) != '{' {
			dropped = append(dropped, k)
			continue
		}
		p, err := ParsePatch(raw)
		if err != nil {
			dropped = append(dropped, k)
			continue
		}
		set[k] = p
	}
	sort.Strings(dropped)
	return set, dropped, nil
}

func (s PatchSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]Patch(s))
}

func (s *PatchSet) UnmarshalJSON(b []byte) error {
	set, _, err := ParsePatchSet(b)
	if err != nil {
		return err
	}
	*s = set
	return nil
}

// Clone deep-copies the set. A nil set clones to an empty one.
func (s PatchSet) Clone() PatchSet {
	out := make(PatchSet, len(s))
	for k, p := range s {
		out[k] = p.Clone()
	}
	return out
}

// Keys returns the keys in ascending order.
func (s PatchSet) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Canonical returns the canonical JSON of the patch under key, or nil when
// the key is absent.
func (s PatchSet) Canonical(key string) []byte {
	p, ok := s[key]
	if !ok {
		return nil
	}
	b, err := p.MarshalJSON()
	if err != nil {
		return []byte(fmt.Sprintf("!%v", err))
	}
	return b
}

// RemoteMeta is the provenance of the remote copy.
type RemoteMeta struct {
	UpdatedAt *time.Time
	UpdatedBy *string
}

// IsZero reports whether no provenance is known.
func (m RemoteMeta) IsZero() bool { return m.UpdatedAt == nil && m.UpdatedBy == nil }

// Same reports whether both metadata point at the same remote write.
func (m RemoteMeta) Same(o RemoteMeta) bool {
	switch {
	case (m.UpdatedAt == nil) != (o.UpdatedAt == nil):
		return false
	case m.UpdatedAt != nil && !m.UpdatedAt.Equal(*o.UpdatedAt):
		return false
	case (m.UpdatedBy == nil) != (o.UpdatedBy == nil):
		return false
	case m.UpdatedBy != nil && *m.UpdatedBy != *o.UpdatedBy:
		return false
	}
	return true
}

// Snapshot is one read of the remote row.
type Snapshot struct {
	Patches PatchSet
	Meta    RemoteMeta
}
