package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Wire keys shared by records and patches.
const (
	keyID           = "id"
	keyTitle        = "title"
	keyStartDate    = "startDate"
	keyEndDate      = "endDate"
	keyCategory     = "category"
	keyFullText     = "fullTextResolved"
	keyText         = "textResolved"
	keyTags         = "tags"
	keyExternalLink = "externalLink"
	keyCredit       = "credit"
	keyMedia        = "media"
	keyManualLinks  = "manualLinks"
	keyRecordLinks  = "__manualLinks"
	keyNew          = "__new"
	keyDeleted      = "__deleted"
)

// MediaTypeImage is the only media type that is rendered.
const MediaTypeImage = "Image"

// Media is one attachment of a story.
type Media struct {
	Type    string
	Src     string
	Caption string
	Extra   map[string]json.RawMessage
}

// ExternalThumb returns the externalMediaThumb attribute some exports carry.
func (m Media) ExternalThumb() string {
	return looseString(m.Extra["externalMediaThumb"])
}

func (m Media) MarshalJSON() ([]byte, error) {
	out := cloneRaw(m.Extra)
	if out == nil {
		out = map[string]json.RawMessage{}
	}
	putString(out, "type", m.Type)
	putString(out, "src", m.Src)
	putString(out, "caption", m.Caption)
	return json.Marshal(out)
}

func (m *Media) UnmarshalJSON(b []byte) error {
	obj, err := decodeObject(b)
	if err != nil {
		return err
	}
	*m = Media{
		Type:    looseString(obj["type"]),
		Src:     looseString(obj["src"]),
		Caption: looseString(obj["caption"]),
	}
	delete(obj, "type")
	delete(obj, "src")
	delete(obj, "caption")
	if len(obj) > 0 {
		m.Extra = obj
	}
	return nil
}

// Link is a manually added reference.
type Link struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Category groups stories. Colour is a hex fragment without '#'.
type Category struct {
	ID     string
	Title  string
	Colour string
}

func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"id": c.ID, "title": c.Title, "colour": c.Colour})
}

func (c *Category) UnmarshalJSON(b []byte) error {
	obj, err := decodeObject(b)
	if err != nil {
		return err
	}
	*c = Category{
		ID:     looseString(obj["id"]),
		Title:  looseString(obj["title"]),
		Colour: looseString(obj["colour"]),
	}
	return nil
}

// Record is a story as shown on the timeline. IsNew and IsDeleted are set by
// the merge engine and never come from base data.
type Record struct {
	ID           StoryID
	Title        string
	StartDate    string
	EndDate      string
	Category     string
	FullText     string
	Text         string
	Tags         string
	ExternalLink string
	Credit       string
	Media        []Media
	ManualLinks  []Link

	IsNew     bool
	IsDeleted bool

	// Extra keeps attributes this package does not interpret.
	Extra map[string]json.RawMessage
}

// Body returns the full text when it is not blank, the short text otherwise.
func (r Record) Body() string {
	if strings.TrimSpace(r.FullText) != "" {
		return r.FullText
	}
	return r.Text
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	c := r
	c.Media = cloneMedia(r.Media)
	if r.ManualLinks != nil {
		c.ManualLinks = append([]Link(nil), r.ManualLinks...)
	}
	c.Extra = cloneRaw(r.Extra)
	return c
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := cloneRaw(r.Extra)
	if out == nil {
		out = map[string]json.RawMessage{}
	}
	id, err := r.ID.MarshalJSON()
	if err != nil {
		return nil, err
	}
	out[keyID] = id
	putString(out, keyTitle, r.Title)
	putString(out, keyStartDate, r.StartDate)
	putString(out, keyEndDate, r.EndDate)
	putString(out, keyCategory, r.Category)
	putString(out, keyFullText, r.FullText)
	putString(out, keyText, r.Text)
	putString(out, keyTags, r.Tags)
	putString(out, keyExternalLink, r.ExternalLink)
	if r.Credit != "" {
		putString(out, keyCredit, r.Credit)
	}
	media := r.Media
	if media == nil {
		media = []Media{}
	}
	if err := putValue(out, keyMedia, media); err != nil {
		return nil, err
	}
	if r.ManualLinks != nil {
		if err := putValue(out, keyRecordLinks, r.ManualLinks); err != nil {
			return nil, err
		}
	}
	if r.IsNew {
		out[keyNew] = json.RawMessage("true")
	}
	if r.IsDeleted {
		out[keyDeleted] = json.RawMessage("true")
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a base-data story. Base data is trusted loosely:
// numbers are accepted where strings are expected and malformed media or
// link lists are dropped.
func (r *Record) UnmarshalJSON(b []byte) error {
	obj, err := decodeObject(b)
	if err != nil {
		return err
	}
	var rec Record
	if raw, ok := obj[keyID]; ok {
		if err := rec.ID.UnmarshalJSON(raw); err != nil {
			return err
		}
	}
	rec.Title = looseString(obj[keyTitle])
	rec.StartDate = looseString(obj[keyStartDate])
	rec.EndDate = looseString(obj[keyEndDate])
	rec.Category = looseString(obj[keyCategory])
	rec.FullText = looseString(obj[keyFullText])
	rec.Text = looseString(obj[keyText])
	rec.Tags = looseString(obj[keyTags])
	rec.ExternalLink = looseString(obj[keyExternalLink])
	rec.Credit = looseString(obj[keyCredit])
	if raw, ok := obj[keyMedia]; ok {
		_ = json.Unmarshal(raw, &rec.Media)
	}
	if raw, ok := obj[keyRecordLinks]; ok {
		_ = json.Unmarshal(raw, &rec.ManualLinks)
	}
	rec.IsNew = isTrue(obj[keyNew])
	rec.IsDeleted = isTrue(obj[keyDeleted])

	for _, k := range []string{keyID, keyTitle, keyStartDate, keyEndDate, keyCategory, keyFullText,
		keyText, keyTags, keyExternalLink, keyCredit, keyMedia, keyRecordLinks, keyNew, keyDeleted} {
		delete(obj, k)
	}
	if len(obj) > 0 {
		rec.Extra = obj
	}
	*r = rec
	return nil
}

// CloneRecords deep-copies a slice of records.
func CloneRecords(in []Record) []Record {
	if in == nil {
		return nil
	}
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

func decodeObject(b []byte) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, &ParseError{Source: "object", Reason: "null is not an object"}
	}
	for k, v := range obj {
		obj[k] = canonicalRaw(v)
	}
	return obj, nil
}

// looseString reads a string, accepting numbers and booleans by their JSON
// text; null, objects and arrays read as "".
func looseString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		return ""
	case '{', '[', 'n':
		return ""
	default:
		return string(raw)
	}
}

func isTrue(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("true"))
}

// canonicalRaw re-encodes a value so nested object keys are sorted and
// whitespace is gone. Numbers keep their original text.
func canonicalRaw(raw json.RawMessage) json.RawMessage {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}

func putString(m map[string]json.RawMessage, key, value string) {
	b, _ := json.Marshal(value)
	m[key] = b
}

func putValue(m map[string]json.RawMessage, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m[key] = b
	return nil
}

func cloneRaw(in map[string]json.RawMessage) map[string]json.RawMessage {
	if in == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

func cloneMedia(in []Media) []Media {
	if in == nil {
		return nil
	}
	out := make([]Media, len(in))
	for i, m := range in {
		out[i] = m
		out[i].Extra = cloneRaw(m.Extra)
	}
	return out
}
