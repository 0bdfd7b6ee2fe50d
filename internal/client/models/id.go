// Package models defines the timeline data model: stories, categories,
// override patches and the datasets they come in.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// StoryID identifies a story. Base data uses numbers or strings; the kind is
// remembered so encoding reproduces the original form. Key is the string form
// used to address patches.
type StoryID struct {
	key     string
	numeric bool
}

// NewStoryID builds an id from a patch key. Keys that are plain integers
// become numeric ids.
func NewStoryID(key string) StoryID {
	if _, err := strconv.ParseInt(key, 10, 64); err == nil {
		return StoryID{key: key, numeric: true}
	}
	return StoryID{key: key}
}

// IntID builds a numeric id.
func IntID(n int64) StoryID {
	return StoryID{key: strconv.FormatInt(n, 10), numeric: true}
}

// StringID builds a string id, even when s looks like a number.
func StringID(s string) StoryID {
	return StoryID{key: s}
}

func (id StoryID) Key() string     { return id.key }
func (id StoryID) String() string  { return id.key }
func (id StoryID) IsZero() bool    { return id.key == "" }
func (id StoryID) IsNumeric() bool { return id.numeric }

// Int returns the integer value of a numeric id.
func (id StoryID) Int() (int64, bool) {
	if !id.numeric {
		return 0, false
	}
	n, err := strconv.ParseInt(id.key, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (id StoryID) MarshalJSON() ([]byte, error) {
	if id.numeric {
		return []byte(id.key), nil
	}
	return json.Marshal(id.key)
}

func (id *StoryID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = StoryID{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("story id must be a number or a string: %w", err)
	}
	*id = StoryID{key: n.String(), numeric: true}
	return nil
}
