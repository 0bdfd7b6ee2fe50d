package view

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/dmitrijs2005/storyline/internal/client/models"
)

var tagRe = regexp.MustCompile(`<[^>]+>`)

// StripHTML returns the text content of an HTML fragment with entities
// decoded. Script and style bodies are dropped.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return tagRe.ReplaceAllString(s, "")
	}
	doc.Find("script, style").Remove()
	return doc.Text()
}

// Truncate strips markup and cuts s to at most n runes, ending with an
// ellipsis when shortened.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(StripHTML(s))
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

// SafeURL returns the normalized URL when it is an absolute http or https
// link, and "" otherwise.
func SafeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.String()
	}
	return ""
}

var dataImageRe = regexp.MustCompile(`(?i)^data:image/[a-z0-9+.-]+;base64,`)

// SafeImageURL is SafeURL that also admits base64 data:image URLs.
func SafeImageURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(trimmed), "data:image/") {
		if dataImageRe.MatchString(trimmed) {
			return trimmed
		}
		return ""
	}
	return SafeURL(trimmed)
}

// Thumbnail picks the first image source of r, then the first external
// thumbnail. The result is not yet sanitized.
func Thumbnail(r models.Record) string {
	for _, m := range r.Media {
		if strings.EqualFold(m.Type, models.MediaTypeImage) && m.Src != "" {
			return m.Src
		}
	}
	for _, m := range r.Media {
		if t := m.ExternalThumb(); t != "" {
			return t
		}
	}
	return ""
}

// Images returns the renderable image items of r with sanitized sources.
func Images(r models.Record) []models.Media {
	var out []models.Media
	for _, m := range r.Media {
		if m.Type != models.MediaTypeImage {
			continue
		}
		src := SafeImageURL(m.Src)
		if src == "" {
			continue
		}
		m.Src = src
		out = append(out, m)
	}
	return out
}
