package view

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/storyline/internal/client/models"
)

func intp(n int) *int { return &n }

func rec(key, start string) models.Record {
	return models.Record{ID: models.NewStoryID(key), Title: "t" + key, StartDate: start}
}

func ids(rs []models.Record) []string {
	out := []string{}
	for _, r := range rs {
		out = append(out, r.ID.Key())
	}
	return out
}

func TestProject_YearRange(t *testing.T) {
	records := []models.Record{rec("1", "2020-05-01"), rec("2", "2021"), rec("3", "2019-12")}
	got := Project(records, Filter{YearMin: intp(2020), YearMax: intp(2021)})
	assert.Equal(t, []string{"1", "2"}, ids(got))
}

func TestProject_ExcludesTombstones(t *testing.T) {
	dead := rec("5", "2000")
	dead.IsDeleted = true
	got := Project([]models.Record{dead, rec("6", "2001")}, Filter{})
	assert.Equal(t, []string{"6"}, ids(got))
}

func TestProject_StringOrdering(t *testing.T) {
	records := []models.Record{rec("a", "2024-9"), rec("b", "2024-10"), rec("c", ""), rec("d", "2024-10")}
	got := Project(records, Filter{})
	assert.Equal(t, []string{"c", "b", "d", "a"}, ids(got))
}

func TestProject_UnparseableYearPasses(t *testing.T) {
	records := []models.Record{rec("1", "circa 1900"), rec("2", "1800")}
	got := Project(records, Filter{YearMin: intp(1850)})
	assert.Equal(t, []string{"1"}, ids(got))
}

func TestProject_TextAndCategory(t *testing.T) {
	a := rec("1", "2000")
	a.Title = "Battle of Hastings"
	a.Category = "2"
	b := rec("2", "2001")
	b.Tags = "Norman, HASTINGS"
	c := rec("3", "2002")
	c.FullText = "<p>hastings again</p>"
	d := rec("4", "2003")
	d.Text = "nothing"

	records := []models.Record{a, b, c, d}
	assert.Equal(t, []string{"1", "2", "3"}, ids(Project(records, Filter{Text: "  Hastings "})))
	assert.Equal(t, []string{"1"}, ids(Project(records, Filter{Text: "hastings", CategoryID: "2"})))
	assert.Empty(t, Project(records, Filter{CategoryID: "9"}))
}

func TestParseYear(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"2024", 2024, true},
		{"2024-03", 2024, true},
		{"2024-03-15", 2024, true},
		{"2024-3", 2024, true},
		{"24", 0, false},
		{"", 0, false},
		{"abcd", 0, false},
	}
	for _, tt := range tests {
		y, ok := ParseYear(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, y, tt.in)
	}
}

func TestYearBounds(t *testing.T) {
	dead := rec("9", "1000")
	dead.IsDeleted = true
	min, max, ok := YearBounds([]models.Record{rec("1", "1990"), rec("2", "x"), rec("3", "2010-01"), dead})
	require.True(t, ok)
	assert.Equal(t, 1990, min)
	assert.Equal(t, 2010, max)

	_, _, ok = YearBounds(nil)
	assert.False(t, ok)
}

func TestSortCategories(t *testing.T) {
	cats := []models.Category{{ID: "1", Title: "war"}, {ID: "2", Title: "Art"}, {ID: "3", Title: "science"}}
	got := SortCategories(cats)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, "1", got[2].ID)
	assert.Equal(t, "1", cats[0].ID)

	assert.Equal(t, "war", CategoryTitle(cats, "1"))
	assert.Equal(t, "Cat 7", CategoryTitle(cats, "7"))
	assert.Equal(t, "", CategoryTitle(cats, ""))
}

func TestSafeURL(t *testing.T) {
	assert.Equal(t, "https://example.com/a?b=1", SafeURL(" https://example.com/a?b=1 "))
	assert.Equal(t, "http://x.org", SafeURL("http://x.org"))
	assert.Equal(t, "", SafeURL("javascript:alert(1)"))
	assert.Equal(t, "", SafeURL("data:text/html;base64,AAAA"))
	assert.Equal(t, "", SafeURL("file:///etc/passwd"))
	assert.Equal(t, "", SafeURL("/relative"))
	assert.Equal(t, "", SafeURL(""))
}

func TestSafeImageURL(t *testing.T) {
	assert.Equal(t, "data:image/png;base64,iVBOR", SafeImageURL("data:image/png;base64,iVBOR"))
	assert.Equal(t, "DATA:IMAGE/SVG+XML;BASE64,PHN2", SafeImageURL("DATA:IMAGE/SVG+XML;BASE64,PHN2"))
	assert.Equal(t, "", SafeImageURL("data:image/png,raw"))
	assert.Equal(t, "https://img/x.png", SafeImageURL("https://img/x.png"))
	assert.Equal(t, "", SafeImageURL("javascript:x"))
}

func TestThumbnailAndImages(t *testing.T) {
	var r models.Record
	require.NoError(t, json.Unmarshal([]byte(`{"id": 1, "media": [
		{"type": "Video", "src": "v", "externalMediaThumb": "https://thumb"},
		{"type": "image", "src": "lower"},
		{"type": "Image", "src": "javascript:bad"},
		{"type": "Image", "src": "https://ok/img.jpg"}
	]}`), &r))

	assert.Equal(t, "lower", Thumbnail(r))
	imgs := Images(r)
	require.Len(t, imgs, 1)
	assert.Equal(t, "https://ok/img.jpg", imgs[0].Src)

	r.Media = r.Media[:1]
	assert.Equal(t, "https://thumb", Thumbnail(r))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("<b>hello</b>", 10))
	assert.Equal(t, "héll…", Truncate("héllo world", 5))
	assert.Equal(t, "Bold text", StripHTML("<b>Bold</b> <i>text</i>"))
	assert.Equal(t, "2020-01-01", FormatDate("2020-01-01 00:00:00"))
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"<p>Norman <b>conquest</b></p>", "Norman conquest"},
		{"L&#39;arm&eacute;e &amp; la flotte", "L'armée & la flotte"},
		{"<p>a &lt; b</p>", "a < b"},
		{"x<script>alert(1)</script>y", "xy"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripHTML(tt.in), tt.in)
	}
	assert.Equal(t, "L'armée…", Truncate("<i>L&#39;arm&eacute;e</i> de terre", 8))
}
