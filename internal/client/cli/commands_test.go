package cli

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/storyline/internal/client/auth"
	"github.com/dmitrijs2005/storyline/internal/client/config"
	"github.com/dmitrijs2005/storyline/internal/client/patchstore"
	"github.com/dmitrijs2005/storyline/internal/client/remote"
	"github.com/dmitrijs2005/storyline/internal/client/session"
	"github.com/dmitrijs2005/storyline/internal/client/snapshot"
	"github.com/dmitrijs2005/storyline/internal/common"
	"github.com/dmitrijs2005/storyline/internal/logging"
)

const testBase = `{
  "meta": {"title": "History"},
  "categories": [{"id": 2, "title": "war"}, {"id": 1, "title": "Law"}],
  "stories": [
    {"id": 1, "title": "Hastings", "startDate": "1066-10-14", "category": "2",
     "externalLink": "https://example.com/hastings", "fullTextResolved": "<p>Norman <b>conquest</b></p>"},
    {"id": 2, "title": "Magna Carta", "startDate": "1215", "category": "1"},
    {"id": 3, "title": "Armada", "startDate": "1588"}
  ]
}`

type testApp struct {
	*App
	buf *bytes.Buffer
	dir string
}

func newTestApp(t *testing.T, mode auth.Mode) *testApp {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.json")
	require.NoError(t, os.WriteFile(basePath, []byte(testBase), 0o600))

	db, err := patchstore.OpenDB(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sess := session.New(session.Options{
		Timeline:     "history",
		BasePath:     basePath,
		Mode:         mode,
		PushDebounce: time.Millisecond,
	}, patchstore.New(db, "history", logging.Discard()), remote.Disabled{}, logging.Discard(), nil)
	t.Cleanup(func() { _ = sess.Close() })
	require.NoError(t, sess.Boot(ctx))

	buf := &bytes.Buffer{}
	a := &App{
		config: &config.Config{TimelineID: "history"},
		sess:   sess,
		log:    logging.Discard(),
		sink:   snapshot.DirSink{Dir: filepath.Join(dir, "snapshots")},
		reader: bufio.NewReader(strings.NewReader("")),
		out:    buf,
	}
	a.resetFilter()
	return &testApp{App: a, buf: buf, dir: dir}
}

// input queues answers for the next prompts.
func (a *testApp) input(lines ...string) {
	a.reader = bufio.NewReader(strings.NewReader(strings.Join(lines, "\n") + "\n"))
}

func (a *testApp) output() string {
	s := a.buf.String()
	a.buf.Reset()
	return s
}

func TestListAndFilter(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, auth.ModeView)

	require.NoError(t, a.List(ctx, nil))
	out := a.output()
	assert.Contains(t, out, "Hastings")
	assert.Contains(t, out, "1066-10-14")
	assert.Contains(t, out, "war")
	assert.Contains(t, out, "3 stories")
	assert.Less(t, strings.Index(out, "Hastings"), strings.Index(out, "Armada"))

	require.NoError(t, a.List(ctx, []string{"magna"}))
	assert.Contains(t, a.output(), "1 stories")

	require.NoError(t, a.Filter(ctx, nil))
	assert.Contains(t, a.output(), "years=1066-1588")

	require.NoError(t, a.Filter(ctx, []string{"years", "1200", "1600"}))
	a.output()
	require.NoError(t, a.List(ctx, nil))
	out = a.output()
	assert.NotContains(t, out, "Hastings")
	assert.Contains(t, out, "2 stories")

	require.NoError(t, a.Filter(ctx, []string{"cat", "1"}))
	assert.Contains(t, a.output(), "category=Law")
	require.NoError(t, a.List(ctx, nil))
	assert.Contains(t, a.output(), "1 stories")

	require.NoError(t, a.Filter(ctx, []string{"reset"}))
	require.NoError(t, a.List(ctx, nil))
	assert.Contains(t, a.output(), "3 stories")

	assert.ErrorIs(t, a.Filter(ctx, []string{"years", "x", "1"}), errUsage)
	assert.ErrorIs(t, a.Filter(ctx, []string{"bogus"}), errUsage)
}

func TestShowAndCats(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, auth.ModeView)

	require.NoError(t, a.Show(ctx, []string{"1"}))
	out := a.output()
	assert.Contains(t, out, "#1 Hastings")
	assert.Contains(t, out, "Category:  war")
	assert.Contains(t, out, "Link:      https://example.com/hastings")
	assert.Contains(t, out, "Norman conquest")

	assert.ErrorIs(t, a.Show(ctx, []string{"42"}), common.ErrNotFound)
	assert.ErrorIs(t, a.Show(ctx, nil), errUsage)

	require.NoError(t, a.Cats(ctx))
	out = a.output()
	assert.Less(t, strings.Index(out, "Law"), strings.Index(out, "war"))
}

func TestEditRequiresEditMode(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, auth.ModeView)

	assert.ErrorIs(t, a.Edit(ctx, []string{"1"}), common.ErrReadOnlyMode)
	assert.ErrorIs(t, a.New(ctx), common.ErrReadOnlyMode)
	assert.ErrorIs(t, a.Delete(ctx, []string{"1"}), common.ErrReadOnlyMode)

	require.NoError(t, a.Mode(ctx, []string{"edit"}))
	assert.Contains(t, a.output(), "edit")
	a.input("", "", "", "", "", "", "", "")
	require.NoError(t, a.Edit(ctx, []string{"1"}))
	assert.Contains(t, a.output(), "Nothing changed.")

	assert.Error(t, a.Mode(ctx, []string{"admin"}))
}

func TestEditStory(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, auth.ModeEdit)

	a.input(
		"Battle of Hastings", // title
		"",                   // start
		"1066-10-15",         // end
		"",                   // category
		"-",                  // link cleared
		"norman, battle",     // tags
		"https://img.example/h.png",
		"Harold falls.",
		"",
	)
	require.NoError(t, a.Edit(ctx, []string{"1"}))
	assert.Contains(t, a.output(), "#1 Battle of Hastings")

	r, err := a.sess.Get("1")
	require.NoError(t, err)
	assert.Equal(t, "Battle of Hastings", r.Title)
	assert.Equal(t, "1066-10-14", r.StartDate)
	assert.Equal(t, "1066-10-15", r.EndDate)
	assert.Equal(t, "", r.ExternalLink)
	assert.Equal(t, "norman, battle", r.Tags)
	assert.Equal(t, "Harold falls.", r.FullText)
	require.Len(t, r.Media, 1)
	assert.Equal(t, "https://img.example/h.png", r.Media[0].Src)

	p := a.sess.Patches()["1"]
	assert.Nil(t, p.StartDate)
	assert.Nil(t, p.Category)
}

func TestEditRejectsUnsafeImage(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, auth.ModeEdit)

	a.input("", "", "", "", "", "", "javascript:alert(1)")
	assert.Error(t, a.Edit(ctx, []string{"2"}))
	assert.Empty(t, a.sess.Patches())
}

func TestNewAndDelete(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, auth.ModeEdit)

	a.input("Glorious Revolution", "1688", "", "", "", "", "", "")
	require.NoError(t, a.New(ctx))
	assert.Contains(t, a.output(), "Created story 4")

	r, err := a.sess.Get("4")
	require.NoError(t, err)
	assert.Equal(t, "1", r.Category)
	assert.True(t, r.IsNew)

	a.input("n")
	require.NoError(t, a.Delete(ctx, []string{"2"}))
	assert.Contains(t, a.output(), "Cancelled.")
	_, err = a.sess.Get("2")
	require.NoError(t, err)

	a.input("y")
	require.NoError(t, a.Delete(ctx, []string{"2"}))
	assert.Contains(t, a.output(), "Deleted story 2")
	_, err = a.sess.Get("2")
	assert.ErrorIs(t, err, common.ErrNotFound)

	a.input("yes")
	require.NoError(t, a.Delete(ctx, []string{"4"}))
	_, ok := a.sess.Patches()["4"]
	assert.False(t, ok)
}

func TestExportImportSnapshot(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, auth.ModeEdit)

	a.input("Armada defeated", "", "", "", "", "", "", "")
	require.NoError(t, a.Edit(ctx, []string{"3"}))
	a.output()

	path := filepath.Join(a.dir, "edits.json")
	require.NoError(t, a.Export(ctx, []string{path}))
	assert.Contains(t, a.output(), "Exported overrides to "+path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Armada defeated")

	a.input("y")
	require.NoError(t, a.Delete(ctx, []string{"1"}))
	require.Len(t, a.sess.Patches(), 2)

	require.NoError(t, a.Import(ctx, []string{path}))
	assert.Contains(t, a.output(), "Imported 1 overrides.")
	assert.Len(t, a.sess.Patches(), 1)

	bad := filepath.Join(a.dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[1,2]`), 0o600))
	assert.ErrorIs(t, a.Import(ctx, []string{bad}), common.ErrInvalidPatchFile)

	require.NoError(t, a.Snapshot(ctx))
	out := a.output()
	assert.Equal(t, 2, strings.Count(out, "Wrote "))
	entries, err := os.ReadDir(filepath.Join(a.dir, "snapshots"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStatusWithoutRemote(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, auth.ModeEdit)

	require.NoError(t, a.Reload(ctx))
	assert.Contains(t, a.output(), "no remote configured")

	require.NoError(t, a.Status(ctx))
	out := a.output()
	assert.Contains(t, out, "Timeline:  history")
	assert.Contains(t, out, "3 visible, 0 overrides")
	assert.Contains(t, out, "Remote:    never")

	assert.Equal(t, "(edit)", a.prompt())
}
