package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/storyline/internal/client/auth"
	"github.com/dmitrijs2005/storyline/internal/client/config"
	"github.com/dmitrijs2005/storyline/internal/client/metrics"
	"github.com/dmitrijs2005/storyline/internal/client/patchstore"
	"github.com/dmitrijs2005/storyline/internal/client/remote"
	"github.com/dmitrijs2005/storyline/internal/client/session"
	"github.com/dmitrijs2005/storyline/internal/client/snapshot"
	"github.com/dmitrijs2005/storyline/internal/client/view"
	"github.com/dmitrijs2005/storyline/internal/client/watch"
	"github.com/dmitrijs2005/storyline/internal/logging"
)

// watchDelay is how long the local store must stay quiet before an
// out-of-band change is reloaded.
const watchDelay = 250 * time.Millisecond

type App struct {
	config    *config.Config
	sess      *session.Session
	db        *sql.DB
	log       logging.Logger
	logCloser io.Closer
	metrics   *metrics.Metrics
	sink      snapshot.Sink
	watcher   *watch.Watcher
	reader    *bufio.Reader
	out       io.Writer
	filter    view.Filter
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	log, logCloser := logging.New(logging.FileOptions{
		Path:       c.LogFile,
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Debug:      c.LogDebug,
	})

	db, err := patchstore.OpenDB(ctx, c.LocalDSN)
	if err != nil {
		log.Error(ctx, "error initializing database", "error", err)
		_ = logCloser.Close()
		return nil, err
	}

	m := metrics.New()
	rc, err := newRemote(ctx, c, log, m)
	if err != nil {
		_ = db.Close()
		_ = logCloser.Close()
		return nil, err
	}

	sink, err := newSink(ctx, c)
	if err != nil {
		_ = rc.Close()
		_ = db.Close()
		_ = logCloser.Close()
		return nil, err
	}

	mode, err := auth.ParseMode(c.Mode)
	if err != nil {
		mode = auth.ModeView
	}
	store := patchstore.New(db, c.TimelineID, log)
	sess := session.New(session.Options{
		Timeline:     c.TimelineID,
		BasePath:     c.BasePath,
		SeedPath:     c.SeedPath,
		Mode:         mode,
		Token:        c.AccessToken,
		JWTSecret:    c.JWTSecret,
		PushDebounce: c.PushDebounce,
	}, store, rc, log, m)

	var w *watch.Watcher
	if path, ok := watch.DBPath(c.LocalDSN); ok {
		if w, err = watch.New(path, watchDelay, log); err != nil {
			log.Warn(ctx, "local store watcher disabled", "error", err)
			w = nil
		}
	}

	return &App{
		config:    c,
		sess:      sess,
		db:        db,
		log:       log,
		logCloser: logCloser,
		metrics:   m,
		sink:      sink,
		watcher:   w,
		reader:    bufio.NewReader(os.Stdin),
		out:       os.Stdout,
	}, nil
}

func newRemote(ctx context.Context, c *config.Config, log logging.Logger, m *metrics.Metrics) (remote.Client, error) {
	retry := remote.RetryOptions{
		Max:      c.PushRetryMax,
		Base:     c.PushBackoffBase,
		Observer: m.ObserveBackoff,
	}
	author, _ := auth.EmailFromToken(c.AccessToken, c.JWTSecret)

	switch c.RemoteDriver {
	case config.DriverREST:
		return remote.NewRESTClient(remote.RESTConfig{
			BaseURL:      c.RemoteURL,
			AnonKey:      c.AnonKey,
			AccessToken:  c.AccessToken,
			Table:        c.OverridesTable,
			EditorsTable: c.EditorsTable,
			TimelineID:   c.TimelineID,
			Author:       author,
			Timeout:      c.RequestTimeout,
			Retry:        retry,
			Logger:       log,
		}), nil
	case config.DriverPostgres:
		return remote.OpenPostgres(ctx, remote.PostgresConfig{
			DSN:          c.PostgresDSN,
			Table:        c.OverridesTable,
			EditorsTable: c.EditorsTable,
			TimelineID:   c.TimelineID,
			Author:       author,
			Retry:        retry,
			Migrate:      c.OverridesTable == "timeline_overrides" && c.EditorsTable == "timeline_editors",
			Logger:       log,
		})
	}
	return remote.Disabled{}, nil
}

func newSink(ctx context.Context, c *config.Config) (snapshot.Sink, error) {
	if c.S3Bucket == "" {
		return snapshot.DirSink{Dir: c.SnapshotDir}, nil
	}
	return snapshot.NewS3Sink(ctx, snapshot.S3Config{
		Bucket:    c.S3Bucket,
		Prefix:    c.S3Prefix,
		Region:    c.S3Region,
		Endpoint:  c.S3Endpoint,
		AccessKey: c.S3AccessKey,
		SecretKey: c.S3SecretKey,
	})
}

// Run boots the session, starts the background loops and blocks in the REPL
// until the user exits or stdin ends.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	if err := a.sess.Boot(ctx); err != nil {
		return err
	}
	a.resetFilter()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.sess.Poll(ctx, a.config.PollInterval)
	if a.watcher != nil {
		go func() {
			_ = a.watcher.Run(ctx, func(ctx context.Context) {
				if err := a.sess.ReloadLocal(ctx); err != nil {
					a.log.Warn(ctx, "reload after external change failed", "error", err)
				}
			})
		}()
	}
	if a.config.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, a.config.MetricsAddr, a.metrics, a.log); err != nil {
				a.log.Error(ctx, "metrics endpoint stopped", "error", err)
			}
		}()
	}

	title := a.sess.Base().Title()
	if title == "" {
		title = a.config.TimelineID
	}
	printlnFn(fmt.Sprintf("storyline: %s, %d stories (type 'help' for commands)",
		title, len(a.sess.Project(view.Filter{}))))
	if st := a.sess.Status(); st != "" {
		printlnFn(st)
	}

	runREPL(ctx, a, a.prompt, a.reader, isInteractive())
	return nil
}

// Close stops the background work. A push in flight is waited for; unsynced
// edits stay marked dirty in the local store for the next start.
func (a *App) Close() {
	if a.watcher != nil {
		_ = a.watcher.Close()
	}
	if err := a.sess.Close(); err != nil {
		a.log.Warn(context.Background(), "closing remote", "error", err)
	}
	_ = a.db.Close()
	_ = a.logCloser.Close()
}

func (a *App) prompt() string {
	c := a.sess.Capability()
	s := string(c.Mode)
	if c.Mode == auth.ModeEdit && !c.CanEdit {
		s += ", read-only"
	}
	if a.sess.PushPending() {
		s += ", unsaved"
	}
	return "(" + s + ")"
}
