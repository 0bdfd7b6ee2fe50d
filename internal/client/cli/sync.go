package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storyline/internal/client/auth"
	"github.com/dmitrijs2005/storyline/internal/client/view"
)

// Reload pulls the remote copy and reconciles it with the local overrides.
func (a *App) Reload(ctx context.Context) error {
	err := a.sess.PullAndApply(ctx)
	a.println(a.sess.Status())
	return err
}

// Push saves the overrides to the remote now.
func (a *App) Push(ctx context.Context) error {
	if err := a.sess.Push(ctx); err != nil {
		return err
	}
	a.println(a.sess.Status())
	return nil
}

// Mode shows or switches between view and edit mode.
func (a *App) Mode(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.println("Mode:", a.sess.Capability())
		return nil
	}
	m, err := auth.ParseMode(args[0])
	if err != nil {
		return err
	}
	c := a.sess.SetMode(ctx, m)
	a.println("Mode:", c)
	return nil
}

// Status prints the capability and sync state.
func (a *App) Status(ctx context.Context) error {
	c := a.sess.Capability()
	fmt.Fprintf(a.out, "Timeline:  %s\n", a.config.TimelineID)
	fmt.Fprintf(a.out, "Mode:      %s\n", c)
	fmt.Fprintf(a.out, "Stories:   %d visible, %d overrides\n",
		len(a.sess.Project(view.Filter{})), len(a.sess.Patches()))

	meta := a.sess.LastRemote()
	when := "never"
	if meta.UpdatedAt != nil {
		when = meta.UpdatedAt.Local().Format(time.DateTime)
	}
	if meta.UpdatedBy != nil && *meta.UpdatedBy != "" {
		when += " by " + *meta.UpdatedBy
	}
	fmt.Fprintf(a.out, "Remote:    %s\n", when)
	if a.sess.PushPending() {
		fmt.Fprintln(a.out, "Push:      pending")
	}
	if st := a.sess.Status(); st != "" {
		fmt.Fprintf(a.out, "Last:      %s\n", st)
	}
	return nil
}
