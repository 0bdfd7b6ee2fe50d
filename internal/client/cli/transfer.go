package cli

import (
	"context"
	"fmt"
	"os"
)

func (a *App) defaultExportPath() string {
	return fmt.Sprintf("storyline_edits_%s.json", a.config.TimelineID)
}

// Export writes the current overrides to a file, or to the default file
// name for the timeline.
func (a *App) Export(ctx context.Context, args []string) error {
	path := a.defaultExportPath()
	if len(args) > 0 {
		path = args[0]
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := a.sess.Export(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	a.println("Exported overrides to", path)
	return nil
}

// Import replaces the overrides with the contents of a file.
func (a *App) Import(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("import <file>")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := a.sess.Import(ctx, f)
	if err != nil {
		return err
	}
	a.println(fmt.Sprintf("Imported %d overrides.", n))
	return nil
}

// Snapshot writes the dated base and overrides files to the snapshot sink.
func (a *App) Snapshot(ctx context.Context) error {
	locs, err := a.sess.ExportSnapshot(ctx, a.sink)
	if err != nil {
		return err
	}
	for _, l := range locs {
		a.println("Wrote", l)
	}
	return nil
}
