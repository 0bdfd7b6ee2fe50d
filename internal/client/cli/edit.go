package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/storyline/internal/client/models"
	"github.com/dmitrijs2005/storyline/internal/client/view"
)

// storyForm collects field edits as a sparse patch.
type storyForm struct {
	a     *App
	patch models.Patch
}

func (f *storyForm) text(label, current string, dst **string) error {
	v, changed, err := GetField(f.a.reader, label, current, f.a.out)
	if err != nil {
		return err
	}
	if changed {
		*dst = models.Str(v)
	}
	return nil
}

// fill prompts for every editable field of r.
func (f *storyForm) fill(r models.Record) error {
	p := &f.patch
	steps := []struct {
		label   string
		current string
		dst     **string
	}{
		{"Title", r.Title, &p.Title},
		{"Start date (YYYY[-MM[-DD]])", r.StartDate, &p.StartDate},
		{"End date", r.EndDate, &p.EndDate},
		{"Category id", r.Category, &p.Category},
		{"External link", r.ExternalLink, &p.ExternalLink},
		{"Tags", r.Tags, &p.Tags},
	}
	for _, s := range steps {
		if err := f.text(s.label, s.current, s.dst); err != nil {
			return err
		}
	}

	img, changed, err := GetField(f.a.reader, "Image URL", view.Thumbnail(r), f.a.out)
	if err != nil {
		return err
	}
	if changed {
		p.HasMedia = true
		p.Media = []models.Media{}
		if img != "" {
			if view.SafeImageURL(img) == "" {
				return fmt.Errorf("image URL %q is not http(s) or a data:image URL", img)
			}
			p.Media = []models.Media{{Type: models.MediaTypeImage, Src: img}}
		}
	}

	body, err := GetMultiline(f.a.reader, "Text (empty keeps the current text, '-' clears it)", f.a.out)
	if err != nil {
		return err
	}
	switch body {
	case "":
	case clearMarker:
		p.FullText, p.Text = models.Str(""), models.Str("")
	default:
		p.FullText, p.Text = models.Str(body), models.Str("")
	}
	return nil
}

// Edit prompts for new field values of a story and saves them as overrides.
func (a *App) Edit(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("edit <id>")
	}
	if err := a.sess.Capability().Check(); err != nil {
		return err
	}
	r, err := a.sess.Get(args[0])
	if err != nil {
		return err
	}
	f := &storyForm{a: a}
	if err := f.fill(r); err != nil {
		return err
	}
	if f.patch.IsEmpty() {
		a.println("Nothing changed.")
		return nil
	}
	if err := a.sess.Update(ctx, args[0], f.patch); err != nil {
		return err
	}
	r, err = a.sess.Get(args[0])
	if err != nil {
		return err
	}
	a.printStory(r)
	return nil
}

// New prompts for a story and creates it under the next free id.
func (a *App) New(ctx context.Context) error {
	if err := a.sess.Capability().Check(); err != nil {
		return err
	}
	draft := models.Record{}
	if cats := a.sess.Categories(); len(cats) > 0 {
		draft.Category = cats[0].ID
	}
	f := &storyForm{a: a}
	if err := f.fill(draft); err != nil {
		return err
	}
	if f.patch.Category == nil && draft.Category != "" {
		f.patch.Category = models.Str(draft.Category)
	}
	id, err := a.sess.Create(ctx, f.patch)
	if err != nil {
		return err
	}
	a.println("Created story", id.Key())
	return nil
}

// Delete removes a story after confirmation.
func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("delete <id>")
	}
	if err := a.sess.Capability().Check(); err != nil {
		return err
	}
	r, err := a.sess.Get(args[0])
	if err != nil {
		return err
	}
	ok, err := Confirm(a.reader, fmt.Sprintf("Delete story %s %q?", r.ID.Key(), r.Title), a.out)
	if err != nil {
		return err
	}
	if !ok {
		a.println("Cancelled.")
		return nil
	}
	if err := a.sess.Delete(ctx, args[0]); err != nil {
		return err
	}
	a.println("Deleted story", args[0])
	return nil
}
