package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/storyline/internal/client/models"
	"github.com/dmitrijs2005/storyline/internal/client/view"
)

const (
	titleWidth    = 60
	categoryWidth = 14
)

var errUsage = errors.New("usage")

func usage(s string) error { return fmt.Errorf("%w: %s", errUsage, s) }

// List prints the stories matching the current filter. Arguments, when
// given, replace the text criterion for this listing only.
func (a *App) List(ctx context.Context, args []string) error {
	f := a.filter
	if len(args) > 0 {
		f.Text = strings.Join(args, " ")
	}
	stories := a.sess.Project(f)
	for _, r := range stories {
		fmt.Fprintf(a.out, "%-6s %-10s %-*s %s\n",
			r.ID.Key(),
			view.FormatDate(r.StartDate),
			categoryWidth, view.Truncate(a.sess.CategoryTitle(r.Category), categoryWidth),
			view.Truncate(r.Title, titleWidth))
	}
	fmt.Fprintf(a.out, "%d stories\n", len(stories))
	return nil
}

// Show prints one story in full.
func (a *App) Show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("show <id>")
	}
	r, err := a.sess.Get(args[0])
	if err != nil {
		return err
	}
	a.printStory(r)
	return nil
}

func (a *App) printStory(r models.Record) {
	line := func(label, v string) {
		if v != "" {
			fmt.Fprintf(a.out, "%-10s %s\n", label+":", v)
		}
	}
	fmt.Fprintf(a.out, "#%s %s\n", r.ID.Key(), r.Title)
	dates := view.FormatDate(r.StartDate)
	if end := view.FormatDate(r.EndDate); end != "" && end != dates {
		dates += " - " + end
	}
	line("Date", dates)
	line("Category", a.sess.CategoryTitle(r.Category))
	line("Tags", r.Tags)
	line("Link", view.SafeURL(r.ExternalLink))
	line("Credit", r.Credit)
	if thumb := view.SafeImageURL(view.Thumbnail(r)); thumb != "" && !strings.HasPrefix(thumb, "data:") {
		line("Thumbnail", thumb)
	}
	for _, m := range view.Images(r) {
		src := m.Src
		if strings.HasPrefix(src, "data:") {
			src = "(embedded image)"
		}
		if m.Caption != "" {
			src += "  " + view.StripHTML(m.Caption)
		}
		line("Image", src)
	}
	for _, l := range r.ManualLinks {
		if u := view.SafeURL(l.URL); u != "" {
			title := l.Title
			if title == "" {
				title = u
			}
			line("See also", title+" <"+u+">")
		}
	}
	if body := strings.TrimSpace(view.StripHTML(r.Body())); body != "" {
		fmt.Fprintf(a.out, "\n%s\n", body)
	}
}

// Cats prints the categories ordered by title.
func (a *App) Cats(ctx context.Context) error {
	for _, c := range a.sess.Categories() {
		fmt.Fprintf(a.out, "%-6s %s\n", c.ID, a.sess.CategoryTitle(c.ID))
	}
	return nil
}

// Filter shows or changes the list filter:
//
//	filter                      show it
//	filter text <words...>      substring over title, text and tags
//	filter cat <id|->           category, "-" for any
//	filter years <min> <max>    inclusive start-year bounds
//	filter reset                clear text and category, widest year bounds
func (a *App) Filter(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.printFilter()
		return nil
	}
	switch args[0] {
	case "text":
		a.filter.Text = strings.Join(args[1:], " ")
	case "cat":
		if len(args) != 2 {
			return usage("filter cat <id|->")
		}
		a.filter.CategoryID = args[1]
		if args[1] == clearMarker {
			a.filter.CategoryID = ""
		}
	case "years":
		if len(args) != 3 {
			return usage("filter years <min> <max>")
		}
		lo, err1 := strconv.Atoi(args[1])
		hi, err2 := strconv.Atoi(args[2])
		if err1 != nil || err2 != nil {
			return usage("filter years <min> <max>")
		}
		a.filter.YearMin, a.filter.YearMax = &lo, &hi
	case "reset":
		a.resetFilter()
	default:
		return usage("filter [text|cat|years|reset] ...")
	}
	a.printFilter()
	return nil
}

func (a *App) resetFilter() {
	a.filter = view.Filter{}
	if lo, hi, ok := a.sess.YearBounds(); ok {
		a.filter.YearMin, a.filter.YearMax = &lo, &hi
	}
}

func (a *App) printFilter() {
	years := "any"
	if a.filter.YearMin != nil && a.filter.YearMax != nil {
		years = fmt.Sprintf("%d-%d", *a.filter.YearMin, *a.filter.YearMax)
	}
	cat := "any"
	if a.filter.CategoryID != "" {
		cat = a.sess.CategoryTitle(a.filter.CategoryID)
	}
	fmt.Fprintf(a.out, "text=%q category=%s years=%s\n", a.filter.Text, cat, years)
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}
