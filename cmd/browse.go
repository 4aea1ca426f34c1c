package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"go.uber.org/zap"

	"github.com/spigell/resume-desk/internal/backend"
	"github.com/spigell/resume-desk/internal/content"
	"github.com/spigell/resume-desk/internal/listing"
	"github.com/spigell/resume-desk/internal/pdf"
)

const (
	PromptOpen        = "Open an item"
	PromptNext        = "Next page"
	PromptPrev        = "Previous page"
	PromptGoTo        = "Go to page"
	PromptSearch      = "Search"
	PromptSort        = "Sort"
	PromptPageSize    = "Page size"
	PromptRetry       = "Retry"
	PromptQuit        = "Quit"
	PromptBack        = "back"
	PromptShow        = "Show content"
	PromptRename      = "Rename"
	PromptDelete      = "Delete"
	PromptViewPdf     = "View PDF"
	PromptDownloadPdf = "Download PDF"
	PromptCloseViewer = "Close viewer"

	clearScreen = "\033[H\033[2J"
)

var (
	errExit      = errors.New("exit requested")
	errCancelled = errors.New("cancelled")
)

// itemView tells the browser how to present one kind of record.
type itemView[T backend.Record] struct {
	title    string
	label    func(T) string
	document func(T) pdf.Document
	content  func(T) json.RawMessage
}

type browser[T backend.Record] struct {
	ctrl       *listing.Controller[T]
	pdfs       *pdf.Session
	objects    *pdf.ObjectStore
	view       itemView[T]
	pdfTimeout time.Duration
	logger     *zap.Logger
	out        io.Writer
}

func browse[T backend.Record](ctx context.Context, e *env, source listing.Source[T], view itemView[T], opts listing.Options, out io.Writer) error {
	b := &browser[T]{
		pdfs:       e.newSession(""),
		objects:    e.objects,
		view:       view,
		pdfTimeout: e.config.PDF.TimeoutDuration(),
		logger:     e.logger,
		out:        out,
	}

	ctrl, err := listing.New(ctx, source, opts, listing.Hooks[T]{
		OnChange: func(s listing.Snapshot[T]) {
			e.logger.Debug("list changed", zap.Int("page", s.Query.Page), zap.Int("items", len(s.Items)), zap.Bool("loading", s.Loading))
		},
		OnScrollTop: func() {
			fmt.Fprint(out, clearScreen)
		},
		Notify: func(message string) {
			fmt.Fprintf(out, "! %s\n", message)
		},
	}, e.logger)
	if err != nil {
		return err
	}
	b.ctrl = ctrl

	return b.run(ctx)
}

func (b *browser[T]) run(ctx context.Context) error {
	defer b.ctrl.Close()
	defer b.pdfs.Close()

	if err := b.ctrl.Fetch(ctx); err != nil {
		b.logger.Debug("initial fetch failed", zap.Error(err))
	}

	for {
		snap := b.ctrl.Snapshot()
		b.render(snap)

		_, action, err := (&promptui.Select{
			Label: "Choose an action",
			Items: b.actions(snap),
			Size:  12,
		}).Run()
		if err != nil {
			if isExit(err) {
				return nil
			}
			return err
		}

		if err := b.handle(ctx, action, snap); err != nil {
			if isExit(err) {
				return nil
			}
			b.report(err)
		}
	}
}

func (b *browser[T]) actions(snap listing.Snapshot[T]) []string {
	items := make([]string, 0, 10)
	if len(snap.Items) > 0 {
		items = append(items, PromptOpen)
	}
	if snap.Query.Page < snap.Pages {
		items = append(items, PromptNext)
	}
	if snap.Query.Page > 1 {
		items = append(items, PromptPrev)
	}
	if snap.Pages > 1 {
		items = append(items, PromptGoTo)
	}
	items = append(items, PromptSearch, PromptSort, PromptPageSize)
	if snap.Err != "" {
		items = append(items, PromptRetry)
	}
	return append(items, PromptQuit)
}

func (b *browser[T]) handle(ctx context.Context, action string, snap listing.Snapshot[T]) error {
	switch action {
	case PromptOpen:
		return b.pickItem(ctx, snap)
	case PromptNext:
		return b.ctrl.SetPage(ctx, snap.Query.Page+1)
	case PromptPrev:
		return b.ctrl.SetPage(ctx, snap.Query.Page-1)
	case PromptGoTo:
		page, err := askNumber("Page (1-"+strconv.Itoa(snap.Pages)+")", snap.Query.Page)
		if err != nil {
			return err
		}
		return b.ctrl.SetPage(ctx, page)
	case PromptSearch:
		return b.search(ctx, snap.Query.SearchTerm)
	case PromptSort:
		keys := make([]string, 0, len(backend.SortKeys))
		for _, k := range backend.SortKeys {
			keys = append(keys, string(k))
		}
		_, key, err := (&promptui.Select{Label: "Sort by", Items: keys, CursorPos: max(0, slices.Index(keys, string(snap.Query.SortKey)))}).Run()
		if err != nil {
			return err
		}
		return b.ctrl.SetSortKey(ctx, backend.SortKey(key))
	case PromptPageSize:
		idx, _, err := (&promptui.Select{Label: "Items per page", Items: listing.PageSizes, CursorPos: max(0, slices.Index(listing.PageSizes, snap.Query.PageSize))}).Run()
		if err != nil {
			return err
		}
		return b.ctrl.SetPageSize(ctx, listing.PageSizes[idx])
	case PromptRetry:
		return b.ctrl.Fetch(ctx)
	case PromptQuit:
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

// search refetches while the user types; the final term is fetched on enter.
func (b *browser[T]) search(ctx context.Context, current string) error {
	prompt := promptui.Prompt{
		Label:     "Search by title",
		Default:   current,
		AllowEdit: true,
		Validate: func(input string) error {
			b.ctrl.SetSearchTerm(strings.TrimSpace(input))
			return nil
		},
	}

	term, err := prompt.Run()
	if err != nil {
		return err
	}

	b.ctrl.SetSearchTerm(strings.TrimSpace(term))
	return b.ctrl.Flush(ctx)
}

func (b *browser[T]) render(snap listing.Snapshot[T]) {
	q := snap.Query
	fmt.Fprintf(b.out, "\n%s: page %d of %d, %d total, sorted by %s", b.view.title, q.Page, max(1, snap.Pages), snap.Total, q.SortKey)
	if q.SearchTerm != "" {
		fmt.Fprintf(b.out, ", search %q", q.SearchTerm)
	}
	fmt.Fprintln(b.out)

	switch {
	case snap.Err != "":
		fmt.Fprintf(b.out, "error: %s (choose %q to try again)\n", snap.Err, PromptRetry)
	case len(snap.Items) == 0:
		fmt.Fprintln(b.out, "nothing found")
	}

	for i, item := range snap.Items {
		fmt.Fprintf(b.out, "%4d. %s\n", (q.Page-1)*q.PageSize+i+1, b.view.label(item))
	}
}

func (b *browser[T]) pickItem(ctx context.Context, snap listing.Snapshot[T]) error {
	labels := make([]string, 0, len(snap.Items)+1)
	for _, item := range snap.Items {
		labels = append(labels, b.view.label(item))
	}

	idx, _, err := (&promptui.Select{
		Label: "Choose an item and press ENTER",
		Items: append(labels, PromptBack),
		Size:  min(len(labels)+1, 15),
	}).Run()
	if err != nil {
		return err
	}
	if idx == len(snap.Items) {
		return nil
	}

	return b.itemMenu(ctx, snap.Items[idx].GetID())
}

func (b *browser[T]) itemMenu(ctx context.Context, id string) error {
	for {
		item, ok := b.find(id)
		if !ok {
			return nil
		}

		_, action, err := (&promptui.Select{
			Label: b.view.label(item),
			Items: []string{PromptShow, PromptViewPdf, PromptDownloadPdf, PromptRename, PromptDelete, PromptBack},
		}).Run()
		if err != nil {
			return err
		}

		switch action {
		case PromptShow:
			err = b.showContent(item)
		case PromptViewPdf:
			err = b.viewPdf(ctx, item)
		case PromptDownloadPdf:
			err = b.downloadPdf(ctx, item)
		case PromptRename:
			err = b.rename(ctx, item)
		case PromptDelete:
			if err = b.delete(ctx, item); err == nil {
				return nil
			}
		case PromptBack:
			return nil
		}

		if err != nil {
			if isExit(err) {
				return err
			}
			b.report(err)
		}
	}
}

func (b *browser[T]) find(id string) (T, bool) {
	items := b.ctrl.Snapshot().Items
	idx := slices.IndexFunc(items, func(item T) bool { return item.GetID() == id })
	if idx < 0 {
		var zero T
		return zero, false
	}
	return items[idx], true
}

func (b *browser[T]) showContent(item T) error {
	sections, err := content.Normalize(b.view.content(item))
	if err != nil {
		return fmt.Errorf("reading content of %s: %w", item.GetID(), err)
	}

	printSections(b.out, sections)
	return nil
}

func (b *browser[T]) rename(ctx context.Context, item T) error {
	title, err := (&promptui.Prompt{
		Label:     "New title",
		Default:   item.GetTitle(),
		AllowEdit: true,
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("title must not be empty")
			}
			return nil
		},
	}).Run()
	if err != nil {
		return err
	}

	title = strings.TrimSpace(title)
	if title == item.GetTitle() {
		return nil
	}

	return b.ctrl.UpdateItemField(ctx, item.GetID(), map[string]any{"title": title})
}

func (b *browser[T]) delete(ctx context.Context, item T) error {
	if _, err := (&promptui.Prompt{Label: fmt.Sprintf("Delete %q", item.GetTitle()), IsConfirm: true}).Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return errCancelled
		}
		return err
	}

	return b.ctrl.DeleteItem(ctx, item.GetID())
}

// retrieve loads the PDF of item into the session. A missing association can
// be fixed on the spot, after which the retrieval is attempted once more.
func (b *browser[T]) retrieve(ctx context.Context, item T) (pdf.Document, error) {
	doc := b.view.document(item)
	opts := pdf.Options{Timeout: b.pdfTimeout}

	fmt.Fprintf(b.out, "generating pdf for %q, this may take a while\n", doc.Title)

	err := b.pdfs.Retrieve(ctx, doc, opts)

	var precondition *pdf.PreconditionError
	if !errors.As(err, &precondition) {
		return doc, err
	}

	fmt.Fprintf(b.out, "%s\nhint: %s\n", precondition.Message, precondition.Remediation)

	value, err := (&promptui.Prompt{Label: "Id of the " + precondition.Association + " to attach (empty to cancel)"}).Run()
	if err != nil {
		return doc, err
	}
	if value = strings.TrimSpace(value); value == "" {
		return doc, errCancelled
	}

	if err := b.ctrl.UpdateItemField(ctx, doc.ID, map[string]any{precondition.Association + "_id": value}); err != nil {
		return doc, err
	}

	updated, ok := b.find(doc.ID)
	if !ok {
		return doc, errCancelled
	}
	doc = b.view.document(updated)

	return doc, b.pdfs.Retrieve(ctx, doc, opts)
}

func (b *browser[T]) viewPdf(ctx context.Context, item T) error {
	doc, err := b.retrieve(ctx, item)
	if err != nil {
		return err
	}
	defer b.pdfs.Close()

	viewer, err := b.pdfs.View(ctx)
	if err != nil {
		return err
	}

	if local, ok := b.pdfs.Source().(pdf.LocalSource); ok {
		if path, ok := b.objects.Path(local.ObjectURL); ok {
			fmt.Fprintf(b.out, "document is available at %s while the viewer is open\n", path)
		}
	}

	for {
		fmt.Fprintf(b.out, "%s: page %d of %d\n", doc.Title, viewer.Page(), viewer.Pages())

		_, action, err := (&promptui.Select{
			Label: "Viewer",
			Items: []string{PromptNext, PromptPrev, PromptGoTo, PromptDownloadPdf, PromptCloseViewer},
		}).Run()
		if err != nil {
			return err
		}

		switch action {
		case PromptNext:
			viewer.Next()
		case PromptPrev:
			viewer.Prev()
		case PromptGoTo:
			page, err := askNumber("Page (1-"+strconv.Itoa(viewer.Pages())+")", viewer.Page())
			if err != nil {
				return err
			}
			viewer.GoTo(page)
		case PromptDownloadPdf:
			if err := b.save(ctx, doc); err != nil {
				b.report(err)
			}
		case PromptCloseViewer:
			return nil
		}
	}
}

func (b *browser[T]) downloadPdf(ctx context.Context, item T) error {
	doc, err := b.retrieve(ctx, item)
	if err != nil {
		return err
	}
	defer b.pdfs.Close()

	return b.save(ctx, doc)
}

func (b *browser[T]) save(ctx context.Context, doc pdf.Document) error {
	name, err := (&promptui.Prompt{
		Label:     "File name",
		Default:   pdf.SanitizeFilename(doc.Title),
		AllowEdit: true,
	}).Run()
	if err != nil {
		return err
	}

	path, err := b.pdfs.Download(ctx, name)
	if err != nil {
		return err
	}

	fmt.Fprintf(b.out, "saved %s\n", path)
	return nil
}

func (b *browser[T]) report(err error) {
	var mutation *listing.MutationError
	switch {
	case errors.Is(err, errCancelled):
		return
	case errors.As(err, &mutation):
		// already shown through the notify hook
		b.logger.Debug("mutation failed", zap.Error(err))
		return
	}

	var sessionErr *pdf.Error
	if errors.As(err, &sessionErr) {
		fmt.Fprintf(b.out, "error: %s\n", sessionErr.Message)
		return
	}

	fmt.Fprintf(b.out, "error: %s\n", backend.ErrorMessage(err, "something went wrong"))
}

func printSections(out io.Writer, sections []content.Section) {
	if len(sections) == 0 {
		fmt.Fprintln(out, "no content")
		return
	}

	for _, s := range sections {
		fmt.Fprintf(out, "%s:\n", s.Key)
		switch s.Kind {
		case content.KindText:
			fmt.Fprintf(out, "  %s\n", s.Text)
		case content.KindList:
			for _, item := range s.Items {
				fmt.Fprintf(out, "  - %s\n", item)
			}
		case content.KindStructured:
			for _, entry := range s.Entries {
				for i, f := range entry.Fields {
					prefix := "    "
					if i == 0 {
						prefix = "  - "
					}
					if f.Key == "" {
						fmt.Fprintf(out, "%s%s\n", prefix, f.Value)
						continue
					}
					fmt.Fprintf(out, "%s%s: %s\n", prefix, f.Key, f.Value)
				}
			}
		}
	}
}

func askNumber(label string, current int) (int, error) {
	value, err := (&promptui.Prompt{
		Label:     label,
		Default:   strconv.Itoa(current),
		AllowEdit: true,
		Validate: func(input string) error {
			_, err := strconv.Atoi(strings.TrimSpace(input))
			return err
		},
	}).Run()
	if err != nil {
		return 0, err
	}

	return strconv.Atoi(strings.TrimSpace(value))
}

func isExit(err error) bool {
	return errors.Is(err, errExit) || errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF)
}
