// Package listing keeps a paginated, searchable, sortable view over a remote
// collection consistent with the backend.
package listing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/resume-desk/internal/backend"
)

const (
	DefaultPageSize = 10
	DefaultDebounce = 500 * time.Millisecond

	fetchFallback  = "Could not load the list. Try again."
	deleteFallback = "Could not delete the item."
	updateFallback = "Could not save the changes."
)

// PageSizes lists the page sizes a controller accepts.
var PageSizes = []int{10, 25, 50}

func ValidPageSize(n int) bool {
	return slices.Contains(PageSizes, n)
}

// Source is the remote collection behind a controller.
type Source[T any] interface {
	List(ctx context.Context, params backend.ListParams) (*backend.Page[T], error)
	Delete(ctx context.Context, id string) error
	Update(ctx context.Context, id string, patch map[string]any) (*T, error)
}

type Query struct {
	Page       int
	PageSize   int
	SearchTerm string
	SortKey    backend.SortKey
}

func (q Query) Params() backend.ListParams {
	return backend.ListParams{
		Skip:   (q.Page - 1) * q.PageSize,
		Limit:  q.PageSize,
		Search: q.SearchTerm,
		SortBy: q.SortKey,
	}
}

// Snapshot is a copy of the controller state, safe to keep and read.
type Snapshot[T any] struct {
	Query   Query
	Items   []T
	Total   int
	Pages   int
	Loading bool
	// Err is the message of the last failed fetch; the view offers a retry while it is set.
	Err string
}

// Hooks connect a controller to its view. All are optional and never called
// after Close.
type Hooks[T any] struct {
	OnChange    func(Snapshot[T])
	OnScrollTop func()
	Notify      func(message string)
}

type Options struct {
	PageSize   int
	SortKey    backend.SortKey
	SearchTerm string
	Debounce   time.Duration
}

type Controller[T backend.Record] struct {
	source   Source[T]
	hooks    Hooks[T]
	logger   *zap.Logger
	debounce *debouncer

	// base is cancelled on Close; debounced fetches run under it.
	base       context.Context
	cancelBase context.CancelFunc

	mu         sync.Mutex
	query      Query
	items      []T
	total      int
	loading    bool
	errMsg     string
	generation uint64
	inFlight   context.CancelFunc
	closed     bool
}

func New[T backend.Record](ctx context.Context, source Source[T], opts Options, hooks Hooks[T], logger *zap.Logger) (*Controller[T], error) {
	if source == nil {
		return nil, errors.New("list source is required")
	}

	if opts.PageSize == 0 {
		opts.PageSize = DefaultPageSize
	}
	if !ValidPageSize(opts.PageSize) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPageSize, opts.PageSize)
	}

	if opts.SortKey == "" {
		opts.SortKey = backend.SortUpdatedDesc
	}
	if !opts.SortKey.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSortKey, opts.SortKey)
	}

	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	base, cancel := context.WithCancel(ctx)

	return &Controller[T]{
		source:     source,
		hooks:      hooks,
		logger:     logger,
		debounce:   newDebouncer(opts.Debounce),
		base:       base,
		cancelBase: cancel,
		query: Query{
			Page:       1,
			PageSize:   opts.PageSize,
			SearchTerm: opts.SearchTerm,
			SortKey:    opts.SortKey,
		},
	}, nil
}

func (c *Controller[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshotLocked()
}

func (c *Controller[T]) snapshotLocked() Snapshot[T] {
	return Snapshot[T]{
		Query:   c.query,
		Items:   slices.Clone(c.items),
		Total:   c.total,
		Pages:   pageCount(c.total, c.query.PageSize),
		Loading: c.loading,
		Err:     c.errMsg,
	}
}

// Fetch loads the page described by the current query. A response that was
// overtaken by a newer query or fetch is dropped without touching state.
func (c *Controller[T]) Fetch(ctx context.Context) error {
	return c.fetch(ctx, true)
}

func (c *Controller[T]) fetch(ctx context.Context, recoverPage bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	c.invalidateLocked()
	gen := c.generation
	reqCtx, cancel := context.WithCancel(ctx)
	c.inFlight = cancel
	query := c.query
	c.loading = true
	c.mu.Unlock()

	c.emit()

	c.logger.Debug("fetching list",
		zap.Int("page", query.Page),
		zap.Int("page_size", query.PageSize),
		zap.String("search", query.SearchTerm),
		zap.String("sort", string(query.SortKey)),
	)

	page, err := c.source.List(reqCtx, query.Params())
	cancel()

	c.mu.Lock()
	if gen != c.generation || c.closed {
		c.mu.Unlock()
		c.logger.Debug("dropping stale list response", zap.Uint64("generation", gen))
		return nil
	}

	c.inFlight = nil
	c.loading = false

	if err != nil {
		c.items = nil
		c.total = 0
		c.errMsg = backend.ErrorMessage(err, fetchFallback)
		c.mu.Unlock()

		c.logger.Warn("list fetch failed", zap.Int("page", query.Page), zap.Error(err))
		c.emit()

		return fmt.Errorf("fetch page %d: %w", query.Page, err)
	}

	c.items = page.Items
	c.total = page.Total
	c.errMsg = ""

	valid := clampPage(c.query.Page, c.total, c.query.PageSize)
	moved := valid != c.query.Page
	c.query.Page = valid
	c.mu.Unlock()

	c.emit()

	if moved && recoverPage {
		c.logger.Debug("page out of range, loading last page", zap.Int("page", valid))
		return c.fetch(ctx, false)
	}

	return nil
}

// SetSearchTerm filters by title. The fetch is debounced; calls within the
// window collapse into one request for the last term.
func (c *Controller[T]) SetSearchTerm(term string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.query.SearchTerm = term
	c.query.Page = 1
	c.invalidateLocked()
	c.mu.Unlock()

	c.debounce.schedule(func() {
		if err := c.Fetch(c.base); err != nil && !errors.Is(err, ErrClosed) {
			c.logger.Debug("debounced fetch failed", zap.Error(err))
		}
	})
}

// Flush runs a pending debounced fetch right away and waits for it.
func (c *Controller[T]) Flush(ctx context.Context) error {
	if !c.debounce.take() {
		return nil
	}
	return c.Fetch(ctx)
}

func (c *Controller[T]) SetSortKey(ctx context.Context, key backend.SortKey) error {
	if !key.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidSortKey, key)
	}

	return c.mutateQuery(ctx, func(q *Query) {
		q.SortKey = key
		q.Page = 1
	})
}

func (c *Controller[T]) SetPage(ctx context.Context, n int) error {
	err := c.mutateQuery(ctx, func(q *Query) {
		q.Page = clampPage(n, c.total, q.PageSize)
	})

	if !errors.Is(err, ErrClosed) {
		c.scrollTop()
	}

	return err
}

// SetPageSize keeps the first visible item visible under the new size.
func (c *Controller[T]) SetPageSize(ctx context.Context, n int) error {
	if !ValidPageSize(n) {
		return fmt.Errorf("%w: %d", ErrInvalidPageSize, n)
	}

	return c.mutateQuery(ctx, func(q *Query) {
		first := (q.Page - 1) * q.PageSize
		q.PageSize = n
		q.Page = first/n + 1
	})
}

// mutateQuery applies change under the lock and fetches right away. A pending
// debounced search is folded into this fetch.
func (c *Controller[T]) mutateQuery(ctx context.Context, change func(q *Query)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	change(&c.query)
	c.invalidateLocked()
	c.mu.Unlock()

	c.debounce.stop()

	return c.Fetch(ctx)
}

// DeleteItem removes a record on the backend, then locally. It refetches only
// when the page went out of range or can be backfilled from the next page.
func (c *Controller[T]) DeleteItem(ctx context.Context, id string) error {
	if c.isClosed() {
		return ErrClosed
	}

	if err := c.source.Delete(ctx, id); err != nil {
		return c.mutationFailed("delete", id, deleteFallback, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	if idx := c.indexLocked(id); idx >= 0 {
		// A fresh backing array keeps earlier snapshots intact.
		c.items = append(c.items[:idx:idx], c.items[idx+1:]...)
	}
	if c.total > 0 {
		c.total--
	}

	pages := pageCount(c.total, c.query.PageSize)
	refetch := false
	switch {
	case c.total > 0 && c.query.Page > pages:
		c.query.Page = pages
		refetch = true
	case c.total == 0 && c.query.Page > 1:
		c.query.Page = 1
		refetch = true
	case len(c.items) < c.query.PageSize && c.total > len(c.items):
		refetch = true
	}

	if refetch {
		c.invalidateLocked()
	}
	page := c.query.Page
	c.mu.Unlock()

	c.logger.Debug("item deleted", zap.String("id", id), zap.Bool("refetch", refetch), zap.Int("page", page))
	c.emit()

	if refetch {
		// Delete already succeeded; a failed refetch shows up as the list error.
		if err := c.Fetch(ctx); err != nil && !errors.Is(err, ErrClosed) {
			c.logger.Warn("refetch after delete failed", zap.Error(err))
		}
	}

	return nil
}

// UpdateItemField saves patch on the backend and merges it into the local
// record only once the backend accepted it.
func (c *Controller[T]) UpdateItemField(ctx context.Context, id string, patch map[string]any) error {
	if len(patch) == 0 {
		return ErrEmptyPatch
	}
	if c.isClosed() {
		return ErrClosed
	}

	if _, err := c.source.Update(ctx, id, patch); err != nil {
		return c.mutationFailed("update", id, updateFallback, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return nil
	}

	item := c.items[idx]
	if err := backend.DecodeInto(patch, &item); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("apply patch to %s: %w", id, err)
	}

	items := slices.Clone(c.items)
	items[idx] = item
	c.items = items
	c.mu.Unlock()

	c.emit()

	return nil
}

// Close stops the debounce timer and cancels the request in flight. Responses
// arriving afterwards are ignored.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.invalidateLocked()
	c.mu.Unlock()

	c.debounce.stop()
	c.cancelBase()
}

func (c *Controller[T]) mutationFailed(op, id, fallback string, err error) error {
	msg := backend.ErrorMessage(err, fallback)

	c.logger.Warn(op+" failed", zap.String("id", id), zap.Error(err))

	if !c.isClosed() && c.hooks.Notify != nil {
		c.hooks.Notify(msg)
	}

	return &MutationError{Op: op, ID: id, Message: msg, Err: err}
}

// invalidateLocked makes any response in flight stale.
func (c *Controller[T]) invalidateLocked() {
	c.generation++
	if c.inFlight != nil {
		c.inFlight()
		c.inFlight = nil
	}
}

func (c *Controller[T]) indexLocked(id string) int {
	return slices.IndexFunc(c.items, func(item T) bool { return item.GetID() == id })
}

func (c *Controller[T]) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func (c *Controller[T]) emit() {
	c.mu.Lock()
	if c.closed || c.hooks.OnChange == nil {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.hooks.OnChange(snap)
}

func (c *Controller[T]) scrollTop() {
	if !c.isClosed() && c.hooks.OnScrollTop != nil {
		c.hooks.OnScrollTop()
	}
}

func pageCount(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// clampPage returns page limited to [1, max(1, pageCount)].
func clampPage(page, total, pageSize int) int {
	last := max(1, pageCount(total, pageSize))
	return min(max(page, 1), last)
}
