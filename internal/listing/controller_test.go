package listing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/resume-desk/internal/backend"
)

// fakeSource is an in-memory collection. Titles are sorted for title keys,
// everything else keeps insertion order.
type fakeSource struct {
	mu        sync.Mutex
	records   []backend.Resume
	calls     []backend.ListParams
	listErr   error
	deleteErr error
	updateErr error
	// gate, when set, is called before answering a list request.
	gate func(p backend.ListParams)
}

func newFakeSource(n int) *fakeSource {
	s := &fakeSource{}
	for i := 1; i <= n; i++ {
		s.records = append(s.records, backend.Resume{ID: fmt.Sprintf("r%d", i), Title: fmt.Sprintf("Resume %02d", i)})
	}
	return s
}

func (s *fakeSource) List(_ context.Context, p backend.ListParams) (*backend.Page[backend.Resume], error) {
	s.mu.Lock()
	s.calls = append(s.calls, p)
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		gate(p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listErr != nil {
		return nil, s.listErr
	}

	matched := make([]backend.Resume, 0, len(s.records))
	for _, r := range s.records {
		if p.Search == "" || strings.Contains(strings.ToLower(r.Title), strings.ToLower(p.Search)) {
			matched = append(matched, r)
		}
	}

	switch p.SortBy {
	case backend.SortTitleAsc:
		slices.SortFunc(matched, func(a, b backend.Resume) int { return strings.Compare(a.Title, b.Title) })
	case backend.SortTitleDesc:
		slices.SortFunc(matched, func(a, b backend.Resume) int { return strings.Compare(b.Title, a.Title) })
	}

	start := min(p.Skip, len(matched))
	end := min(p.Skip+p.Limit, len(matched))

	return &backend.Page[backend.Resume]{Items: slices.Clone(matched[start:end]), Total: len(matched)}, nil
}

func (s *fakeSource) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.records = slices.DeleteFunc(s.records, func(r backend.Resume) bool { return r.ID == id })
	return nil
}

func (s *fakeSource) Update(_ context.Context, id string, patch map[string]any) (*backend.Resume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.updateErr != nil {
		return nil, s.updateErr
	}
	for i := range s.records {
		if s.records[i].ID == id {
			if err := backend.DecodeInto(patch, &s.records[i]); err != nil {
				return nil, err
			}
			r := s.records[i]
			return &r, nil
		}
	}
	return nil, errors.New("not found")
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeSource) lastCall() backend.ListParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

func newController(t *testing.T, src *fakeSource, opts Options, hooks Hooks[backend.Resume]) *Controller[backend.Resume] {
	t.Helper()

	c, err := New[backend.Resume](context.Background(), src, opts, hooks, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return c
}

func titles(items []backend.Resume) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Title)
	}
	return out
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New[backend.Resume](context.Background(), newFakeSource(1), Options{PageSize: 7}, Hooks[backend.Resume]{}, nil)
	require.ErrorIs(t, err, ErrInvalidPageSize)

	_, err = New[backend.Resume](context.Background(), newFakeSource(1), Options{SortKey: "newest"}, Hooks[backend.Resume]{}, nil)
	require.ErrorIs(t, err, ErrInvalidSortKey)

	c, err := New[backend.Resume](context.Background(), newFakeSource(1), Options{}, Hooks[backend.Resume]{}, nil)
	require.NoError(t, err)
	defer c.Close()

	q := c.Snapshot().Query
	assert.Equal(t, Query{Page: 1, PageSize: DefaultPageSize, SortKey: backend.SortUpdatedDesc}, q)
}

func TestFetchSendsSkipAndLimit(t *testing.T) {
	src := newFakeSource(60)
	c := newController(t, src, Options{PageSize: 25, SortKey: backend.SortCreatedAsc}, Hooks[backend.Resume]{})

	require.NoError(t, c.SetPage(context.Background(), 3))

	got := src.lastCall()
	assert.Equal(t, backend.ListParams{Skip: 0, Limit: 25, SortBy: backend.SortCreatedAsc}, src.calls[0])
	// The first call clamps page 3 to 1 because the total was still unknown.
	assert.Equal(t, 0, got.Skip)

	require.NoError(t, c.Fetch(context.Background()))
	require.NoError(t, c.SetPage(context.Background(), 3))

	got = src.lastCall()
	assert.Equal(t, 50, got.Skip)
	assert.Equal(t, 25, got.Limit)

	snap := c.Snapshot()
	assert.Equal(t, 3, snap.Query.Page)
	assert.Equal(t, 3, snap.Pages)
	assert.Len(t, snap.Items, 10)
}

func TestPageStaysInRangeAfterFetch(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		pageSize int
		page     int
		expect   int
	}{
		{name: "empty collection", total: 0, pageSize: 10, page: 4, expect: 1},
		{name: "exact multiple", total: 20, pageSize: 10, page: 3, expect: 2},
		{name: "partial last page", total: 21, pageSize: 10, page: 3, expect: 3},
		{name: "shrunk collection", total: 5, pageSize: 25, page: 2, expect: 1},
		{name: "in range", total: 120, pageSize: 50, page: 2, expect: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource(1000)
			c := newController(t, src, Options{PageSize: tt.pageSize}, Hooks[backend.Resume]{})

			// Move to the requested page while the server still holds plenty of records.
			require.NoError(t, c.Fetch(context.Background()))
			require.NoError(t, c.SetPage(context.Background(), tt.page))
			require.Equal(t, tt.page, c.Snapshot().Query.Page)

			src.mu.Lock()
			src.records = src.records[:tt.total]
			src.mu.Unlock()

			require.NoError(t, c.Fetch(context.Background()))

			snap := c.Snapshot()
			last := max(1, (tt.total+tt.pageSize-1)/tt.pageSize)
			assert.GreaterOrEqual(t, snap.Query.Page, 1)
			assert.LessOrEqual(t, snap.Query.Page, last)
			assert.Equal(t, tt.expect, snap.Query.Page)
			if tt.total > 0 {
				assert.NotEmpty(t, snap.Items)
			}
		})
	}
}

func TestSetPageSizeKeepsFirstVisibleItem(t *testing.T) {
	tests := []struct {
		name    string
		from    int
		page    int
		to      int
		newPage int
	}{
		{name: "grow", from: 10, page: 4, to: 25, newPage: 2},
		{name: "grow to fifty", from: 25, page: 3, to: 50, newPage: 2},
		{name: "shrink", from: 50, page: 2, to: 10, newPage: 6},
		{name: "first page", from: 10, page: 1, to: 50, newPage: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource(200)
			c := newController(t, src, Options{PageSize: tt.from}, Hooks[backend.Resume]{})
			require.NoError(t, c.Fetch(context.Background()))
			require.NoError(t, c.SetPage(context.Background(), tt.page))

			first := c.Snapshot().Items[0]

			require.NoError(t, c.SetPageSize(context.Background(), tt.to))

			snap := c.Snapshot()
			assert.Equal(t, tt.newPage, snap.Query.Page)
			assert.Equal(t, tt.to, snap.Query.PageSize)
			assert.Contains(t, snap.Items, first)
		})
	}

	c := newController(t, newFakeSource(1), Options{}, Hooks[backend.Resume]{})
	require.ErrorIs(t, c.SetPageSize(context.Background(), 15), ErrInvalidPageSize)
}

func TestDeleteOnlyItemOnLastPageMovesBack(t *testing.T) {
	src := newFakeSource(21)
	c := newController(t, src, Options{PageSize: 10}, Hooks[backend.Resume]{})
	require.NoError(t, c.Fetch(context.Background()))
	require.NoError(t, c.SetPage(context.Background(), 3))
	require.Len(t, c.Snapshot().Items, 1)

	calls := src.callCount()
	require.NoError(t, c.DeleteItem(context.Background(), "r21"))

	snap := c.Snapshot()
	assert.Equal(t, 2, snap.Query.Page)
	assert.Equal(t, 20, snap.Total)
	assert.Len(t, snap.Items, 10)
	assert.Equal(t, calls+1, src.callCount())
	assert.Equal(t, 10, src.lastCall().Skip)
}

func TestDeleteBackfillsUnderPopulatedPage(t *testing.T) {
	src := newFakeSource(12)
	c := newController(t, src, Options{PageSize: 10}, Hooks[backend.Resume]{})
	require.NoError(t, c.Fetch(context.Background()))
	require.NoError(t, c.SetPage(context.Background(), 2))
	require.Equal(t, []string{"Resume 11", "Resume 12"}, titles(c.Snapshot().Items))

	calls := src.callCount()
	require.NoError(t, c.DeleteItem(context.Background(), "r11"))

	snap := c.Snapshot()
	assert.Equal(t, 2, snap.Query.Page)
	assert.Equal(t, 11, snap.Total)
	assert.Equal(t, []string{"Resume 12"}, titles(snap.Items))
	assert.Equal(t, calls+1, src.callCount(), "expected a backfill request")
}

func TestDeleteOnFullSinglePageSkipsRefetch(t *testing.T) {
	src := newFakeSource(5)
	c := newController(t, src, Options{PageSize: 10}, Hooks[backend.Resume]{})
	require.NoError(t, c.Fetch(context.Background()))

	calls := src.callCount()
	require.NoError(t, c.DeleteItem(context.Background(), "r3"))

	snap := c.Snapshot()
	assert.Equal(t, calls, src.callCount())
	assert.Equal(t, 4, snap.Total)
	assert.Equal(t, []string{"Resume 01", "Resume 02", "Resume 04", "Resume 05"}, titles(snap.Items))
}

func TestDeleteFailureLeavesStateAndNotifies(t *testing.T) {
	src := newFakeSource(3)
	var notified []string
	c := newController(t, src, Options{}, Hooks[backend.Resume]{
		Notify: func(msg string) { notified = append(notified, msg) },
	})
	require.NoError(t, c.Fetch(context.Background()))
	before := c.Snapshot()

	src.deleteErr = &backend.APIError{StatusCode: 409, Status: "409 Conflict", Detail: "resume is attached to a cover letter"}

	err := c.DeleteItem(context.Background(), "r2")

	var mutErr *MutationError
	require.ErrorAs(t, err, &mutErr)
	assert.Equal(t, "resume is attached to a cover letter", mutErr.Message)
	assert.Equal(t, []string{"resume is attached to a cover letter"}, notified)
	assert.Equal(t, before, c.Snapshot())
}

func TestFetchFailureEmptiesListWithMessage(t *testing.T) {
	src := newFakeSource(3)
	c := newController(t, src, Options{}, Hooks[backend.Resume]{})
	require.NoError(t, c.Fetch(context.Background()))

	src.listErr = &backend.APIError{StatusCode: 503, Status: "503 Service Unavailable", Message: "maintenance"}
	require.Error(t, c.Fetch(context.Background()))

	snap := c.Snapshot()
	assert.Empty(t, snap.Items)
	assert.Zero(t, snap.Total)
	assert.Equal(t, "maintenance", snap.Err)
	assert.False(t, snap.Loading)

	src.listErr = nil
	require.NoError(t, c.Fetch(context.Background()))
	snap = c.Snapshot()
	assert.Empty(t, snap.Err)
	assert.Len(t, snap.Items, 3)
}

func TestSearchIsDebounced(t *testing.T) {
	src := newFakeSource(30)
	done := make(chan Snapshot[backend.Resume], 16)
	c := newController(t, src, Options{Debounce: 40 * time.Millisecond}, Hooks[backend.Resume]{
		OnChange: func(s Snapshot[backend.Resume]) {
			if !s.Loading {
				done <- s
			}
		},
	})

	for _, term := range []string{"r", "re", "res", "resume 0", "resume 03"} {
		c.SetSearchTerm(term)
	}

	select {
	case snap := <-done:
		assert.Equal(t, []string{"Resume 03"}, titles(snap.Items))
		assert.Equal(t, 1, snap.Query.Page)
	case <-time.After(2 * time.Second):
		t.Fatal("debounced fetch never ran")
	}

	time.Sleep(120 * time.Millisecond)

	require.Equal(t, 1, src.callCount())
	assert.Equal(t, "resume 03", src.lastCall().Search)
}

func TestFlushRunsPendingSearchNow(t *testing.T) {
	src := newFakeSource(30)
	c := newController(t, src, Options{Debounce: time.Hour}, Hooks[backend.Resume]{})

	c.SetSearchTerm("resume 1")
	require.NoError(t, c.Flush(context.Background()))

	assert.Equal(t, 1, src.callCount())
	assert.Len(t, c.Snapshot().Items, 10)

	require.NoError(t, c.Flush(context.Background()))
	assert.Equal(t, 1, src.callCount(), "nothing pending, nothing sent")
}

func TestSortChangeFoldsPendingSearch(t *testing.T) {
	src := newFakeSource(30)
	c := newController(t, src, Options{Debounce: 50 * time.Millisecond}, Hooks[backend.Resume]{})

	c.SetSearchTerm("resume 2")
	require.NoError(t, c.SetSortKey(context.Background(), backend.SortTitleDesc))

	time.Sleep(150 * time.Millisecond)

	require.Equal(t, 1, src.callCount())
	assert.Equal(t, backend.ListParams{Limit: 10, Search: "resume 2", SortBy: backend.SortTitleDesc}, src.lastCall())

	require.ErrorIs(t, c.SetSortKey(context.Background(), "random"), ErrInvalidSortKey)
	assert.Equal(t, 1, src.callCount())
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	src := newFakeSource(5)
	gates := map[backend.SortKey]chan struct{}{
		backend.SortTitleAsc:  make(chan struct{}),
		backend.SortTitleDesc: make(chan struct{}),
	}
	src.gate = func(p backend.ListParams) {
		if ch, ok := gates[p.SortBy]; ok {
			<-ch
		}
	}

	c := newController(t, src, Options{}, Hooks[backend.Resume]{})

	errA := make(chan error, 1)
	go func() { errA <- c.SetSortKey(context.Background(), backend.SortTitleAsc) }()
	require.Eventually(t, func() bool { return src.callCount() == 1 }, time.Second, 5*time.Millisecond)

	errB := make(chan error, 1)
	go func() { errB <- c.SetSortKey(context.Background(), backend.SortTitleDesc) }()
	require.Eventually(t, func() bool { return src.callCount() == 2 }, time.Second, 5*time.Millisecond)

	close(gates[backend.SortTitleDesc])
	require.NoError(t, <-errB)

	close(gates[backend.SortTitleAsc])
	require.NoError(t, <-errA)

	snap := c.Snapshot()
	assert.Equal(t, backend.SortTitleDesc, snap.Query.SortKey)
	assert.Equal(t, []string{"Resume 05", "Resume 04", "Resume 03", "Resume 02", "Resume 01"}, titles(snap.Items))
}

func TestItemsKeepServerOrder(t *testing.T) {
	src := &fakeSource{records: []backend.Resume{
		{ID: "1", Title: "Zeta"},
		{ID: "2", Title: "Alpha"},
		{ID: "3", Title: "Mu"},
	}}
	c := newController(t, src, Options{SortKey: backend.SortUpdatedDesc}, Hooks[backend.Resume]{})

	require.NoError(t, c.Fetch(context.Background()))
	assert.Equal(t, []string{"Zeta", "Alpha", "Mu"}, titles(c.Snapshot().Items))
}

func TestUpdateAppliesOnlyAfterConfirmation(t *testing.T) {
	src := newFakeSource(2)
	c := newController(t, src, Options{}, Hooks[backend.Resume]{})
	require.NoError(t, c.Fetch(context.Background()))

	src.updateErr = errors.New("connection reset")
	err := c.UpdateItemField(context.Background(), "r1", map[string]any{"title": "Senior Go"})

	var mutErr *MutationError
	require.ErrorAs(t, err, &mutErr)
	assert.Equal(t, "connection reset", mutErr.Message)
	assert.Equal(t, "Resume 01", c.Snapshot().Items[0].Title)

	src.updateErr = nil
	require.NoError(t, c.UpdateItemField(context.Background(), "r1", map[string]any{"title": "Senior Go"}))
	assert.Equal(t, "Senior Go", c.Snapshot().Items[0].Title)

	require.ErrorIs(t, c.UpdateItemField(context.Background(), "r1", nil), ErrEmptyPatch)
}

func TestSetPageScrollsToTop(t *testing.T) {
	src := newFakeSource(30)
	scrolled := 0
	c := newController(t, src, Options{}, Hooks[backend.Resume]{OnScrollTop: func() { scrolled++ }})
	require.NoError(t, c.Fetch(context.Background()))

	require.NoError(t, c.SetPage(context.Background(), 2))
	require.NoError(t, c.SetPage(context.Background(), 99))

	assert.Equal(t, 2, scrolled)
	assert.Equal(t, 3, c.Snapshot().Query.Page)
}

func TestCloseCancelsPendingSearchAndInFlightFetch(t *testing.T) {
	src := newFakeSource(5)
	changes := 0
	c, err := New[backend.Resume](context.Background(), src, Options{Debounce: 20 * time.Millisecond}, Hooks[backend.Resume]{
		OnChange: func(Snapshot[backend.Resume]) { changes++ },
	}, zap.NewNop())
	require.NoError(t, err)

	c.SetSearchTerm("resume")
	c.Close()
	c.Close()

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, src.callCount())
	assert.Zero(t, changes)

	require.ErrorIs(t, c.Fetch(context.Background()), ErrClosed)
	require.ErrorIs(t, c.DeleteItem(context.Background(), "r1"), ErrClosed)

	// A response that arrives after Close does not touch state.
	release := make(chan struct{})
	src2 := newFakeSource(5)
	src2.gate = func(backend.ListParams) { <-release }
	c2, err := New[backend.Resume](context.Background(), src2, Options{}, Hooks[backend.Resume]{}, zap.NewNop())
	require.NoError(t, err)

	fetched := make(chan error, 1)
	go func() { fetched <- c2.Fetch(context.Background()) }()
	require.Eventually(t, func() bool { return src2.callCount() == 1 }, time.Second, 5*time.Millisecond)

	c2.Close()
	close(release)
	require.NoError(t, <-fetched)
	assert.Empty(t, c2.Snapshot().Items)
}
