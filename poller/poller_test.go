package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/remote"
	"github.com/teranos/pagesync/remote/memory"
	"github.com/teranos/pagesync/types"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) summary() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.String())
	}
	return out
}

func setup(t *testing.T, scope types.Scope) (*Poller, *memory.Client, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	mem := memory.New()
	mem.Now = clk.Now
	mem.PutPage(remote.Page{ID: "1", Title: "Root", SpaceKey: "DOC", Version: 1})
	mem.PutPage(remote.Page{ID: "2", Title: "Child", SpaceKey: "DOC", Version: 3, ParentID: "1", Ancestors: []string{"1"}})
	mem.PutPage(remote.Page{ID: "3", Title: "Other", SpaceKey: "DOC", Version: 1, ParentID: "1", Ancestors: []string{"1"}})
	mem.PutFolder(remote.Folder{ID: "f1", Title: "Specs", SpaceKey: "DOC", Version: 1})
	mem.PutFolder(remote.Folder{ID: "f2", Title: "Old", SpaceKey: "DOC", Version: 1})

	p := New(mem, Config{Scope: scope, Interval: time.Hour}, nil)
	p.now = clk.Now
	clk.Advance(time.Minute)
	return p, mem, clk
}

func TestInitialize_SeedsWithoutEvents(t *testing.T) {
	p, _, _ := setup(t, types.SpaceScope{SpaceKey: "DOC"})
	rec := &recorder{}
	p.On(rec.handle)

	require.NoError(t, p.Initialize(context.Background()))
	snap := p.Snapshot()
	assert.Len(t, snap.Pages, 3)
	assert.Equal(t, Entry{Version: 3, Title: "Child"}, snap.Pages["2"])
	assert.Len(t, snap.Folders, 2)
	assert.False(t, snap.LastPollAt.IsZero())
	assert.Empty(t, rec.summary())
	assert.Equal(t, StateIdle, p.State())
}

func TestPoll_EventOrder(t *testing.T) {
	ctx := context.Background()
	p, mem, clk := setup(t, types.SpaceScope{SpaceKey: "DOC"})
	rec := &recorder{}
	p.On(rec.handle)
	require.NoError(t, p.Initialize(ctx))
	clk.Advance(time.Minute)

	require.NoError(t, mem.EditPage("2", "<p>edited</p>"))
	mem.PutPage(remote.Page{ID: "4", Title: "New", SpaceKey: "DOC", Version: 1})
	mem.DeletePage("3")
	mem.DeletePage("1")
	mem.PutFolder(remote.Folder{ID: "f1", Title: "Specifications", SpaceKey: "DOC", Version: 1})
	mem.DeleteFolder("f2")
	mem.PutFolder(remote.Folder{ID: "f3", Title: "Fresh", SpaceKey: "DOC", Version: 1})

	res, err := p.Poll(ctx)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.NotEmpty(t, res.CycleID)
	assert.Equal(t, []string{
		"page-changed 2 v3→v4",
		"page-created 4",
		"page-deleted 1",
		"page-deleted 3",
		`folder-changed f1 "Specs"→"Specifications"`,
		"folder-created f3",
		"folder-deleted f2",
	}, rec.summary())
	for _, e := range rec.events {
		assert.Equal(t, res.CycleID, e.CycleID)
	}
	assert.Equal(t, 3, rec.events[0].PreviousVersion)
	require.NotNil(t, rec.events[0].Page)

	snap := p.Snapshot()
	assert.Equal(t, res.StartedAt, snap.LastPollAt)
	assert.ElementsMatch(t, []string{"2", "4"}, keys(snap.Pages))

	// Nothing moved: no events.
	clk.Advance(time.Minute)
	res, err = p.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Events)
}

func keys(m map[string]Entry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestPoll_SameVersionIsNotAChange(t *testing.T) {
	ctx := context.Background()
	p, mem, clk := setup(t, types.SpaceScope{SpaceKey: "DOC"})
	require.NoError(t, p.Initialize(ctx))
	clk.Advance(time.Minute)

	pg, _ := mem.Page("2")
	pg.ModifiedAt = clk.Now()
	mem.PutPage(pg)

	res, err := p.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Events)
}

func TestPoll_ReentrantTriggerIsDropped(t *testing.T) {
	ctx := context.Background()
	p, mem, clk := setup(t, types.SpaceScope{SpaceKey: "DOC"})
	require.NoError(t, p.Initialize(ctx))
	before := p.Snapshot().LastPollAt
	clk.Advance(time.Minute)
	require.NoError(t, mem.EditPage("1", "<p>x</p>"))

	var inner Result
	var innerErr error
	p.On(func(ctx context.Context, e Event) error {
		assert.Equal(t, StatePolling, p.State())
		inner, innerErr = p.Poll(ctx)
		return nil
	})

	res, err := p.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	require.NoError(t, innerErr)
	assert.True(t, inner.Skipped)
	assert.Empty(t, inner.Events)
	assert.Equal(t, 1, mem.Calls("ChangedSince"))

	after := p.Snapshot().LastPollAt
	assert.True(t, after.After(before))
	assert.Equal(t, res.StartedAt, after)
	assert.Equal(t, StateIdle, p.State())
}

func TestInitialize_DuringCycle(t *testing.T) {
	ctx := context.Background()
	p, mem, clk := setup(t, types.SpaceScope{SpaceKey: "DOC"})
	require.NoError(t, p.Initialize(ctx))
	clk.Advance(time.Minute)
	require.NoError(t, mem.EditPage("1", "<p>x</p>"))

	var initErr error
	p.On(func(ctx context.Context, e Event) error {
		initErr = p.Initialize(ctx)
		return nil
	})
	_, err := p.Poll(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, initErr, errors.ErrPollInProgress)
}

func TestPoll_ConcurrentTriggers(t *testing.T) {
	ctx := context.Background()
	p, mem, clk := setup(t, types.SpaceScope{SpaceKey: "DOC"})
	require.NoError(t, p.Initialize(ctx))
	clk.Advance(time.Minute)
	require.NoError(t, mem.EditPage("1", "<p>x</p>"))

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	mem.BeforeCall = func(op string) {
		if op == "ChangedSince" {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
	}

	done := make(chan Result)
	go func() {
		res, err := p.Poll(ctx)
		assert.NoError(t, err)
		done <- res
	}()
	<-entered

	var skipped atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.Poll(ctx)
			assert.NoError(t, err)
			if res.Skipped {
				skipped.Add(1)
			}
		}()
	}
	wg.Wait()
	close(release)

	res := <-done
	assert.Len(t, res.Events, 1)
	assert.Equal(t, int32(5), skipped.Load())
	assert.Equal(t, 1, mem.Calls("ChangedSince"))
}

func TestPoll_TransportFailureKeepsAppliedEntries(t *testing.T) {
	ctx := context.Background()
	p, mem, clk := setup(t, types.SpaceScope{SpaceKey: "DOC"})
	rec := &recorder{}
	p.On(rec.handle)
	require.NoError(t, p.Initialize(ctx))
	before := p.Snapshot().LastPollAt
	clk.Advance(time.Minute)

	require.NoError(t, mem.EditPage("2", "<p>x</p>"))
	mem.DeleteFolder("f2")
	mem.FailNext("ListFolders", errors.New("502 from gateway"))

	_, err := p.Poll(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "folder enumeration")

	snap := p.Snapshot()
	assert.Equal(t, 4, snap.Pages["2"].Version, "page stage was applied")
	assert.Contains(t, snap.Folders, "f2", "folder stage was not")
	assert.Equal(t, before, snap.LastPollAt)
	assert.Equal(t, []string{"page-changed 2 v3→v4"}, rec.summary())
	assert.Equal(t, StateIdle, p.State())

	// The retry picks up the folder deletion but not the page again.
	clk.Advance(time.Minute)
	res, err := p.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, FolderDeleted, res.Events[0].Type)
}

func TestPoll_HandlerErrorsDoNotStopDispatch(t *testing.T) {
	ctx := context.Background()
	p, mem, clk := setup(t, types.SpaceScope{SpaceKey: "DOC"})
	require.NoError(t, p.Initialize(ctx))
	clk.Advance(time.Minute)
	require.NoError(t, mem.EditPage("1", "<p>a</p>"))
	require.NoError(t, mem.EditPage("2", "<p>b</p>"))

	var order []string
	p.On(func(_ context.Context, e Event) error {
		order = append(order, "first:"+e.ID)
		return errors.New("handler broke")
	})
	p.On(func(_ context.Context, e Event) error {
		order = append(order, "second:"+e.ID)
		return nil
	})

	_, err := p.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"first:1", "second:1", "first:2", "second:2"}, order)
}

func TestPoll_PageScopeNeverDeletes(t *testing.T) {
	ctx := context.Background()
	p, mem, clk := setup(t, types.PageScope{PageID: "2"})
	rec := &recorder{}
	p.On(rec.handle)
	require.NoError(t, p.Initialize(ctx))
	assert.Len(t, p.Snapshot().Pages, 1)
	assert.Empty(t, p.Snapshot().Folders)

	clk.Advance(time.Minute)
	require.NoError(t, mem.EditPage("2", "<p>x</p>"))
	_, err := p.Poll(ctx)
	require.NoError(t, err)

	mem.DeletePage("2")
	clk.Advance(time.Minute)
	_, err = p.Poll(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"page-changed 2 v3→v4"}, rec.summary())
	assert.Zero(t, mem.Calls("ListPages"))
}

func TestPoll_FirstCallIsBaseline(t *testing.T) {
	p, _, _ := setup(t, types.TreeScope{AncestorID: "1"})
	rec := &recorder{}
	p.On(rec.handle)

	res, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Baseline)
	assert.Empty(t, rec.summary())
	assert.Len(t, p.Snapshot().Pages, 3)
}

func TestStartStop(t *testing.T) {
	p, mem, _ := setup(t, types.SpaceScope{SpaceKey: "DOC"})
	require.NoError(t, p.Initialize(context.Background()))
	p.SetInterval(5 * time.Millisecond)

	p.Start()
	p.Start()
	require.Eventually(t, func() bool { return mem.Calls("ChangedSince") >= 2 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()
	p.Stop()

	calls := mem.Calls("ChangedSince")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, mem.Calls("ChangedSince"), "no cycles after Stop")
}

func TestStop_WaitsForInFlightCycle(t *testing.T) {
	p, mem, _ := setup(t, types.SpaceScope{SpaceKey: "DOC"})
	require.NoError(t, p.Initialize(context.Background()))
	p.SetInterval(time.Millisecond)

	entered := make(chan struct{})
	var once sync.Once
	var finished atomic.Bool
	mem.BeforeCall = func(op string) {
		if op == "ListFolders" {
			once.Do(func() {
				close(entered)
				time.Sleep(50 * time.Millisecond)
				finished.Store(true)
			})
		}
	}

	p.Start()
	<-entered
	p.Stop()
	assert.True(t, finished.Load(), "Stop returned before the cycle completed")
	assert.Equal(t, StateIdle, p.State())
	assert.False(t, p.Snapshot().LastPollAt.IsZero())
}
