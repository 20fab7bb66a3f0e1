package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/civisight/portal/pkg/auth"
	"github.com/civisight/portal/pkg/models"
	"github.com/civisight/portal/pkg/observability"
	"github.com/civisight/portal/pkg/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeStore records calls and lets tests script every response.
type fakeStore struct {
	mu      sync.Mutex
	create  func(ctx context.Context, d models.TaskDraft) (*models.Task, error)
	delete  func(ctx context.Context, id string) error
	list    func(ctx context.Context, countyID string) ([]*models.Task, error)
	creates []models.TaskDraft
	deletes []string
	lists   []string
}

func (f *fakeStore) CreateTask(ctx context.Context, d models.TaskDraft) (*models.Task, error) {
	f.mu.Lock()
	f.creates = append(f.creates, d)
	fn := f.create
	f.mu.Unlock()
	return fn(ctx, d)
}

func (f *fakeStore) DeleteTask(ctx context.Context, id string) error {
	f.mu.Lock()
	f.deletes = append(f.deletes, id)
	fn := f.delete
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, id)
}

func (f *fakeStore) ListTasks(ctx context.Context, countyID string) ([]*models.Task, error) {
	f.mu.Lock()
	f.lists = append(f.lists, countyID)
	fn := f.list
	f.mu.Unlock()
	if fn == nil {
		return []*models.Task{}, nil
	}
	return fn(ctx, countyID)
}

func (f *fakeStore) deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}

func (f *fakeStore) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates)
}

func stored(id string, d models.TaskDraft) *models.Task {
	return &models.Task{
		ID: id, Title: d.Title, CountyID: d.CountyID, Deadline: d.Deadline,
		AssignedTo: models.StringList(d.AssignedTo), Status: models.TaskStatusPending, Priority: d.Priority,
	}
}

func existing(id, countyID, title string) *models.Task {
	return &models.Task{
		ID: id, Title: title, CountyID: countyID, Status: models.TaskStatusPending,
		Deadline: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), AssignedTo: models.StringList{"clerk"},
	}
}

func loggedIn() *auth.MemorySession {
	return auth.NewMemorySession(&auth.Session{
		Token:     "tok",
		User:      &auth.Principal{ID: "state-user", Role: models.RoleState},
		ExpiresAt: time.Now().Add(time.Hour),
	})
}

func newTestCoordinator(t *testing.T, store *fakeStore, counties ...string) *Coordinator {
	t.Helper()
	c := New(store, loggedIn(), Config{RemoteTimeout: 2 * time.Second}, observability.NewNoopLogger(), nil)
	list := make([]*models.County, len(counties))
	for i, id := range counties {
		list[i] = &models.County{ID: id, Name: "County " + id}
	}
	require.NoError(t, c.Load(context.Background(), list))
	return c
}

func draftFor(countyID, title string) models.TaskDraft {
	return models.TaskDraft{
		Title:      title,
		CountyID:   countyID,
		Deadline:   time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		AssignedTo: []string{"clerk"},
	}
}

func waitIdle(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.WaitIdle(ctx))
}

func keys(county *models.County) []string {
	out := make([]string, len(county.Tasks))
	for i, t := range county.Tasks {
		out[i] = t.Key()
	}
	return out
}

func aliasCount(c *Coordinator) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.aliases)
}

func mustCounty(t *testing.T, c *Coordinator, id string) *models.County {
	t.Helper()
	county, ok := c.County(id)
	require.True(t, ok)
	return county
}

func TestCreateOptimistic_Confirm(t *testing.T) {
	release := make(chan struct{})
	store := &fakeStore{
		list: func(ctx context.Context, id string) ([]*models.Task, error) {
			return []*models.Task{existing("t0", id, "Existing")}, nil
		},
		create: func(ctx context.Context, d models.TaskDraft) (*models.Task, error) {
			<-release
			return stored("srv-1", d), nil
		},
	}
	c := newTestCoordinator(t, store, "c1")

	p, err := c.CreateOptimistic(context.Background(), draftFor("c1", "Budget filing"))
	require.NoError(t, err)

	county := mustCounty(t, c, "c1")
	require.Len(t, county.Tasks, 2)
	assert.Equal(t, 2, county.TaskCount)
	placeholder := county.Tasks[1]
	assert.True(t, placeholder.IsPendingLocal())
	assert.Equal(t, p.LocalID, placeholder.LocalID)
	assert.Regexp(t, `^local-\d+-[0-9a-f]{8}$`, p.LocalID)
	assert.Equal(t, "state-user", placeholder.CreatedBy)
	assert.Equal(t, models.TaskPriorityMedium, placeholder.Priority)

	close(release)
	task, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "srv-1", task.ID)
	waitIdle(t, c)

	county = mustCounty(t, c, "c1")
	assert.Equal(t, []string{"t0", "srv-1"}, keys(county))
	assert.Equal(t, 2, county.TaskCount)
	assert.Empty(t, county.Tasks[1].LocalID)
	assert.Equal(t, placeholder.Title, county.Tasks[1].Title)
	assert.Equal(t, placeholder.CreatedAt, county.Tasks[1].CreatedAt, "fields other than the id are untouched")
}

func TestCreateOptimistic_Rollback(t *testing.T) {
	store := &fakeStore{
		list: func(ctx context.Context, id string) ([]*models.Task, error) {
			return []*models.Task{existing("t0", id, "Existing")}, nil
		},
		create: func(ctx context.Context, d models.TaskDraft) (*models.Task, error) {
			return nil, errors.New("backend down")
		},
	}
	c := newTestCoordinator(t, store, "c1")

	var mu sync.Mutex
	var kinds []EventKind
	unsubscribe := c.Subscribe(func(ev Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})
	defer unsubscribe()

	p, err := c.CreateOptimistic(context.Background(), draftFor("c1", "Doomed"))
	require.NoError(t, err)

	_, err = p.Wait(context.Background())
	var writeErr *RemoteWriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "create", writeErr.Op)
	assert.Equal(t, "The task could not be saved. Please try again.", UserMessage(err))
	waitIdle(t, c)

	county := mustCounty(t, c, "c1")
	assert.Equal(t, []string{"t0"}, keys(county))
	assert.Equal(t, 1, county.TaskCount)
	assert.Equal(t, 1, store.createCount(), "creates are not retried")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventKind{EventTaskAdded, EventTaskRolledBack, EventError}, kinds)
}

func TestCreateOptimistic_InterleavedSettlement(t *testing.T) {
	gates := map[string]chan error{"A": make(chan error), "B": make(chan error)}
	store := &fakeStore{
		create: func(ctx context.Context, d models.TaskDraft) (*models.Task, error) {
			if err := <-gates[d.Title]; err != nil {
				return nil, err
			}
			return stored("srv-"+d.Title, d), nil
		},
	}
	c := newTestCoordinator(t, store, "c1")
	ctx := context.Background()

	pa, err := c.CreateOptimistic(ctx, draftFor("c1", "A"))
	require.NoError(t, err)
	pb, err := c.CreateOptimistic(ctx, draftFor("c1", "B"))
	require.NoError(t, err)
	assert.NotEqual(t, pa.LocalID, pb.LocalID)

	// B confirms first, then A fails: B must keep its slot and A must go.
	gates["B"] <- nil
	_, err = pb.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{pa.LocalID, "srv-B"}, keys(mustCounty(t, c, "c1")))

	gates["A"] <- errors.New("rejected")
	_, err = pa.Wait(ctx)
	require.Error(t, err)
	waitIdle(t, c)

	county := mustCounty(t, c, "c1")
	assert.Equal(t, []string{"srv-B"}, keys(county))
	assert.Equal(t, 1, county.TaskCount)

	// The stale placeholder id of B still resolves to the confirmed task.
	del, err := c.DeleteOptimistic(ctx, pb.LocalID)
	require.NoError(t, err)
	_, err = del.Wait(ctx)
	require.NoError(t, err)
	waitIdle(t, c)
	assert.Equal(t, []string{"srv-B"}, store.deleted())
	assert.Empty(t, mustCounty(t, c, "c1").Tasks)
}

func TestCreateOptimistic_OutOfOrderConfirmationsKeepSlots(t *testing.T) {
	gates := map[string]chan struct{}{"A": make(chan struct{}), "B": make(chan struct{})}
	store := &fakeStore{
		create: func(ctx context.Context, d models.TaskDraft) (*models.Task, error) {
			<-gates[d.Title]
			return stored("srv-"+d.Title, d), nil
		},
	}
	c := newTestCoordinator(t, store, "c1")
	ctx := context.Background()

	pa, err := c.CreateOptimistic(ctx, draftFor("c1", "A"))
	require.NoError(t, err)
	pb, err := c.CreateOptimistic(ctx, draftFor("c1", "B"))
	require.NoError(t, err)

	close(gates["B"])
	_, err = pb.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{pa.LocalID, "srv-B"}, keys(mustCounty(t, c, "c1")))

	close(gates["A"])
	_, err = pa.Wait(ctx)
	require.NoError(t, err)
	waitIdle(t, c)

	county := mustCounty(t, c, "c1")
	assert.Equal(t, []string{"srv-A", "srv-B"}, keys(county))
	assert.Equal(t, 2, county.TaskCount)
}

func TestDeleteOptimistic_BeforeConfirm(t *testing.T) {
	release := make(chan struct{})
	store := &fakeStore{
		create: func(ctx context.Context, d models.TaskDraft) (*models.Task, error) {
			<-release
			return stored("srv-late", d), nil
		},
	}
	c := newTestCoordinator(t, store, "c1")
	ctx := context.Background()

	create, err := c.CreateOptimistic(ctx, draftFor("c1", "Short lived"))
	require.NoError(t, err)

	del, err := c.DeleteOptimistic(ctx, create.LocalID)
	require.NoError(t, err)
	select {
	case <-del.Done():
	default:
		t.Fatal("deleting an unconfirmed task settles immediately")
	}
	county := mustCounty(t, c, "c1")
	assert.Empty(t, county.Tasks)
	assert.Equal(t, 0, county.TaskCount)
	assert.Empty(t, store.deleted(), "no remote delete for an unconfirmed task")

	close(release)
	_, err = create.Wait(ctx)
	require.NoError(t, err)
	waitIdle(t, c)

	county = mustCounty(t, c, "c1")
	assert.Empty(t, county.Tasks, "late confirmation does not resurrect the task")
	assert.Equal(t, 0, county.TaskCount)
	assert.Equal(t, []string{"srv-late"}, store.deleted(), "orphaned backend record is removed")
}

func TestCreateGlobalOptimistic_PartialFailure(t *testing.T) {
	store := &fakeStore{
		create: func(ctx context.Context, d models.TaskDraft) (*models.Task, error) {
			if d.CountyID == "c2" {
				return nil, errors.New("county c2 rejected")
			}
			return stored("srv-"+d.CountyID, d), nil
		},
	}
	c := newTestCoordinator(t, store, "c1", "c2", "c3")
	ctx := context.Background()

	draft := draftFor("", "Annual audit")
	draft.AssignedTo = nil
	gp, err := c.CreateGlobalOptimistic(ctx, draft, []string{"c1", "c2", "c3", "c1"})
	require.NoError(t, err)
	require.Len(t, gp.ByCounty, 3)

	locals := map[string]bool{}
	for _, p := range gp.ByCounty {
		locals[p.LocalID] = true
	}
	assert.Len(t, locals, 3, "each county gets its own placeholder id")

	res, err := gp.Wait(ctx)
	require.NoError(t, err)
	waitIdle(t, c)

	assert.Len(t, res.Confirmed, 2)
	require.Contains(t, res.Failed, "c2")
	var writeErr *RemoteWriteError
	assert.ErrorAs(t, res.Failed["c2"], &writeErr)

	for _, id := range []string{"c1", "c3"} {
		county := mustCounty(t, c, id)
		assert.Equal(t, []string{"srv-" + id}, keys(county))
		assert.Equal(t, 1, county.TaskCount)
		assert.Equal(t, models.StringList{models.CountyMainAssignee}, county.Tasks[0].AssignedTo)
	}
	c2 := mustCounty(t, c, "c2")
	assert.Empty(t, c2.Tasks)
	assert.Equal(t, 0, c2.TaskCount)
}

func TestCreateGlobalOptimistic_Validation(t *testing.T) {
	store := &fakeStore{}
	c := newTestCoordinator(t, store, "c1")
	ctx := context.Background()

	_, err := c.CreateGlobalOptimistic(ctx, draftFor("", "x"), nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "counties", verr.Field)

	_, err = c.CreateGlobalOptimistic(ctx, draftFor("", "x"), []string{"c1", "nope"})
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, mustCounty(t, c, "c1").Tasks, "nothing is inserted when any county is unknown")
}

func TestDeleteOptimistic_FailureResyncs(t *testing.T) {
	serverList := []*models.Task{existing("t0", "c1", "Kept"), existing("t5", "c1", "Added elsewhere")}
	loads := 0
	proceed := make(chan struct{})
	store := &fakeStore{
		list: func(ctx context.Context, id string) ([]*models.Task, error) {
			loads++
			if loads == 1 {
				return []*models.Task{existing("t0", id, "Kept")}, nil
			}
			return serverList, nil
		},
		delete: func(ctx context.Context, id string) error {
			<-proceed
			return errors.New("delete refused")
		},
	}
	c := newTestCoordinator(t, store, "c1")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		p, err := c.DeleteOptimistic(ctx, "t0")
		require.NoError(t, err)
		assert.NotContains(t, keys(mustCounty(t, c, "c1")), "t0", "removed before the backend answers")
		proceed <- struct{}{}

		_, err = p.Wait(ctx)
		var writeErr *RemoteWriteError
		require.ErrorAs(t, err, &writeErr)
		assert.Equal(t, "delete", writeErr.Op)
		waitIdle(t, c)

		county := mustCounty(t, c, "c1")
		assert.Equal(t, []string{"t0", "t5"}, keys(county), "resync %d restores the backend list", i+1)
		assert.Equal(t, 2, county.TaskCount)
	}
}

func TestDeleteOptimistic_FailureAndResyncFailure(t *testing.T) {
	store := &fakeStore{
		list: func(ctx context.Context, id string) ([]*models.Task, error) {
			return []*models.Task{existing("t0", id, "x")}, nil
		},
		delete: func(ctx context.Context, id string) error { return errors.New("refused") },
	}
	c := newTestCoordinator(t, store, "c1")
	store.mu.Lock()
	store.list = func(ctx context.Context, id string) ([]*models.Task, error) {
		return nil, errors.New("unreachable")
	}
	store.mu.Unlock()

	p, err := c.DeleteOptimistic(context.Background(), "t0")
	require.NoError(t, err)
	_, err = p.Wait(context.Background())
	waitIdle(t, c)

	var writeErr *RemoteWriteError
	var readErr *RemoteReadError
	assert.ErrorAs(t, err, &writeErr)
	assert.ErrorAs(t, err, &readErr)
	assert.Equal(t, "The task could not be deleted. The list was reloaded.\nTasks could not be loaded. Please refresh.", UserMessage(err))
}

func TestDeleteOptimistic_UnknownID(t *testing.T) {
	c := newTestCoordinator(t, &fakeStore{}, "c1")
	_, err := c.DeleteOptimistic(context.Background(), "missing")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "id", verr.Field)
}

func TestNotAuthenticated(t *testing.T) {
	store := &fakeStore{}
	session := loggedIn()
	c := New(store, session, Config{}, observability.NewNoopLogger(), nil)
	require.NoError(t, c.Load(context.Background(), []*models.County{{ID: "c1"}}))
	session.Clear()
	ctx := context.Background()

	_, err := c.CreateOptimistic(ctx, draftFor("c1", "x"))
	var nae *NotAuthenticatedError
	assert.ErrorAs(t, err, &nae)

	_, err = c.DeleteOptimistic(ctx, "t0")
	assert.ErrorAs(t, err, &nae)

	_, err = c.CreateGlobalOptimistic(ctx, draftFor("", "x"), []string{"c1"})
	assert.ErrorAs(t, err, &nae)

	assert.ErrorAs(t, c.Refresh(ctx), &nae)
	assert.Equal(t, 0, store.createCount())
	assert.Equal(t, "Please log in to continue.", UserMessage(err))
}

func TestCreateOptimistic_Validation(t *testing.T) {
	store := &fakeStore{}
	c := newTestCoordinator(t, store, "c1")

	cases := map[string]struct {
		mutate func(*models.TaskDraft)
		field  string
	}{
		"blank title":    {func(d *models.TaskDraft) { d.Title = "   " }, "title"},
		"no deadline":    {func(d *models.TaskDraft) { d.Deadline = time.Time{} }, "deadline"},
		"no county":      {func(d *models.TaskDraft) { d.CountyID = "" }, "countyId"},
		"unknown county": {func(d *models.TaskDraft) { d.CountyID = "c9" }, "countyId"},
		"no assignee":    {func(d *models.TaskDraft) { d.AssignedTo = []string{" "} }, "assignedTo"},
		"bad priority":   {func(d *models.TaskDraft) { d.Priority = "urgent" }, "priority"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			d := draftFor("c1", "Valid")
			tc.mutate(&d)
			_, err := c.CreateOptimistic(context.Background(), d)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
	assert.Empty(t, mustCounty(t, c, "c1").Tasks)
	assert.Equal(t, 0, store.createCount())
}

func TestRemoteCallSurvivesCallerCancellation(t *testing.T) {
	store := &fakeStore{
		create: func(ctx context.Context, d models.TaskDraft) (*models.Task, error) {
			time.Sleep(10 * time.Millisecond)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if _, ok := ctx.Deadline(); !ok {
				return nil, fmt.Errorf("remote call has no deadline")
			}
			return stored("srv-1", d), nil
		},
	}
	c := newTestCoordinator(t, store, "c1")

	ctx, cancel := context.WithCancel(context.Background())
	p, err := c.CreateOptimistic(ctx, draftFor("c1", "Detached"))
	require.NoError(t, err)
	cancel()

	task, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "srv-1", task.ID)
	waitIdle(t, c)
}

func TestLoadPartialFailure(t *testing.T) {
	store := &fakeStore{
		list: func(ctx context.Context, id string) ([]*models.Task, error) {
			if id == "c2" {
				return nil, errors.New("timeout")
			}
			return []*models.Task{existing("t-"+id, id, "x")}, nil
		},
	}
	c := New(store, loggedIn(), Config{}, observability.NewNoopLogger(), nil)
	err := c.Load(context.Background(), []*models.County{{ID: "c1"}, {ID: "c2"}, {ID: "c3"}})

	var readErr *RemoteReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, "c2", readErr.CountyID)

	counties := c.Counties()
	require.Len(t, counties, 3)
	assert.Equal(t, []string{"c1", "c2", "c3"}, []string{counties[0].ID, counties[1].ID, counties[2].ID})
	assert.Equal(t, 1, counties[0].TaskCount)
	assert.Equal(t, 0, counties[1].TaskCount)
}

func TestSnapshotsAreCopies(t *testing.T) {
	store := &fakeStore{
		list: func(ctx context.Context, id string) ([]*models.Task, error) {
			return []*models.Task{existing("t0", id, "x")}, nil
		},
	}
	c := newTestCoordinator(t, store, "c1")

	county := mustCounty(t, c, "c1")
	county.Tasks[0].Title = "changed"
	county.Tasks = nil

	again := mustCounty(t, c, "c1")
	require.Len(t, again.Tasks, 1)
	assert.Equal(t, "x", again.Tasks[0].Title)
}

func TestCreateOptimistic_ConfirmedAfterResyncIsKept(t *testing.T) {
	release := make(chan struct{})
	store := &fakeStore{
		list: func(ctx context.Context, id string) ([]*models.Task, error) {
			return []*models.Task{existing("t1", id, "Existing")}, nil
		},
		create: func(ctx context.Context, d models.TaskDraft) (*models.Task, error) {
			<-release
			return stored("srv-new", d), nil
		},
		delete: func(ctx context.Context, id string) error { return errors.New("delete refused") },
	}
	c := newTestCoordinator(t, store, "c1")
	ctx := context.Background()

	create, err := c.CreateOptimistic(ctx, draftFor("c1", "New"))
	require.NoError(t, err)

	del, err := c.DeleteOptimistic(ctx, "t1")
	require.NoError(t, err)
	_, err = del.Wait(ctx)
	var writeErr *RemoteWriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, []string{"t1"}, keys(mustCounty(t, c, "c1")), "resync installs the backend list")

	close(release)
	task, err := create.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "srv-new", task.ID)
	waitIdle(t, c)

	county := mustCounty(t, c, "c1")
	assert.Equal(t, []string{"t1", "srv-new"}, keys(county))
	assert.Equal(t, 2, county.TaskCount)
}

func TestRefresh_KeepsTaskConfirmedDuringFetch(t *testing.T) {
	gate := make(chan struct{})
	var block atomic.Bool
	store := &fakeStore{
		list: func(ctx context.Context, id string) ([]*models.Task, error) {
			if block.Load() {
				<-gate
			}
			return []*models.Task{existing("t1", id, "Existing")}, nil
		},
		create: func(ctx context.Context, d models.TaskDraft) (*models.Task, error) {
			return stored("srv-new", d), nil
		},
	}
	c := newTestCoordinator(t, store, "c1")
	ctx := context.Background()
	block.Store(true)

	refreshed := make(chan error, 1)
	go func() { refreshed <- c.Refresh(ctx) }()
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.lists) == 2
	}, time.Second, 5*time.Millisecond)

	create, err := c.CreateOptimistic(ctx, draftFor("c1", "New"))
	require.NoError(t, err)
	_, err = create.Wait(ctx)
	require.NoError(t, err)

	close(gate)
	require.NoError(t, <-refreshed)
	waitIdle(t, c)

	county := mustCounty(t, c, "c1")
	assert.Equal(t, []string{"t1", "srv-new"}, keys(county), "a fetch that predates the confirmation keeps it")
	assert.Equal(t, 2, county.TaskCount)

	block.Store(false)
	require.NoError(t, c.Refresh(ctx))
	assert.Equal(t, []string{"t1"}, keys(mustCounty(t, c, "c1")), "a later fetch is authoritative")
}

func TestCreateOptimistic_SessionLapsedDuringWrite(t *testing.T) {
	cases := map[string]error{
		"no session":   fmt.Errorf("create task: %w", remote.ErrNoSession),
		"unauthorized": &remote.StatusError{StatusCode: 401, Message: "token expired"},
	}
	for name, cause := range cases {
		t.Run(name, func(t *testing.T) {
			store := &fakeStore{
				create: func(ctx context.Context, d models.TaskDraft) (*models.Task, error) {
					return nil, cause
				},
			}
			c := newTestCoordinator(t, store, "c1")

			p, err := c.CreateOptimistic(context.Background(), draftFor("c1", "x"))
			require.NoError(t, err)
			_, err = p.Wait(context.Background())
			var nae *NotAuthenticatedError
			require.ErrorAs(t, err, &nae)
			assert.Equal(t, "Please log in to continue.", UserMessage(err))
			waitIdle(t, c)
			assert.Empty(t, mustCounty(t, c, "c1").Tasks)
		})
	}
}

func TestAliasesFollowTheList(t *testing.T) {
	store := &fakeStore{
		create: func(ctx context.Context, d models.TaskDraft) (*models.Task, error) {
			return stored("srv-"+d.Title, d), nil
		},
	}
	c := newTestCoordinator(t, store, "c1")
	ctx := context.Background()

	pa, err := c.CreateOptimistic(ctx, draftFor("c1", "A"))
	require.NoError(t, err)
	_, err = pa.Wait(ctx)
	require.NoError(t, err)
	pb, err := c.CreateOptimistic(ctx, draftFor("c1", "B"))
	require.NoError(t, err)
	_, err = pb.Wait(ctx)
	require.NoError(t, err)
	waitIdle(t, c)
	assert.Equal(t, 2, aliasCount(c))

	del, err := c.DeleteOptimistic(ctx, pa.LocalID)
	require.NoError(t, err)
	_, err = del.Wait(ctx)
	require.NoError(t, err)
	waitIdle(t, c)
	assert.Equal(t, 1, aliasCount(c), "deleting a task drops its alias")

	require.NoError(t, c.Refresh(ctx))
	assert.Equal(t, 0, aliasCount(c), "a reload without the task drops its alias")

	_, err = c.DeleteOptimistic(ctx, pb.LocalID)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}
