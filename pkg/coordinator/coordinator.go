// Package coordinator applies task mutations to the local county lists
// immediately and reconciles them with the backend in the background.
//
// A created task starts with a local placeholder id. When the backend
// confirms it, the backend id replaces the placeholder in place; when the
// backend refuses it, the placeholder is removed again. Deleting a task
// removes it at once and, should the backend refuse, reloads that county
// from the backend. Every match is by identifier, never by position, so
// overlapping operations on the same county stay consistent.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/civisight/portal/pkg/auth"
	"github.com/civisight/portal/pkg/models"
	"github.com/civisight/portal/pkg/observability"
	"github.com/civisight/portal/pkg/remote"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Config tunes the coordinator.
type Config struct {
	// RemoteTimeout bounds every background backend call.
	RemoteTimeout time.Duration `mapstructure:"remote_timeout"`
	// MaxConcurrentWrites bounds the per-county writes of a global create.
	MaxConcurrentWrites int `mapstructure:"max_concurrent_writes"`
	// MaxConcurrentLoads bounds parallel list fetches.
	MaxConcurrentLoads int `mapstructure:"max_concurrent_loads"`
}

// DefaultConfig returns the defaults used when fields are zero.
func DefaultConfig() Config {
	return Config{
		RemoteTimeout:       30 * time.Second,
		MaxConcurrentWrites: 8,
		MaxConcurrentLoads:  8,
	}
}

// Coordinator owns the client-side county task lists.
type Coordinator struct {
	store    remote.Store
	session  auth.SessionSource
	cfg      Config
	logger   observability.Logger
	metrics  observability.MetricsClient
	validate *validator.Validate
	now      func() time.Time
	seq      atomic.Uint64

	mu       sync.Mutex
	counties map[string]*models.County
	order    []string
	// tombstones holds local ids deleted before their create was confirmed.
	tombstones map[string]struct{}
	// aliases maps the local ids of confirmed tasks still in a list to
	// their backend ids.
	aliases    map[string]confirmation
	confirmSeq uint64
	inflight   int
	idle       chan struct{}

	subsMu  sync.RWMutex
	subs    map[int]func(Event)
	nextSub int
}

// confirmation records where a confirmed placeholder ended up. seq orders
// confirmations against list fetches.
type confirmation struct {
	countyID string
	taskID   string
	seq      uint64
}

// New creates a coordinator with no counties loaded.
func New(store remote.Store, session auth.SessionSource, cfg Config, logger observability.Logger, metrics observability.MetricsClient) *Coordinator {
	def := DefaultConfig()
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = def.RemoteTimeout
	}
	if cfg.MaxConcurrentWrites <= 0 {
		cfg.MaxConcurrentWrites = def.MaxConcurrentWrites
	}
	if cfg.MaxConcurrentLoads <= 0 {
		cfg.MaxConcurrentLoads = def.MaxConcurrentLoads
	}
	if logger == nil {
		logger = observability.NewLogger("coordinator")
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	return &Coordinator{
		store:      store,
		session:    session,
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		validate:   v,
		now:        time.Now,
		counties:   map[string]*models.County{},
		tombstones: map[string]struct{}{},
		aliases:    map[string]confirmation{},
		subs:       map[int]func(Event){},
	}
}

// Load replaces the known counties and fetches every county's tasks
// concurrently. Counties whose fetch failed keep the tasks they came with;
// the failures are returned joined.
func (c *Coordinator) Load(ctx context.Context, counties []*models.County) error {
	if _, err := c.requireSession(); err != nil {
		return err
	}

	c.mu.Lock()
	c.counties = make(map[string]*models.County, len(counties))
	c.order = c.order[:0]
	for _, county := range counties {
		if county == nil || county.ID == "" {
			continue
		}
		cl := county.Clone()
		if _, dup := c.counties[cl.ID]; !dup {
			c.order = append(c.order, cl.ID)
		}
		cl.TaskCount = len(cl.Tasks)
		c.counties[cl.ID] = cl
	}
	for localID, conf := range c.aliases {
		if !c.presentLocked(conf) {
			delete(c.aliases, localID)
		}
	}
	ids := append([]string(nil), c.order...)
	c.mu.Unlock()

	return c.fetchAll(ctx, ids, EventCountyLoaded)
}

// Refresh re-fetches every known county.
func (c *Coordinator) Refresh(ctx context.Context) error {
	if _, err := c.requireSession(); err != nil {
		return err
	}
	c.mu.Lock()
	ids := append([]string(nil), c.order...)
	c.mu.Unlock()
	return c.fetchAll(ctx, ids, EventCountyLoaded)
}

// RefreshCounty re-fetches one county's tasks and replaces its list.
func (c *Coordinator) RefreshCounty(ctx context.Context, countyID string) error {
	if _, err := c.requireSession(); err != nil {
		return err
	}
	if !c.hasCounty(countyID) {
		return &ValidationError{Field: "countyId", Reason: "unknown county " + countyID}
	}
	return c.fetchAll(ctx, []string{countyID}, EventCountyLoaded)
}

func (c *Coordinator) fetchAll(ctx context.Context, ids []string, kind EventKind) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	since := c.confirmMark()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrentLoads)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			tasks, err := c.store.ListTasks(gctx, id)
			if err != nil {
				readErr := &RemoteReadError{CountyID: id, Err: err}
				c.logger.Warn("Failed to load county tasks", map[string]interface{}{
					"county_id": id,
					"error":     err.Error(),
				})
				mu.Lock()
				errs = append(errs, readErr)
				mu.Unlock()
				c.emit(Event{Kind: EventError, CountyID: id, Err: readErr})
				return nil
			}
			if c.replaceTasks(id, tasks, since) {
				c.emit(Event{Kind: kind, CountyID: id})
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// CreateOptimistic inserts a placeholder for draft into its county and
// returns at once. The backend write runs in the background and is never
// retried; on failure the placeholder is removed and the Pending resolves
// with a RemoteWriteError.
func (c *Coordinator) CreateOptimistic(ctx context.Context, draft models.TaskDraft) (*Pending, error) {
	sess, err := c.requireSession()
	if err != nil {
		return nil, err
	}
	draft = c.prepareDraft(draft, sess)
	if err := c.validateDraft(draft); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if _, ok := c.counties[draft.CountyID]; !ok {
		c.mu.Unlock()
		return nil, &ValidationError{Field: "countyId", Reason: "unknown county " + draft.CountyID}
	}
	p := c.insertLocked(draft)
	c.beginLocked()
	c.mu.Unlock()

	c.metrics.IncrementCounter("optimistic_creates_total", 1)
	c.emit(Event{Kind: EventTaskAdded, CountyID: p.CountyID, TaskID: p.LocalID, LocalID: p.LocalID})

	go func() {
		defer c.end()
		c.confirmCreate(ctx, p, draft)
	}()
	return p, nil
}

// CreateGlobalOptimistic creates an independent copy of draft in each
// county. Each copy gets its own placeholder and settles on its own, so some
// counties may fail while others succeed. An empty assignee list defaults to
// the county's main contact.
func (c *Coordinator) CreateGlobalOptimistic(ctx context.Context, draft models.TaskDraft, countyIDs []string) (*GlobalPending, error) {
	sess, err := c.requireSession()
	if err != nil {
		return nil, err
	}

	ids := dedupe(countyIDs)
	if len(ids) == 0 {
		return nil, &ValidationError{Field: "counties", Reason: "select at least one county"}
	}
	if len(draft.AssignedTo) == 0 {
		draft.AssignedTo = []string{models.CountyMainAssignee}
	}
	draft.CountyID = ids[0]
	draft = c.prepareDraft(draft, sess)
	if err := c.validateDraft(draft); err != nil {
		return nil, err
	}

	c.mu.Lock()
	for _, id := range ids {
		if _, ok := c.counties[id]; !ok {
			c.mu.Unlock()
			return nil, &ValidationError{Field: "counties", Reason: "unknown county " + id}
		}
	}
	gp := &GlobalPending{ByCounty: make(map[string]*Pending, len(ids))}
	drafts := make([]models.TaskDraft, len(ids))
	pendings := make([]*Pending, len(ids))
	events := make([]Event, len(ids))
	for i, id := range ids {
		d := draft
		d.CountyID = id
		d.AssignedTo = append([]string(nil), draft.AssignedTo...)
		p := c.insertLocked(d)
		drafts[i], pendings[i] = d, p
		gp.ByCounty[id] = p
		events[i] = Event{Kind: EventTaskAdded, CountyID: id, TaskID: p.LocalID, LocalID: p.LocalID}
	}
	c.beginLocked()
	c.mu.Unlock()

	c.metrics.IncrementCounter("optimistic_creates_total", float64(len(ids)))
	c.emit(events...)

	go func() {
		defer c.end()
		var g errgroup.Group
		g.SetLimit(c.cfg.MaxConcurrentWrites)
		for i := range pendings {
			p, d := pendings[i], drafts[i]
			g.Go(func() error {
				c.confirmCreate(ctx, p, d)
				return nil
			})
		}
		_ = g.Wait()
	}()
	return gp, nil
}

// DeleteOptimistic removes the task known by id, which may be a backend id,
// a placeholder id, or the placeholder id of an already confirmed task.
// Unconfirmed tasks are only removed locally; their late confirmation then
// deletes the orphaned backend record. Confirmed tasks are deleted remotely,
// and a refused delete reloads the county.
func (c *Coordinator) DeleteOptimistic(ctx context.Context, id string) (*Pending, error) {
	if _, err := c.requireSession(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, &ValidationError{Field: "id", Reason: "is required"}
	}

	c.mu.Lock()
	key := id
	if conf, ok := c.aliases[id]; ok {
		key = conf.taskID
	}
	county, idx := c.findLocked(key)
	if county == nil {
		c.mu.Unlock()
		return nil, &ValidationError{Field: "id", Reason: "unknown task " + id}
	}
	task := county.Tasks[idx]
	c.removeAtLocked(county, idx)
	p := newPending(id, county.ID)

	if task.IsPendingLocal() {
		c.tombstones[task.LocalID] = struct{}{}
		c.mu.Unlock()
		c.emit(Event{Kind: EventTaskRemoved, CountyID: county.ID, TaskID: task.LocalID, LocalID: task.LocalID})
		p.resolve(task, nil)
		return p, nil
	}
	c.beginLocked()
	c.mu.Unlock()

	c.emit(Event{Kind: EventTaskRemoved, CountyID: county.ID, TaskID: task.ID})

	go func() {
		defer c.end()
		c.confirmDelete(ctx, p, task)
	}()
	return p, nil
}

// County returns a copy of the county, or false when it is unknown.
func (c *Coordinator) County(id string) (*models.County, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	county, ok := c.counties[id]
	if !ok {
		return nil, false
	}
	return county.Clone(), true
}

// Counties returns copies of all counties in load order.
func (c *Coordinator) Counties() []*models.County {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.County, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.counties[id].Clone())
	}
	return out
}

// WaitIdle blocks until no background mutation is running.
func (c *Coordinator) WaitIdle(ctx context.Context) error {
	c.mu.Lock()
	if c.inflight == 0 {
		c.mu.Unlock()
		return nil
	}
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) confirmCreate(parent context.Context, p *Pending, draft models.TaskDraft) {
	ctx, cancel := c.remoteContext(parent)
	defer cancel()

	stored, err := c.store.CreateTask(ctx, draft)
	if err != nil {
		c.rollbackCreate(p, err)
		return
	}

	c.mu.Lock()
	if _, deleted := c.tombstones[p.LocalID]; deleted {
		delete(c.tombstones, p.LocalID)
		c.mu.Unlock()
		c.metrics.IncrementCounter("late_confirmations_total", 1)
		c.deleteOrphan(ctx, stored)
		p.resolve(stored, nil)
		return
	}

	county, ok := c.counties[p.CountyID]
	if !ok {
		c.mu.Unlock()
		c.logger.Debug("Confirmation for county no longer loaded", map[string]interface{}{
			"county_id": p.CountyID,
			"local_id":  p.LocalID,
			"task_id":   stored.ID,
		})
		p.resolve(stored, nil)
		return
	}

	c.confirmSeq++
	c.aliases[p.LocalID] = confirmation{countyID: p.CountyID, taskID: stored.ID, seq: c.confirmSeq}
	var confirmed *models.Task
	late := false
	if idx := indexOfLocal(county.Tasks, p.LocalID); idx >= 0 {
		task := county.Tasks[idx]
		task.ID = stored.ID
		task.LocalID = ""
		confirmed = task.Clone()
	} else {
		// A reload replaced the list while the write was running. The
		// backend keeps the task, so the list gets it back.
		late = true
		if indexOfID(county.Tasks, stored.ID) < 0 {
			restored := stored.Clone()
			restored.LocalID = ""
			county.Tasks = append(county.Tasks, restored)
			county.TaskCount++
		}
		confirmed = stored.Clone()
		confirmed.LocalID = ""
	}
	c.mu.Unlock()

	if late {
		c.metrics.IncrementCounter("late_confirmations_total", 1)
	}
	c.logger.Debug("Task confirmed", map[string]interface{}{
		"county_id":  p.CountyID,
		"local_id":   p.LocalID,
		"task_id":    stored.ID,
		"reinserted": late,
	})
	c.emit(Event{Kind: EventTaskConfirmed, CountyID: p.CountyID, TaskID: stored.ID, LocalID: p.LocalID})
	p.resolve(confirmed, nil)
}

func (c *Coordinator) rollbackCreate(p *Pending, cause error) {
	writeErr := writeFailure("create", p.CountyID, p.LocalID, cause)

	c.mu.Lock()
	if _, deleted := c.tombstones[p.LocalID]; deleted {
		// Already gone locally; nothing to roll back.
		delete(c.tombstones, p.LocalID)
		c.mu.Unlock()
		p.resolve(nil, writeErr)
		return
	}
	removed := false
	if county, ok := c.counties[p.CountyID]; ok {
		if idx := indexOfLocal(county.Tasks, p.LocalID); idx >= 0 {
			c.removeAtLocked(county, idx)
			removed = true
		}
	}
	c.mu.Unlock()

	c.metrics.IncrementCounter("optimistic_rollbacks_total", 1)
	c.logger.Warn("Task create rolled back", map[string]interface{}{
		"county_id": p.CountyID,
		"local_id":  p.LocalID,
		"error":     cause.Error(),
	})
	if removed {
		c.emit(
			Event{Kind: EventTaskRolledBack, CountyID: p.CountyID, TaskID: p.LocalID, LocalID: p.LocalID},
			Event{Kind: EventError, CountyID: p.CountyID, TaskID: p.LocalID, LocalID: p.LocalID, Err: writeErr},
		)
	}
	p.resolve(nil, writeErr)
}

func (c *Coordinator) confirmDelete(parent context.Context, p *Pending, task *models.Task) {
	ctx, cancel := c.remoteContext(parent)
	defer cancel()

	err := c.store.DeleteTask(ctx, task.ID)
	if err == nil {
		p.resolve(task, nil)
		return
	}

	writeErr := writeFailure("delete", task.CountyID, task.ID, err)
	c.metrics.IncrementCounter("optimistic_resyncs_total", 1)
	c.logger.Warn("Task delete failed, reloading county", map[string]interface{}{
		"county_id": p.CountyID,
		"task_id":   task.ID,
		"error":     err.Error(),
	})

	since := c.confirmMark()
	tasks, listErr := c.store.ListTasks(ctx, p.CountyID)
	if listErr != nil {
		readErr := &RemoteReadError{CountyID: p.CountyID, Err: listErr}
		joined := errors.Join(writeErr, readErr)
		c.emit(Event{Kind: EventError, CountyID: p.CountyID, TaskID: task.ID, Err: joined})
		p.resolve(nil, joined)
		return
	}
	c.replaceTasks(p.CountyID, tasks, since)
	c.emit(
		Event{Kind: EventCountyResynced, CountyID: p.CountyID},
		Event{Kind: EventError, CountyID: p.CountyID, TaskID: task.ID, Err: writeErr},
	)
	p.resolve(nil, writeErr)
}

// deleteOrphan removes a record whose placeholder was deleted before the
// confirmation arrived. Failure only leaves a stray backend record.
func (c *Coordinator) deleteOrphan(ctx context.Context, stored *models.Task) {
	if err := c.store.DeleteTask(ctx, stored.ID); err != nil {
		c.logger.Warn("Failed to delete orphaned task", map[string]interface{}{
			"county_id": stored.CountyID,
			"task_id":   stored.ID,
			"error":     err.Error(),
		})
	}
}

// writeFailure wraps a refused write. A lapsed session reads as logged out.
func writeFailure(op, countyID, taskID string, err error) error {
	var se *remote.StatusError
	if errors.Is(err, remote.ErrNoSession) || (errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized) {
		return &NotAuthenticatedError{}
	}
	return &RemoteWriteError{Op: op, CountyID: countyID, TaskID: taskID, Err: err}
}

// replaceTasks installs a list fetched after the confirmation mark since.
// Tasks confirmed after that mark may be missing from it and are carried
// over. It reports false when the county is no longer known.
func (c *Coordinator) replaceTasks(countyID string, tasks []*models.Task, since uint64) bool {
	fresh := make([]*models.Task, 0, len(tasks))
	for _, t := range tasks {
		if t == nil {
			continue
		}
		cl := t.Clone()
		cl.LocalID = ""
		fresh = append(fresh, cl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	county, ok := c.counties[countyID]
	if !ok {
		return false
	}
	for _, conf := range c.aliases {
		if conf.countyID != countyID || conf.seq <= since || indexOfID(fresh, conf.taskID) >= 0 {
			continue
		}
		if idx := indexOfID(county.Tasks, conf.taskID); idx >= 0 {
			fresh = append(fresh, county.Tasks[idx])
		}
	}
	county.Tasks = fresh
	county.TaskCount = len(fresh)
	for localID, conf := range c.aliases {
		if conf.countyID == countyID && !c.presentLocked(conf) {
			delete(c.aliases, localID)
		}
	}
	return true
}

func (c *Coordinator) confirmMark() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confirmSeq
}

func (c *Coordinator) presentLocked(conf confirmation) bool {
	county, ok := c.counties[conf.countyID]
	return ok && indexOfID(county.Tasks, conf.taskID) >= 0
}

func (c *Coordinator) insertLocked(draft models.TaskDraft) *Pending {
	localID := c.newLocalID()
	now := c.now().UTC()
	task := &models.Task{
		LocalID:           localID,
		Title:             draft.Title,
		Description:       draft.Description,
		Status:            models.TaskStatusPending,
		Priority:          draft.Priority,
		Deadline:          draft.Deadline,
		AssignedTo:        models.StringList(append([]string(nil), draft.AssignedTo...)),
		CountyID:          draft.CountyID,
		CreatedBy:         draft.CreatedBy,
		CreatedAt:         now,
		UpdatedAt:         now,
		ReminderFrequency: draft.ReminderFrequency,
		CompletionDetails: models.CompletionDetails{TotalAssigned: len(draft.AssignedTo), CompletedBy: []string{}},
	}
	county := c.counties[draft.CountyID]
	county.Tasks = append(county.Tasks, task)
	county.TaskCount++
	return newPending(localID, draft.CountyID)
}

func (c *Coordinator) removeAtLocked(county *models.County, idx int) {
	if id := county.Tasks[idx].ID; id != "" {
		for localID, conf := range c.aliases {
			if conf.taskID == id {
				delete(c.aliases, localID)
			}
		}
	}
	county.Tasks = append(county.Tasks[:idx:idx], county.Tasks[idx+1:]...)
	if county.TaskCount > 0 {
		county.TaskCount--
	}
}

func (c *Coordinator) findLocked(key string) (*models.County, int) {
	for _, id := range c.order {
		county := c.counties[id]
		for i, t := range county.Tasks {
			if t.Key() == key {
				return county, i
			}
		}
	}
	return nil, -1
}

func (c *Coordinator) hasCounty(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.counties[id]
	return ok
}

func (c *Coordinator) beginLocked() {
	if c.inflight == 0 {
		c.idle = make(chan struct{})
	}
	c.inflight++
}

func (c *Coordinator) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	if c.inflight == 0 {
		close(c.idle)
	}
}

// remoteContext detaches background calls from the caller's cancellation
// while keeping its values, and bounds them by RemoteTimeout.
func (c *Coordinator) remoteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), c.cfg.RemoteTimeout)
}

func (c *Coordinator) requireSession() (*auth.Session, error) {
	if c.session == nil {
		return nil, &NotAuthenticatedError{}
	}
	sess, ok := c.session.Current()
	if !ok {
		return nil, &NotAuthenticatedError{}
	}
	return sess, nil
}

func (c *Coordinator) prepareDraft(d models.TaskDraft, sess *auth.Session) models.TaskDraft {
	d.Title = strings.TrimSpace(d.Title)
	d.CountyID = strings.TrimSpace(d.CountyID)
	assignees := make([]string, 0, len(d.AssignedTo))
	for _, a := range d.AssignedTo {
		if a = strings.TrimSpace(a); a != "" {
			assignees = append(assignees, a)
		}
	}
	d.AssignedTo = assignees
	if d.Priority == "" {
		d.Priority = models.TaskPriorityMedium
	}
	if d.CreatedBy == "" && sess.User != nil {
		d.CreatedBy = sess.User.ID
	}
	return d
}

func (c *Coordinator) validateDraft(d models.TaskDraft) error {
	if err := c.validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{Field: fe.Field(), Reason: reasonFor(fe)}
		}
		return &ValidationError{Field: "task", Reason: err.Error()}
	}
	if d.Deadline.IsZero() {
		return &ValidationError{Field: "deadline", Reason: "is required"}
	}
	if d.CountyID == "" {
		return &ValidationError{Field: "countyId", Reason: "is required"}
	}
	if len(d.AssignedTo) == 0 {
		return &ValidationError{Field: "assignedTo", Reason: "assign at least one person"}
	}
	return nil
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return fmt.Sprintf("failed %s", fe.Tag())
}

func (c *Coordinator) newLocalID() string {
	return fmt.Sprintf("local-%d-%s", c.seq.Add(1), uuid.NewString()[:8])
}

func indexOfLocal(tasks []*models.Task, localID string) int {
	for i, t := range tasks {
		if t.LocalID == localID && t.ID == "" {
			return i
		}
	}
	return -1
}

func indexOfID(tasks []*models.Task, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
