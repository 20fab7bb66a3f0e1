package coordinator

// EventKind names a change to coordinator state.
type EventKind string

const (
	EventTaskAdded      EventKind = "task_added"
	EventTaskConfirmed  EventKind = "task_confirmed"
	EventTaskRolledBack EventKind = "task_rolled_back"
	EventTaskRemoved    EventKind = "task_removed"
	EventCountyLoaded   EventKind = "county_loaded"
	EventCountyResynced EventKind = "county_resynced"
	EventError          EventKind = "error"
)

// Event is delivered to subscribers after the state change it describes.
type Event struct {
	Kind     EventKind
	CountyID string
	// TaskID is the task's current identifier.
	TaskID  string
	LocalID string
	Err     error
}

// Subscribe registers fn for every later event and returns a function that
// removes it. fn runs on the goroutine that made the change, outside the
// state lock. It may be called concurrently and must not block.
func (c *Coordinator) Subscribe(fn func(Event)) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

func (c *Coordinator) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	c.subsMu.RLock()
	subs := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subsMu.RUnlock()

	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}
