package dashboard

import (
	"context"
	"strings"
	"sync"

	"github.com/civisight/portal/pkg/coordinator"
	"github.com/civisight/portal/pkg/models"
)

// StateAgencyView is the state-agency dashboard: which county is open, the
// county search box, the sort of the all-tasks list and the counties picked
// for a global task. Task data itself lives in the coordinator.
type StateAgencyView struct {
	coord *coordinator.Coordinator

	mu        sync.Mutex
	selected  string
	search    string
	sort      coordinator.SortMode
	global    []string
	form      *TaskForm
	lastError string
}

// NewStateAgencyView returns a view over coord with nothing selected.
func NewStateAgencyView(coord *coordinator.Coordinator) *StateAgencyView {
	return &StateAgencyView{
		coord: coord,
		sort:  coordinator.SortByDeadline,
		form:  NewTaskForm(),
	}
}

// Form returns the new-task form. Callers fill its fields before Submit.
func (v *StateAgencyView) Form() *TaskForm { return v.form }

// SelectCounty opens a county. An empty id closes it.
func (v *StateAgencyView) SelectCounty(id string) error {
	if id != "" {
		if _, ok := v.coord.County(id); !ok {
			return &coordinator.ValidationError{Field: "countyId", Reason: "unknown county " + id}
		}
	}
	v.mu.Lock()
	v.selected = id
	v.mu.Unlock()
	return nil
}

// SelectedCounty returns a snapshot of the open county.
func (v *StateAgencyView) SelectedCounty() (*models.County, bool) {
	v.mu.Lock()
	id := v.selected
	v.mu.Unlock()
	if id == "" {
		return nil, false
	}
	return v.coord.County(id)
}

// SetCountySearch sets the county search text.
func (v *StateAgencyView) SetCountySearch(q string) {
	v.mu.Lock()
	v.search = q
	v.mu.Unlock()
}

// FilteredCounties returns the counties whose name contains the search text,
// ignoring case.
func (v *StateAgencyView) FilteredCounties() []*models.County {
	v.mu.Lock()
	q := strings.ToLower(strings.TrimSpace(v.search))
	v.mu.Unlock()

	all := v.coord.Counties()
	if q == "" {
		return all
	}
	out := all[:0]
	for _, c := range all {
		if strings.Contains(strings.ToLower(c.Name), q) {
			out = append(out, c)
		}
	}
	return out
}

// SetSortMode changes the order of the all-tasks list.
func (v *StateAgencyView) SetSortMode(mode coordinator.SortMode) error {
	switch mode {
	case coordinator.SortByDeadline, coordinator.SortByCounties:
	default:
		return &coordinator.ValidationError{Field: "sort", Reason: "must be deadline or counties"}
	}
	v.mu.Lock()
	v.sort = mode
	v.mu.Unlock()
	return nil
}

// Tasks returns the aggregated task list in the current sort mode.
func (v *StateAgencyView) Tasks() []coordinator.AggregatedTask {
	v.mu.Lock()
	mode := v.sort
	v.mu.Unlock()
	return v.coord.Tasks(coordinator.TaskView{Sort: mode})
}

// ToggleGlobalCounty adds id to the global-task selection, or removes it when
// already selected.
func (v *StateAgencyView) ToggleGlobalCounty(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, existing := range v.global {
		if existing == id {
			v.global = append(v.global[:i:i], v.global[i+1:]...)
			return
		}
	}
	v.global = append(v.global, id)
}

// GlobalSelection returns the counties picked for a global task.
func (v *StateAgencyView) GlobalSelection() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.global...)
}

// LastError is the message of the most recent failed action, or "".
func (v *StateAgencyView) LastError() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastError
}

// SubmitTask creates the form's task in the open county. The form is reset
// as soon as the optimistic insert happened.
func (v *StateAgencyView) SubmitTask(ctx context.Context) (*coordinator.Pending, error) {
	v.mu.Lock()
	countyID := v.selected
	v.mu.Unlock()
	if countyID == "" {
		return nil, v.fail(&coordinator.ValidationError{Field: "countyId", Reason: "open a county first"})
	}

	draft, err := v.form.Draft(countyID)
	if err != nil {
		return nil, v.fail(err)
	}
	p, err := v.coord.CreateOptimistic(ctx, draft)
	if err != nil {
		return nil, v.fail(err)
	}
	v.form.Reset()
	v.fail(nil)
	return p, nil
}

// SubmitGlobalTask creates the form's task in every selected county and
// clears both the form and the selection.
func (v *StateAgencyView) SubmitGlobalTask(ctx context.Context) (*coordinator.GlobalPending, error) {
	draft, err := v.form.Draft("")
	if err != nil {
		return nil, v.fail(err)
	}
	gp, err := v.coord.CreateGlobalOptimistic(ctx, draft, v.GlobalSelection())
	if err != nil {
		return nil, v.fail(err)
	}
	v.form.Reset()
	v.mu.Lock()
	v.global = nil
	v.mu.Unlock()
	v.fail(nil)
	return gp, nil
}

// DeleteTask removes a task from whichever county holds it.
func (v *StateAgencyView) DeleteTask(ctx context.Context, id string) (*coordinator.Pending, error) {
	p, err := v.coord.DeleteOptimistic(ctx, id)
	if err != nil {
		return nil, v.fail(err)
	}
	v.fail(nil)
	return p, nil
}

func (v *StateAgencyView) fail(err error) error {
	v.mu.Lock()
	v.lastError = coordinator.UserMessage(err)
	v.mu.Unlock()
	return err
}
