package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/civisight/portal/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTasksView(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }
	lists := map[string][]*models.Task{
		"c1": {
			{ID: "a1", CountyID: "c1", Title: "Audit", Deadline: day(20), Status: models.TaskStatusPending},
			{ID: "b1", CountyID: "c1", Title: "Budget", Deadline: day(5), Status: models.TaskStatusCompleted},
		},
		"c2": {
			{ID: "a2", CountyID: "c2", Title: "Audit", Deadline: day(20), Status: models.TaskStatusPending},
		},
		"c3": {
			{ID: "a3", CountyID: "c3", Title: "Audit", Deadline: day(20), Status: models.TaskStatusInProgress},
			{ID: "r3", CountyID: "c3", Title: "Roads", Deadline: day(10), Status: models.TaskStatusPending},
		},
	}
	store := &fakeStore{
		list: func(ctx context.Context, id string) ([]*models.Task, error) { return lists[id], nil },
	}
	c := newTestCoordinator(t, store, "c1", "c2", "c3")

	byDeadline := c.Tasks(TaskView{Sort: SortByDeadline})
	require.Len(t, byDeadline, 3)
	assert.Equal(t, []string{"Budget", "Roads", "Audit"}, titles(byDeadline))

	audit := byDeadline[2]
	assert.Len(t, audit.Counties, 3)
	assert.Equal(t, map[string]string{"c1": "a1", "c2": "a2", "c3": "a3"}, audit.TaskIDs)
	assert.Equal(t, CountyRef{ID: "c1", Name: "County c1"}, audit.Counties[0])

	byCounties := c.Tasks(TaskView{Sort: SortByCounties})
	assert.Equal(t, "Audit", byCounties[0].Task.Title)

	pending := c.Tasks(TaskView{Status: models.TaskStatusPending})
	assert.Equal(t, []string{"Roads", "Audit"}, titles(pending))
	assert.Len(t, pending[1].Counties, 2)
}

func titles(list []AggregatedTask) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.Task.Title
	}
	return out
}
