package coordinator

import (
	"sort"

	"github.com/civisight/portal/pkg/models"
)

// SortMode orders the aggregated task view.
type SortMode string

const (
	SortByDeadline SortMode = "deadline"
	// SortByCounties puts tasks shared by the most counties first.
	SortByCounties SortMode = "counties"
)

// TaskView selects and orders the all-counties task list.
type TaskView struct {
	Sort SortMode
	// Status keeps only tasks in this status when set.
	Status models.TaskStatus
}

// CountyRef names a county an aggregated task belongs to.
type CountyRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AggregatedTask is one task title across every county carrying it. Task is
// the first copy found, in county load order.
type AggregatedTask struct {
	Task     *models.Task `json:"task"`
	Counties []CountyRef  `json:"counties"`
	// TaskIDs holds each copy's current identifier, keyed by county id.
	TaskIDs map[string]string `json:"taskIds"`
}

// Tasks returns the aggregated view over all counties. Copies of a task
// created for several counties share a title and are grouped under it.
func (c *Coordinator) Tasks(view TaskView) []AggregatedTask {
	c.mu.Lock()
	var out []AggregatedTask
	byTitle := map[string]int{}
	for _, countyID := range c.order {
		county := c.counties[countyID]
		for _, t := range county.Tasks {
			if view.Status != "" && t.Status != view.Status {
				continue
			}
			ref := CountyRef{ID: county.ID, Name: county.Name}
			if i, ok := byTitle[t.Title]; ok {
				agg := &out[i]
				if _, seen := agg.TaskIDs[county.ID]; !seen {
					agg.Counties = append(agg.Counties, ref)
					agg.TaskIDs[county.ID] = t.Key()
				}
				continue
			}
			byTitle[t.Title] = len(out)
			out = append(out, AggregatedTask{
				Task:     t.Clone(),
				Counties: []CountyRef{ref},
				TaskIDs:  map[string]string{county.ID: t.Key()},
			})
		}
	}
	c.mu.Unlock()

	switch view.Sort {
	case SortByCounties:
		sort.SliceStable(out, func(i, j int) bool {
			return len(out[i].Counties) > len(out[j].Counties)
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Task.Deadline.Before(out[j].Task.Deadline)
		})
	}
	return out
}
