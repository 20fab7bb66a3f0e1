package models

import "time"

// County is a county together with the tasks currently assigned to it.
type County struct {
	ID             string  `json:"id" db:"id"`
	Name           string  `json:"name" db:"name"`
	Population     int     `json:"population" db:"population"`
	Region         string  `json:"region" db:"region"`
	CompletionRate float64 `json:"completionRate" db:"completion_rate"`
	TaskCount      int     `json:"taskCount" db:"task_count"`

	// Tasks are kept in insertion order.
	Tasks []*Task `json:"tasks" db:"-"`
}

// Clone returns a deep copy of the county and its tasks.
func (c *County) Clone() *County {
	if c == nil {
		return nil
	}
	out := *c
	out.Tasks = make([]*Task, len(c.Tasks))
	for i, t := range c.Tasks {
		out.Tasks[i] = t.Clone()
	}
	return &out
}

// ActiveTaskCount counts tasks that are not completed.
func (c *County) ActiveTaskCount() int {
	n := 0
	for _, t := range c.Tasks {
		if t.Status != TaskStatusCompleted {
			n++
		}
	}
	return n
}

// CountyProfile is the contact sheet shown on the county dashboard.
type CountyProfile struct {
	CountyID  string    `json:"countyId" db:"county_id"`
	Name      string    `json:"name" db:"name" binding:"required"`
	Email     string    `json:"email" db:"email" binding:"omitempty,email"`
	Address   string    `json:"address" db:"address"`
	Phone     string    `json:"phone" db:"phone"`
	Website   string    `json:"website" db:"website"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
