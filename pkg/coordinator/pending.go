package coordinator

import (
	"context"

	"github.com/civisight/portal/pkg/models"
)

// Pending is the handle of an optimistic mutation whose remote half is still
// running.
type Pending struct {
	// LocalID is the placeholder id for creates and the deleted id for deletes.
	LocalID  string
	CountyID string

	done chan struct{}
	task *models.Task
	err  error
}

func newPending(localID, countyID string) *Pending {
	return &Pending{LocalID: localID, CountyID: countyID, done: make(chan struct{})}
}

func (p *Pending) resolve(task *models.Task, err error) {
	p.task, p.err = task, err
	close(p.done)
}

// Done is closed once the mutation settled.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the mutation settled or ctx is done. For creates the
// confirmed task is returned.
func (p *Pending) Wait(ctx context.Context) (*models.Task, error) {
	select {
	case <-p.done:
		return p.task, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GlobalPending tracks one create per county.
type GlobalPending struct {
	// ByCounty maps county id to that county's create.
	ByCounty map[string]*Pending
}

// GlobalResult splits a settled global create by outcome.
type GlobalResult struct {
	Confirmed map[string]*models.Task
	Failed    map[string]error
}

// Wait blocks until every county settled. Partial failure is reported in
// Failed, not as an error; the error is only ctx's.
func (g *GlobalPending) Wait(ctx context.Context) (GlobalResult, error) {
	res := GlobalResult{Confirmed: map[string]*models.Task{}, Failed: map[string]error{}}
	for countyID, p := range g.ByCounty {
		task, err := p.Wait(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		if err != nil {
			res.Failed[countyID] = err
			continue
		}
		res.Confirmed[countyID] = task
	}
	return res, nil
}
