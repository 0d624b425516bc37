package cron

import "context"

// Job is a unit of scheduled work. Name feeds logs and metrics labels.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the jobs a worker executes each tick, in registration order.
type Registry struct {
	jobs []Job
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{jobs: make([]Job, 0, len(jobs))}
	for _, j := range jobs {
		r.Register(j)
	}
	return r
}

// Register appends a job. Nil jobs are ignored.
func (r *Registry) Register(j Job) {
	if j == nil {
		return
	}
	r.jobs = append(r.jobs, j)
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}
