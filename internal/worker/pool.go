// Package worker runs scheduling jobs on a bounded pool. Jobs are
// independent per (sensor, horizon) and CPU-bound in the solver, so the pool
// maps them onto parallel goroutines with a bounded queue in front.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gridflex/flexcore/core/logger"
	"github.com/gridflex/flexcore/core/metrics"
	"github.com/gridflex/flexcore/core/scheduler"
	"github.com/gridflex/flexcore/internal/eventbus"
)

// ErrQueueFull is returned when the job queue cannot accept more work.
var ErrQueueFull = errors.New("worker: job queue full")

// ErrClosed is returned when submitting to a stopped pool.
var ErrClosed = errors.New("worker: pool closed")

// JobPhase marks a lifecycle stage of a job.
type JobPhase string

const (
	PhaseQueued   JobPhase = "queued"
	PhaseStarted  JobPhase = "started"
	PhaseFinished JobPhase = "finished"
)

// JobEvent is published on the bus at each lifecycle stage.
type JobEvent struct {
	JobID    string
	SensorID string
	Phase    JobPhase
	Status   string
	Err      error
	Time     time.Time
}

// Job is one scheduling unit of work. Result and Err are valid after Wait
// returns.
type Job struct {
	ID      string
	Request scheduler.Request

	result scheduler.Schedule
	err    error
	done   chan struct{}
}

// Wait blocks until the job finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) (scheduler.Schedule, error) {
	select {
	case <-ctx.Done():
		return scheduler.Schedule{}, ctx.Err()
	case <-j.done:
		return j.result, j.err
	}
}

// Pool executes scheduling jobs with a fixed number of workers.
type Pool struct {
	sched *scheduler.Scheduler
	asm   *scheduler.Assembler
	sink  metrics.Sink
	bus   *eventbus.Bus[JobEvent]
	log   logger.Logger

	workers int
	jobs    chan *Job
	quit    chan struct{}

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
	now    func() time.Time
}

// New returns a Pool with the given worker count and queue depth.
func New(sched *scheduler.Scheduler, asm *scheduler.Assembler, sink metrics.Sink, log logger.Logger, workers, queue int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = workers
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Pool{
		sched:   sched,
		asm:     asm,
		sink:    sink,
		bus:     eventbus.New[JobEvent](),
		log:     log,
		workers: workers,
		jobs:    make(chan *Job, queue),
		quit:    make(chan struct{}),
		now:     time.Now,
	}
}

// Events returns a subscription to job lifecycle events.
func (p *Pool) Events() <-chan JobEvent { return p.bus.Subscribe() }

// Start launches the workers. They run until ctx is canceled or the pool is
// closed, then drain the queue of already-accepted jobs.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}
}

func (p *Pool) work(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			p.drain(ctx)
			return
		case <-p.quit:
			p.drain(ctx)
			return
		case job := <-p.jobs:
			p.run(ctx, job)
		}
	}
}

// drain runs what was already accepted, then returns. Each job still
// observes the worker context and finishes quickly when it is canceled.
func (p *Pool) drain(ctx context.Context) {
	for {
		select {
		case job := <-p.jobs:
			p.run(ctx, job)
		default:
			return
		}
	}
}

// Submit enqueues a job without blocking.
func (p *Pool) Submit(req scheduler.Request) (*Job, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	job := &Job{ID: uuid.NewString(), Request: req, done: make(chan struct{})}
	select {
	case p.jobs <- job:
	default:
		return nil, ErrQueueFull
	}
	p.bus.Publish(JobEvent{JobID: job.ID, SensorID: req.Sensor.ID, Phase: PhaseQueued, Time: p.now()})
	return job, nil
}

func (p *Pool) run(ctx context.Context, job *Job) {
	p.bus.Publish(JobEvent{JobID: job.ID, SensorID: job.Request.Sensor.ID, Phase: PhaseStarted, Time: p.now()})
	started := p.now()

	sched, err := p.sched.Schedule(ctx, job.Request)
	if err == nil && sched.Feasible && p.asm != nil {
		err = p.asm.Record(ctx, sched)
	}
	job.result, job.err = sched, err

	status := sched.Status.String()
	if err != nil {
		status = "error"
		p.log.Errorf("job %s for sensor %s failed: %v", job.ID, job.Request.Sensor.ID, err)
	}
	if serr := p.sink.RecordJobResult(metrics.JobResult{
		JobID:     job.ID,
		SensorID:  job.Request.Sensor.ID,
		Status:    status,
		Slots:     len(sched.Entries),
		Objective: sched.Objective,
		Backend:   p.sched.BackendName(),
		Duration:  p.now().Sub(started),
		Time:      started,
	}); serr != nil {
		p.log.Warnf("record job metrics: %v", serr)
	}
	p.bus.Publish(JobEvent{
		JobID:    job.ID,
		SensorID: job.Request.Sensor.ID,
		Phase:    PhaseFinished,
		Status:   status,
		Err:      err,
		Time:     p.now(),
	})
	close(job.done)
}

// Close stops accepting jobs, signals the workers to drain and exit, waits
// for them, and closes the event bus. It does not depend on the Start
// context being canceled.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	close(p.quit)
	p.wg.Wait()
	p.bus.Close()
}
