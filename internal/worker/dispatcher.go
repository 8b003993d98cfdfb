package worker

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/apex/log"

	"github.com/stemdeck/api/internal/model"
)

var ErrDispatcherClosed = errors.New("dispatcher is shut down")

// JobProcessor runs one conversion to completion.
type JobProcessor interface {
	Process(ctx context.Context, task model.ConversionTask)
}

// GoroutineDispatcher runs each job in its own goroutine inside the server
// process. Job contexts derive from the dispatcher, not from the request
// that submitted them.
type GoroutineDispatcher struct {
	processor JobProcessor
	base      context.Context
	stop      context.CancelFunc

	mu      sync.Mutex
	running map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

func NewGoroutineDispatcher(processor JobProcessor) *GoroutineDispatcher {
	base, stop := context.WithCancel(context.Background())
	return &GoroutineDispatcher{
		processor: processor,
		base:      base,
		stop:      stop,
		running:   make(map[string]context.CancelFunc),
	}
}

// Dispatch starts the job and returns immediately.
func (d *GoroutineDispatcher) Dispatch(_ context.Context, task model.ConversionTask) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	ctx, cancel := context.WithCancel(d.base)
	d.running[task.JobID] = cancel
	d.wg.Add(1)

	go func() {
		defer d.wg.Done()
		defer d.finish(task.JobID)
		d.processor.Process(ctx, task)
	}()
	return nil
}

func (d *GoroutineDispatcher) finish(jobID string) {
	d.mu.Lock()
	cancel, ok := d.running[jobID]
	delete(d.running, jobID)
	d.mu.Unlock()
	if ok {
		cancel()
	}
}

// Running returns the ids of jobs still in flight, sorted.
func (d *GoroutineDispatcher) Running() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.running))
	for id := range d.running {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Cancel aborts a running job. The job still records its own ERROR state.
func (d *GoroutineDispatcher) Cancel(jobID string) bool {
	d.mu.Lock()
	cancel, ok := d.running[jobID]
	d.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Wait blocks until every dispatched job has returned.
func (d *GoroutineDispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown refuses new jobs, cancels running ones and waits for them to
// record their outcome, or for ctx to end.
func (d *GoroutineDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	inFlight := len(d.running)
	d.mu.Unlock()

	if inFlight > 0 {
		log.WithField("jobs", inFlight).Warn("canceling running conversions")
	}
	d.stop()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
