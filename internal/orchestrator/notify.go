package orchestrator

import (
	"sync"

	"github.com/tphakala/vidguard/internal/logger"
	"github.com/tphakala/vidguard/internal/moderation"
)

// Notifier receives a copy of a job after every persisted change. Notify is
// called from a single goroutine in the order changes were made.
type Notifier interface {
	Notify(job *moderation.Job)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(job *moderation.Job)

func (f NotifierFunc) Notify(job *moderation.Job) { f(job) }

// dispatcher fans job changes out to notifiers without blocking the writer.
type dispatcher struct {
	notifiers []Notifier
	size      int

	mu      sync.Mutex
	ch      chan *moderation.Job
	done    chan struct{}
	dropped uint64
}

func newDispatcher(notifiers []Notifier, size int) *dispatcher {
	return &dispatcher{notifiers: notifiers, size: size}
}

func (d *dispatcher) start() {
	if len(d.notifiers) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ch != nil {
		return
	}
	d.ch = make(chan *moderation.Job, d.size)
	d.done = make(chan struct{})
	go d.loop(d.ch, d.done)
}

func (d *dispatcher) loop(ch <-chan *moderation.Job, done chan<- struct{}) {
	defer close(done)
	for job := range ch {
		for _, n := range d.notifiers {
			d.deliver(n, job)
		}
	}
}

func (d *dispatcher) deliver(n Notifier, job *moderation.Job) {
	defer func() {
		if rec := recover(); rec != nil {
			GetLogger().Error("notifier panicked", logger.JobID(job.ID), logger.Any("panic", rec))
		}
	}()
	n.Notify(job)
}

// publish queues job for delivery, dropping it when the buffer is full.
func (d *dispatcher) publish(job *moderation.Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ch == nil {
		return
	}
	select {
	case d.ch <- job:
	default:
		d.dropped++
		GetLogger().Warn("notification buffer full, dropping job update",
			logger.JobID(job.ID),
			logger.Uint64("dropped_total", d.dropped))
	}
}

// stop drains pending notifications and waits for the loop to exit.
func (d *dispatcher) stop() {
	d.mu.Lock()
	ch, done := d.ch, d.done
	d.ch = nil
	d.mu.Unlock()
	if ch == nil {
		return
	}
	close(ch)
	<-done
}
