// Package events delivers task change events to the task events queue off the
// request path.
package events

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"quicktask/domain"
)

// Publisher delivers a single task event.
type Publisher interface {
	PublishTaskEvent(ctx context.Context, ev domain.TaskEvent) error
}

// Options tune the sender's worker pool.
type Options struct {
	Workers        int
	Buffer         int
	Timeout        time.Duration
	HandoffTimeout time.Duration
}

const (
	minWorkers    = 4
	maxWorkers    = 64
	workersPerCPU = 4
	bufferPerWork = 128
)

// DefaultOptions sizes the pool for the given CPU count.
func DefaultOptions(cpu int) Options {
	workers := cpu * workersPerCPU
	if workers < minWorkers {
		workers = minWorkers
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}
	return Options{
		Workers:        workers,
		Buffer:         workers * bufferPerWork,
		Timeout:        30 * time.Second,
		HandoffTimeout: 15 * time.Millisecond,
	}
}

// Sender publishes task events through a bounded worker pool. When the buffer
// stays full past the handoff timeout the event is published inline.
type Sender struct {
	sink    Publisher
	log     *log.Logger
	jobs    chan domain.TaskEvent
	timeout time.Duration
	handoff time.Duration
	wg      sync.WaitGroup
	stop    sync.Once
}

// NewSender starts the worker pool.
func NewSender(sink Publisher, opts Options, logger *log.Logger) *Sender {
	if sink == nil {
		panic("events.NewSender: publisher is nil")
	}
	if logger == nil {
		panic("Logger is not initialized")
	}
	if opts.Workers <= 0 {
		opts.Workers = minWorkers
	}
	if opts.Buffer < 0 {
		opts.Buffer = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	s := &Sender{
		sink:    sink,
		log:     logger,
		jobs:    make(chan domain.TaskEvent, opts.Buffer),
		timeout: opts.Timeout,
		handoff: opts.HandoffTimeout,
	}
	for i := 0; i < opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	logger.Infof("task event sender started, workers: %d, buffer: %d, timeout: %v, handoff: %v", opts.Workers, opts.Buffer, opts.Timeout, opts.HandoffTimeout)
	return s
}

// Publish stamps ev and hands it to the pool. Delivery failures are logged and
// never returned to the caller.
func (s *Sender) Publish(ctx context.Context, ev domain.TaskEvent) {
	ev.Timestamp = nextTimestamp()
	if s.tryHandoff(ev) {
		return
	}
	s.log.Debugf("event buffer saturated, publishing inline, type: %s, task: %s", ev.Type, ev.TaskID)
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	s.deliver(pctx, ev, -1)
}

// Close stops accepting events and waits for queued ones to be delivered.
func (s *Sender) Close() {
	s.stop.Do(func() { close(s.jobs) })
	s.wg.Wait()
}

func (s *Sender) worker(id int) {
	defer s.wg.Done()
	for ev := range s.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		s.deliver(ctx, ev, id)
		cancel()
	}
}

func (s *Sender) deliver(ctx context.Context, ev domain.TaskEvent, worker int) {
	if err := s.sink.PublishTaskEvent(ctx, ev); err != nil {
		s.log.Errorf("publish task event failed, err: %v, type: %s, owner: %s, task: %s, worker: %d", err, ev.Type, ev.OwnerID, ev.TaskID, worker)
	}
}

func (s *Sender) tryHandoff(ev domain.TaskEvent) bool {
	if ok, closed := trySendNonBlocking(s.jobs, ev); closed {
		return false
	} else if ok {
		return true
	}

	if s.handoff <= 0 {
		return false
	}

	timer := time.NewTimer(s.handoff)
	defer timer.Stop()

	ok, _ := sendWithTimer(s.jobs, ev, timer.C)
	return ok
}

func trySendNonBlocking(ch chan domain.TaskEvent, ev domain.TaskEvent) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- ev:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan domain.TaskEvent, ev domain.TaskEvent, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- ev:
		return true, false
	case <-timer:
		return false, false
	}
}
