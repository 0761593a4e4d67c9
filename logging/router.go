package logging

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

type NamedSink struct {
	Name string
	Sink Sink
}

// SinkStats counts what one sink has accepted.
type SinkStats struct {
	Name     string `json:"name"`
	Written  uint64 `json:"written"`
	Dropped  uint64 `json:"dropped"`
	Failures uint64 `json:"failures"`
}

// RouterStats is a point-in-time view of the router counters. Published
// counts events accepted onto the queue; Filtered ones fell below the
// severity floor and Dropped ones found the queue full.
type RouterStats struct {
	Published  uint64            `json:"published"`
	Filtered   uint64            `json:"filtered"`
	Dropped    uint64            `json:"dropped"`
	ByCategory map[string]uint64 `json:"byCategory"`
	Sinks      []SinkStats       `json:"sinks"`
}

// Router fans events out to sinks on background workers. Publish never
// blocks the capture path: a full queue drops the event and counts it.
type Router struct {
	clock       Clock
	fallback    *log.Logger
	minSeverity Severity
	fields      map[string]any
	dropWarn    time.Duration

	queue   chan Event
	workers []*sinkWorker
	stop    chan struct{}
	done    chan struct{}
	closed  atomic.Bool

	closeSinks sync.Once
	closeErr   error

	published    atomic.Uint64
	filtered     atomic.Uint64
	dropped      atomic.Uint64
	nextDropWarn atomic.Int64

	categoryMu sync.Mutex
	categories map[string]uint64
}

func NewRouter(clock Clock, cfg Config, namedSinks []NamedSink) (*Router, error) {
	if clock == nil {
		clock = ClockFunc(time.Now)
	}
	queueSize := cfg.BufferSize
	if queueSize <= 0 {
		queueSize = 512
	}
	dropWarn := cfg.DropWarnInterval
	if dropWarn <= 0 {
		dropWarn = 5 * time.Second
	}
	r := &Router{
		clock:       clock,
		fallback:    log.New(os.Stderr, "[logging] ", log.LstdFlags),
		minSeverity: cfg.MinimumSeverity,
		fields:      cfg.CloneFields(),
		dropWarn:    dropWarn,
		queue:       make(chan Event, queueSize),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		categories:  make(map[string]uint64),
	}

	backlog := min(max(queueSize, 32), 1024)
	for _, named := range namedSinks {
		if named.Sink == nil {
			continue
		}
		r.workers = append(r.workers, &sinkWorker{
			name:     named.Name,
			sink:     named.Sink,
			events:   make(chan Event, backlog),
			fallback: r.fallback,
		})
	}

	var wg sync.WaitGroup
	wg.Add(1 + len(r.workers))
	go func() {
		defer wg.Done()
		r.dispatch()
	}()
	for _, worker := range r.workers {
		go func(w *sinkWorker) {
			defer wg.Done()
			w.run(r.stop)
		}(worker)
	}
	go func() {
		wg.Wait()
		close(r.done)
	}()
	return r, nil
}

// Publish queues event for the sinks. Fields attached to ctx with
// ContextWithFields are merged into the event's Extra.
func (r *Router) Publish(ctx context.Context, event Event) {
	if event.Type == "" || r.closed.Load() {
		return
	}
	if ctx != nil {
		event = mergeFields(event, FieldsFromContext(ctx))
	}
	select {
	case r.queue <- event:
		r.published.Add(1)
	default:
		r.dropped.Add(1)
		r.warnDrop(event)
	}
}

func (r *Router) warnDrop(event Event) {
	now := time.Now().UnixNano()
	next := r.nextDropWarn.Load()
	if now < next {
		return
	}
	if r.nextDropWarn.CompareAndSwap(next, now+r.dropWarn.Nanoseconds()) {
		r.fallback.Printf("queue full, dropping %s (cycle %d, %d dropped so far)", event.Type, event.Cycle, r.dropped.Load())
	}
}

func (r *Router) dispatch() {
	defer func() {
		for _, worker := range r.workers {
			close(worker.events)
		}
	}()
	for {
		select {
		case event := <-r.queue:
			r.route(event)
		case <-r.stop:
			for {
				select {
				case event := <-r.queue:
					r.route(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Router) route(event Event) {
	if event.Severity < r.minSeverity {
		r.filtered.Add(1)
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	event = mergeFields(event, r.fields)

	category := event.Category
	if category == "" {
		category = "uncategorized"
	}
	r.categoryMu.Lock()
	r.categories[category]++
	r.categoryMu.Unlock()

	for _, worker := range r.workers {
		worker.offer(event)
	}
}

// Close stops accepting events, flushes what is queued and closes every
// sink. Calling it again waits for the same shutdown.
func (r *Router) Close(ctx context.Context) error {
	if r.closed.CompareAndSwap(false, true) {
		close(r.stop)
	}
	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	r.closeSinks.Do(func() {
		for _, worker := range r.workers {
			if err := worker.sink.Close(ctx); err != nil && r.closeErr == nil {
				r.closeErr = err
			}
		}
	})
	return r.closeErr
}

func (r *Router) Stats() RouterStats {
	stats := RouterStats{
		Published:  r.published.Load(),
		Filtered:   r.filtered.Load(),
		Dropped:    r.dropped.Load(),
		ByCategory: make(map[string]uint64),
		Sinks:      make([]SinkStats, 0, len(r.workers)),
	}
	r.categoryMu.Lock()
	for category, n := range r.categories {
		stats.ByCategory[category] = n
	}
	r.categoryMu.Unlock()
	for _, worker := range r.workers {
		stats.Sinks = append(stats.Sinks, SinkStats{
			Name:     worker.name,
			Written:  worker.written.Load(),
			Dropped:  worker.dropped.Load(),
			Failures: worker.failures.Load(),
		})
	}
	return stats
}

type sinkWorker struct {
	name     string
	sink     Sink
	events   chan Event
	fallback *log.Logger

	written  atomic.Uint64
	dropped  atomic.Uint64
	failures atomic.Uint64
	// streak counts consecutive failures and drives the retry backoff.
	streak int
}

func (w *sinkWorker) offer(event Event) {
	select {
	case w.events <- cloneEvent(event):
	default:
		if w.dropped.Add(1) == 1 {
			w.fallback.Printf("sink %s backlog full, dropping %s", w.name, event.Type)
		}
	}
}

// run writes until the dispatcher closes the channel. After a failure the
// next write waits out a capped exponential backoff, cut short by stop so
// shutdown can flush.
func (w *sinkWorker) run(stop <-chan struct{}) {
	for event := range w.events {
		if w.streak > 0 {
			delay := time.Duration(1<<min(w.streak, 5)) * time.Second
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-stop:
				timer.Stop()
			}
		}
		if err := w.sink.Write(event); err != nil {
			w.streak++
			w.failures.Add(1)
			w.fallback.Printf("sink %s failed: %v (failure %d)", w.name, err, w.streak)
			continue
		}
		w.streak = 0
		w.written.Add(1)
	}
}
