// Package broadcast fans server messages out to connected sessions without
// letting a slow client stall the sender.
package broadcast

import (
	"errors"
	"fmt"
	"time"

	"github.com/sasha-s/go-deadlock"

	"github.com/dimaspandu/pokecat-hunt/internal/telemetry"
)

var ErrUnknownSubscriber = errors.New("unknown subscriber")

type Config struct {
	Now     func() time.Time
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
}

// Channel is the set of live subscribers keyed by session id.
type Channel struct {
	mu      deadlock.RWMutex
	subs    map[string]*Subscriber
	now     func() time.Time
	logger  telemetry.Logger
	metrics telemetry.Metrics
	queue   QueueTelemetry
}

func NewChannel(cfg Config) *Channel {
	c := &Channel{
		subs:    make(map[string]*Subscriber),
		now:     cfg.Now,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = telemetry.Discard()
	}
	if c.metrics == nil {
		c.metrics = telemetry.WrapMetrics(nil)
	}
	c.queue = metricsQueueTelemetry{metrics: c.metrics}
	return c
}

// Subscribe registers conn for id, replacing and closing any previous
// subscriber with the same id.
func (c *Channel) Subscribe(id string, conn Conn, codec Marshaler) *Subscriber {
	sub := newSubscriber(id, conn, codec, c.now, c.queue, c.handleWriteError)
	c.mu.Lock()
	previous := c.subs[id]
	c.subs[id] = sub
	c.mu.Unlock()
	if previous != nil {
		previous.Close()
	}
	return sub
}

// Unsubscribe removes id. It reports whether a subscriber was removed.
func (c *Channel) Unsubscribe(id string) bool {
	c.mu.Lock()
	sub, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()
	if ok {
		sub.Close()
	}
	return ok
}

func (c *Channel) handleWriteError(sub *Subscriber, err error) {
	c.logger.Printf("failed to send update to %s: %v", sub.id, err)
	c.mu.Lock()
	if current, ok := c.subs[sub.id]; ok && current == sub {
		delete(c.subs, sub.id)
	}
	c.mu.Unlock()
	sub.conn.Close()
}

// Unicast queues msg for one subscriber.
func (c *Channel) Unicast(id string, msg any) error {
	c.mu.RLock()
	sub, ok := c.subs[id]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unicast %s: %w", id, ErrUnknownSubscriber)
	}
	data, err := sub.codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("unicast %s: %w", id, err)
	}
	if err := sub.Enqueue(data); err != nil {
		c.metrics.Add(telemetry.MetricBroadcastDrops, 1)
		return fmt.Errorf("unicast %s: %w", id, err)
	}
	return nil
}

// Broadcast queues msg for every subscriber not listed in except and
// returns how many accepted it. Each codec encodes the message once.
func (c *Channel) Broadcast(msg any, except ...string) int {
	return c.fanOut(msg, false, false, except)
}

// BroadcastSnapshot is Broadcast for full-state messages: delivery clears
// the subscriber's resync flag.
func (c *Channel) BroadcastSnapshot(msg any) int {
	return c.fanOut(msg, true, false, nil)
}

// Resync sends msg only to subscribers that dropped a frame since their
// last snapshot.
func (c *Channel) Resync(msg any) int {
	return c.fanOut(msg, true, true, nil)
}

func (c *Channel) fanOut(msg any, snapshot, onlyStale bool, except []string) int {
	c.mu.RLock()
	targets := make([]*Subscriber, 0, len(c.subs))
	for id, sub := range c.subs {
		if contains(except, id) || (onlyStale && !sub.NeedsResync()) {
			continue
		}
		targets = append(targets, sub)
	}
	c.mu.RUnlock()

	encoded := make(map[string][]byte, 2)
	delivered := 0
	for _, sub := range targets {
		name := sub.codec.Name()
		data, ok := encoded[name]
		if !ok {
			var err error
			data, err = sub.codec.Marshal(msg)
			if err != nil {
				c.logger.Printf("failed to marshal %T for %s codec: %v", msg, name, err)
				continue
			}
			encoded[name] = data
		}
		if err := sub.Enqueue(data); err != nil {
			if errors.Is(err, ErrQueueFull) {
				c.metrics.Add(telemetry.MetricBroadcastDrops, 1)
			}
			continue
		}
		if snapshot {
			sub.clearResync()
		}
		delivered++
	}
	return delivered
}

// Len reports the number of live subscribers.
func (c *Channel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// Close drops every subscriber.
func (c *Channel) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*Subscriber)
	c.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

type metricsQueueTelemetry struct {
	metrics telemetry.Metrics
}

func (m metricsQueueTelemetry) RecordSubscriberQueueDepth(depth int) {
	m.metrics.Store("subscriber_queue_depth", uint64(depth))
}

func (m metricsQueueTelemetry) RecordSubscriberQueueDrop(int) {
	m.metrics.Add("subscriber_queue_drops_total", 1)
}
