package broadcast

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// SendQueueSize bounds the frames waiting for one subscriber's writer.
	SendQueueSize = 32
	// WriteWait is the deadline applied to every socket write.
	WriteWait = 10 * time.Second
)

var (
	ErrQueueFull = errors.New("subscriber queue full")
	ErrClosed    = errors.New("subscriber closed")
)

// Conn is the write side of a client connection.
type Conn interface {
	Write(data []byte) error
	SetWriteDeadline(deadline time.Time) error
	Close() error
}

// Marshaler encodes outbound messages for one wire format.
type Marshaler interface {
	Name() string
	Marshal(v any) ([]byte, error)
}

// QueueTelemetry observes subscriber backlog.
type QueueTelemetry interface {
	RecordSubscriberQueueDepth(depth int)
	RecordSubscriberQueueDrop(depth int)
}

type websocketConn struct {
	conn        *websocket.Conn
	messageType int
}

// NewWebsocketConn adapts a gorilla connection. Binary codecs are sent as
// binary frames, everything else as text.
func NewWebsocketConn(conn *websocket.Conn, binary bool) Conn {
	messageType := websocket.TextMessage
	if binary {
		messageType = websocket.BinaryMessage
	}
	return &websocketConn{conn: conn, messageType: messageType}
}

func (c *websocketConn) Write(data []byte) error {
	return c.conn.WriteMessage(c.messageType, data)
}

func (c *websocketConn) SetWriteDeadline(deadline time.Time) error {
	return c.conn.SetWriteDeadline(deadline)
}

func (c *websocketConn) Close() error {
	return c.conn.Close()
}

// Subscriber owns one connection's outbound queue and the goroutine that
// drains it. Enqueue never blocks.
type Subscriber struct {
	id        string
	conn      Conn
	codec     Marshaler
	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
	resync    atomic.Bool
	now       func() time.Time
	telemetry QueueTelemetry
	onError   func(*Subscriber, error)

	mu sync.Mutex
}

func newSubscriber(id string, conn Conn, codec Marshaler, now func() time.Time, telemetry QueueTelemetry, onError func(*Subscriber, error)) *Subscriber {
	if now == nil {
		now = time.Now
	}
	sub := &Subscriber{
		id:        id,
		conn:      conn,
		codec:     codec,
		queue:     make(chan []byte, SendQueueSize),
		done:      make(chan struct{}),
		now:       now,
		telemetry: telemetry,
		onError:   onError,
	}
	go sub.run()
	return sub
}

// Enqueue schedules data for delivery. A full queue drops the frame and
// flags the subscriber for resync.
func (s *Subscriber) Enqueue(data []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.queue <- data:
		if s.telemetry != nil {
			s.telemetry.RecordSubscriberQueueDepth(len(s.queue))
		}
		return nil
	default:
		s.resync.Store(true)
		if s.telemetry != nil {
			s.telemetry.RecordSubscriberQueueDrop(len(s.queue))
		}
		return ErrQueueFull
	}
}

// NeedsResync reports whether a frame was dropped since the last resync.
func (s *Subscriber) NeedsResync() bool {
	return s.resync.Load()
}

func (s *Subscriber) clearResync() {
	s.resync.Store(false)
}

// Close stops the writer. Queued frames are discarded.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case data := <-s.queue:
			if err := s.write(data); err != nil {
				s.Close()
				if s.onError != nil {
					s.onError(s, err)
				}
				return
			}
			if s.telemetry != nil {
				s.telemetry.RecordSubscriberQueueDepth(len(s.queue))
			}
		}
	}
}

func (s *Subscriber) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(s.now().Add(WriteWait)); err != nil {
		return err
	}
	return s.conn.Write(data)
}
