package signaling

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const writeTimeout = 10 * time.Second

var (
	errConnClosed = errors.New("connection closed")
	errQueueFull  = errors.New("send queue full")
)

// frameWriter writes one text frame to the peer.
type frameWriter func(ctx context.Context, frame []byte) error

// wsConn is a presence.Conn whose sends are queued and written by a single
// goroutine, so a slow peer never blocks the sender.
type wsConn struct {
	id    string
	write frameWriter
	queue chan []byte

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newWSConn(id string, write frameWriter, queueSize int) *wsConn {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &wsConn{
		id:    id,
		write: write,
		queue: make(chan []byte, queueSize),
		done:  make(chan struct{}),
	}
}

// ID returns the transport-level connection id.
func (c *wsConn) ID() string { return c.id }

// Send enqueues an event. A full queue drops the event.
func (c *wsConn) Send(event string, data any) error {
	frame, err := EncodeEnvelope(event, data)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	select {
	case c.queue <- frame:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		slog.Warn("Send queue full, dropping message", "conn", c.id, "event", event, "queue_len", len(c.queue))
		return errQueueFull
	}
}

// start runs the writer until ctx is done or a write fails; onFail is
// called on write failure so the reader can stop too.
func (c *wsConn) start(ctx context.Context, onFail func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case frame := <-c.queue:
				wctx, cancel := context.WithTimeout(ctx, writeTimeout)
				err := c.write(wctx, frame)
				cancel()
				if err != nil {
					if ctx.Err() == nil {
						slog.Debug("WebSocket write error", "conn", c.id, "error", err)
					}
					if onFail != nil {
						onFail()
					}
					return
				}
			}
		}
	}()
}

// close stops the writer and waits for it. Pending frames are discarded.
func (c *wsConn) close() {
	c.closeOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}
