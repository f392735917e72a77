// Package ws carries protocol packets over gorilla websockets, one binary
// message per packet.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/VoiceMux/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait   = 5 * time.Second
	sendBacklog = 256
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
}

func (o Options) pongWait() time.Duration {
	if o.PingPeriod <= 0 {
		return 0
	}
	return o.PingPeriod * 10 / 9
}

// Conn owns a websocket and its outbound queue.
type Conn struct {
	conn *websocket.Conn
	send chan core.Frame
	opts Options
	id   string

	mu       sync.RWMutex
	closed   bool
	done     chan struct{}
	doneOnce sync.Once
}

func newConn(ws *websocket.Conn, id string, opts Options) *Conn {
	if opts.ReadLimit > 0 {
		ws.SetReadLimit(opts.ReadLimit)
	}
	return &Conn{
		conn: ws,
		send: make(chan core.Frame, sendBacklog),
		opts: opts,
		id:   id,
		done: make(chan struct{}),
	}
}

// TrySend queues f without blocking.
func (c *Conn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return core.ErrBackpressure
	}
}

// Send waits for room in the queue until ctx is done.
func (c *Conn) Send(ctx context.Context, f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	select {
	case c.send <- f:
		return nil
	case <-ctx.Done():
		return core.ErrBackpressure
	case <-c.done:
		return core.ErrClosed
	}
}

func (c *Conn) Close() {
	// Wakes blocked senders before the write lock is taken.
	c.doneOnce.Do(func() { close(c.done) })
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) writePump(ctx context.Context) {
	var ping <-chan time.Time
	if c.opts.PingPeriod > 0 {
		ticker := time.NewTicker(c.opts.PingPeriod)
		defer ticker.Stop()
		ping = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "adapters.ws").Str("conn", c.id).Msg("writePump ctx done")
			return
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "adapters.ws").Str("conn", c.id).Msg("writePump ping")
				c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "adapters.ws").Str("conn", c.id).Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "adapters.ws").Str("conn", c.id).Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

// readPump hands every binary message to handle until the socket fails.
func (c *Conn) readPump(ctx context.Context, handle core.PacketHandler) {
	defer c.Close()

	if wait := c.opts.pongWait(); wait > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(wait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(wait))
		})
	}
	for {
		if ctx.Err() != nil {
			return
		}
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "adapters.ws").Str("conn", c.id).Msg("readPump read error")
			}
			return
		}
		if kind != websocket.BinaryMessage {
			log.Debug().Str("module", "adapters.ws").Str("conn", c.id).Int("kind", kind).Msg("ignored non-binary message")
			continue
		}
		handle(data)
	}
}
