package ws

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/VoiceMux/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Link is the client's connection to the authority.
type Link struct {
	conn        *Conn
	cancel      context.CancelFunc
	sendTimeout time.Duration
}

// Dial connects to url and starts delivering inbound packets to handle.
func Dial(ctx context.Context, url string, handle core.PacketHandler, opts Options, sendTimeout time.Duration) (*Link, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	conn := newConn(ws, url, opts)
	ctx, cancel := context.WithCancel(context.Background())
	go conn.writePump(ctx)
	go func() {
		defer cancel()
		conn.readPump(ctx, handle)
		log.Info().Str("module", "adapters.ws").Str("url", url).Msg("link closed")
	}()
	return &Link{conn: conn, cancel: cancel, sendTimeout: sendTimeout}, nil
}

// SendReliable waits up to the send timeout for room in the queue.
func (l *Link) SendReliable(packet []byte) error {
	ctx := context.Background()
	if l.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.sendTimeout)
		defer cancel()
	}
	return l.conn.Send(ctx, copyFrame(packet))
}

// SendUnreliable drops the packet when the queue is full.
func (l *Link) SendUnreliable(packet []byte) error {
	return l.conn.TrySend(copyFrame(packet))
}

// Done is closed when the link goes down.
func (l *Link) Done() <-chan struct{} { return l.conn.Done() }

func (l *Link) Close() {
	l.cancel()
	l.conn.Close()
}

// Callers recycle their buffers once a send returns.
func copyFrame(p []byte) core.Frame {
	return append(core.Frame(nil), p...)
}
