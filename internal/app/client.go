// Package app runs the client side: one consumer goroutine calls Update
// while transport goroutines call HandlePacket.
package app

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/VoiceMux/internal/core"
	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/dkeye/VoiceMux/internal/pool"
	"github.com/dkeye/VoiceMux/internal/protocol"
	"github.com/dkeye/VoiceMux/internal/roster"
	"github.com/dkeye/VoiceMux/internal/session"
	"github.com/dkeye/VoiceMux/internal/staging"
	"github.com/dkeye/VoiceMux/internal/text"
	"github.com/dkeye/VoiceMux/internal/voice"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

const defaultBufferSize = 1500

var ErrNoServer = errors.New("no server link")

type Options struct {
	Name           string
	Codec          domain.CodecSettings
	ResendInterval time.Duration
	Timeouts       voice.Timeouts
	BufferSize     int
	Clock          core.Clock
	// Links creates direct peer links. Nil sends everything through the server.
	Links LinkFactory
}

type Client struct {
	opts Options

	buffers   *pool.Bytes
	sendQ     *staging.SendQueue
	events    *staging.EventQueue
	receivers *voice.Receivers
	roster    *roster.Roster
	voice     *voice.Sender
	textOut   *text.Sender
	textIn    *text.Receiver
	transport *transport

	neg    atomic.Pointer[session.Negotiator]
	rooms  *staging.Locked[map[domain.RoomName]struct{}]
	server atomic.Pointer[serverLink]

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	dialMu  sync.Mutex
	dialing map[domain.PeerID]DirectLink
}

type serverLink struct{ core.ServerLink }

func NewClient(opts Options) (*Client, error) {
	if err := domain.ValidateName(opts.Name); err != nil {
		return nil, err
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.Clock == nil {
		opts.Clock = core.SystemClock{}
	}
	c := &Client{
		opts:    opts,
		buffers: pool.NewBytes(opts.BufferSize),
		rooms:   staging.NewLocked(make(map[domain.RoomName]struct{})),
		dialing: make(map[domain.PeerID]DirectLink),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.neg.Store(session.NewNegotiator(session.New(opts.Name), opts.ResendInterval))

	c.sendQ = staging.NewSendQueue(c, c.buffers)
	c.events = staging.NewEventQueue(c.buffers)
	c.receivers = voice.NewReceivers(c.events, c, opts.Timeouts)
	c.roster = roster.New(c.events, c.receivers)
	c.voice = voice.NewSender(c, c.roster, c.sendQ)
	c.textOut = text.NewSender(c, c.roster, c.sendQ)
	c.textIn = text.NewReceiver(c, c.events)
	c.transport = &transport{c: c}
	return c, nil
}

// Start begins negotiating over link.
func (c *Client) Start(link core.ServerLink) {
	c.server.Store(&serverLink{link})
	c.neg.Load().Start()
	log.Info().Str("module", "app").Str("name", c.opts.Name).Msg("client started")
}

// Reconnect swaps the server link and negotiates a fresh session.
func (c *Client) Reconnect(link core.ServerLink) {
	if old := c.server.Swap(&serverLink{link}); old != nil && old.ServerLink != link {
		old.Close()
	}
	c.restart("reconnect")
}

// Stop drops all queued work and closes every link.
func (c *Client) Stop() {
	c.cancel()
	c.neg.Load().Disconnect()
	c.wg.Wait()
	c.closeDialing()
	c.roster.Clear()
	c.receivers.Reset()
	c.sendQ.Stop()
	c.events.Stop()
	if s := c.server.Swap(nil); s != nil {
		s.Close()
	}
	log.Info().Str("module", "app").Str("name", c.opts.Name).Msg("client stopped")
}

// Update runs one consumer tick: handshake resend, receive timeouts,
// event dispatch, then the outbound flush.
func (c *Client) Update(now time.Time) error {
	if c.neg.Load().Update(now) {
		req := protocol.HandshakeRequest{Name: c.opts.Name, Codec: c.opts.Codec}
		c.sendQ.EnqueueReliable(c.sendQ.Packet(func(dst []byte) []byte {
			return protocol.AppendHandshakeRequest(dst, req)
		}))
	}
	c.receivers.CheckTimeouts(now)
	if c.events.Dispatch(now) {
		log.Debug().Str("module", "app").Msg("observer errors during dispatch")
	}
	return c.sendQ.Flush(c.transport)
}

func (c *Client) restart(reason string) {
	next := session.NewNegotiator(session.New(c.opts.Name), c.opts.ResendInterval)
	old := c.neg.Swap(next)
	old.Disconnect()
	c.closeDialing()
	c.roster.Clear()
	c.receivers.Reset()
	next.Start()
	log.Info().Str("module", "app").Str("reason", reason).Msg("renegotiating session")
}

func (c *Client) State() session.State { return c.neg.Load().State() }

func (c *Client) LocalID() (domain.PeerID, bool) { return c.neg.Load().Session().LocalID() }

func (c *Client) SessionID() uint32 { return c.neg.Load().Session().SessionID() }

func (c *Client) LocalName() string { return c.opts.Name }

// ListeningRoom resolves a room id against the rooms this client joined.
func (c *Client) ListeningRoom(id domain.RoomID) (domain.RoomName, bool) {
	var (
		name  domain.RoomName
		found bool
	)
	c.rooms.With(func(m *map[domain.RoomName]struct{}) {
		for room := range *m {
			if room.ID() == id {
				name, found = room, true
				return
			}
		}
	})
	return name, found
}

// Rooms lists the rooms this client listens to.
func (c *Client) Rooms() []domain.RoomName {
	var out []domain.RoomName
	c.rooms.With(func(m *map[domain.RoomName]struct{}) {
		out = slices.Sorted(maps.Keys(*m))
	})
	return out
}

func (c *Client) JoinRoom(room domain.RoomName) error {
	if err := domain.ValidateName(string(room)); err != nil {
		return err
	}
	var added bool
	c.rooms.With(func(m *map[domain.RoomName]struct{}) {
		if _, ok := (*m)[room]; !ok {
			(*m)[room] = struct{}{}
			added = true
		}
	})
	if added {
		c.sendRoomDelta(room, true)
	}
	return nil
}

func (c *Client) LeaveRoom(room domain.RoomName) {
	var removed bool
	c.rooms.With(func(m *map[domain.RoomName]struct{}) {
		if _, ok := (*m)[room]; ok {
			delete(*m, room)
			removed = true
		}
	})
	if removed {
		c.sendRoomDelta(room, false)
	}
}

// sendRoomDelta is skipped before the handshake; the full state follows it.
func (c *Client) sendRoomDelta(room domain.RoomName, joined bool) {
	self, ok := c.LocalID()
	if !ok {
		return
	}
	sid := c.SessionID()
	d := protocol.DeltaClientState{Joined: joined, ID: self, Room: room}
	c.sendQ.EnqueueReliable(c.sendQ.Packet(func(dst []byte) []byte {
		return protocol.AppendDeltaClientState(dst, sid, d)
	}))
}

func (c *Client) Subscribe(obs staging.Observer) staging.SubscriptionID {
	return c.events.Subscribe(obs)
}

func (c *Client) Unsubscribe(id staging.SubscriptionID) bool {
	return c.events.Unsubscribe(id)
}

func (c *Client) Roster() *roster.Roster { return c.roster }

func (c *Client) Voice() *voice.Sender { return c.voice }

func (c *Client) Text() *text.Sender { return c.textOut }
