// Package voice implements the channel lifecycle on the sending side and the
// per speaker state machine on the receiving side.
package voice

import (
	"sync"
	"time"

	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/dkeye/VoiceMux/internal/protocol"
	"github.com/dkeye/VoiceMux/internal/staging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultActiveTimeout   = 1500 * time.Millisecond
	DefaultInactiveTimeout = 15 * time.Second
)

// Listener describes what the local peer is listening to.
type Listener interface {
	LocalID() (domain.PeerID, bool)
	ListeningRoom(id domain.RoomID) (domain.RoomName, bool)
}

type Timeouts struct {
	// Active closes an open speaking session that went quiet.
	Active time.Duration
	// Inactive forgets the channel session baseline of a silent peer.
	Inactive time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Active <= 0 {
		t.Active = DefaultActiveTimeout
	}
	if t.Inactive <= 0 {
		t.Inactive = DefaultInactiveTimeout
	}
	return t
}

// Receiver turns one remote speaker's voice packets into speaking sessions.
// Receive runs on transport goroutines and CheckTimeout on the consumer.
type Receiver struct {
	peer     domain.PeerID
	events   *staging.EventQueue
	listener Listener
	timeouts Timeouts

	mu              sync.Mutex
	closed          bool
	open            bool
	receivedInitial bool
	session         protocol.SessionNumber
	remoteSeq       uint16
	localSeq        uint32
	lastPacket      time.Time
	channelSessions map[domain.ChannelKey]uint8
	// pending holds the channel sessions of the packet being parsed until it
	// is known to be well formed.
	pending []channelSession
}

type channelSession struct {
	key     domain.ChannelKey
	session uint8
}

func NewReceiver(peer domain.PeerID, events *staging.EventQueue, listener Listener, timeouts Timeouts) *Receiver {
	return &Receiver{
		peer:            peer,
		events:          events,
		listener:        listener,
		timeouts:        timeouts.withDefaults(),
		channelSessions: make(map[domain.ChannelKey]uint8),
	}
}

func (r *Receiver) Peer() domain.PeerID { return r.peer }

// Open reports whether a speaking session is in progress.
func (r *Receiver) Open() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// frame is what the channel list of one packet says about the local peer.
type frame struct {
	kept       int
	changed    int
	allClosing bool
	props      domain.ChannelProperties
}

// Receive consumes a voice packet whose header has been read from body.
func (r *Receiver) Receive(h protocol.VoiceHeader, body *protocol.Reader, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if r.receivedInitial {
		if d := protocol.WrappedDelta(r.session.Value, h.ChannelSession.Value, h.ChannelSession.Width); d < 0 {
			r.debug().Stringer("baseline", r.session).Stringer("packet", h.ChannelSession).Msg("dropped stale channel session")
			return
		}
	}

	f, payload, err := r.readChannels(body)
	if err != nil {
		r.debug().Err(err).Msg("dropped malformed voice packet")
		return
	}

	if !r.receivedInitial {
		r.receivedInitial = true
		r.session = h.ChannelSession
	}
	r.lastPacket = now
	for _, cs := range r.pending {
		r.channelSessions[cs.key] = cs.session
	}

	if f.kept == 0 {
		return
	}

	forcedReset := f.changed == f.kept
	if r.open && (h.ChannelSession.Value != r.session.Value || forcedReset) {
		r.stop()
	}

	switch {
	case !r.open && !f.allClosing:
		r.open = true
		r.session = h.ChannelSession
		r.remoteSeq = h.Sequence
		r.localSeq = 0
		r.events.Enqueue(staging.StartedSpeaking{Peer: r.peer})
		r.emit(r.localSeq, f.props, payload)
	case r.open:
		delta := protocol.WrappedDelta16(r.remoteSeq, h.Sequence)
		if delta == 0 {
			r.debug().Uint16("seq", h.Sequence).Msg("dropped duplicate voice packet")
			break
		}
		seq := int64(r.localSeq) + int64(delta)
		if seq < 0 {
			r.debug().Uint16("seq", h.Sequence).Msg("dropped voice packet from before the session start")
			break
		}
		if delta > 0 {
			r.localSeq = uint32(seq)
			r.remoteSeq = h.Sequence
		}
		r.emit(uint32(seq), f.props, payload)
	}

	if f.allClosing && r.open {
		r.stop()
	}
}

func (r *Receiver) debug() *zerolog.Event {
	return log.Debug().Str("module", "voice.receiver").Uint16("peer", uint16(r.peer))
}

func (r *Receiver) readChannels(body *protocol.Reader) (frame, []byte, error) {
	f := frame{allClosing: true, props: domain.ChannelProperties{Positional: true}}
	self, hasSelf := r.listener.LocalID()
	r.pending = r.pending[:0]
	payload, err := protocol.ReadVoiceChannels(body, func(ch protocol.ChannelDescriptor) {
		switch ch.Type {
		case domain.ChannelPlayer:
			if !hasSelf || domain.PeerID(ch.Recipient) != self {
				return
			}
		case domain.ChannelRoom:
			if _, ok := r.listener.ListeningRoom(domain.RoomID(ch.Recipient)); !ok {
				return
			}
		}
		f.kept++
		f.allClosing = f.allClosing && ch.Closing
		f.props.Positional = f.props.Positional && ch.Properties.Positional
		f.props.Amplitude = max(f.props.Amplitude, ch.Properties.Amplitude)
		f.props.Priority = max(f.props.Priority, ch.Properties.Priority)

		key := ch.Key()
		if prev, seen := r.channelSessions[key]; seen && prev != ch.Session.Value {
			f.changed++
		}
		r.pending = append(r.pending, channelSession{key: key, session: ch.Session.Value})
	})
	return f, payload, err
}

func (r *Receiver) emit(seq uint32, props domain.ChannelProperties, payload []byte) {
	r.events.Enqueue(staging.VoiceData{
		Peer:       r.peer,
		Sequence:   seq,
		Properties: props,
		Payload:    r.events.Payload(payload),
	})
}

func (r *Receiver) stop() {
	r.open = false
	r.events.Enqueue(staging.StoppedSpeaking{Peer: r.peer})
}

// CheckTimeout closes a silent speaking session, and forgets the baseline of
// a peer that has been silent long enough that its next packet starts afresh.
func (r *Receiver) CheckTimeout(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idle := now.Sub(r.lastPacket)
	switch {
	case r.open && idle > r.timeouts.Active:
		r.debug().Dur("idle", idle).Msg("speaking session timed out")
		r.stop()
	case !r.open && r.receivedInitial && idle > r.timeouts.Inactive:
		r.receivedInitial = false
		clear(r.channelSessions)
	}
}

// Close ends any open session; used when the peer leaves. A closed receiver
// ignores further packets.
func (r *Receiver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.open {
		r.stop()
	}
}
