// Package text sends and receives chat messages over the same channels as voice.
package text

import (
	"errors"

	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/dkeye/VoiceMux/internal/pool"
	"github.com/dkeye/VoiceMux/internal/protocol"
	"github.com/dkeye/VoiceMux/internal/staging"
	"github.com/dkeye/VoiceMux/internal/voice"
	"github.com/rs/zerolog/log"
)

// MaxLength bounds a message so it always fits a str16 field.
const MaxLength = 4096

var (
	ErrNotConnected = errors.New("not connected")
	ErrEmpty        = errors.New("empty message")
	ErrTooLong      = errors.New("message too long")
	ErrNoRecipients = errors.New("no recipients")
)

// Queue accepts encoded text packets for peers.
type Queue interface {
	Packet(fn func(dst []byte) []byte) pool.Buffer
	EnqueueReliableP2P(dests []domain.PeerID, packet pool.Buffer)
}

type Sender struct {
	identity voice.Identity
	dir      voice.Directory
	queue    Queue
}

func NewSender(identity voice.Identity, dir voice.Directory, queue Queue) *Sender {
	return &Sender{identity: identity, dir: dir, queue: queue}
}

func (s *Sender) SendToPlayer(id domain.PeerID, msg string) error {
	return s.send(domain.ChannelPlayer, uint16(id), []domain.PeerID{id}, msg)
}

func (s *Sender) SendToRoom(room domain.RoomName, msg string) error {
	return s.send(domain.ChannelRoom, uint16(room.ID()), s.dir.RoomMembers(room), msg)
}

func (s *Sender) send(t domain.ChannelType, recipient uint16, dests []domain.PeerID, msg string) error {
	switch {
	case msg == "":
		return ErrEmpty
	case len(msg) > MaxLength:
		return ErrTooLong
	}
	self, ok := s.identity.LocalID()
	if !ok {
		return ErrNotConnected
	}
	others := 0
	for _, id := range dests {
		if id != self {
			others++
		}
	}
	if others == 0 {
		return ErrNoRecipients
	}

	p := &protocol.TextPacket{SenderID: self, RecipientType: t, RecipientID: recipient, Text: msg}
	sessionID := s.identity.SessionID()
	s.queue.EnqueueReliableP2P(dests, s.queue.Packet(func(dst []byte) []byte {
		return protocol.AppendText(dst, sessionID, p)
	}))
	return nil
}

// Receiver raises TextMessage events for packets addressed to the local peer.
type Receiver struct {
	listener voice.Listener
	events   *staging.EventQueue
}

func NewReceiver(listener voice.Listener, events *staging.EventQueue) *Receiver {
	return &Receiver{listener: listener, events: events}
}

// Receive reports whether the message was meant for us.
func (r *Receiver) Receive(p *protocol.TextPacket) bool {
	msg := staging.TextMessage{
		Sender:        p.SenderID,
		RecipientType: p.RecipientType,
		Recipient:     p.RecipientID,
		Text:          p.Text,
	}
	switch p.RecipientType {
	case domain.ChannelPlayer:
		self, ok := r.listener.LocalID()
		if !ok || domain.PeerID(p.RecipientID) != self {
			log.Debug().Str("module", "text").Uint16("recipient", p.RecipientID).Msg("dropped text for another player")
			return false
		}
	case domain.ChannelRoom:
		room, ok := r.listener.ListeningRoom(domain.RoomID(p.RecipientID))
		if !ok {
			log.Debug().Str("module", "text").Uint16("room", p.RecipientID).Msg("dropped text for a room we are not in")
			return false
		}
		msg.Room = room
	default:
		return false
	}
	r.events.Enqueue(msg)
	return true
}
