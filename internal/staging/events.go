package staging

import (
	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/dkeye/VoiceMux/internal/pool"
)

// Event is one inbound notification. The set of variants is closed.
type Event interface{ isEvent() }

type PeerJoined struct {
	Peer domain.PeerID
	Name string
}

type PeerLeft struct {
	Peer domain.PeerID
	Name string
}

type EnteredRoom struct {
	Peer domain.PeerID
	Room domain.RoomName
}

type ExitedRoom struct {
	Peer domain.PeerID
	Room domain.RoomName
}

type StartedSpeaking struct {
	Peer domain.PeerID
}

type StoppedSpeaking struct {
	Peer domain.PeerID
}

// VoiceData is one received audio frame. Payload belongs to the queue and is
// recycled once every observer has seen it; copy it to keep it.
type VoiceData struct {
	Peer       domain.PeerID
	Sequence   uint32
	Properties domain.ChannelProperties
	Payload    pool.Buffer
}

type TextMessage struct {
	Sender        domain.PeerID
	RecipientType domain.ChannelType
	Recipient     uint16
	Room          domain.RoomName
	Text          string
}

func (PeerJoined) isEvent()      {}
func (PeerLeft) isEvent()        {}
func (EnteredRoom) isEvent()     {}
func (ExitedRoom) isEvent()      {}
func (StartedSpeaking) isEvent() {}
func (StoppedSpeaking) isEvent() {}
func (VoiceData) isEvent()       {}
func (TextMessage) isEvent()     {}
