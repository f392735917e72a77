package voice

import (
	"testing"
	"time"

	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/dkeye/VoiceMux/internal/pool"
	"github.com/dkeye/VoiceMux/internal/protocol"
	"github.com/dkeye/VoiceMux/internal/staging"
	"github.com/stretchr/testify/require"
)

type fakeListener struct {
	id    domain.PeerID
	rooms map[domain.RoomID]domain.RoomName
}

func newListener(id domain.PeerID, rooms ...domain.RoomName) *fakeListener {
	l := &fakeListener{id: id, rooms: make(map[domain.RoomID]domain.RoomName)}
	for _, r := range rooms {
		l.rooms[r.ID()] = r
	}
	return l
}

func (l *fakeListener) LocalID() (domain.PeerID, bool) { return l.id, l.id != domain.NoPeer }

func (l *fakeListener) ListeningRoom(id domain.RoomID) (domain.RoomName, bool) {
	r, ok := l.rooms[id]
	return r, ok
}

// voiceEvent is a VoiceData with the payload copied out of the pool.
type voiceEvent struct {
	Peer     domain.PeerID
	Sequence uint32
	Props    domain.ChannelProperties
	Payload  string
}

func drain(t *testing.T, q *staging.EventQueue) []any {
	t.Helper()
	var out []any
	id := q.Subscribe(staging.ObserverFunc(func(ev staging.Event) error {
		if v, ok := ev.(staging.VoiceData); ok {
			out = append(out, voiceEvent{Peer: v.Peer, Sequence: v.Sequence, Props: v.Properties, Payload: string(v.Payload.Bytes())})
			return nil
		}
		out = append(out, ev)
		return nil
	}))
	defer q.Unsubscribe(id)
	require.False(t, q.Dispatch(time.Time{}))
	return out
}

func seqs(events []any) []uint32 {
	var out []uint32
	for _, ev := range events {
		if v, ok := ev.(voiceEvent); ok {
			out = append(out, v.Sequence)
		}
	}
	return out
}

func toPlayer(id domain.PeerID, session uint8) protocol.ChannelDescriptor {
	return protocol.ChannelDescriptor{
		Type:       domain.ChannelPlayer,
		Recipient:  uint16(id),
		Properties: domain.DefaultProperties(),
		Session:    protocol.ExtendedSession(session),
	}
}

func toRoom(room domain.RoomName, session uint8) protocol.ChannelDescriptor {
	return protocol.ChannelDescriptor{
		Type:       domain.ChannelRoom,
		Recipient:  uint16(room.ID()),
		Properties: domain.DefaultProperties(),
		Session:    protocol.ExtendedSession(session),
	}
}

func closing(ch protocol.ChannelDescriptor) protocol.ChannelDescriptor {
	ch.Closing = true
	return ch
}

type harness struct {
	t   *testing.T
	q   *staging.EventQueue
	r   *Receiver
	now time.Time
}

func newHarness(t *testing.T, local domain.PeerID, rooms ...domain.RoomName) *harness {
	q := staging.NewEventQueue(pool.NewBytes(64))
	return &harness{
		t:   t,
		q:   q,
		r:   NewReceiver(9, q, newListener(local, rooms...), Timeouts{}),
		now: time.Unix(500, 0),
	}
}

func voicePacket(session protocol.SessionNumber, seq uint16, channels ...protocol.ChannelDescriptor) *protocol.VoicePacket {
	return &protocol.VoicePacket{
		SenderID:       9,
		ChannelSession: session,
		Sequence:       seq,
		Channels:       channels,
		Payload:        []byte{byte(seq)},
	}
}

func (h *harness) deliver(session uint8, seq uint16, channels ...protocol.ChannelDescriptor) {
	h.t.Helper()
	h.deliverPacket(voicePacket(protocol.ExtendedSession(session), seq, channels...), 0)
}

// deliverTruncated sends a packet whose last channel entry is cut short.
func (h *harness) deliverTruncated(session uint8, seq uint16, channels ...protocol.ChannelDescriptor) {
	h.t.Helper()
	require.NotEmpty(h.t, channels)
	// one payload byte plus three of the six bytes of the last entry
	h.deliverPacket(voicePacket(protocol.ExtendedSession(session), seq, channels...), 4)
}

func (h *harness) deliverPacket(pkt *protocol.VoicePacket, cut int) {
	h.t.Helper()
	data := protocol.AppendVoice(nil, 1, pkt)
	data = data[:len(data)-cut]
	_, body, err := protocol.Decode(data)
	require.NoError(h.t, err)
	vh, err := protocol.ReadVoiceHeader(body)
	require.NoError(h.t, err)
	h.r.Receive(vh, body, h.now)
}

func (h *harness) events() []any {
	h.t.Helper()
	return drain(h.t, h.q)
}
