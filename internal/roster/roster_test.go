package roster

import (
	"testing"
	"time"

	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/dkeye/VoiceMux/internal/pool"
	"github.com/dkeye/VoiceMux/internal/protocol"
	"github.com/dkeye/VoiceMux/internal/staging"
	"github.com/dkeye/VoiceMux/internal/voice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLink struct {
	closed int
}

func (l *fakeLink) SendReliable([]byte) error   { return nil }
func (l *fakeLink) SendUnreliable([]byte) error { return nil }
func (l *fakeLink) Open() bool                  { return l.closed == 0 }
func (l *fakeLink) Close()                      { l.closed++ }

type noListener struct{}

func (noListener) LocalID() (domain.PeerID, bool)                    { return 1, true }
func (noListener) ListeningRoom(domain.RoomID) (domain.RoomName, bool) { return "", false }

func newRoster() (*Roster, *staging.EventQueue) {
	q := staging.NewEventQueue(pool.NewBytes(16))
	return New(q, voice.NewReceivers(q, noListener{}, voice.Timeouts{})), q
}

func events(t *testing.T, q *staging.EventQueue) []staging.Event {
	t.Helper()
	var out []staging.Event
	id := q.Subscribe(staging.ObserverFunc(func(ev staging.Event) error {
		out = append(out, ev)
		return nil
	}))
	defer q.Unsubscribe(id)
	q.Dispatch(time.Time{})
	return out
}

func snapshot(peers []protocol.PeerState, rooms ...protocol.RoomMembers) *protocol.HandshakeResponse {
	return &protocol.HandshakeResponse{LocalID: 1, Peers: peers, Rooms: rooms}
}

func TestApplySnapshotFromEmpty(t *testing.T) {
	r, q := newRoster()
	r.ApplySnapshot(snapshot(
		[]protocol.PeerState{{ID: 1, Name: "me"}, {ID: 2, Name: "bob"}},
		protocol.RoomMembers{Name: "lobby", Members: []domain.PeerID{1, 2}},
	))

	assert.ElementsMatch(t, []staging.Event{
		staging.PeerJoined{Peer: 1, Name: "me"},
		staging.PeerJoined{Peer: 2, Name: "bob"},
		staging.EnteredRoom{Peer: 1, Room: "lobby"},
		staging.EnteredRoom{Peer: 2, Room: "lobby"},
	}, events(t, q))

	bob, ok := r.ByName("bob")
	require.True(t, ok)
	assert.Equal(t, domain.PeerID(2), bob.ID)
	assert.Equal(t, []domain.RoomName{"lobby"}, bob.Rooms)
	assert.Equal(t, []domain.PeerID{1, 2}, r.RoomMembers("lobby"))
}

func TestApplySnapshotDiffs(t *testing.T) {
	r, q := newRoster()
	r.ApplySnapshot(snapshot(
		[]protocol.PeerState{{ID: 1, Name: "me"}, {ID: 2, Name: "bob"}, {ID: 3, Name: "eve"}},
		protocol.RoomMembers{Name: "lobby", Members: []domain.PeerID{1, 2, 3}},
	))
	events(t, q)

	// Id 3 now belongs to someone else, bob moved rooms, eve is gone.
	r.ApplySnapshot(snapshot(
		[]protocol.PeerState{{ID: 1, Name: "me"}, {ID: 2, Name: "bob"}, {ID: 3, Name: "zed"}},
		protocol.RoomMembers{Name: "lobby", Members: []domain.PeerID{1}},
		protocol.RoomMembers{Name: "war", Members: []domain.PeerID{2, 3}},
	))

	assert.Equal(t, []staging.Event{
		staging.ExitedRoom{Peer: 3, Room: "lobby"},
		staging.PeerLeft{Peer: 3, Name: "eve"},
		staging.PeerJoined{Peer: 3, Name: "zed"},
		staging.ExitedRoom{Peer: 2, Room: "lobby"},
		staging.EnteredRoom{Peer: 2, Room: "war"},
		staging.EnteredRoom{Peer: 3, Room: "war"},
	}, events(t, q))

	_, ok := r.ByName("eve")
	assert.False(t, ok)
	assert.Equal(t, []domain.RoomName{"lobby", "war"}, r.Rooms())
	assert.Equal(t, []domain.PeerID{2, 3}, r.RoomMembers("war"))
}

func TestPendingIntroductionAppliedOnJoin(t *testing.T) {
	r, q := newRoster()
	link := &fakeLink{}
	r.Introduce(5, link)
	assert.Equal(t, 1, r.PendingIntroductions())
	_, ok := r.Link(5)
	assert.False(t, ok)

	r.PeerJoined(&protocol.PeerState{ID: 5, Name: "carol", Rooms: []domain.RoomName{"lobby"}})
	got, ok := r.Link(5)
	require.True(t, ok)
	assert.Same(t, link, got)
	assert.Equal(t, 0, r.PendingIntroductions())
	assert.Equal(t, []staging.Event{
		staging.PeerJoined{Peer: 5, Name: "carol"},
		staging.EnteredRoom{Peer: 5, Room: "lobby"},
	}, events(t, q))

	r.PeerLeft(5)
	assert.Equal(t, 1, link.closed)
}

func TestPendingIntroductionAppliedOnSnapshot(t *testing.T) {
	r, _ := newRoster()
	link := &fakeLink{}
	r.Introduce(2, link)
	r.ApplySnapshot(snapshot([]protocol.PeerState{{ID: 2, Name: "bob"}}))
	got, ok := r.Link(2)
	require.True(t, ok)
	assert.Same(t, link, got)
}

func TestIntroduceReplacesLink(t *testing.T) {
	r, _ := newRoster()
	r.PeerJoined(&protocol.PeerState{ID: 2, Name: "bob"})
	first, second := &fakeLink{}, &fakeLink{}
	r.Introduce(2, first)
	r.Introduce(2, second)
	assert.Equal(t, 1, first.closed)
	got, _ := r.Link(2)
	assert.Same(t, second, got)
}

func TestRoomDeltas(t *testing.T) {
	r, q := newRoster()
	r.PeerJoined(&protocol.PeerState{ID: 2, Name: "bob"})
	r.EnterRoom(2, "lobby")
	r.EnterRoom(2, "lobby")
	r.ExitRoom(2, "lobby")
	r.ExitRoom(2, "lobby")
	r.EnterRoom(9, "lobby")

	assert.Equal(t, []staging.Event{
		staging.PeerJoined{Peer: 2, Name: "bob"},
		staging.EnteredRoom{Peer: 2, Room: "lobby"},
		staging.ExitedRoom{Peer: 2, Room: "lobby"},
	}, events(t, q))
	assert.Empty(t, r.Rooms())
}

func TestPeerJoinedWithReusedName(t *testing.T) {
	r, q := newRoster()
	r.PeerJoined(&protocol.PeerState{ID: 2, Name: "bob"})
	r.PeerJoined(&protocol.PeerState{ID: 7, Name: "bob"})

	assert.Equal(t, []staging.Event{
		staging.PeerJoined{Peer: 2, Name: "bob"},
		staging.PeerLeft{Peer: 2, Name: "bob"},
		staging.PeerJoined{Peer: 7, Name: "bob"},
	}, events(t, q))
	assert.False(t, r.Has(2))
}

func TestReceiverLifetimeFollowsPeer(t *testing.T) {
	r, _ := newRoster()
	_, ok := r.Receiver(2)
	assert.False(t, ok, "no receiver for unknown peers")

	r.PeerJoined(&protocol.PeerState{ID: 2, Name: "bob"})
	a, ok := r.Receiver(2)
	require.True(t, ok)
	b, _ := r.Receiver(2)
	assert.Same(t, a, b)

	r.PeerLeft(2)
	r.PeerJoined(&protocol.PeerState{ID: 2, Name: "bob"})
	c, _ := r.Receiver(2)
	assert.NotSame(t, a, c)
}

func TestClear(t *testing.T) {
	r, q := newRoster()
	r.ApplySnapshot(snapshot([]protocol.PeerState{{ID: 1, Name: "me"}, {ID: 2, Name: "bob"}}))
	pending := &fakeLink{}
	r.Introduce(8, pending)
	events(t, q)

	r.Clear()
	assert.Empty(t, r.Peers())
	assert.Equal(t, 1, pending.closed)
	assert.Equal(t, []staging.Event{
		staging.PeerLeft{Peer: 1, Name: "me"},
		staging.PeerLeft{Peer: 2, Name: "bob"},
	}, events(t, q))
}
