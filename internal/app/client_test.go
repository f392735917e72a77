package app

import (
	"testing"
	"time"

	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/dkeye/VoiceMux/internal/protocol"
	"github.com/dkeye/VoiceMux/internal/session"
	"github.com/dkeye/VoiceMux/internal/staging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = protocol.PeerState{ID: 2, Name: "alice"}
	bob   = protocol.PeerState{ID: 1, Name: "bob"}
)

func TestNewClientRejectsBadName(t *testing.T) {
	_, err := NewClient(Options{})
	assert.ErrorIs(t, err, domain.ErrNameEmpty)
}

func TestHandshakeIsResentUntilAnswered(t *testing.T) {
	c := newTestClient(t, "alice", nil)
	start := c.now

	require.NoError(t, c.Update(start))
	require.NoError(t, c.Update(start.Add(time.Second)))
	reliable, _ := c.wire.take()
	reqs := ofType(t, reliable, protocol.TypeHandshakeRequest)
	require.Len(t, reqs, 1)
	req, err := protocol.ParseHandshakeRequest(reqs[0])
	require.NoError(t, err)
	assert.Equal(t, "alice", req.Name)

	require.NoError(t, c.Update(start.Add(2*time.Second)))
	reliable, _ = c.wire.take()
	assert.Len(t, ofType(t, reliable, protocol.TypeHandshakeRequest), 1)
	assert.Equal(t, session.StateNegotiating, c.State())
}

func TestConnectAppliesSnapshotAndAnnouncesRooms(t *testing.T) {
	c := newTestClient(t, "alice", nil)
	require.NoError(t, c.JoinRoom("lobby"))

	c.connect(2, []protocol.PeerState{bob, alice}, []protocol.RoomMembers{{Name: "lobby", Members: []domain.PeerID{1}}})
	assert.Equal(t, session.StateConnected, c.State())
	assert.Equal(t, testSession, c.SessionID())

	assert.Equal(t, []any{
		staging.PeerJoined{Peer: 1, Name: "bob"},
		staging.PeerJoined{Peer: 2, Name: "alice"},
		staging.EnteredRoom{Peer: 1, Room: "lobby"},
		staging.EnteredRoom{Peer: 2, Room: "lobby"},
	}, c.events())
	assert.Equal(t, []domain.PeerID{1, 2}, c.Roster().RoomMembers("lobby"))

	reliable, _ := c.wire.take()
	states := ofType(t, reliable, protocol.TypeClientState)
	require.Len(t, states, 1)
	st, err := protocol.ParseClientState(states[0])
	require.NoError(t, err)
	assert.Equal(t, domain.PeerID(2), st.ID)
	assert.Equal(t, []domain.RoomName{"lobby"}, st.Rooms)
	assert.Empty(t, ofType(t, reliable, protocol.TypeDeltaClientState), "rooms joined before the handshake go in the full state")
}

func TestLateHandshakeResponseIsIgnored(t *testing.T) {
	c := newTestClient(t, "alice", nil)
	c.connect(2, []protocol.PeerState{alice}, nil)

	again := &protocol.HandshakeResponse{LocalID: 9, Peers: []protocol.PeerState{{ID: 9, Name: "alice"}}}
	c.HandlePacket(protocol.AppendHandshakeResponse(nil, testSession+1, again))
	assert.Equal(t, domain.PeerID(2), c.localID())
	assert.Equal(t, testSession, c.SessionID())
}

func TestPacketsFromAnotherSessionAreDropped(t *testing.T) {
	c := newTestClient(t, "alice", nil)
	carol := &protocol.PeerState{ID: 3, Name: "carol"}

	c.HandlePacket(protocol.AppendClientState(nil, testSession, carol))
	assert.False(t, c.Roster().Has(3), "not connected yet")

	c.connect(2, []protocol.PeerState{alice}, nil)
	c.HandlePacket(protocol.AppendClientState(nil, testSession+1, carol))
	assert.False(t, c.Roster().Has(3))

	c.HandlePacket(protocol.AppendClientState(nil, testSession, carol))
	assert.True(t, c.Roster().Has(3))
}

func TestRosterFollowsServerUpdates(t *testing.T) {
	c := newTestClient(t, "alice", nil)
	c.connect(2, []protocol.PeerState{bob, alice}, nil)
	c.events()

	c.HandlePacket(protocol.AppendDeltaClientState(nil, testSession, protocol.DeltaClientState{Joined: true, ID: 1, Room: "den"}))
	c.HandlePacket(protocol.AppendDeltaClientState(nil, testSession, protocol.DeltaClientState{Joined: false, ID: 1, Room: "den"}))
	c.HandlePacket(protocol.AppendRemoveClient(nil, testSession, 1))

	assert.Equal(t, []any{
		staging.EnteredRoom{Peer: 1, Room: "den"},
		staging.ExitedRoom{Peer: 1, Room: "den"},
		staging.PeerLeft{Peer: 1, Name: "bob"},
	}, c.events())
	assert.False(t, c.Roster().Has(1))
}

func TestRoomChangesAreSentAsDeltas(t *testing.T) {
	c := newTestClient(t, "alice", nil)
	c.connect(2, []protocol.PeerState{alice}, nil)
	c.tick()
	c.wire.take()

	require.NoError(t, c.JoinRoom("den"))
	require.NoError(t, c.JoinRoom("den"))
	c.LeaveRoom("den")
	c.LeaveRoom("den")
	assert.ErrorIs(t, c.JoinRoom(""), domain.ErrNameEmpty)
	c.tick()

	reliable, _ := c.wire.take()
	deltas := ofType(t, reliable, protocol.TypeDeltaClientState)
	require.Len(t, deltas, 2)
	first, err := protocol.ParseDeltaClientState(deltas[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.DeltaClientState{Joined: true, ID: 2, Room: "den"}, first)
	second, err := protocol.ParseDeltaClientState(deltas[1])
	require.NoError(t, err)
	assert.False(t, second.Joined)
	assert.Empty(t, c.Rooms())
}

func TestVoiceIsRelayedThroughServer(t *testing.T) {
	c := newTestClient(t, "alice", nil)
	c.connect(2, []protocol.PeerState{bob, alice}, nil)

	c.Voice().OpenPlayerChannel(1, domain.DefaultProperties())
	require.True(t, c.Voice().Send([]byte("frame")))
	c.tick()

	_, unreliable := c.wire.take()
	relays := ofType(t, unreliable, protocol.TypeServerRelayUnreliable)
	require.Len(t, relays, 1)
	rel, err := protocol.ParseServerRelay(protocol.TypeServerRelayUnreliable, relays[0])
	require.NoError(t, err)
	assert.Equal(t, []domain.PeerID{1}, rel.Destinations)

	h, body, err := protocol.Decode(rel.Inner)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeVoiceData, h.Type)
	assert.Equal(t, testSession, h.SessionID)
	vh, err := protocol.ReadVoiceHeader(body)
	require.NoError(t, err)
	assert.Equal(t, domain.PeerID(2), vh.SenderID)
}

func TestVoiceFromKnownPeerRaisesSpeakingEvents(t *testing.T) {
	c := newTestClient(t, "alice", nil)
	c.connect(2, []protocol.PeerState{bob, alice}, nil)
	c.events()

	c.HandlePacket(voiceFrom(7, 2, 0, "stranger"))
	c.HandlePacket(voiceFrom(1, 2, 0, "hi"))
	c.HandlePacket(voiceFrom(1, 2, 1, "there"))

	assert.Equal(t, []any{staging.StartedSpeaking{Peer: 1}, "hi", "there"}, c.events())

	c.now = c.now.Add(2 * time.Second)
	assert.Equal(t, []any{staging.StoppedSpeaking{Peer: 1}}, c.events())
}

func TestTextForJoinedRoomIsDelivered(t *testing.T) {
	c := newTestClient(t, "alice", nil)
	require.NoError(t, c.JoinRoom("lobby"))
	c.connect(2, []protocol.PeerState{bob, alice}, nil)
	c.events()

	lobby := domain.RoomName("lobby")
	c.HandlePacket(protocol.AppendText(nil, testSession, &protocol.TextPacket{
		SenderID: 1, RecipientType: domain.ChannelRoom, RecipientID: uint16(lobby.ID()), Text: "yo",
	}))
	c.HandlePacket(protocol.AppendText(nil, testSession, &protocol.TextPacket{
		SenderID: 1, RecipientType: domain.ChannelRoom, RecipientID: uint16(domain.RoomName("den").ID()), Text: "elsewhere",
	}))

	assert.Equal(t, []any{staging.TextMessage{
		Sender: 1, RecipientType: domain.ChannelRoom, Recipient: uint16(lobby.ID()), Room: "lobby", Text: "yo",
	}}, c.events())
}

func TestTextIsRelayedReliably(t *testing.T) {
	c := newTestClient(t, "alice", nil)
	c.connect(2, []protocol.PeerState{bob, alice}, nil)
	c.tick()
	c.wire.take()

	require.NoError(t, c.Text().SendToPlayer(1, "hello"))
	c.tick()

	reliable, _ := c.wire.take()
	relays := ofType(t, reliable, protocol.TypeServerRelayReliable)
	require.Len(t, relays, 1)
	rel, err := protocol.ParseServerRelay(protocol.TypeServerRelayReliable, relays[0])
	require.NoError(t, err)
	assert.Equal(t, []domain.PeerID{1}, rel.Destinations)
}

func TestWrongSessionRestartsNegotiation(t *testing.T) {
	c := newTestClient(t, "alice", nil)
	c.connect(2, []protocol.PeerState{bob, alice}, nil)
	c.events()
	c.wire.take()

	c.HandlePacket(protocol.AppendErrorWrongSession(nil, 77))
	assert.Equal(t, session.StateNone, c.State())
	_, ok := c.LocalID()
	assert.False(t, ok)
	assert.Empty(t, c.Roster().Peers())

	got := c.events()
	assert.Contains(t, got, staging.PeerLeft{Peer: 1, Name: "bob"})
	assert.Contains(t, got, staging.PeerLeft{Peer: 2, Name: "alice"})

	reliable, _ := c.wire.take()
	assert.Len(t, ofType(t, reliable, protocol.TypeHandshakeRequest), 1)
}
