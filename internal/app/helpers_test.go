package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/VoiceMux/internal/core"
	"github.com/dkeye/VoiceMux/internal/core/mocks"
	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/dkeye/VoiceMux/internal/protocol"
	"github.com/dkeye/VoiceMux/internal/staging"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testSession uint32 = 0x51ab

// wire records what the client sent to the server.
type wire struct {
	mu         sync.Mutex
	reliable   [][]byte
	unreliable [][]byte
}

func (w *wire) record(lane *[][]byte, p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	*lane = append(*lane, append([]byte(nil), p...))
	return nil
}

// take returns and forgets the packets sent so far.
func (w *wire) take() (reliable, unreliable [][]byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	reliable, unreliable = w.reliable, w.unreliable
	w.reliable, w.unreliable = nil, nil
	return reliable, unreliable
}

func ofType(t *testing.T, packets [][]byte, typ protocol.PacketType) []*protocol.Reader {
	t.Helper()
	var out []*protocol.Reader
	for _, p := range packets {
		h, body, err := protocol.Decode(p)
		require.NoError(t, err)
		if h.Type == typ {
			out = append(out, body)
		}
	}
	return out
}

type testClient struct {
	*Client
	t    *testing.T
	wire *wire
	now  time.Time
	got  []any
}

func newTestClient(t *testing.T, name string, links LinkFactory) *testClient {
	t.Helper()
	ctrl := gomock.NewController(t)
	w := &wire{}
	link := mocks.NewMockServerLink(ctrl)
	link.EXPECT().SendReliable(gomock.Any()).DoAndReturn(func(p []byte) error { return w.record(&w.reliable, p) }).AnyTimes()
	link.EXPECT().SendUnreliable(gomock.Any()).DoAndReturn(func(p []byte) error { return w.record(&w.unreliable, p) }).AnyTimes()
	link.EXPECT().Close().AnyTimes()

	tc := &testClient{t: t, wire: w, now: time.Unix(1000, 0)}
	c, err := NewClient(Options{Name: name, Links: links, Clock: tc})
	require.NoError(t, err)
	tc.Client = c
	c.Subscribe(staging.ObserverFunc(func(ev staging.Event) error {
		if v, ok := ev.(staging.VoiceData); ok {
			tc.got = append(tc.got, string(v.Payload.Bytes()))
			return nil
		}
		tc.got = append(tc.got, ev)
		return nil
	}))
	c.Start(link)
	t.Cleanup(c.Stop)
	return tc
}

// Now makes the test client its own clock.
func (tc *testClient) Now() time.Time { return tc.now }

func (tc *testClient) tick() {
	tc.t.Helper()
	require.NoError(tc.t, tc.Update(tc.now))
	tc.now = tc.now.Add(20 * time.Millisecond)
}

// events dispatches and returns what observers saw since the last call.
func (tc *testClient) events() []any {
	tc.tick()
	out := tc.got
	tc.got = nil
	return out
}

func (tc *testClient) connect(local domain.PeerID, peers []protocol.PeerState, rooms []protocol.RoomMembers) {
	tc.t.Helper()
	tc.tick()
	resp := &protocol.HandshakeResponse{LocalID: local, Peers: peers, Rooms: rooms}
	tc.HandlePacket(protocol.AppendHandshakeResponse(nil, testSession, resp))
	require.Equal(tc.t, local, tc.localID())
}

func (tc *testClient) localID() domain.PeerID {
	tc.t.Helper()
	id, ok := tc.LocalID()
	require.True(tc.t, ok)
	return id
}

func voiceFrom(sender, to domain.PeerID, seq uint16, payload string) []byte {
	return protocol.AppendVoice(nil, testSession, &protocol.VoicePacket{
		SenderID:       sender,
		ChannelSession: protocol.ExtendedSession(0),
		Sequence:       seq,
		Channels: []protocol.ChannelDescriptor{{
			Type:       domain.ChannelPlayer,
			Recipient:  uint16(to),
			Properties: domain.DefaultProperties(),
			Session:    protocol.ExtendedSession(0),
		}},
		Payload: []byte(payload),
	})
}

type fakeLink struct {
	peer domain.PeerID

	mu         sync.Mutex
	open       bool
	closed     bool
	completed  string
	reliable   [][]byte
	unreliable [][]byte
	onOpen     func()
	onClosed   func()
}

type fakeLinks struct {
	mu    sync.Mutex
	links map[domain.PeerID]*fakeLink
}

func newFakeLinks() *fakeLinks {
	return &fakeLinks{links: make(map[domain.PeerID]*fakeLink)}
}

func (f *fakeLinks) factory(peer domain.PeerID, _ core.PacketHandler) (DirectLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := &fakeLink{peer: peer}
	f.links[peer] = l
	return l, nil
}

func (f *fakeLinks) get(peer domain.PeerID) *fakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.links[peer]
}

func (l *fakeLink) Offer(context.Context) (string, error) { return "offer", nil }

func (l *fakeLink) Accept(_ context.Context, offer string) (string, error) {
	return "answer:" + offer, nil
}

func (l *fakeLink) Complete(answer string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed = answer
	return nil
}

func (l *fakeLink) OnOpen(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onOpen = fn
}

func (l *fakeLink) OnClosed(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onClosed = fn
}

func (l *fakeLink) SendReliable(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reliable = append(l.reliable, append([]byte(nil), p...))
	return nil
}

func (l *fakeLink) SendUnreliable(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unreliable = append(l.unreliable, append([]byte(nil), p...))
	return nil
}

func (l *fakeLink) Open() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open && !l.closed
}

func (l *fakeLink) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	fn := l.onClosed
	l.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (l *fakeLink) setOpen() {
	l.mu.Lock()
	l.open = true
	fn := l.onOpen
	l.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (l *fakeLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
