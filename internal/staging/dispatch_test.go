package staging

import (
	"errors"
	"testing"
	"time"

	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/dkeye/VoiceMux/internal/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []Event
}

func (r *recorder) OnEvent(ev Event) error {
	r.events = append(r.events, ev)
	return nil
}

func TestDispatchOrderAndSubscription(t *testing.T) {
	q := NewEventQueue(pool.NewBytes(32))
	a, b := &recorder{}, &recorder{}
	q.Subscribe(a)
	idB := q.Subscribe(b)

	q.Enqueue(PeerJoined{Peer: 2, Name: "bob"})
	q.Enqueue(EnteredRoom{Peer: 2, Room: "lobby"})
	assert.False(t, q.Dispatch(time.Now()))

	want := []Event{PeerJoined{Peer: 2, Name: "bob"}, EnteredRoom{Peer: 2, Room: "lobby"}}
	assert.Equal(t, want, a.events)
	assert.Equal(t, want, b.events)

	require.True(t, q.Unsubscribe(idB))
	assert.False(t, q.Unsubscribe(idB))

	q.Enqueue(PeerLeft{Peer: 2, Name: "bob"})
	q.Dispatch(time.Now())
	assert.Len(t, a.events, 3)
	assert.Len(t, b.events, 2)
}

func TestDispatchIsolatesFailingObservers(t *testing.T) {
	buffers := pool.NewBytes(32)
	q := NewEventQueue(buffers)
	q.Subscribe(ObserverFunc(func(Event) error { panic("observer bug") }))
	q.Subscribe(ObserverFunc(func(Event) error { return errors.New("nope") }))
	tail := &recorder{}
	q.Subscribe(tail)

	q.Enqueue(VoiceData{Peer: 3, Sequence: 0, Payload: q.Payload([]byte{1, 2})})
	q.Enqueue(StoppedSpeaking{Peer: 3})

	assert.True(t, q.Dispatch(time.Now()))
	require.Len(t, tail.events, 2)
	assert.Equal(t, StoppedSpeaking{Peer: 3}, tail.events[1])
	assert.Equal(t, 0, buffers.Outstanding())
}

func TestVoicePayloadIsRecycledAfterDispatch(t *testing.T) {
	buffers := pool.NewBytes(32)
	q := NewEventQueue(buffers)
	var seen []byte
	var kept VoiceData
	q.Subscribe(ObserverFunc(func(ev Event) error {
		if v, ok := ev.(VoiceData); ok {
			seen = append(seen, v.Payload.Bytes()...)
			kept = v
		}
		return nil
	}))

	q.Enqueue(VoiceData{Peer: 1, Payload: q.Payload([]byte("pcm"))})
	q.Dispatch(time.Now())

	assert.Equal(t, []byte("pcm"), seen)
	assert.False(t, kept.Payload.Valid())
	assert.Panics(t, func() { kept.Payload.Bytes() })
}

func TestBacklogWarning(t *testing.T) {
	q := NewEventQueue(pool.NewBytes(8))
	t0 := time.Unix(100, 0)
	q.Dispatch(t0)

	for i := 0; i < 15; i++ {
		q.Enqueue(VoiceData{Peer: 1, Sequence: uint32(i), Payload: q.Payload([]byte{byte(i)})})
	}
	q.Dispatch(t0.Add(70 * time.Millisecond))

	assert.Equal(t, 1, q.BacklogWarnings())
	assert.Equal(t, 256*time.Millisecond, q.WarnThreshold())
}

func TestBacklogThresholdDecays(t *testing.T) {
	q := NewEventQueue(pool.NewBytes(8))
	now := time.Unix(100, 0)
	q.Dispatch(now)
	for i := 0; i < 10; i++ {
		q.Enqueue(VoiceData{Peer: 1, Payload: q.Payload(nil)})
	}
	now = now.Add(time.Second)
	q.Dispatch(now)
	require.Equal(t, 256*time.Millisecond, q.WarnThreshold())

	for i := 0; i < 3; i++ {
		now = now.Add(10 * time.Millisecond)
		q.Dispatch(now)
	}
	assert.Equal(t, 253*time.Millisecond, q.WarnThreshold())

	for i := 0; i < 500; i++ {
		now = now.Add(10 * time.Millisecond)
		q.Dispatch(now)
	}
	assert.Equal(t, 64*time.Millisecond, q.WarnThreshold())
	assert.Equal(t, 1, q.BacklogWarnings())
}

func TestBacklogQuietBelowCount(t *testing.T) {
	q := NewEventQueue(pool.NewBytes(8))
	t0 := time.Unix(100, 0)
	q.Dispatch(t0)
	for i := 0; i < 9; i++ {
		q.Enqueue(VoiceData{Peer: 1, Payload: q.Payload(nil)})
	}
	q.Enqueue(TextMessage{Sender: 2, RecipientType: domain.ChannelRoom, Text: "hi"})
	q.Dispatch(t0.Add(time.Second))
	assert.Equal(t, 0, q.BacklogWarnings())
}

func TestStopRecyclesQueuedPayloads(t *testing.T) {
	buffers := pool.NewBytes(8)
	q := NewEventQueue(buffers)
	q.Enqueue(VoiceData{Peer: 1, Payload: q.Payload([]byte{1})})
	q.Stop()
	assert.Equal(t, 0, q.Pending())
	assert.Equal(t, 0, buffers.Outstanding())
}
