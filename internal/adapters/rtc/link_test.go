package rtc

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/VoiceMux/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loopbackAPI() *webrtc.API {
	var se webrtc.SettingEngine
	se.SetIncludeLoopbackCandidate(true)
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}

func TestSendBeforeOpenFails(t *testing.T) {
	l, err := NewLink(nil, webrtc.Configuration{}, 2, nil)
	require.NoError(t, err)
	defer l.Close()

	assert.False(t, l.Open())
	assert.ErrorIs(t, l.SendReliable([]byte{1}), core.ErrClosed)
	assert.ErrorIs(t, l.SendUnreliable([]byte{1}), core.ErrClosed)
}

func TestCloseRunsCallbackOnce(t *testing.T) {
	l, err := NewLink(nil, webrtc.Configuration{}, 2, nil)
	require.NoError(t, err)

	calls := 0
	l.OnClosed(func() { calls++ })
	l.Close()
	l.Close()
	assert.Equal(t, 1, calls)
	assert.False(t, l.Open())
}

func TestOfferAnswerOpensBothChannels(t *testing.T) {
	if testing.Short() {
		t.Skip("uses local network")
	}
	api := loopbackAPI()
	got := make(chan []byte, 4)

	offerer, err := NewLink(api, webrtc.Configuration{}, 2, nil)
	require.NoError(t, err)
	defer offerer.Close()
	answerer, err := NewLink(api, webrtc.Configuration{}, 1, func(p []byte) {
		got <- append([]byte(nil), p...)
	})
	require.NoError(t, err)
	defer answerer.Close()

	opened := make(chan struct{})
	offerer.OnOpen(func() { close(opened) })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	offer, err := offerer.Offer(ctx)
	require.NoError(t, err)
	answer, err := answerer.Accept(ctx, offer)
	require.NoError(t, err)
	require.NoError(t, offerer.Complete(answer))

	select {
	case <-opened:
	case <-ctx.Done():
		t.Fatal("link did not open")
	}
	require.True(t, offerer.Open())
	require.NoError(t, offerer.SendReliable([]byte("hello")))

	select {
	case p := <-got:
		assert.Equal(t, []byte("hello"), p)
	case <-ctx.Done():
		t.Fatal("no message")
	}
}
