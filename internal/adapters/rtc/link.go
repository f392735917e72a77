// Package rtc provides direct peer links over WebRTC data channels.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceMux/internal/core"
	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	reliableChannelID   uint16 = 0
	unreliableChannelID uint16 = 1
)

var ErrNoLocalDescription = errors.New("no local description")

func DefaultWebRTCConfig(stunURLs ...string) webrtc.Configuration {
	if len(stunURLs) == 0 {
		stunURLs = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunURLs}},
	}
}

// Link is a PeerConnection with two pre-negotiated data channels: an ordered
// reliable one and an unordered one without retransmits.
type Link struct {
	pc         *webrtc.PeerConnection
	peer       domain.PeerID
	reliable   *webrtc.DataChannel
	unreliable *webrtc.DataChannel

	opened atomic.Int32
	closed atomic.Bool

	mu       sync.Mutex
	onOpen   func()
	onClosed func()
}

// NewLink builds a link to peer. Inbound messages from either channel go to handle.
// api may be nil for the default pion API.
func NewLink(api *webrtc.API, cfg webrtc.Configuration, peer domain.PeerID, handle core.PacketHandler) (*Link, error) {
	var (
		pc  *webrtc.PeerConnection
		err error
	)
	if api != nil {
		pc, err = api.NewPeerConnection(cfg)
	} else {
		pc, err = webrtc.NewPeerConnection(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	l := &Link{pc: pc, peer: peer}

	negotiated := true
	ordered, unordered := true, false
	var noRetransmits uint16
	relID, unrelID := reliableChannelID, unreliableChannelID

	l.reliable, err = pc.CreateDataChannel("reliable", &webrtc.DataChannelInit{
		Negotiated: &negotiated,
		ID:         &relID,
		Ordered:    &ordered,
	})
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("reliable data channel: %w", err)
	}
	l.unreliable, err = pc.CreateDataChannel("unreliable", &webrtc.DataChannelInit{
		Negotiated:     &negotiated,
		ID:             &unrelID,
		Ordered:        &unordered,
		MaxRetransmits: &noRetransmits,
	})
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("unreliable data channel: %w", err)
	}

	for _, dc := range []*webrtc.DataChannel{l.reliable, l.unreliable} {
		dc.OnOpen(l.channelOpened)
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			if handle != nil {
				handle(msg.Data)
			}
		})
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Uint16("peer", uint16(peer)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateDisconnected ||
			s == webrtc.PeerConnectionStateClosed {
			l.Close()
		}
	})
	return l, nil
}

func (l *Link) Peer() domain.PeerID { return l.peer }

// OnOpen sets a callback run once both channels are open.
func (l *Link) OnOpen(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onOpen = fn
}

// OnClosed sets a callback run once when the link goes down.
func (l *Link) OnClosed(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onClosed = fn
}

func (l *Link) channelOpened() {
	if l.opened.Add(1) != 2 {
		return
	}
	log.Info().Str("module", "webrtc").Uint16("peer", uint16(l.peer)).Msg("data channels open")
	l.mu.Lock()
	fn := l.onOpen
	l.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Offer creates the local offer and waits for ICE gathering to finish.
func (l *Link) Offer(ctx context.Context) (string, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	return l.setLocal(ctx, offer)
}

// Accept applies a remote offer and returns the answer.
func (l *Link) Accept(ctx context.Context, offerSDP string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	return l.setLocal(ctx, answer)
}

// Complete applies the remote answer to an offer made by this link.
func (l *Link) Complete(answerSDP string) error {
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}
	if err := l.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

func (l *Link) setLocal(ctx context.Context, desc webrtc.SessionDescription) (string, error) {
	gatherComplete := webrtc.GatheringCompletePromise(l.pc)
	if err := l.pc.SetLocalDescription(desc); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	local := l.pc.LocalDescription()
	if local == nil {
		return "", ErrNoLocalDescription
	}
	return local.SDP, nil
}

func (l *Link) Open() bool {
	return !l.closed.Load() && l.opened.Load() >= 2
}

func (l *Link) SendReliable(packet []byte) error {
	return l.send(l.reliable, packet)
}

func (l *Link) SendUnreliable(packet []byte) error {
	return l.send(l.unreliable, packet)
}

func (l *Link) send(dc *webrtc.DataChannel, packet []byte) error {
	if !l.Open() {
		return core.ErrClosed
	}
	return dc.Send(packet)
}

func (l *Link) Close() {
	// pc.Close re-enters here through the state callback.
	if !l.closed.CompareAndSwap(false, true) {
		return
	}
	if err := l.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Uint16("peer", uint16(l.peer)).Msg("close error")
	} else {
		log.Info().Str("module", "webrtc").Uint16("peer", uint16(l.peer)).Msg("closed")
	}
	l.mu.Lock()
	fn := l.onClosed
	l.mu.Unlock()
	if fn != nil {
		fn()
	}
}
