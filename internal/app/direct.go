package app

import (
	"context"

	"github.com/dkeye/VoiceMux/internal/core"
	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/dkeye/VoiceMux/internal/protocol"
	"github.com/rs/zerolog/log"
)

// DirectLink is a peer link that negotiates itself with one offer and one answer.
type DirectLink interface {
	core.PeerLink
	Offer(ctx context.Context) (string, error)
	Accept(ctx context.Context, offer string) (string, error)
	Complete(answer string) error
	OnOpen(fn func())
	OnClosed(fn func())
}

type LinkFactory func(peer domain.PeerID, handle core.PacketHandler) (DirectLink, error)

// offerTo starts a direct link when the local id is the lower of the two.
func (c *Client) offerTo(peer domain.PeerID) {
	if c.opts.Links == nil {
		return
	}
	self, ok := c.LocalID()
	if !ok || peer <= self {
		return
	}
	if _, linked := c.roster.Link(peer); linked {
		return
	}
	link, ok := c.newDial(peer)
	if !ok {
		return
	}
	sid := c.SessionID()
	c.wg.Go(func() {
		sdp, err := link.Offer(c.ctx)
		if err != nil {
			log.Warn().Str("module", "app").Uint16("peer", uint16(peer)).Err(err).Msg("offer failed")
			link.Close()
			return
		}
		c.sendSignal(sid, &protocol.PeerSignal{From: self, To: peer, Kind: protocol.SignalOffer, SDP: sdp})
	})
}

func (c *Client) peerSignal(sig *protocol.PeerSignal) {
	self, _ := c.LocalID()
	if sig.To != self || c.opts.Links == nil {
		return
	}
	switch sig.Kind {
	case protocol.SignalOffer:
		c.dropDial(sig.From)
		link, ok := c.newDial(sig.From)
		if !ok {
			return
		}
		sid := c.SessionID()
		c.wg.Go(func() {
			sdp, err := link.Accept(c.ctx, sig.SDP)
			if err != nil {
				log.Warn().Str("module", "app").Uint16("peer", uint16(sig.From)).Err(err).Msg("answer failed")
				link.Close()
				return
			}
			c.sendSignal(sid, &protocol.PeerSignal{From: self, To: sig.From, Kind: protocol.SignalAnswer, SDP: sdp})
		})
	case protocol.SignalAnswer:
		c.dialMu.Lock()
		link, ok := c.dialing[sig.From]
		c.dialMu.Unlock()
		if !ok {
			log.Debug().Str("module", "app").Uint16("peer", uint16(sig.From)).Msg("answer without offer")
			return
		}
		if err := link.Complete(sig.SDP); err != nil {
			log.Warn().Str("module", "app").Uint16("peer", uint16(sig.From)).Err(err).Msg("complete failed")
			link.Close()
		}
	default:
		log.Debug().Str("module", "app").Uint8("kind", uint8(sig.Kind)).Msg("unknown signal kind")
	}
}

func (c *Client) sendSignal(sessionID uint32, sig *protocol.PeerSignal) {
	c.sendQ.EnqueueReliable(c.sendQ.Packet(func(dst []byte) []byte {
		return protocol.AppendPeerSignal(dst, sessionID, sig)
	}))
}

// newDial creates a link for peer unless one is already being set up.
func (c *Client) newDial(peer domain.PeerID) (DirectLink, bool) {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()
	if _, busy := c.dialing[peer]; busy {
		return nil, false
	}
	link, err := c.opts.Links(peer, c.handleDirect)
	if err != nil {
		log.Warn().Str("module", "app").Uint16("peer", uint16(peer)).Err(err).Msg("cannot create direct link")
		return nil, false
	}
	c.dialing[peer] = link
	link.OnOpen(func() {
		log.Info().Str("module", "app").Uint16("peer", uint16(peer)).Msg("direct link open")
		c.roster.Introduce(peer, link)
	})
	link.OnClosed(func() {
		c.dialMu.Lock()
		defer c.dialMu.Unlock()
		if c.dialing[peer] == link {
			delete(c.dialing, peer)
		}
	})
	return link, true
}

func (c *Client) dropDial(peer domain.PeerID) {
	c.dialMu.Lock()
	link, ok := c.dialing[peer]
	delete(c.dialing, peer)
	c.dialMu.Unlock()
	if ok {
		link.Close()
	}
}

func (c *Client) closeDialing() {
	c.dialMu.Lock()
	links := c.dialing
	c.dialing = make(map[domain.PeerID]DirectLink)
	c.dialMu.Unlock()
	for _, link := range links {
		link.Close()
	}
}
