package app

import (
	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/dkeye/VoiceMux/internal/protocol"
	"github.com/dkeye/VoiceMux/internal/session"
	"github.com/rs/zerolog/log"
)

// HandlePacket routes one packet received from the server.
func (c *Client) HandlePacket(data []byte) {
	c.handle(data, false)
}

// handleDirect routes one packet received on a direct peer link.
func (c *Client) handleDirect(data []byte) {
	c.handle(data, true)
}

func (c *Client) handle(data []byte, direct bool) {
	h, body, err := protocol.Decode(data)
	if err != nil {
		log.Debug().Str("module", "app").Err(err).Msg("dropped undecodable packet")
		return
	}
	neg := c.neg.Load()

	if h.Type == protocol.TypeHandshakeResponse && !direct {
		c.handshakeResponse(neg, h.SessionID, body)
		return
	}
	if h.Type == protocol.TypeErrorWrongSession && !direct {
		expected, err := protocol.ParseErrorWrongSession(body)
		if err != nil {
			return
		}
		log.Warn().Str("module", "app").Uint32("have", neg.Session().SessionID()).Uint32("expected", expected).Msg("server rejected session")
		c.restart("wrong session")
		return
	}
	if neg.State() != session.StateConnected || h.SessionID != neg.Session().SessionID() {
		log.Debug().Str("module", "app").Stringer("type", h.Type).Uint32("session_id", h.SessionID).Msg("dropped packet outside session")
		return
	}

	switch h.Type {
	case protocol.TypeVoiceData:
		c.voiceData(body)
		return
	case protocol.TypeTextData:
		tp, err := protocol.ParseText(body)
		if err != nil {
			log.Debug().Str("module", "app").Err(err).Msg("dropped bad text packet")
			return
		}
		if !c.roster.Has(tp.SenderID) {
			log.Debug().Str("module", "app").Uint16("sender", uint16(tp.SenderID)).Msg("dropped text from unknown peer")
			return
		}
		c.textIn.Receive(tp)
		return
	}
	if direct {
		log.Debug().Str("module", "app").Stringer("type", h.Type).Msg("dropped control packet on direct link")
		return
	}

	switch h.Type {
	case protocol.TypeClientState:
		st, err := protocol.ParseClientState(body)
		if err != nil {
			log.Debug().Str("module", "app").Err(err).Msg("dropped bad client state")
			return
		}
		c.roster.PeerJoined(st)
		c.offerTo(st.ID)
	case protocol.TypeDeltaClientState:
		d, err := protocol.ParseDeltaClientState(body)
		if err != nil {
			log.Debug().Str("module", "app").Err(err).Msg("dropped bad room delta")
			return
		}
		if d.Joined {
			c.roster.EnterRoom(d.ID, d.Room)
		} else {
			c.roster.ExitRoom(d.ID, d.Room)
		}
	case protocol.TypeRemoveClient:
		id, err := protocol.ParseRemoveClient(body)
		if err != nil {
			return
		}
		c.dropDial(id)
		c.roster.PeerLeft(id)
	case protocol.TypePeerSignal:
		sig, err := protocol.ParsePeerSignal(body)
		if err != nil {
			log.Debug().Str("module", "app").Err(err).Msg("dropped bad peer signal")
			return
		}
		c.peerSignal(sig)
	default:
		log.Debug().Str("module", "app").Stringer("type", h.Type).Msg("unexpected packet type")
	}
}

func (c *Client) handshakeResponse(neg *session.Negotiator, sessionID uint32, body *protocol.Reader) {
	resp, err := protocol.ParseHandshakeResponse(body)
	if err != nil {
		log.Debug().Str("module", "app").Err(err).Msg("dropped bad handshake response")
		return
	}
	if !neg.ReceiveResponse(sessionID, resp.LocalID) {
		return
	}
	c.roster.ApplySnapshot(resp)

	// Rooms joined before the handshake are announced in one full state.
	self := &protocol.PeerState{ID: resp.LocalID, Name: c.opts.Name, Codec: c.opts.Codec, Rooms: c.Rooms()}
	c.roster.PeerJoined(self)
	c.sendQ.EnqueueReliable(c.sendQ.Packet(func(dst []byte) []byte {
		return protocol.AppendClientState(dst, sessionID, self)
	}))
	for _, p := range resp.Peers {
		c.offerTo(p.ID)
	}
}

func (c *Client) voiceData(body *protocol.Reader) {
	vh, err := protocol.ReadVoiceHeader(body)
	if err != nil {
		log.Debug().Str("module", "app").Err(err).Msg("dropped bad voice header")
		return
	}
	if self, _ := c.LocalID(); vh.SenderID == self || vh.SenderID == domain.NoPeer {
		return
	}
	rcv, ok := c.roster.Receiver(vh.SenderID)
	if !ok {
		log.Debug().Str("module", "app").Uint16("sender", uint16(vh.SenderID)).Msg("dropped voice from unknown peer")
		return
	}
	rcv.Receive(vh, body, c.opts.Clock.Now())
}
