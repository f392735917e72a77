package app

import (
	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/dkeye/VoiceMux/internal/protocol"
)

// transport drains the send queue. Peer sends take the direct link when it
// is open and go through a server relay otherwise.
type transport struct {
	c *Client
}

func (t *transport) server() (*serverLink, error) {
	s := t.c.server.Load()
	if s == nil || s.ServerLink == nil {
		return nil, ErrNoServer
	}
	return s, nil
}

func (t *transport) SendReliable(packet []byte) error {
	s, err := t.server()
	if err != nil {
		return err
	}
	return s.SendReliable(packet)
}

func (t *transport) SendUnreliable(packet []byte) error {
	s, err := t.server()
	if err != nil {
		return err
	}
	return s.SendUnreliable(packet)
}

func (t *transport) SendReliableP2P(dests []domain.PeerID, packet []byte) error {
	return t.sendPeers(dests, packet, true)
}

func (t *transport) SendUnreliableP2P(dests []domain.PeerID, packet []byte) error {
	return t.sendPeers(dests, packet, false)
}

func (t *transport) sendPeers(dests []domain.PeerID, packet []byte, reliable bool) error {
	var relayed []domain.PeerID
	for _, id := range dests {
		link, ok := t.c.roster.Link(id)
		if !ok || !link.Open() {
			relayed = append(relayed, id)
			continue
		}
		var err error
		if reliable {
			err = link.SendReliable(packet)
		} else {
			err = link.SendUnreliable(packet)
		}
		if err != nil {
			relayed = append(relayed, id)
		}
	}
	if len(relayed) == 0 {
		return nil
	}

	s, err := t.server()
	if err != nil {
		return err
	}
	buf := t.c.buffers.Get()
	defer t.c.buffers.Put(buf)
	sid := t.c.SessionID()
	buf.Fill(func(dst []byte) []byte {
		return protocol.AppendServerRelay(dst, sid, reliable, relayed, packet)
	})
	if reliable {
		return s.SendReliable(buf.Bytes())
	}
	return s.SendUnreliable(buf.Bytes())
}
