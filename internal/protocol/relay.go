package protocol

import (
	"encoding/binary"

	"github.com/dkeye/VoiceMux/internal/domain"
)

// ServerRelay asks the authority to forward Inner to every destination.
type ServerRelay struct {
	Reliable     bool
	Destinations []domain.PeerID
	Inner        []byte
}

func AppendServerRelay(dst []byte, sessionID uint32, reliable bool, dests []domain.PeerID, inner []byte) []byte {
	t := TypeServerRelayUnreliable
	if reliable {
		t = TypeServerRelayReliable
	}
	dst = appendHeader(dst, t, sessionID)
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(dests)))
	for _, id := range dests {
		dst = binary.BigEndian.AppendUint16(dst, uint16(id))
	}
	return append(dst, inner...)
}

// ParseServerRelay decodes the destination list; Inner aliases the packet buffer.
func ParseServerRelay(t PacketType, r *Reader) (*ServerRelay, error) {
	rel := &ServerRelay{Reliable: t == TypeServerRelayReliable}
	n := int(r.U16())
	for i := 0; i < n && r.Err() == nil; i++ {
		rel.Destinations = append(rel.Destinations, domain.PeerID(r.U16()))
	}
	rel.Inner = r.Rest()
	if r.Err() != nil {
		return nil, r.Err()
	}
	return rel, nil
}

type SignalKind uint8

const (
	SignalOffer SignalKind = iota + 1
	SignalAnswer
)

// PeerSignal carries a session description between two peers through the authority.
type PeerSignal struct {
	From domain.PeerID
	To   domain.PeerID
	Kind SignalKind
	SDP  string
}

func AppendPeerSignal(dst []byte, sessionID uint32, s *PeerSignal) []byte {
	dst = appendHeader(dst, TypePeerSignal, sessionID)
	dst = binary.BigEndian.AppendUint16(dst, uint16(s.From))
	dst = binary.BigEndian.AppendUint16(dst, uint16(s.To))
	dst = append(dst, byte(s.Kind))
	return appendStr32(dst, s.SDP)
}

func ParsePeerSignal(r *Reader) (*PeerSignal, error) {
	s := &PeerSignal{
		From: domain.PeerID(r.U16()),
		To:   domain.PeerID(r.U16()),
		Kind: SignalKind(r.U8()),
		SDP:  r.Str32(),
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return s, nil
}
