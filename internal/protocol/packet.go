// Package protocol defines the binary packet formats exchanged between peers and the authority.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic must be at the start of every packet.
const Magic uint16 = 0x8bc7

// HeaderSize is the fixed header size: Magic(2) + Type(1) + SessionID(4).
const HeaderSize = 7

type PacketType uint8

const (
	TypeHandshakeRequest PacketType = iota + 1
	TypeHandshakeResponse
	TypeClientState
	TypeVoiceData
	TypeTextData
	TypeDeltaClientState
	TypeRemoveClient
	TypeServerRelayReliable
	TypeServerRelayUnreliable
	TypeErrorWrongSession
	TypePeerSignal
)

func (t PacketType) String() string {
	switch t {
	case TypeHandshakeRequest:
		return "handshake_request"
	case TypeHandshakeResponse:
		return "handshake_response"
	case TypeClientState:
		return "client_state"
	case TypeVoiceData:
		return "voice_data"
	case TypeTextData:
		return "text_data"
	case TypeDeltaClientState:
		return "delta_client_state"
	case TypeRemoveClient:
		return "remove_client"
	case TypeServerRelayReliable:
		return "relay_reliable"
	case TypeServerRelayUnreliable:
		return "relay_unreliable"
	case TypeErrorWrongSession:
		return "error_wrong_session"
	case TypePeerSignal:
		return "peer_signal"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

var (
	ErrShortPacket     = errors.New("packet too short")
	ErrBadMagic        = errors.New("bad magic")
	ErrBadChannelType  = errors.New("bad channel type")
	ErrUnexpectedTrail = errors.New("unexpected trailing bytes")
)

// Header precedes every packet body.
type Header struct {
	Type      PacketType
	SessionID uint32
}

func appendHeader(dst []byte, t PacketType, sessionID uint32) []byte {
	dst = binary.BigEndian.AppendUint16(dst, Magic)
	dst = append(dst, byte(t))
	return binary.BigEndian.AppendUint32(dst, sessionID)
}

// Decode reads the header and returns a reader positioned at the body.
func Decode(data []byte) (Header, *Reader, error) {
	if len(data) < HeaderSize {
		return Header{}, nil, fmt.Errorf("%w: %d bytes (need at least %d)", ErrShortPacket, len(data), HeaderSize)
	}
	if binary.BigEndian.Uint16(data[0:2]) != Magic {
		return Header{}, nil, ErrBadMagic
	}
	h := Header{
		Type:      PacketType(data[2]),
		SessionID: binary.BigEndian.Uint32(data[3:7]),
	}
	return h, NewReader(data[HeaderSize:]), nil
}

// WithSession rewrites the session id of an already encoded packet in place.
func WithSession(packet []byte, sessionID uint32) {
	if len(packet) >= HeaderSize {
		binary.BigEndian.PutUint32(packet[3:7], sessionID)
	}
}
