package protocol

import (
	"encoding/binary"

	"github.com/dkeye/VoiceMux/internal/domain"
)

func AppendClientState(dst []byte, sessionID uint32, s *PeerState) []byte {
	dst = appendHeader(dst, TypeClientState, sessionID)
	dst = binary.BigEndian.AppendUint16(dst, uint16(s.ID))
	dst = appendStr16(dst, s.Name)
	dst = appendCodec(dst, s.Codec)
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(s.Rooms)))
	for _, room := range s.Rooms {
		dst = appendStr16(dst, string(room))
	}
	return dst
}

func ParseClientState(r *Reader) (*PeerState, error) {
	s := &PeerState{
		ID:    domain.PeerID(r.U16()),
		Name:  r.Str16(),
		Codec: readCodec(r),
	}
	n := int(r.U16())
	for i := 0; i < n && r.Err() == nil; i++ {
		s.Rooms = append(s.Rooms, domain.RoomName(r.Str16()))
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return s, nil
}

// DeltaClientState announces one peer entering or leaving one room.
type DeltaClientState struct {
	Joined bool
	ID     domain.PeerID
	Room   domain.RoomName
}

func AppendDeltaClientState(dst []byte, sessionID uint32, d DeltaClientState) []byte {
	dst = appendHeader(dst, TypeDeltaClientState, sessionID)
	dst = appendBool(dst, d.Joined)
	dst = binary.BigEndian.AppendUint16(dst, uint16(d.ID))
	return appendStr16(dst, string(d.Room))
}

func ParseDeltaClientState(r *Reader) (DeltaClientState, error) {
	d := DeltaClientState{Joined: r.Bool(), ID: domain.PeerID(r.U16()), Room: domain.RoomName(r.Str16())}
	return d, r.Done()
}

func AppendRemoveClient(dst []byte, sessionID uint32, id domain.PeerID) []byte {
	dst = appendHeader(dst, TypeRemoveClient, sessionID)
	return binary.BigEndian.AppendUint16(dst, uint16(id))
}

func ParseRemoveClient(r *Reader) (domain.PeerID, error) {
	id := domain.PeerID(r.U16())
	return id, r.Done()
}

func AppendErrorWrongSession(dst []byte, expected uint32) []byte {
	dst = appendHeader(dst, TypeErrorWrongSession, 0)
	return binary.BigEndian.AppendUint32(dst, expected)
}

func ParseErrorWrongSession(r *Reader) (uint32, error) {
	v := r.U32()
	return v, r.Done()
}
