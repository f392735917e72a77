package protocol

import (
	"encoding/binary"

	"github.com/dkeye/VoiceMux/internal/domain"
)

type HandshakeRequest struct {
	Name  string
	Codec domain.CodecSettings
}

// PeerState is the full state of one peer as the authority sees it.
type PeerState struct {
	ID    domain.PeerID
	Name  string
	Codec domain.CodecSettings
	Rooms []domain.RoomName
}

type RoomMembers struct {
	Name    domain.RoomName
	Members []domain.PeerID
}

// HandshakeResponse assigns the local id and carries the roster snapshot.
type HandshakeResponse struct {
	LocalID domain.PeerID
	Peers   []PeerState
	Rooms   []RoomMembers
}

func appendCodec(dst []byte, c domain.CodecSettings) []byte {
	dst = append(dst, c.Codec)
	dst = binary.BigEndian.AppendUint32(dst, c.FrameSize)
	return binary.BigEndian.AppendUint32(dst, c.SampleRate)
}

func readCodec(r *Reader) domain.CodecSettings {
	return domain.CodecSettings{Codec: r.U8(), FrameSize: r.U32(), SampleRate: r.U32()}
}

func AppendHandshakeRequest(dst []byte, req HandshakeRequest) []byte {
	dst = appendHeader(dst, TypeHandshakeRequest, 0)
	dst = appendCodec(dst, req.Codec)
	return appendStr16(dst, req.Name)
}

func ParseHandshakeRequest(r *Reader) (HandshakeRequest, error) {
	req := HandshakeRequest{Codec: readCodec(r), Name: r.Str16()}
	return req, r.Done()
}

func AppendHandshakeResponse(dst []byte, sessionID uint32, resp *HandshakeResponse) []byte {
	dst = appendHeader(dst, TypeHandshakeResponse, sessionID)
	dst = binary.BigEndian.AppendUint16(dst, uint16(resp.LocalID))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(resp.Peers)))
	for _, p := range resp.Peers {
		dst = binary.BigEndian.AppendUint16(dst, uint16(p.ID))
		dst = appendStr16(dst, p.Name)
		dst = appendCodec(dst, p.Codec)
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(resp.Rooms)))
	for _, room := range resp.Rooms {
		dst = appendStr16(dst, string(room.Name))
		dst = binary.BigEndian.AppendUint16(dst, uint16(len(room.Members)))
		for _, id := range room.Members {
			dst = binary.BigEndian.AppendUint16(dst, uint16(id))
		}
	}
	return dst
}

func ParseHandshakeResponse(r *Reader) (*HandshakeResponse, error) {
	resp := &HandshakeResponse{LocalID: domain.PeerID(r.U16())}
	n := int(r.U16())
	for i := 0; i < n && r.Err() == nil; i++ {
		resp.Peers = append(resp.Peers, PeerState{
			ID:    domain.PeerID(r.U16()),
			Name:  r.Str16(),
			Codec: readCodec(r),
		})
	}
	n = int(r.U16())
	for i := 0; i < n && r.Err() == nil; i++ {
		room := RoomMembers{Name: domain.RoomName(r.Str16())}
		m := int(r.U16())
		for j := 0; j < m && r.Err() == nil; j++ {
			room.Members = append(room.Members, domain.PeerID(r.U16()))
		}
		resp.Rooms = append(resp.Rooms, room)
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return resp, nil
}
