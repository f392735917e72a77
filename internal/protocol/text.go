package protocol

import (
	"encoding/binary"

	"github.com/dkeye/VoiceMux/internal/domain"
)

type TextPacket struct {
	SenderID      domain.PeerID
	RecipientType domain.ChannelType
	RecipientID   uint16
	Text          string
}

func AppendText(dst []byte, sessionID uint32, p *TextPacket) []byte {
	dst = appendHeader(dst, TypeTextData, sessionID)
	dst = append(dst, byte(p.RecipientType))
	dst = binary.BigEndian.AppendUint16(dst, uint16(p.SenderID))
	dst = binary.BigEndian.AppendUint16(dst, p.RecipientID)
	return appendStr16(dst, p.Text)
}

func ParseText(r *Reader) (*TextPacket, error) {
	p := &TextPacket{
		RecipientType: domain.ChannelType(r.U8()),
		SenderID:      domain.PeerID(r.U16()),
		RecipientID:   r.U16(),
		Text:          r.Str16(),
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	if p.RecipientType != domain.ChannelPlayer && p.RecipientType != domain.ChannelRoom {
		return nil, ErrBadChannelType
	}
	return p, nil
}
