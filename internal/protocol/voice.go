package protocol

import (
	"encoding/binary"

	"github.com/dkeye/VoiceMux/internal/domain"
)

// VoicePacket carries one encoded audio frame addressed to one or more channels.
type VoicePacket struct {
	SenderID       domain.PeerID
	ChannelSession SessionNumber
	Sequence       uint16
	Channels       []ChannelDescriptor
	Payload        []byte
}

// AppendVoice encodes p after a header and returns the extended slice.
func AppendVoice(dst []byte, sessionID uint32, p *VoicePacket) []byte {
	dst = appendHeader(dst, TypeVoiceData, sessionID)
	dst = binary.BigEndian.AppendUint16(dst, uint16(p.SenderID))
	dst = append(dst, p.ChannelSession.Byte())
	dst = binary.BigEndian.AppendUint16(dst, p.Sequence)
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(p.Channels)))
	for _, ch := range p.Channels {
		dst = binary.BigEndian.AppendUint32(dst, uint32(ch.Bits()))
		dst = binary.BigEndian.AppendUint16(dst, ch.Recipient)
	}
	return append(dst, p.Payload...)
}

// VoiceHeader is the part of a voice packet read before deciding whether to keep it.
type VoiceHeader struct {
	SenderID       domain.PeerID
	ChannelSession SessionNumber
	Sequence       uint16
}

// ReadVoiceHeader reads sender, channel session and sequence number.
func ReadVoiceHeader(r *Reader) (VoiceHeader, error) {
	h := VoiceHeader{
		SenderID:       domain.PeerID(r.U16()),
		ChannelSession: SessionFromByte(r.U8()),
		Sequence:       r.U16(),
	}
	return h, r.Err()
}

// ReadVoiceChannels calls fn for every channel entry, then returns the payload.
// The payload aliases the packet buffer.
func ReadVoiceChannels(r *Reader, fn func(ChannelDescriptor)) ([]byte, error) {
	n := int(r.U16())
	for i := 0; i < n; i++ {
		bits := ChannelBitField(r.U32())
		recipient := r.U16()
		if r.Err() != nil {
			return nil, r.Err()
		}
		ch, err := bits.Decode(recipient)
		if err != nil {
			return nil, err
		}
		fn(ch)
	}
	payload := r.Rest()
	return payload, r.Err()
}

// ParseVoice decodes a whole voice body. Channels and payload are freshly allocated.
func ParseVoice(r *Reader) (*VoicePacket, error) {
	h, err := ReadVoiceHeader(r)
	if err != nil {
		return nil, err
	}
	p := &VoicePacket{SenderID: h.SenderID, ChannelSession: h.ChannelSession, Sequence: h.Sequence}
	payload, err := ReadVoiceChannels(r, func(ch ChannelDescriptor) {
		p.Channels = append(p.Channels, ch)
	})
	if err != nil {
		return nil, err
	}
	p.Payload = append([]byte(nil), payload...)
	return p, nil
}
