package protocol

import (
	"fmt"

	"github.com/dkeye/VoiceMux/internal/core"
	"github.com/dkeye/VoiceMux/internal/domain"
)

// SessionWidth selects how many bits of a channel session number are meaningful.
// Legacy peers only understand the low two bits; the extended flag tells newer
// peers to read the full seven.
type SessionWidth uint8

const (
	SessionLegacy   SessionWidth = 2
	SessionExtended SessionWidth = 7
)

func (w SessionWidth) Range() int { return 1 << w }

func (w SessionWidth) mask() uint8 { return uint8(w.Range() - 1) }

// SessionNumber is a channel session counter together with its encoding width.
type SessionNumber struct {
	Value uint8
	Width SessionWidth
}

func LegacySession(v uint8) SessionNumber {
	return SessionNumber{Value: v & SessionLegacy.mask(), Width: SessionLegacy}
}

func ExtendedSession(v uint8) SessionNumber {
	return SessionNumber{Value: v & SessionExtended.mask(), Width: SessionExtended}
}

// Next wraps within the width.
func (s SessionNumber) Next() SessionNumber {
	return SessionNumber{Value: (s.Value + 1) & s.Width.mask(), Width: s.Width}
}

func (s SessionNumber) String() string {
	if s.Width == SessionExtended {
		return fmt.Sprintf("%d/ext", s.Value)
	}
	return fmt.Sprintf("%d/legacy", s.Value)
}

const extendedFlag = 0x80

// Byte packs the session into the packet-level channel session byte: [extended:1][session:7].
func (s SessionNumber) Byte() uint8 {
	if s.Width == SessionExtended {
		return extendedFlag | s.Value&SessionExtended.mask()
	}
	return s.Value & SessionLegacy.mask()
}

func SessionFromByte(b uint8) SessionNumber {
	if b&extendedFlag != 0 {
		return ExtendedSession(b)
	}
	return LegacySession(b)
}

// ChannelBitField layout (bit 0 is least significant):
//
//	0-1   channel type
//	2     positional
//	3     closing
//	4-5   priority
//	6-7   session number, low bits
//	8-15  quantized amplitude
//	16-20 session number, high bits (extended only)
//	31    extended flag
type ChannelBitField uint32

const (
	typeMask         = 0x3
	positionalBit    = 1 << 2
	closingBit       = 1 << 3
	priorityOffset   = 4
	priorityMask     = 0x3
	sessionLowOffset = 6
	sessionLowMask   = 0x3
	amplitudeOffset  = 8
	amplitudeMask    = 0xff
	sessionHiOffset  = 16
	sessionHiMask    = 0x1f
	extendedBit      = 1 << 31
)

// ChannelDescriptor is the decoded form of one channel entry in a voice packet.
type ChannelDescriptor struct {
	Type       domain.ChannelType
	Recipient  uint16
	Properties domain.ChannelProperties
	Closing    bool
	Session    SessionNumber
}

func (d ChannelDescriptor) Key() domain.ChannelKey {
	return domain.ChannelKey{Type: d.Type, Recipient: d.Recipient}
}

// Bits packs everything except the recipient.
func (d ChannelDescriptor) Bits() ChannelBitField {
	var b uint32
	switch d.Type {
	case domain.ChannelPlayer, domain.ChannelRoom:
		b = uint32(d.Type) & typeMask
	default:
		core.Fatal("5c0f9a52-3f0e-4a6e-9d0b-61f1f0d6d8a1", "encoding channel with type %d", d.Type)
	}
	if d.Properties.Positional {
		b |= positionalBit
	}
	if d.Closing {
		b |= closingBit
	}
	b |= (uint32(d.Properties.Priority) & priorityMask) << priorityOffset
	b |= uint32(d.Properties.Amplitude) << amplitudeOffset

	s := uint32(d.Session.Value)
	b |= (s & sessionLowMask) << sessionLowOffset
	if d.Session.Width == SessionExtended {
		b |= ((s >> 2) & sessionHiMask) << sessionHiOffset
		b |= extendedBit
	}
	return ChannelBitField(b)
}

func (b ChannelBitField) Extended() bool { return b&extendedBit != 0 }

func (b ChannelBitField) Session() SessionNumber {
	low := uint8(b>>sessionLowOffset) & sessionLowMask
	if !b.Extended() {
		return LegacySession(low)
	}
	high := uint8(b>>sessionHiOffset) & sessionHiMask
	return ExtendedSession(high<<2 | low)
}

// Decode expands the bitfield; an unknown channel type is a protocol anomaly.
func (b ChannelBitField) Decode(recipient uint16) (ChannelDescriptor, error) {
	t := domain.ChannelType(b & typeMask)
	if t != domain.ChannelPlayer && t != domain.ChannelRoom {
		return ChannelDescriptor{}, fmt.Errorf("%w: %d", ErrBadChannelType, t)
	}
	return ChannelDescriptor{
		Type:      t,
		Recipient: recipient,
		Properties: domain.ChannelProperties{
			Priority:   domain.Priority((b >> priorityOffset) & priorityMask),
			Amplitude:  uint8((b >> amplitudeOffset) & amplitudeMask),
			Positional: b&positionalBit != 0,
		},
		Closing: b&closingBit != 0,
		Session: b.Session(),
	}, nil
}
