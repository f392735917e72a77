package domain

import "math"

type ChannelType uint8

const (
	ChannelPlayer ChannelType = iota
	ChannelRoom
)

func (t ChannelType) String() string {
	switch t {
	case ChannelPlayer:
		return "player"
	case ChannelRoom:
		return "room"
	default:
		return "invalid"
	}
}

type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityDefault
	PriorityMedium
	PriorityHigh
)

// MaxAmplitude is the largest amplitude multiplier the wire can carry.
const MaxAmplitude = 2.0

// ChannelProperties is the playback metadata attached to every channel.
// Amplitude is kept in its quantized wire form so what is sent is exactly what is received.
type ChannelProperties struct {
	Priority   Priority
	Amplitude  uint8
	Positional bool
}

// DefaultProperties plays at unit gain with default priority.
func DefaultProperties() ChannelProperties {
	return ChannelProperties{Priority: PriorityDefault, Amplitude: QuantizeAmplitude(1)}
}

// QuantizeAmplitude maps a multiplier in [0, MaxAmplitude] onto 8 bits.
func QuantizeAmplitude(m float32) uint8 {
	if m <= 0 || math.IsNaN(float64(m)) {
		return 0
	}
	if m >= MaxAmplitude {
		return math.MaxUint8
	}
	return uint8(math.Round(float64(m) / MaxAmplitude * math.MaxUint8))
}

func AmplitudeMultiplier(q uint8) float32 {
	return float32(q) / math.MaxUint8 * MaxAmplitude
}

// Channel is a logical one-to-one (Player) or one-to-many (Room) destination.
type Channel struct {
	Type       ChannelType
	Recipient  uint16
	Room       RoomName
	Properties ChannelProperties
}

func PlayerChannel(id PeerID, props ChannelProperties) Channel {
	return Channel{Type: ChannelPlayer, Recipient: uint16(id), Properties: props}
}

func RoomChannel(name RoomName, props ChannelProperties) Channel {
	return Channel{Type: ChannelRoom, Recipient: uint16(name.ID()), Room: name, Properties: props}
}

// ChannelKey identifies a channel target independent of its properties.
type ChannelKey struct {
	Type      ChannelType
	Recipient uint16
}

func (c Channel) Key() ChannelKey { return ChannelKey{Type: c.Type, Recipient: c.Recipient} }
