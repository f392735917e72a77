// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strconv"
)

const MaxNameLen = 36

var (
	ErrNameTooLong = errors.New("name too long")
	ErrNameEmpty   = errors.New("name empty")
)

// PeerID is the authority-assigned numeric id of a participant.
type PeerID uint16

// NoPeer is never assigned by the authority.
const NoPeer PeerID = 0

func (id PeerID) String() string { return strconv.Itoa(int(id)) }

// CodecSettings describes the audio format a peer encodes with.
type CodecSettings struct {
	Codec      uint8  `json:"codec" mapstructure:"codec"`
	FrameSize  uint32 `json:"frame_size" mapstructure:"frame_size"`
	SampleRate uint32 `json:"sample_rate" mapstructure:"sample_rate"`
}

// ValidateName checks player and room names before they go on the wire.
func ValidateName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	return nil
}
