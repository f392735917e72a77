package core

// PeerLink is a direct connection to one remote peer.
type PeerLink interface {
	SendReliable(packet []byte) error
	SendUnreliable(packet []byte) error
	// Open reports whether both lanes are usable.
	Open() bool
	Close()
}
