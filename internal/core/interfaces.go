package core

//go:generate mockgen -source=interfaces.go -destination=mocks/interfaces_mock.go -package=mocks

import "github.com/dkeye/VoiceMux/internal/domain"

// Transport is what the send queue drains into. Authority sends go to the
// server; P2P sends go to every listed peer, directly or relayed.
type Transport interface {
	SendReliable(packet []byte) error
	SendUnreliable(packet []byte) error
	SendReliableP2P(dests []domain.PeerID, packet []byte) error
	SendUnreliableP2P(dests []domain.PeerID, packet []byte) error
}

// ServerLink is the client's connection to the authority.
// Packets received on it are handed to the handler given at dial time.
type ServerLink interface {
	SendReliable(packet []byte) error
	SendUnreliable(packet []byte) error
	Close()
}

// PacketHandler consumes raw inbound packets on a transport goroutine.
type PacketHandler func(packet []byte)
