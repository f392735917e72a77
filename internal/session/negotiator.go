package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/VoiceMux/internal/core"
	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/rs/zerolog/log"
)

type State int32

const (
	StateNone State = iota
	StateNegotiating
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// DefaultResendInterval is how long a handshake request may go unanswered.
const DefaultResendInterval = 2 * time.Second

// Negotiator drives one handshake. A new Negotiator is needed after Disconnect.
type Negotiator struct {
	session  *Session
	interval time.Duration

	state   atomic.Int32
	started atomic.Bool

	mu          sync.Mutex
	lastRequest time.Time
}

func NewNegotiator(s *Session, interval time.Duration) *Negotiator {
	if interval <= 0 {
		interval = DefaultResendInterval
	}
	return &Negotiator{session: s, interval: interval}
}

func (n *Negotiator) Session() *Session { return n.session }

func (n *Negotiator) State() State { return State(n.state.Load()) }

// Start may be called any number of times before Disconnect.
func (n *Negotiator) Start() {
	if n.State() == StateDisconnected {
		core.Fatal("b3e0c1d4-6c52-4e0a-8a7f-3f1d2b9e4c77", "negotiator started after disconnect")
	}
	n.started.Store(true)
}

// Update reports whether a handshake request should be sent now.
func (n *Negotiator) Update(now time.Time) bool {
	if !n.started.Load() {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.State() {
	case StateNone:
		if !n.state.CompareAndSwap(int32(StateNone), int32(StateNegotiating)) {
			return false
		}
	case StateNegotiating:
		if now.Sub(n.lastRequest) < n.interval {
			return false
		}
		log.Debug().Str("module", "session").Str("name", n.session.LocalName()).Msg("resending handshake")
	default:
		return false
	}
	n.lastRequest = now
	return true
}

// ReceiveResponse accepts the first response while negotiating and ignores
// the rest. It reports whether this call made the session connected.
func (n *Negotiator) ReceiveResponse(sessionID uint32, localID domain.PeerID) bool {
	if !n.state.CompareAndSwap(int32(StateNegotiating), int32(StateConnected)) {
		log.Debug().Str("module", "session").Str("state", n.State().String()).Msg("ignored handshake response")
		return false
	}
	n.session.assign(sessionID, localID)
	log.Info().Str("module", "session").
		Uint32("session_id", sessionID).
		Uint16("local_id", uint16(localID)).
		Msg("connected")
	return true
}

func (n *Negotiator) Disconnect() {
	prev := State(n.state.Swap(int32(StateDisconnected)))
	if prev != StateDisconnected {
		log.Info().Str("module", "session").Str("from", prev.String()).Msg("disconnected")
	}
}
