package server

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case NoAction:
		return "none"
	case MarkSlow:
		return "mark_slow"
	case KickMember:
		return "kick"
	case DropFrame:
		return "drop"
	default:
		return "unknown"
	}
}

// Policy decides what happens to a client whose outbound queue is full.
type Policy interface {
	OnBackPressure(peer PeerInfo, reliable bool) BackpressureAction
}

// SimplePolicy drops unreliable traffic and kicks clients that fall behind
// on reliable traffic.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(_ PeerInfo, reliable bool) BackpressureAction {
	if reliable {
		return KickMember
	}
	return DropFrame
}
