package voice

import (
	"sync"
	"time"

	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/dkeye/VoiceMux/internal/staging"
)

// Receivers holds one lazily created Receiver per remote speaker.
type Receivers struct {
	events   *staging.EventQueue
	listener Listener
	timeouts Timeouts

	mu sync.Mutex
	m  map[domain.PeerID]*Receiver
}

func NewReceivers(events *staging.EventQueue, listener Listener, timeouts Timeouts) *Receivers {
	return &Receivers{
		events:   events,
		listener: listener,
		timeouts: timeouts,
		m:        make(map[domain.PeerID]*Receiver),
	}
}

func (rs *Receivers) Get(peer domain.PeerID) *Receiver {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if r, ok := rs.m[peer]; ok {
		return r
	}
	r := NewReceiver(peer, rs.events, rs.listener, rs.timeouts)
	rs.m[peer] = r
	return r
}

// Remove closes and forgets the receiver of peer, if there is one.
func (rs *Receivers) Remove(peer domain.PeerID) {
	rs.mu.Lock()
	r, ok := rs.m[peer]
	delete(rs.m, peer)
	rs.mu.Unlock()
	if ok {
		r.Close()
	}
}

func (rs *Receivers) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.m)
}

func (rs *Receivers) CheckTimeouts(now time.Time) {
	rs.mu.Lock()
	list := make([]*Receiver, 0, len(rs.m))
	for _, r := range rs.m {
		list = append(list, r)
	}
	rs.mu.Unlock()

	for _, r := range list {
		r.CheckTimeout(now)
	}
}

// Reset closes every receiver and forgets them all.
func (rs *Receivers) Reset() {
	rs.mu.Lock()
	old := rs.m
	rs.m = make(map[domain.PeerID]*Receiver)
	rs.mu.Unlock()
	for _, r := range old {
		r.Close()
	}
}
