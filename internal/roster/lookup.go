package roster

import (
	"maps"
	"slices"

	"github.com/dkeye/VoiceMux/internal/core"
	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/dkeye/VoiceMux/internal/voice"
)

func (r *Roster) ByID(id domain.PeerID) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return Peer{}, false
	}
	return p.snapshot(), true
}

func (r *Roster) ByName(name string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	if !ok {
		return Peer{}, false
	}
	return p.snapshot(), true
}

func (r *Roster) Has(id domain.PeerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

// Peers returns every known peer ordered by id.
func (r *Roster) Peers() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Peer, 0, len(r.byID))
	for _, id := range slices.Sorted(maps.Keys(r.byID)) {
		out = append(out, r.byID[id].snapshot())
	}
	return out
}

// RoomMembers returns a sorted copy of the members of room.
func (r *Roster) RoomMembers(room domain.RoomName) []domain.PeerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.rooms[room]))
}

// Rooms lists every room with at least one member.
func (r *Roster) Rooms() []domain.RoomName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.rooms))
}

func (r *Roster) Link(id domain.PeerID) (core.PeerLink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok || p.link == nil {
		return nil, false
	}
	return p.link, true
}

// PendingIntroductions is the number of links waiting for their peer.
func (r *Roster) PendingIntroductions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}

// Receiver returns the voice receiver of a known peer, creating it on first use.
func (r *Roster) Receiver(id domain.PeerID) (*voice.Receiver, bool) {
	if r.receivers == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.byID[id]; !ok {
		return nil, false
	}
	return r.receivers.Get(id), true
}
