// Package roster tracks the peers known to the local client and the rooms
// they are in. Every change is reported through the event queue.
package roster

import (
	"maps"
	"slices"
	"sync"

	"github.com/dkeye/VoiceMux/internal/core"
	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/dkeye/VoiceMux/internal/protocol"
	"github.com/dkeye/VoiceMux/internal/staging"
	"github.com/dkeye/VoiceMux/internal/voice"
	"github.com/rs/zerolog/log"
)

// Peer is a copy of one roster entry.
type Peer struct {
	ID    domain.PeerID
	Name  string
	Codec domain.CodecSettings
	Rooms []domain.RoomName
	// Link is the direct connection to the peer, if one was introduced.
	Link core.PeerLink
}

type peer struct {
	id    domain.PeerID
	name  string
	codec domain.CodecSettings
	rooms map[domain.RoomName]struct{}
	link  core.PeerLink
}

func (p *peer) snapshot() Peer {
	rooms := slices.Sorted(maps.Keys(p.rooms))
	return Peer{ID: p.id, Name: p.name, Codec: p.codec, Rooms: rooms, Link: p.link}
}

type Roster struct {
	events    *staging.EventQueue
	receivers *voice.Receivers

	mu      sync.RWMutex
	byID    map[domain.PeerID]*peer
	byName  map[string]*peer
	rooms   map[domain.RoomName]map[domain.PeerID]struct{}
	pending map[domain.PeerID]core.PeerLink
}

func New(events *staging.EventQueue, receivers *voice.Receivers) *Roster {
	return &Roster{
		events:    events,
		receivers: receivers,
		byID:      make(map[domain.PeerID]*peer),
		byName:    make(map[string]*peer),
		rooms:     make(map[domain.RoomName]map[domain.PeerID]struct{}),
		pending:   make(map[domain.PeerID]core.PeerLink),
	}
}

// ApplySnapshot reconciles the table with a full roster from the authority.
func (r *Roster) ApplySnapshot(resp *protocol.HandshakeResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[domain.PeerID]protocol.PeerState, len(resp.Peers))
	for _, ps := range resp.Peers {
		want[ps.ID] = ps
	}

	for _, id := range r.sortedIDsLocked() {
		p := r.byID[id]
		if ps, ok := want[id]; !ok || ps.Name != p.name {
			r.removeLocked(p)
		}
	}
	for _, ps := range resp.Peers {
		if p, ok := r.byID[ps.ID]; ok {
			p.codec = ps.Codec
			continue
		}
		r.addLocked(ps.ID, ps.Name, ps.Codec)
	}

	membership := make(map[domain.PeerID]map[domain.RoomName]struct{})
	for _, room := range resp.Rooms {
		for _, id := range room.Members {
			if _, ok := r.byID[id]; !ok {
				continue
			}
			if membership[id] == nil {
				membership[id] = make(map[domain.RoomName]struct{})
			}
			membership[id][room.Name] = struct{}{}
		}
	}
	for _, id := range r.sortedIDsLocked() {
		r.setRoomsLocked(r.byID[id], membership[id])
	}
}

// PeerJoined adds a peer, or brings an existing one up to date.
func (r *Roster) PeerJoined(state *protocol.PeerState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[state.ID]
	if ok && p.name != state.Name {
		r.removeLocked(p)
		ok = false
	}
	if !ok {
		if other, taken := r.byName[state.Name]; taken {
			r.removeLocked(other)
		}
		p = r.addLocked(state.ID, state.Name, state.Codec)
	}
	p.codec = state.Codec
	rooms := make(map[domain.RoomName]struct{}, len(state.Rooms))
	for _, room := range state.Rooms {
		rooms[room] = struct{}{}
	}
	r.setRoomsLocked(p, rooms)
}

// PeerLeft removes a peer. Unknown ids are ignored.
func (r *Roster) PeerLeft(id domain.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
	if p, ok := r.byID[id]; ok {
		r.removeLocked(p)
	}
}

func (r *Roster) EnterRoom(id domain.PeerID, room domain.RoomName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		log.Debug().Str("module", "roster").Uint16("peer", uint16(id)).Str("room", string(room)).Msg("enter room for unknown peer")
		return
	}
	r.enterLocked(p, room)
}

func (r *Roster) ExitRoom(id domain.PeerID, room domain.RoomName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		log.Debug().Str("module", "roster").Uint16("peer", uint16(id)).Str("room", string(room)).Msg("exit room for unknown peer")
		return
	}
	r.exitLocked(p, room)
}

// Introduce attaches a direct link to a peer. If the peer is not known yet
// the link is held until it appears.
func (r *Roster) Introduce(id domain.PeerID, link core.PeerLink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byID[id]; ok {
		r.attachLocked(p, link)
		return
	}
	if old, ok := r.pending[id]; ok && old != link {
		old.Close()
	}
	r.pending[id] = link
	log.Debug().Str("module", "roster").Uint16("peer", uint16(id)).Msg("holding introduction for unknown peer")
}

// Clear forgets every peer, as after losing the authority.
func (r *Roster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.sortedIDsLocked() {
		r.removeLocked(r.byID[id])
	}
	for id, link := range r.pending {
		link.Close()
		delete(r.pending, id)
	}
}

func (r *Roster) sortedIDsLocked() []domain.PeerID {
	return slices.Sorted(maps.Keys(r.byID))
}

func (r *Roster) addLocked(id domain.PeerID, name string, codec domain.CodecSettings) *peer {
	p := &peer{id: id, name: name, codec: codec, rooms: make(map[domain.RoomName]struct{})}
	r.byID[id] = p
	r.byName[name] = p
	if link, ok := r.pending[id]; ok {
		delete(r.pending, id)
		p.link = link
	}
	r.events.Enqueue(staging.PeerJoined{Peer: id, Name: name})
	log.Debug().Str("module", "roster").Uint16("peer", uint16(id)).Str("name", name).Msg("peer joined")
	return p
}

func (r *Roster) removeLocked(p *peer) {
	for _, room := range slices.Sorted(maps.Keys(p.rooms)) {
		r.exitLocked(p, room)
	}
	delete(r.byID, p.id)
	if r.byName[p.name] == p {
		delete(r.byName, p.name)
	}
	if p.link != nil {
		p.link.Close()
		p.link = nil
	}
	if r.receivers != nil {
		r.receivers.Remove(p.id)
	}
	r.events.Enqueue(staging.PeerLeft{Peer: p.id, Name: p.name})
	log.Debug().Str("module", "roster").Uint16("peer", uint16(p.id)).Str("name", p.name).Msg("peer left")
}

func (r *Roster) attachLocked(p *peer, link core.PeerLink) {
	if p.link != nil && p.link != link {
		p.link.Close()
	}
	p.link = link
}

func (r *Roster) setRoomsLocked(p *peer, rooms map[domain.RoomName]struct{}) {
	for _, room := range slices.Sorted(maps.Keys(p.rooms)) {
		if _, keep := rooms[room]; !keep {
			r.exitLocked(p, room)
		}
	}
	for _, room := range slices.Sorted(maps.Keys(rooms)) {
		r.enterLocked(p, room)
	}
}

func (r *Roster) enterLocked(p *peer, room domain.RoomName) {
	if _, ok := p.rooms[room]; ok {
		return
	}
	p.rooms[room] = struct{}{}
	members := r.rooms[room]
	if members == nil {
		members = make(map[domain.PeerID]struct{})
		r.rooms[room] = members
	}
	members[p.id] = struct{}{}
	r.events.Enqueue(staging.EnteredRoom{Peer: p.id, Room: room})
}

func (r *Roster) exitLocked(p *peer, room domain.RoomName) {
	if _, ok := p.rooms[room]; !ok {
		return
	}
	delete(p.rooms, room)
	if members := r.rooms[room]; members != nil {
		delete(members, p.id)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	r.events.Enqueue(staging.ExitedRoom{Peer: p.id, Room: room})
}
