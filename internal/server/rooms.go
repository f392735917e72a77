package server

import (
	"maps"
	"slices"
	"sync"

	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/dkeye/VoiceMux/internal/protocol"
	"github.com/rs/zerolog/log"
)

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"member_count"`
}

// RoomManager tracks room membership. Rooms exist while they have members.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomName]map[domain.PeerID]struct{}
}

func NewRoomManager() *RoomManager {
	return &RoomManager{rooms: make(map[domain.RoomName]map[domain.PeerID]struct{})}
}

// Join reports whether id was not already a member.
func (m *RoomManager) Join(name domain.RoomName, id domain.PeerID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.rooms[name]
	if !ok {
		members = make(map[domain.PeerID]struct{})
		m.rooms[name] = members
	}
	if _, in := members[id]; in {
		return false
	}
	members[id] = struct{}{}
	log.Info().Str("module", "server.rooms").Str("room", string(name)).Uint16("peer", uint16(id)).Msg("member added")
	return true
}

// Leave reports whether id was a member.
func (m *RoomManager) Leave(name domain.RoomName, id domain.PeerID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(name, id)
}

func (m *RoomManager) leaveLocked(name domain.RoomName, id domain.PeerID) bool {
	members, ok := m.rooms[name]
	if !ok {
		return false
	}
	if _, in := members[id]; !in {
		return false
	}
	delete(members, id)
	if len(members) == 0 {
		delete(m.rooms, name)
	}
	log.Info().Str("module", "server.rooms").Str("room", string(name)).Uint16("peer", uint16(id)).Msg("member removed")
	return true
}

// LeaveAll removes id from every room and returns the rooms it left.
func (m *RoomManager) LeaveAll(id domain.PeerID) []domain.RoomName {
	m.mu.Lock()
	defer m.mu.Unlock()
	var left []domain.RoomName
	for _, name := range slices.Sorted(maps.Keys(m.rooms)) {
		if m.leaveLocked(name, id) {
			left = append(left, name)
		}
	}
	return left
}

func (m *RoomManager) RoomsOf(id domain.PeerID) []domain.RoomName {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.RoomName
	for _, name := range slices.Sorted(maps.Keys(m.rooms)) {
		if _, in := m.rooms[name][id]; in {
			out = append(out, name)
		}
	}
	return out
}

func (m *RoomManager) Members(name domain.RoomName) []domain.PeerID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.rooms[name]))
}

func (m *RoomManager) List() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for _, name := range slices.Sorted(maps.Keys(m.rooms)) {
		out = append(out, RoomInfo{Name: name, MemberCount: len(m.rooms[name])})
	}
	return out
}

// Snapshot is the room part of a handshake response.
func (m *RoomManager) Snapshot() []protocol.RoomMembers {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]protocol.RoomMembers, 0, len(m.rooms))
	for _, name := range slices.Sorted(maps.Keys(m.rooms)) {
		out = append(out, protocol.RoomMembers{Name: name, Members: slices.Sorted(maps.Keys(m.rooms[name]))})
	}
	return out
}
