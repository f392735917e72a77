package server

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/dkeye/VoiceMux/internal/core"
	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type clientEntry struct {
	ConnID core.ConnID
	Conn   core.SignalConnection
	Cancel context.CancelFunc

	// Zero until the handshake completes.
	ID    domain.PeerID
	Name  string
	Codec domain.CodecSettings

	text *rate.Limiter
}

func (e *clientEntry) joined() bool { return e.ID != domain.NoPeer }

// Registry maps connections to peers. Peer ids are handed out sequentially
// and skip zero and ids still in use.
type Registry struct {
	mu     sync.RWMutex
	conns  map[core.ConnID]*clientEntry
	byID   map[domain.PeerID]*clientEntry
	byName map[string]*clientEntry
	lastID domain.PeerID
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[core.ConnID]*clientEntry),
		byID:   make(map[domain.PeerID]*clientEntry),
		byName: make(map[string]*clientEntry),
	}
}

func (r *Registry) Attach(cid core.ConnID, conn core.SignalConnection, cancel context.CancelFunc, text *rate.Limiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[cid] = &clientEntry{ConnID: cid, Conn: conn, Cancel: cancel, text: text}
	log.Info().Str("module", "server.registry").Str("conn", string(cid)).Msg("attached connection")
}

func (r *Registry) Get(cid core.ConnID) (*clientEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	return e, ok
}

func (r *Registry) ByID(id domain.PeerID) (*clientEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	return e, ok
}

func (r *Registry) ByName(name string) (*clientEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	return e, ok
}

// Assign gives the connection a fresh peer id under name.
func (r *Registry) Assign(cid core.ConnID, name string, codec domain.CodecSettings) (domain.PeerID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok {
		return domain.NoPeer, false
	}
	id, ok := r.nextIDLocked()
	if !ok {
		return domain.NoPeer, false
	}
	e.ID = id
	e.Name = name
	e.Codec = codec
	r.byID[id] = e
	r.byName[name] = e
	log.Info().Str("module", "server.registry").Str("conn", string(cid)).Uint16("peer", uint16(id)).Str("name", name).Msg("assigned peer id")
	return id, true
}

func (r *Registry) nextIDLocked() (domain.PeerID, bool) {
	for range 1 << 16 {
		r.lastID++
		if r.lastID == domain.NoPeer {
			continue
		}
		if _, used := r.byID[r.lastID]; !used {
			return r.lastID, true
		}
	}
	return domain.NoPeer, false
}

// Detach forgets the connection and returns what it was bound to.
func (r *Registry) Detach(cid core.ConnID) (*clientEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok {
		return nil, false
	}
	delete(r.conns, cid)
	if e.joined() {
		delete(r.byID, e.ID)
		if r.byName[e.Name] == e {
			delete(r.byName, e.Name)
		}
	}
	log.Info().Str("module", "server.registry").Str("conn", string(cid)).Uint16("peer", uint16(e.ID)).Msg("detached connection")
	return e, true
}

// Joined returns every handshaken client ordered by peer id.
func (r *Registry) Joined() []*clientEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*clientEntry, 0, len(r.byID))
	for _, id := range slices.Sorted(maps.Keys(r.byID)) {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) Cancel(cid core.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "server.registry").Str("conn", string(cid)).Msg("canceled connection")
	return true
}
