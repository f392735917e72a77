// Package server is the authority: it assigns peer ids, keeps the shared
// roster and room membership, and relays packets between clients.
package server

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/dkeye/VoiceMux/internal/core"
	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/dkeye/VoiceMux/internal/protocol"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type Options struct {
	// SessionID is chosen at random when zero.
	SessionID uint32
	// TextRate limits relayed text messages per client; zero disables the limit.
	TextRate  rate.Limit
	TextBurst int
	Policy    Policy
}

type PeerInfo struct {
	ID    domain.PeerID     `json:"id"`
	Name  string            `json:"name"`
	Rooms []domain.RoomName `json:"rooms"`
}

type Server struct {
	sessionID uint32
	reg       *Registry
	rooms     *RoomManager
	policy    Policy
	textRate  rate.Limit
	textBurst int

	// handshakes are serialized so id assignment and snapshots agree.
	hsMu sync.Mutex
}

func New(opts Options) *Server {
	sid := opts.SessionID
	for sid == 0 {
		sid = rand.Uint32()
	}
	if opts.Policy == nil {
		opts.Policy = SimplePolicy{}
	}
	if opts.TextBurst <= 0 {
		opts.TextBurst = 1
	}
	log.Info().Str("module", "server").Uint32("session_id", sid).Msg("authority session")
	return &Server{
		sessionID: sid,
		reg:       NewRegistry(),
		rooms:     NewRoomManager(),
		policy:    opts.Policy,
		textRate:  opts.TextRate,
		textBurst: opts.TextBurst,
	}
}

func (s *Server) SessionID() uint32 { return s.sessionID }

// Attach registers a new connection. Nothing is sent until it handshakes.
func (s *Server) Attach(cid core.ConnID, conn core.SignalConnection, cancel context.CancelFunc) {
	var limiter *rate.Limiter
	if s.textRate > 0 {
		limiter = rate.NewLimiter(s.textRate, s.textBurst)
	}
	s.reg.Attach(cid, conn, cancel, limiter)
}

// Detach forgets the connection and tells everyone the peer left.
func (s *Server) Detach(cid core.ConnID) {
	e, ok := s.reg.Detach(cid)
	if !ok || !e.joined() {
		return
	}
	s.rooms.LeaveAll(e.ID)
	s.broadcast(domain.NoPeer, protocol.AppendRemoveClient(nil, s.sessionID, e.ID), true)
}

func (s *Server) kick(e *clientEntry, reason string) {
	log.Warn().Str("module", "server").Str("conn", string(e.ConnID)).Uint16("peer", uint16(e.ID)).Str("reason", reason).Msg("kicking client")
	s.Detach(e.ConnID)
	if e.Cancel != nil {
		e.Cancel()
	}
	e.Conn.Close()
}

// HandlePacket processes one packet read from cid.
func (s *Server) HandlePacket(cid core.ConnID, data []byte) {
	h, body, err := protocol.Decode(data)
	if err != nil {
		log.Debug().Str("module", "server").Str("conn", string(cid)).Err(err).Msg("dropped undecodable packet")
		return
	}
	e, ok := s.reg.Get(cid)
	if !ok {
		return
	}
	if h.Type == protocol.TypeHandshakeRequest {
		s.handshake(e, body)
		return
	}
	if h.SessionID != s.sessionID {
		log.Debug().Str("module", "server").Str("conn", string(cid)).Uint32("got", h.SessionID).Msg("wrong session")
		s.send(e, protocol.AppendErrorWrongSession(nil, s.sessionID), true)
		return
	}
	if !e.joined() {
		log.Debug().Str("module", "server").Str("conn", string(cid)).Stringer("type", h.Type).Msg("packet before handshake")
		return
	}

	switch h.Type {
	case protocol.TypeClientState:
		s.clientState(e, body)
	case protocol.TypeDeltaClientState:
		s.deltaState(e, body, data)
	case protocol.TypeServerRelayReliable, protocol.TypeServerRelayUnreliable:
		s.relay(e, h.Type, body)
	case protocol.TypePeerSignal:
		s.peerSignal(e, body, data)
	default:
		log.Debug().Str("module", "server").Uint16("peer", uint16(e.ID)).Stringer("type", h.Type).Msg("unexpected packet type")
	}
}

func (s *Server) handshake(e *clientEntry, body *protocol.Reader) {
	req, err := protocol.ParseHandshakeRequest(body)
	if err != nil {
		log.Debug().Str("module", "server").Str("conn", string(e.ConnID)).Err(err).Msg("bad handshake")
		return
	}
	if err := domain.ValidateName(req.Name); err != nil {
		log.Warn().Str("module", "server").Str("conn", string(e.ConnID)).Err(err).Msg("rejected handshake")
		return
	}

	s.hsMu.Lock()
	defer s.hsMu.Unlock()

	// A resent request after a lost response gets the same answer.
	if e.joined() {
		s.sendHandshake(e)
		return
	}
	if old, ok := s.reg.ByName(req.Name); ok && old != e {
		s.kick(old, "name taken by a new connection")
	}
	id, ok := s.reg.Assign(e.ConnID, req.Name, req.Codec)
	if !ok {
		log.Error().Str("module", "server").Str("conn", string(e.ConnID)).Msg("no free peer id")
		return
	}
	s.sendHandshake(e)
	state := &protocol.PeerState{ID: id, Name: req.Name, Codec: req.Codec}
	s.broadcast(id, protocol.AppendClientState(nil, s.sessionID, state), true)
}

func (s *Server) sendHandshake(e *clientEntry) {
	resp := &protocol.HandshakeResponse{LocalID: e.ID, Rooms: s.rooms.Snapshot()}
	for _, c := range s.reg.Joined() {
		resp.Peers = append(resp.Peers, protocol.PeerState{ID: c.ID, Name: c.Name, Codec: c.Codec})
	}
	s.send(e, protocol.AppendHandshakeResponse(nil, s.sessionID, resp), true)
}

func (s *Server) clientState(e *clientEntry, body *protocol.Reader) {
	st, err := protocol.ParseClientState(body)
	if err != nil || st.ID != e.ID {
		log.Debug().Str("module", "server").Uint16("peer", uint16(e.ID)).Err(err).Msg("dropped client state")
		return
	}
	want := make(map[domain.RoomName]bool, len(st.Rooms))
	for _, room := range st.Rooms {
		want[room] = true
	}
	for _, room := range s.rooms.RoomsOf(e.ID) {
		if !want[room] {
			s.rooms.Leave(room, e.ID)
		}
	}
	for room := range want {
		s.rooms.Join(room, e.ID)
	}
	full := &protocol.PeerState{ID: e.ID, Name: e.Name, Codec: e.Codec, Rooms: s.rooms.RoomsOf(e.ID)}
	s.broadcast(e.ID, protocol.AppendClientState(nil, s.sessionID, full), true)
}

func (s *Server) deltaState(e *clientEntry, body *protocol.Reader, raw []byte) {
	d, err := protocol.ParseDeltaClientState(body)
	if err != nil || d.ID != e.ID || d.Room == "" {
		log.Debug().Str("module", "server").Uint16("peer", uint16(e.ID)).Err(err).Msg("dropped room delta")
		return
	}
	var changed bool
	if d.Joined {
		changed = s.rooms.Join(d.Room, e.ID)
	} else {
		changed = s.rooms.Leave(d.Room, e.ID)
	}
	if changed {
		s.broadcast(domain.NoPeer, raw, true)
	}
}

func (s *Server) relay(e *clientEntry, t protocol.PacketType, body *protocol.Reader) {
	rel, err := protocol.ParseServerRelay(t, body)
	if err != nil {
		log.Debug().Str("module", "server").Uint16("peer", uint16(e.ID)).Err(err).Msg("dropped relay")
		return
	}
	if !s.relayable(e, rel.Inner) {
		return
	}
	for _, id := range rel.Destinations {
		if id == e.ID {
			continue
		}
		if target, ok := s.reg.ByID(id); ok {
			s.send(target, rel.Inner, rel.Reliable)
		}
	}
}

// relayable accepts voice and text sent in the relaying client's own name.
func (s *Server) relayable(e *clientEntry, inner []byte) bool {
	h, body, err := protocol.Decode(inner)
	if err != nil {
		log.Debug().Str("module", "server").Uint16("peer", uint16(e.ID)).Err(err).Msg("dropped relay with bad inner packet")
		return false
	}
	var sender domain.PeerID
	switch h.Type {
	case protocol.TypeVoiceData:
		vh, err := protocol.ReadVoiceHeader(body)
		if err != nil {
			return false
		}
		sender = vh.SenderID
	case protocol.TypeTextData:
		tp, err := protocol.ParseText(body)
		if err != nil {
			return false
		}
		if e.text != nil && !e.text.Allow() {
			log.Warn().Str("module", "server").Uint16("peer", uint16(e.ID)).Msg("text rate limited")
			return false
		}
		sender = tp.SenderID
	default:
		log.Debug().Str("module", "server").Uint16("peer", uint16(e.ID)).Stringer("type", h.Type).Msg("refused to relay packet type")
		return false
	}
	if sender != e.ID {
		log.Debug().Str("module", "server").Uint16("peer", uint16(e.ID)).Uint16("claimed", uint16(sender)).Msg("dropped relay with spoofed sender")
		return false
	}
	return true
}

func (s *Server) peerSignal(e *clientEntry, body *protocol.Reader, raw []byte) {
	sig, err := protocol.ParsePeerSignal(body)
	if err != nil || sig.From != e.ID {
		log.Debug().Str("module", "server").Uint16("peer", uint16(e.ID)).Err(err).Msg("dropped peer signal")
		return
	}
	if target, ok := s.reg.ByID(sig.To); ok {
		s.send(target, raw, true)
	}
}

// broadcast sends packet to every joined client except the one given.
func (s *Server) broadcast(except domain.PeerID, packet []byte, reliable bool) {
	sent, dropped := 0, 0
	for _, c := range s.reg.Joined() {
		if c.ID == except {
			continue
		}
		if s.send(c, packet, reliable) {
			sent++
		} else {
			dropped++
		}
	}
	log.Debug().Str("module", "server").Int("sent_to", sent).Int("dropped", dropped).Msg("broadcast result")
}

func (s *Server) send(e *clientEntry, packet []byte, reliable bool) bool {
	err := e.Conn.TrySend(core.Frame(packet))
	if err == nil {
		return true
	}
	info := PeerInfo{ID: e.ID, Name: e.Name}
	switch action := s.policy.OnBackPressure(info, reliable); action {
	case KickMember:
		s.kick(e, err.Error())
	case MarkSlow, DropFrame, NoAction:
		log.Debug().Str("module", "server").Uint16("peer", uint16(e.ID)).Stringer("action", action).Err(err).Msg("send failed")
	}
	return false
}

// Peers lists joined clients with their rooms.
func (s *Server) Peers() []PeerInfo {
	joined := s.reg.Joined()
	out := make([]PeerInfo, 0, len(joined))
	for _, c := range joined {
		out = append(out, PeerInfo{ID: c.ID, Name: c.Name, Rooms: s.rooms.RoomsOf(c.ID)})
	}
	return out
}

func (s *Server) Rooms() []RoomInfo { return s.rooms.List() }

func (s *Server) RoomMembers(room domain.RoomName) []domain.PeerID { return s.rooms.Members(room) }

// Kick disconnects a joined peer.
func (s *Server) Kick(id domain.PeerID) bool {
	e, ok := s.reg.ByID(id)
	if !ok {
		return false
	}
	s.kick(e, "kicked by operator")
	return true
}

// Shutdown cancels every joined connection's pumps.
func (s *Server) Shutdown() {
	for _, e := range s.reg.Joined() {
		s.reg.Cancel(e.ConnID)
	}
}
