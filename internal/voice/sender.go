package voice

import (
	"slices"
	"sync"

	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/dkeye/VoiceMux/internal/pool"
	"github.com/dkeye/VoiceMux/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Identity is the local side of the session.
type Identity interface {
	LocalID() (domain.PeerID, bool)
	SessionID() uint32
}

// Directory resolves room membership.
type Directory interface {
	RoomMembers(room domain.RoomName) []domain.PeerID
}

// Queue accepts encoded voice packets for peers.
type Queue interface {
	Packet(fn func(dst []byte) []byte) pool.Buffer
	EnqueueUnreliableP2P(dests []domain.PeerID, packet pool.Buffer)
}

// ChannelHandle is returned by the Open methods and released with CloseChannel.
type ChannelHandle uint64

type openChannel struct {
	channel domain.Channel
	session uint8
	closing bool
	sent    bool
}

type channelDelta struct {
	open    bool
	channel domain.Channel
}

// Sender owns the local speaker's open channels. Opens and closes are
// recorded as deltas and applied together right before the next frame.
type Sender struct {
	identity Identity
	dir      Directory
	queue    Queue

	mu           sync.Mutex
	nextHandle   ChannelHandle
	handles      map[ChannelHandle]domain.ChannelKey
	refs         map[domain.ChannelKey]int
	deltas       []channelDelta
	open         []*openChannel
	session      protocol.SessionNumber
	closePending bool
	seq          uint16

	dests    []domain.PeerID
	channels []protocol.ChannelDescriptor
}

func NewSender(identity Identity, dir Directory, queue Queue) *Sender {
	return &Sender{
		identity: identity,
		dir:      dir,
		queue:    queue,
		handles:  make(map[ChannelHandle]domain.ChannelKey),
		refs:     make(map[domain.ChannelKey]int),
		session:  protocol.ExtendedSession(0),
	}
}

func (s *Sender) OpenPlayerChannel(id domain.PeerID, props domain.ChannelProperties) ChannelHandle {
	return s.openChannel(domain.PlayerChannel(id, props))
}

func (s *Sender) OpenRoomChannel(room domain.RoomName, props domain.ChannelProperties) ChannelHandle {
	return s.openChannel(domain.RoomChannel(room, props))
}

func (s *Sender) openChannel(ch domain.Channel) ChannelHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandle++
	h := s.nextHandle
	key := ch.Key()
	s.handles[h] = key
	s.refs[key]++
	s.deltas = append(s.deltas, channelDelta{open: true, channel: ch})
	return h
}

// CloseChannel releases a handle. The channel closes once every handle to the
// same target is released. Unknown handles are ignored.
func (s *Sender) CloseChannel(h ChannelHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.handles[h]
	if !ok {
		return false
	}
	delete(s.handles, h)
	s.refs[key]--
	if s.refs[key] > 0 {
		return true
	}
	delete(s.refs, key)
	s.deltas = append(s.deltas, channelDelta{channel: domain.Channel{Type: key.Type, Recipient: key.Recipient}})
	return true
}

// ChannelSession is the packet level session counter.
func (s *Sender) ChannelSession() protocol.SessionNumber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// OpenChannels counts channels in the open set, closing ones included.
func (s *Sender) OpenChannels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyDeltas()
	return len(s.open)
}

func (s *Sender) find(key domain.ChannelKey) int {
	return slices.IndexFunc(s.open, func(o *openChannel) bool { return o.channel.Key() == key })
}

func (s *Sender) fullyClosing() bool {
	if len(s.open) == 0 {
		return false
	}
	for _, o := range s.open {
		if !o.closing {
			return false
		}
	}
	return true
}

// applyDeltas folds the recorded deltas into the open set. Only the state
// after the whole batch decides whether a close is pending.
func (s *Sender) applyDeltas() {
	if len(s.deltas) == 0 {
		return
	}
	before := s.fullyClosing()
	for _, d := range s.deltas {
		i := s.find(d.channel.Key())
		switch {
		case d.open && i < 0:
			s.open = append(s.open, &openChannel{channel: d.channel})
		case d.open:
			o := s.open[i]
			if o.closing {
				o.closing = false
				if o.sent {
					o.session = (o.session + 1) % uint8(protocol.SessionExtended.Range())
				}
			}
			o.channel.Properties = d.channel.Properties
		case i >= 0:
			s.open[i].closing = true
		}
	}
	clear(s.deltas)
	s.deltas = s.deltas[:0]

	after := s.fullyClosing()
	switch {
	case after && !before:
		s.closePending = true
	case !after:
		s.closePending = false
	}
}

// Send encodes frame for every open channel and queues it for the listeners.
// It reports whether a packet was queued.
func (s *Sender) Send(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.applyDeltas()
	if len(s.open) == 0 {
		return false
	}
	self, ok := s.identity.LocalID()
	if !ok {
		return false
	}

	s.dests = s.dests[:0]
	s.channels = s.channels[:0]
	for _, o := range s.open {
		switch o.channel.Type {
		case domain.ChannelPlayer:
			s.addDest(self, domain.PeerID(o.channel.Recipient))
		case domain.ChannelRoom:
			for _, id := range s.dir.RoomMembers(o.channel.Room) {
				s.addDest(self, id)
			}
		}
		s.channels = append(s.channels, protocol.ChannelDescriptor{
			Type:       o.channel.Type,
			Recipient:  o.channel.Recipient,
			Properties: o.channel.Properties,
			Closing:    o.closing,
			Session:    protocol.ExtendedSession(o.session),
		})
	}
	if len(s.dests) == 0 {
		return false
	}

	pkt := &protocol.VoicePacket{
		SenderID:       self,
		ChannelSession: s.session,
		Sequence:       s.seq,
		Channels:       s.channels,
		Payload:        frame,
	}
	sessionID := s.identity.SessionID()
	buf := s.queue.Packet(func(dst []byte) []byte { return protocol.AppendVoice(dst, sessionID, pkt) })
	s.queue.EnqueueUnreliableP2P(s.dests, buf)
	s.seq++

	s.open = slices.DeleteFunc(s.open, func(o *openChannel) bool { return o.closing })
	if len(s.open) == 0 && s.closePending {
		s.session = s.session.Next()
		s.closePending = false
		log.Debug().Str("module", "voice.sender").Stringer("session", s.session).Msg("channel session advanced")
	}
	for _, o := range s.open {
		o.sent = true
	}
	return true
}

func (s *Sender) addDest(self, id domain.PeerID) {
	if id == self || id == domain.NoPeer {
		return
	}
	if !slices.Contains(s.dests, id) {
		s.dests = append(s.dests, id)
	}
}
