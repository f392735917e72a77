package staging

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/dkeye/VoiceMux/internal/core"
	"github.com/dkeye/VoiceMux/internal/domain"
	"github.com/dkeye/VoiceMux/internal/pool"
	"github.com/rs/zerolog/log"
)

// LocalIdentity tells the send queue which peer it must never address.
type LocalIdentity interface {
	LocalID() (domain.PeerID, bool)
}

type peerItem struct {
	dests  []domain.PeerID
	packet pool.Buffer
}

// SendQueue has four independent lanes. Order is kept within a lane only.
type SendQueue struct {
	local   LocalIdentity
	buffers *pool.Bytes
	lists   *pool.Lists[domain.PeerID]

	reliable      Locked[[]pool.Buffer]
	unreliable    Locked[[]pool.Buffer]
	reliableP2P   Locked[[]peerItem]
	unreliableP2P Locked[[]peerItem]

	stopped atomic.Bool
}

func NewSendQueue(local LocalIdentity, buffers *pool.Bytes) *SendQueue {
	return &SendQueue{
		local:   local,
		buffers: buffers,
		lists:   pool.NewLists[domain.PeerID](),
	}
}

// Packet returns a pooled buffer filled by fn. Ownership passes to the queue
// when the buffer is enqueued.
func (q *SendQueue) Packet(fn func(dst []byte) []byte) pool.Buffer {
	b := q.buffers.Get()
	b.Fill(fn)
	return b
}

func (q *SendQueue) EnqueueReliable(packet pool.Buffer) {
	q.enqueueServer(&q.reliable, packet)
}

func (q *SendQueue) EnqueueUnreliable(packet pool.Buffer) {
	q.enqueueServer(&q.unreliable, packet)
}

func (q *SendQueue) EnqueueReliableP2P(dests []domain.PeerID, packet pool.Buffer) {
	q.enqueuePeers(&q.reliableP2P, dests, packet)
}

func (q *SendQueue) EnqueueUnreliableP2P(dests []domain.PeerID, packet pool.Buffer) {
	q.enqueuePeers(&q.unreliableP2P, dests, packet)
}

func (q *SendQueue) enqueueServer(lane *Locked[[]pool.Buffer], packet pool.Buffer) {
	queued := false
	lane.With(func(items *[]pool.Buffer) {
		if !q.stopped.Load() {
			*items = append(*items, packet)
			queued = true
		}
	})
	if !queued {
		q.buffers.Put(packet)
	}
}

// enqueuePeers copies dests into a pooled list without the local peer.
// The caller keeps ownership of dests.
func (q *SendQueue) enqueuePeers(lane *Locked[[]peerItem], dests []domain.PeerID, packet pool.Buffer) {
	if q.stopped.Load() {
		q.buffers.Put(packet)
		return
	}
	self, hasSelf := q.local.LocalID()
	list := q.lists.Get()
	for _, id := range dests {
		if hasSelf && id == self {
			continue
		}
		if !slices.Contains(list, id) {
			list = append(list, id)
		}
	}
	if len(list) == 0 {
		q.lists.Put(list)
		q.buffers.Put(packet)
		log.Debug().Str("module", "staging").Msg("dropped p2p packet with no destinations")
		return
	}
	queued := false
	lane.With(func(items *[]peerItem) {
		if !q.stopped.Load() {
			*items = append(*items, peerItem{dests: list, packet: packet})
			queued = true
		}
	})
	if !queued {
		q.lists.Put(list)
		q.buffers.Put(packet)
	}
}

// Pending returns the number of queued packets across all lanes.
func (q *SendQueue) Pending() int {
	n := 0
	for _, lane := range []*Locked[[]pool.Buffer]{&q.reliable, &q.unreliable} {
		lane.With(func(items *[]pool.Buffer) { n += len(*items) })
	}
	for _, lane := range []*Locked[[]peerItem]{&q.reliableP2P, &q.unreliableP2P} {
		lane.With(func(items *[]peerItem) { n += len(*items) })
	}
	return n
}

// Flush drains every lane into t and recycles the buffers. A failed send
// does not stop the remaining ones.
func (q *SendQueue) Flush(t core.Transport) error {
	var errs []error
	errs = q.flushServer(q.reliable.Take(), t.SendReliable, "reliable", errs)
	errs = q.flushServer(q.unreliable.Take(), t.SendUnreliable, "unreliable", errs)
	errs = q.flushPeers(q.reliableP2P.Take(), t.SendReliableP2P, "reliable_p2p", errs)
	errs = q.flushPeers(q.unreliableP2P.Take(), t.SendUnreliableP2P, "unreliable_p2p", errs)
	return errors.Join(errs...)
}

func (q *SendQueue) flushServer(items []pool.Buffer, send func([]byte) error, lane string, errs []error) []error {
	for _, b := range items {
		if err := send(b.Bytes()); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", lane, err))
		}
		q.buffers.Put(b)
	}
	return errs
}

func (q *SendQueue) flushPeers(items []peerItem, send func([]domain.PeerID, []byte) error, lane string, errs []error) []error {
	for _, it := range items {
		if err := send(it.dests, it.packet.Bytes()); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", lane, err))
		}
		q.buffers.Put(it.packet)
		q.lists.Put(it.dests)
	}
	return errs
}

// Stop discards everything queued. Later enqueues are dropped.
func (q *SendQueue) Stop() {
	q.stopped.Store(true)
	for _, b := range q.reliable.Take() {
		q.buffers.Put(b)
	}
	for _, b := range q.unreliable.Take() {
		q.buffers.Put(b)
	}
	for _, items := range [][]peerItem{q.reliableP2P.Take(), q.unreliableP2P.Take()} {
		for _, it := range items {
			q.buffers.Put(it.packet)
			q.lists.Put(it.dests)
		}
	}
}
