package staging

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dkeye/VoiceMux/internal/pool"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
)

const (
	backlogVoiceEvents = 10
	backlogFloor       = 64 * time.Millisecond
	backlogDecay       = time.Millisecond
	backlogBackoff     = 4
)

// Observer receives events on the consumer goroutine.
type Observer interface {
	OnEvent(ev Event) error
}

type ObserverFunc func(ev Event) error

func (f ObserverFunc) OnEvent(ev Event) error { return f(ev) }

// SubscriptionID is the handle returned by Subscribe and accepted by Unsubscribe.
type SubscriptionID uint64

type subscription struct {
	id  SubscriptionID
	obs Observer
}

// EventQueue buffers events raised on transport goroutines until Dispatch.
type EventQueue struct {
	buffers *pool.Bytes

	events    Locked[[]Event]
	observers Locked[[]subscription]
	nextSub   atomic.Uint64

	lastDispatch  time.Time
	warnThreshold time.Duration
	warnings      int
}

func NewEventQueue(buffers *pool.Bytes) *EventQueue {
	return &EventQueue{
		buffers:       buffers,
		warnThreshold: backlogFloor,
	}
}

// Payload copies p into a pooled buffer for a VoiceData event.
func (q *EventQueue) Payload(p []byte) pool.Buffer {
	b := q.buffers.Get()
	b.Set(p)
	return b
}

func (q *EventQueue) Enqueue(ev Event) {
	q.events.With(func(events *[]Event) {
		*events = append(*events, ev)
	})
}

func (q *EventQueue) Subscribe(obs Observer) SubscriptionID {
	id := SubscriptionID(q.nextSub.Add(1))
	q.observers.With(func(subs *[]subscription) {
		*subs = append(*subs, subscription{id: id, obs: obs})
	})
	return id
}

// Unsubscribe reports whether id was registered.
func (q *EventQueue) Unsubscribe(id SubscriptionID) bool {
	found := false
	q.observers.With(func(subs *[]subscription) {
		for i, s := range *subs {
			if s.id == id {
				*subs = append((*subs)[:i:i], (*subs)[i+1:]...)
				found = true
				return
			}
		}
	})
	return found
}

// Dispatch delivers everything queued so far, in order, to every observer.
// A failing or panicking observer does not stop delivery; the result reports
// whether any failed.
func (q *EventQueue) Dispatch(now time.Time) (hadErrors bool) {
	q.checkBacklog(now)

	batch := q.events.Take()
	if len(batch) == 0 {
		return false
	}
	var subs []subscription
	q.observers.With(func(s *[]subscription) {
		subs = append(subs, (*s)...)
	})

	for _, ev := range batch {
		for _, s := range subs {
			if err := notify(s.obs, ev); err != nil {
				hadErrors = true
				log.Error().Str("module", "staging").Err(err).
					Uint64("subscription", uint64(s.id)).
					Str("event", fmt.Sprintf("%T", ev)).
					Msg("observer failed")
			}
		}
		q.release(ev)
	}
	return hadErrors
}

func notify(obs Observer, ev Event) (err error) {
	var pc panics.Catcher
	pc.Try(func() { err = obs.OnEvent(ev) })
	if r := pc.Recovered(); r != nil {
		return r.AsError()
	}
	return err
}

func (q *EventQueue) release(ev Event) {
	if v, ok := ev.(VoiceData); ok && v.Payload.Valid() {
		q.buffers.Put(v.Payload)
	}
}

// checkBacklog warns when voice frames pile up between dispatches and backs
// off so a stalled consumer does not flood the log.
func (q *EventQueue) checkBacklog(now time.Time) {
	voice := 0
	q.events.With(func(events *[]Event) {
		for _, ev := range *events {
			if _, ok := ev.(VoiceData); ok {
				voice++
			}
		}
	})

	last := q.lastDispatch
	q.lastDispatch = now
	if last.IsZero() {
		return
	}
	dt := now.Sub(last)
	if voice >= backlogVoiceEvents && dt > q.warnThreshold {
		q.warnings++
		log.Warn().Str("module", "staging").
			Int("pending_voice", voice).
			Dur("since_last_dispatch", dt).
			Dur("threshold", q.warnThreshold).
			Msg("voice events are backing up; dispatch is not keeping up")
		q.warnThreshold *= backlogBackoff
		return
	}
	if q.warnThreshold > backlogFloor {
		q.warnThreshold = max(q.warnThreshold-backlogDecay, backlogFloor)
	}
}

// BacklogWarnings is the number of backlog warnings fired so far.
func (q *EventQueue) BacklogWarnings() int { return q.warnings }

func (q *EventQueue) WarnThreshold() time.Duration { return q.warnThreshold }

// Pending is the number of events waiting for Dispatch.
func (q *EventQueue) Pending() int {
	n := 0
	q.events.With(func(events *[]Event) { n = len(*events) })
	return n
}

// Stop discards queued events and recycles their buffers.
func (q *EventQueue) Stop() {
	for _, ev := range q.events.Take() {
		q.release(ev)
	}
}
