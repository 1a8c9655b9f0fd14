package events

import (
	"context"
	"sync"
	"time"
)

// Kind names an event type on the feed.
type Kind string

const (
	KindPatientRegistered   Kind = "PatientRegistered"
	KindDoctorRegistered    Kind = "DoctorRegistered"
	KindDoctorStatusChanged Kind = "DoctorStatusChanged"
	KindProfileUpdated      Kind = "ProfileUpdated"
	KindRecordAdded         Kind = "RecordAdded"
	KindRecordDeactivated   Kind = "RecordDeactivated"
	KindAccessRequested     Kind = "AccessRequested"
	KindAccessGranted       Kind = "AccessGranted"
	KindAccessRevoked       Kind = "AccessRevoked"
	KindAudit               Kind = "Audit"
)

// Event is one typed fact on the feed. Seq is assigned by the bus.
type Event struct {
	Seq      uint64         `json:"seq"`
	Kind     Kind           `json:"kind"`
	RecordID uint64         `json:"record_id,omitempty"`
	AccessID uint64         `json:"access_id,omitempty"`
	Actor    string         `json:"actor"`
	At       time.Time      `json:"at"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Bus fans out events to all active subscribers (SSE clients, audit mirror).
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]subscription
	next   int
	seq    uint64
	buffer int
}

type subscription struct {
	ch    chan Event
	kinds map[Kind]struct{}
}

// NewBus creates a bus whose subscribers get a buffer of the given size.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{subs: make(map[int]subscription), buffer: buffer}
}

// Subscribe registers a subscriber and returns a channel which receives
// events of the listed kinds (all kinds when none are listed). The channel is
// closed when ctx ends.
func (b *Bus) Subscribe(ctx context.Context, kinds ...Kind) <-chan Event {
	sub := subscription{ch: make(chan Event, b.buffer)}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(sub.ch)
		b.mu.Unlock()
	}()

	return sub.ch
}

// Emit assigns the next sequence number and publishes evt.
func (b *Bus) Emit(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	evt.Seq = b.seq
	for _, sub := range b.subs {
		if sub.kinds != nil {
			if _, ok := sub.kinds[evt.Kind]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking the ledger.
		}
	}
}

// Subscribers reports the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
