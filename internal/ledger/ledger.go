package ledger

import (
	"encoding/json"
	"sync"
	"time"

	"carevault.org/internal/events"
)

// Emitter receives events after a mutation has been applied.
type Emitter interface {
	Emit(evt events.Event)
}

type nopEmitter struct{}

func (nopEmitter) Emit(events.Event) {}

// pairKey addresses the newest grant for one (record, doctor) pair.
type pairKey struct {
	record RecordID
	doctor Address
}

// Ledger is the arena holding every entity. All cross references are ids.
// A single mutex serializes mutations; each mutating method validates
// everything before touching state, so a rejected call has no effect.
type Ledger struct {
	mu sync.RWMutex

	admin   Address
	now     func() time.Time
	emitter Emitter

	identities map[Address]*Identity

	records      []Record // records[i] has ID i+1
	ownerRecords map[Address][]RecordID

	grants          []AccessGrant // grants[i] has ID i+1
	pairs           map[pairKey]AccessID
	patientRequests map[Address][]AccessID
	doctorRecords   map[Address][]RecordID

	audit []AuditEvent
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithAdministrator sets the single identity allowed to change doctor status.
func WithAdministrator(addr Address) Option {
	return func(l *Ledger) { l.admin = addr }
}

// WithClock overrides the time source used by reads.
func WithClock(fn func() time.Time) Option {
	return func(l *Ledger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// WithEmitter routes events to e.
func WithEmitter(e Emitter) Option {
	return func(l *Ledger) {
		if e != nil {
			l.emitter = e
		}
	}
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		now:             time.Now,
		emitter:         nopEmitter{},
		identities:      make(map[Address]*Identity),
		ownerRecords:    make(map[Address][]RecordID),
		pairs:           make(map[pairKey]AccessID),
		patientRequests: make(map[Address][]AccessID),
		doctorRecords:   make(map[Address][]RecordID),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Administrator returns the privileged identity, if configured.
func (l *Ledger) Administrator() Address { return l.admin }

// Now returns the ledger clock reading used by reads.
func (l *Ledger) Now() time.Time { return l.now().UTC() }

// TxFor stamps a transaction for caller with the ledger clock.
func (l *Ledger) TxFor(caller Address) Tx {
	return Tx{Caller: caller, At: l.Now()}
}

// commit appends the audit event for a mutation and emits the domain event
// followed by the audit event. Callers hold l.mu.
func (l *Ledger) commit(tx Tx, kind events.Kind, record RecordID, access AccessID, action AuditAction, details map[string]any) {
	ae := AuditEvent{
		Seq:           uint64(len(l.audit)) + 1,
		RecordID:      record,
		Actor:         tx.Caller,
		Action:        action,
		DetailsDigest: detailsDigest(details),
		At:            tx.At,
	}
	l.audit = append(l.audit, ae)

	l.emitter.Emit(events.Event{
		Kind:     kind,
		RecordID: uint64(record),
		AccessID: uint64(access),
		Actor:    string(tx.Caller),
		At:       tx.At,
		Fields:   details,
	})
	l.emitter.Emit(events.Event{
		Kind:     events.KindAudit,
		RecordID: uint64(record),
		AccessID: uint64(access),
		Actor:    string(tx.Caller),
		At:       tx.At,
		Fields: map[string]any{
			"seq":            ae.Seq,
			"action":         action.String(),
			"details_digest": string(ae.DetailsDigest),
		},
	})
}

// detailsDigest hashes the canonical JSON form of details. encoding/json
// sorts map keys, which makes the encoding canonical for flat maps.
func detailsDigest(details map[string]any) Digest {
	data, err := json.Marshal(details)
	if err != nil {
		data = []byte("{}")
	}
	return HashBytes(data)
}
