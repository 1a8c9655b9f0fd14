// Package submit is the single entry point for ledger mutations. It
// serializes operations, stamps them with a commit time, applies them to the
// ledger and journals every accepted one so state can be rebuilt on restart.
package submit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"carevault.org/internal/ids"
	"carevault.org/internal/ledger"
	"carevault.org/internal/obs"
)

var (
	ErrUnknownOperation = errors.New("submit: unknown operation")
	ErrInvalidArgs      = errors.New("submit: invalid arguments")
	ErrDegraded         = errors.New("submit: journal unavailable, not accepting operations")
	ErrJournalGap       = errors.New("submit: journal sequence gap")
	ErrReplayDiverged   = errors.New("submit: journaled operation rejected on replay")
)

// Operation names a ledger mutation and carries its JSON arguments.
type Operation struct {
	Name string          `json:"op"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Receipt confirms an accepted operation. Reads issued after a receipt is
// returned observe its effects.
type Receipt struct {
	TxID        string          `json:"tx_id"`
	Seq         uint64          `json:"seq"`
	Op          string          `json:"op"`
	Caller      ledger.Address  `json:"caller"`
	SubmittedAt time.Time       `json:"submitted_at"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// Submitter accepts operations on behalf of a caller. Gateway applies them
// locally; remote.Client forwards them over gRPC.
type Submitter interface {
	Submit(ctx context.Context, caller ledger.Address, op Operation) (Receipt, error)
}

var _ Submitter = (*Gateway)(nil)

// Decode unmarshals the operation result into dst.
func (r Receipt) Decode(dst any) error {
	if len(r.Result) == 0 {
		return errors.New("submit: receipt has no result")
	}
	return json.Unmarshal(r.Result, dst)
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithClock overrides the commit time source.
func WithClock(fn func() time.Time) Option {
	return func(g *Gateway) {
		if fn != nil {
			g.now = fn
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(log *logrus.Logger) Option {
	return func(g *Gateway) {
		if log != nil {
			g.log = log
		}
	}
}

// Gateway applies operations to one ledger in journal order.
type Gateway struct {
	mu      sync.Mutex
	ledger  *ledger.Ledger
	journal Journal
	now     func() time.Time
	log     *logrus.Logger
	seq     uint64
	fault   error
}

// New builds a gateway. Call Replay before accepting traffic when the journal
// is not empty.
func New(l *ledger.Ledger, j Journal, opts ...Option) *Gateway {
	g := &Gateway{ledger: l, journal: j, now: l.Now, log: obs.Logger()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Ledger exposes the underlying ledger for reads.
func (g *Gateway) Ledger() *ledger.Ledger { return g.ledger }

// Seq returns the sequence of the last accepted operation.
func (g *Gateway) Seq() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Ready fails once the gateway has stopped accepting operations.
func (g *Gateway) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fault
}

// Submit applies op on behalf of caller. A rejected operation leaves the
// ledger untouched and is not journaled.
func (g *Gateway) Submit(ctx context.Context, caller ledger.Address, op Operation) (Receipt, error) {
	start := time.Now()
	rcpt, err := g.submit(ctx, caller, op)
	label := op.Name
	if _, ok := operations[label]; !ok {
		label = "unknown"
	}
	obs.ObserveSubmission(label, resultLabel(err), time.Since(start))
	return rcpt, err
}

func (g *Gateway) submit(ctx context.Context, caller ledger.Address, op Operation) (Receipt, error) {
	h, ok := operations[op.Name]
	if !ok {
		return Receipt{}, fmt.Errorf("%w: %q", ErrUnknownOperation, op.Name)
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fault != nil {
		return Receipt{}, ErrDegraded
	}

	// Journal timestamps keep microsecond precision; truncate so replay sees the same instant.
	tx := ledger.Tx{Caller: caller, At: g.now().UTC().Truncate(time.Microsecond)}
	result, err := h(g.ledger, tx, op.Args)
	if err != nil {
		return Receipt{}, err
	}

	entry := Entry{
		Seq:    g.seq + 1,
		TxID:   ids.NewAt(tx.At),
		Op:     op.Name,
		Caller: caller,
		At:     tx.At,
		Args:   canonicalArgs(op.Args),
	}
	// The mutation is already applied; a cancelled caller must not leave it unjournaled.
	if err := g.journal.Append(context.WithoutCancel(ctx), entry); err != nil {
		g.fault = fmt.Errorf("%w: %v", ErrDegraded, err)
		g.log.WithError(err).WithFields(logrus.Fields{
			"seq": entry.Seq,
			"op":  entry.Op,
		}).Error("journal_append_failed")
		return Receipt{}, ErrDegraded
	}
	g.seq = entry.Seq

	raw, err := json.Marshal(result)
	if err != nil {
		return Receipt{}, err
	}
	g.log.WithFields(logrus.Fields{
		"seq":    entry.Seq,
		"tx_id":  entry.TxID,
		"op":     entry.Op,
		"caller": string(caller),
	}).Debug("operation_applied")

	return Receipt{
		TxID:        entry.TxID,
		Seq:         entry.Seq,
		Op:          op.Name,
		Caller:      caller,
		SubmittedAt: tx.At,
		Result:      raw,
	}, nil
}

const replayPage = 500

// Replay applies every journaled entry after the current sequence and
// returns how many were applied.
func (g *Gateway) Replay(ctx context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	applied := 0
	for {
		batch, err := g.journal.Load(ctx, g.seq, replayPage)
		if err != nil {
			return applied, err
		}
		if len(batch) == 0 {
			return applied, nil
		}
		for _, e := range batch {
			if e.Seq != g.seq+1 {
				return applied, fmt.Errorf("%w: want %d, got %d", ErrJournalGap, g.seq+1, e.Seq)
			}
			h, ok := operations[e.Op]
			if !ok {
				return applied, fmt.Errorf("%w: seq %d: %w", ErrReplayDiverged, e.Seq, ErrUnknownOperation)
			}
			if _, err := h(g.ledger, ledger.Tx{Caller: e.Caller, At: e.At}, e.Args); err != nil {
				return applied, fmt.Errorf("%w: seq %d: %w", ErrReplayDiverged, e.Seq, err)
			}
			g.seq = e.Seq
			applied++
		}
	}
}

func canonicalArgs(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if code := Code(err); code != "" {
		return code
	}
	return "error"
}
