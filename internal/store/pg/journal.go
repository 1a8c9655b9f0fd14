// Package pg persists the operation journal in PostgreSQL through the pgx
// database/sql driver.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"carevault.org/internal/ledger"
	"carevault.org/internal/submit"
)

const (
	defaultLoadLimit = 500
	maxLoadLimit     = 1000

	uniqueViolation = "23505"
)

// Store is the PostgreSQL journal.
type Store struct {
	db *sql.DB
}

var _ submit.Journal = (*Store)(nil)

// Open connects with pool defaults suitable for a single writer.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing database handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping is used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Append inserts e. A duplicate sequence or transaction id is reported as
// submit.ErrSeqConflict.
func (s *Store) Append(ctx context.Context, e submit.Entry) error {
	args := e.Args
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into journal(seq, tx_id, op, caller, at, args)
		values ($1, $2, $3, $4, $5, $6)
	`, int64(e.Seq), e.TxID, e.Op, string(e.Caller), e.At.UTC(), []byte(args))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: seq %d", submit.ErrSeqConflict, e.Seq)
		}
		return err
	}
	return nil
}

// Load returns entries with seq greater than afterSeq in ascending order.
func (s *Store) Load(ctx context.Context, afterSeq uint64, limit int) ([]submit.Entry, error) {
	if limit <= 0 {
		limit = defaultLoadLimit
	}
	if limit > maxLoadLimit {
		limit = maxLoadLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		select seq, tx_id, op, caller, at, args
		from journal
		where seq > $1
		order by seq asc
		limit $2
	`, int64(afterSeq), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []submit.Entry
	for rows.Next() {
		var (
			e      submit.Entry
			seq    int64
			caller string
			args   []byte
		)
		if err := rows.Scan(&seq, &e.TxID, &e.Op, &caller, &e.At, &args); err != nil {
			return nil, err
		}
		e.Seq = uint64(seq)
		e.Caller = ledger.Address(caller)
		e.At = e.At.UTC()
		e.Args = json.RawMessage(args)
		res = append(res, e)
	}
	return res, rows.Err()
}

// LastSeq returns the highest journaled sequence, zero when empty.
func (s *Store) LastSeq(ctx context.Context) (uint64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `select coalesce(max(seq), 0) from journal`).Scan(&seq); err != nil {
		return 0, err
	}
	return uint64(seq), nil
}
