package pg

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"carevault.org/internal/submit"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestAppend(t *testing.T) {
	store, mock := newMock(t)
	at := time.Date(2025, 1, 2, 3, 4, 5, 6000, time.UTC)
	entry := submit.Entry{Seq: 1, TxID: "01J0", Op: submit.OpRegisterPatient, Caller: "abc", At: at, Args: json.RawMessage(`{"profile_digest":"p"}`)}

	mock.ExpectExec(regexp.QuoteMeta("insert into journal(seq, tx_id, op, caller, at, args)")).
		WithArgs(int64(1), "01J0", submit.OpRegisterPatient, "abc", at, []byte(`{"profile_digest":"p"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Append(context.Background(), entry); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendConflict(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("insert into journal").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := store.Append(context.Background(), submit.Entry{Seq: 3, TxID: "x", Op: "addRecord", At: time.Now()})
	if !errors.Is(err, submit.ErrSeqConflict) {
		t.Fatalf("Append() error = %v, want ErrSeqConflict", err)
	}
}

func TestAppendPassesThroughOtherErrors(t *testing.T) {
	store, mock := newMock(t)
	boom := errors.New("connection reset")
	mock.ExpectExec("insert into journal").WillReturnError(boom)

	if err := store.Append(context.Background(), submit.Entry{Seq: 1, At: time.Now()}); !errors.Is(err, boom) {
		t.Fatalf("Append() error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	store, mock := newMock(t)
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"seq", "tx_id", "op", "caller", "at", "args"}).
		AddRow(int64(4), "t4", "addRecord", "p", at, []byte(`{"owner":"p"}`)).
		AddRow(int64(5), "t5", "deactivateRecord", "p", at, []byte(`{"record_id":1}`))
	mock.ExpectQuery(regexp.QuoteMeta("from journal")).
		WithArgs(int64(3), maxLoadLimit).
		WillReturnRows(rows)

	got, err := store.Load(context.Background(), 3, 5000)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || got[0].Seq != 4 || got[1].Op != "deactivateRecord" || string(got[1].Args) != `{"record_id":1}` {
		t.Fatalf("Load() = %+v", got)
	}
	if got[0].Caller != "p" || !got[0].At.Equal(at) {
		t.Fatalf("unexpected entry %+v", got[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLastSeq(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("select coalesce(max(seq), 0) from journal")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(42)))
	seq, err := store.LastSeq(context.Background())
	if err != nil || seq != 42 {
		t.Fatalf("LastSeq() = %d, %v", seq, err)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	for _, name := range []string{"0001_journal.up.sql", "0001_journal.down.sql"} {
		if _, err := fs.Stat(Migrations(), name); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
}
