package usage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	values []int64
	err    error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		*(d.(*int64)) = r.values[i]
	}
	return nil
}

type fakeDB struct {
	execSQL  []string
	execArgs [][]any
	execErr  error
	row      *fakeRow
	rowArgs  []any
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.rowArgs = args
	return f.row
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	return pgconn.NewCommandTag("INSERT 0 1"), f.execErr
}

func TestLog(t *testing.T) {
	db := &fakeDB{}
	s := NewPostgresStore(db)

	err := s.Log(context.Background(), &Record{
		RequestID: "req-1", Model: "deepl-ZH", SourceLang: "auto", TargetLang: "ZH",
		CharsIn: 11, CharsOut: 5, LatencyMs: 42, Stream: true,
	})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if !strings.Contains(db.execSQL[0], "INSERT INTO translation_usage") {
		t.Errorf("Unexpected SQL %s", db.execSQL[0])
	}
	args := db.execArgs[0]
	if args[0] != "req-1" || args[3] != "ZH" || args[4] != 11 || args[7] != true {
		t.Errorf("Unexpected args %v", args)
	}
}

func TestLog_Error(t *testing.T) {
	s := NewPostgresStore(&fakeDB{execErr: errors.New("conn reset")})
	err := s.Log(context.Background(), &Record{})
	if err == nil || !strings.Contains(err.Error(), "conn reset") {
		t.Errorf("Expected wrapped error, got %v", err)
	}
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	if err := NewPostgresStore(db).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if !strings.Contains(db.execSQL[0], "CREATE TABLE IF NOT EXISTS translation_usage") {
		t.Errorf("Unexpected SQL %s", db.execSQL[0])
	}
}

func TestSummarize(t *testing.T) {
	db := &fakeDB{row: &fakeRow{values: []int64{3, 120, 90}}}
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	sum, err := NewPostgresStore(db).Summarize(context.Background(), from, to)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if sum.TotalRequests != 3 || sum.CharsIn != 120 || sum.CharsOut != 90 {
		t.Errorf("Unexpected summary %+v", sum)
	}
	if !sum.From.Equal(from) || !sum.To.Equal(to) {
		t.Errorf("Unexpected window %v - %v", sum.From, sum.To)
	}
	if db.rowArgs[0] != from || db.rowArgs[1] != to {
		t.Errorf("Unexpected query args %v", db.rowArgs)
	}
}

func TestSummarize_Error(t *testing.T) {
	db := &fakeDB{row: &fakeRow{err: pgx.ErrNoRows}}
	if _, err := NewPostgresStore(db).Summarize(context.Background(), time.Now(), time.Now()); !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("Expected wrapped ErrNoRows, got %v", err)
	}
}
