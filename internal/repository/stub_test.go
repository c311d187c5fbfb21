package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubPool struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	beginFunc    func(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

func (s *stubPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if s.queryRowFunc != nil {
		return s.queryRowFunc(ctx, sql, args...)
	}
	return stubRow{err: errors.New("unexpected QueryRow")}
}

func (s *stubPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if s.queryFunc != nil {
		return s.queryFunc(ctx, sql, args...)
	}
	return nil, errors.New("unexpected Query")
}

func (s *stubPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if s.execFunc != nil {
		return s.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, errors.New("unexpected Exec")
}

func (s *stubPool) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	if s.beginFunc != nil {
		return s.beginFunc(ctx, opts)
	}
	return nil, errors.New("unexpected BeginTx")
}

type stubRow struct {
	scan func(dest ...any) error
	err  error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if r.scan == nil {
		return nil
	}
	return r.scan(dest...)
}

// stubRows yields one row per scan function.
type stubRows struct {
	scans []func(dest ...any) error
	idx   int
	err   error
}

func (s *stubRows) Close()                                       {}
func (s *stubRows) Err() error                                   { return s.err }
func (s *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (s *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (s *stubRows) Next() bool {
	if s.idx >= len(s.scans) {
		return false
	}
	s.idx++
	return true
}

func (s *stubRows) Scan(dest ...any) error {
	if s.idx == 0 {
		return errors.New("scan called before next")
	}
	return s.scans[s.idx-1](dest...)
}

func (s *stubRows) Values() ([]any, error) { return nil, nil }
func (s *stubRows) RawValues() [][]byte    { return nil }
func (s *stubRows) Conn() *pgx.Conn        { return nil }

// stubTx records statements. Nested Begin returns the same tx so savepoints
// share the recorder.
type stubTx struct {
	pgx.Tx

	execFunc  func(sql string, args ...any) (pgconn.CommandTag, error)
	execs     int
	begins    int
	commits   int
	rollbacks int
}

func (t *stubTx) Begin(ctx context.Context) (pgx.Tx, error) {
	t.begins++
	return t, nil
}

func (t *stubTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.execs++
	if t.execFunc != nil {
		return t.execFunc(sql, args...)
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (t *stubTx) Commit(ctx context.Context) error {
	t.commits++
	return nil
}

func (t *stubTx) Rollback(ctx context.Context) error {
	t.rollbacks++
	return nil
}
