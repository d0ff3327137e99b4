// Package storetest provides in-process column stores and a fault-injecting
// wrapper for tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/twissandra/internal/store"
)

// NewSQLite returns a SQL-backed store over a private in-memory database.
func NewSQLite(tb testing.TB) store.ColumnStore {
	tb.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sqlite handle: %v", err)
	}
	// every connection to :memory: gets its own database
	sqlDB.SetMaxOpenConns(1)

	s := store.NewSQLStore(db)
	if err := s.InitSchema(context.Background()); err != nil {
		tb.Fatalf("init schema: %v", err)
	}
	tb.Cleanup(func() { _ = s.Close() })
	return s
}

// NewMiniRedis returns a Redis-backed store over a fresh miniredis server.
func NewMiniRedis(tb testing.TB) (store.ColumnStore, *miniredis.Miniredis) {
	tb.Helper()
	mr := miniredis.RunT(tb)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewRedisStore(rdb, "test:")
	tb.Cleanup(func() { _ = s.Close() })
	return s, mr
}

type Op string

const (
	OpGetSlice Op = "get_slice"
	OpMultiGet Op = "multiget"
	OpInsert   Op = "insert"
	OpDelete   Op = "delete"
)

// Call is one recorded operation against a Faulty store.
type Call struct {
	Op    Op
	CF    string
	Row   string
	Names []string
	Err   error
}

type rule struct {
	op    Op
	cf    string
	row   string
	err   error
	delay time.Duration
	times int
}

func (r *rule) matches(op Op, cf, row string) bool {
	return r.op == op && (r.cf == "" || r.cf == cf) && (r.row == "" || r.row == row)
}

// Faulty wraps a ColumnStore and fails or delays selected calls. An empty
// cf or row in a rule matches any value.
type Faulty struct {
	store.ColumnStore

	mu    sync.Mutex
	rules []*rule
	calls []Call
}

func NewFaulty(next store.ColumnStore) *Faulty {
	return &Faulty{ColumnStore: next}
}

// Fail makes every matching call return err.
func (f *Faulty) Fail(op Op, cf, row string, err error) {
	f.FailTimes(op, cf, row, err, 0)
}

// FailTimes makes the next n matching calls return err; n == 0 means always.
func (f *Faulty) FailTimes(op Op, cf, row string, err error, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, &rule{op: op, cf: cf, row: row, err: err, times: n})
}

// Delay makes matching calls wait d, or until their context ends.
func (f *Faulty) Delay(op Op, cf, row string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, &rule{op: op, cf: cf, row: row, delay: d})
}

// Reset drops every rule, keeping the call log.
func (f *Faulty) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = nil
}

// Calls returns a copy of the call log, optionally filtered by op and cf.
func (f *Faulty) Calls(op Op, cf string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if (op == "" || c.Op == op) && (cf == "" || c.CF == cf) {
			out = append(out, c)
		}
	}
	return out
}

func (f *Faulty) before(ctx context.Context, op Op, cf, row string) error {
	f.mu.Lock()
	var (
		delay time.Duration
		err   error
	)
	for _, r := range f.rules {
		if !r.matches(op, cf, row) {
			continue
		}
		if r.delay > delay {
			delay = r.delay
		}
		if r.err != nil && err == nil && r.times >= 0 {
			err = r.err
			if r.times > 0 {
				r.times--
				if r.times == 0 {
					r.times = -1
				}
			}
		}
	}
	f.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return fmt.Errorf("%s %s/%s: %w: %w", op, cf, row, store.ErrUnavailable, ctx.Err())
		}
	}
	return err
}

func (f *Faulty) record(c Call) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *Faulty) GetSlice(ctx context.Context, cf, row string, r store.SliceRange) ([]store.Column, error) {
	if err := f.before(ctx, OpGetSlice, cf, row); err != nil {
		f.record(Call{Op: OpGetSlice, CF: cf, Row: row, Err: err})
		return nil, err
	}
	cols, err := f.ColumnStore.GetSlice(ctx, cf, row, r)
	f.record(Call{Op: OpGetSlice, CF: cf, Row: row, Err: err})
	return cols, err
}

func (f *Faulty) MultiGet(ctx context.Context, cf string, rows []string) (map[string][]store.Column, error) {
	for _, row := range rows {
		if err := f.before(ctx, OpMultiGet, cf, row); err != nil {
			f.record(Call{Op: OpMultiGet, CF: cf, Names: rows, Err: err})
			return nil, err
		}
	}
	res, err := f.ColumnStore.MultiGet(ctx, cf, rows)
	f.record(Call{Op: OpMultiGet, CF: cf, Names: rows, Err: err})
	return res, err
}

func (f *Faulty) Insert(ctx context.Context, cf, row string, cols ...store.Column) error {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	if err := f.before(ctx, OpInsert, cf, row); err != nil {
		f.record(Call{Op: OpInsert, CF: cf, Row: row, Names: names, Err: err})
		return err
	}
	err := f.ColumnStore.Insert(ctx, cf, row, cols...)
	f.record(Call{Op: OpInsert, CF: cf, Row: row, Names: names, Err: err})
	return err
}

func (f *Faulty) Delete(ctx context.Context, cf, row string, names ...string) error {
	if err := f.before(ctx, OpDelete, cf, row); err != nil {
		f.record(Call{Op: OpDelete, CF: cf, Row: row, Names: names, Err: err})
		return err
	}
	err := f.ColumnStore.Delete(ctx, cf, row, names...)
	f.record(Call{Op: OpDelete, CF: cf, Row: row, Names: names, Err: err})
	return err
}
