// Package store defines the keyed, ordered, appendable column store the
// timeline core runs on, with SQL, Redis and Cassandra adapters.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
)

// Column families.
const (
	CFUsers     = "users"
	CFTweets    = "tweets"
	CFUserline  = "userline"
	CFTimeline  = "timeline"
	CFFriends   = "friends"
	CFFollowers = "followers"
)

var ColumnFamilies = []string{CFUsers, CFTweets, CFUserline, CFTimeline, CFFriends, CFFollowers}

var (
	ErrNotFound      = errors.New("not found")
	ErrUnavailable   = errors.New("store unavailable")
	ErrUnknownFamily = errors.New("unknown column family")
)

// Column is one (name, value) pair of a row.
type Column struct {
	Name  string
	Value []byte
}

// SliceRange selects columns of one row. Start is an exclusive bound: with
// Reverse the slice holds names strictly below Start in descending order,
// otherwise names strictly above Start in ascending order. An empty Start
// begins at the edge of the row.
type SliceRange struct {
	Start   string
	Count   int
	Reverse bool
}

// ColumnStore is a wide-column store: each row key maps to columns sorted
// bytewise by name. Writes are single-row; there is no cross-row atomicity.
// Reading an absent row yields no columns and no error.
type ColumnStore interface {
	GetSlice(ctx context.Context, cf, row string, r SliceRange) ([]Column, error)
	// MultiGet returns every column of each requested row. Absent rows are
	// missing from the map.
	MultiGet(ctx context.Context, cf string, rows []string) (map[string][]Column, error)
	Insert(ctx context.Context, cf, row string, cols ...Column) error
	Delete(ctx context.Context, cf, row string, names ...string) error
	InitSchema(ctx context.Context) error
	Close() error
}

func checkFamily(cf string) error {
	for _, known := range ColumnFamilies {
		if cf == known {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownFamily, cf)
}

// wrap tags connection-level failures with ErrUnavailable so the retry layer
// and callers can tell them from logical errors.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTransient(err error) bool {
	if errors.Is(err, ErrUnavailable) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Value returns the named column's value from a full row.
func Value(cols []Column, name string) ([]byte, bool) {
	for _, c := range cols {
		if c.Name == name {
			return c.Value, true
		}
	}
	return nil, false
}
