package repository

import (
	"fmt"
	"time"

	"github.com/d60-Lab/twissandra/internal/store"
)

// Column names within rows of the users and tweets families.
const (
	colPassword  = "password"
	colCreatedAt = "created_at"
	colUsername  = "username"
	colBody      = "body"
)

func encodeTime(t time.Time) []byte {
	return []byte(t.UTC().Format(time.RFC3339Nano))
}

func decodeTime(b []byte) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, string(b))
	if err != nil {
		return time.Time{}, fmt.Errorf("decode time %q: %w", b, err)
	}
	return t, nil
}

// timeColumn decodes an optional timestamp column; a missing column decodes
// to the zero time.
func timeColumn(cols []store.Column, name string) (time.Time, error) {
	v, ok := store.Value(cols, name)
	if !ok {
		return time.Time{}, nil
	}
	return decodeTime(v)
}
