package ids

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrInvalid = errors.New("invalid time id")

// TimeID is a 128-bit identifier in the UUIDv7 layout: the first 48 bits hold
// the unix millisecond timestamp, big-endian, so byte order and canonical
// string order both follow creation time.
type TimeID uuid.UUID

// Zero is the absent id.
var Zero TimeID

// New allocates an id for the current instant. Ids from one process are
// strictly increasing, including within the same millisecond.
func New() (TimeID, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return Zero, err
	}
	return TimeID(u), nil
}

// At allocates an id encoding t, used for backfilled tweets. Ids sharing a
// millisecond are ordered by their random bits.
func At(t time.Time) (TimeID, error) {
	ms := t.UnixMilli()
	if ms < 0 || ms >= 1<<48 {
		return Zero, fmt.Errorf("%w: timestamp %s out of range", ErrInvalid, t)
	}
	u, err := uuid.NewRandom()
	if err != nil {
		return Zero, err
	}
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(ms))
	copy(u[0:6], ts[2:8])
	u[6] = 0x70 | (u[6] & 0x0f)
	u[8] = 0x80 | (u[8] & 0x3f)
	return TimeID(u), nil
}

// Parse reads the canonical string form.
func Parse(s string) (TimeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	if u.Version() != 7 || len(s) != 36 {
		return Zero, fmt.Errorf("%w: %q is not a time-ordered id", ErrInvalid, s)
	}
	return TimeID(u), nil
}

// MustParse is Parse for tests and constants.
func MustParse(s string) TimeID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id TimeID) String() string { return uuid.UUID(id).String() }

func (id TimeID) IsZero() bool { return id == Zero }

// Time returns the millisecond timestamp encoded in the id.
func (id TimeID) Time() time.Time {
	var ts [8]byte
	copy(ts[2:8], id[0:6])
	return time.UnixMilli(int64(binary.BigEndian.Uint64(ts[:]))).UTC()
}

// Compare orders ids chronologically: -1, 0 or +1.
func (id TimeID) Compare(other TimeID) int {
	for i := range id {
		switch {
		case id[i] < other[i]:
			return -1
		case id[i] > other[i]:
			return 1
		}
	}
	return 0
}

func (id TimeID) MarshalText() ([]byte, error) {
	if id.IsZero() {
		return []byte{}, nil
	}
	return []byte(id.String()), nil
}

func (id *TimeID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*id = Zero
		return nil
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
