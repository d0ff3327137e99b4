package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/d60-Lab/twissandra/internal/ids"
	"github.com/d60-Lab/twissandra/internal/model"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrNotAuthenticated       = errors.New("not authenticated")
	ErrPartialFanOut          = errors.New("partial fan-out")
	ErrInconsistentFollowEdge = errors.New("inconsistent follow edge")
	ErrFollowSelf             = errors.New("cannot follow self")
	ErrUserExists             = errors.New("user already exists")
	ErrInvalidCredentials     = errors.New("invalid credentials")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// FanOutFailure is one line append that did not succeed. AllFollowers marks
// a failed follower read, which lost every follower timeline at once.
type FanOutFailure struct {
	Line         model.LineRef
	AllFollowers bool
	Err          error
}

func (f FanOutFailure) target() string {
	if f.AllFollowers {
		return "followers of " + f.Line.Key
	}
	return f.Line.String()
}

// PartialFanOutError reports a tweet that was saved but not appended to every
// target line. The tweet stays visible wherever the append succeeded.
type PartialFanOutError struct {
	TweetID   ids.TimeID
	Attempted int
	Failures  []FanOutFailure
}

func (e *PartialFanOutError) Error() string {
	lines := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		lines = append(lines, f.target())
	}
	return fmt.Sprintf("partial fan-out of tweet %s: %d of %d appends failed (%s)",
		e.TweetID, len(e.Failures), e.Attempted, strings.Join(lines, ", "))
}

func (e *PartialFanOutError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrPartialFanOut)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// InconsistentEdgeError lists follow edges left present in only one of the
// friends / followers indexes.
type InconsistentEdgeError struct {
	Edges []model.Follow
	Err   error
}

func (e *InconsistentEdgeError) Error() string {
	parts := make([]string, 0, len(e.Edges))
	for _, edge := range e.Edges {
		parts = append(parts, edge.Follower+"->"+edge.Followee)
	}
	msg := "inconsistent follow edges: " + strings.Join(parts, ", ")
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InconsistentEdgeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInconsistentFollowEdge}
	}
	return []error{ErrInconsistentFollowEdge, e.Err}
}
