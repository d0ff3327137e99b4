package repository

import (
	"context"
	"fmt"

	"github.com/d60-Lab/twissandra/internal/ids"
	"github.com/d60-Lab/twissandra/internal/model"
	"github.com/d60-Lab/twissandra/internal/store"
)

// LineRepository reads and appends userline / timeline rows. Each entry is a
// column named by its key whose value is the tweet id.
type LineRepository interface {
	Append(ctx context.Context, line model.LineRef, e model.LineEntry) error
	// Slice returns up to count entries newest first, strictly older than
	// before. A zero before starts at the newest entry.
	Slice(ctx context.Context, line model.LineRef, before ids.TimeID, count int) ([]model.LineEntry, error)
}

type lineRepository struct {
	s store.ColumnStore
}

func NewLineRepository(s store.ColumnStore) LineRepository { return &lineRepository{s: s} }

func family(line model.LineRef) (string, error) {
	switch line.Kind {
	case model.Userline:
		return store.CFUserline, nil
	case model.Timeline:
		return store.CFTimeline, nil
	}
	return "", fmt.Errorf("line %s: %w", line, store.ErrUnknownFamily)
}

func (r *lineRepository) Append(ctx context.Context, line model.LineRef, e model.LineEntry) error {
	cf, err := family(line)
	if err != nil {
		return err
	}
	return r.s.Insert(ctx, cf, line.Key, store.Column{Name: e.Key.String(), Value: []byte(e.TweetID.String())})
}

func (r *lineRepository) Slice(ctx context.Context, line model.LineRef, before ids.TimeID, count int) ([]model.LineEntry, error) {
	cf, err := family(line)
	if err != nil {
		return nil, err
	}
	var start string
	if !before.IsZero() {
		start = before.String()
	}
	cols, err := r.s.GetSlice(ctx, cf, line.Key, store.SliceRange{Start: start, Count: count, Reverse: true})
	if err != nil {
		return nil, err
	}
	entries := make([]model.LineEntry, 0, len(cols))
	for _, c := range cols {
		key, err := ids.Parse(c.Name)
		if err != nil {
			return nil, fmt.Errorf("line %s entry %q: %w", line, c.Name, err)
		}
		tweetID, err := ids.Parse(string(c.Value))
		if err != nil {
			return nil, fmt.Errorf("line %s entry %q value: %w", line, c.Name, err)
		}
		entries = append(entries, model.LineEntry{Key: key, TweetID: tweetID})
	}
	return entries, nil
}
