package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// redisStore maps each row to a sorted set of column names (all scored 0,
// so members order lexicographically) plus a hash of name -> value. Both
// keys share a hash tag so a row stays on one cluster slot.
type redisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisStore(rdb redis.UniversalClient, prefix string) ColumnStore {
	return &redisStore{rdb: rdb, prefix: prefix}
}

func (s *redisStore) indexKey(cf, row string) string { return s.prefix + "i:{" + cf + ":" + row + "}" }
func (s *redisStore) valueKey(cf, row string) string { return s.prefix + "v:{" + cf + ":" + row + "}" }

func (s *redisStore) GetSlice(ctx context.Context, cf, row string, r SliceRange) ([]Column, error) {
	if err := checkFamily(cf); err != nil {
		return nil, err
	}
	if r.Count <= 0 {
		return nil, nil
	}
	by := &redis.ZRangeBy{Min: "-", Max: "+", Count: int64(r.Count)}
	var (
		names []string
		err   error
	)
	if r.Reverse {
		if r.Start != "" {
			by.Max = "(" + r.Start
		}
		names, err = s.rdb.ZRevRangeByLex(ctx, s.indexKey(cf, row), by).Result()
	} else {
		if r.Start != "" {
			by.Min = "(" + r.Start
		}
		names, err = s.rdb.ZRangeByLex(ctx, s.indexKey(cf, row), by).Result()
	}
	if err != nil {
		return nil, s.wrap("redis get_slice", err)
	}
	if len(names) == 0 {
		return nil, nil
	}
	vals, err := s.rdb.HMGet(ctx, s.valueKey(cf, row), names...).Result()
	if err != nil {
		return nil, s.wrap("redis get_slice values", err)
	}
	cols := make([]Column, 0, len(names))
	for i, name := range names {
		v, ok := vals[i].(string)
		if !ok {
			// deleted between the two reads
			continue
		}
		cols = append(cols, Column{Name: name, Value: []byte(v)})
	}
	return cols, nil
}

func (s *redisStore) MultiGet(ctx context.Context, cf string, rows []string) (map[string][]Column, error) {
	if err := checkFamily(cf); err != nil {
		return nil, err
	}
	res := make(map[string][]Column, len(rows))
	if len(rows) == 0 {
		return res, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(rows))
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, row := range rows {
			cmds[i] = pipe.HGetAll(ctx, s.valueKey(cf, row))
		}
		return nil
	})
	if err != nil {
		return nil, s.wrap("redis multiget", err)
	}
	for i, row := range rows {
		m := cmds[i].Val()
		if len(m) == 0 {
			continue
		}
		cols := make([]Column, 0, len(m))
		for name, v := range m {
			cols = append(cols, Column{Name: name, Value: []byte(v)})
		}
		sort.Slice(cols, func(a, b int) bool { return cols[a].Name < cols[b].Name })
		res[row] = cols
	}
	return res, nil
}

func (s *redisStore) Insert(ctx context.Context, cf, row string, cols ...Column) error {
	if err := checkFamily(cf); err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}
	members := make([]redis.Z, len(cols))
	fields := make([]interface{}, 0, 2*len(cols))
	for i, c := range cols {
		members[i] = redis.Z{Score: 0, Member: c.Name}
		fields = append(fields, c.Name, c.Value)
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.valueKey(cf, row), fields...)
		pipe.ZAdd(ctx, s.indexKey(cf, row), members...)
		return nil
	})
	return s.wrap("redis insert", err)
}

func (s *redisStore) Delete(ctx context.Context, cf, row string, names ...string) error {
	if err := checkFamily(cf); err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}
	members := make([]interface{}, len(names))
	for i, n := range names {
		members[i] = n
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, s.indexKey(cf, row), members...)
		pipe.HDel(ctx, s.valueKey(cf, row), names...)
		return nil
	})
	return s.wrap("redis delete", err)
}

func (s *redisStore) InitSchema(ctx context.Context) error {
	return s.wrap("redis ping", s.rdb.Ping(ctx).Err())
}

func (s *redisStore) Close() error { return s.rdb.Close() }

func (s *redisStore) wrap(op string, err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return wrap(op, err)
}
