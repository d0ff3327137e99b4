package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gocql/gocql"
)

// CassandraConfig specifies a Cassandra cluster and keyspace to connect to.
type CassandraConfig struct {
	Hosts    []string // Required. Nodes in the cluster, as <host> or <host>:<port>.
	Keyspace string   // Required. Must already exist.

	// Optional. One of one, two, three, any, all, quorum, localquorum,
	// eachquorum, localone. Anything else means quorum.
	Consistency string

	Timeout time.Duration
}

// cassandraStore keeps one table per column family, with the column name as
// the clustering key: PRIMARY KEY (row_key, name).
type cassandraStore struct {
	session *gocql.Session
}

// DialCassandra connects to the cluster described by cfg.
func DialCassandra(cfg CassandraConfig) (ColumnStore, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = parseConsistency(cfg.Consistency)
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	}
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("cassandra dial: %w: %w", ErrUnavailable, err)
	}
	return NewCassandraStore(session), nil
}

func NewCassandraStore(session *gocql.Session) ColumnStore {
	return &cassandraStore{session: session}
}

func parseConsistency(value string) (consistency gocql.Consistency) {
	switch strings.ToLower(value) {
	default:
		consistency = gocql.Quorum
	case "any":
		consistency = gocql.Any
	case "one":
		consistency = gocql.One
	case "two":
		consistency = gocql.Two
	case "three":
		consistency = gocql.Three
	case "all":
		consistency = gocql.All
	case "localquorum":
		consistency = gocql.LocalQuorum
	case "eachquorum":
		consistency = gocql.EachQuorum
	case "localone":
		consistency = gocql.LocalOne
	}
	return
}

func (s *cassandraStore) GetSlice(ctx context.Context, cf, row string, r SliceRange) ([]Column, error) {
	if err := checkFamily(cf); err != nil {
		return nil, err
	}
	if r.Count <= 0 {
		return nil, nil
	}
	var b strings.Builder
	args := []interface{}{row}
	fmt.Fprintf(&b, "SELECT name, value FROM %s WHERE row_key = ?", cf)
	if r.Start != "" {
		if r.Reverse {
			b.WriteString(" AND name < ?")
		} else {
			b.WriteString(" AND name > ?")
		}
		args = append(args, []byte(r.Start))
	}
	if r.Reverse {
		b.WriteString(" ORDER BY name DESC")
	} else {
		b.WriteString(" ORDER BY name ASC")
	}
	b.WriteString(" LIMIT ?")
	args = append(args, r.Count)

	iter := s.session.Query(b.String(), args...).WithContext(ctx).Iter()
	var (
		cols  []Column
		name  []byte
		value []byte
	)
	for iter.Scan(&name, &value) {
		cols = append(cols, Column{Name: string(name), Value: append([]byte(nil), value...)})
	}
	if err := iter.Close(); err != nil {
		return nil, cassandraWrap("cassandra get_slice", err)
	}
	return cols, nil
}

func (s *cassandraStore) MultiGet(ctx context.Context, cf string, rows []string) (map[string][]Column, error) {
	if err := checkFamily(cf); err != nil {
		return nil, err
	}
	res := make(map[string][]Column, len(rows))
	if len(rows) == 0 {
		return res, nil
	}
	stmt := fmt.Sprintf("SELECT row_key, name, value FROM %s WHERE row_key IN ?", cf)
	iter := s.session.Query(stmt, rows).WithContext(ctx).Iter()
	var (
		key   string
		name  []byte
		value []byte
	)
	for iter.Scan(&key, &name, &value) {
		res[key] = append(res[key], Column{Name: string(name), Value: append([]byte(nil), value...)})
	}
	if err := iter.Close(); err != nil {
		return nil, cassandraWrap("cassandra multiget", err)
	}
	for _, cols := range res {
		sort.Slice(cols, func(a, b int) bool { return cols[a].Name < cols[b].Name })
	}
	return res, nil
}

func (s *cassandraStore) Insert(ctx context.Context, cf, row string, cols ...Column) error {
	if err := checkFamily(cf); err != nil {
		return err
	}
	stmt := fmt.Sprintf("INSERT INTO %s (row_key, name, value) VALUES (?, ?, ?)", cf)
	switch len(cols) {
	case 0:
		return nil
	case 1:
		err := s.session.Query(stmt, row, []byte(cols[0].Name), cols[0].Value).WithContext(ctx).Exec()
		return cassandraWrap("cassandra insert", err)
	}
	// single partition, so an unlogged batch is applied atomically
	batch := s.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	for _, c := range cols {
		batch.Query(stmt, row, []byte(c.Name), c.Value)
	}
	return cassandraWrap("cassandra insert", s.session.ExecuteBatch(batch))
}

func (s *cassandraStore) Delete(ctx context.Context, cf, row string, names ...string) error {
	if err := checkFamily(cf); err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE row_key = ? AND name = ?", cf)
	batch := s.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	for _, n := range names {
		batch.Query(stmt, row, []byte(n))
	}
	return cassandraWrap("cassandra delete", s.session.ExecuteBatch(batch))
}

func (s *cassandraStore) InitSchema(ctx context.Context) error {
	for _, cf := range ColumnFamilies {
		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s ("+
			"row_key text, name blob, value blob, PRIMARY KEY (row_key, name))", cf)
		if err := s.session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return cassandraWrap("cassandra create "+cf, err)
		}
	}
	return nil
}

func (s *cassandraStore) Close() error {
	s.session.Close()
	return nil
}

func cassandraWrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		unavailable  *gocql.RequestErrUnavailable
		readTimeout  *gocql.RequestErrReadTimeout
		writeTimeout *gocql.RequestErrWriteTimeout
	)
	if errors.As(err, &unavailable) || errors.As(err, &readTimeout) || errors.As(err, &writeTimeout) ||
		errors.Is(err, gocql.ErrNoConnections) || errors.Is(err, gocql.ErrTimeoutNoResponse) ||
		errors.Is(err, gocql.ErrConnectionClosed) || errors.Is(err, gocql.ErrSessionClosed) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return wrap(op, err)
}
