// Package redis implements the store contract on a Redis server.
//
// Each record is one hash at key "mem:<namespace>:<key>" with fields content,
// created_at and updated_at. The identifier charset contains no ':', so the
// key layout is unambiguous. Namespace listings are derived by scanning the
// key space; there is no namespace registry.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/memkeep/memkeep/pkg/memory/store"
)

const (
	keyPrefix = "mem:"

	fieldContent   = "content"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"

	// updateRetries bounds the optimistic WATCH loop in Update.
	updateRetries = 3
)

// Options carries the connection parameters for New.
type Options struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Store talks to a single Redis server or proxy. The go-redis client pools
// connections internally and is safe for concurrent use.
type Store struct {
	client *redis.Client
}

var _ store.Store = (*Store)(nil)

// New connects to Redis and verifies the connection with a PING.
func New(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, store.Unavailable("connecting to redis", err)
	}
	return &Store{client: client}, nil
}

func (s *Store) ListNamespaces(ctx context.Context) ([]store.Namespace, error) {
	keys, err := s.scanKeys(ctx, keyPrefix+"*")
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, k := range keys {
		namespace, _, ok := splitRecordKey(k)
		if !ok {
			continue
		}
		counts[namespace]++
	}

	namespaces := make([]store.Namespace, 0, len(counts))
	for name, n := range counts {
		namespaces = append(namespaces, store.Namespace{Name: name, Records: n})
	}
	sort.Slice(namespaces, func(i, j int) bool { return namespaces[i].Name < namespaces[j].Name })
	return namespaces, nil
}

func (s *Store) ListKeys(ctx context.Context, namespace string) ([]store.Record, error) {
	keys, err := s.scanKeys(ctx, recordKeyFor(namespace, "*"))
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, store.NamespaceNotFound(namespace)
	}
	sort.Strings(keys)

	pipe := s.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HMGet(ctx, k, fieldCreatedAt, fieldUpdatedAt)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, store.Unavailable("listing keys", err)
	}

	records := make([]store.Record, 0, len(keys))
	for i, k := range keys {
		_, key, ok := splitRecordKey(k)
		if !ok {
			continue
		}
		vals := cmds[i].Val()
		createdAt, okCreated := vals[0].(string)
		updatedAt, okUpdated := vals[1].(string)
		if !okCreated || !okUpdated {
			// Record vanished between SCAN and HMGET.
			continue
		}
		rec, err := buildRecord(namespace, key, "", createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	if len(records) == 0 {
		return nil, store.NamespaceNotFound(namespace)
	}
	return records, nil
}

func (s *Store) Get(ctx context.Context, namespace, key string) (*store.Record, error) {
	vals, err := s.client.HGetAll(ctx, recordKeyFor(namespace, key)).Result()
	if err != nil {
		return nil, store.Unavailable("reading record", err)
	}
	if len(vals) == 0 {
		return nil, store.RecordNotFound(namespace, key)
	}
	return buildRecord(namespace, key, vals[fieldContent], vals[fieldCreatedAt], vals[fieldUpdatedAt])
}

// Put writes in one MULTI/EXEC pipeline: HSETNX claims created_at only when
// the hash is new, HSET always moves content and updated_at, and the trailing
// HGET reads back whichever created_at won. The HSETNX reply doubles as the
// created signal.
func (s *Store) Put(ctx context.Context, namespace, key, content string, now time.Time) (*store.Record, bool, error) {
	k := recordKeyFor(namespace, key)
	stamp := formatTime(now)

	pipe := s.client.TxPipeline()
	setNX := pipe.HSetNX(ctx, k, fieldCreatedAt, stamp)
	pipe.HSet(ctx, k, fieldContent, content, fieldUpdatedAt, stamp)
	getCreated := pipe.HGet(ctx, k, fieldCreatedAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, store.Unavailable("writing record", err)
	}

	createdAt, err := parseTime(getCreated.Val())
	if err != nil {
		return nil, false, err
	}

	return &store.Record{
		Namespace: namespace,
		Key:       key,
		Content:   content,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}, setNX.Val(), nil
}

// Update needs existence checked and content written without a concurrent
// delete sneaking in between, so it runs a WATCH transaction with a small
// bounded retry.
func (s *Store) Update(ctx context.Context, namespace, key, content string, now time.Time) (*store.Record, error) {
	k := recordKeyFor(namespace, key)

	var createdAt time.Time
	txn := func(tx *redis.Tx) error {
		prior, err := tx.HGet(ctx, k, fieldCreatedAt).Result()
		if errors.Is(err, redis.Nil) {
			return store.RecordNotFound(namespace, key)
		}
		if err != nil {
			return store.Unavailable("checking prior record", err)
		}
		if createdAt, err = parseTime(prior); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, fieldContent, content, fieldUpdatedAt, formatTime(now))
			return nil
		})
		return err
	}

	for range updateRetries {
		err := s.client.Watch(ctx, txn, k)
		switch {
		case err == nil:
			return &store.Record{
				Namespace: namespace,
				Key:       key,
				Content:   content,
				CreatedAt: createdAt,
				UpdatedAt: now,
			}, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, store.ErrRecordNotFound), errors.Is(err, store.ErrUnavailable):
			return nil, err
		default:
			return nil, store.Unavailable("updating record", err)
		}
	}

	return nil, fmt.Errorf("%w: update of '%s/%s' lost %d races", store.ErrWriteConflict, namespace, key, updateRetries)
}

func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	removed, err := s.client.Del(ctx, recordKeyFor(namespace, key)).Result()
	if err != nil {
		return store.Unavailable("deleting record", err)
	}
	if removed == 0 {
		return store.RecordNotFound(namespace, key)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// scanKeys collects every key matching pattern. SCAN may yield a key more
// than once while the server rehashes, so results are deduplicated.
func (s *Store) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	seen := make(map[string]struct{})
	var keys []string

	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		return nil, store.Unavailable("scanning keys", err)
	}
	return keys, nil
}

func recordKeyFor(namespace, key string) string {
	return keyPrefix + namespace + ":" + key
}

// splitRecordKey parses "mem:<namespace>:<key>". Keys that do not follow the
// layout (foreign data sharing the database) report ok=false and are skipped
// by scans.
func splitRecordKey(k string) (namespace, key string, ok bool) {
	rest, found := strings.CutPrefix(k, keyPrefix)
	if !found {
		return "", "", false
	}
	namespace, key, found = strings.Cut(rest, ":")
	if !found || namespace == "" || key == "" {
		return "", "", false
	}
	return namespace, key, true
}

func buildRecord(namespace, key, content, createdAt, updatedAt string) (*store.Record, error) {
	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	return &store.Record{
		Namespace: namespace,
		Key:       key,
		Content:   content,
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed timestamp %q in store: %w", s, err)
	}
	return t, nil
}
