// Package mongodb implements the store contract on a MongoDB collection.
//
// Each record is one document {namespace, key, content, created_at,
// updated_at} guarded by a unique compound index on (namespace, key).
// Timestamps are native BSON datetimes, so they carry millisecond precision.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/memkeep/memkeep/pkg/memory/store"
	syncutil "github.com/memkeep/memkeep/pkg/sync"
)

const (
	// upsertRetries bounds the duplicate-key retry loop in Put. Two
	// concurrent upserts for a brand-new pair can both miss the document and
	// collide on the unique index; the loser retries.
	upsertRetries = 3

	setupTimeout = 10 * time.Second
)

// Options carries the connection parameters for New.
type Options struct {
	URI        string
	Database   string
	Collection string
}

// Store talks to one MongoDB collection. The driver pools connections and is
// safe for concurrent use.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection

	// ensureIndex creates the unique (namespace, key) index once, on the
	// first mutating call, and replays its result afterwards.
	ensureIndex func() (string, error)
}

var _ store.Store = (*Store)(nil)

type document struct {
	Namespace string    `bson:"namespace"`
	Key       string    `bson:"key"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// New connects to MongoDB and verifies the connection with a ping. Index
// creation is deferred to the first write so that read-only deployments never
// need index-creation privileges.
func New(ctx context.Context, opts Options) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, store.Unavailable("connecting to mongodb", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, store.Unavailable("pinging mongodb", err)
	}

	coll := client.Database(opts.Database).Collection(opts.Collection)

	return &Store{
		client: client,
		coll:   coll,
		ensureIndex: syncutil.OnceErr(func() (string, error) {
			ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
			defer cancel()
			return coll.Indexes().CreateOne(ctx, mongo.IndexModel{
				Keys: bson.D{
					{Key: "namespace", Value: 1},
					{Key: "key", Value: 1},
				},
				Options: options.Index().SetUnique(true),
			})
		}),
	}, nil
}

func (s *Store) ListNamespaces(ctx context.Context) ([]store.Namespace, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$namespace"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, store.Unavailable("listing namespaces", err)
	}

	var rows []struct {
		Name    string `bson:"_id"`
		Records int    `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, store.Unavailable("listing namespaces", err)
	}

	namespaces := make([]store.Namespace, 0, len(rows))
	for _, row := range rows {
		namespaces = append(namespaces, store.Namespace{Name: row.Name, Records: row.Records})
	}
	return namespaces, nil
}

func (s *Store) ListKeys(ctx context.Context, namespace string) ([]store.Record, error) {
	cursor, err := s.coll.Find(ctx,
		bson.D{{Key: "namespace", Value: namespace}},
		options.Find().
			SetProjection(bson.D{{Key: "content", Value: 0}}).
			SetSort(bson.D{{Key: "key", Value: 1}}))
	if err != nil {
		return nil, store.Unavailable("listing keys", err)
	}

	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, store.Unavailable("listing keys", err)
	}
	if len(docs) == 0 {
		return nil, store.NamespaceNotFound(namespace)
	}

	records := make([]store.Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, record(doc))
	}
	return records, nil
}

func (s *Store) Get(ctx context.Context, namespace, key string) (*store.Record, error) {
	var doc document
	err := s.coll.FindOne(ctx, filterFor(namespace, key)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.RecordNotFound(namespace, key)
		}
		return nil, store.Unavailable("reading record", err)
	}
	rec := record(doc)
	return &rec, nil
}

// Put upserts with $setOnInsert so created_at is claimed exactly once, by the
// insert that wins. The pre-image tells created from overwritten apart and
// supplies the preserved created_at.
func (s *Store) Put(ctx context.Context, namespace, key, content string, now time.Time) (*store.Record, bool, error) {
	if _, err := s.ensureIndex(); err != nil {
		return nil, false, store.Unavailable("creating index", err)
	}

	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "content", Value: content},
			{Key: "updated_at", Value: now},
		}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: now}}},
	}

	var lastErr error
	for range upsertRetries {
		var prior document
		err := s.coll.FindOneAndUpdate(ctx, filterFor(namespace, key), update,
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.Before)).
			Decode(&prior)

		switch {
		case err == nil:
			return &store.Record{
				Namespace: namespace,
				Key:       key,
				Content:   content,
				CreatedAt: prior.CreatedAt,
				UpdatedAt: now,
			}, false, nil
		case errors.Is(err, mongo.ErrNoDocuments):
			// No pre-image: this call inserted the document.
			return &store.Record{
				Namespace: namespace,
				Key:       key,
				Content:   content,
				CreatedAt: now,
				UpdatedAt: now,
			}, true, nil
		case mongo.IsDuplicateKeyError(err):
			// Lost an insert race on the unique index; the document exists
			// now, so the next attempt takes the overwrite path.
			lastErr = err
			continue
		default:
			return nil, false, store.Unavailable("writing record", err)
		}
	}

	return nil, false, fmt.Errorf("%w: write of '%s/%s' lost %d races: %v",
		store.ErrWriteConflict, namespace, key, upsertRetries, lastErr)
}

func (s *Store) Update(ctx context.Context, namespace, key, content string, now time.Time) (*store.Record, error) {
	if _, err := s.ensureIndex(); err != nil {
		return nil, store.Unavailable("creating index", err)
	}

	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "content", Value: content},
		{Key: "updated_at", Value: now},
	}}}

	var prior document
	err := s.coll.FindOneAndUpdate(ctx, filterFor(namespace, key), update,
		options.FindOneAndUpdate().SetReturnDocument(options.Before)).
		Decode(&prior)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.RecordNotFound(namespace, key)
		}
		return nil, store.Unavailable("updating record", err)
	}

	return &store.Record{
		Namespace: namespace,
		Key:       key,
		Content:   content,
		CreatedAt: prior.CreatedAt,
		UpdatedAt: now,
	}, nil
}

func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	if _, err := s.ensureIndex(); err != nil {
		return store.Unavailable("creating index", err)
	}

	result, err := s.coll.DeleteOne(ctx, filterFor(namespace, key))
	if err != nil {
		return store.Unavailable("deleting record", err)
	}
	if result.DeletedCount == 0 {
		return store.RecordNotFound(namespace, key)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

func filterFor(namespace, key string) bson.D {
	return bson.D{
		{Key: "namespace", Value: namespace},
		{Key: "key", Value: key},
	}
}

func record(doc document) store.Record {
	return store.Record{
		Namespace: doc.Namespace,
		Key:       doc.Key,
		Content:   doc.Content,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
}
