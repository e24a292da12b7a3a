/*
Package mongodb provides a MongoDB-backed implementation of ledger.Store.

PURPOSE:
  Keeps each document kind in its own collection, the way the mobile
  client's cloud backend organizes them (products, sales, customers, ...).
  Multi-document commits run inside session.WithTransaction, so the
  server must be a replica set (a single-node replica set is enough).

RECORD LAYOUT:
  _id       entity id
  shopId    owning shop
  version   compare-and-swap counter
  cursor    sync cursor in unix nanoseconds (BSON dates only keep millis)
  syncedAt  last upstream sync, unix nanoseconds
  body      entity JSON

COUNTERS:
  Named sequences live in the "counters" collection and advance with
  an upserting $inc.

SEE ALSO:
  - ledger/store.go: Interface definition and write semantics
  - store/sqlite/sqlite.go: Default backend
*/
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/smartpasal/pos-ledger/ledger"
)

const countersCollection = "counters"

// Config holds MongoDB connection configuration.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
}

func DefaultConfig() Config {
	return Config{
		URI:            "mongodb://localhost:27017/?replicaSet=rs0",
		Database:       "smartpasal",
		ConnectTimeout: 10 * time.Second,
		MaxPoolSize:    50,
	}
}

// Store implements ledger.Store on MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects, verifies the connection and ensures indexes.
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetMaxPoolSize(cfg.MaxPoolSize)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := &Store{client: client, db: client.Database(cfg.Database)}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	kinds := append([]ledger.Kind{ledger.KindShops}, ledger.SyncKinds...)
	for _, kind := range kinds {
		_, err := s.db.Collection(string(kind)).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "shopId", Value: 1}, {Key: "cursor", Value: 1}},
			Options: options.Index().SetName("shop_cursor"),
		})
		if err != nil {
			return fmt.Errorf("failed to create index on %s: %w", kind, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping checks the connection for health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// =============================================================================
// RECORDS
// =============================================================================

type record struct {
	ID       string `bson:"_id"`
	ShopID   string `bson:"shopId"`
	Version  int64  `bson:"version"`
	Cursor   int64  `bson:"cursor"`
	SyncedAt *int64 `bson:"syncedAt,omitempty"`
	Body     string `bson:"body"`
}

func toRecord(d ledger.Document) record {
	r := record{
		ID:      d.ID,
		ShopID:  d.ShopID,
		Version: d.Version,
		Cursor:  d.UpdatedAt.UnixNano(),
		Body:    string(d.Data),
	}
	if d.SyncedAt != nil {
		n := d.SyncedAt.UnixNano()
		r.SyncedAt = &n
	}
	return r
}

func fromRecord(kind ledger.Kind, r record) ledger.Document {
	d := ledger.Document{
		Kind:      kind,
		ID:        r.ID,
		ShopID:    r.ShopID,
		Version:   r.Version,
		UpdatedAt: time.Unix(0, r.Cursor).UTC(),
		Data:      []byte(r.Body),
	}
	if r.SyncedAt != nil {
		t := time.Unix(0, *r.SyncedAt).UTC()
		d.SyncedAt = &t
	}
	return d
}

func queryFilter(q ledger.Query) bson.M {
	filter := bson.M{}
	if q.ShopID != "" {
		filter["shopId"] = q.ShopID
	}
	if q.ChangedAfter != nil {
		filter["cursor"] = bson.M{"$gt": q.ChangedAfter.UnixNano()}
	}
	return filter
}

// =============================================================================
// READS
// =============================================================================

func (s *Store) Get(ctx context.Context, kind ledger.Kind, id string) (ledger.Document, error) {
	return s.get(ctx, kind, id)
}

func (s *Store) get(ctx context.Context, kind ledger.Kind, id string) (ledger.Document, error) {
	var r record
	err := s.db.Collection(string(kind)).FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ledger.Document{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Document{}, fmt.Errorf("failed to read %s/%s: %w", kind, id, err)
	}
	return fromRecord(kind, r), nil
}

func (s *Store) Query(ctx context.Context, q ledger.Query) ([]ledger.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "cursor", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(string(q.Kind)).Find(ctx, queryFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Kind, err)
	}
	defer cursor.Close(ctx)

	var docs []ledger.Document
	for cursor.Next(ctx) {
		var r record
		if err := cursor.Decode(&r); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", q.Kind, err)
		}
		docs = append(docs, fromRecord(q.Kind, r))
	}
	return docs, cursor.Err()
}

// =============================================================================
// WRITES
// =============================================================================

// Commit applies all writes inside one multi-document transaction.
func (s *Store) Commit(ctx context.Context, writes []ledger.Write) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		for _, w := range writes {
			if err := s.commitOne(sessCtx, w); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (s *Store) commitOne(ctx mongo.SessionContext, w ledger.Write) error {
	var current *ledger.Document
	doc, err := s.get(ctx, w.Doc.Kind, w.Doc.ID)
	switch {
	case err == nil:
		current = &doc
	case !errors.Is(err, ledger.ErrNotFound):
		return err
	}

	next, changed, err := ledger.ApplyWrite(current, w)
	if err != nil || !changed {
		return err
	}

	coll := s.db.Collection(string(next.Kind))
	if current == nil {
		if _, err := coll.InsertOne(ctx, toRecord(next)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("%s/%s: %w", next.Kind, next.ID, ledger.ErrAlreadyExists)
			}
			return fmt.Errorf("failed to insert %s/%s: %w", next.Kind, next.ID, err)
		}
		return nil
	}

	res, err := coll.ReplaceOne(ctx, bson.M{"_id": next.ID, "version": current.Version}, toRecord(next))
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", next.Kind, next.ID, err)
	}
	if res.MatchedCount != 1 {
		return fmt.Errorf("%s/%s: %w", next.Kind, next.ID, ledger.ErrConcurrentModification)
	}
	return nil
}

// NextSequence increments the named counter and returns its new value.
func (s *Store) NextSequence(ctx context.Context, name string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter struct {
		Value int64 `bson:"value"`
	}
	err := s.db.Collection(countersCollection).
		FindOneAndUpdate(ctx, bson.M{"_id": name}, bson.M{"$inc": bson.M{"value": int64(1)}}, opts).
		Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", name, err)
	}
	return counter.Value, nil
}
