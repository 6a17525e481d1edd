package cachestore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"market_data_hub/services/cache"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCacheCollection is the collection holding durable cache entries.
const MongoCacheCollection = "cache_entries"

// MongoStore keeps cache entries as documents with a TTL index on expires_at.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type mongoEntry struct {
	ID           string    `bson:"_id"`
	ResourceType string    `bson:"resource_type"`
	Identifier   string    `bson:"identifier"`
	Variant      string    `bson:"variant"`
	Payload      []byte    `bson:"payload"`
	ExpiresAt    time.Time `bson:"expires_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// mongoDocID is the document _id of key; one document per key.
func mongoDocID(key cache.Key) string {
	return key.String()
}

func newMongoEntry(entry cache.Entry, now time.Time) mongoEntry {
	return mongoEntry{
		ID:           mongoDocID(entry.Key),
		ResourceType: entry.Key.Type.String(),
		Identifier:   entry.Key.Identifier,
		Variant:      entry.Key.Variant,
		Payload:      entry.Payload,
		ExpiresAt:    entry.ExpiresAt.UTC(),
		UpdatedAt:    now.UTC(),
	}
}

// mongoDeleteFilter matches every variant of identifier, or the whole
// resource type when identifier is empty.
func mongoDeleteFilter(rt cache.ResourceType, identifier string) bson.M {
	filter := bson.M{"resource_type": rt.String()}
	if identifier != "" {
		filter["identifier"] = identifier
	}
	return filter
}

func mongoExpiredFilter(now time.Time) bson.M {
	return bson.M{"expires_at": bson.M{"$lte": now.UTC()}}
}

// NewMongoStore connects to uri and prepares the cache collection.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetMaxPoolSize(10).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(30 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(database).Collection(MongoCacheCollection)
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
		{
			Keys: bson.D{{Key: "resource_type", Value: 1}, {Key: "identifier", Value: 1}},
		},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		log.Printf("Warning: failed to create MongoDB cache indexes: %v", err)
	}

	log.Printf("MongoDB cache store ready (database=%s)", database)
	return &MongoStore{client: client, collection: coll}, nil
}

func (s *MongoStore) Get(ctx context.Context, key cache.Key) (cache.Entry, bool, error) {
	var doc mongoEntry
	err := s.collection.FindOne(ctx, bson.M{"_id": mongoDocID(key)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("mongo find %s: %w", key, err)
	}
	return cache.Entry{Key: key, Payload: doc.Payload, ExpiresAt: doc.ExpiresAt}, true, nil
}

func (s *MongoStore) Set(ctx context.Context, entry cache.Entry) error {
	doc := newMongoEntry(entry, time.Now())
	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts); err != nil {
		return fmt.Errorf("mongo upsert %s: %w", entry.Key, err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, rt cache.ResourceType, identifier string) error {
	if _, err := s.collection.DeleteMany(ctx, mongoDeleteFilter(rt, identifier)); err != nil {
		return fmt.Errorf("mongo delete %s: %w", rt, err)
	}
	return nil
}

// PurgeExpired removes expired documents the TTL monitor has not reached yet.
func (s *MongoStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, mongoExpiredFilter(now))
	if err != nil {
		return 0, fmt.Errorf("mongo purge expired: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

var _ cache.Store = (*MongoStore)(nil)
