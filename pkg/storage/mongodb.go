package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoDoc is the on-disk shape for a document in any logical collection.
// Value is stored flat (rather than nested under a "value" key) so ad-hoc
// Mongo queries against the collection read naturally.
type mongoDoc struct {
	Key       string                 `bson:"_id"`
	Value     map[string]interface{} `bson:"value"`
	CreatedAt time.Time              `bson:"created_at"`
	UpdatedAt time.Time              `bson:"updated_at"`
}

type mongoCounter struct {
	Key   string `bson:"_id"`
	Value int64  `bson:"value"`
}

// MongoStore implements Store against MongoDB, mapping each logical
// collection name to its own Mongo collection plus one shared "_counters"
// collection partitioned by a compound key.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	locks  *mongo.Collection
}

// NewMongoStore connects to MongoDB and returns a ready Store.
func NewMongoStore(ctx context.Context, connectionString, databaseName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("storage: connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("storage: ping mongo: %w", err)
	}

	db := client.Database(databaseName)
	return &MongoStore{client: client, db: db, locks: db.Collection("_locks")}, nil
}

func (s *MongoStore) coll(collection string) *mongo.Collection {
	return s.db.Collection(collection)
}

func counterKey(collection, key string) string {
	return collection + "::" + key
}

func (s *MongoStore) Save(ctx context.Context, collection, key string, value map[string]interface{}) error {
	now := time.Now()
	filter := bson.M{"_id": key}
	update := bson.M{
		"$set":         bson.M{"value": value, "updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}
	_, err := s.coll(collection).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (s *MongoStore) Get(ctx context.Context, collection, key string) (Record, error) {
	var doc mongoDoc
	err := s.coll(collection).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return Record{Key: doc.Key, Value: doc.Value, CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt}, nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, key string) error {
	res, err := s.coll(collection).DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Query(ctx context.Context, collection string, filter Filter) ([]Record, error) {
	mongoFilter := bson.M{}
	for field, want := range filter.Equals {
		mongoFilter["value."+field] = want
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	cursor, err := s.coll(collection).Find(ctx, mongoFilter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []Record
	for cursor.Next(ctx) {
		var doc mongoDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, Record{Key: doc.Key, Value: doc.Value, CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt})
	}
	return out, cursor.Err()
}

func (s *MongoStore) Update(ctx context.Context, collection, key string, fields map[string]interface{}) error {
	set := bson.M{"updated_at": time.Now()}
	for k, v := range fields {
		set["value."+k] = v
	}

	res, err := s.coll(collection).UpdateOne(ctx, bson.M{"_id": key}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	mongoFilter := bson.M{}
	for field, want := range filter.Equals {
		mongoFilter["value."+field] = want
	}
	count, err := s.coll(collection).CountDocuments(ctx, mongoFilter)
	return int(count), err
}

func (s *MongoStore) Clear(ctx context.Context, collection string) error {
	_, err := s.coll(collection).DeleteMany(ctx, bson.M{})
	if err != nil {
		return err
	}
	_, err = s.db.Collection("_counters").DeleteMany(ctx, bson.M{"_id": bson.M{"$regex": "^" + collection + "::"}})
	return err
}

// AtomicAdd uses findOneAndUpdate with $inc and upsert, which MongoDB
// guarantees is atomic per document even under concurrent writers.
func (s *MongoStore) AtomicAdd(ctx context.Context, collection, key string, delta int64) (int64, error) {
	id := counterKey(collection, key)
	var doc mongoCounter

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	err := s.db.Collection("_counters").FindOneAndUpdate(
		ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"value": delta}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Value, nil
}

func (s *MongoStore) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	now := time.Now()
	filter := bson.M{"_id": name, "expires_at": bson.M{"$lt": now}}
	update := bson.M{"$set": bson.M{"expires_at": now.Add(ttl)}}

	_, err := s.locks.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *MongoStore) ReleaseLock(ctx context.Context, name string) error {
	_, err := s.locks.DeleteOne(ctx, bson.M{"_id": name})
	return err
}

func (s *MongoStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the underlying Mongo client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var _ Store = (*MongoStore)(nil)
