package docstore

import (
	"DocRAG/backend/go/internal/rag_service/rag/interfaces"
	"DocRAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DefaultOpTimeout bounds connection checkout plus one round trip.
const DefaultOpTimeout = 5 * time.Second

// MongoRecord is the persisted shape of a chunk record.
// Embeddings written as doubles by other clients are narrowed to float32 on read.
type MongoRecord struct {
	ID        string    `bson:"id"`
	Content   string    `bson:"content"`
	Embedding []float32 `bson:"embedding,truncate"`
	Filename  string    `bson:"filename"`
	ChunkSize int       `bson:"chunk_size"`
}

// ToMongoRecord converts a schema.Record to its persisted shape.
func ToMongoRecord(r schema.Record) MongoRecord {
	return MongoRecord{
		ID:        r.ID,
		Content:   r.Content,
		Embedding: r.Embedding,
		Filename:  r.SourceID,
		ChunkSize: r.Size,
	}
}

// Record converts the persisted shape back to a schema.Record.
func (m MongoRecord) Record() schema.Record {
	return schema.Record{
		Chunk: schema.Chunk{
			ID:       m.ID,
			Content:  m.Content,
			SourceID: m.Filename,
			Size:     m.ChunkSize,
		},
		Embedding: m.Embedding,
	}
}

// MongoRecordStore persists chunk records in a MongoDB collection.
type MongoRecordStore struct {
	coll    *mongo.Collection
	timeout time.Duration
}

// NewMongoRecordStore creates a store on coll. Every single-round-trip operation runs under
// timeout so an exhausted pool fails the call instead of hanging.
func NewMongoRecordStore(coll *mongo.Collection, timeout time.Duration) (*MongoRecordStore, error) {
	if coll == nil {
		return nil, fmt.Errorf("mongo collection is required")
	}
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	return &MongoRecordStore{coll: coll, timeout: timeout}, nil
}

// Collection exposes the underlying collection for the Atlas vector search backend.
func (s *MongoRecordStore) Collection() *mongo.Collection {
	return s.coll
}

// EnsureIndexes creates the lookup indexes used by counts and filters.
func (s *MongoRecordStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "filename", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// InsertMany writes the records unordered and returns how many were stored.
// Duplicate ids are reported as an error together with the partial count.
func (s *MongoRecordStore) InsertMany(ctx context.Context, records []schema.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	docs := make([]interface{}, len(records))
	for i, r := range records {
		docs[i] = ToMongoRecord(r)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		inserted := 0
		if res != nil {
			inserted = len(res.InsertedIDs)
		}
		var bulkErr mongo.BulkWriteException
		if errors.As(err, &bulkErr) {
			inserted = len(records) - len(bulkErr.WriteErrors)
		}
		return inserted, fmt.Errorf("failed to insert %d records: %w", len(records), err)
	}
	return len(res.InsertedIDs), nil
}

// Scan streams every record through fn. The scan is bounded by ctx only.
func (s *MongoRecordStore) Scan(ctx context.Context, fn func(schema.Record) error) error {
	cursor, err := s.coll.Find(ctx, bson.D{}, options.Find().SetProjection(bson.D{{Key: "_id", Value: 0}}))
	if err != nil {
		return fmt.Errorf("failed to scan records: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var rec MongoRecord
		if err := cursor.Decode(&rec); err != nil {
			return fmt.Errorf("failed to decode record: %w", err)
		}
		if err := fn(rec.Record()); err != nil {
			return err
		}
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("cursor error while scanning records: %w", err)
	}
	return nil
}

// CountBySource returns the number of records stored for sourceID.
func (s *MongoRecordStore) CountBySource(ctx context.Context, sourceID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.coll.CountDocuments(ctx, bson.M{"filename": sourceID})
	if err != nil {
		return 0, fmt.Errorf("failed to count records for %s: %w", sourceID, err)
	}
	return n, nil
}

// Ping checks that the primary is reachable.
func (s *MongoRecordStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.coll.Database().Client().Ping(ctx, readpref.Primary())
}

// compile-time check to ensure MongoRecordStore implements the RecordStore interface
var _ interfaces.RecordStore = (*MongoRecordStore)(nil)
