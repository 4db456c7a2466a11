package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/serroba/url-mapping/internal/mapping"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DefaultMongoCollection is the collection the mappings have always lived in.
const DefaultMongoCollection = "UrlMapping"

// Field names are PascalCase to stay readable by documents written before
// this service existed.
const (
	fieldShortURL   = "ShortUrl"
	fieldLongURL    = "LongUrl"
	fieldVisitCount = "VisitCount"
)

type mappingDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	LongURL    string             `bson:"LongUrl"`
	ShortURL   string             `bson:"ShortUrl"`
	VisitCount int64              `bson:"VisitCount"`
	CreatedBy  string             `bson:"CreatedBy"`
	CreatedAt  time.Time          `bson:"CreatedAt,omitempty"`
}

func (d *mappingDocument) toMapping() *mapping.Mapping {
	return &mapping.Mapping{
		ID:         d.ID.Hex(),
		LongURL:    d.LongURL,
		ShortURL:   mapping.ShortCode(d.ShortURL),
		VisitCount: d.VisitCount,
		CreatedBy:  d.CreatedBy,
		CreatedAt:  d.CreatedAt,
	}
}

// NewMongoClient connects to MongoDB and verifies the connection.
func NewMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)

		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return client, nil
}

// MongoStore is a MongoDB implementation of mapping.Repository.
type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore creates a new MongoDB-backed mapping store.
func NewMongoStore(collection *mongo.Collection) *MongoStore {
	return &MongoStore{collection: collection}
}

// EnsureIndexes creates the lookup indexes. They are deliberately not unique:
// duplicate long URLs from concurrent shortens must still be insertable.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: fieldShortURL, Value: 1}}},
		{Keys: bson.D{{Key: fieldLongURL, Value: 1}}},
	})

	return err
}

func (s *MongoStore) FindByLongURL(ctx context.Context, longURL string) (*mapping.Mapping, error) {
	return s.findOne(ctx, bson.D{{Key: fieldLongURL, Value: longURL}})
}

func (s *MongoStore) FindByShortURL(ctx context.Context, code mapping.ShortCode) (*mapping.Mapping, error) {
	return s.findOne(ctx, bson.D{{Key: fieldShortURL, Value: string(code)}})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.D) (*mapping.Mapping, error) {
	var doc mappingDocument

	err := s.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mapping.ErrNotFound
		}

		return nil, err
	}

	return doc.toMapping(), nil
}

func (s *MongoStore) Create(ctx context.Context, m *mapping.Mapping) error {
	doc := mappingDocument{
		LongURL:    m.LongURL,
		ShortURL:   string(m.ShortURL),
		VisitCount: m.VisitCount,
		CreatedBy:  m.CreatedBy,
		CreatedAt:  m.CreatedAt,
	}

	res, err := s.collection.InsertOne(ctx, doc)
	if err != nil {
		return err
	}

	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		m.ID = id.Hex()
	}

	return nil
}

func (s *MongoStore) IncrementVisits(ctx context.Context, code mapping.ShortCode) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.D{{Key: fieldShortURL, Value: string(code)}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: fieldVisitCount, Value: 1}}}},
	)

	return err
}

// Compile-time check.
var _ mapping.Repository = (*MongoStore)(nil)
