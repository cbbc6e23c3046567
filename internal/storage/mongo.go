package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoOpTimeout = 5 * time.Second

// MongoBackend stores each document as one Mongo document keyed by _id.
type MongoBackend struct {
	client     *mongo.Client
	collection *mongo.Collection
	uri        string
	dbName     string
}

// NewMongoBackend creates a MongoDB storage backend.
func NewMongoBackend(uri, dbName string) *MongoBackend {
	if dbName == "" {
		dbName = "gclipool"
	}
	return &MongoBackend{uri: uri, dbName: dbName}
}

func (m *MongoBackend) Initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(m.uri)
	clientOptions.SetMaxPoolSize(10)
	clientOptions.SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongodb: %w", err)
	}

	m.client = client
	m.collection = client.Database(m.dbName).Collection("documents")
	return nil
}

func (m *MongoBackend) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoBackend) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *MongoBackend) Name() string { return "mongodb" }

func (m *MongoBackend) LoadDocument(ctx context.Context, docKey string) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	var row struct {
		Data map[string]interface{} `bson:"data"`
	}
	err := m.collection.FindOne(ctx, bson.M{"_id": docKey}).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", docKey, err)
	}
	if row.Data == nil {
		return map[string]interface{}{}, nil
	}
	return row.Data, nil
}

func (m *MongoBackend) WriteDocument(ctx context.Context, docKey string, doc map[string]interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	row := bson.M{
		"_id":        docKey,
		"data":       doc,
		"updated_at": time.Now().UTC(),
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := m.collection.ReplaceOne(ctx, bson.M{"_id": docKey}, row, opts); err != nil {
		return fmt.Errorf("write document %s: %w", docKey, err)
	}
	return nil
}
