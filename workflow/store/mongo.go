package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/BaSui01/flowstudio/workflow"
)

// mongoDocument is the stored form of a definition. The definition itself
// is kept as JSON so node configs round-trip through their own codec.
type mongoDocument struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Version   string    `bson:"version,omitempty"`
	NodeCount int       `bson:"nodeCount"`
	EdgeCount int       `bson:"edgeCount"`
	Document  string    `bson:"document,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func newMongoDocument(def *workflow.Definition) (mongoDocument, error) {
	data, err := encode(def)
	if err != nil {
		return mongoDocument{}, err
	}
	sum := summarize(def)
	return mongoDocument{
		ID:        def.ID,
		Name:      sum.Name,
		Version:   sum.Version,
		NodeCount: sum.NodeCount,
		EdgeCount: sum.EdgeCount,
		Document:  string(data),
		CreatedAt: def.Metadata.CreatedAt,
		UpdatedAt: def.Metadata.UpdatedAt,
	}, nil
}

func (d mongoDocument) summary() Summary {
	return Summary{
		ID:        d.ID,
		Name:      d.Name,
		Version:   d.Version,
		NodeCount: d.NodeCount,
		EdgeCount: d.EdgeCount,
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

// MongoStore stores one document per definition in a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewMongoStore creates the store and ensures the listing index. The store
// owns the client and disconnects it on Close.
func NewMongoStore(ctx context.Context, client *mongo.Client, database, collection string, logger *zap.Logger) (*MongoStore, error) {
	if client == nil {
		return nil, fmt.Errorf("mongo client cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if collection == "" {
		collection = "workflows"
	}
	coll := client.Database(database).Collection(collection)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create workflows index: %w", err)
	}
	return &MongoStore{
		client: client,
		coll:   coll,
		logger: logger.With(zap.String("component", "graph_store"), zap.String("backend", "mongo")),
	}, nil
}

// Save implements GraphStore.
func (s *MongoStore) Save(ctx context.Context, def *workflow.Definition) error {
	stored, err := prepare(def)
	if err != nil {
		return err
	}
	doc, err := newMongoDocument(stored)
	if err != nil {
		return err
	}
	_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		s.logger.Error("save workflow failed", zap.String("workflow_id", doc.ID), zap.Error(err))
		return fmt.Errorf("failed to save workflow %s: %w", doc.ID, err)
	}
	return nil
}

// Get implements GraphStore.
func (s *MongoStore) Get(ctx context.Context, id string) (*workflow.Definition, error) {
	var doc mongoDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow %s: %w", id, err)
	}
	return decode([]byte(doc.Document))
}

// List implements GraphStore.
func (s *MongoStore) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	find := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetProjection(bson.M{"document": 0})
	if opts.Offset > 0 {
		find.SetSkip(int64(opts.Offset))
	}
	if opts.Limit > 0 {
		find.SetLimit(int64(opts.Limit))
	}

	cur, err := s.coll.Find(ctx, bson.D{}, find)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	var docs []mongoDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode workflows: %w", err)
	}
	out := make([]Summary, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.summary())
	}
	return out, nil
}

// Delete implements GraphStore.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping implements GraphStore.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close implements GraphStore.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
