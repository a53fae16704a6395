package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config selects and tunes the graph store backend.
type Config struct {
	// Type is the storage backend type
	Type StoreType `yaml:"type" json:"type" env:"TYPE"`

	// KeyPrefix is the prefix for all Redis keys
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix" env:"KEY_PREFIX"`

	// Database is the MongoDB database name
	Database string `yaml:"database" json:"database" env:"DATABASE"`

	// Collection is the MongoDB collection name
	Collection string `yaml:"collection" json:"collection" env:"COLLECTION"`
}

// DefaultConfig returns the default store configuration
func DefaultConfig() Config {
	return Config{
		Type:       StoreTypeMemory,
		KeyPrefix:  defaultKeyPrefix,
		Database:   "flowstudio",
		Collection: "workflows",
	}
}

// Backends carries the connections a store may be built on. Only the one
// matching Config.Type is used.
type Backends struct {
	Redis redis.UniversalClient
	DB    *gorm.DB
	Mongo *mongo.Client
}

// New creates a GraphStore based on the configuration
func New(ctx context.Context, cfg Config, b Backends, logger *zap.Logger) (GraphStore, error) {
	switch cfg.Type {
	case StoreTypeMemory, "":
		return NewMemoryStore(), nil
	case StoreTypeRedis:
		if b.Redis == nil {
			return nil, fmt.Errorf("redis store requires a redis client")
		}
		return NewRedisStore(b.Redis, cfg.KeyPrefix, logger), nil
	case StoreTypeSQL:
		if b.DB == nil {
			return nil, fmt.Errorf("sql store requires a database")
		}
		return NewGormStore(b.DB, logger)
	case StoreTypeMongo:
		if b.Mongo == nil {
			return nil, fmt.Errorf("mongo store requires a mongo client")
		}
		return NewMongoStore(ctx, b.Mongo, cfg.Database, cfg.Collection, logger)
	default:
		return nil, fmt.Errorf("unsupported graph store type: %s", cfg.Type)
	}
}
