package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson" // Use bson for index keys
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	err = createIndexes(ctx, client, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

// createIndexes prepares the passage collections. The vector index itself is
// an Atlas search index and is managed outside the driver.
func createIndexes(ctx context.Context, client *mongo.Client, cfg *Config) error {
	db := client.Database(cfg.DBName)

	passageIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "seq", Value: 1}}},
		{Keys: bson.D{{Key: "metadata.source", Value: 1}}},
		{Keys: bson.D{{Key: "metadata.source", Value: 1}, {Key: "metadata.chunk_index", Value: 1}}},
	}

	for _, name := range []string{cfg.DocumentsCollection, cfg.UpdatesCollection} {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, passageIndexes); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	return nil
}
