package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const databaseName = "filegate"

// Client wraps the mongo client together with the service database handle.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB and verifies the connection.
// Returns nil if the URI is empty (Mongo not configured; in-memory stores
// take over, which is only acceptable for development).
func New(ctx context.Context, uri string) (*Client, error) {
	if uri == "" {
		return nil, nil
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	return &Client{client: client, db: client.Database(databaseName)}, nil
}

// Database returns the service database handle.
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Migrate creates collections and the indexes the stores rely on. The unique
// index on batches.group_key is load-bearing: it is what makes the batch
// commit guard a single atomic operation.
func (c *Client) Migrate(ctx context.Context) error {
	collections := map[string][]mongo.IndexModel{
		"items": {
			{Keys: bson.D{{Key: "owner_id", Value: 1}}},
		},
		"batches": {
			{
				Keys:    bson.D{{Key: "group_key", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("unique_group_key"),
			},
			{Keys: bson.D{{Key: "owner_id", Value: 1}}},
		},
		"users": {
			{Keys: bson.D{{Key: "last_seen_at", Value: 1}}},
		},
	}

	for name, indexes := range collections {
		_ = c.db.CreateCollection(ctx, name)
		if len(indexes) > 0 {
			if _, err := c.db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
				return fmt.Errorf("create indexes for %s: %w", name, err)
			}
		}
	}
	return nil
}

// Health checks if the MongoDB connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.client.Ping(ctx, nil)
}

// Close disconnects the underlying client.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
