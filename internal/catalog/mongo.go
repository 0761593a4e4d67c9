package catalog

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultMongoDatabase   = "pokecat_hunt"
	DefaultMongoCollection = "cats"
)

// MongoSource reads templates from the catalog service's collection.
type MongoSource struct {
	URI        string
	Database   string
	Collection string
}

func (m MongoSource) Name() string {
	return fmt.Sprintf("mongodb:%s.%s", m.database(), m.collection())
}

func (m MongoSource) database() string {
	if m.Database == "" {
		return DefaultMongoDatabase
	}
	return m.Database
}

func (m MongoSource) collection() string {
	if m.Collection == "" {
		return DefaultMongoCollection
	}
	return m.Collection
}

func (m MongoSource) Load(ctx context.Context) ([]Template, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(m.URI))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer client.Disconnect(context.Background())

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}

	cursor, err := client.Database(m.database()).Collection(m.collection()).Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer cursor.Close(ctx)

	var templates []Template
	if err := cursor.All(ctx, &templates); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return templates, nil
}
