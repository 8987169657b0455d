package config

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureMongoIndexes creates the indexes of the session audit collection.
func EnsureMongoIndexes(db *mongo.Database) error {
	if db == nil {
		return errors.New("mongo database is nil; call InitMongo() first")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessions := db.Collection("sessions")
	_, err := sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// one active record per connection
		{
			Keys: bson.D{{Key: "connection_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_active_connection").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": "active"}),
		},
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("by_session_created"),
		},
		// ended records expire after 30 days
		{
			Keys: bson.D{{Key: "ended_at", Value: 1}},
			Options: options.Index().
				SetName("ttl_ended_at").
				SetExpireAfterSeconds(30 * 24 * 3600),
		},
	})
	return err
}
