package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/voxaura/internal/models"
	"github.com/yoockh/voxaura/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const SessionsCollection = "sessions"

type SessionRepository interface {
	Create(ctx context.Context, rec *models.SessionRecord) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.SessionRecord, error)
	End(ctx context.Context, connID string, endedAt time.Time, stats models.Session) error
	Rename(ctx context.Context, connID, sessionID string) error
	ListRecent(ctx context.Context, limit int64) ([]models.SessionRecord, error)
}

type sessionRepo struct {
	col *mongo.Collection
}

func NewSessionRepo(db *mongo.Database) SessionRepository {
	return &sessionRepo{col: db.Collection(SessionsCollection)}
}

func (r *sessionRepo) Create(ctx context.Context, rec *models.SessionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = models.SessionRecordActive
	}
	_, err := r.col.InsertOne(ctx, rec)
	return err
}

func (r *sessionRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	var rec models.SessionRecord
	err := r.col.FindOne(ctx, bson.M{"session_id": sessionID},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// End closes the active record of a connection and stores its final counters.
func (r *sessionRepo) End(ctx context.Context, connID string, endedAt time.Time, stats models.Session) error {
	dur := int64(endedAt.Sub(stats.CreatedAt).Seconds())
	if dur < 0 {
		dur = 0
	}
	res, err := r.col.UpdateOne(ctx,
		bson.M{"connection_id": connID, "status": models.SessionRecordActive},
		bson.M{"$set": bson.M{
			"status":           models.SessionRecordEnded,
			"ended_at":         endedAt.UTC(),
			"duration_seconds": dur,
			"message_count":    stats.MessageCount,
			"chunks_sent":      stats.ChunksSent,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *sessionRepo) Rename(ctx context.Context, connID, sessionID string) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"connection_id": connID, "status": models.SessionRecordActive},
		bson.M{"$set": bson.M{"session_id": sessionID}},
	)
	return err
}

func (r *sessionRepo) ListRecent(ctx context.Context, limit int64) ([]models.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	cur, err := r.col.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.SessionRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
