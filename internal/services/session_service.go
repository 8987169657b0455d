package services

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/voxaura/internal/models"
	mongorepo "github.com/yoockh/voxaura/internal/repositories/mongo"
	"github.com/yoockh/voxaura/internal/utils"
)

// SessionAudit records the lifecycle of websocket sessions.
type SessionAudit interface {
	Started(ctx context.Context, s models.Session) error
	Renamed(ctx context.Context, connID, sessionID string) error
	Ended(ctx context.Context, s models.Session) error
	Recent(ctx context.Context, limit int64) ([]models.SessionRecord, error)
}

type sessionAudit struct {
	sessions mongorepo.SessionRepository
	now      func() time.Time
}

func NewSessionAudit(sessions mongorepo.SessionRepository) SessionAudit {
	return &sessionAudit{sessions: sessions, now: time.Now}
}

func (s *sessionAudit) Started(ctx context.Context, ss models.Session) error {
	const op = "SessionAudit.Started"

	if ss.ConnectionID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "connection_id is required", nil)
	}
	rec := &models.SessionRecord{
		SessionID:    ss.SessionID,
		ConnectionID: ss.ConnectionID,
		Status:       models.SessionRecordActive,
		CreatedAt:    ss.CreatedAt.UTC(),
	}
	if err := s.sessions.Create(ctx, rec); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to record session", err)
	}
	return nil
}

func (s *sessionAudit) Renamed(ctx context.Context, connID, sessionID string) error {
	const op = "SessionAudit.Renamed"

	if connID == "" || sessionID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "connection_id and session_id are required", nil)
	}
	if err := s.sessions.Rename(ctx, connID, sessionID); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to rename session", err)
	}
	return nil
}

func (s *sessionAudit) Ended(ctx context.Context, ss models.Session) error {
	const op = "SessionAudit.Ended"

	if ss.ConnectionID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "connection_id is required", nil)
	}
	if err := s.sessions.End(ctx, ss.ConnectionID, s.now().UTC(), ss); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to end session", err)
	}
	return nil
}

func (s *sessionAudit) Recent(ctx context.Context, limit int64) ([]models.SessionRecord, error) {
	const op = "SessionAudit.Recent"

	out, err := s.sessions.ListRecent(ctx, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list sessions", err)
	}
	return out, nil
}
