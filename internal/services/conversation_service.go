package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yoockh/voxaura/internal/models"
	pgrepo "github.com/yoockh/voxaura/internal/repositories/postgres"
	"github.com/yoockh/voxaura/internal/utils"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ConversationService interface {
	Append(ctx context.Context, sessionID, role, content, modelUsed string, metadata map[string]any) (*models.ConversationLog, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]models.ConversationLog, error)
}

type conversationService struct {
	convos pgrepo.ConversationRepo
}

func NewConversationService(convos pgrepo.ConversationRepo) ConversationService {
	return &conversationService{convos: convos}
}

func (s *conversationService) Append(ctx context.Context, sessionID, role, content, modelUsed string, metadata map[string]any) (*models.ConversationLog, error) {
	const op = "ConversationService.Append"

	if sessionID == "" || role == "" || content == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id, role, and content are required", nil)
	}
	if role != models.RoleUser && role != models.RoleAssistant {
		return nil, utils.E(utils.CodeInvalidArgument, op, "role must be user or assistant", nil)
	}

	md := []byte("{}")
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return nil, utils.E(utils.CodeInvalidArgument, op, "metadata is not serializable", err)
		}
		md = b
	}

	row := &models.ConversationLog{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		ModelUsed: modelUsed,
		Timestamp: time.Now().UTC(),
		Metadata:  datatypes.JSON(md),
	}

	if err := s.convos.Insert(ctx, row); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to insert conversation log", err)
	}
	return row, nil
}

func (s *conversationService) ListBySession(ctx context.Context, sessionID string, limit int) ([]models.ConversationLog, error) {
	const op = "ConversationService.ListBySession"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	rows, err := s.convos.ListBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list conversations", err)
	}
	return rows, nil
}
