// Package broadcast mirrors server events of a session onto redis pub/sub so
// other processes (dashboards, recorders) can follow a live conversation.
package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/voxaura/internal/session"
)

const publishTimeout = 2 * time.Second

// Channel is the pub/sub channel carrying the events of one session.
func Channel(sessionID string) string { return "session:" + sessionID + ":events" }

type Publisher interface {
	Publish(ctx context.Context, sessionID, eventType string, payload any) error
}

type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

type frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (p *RedisPublisher) Publish(ctx context.Context, sessionID, eventType string, payload any) error {
	b, err := json.Marshal(frame{Type: eventType, Data: payload})
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, Channel(sessionID), b).Err()
}

// mirror forwards to the client first; the copy on redis is best effort.
type mirror struct {
	inner     session.Sender
	pub       Publisher
	sessionID func() string
	log       *logrus.Logger
}

// Mirror decorates inner so every event sent to the client is also published.
// sessionID is resolved per event because register_session may rename the session.
func Mirror(inner session.Sender, pub Publisher, sessionID func() string, log *logrus.Logger) session.Sender {
	if pub == nil {
		return inner
	}
	return &mirror{inner: inner, pub: pub, sessionID: sessionID, log: log}
}

func (m *mirror) Send(eventType string, payload any) error {
	err := m.inner.Send(eventType, payload)

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if perr := m.pub.Publish(ctx, m.sessionID(), eventType, payload); perr != nil && m.log != nil {
		m.log.WithFields(logrus.Fields{"stage": "broadcast", "event": eventType}).WithError(perr).Debug("publish failed")
	}
	return err
}
