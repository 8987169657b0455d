package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/voxaura/internal/logger"
)

type recordSender struct {
	types []string
	err   error
}

func (r *recordSender) Send(eventType string, _ any) error {
	r.types = append(r.types, eventType)
	return r.err
}

func TestMirror_PublishesEveryEvent(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, Channel("s-1"))
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	inner := &recordSender{}
	s := Mirror(inner, NewRedisPublisher(rdb), func() string { return "s-1" }, logger.Discard())
	require.NoError(t, s.Send("transcription", map[string]any{"text": "hi"}))

	select {
	case msg := <-sub.Channel():
		var f struct {
			Type string         `json:"type"`
			Data map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &f))
		assert.Equal(t, "transcription", f.Type)
		assert.Equal(t, "hi", f.Data["text"])
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
	assert.Equal(t, []string{"transcription"}, inner.types)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, string, any) error {
	return errors.New("redis down")
}

func TestMirror_ClientErrorWinsAndPublishFailureIsIgnored(t *testing.T) {
	inner := &recordSender{}
	s := Mirror(inner, failingPublisher{}, func() string { return "x" }, logger.Discard())
	assert.NoError(t, s.Send("status", nil))

	boom := errors.New("closed")
	inner.err = boom
	assert.ErrorIs(t, s.Send("status", nil), boom)
}

func TestMirror_NilPublisherReturnsInner(t *testing.T) {
	inner := &recordSender{}
	assert.Same(t, inner, Mirror(inner, nil, nil, nil))
}
