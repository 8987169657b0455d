package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// AudioEntry is a synthesized clip as stored in the cache.
type AudioEntry struct {
	Encoded string `json:"encoded"`
	Format  string `json:"format"`
	Backend string `json:"backend"`
}

// AudioCache stores synthesized clips keyed by voice and text.
type AudioCache struct {
	c   Cache
	ttl time.Duration
}

func NewAudioCache(c Cache, ttl time.Duration) *AudioCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AudioCache{c: c, ttl: ttl}
}

func AudioKey(voiceID, text string) string {
	sum := sha256.Sum256([]byte(voiceID + "|" + text))
	return "audio:" + hex.EncodeToString(sum[:16])
}

func (a *AudioCache) Get(ctx context.Context, voiceID, text string) (AudioEntry, bool, error) {
	var e AudioEntry
	hit, err := a.c.GetJSON(ctx, AudioKey(voiceID, text), &e)
	if err != nil || !hit || e.Encoded == "" {
		return AudioEntry{}, false, err
	}
	return e, true, nil
}

func (a *AudioCache) Put(ctx context.Context, voiceID, text string, e AudioEntry) error {
	return a.c.SetJSON(ctx, AudioKey(voiceID, text), e, a.ttl)
}
