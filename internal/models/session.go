package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConnState is the pipeline stage a session is currently in.
type ConnState string

const (
	StateIdle         ConnState = "idle"
	StateRecognizing  ConnState = "recognizing"
	StateGenerating   ConnState = "generating"
	StateSynthesizing ConnState = "synthesizing"
	StateStreaming    ConnState = "streaming"
	StateError        ConnState = "error"
)

// Session is the live, in-memory state of one client connection.
type Session struct {
	ConnectionID string    `json:"connection_id"`
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int64     `json:"message_count"`

	RecognitionActive bool      `json:"recognition_active"`
	GenerationActive  bool      `json:"generation_active"`
	SynthesisActive   bool      `json:"synthesis_active"`
	State             ConnState `json:"state"`

	// synthesis lifecycle opened by the client (start_murf_websocket)
	SynthesisEnabled bool `json:"synthesis_enabled"`
	// persona of the last chat message; voice turns reuse it
	Persona string `json:"persona"`

	ChunksSent     int64 `json:"chunks_sent"`
	BytesStreamed  int64 `json:"bytes_streamed"`
	StreamsStarted int64 `json:"streams_started"`
}

// IdleState is the state a session settles into between turns.
func (s *Session) IdleState() ConnState {
	if s.RecognitionActive {
		return StateRecognizing
	}
	return StateIdle
}

const (
	SessionRecordActive = "active"
	SessionRecordEnded  = "ended"
)

// SessionRecord is the lifecycle audit document stored in MongoDB.
type SessionRecord struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID    string             `bson:"session_id" json:"session_id"`
	ConnectionID string             `bson:"connection_id" json:"connection_id"`

	Status       string `bson:"status" json:"status"` // active|ended
	MessageCount int64  `bson:"message_count" json:"message_count"`
	ChunksSent   int64  `bson:"chunks_sent" json:"chunks_sent"`

	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	EndedAt   *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`

	DurationSeconds int64 `bson:"duration_seconds" json:"duration_seconds"`
}
