package models

import "time"

type TranscriptKind string

const (
	TranscriptPartial TranscriptKind = "partial"
	TranscriptFinal   TranscriptKind = "final"
)

type TranscriptEvent struct {
	Kind       TranscriptKind `json:"kind"`
	Text       string         `json:"text"`
	Confidence *float64       `json:"confidence,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

type TurnSource string

const (
	TurnFromVoice TurnSource = "voice"
	TurnFromText  TurnSource = "text"
	// test turns skip generation and synthesize their text directly
	TurnFromTest TurnSource = "test"
)

// Turn is one detected unit of user input. It feeds exactly one generation.
type Turn struct {
	Text       string     `json:"transcript"`
	Confidence float64    `json:"confidence"`
	DetectedAt time.Time  `json:"detected_at"`
	Source     TurnSource `json:"source"`
	Persona    string     `json:"persona,omitempty"`
}
