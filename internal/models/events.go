package models

import "encoding/json"

// Client -> server event types.
const (
	EventRegisterSession    = "register_session"
	EventStartTranscription = "start_streaming_transcription"
	EventStopTranscription  = "stop_streaming_transcription"
	EventAudioChunk         = "audio_chunk"
	EventChatMessage        = "chat_message"
	EventStartSynthesis     = "start_murf_websocket"
	EventStopSynthesis      = "stop_murf_websocket"
	EventTestRequest        = "test_request"
)

// Server -> client event types.
const (
	EventStatus              = "status"
	EventTranscriptionStatus = "transcription_status"
	EventTranscription       = "transcription"
	EventTurnDetected        = "turn_detected"
	EventLLMChunk            = "llm_streaming_chunk"
	EventLLMComplete         = "llm_streaming_complete"
	EventLLMError            = "llm_error"
	EventAudioChunkStreamed  = "audio_chunk_streamed"
	EventAudioStreamComplete = "audio_stream_complete"
	EventAudioStreamError    = "audio_stream_error"
	EventSynthesisStatus     = "murf_websocket_status"
	EventError               = "error"
)

// Envelope is the wire frame in both directions: {"type": "...", "data": {...}}.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type RegisterSessionData struct {
	SessionID string `json:"session_id"`
}

type AudioChunkData struct {
	AudioData string `json:"audio_data"`
}

type ChatMessageData struct {
	Message string `json:"message"`
	Persona string `json:"persona"`
}

type TestRequestData struct {
	Action string `json:"action"`
}

type StatusPayload struct {
	Connected      bool   `json:"connected"`
	ActiveSessions int    `json:"active_sessions"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
}

type TranscriptionStatusPayload struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type TranscriptionPayload struct {
	Text      string `json:"text"`
	Final     bool   `json:"final"`
	Timestamp string `json:"timestamp"`
}

type TurnDetectedPayload struct {
	Message    string  `json:"message"`
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	Timestamp  string  `json:"timestamp"`
}

type LLMChunkPayload struct {
	Chunk       string `json:"chunk"`
	ChunkNumber int    `json:"chunk_number"`
	Transcript  string `json:"transcript"`
}

type LLMCompletePayload struct {
	FinalResponse  string `json:"final_response"`
	ChunkCount     int    `json:"chunk_count"`
	CharacterCount int    `json:"character_count"`
	ModelUsed      string `json:"model_used"`
}

type LLMErrorPayload struct {
	Error            string `json:"error"`
	FallbackResponse string `json:"fallback_response"`
	Transcript       string `json:"transcript"`
}

type AudioStreamCompletePayload struct {
	TotalChunks int `json:"total_chunks"`
	TotalSize   int `json:"total_size"`
}

type AudioStreamErrorPayload struct {
	Error string `json:"error"`
}

type SynthesisStatusPayload struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
