package models

// GenerationChunk is one incremental fragment of a response. Sequence starts at 1 per turn.
type GenerationChunk struct {
	Text     string `json:"chunk"`
	Sequence int    `json:"chunk_number"`
}

// AudioPayload holds the base64 text of a synthesized clip.
type AudioPayload struct {
	Encoded     []byte
	TotalLength int
	Mock        bool
	Format      string
}

func NewAudioPayload(encoded []byte, format string, mock bool) AudioPayload {
	return AudioPayload{Encoded: encoded, TotalLength: len(encoded), Format: format, Mock: mock}
}

type AudioChunk struct {
	Sequence     int    `json:"chunk_index"`
	Fragment     string `json:"chunk_data"`
	FragmentSize int    `json:"chunk_size"`
	TotalChunks  int    `json:"total_chunks"`
}
