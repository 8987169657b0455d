package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yoockh/voxaura/internal/models"
	"github.com/yoockh/voxaura/internal/persona"
	"github.com/yoockh/voxaura/internal/utils"
)

const DefaultMurfURL = "wss://api.murf.ai/ws/text-to-speech"

// Murf opens one websocket per request and waits for the clip.
type Murf struct {
	apiKey string
	url    string
	dialer *websocket.Dialer
}

func NewMurf(apiKey, url string) *Murf {
	if url == "" {
		url = DefaultMurfURL
	}
	return &Murf{apiKey: strings.TrimSpace(apiKey), url: url, dialer: websocket.DefaultDialer}
}

func (m *Murf) Configured() bool { return m.apiKey != "" }

func (m *Murf) Name() string { return "murf" }

type murfRequest struct {
	Text        string `json:"text"`
	VoiceID     string `json:"voice_id"`
	ContextID   string `json:"context_id"`
	Format      string `json:"format"`
	SampleRate  int    `json:"sample_rate"`
	BitRate     int    `json:"bit_rate"`
	Speed       int    `json:"speed"`
	Pitch       int    `json:"pitch"`
	Style       string `json:"style,omitempty"`
	StyleDegree int    `json:"style_degree"`
}

type murfResponse struct {
	Status    string `json:"status"`
	AudioData string `json:"audio_data"`
	Audio     string `json:"audio"`
	Final     bool   `json:"final"`
	Error     string `json:"error"`
}

func (m *Murf) Synthesize(ctx context.Context, text string, voice persona.Profile) (models.AudioPayload, error) {
	const op = "tts.Murf.Synthesize"
	if !m.Configured() {
		return models.AudioPayload{}, utils.E(utils.CodeConfiguration, op, "MURF_API_KEY is not set", nil)
	}

	conn, _, err := m.dialer.DialContext(ctx, m.url, http.Header{"Authorization": {"Bearer " + m.apiKey}})
	if err != nil {
		return models.AudioPayload{}, utils.FromDial(op, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
	}

	req := murfRequest{
		Text:        text,
		VoiceID:     voice.VoiceID,
		ContextID:   "voxaura-" + uuid.NewString(),
		Format:      FormatMP3,
		SampleRate:  44100,
		BitRate:     128000,
		Speed:       voice.SpeedPercent,
		Pitch:       voice.PitchPercent,
		Style:       voice.Style,
		StyleDegree: 50,
	}
	if err := conn.WriteJSON(req); err != nil {
		return models.AudioPayload{}, m.wrap(ctx, op, err)
	}

	var raw []byte
	for {
		var resp murfResponse
		if err := conn.ReadJSON(&resp); err != nil {
			return models.AudioPayload{}, m.wrap(ctx, op, err)
		}
		if resp.Error != "" || resp.Status == "error" {
			return models.AudioPayload{}, utils.E(utils.CodeUnavailable, op, "murf rejected the request", errors.New(resp.Error))
		}
		if resp.Status == "success" && resp.AudioData != "" {
			return models.NewAudioPayload([]byte(resp.AudioData), FormatMP3, false), nil
		}
		if resp.Audio != "" {
			b, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return models.AudioPayload{}, utils.E(utils.CodeTransport, op, "malformed audio chunk", err)
			}
			raw = append(raw, b...)
		}
		if resp.Final {
			break
		}
	}

	if len(raw) == 0 {
		return models.AudioPayload{}, utils.E(utils.CodeEmptyResult, op, "no audio data in response", nil)
	}
	return models.NewAudioPayload([]byte(base64.StdEncoding.EncodeToString(raw)), FormatMP3, false), nil
}

func (m *Murf) wrap(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		err = fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return utils.FromDial(op, err)
}
