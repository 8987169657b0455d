package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/yoockh/voxaura/internal/models"
	"github.com/yoockh/voxaura/internal/persona"
	"github.com/yoockh/voxaura/internal/utils"
)

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

type PollyConfig struct {
	Region string
	Engine string
	// Voices maps a persona to a Polly voice id.
	Voices map[persona.Persona]string
}

// Polly synthesizes through Amazon Polly. The AWS client is resolved on first
// use from the default credential chain.
type Polly struct {
	mu     sync.Mutex
	client synthClient
	cfg    PollyConfig
}

func NewPolly(cfg PollyConfig) *Polly {
	return newPollyWithClient(cfg, nil)
}

func newPollyWithClient(cfg PollyConfig, client synthClient) *Polly {
	if strings.TrimSpace(cfg.Engine) == "" {
		cfg.Engine = "neural"
	}
	if cfg.Voices == nil {
		cfg.Voices = map[persona.Persona]string{persona.Default: "Joanna", persona.Pirate: "Matthew"}
	}
	return &Polly{client: client, cfg: cfg}
}

func (p *Polly) Configured() bool { return p.client != nil || strings.TrimSpace(p.cfg.Region) != "" }

func (p *Polly) Name() string { return "polly" }

func (p *Polly) Synthesize(ctx context.Context, text string, voice persona.Profile) (models.AudioPayload, error) {
	const op = "tts.Polly.Synthesize"
	if !p.Configured() {
		return models.AudioPayload{}, utils.E(utils.CodeConfiguration, op, "POLLY_REGION is not set", nil)
	}
	client, err := p.resolveClient(ctx)
	if err != nil {
		return models.AudioPayload{}, utils.E(utils.CodeConfiguration, op, "aws config", err)
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(p.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}
	voiceID, ok := p.cfg.Voices[voice.Persona]
	if !ok {
		voiceID = p.cfg.Voices[persona.Default]
	}

	out, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(voiceID),
	})
	if err != nil {
		return models.AudioPayload{}, normalizePollyError(op, err)
	}
	if out == nil || out.AudioStream == nil {
		return models.AudioPayload{}, utils.E(utils.CodeEmptyResult, op, "polly returned no audio", nil)
	}
	defer out.AudioStream.Close()

	raw, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return models.AudioPayload{}, utils.E(utils.CodeTransport, op, "read audio stream", err)
	}
	if len(raw) == 0 {
		return models.AudioPayload{}, utils.E(utils.CodeEmptyResult, op, "polly returned no audio", nil)
	}
	return models.NewAudioPayload([]byte(base64.StdEncoding.EncodeToString(raw)), FormatMP3, false), nil
}

func normalizePollyError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return utils.E(utils.CodeTimeout, op, "polly timed out", err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException", "ServiceFailureException":
			return utils.E(utils.CodeUnavailable, op, "polly unavailable", err)
		case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException",
			"MarksNotSupportedForFormatException", "InvalidSampleRateException":
			return utils.E(utils.CodeInvalidArgument, op, "polly rejected the request", err)
		default:
			return utils.E(utils.CodeUnavailable, op, fmt.Sprintf("polly error %s", apiErr.ErrorCode()), err)
		}
	}
	return utils.E(utils.CodeConnection, op, "polly unreachable", err)
}

func (p *Polly) resolveClient(ctx context.Context) (synthClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	p.client = polly.NewFromConfig(awsCfg)
	return p.client, nil
}
