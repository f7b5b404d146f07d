package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

const maxAudioBytes = 25 << 20

// speechAPI is the subset of the go-openai client used for text to speech.
type speechAPI interface {
	CreateSpeech(ctx context.Context, request goopenai.CreateSpeechRequest) (goopenai.RawResponse, error)
}

// Speech synthesizes MP3 audio with the OpenAI speech endpoint.
type Speech struct {
	api   speechAPI
	model goopenai.SpeechModel
	voice goopenai.SpeechVoice
}

type SpeechOption func(*Speech)

func WithSpeechModel(model string) SpeechOption {
	return func(s *Speech) {
		if m := strings.TrimSpace(model); m != "" {
			s.model = goopenai.SpeechModel(m)
		}
	}
}

func WithVoice(voice string) SpeechOption {
	return func(s *Speech) {
		if v := strings.TrimSpace(voice); v != "" {
			s.voice = goopenai.SpeechVoice(v)
		}
	}
}

// NewSpeech creates a Speech backend authenticated with apiKey. An empty
// baseURL keeps the library default.
func NewSpeech(apiKey, baseURL string, opts ...SpeechOption) (*Speech, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai: api key must not be empty")
	}
	cfg := goopenai.DefaultConfig(apiKey)
	if base := strings.TrimRight(strings.TrimSpace(baseURL), "/"); base != "" {
		cfg.BaseURL = base
	}
	return newSpeech(goopenai.NewClientWithConfig(cfg), opts...)
}

func newSpeech(api speechAPI, opts ...SpeechOption) (*Speech, error) {
	if api == nil {
		return nil, errors.New("openai: speech api must not be nil")
	}
	s := &Speech{
		api:   api,
		model: goopenai.TTSModel1,
		voice: goopenai.VoiceNova,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Synthesize returns MP3 audio for text.
func (s *Speech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := s.api.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: goopenai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: create speech: %w", err)
	}
	defer func() { _ = resp.Close() }()

	audio, err := io.ReadAll(io.LimitReader(resp, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("openai: read speech audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("openai: speech response has no audio")
	}
	return audio, nil
}
