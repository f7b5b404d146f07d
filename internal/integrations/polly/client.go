// Package polly synthesizes speech with Amazon Polly.
package polly

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
)

const (
	defaultVoice  = types.VoiceIdJoanna
	maxAudioBytes = 25 << 20
)

// pollyAPI is the minimal Polly interface required by Client.
// *polly.Client from aws-sdk-go-v2 satisfies this interface.
type pollyAPI interface {
	SynthesizeSpeech(ctx context.Context, in *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Client converts text to MP3 audio with a fixed Polly voice.
type Client struct {
	api    pollyAPI
	voice  types.VoiceId
	engine types.Engine
}

type Option func(*Client)

// WithVoice selects the Polly voice id (for example "Joanna" or "Matthew").
func WithVoice(voice string) Option {
	return func(c *Client) {
		if v := strings.TrimSpace(voice); v != "" {
			c.voice = types.VoiceId(v)
		}
	}
}

// WithEngine selects the synthesis engine ("standard", "neural", ...).
func WithEngine(engine string) Option {
	return func(c *Client) {
		c.engine = types.Engine(strings.TrimSpace(engine))
	}
}

// New creates a Client with the given Polly API implementation.
func New(api pollyAPI, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("polly: api must not be nil")
	}
	c := &Client{api: api, voice: defaultVoice}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Synthesize returns the MP3 audio stream for text, fully buffered.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	in := &polly.SynthesizeSpeechInput{
		OutputFormat: types.OutputFormatMp3,
		Text:         aws.String(text),
		VoiceId:      c.voice,
	}
	if c.engine != "" {
		in.Engine = c.engine
	}

	out, err := c.api.SynthesizeSpeech(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("polly: SynthesizeSpeech: %w", err)
	}
	if out == nil || out.AudioStream == nil {
		return nil, errors.New("polly: response has no audio stream")
	}
	defer func() { _ = out.AudioStream.Close() }()

	audio, err := io.ReadAll(io.LimitReader(out.AudioStream, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("polly: buffer audio stream: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("polly: audio stream is empty")
	}
	return audio, nil
}
