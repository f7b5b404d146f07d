package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"red-ai/internal/domain"
)

const defaultAudioPrefix = "audio/"

// ConversationStore is the durable, append-only record of turns per user.
type ConversationStore interface {
	Append(ctx context.Context, turn domain.Turn) error
	// History returns the user's turns in ascending timestamp order.
	History(ctx context.Context, userID string) ([]domain.Turn, error)
}

// CompletionProvider generates the next assistant message for a conversation.
type CompletionProvider interface {
	Complete(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

// SpeechSynthesizer converts text to audio bytes.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// AudioStore durably stores audio and returns its resolvable URL.
type AudioStore interface {
	Put(ctx context.Context, key string, audio []byte) (string, error)
}

// Pipeline orchestrates the ingest, completion and synthesis flows over
// injected collaborators. A flow whose collaborators were not supplied fails
// with a ConfigurationError before any external call. Pipeline holds no
// mutable state and is safe for concurrent use.
type Pipeline struct {
	store       ConversationStore
	completer   CompletionProvider
	synthesizer SpeechSynthesizer
	audio       AudioStore
	log         *zap.Logger
	now         func() time.Time
	audioPrefix string
}

type Option func(*Pipeline)

func WithStore(s ConversationStore) Option {
	return func(p *Pipeline) { p.store = s }
}

func WithCompleter(c CompletionProvider) Option {
	return func(p *Pipeline) { p.completer = c }
}

func WithSynthesizer(s SpeechSynthesizer) Option {
	return func(p *Pipeline) { p.synthesizer = s }
}

func WithAudioStore(a AudioStore) Option {
	return func(p *Pipeline) { p.audio = a }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithAudioPrefix sets the key prefix of published artifacts ("audio/" by default).
func WithAudioPrefix(prefix string) Option {
	return func(p *Pipeline) {
		prefix = strings.Trim(strings.TrimSpace(prefix), "/")
		if prefix == "" {
			p.audioPrefix = ""
			return
		}
		p.audioPrefix = prefix + "/"
	}
}

// New builds a Pipeline. At least one collaborator must be supplied.
func New(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		log:         zap.NewNop(),
		now:         time.Now,
		audioPrefix: defaultAudioPrefix,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.store == nil && p.completer == nil && p.synthesizer == nil && p.audio == nil {
		return nil, errors.New("usecase: pipeline needs at least one collaborator")
	}
	return p, nil
}

// artifactKey returns a fresh object key for one synthesized artifact.
func (p *Pipeline) artifactKey() string {
	return p.audioPrefix + newArtifactID() + ".mp3"
}

// newArtifactID returns a random 128-bit identifier.
var newArtifactID = func() string {
	return uuid.NewString()
}
