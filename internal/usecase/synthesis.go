package usecase

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

type SynthesisInput struct {
	Text string
}

type SynthesisOutput struct {
	AudioURL string
}

// Synthesize converts text to speech and publishes the audio under a fresh
// key. Every call produces a new artifact.
func (p *Pipeline) Synthesize(ctx context.Context, in SynthesisInput) (SynthesisOutput, error) {
	if p.synthesizer == nil || p.audio == nil {
		return SynthesisOutput{}, p.reject(ctx, newError(KindConfiguration, FlowSynthesize, stageConfigure,
			errors.New("speech synthesizer and audio store are required")))
	}
	if strings.TrimSpace(in.Text) == "" {
		return SynthesisOutput{}, p.reject(ctx, newError(KindInvalidInput, FlowSynthesize, stageValidate,
			errors.New("text is required")))
	}

	key := p.artifactKey()

	st := p.startStage(ctx, FlowSynthesize, stageSynthesize, zap.Int("text_len", len(in.Text)))
	audio, err := p.synthesizer.Synthesize(ctx, in.Text)
	if err != nil {
		return SynthesisOutput{}, st.failed(newError(KindSynthesis, FlowSynthesize, stageSynthesize, err))
	}
	st.succeeded(zap.Int("bytes", len(audio)))

	st = p.startStage(ctx, FlowSynthesize, stagePublish, zap.String("key", key))
	url, err := p.audio.Put(ctx, key, audio)
	if err != nil {
		return SynthesisOutput{}, st.failed(newError(KindPublish, FlowSynthesize, stagePublish, err))
	}
	st.succeeded(zap.String("audio_url", url))

	return SynthesisOutput{AudioURL: url}, nil
}
