package usecase

import "context"

type ConverseInput struct {
	UserID  string
	Message string
}

type ConverseOutput struct {
	UserID     string
	Message    string
	Completion string
	AudioURL   string
}

// CanSpeak reports whether the synthesis flow is configured.
func (p *Pipeline) CanSpeak() bool {
	return p.synthesizer != nil && p.audio != nil
}

// Converse runs ingest, completion and synthesis in sequence, feeding each
// flow's output into the next. Synthesis is skipped when it is not configured
// or the completion is empty.
func (p *Pipeline) Converse(ctx context.Context, in ConverseInput) (ConverseOutput, error) {
	ingested, err := p.Ingest(ctx, IngestInput(in))
	if err != nil {
		return ConverseOutput{}, err
	}

	completed, err := p.Complete(ctx, CompletionInput{UserID: ingested.UserID, Prompt: ingested.Message})
	if err != nil {
		return ConverseOutput{}, err
	}

	out := ConverseOutput{
		UserID:     completed.UserID,
		Message:    ingested.Message,
		Completion: completed.Completion,
	}
	if !p.CanSpeak() || completed.Completion == "" {
		return out, nil
	}

	spoken, err := p.Synthesize(ctx, SynthesisInput{Text: completed.Completion})
	if err != nil {
		return ConverseOutput{}, err
	}
	out.AudioURL = spoken.AudioURL
	return out, nil
}
