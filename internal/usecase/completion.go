package usecase

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"red-ai/internal/domain"
)

// malformedResponse is implemented by provider errors raised for a response
// that arrived but could not be decoded.
type malformedResponse interface {
	MalformedResponse() bool
}

type CompletionInput struct {
	UserID string
	Prompt string
}

type CompletionOutput struct {
	Completion string
	UserID     string
}

// Complete generates the next assistant message from the user's persisted
// history. The prompt is not added to the context; callers run Ingest first.
// The generated text is recorded as an assistant turn before returning.
func (p *Pipeline) Complete(ctx context.Context, in CompletionInput) (CompletionOutput, error) {
	if p.store == nil || p.completer == nil {
		return CompletionOutput{}, p.reject(ctx, newError(KindConfiguration, FlowComplete, stageConfigure,
			errors.New("conversation store and completion provider are required")))
	}
	if strings.TrimSpace(in.UserID) == "" {
		return CompletionOutput{}, p.reject(ctx, newError(KindInvalidInput, FlowComplete, stageValidate,
			errors.New("user id is required")))
	}

	st := p.startStage(ctx, FlowComplete, stageHistory, zap.String("user_id", in.UserID))
	turns, err := p.store.History(ctx, in.UserID)
	if err != nil {
		return CompletionOutput{}, st.failed(newError(KindHistoryFetch, FlowComplete, stageHistory, err))
	}
	st.succeeded(zap.Int("turns", len(turns)))

	messages := projectHistory(turns)

	st = p.startStage(ctx, FlowComplete, stageComplete, zap.Int("messages", len(messages)))
	completion, err := p.completer.Complete(ctx, messages)
	if err != nil {
		kind := KindCompletionTransport
		if isMalformedResponse(err) {
			kind = KindCompletionParse
		}
		return CompletionOutput{}, st.failed(newError(kind, FlowComplete, stageComplete, err))
	}
	st.succeeded(zap.Int("completion_len", len(completion)))

	st = p.startStage(ctx, FlowComplete, stageRecord)
	err = p.store.Append(ctx, domain.Turn{
		UserID:    in.UserID,
		Timestamp: p.now().UTC(),
		Role:      domain.RoleAssistant,
		Content:   completion,
	})
	if err != nil {
		return CompletionOutput{}, st.failed(newError(KindStorageWrite, FlowComplete, stageRecord, err))
	}
	st.succeeded()

	return CompletionOutput{Completion: completion, UserID: in.UserID}, nil
}

// projectHistory maps turns to provider messages, preserving order.
func projectHistory(turns []domain.Turn) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.ChatMessage())
	}
	return out
}

func isMalformedResponse(err error) bool {
	var m malformedResponse
	return errors.As(err, &m) && m.MalformedResponse()
}
