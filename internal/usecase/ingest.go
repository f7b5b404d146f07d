package usecase

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"red-ai/internal/domain"
)

type IngestInput struct {
	UserID  string
	Message string
}

type IngestOutput struct {
	UserID  string
	Message string
}

// Ingest records the user's message as a new turn and returns the input
// unchanged. It never invokes the completion flow.
func (p *Pipeline) Ingest(ctx context.Context, in IngestInput) (IngestOutput, error) {
	if p.store == nil {
		return IngestOutput{}, p.reject(ctx, newError(KindConfiguration, FlowIngest, stageConfigure,
			errors.New("conversation store is not configured")))
	}
	if strings.TrimSpace(in.UserID) == "" {
		return IngestOutput{}, p.reject(ctx, newError(KindInvalidInput, FlowIngest, stageValidate,
			errors.New("user id is required")))
	}
	if strings.TrimSpace(in.Message) == "" {
		return IngestOutput{}, p.reject(ctx, newError(KindInvalidInput, FlowIngest, stageValidate,
			errors.New("message is required")))
	}

	turn := domain.Turn{
		UserID:    in.UserID,
		Timestamp: p.now().UTC(),
		Role:      domain.RoleUser,
		Content:   in.Message,
	}
	st := p.startStage(ctx, FlowIngest, stageAppend, zap.String("user_id", in.UserID))
	if err := p.store.Append(ctx, turn); err != nil {
		return IngestOutput{}, st.failed(newError(KindStorageWrite, FlowIngest, stageAppend, err))
	}
	st.succeeded()

	return IngestOutput{UserID: in.UserID, Message: in.Message}, nil
}
