package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda/messages"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"red-ai/internal/logger"
	"red-ai/internal/usecase"
)

// errorTypeInternal tags failures that did not come from the pipeline.
const errorTypeInternal = "InternalError"

type Pipeline interface {
	Ingest(ctx context.Context, in usecase.IngestInput) (usecase.IngestOutput, error)
	Complete(ctx context.Context, in usecase.CompletionInput) (usecase.CompletionOutput, error)
	Synthesize(ctx context.Context, in usecase.SynthesisInput) (usecase.SynthesisOutput, error)
}

// Handler adapts the pipeline flows to Step Functions task payloads.
type Handler struct {
	pipeline Pipeline
	log      *zap.Logger
}

type IngestRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type IngestResponse struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type CompleteRequest struct {
	UserID string `json:"user_id"`
	Prompt string `json:"prompt"`
}

type CompleteResponse struct {
	Completion string `json:"completion"`
	UserID     string `json:"user_id"`
}

type SynthesizeRequest struct {
	Text string `json:"text"`
}

type SynthesizeResponse struct {
	AudioURL string `json:"audio_url"`
}

func NewHandler(p Pipeline, log *zap.Logger) (*Handler, error) {
	if p == nil {
		return nil, errors.New("handler: pipeline must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{pipeline: p, log: log}, nil
}

// For returns the typed handler function of flow, ready for lambda.Start.
func (h *Handler) For(flow usecase.Flow) (any, error) {
	switch flow {
	case usecase.FlowIngest:
		return h.Ingest, nil
	case usecase.FlowComplete:
		return h.Complete, nil
	case usecase.FlowSynthesize:
		return h.Synthesize, nil
	default:
		return nil, fmt.Errorf("handler: unknown flow %q", flow)
	}
}

func (h *Handler) Ingest(ctx context.Context, req IngestRequest) (IngestResponse, error) {
	ctx = withRequestID(ctx)
	out, err := h.pipeline.Ingest(ctx, usecase.IngestInput{UserID: req.UserID, Message: req.Message})
	if err != nil {
		return IngestResponse{}, h.fail(ctx, usecase.FlowIngest, err)
	}
	return IngestResponse{UserID: out.UserID, Message: out.Message}, nil
}

func (h *Handler) Complete(ctx context.Context, req CompleteRequest) (CompleteResponse, error) {
	ctx = withRequestID(ctx)
	out, err := h.pipeline.Complete(ctx, usecase.CompletionInput{UserID: req.UserID, Prompt: req.Prompt})
	if err != nil {
		return CompleteResponse{}, h.fail(ctx, usecase.FlowComplete, err)
	}
	return CompleteResponse{Completion: out.Completion, UserID: out.UserID}, nil
}

func (h *Handler) Synthesize(ctx context.Context, req SynthesizeRequest) (SynthesizeResponse, error) {
	ctx = withRequestID(ctx)
	out, err := h.pipeline.Synthesize(ctx, usecase.SynthesisInput{Text: req.Text})
	if err != nil {
		return SynthesizeResponse{}, h.fail(ctx, usecase.FlowSynthesize, err)
	}
	return SynthesizeResponse{AudioURL: out.AudioURL}, nil
}

// fail converts err into the Lambda error payload. Its Type is the pipeline
// error kind so a state machine can Catch on it.
func (h *Handler) fail(ctx context.Context, flow usecase.Flow, err error) error {
	resp := toInvokeError(err)
	logger.FromContext(ctx, h.log).Warn("invocation failed",
		zap.String("flow", string(flow)),
		zap.String("error_type", resp.Type),
		zap.String("error_message", resp.Message),
	)
	return resp
}

func toInvokeError(err error) messages.InvokeResponse_Error {
	var usecaseErr *usecase.Error
	if errors.As(err, &usecaseErr) {
		return messages.InvokeResponse_Error{
			Type:    string(usecaseErr.Kind),
			Message: usecaseErr.Error(),
		}
	}
	return messages.InvokeResponse_Error{Type: errorTypeInternal, Message: err.Error()}
}

func withRequestID(ctx context.Context) context.Context {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return logger.WithRequestID(ctx, lc.AwsRequestID)
	}
	return logger.WithRequestID(ctx, newRequestID())
}

var newRequestID = func() string {
	return uuid.NewString()
}
