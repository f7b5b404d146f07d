// Package devserver exposes the pipeline flows over HTTP for local use.
package devserver

import (
	"context"
	"errors"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"red-ai/internal/logger"
	"red-ai/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type Pipeline interface {
	Ingest(ctx context.Context, in usecase.IngestInput) (usecase.IngestOutput, error)
	Complete(ctx context.Context, in usecase.CompletionInput) (usecase.CompletionOutput, error)
	Synthesize(ctx context.Context, in usecase.SynthesisInput) (usecase.SynthesisOutput, error)
	Converse(ctx context.Context, in usecase.ConverseInput) (usecase.ConverseOutput, error)
}

type Server struct {
	pipeline Pipeline
	log      *zap.Logger
	app      *fiber.App
}

type chatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type chatResponse struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type completionRequest struct {
	UserID string `json:"user_id"`
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Completion string `json:"completion"`
	UserID     string `json:"user_id"`
}

type speechRequest struct {
	Text string `json:"text"`
}

type speechResponse struct {
	AudioURL string `json:"audio_url"`
}

type converseResponse struct {
	UserID     string `json:"user_id"`
	Message    string `json:"message"`
	Completion string `json:"completion"`
	AudioURL   string `json:"audio_url,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func New(p Pipeline, log *zap.Logger) (*Server, error) {
	if p == nil {
		return nil, errors.New("devserver: pipeline must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
	})
	s := &Server{pipeline: p, log: log, app: app}

	app.Use(s.correlate)
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})
	app.Post("/chat", s.handleChat)
	app.Post("/completion", s.handleCompletion)
	app.Post("/speech", s.handleSpeech)
	app.Post("/converse", s.handleConverse)

	return s, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves on addr until Shutdown is called.
func (s *Server) Run(addr string) error {
	s.log.Info("starting dev server", zap.String("listen", addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// correlate tags the request with the caller's correlation id, or a new one,
// and echoes it back.
func (s *Server) correlate(c *fiber.Ctx) error {
	id := c.Get(correlationHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(correlationHeader, id)
	c.SetUserContext(logger.WithRequestID(c.UserContext(), id))
	return c.Next()
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	var req chatRequest
	if err := sonic.Unmarshal(c.Body(), &req); err != nil {
		return s.badRequest(c, err)
	}
	out, err := s.pipeline.Ingest(c.UserContext(), usecase.IngestInput{UserID: req.UserID, Message: req.Message})
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(chatResponse{UserID: out.UserID, Message: out.Message})
}

func (s *Server) handleCompletion(c *fiber.Ctx) error {
	var req completionRequest
	if err := sonic.Unmarshal(c.Body(), &req); err != nil {
		return s.badRequest(c, err)
	}
	out, err := s.pipeline.Complete(c.UserContext(), usecase.CompletionInput{UserID: req.UserID, Prompt: req.Prompt})
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(completionResponse{Completion: out.Completion, UserID: out.UserID})
}

func (s *Server) handleSpeech(c *fiber.Ctx) error {
	var req speechRequest
	if err := sonic.Unmarshal(c.Body(), &req); err != nil {
		return s.badRequest(c, err)
	}
	out, err := s.pipeline.Synthesize(c.UserContext(), usecase.SynthesisInput{Text: req.Text})
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(speechResponse{AudioURL: out.AudioURL})
}

func (s *Server) handleConverse(c *fiber.Ctx) error {
	var req chatRequest
	if err := sonic.Unmarshal(c.Body(), &req); err != nil {
		return s.badRequest(c, err)
	}
	out, err := s.pipeline.Converse(c.UserContext(), usecase.ConverseInput{UserID: req.UserID, Message: req.Message})
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(converseResponse{
		UserID:     out.UserID,
		Message:    out.Message,
		Completion: out.Completion,
		AudioURL:   out.AudioURL,
	})
}

func (s *Server) badRequest(c *fiber.Ctx, err error) error {
	logger.FromContext(c.UserContext(), s.log).Warn("invalid request body",
		zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusBadRequest).JSON(errorResponse{
		Error:   string(usecase.KindInvalidInput),
		Message: "invalid request body",
	})
}

func (s *Server) writeError(c *fiber.Ctx, err error) error {
	kind, ok := usecase.KindOf(err)
	if !ok {
		logger.FromContext(c.UserContext(), s.log).Error("unexpected pipeline failure", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "InternalError"})
	}
	return c.Status(statusFor(kind)).JSON(errorResponse{Error: string(kind), Message: err.Error()})
}

func statusFor(kind usecase.Kind) int {
	switch kind {
	case usecase.KindInvalidInput:
		return fiber.StatusBadRequest
	case usecase.KindCompletionTransport, usecase.KindCompletionParse,
		usecase.KindSynthesis, usecase.KindPublish:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
