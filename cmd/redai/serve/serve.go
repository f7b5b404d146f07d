package servecmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"red-ai/cmd/redai/globalflags"
	"red-ai/internal/devserver"
	"red-ai/internal/usecase"
)

const serveLongDesc string = `Serve the pipeline over HTTP for local development.

Routes:
  POST /chat        store a user message
  POST /completion  generate a reply from history
  POST /speech      synthesize and publish speech (needs an audio bucket)
  POST /converse    all of the above in one call
  GET  /health

Examples:
  redai serve --store sqlite --listen :8080`

const serveShortDesc string = "Run the local HTTP server"

type serveCommander struct {
	flags  *globalflags.Flags
	listen string
}

func NewServeCmd(flags *globalflags.Flags) *cobra.Command {
	cmder := &serveCommander{flags: flags}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address to listen on (default from config, :8080)")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	cfg, err := c.flags.Config()
	if err != nil {
		return err
	}
	if c.listen != "" {
		cfg.Server.ListenAddr = c.listen
	}

	flows := globalflags.SpeechFlows(cfg, usecase.FlowIngest, usecase.FlowComplete)
	a, log, err := globalflags.BuildFrom(ctx, cfg, flows...)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	defer a.Close()

	srv, err := devserver.New(a.Pipeline, log)
	if err != nil {
		return fmt.Errorf("could not create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(cfg.Server.ListenAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutting down dev server")
		if err := srv.Shutdown(); err != nil {
			log.Warn("shutdown failed", zap.Error(err))
		}
		return nil
	}
}
