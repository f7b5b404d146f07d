// Package globalflags holds the persistent flags shared by every redai command.
package globalflags

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"red-ai/internal/app"
	"red-ai/internal/config"
	"red-ai/internal/logger"
	"red-ai/internal/usecase"
)

type Flags struct {
	ConfigPath string
	Debug      bool
	Store      string
	SQLitePath string
}

func (f *Flags) Register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&f.ConfigPath, "config", "c", "", "Path to a TOML configuration file")
	cmd.PersistentFlags().BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&f.Store, "store", "", "Conversation store: dynamodb or sqlite")
	cmd.PersistentFlags().StringVarP(&f.SQLitePath, "sqlite", "s", "", "Path to the SQLite database (with --store sqlite)")
}

// Config loads the configuration and applies flag overrides on top.
func (f *Flags) Config() (config.Config, error) {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if f.Debug {
		cfg.Debug = true
	}
	if s := strings.ToLower(strings.TrimSpace(f.Store)); s != "" {
		cfg.Store.Backend = s
	}
	if p := strings.TrimSpace(f.SQLitePath); p != "" {
		cfg.Store.SQLitePath = p
	}
	return cfg, nil
}

// Build loads the configuration and wires a pipeline for flows. The caller
// closes the returned App and syncs the logger.
func (f *Flags) Build(ctx context.Context, flows ...usecase.Flow) (*app.App, *zap.Logger, error) {
	cfg, err := f.Config()
	if err != nil {
		return nil, nil, err
	}
	return BuildFrom(ctx, cfg, flows...)
}

// BuildFrom wires a pipeline for flows from an already loaded configuration.
func BuildFrom(ctx context.Context, cfg config.Config, flows ...usecase.Flow) (*app.App, *zap.Logger, error) {
	log := logger.NewConsole(cfg.Debug)
	a, err := app.Build(ctx, cfg, log, flows...)
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}
	return a, log, nil
}

// SpeechFlows returns the flows available under cfg, adding synthesis only
// when an audio bucket is configured.
func SpeechFlows(cfg config.Config, flows ...usecase.Flow) []usecase.Flow {
	if strings.TrimSpace(cfg.Audio.Bucket) == "" {
		return flows
	}
	return append(flows, usecase.FlowSynthesize)
}
