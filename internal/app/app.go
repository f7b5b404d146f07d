// Package app wires configured clients into a pipeline.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awspolly "github.com/aws/aws-sdk-go-v2/service/polly"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"red-ai/internal/config"
	"red-ai/internal/integrations/audiostore"
	"red-ai/internal/integrations/openai"
	"red-ai/internal/integrations/paramstore"
	"red-ai/internal/integrations/polly"
	"red-ai/internal/repository"
	"red-ai/internal/usecase"
)

// App owns the process-lifetime clients behind a Pipeline.
type App struct {
	Pipeline *usecase.Pipeline
	closers  []func() error
}

// Close releases clients that hold local resources.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

type builder struct {
	cfg    config.Config
	log    *zap.Logger
	aws    *aws.Config
	apiKey string
	app    *App
}

// loadAWSConfig resolves credentials and region from the default chain.
var loadAWSConfig = func(ctx context.Context) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx)
}

// Build validates cfg for flows and constructs only the clients they need.
// Missing settings fail here, before any request is served.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger, flows ...usecase.Flow) (*App, error) {
	if len(flows) == 0 {
		return nil, errors.New("app: at least one flow is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(flows...); err != nil {
		return nil, err
	}

	b := &builder{cfg: cfg, log: log, app: &App{}}
	opts := []usecase.Option{
		usecase.WithLogger(log),
		usecase.WithAudioPrefix(cfg.Audio.Prefix),
	}

	needs := map[usecase.Flow]bool{}
	for _, f := range flows {
		needs[f] = true
	}

	if needs[usecase.FlowIngest] || needs[usecase.FlowComplete] {
		table := cfg.TableFor(usecase.FlowIngest)
		if needs[usecase.FlowComplete] {
			table = cfg.TableFor(usecase.FlowComplete)
		}
		store, err := b.store(ctx, table)
		if err != nil {
			return nil, b.fail(err)
		}
		opts = append(opts, usecase.WithStore(store))
	}
	if needs[usecase.FlowComplete] {
		completer, err := b.completer(ctx)
		if err != nil {
			return nil, b.fail(err)
		}
		opts = append(opts, usecase.WithCompleter(completer))
	}
	if needs[usecase.FlowSynthesize] {
		synth, err := b.synthesizer(ctx)
		if err != nil {
			return nil, b.fail(err)
		}
		audio, err := b.audioStore(ctx)
		if err != nil {
			return nil, b.fail(err)
		}
		opts = append(opts, usecase.WithSynthesizer(synth), usecase.WithAudioStore(audio))
	}

	p, err := usecase.New(opts...)
	if err != nil {
		return nil, b.fail(err)
	}
	b.app.Pipeline = p
	return b.app, nil
}

func (b *builder) fail(err error) error {
	if closeErr := b.app.Close(); closeErr != nil {
		b.log.Warn("release clients after failed build", zap.Error(closeErr))
	}
	return err
}

func (b *builder) awsConfig(ctx context.Context) (aws.Config, error) {
	if b.aws != nil {
		return *b.aws, nil
	}
	cfg, err := loadAWSConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("app: load AWS config: %w", err)
	}
	b.aws = &cfg
	return cfg, nil
}

func (b *builder) store(ctx context.Context, table string) (usecase.ConversationStore, error) {
	switch b.cfg.Store.Backend {
	case config.StoreSQLite:
		s, err := repository.NewSQLite(ctx, b.cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.app.closers = append(b.app.closers, s.Close)
		b.log.Info("using SQLite conversation store", zap.String("path", b.cfg.Store.SQLitePath))
		return s, nil
	default:
		awsCfg, err := b.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		b.log.Info("using DynamoDB conversation store", zap.String("table", table))
		return repository.NewDynamo(awsdynamodb.NewFromConfig(awsCfg), table)
	}
}

// credential returns the OpenAI key, reading it from Parameter Store when
// only the parameter name is configured.
func (b *builder) credential(ctx context.Context) (string, error) {
	if b.apiKey != "" {
		return b.apiKey, nil
	}
	if b.cfg.OpenAI.APIKey != "" {
		b.apiKey = b.cfg.OpenAI.APIKey
		return b.apiKey, nil
	}
	awsCfg, err := b.awsConfig(ctx)
	if err != nil {
		return "", err
	}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return "", err
	}
	key, err := paramstore.ResolveToken(ctx, ssmClient, b.cfg.OpenAI.APIKeyParam)
	if err != nil {
		return "", fmt.Errorf("app: resolve OpenAI credential: %w", err)
	}
	b.apiKey = key
	return key, nil
}

func (b *builder) completer(ctx context.Context) (usecase.CompletionProvider, error) {
	key, err := b.credential(ctx)
	if err != nil {
		return nil, err
	}
	opts := []openai.Option{
		openai.WithModel(b.cfg.OpenAI.Model),
		openai.WithMaxTokens(b.cfg.OpenAI.MaxTokens),
		openai.WithTemperature(b.cfg.OpenAI.Temperature),
	}
	if b.cfg.OpenAI.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(b.cfg.OpenAI.BaseURL))
	}
	return openai.NewClient(key, opts...)
}

func (b *builder) synthesizer(ctx context.Context) (usecase.SpeechSynthesizer, error) {
	switch b.cfg.Speech.Backend {
	case config.SpeechPolly:
		awsCfg, err := b.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		b.log.Info("using Polly speech", zap.String("voice", b.cfg.Speech.PollyVoice))
		return polly.New(awspolly.NewFromConfig(awsCfg),
			polly.WithVoice(b.cfg.Speech.PollyVoice),
			polly.WithEngine(b.cfg.Speech.PollyEngine),
		)
	default:
		key, err := b.credential(ctx)
		if err != nil {
			return nil, err
		}
		b.log.Info("using OpenAI speech", zap.String("voice", b.cfg.Speech.TTSVoice))
		return openai.NewSpeech(key, b.cfg.OpenAI.BaseURL,
			openai.WithSpeechModel(b.cfg.Speech.TTSModel),
			openai.WithVoice(b.cfg.Speech.TTSVoice),
		)
	}
}

func (b *builder) audioStore(ctx context.Context) (usecase.AudioStore, error) {
	awsCfg, err := b.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	return audiostore.New(awss3.NewFromConfig(awsCfg), b.cfg.Audio.Bucket,
		audiostore.WithBaseURL(b.cfg.Audio.BaseURL))
}
