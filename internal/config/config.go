// Package config loads pipeline settings from the environment, optionally
// layered over a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"red-ai/internal/usecase"
)

const (
	DefaultChatTable  = "ChatTable"
	DefaultSQLitePath = "redai.db"
	DefaultListenAddr = ":8080"

	StoreDynamoDB = "dynamodb"
	StoreSQLite   = "sqlite"

	SpeechOpenAI = "openai"
	SpeechPolly  = "polly"
)

type Config struct {
	Flow   string       `toml:"flow"`
	Debug  bool         `toml:"debug"`
	Store  StoreConfig  `toml:"store"`
	OpenAI OpenAIConfig `toml:"openai"`
	Speech SpeechConfig `toml:"speech"`
	Audio  AudioConfig  `toml:"audio"`
	Server ServerConfig `toml:"server"`
}

type StoreConfig struct {
	Backend string `toml:"backend"`
	// Table is empty unless configured; see TableFor.
	Table      string `toml:"table"`
	SQLitePath string `toml:"sqlite_path"`
}

type OpenAIConfig struct {
	APIKey      string  `toml:"api_key"`
	APIKeyParam string  `toml:"api_key_param"`
	BaseURL     string  `toml:"base_url"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float64 `toml:"temperature"`
}

type SpeechConfig struct {
	Backend     string `toml:"backend"`
	TTSModel    string `toml:"tts_model"`
	TTSVoice    string `toml:"tts_voice"`
	PollyVoice  string `toml:"polly_voice"`
	PollyEngine string `toml:"polly_engine"`
}

type AudioConfig struct {
	Bucket  string `toml:"bucket"`
	Prefix  string `toml:"prefix"`
	BaseURL string `toml:"base_url"`
}

type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Backend:    StoreDynamoDB,
			SQLitePath: DefaultSQLitePath,
		},
		OpenAI: OpenAIConfig{
			Model:       "gpt-3.5-turbo",
			MaxTokens:   100,
			Temperature: 0.7,
		},
		Speech: SpeechConfig{
			Backend:    SpeechOpenAI,
			TTSModel:   "tts-1",
			TTSVoice:   "nova",
			PollyVoice: "Joanna",
		},
		Audio:  AudioConfig{Prefix: "audio/"},
		Server: ServerConfig{ListenAddr: DefaultListenAddr},
	}
}

// Load builds the configuration from defaults, then the TOML file at path
// (skipped when path is empty), then the process environment.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	env := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	str := func(key string, dst *string) {
		if v, ok := env(key); ok {
			*dst = v
		}
	}

	str("PIPELINE_FLOW", &c.Flow)
	str("CONVERSATION_STORE", &c.Store.Backend)
	str("CHAT_TABLE", &c.Store.Table)
	str("SQLITE_PATH", &c.Store.SQLitePath)
	str("OPENAI_API_KEY", &c.OpenAI.APIKey)
	str("OPENAI_API_KEY_PARAM", &c.OpenAI.APIKeyParam)
	str("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	str("OPENAI_MODEL", &c.OpenAI.Model)
	str("SPEECH_BACKEND", &c.Speech.Backend)
	str("OPENAI_TTS_MODEL", &c.Speech.TTSModel)
	str("OPENAI_TTS_VOICE", &c.Speech.TTSVoice)
	str("POLLY_VOICE", &c.Speech.PollyVoice)
	str("POLLY_ENGINE", &c.Speech.PollyEngine)
	str("AUDIO_BUCKET", &c.Audio.Bucket)
	str("AUDIO_PREFIX", &c.Audio.Prefix)
	str("AUDIO_BASE_URL", &c.Audio.BaseURL)
	str("LISTEN_ADDR", &c.Server.ListenAddr)

	if v, ok := env("OPENAI_MAX_TOKENS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("config: OPENAI_MAX_TOKENS must be a positive integer, got %q", v)
		}
		c.OpenAI.MaxTokens = n
	}
	if v, ok := env("OPENAI_TEMPERATURE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: OPENAI_TEMPERATURE must be a number, got %q", v)
		}
		c.OpenAI.Temperature = f
	}
	if v, ok := env("DEBUG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: DEBUG must be a boolean, got %q", v)
		}
		c.Debug = b
	}
	return nil
}

func (c *Config) normalize() {
	c.Flow = strings.ToLower(strings.TrimSpace(c.Flow))
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	c.Speech.Backend = strings.ToLower(strings.TrimSpace(c.Speech.Backend))
	c.Store.Table = strings.TrimSpace(c.Store.Table)
}

// TableFor returns the chat table of flow. Only the ingest path falls back to
// DefaultChatTable.
func (c Config) TableFor(flow usecase.Flow) string {
	if c.Store.Table == "" && flow == usecase.FlowIngest {
		return DefaultChatTable
	}
	return c.Store.Table
}

// HasCredential reports whether an OpenAI key or the parameter holding it is set.
func (c Config) HasCredential() bool {
	return strings.TrimSpace(c.OpenAI.APIKey) != "" || strings.TrimSpace(c.OpenAI.APIKeyParam) != ""
}

// Validate checks that every identifier and credential flows need is present.
// Failures are ConfigurationErrors of the first flow that lacks something.
func (c Config) Validate(flows ...usecase.Flow) error {
	for _, flow := range flows {
		if err := c.validate(flow); err != nil {
			return usecase.ConfigurationError(flow, err)
		}
	}
	return nil
}

func (c Config) validate(flow usecase.Flow) error {
	switch flow {
	case usecase.FlowIngest:
		return c.validateStore(flow)
	case usecase.FlowComplete:
		if err := c.validateStore(flow); err != nil {
			return err
		}
		if !c.HasCredential() {
			return errors.New("OPENAI_API_KEY or OPENAI_API_KEY_PARAM is required")
		}
		return nil
	case usecase.FlowSynthesize:
		if strings.TrimSpace(c.Audio.Bucket) == "" {
			return errors.New("AUDIO_BUCKET is required")
		}
		switch c.Speech.Backend {
		case SpeechOpenAI:
			if !c.HasCredential() {
				return errors.New("OPENAI_API_KEY or OPENAI_API_KEY_PARAM is required for openai speech")
			}
		case SpeechPolly:
		default:
			return fmt.Errorf("unknown SPEECH_BACKEND %q", c.Speech.Backend)
		}
		return nil
	default:
		return fmt.Errorf("unknown PIPELINE_FLOW %q", flow)
	}
}

func (c Config) validateStore(flow usecase.Flow) error {
	switch c.Store.Backend {
	case StoreDynamoDB:
		if c.TableFor(flow) == "" {
			return errors.New("CHAT_TABLE is required")
		}
	case StoreSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return errors.New("SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("unknown CONVERSATION_STORE %q", c.Store.Backend)
	}
	return nil
}
