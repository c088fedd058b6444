// Package config defines the server configuration. Values come from an
// optional YAML file overlaid with environment variables; the environment
// wins so container deployments need no file at all.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// LogLevel controls the slog level of the process.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is a known level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// Slog maps l onto a slog.Level. Unknown levels map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// EngineName selects the conversation engine.
type EngineName string

const (
	// EnginePipeline is the full STT -> LLM -> TTS cascade.
	EnginePipeline EngineName = "deepgram_pipeline"
	// EngineDuplex is the native speech-to-speech engine.
	EngineDuplex EngineName = "gemini_live"
)

// IsValid reports whether e is a known engine.
func (e EngineName) IsValid() bool {
	return e == EnginePipeline || e == EngineDuplex
}

// TTS provider names accepted in [TTSConfig].
const (
	TTSElevenLabs = "elevenlabs"
	TTSKokoro     = "kokoro"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Engine   EngineName     `yaml:"engine"`
	Deepgram DeepgramConfig `yaml:"deepgram"`
	LLM      LLMConfig      `yaml:"llm"`
	TTS      TTSConfig      `yaml:"tts"`
	Google   GoogleConfig   `yaml:"google"`
	Prompt   PromptConfig   `yaml:"prompt"`
}

type ServerConfig struct {
	// ListenAddr is the HTTP listen address, e.g. ":8000".
	ListenAddr string   `yaml:"listen_addr"`
	LogLevel   LogLevel `yaml:"log_level"`
}

type DeepgramConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type LLMConfig struct {
	// Provider is "openai" for any OpenAI-compatible endpoint (the base
	// URL selects the service), or one of the any-llm backends
	// ("gemini", "anthropic", "ollama", ...).
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
}

type TTSConfig struct {
	Provider   string           `yaml:"provider"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
	Kokoro     KokoroConfig     `yaml:"kokoro"`
}

type ElevenLabsConfig struct {
	APIKey  string `yaml:"api_key"`
	VoiceID string `yaml:"voice_id"`
	Model   string `yaml:"model"`
}

type KokoroConfig struct {
	BaseURL string `yaml:"base_url"`
	Voice   string `yaml:"voice"`
}

type GoogleConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	Voice  string `yaml:"voice"`
}

type PromptConfig struct {
	SoulPath  string `yaml:"soul_path"`
	RulesPath string `yaml:"rules_path"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr: ":8000",
			LogLevel:   LogLevelInfo,
		},
		Engine: EngineDuplex,
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o",
		},
		TTS: TTSConfig{
			Provider: TTSElevenLabs,
		},
	}
}

// Load reads the YAML file at path (optional; empty path skips the file) and
// applies environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: open %s: %w", path, err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg.
func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&c.Server.ListenAddr, "LISTEN_ADDR")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Server.LogLevel = LogLevel(v)
	}
	if v := os.Getenv("CONVERSATION_ENGINE"); v != "" {
		c.Engine = EngineName(v)
	}

	setString(&c.Deepgram.APIKey, "DEEPGRAM_API_KEY")
	setString(&c.Deepgram.Model, "DEEPGRAM_MODEL")

	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	setString(&c.LLM.Model, "LLM_MODEL")

	setString(&c.TTS.Provider, "TTS_PROVIDER")
	setString(&c.TTS.ElevenLabs.APIKey, "ELEVENLABS_API_KEY")
	setString(&c.TTS.ElevenLabs.VoiceID, "ELEVENLABS_VOICE_ID")
	setString(&c.TTS.Kokoro.BaseURL, "KOKORO_BASE_URL")
	setString(&c.TTS.Kokoro.Voice, "KOKORO_VOICE")

	setString(&c.Google.APIKey, "GOOGLE_API_KEY")
	setString(&c.Google.Model, "GOOGLE_MODEL")
	setString(&c.Google.Voice, "GOOGLE_VOICE")

	setString(&c.Prompt.SoulPath, "SOUL_PATH")
	setString(&c.Prompt.RulesPath, "RULES_PATH")
}

// Validate checks the configuration for hard errors. Soft problems (missing
// provider keys) are handled by ResolveEngine instead, which can fall back.
func (c *Config) Validate() error {
	var errs []error

	if !c.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("config: invalid log level %q", c.Server.LogLevel))
	}
	if !c.Engine.IsValid() {
		errs = append(errs, fmt.Errorf("config: invalid engine %q (valid: %s, %s)",
			c.Engine, EnginePipeline, EngineDuplex))
	}
	if c.TTS.Provider != TTSElevenLabs && c.TTS.Provider != TTSKokoro {
		errs = append(errs, fmt.Errorf("config: invalid tts provider %q (valid: %s, %s)",
			c.TTS.Provider, TTSElevenLabs, TTSKokoro))
	}
	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("config: listen_addr must not be empty"))
	}
	if c.LLM.Provider == "" {
		errs = append(errs, errors.New("config: llm provider must not be empty"))
	}

	return errors.Join(errs...)
}

// ResolveEngine returns the engine to actually run. When the pipeline engine
// is selected but lacks credentials, it degrades to the duplex engine with a
// warning rather than refusing to start.
func (c *Config) ResolveEngine() EngineName {
	if c.Engine != EnginePipeline {
		return c.Engine
	}

	var missing []string
	if c.Deepgram.APIKey == "" {
		missing = append(missing, "DEEPGRAM_API_KEY")
	}
	if c.LLM.APIKey == "" {
		missing = append(missing, "LLM_API_KEY")
	}
	if c.TTS.Provider == TTSElevenLabs && c.TTS.ElevenLabs.APIKey == "" {
		missing = append(missing, "ELEVENLABS_API_KEY")
	}

	if len(missing) > 0 {
		slog.Warn("pipeline engine missing credentials, falling back to duplex engine",
			"missing", missing)
		return EngineDuplex
	}
	return EnginePipeline
}
