// Command vireo is the voice conversation backend. It serves a WebSocket
// endpoint that browser clients stream microphone audio to and receive
// transcripts, response text, and synthesized speech from.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/vireo-ai/vireo/internal/chat"
	"github.com/vireo-ai/vireo/internal/config"
	"github.com/vireo-ai/vireo/internal/engine"
	"github.com/vireo-ai/vireo/internal/engine/duplex"
	"github.com/vireo-ai/vireo/internal/engine/pipeline"
	"github.com/vireo-ai/vireo/internal/observe"
	"github.com/vireo-ai/vireo/internal/prompt"
	"github.com/vireo-ai/vireo/internal/server"
	"github.com/vireo-ai/vireo/internal/tools"
	"github.com/vireo-ai/vireo/pkg/provider/llm"
	"github.com/vireo-ai/vireo/pkg/provider/llm/anyllm"
	"github.com/vireo-ai/vireo/pkg/provider/llm/openai"
	geminilive "github.com/vireo-ai/vireo/pkg/provider/s2s/gemini"
	"github.com/vireo-ai/vireo/pkg/provider/stt/deepgram"
	"github.com/vireo-ai/vireo/pkg/provider/tts"
	"github.com/vireo-ai/vireo/pkg/provider/tts/elevenlabs"
	"github.com/vireo-ai/vireo/pkg/provider/tts/kokoro"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vireo: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.Slog(),
	}))
	slog.SetDefault(logger)

	engineName := cfg.ResolveEngine()
	slog.Info("vireo starting",
		"listen_addr", cfg.Server.ListenAddr,
		"engine", engineName,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "vireo",
	})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	instructions := prompt.Load(cfg.Prompt.SoulPath, cfg.Prompt.RulesPath)
	registry := tools.Builtin()

	factory, err := buildFactory(cfg, engineName, instructions, registry)
	if err != nil {
		slog.Error("failed to build engine factory", "err", err)
		return 1
	}

	srv := server.New(cfg.Server.ListenAddr, string(engineName), factory)

	slog.Info("server ready")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// buildFactory constructs the per-connection engine factory for the resolved
// engine. Provider construction happens once; each connection gets its own
// engine wrapping the shared providers.
func buildFactory(cfg config.Config, name config.EngineName, instructions string, registry *tools.Registry) (engine.Factory, error) {
	switch name {
	case config.EnginePipeline:
		return buildPipelineFactory(cfg, instructions, registry)
	case config.EngineDuplex:
		return buildDuplexFactory(cfg, instructions, registry)
	default:
		return nil, fmt.Errorf("unknown engine %q", name)
	}
}

func buildPipelineFactory(cfg config.Config, instructions string, registry *tools.Registry) (engine.Factory, error) {
	var dgOpts []deepgram.Option
	if cfg.Deepgram.Model != "" {
		dgOpts = append(dgOpts, deepgram.WithModel(cfg.Deepgram.Model))
	}
	sttProvider, err := deepgram.New(cfg.Deepgram.APIKey, dgOpts...)
	if err != nil {
		return nil, fmt.Errorf("create deepgram provider: %w", err)
	}

	ttsProvider, err := buildTTS(cfg.TTS)
	if err != nil {
		return nil, err
	}

	llmProvider, err := buildLLM(cfg.LLM)
	if err != nil {
		return nil, err
	}

	return func() (engine.Engine, error) {
		conv := chat.New(llmProvider, instructions, registry)
		return pipeline.New(sttProvider, ttsProvider, conv), nil
	}, nil
}

func buildDuplexFactory(cfg config.Config, instructions string, registry *tools.Registry) (engine.Factory, error) {
	var opts []geminilive.Option
	if cfg.Google.Model != "" {
		opts = append(opts, geminilive.WithModel(cfg.Google.Model))
	}
	provider := geminilive.New(cfg.Google.APIKey, opts...)

	return func() (engine.Engine, error) {
		var engOpts []duplex.Option
		if cfg.Google.Voice != "" {
			engOpts = append(engOpts, duplex.WithVoice(cfg.Google.Voice))
		}
		return duplex.New(provider, instructions, registry, engOpts...), nil
	}, nil
}

// buildLLM selects the chat backend. "openai" uses the native client so
// OpenAI-compatible endpoints work via base_url; everything else goes through
// the any-llm multiplexer.
func buildLLM(cfg config.LLMConfig) (llm.Provider, error) {
	if cfg.Provider == "openai" {
		var opts []openai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		p, err := openai.New(cfg.APIKey, cfg.Model, opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai provider: %w", err)
		}
		return p, nil
	}

	var opts []anyllmlib.Option
	if cfg.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
	}
	p, err := anyllm.New(cfg.Provider, cfg.Model, opts...)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", cfg.Provider, err)
	}
	return p, nil
}

func buildTTS(cfg config.TTSConfig) (tts.Provider, error) {
	switch cfg.Provider {
	case config.TTSElevenLabs:
		var opts []elevenlabs.Option
		if cfg.ElevenLabs.VoiceID != "" {
			opts = append(opts, elevenlabs.WithVoice(cfg.ElevenLabs.VoiceID))
		}
		if cfg.ElevenLabs.Model != "" {
			opts = append(opts, elevenlabs.WithModel(cfg.ElevenLabs.Model))
		}
		p, err := elevenlabs.New(cfg.ElevenLabs.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("create elevenlabs provider: %w", err)
		}
		return p, nil

	case config.TTSKokoro:
		var opts []kokoro.Option
		if cfg.Kokoro.BaseURL != "" {
			opts = append(opts, kokoro.WithBaseURL(cfg.Kokoro.BaseURL))
		}
		if cfg.Kokoro.Voice != "" {
			opts = append(opts, kokoro.WithVoice(cfg.Kokoro.Voice))
		}
		return kokoro.New(opts...), nil

	default:
		return nil, fmt.Errorf("unknown tts provider %q", cfg.Provider)
	}
}
