package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmnotes/vmt-engine/internal/api"
	"github.com/vmnotes/vmt-engine/internal/config"
	"github.com/vmnotes/vmt-engine/internal/platform"
	"github.com/vmnotes/vmt-engine/internal/transcribe"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "http-addr", "", "ops HTTP listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flag.StringVar(&overrides.Provider, "provider", "", "speech-to-text provider (whisper, deepinfra, sherpa)")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("vmt-engine starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Speech-to-text provider
	provider, err := buildProvider(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build provider")
	}
	log.Info().Str("provider", provider.Name()).Str("model", provider.Model()).Msg("provider ready")

	// Platform client
	clientLog := log.With().Str("component", "platform").Logger()
	client, err := platform.NewRestClient(ctx, cfg.BotToken, clientLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect platform client")
	}

	// Engine + job queue
	engine := transcribe.NewEngine(provider, client, transcribe.EngineOptions{
		Language:    cfg.Language,
		Temperature: cfg.Temperature,
		Paragraphs:  cfg.Paragraphs,
		Paragraph: transcribe.ParagraphOptions{
			GapSeconds: cfg.ParagraphGap,
			MinLength:  cfg.ParagraphMinLength,
			Terminals:  cfg.ParagraphTerminals,
		},
	}, log.With().Str("component", "engine").Logger())

	queue := transcribe.NewQueue(transcribe.QueueOptions{
		Client:    client,
		Engine:    engine,
		QueueSize: cfg.QueueSize,
		ScanLimit: cfg.HistoryScanLimit,
		Log:       log.With().Str("component", "queue").Logger(),
	})
	queue.Start()

	// Ops HTTP server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, queue, client, provider, version, startTime, httpLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	queue.Stop()

	log.Info().Msg("vmt-engine stopped")
}

func buildProvider(cfg *config.Config) (transcribe.Provider, error) {
	switch cfg.Provider {
	case "whisper":
		return transcribe.NewWhisperClient(cfg.WhisperURL, cfg.WhisperModel, cfg.WhisperTimeout), nil
	case "deepinfra":
		if cfg.DeepInfraAPIKey == "" {
			return nil, fmt.Errorf("PROVIDER=deepinfra requires DEEPINFRA_API_KEY")
		}
		return transcribe.NewDeepInfraClient(cfg.DeepInfraAPIKey, cfg.DeepInfraModel, cfg.WhisperTimeout), nil
	case "sherpa":
		return transcribe.NewSherpaClient(transcribe.SherpaConfig{
			EncoderPath: cfg.SherpaEncoder,
			DecoderPath: cfg.SherpaDecoder,
			JoinerPath:  cfg.SherpaJoiner,
			TokensPath:  cfg.SherpaTokens,
			SampleRate:  cfg.SherpaSampleRate,
			NumThreads:  cfg.SherpaThreads,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
