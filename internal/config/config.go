package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	BotToken string `env:"BOT_TOKEN,required"`

	// Speech-to-text provider selection: whisper | deepinfra | sherpa
	Provider       string        `env:"PROVIDER" envDefault:"whisper"`
	WhisperURL     string        `env:"WHISPER_URL" envDefault:"http://localhost:8000/v1/audio/transcriptions"`
	WhisperModel   string        `env:"WHISPER_MODEL" envDefault:"Systran/faster-whisper-small"`
	WhisperTimeout time.Duration `env:"WHISPER_TIMEOUT" envDefault:"5m"`

	DeepInfraAPIKey string `env:"DEEPINFRA_API_KEY"`
	DeepInfraModel  string `env:"DEEPINFRA_MODEL" envDefault:"openai/whisper-large-v3-turbo"`

	SherpaEncoder    string `env:"SHERPA_ENCODER"`
	SherpaDecoder    string `env:"SHERPA_DECODER"`
	SherpaJoiner     string `env:"SHERPA_JOINER"`
	SherpaTokens     string `env:"SHERPA_TOKENS"`
	SherpaSampleRate int    `env:"SHERPA_SAMPLE_RATE" envDefault:"16000"`
	SherpaThreads    int    `env:"SHERPA_THREADS" envDefault:"2"`

	Language    string  `env:"LANGUAGE"`
	Temperature float64 `env:"TEMPERATURE" envDefault:"0"`

	Paragraphs         bool    `env:"PARAGRAPHS" envDefault:"true"`
	ParagraphGap       float64 `env:"PARAGRAPH_GAP_SECONDS" envDefault:"1.25"`
	ParagraphMinLength int     `env:"PARAGRAPH_MIN_LENGTH" envDefault:"80"`
	ParagraphTerminals string  `env:"PARAGRAPH_TERMINALS" envDefault:".!?…。？！"`

	QueueSize        int `env:"QUEUE_SIZE" envDefault:"64"`
	HistoryScanLimit int `env:"HISTORY_SCAN_LIMIT" envDefault:"50"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile  string
	HTTPAddr string
	LogLevel string
	Provider string
}

// Load reads configuration from .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file >
// struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.Provider != "" {
		cfg.Provider = overrides.Provider
	}

	return cfg, nil
}
