package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds runtime settings read from FLASHDRILL_* variables.
type Config struct {
	APIURL      string        `env:"FLASHDRILL_API_URL" envDefault:"http://localhost:8080"`
	Token       string        `env:"FLASHDRILL_TOKEN"`
	UserID      string        `env:"FLASHDRILL_USER"`
	Subtopics   []string      `env:"FLASHDRILL_SUBTOPICS" envSeparator:","`
	Mode        string        `env:"FLASHDRILL_MODE" envDefault:"flashcard"`
	BatchSize   int           `env:"FLASHDRILL_BATCH_SIZE" envDefault:"6"`
	Cooldown    time.Duration `env:"FLASHDRILL_COOLDOWN" envDefault:"5m"`
	SnapshotTTL time.Duration `env:"FLASHDRILL_SNAPSHOT_TTL" envDefault:"1h"`
	MaxSwitches int           `env:"FLASHDRILL_MAX_SWITCHES" envDefault:"2"`
	MaxResets   int           `env:"FLASHDRILL_MAX_RESETS" envDefault:"3"`
	HTTPTimeout time.Duration `env:"FLASHDRILL_HTTP_TIMEOUT" envDefault:"10s"`
	DBPath      string        `env:"FLASHDRILL_DB"`
	LogFile     string        `env:"FLASHDRILL_LOG_FILE"`

	OTelEndpoint string `env:"FLASHDRILL_OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"FLASHDRILL_OTEL_ENABLED" envDefault:"true"`
}

// Load reads an optional dotenv file and then the environment. Variables
// already set in the environment win over the file. An empty path means
// ".env" in the working directory.
func Load(dotenv string) (Config, error) {
	if dotenv == "" {
		dotenv = ".env"
	}
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", dotenv, err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Subtopics = normalize(cfg.Subtopics)
	return cfg, cfg.Validate()
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	switch c.Mode {
	case "flashcard", "quiz":
	default:
		return fmt.Errorf("invalid mode %q: want flashcard or quiz", c.Mode)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative, got %s", c.Cooldown)
	}
	if c.SnapshotTTL <= 0 {
		return fmt.Errorf("snapshot TTL must be positive, got %s", c.SnapshotTTL)
	}
	if c.MaxSwitches < 0 || c.MaxResets < 0 {
		return errors.New("max switches and max resets must not be negative")
	}
	return nil
}

// TracingEnabled reports whether spans should be exported.
func (c Config) TracingEnabled() bool {
	return c.OTelEnabled && c.OTelEndpoint != ""
}

func normalize(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
