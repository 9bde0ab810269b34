// Package config loads cuecard settings from an optional YAML file, CUECARD_
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/cuecard/internal/srs"
)

// EnvPrefix marks the environment variables read by Load. A double
// underscore nests keys: CUECARD_QUIZ__ADVANCE_DELAY sets quiz.advance-delay.
const EnvPrefix = "CUECARD_"

// Config is the resolved application configuration.
type Config struct {
	DB        string          `koanf:"db" validate:"required"`
	Addr      string          `koanf:"addr" validate:"required"`
	LogLevel  string          `koanf:"log-level" validate:"oneof=debug info warn error"`
	ReposDir  string          `koanf:"repos-dir" validate:"required"`
	Quiz      QuizConfig      `koanf:"quiz"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
}

type QuizConfig struct {
	Options      int           `koanf:"options" validate:"min=2,max=10"`
	AdvanceDelay time.Duration `koanf:"advance-delay" validate:"gte=0"`
}

// SchedulerConfig mirrors srs.Params.
type SchedulerConfig struct {
	HardFactor   float64 `koanf:"hard-factor" validate:"gt=0"`
	EasyBonus    float64 `koanf:"easy-bonus" validate:"gt=0"`
	PerfectBonus float64 `koanf:"perfect-bonus" validate:"gt=0"`
	FirstGood    int     `koanf:"first-good" validate:"min=1"`
	FirstEasy    int     `koanf:"first-easy" validate:"min=1"`
	FirstPerfect int     `koanf:"first-perfect" validate:"min=1"`
	EaseBase     float64 `koanf:"ease-base" validate:"gt=0"`
	EaseStep     float64 `koanf:"ease-step" validate:"gte=0"`
}

// Params converts the scheduler settings for the srs package.
func (s SchedulerConfig) Params() *srs.Params {
	return &srs.Params{
		HardFactor:   s.HardFactor,
		EasyBonus:    s.EasyBonus,
		PerfectBonus: s.PerfectBonus,
		FirstGood:    s.FirstGood,
		FirstEasy:    s.FirstEasy,
		FirstPerfect: s.FirstPerfect,
		EaseBase:     s.EaseBase,
		EaseStep:     s.EaseStep,
	}
}

// defaults covers the keys that have no command-line flag.
func defaults() map[string]any {
	p := srs.DefaultParams()
	return map[string]any{
		"quiz.options":            4,
		"quiz.advance-delay":      "1500ms",
		"scheduler.hard-factor":   p.HardFactor,
		"scheduler.easy-bonus":    p.EasyBonus,
		"scheduler.perfect-bonus": p.PerfectBonus,
		"scheduler.first-good":    p.FirstGood,
		"scheduler.first-easy":    p.FirstEasy,
		"scheduler.first-perfect": p.FirstPerfect,
		"scheduler.ease-base":     p.EaseBase,
		"scheduler.ease-step":     p.EaseStep,
	}
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML config file")
	fs.String("db", "cuecard.db", "Path to the SQLite database file")
	fs.String("addr", ":8080", "Address for the HTTP server")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.String("repos-dir", "repos", "Directory for checkouts of git sources")
}

// envKey turns CUECARD_QUIZ__ADVANCE_DELAY into quiz.advance-delay.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	s = strings.ReplaceAll(s, "__", ".")
	return strings.ReplaceAll(s, "_", "-")
}

// Load resolves the configuration. Flags explicitly set on fs win over the
// environment, which wins over the file named by --config; flag defaults
// fill whatever is left.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	for key, val := range defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, len(verrs))
		for i, fe := range verrs {
			msgs[i] = fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Logger builds the text logger for the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
