package radish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of a Script, usually loaded from yaml:
//
//	prealloc_durations: 64
//	prealloc_handles: 32
//	prealloc_drivers: 16
//	time_scale: 1
//	log_level: info
//	default_disable_mode: stop_on_disable|resume_on_enable
type Config struct {
	PreallocDurations  int         `yaml:"prealloc_durations"`
	PreallocHandles    int         `yaml:"prealloc_handles"`
	PreallocDrivers    int         `yaml:"prealloc_drivers"`
	TimeScale          float64     `yaml:"time_scale"`
	LogLevel           string      `yaml:"log_level"`
	DefaultDisableMode DisableMode `yaml:"default_disable_mode"`
}

func DefaultConfig() Config {
	return Config{
		PreallocDurations: 16,
		PreallocHandles:   16,
		PreallocDrivers:   8,
		TimeScale:         1,
	}
}

// LoadConfig reads a yaml config. Missing keys keep their DefaultConfig values.
// An empty document gives DefaultConfig.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (cfg Config) Validate() error {
	switch {
	case cfg.PreallocDurations < 0 || cfg.PreallocHandles < 0 || cfg.PreallocDrivers < 0:
		return errors.New("prealloc counts must not be negative")
	case cfg.TimeScale < 0:
		return fmt.Errorf("time_scale %v must not be negative", cfg.TimeScale)
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

// level is the configured log level, if any.
func (cfg Config) level() (slog.Level, bool) {
	if cfg.LogLevel == "" {
		return 0, false
	}
	level, err := parseLevel(cfg.LogLevel)
	return level, err == nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return level, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return level, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// levelHandler raises the minimum level of the handler it wraps.
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level() && h.handler.Enabled(ctx, level)
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}
