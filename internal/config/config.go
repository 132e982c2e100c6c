package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type TimerConfig struct {
	TickIntervalMillis int `mapstructure:"tick_interval_ms"`
	IdleCheckSeconds   int `mapstructure:"idle_check_seconds"`
	DemoBreakSeconds   int `mapstructure:"demo_break_seconds"`
}

type Config struct {
	DatabasePath string      `mapstructure:"database_path"`
	SocketPath   string      `mapstructure:"socket_path"`
	ExportDir    string      `mapstructure:"export_dir"`
	PidFile      string      `mapstructure:"pid_file"`
	Timezone     string      `mapstructure:"timezone"`
	Log          LogConfig   `mapstructure:"log"`
	Timer        TimerConfig `mapstructure:"timer"`
}

// Loader reads the daemon configuration from file, environment and flags.
type Loader struct {
	v   *viper.Viper
	log zerolog.Logger

	mu      sync.Mutex
	current *Config
}

func NewLoader(configPath string, log zerolog.Logger) *Loader {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/blinky")
		v.AddConfigPath("/etc/blinky/")
	}

	v.SetEnvPrefix("BLINKY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	dataDir := defaultDataDir()
	v.SetDefault("database_path", filepath.Join(dataDir, "blinky.db"))
	v.SetDefault("socket_path", DefaultSocketPath())
	v.SetDefault("export_dir", defaultExportDir())
	v.SetDefault("pid_file", filepath.Join(dataDir, "blinkyd.pid"))
	v.SetDefault("timezone", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("timer.tick_interval_ms", 1000)
	v.SetDefault("timer.idle_check_seconds", 30)
	v.SetDefault("timer.demo_break_seconds", 5)

	return &Loader{v: v, log: log.With().Str("component", "config").Logger()}
}

// BindFlags lets command-line flags override file and environment values.
// Flag names use dashes; they map onto the dotted config keys.
func (l *Loader) BindFlags(flags *pflag.FlagSet) error {
	bindings := map[string]string{
		"database_path": "db",
		"socket_path":   "socket",
		"log.level":     "log-level",
		"log.file":      "log",
	}
	for key, name := range bindings {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		l.log.Info().Msg("config file not found, using defaults")
	}

	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	l.sanitize(&cfg)
	return &cfg, nil
}

func (l *Loader) sanitize(cfg *Config) {
	if cfg.Timer.TickIntervalMillis < 100 || cfg.Timer.TickIntervalMillis > 5000 {
		l.log.Warn().Int("value", cfg.Timer.TickIntervalMillis).Msg("timer.tick_interval_ms out of range, using 1000")
		cfg.Timer.TickIntervalMillis = 1000
	}
	if cfg.Timer.IdleCheckSeconds < 1 {
		l.log.Warn().Msg("timer.idle_check_seconds too low, setting to 1")
		cfg.Timer.IdleCheckSeconds = 1
	} else if cfg.Timer.IdleCheckSeconds > 300 {
		l.log.Warn().Msg("timer.idle_check_seconds too high, setting to 300")
		cfg.Timer.IdleCheckSeconds = 300
	}
	if cfg.Timer.DemoBreakSeconds < 1 || cfg.Timer.DemoBreakSeconds > 60 {
		l.log.Warn().Int("value", cfg.Timer.DemoBreakSeconds).Msg("timer.demo_break_seconds out of range, using 5")
		cfg.Timer.DemoBreakSeconds = 5
	}
	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			l.log.Warn().Str("timezone", cfg.Timezone).Err(err).Msg("unknown timezone, using local time")
			cfg.Timezone = ""
		}
	}
	cfg.DatabasePath = expandHome(cfg.DatabasePath)
	cfg.ExportDir = expandHome(cfg.ExportDir)
	cfg.PidFile = expandHome(cfg.PidFile)
	cfg.Log.File = expandHome(cfg.Log.File)
}

// Watch re-reads the config file when it changes and hands the new value to
// onChange. Only settings that are safe to apply live should be consumed.
func (l *Loader) Watch(onChange func(*Config)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			l.log.Error().Err(err).Str("file", e.Name).Msg("failed to reload config")
			return
		}
		l.mu.Lock()
		l.current = cfg
		l.mu.Unlock()
		l.log.Info().Str("file", e.Name).Msg("config reloaded")
		onChange(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) Current() *Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// LoadConfig is the one-shot form used by tools that do not watch.
func LoadConfig(configPath string, log zerolog.Logger) (*Config, error) {
	return NewLoader(configPath, log).Load()
}

func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (t TimerConfig) TickInterval() time.Duration {
	return time.Duration(t.TickIntervalMillis) * time.Millisecond
}

func (t TimerConfig) IdleCheckInterval() time.Duration {
	return time.Duration(t.IdleCheckSeconds) * time.Second
}

func (t TimerConfig) DemoBreakDuration() time.Duration {
	return time.Duration(t.DemoBreakSeconds) * time.Second
}

// DefaultSocketPath prefers the per-user runtime dir.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "blinky.sock")
	}
	return filepath.Join(os.TempDir(), "blinky.sock")
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "blinky")
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "blinky")
	}
	return "."
}

func defaultExportDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	downloads := filepath.Join(home, "Downloads")
	if st, err := os.Stat(downloads); err == nil && st.IsDir() {
		return downloads
	}
	return home
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
