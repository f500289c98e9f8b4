// Package config loads the chessroom server configuration.
//
// Values are layered in this order, later sources winning:
//   - built-in defaults
//   - an optional YAML file (--config or CHESS_CONFIG)
//   - CHESS_* environment variables, after loading a .env file if present
//   - command-line flags
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Engine backends.
const (
	EngineRemote = "remote"
	EngineUCI    = "uci"
)

const maxEngineDepth = 18

// Config is the full server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Engine EngineConfig `yaml:"engine"`
	AI     AIConfig     `yaml:"ai"`
	Games  GamesConfig  `yaml:"games"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string `yaml:"level"`
	// Style is "json" or "console".
	Style string `yaml:"style"`
}

// EngineConfig selects and tunes the move engine.
type EngineConfig struct {
	// Kind is "remote" (HTTP analysis service) or "uci" (local binary).
	Kind              string        `yaml:"kind"`
	URL               string        `yaml:"url"`
	MaxDepth          int           `yaml:"max_depth"`
	MaxThinkingTime   time.Duration `yaml:"max_thinking_time"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	UCIPath           string        `yaml:"uci_path"`
}

// AIConfig configures the AI opponent.
type AIConfig struct {
	Name string `yaml:"name"`
	// SharedBridge makes every game share one AI persona, so only one AI
	// move is computed at a time across the server. Contention is rejected,
	// not queued: an AI turn that finds the persona busy is dropped and that
	// game stays on the AI's move until the move arrives via POST /api/move.
	SharedBridge bool          `yaml:"shared_bridge"`
	StartDelay   time.Duration `yaml:"start_delay"`
	DelayScale   float64       `yaml:"delay_scale"`
	MoveTimeout  time.Duration `yaml:"move_timeout"`
}

// GamesConfig configures finished game cleanup.
type GamesConfig struct {
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	MaxAge          time.Duration `yaml:"max_age"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8765,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
			Style: "json",
		},
		Engine: EngineConfig{
			Kind:            EngineRemote,
			URL:             "https://chess-api.com/v1",
			MaxDepth:        12,
			MaxThinkingTime: 100 * time.Millisecond,
			Timeout:         10 * time.Second,
			UCIPath:         "stockfish",
		},
		AI: AIConfig{
			Name:        "ANA",
			StartDelay:  500 * time.Millisecond,
			DelayScale:  1,
			MoveTimeout: 30 * time.Second,
		},
		Games: GamesConfig{
			CleanupInterval: 5 * time.Minute,
			MaxAge:          time.Hour,
		},
	}
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// BindFlags registers one flag per setting, bound to c.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Server.Host, "host", c.Server.Host, "listen host")
	fs.IntVarP(&c.Server.Port, "port", "p", c.Server.Port, "listen port")
	fs.DurationVar(&c.Server.ShutdownTimeout, "shutdown-timeout", c.Server.ShutdownTimeout, "graceful shutdown limit")

	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "log level (debug, info, warn, error)")
	fs.StringVar(&c.Log.Style, "log-style", c.Log.Style, "log format (json, console)")

	fs.StringVar(&c.Engine.Kind, "engine", c.Engine.Kind, "engine backend (remote, uci)")
	fs.StringVar(&c.Engine.URL, "engine-url", c.Engine.URL, "remote engine endpoint")
	fs.IntVar(&c.Engine.MaxDepth, "engine-max-depth", c.Engine.MaxDepth, "maximum search depth")
	fs.DurationVar(&c.Engine.MaxThinkingTime, "engine-max-thinking-time", c.Engine.MaxThinkingTime, "engine time budget per move")
	fs.DurationVar(&c.Engine.Timeout, "engine-timeout", c.Engine.Timeout, "remote engine request timeout")
	fs.Float64Var(&c.Engine.RequestsPerSecond, "engine-rps", c.Engine.RequestsPerSecond, "remote engine request rate, 0 for unlimited")
	fs.StringVar(&c.Engine.UCIPath, "uci-path", c.Engine.UCIPath, "UCI engine binary")

	fs.StringVar(&c.AI.Name, "ai-name", c.AI.Name, "display name of the AI opponent")
	fs.BoolVar(&c.AI.SharedBridge, "ai-shared", c.AI.SharedBridge, "share one AI persona across all games")
	fs.DurationVar(&c.AI.StartDelay, "ai-start-delay", c.AI.StartDelay, "pause before the AI starts thinking")
	fs.Float64Var(&c.AI.DelayScale, "ai-delay-scale", c.AI.DelayScale, "multiplier for simulated thinking time, 0 disables it")
	fs.DurationVar(&c.AI.MoveTimeout, "ai-move-timeout", c.AI.MoveTimeout, "limit for one AI move, 0 for none")

	fs.DurationVar(&c.Games.CleanupInterval, "cleanup-interval", c.Games.CleanupInterval, "how often finished games are swept")
	fs.DurationVar(&c.Games.MaxAge, "game-max-age", c.Games.MaxAge, "age after which a finished game is removed")
}

// Load builds the configuration from defaults, the optional config file,
// the environment and args. It returns pflag.ErrHelp when help was requested.
func Load(args []string) (*Config, error) {
	cfg := Default()

	fs := pflag.NewFlagSet("chessroom", pflag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file (default $CHESS_CONFIG)")
	envFile := fs.String("env-file", ".env", "dotenv file loaded if present")
	cfg.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Flags are applied last, so remember them and start over from defaults.
	explicit := make(map[string]string)
	fs.Visit(func(f *pflag.Flag) {
		explicit[f.Name] = f.Value.String()
	})
	*cfg = *Default()

	if err := loadDotenv(*envFile); err != nil {
		return nil, err
	}
	if *configPath == "" {
		*configPath = os.Getenv("CHESS_CONFIG")
	}
	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	for name, value := range explicit {
		if err := fs.Set(name, value); err != nil {
			return nil, fmt.Errorf("flag --%s: %w", name, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotenv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// LoadFile merges a YAML file into c. Keys absent from the file keep their
// current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides settings from CHESS_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	vars := []struct {
		name string
		set  func(string) error
	}{
		{"CHESS_HOST", setString(&c.Server.Host)},
		{"CHESS_PORT", setInt(&c.Server.Port)},
		{"CHESS_SHUTDOWN_TIMEOUT", setDuration(&c.Server.ShutdownTimeout)},
		{"CHESS_LOG_LEVEL", setString(&c.Log.Level)},
		{"CHESS_LOG_STYLE", setString(&c.Log.Style)},
		{"CHESS_ENGINE", setString(&c.Engine.Kind)},
		{"CHESS_ENGINE_URL", setString(&c.Engine.URL)},
		{"CHESS_ENGINE_MAX_DEPTH", setInt(&c.Engine.MaxDepth)},
		{"CHESS_ENGINE_MAX_THINKING_TIME", setDuration(&c.Engine.MaxThinkingTime)},
		{"CHESS_ENGINE_TIMEOUT", setDuration(&c.Engine.Timeout)},
		{"CHESS_ENGINE_RPS", setFloat(&c.Engine.RequestsPerSecond)},
		{"CHESS_UCI_PATH", setString(&c.Engine.UCIPath)},
		{"CHESS_AI_NAME", setString(&c.AI.Name)},
		{"CHESS_AI_SHARED", setBool(&c.AI.SharedBridge)},
		{"CHESS_AI_START_DELAY", setDuration(&c.AI.StartDelay)},
		{"CHESS_AI_DELAY_SCALE", setFloat(&c.AI.DelayScale)},
		{"CHESS_AI_MOVE_TIMEOUT", setDuration(&c.AI.MoveTimeout)},
		{"CHESS_CLEANUP_INTERVAL", setDuration(&c.Games.CleanupInterval)},
		{"CHESS_GAME_MAX_AGE", setDuration(&c.Games.MaxAge)},
	}
	for _, v := range vars {
		value, ok := lookup(v.name)
		if !ok || value == "" {
			continue
		}
		if err := v.set(value); err != nil {
			return fmt.Errorf("%s=%q: %w", v.name, value, err)
		}
	}
	return nil
}

func setString(dst *string) func(string) error {
	return func(s string) error {
		*dst = s
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(s string) error {
		v, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

func setFloat(dst *float64) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

func setDuration(dst *time.Duration) func(string) error {
	return func(s string) error {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	switch c.Engine.Kind {
	case EngineRemote:
		if c.Engine.URL == "" {
			errs = append(errs, errors.New("engine.url is required for the remote engine"))
		}
	case EngineUCI:
		if c.Engine.UCIPath == "" {
			errs = append(errs, errors.New("engine.uci_path is required for the uci engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid engine.kind: %q", c.Engine.Kind))
	}
	if c.Engine.MaxDepth < 1 || c.Engine.MaxDepth > maxEngineDepth {
		errs = append(errs, fmt.Errorf("engine.max_depth must be between 1 and %d", maxEngineDepth))
	}
	if c.Engine.MaxThinkingTime <= 0 {
		errs = append(errs, errors.New("engine.max_thinking_time must be positive"))
	}
	if c.Engine.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("engine.requests_per_second must not be negative"))
	}

	if c.AI.DelayScale < 0 {
		errs = append(errs, errors.New("ai.delay_scale must not be negative"))
	}
	if c.AI.StartDelay < 0 || c.AI.MoveTimeout < 0 {
		errs = append(errs, errors.New("ai delays must not be negative"))
	}

	if c.Games.CleanupInterval <= 0 {
		errs = append(errs, errors.New("games.cleanup_interval must be positive"))
	}
	if c.Games.MaxAge <= 0 {
		errs = append(errs, errors.New("games.max_age must be positive"))
	}

	return errors.Join(errs...)
}
