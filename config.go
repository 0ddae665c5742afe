package fastclose

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// Mode controls whether Close defers releases to the backend.
type Mode uint8

const (
	// ModeAuto defers releases only on platforms where closing is slow (Windows).
	ModeAuto Mode = iota

	// ModeAlways defers releases on every platform.
	ModeAlways

	// ModeNever closes handles inline on every platform.
	ModeNever
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeAlways:
		return "always"
	case ModeNever:
		return "never"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// ParseMode parses a mode name. The empty string is ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "always":
		return ModeAlways, nil
	case "never":
		return ModeNever, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// deferClose reports whether releases are deferred in mode m on this platform.
func (m Mode) deferClose() bool {
	switch m {
	case ModeAlways:
		return true
	case ModeNever:
		return false
	default:
		return comptimeDeferClose // release_windows.go, release_other.go
	}
}

// LogConfig configures log output.
type LogConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR. Default: WARN.
	Level string `mapstructure:"level" yaml:"level"`

	// Format is text or json. Default: text.
	Format string `mapstructure:"format" yaml:"format"`

	// Output is stdout, stderr, or a file path. Default: stderr.
	Output string `mapstructure:"output" yaml:"output"`
}

// Config configures the process-wide release behavior. See [Configure].
type Config struct {
	// Backend names the backend to use: workerpool, taskpool, goroutine or inline.
	// At most one backend may be named. If empty, the build-time backend is used.
	Backend string `mapstructure:"backend" yaml:"backend"`

	// Mode is auto, always or never. Default: auto.
	Mode string `mapstructure:"mode" yaml:"mode"`

	// Workers is the number of workers of the workerpool backend.
	// Default: runtime.NumCPU().
	Workers int `mapstructure:"workers" yaml:"workers"`

	// QueueSize is the queue capacity of the workerpool backend.
	// Default: DefaultQueueSize.
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`

	// Logging configures log output. Zero fields keep the current settings.
	Logging LogConfig `mapstructure:"logging" yaml:"logging"`

	// Custom, if not nil, is used instead of the backend named by Backend.
	Custom Backend `mapstructure:"-" yaml:"-"`

	// Metrics, if not nil, is passed to the built-in backend.
	Metrics *Metrics `mapstructure:"-" yaml:"-"`
}

// DefaultConfig returns the configuration used when Configure is never called.
func DefaultConfig() Config {
	return Config{
		Mode: ModeAuto.String(),
	}
}

// Validate checks cfg for errors.
func (cfg *Config) Validate() error {
	var errs []error
	if _, err := parseSelection(cfg.Backend); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseMode(cfg.Mode); err != nil {
		errs = append(errs, err)
	}
	if cfg.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", cfg.Workers))
	}
	if cfg.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("queue_size must not be negative, got %d", cfg.QueueSize))
	}
	return errors.Join(errs...)
}

// LoadConfig loads configuration from defaults, an optional config file,
// and FASTCLOSE_* environment variables, in increasing order of precedence.
//
// Nested keys use underscores in environment variables,
// e.g. FASTCLOSE_LOGGING_LEVEL=DEBUG.
// If path is empty or names a file that does not exist, only defaults and
// the environment are used.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setupViper(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := readConfigFile(v); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// readConfigFile reads the config file, treating a missing file as empty.
func readConfigFile(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	return fmt.Errorf("failed to read config file: %w", err)
}

// setupViper registers defaults for every key, which also makes the keys
// visible to AutomaticEnv during Unmarshal.
func setupViper(v *viper.Viper) {
	v.SetEnvPrefix("FASTCLOSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("backend", d.Backend)
	v.SetDefault("mode", d.Mode)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("queue_size", d.QueueSize)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
}
