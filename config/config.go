// Package config loads batch settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/nachoal/simple-batch-go/extract"
	"github.com/nachoal/simple-batch-go/task"
)

// ErrMissingToken is returned when API_TOKEN is not set
var ErrMissingToken = errors.New("API_TOKEN is not set; add it to the environment or a .env file")

// Environment keys
const (
	KeyAPIToken        = "API_TOKEN"
	KeyAPIURL          = "API_URL"
	KeyModel           = "MODEL"
	KeyAPIDelay        = "API_DELAY"
	KeyMaxWorkers      = "MAX_WORKERS"
	KeyRateLimit       = "API_RATE_LIMIT"
	KeyExtractStrategy = "EXTRACT_STRATEGY"
	KeyDownloadLabel   = "DOWNLOAD_LABEL"
	KeyRequestTimeout  = "REQUEST_TIMEOUT"
	KeyInputDir        = "INPUT_DIR"
	KeyOutputDir       = "OUTPUT_DIR"
	KeyDebug           = "SIMPLE_BATCH_DEBUG"
	KeyTheme           = "THEME"
)

// Config represents the application configuration
type Config struct {
	APIToken       string
	APIURL         string
	Model          string
	Delay          time.Duration
	MaxWorkers     int
	RateLimit      time.Duration
	Strategy       extract.Strategy
	DownloadLabel  string
	RequestTimeout time.Duration
	InputDir       string
	OutputDir      string
	Debug          bool
	Theme          string
}

// ImagesDir is where relative image references resolve
func (c *Config) ImagesDir() string {
	return task.NewStore(c.InputDir).ImagesDir()
}

// Load reads .env (if present) and the environment. defaultStrategy is used
// when EXTRACT_STRATEGY is unset, since run and sequential differ.
func Load(defaultStrategy extract.Strategy) (*Config, error) {
	return load(defaultStrategy, true)
}

// LoadLocal is Load without the API token check, for commands that only
// touch the local task file
func LoadLocal() (*Config, error) {
	return load(extract.StrategyMarkdownImage, false)
}

func load(defaultStrategy extract.Strategy, requireToken bool) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	v := viper.New()
	setDefaults(v, defaultStrategy)
	v.AutomaticEnv()

	return fromViper(v, requireToken)
}

func setDefaults(v *viper.Viper, strategy extract.Strategy) {
	v.SetDefault(KeyAPIURL, "https://api.tu-zi.com/v1/chat/completions")
	v.SetDefault(KeyModel, task.DefaultModel)
	v.SetDefault(KeyAPIDelay, "2")
	v.SetDefault(KeyMaxWorkers, 5)
	v.SetDefault(KeyRateLimit, "0.5")
	v.SetDefault(KeyExtractStrategy, strategy.String())
	v.SetDefault(KeyDownloadLabel, extract.DefaultDownloadLabel)
	v.SetDefault(KeyRequestTimeout, "20m")
	v.SetDefault(KeyInputDir, "input")
	v.SetDefault(KeyOutputDir, "output")
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyTheme, "default")
}

func fromViper(v *viper.Viper, requireToken bool) (*Config, error) {
	cfg := &Config{
		APIToken:      strings.TrimSpace(v.GetString(KeyAPIToken)),
		APIURL:        v.GetString(KeyAPIURL),
		Model:         v.GetString(KeyModel),
		MaxWorkers:    v.GetInt(KeyMaxWorkers),
		DownloadLabel: v.GetString(KeyDownloadLabel),
		InputDir:      v.GetString(KeyInputDir),
		OutputDir:     v.GetString(KeyOutputDir),
		Debug:         v.GetBool(KeyDebug),
		Theme:         v.GetString(KeyTheme),
	}

	if requireToken && cfg.APIToken == "" {
		return nil, ErrMissingToken
	}
	if cfg.MaxWorkers < 1 {
		return nil, fmt.Errorf("%s must be at least 1, got %d", KeyMaxWorkers, cfg.MaxWorkers)
	}

	var err error
	if cfg.Delay, err = parseSeconds(KeyAPIDelay, v.GetString(KeyAPIDelay)); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = parseSeconds(KeyRateLimit, v.GetString(KeyRateLimit)); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = parseSeconds(KeyRequestTimeout, v.GetString(KeyRequestTimeout)); err != nil {
		return nil, err
	}
	if cfg.Strategy, err = extract.ParseStrategy(v.GetString(KeyExtractStrategy)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseSeconds accepts a bare number of seconds ("0.5") or a Go duration ("20m")
func parseSeconds(key, s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}
