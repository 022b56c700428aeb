package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrOutputCountMismatch indicates that an explicit output list does not match
// the number of requested lead times. It is checked before any numerical work
// begins.
var ErrOutputCountMismatch = errors.New("output count does not match lead time count")

// Config holds all settings, populated from environment variables.
type Config struct {
	// Motion estimation.
	BoxSize             int
	SmoothingIterations int
	SmoothingWeight     float64
	MinBoxSamples       int

	// Extrapolation.
	MaxLeadTime      time.Duration
	LeadTimeInterval time.Duration
	Extrapolate      bool

	// Service mode.
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	boxSize, err := envPositiveInt("BOX_SIZE", 30)
	if err != nil {
		return nil, err
	}
	iterations, err := envPositiveInt("SMOOTHING_ITERATIONS", 100)
	if err != nil {
		return nil, err
	}
	minBoxSamples, err := envPositiveInt("MIN_BOX_SAMPLES", 16)
	if err != nil {
		return nil, err
	}
	smoothWeight, err := envPositiveFloat("SMOOTHING_WEIGHT", 1.0)
	if err != nil {
		return nil, err
	}
	maxLead, err := envPositiveMinutes("MAX_LEAD_TIME", 120)
	if err != nil {
		return nil, err
	}
	leadInterval, err := envPositiveMinutes("LEAD_TIME_INTERVAL", 15)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := envDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		BoxSize:             boxSize,
		SmoothingIterations: iterations,
		SmoothingWeight:     smoothWeight,
		MinBoxSamples:       minBoxSamples,
		MaxLeadTime:         maxLead,
		LeadTimeInterval:    leadInterval,
		Extrapolate:         envBool("EXTRAPOLATE", true),

		KafkaBrokers:     splitBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic: envOrDefault("KAFKA_SOURCE_TOPIC", "radar-snapshots"),
		KafkaSinkTopic:   envOrDefault("KAFKA_SINK_TOPIC", "radar-nowcasts"),
		KafkaGroupID:     envOrDefault("KAFKA_GROUP_ID", "radar-nowcast"),
		HTTPAddr:         envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
	}

	if cfg.MaxLeadTime < cfg.LeadTimeInterval {
		return nil, errors.New("MAX_LEAD_TIME must be at least LEAD_TIME_INTERVAL")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}

	return cfg, nil
}

// LeadTimeCount returns how many lead times a run will produce.
func (c *Config) LeadTimeCount() int {
	return int(c.MaxLeadTime / c.LeadTimeInterval)
}

// ValidateOutputCount checks an explicit output-name list against the number
// of lead times the configuration generates.
func (c *Config) ValidateOutputCount(outputs int) error {
	if want := c.LeadTimeCount(); outputs != want {
		return fmt.Errorf("%d outputs for %d lead times: %w", outputs, want, ErrOutputCountMismatch)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true"
	}
	return fallback
}

func envPositiveInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func envPositiveFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("%s must be a positive number, got %q", key, v)
	}
	return f, nil
}

// envPositiveMinutes reads a whole number of minutes.
func envPositiveMinutes(key string, fallbackMinutes int) (time.Duration, error) {
	n, err := envPositiveInt(key, fallbackMinutes)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Minute, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
