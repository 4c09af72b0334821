package config

import (
	"fmt"
	"os"
	"time"

	"github.com/couchcryptid/noise-monitor-service/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// ReportConfig holds leqreport settings. Flags override these values.
type ReportConfig struct {
	Location *time.Location
	Policy   domain.DenominatorPolicy

	// Publishing is enabled when KafkaTopic is set.
	KafkaBrokers []string
	KafkaTopic   string

	LogLevel  string
	LogFormat string
}

// LoadReport reads the report environment.
func LoadReport() (*ReportConfig, error) {
	loc, err := time.LoadLocation(sharedcfg.EnvOrDefault("REPORT_TZ", domain.ReferenceZone))
	if err != nil {
		return nil, fmt.Errorf("invalid REPORT_TZ: %w", err)
	}

	policy, err := domain.ParsePolicy(sharedcfg.EnvOrDefault("LEQ_POLICY", "count"))
	if err != nil {
		return nil, fmt.Errorf("invalid LEQ_POLICY: %w", err)
	}

	cfg := &ReportConfig{
		Location:     loc,
		Policy:       policy,
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   os.Getenv("LEQ_KAFKA_TOPIC"),
		LogLevel:     sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:    sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
	}

	if cfg.KafkaTopic != "" && len(cfg.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("LEQ_KAFKA_TOPIC is set but KAFKA_BROKERS is empty")
	}
	return cfg, nil
}
