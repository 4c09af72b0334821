package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Replica backends.
const (
	BackendNone  = "none"
	BackendDrive = "drive"
	BackendS3    = "s3"
	BackendDir   = "dir"
)

// Config holds the noisemon daemon settings, populated from environment variables.
type Config struct {
	DeviceAddress        string
	WriteCharacteristic  string
	NotifyCharacteristic string
	SampleInterval       time.Duration
	ReplyTimeout         time.Duration
	ReconnectInterval    time.Duration

	CSVDir        string
	CSVFilePrefix string
	PartitionTZ   *time.Location

	SyncInterval   time.Duration
	ReplicaBackend string

	// Google Drive replica.
	DriveFolderID   string
	DriveScope      string
	CredentialsPath string

	// S3 replica.
	S3Bucket   string
	S3Prefix   string
	S3Endpoint string

	// Directory replica.
	ReplicaDir string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	sampleInterval, err := parsePositiveDuration("SAMPLE_INTERVAL", "1s")
	if err != nil {
		return nil, err
	}
	replyTimeout, err := parsePositiveDuration("REPLY_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	reconnectInterval, err := parsePositiveDuration("RECONNECT_INTERVAL", "5s")
	if err != nil {
		return nil, err
	}
	syncInterval, err := parsePositiveDuration("SYNC_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}

	tz, err := time.LoadLocation(sharedcfg.EnvOrDefault("PARTITION_TZ", "Local"))
	if err != nil {
		return nil, fmt.Errorf("invalid PARTITION_TZ: %w", err)
	}

	cfg := &Config{
		DeviceAddress:        sharedcfg.EnvOrDefault("DEVICE_ADDRESS", "A13C58CF-5038-CD24-39AF-77FDB6273E3A"),
		WriteCharacteristic:  sharedcfg.EnvOrDefault("WRITE_CHARACTERISTIC_UUID", "0000ff01-0000-1000-8000-00805f9b34fb"),
		NotifyCharacteristic: sharedcfg.EnvOrDefault("NOTIFY_CHARACTERISTIC_UUID", "0000ff02-0000-1000-8000-00805f9b34fb"),
		SampleInterval:       sampleInterval,
		ReplyTimeout:         replyTimeout,
		ReconnectInterval:    reconnectInterval,

		CSVDir:        sharedcfg.EnvOrDefault("CSV_FILE_DIR", "."),
		CSVFilePrefix: os.Getenv("CSV_FILE_NAME_PREFIX"),
		PartitionTZ:   tz,

		SyncInterval:   syncInterval,
		ReplicaBackend: sharedcfg.EnvOrDefault("REPLICA_BACKEND", BackendNone),

		DriveFolderID:   os.Getenv("DRIVE_FOLDER_ID"),
		DriveScope:      sharedcfg.EnvOrDefault("DRIVE_SCOPE", "drive"),
		CredentialsPath: sharedcfg.EnvOrDefault("CREDENTIALS_PATH", "credentials.json"),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3Prefix:        os.Getenv("S3_PREFIX"),
		S3Endpoint:      os.Getenv("S3_ENDPOINT"),
		ReplicaDir:      os.Getenv("REPLICA_DIR"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.DeviceAddress == "" {
		return nil, errors.New("DEVICE_ADDRESS is required")
	}
	if cfg.CSVDir == "" {
		return nil, errors.New("CSV_FILE_DIR is required")
	}

	switch cfg.ReplicaBackend {
	case BackendNone:
	case BackendDrive:
		if cfg.DriveFolderID == "" {
			return nil, errors.New("REPLICA_BACKEND is drive but DRIVE_FOLDER_ID is not set")
		}
	case BackendS3:
		if cfg.S3Bucket == "" {
			return nil, errors.New("REPLICA_BACKEND is s3 but S3_BUCKET is not set")
		}
	case BackendDir:
		if cfg.ReplicaDir == "" {
			return nil, errors.New("REPLICA_BACKEND is dir but REPLICA_DIR is not set")
		}
	default:
		return nil, fmt.Errorf("invalid REPLICA_BACKEND %q", cfg.ReplicaBackend)
	}

	return cfg, nil
}

// ReplicaParent returns the backend-specific parent of replica blobs.
func (c *Config) ReplicaParent() string {
	switch c.ReplicaBackend {
	case BackendDrive:
		return c.DriveFolderID
	case BackendS3:
		return c.S3Prefix
	default:
		return ""
	}
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}
