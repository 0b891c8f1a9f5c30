package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// AppConfig represents the main application configuration
type AppConfig struct {
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Index    IndexConfig    `mapstructure:"index"`
}

// DatabaseConfig represents catalog database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // "sqlite" or "postgres"
	Path            string        `mapstructure:"path"`   // sqlite file path
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// MetricsConfig represents the metrics exposition configuration.
// An empty listen address disables the endpoint.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// IndexConfig represents the indexing engine configuration
type IndexConfig struct {
	// RootFolder is the top of the directory tree to index.
	RootFolder string `mapstructure:"root_folder"`

	// EnableIndexing turns the whole engine on or off.
	EnableIndexing bool `mapstructure:"enable_indexing"`

	// EnableThumbnails is read here but consumed by the thumbnail
	// pipeline, which lives outside this process core.
	EnableThumbnails bool `mapstructure:"enable_thumbnails"`

	// ScanInterval is the pause between watch-drain passes.
	ScanInterval time.Duration `mapstructure:"scan_interval"`

	// MetadataInterval is the pause between full metadata sweeps.
	MetadataInterval time.Duration `mapstructure:"metadata_interval"`

	// MetadataBatchSize bounds the images loaded per metadata batch.
	MetadataBatchSize int `mapstructure:"metadata_batch_size"`

	// FolderBatchSize bounds the pending folders re-indexed per drain pass.
	FolderBatchSize int `mapstructure:"folder_batch_size"`

	// ExtractionsPerSecond paces metadata extraction so a large backlog
	// doesn't saturate the disk. 0 means unpaced.
	ExtractionsPerSecond int `mapstructure:"extractions_per_second"`

	// MaxWatchErrors stops the filesystem watch listener after this many
	// provider errors. 0 means keep listening regardless.
	MaxWatchErrors int `mapstructure:"max_watch_errors"`

	// EventQueueSize sizes the in-process event bus buffers.
	EventQueueSize int `mapstructure:"event_queue_size"`
}

// LoadConfig loads application configuration from various sources
func LoadConfig() (*AppConfig, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set default values
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", "pictor.db")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "pictor")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 20)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	viper.SetDefault("database.conn_max_idle_time", 15*time.Minute)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")

	viper.SetDefault("metrics.listen", "")

	viper.SetDefault("index.enable_indexing", true)
	viper.SetDefault("index.enable_thumbnails", true)
	viper.SetDefault("index.scan_interval", 30*time.Second)
	viper.SetDefault("index.metadata_interval", 60*time.Second)
	viper.SetDefault("index.metadata_batch_size", 100)
	viper.SetDefault("index.folder_batch_size", 50)
	viper.SetDefault("index.extractions_per_second", 20)
	viper.SetDefault("index.max_watch_errors", 0)
	viper.SetDefault("index.event_queue_size", 100)

	// Read configuration file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, using defaults
	}

	// Read from environment variables
	viper.AutomaticEnv()

	var config AppConfig
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validateConfig validates the configuration values
func validateConfig(config *AppConfig) error {
	if config.Index.EnableIndexing && config.Index.RootFolder == "" {
		return fmt.Errorf("index.root_folder must be set when indexing is enabled")
	}

	if config.Index.MetadataBatchSize <= 0 {
		return fmt.Errorf("index.metadata_batch_size must be positive")
	}

	if config.Index.FolderBatchSize <= 0 {
		return fmt.Errorf("index.folder_batch_size must be positive")
	}

	if config.Index.ScanInterval <= 0 || config.Index.MetadataInterval <= 0 {
		return fmt.Errorf("index intervals must be positive")
	}

	switch config.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", config.Database.Driver)
	}

	return nil
}
