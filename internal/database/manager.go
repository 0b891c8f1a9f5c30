package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pictor/internal/config"
	"pictor/internal/models"
)

// DatabaseManager manages catalog database connections
type DatabaseManager struct {
	config *config.DatabaseConfig
	gormDB *gorm.DB
	sqlDB  *sql.DB
	logger *zerolog.Logger
}

// BuildDSN creates a PostgreSQL DSN from configuration
func BuildDSN(config *config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)
}

// GORMConfig represents GORM configuration shared by both drivers
var GORMConfig = &gorm.Config{
	Logger:                 logger.Default.LogMode(logger.Silent),
	SkipDefaultTransaction: true, // batches open their own transactions
	PrepareStmt:            true,
}

// NewDatabaseManager creates a new database manager for the configured driver
func NewDatabaseManager(config *config.DatabaseConfig, logger *zerolog.Logger) (*DatabaseManager, error) {
	var dialector gorm.Dialector

	switch config.Driver {
	case "postgres":
		dialector = postgres.Open(BuildDSN(config))
	case "sqlite":
		// The busy timeout keeps the watch-drain and metadata loops from
		// tripping over each other's write locks.
		dialector = sqlite.Open(fmt.Sprintf("%s?_busy_timeout=5000", config.Path))
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", config.Driver)
	}

	db, err := gorm.Open(dialector, GORMConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	// Verify connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runHealthCheck(db); err != nil {
		return nil, fmt.Errorf("database health check failed: %w", err)
	}

	return &DatabaseManager{
		config: config,
		gormDB: db,
		sqlDB:  sqlDB,
		logger: logger,
	}, nil
}

// Migrate creates or updates the catalog schema.
func (d *DatabaseManager) Migrate() error {
	return Migrate(d.gormDB)
}

// Migrate runs the schema migration for all catalog entities.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Folder{},
		&models.Image{},
		&models.Camera{},
		&models.Lens{},
		&models.ImageMetadata{},
		&models.Tag{},
		&models.ImageTag{},
	)
}

// runHealthCheck performs a basic query to verify database connectivity
func runHealthCheck(db *gorm.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result int
	return db.WithContext(ctx).Raw("SELECT 1").Scan(&result).Error
}

// GetGormDB returns the GORM database instance
func (d *DatabaseManager) GetGormDB() *gorm.DB {
	return d.gormDB
}

// GetSQLDB returns the underlying SQL database instance
func (d *DatabaseManager) GetSQLDB() *sql.DB {
	return d.sqlDB
}

// Close closes the database connection
func (d *DatabaseManager) Close() error {
	return d.sqlDB.Close()
}
