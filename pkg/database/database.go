package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/lib/pq"
	"github.com/mediastudio/studio-billing/pkg/logger"
	"github.com/mediastudio/studio-billing/pkg/models"
	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Client holds the database client. It is opened with the service-role
// credentials and must only be handed to components that write billing state.
type Client struct {
	DB  *gorm.DB
	sql *sql.DB // Underlying database for pool stats
	log logger.Logger
}

// PoolConfig holds connection pool configuration
type PoolConfig struct {
	MaxOpenConns    int           // Maximum number of open connections
	MaxIdleConns    int           // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum amount of time a connection may be reused
	ConnMaxIdleTime time.Duration // Maximum amount of time a connection may be idle
}

// SSLConfig holds SSL/TLS configuration for database connections
type SSLConfig struct {
	Mode         string // disable, require, verify-ca, verify-full
	CertPath     string // Path to client certificate
	KeyPath      string // Path to client key
	RootCertPath string // Path to root CA certificate
}

// DefaultPoolConfig returns defaults sized for a webhook receiver: a
// handful of short upserts per delivery.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// WithServiceRole fills in the service-role credential as the connection
// password when the URL does not carry one. The billing writer must connect
// with a role that bypasses row level security.
func WithServiceRole(baseURL, serviceRoleKey string) (string, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse database URL: %w", err)
	}
	if parsedURL.User == nil || serviceRoleKey == "" {
		return baseURL, nil
	}
	if _, ok := parsedURL.User.Password(); ok {
		return baseURL, nil
	}

	parsedURL.User = url.UserPassword(parsedURL.User.Username(), serviceRoleKey)
	return parsedURL.String(), nil
}

// BuildConnectionString builds a PostgreSQL connection string with SSL parameters
func BuildConnectionString(baseURL string, sslCfg *SSLConfig) (string, error) {
	if sslCfg == nil {
		return baseURL, nil
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse database URL: %w", err)
	}

	query := parsedURL.Query()

	// Set SSL mode (overrides any existing sslmode in URL)
	if sslCfg.Mode != "" {
		query.Set("sslmode", sslCfg.Mode)
	}
	if sslCfg.CertPath != "" {
		query.Set("sslcert", sslCfg.CertPath)
	}
	if sslCfg.KeyPath != "" {
		query.Set("sslkey", sslCfg.KeyPath)
	}
	if sslCfg.RootCertPath != "" {
		query.Set("sslrootcert", sslCfg.RootCertPath)
	}

	parsedURL.RawQuery = query.Encode()

	return parsedURL.String(), nil
}

// NewClient opens a Postgres client over lib/pq with the given pool and
// SSL configuration. sslCfg may be nil.
func NewClient(databaseURL string, poolCfg PoolConfig, sslCfg *SSLConfig, log logger.Logger) (*Client, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is empty")
	}

	connStr, err := BuildConnectionString(databaseURL, sslCfg)
	if err != nil {
		return nil, fmt.Errorf("failed building connection string: %w", err)
	}

	if sslCfg != nil && sslCfg.Mode != "" && sslCfg.Mode != "disable" {
		log.Info("database SSL enabled", "mode", sslCfg.Mode, "client_cert", sslCfg.CertPath != "", "root_cert", sslCfg.RootCertPath != "")
	}

	// lib/pq registers itself as "postgres"; gorm would otherwise default to pgx.
	dialector := postgres.New(postgres.Config{
		DriverName: "postgres",
		DSN:        connStr,
	})

	client, err := Open(dialector, log)
	if err != nil {
		return nil, fmt.Errorf("failed opening connection to postgres: %w", err)
	}

	client.sql.SetMaxOpenConns(poolCfg.MaxOpenConns)
	client.sql.SetMaxIdleConns(poolCfg.MaxIdleConns)
	client.sql.SetConnMaxLifetime(poolCfg.ConnMaxLifetime)
	client.sql.SetConnMaxIdleTime(poolCfg.ConnMaxIdleTime)

	log.Info("database connection pool configured",
		"max_open", poolCfg.MaxOpenConns,
		"max_idle", poolCfg.MaxIdleConns,
		"max_lifetime", poolCfg.ConnMaxLifetime.String(),
		"max_idle_time", poolCfg.ConnMaxIdleTime.String(),
	)

	return client, nil
}

// Open wraps any gorm dialector in a Client, routing SQL logs through log.
func Open(dialector gorm.Dialector, log logger.Logger) (*Client, error) {
	log = log.With("component", "db")

	gormLogger := slogGorm.New(
		slogGorm.WithHandler(log.Handler()),
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	return &Client{DB: db, sql: sqlDB, log: log}, nil
}

// Migrate creates or updates the subscriptions and credits tables.
func (c *Client) Migrate(ctx context.Context) error {
	if err := c.DB.WithContext(ctx).AutoMigrate(&models.Subscription{}, &models.Credits{}); err != nil {
		return fmt.Errorf("failed creating schema resources: %w", err)
	}
	c.log.Info("database migrations applied")
	return nil
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.sql.Close()
}

// Ping checks if the database is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.sql.PingContext(ctx)
}

// Stats returns database connection pool statistics
func (c *Client) Stats() sql.DBStats {
	return c.sql.Stats()
}
