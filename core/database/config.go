package database

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// DriverMemory disables the durable backend; sessions stay in process.
	DriverMemory = "memory"
	// DriverPostgres selects PostgreSQL through lib/pq.
	DriverPostgres = "postgres"
	// DriverSQLite selects a file-backed SQLite database.
	DriverSQLite = "sqlite"
)

// Config holds database connection settings.
type Config struct {
	Driver         string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
	Path           string `yaml:"path" envconfig:"STORAGE_FILE"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	// WaitSeconds bounds how long startup waits for Postgres to accept connections.
	WaitSeconds int `yaml:"wait_seconds" envconfig:"DB_WAIT_SECONDS"`
}

// Normalize applies defaults and validates the driver selection.
func (c *Config) Normalize() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	switch c.Driver {
	case "", DriverMemory:
		c.Driver = DriverMemory
	case "postgresql", "pg":
		c.Driver = DriverPostgres
	case "sqlite3":
		c.Driver = DriverSQLite
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("invalid storage driver %q; allowed: memory, postgres, sqlite", c.Driver)
	}

	switch c.Driver {
	case DriverPostgres:
		if strings.TrimSpace(c.Host) == "" {
			c.Host = "localhost"
		}
		if strings.TrimSpace(c.Port) == "" {
			c.Port = "5432"
		}
		if strings.TrimSpace(c.SSLMode) == "" {
			c.SSLMode = "disable"
		}
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("database name is required for the postgres driver")
		}
		if c.MaxConnections <= 0 {
			c.MaxConnections = 5
		}
	case DriverSQLite:
		if strings.TrimSpace(c.Path) == "" {
			c.Path = "quizbot.db"
		}
		// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY.
		c.MaxConnections = 1
	}
	if c.WaitSeconds <= 0 {
		c.WaitSeconds = 10
	}
	return nil
}

// Durable reports whether a SQL backend is configured.
func (c Config) Durable() bool {
	return c.Driver == DriverPostgres || c.Driver == DriverSQLite
}

// DSN returns the database/sql data source name for the configured driver.
func (c Config) DSN() string {
	switch c.Driver {
	case DriverPostgres:
		return fmt.Sprintf(
			"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
			c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
		)
	case DriverSQLite:
		return "file:" + c.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	return ""
}

// MigrateURL returns the golang-migrate database URL for the configured driver.
func (c Config) MigrateURL() string {
	switch c.Driver {
	case DriverPostgres:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.User, c.Password),
			Host:     c.Host + ":" + c.Port,
			Path:     "/" + c.Name,
			RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
		}
		return u.String()
	case DriverSQLite:
		return "sqlite://" + c.Path
	}
	return ""
}

// Target describes the database for logs without credentials.
func (c Config) Target() string {
	switch c.Driver {
	case DriverPostgres:
		return c.Host + ":" + c.Port + "/" + c.Name
	case DriverSQLite:
		return c.Path
	}
	return c.Driver
}
