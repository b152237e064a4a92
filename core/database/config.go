package database

import (
	"fmt"
	"net/url"
	"strings"
)

// Supported driver names.
const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite3"
	// DriverMemory runs without a database; Connect and RunMigrations reject it.
	DriverMemory = "memory"
)

// Config holds database connection settings.
type Config struct {
	Driver         string `yaml:"driver" envconfig:"DB_DRIVER"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	Path           string `yaml:"path" envconfig:"DB_PATH"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// Normalize lower-cases the driver and fills per-driver defaults.
func (c *Config) Normalize() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	switch c.Driver {
	case "", DriverPostgres:
		c.Driver = DriverPostgres
	case DriverPgx, "pgx5":
		c.Driver = DriverPgx
	case DriverSQLite, "sqlite":
		c.Driver = DriverSQLite
		if c.Path == "" {
			c.Path = "trainerbot.db"
		}
		// one writer; sqlite serializes anyway
		c.MaxConnections = 1
	case DriverMemory:
		return nil
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}
	if c.Driver != DriverSQLite {
		if c.Host == "" {
			c.Host = "localhost"
		}
		if c.Port == "" {
			c.Port = "5432"
		}
		if c.SSLMode == "" {
			c.SSLMode = "disable"
		}
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 5
	}
	return nil
}

// DSN returns the connection string understood by the sql driver.
func (c Config) DSN() string {
	switch c.Driver {
	case DriverSQLite:
		return c.Path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	case DriverPgx:
		return c.postgresURL("postgres")
	default:
		return fmt.Sprintf("user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
			c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
	}
}

// MigrateURL returns the database URL in the scheme golang-migrate expects.
func (c Config) MigrateURL() string {
	switch c.Driver {
	case DriverSQLite:
		return "sqlite3://" + c.Path
	case DriverPgx:
		return c.postgresURL("pgx5")
	default:
		return c.postgresURL("postgres")
	}
}

// Dialect names the migrations directory for the driver.
func (c Config) Dialect() string {
	if c.Driver == DriverSQLite {
		return "sqlite3"
	}
	return "postgres"
}

func (c Config) postgresURL(scheme string) string {
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}
