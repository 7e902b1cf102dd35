package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
)

// StoreConfig contains job store configuration. The embedded SQLite file is the default;
// postgres is selected with STORE_DRIVER=postgres and either STORE_DSN or the host fields.
type StoreConfig struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	// Path is the SQLite database file.
	Path string `env:"PATH" envDefault:"tenantscan.db"`
	// DSN is a full postgres URL. When set it takes precedence over the host fields.
	DSN      string `env:"DSN"`
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"tenantscan"`
	Password string `env:"PASSWORD" envDefault:"tenantscan"`
	Name     string `env:"NAME"     envDefault:"tenantscan"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME"`

	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// Sanitize normalises the driver name and trims connection fields.
func (s *StoreConfig) Sanitize() {
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case "postgres", "postgresql", "pgx":
		s.Driver = StoreDriverPostgres
	default:
		s.Driver = StoreDriverSQLite
	}
	s.Path = strings.TrimSpace(s.Path)
	if s.Path == "" {
		s.Path = "tenantscan.db"
	}
	s.DSN = strings.TrimSpace(s.DSN)
	if s.MaxOpenConns < 0 {
		s.MaxOpenConns = 0
	}
	if s.MaxIdleConns < 0 {
		s.MaxIdleConns = 0
	}
}

// ConnectionString returns the locator handed to the database layer: the file path for
// SQLite, or a postgres URL.
func (s *StoreConfig) ConnectionString() string {
	if s.Driver != StoreDriverPostgres {
		return s.Path
	}
	if s.DSN != "" {
		return s.DSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(s.User, s.Password),
		Host:     net.JoinHostPort(s.Host, fmt.Sprint(s.Port)),
		Path:     "/" + s.Name,
		RawQuery: url.Values{"sslmode": []string{s.SSLMode}}.Encode(),
	}
	return u.String()
}
