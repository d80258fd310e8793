// Package datasource opens connections to the relational databases QueryLens
// reads from and owns the currently connected session.
package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"

	"github.com/querylens/querylens/internal/config"
)

var ErrNotConnected = errors.New("database not connected")

type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
	DuckDB   Dialect = "duckdb"
)

func ParseDialect(raw string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "mysql", "mariadb":
		return MySQL, nil
	case "postgres", "postgresql", "pg", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "duckdb":
		return DuckDB, nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", raw)
	}
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case Postgres:
		return "pgx"
	default:
		return string(d)
	}
}

// Config describes one connection. DSN wins when set; otherwise the DSN is
// assembled from the discrete fields. For file databases Database is the path.
type Config struct {
	Dialect  string
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Database string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

func FromConfig(cfg config.DataSourceConfig) Config {
	return Config{
		Dialect:         cfg.Dialect,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnectTimeout:  cfg.ConnectTimeout,
	}
}

func (c Config) ResolveDSN(dialect Dialect) (string, error) {
	if dsn := strings.TrimSpace(c.DSN); dsn != "" {
		return dsn, nil
	}
	switch dialect {
	case MySQL:
		if c.Host == "" || c.User == "" {
			return "", fmt.Errorf("mysql connection requires host and user")
		}
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(portOr(c.Port, 3306)))
		mc.DBName = c.Database
		mc.ParseTime = true
		return mc.FormatDSN(), nil
	case Postgres:
		if c.Host == "" || c.User == "" {
			return "", fmt.Errorf("postgres connection requires host and user")
		}
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(c.User, c.Password),
			Host:   net.JoinHostPort(c.Host, strconv.Itoa(portOr(c.Port, 5432))),
			Path:   "/" + c.Database,
		}
		return u.String(), nil
	case SQLite, DuckDB:
		if c.Database == "" {
			return "", fmt.Errorf("%s connection requires a database path", dialect)
		}
		return c.Database, nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", dialect)
	}
}

func Open(ctx context.Context, cfg Config) (*sql.DB, Dialect, error) {
	dialect, err := ParseDialect(cfg.Dialect)
	if err != nil {
		return nil, "", err
	}
	dsn, err := cfg.ResolveDSN(dialect)
	if err != nil {
		return nil, "", err
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s db: %w", dialect, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping %s db: %w", dialect, err)
	}

	return db, dialect, nil
}

func portOr(port, fallback int) int {
	if port > 0 {
		return port
	}
	return fallback
}
