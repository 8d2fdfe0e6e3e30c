package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
)

type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
	DialectDuckDB   Dialect = "duckdb"
)

func (d Dialect) DisplayName() string {
	switch d {
	case DialectMySQL:
		return "MySQL"
	case DialectPostgres:
		return "PostgreSQL"
	case DialectDuckDB:
		return "DuckDB"
	default:
		return string(d)
	}
}

func ParseDialect(raw string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(raw))); d {
	case DialectMySQL, DialectPostgres, DialectDuckDB:
		return d, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", raw)
	}
}

// DBConfig describes the target database. DSN, when set, overrides the
// discrete connection parameters.
type DBConfig struct {
	Driver          Dialect
	DSN             string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
	ExecTimeout     time.Duration
}

// DriverName returns the database/sql driver registered for the dialect.
func DriverName(d Dialect) (string, error) {
	switch d {
	case DialectMySQL:
		return "mysql", nil
	case DialectPostgres:
		return "pgx", nil
	case DialectDuckDB:
		return "duckdb", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", d)
	}
}

func BuildDSN(cfg DBConfig) (string, error) {
	switch cfg.Driver {
	case DialectMySQL:
		return mysqlDSN(cfg)
	case DialectPostgres:
		return postgresDSN(cfg), nil
	case DialectDuckDB:
		return duckDBDSN(cfg), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func mysqlDSN(cfg DBConfig) (string, error) {
	var mc *mysql.Config
	if cfg.DSN != "" {
		parsed, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		mc = parsed
	} else {
		mc = mysql.NewConfig()
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.DBName = cfg.Name
	}
	mc.ParseTime = true
	if cfg.DialTimeout > 0 && mc.Timeout == 0 {
		mc.Timeout = cfg.DialTimeout
	}
	if cfg.ExecTimeout > 0 {
		if mc.ReadTimeout == 0 {
			mc.ReadTimeout = cfg.ExecTimeout
		}
		if mc.WriteTimeout == 0 {
			mc.WriteTimeout = cfg.ExecTimeout
		}
	}
	return mc.FormatDSN(), nil
}

func postgresDSN(cfg DBConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}
	q := url.Values{}
	if cfg.DialTimeout > 0 {
		secs := int(cfg.DialTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func duckDBDSN(cfg DBConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	if cfg.Name == "" || cfg.Name == ":memory:" {
		return ""
	}
	if filepath.Ext(cfg.Name) == "" {
		return cfg.Name + ".duckdb"
	}
	return cfg.Name
}

func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	driver, err := DriverName(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := BuildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", cfg.Driver, err)
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

	pingTimeout := 5 * time.Second
	if cfg.DialTimeout > 0 && cfg.DialTimeout < pingTimeout {
		pingTimeout = cfg.DialTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", cfg.Driver, err)
	}

	return db, nil
}
