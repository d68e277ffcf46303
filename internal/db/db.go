package db

import (
	"context"
	"fmt"
)

// Config holds database configuration
type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Path     string
	MaxConns int
}

// Rows is the subset of a result cursor the repositories consume.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Querier runs statements against a database engine.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	Exec(ctx context.Context, query string, args ...any) error
}

// DB bundles a live connection with the dialect it speaks.
type DB struct {
	Querier
	dialect Dialect
	closeFn func()
}

// Open connects to the engine named by config.Driver.
func Open(ctx context.Context, config Config) (*DB, error) {
	dialect, err := DialectByName(config.Driver)
	if err != nil {
		return nil, err
	}

	switch dialect.Name() {
	case "postgres":
		pool, err := newPgxPool(ctx, config)
		if err != nil {
			return nil, err
		}
		return &DB{Querier: pool, dialect: dialect, closeFn: pool.close}, nil
	case "mysql":
		handle, err := newMySQL(ctx, config)
		if err != nil {
			return nil, err
		}
		return &DB{Querier: handle, dialect: dialect, closeFn: handle.close}, nil
	case "sqlite":
		handle, err := newSQLite(ctx, config)
		if err != nil {
			return nil, err
		}
		return &DB{Querier: handle, dialect: dialect, closeFn: handle.close}, nil
	}

	return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
}

// Dialect returns the SQL dialect of the connected engine.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Close closes the underlying connection pool
func (d *DB) Close() {
	if d.closeFn != nil {
		d.closeFn()
	}
}

// DefaultConfig returns a default database configuration
func DefaultConfig() Config {
	return Config{
		Driver:   "postgres",
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "admin",
		DBName:   "seqmeta",
		SSLMode:  "disable",
		MaxConns: 5,
	}
}
