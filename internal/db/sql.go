package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// sqlDB adapts a database/sql handle to the Querier interface.
type sqlDB struct {
	db *sql.DB
}

func newMySQL(ctx context.Context, config Config) (*sqlDB, error) {
	cfg := mysql.NewConfig()
	cfg.User = config.User
	cfg.Passwd = config.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", config.Host, config.Port)
	cfg.DBName = config.DBName
	cfg.ParseTime = true

	return openSQL(ctx, "mysql", cfg.FormatDSN(), config.MaxConns)
}

func newSQLite(ctx context.Context, config Config) (*sqlDB, error) {
	path := config.Path
	if path == "" {
		path = config.DBName
	}
	return openSQL(ctx, "sqlite", path, config.MaxConns)
}

func openSQL(ctx context.Context, driver, dsn string, maxConns int) (*sqlDB, error) {
	handle, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if maxConns <= 0 {
		maxConns = 5
	}
	handle.SetMaxOpenConns(maxConns)
	handle.SetMaxIdleConns(1)
	handle.SetConnMaxLifetime(time.Minute * 30)

	// Test the connection
	if err := handle.PingContext(ctx); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &sqlDB{db: handle}, nil
}

func (s *sqlDB) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *sqlDB) Exec(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *sqlDB) close() {
	_ = s.db.Close()
}
