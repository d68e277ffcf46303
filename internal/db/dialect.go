package db

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect abstracts identifier quoting, placeholder syntax and JSON access
// for a target engine. Compiled statements are dialect-neutral until Bind
// rewrites them for a concrete engine.
type Dialect interface {
	Name() string
	QuoteIdentifier(name string) string
	Placeholder(n int) string
	JSONExtract(column, key string) string
}

// DialectByName resolves a driver name to its dialect.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pgx":
		return Postgres{}, nil
	case "mysql", "mariadb":
		return MySQL{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", name)
}

// Postgres targets PostgreSQL via pgx.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) JSONExtract(column, key string) string {
	return fmt.Sprintf("%s->>'%s'", column, key)
}

// MySQL targets MySQL and MariaDB.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (MySQL) Placeholder(int) string { return "?" }

// JSONExtract unquotes so extracted strings compare and LIKE-match as SQL
// strings rather than JSON documents.
func (MySQL) JSONExtract(column, key string) string {
	return fmt.Sprintf("JSON_UNQUOTE(JSON_EXTRACT(%s, '$.%s'))", column, key)
}

// SQLite targets SQLite via the modernc driver.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) JSONExtract(column, key string) string {
	return fmt.Sprintf("JSON_EXTRACT(%s, '$.%s')", column, key)
}
