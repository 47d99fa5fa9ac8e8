// Package migrations embeds SQL migration files and provides functions to apply them.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// FS contains the embedded SQL migration files, one directory per dialect.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

// Dialects understood by Run and Command.
const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
)

// goose keeps its base FS and dialect in package state.
var gooseMu sync.Mutex

// Run applies all pending migrations to the given database.
func Run(db *sql.DB, dialect string) error {
	return Command(db, dialect, "up", zerolog.Nop())
}

// Command executes a goose command (up, up-one, down, status, version, reset).
// goose output is written to logger.
func Command(db *sql.DB, dialect, cmd string, logger zerolog.Logger) error {
	dir, err := dirFor(dialect)
	if err != nil {
		return err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(FS)
	goose.SetLogger(gooseLogger{logger: logger.With().Str("component", "migrations").Str("command", cmd).Logger()})
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	switch cmd {
	case "up":
		err = goose.Up(db, dir)
	case "up-one":
		err = goose.UpByOne(db, dir)
	case "down":
		err = goose.Down(db, dir)
	case "status":
		err = goose.Status(db, dir)
	case "version":
		err = goose.Version(db, dir)
	case "reset":
		err = goose.Reset(db, dir)
	default:
		return fmt.Errorf("unknown migration command %q", cmd)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", cmd, err)
	}
	return nil
}

// Version reports the current schema version.
func Version(db *sql.DB, dialect string) (int64, error) {
	if _, err := dirFor(dialect); err != nil {
		return 0, err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := goose.SetDialect(dialect); err != nil {
		return 0, fmt.Errorf("set dialect: %w", err)
	}
	v, err := goose.GetDBVersion(db)
	if err != nil {
		return 0, fmt.Errorf("get db version: %w", err)
	}
	return v, nil
}

type gooseLogger struct {
	logger zerolog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatal().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func dirFor(dialect string) (string, error) {
	switch dialect {
	case DialectSQLite:
		return "sqlite", nil
	case DialectPostgres:
		return "postgres", nil
	}
	return "", fmt.Errorf("unsupported migration dialect %q", dialect)
}
