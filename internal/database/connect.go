// Package database provides the Postgres connection, migration and
// logging plumbing shared by every store in reeltime.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	sqldblogger "github.com/simukti/sqldb-logger"

	"github.com/arcflux/reeltime/pkg/logger"
)

const (
	SQLDialect          = "postgres"
	SQLConnectionString = "host=%s user=%s password=%s dbname=%s port=%s sslmode=disable"

	connectionFailureDelay = 3 * time.Second
	connectionMaxRetries   = 5
)

var (
	//go:embed migrations/*.sql
	migrations embed.FS

	dbLogger = logger.Get("DB")
)

type Config struct {
	Host     string `toml:"host" env:"DB_HOST" env-default:"localhost"`
	Port     string `toml:"port" env:"DB_PORT" env-default:"5432"`
	User     string `toml:"user" env:"DB_USER" env-default:"reeltime"`
	Password string `toml:"password" env:"DB_PASSWORD" env-default:""`
	Name     string `toml:"name" env:"DB_NAME" env-default:"reeltime"`
}

type (
	SQLLogger struct {
		logger logger.Logger
	}

	Manager interface {
		Connect(config Config) error
		GetSqlxDB() *sqlx.DB
		WrapTx(wrapper func(tx *sqlx.Tx) error) error
	}

	// Queryable includes all methods shared by sqlx.DB and sqlx.Tx, allowing
	// either type to be used interchangeably by store implementations - no
	// store in this module assumes transactionality across independent calls.
	//nolint
	Queryable interface {
		sqlx.Ext
		sqlx.ExecerContext
		sqlx.PreparerContext
		sqlx.QueryerContext
		sqlx.Preparer

		GetContext(context.Context, interface{}, string, ...interface{}) error
		SelectContext(context.Context, interface{}, string, ...interface{}) error
		Get(interface{}, string, ...interface{}) error
		MustExecContext(context.Context, string, ...interface{}) sql.Result
		PreparexContext(context.Context, string) (*sqlx.Stmt, error)
		QueryRowContext(context.Context, string, ...interface{}) *sql.Row
		Select(interface{}, string, ...interface{}) error
		QueryRow(string, ...interface{}) *sql.Row
		PrepareNamedContext(context.Context, string) (*sqlx.NamedStmt, error)
		PrepareNamed(string) (*sqlx.NamedStmt, error)
		Preparex(string) (*sqlx.Stmt, error)
		NamedExec(string, interface{}) (sql.Result, error)
		NamedExecContext(context.Context, string, interface{}) (sql.Result, error)
		MustExec(string, ...interface{}) sql.Result
		NamedQuery(string, interface{}) (*sqlx.Rows, error)
	}

	manager struct {
		rawDB *sql.DB
		db    *sqlx.DB
	}
)

func New() *manager {
	return &manager{}
}

func (db *manager) Connect(config Config) error {
	dsn := fmt.Sprintf(SQLConnectionString, config.Host, config.User, config.Password, config.Name, config.Port)
	rawDB, err := sql.Open(SQLDialect, dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}

	rawDB = sqldblogger.OpenDriver(dsn, rawDB.Driver(), &SQLLogger{dbLogger})

	attempt := 1
	for {
		if err := rawDB.Ping(); err != nil {
			if attempt >= connectionMaxRetries {
				dbLogger.Emit(logger.ERROR, "All attempts FAILED!\n")
				return err
			}

			dbLogger.Emit(logger.WARNING, "Attempt (%v/%v) failed... Retrying in %s\n", attempt, connectionMaxRetries, connectionFailureDelay)
			attempt++
			time.Sleep(connectionFailureDelay)
			continue
		}

		db.rawDB = rawDB
		db.db = sqlx.NewDb(rawDB, SQLDialect)
		break
	}

	if err := db.executeMigrations(); err != nil {
		return err
	}

	dbLogger.Emit(logger.SUCCESS, "Database connection established!\n")
	return nil
}

// executeMigrations uses the comp-time embedded SQL migrations (found in the
// 'migrations' dir in this package) and runs them against the current DB
// instance. Must only be called after a successful Connect.
func (db *manager) executeMigrations() error {
	if db.rawDB == nil {
		return errors.New("cannot execute migrations when DB manager has not yet connected")
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(dbLogger)
	if err := goose.SetDialect(SQLDialect); err != nil {
		return fmt.Errorf("failed to set dialect for DB migration: %w", err)
	}

	dbLogger.Emit(logger.INFO, "Checking for pending DB migrations...\n")
	if err := goose.Up(db.rawDB, "migrations"); err != nil {
		return fmt.Errorf("failed to migrate DB: %w", err)
	}

	dbLogger.Emit(logger.SUCCESS, "Outstanding database migrations complete!\n")
	return nil
}

func (db *manager) GetSqlxDB() *sqlx.DB {
	return db.db
}

func (db *manager) WrapTx(f func(tx *sqlx.Tx) error) error {
	if db.db == nil {
		return errors.New("DB manager has not yet connected")
	}

	return WrapTx(db.db, f)
}

func (l *SQLLogger) Log(_ context.Context, level sqldblogger.Level, msg string, data map[string]any) {
	switch level {
	case sqldblogger.LevelTrace:
		l.logger.Verbosef("%s - %v\n", msg, data)
	case sqldblogger.LevelDebug, sqldblogger.LevelInfo:
		if query, ok := data["query"]; ok {
			l.logger.Debugf("%s -- %s\n", msg, query)
		} else {
			l.logger.Debugf("%s\n", msg)
		}
	case sqldblogger.LevelError:
		l.logger.Errorf("%s - %v\n", msg, data)
	}
}

// WrapTx starts a transaction against the provided DB and calls f. If f
// errors the transaction is rolled back, otherwise it is committed.
func WrapTx(db *sqlx.DB, f func(tx *sqlx.Tx) error) error {
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint

	if err := f(tx); err != nil {
		dbLogger.Errorf("Transaction failed... rolling back. Error: %v\n", err)
		return fmt.Errorf("wrapped DB transaction failed: %w", err)
	}

	return tx.Commit()
}

// InExec combines sqlx's `In` with `Exec`, rebinding the query automatically.
func InExec(db Queryable, query string, arg any) error {
	q, a, err := sqlx.In(query, arg)
	if err != nil {
		return err
	}

	_, err = db.Exec(db.Rebind(q), a...)
	return err
}
