package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Thiht/transactor"
	txStdLib "github.com/Thiht/transactor/stdlib"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"

	"blinky/internal/storage"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrations embed.FS

type SQLiteStore struct {
	db       *sql.DB
	dbPath   string
	log      zerolog.Logger
	tx       transactor.Transactor
	dbGetter txStdLib.DBGetter
}

func NewSQLiteStore(dbPath string, log zerolog.Logger) *SQLiteStore {
	return &SQLiteStore{
		dbPath: dbPath,
		log:    log.With().Str("component", "sqlite").Logger(),
	}
}

var _ storage.Storage = (*SQLiteStore)(nil)

func (s *SQLiteStore) Init(ctx context.Context) error {
	dir := filepath.Dir(s.dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create db directory %s: %w", dir, err)
	}

	s.log.Info().Str("path", s.dbPath).Msg("initializing database")
	db, err := sql.Open("sqlite3", s.dbPath+"?_journal=WAL&_timeout=5000&_fk=true")
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	s.db = db

	// one connection: sqlite has a single writer, and it keeps the
	// transaction-scoped getter and plain queries on the same handle
	s.db.SetMaxOpenConns(1)
	s.db.SetMaxIdleConns(1)
	s.db.SetConnMaxLifetime(0)

	if err := s.db.PingContext(ctx); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := s.migrate(); err != nil {
		s.db.Close()
		return err
	}

	s.tx, s.dbGetter = txStdLib.NewTransactor(s.db, txStdLib.NestedTransactionsSavepoints)
	s.log.Info().Msg("database initialized")
	return nil
}

func (s *SQLiteStore) migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	drv, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to prepare migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", drv)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	// m.Close would close the shared *sql.DB through the driver
	defer src.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err == nil {
		s.log.Debug().Uint("version", version).Bool("dirty", dirty).Msg("schema up to date")
	}
	return nil
}

func (s *SQLiteStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.tx.WithinTransaction(ctx, fn)
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		s.log.Info().Msg("closing database connection")
		return s.db.Close()
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
