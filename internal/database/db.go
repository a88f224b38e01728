package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/iliyamo/raffle-ledger/internal/config"
)

// Open connects to the configured ticket store and verifies the connection.
// The returned Dialect tells the repository layer which SQL flavour to emit.
func Open(cfg config.Database) (*sql.DB, Dialect, error) {
	switch cfg.Driver {
	case config.DriverMySQL:
		db, err := openMySQL(cfg)
		return db, MySQL, err
	case config.DriverSQLite, "":
		db, err := OpenSQLite(cfg.SQLitePath)
		return db, SQLite, err
	}
	return nil, "", fmt.Errorf("unsupported driver %q", cfg.Driver)
}

func openMySQL(cfg config.Database) (*sql.DB, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Pass
	mc.Net = "tcp"
	mc.Addr = cfg.Host + ":" + cfg.Port
	mc.DBName = cfg.Name
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}

	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := ping(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens (creating if needed) a single-file store at path.
//
// The pool is pinned to one connection: SQLite allows a single writer, and
// funnelling every transaction through one connection makes each ledger
// transaction run in isolation without relying on BUSY retries.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := ping(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}
