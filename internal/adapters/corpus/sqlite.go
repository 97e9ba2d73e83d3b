package corpus

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/core"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS mails (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	subject        TEXT NOT NULL,
	body_plain     TEXT NOT NULL,
	body_html      TEXT NOT NULL,
	from_address   TEXT NOT NULL,
	from_name      TEXT NOT NULL,
	fingerprint    TEXT NOT NULL,
	length         INTEGER NOT NULL,
	has_attachment BOOLEAN NOT NULL,
	state          INTEGER NOT NULL,
	rating         INTEGER NOT NULL,
	inserted_at    TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS recipients (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	mail_id INTEGER NOT NULL REFERENCES mails(id),
	email   TEXT NOT NULL,
	name    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recipients_email ON recipients(email);
CREATE TABLE IF NOT EXISTS links (
	link    TEXT PRIMARY KEY,
	counter INTEGER NOT NULL,
	rating  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS credentials (
	username TEXT NOT NULL,
	password TEXT NOT NULL,
	UNIQUE (username, password)
);`

// NewSQLiteStore opens (and if needed creates) a SQLite-backed corpus at the
// given path.
func NewSQLiteStore(path string, compare core.CompareFunc, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("corpus: opening sqlite database: %w", err)
	}
	// sqlite allows one writer at a time; a second connection would just
	// trade lock errors with the first.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("corpus: creating sqlite schema: %w", err)
	}
	logger.Info("sqlite corpus ready", zap.String("path", path))
	return newSQLStore(db, compare, logger), nil
}
