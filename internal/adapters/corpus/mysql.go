package corpus

import (
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/core"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS mails (
		id             BIGINT AUTO_INCREMENT PRIMARY KEY,
		subject        TEXT NOT NULL,
		body_plain     MEDIUMTEXT NOT NULL,
		body_html      MEDIUMTEXT NOT NULL,
		from_address   VARCHAR(320) NOT NULL,
		from_name      VARCHAR(255) NOT NULL,
		fingerprint    VARCHAR(255) NOT NULL,
		length         INT NOT NULL,
		has_attachment BOOLEAN NOT NULL,
		state          INT NOT NULL,
		rating         INT NOT NULL,
		inserted_at    DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS recipients (
		id      BIGINT AUTO_INCREMENT PRIMARY KEY,
		mail_id BIGINT NOT NULL,
		email   VARCHAR(320) NOT NULL,
		name    VARCHAR(255) NOT NULL,
		INDEX idx_recipients_email (email),
		FOREIGN KEY (mail_id) REFERENCES mails(id)
	)`,
	`CREATE TABLE IF NOT EXISTS links (
		link    VARCHAR(768) PRIMARY KEY,
		counter INT NOT NULL,
		rating  INT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS credentials (
		username VARCHAR(255) NOT NULL,
		password VARCHAR(255) NOT NULL,
		UNIQUE KEY uniq_credential (username, password)
	)`,
}

// MySQLConfig carries the connection settings for a MySQL-backed corpus.
type MySQLConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// NewMySQLStore opens a MySQL-backed corpus and ensures its schema.
func NewMySQLStore(cfg MySQLConfig, compare core.CompareFunc, logger *zap.Logger) (*SQLStore, error) {
	dsn := mysql.Config{
		Net:                  "tcp",
		Addr:                 fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		User:                 cfg.User,
		Passwd:               cfg.Password,
		DBName:               cfg.Database,
		ParseTime:            true,
		AllowNativePasswords: true,
	}
	db, err := sql.Open("mysql", dsn.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("corpus: opening mysql database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("corpus: connecting to mysql: %w", err)
	}
	for _, stmt := range mysqlSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("corpus: creating mysql schema: %w", err)
		}
	}
	logger.Info("mysql corpus ready",
		zap.String("host", cfg.Host), zap.String("database", cfg.Database))
	return newSQLStore(db, compare, logger), nil
}
