package database

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DB wraps the sql.DB connection
type DB struct {
	*sql.DB
}

// InitDB opens the database at the given path and creates the schema.
func InitDB(dbPath string, log *zap.Logger) (*DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	wrapper := &DB{db}

	if err := wrapper.createTables(log); err != nil {
		return nil, err
	}

	return wrapper, nil
}

func (db *DB) createTables(log *zap.Logger) error {
	urlsTable := `
	CREATE TABLE IF NOT EXISTS urls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		short_code VARCHAR(20) UNIQUE NOT NULL,
		custom_alias VARCHAR(20) UNIQUE,
		original_url TEXT NOT NULL,
		click_count INTEGER DEFAULT 0,
		expires_at DATETIME,
		is_active BOOLEAN DEFAULT TRUE,
		created_by VARCHAR(45) DEFAULT 'anonymous',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	clicksTable := `
	CREATE TABLE IF NOT EXISTS clicks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		short_code VARCHAR(20) NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		ip_address VARCHAR(45),
		user_agent TEXT,
		referrer TEXT,
		country VARCHAR(100) DEFAULT 'Unknown',
		city VARCHAR(100) DEFAULT 'Unknown',
		visitor_id VARCHAR(64)
	);`

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_urls_short_code ON urls(short_code);",
		"CREATE INDEX IF NOT EXISTS idx_clicks_code_ts ON clicks(short_code, timestamp);",
		"CREATE INDEX IF NOT EXISTS idx_clicks_code_visitor ON clicks(short_code, visitor_id);",
	}

	if _, err := db.Exec(urlsTable); err != nil {
		return fmt.Errorf("failed to create urls table: %w", err)
	}

	if _, err := db.Exec(clicksTable); err != nil {
		return fmt.Errorf("failed to create clicks table: %w", err)
	}

	for _, index := range indexes {
		if _, err := db.Exec(index); err != nil {
			log.Warn("failed to create index", zap.Error(err))
		}
	}

	return nil
}
