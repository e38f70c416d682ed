package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS preferences (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			pattern_type VARCHAR(32) NOT NULL,
			pattern_value VARCHAR(255) NOT NULL,
			action VARCHAR(32) NOT NULL,
			confidence DOUBLE NOT NULL,
			created_at VARCHAR(40) NOT NULL,
			usage_count INT NOT NULL DEFAULT 1,
			UNIQUE KEY uniq_pattern (pattern_type, pattern_value, action)
		)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id CHAR(26) PRIMARY KEY,
			email_id VARCHAR(255) NOT NULL,
			sender VARCHAR(255),
			subject TEXT,
			action VARCHAR(32) NOT NULL,
			reasoning TEXT,
			confidence DOUBLE,
			was_auto_decided BOOLEAN,
			decided_at VARCHAR(40) NOT NULL,
			INDEX idx_decisions_action (action)
		)`,
	},
	upsert: `
		INSERT INTO preferences (pattern_type, pattern_value, action, confidence, usage_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			confidence = LEAST(1.0, confidence + ?),
			usage_count = usage_count + 1
	`,
	set: `
		INSERT INTO preferences (pattern_type, pattern_value, action, confidence, usage_count, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON DUPLICATE KEY UPDATE
			confidence = VALUES(confidence),
			usage_count = 0
	`,
}

// MySQLStore is a MySQL implementation of core.PreferenceStore
type MySQLStore struct {
	*sqlStore
}

// NewMySQLStore connects to dsn and prepares the schema
func NewMySQLStore(ctx context.Context, dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, unavailable("open MySQL database", err)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, unavailable("connect to MySQL database", err)
	}

	s, err := newSQLStore(ctx, db, mysqlDialect, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &MySQLStore{sqlStore: s}, nil
}
