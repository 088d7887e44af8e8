// internal/db/db.go
package db

import (
	"context"
	"database/sql"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/unclebandit/crm-sms-fallback/internal/config"
)

const pingTimeout = 5 * time.Second

// Open connects to Postgres and verifies the connection.
func Open(cfg config.DatabaseConfig, logger *log.Logger) (*sql.DB, error) {
	logger.Printf("connecting to database %s@%s:%d/%s", cfg.User, cfg.Host, cfg.Port, cfg.Name)

	conn, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	logger.Println("connected to database")
	return conn, nil
}
