package db

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

type Options struct {
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

func NewDatabase(ctx context.Context, dsn string, opts Options) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, err
	}

	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 25
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	conn.SetMaxOpenConns(opts.MaxOpenConns)
	conn.SetMaxIdleConns(opts.MaxOpenConns)
	conn.SetConnMaxLifetime(opts.ConnMaxLifetime)
	return &Database{Conn: conn}, nil
}

func (d *Database) Ping(ctx context.Context) error {
	return d.Conn.PingContext(ctx)
}

func (d *Database) Close() error {
	return d.Conn.Close()
}
