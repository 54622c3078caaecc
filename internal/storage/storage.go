// Package storage opens the database that holds the dispatch ledger.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Backend types accepted by Config.Type.
const (
	TypeSQLite     = "sqlite"
	TypePostgreSQL = "postgresql"
	TypeMongoDB    = "mongodb"
)

// Config selects and configures the ledger database.
type Config struct {
	Type string `yaml:"type"`

	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgreSQLConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

type MongoDBConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// DefaultConfig keeps the ledger in a local SQLite file.
func DefaultConfig() Config {
	return Config{
		Type:       TypeSQLite,
		SQLite:     SQLiteConfig{Path: "data/chatgate.db"},
		PostgreSQL: PostgreSQLConfig{MaxConns: 10},
		MongoDB:    MongoDBConfig{Database: "chatgate"},
	}
}

// Conn is an open database. The handle matching Type is set; the others are nil.
type Conn struct {
	Type  string
	SQL   *sql.DB
	Pool  *pgxpool.Pool
	Mongo *mongo.Database

	closeOnce sync.Once
	closeErr  error
}

// Open connects to the backend named by cfg.Type and pings it.
func Open(ctx context.Context, cfg Config) (*Conn, error) {
	var (
		conn *Conn
		err  error
	)
	switch cfg.Type {
	case TypeSQLite:
		conn, err = OpenSQLite(cfg.SQLite)
	case TypePostgreSQL:
		conn, err = OpenPostgreSQL(ctx, cfg.PostgreSQL)
	case TypeMongoDB:
		conn, err = OpenMongoDB(ctx, cfg.MongoDB)
	default:
		return nil, fmt.Errorf("unknown storage type: %s (valid: sqlite, postgresql, mongodb)", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("%s unreachable: %w", cfg.Type, err), conn.Close())
	}
	return conn, nil
}

// Ping checks that the database answers.
func (c *Conn) Ping(ctx context.Context) error {
	switch {
	case c.SQL != nil:
		return c.SQL.PingContext(ctx)
	case c.Pool != nil:
		return c.Pool.Ping(ctx)
	case c.Mongo != nil:
		return c.Mongo.Client().Ping(ctx, nil)
	default:
		return fmt.Errorf("storage connection is closed or empty")
	}
}

// Close releases the handle. Later calls return the first result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		switch {
		case c.SQL != nil:
			c.closeErr = c.SQL.Close()
		case c.Pool != nil:
			c.Pool.Close()
		case c.Mongo != nil:
			c.closeErr = disconnectMongo(c.Mongo.Client())
		}
	})
	return c.closeErr
}
