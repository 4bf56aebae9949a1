package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
)

// PostgresClient manages the connection to PostgreSQL.
// A pgx.Conn is not safe for concurrent use, so every statement goes through mu.
type PostgresClient struct {
	mu   sync.Mutex
	conn *pgx.Conn
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(ctx context.Context, connString string) (*PostgresClient, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{conn: conn}, nil
}

// Close closes the database connection
func (c *PostgresClient) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close(ctx)
}

// WithConn runs fn with exclusive use of the underlying connection
func (c *PostgresClient) WithConn(fn func(conn *pgx.Conn) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c.conn)
}
