// Package store provides task persistence over a relational database.
// Connections are opened per request and released by the caller; the only
// shared state between requests is the database itself. Supports MySQL for
// regular deployments and SQLite for single-file local setups.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

// sentinel errors, wrapped by all store operations so callers can map
// connection failures and query failures to different responses
var (
	ErrConnection = errors.New("database connection failed")
	ErrQuery      = errors.New("database query failed")
)

// Task is a named unit of work persisted as one database row
type Task struct {
	ID   int64  `db:"id"`
	Name string `db:"task_name"`
}

// Config holds connection parameters for the backing database
type Config struct {
	Driver   string // "mysql" or "sqlite"
	Host     string
	User     string
	Password string
	Name     string
	Port     int
	Path     string // sqlite database file, used when Driver is "sqlite"
}

// DSN builds the driver-specific data source name
func (c Config) DSN() (driver, dsn string, err error) {
	switch c.Driver {
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
		mc.DBName = c.Name
		return "mysql", mc.FormatDSN(), nil
	case "sqlite":
		return "sqlite", c.Path, nil
	default:
		return "", "", fmt.Errorf("unsupported driver %q", c.Driver)
	}
}

// Connector opens fresh database connections from a fixed configuration
type Connector struct {
	cfg Config
}

// NewConnector creates a connector for the given configuration
func NewConnector(cfg Config) *Connector {
	return &Connector{cfg: cfg}
}

// Connect opens a connection for a single request and verifies it with a ping.
// The returned Conn must be closed by the caller; there is no reuse across requests.
func (c *Connector) Connect(ctx context.Context) (*Conn, error) {
	driver, dsn, err := c.cfg.DSN()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	db.SetMaxOpenConns(1) // one handle per request, no pooling across requests

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("%w: %v (also failed to close: %v)", ErrConnection, err, closeErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	conn := &Conn{db: db, driver: driver}
	if driver == "sqlite" {
		// WAL keeps concurrent per-request connections from blocking each other
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			if closeErr := db.Close(); closeErr != nil {
				return nil, fmt.Errorf("%w: failed to set WAL mode: %v (also failed to close: %v)", ErrConnection, err, closeErr)
			}
			return nil, fmt.Errorf("%w: failed to set WAL mode: %v", ErrConnection, err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
			if closeErr := db.Close(); closeErr != nil {
				return nil, fmt.Errorf("%w: failed to set busy timeout: %v (also failed to close: %v)", ErrConnection, err, closeErr)
			}
			return nil, fmt.Errorf("%w: failed to set busy timeout: %v", ErrConnection, err)
		}
	}
	return conn, nil
}

// Conn is a live database connection scoped to a single request
type Conn struct {
	db     *sqlx.DB
	driver string
}

// EnsureSchema creates the tasks table if it doesn't exist yet
func (c *Conn) EnsureSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_name TEXT NOT NULL
	)`
	if c.driver == "mysql" {
		query = `CREATE TABLE IF NOT EXISTS tasks (
			id INT AUTO_INCREMENT PRIMARY KEY,
			task_name TEXT NOT NULL
		)`
	}
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%w: failed to create schema: %v", ErrQuery, err)
	}
	return nil
}

// ListTasks retrieves all tasks. No ORDER BY - row order follows the store's
// default scan and must not be assumed stable.
func (c *Conn) ListTasks(ctx context.Context) ([]Task, error) {
	tasks := []Task{}
	if err := c.db.SelectContext(ctx, &tasks, "SELECT id, task_name FROM tasks"); err != nil {
		return nil, fmt.Errorf("%w: failed to list tasks: %v", ErrQuery, err)
	}
	return tasks, nil
}

// CreateTask appends one row with the given name and returns the stored task
// with its store-assigned id. The name is stored as-is, validation is left
// to the storage layer.
func (c *Conn) CreateTask(ctx context.Context, name string) (Task, error) {
	res, err := c.db.ExecContext(ctx, "INSERT INTO tasks (task_name) VALUES (?)", name)
	if err != nil {
		return Task{}, fmt.Errorf("%w: failed to insert task: %v", ErrQuery, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Task{}, fmt.Errorf("%w: failed to get inserted id: %v", ErrQuery, err)
	}
	return Task{ID: id, Name: name}, nil
}

// CountTasks returns the number of stored tasks
func (c *Conn) CountTasks(ctx context.Context) (int, error) {
	var count int
	if err := c.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM tasks"); err != nil {
		return 0, fmt.Errorf("%w: failed to count tasks: %v", ErrQuery, err)
	}
	return count, nil
}

// Close releases the underlying connection
func (c *Conn) Close() error {
	return c.db.Close()
}
