package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Luismorlan/beautyland/model"
	"github.com/Luismorlan/beautyland/utils"
	Logger "github.com/Luismorlan/beautyland/utils/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const (
	ProdPostTable = "posts"
	TestPostTable = "posts_test"

	DefaultConnectTimeout    = 50 * time.Second
	DefaultKeepAlive         = 300 * time.Second
	DefaultReconnectInterval = 2 * time.Second
)

var log = Logger.Named("db")

// ConnectionConfig is fixed for the lifetime of a Connection.
type ConnectionConfig struct {
	DSN string
	// Production selects the production post table, otherwise the test table.
	Production        bool
	ConnectTimeout    time.Duration
	KeepAlive         time.Duration
	ReconnectInterval time.Duration
}

// Status is a snapshot of a Connection.
type Status struct {
	IsConnected bool
	Target      string
	Name        string
	Table       string
}

// Connection owns the single pool a process uses to reach the post store.
// It is established lazily by Connect and released by Close.
type Connection struct {
	config ConnectionConfig

	// connectMu serializes Connect and Close so that concurrent callers never
	// dial twice. mu guards the fields below and is never held while dialing.
	connectMu sync.Mutex
	mu        sync.RWMutex
	db        *gorm.DB
	name      string
	table     string
}

func NewConnection(config ConnectionConfig) *Connection {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.KeepAlive <= 0 {
		config.KeepAlive = DefaultKeepAlive
	}
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = DefaultReconnectInterval
	}
	return &Connection{config: config}
}

// PostTable returns the table holding posts for the given environment.
func PostTable(production bool) string {
	if production {
		return ProdPostTable
	}
	return TestPostTable
}

// Connect establishes the connection and migrates the post table. It is a
// no-op when already connected. Dialing is retried every ReconnectInterval
// until it succeeds or ctx is done; the failure is logged, the Connection
// stays not connected and the error is returned.
func (c *Connection) Connect(ctx context.Context, name string) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if c.IsConnected() {
		return nil
	}

	target := utils.RedactDSN(c.config.DSN)
	log.Infof("connect started. name: %s, target: %s", name, target)

	db, err := c.dialWithRetry(ctx)
	if err != nil {
		log.WithError(err).Errorf("fail to connect to %s", target)
		return err
	}

	table := PostTable(c.config.Production)
	if err := migratePostTable(db, table); err != nil {
		log.WithError(err).Errorf("fail to migrate table %s", table)
		closeDB(db)
		return err
	}

	c.mu.Lock()
	c.db, c.name, c.table = db, name, table
	c.mu.Unlock()

	log.Infof("connect finished. table: %s", table)
	return nil
}

func (c *Connection) dialWithRetry(ctx context.Context) (*gorm.DB, error) {
	opts := utils.ConnectOptions{
		ConnectTimeout: c.config.ConnectTimeout,
		KeepAlive:      c.config.KeepAlive,
	}
	for attempt := 1; ; attempt++ {
		db, err := utils.OpenPostgres(ctx, c.config.DSN, opts)
		if err == nil {
			return db, nil
		}
		log.WithError(err).Warnf("connect attempt %d failed, retry in %s", attempt, c.config.ReconnectInterval)

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(err, "gave up connecting after %d attempts", attempt)
		case <-time.After(c.config.ReconnectInterval):
		}
	}
}

func migratePostTable(db *gorm.DB, table string) error {
	if err := db.Table(table).AutoMigrate(&model.Post{}); err != nil {
		return errors.Wrap(err, "auto migrate")
	}
	// Indexes are named after the table so that the production and test tables
	// can live in the same database. The unique index on post_id is the real
	// duplicate guard; the existence check in Save only saves a round trip.
	statements := []string{
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_post_id ON %[1]s (post_id)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_created_at ON %[1]s (created_at DESC)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_view_count ON %[1]s (view_count DESC)`, table),
	}
	for _, s := range statements {
		if err := db.Exec(s).Error; err != nil {
			return errors.Wrap(err, "create index")
		}
	}
	return nil
}

// Close releases the connection. Closing a Connection that never connected,
// or closing twice, is a no-op.
func (c *Connection) Close() error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	db := c.db
	c.db = nil
	c.mu.Unlock()

	if db == nil {
		return nil
	}
	log.Info("connection closed")
	return closeDB(db)
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db != nil
}

func (c *Connection) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		IsConnected: c.db != nil,
		Target:      utils.RedactDSN(c.config.DSN),
		Name:        c.name,
		Table:       c.table,
	}
}

// posts returns a session on the post table, or ErrNotConnected.
func (c *Connection) posts(ctx context.Context) (*gorm.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, ErrNotConnected
	}
	return c.db.WithContext(ctx).Table(c.table), nil
}

// DB returns the underlying session, or ErrNotConnected.
func (c *Connection) DB() (*gorm.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, ErrNotConnected
	}
	return c.db, nil
}
