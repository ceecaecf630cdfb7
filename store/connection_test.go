package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Luismorlan/beautyland/model"
	"github.com/Luismorlan/beautyland/query"
	"github.com/Luismorlan/beautyland/utils"
	"github.com/Luismorlan/beautyland/utils/dotenv"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	dotenv.LoadDotEnvsInTests()
	os.Exit(m.Run())
}

// connectTempDB returns a connected Connection on a fresh temp db. The
// connection is closed before the temp db is dropped.
func connectTempDB(t *testing.T) *Connection {
	t.Helper()
	dsn, _ := utils.CreateTempDB(t)
	conn := NewConnection(ConnectionConfig{DSN: dsn})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.Nil(t, conn.Connect(ctx, t.Name()))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPostTableName(t *testing.T) {
	assert.Equal(t, "posts", PostTable(true))
	assert.Equal(t, "posts_test", PostTable(false))
}

func TestNotConnected(t *testing.T) {
	conn := NewConnection(ConnectionConfig{DSN: "host=localhost user=u password=p dbname=d port=5432"})
	repo := NewPostRepository(conn)
	ctx := context.Background()

	status := conn.Status()
	assert.False(t, status.IsConnected)
	assert.Equal(t, "postgres://u@localhost:5432/d", status.Target)

	_, err := repo.Exists(ctx, "a")
	assert.True(t, errors.Is(err, ErrNotConnected))
	_, err = repo.Save(ctx, &model.Post{PostId: "a"})
	assert.True(t, errors.Is(err, ErrNotConnected))
	post, err := repo.ReadOne(ctx, "a", ReadOptions{})
	assert.Nil(t, post)
	assert.True(t, errors.Is(err, ErrNotConnected))
	_, err = repo.ReadMany(ctx, query.Index(1, 10))
	assert.True(t, errors.Is(err, ErrNotConnected))
	_, err = repo.ReadRandom(ctx, 5)
	assert.True(t, errors.Is(err, ErrNotConnected))
	_, err = repo.Count(ctx)
	assert.True(t, errors.Is(err, ErrNotConnected))
	_, err = repo.Delete(ctx, "a")
	assert.True(t, errors.Is(err, ErrNotConnected))
	_, err = repo.SetVisibility(ctx, "a", false)
	assert.True(t, errors.Is(err, ErrNotConnected))
	_, err = repo.IncrementViewCount(ctx, "a")
	assert.True(t, errors.Is(err, ErrNotConnected))
}

func TestCloseNeverConnected(t *testing.T) {
	conn := NewConnection(ConnectionConfig{DSN: "host=localhost dbname=d"})
	assert.Nil(t, conn.Close())
	assert.Nil(t, conn.Close())
	assert.False(t, conn.IsConnected())
	_, err := conn.DB()
	assert.True(t, errors.Is(err, ErrNotConnected))
}

func TestConnectGivesUpWhenContextIsDone(t *testing.T) {
	conn := NewConnection(ConnectionConfig{
		DSN:               "host=127.0.0.1 port=1 user=u dbname=d sslmode=disable",
		ConnectTimeout:    100 * time.Millisecond,
		ReconnectInterval: 50 * time.Millisecond,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	assert.NotNil(t, conn.Connect(ctx, "unreachable"))
	assert.False(t, conn.Status().IsConnected)
}

func TestConnectIsIdempotent(t *testing.T) {
	conn := connectTempDB(t)

	status := conn.Status()
	assert.True(t, status.IsConnected)
	assert.Equal(t, TestPostTable, status.Table)
	assert.Equal(t, t.Name(), status.Name)
	db, err := conn.DB()
	require.Nil(t, err)
	exists, err := utils.IsDatabaseExist(db, db.Migrator().CurrentDatabase())
	require.Nil(t, err)
	assert.True(t, exists)

	// a second connect keeps the first connection and name
	require.Nil(t, conn.Connect(context.Background(), "other"))
	assert.Equal(t, t.Name(), conn.Status().Name)

	require.Nil(t, conn.Close())
	assert.False(t, conn.IsConnected())
	_, err = NewPostRepository(conn).Exists(context.Background(), "a")
	assert.True(t, errors.Is(err, ErrNotConnected))
}
