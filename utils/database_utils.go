// database_utils should be the canonical place to put shared DB utils.
// It should not include:
// 1. Any util that doesn't manipulate DB
// 2. Any util that contains business logic
package utils

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/stdlib"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestDBPrefix         = "testonlydb_"
	TestDBNameCharLength = 8
)

// ConnectOptions are the transport settings applied to every physical
// connection of the pool.
type ConnectOptions struct {
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
}

func isTempDB(dbName string) bool {
	return strings.HasPrefix(dbName, TestDBPrefix)
}

func randomTestDBName() string {
	return TestDBPrefix + RandomAlphabetString(TestDBNameCharLength)
}

// DatabaseURL returns DATABASE_URL if set, otherwise a DSN built for the db
// named by env DB_NAME.
func DatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return CustomizedDSN(os.Getenv("DB_NAME"))
}

// CustomizedDSN builds a DSN to any db with credentials from env. The default
// db "postgres" is reached with the admin credentials.
func CustomizedDSN(dbName string) string {
	if dbName == os.Getenv("DEFAULT_DB_NAME") {
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable", os.Getenv("DB_HOST"), os.Getenv("DEFAULT_DB_USER"), os.Getenv("DEFAULT_DB_PASS"), dbName, os.Getenv("DB_PORT"))
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable", os.Getenv("DB_HOST"), os.Getenv("DB_USER"), os.Getenv("DB_PASS"), dbName, os.Getenv("DB_PORT"))
}

// RedactDSN describes the db a DSN points to without leaking the password.
func RedactDSN(dsn string) string {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return "invalid dsn"
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s", cfg.User, cfg.Host, cfg.Port, cfg.Database)
}

// OpenPostgres opens a pgx backed pool through gorm and verifies it with a
// ping. The pool re-dials dropped connections on demand.
func OpenPostgres(ctx context.Context, dsn string, opts ConnectOptions) (*gorm.DB, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "invalid dsn")
	}
	if opts.ConnectTimeout > 0 {
		cfg.ConnectTimeout = opts.ConnectTimeout
	}
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: opts.KeepAlive}
	cfg.DialFunc = dialer.DialContext

	sqlDB := stdlib.OpenDB(*cfg)
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func getDB(dsn string) (*gorm.DB, error) {
	return OpenPostgres(context.Background(), dsn, ConnectOptions{ConnectTimeout: 10 * time.Second})
}

// GetDefaultDBConnection connect to database "postgres" to manage all dbs
func GetDefaultDBConnection() (*gorm.DB, error) {
	return getDB(CustomizedDSN(os.Getenv("DEFAULT_DB_NAME")))
}

// Create a temp DB for testing and return the DSN pointing to it, note that
// this function should only be called in a testing environment with test
// state manager testing.T
// It is guaranteed that this db will be dropped after each test case, user
// will not need to drop the database explicitly. Connections opened on the DSN
// must be closed by a cleanup registered after this call.
//
// Note: There are 2 cases where database won't be cleaned up:
// 1. Test fail due to timeout
// 2. Exit with signal Ctrl+C
// In both cases you should log into the database and do a manual cleanup for
// databases with prefix "testonlydb_".
func CreateTempDB(t *testing.T) (string, string) {
	t.Helper()
	db, err := GetDefaultDBConnection()
	if err != nil {
		log.Fatalln("cannot connect to DB", err)
	}
	dbName := randomTestDBName()
	err = db.Exec("CREATE DATABASE " + dbName).Error
	if err != nil {
		log.Fatalln("fail to create temp DB with name: ", dbName)
	}
	t.Cleanup(func() {
		dropTempDB(db, dbName)

		// Also proactively clean up the DB connections instead of deferring to GC.
		// Otherwise, we might exceed the DB max connection limit in test and
		// causing some tests to fail.
		if conn, err := db.DB(); err == nil {
			conn.Close()
		}
	})

	return CustomizedDSN(dbName), dbName
}

// dropTempDB drops a temp db with given name. This will always be called after
// CreateTempDB. Abort program on any failure. It won't fail on deleting
// non-existing DB.
func dropTempDB(adminDB *gorm.DB, dbName string) {
	if !isTempDB(dbName) {
		log.Fatalln("cannot delete a non-testing DB")
	}

	exists, err := IsDatabaseExist(adminDB, dbName)
	if err != nil {
		log.Fatalln("cannot connect to DB")
	}

	if !exists {
		return
	}

	if err := adminDB.Exec("DROP DATABASE " + dbName).Error; err != nil {
		log.Println("cannot drop DB", dbName, err)
	}
}

// IsDatabaseExist returns true on DB exist, returns false on not exist or error
func IsDatabaseExist(db *gorm.DB, dbName string) (bool, error) {
	var exists bool
	res := db.Raw("SELECT TRUE FROM pg_catalog.pg_database WHERE lower(datname) = lower(?) limit 1;", dbName).Scan(&exists)
	if res.Error != nil {
		return false, res.Error
	}

	return exists, nil
}
