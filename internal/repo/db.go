package repo

import (
	"PanShare/config"
	"PanShare/model"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	gormMysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate key")
)

// Models lists every table managed by AutoMigrate.
var Models = []any{
	&model.User{},
	&model.FileObject{},
	&model.UserFile{},
	&model.FilePermission{},
	&model.FileShare{},
	&model.AuditLog{},
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger(os.Stdout),
	}
}

// gormLogger reports slow queries and real errors. Missing rows are an
// expected outcome of lookups such as dedup by hash.
func gormLogger(w io.Writer) logger.Interface {
	return logger.New(log.New(w, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// Open connects to the configured database and migrates the schema.
func Open(cfg config.Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.DBDriver {
	case "mysql", "":
		db, err = openMySQL(cfg)
	case "postgres", "postgresql":
		dsn := cfg.DBDSN
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
				cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)
		}
		db, err = gorm.Open(postgres.Open(dsn), gormConfig())
	case "sqlite":
		dsn := cfg.DBDSN
		if dsn == "" {
			dsn = cfg.DBName + ".db"
		}
		db, err = OpenSQLite(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.DBDriver != "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	slog.Info("database ready", "driver", cfg.DBDriver)
	return db, nil
}

// OpenSQLite opens a SQLite database with a single connection. SQLite
// serializes writers anyway; one connection also keeps in-memory
// databases alive for the life of the pool.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// AutoMigrate creates or updates every table.
func AutoMigrate(db *gorm.DB) error {
	for _, m := range Models {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("migrate %T: %w", m, err)
		}
	}
	return nil
}

func mysqlDSN(cfg config.Config, dbName string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.DBUser,
		cfg.DBPass,
		cfg.DBHost,
		cfg.DBPort,
		dbName,
	)
}

func openMySQL(cfg config.Config) (*gorm.DB, error) {
	dsn := cfg.DBDSN
	if dsn == "" {
		dsn = mysqlDSN(cfg, cfg.DBName)
	}
	db, err := gorm.Open(gormMysql.Open(dsn), gormConfig())
	if err != nil && cfg.DBDSN == "" && isUnknownDatabaseError(err) {
		if createErr := ensureMySQLDatabase(cfg); createErr != nil {
			return nil, fmt.Errorf("create mysql database: %w", createErr)
		}
		db, err = gorm.Open(gormMysql.Open(dsn), gormConfig())
	}
	return db, err
}

func isUnknownDatabaseError(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1049
	}
	return strings.Contains(strings.ToLower(err.Error()), "unknown database")
}

func ensureMySQLDatabase(cfg config.Config) error {
	dbName := strings.TrimSpace(cfg.DBName)
	if dbName == "" {
		return errors.New("empty database name")
	}

	serverDB, err := sql.Open("mysql", mysqlDSN(cfg, ""))
	if err != nil {
		return err
	}
	defer serverDB.Close()

	if err = serverDB.Ping(); err != nil {
		return err
	}

	_, err = serverDB.Exec(
		"CREATE DATABASE IF NOT EXISTS " + quoteMySQLIdentifier(dbName) + " CHARACTER SET utf8mb4 COLLATE utf8mb4_general_ci",
	)
	return err
}

func quoteMySQLIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), isDuplicateMessage(err):
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	default:
		return err
	}
}

func isDuplicateMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}

// Store is the gorm implementation of every repository interface the
// services consume.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open gorm handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Ping checks the database connection.
func (s *Store) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Page is an offset/limit window; a zero Limit means no limit.
type Page struct {
	Offset int
	Limit  int
}

func (p Page) apply(q *gorm.DB) *gorm.DB {
	if p.Offset > 0 {
		q = q.Offset(p.Offset)
	}
	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}
	return q
}
