package db

import (
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Schema management modes.
const (
	SchemaUpdate = "update"
	SchemaCreate = "create"
	SchemaNone   = "none"
)

// Options configures the connection pool and query logging.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SlowThreshold   time.Duration
	Logger          *zap.Logger
}

// Open returns a connected GORM DB instance for the given driver.
func Open(driver, dsn string, opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverMySQL:
		mysqlDSN, err := foundRowsDSN(dsn)
		if err != nil {
			return nil, err
		}
		dialector = mysql.Open(mysqlDSN)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newLogger(opts)})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access %s pool: %w", driver, err)
	}
	// SQLite in-memory databases live inside a single connection.
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	return db, nil
}

// foundRowsDSN makes MySQL report matched rather than changed rows, so an
// UPDATE that rewrites identical values still counts the row it matched.
func foundRowsDSN(dsn string) (string, error) {
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// PrepareSchema applies the schema management mode to models.
func PrepareSchema(db *gorm.DB, mode string, models ...any) error {
	switch mode {
	case SchemaNone:
		return nil
	case SchemaCreate:
		if err := db.Migrator().DropTable(models...); err != nil {
			return fmt.Errorf("drop tables: %w", err)
		}
	case SchemaUpdate:
	default:
		return fmt.Errorf("unsupported schema mode %q", mode)
	}

	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newLogger(opts Options) logger.Interface {
	if opts.Logger == nil {
		return logger.Discard
	}
	slow := opts.SlowThreshold
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}
	return logger.New(zap.NewStdLog(opts.Logger.Named("gorm")), logger.Config{
		SlowThreshold:             slow,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}
