package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"crm-clients/monitoring"
)

var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrDuplicateEmail     = errors.New("email already exists")
	ErrMissingID          = errors.New("client id is required")
)

const (
	DatabaseName  = "CRM_Database_V2"
	SchemaVersion = 1

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Repository persists client records. Every call runs in its own transaction.
type Repository interface {
	Insert(ctx context.Context, client Client) (uint, error)
	Update(ctx context.Context, client Client) error
	Delete(ctx context.Context, id uint) error
	ListAll(ctx context.Context) ([]Client, error)
	Close() error
}

type Options struct {
	Driver string
	Path   string // sqlite file
	DSN    string // postgres
}

type schemaInfo struct {
	Name    string `gorm:"primaryKey;size:64"`
	Version int    `gorm:"not null"`
}

func (schemaInfo) TableName() string { return "schema_info" }

type GormRepository struct {
	db *gorm.DB
}

// Open connects to the configured backend and creates the schema on first use.
// Any failure is reported as ErrStorageUnavailable.
func Open(ctx context.Context, opts Options) (*GormRepository, error) {
	dialector, err := dialectorFor(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to database: %w", ErrStorageUnavailable, err)
	}

	if opts.Driver == DriverSQLite || opts.Driver == "" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
		// one writer at a time keeps sqlite from returning SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	}

	repo := &GormRepository{db: db}
	if err := repo.migrate(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("%w: failed to migrate schema: %w", ErrStorageUnavailable, err)
	}
	return repo, nil
}

// NewGormRepository wraps an already migrated connection.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func dialectorFor(opts Options) (gorm.Dialector, error) {
	switch opts.Driver {
	case DriverSQLite, "":
		if opts.Path == "" {
			return nil, errors.New("sqlite path is empty")
		}
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return sqlite.Open(opts.Path + "?_journal_mode=WAL&_busy_timeout=5000"), nil
	case DriverPostgres:
		if opts.DSN == "" {
			return nil, errors.New("postgres dsn is empty")
		}
		return postgres.Open(opts.DSN), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}

func (r *GormRepository) migrate(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	if err := db.AutoMigrate(&schemaInfo{}, &clientRow{}); err != nil {
		return err
	}
	return db.Save(&schemaInfo{Name: DatabaseName, Version: SchemaVersion}).Error
}

// StoredSchemaVersion reports the version recorded when the store was opened.
func (r *GormRepository) StoredSchemaVersion(ctx context.Context) (int, error) {
	var info schemaInfo
	if err := r.db.WithContext(ctx).First(&info, "name = ?", DatabaseName).Error; err != nil {
		return 0, err
	}
	return info.Version, nil
}

func (r *GormRepository) Insert(ctx context.Context, client Client) (uint, error) {
	row := toRow(client)
	row.ID = 0

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
	observe("insert", err)
	if err != nil {
		return 0, translateError(err)
	}
	return row.ID, nil
}

// Update overwrites the whole record. A missing id is created, matching put semantics.
func (r *GormRepository) Update(ctx context.Context, client Client) error {
	if client.ID == 0 {
		return ErrMissingID
	}
	row := toRow(client)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Save(&row).Error
	})
	observe("update", err)
	return translateError(err)
}

// Delete is a no-op for ids that do not exist.
func (r *GormRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Delete(&clientRow{}, id).Error
	})
	observe("delete", err)
	return err
}

func (r *GormRepository) ListAll(ctx context.Context) ([]Client, error) {
	var rows []clientRow
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Order("id").Find(&rows).Error
	})
	observe("list", err)
	if err != nil {
		return nil, err
	}

	clients := make([]Client, 0, len(rows))
	for _, row := range rows {
		clients = append(clients, fromRow(row))
	}
	return clients, nil
}

func (r *GormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return fmt.Errorf("%w: %w", ErrDuplicateEmail, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	monitoring.StoreOperations.WithLabelValues(op, result).Inc()
}
