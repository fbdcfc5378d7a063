package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/wroldwiedbwe/hprofkit/pkg/config"
	apperrors "github.com/wroldwiedbwe/hprofkit/pkg/errors"
	"github.com/wroldwiedbwe/hprofkit/pkg/telemetry"
)

// DigestFile is the gorm model backing one processed-file row, following the
// teacher's repository models.go column-tagging convention.
type DigestFile struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Path      string    `gorm:"column:path;type:varchar(1024);uniqueIndex"`
	IDSize    int       `gorm:"column:id_size"`
	StartTime time.Time `gorm:"column:start_time"`
	DumpCount int       `gorm:"column:dump_count"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for DigestFile.
func (DigestFile) TableName() string {
	return "digest_file"
}

// DigestClassRow is the gorm model backing one per-class rollup row.
type DigestClassRow struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement"`
	FileID        int64  `gorm:"column:file_id;index"`
	ClassID       uint64 `gorm:"column:class_id"`
	Name          string `gorm:"column:name;type:varchar(512);index"`
	Category      string `gorm:"column:category;type:varchar(32)"`
	InstanceCount int64  `gorm:"column:instance_count"`
	ShallowBytes  int64  `gorm:"column:shallow_bytes"`
}

// TableName returns the table name for DigestClassRow.
func (DigestClassRow) TableName() string {
	return "digest_class"
}

// Store persists Digests to a gorm-backed database, exactly the teacher's
// repository.NewGormDB connection-factory pattern (internal/repository/factory.go)
// extended with a sqlite default.
type Store struct {
	db *gorm.DB
}

// NewStore opens a gorm connection per cfg.Type ("sqlite", "postgres"/
// "postgresql", or "mysql"), tunes its connection pool, wires the OTel gorm
// plugin when telemetry is enabled, and auto-migrates the digest tables.
func NewStore(cfg *config.DatabaseConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite", "":
		path := cfg.Database
		if path == "" {
			path = "hprofkit.db"
		}
		dialector = sqlite.Open(path)
	case "postgres", "postgresql":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database)
		dialector = postgres.Open(dsn)
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=Local",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
		dialector = mysql.Open(dsn)
	default:
		return nil, apperrors.Wrap(apperrors.CodeConfigError, fmt.Sprintf("unsupported database type: %s", cfg.Type), nil)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to open database", err)
	}

	if telemetry.Enabled() {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to install tracing plugin", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to get underlying sql.DB", err)
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns / 2)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to ping database", err)
	}

	if err := db.AutoMigrate(&DigestFile{}, &DigestClassRow{}); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to migrate digest tables", err)
	}

	return &Store{db: db}, nil
}

// Persist writes d as one DigestFile row plus one DigestClassRow per class,
// atomically: either the whole digest lands, or none of it does.
func (s *Store) Persist(ctx context.Context, d *Digest) (int64, error) {
	var fileID int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := DigestFile{
			Path:      d.File.Path,
			IDSize:    d.File.IDSize,
			StartTime: d.File.StartTime,
			DumpCount: d.File.DumpCount,
		}
		if err := tx.Where(DigestFile{Path: row.Path}).
			Assign(row).
			FirstOrCreate(&row).Error; err != nil {
			return fmt.Errorf("failed to persist digest file: %w", err)
		}
		fileID = row.ID

		if err := tx.Where("file_id = ?", fileID).Delete(&DigestClassRow{}).Error; err != nil {
			return fmt.Errorf("failed to clear prior class rows: %w", err)
		}

		classRows := make([]DigestClassRow, 0, len(d.Classes))
		for _, c := range d.Classes {
			classRows = append(classRows, DigestClassRow{
				FileID:        fileID,
				ClassID:       c.ClassID,
				Name:          c.Name,
				Category:      c.Category,
				InstanceCount: c.InstanceCount,
				ShallowBytes:  c.ShallowBytes,
			})
		}
		if len(classRows) > 0 {
			if err := tx.CreateInBatches(classRows, 200).Error; err != nil {
				return fmt.Errorf("failed to persist digest classes: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to persist digest", err)
	}
	return fileID, nil
}

// Classes returns every DigestClassRow recorded for the file at path, or
// gorm.ErrRecordNotFound-wrapped if no such file has been archived.
func (s *Store) Classes(ctx context.Context, path string) ([]DigestClassRow, error) {
	var file DigestFile
	if err := s.db.WithContext(ctx).Where("path = ?", path).First(&file).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("no digest for %q", path), err)
	}
	var rows []DigestClassRow
	if err := s.db.WithContext(ctx).Where("file_id = ?", file.ID).Order("shallow_bytes DESC").Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to list digest classes", err)
	}
	return rows, nil
}

// HealthCheck verifies the underlying connection is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to get underlying sql.DB", err)
	}
	return sqlDB.PingContext(ctx)
}

// DB exposes the underlying *sql.DB, e.g. for sqlmock-based tests to wrap.
func (s *Store) DB() (*sql.DB, error) {
	return s.db.DB()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
