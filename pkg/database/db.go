package database

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	// Pure-Go driver registered as "sqlite", selected with SQLiteDriver = "modernc".
	_ "modernc.org/sqlite"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
)

// SchemaVersion is the version of the schema Migrate produces.
const SchemaVersion = 2

// Config selects and tunes the database connection.
type Config struct {
	// DSN is a postgres connection string. When empty a sqlite file at DataPath is used.
	DSN      string
	DataPath string
	// SQLiteDriver is "mattn" (cgo, default) or "modernc" (pure Go).
	SQLiteDriver string
	// Debug logs every statement.
	Debug bool
}

// APIKey represents the api_keys table
type APIKey struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Key        string     `gorm:"unique;not null" json:"-"`
	KeyPreview string     `json:"key_preview"`
	Name       string     `gorm:"not null" json:"name"`
	RateLimit  int        `gorm:"default:10000" json:"rate_limit"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsed   *time.Time `json:"last_used"`
}

// APIUsage represents the api_usage table
type APIUsage struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	KeyID            uint   `gorm:"uniqueIndex:idx_key_date;not null" json:"key_id"`
	Date             string `gorm:"uniqueIndex:idx_key_date;not null" json:"date"`
	RequestCount     int    `gorm:"default:0" json:"request_count"`
	TotalSlots       int    `gorm:"default:0" json:"total_slots"`
	TotalActors      int    `gorm:"default:0" json:"total_actors"`
	TotalAssignments int    `gorm:"default:0" json:"total_assignments"`
}

// MasterUser represents the master_users table
type MasterUser struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"unique;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// SchemaMigration records which schema version a database is at.
type SchemaMigration struct {
	Version   int `gorm:"primaryKey;autoIncrement:false"`
	AppliedAt time.Time
}

// InitDB opens the database described by cfg and migrates the schema
func InitDB(cfg Config) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
	if cfg.Debug {
		gcfg.Logger = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	switch {
	case cfg.DSN != "":
		dialector = postgres.New(postgres.Config{
			DSN:                  cfg.DSN,
			PreferSimpleProtocol: true,
		})
		gcfg.PrepareStmt = false
	default:
		path := cfg.DataPath
		if path == "" {
			path = "assignments.db"
		}
		if cfg.SQLiteDriver == "modernc" {
			dialector = sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: path})
		} else {
			dialector = sqlite.Open(path)
		}
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate brings the schema to SchemaVersion. The engine only ever sees the
// current version through Repository.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&APIKey{}, &APIUsage{}, &MasterUser{},
		&ActorRecord{}, &ActorLocationRecord{}, &AvailabilityRecord{},
		&DemandSlotRecord{}, &AssignmentRecord{}, &CancelledAssignmentRecord{},
		&ApprovalAuditRecord{}, &SchemaMigration{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	if err := archiveCancelled(db); err != nil {
		return err
	}

	err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&SchemaMigration{Version: SchemaVersion, AppliedAt: time.Now().UTC()}).Error
	if err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}
	slog.Debug("database schema ready", "version", SchemaVersion)
	return nil
}

// archiveCancelled moves rows cancelled under schema version 1 out of the
// assignments table.
func archiveCancelled(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var records []AssignmentRecord
		if err := tx.Where("status = ?", string(models.StatusCancelled)).Find(&records).Error; err != nil {
			return fmt.Errorf("finding cancelled assignments: %w", err)
		}
		now := time.Now().UTC()
		for _, rec := range records {
			if err := cancelRecord(tx, rec, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// CurrentVersion returns the highest applied schema version.
func CurrentVersion(db *gorm.DB) (int, error) {
	var version int
	err := db.Model(&SchemaMigration{}).Select("COALESCE(MAX(version), 0)").Scan(&version).Error
	return version, err
}
