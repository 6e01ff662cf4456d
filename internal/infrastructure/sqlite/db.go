// Package sqlite is the embedded, gorm-backed store used for local runs
// and tests.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type candidateRecord struct {
	ID             string    `gorm:"primaryKey;size:36"`
	Name           string    `gorm:"size:100;not null"`
	Email          string    `gorm:"size:254;not null;uniqueIndex:idx_candidates_email"`
	Phone          string    `gorm:"size:32;not null"`
	JobTitle       string    `gorm:"size:100;not null"`
	NameLC         string    `gorm:"column:name_lc;size:100;not null;default:''"`
	EmailLC        string    `gorm:"column:email_lc;size:254;not null;default:''"`
	JobTitleLC     string    `gorm:"column:job_title_lc;size:100;not null;default:''"`
	Status         string    `gorm:"size:16;not null;index"`
	Notes          string    `gorm:"size:1000;not null;default:''"`
	ReferredBy     *string   `gorm:"size:128;index"`
	ResumeKey      *string   `gorm:"size:255"`
	ResumeFilename *string   `gorm:"size:255"`
	ResumeMimeType *string   `gorm:"size:127"`
	ResumeSize     *int64
	CreatedAt      time.Time `gorm:"index:idx_candidates_created"`
	UpdatedAt      time.Time
}

func (candidateRecord) TableName() string { return "candidates" }

type userRecord struct {
	ID        string `gorm:"primaryKey;size:128"`
	Email     string `gorm:"size:254;not null;default:''"`
	Name      string `gorm:"size:100;not null;default:''"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (userRecord) TableName() string { return "users" }

// Open opens (or creates) the database at path and migrates the schema.
// Use ":memory:" only with a single connection.
func Open(path string) (*gorm.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	dsn := path + "?_busy_timeout=5000&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// SQLite allows one writer; a single connection serializes access and
	// keeps the unique index authoritative under concurrent creates.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&userRecord{}, &candidateRecord{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	if err := backfillFolded(db); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return db, nil
}

// backfillFolded fills the lower-cased search columns of rows written
// before those columns existed. SQLite's LOWER only folds ASCII, so the
// folding happens in Go.
func backfillFolded(db *gorm.DB) error {
	var recs []candidateRecord
	if err := db.Where("name_lc = ''").Find(&recs).Error; err != nil {
		return err
	}
	for i := range recs {
		rec := &recs[i]
		err := db.Model(&candidateRecord{}).Where("id = ?", rec.ID).UpdateColumns(map[string]any{
			"name_lc":      fold(rec.Name),
			"email_lc":     fold(rec.Email),
			"job_title_lc": fold(rec.JobTitle),
		}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// Pinger adapts a gorm handle to the health checker.
type Pinger struct {
	db *gorm.DB
}

func NewPinger(db *gorm.DB) *Pinger {
	return &Pinger{db: db}
}

func (p *Pinger) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
