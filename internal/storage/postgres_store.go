package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	apperrors "github.com/ch2church/worship-storyboard/internal/errors"
)

// BlobRecord is one stored blob. Directories are implicit in the paths.
type BlobRecord struct {
	Path      string            `gorm:"type:text;primaryKey" json:"path"`
	Parent    string            `gorm:"type:text;not null;index" json:"parent"`
	Data      []byte            `gorm:"type:bytea;not null" json:"-"`
	Version   string            `gorm:"type:text;not null" json:"version"`
	Size      int64             `gorm:"not null" json:"size"`
	Meta      datatypes.JSONMap `gorm:"type:jsonb" json:"meta"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (BlobRecord) TableName() string { return "blobs" }

// PostgresStore keeps blobs in a Postgres table.
type PostgresStore struct {
	DB *gorm.DB
}

// ConnectPostgres opens dsn and migrates the blobs table.
func ConnectPostgres(dsn string) (*PostgresStore, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewPostgresStore(gdb)
}

// NewPostgresStore uses an existing connection.
func NewPostgresStore(gdb *gorm.DB) (*PostgresStore, error) {
	if err := gdb.AutoMigrate(&BlobRecord{}); err != nil {
		return nil, fmt.Errorf("migrate blobs: %w", err)
	}
	if err := gdb.Exec(`create index if not exists idx_blobs_path_prefix on blobs(path text_pattern_ops);`).Error; err != nil {
		return nil, fmt.Errorf("index exec failed: %w", err)
	}
	return &PostgresStore{DB: gdb}, nil
}

// Get reads the blob at p.
func (s *PostgresStore) Get(ctx context.Context, p string) ([]byte, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	var rec BlobRecord
	if err := s.DB.WithContext(ctx).Where("path = ?", clean).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("no blob at %s", clean), err)
		}
		return nil, fmt.Errorf("read %s: %w", clean, err)
	}
	return rec.Data, nil
}

// Put upserts the blob at p and keeps the previous version tag in meta.
func (s *PostgresStore) Put(ctx context.Context, p string, data []byte, message string) (string, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	if clean == "" {
		return "", apperrors.NewValidationError("path", "empty blob path", nil)
	}

	version := VersionTag(data)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		previous := ""
		var cur BlobRecord
		if err := tx.Select("version").Where("path = ?", clean).First(&cur).Error; err == nil {
			previous = cur.Version
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		rec := BlobRecord{
			Path:    clean,
			Parent:  parentOf(clean),
			Data:    data,
			Version: version,
			Size:    int64(len(data)),
			Meta: datatypes.JSONMap{
				"message":          message,
				"previous_version": previous,
			},
			UpdatedAt: time.Now(),
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}},
			DoUpdates: clause.AssignmentColumns([]string{"parent", "data", "version", "size", "meta", "updated_at"}),
		}).Create(&rec).Error
	})
	if err != nil {
		return "", apperrors.NewRemoteWriteError(clean, 0, err)
	}
	return version, nil
}

// List returns the immediate children of p, deriving directories from
// deeper paths.
func (s *PostgresStore) List(ctx context.Context, p string) ([]Entry, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	prefix := ""
	if clean != "" {
		prefix = clean + "/"
	}

	var paths []string
	if err := s.DB.WithContext(ctx).Model(&BlobRecord{}).
		Where("path LIKE ?", escapeLike(prefix)+"%").
		Order("path").
		Pluck("path", &paths).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", clean, err)
	}
	if len(paths) == 0 {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no directory at %s", clean), nil)
	}
	return childEntries(clean, paths), nil
}

// childEntries folds descendant paths of dir into its immediate children.
func childEntries(dir string, paths []string) []Entry {
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}
	seen := make(map[string]bool)
	var entries []Entry
	for _, p := range paths {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok || rest == "" {
			continue
		}
		name, _, nested := strings.Cut(rest, "/")
		if seen[name] {
			continue
		}
		seen[name] = true
		kind := EntryFile
		if nested {
			kind = EntryDir
		}
		entries = append(entries, Entry{Name: name, Path: Join(dir, name), Kind: kind})
	}
	sortEntries(entries)
	return entries
}

func parentOf(p string) string {
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}
	return dir
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
