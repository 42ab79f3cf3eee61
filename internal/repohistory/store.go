package repohistory

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	dbmodel "github.com/takecian/vibe-flow/internal/db"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is a repository root the operator has selected before.
type Entry struct {
	Path      string    `json:"path"`
	FirstUsed time.Time `json:"first_used"`
	LastUsed  time.Time `json:"last_used"`
	UseCount  int       `json:"use_count"`
}

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore uses the shared DB. Caller must not close the db through the store.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Record(path string) error {
	p := strings.TrimSpace(path)
	if p == "" {
		return errors.New("path is required")
	}
	p = filepath.Clean(p)
	now := s.now().UTC().Unix()
	row := dbmodel.RepoHistory{
		Path:      p,
		FirstUsed: now,
		LastUsed:  now,
		UseCount:  1,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "path"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_used_at": now,
			"use_count":    gorm.Expr("repo_history.use_count + 1"),
		}),
	}).Create(&row).Error
}

// List returns up to limit entries, most recently used first.
func (s *Store) List(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows := make([]dbmodel.RepoHistory, 0, limit)
	if err := s.db.Order("last_used_at DESC").Order("path ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Entry{
			Path:      row.Path,
			FirstUsed: time.Unix(row.FirstUsed, 0).UTC(),
			LastUsed:  time.Unix(row.LastUsed, 0).UTC(),
			UseCount:  row.UseCount,
		})
	}
	return entries, nil
}

func (s *Store) Clear() error {
	return s.db.Where("1 = 1").Delete(&dbmodel.RepoHistory{}).Error
}
