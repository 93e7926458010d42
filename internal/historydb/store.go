// Package historydb records launches and served directories.
package historydb

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"prompter/cli/internal/config"
	dbmodel "prompter/cli/internal/db"
)

const DefaultKeep = 20

type Entry struct {
	Path          string
	FirstAccessed time.Time
	LastAccessed  time.Time
	AccessCount   int
}

type Run struct {
	ID        string
	Runtime   string
	Port      int
	Directory string
	Debug     bool
	StartedAt time.Time
	// EndedAt is zero while the run is in progress or was never finished.
	EndedAt  time.Time
	ExitCode int
	Outcome  string
}

type Store struct {
	db   *gorm.DB
	keep int
	now  func() time.Time
}

// NewStore keeps at most keep runs; older ones are pruned as new runs
// finish. Caller owns db and must not close it while the store is in use.
func NewStore(db *gorm.DB, keep int) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &Store{db: db, keep: keep, now: time.Now}, nil
}

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return errors.New("history store is not initialized")
	}
	return nil
}

// Started records the beginning of a launch and returns its run id.
func (s *Store) Started(cfg config.LaunchConfig) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	now := s.now().UTC().Unix()
	row := dbmodel.LaunchRun{
		RunID:     uuid.NewString(),
		Runtime:   cfg.Runtime,
		Port:      cfg.Port,
		Directory: cfg.Directory,
		Debug:     cfg.Debug,
		StartedAt: now,
		ExitCode:  -1,
		Outcome:   "running",
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if strings.TrimSpace(cfg.Directory) == "" {
			return nil
		}
		return upsertDirectory(tx, cfg.Directory, now)
	})
	if err != nil {
		return "", err
	}
	return row.RunID, nil
}

// Finished stores the exit of run id and prunes old runs.
func (s *Store) Finished(id string, exitCode int, outcome string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return errors.New("run id is required")
	}
	res := s.db.Model(&dbmodel.LaunchRun{}).Where("run_id = ?", id).Updates(map[string]any{
		"ended_at":  s.now().UTC().Unix(),
		"exit_code": exitCode,
		"outcome":   outcome,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return s.prune()
}

func (s *Store) prune() error {
	var keepIDs []string
	if err := s.db.Model(&dbmodel.LaunchRun{}).
		Order("started_at DESC").Order("run_id DESC").
		Limit(s.keep).
		Pluck("run_id", &keepIDs).Error; err != nil {
		return err
	}
	if len(keepIDs) < s.keep {
		return nil
	}
	return s.db.Where("run_id NOT IN ?", keepIDs).Delete(&dbmodel.LaunchRun{}).Error
}

func (s *Store) Runs(limit int) ([]Run, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.keep
	}
	rows := make([]dbmodel.LaunchRun, 0, limit)
	if err := s.db.Order("started_at DESC").Order("run_id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	runs := make([]Run, 0, len(rows))
	for _, row := range rows {
		r := Run{
			ID:        row.RunID,
			Runtime:   row.Runtime,
			Port:      row.Port,
			Directory: row.Directory,
			Debug:     row.Debug,
			StartedAt: time.Unix(row.StartedAt, 0).UTC(),
			ExitCode:  row.ExitCode,
			Outcome:   row.Outcome,
		}
		if row.EndedAt > 0 {
			r.EndedAt = time.Unix(row.EndedAt, 0).UTC()
		}
		runs = append(runs, r)
	}
	return runs, nil
}

func upsertDirectory(tx *gorm.DB, path string, now int64) error {
	row := dbmodel.DirHistory{
		Path:            path,
		FirstAccessedAt: now,
		LastAccessedAt:  now,
		AccessCount:     1,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "path"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_accessed_at": now,
			"access_count":     gorm.Expr("dir_history.access_count + 1"),
		}),
	}).Create(&row).Error
}

// Directories lists served directories, most recent first.
func (s *Store) Directories(limit int) ([]Entry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.keep
	}
	rows := make([]dbmodel.DirHistory, 0, limit)
	if err := s.db.Order("last_accessed_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Entry{
			Path:          row.Path,
			FirstAccessed: time.Unix(row.FirstAccessedAt, 0).UTC(),
			LastAccessed:  time.Unix(row.LastAccessedAt, 0).UTC(),
			AccessCount:   row.AccessCount,
		})
	}
	return entries, nil
}

func (s *Store) Clear() error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&dbmodel.LaunchRun{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&dbmodel.DirHistory{}).Error
	})
}
