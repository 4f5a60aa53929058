// Package storage provides the persistent catalog backends behind the
// wavemark.Store interface: a SQLite database via gorm (pure-Go driver) and
// a Badger key-value store. Both preserve per-hash insertion order so a
// restored index votes identically to the original.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/audionautics/wavemark/pkg/fingerprint"
	"github.com/audionautics/wavemark/pkg/wavemark"
)

type trackRow struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Title     string
	Artist    string
	Album     string
	Duration  float64
	CreatedAt time.Time
}

func (trackRow) TableName() string { return "tracks" }

// entryRow stores one hash occurrence. The auto-increment ID carries the
// insertion order; Hash holds the packed 64-bit key.
type entryRow struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Hash       uint64 `gorm:"index:idx_entries_hash"`
	TrackID    string `gorm:"type:varchar(36);index:idx_entries_track"`
	AnchorTime float64
}

func (entryRow) TableName() string { return "entries" }

// SQLiteStore implements wavemark.Store on a SQLite file.
type SQLiteStore struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

var _ wavemark.Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at path and migrates the
// schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	if err := db.AutoMigrate(&trackRow{}, &entryRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &SQLiteStore{db: db, sqlDB: sqlDB}, nil
}

func (s *SQLiteStore) RegisterTrack(ctx context.Context, t wavemark.Track) error {
	row := trackRow{
		ID:        t.ID,
		Title:     t.Title,
		Artist:    t.Artist,
		Album:     t.Album,
		Duration:  t.Duration,
		CreatedAt: t.CreatedAt,
	}

	var existing trackRow
	err := s.db.WithContext(ctx).First(&existing, "id = ?", t.ID).Error
	switch {
	case err == nil:
		if err := s.db.WithContext(ctx).Model(&existing).Updates(map[string]any{
			"title":    row.Title,
			"artist":   row.Artist,
			"album":    row.Album,
			"duration": row.Duration,
		}).Error; err != nil {
			return fmt.Errorf("updating track: %w", err)
		}
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return fmt.Errorf("creating track: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("querying track: %w", err)
	}
}

func (s *SQLiteStore) SaveEntries(ctx context.Context, trackID string, entries []fingerprint.HashEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]entryRow, len(entries))
	for i, e := range entries {
		rows[i] = entryRow{
			Hash:       e.Hash.Pack(),
			TrackID:    trackID,
			AnchorTime: e.AnchorTime,
		}
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, 500).Error; err != nil {
		return fmt.Errorf("batch insert entries: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ForEachEntry(ctx context.Context, fn func(fingerprint.Hash, fingerprint.Occurrence) error) error {
	var rows []entryRow
	res := s.db.WithContext(ctx).FindInBatches(&rows, 1000, func(tx *gorm.DB, batch int) error {
		for _, r := range rows {
			err := fn(fingerprint.UnpackHash(r.Hash), fingerprint.Occurrence{
				TrackID:    r.TrackID,
				AnchorTime: r.AnchorTime,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if res.Error != nil {
		return fmt.Errorf("scanning entries: %w", res.Error)
	}
	return nil
}

func (s *SQLiteStore) GetTrack(ctx context.Context, id string) (wavemark.Track, error) {
	var row trackRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wavemark.Track{}, fmt.Errorf("track %s: %w", id, wavemark.ErrTrackNotFound)
	}
	if err != nil {
		return wavemark.Track{}, fmt.Errorf("querying track: %w", err)
	}
	return rowToTrack(row), nil
}

func (s *SQLiteStore) ListTracks(ctx context.Context) ([]wavemark.Track, error) {
	var rows []trackRow
	if err := s.db.WithContext(ctx).Order("created_at asc, id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing tracks: %w", err)
	}
	tracks := make([]wavemark.Track, len(rows))
	for i, row := range rows {
		tracks[i] = rowToTrack(row)
	}
	return tracks, nil
}

func (s *SQLiteStore) DeleteTrack(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&trackRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("track %s: %w", id, wavemark.ErrTrackNotFound)
		}
		return tx.Where("track_id = ?", id).Delete(&entryRow{}).Error
	})
}

func (s *SQLiteStore) Stats(ctx context.Context) (wavemark.StoreStats, error) {
	var tracks, entries int64
	if err := s.db.WithContext(ctx).Model(&trackRow{}).Count(&tracks).Error; err != nil {
		return wavemark.StoreStats{}, fmt.Errorf("counting tracks: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&entryRow{}).Count(&entries).Error; err != nil {
		return wavemark.StoreStats{}, fmt.Errorf("counting entries: %w", err)
	}
	return wavemark.StoreStats{Tracks: int(tracks), Entries: int(entries)}, nil
}

func (s *SQLiteStore) Close() error {
	return s.sqlDB.Close()
}

func rowToTrack(row trackRow) wavemark.Track {
	return wavemark.Track{
		ID:        row.ID,
		Title:     row.Title,
		Artist:    row.Artist,
		Album:     row.Album,
		Duration:  row.Duration,
		CreatedAt: row.CreatedAt,
	}
}
