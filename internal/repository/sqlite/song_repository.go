package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"music-locker/internal/domain"
	"music-locker/internal/repository"
)

const (
	createSongsTable = `
CREATE TABLE IF NOT EXISTS songs (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	artist TEXT NULL,
	album TEXT NULL,
	duration INTEGER NULL,
	cover_art TEXT NULL,
	file_name TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
`
	createSongsOwnerIndex = `CREATE INDEX IF NOT EXISTS idx_songs_user_id ON songs(user_id);`

	songColumns = `id, title, artist, album, duration, cover_art, file_name, user_id, created_at`
)

type SongRepository struct {
	db *sql.DB
}

func NewSongRepository(db *sql.DB) repository.SongRepository {
	return &SongRepository{db: db}
}

func (r *SongRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createSongsTable); err != nil {
		return fmt.Errorf("create songs table: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, createSongsOwnerIndex); err != nil {
		return fmt.Errorf("create songs owner index: %w", err)
	}
	return nil
}

func (r *SongRepository) Create(ctx context.Context, song *domain.Song) error {
	if song.CreatedAt.IsZero() {
		song.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO songs (`+songColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		song.ID,
		song.Title,
		nullString(song.Artist),
		nullString(song.Album),
		nullInt(song.Duration),
		nullString(song.CoverArt),
		song.FileName,
		song.UserID,
		song.CreatedAt,
	)
	if err != nil {
		if field, ok := uniqueViolation(err); ok {
			return &repository.DuplicateKeyError{Field: field}
		}
		return fmt.Errorf("insert song: %w", err)
	}
	return nil
}

func (r *SongRepository) Get(ctx context.Context, id string) (*domain.Song, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+songColumns+`
FROM songs
WHERE id=?`,
		id,
	)
	return scanSong(row)
}

func (r *SongRepository) ListByOwner(ctx context.Context, userID string) ([]domain.Song, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+songColumns+`
FROM songs
WHERE user_id=?
ORDER BY created_at DESC, rowid DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query songs: %w", err)
	}
	defer rows.Close()

	songs := []domain.Song{}
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, err
		}
		songs = append(songs, *song)
	}

	return songs, rows.Err()
}

func (r *SongRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM songs WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete song: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("song delete rows affected: %w", err)
	}
	if aff == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanSong(scanner interface {
	Scan(dest ...any) error
}) (*domain.Song, error) {
	var (
		song     domain.Song
		artist   sql.NullString
		album    sql.NullString
		duration sql.NullInt64
		cover    sql.NullString
	)

	if err := scanner.Scan(
		&song.ID,
		&song.Title,
		&artist,
		&album,
		&duration,
		&cover,
		&song.FileName,
		&song.UserID,
		&song.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan song: %w", err)
	}

	if artist.Valid {
		song.Artist = &artist.String
	}
	if album.Valid {
		song.Album = &album.String
	}
	if duration.Valid {
		d := int(duration.Int64)
		song.Duration = &d
	}
	if cover.Valid {
		song.CoverArt = &cover.String
	}
	return &song, nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
