package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"music-locker/internal/domain"
	"music-locker/internal/repository"
	"music-locker/internal/storage"
)

// SongService is the registry of stored songs. Every lookup is scoped to an
// owner; songs belonging to someone else are reported as not found.
type SongService interface {
	Create(ctx context.Context, song *domain.Song) error
	List(ctx context.Context, ownerID string) ([]domain.Song, error)
	Get(ctx context.Context, ownerID, id string) (*domain.Song, error)
	Delete(ctx context.Context, ownerID, id string) ([]string, error)
}

type songService struct {
	songs  repository.SongRepository
	files  *storage.Local
	mirror storage.Mirror
	logger *logrus.Logger
}

// NewSongService builds the registry. mirror may be nil.
func NewSongService(songs repository.SongRepository, files *storage.Local, mirror storage.Mirror, logger *logrus.Logger) SongService {
	if logger == nil {
		logger = logrus.New()
	}
	return &songService{
		songs:  songs,
		files:  files,
		mirror: mirror,
		logger: logger,
	}
}

func (s *songService) Create(ctx context.Context, song *domain.Song) error {
	if song.ID == "" || song.UserID == "" || song.FileName == "" {
		return errors.New("song id, owner and file name are required")
	}
	return s.songs.Create(ctx, song)
}

func (s *songService) List(ctx context.Context, ownerID string) ([]domain.Song, error) {
	return s.songs.ListByOwner(ctx, ownerID)
}

func (s *songService) Get(ctx context.Context, ownerID, id string) (*domain.Song, error) {
	song, err := s.songs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !song.OwnedBy(ownerID) {
		return nil, repository.ErrNotFound
	}
	return song, nil
}

// Delete removes the record first so a surviving record always has its file.
// File and mirror failures after that are logged and returned as warnings.
func (s *songService) Delete(ctx context.Context, ownerID, id string) ([]string, error) {
	song, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if err := s.songs.Delete(ctx, song.ID); err != nil {
		return nil, err
	}

	logger := s.logger.WithFields(logrus.Fields{"song_id": song.ID, "user_id": ownerID, "file": song.FileName})
	var warnings []string

	if err := s.files.Remove(song.FileName); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Error("stored file was already missing")
			warnings = append(warnings, "stored file was already missing")
		} else {
			logger.Errorf("remove stored file: %v", err)
			warnings = append(warnings, fmt.Sprintf("remove stored file: %v", err))
		}
	}

	if s.mirror != nil {
		mirrorCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := s.mirror.Delete(mirrorCtx, song.FileName); err != nil {
			logger.Warnf("delete mirrored copy: %v", err)
			warnings = append(warnings, fmt.Sprintf("delete mirrored copy: %v", err))
		}
	}

	logger.Info("song deleted")
	return warnings, nil
}
