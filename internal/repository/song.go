package repository

import (
	"context"

	"music-locker/internal/domain"
)

// SongRepository exposes persistence operations for stored songs.
type SongRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, song *domain.Song) error
	Get(ctx context.Context, id string) (*domain.Song, error)
	ListByOwner(ctx context.Context, userID string) ([]domain.Song, error)
	Delete(ctx context.Context, id string) error
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
