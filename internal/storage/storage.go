package storage

import (
	"context"
)

// Mirror replicates stored assets to remote object storage.
type Mirror interface {
	Put(ctx context.Context, name, localPath string) (string, error)
	Delete(ctx context.Context, name string) error
}

// MirrorOptions conveys the remote destination.
type MirrorOptions struct {
	Bucket    string
	KeyPrefix string
}
