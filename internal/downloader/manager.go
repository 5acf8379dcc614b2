package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"music-locker/internal/domain"
	"music-locker/internal/metadata"
	"music-locker/internal/storage"
)

// Stage names a step of an acquisition.
type Stage string

const (
	StageResolvingMetadata Stage = "resolving_metadata"
	StageLocatingSource    Stage = "locating_source"
	StageDownloading       Stage = "downloading"
	StagePersisting        Stage = "persisting"
	StageDone              Stage = "done"
)

var (
	ErrMetadataUnavailable = errors.New("metadata unavailable")
	ErrSourceNotFound      = errors.New("source not found")
	ErrDownloadFailed      = errors.New("download failed")
	ErrPersistFailed       = errors.New("persist failed")

	// ErrUnsupportedUpload rejects uploads outside the extension allow-list.
	ErrUnsupportedUpload = errors.New("unsupported file type")
	// ErrEmptyUpload rejects uploads without content.
	ErrEmptyUpload = errors.New("uploaded file is empty")
)

// AcquisitionError reports which stage failed and why. RollbackErr is set
// when cleaning up after a failed persist also failed.
type AcquisitionError struct {
	Stage       Stage
	Kind        error
	Err         error
	RollbackErr error
}

func (e *AcquisitionError) Error() string {
	msg := fmt.Sprintf("%s during %s: %v", e.Kind, e.Stage, e.Err)
	if e.RollbackErr != nil {
		msg += fmt.Sprintf(" (rollback: %v)", e.RollbackErr)
	}
	return msg
}

func (e *AcquisitionError) Unwrap() []error {
	errs := []error{e.Kind, e.Err}
	if e.RollbackErr != nil {
		errs = append(errs, e.RollbackErr)
	}
	return errs
}

// SongCreator records a stored song.
type SongCreator interface {
	Create(ctx context.Context, song *domain.Song) error
}

type Config struct {
	MaxConcurrent     int
	AllowedExtensions []string
	// Timeout bounds a whole acquisition, which keeps running after the
	// requesting client disconnects.
	Timeout time.Duration
	// Mirror is optional.
	Mirror storage.Mirror
	Logger *logrus.Logger
	Now    func() time.Time
}

// Manager runs acquisitions and direct uploads into the asset directory.
type Manager struct {
	cfg      Config
	resolver metadata.Resolver
	locator  Locator
	fetcher  Fetcher
	files    *storage.Local
	songs    SongCreator

	sem chan struct{}
}

// NewManager wires the acquisition pipeline. resolver may be nil when no
// metadata provider is configured; external imports then fail at the first stage.
func NewManager(cfg Config, resolver metadata.Resolver, locator Locator, fetcher Fetcher, files *storage.Local, songs SongCreator) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = []string{"mp3", "wav", "ogg"}
	}
	for i, ext := range cfg.AllowedExtensions {
		cfg.AllowedExtensions[i] = strings.ToLower(strings.TrimPrefix(ext, "."))
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		cfg:      cfg,
		resolver: resolver,
		locator:  locator,
		fetcher:  fetcher,
		files:    files,
		songs:    songs,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Acquire imports the track behind reference for owner. Once started it runs
// to completion or failure even if ctx is cancelled.
func (m *Manager) Acquire(ctx context.Context, reference string, owner *domain.User) (*domain.Song, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.Timeout)
	defer cancel()

	logger := m.cfg.Logger.WithFields(logrus.Fields{"user_id": owner.ID, "reference": reference})

	logger.WithField("stage", StageResolvingMetadata).Info("acquisition started")
	meta, err := m.resolve(ctx, reference)
	if err != nil {
		return nil, m.fail(logger, &AcquisitionError{Stage: StageResolvingMetadata, Kind: ErrMetadataUnavailable, Err: err})
	}

	query := fmt.Sprintf("%s %s official audio", meta.Title, meta.Artist)
	logger.WithFields(logrus.Fields{"stage": StageLocatingSource, "query": query}).Info("locating source")
	source, err := m.locator.Locate(ctx, query)
	if err == nil && strings.TrimSpace(source) == "" {
		err = errNoResults
	}
	if err != nil {
		return nil, m.fail(logger, &AcquisitionError{Stage: StageLocatingSource, Kind: ErrSourceNotFound, Err: err})
	}

	logger.WithFields(logrus.Fields{"stage": StageDownloading, "source": source}).Info("downloading")
	name, err := m.download(ctx, source, meta)
	if err != nil {
		return nil, m.fail(logger, &AcquisitionError{Stage: StageDownloading, Kind: ErrDownloadFailed, Err: err})
	}

	song := &domain.Song{
		ID:        uuid.NewString(),
		Title:     meta.Title,
		Artist:    optional(meta.Artist),
		Album:     optional(meta.Album),
		Duration:  &meta.DurationSeconds,
		CoverArt:  meta.CoverArtURL,
		FileName:  name,
		UserID:    owner.ID,
		CreatedAt: m.cfg.Now().UTC(),
	}

	logger.WithField("stage", StagePersisting).Info("persisting")
	if err := m.persist(ctx, logger, song); err != nil {
		return nil, m.fail(logger, err)
	}

	m.mirror(ctx, logger, song.FileName)
	logger.WithFields(logrus.Fields{"stage": StageDone, "song_id": song.ID}).Info("acquisition finished")
	return song, nil
}

func (m *Manager) resolve(ctx context.Context, reference string) (*domain.TrackMetadata, error) {
	if m.resolver == nil {
		return nil, errors.New("metadata provider not configured")
	}
	return m.resolver.Resolve(ctx, reference)
}

func (m *Manager) download(ctx context.Context, source string, meta *domain.TrackMetadata) (string, error) {
	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for download slot: %w", ctx.Err())
	}

	dir, cleanup, err := m.files.Staging()
	if err != nil {
		return "", err
	}
	defer cleanup()

	path, err := m.fetcher.Fetch(ctx, source, dir)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("downloaded file missing: %w", err)
	}
	if info.Size() == 0 {
		return "", errors.New("downloaded file is empty")
	}

	base := strings.Trim(storage.SafeName(meta.Artist)+"_"+storage.SafeName(meta.Title), "_")
	return m.files.Adopt(path, base, strings.ToLower(filepath.Ext(path)))
}

// persist records song and removes its file again if the record cannot be written.
func (m *Manager) persist(ctx context.Context, logger *logrus.Entry, song *domain.Song) *AcquisitionError {
	err := m.songs.Create(ctx, song)
	if err == nil {
		return nil
	}

	acqErr := &AcquisitionError{Stage: StagePersisting, Kind: ErrPersistFailed, Err: err}
	if rmErr := m.files.Remove(song.FileName); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		logger.WithField("file", song.FileName).Errorf("rollback left orphan file: %v (store error: %v)", rmErr, err)
		acqErr.RollbackErr = rmErr
	}
	return acqErr
}

func (m *Manager) mirror(ctx context.Context, logger *logrus.Entry, name string) {
	if m.cfg.Mirror == nil {
		return
	}
	path, err := m.files.Path(name)
	if err != nil {
		return
	}
	loc, err := m.cfg.Mirror.Put(ctx, name, path)
	if err != nil {
		logger.Warnf("mirror upload failed: %v", err)
		return
	}
	logger.Debugf("mirrored to %s", loc)
}

func (m *Manager) fail(logger *logrus.Entry, err *AcquisitionError) error {
	logger.WithField("stage", err.Stage).Errorf("acquisition failed: %v", err)
	return err
}

// Upload is a file supplied directly by a client.
type Upload struct {
	Filename string
	Title    string
	Body     io.Reader
}

// Ingest stores an uploaded file under a timestamped name and records it for owner.
func (m *Manager) Ingest(ctx context.Context, up Upload, owner *domain.User) (*domain.Song, error) {
	original := filepath.Base(strings.ReplaceAll(strings.TrimSpace(up.Filename), "\\", "/"))
	safe := storage.SecureFilename(original)
	ext := strings.ToLower(filepath.Ext(safe))
	if ext == "" || !slices.Contains(m.cfg.AllowedExtensions, ext[1:]) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedUpload, up.Filename)
	}

	stem := strings.TrimSuffix(safe, filepath.Ext(safe))
	if stem == "" {
		stem = "upload"
	}
	base := m.cfg.Now().Format("20060102_150405") + "_" + stem

	logger := m.cfg.Logger.WithFields(logrus.Fields{"user_id": owner.ID, "upload": original})

	f, name, err := m.files.Create(base, ext)
	if err != nil {
		return nil, fmt.Errorf("reserve upload file: %w", err)
	}
	n, copyErr := io.Copy(f, up.Body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil || n == 0 {
		_ = m.files.Remove(name)
		switch {
		case copyErr != nil:
			return nil, fmt.Errorf("write upload: %w", copyErr)
		case closeErr != nil:
			return nil, fmt.Errorf("close upload: %w", closeErr)
		default:
			return nil, ErrEmptyUpload
		}
	}

	title := strings.TrimSpace(up.Title)
	if title == "" {
		title = original
	}
	song := &domain.Song{
		ID:        uuid.NewString(),
		Title:     title,
		FileName:  name,
		UserID:    owner.ID,
		CreatedAt: m.cfg.Now().UTC(),
	}
	if err := m.persist(ctx, logger, song); err != nil {
		return nil, m.fail(logger, err)
	}

	m.mirror(ctx, logger, name)
	logger.WithFields(logrus.Fields{"song_id": song.ID, "bytes": n}).Info("upload stored")
	return song, nil
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
