package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// ErrUnsupportedFormat means the requested container is outside the supported set.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrConversionFailed means the converter failed or produced no usable output.
	ErrConversionFailed = errors.New("conversion failed")
	// ErrSourceMissing means the stored file could not be found.
	ErrSourceMissing = errors.New("source file missing")
)

// Stream is a readable audio file scoped to one response. Close releases any
// temporary artifact and is safe to call more than once.
type Stream struct {
	Path        string
	Format      Format
	ContentType string
	// Converted is false when Path is the stored file itself.
	Converted bool

	once    sync.Once
	release func() error
	err     error
}

func (s *Stream) Close() error {
	s.once.Do(func() {
		if s.release != nil {
			s.err = s.release()
		}
	})
	return s.err
}

type Config struct {
	TempDir   string
	Converter Converter
	Probe     ProbeFunc
	Logger    *logrus.Logger
}

// Gateway serves stored files in a requested container, converting on demand.
type Gateway struct {
	cfg Config
}

func NewGateway(cfg Config) *Gateway {
	if cfg.Converter == nil {
		cfg.Converter = NewFFmpeg("")
	}
	if cfg.Probe == nil {
		cfg.Probe = Probe
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Gateway{cfg: cfg}
}

// Open prepares sourcePath for delivery in the requested format. The caller
// must Close the returned stream once the response is finished.
func (g *Gateway) Open(ctx context.Context, sourcePath, requested string) (*Stream, error) {
	format, err := ParseFormat(requested)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceMissing, sourcePath)
		}
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrSourceMissing, sourcePath)
	}

	if native, ok := FormatOf(sourcePath); ok && native == format {
		return &Stream{Path: sourcePath, Format: format, ContentType: format.ContentType()}, nil
	}

	logger := g.cfg.Logger.WithFields(logrus.Fields{"source": sourcePath, "format": format})

	tmp, err := os.CreateTemp(g.cfg.TempDir, "transcode-*"+format.Ext())
	if err != nil {
		return nil, fmt.Errorf("create temp output: %w", err)
	}
	dst := tmp.Name()
	_ = tmp.Close()

	remove := func() error {
		if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warnf("remove transcode output: %v", err)
			return err
		}
		return nil
	}

	if err := g.cfg.Converter.Convert(ctx, sourcePath, dst, format); err != nil {
		_ = remove()
		logger.Errorf("transcode failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}

	out, err := os.Stat(dst)
	if err != nil || out.Size() == 0 {
		_ = remove()
		logger.Error("transcode produced no output")
		return nil, fmt.Errorf("%w: empty output", ErrConversionFailed)
	}
	if err := g.cfg.Probe(dst, format); err != nil {
		_ = remove()
		logger.Errorf("transcode output rejected: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}

	return &Stream{
		Path:        dst,
		Format:      format,
		ContentType: format.ContentType(),
		Converted:   true,
		release:     remove,
	}, nil
}
