package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Converter rewrites src into dst using the given container.
type Converter interface {
	Convert(ctx context.Context, src, dst string, format Format) error
}

// FFmpeg shells out to an ffmpeg binary.
type FFmpeg struct {
	Path string
}

func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path}
}

func codecArgs(format Format) ([]string, error) {
	switch format {
	case FormatWAV:
		return []string{"-acodec", "pcm_s16le", "-ar", "44100", "-f", "wav"}, nil
	case FormatFLAC:
		return []string{"-c:a", "flac", "-ar", "44100", "-sample_fmt", "s16", "-f", "flac"}, nil
	case FormatMP3:
		return []string{"-c:a", "libmp3lame", "-b:a", "192k", "-f", "mp3"}, nil
	case FormatOGG:
		return []string{"-c:a", "libvorbis", "-q:a", "5", "-f", "ogg"}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Args builds the ffmpeg argument list for a conversion.
func Args(src, dst string, format Format) ([]string, error) {
	codec, err := codecArgs(format)
	if err != nil {
		return nil, err
	}
	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", src, "-vn"}
	args = append(args, codec...)
	return append(args, dst), nil
}

func (f *FFmpeg) Convert(ctx context.Context, src, dst string, format Format) error {
	args, err := Args(src, dst, format)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, f.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

var _ Converter = (*FFmpeg)(nil)
