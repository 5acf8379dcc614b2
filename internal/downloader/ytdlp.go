package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Locator finds a downloadable media source for a free-text query.
type Locator interface {
	Locate(ctx context.Context, query string) (string, error)
}

// Fetcher downloads the audio of source into dir and returns the written file.
type Fetcher interface {
	Fetch(ctx context.Context, source, dir string) (string, error)
}

var errNoResults = errors.New("search returned no results")

// YtDlp drives the yt-dlp binary for both searching and downloading.
type YtDlp struct {
	Path         string
	AudioFormat  string
	AudioQuality string
}

func NewYtDlp(path, audioFormat, audioQuality string) *YtDlp {
	if path == "" {
		path = "yt-dlp"
	}
	if audioFormat == "" {
		audioFormat = "mp3"
	}
	if audioQuality == "" {
		audioQuality = "192K"
	}
	return &YtDlp{Path: path, AudioFormat: audioFormat, AudioQuality: audioQuality}
}

type searchResult struct {
	Entries []struct {
		ID         string `json:"id"`
		URL        string `json:"url"`
		WebpageURL string `json:"webpage_url"`
	} `json:"entries"`
}

func (y *YtDlp) Locate(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.New("empty search query")
	}

	cmd := exec.CommandContext(ctx, y.Path,
		"--dump-single-json",
		"--flat-playlist",
		"--no-warnings",
		"ytsearch1:"+query,
	)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("search failed: %w%s", err, stderrOf(err))
	}

	var result searchResult
	if err := json.Unmarshal(output, &result); err != nil {
		return "", fmt.Errorf("failed to parse search results: %w", err)
	}
	for _, e := range result.Entries {
		switch {
		case e.WebpageURL != "":
			return e.WebpageURL, nil
		case e.URL != "":
			return e.URL, nil
		case e.ID != "":
			return "https://www.youtube.com/watch?v=" + e.ID, nil
		}
	}
	return "", errNoResults
}

func (y *YtDlp) Fetch(ctx context.Context, source, dir string) (string, error) {
	outputPath := filepath.Join(dir, "audio.%(ext)s")
	cmd := exec.CommandContext(ctx, y.Path,
		"--format", "bestaudio/best",
		"--extract-audio",
		"--audio-format", y.AudioFormat,
		"--audio-quality", y.AudioQuality,
		"--output", outputPath,
		"--no-playlist",
		"--no-progress",
		source,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("download failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	// yt-dlp replaces %(ext)s with the extension it actually wrote
	expected := filepath.Join(dir, "audio."+y.AudioFormat)
	if _, err := os.Stat(expected); err == nil {
		return expected, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "audio.*"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("download produced no audio file in %s", dir)
	}
	return matches[0], nil
}

func stderrOf(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return ": " + strings.TrimSpace(string(exitErr.Stderr))
	}
	return ""
}

var (
	_ Locator = (*YtDlp)(nil)
	_ Fetcher = (*YtDlp)(nil)
)
