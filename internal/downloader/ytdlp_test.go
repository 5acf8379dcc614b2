package downloader

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeYtDlp writes an executable shell script standing in for yt-dlp.
func fakeYtDlp(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestYtDlp_Locate(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	bin := fakeYtDlp(t, `printf '%s\n' "$@" > `+argsFile+`
echo '{"_type":"playlist","entries":[{"id":"fJ9rUzIMcZQ","url":"https://www.youtube.com/watch?v=fJ9rUzIMcZQ"}]}'
`)
	y := NewYtDlp(bin, "", "")

	got, err := y.Locate(context.Background(), "Bohemian Rhapsody Queen official audio")
	require.NoError(t, err)
	assert.Equal(t, "https://www.youtube.com/watch?v=fJ9rUzIMcZQ", got)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(args), "ytsearch1:Bohemian Rhapsody Queen official audio\n")
}

func TestYtDlp_LocateNoResults(t *testing.T) {
	y := NewYtDlp(fakeYtDlp(t, `echo '{"entries":[]}'`), "", "")
	_, err := y.Locate(context.Background(), "nothing matches")
	assert.ErrorIs(t, err, errNoResults)
}

func TestYtDlp_LocateFailure(t *testing.T) {
	y := NewYtDlp(fakeYtDlp(t, `echo "ERROR: network down" >&2; exit 1`), "", "")
	_, err := y.Locate(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network down")
}

func TestYtDlp_Fetch(t *testing.T) {
	// the fake honours --output by replacing %(ext)s with mp3
	bin := fakeYtDlp(t, `while [ $# -gt 0 ]; do
  if [ "$1" = "--output" ]; then out="$2"; fi
  shift
done
out=$(echo "$out" | sed 's/%(ext)s/mp3/')
printf 'audio-bytes' > "$out"
`)
	y := NewYtDlp(bin, "mp3", "192K")
	dir := t.TempDir()

	path, err := y.Fetch(context.Background(), "https://www.youtube.com/watch?v=x", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "audio.mp3"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(data))
}

func TestYtDlp_FetchFailure(t *testing.T) {
	y := NewYtDlp(fakeYtDlp(t, `echo "ERROR: Video unavailable"; exit 1`), "mp3", "192K")
	_, err := y.Fetch(context.Background(), "https://www.youtube.com/watch?v=x", t.TempDir())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Video unavailable"))
}

func TestYtDlp_FetchNoOutput(t *testing.T) {
	y := NewYtDlp(fakeYtDlp(t, `exit 0`), "mp3", "192K")
	_, err := y.Fetch(context.Background(), "https://www.youtube.com/watch?v=x", t.TempDir())
	assert.Error(t, err)
}
