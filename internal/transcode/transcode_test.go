package transcode

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverter struct {
	calls atomic.Int32
	write func(dst string) error
	err   error
}

func (f *fakeConverter) Convert(ctx context.Context, src, dst string, format Format) error {
	f.calls.Add(1)
	if f.err != nil {
		return f.err
	}
	if f.write != nil {
		return f.write(dst)
	}
	return os.WriteFile(dst, []byte("converted:"+string(format)), 0o644)
}

func writeTestWAV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, 44100, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 44100},
		Data:           make([]int, 441),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		_ = f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func noProbe(string, Format) error { return nil }

func tempEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func setup(t *testing.T, conv *fakeConverter, probe ProbeFunc) (*Gateway, string, string) {
	t.Helper()
	assets := t.TempDir()
	tmp := t.TempDir()
	src := filepath.Join(assets, "song.mp3")
	require.NoError(t, os.WriteFile(src, []byte("0123456789"), 0o644))
	gw := NewGateway(Config{TempDir: tmp, Converter: conv, Probe: probe, Logger: quietLogger()})
	return gw, src, tmp
}

func TestGateway_NativeFormatIsServedAsIs(t *testing.T) {
	conv := &fakeConverter{}
	gw, src, tmp := setup(t, conv, noProbe)

	for _, requested := range []string{"mp3", "MP3", ""} {
		stream, err := gw.Open(context.Background(), src, requested)
		require.NoError(t, err)
		assert.Equal(t, src, stream.Path)
		assert.False(t, stream.Converted)
		assert.Equal(t, "audio/mpeg", stream.ContentType)

		got, err := os.ReadFile(stream.Path)
		require.NoError(t, err)
		assert.Equal(t, []byte("0123456789"), got)
		require.NoError(t, stream.Close())
	}

	assert.Zero(t, conv.calls.Load())
	assert.Empty(t, tempEntries(t, tmp))
	_, err := os.Stat(src)
	assert.NoError(t, err, "closing a native stream must not touch the stored file")
}

func TestGateway_ConvertedOutputRemovedOnClose(t *testing.T) {
	conv := &fakeConverter{write: writeTestWAV}
	gw, src, tmp := setup(t, conv, Probe)

	stream, err := gw.Open(context.Background(), src, "wav")
	require.NoError(t, err)
	assert.True(t, stream.Converted)
	assert.Equal(t, "audio/wav", stream.ContentType)
	assert.Equal(t, tmp, filepath.Dir(stream.Path))
	assert.Len(t, tempEntries(t, tmp), 1)

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close(), "close is idempotent")
	assert.Empty(t, tempEntries(t, tmp))
	assert.EqualValues(t, 1, conv.calls.Load())
}

func TestGateway_UnsupportedFormatNeverConverts(t *testing.T) {
	conv := &fakeConverter{}
	gw, src, tmp := setup(t, conv, noProbe)

	for _, requested := range []string{"aac", "exe", "../mp3", "wma"} {
		_, err := gw.Open(context.Background(), src, requested)
		assert.ErrorIs(t, err, ErrUnsupportedFormat, requested)
	}
	assert.Zero(t, conv.calls.Load())
	assert.Empty(t, tempEntries(t, tmp))
}

func TestGateway_ConversionFailureCleansUp(t *testing.T) {
	cases := []struct {
		name  string
		conv  *fakeConverter
		probe ProbeFunc
	}{
		{name: "converter error", conv: &fakeConverter{err: errors.New("exit status 1")}, probe: noProbe},
		{name: "empty output", conv: &fakeConverter{write: func(dst string) error { return os.WriteFile(dst, nil, 0o644) }}, probe: noProbe},
		{name: "bad container", conv: &fakeConverter{}, probe: Probe},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw, src, tmp := setup(t, tc.conv, tc.probe)
			_, err := gw.Open(context.Background(), src, "flac")
			assert.ErrorIs(t, err, ErrConversionFailed)
			assert.Empty(t, tempEntries(t, tmp))
		})
	}
}

func TestGateway_SourceMissing(t *testing.T) {
	conv := &fakeConverter{}
	gw, _, _ := setup(t, conv, noProbe)

	_, err := gw.Open(context.Background(), filepath.Join(t.TempDir(), "gone.mp3"), "wav")
	assert.ErrorIs(t, err, ErrSourceMissing)
	assert.Zero(t, conv.calls.Load())
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" FLAC ")
	require.NoError(t, err)
	assert.Equal(t, FormatFLAC, f)
	assert.Equal(t, "audio/flac", f.ContentType())

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, DefaultFormat, f)

	_, err = ParseFormat("m4a")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestArgs(t *testing.T) {
	args, err := Args("in.mp3", "out.wav", FormatWAV)
	require.NoError(t, err)
	assert.Equal(t, []string{"-hide_banner", "-loglevel", "error", "-y", "-i", "in.mp3", "-vn", "-acodec", "pcm_s16le", "-ar", "44100", "-f", "wav", "out.wav"}, args)

	for _, f := range Formats() {
		_, err := Args("a", "b", f)
		assert.NoError(t, err, f)
	}
	_, err = Args("a", "b", Format("aac"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestProbe(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "ok.wav")
	require.NoError(t, writeTestWAV(good))
	assert.NoError(t, Probe(good, FormatWAV))

	ogg := filepath.Join(dir, "ok.ogg")
	require.NoError(t, os.WriteFile(ogg, append([]byte("OggS"), bytes.Repeat([]byte{0}, 24)...), 0o644))
	assert.NoError(t, Probe(ogg, FormatOGG))

	junk := filepath.Join(dir, "junk")
	require.NoError(t, os.WriteFile(junk, []byte("definitely not audio"), 0o644))
	for _, f := range Formats() {
		assert.Error(t, Probe(junk, f), f)
	}
}

func TestFFmpeg_MissingBinary(t *testing.T) {
	ff := NewFFmpeg(filepath.Join(t.TempDir(), "no-ffmpeg"))
	err := ff.Convert(context.Background(), "in.mp3", "out.wav", FormatWAV)
	assert.Error(t, err)
}
