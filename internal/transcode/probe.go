package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/tcolgate/mp3"
)

// ProbeFunc checks that path holds a readable file of the given container.
type ProbeFunc func(path string, format Format) error

// Probe reads just enough of path to confirm the container header.
func Probe(path string, format Format) error {
	switch format {
	case FormatWAV:
		return probeWAV(path)
	case FormatFLAC:
		return probeFLAC(path)
	case FormatMP3:
		return probeMP3(path)
	case FormatOGG:
		return probeOGG(path)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func probeWAV(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return errors.New("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.NumChans == 0 {
		return errors.New("invalid wav header")
	}
	return nil
}

func probeFLAC(path string) error {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return err
	}
	defer stream.Close()
	if stream.Info == nil || stream.Info.SampleRate == 0 {
		return errors.New("flac stream missing sample info")
	}
	return nil
}

func probeMP3(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := mp3.NewDecoder(f)
	var (
		fr      mp3.Frame
		skipped int
	)
	if err := dec.Decode(&fr, &skipped); err != nil {
		return fmt.Errorf("no mp3 frame: %w", err)
	}
	return nil
}

// Ogg has no decoder among our dependencies; the capture pattern is enough to
// tell a real Ogg page from an empty or truncated file.
func probeOGG(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	head := make([]byte, 4)
	if _, err := io.ReadFull(f, head); err != nil {
		return fmt.Errorf("read ogg header: %w", err)
	}
	if !bytes.Equal(head, []byte("OggS")) {
		return errors.New("missing ogg capture pattern")
	}
	return nil
}
