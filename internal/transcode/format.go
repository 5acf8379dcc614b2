package transcode

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is a supported output container.
type Format string

const (
	FormatMP3  Format = "mp3"
	FormatWAV  Format = "wav"
	FormatFLAC Format = "flac"
	FormatOGG  Format = "ogg"
)

// DefaultFormat is served when the caller does not ask for one.
const DefaultFormat = FormatMP3

var contentTypes = map[Format]string{
	FormatMP3:  "audio/mpeg",
	FormatWAV:  "audio/wav",
	FormatFLAC: "audio/flac",
	FormatOGG:  "audio/ogg",
}

// ParseFormat normalises a requested format name. An empty value selects DefaultFormat.
func ParseFormat(raw string) (Format, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return DefaultFormat, nil
	}
	f := Format(strings.TrimPrefix(raw, "."))
	if _, ok := contentTypes[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
	return f, nil
}

// FormatOf reports the container of a stored file from its extension.
func FormatOf(path string) (Format, bool) {
	f := Format(strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")))
	_, ok := contentTypes[f]
	return f, ok
}

func (f Format) ContentType() string {
	return contentTypes[f]
}

func (f Format) Ext() string {
	return "." + string(f)
}

// Formats lists every supported output container.
func Formats() []Format {
	return []Format{FormatMP3, FormatWAV, FormatFLAC, FormatOGG}
}
