package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const stagingDirName = ".staging"

// maxNameAttempts bounds the numeric suffix search when a name is taken.
const maxNameAttempts = 10000

var ErrInvalidName = errors.New("invalid asset file name")

// Local is the shared on-disk asset directory.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &Local{root: root}, nil
}

func (l *Local) Root() string {
	return l.root
}

// Path resolves a stored file name to its absolute location.
func (l *Local) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.HasPrefix(name, stagingDirName) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(l.root, name), nil
}

// Create reserves a fresh file named base+ext, appending _1, _2, ... when the
// name is already taken. The returned file is open for writing.
func (l *Local) Create(base, ext string) (*os.File, string, error) {
	if base == "" {
		base = "track"
	}
	for i := 0; i < maxNameAttempts; i++ {
		name := base + ext
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		path, err := l.Path(name)
		if err != nil {
			return nil, "", err
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, name, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create asset file: %w", err)
		}
	}
	return nil, "", fmt.Errorf("no free file name for %s%s", base, ext)
}

// Adopt moves src into the asset directory under a reserved unique name.
func (l *Local) Adopt(src, base, ext string) (string, error) {
	f, name, err := l.Create(base, ext)
	if err != nil {
		return "", err
	}
	dst := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("close reserved file: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("move into asset dir: %w", err)
	}
	return name, nil
}

// Remove deletes a stored file.
func (l *Local) Remove(name string) error {
	path, err := l.Path(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// Staging creates a private working directory inside the asset directory so
// finished downloads can be renamed into place without crossing filesystems.
func (l *Local) Staging() (string, func(), error) {
	dir := filepath.Join(l.root, stagingDirName, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create staging dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

// SafeName reduces s to letters, digits and underscores. Runs of whitespace,
// dashes and underscores collapse into a single underscore.
func SafeName(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_':
			pendingSep = true
		}
	}
	return b.String()
}

// SecureFilename keeps only the ASCII-safe parts of a client supplied file
// name: letters, digits, dots, dashes and underscores. Leading dots are
// stripped so the result can never be hidden or escape the directory.
func SecureFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "._")
}
