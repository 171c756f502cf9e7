package calibration

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// Marker is a file whose existence means calibration has already finished.
// Its content is the completion time, for humans.
type Marker struct {
	Path string
	now  func() time.Time
}

func NewMarker(path string) *Marker {
	return &Marker{Path: path, now: time.Now}
}

func (m *Marker) Exists() (bool, error) {
	_, err := os.Stat(m.Path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, pkgerrors.Wrapf(err, "failed to stat %s", m.Path)
}

// Create writes the marker. It fails with fs.ErrExist if the marker is
// already there, so concurrent writers cannot both succeed.
func (m *Marker) Create() error {
	if err := os.MkdirAll(filepath.Dir(m.Path), 0o755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create directory for %s", m.Path)
	}

	f, err := os.OpenFile(m.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to create %s", m.Path)
	}

	now := time.Now
	if m.now != nil {
		now = m.now
	}
	_, werr := f.WriteString(now().Format(time.ANSIC) + "\n")
	cerr := f.Close()
	if werr != nil {
		return pkgerrors.Wrapf(werr, "failed to write %s", m.Path)
	}
	return pkgerrors.Wrapf(cerr, "failed to close %s", m.Path)
}
