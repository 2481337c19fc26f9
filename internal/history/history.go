// Package history writes per-session chat transcripts.
//
// Transcripts live under <dir>/<local user@host>/ and are named
// <YYYYmmdd-HHMMSS>-<remote user@host>-<incoming|outgoing>.txt. Each printed
// chat line is appended and flushed immediately.
package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/sipchat/internal/engine"
	"github.com/Iron-Ham/sipchat/internal/errors"
)

// Store opens transcripts in a directory. A Store with an empty directory is
// disabled and Open returns a nil Transcript.
type Store struct {
	fs  afero.Fs
	dir string
	now func() time.Time
}

// NewStore creates a Store rooted at dir on fs.
func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir, now: time.Now}
}

// Enabled reports whether transcripts are written.
func (s *Store) Enabled() bool {
	return s != nil && s.dir != ""
}

// FileName returns the transcript path for a session started at t.
func FileName(dir string, local, remote engine.URI, outgoing bool, t time.Time) string {
	direction := "incoming"
	if outgoing {
		direction = "outgoing"
	}
	localID := local.User + "@" + local.Host
	remoteID := remote.User + "@" + remote.Host
	name := fmt.Sprintf("%s-%s-%s.txt", t.Format("20060102-150405"), remoteID, direction)
	return filepath.Join(dir, localID, name)
}

// Open creates the transcript for a session, creating directories as needed.
// The file is opened for appending.
func (s *Store) Open(local, remote engine.URI, outgoing bool) (*Transcript, error) {
	if !s.Enabled() {
		return nil, nil
	}

	path := FileName(s.dir, local, remote, outgoing, s.now())
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create history directory")
	}
	f, err := s.fs.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open transcript")
	}
	return &Transcript{file: f, path: path}, nil
}

// Transcript is an open transcript file. A nil *Transcript discards writes.
type Transcript struct {
	mu   sync.Mutex
	file afero.File
	path string
}

// Path returns the file path, or "" for a nil transcript.
func (t *Transcript) Path() string {
	if t == nil {
		return ""
	}
	return t.path
}

// WriteLine appends line and a newline, then syncs.
func (t *Transcript) WriteLine(line string) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file == nil {
		return errors.Wrapf(os.ErrClosed, "transcript %s", t.path)
	}
	if _, err := t.file.WriteString(line + "\n"); err != nil {
		return errors.Wrap(err, "failed to write transcript")
	}
	return t.file.Sync()
}

// Close closes the file. Closing twice is a no-op.
func (t *Transcript) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}
