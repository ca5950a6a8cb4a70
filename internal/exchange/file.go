// Package exchange holds the places a token can be carried through by hand:
// files on disk and the system clipboard.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"github.com/darkprince558/burrow/internal/session"
)

// DefaultIOTimeout bounds one file read or write including lock acquisition.
const DefaultIOTimeout = 5 * time.Second

// MaxTokenSize caps how much of an imported file is read. Offer and answer
// tokens are a few kilobytes.
const MaxTokenSize = 256 << 10

const lockRetry = 50 * time.Millisecond

var ErrTokenTooLarge = errors.New("token file too large")

// DefaultFileName suggests a file name for saving a token.
func DefaultFileName(kind session.TokenKind, label string) string {
	if label == "" {
		return fmt.Sprintf("burrow-%s.txt", kind)
	}
	return fmt.Sprintf("burrow-%s-%s.txt", kind, label)
}

// File reads and writes a token at Path. An empty Path means the user did
// not pick a file. A sidecar <Path>.lock keeps two burrow processes from
// interleaving a write with a read of the same token.
type File struct {
	Path    string
	Timeout time.Duration
}

func (f File) timeout() time.Duration {
	if f.Timeout > 0 {
		return f.Timeout
	}
	return DefaultIOTimeout
}

func (f File) lock() *flock.Flock {
	return flock.New(f.Path + ".lock")
}

// WriteToken writes the token followed by a newline, replacing the file.
func (f File) WriteToken(ctx context.Context, kind session.TokenKind, token string) (string, error) {
	if f.Path == "" {
		return "", session.ErrCancelled
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout())
	defer cancel()

	if dir := filepath.Dir(f.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}

	fl := f.lock()
	locked, err := fl.TryLockContext(ctx, lockRetry)
	if err != nil {
		return "", fmt.Errorf("lock %s: %w", f.Path, err)
	}
	if !locked {
		return "", fmt.Errorf("%s is in use by another process", f.Path)
	}
	defer fl.Unlock()

	// Write to a sibling then rename so a reader never sees half a token.
	tmp := f.Path + ".partial"
	if err := os.WriteFile(tmp, []byte(token+"\n"), 0o600); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		os.Remove(tmp)
		return "", err
	}

	logrus.WithFields(logrus.Fields{"path": f.Path, "kind": kind}).Debug("Token written")
	return f.Path, nil
}

// ReadToken returns the file contents as-is; the session trims them. The
// shared lock is only taken when a writer has left a lock file, so reading
// never creates files next to the token.
func (f File) ReadToken(ctx context.Context) (string, string, error) {
	if f.Path == "" {
		return "", "", session.ErrCancelled
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout())
	defer cancel()

	if _, err := os.Stat(f.Path + ".lock"); err == nil {
		fl := f.lock()
		locked, err := fl.TryRLockContext(ctx, lockRetry)
		if err != nil {
			return "", "", fmt.Errorf("lock %s: %w", f.Path, err)
		}
		if !locked {
			return "", "", fmt.Errorf("%s is being written by another process", f.Path)
		}
		defer fl.Unlock()
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return "", "", err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxTokenSize+1))
	if err != nil {
		return "", "", err
	}
	if len(data) > MaxTokenSize {
		return "", "", fmt.Errorf("%s: %w", f.Path, ErrTokenTooLarge)
	}
	return string(data), f.Path, nil
}
