// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	schederrors "github.com/kristinsson/tcsched/pkg/errors"
	"github.com/kristinsson/tcsched/pkg/retry"
)

// DiskStore is a filesystem-backed Store. A blob is written to a temp file
// under dir and only becomes addressable by id once StoreFile renames it
// into place, so a partially-written blob is never visible under a uuid.
// CreateFile and id allocation are split into two steps so a Writer can be
// handed out before any id exists, matching blob.Store's contract.
type DiskStore struct {
	dir   string
	retry retry.Policy
}

// NewDiskStore constructs a DiskStore rooted at dir, creating it if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, schederrors.Internal("creating blob directory", err)
	}
	return &DiskStore{dir: dir, retry: retry.NewExponentialBackoffPolicy().WithMaxRetries(3)}, nil
}

// classifyOpenError tags file-descriptor exhaustion as Unavailable so
// retry.Policy will retry it; every other open failure is Internal.
func classifyOpenError(op string, err error) error {
	if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) {
		return schederrors.Unavailable(op + ": file descriptors exhausted")
	}
	return schederrors.Internal(op, err)
}

type diskWriter struct {
	f      *os.File
	sealed bool
}

func (w *diskWriter) Write(p []byte) (int, error) {
	if w.sealed {
		return 0, io.ErrClosedPipe
	}
	return w.f.Write(p)
}

func (w *diskWriter) Close() error { return w.f.Close() }

// CreateFile opens a temp file under dir, not yet addressable by any id.
// Transient fd-exhaustion errors are retried with backoff before giving up.
func (s *DiskStore) CreateFile() (Writer, error) {
	var f *os.File
	err := retry.Do(context.Background(), s.retry, func() error {
		var openErr error
		f, openErr = os.CreateTemp(s.dir, "blob-*.tmp")
		if openErr != nil {
			return classifyOpenError("creating temp blob file", openErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &diskWriter{f: f}, nil
}

// StoreFile seals w by closing it and renaming it to its final path, named
// by a freshly allocated blob id.
func (s *DiskStore) StoreFile(w Writer) (uuid.UUID, error) {
	dw, ok := w.(*diskWriter)
	if !ok {
		return uuid.Nil, schederrors.Internal("writer not produced by this store", nil)
	}
	if dw.sealed {
		return uuid.Nil, schederrors.Internal("writer already sealed", nil)
	}
	dw.sealed = true

	tmpPath := dw.f.Name()
	if err := dw.f.Close(); err != nil {
		return uuid.Nil, schederrors.Internal("closing temp blob file", err)
	}

	id := uuid.New()
	if err := os.Rename(tmpPath, s.path(id)); err != nil {
		return uuid.Nil, schederrors.Internal("sealing blob", err)
	}
	return id, nil
}

type diskReader struct {
	*os.File
}

// ReadFile opens a sealed blob for random-access reads. Transient
// fd-exhaustion errors are retried with backoff before giving up.
func (s *DiskStore) ReadFile(id uuid.UUID) (ReadSeekCloser, error) {
	var f *os.File
	err := retry.Do(context.Background(), s.retry, func() error {
		var openErr error
		f, openErr = os.Open(s.path(id))
		if openErr != nil {
			if os.IsNotExist(openErr) {
				return schederrors.NotFound("blob not found")
			}
			return classifyOpenError("opening blob", openErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return diskReader{f}, nil
}

// BodyToNewFile copies body into a fresh sealed blob in one step.
func (s *DiskStore) BodyToNewFile(body io.Reader) (uuid.UUID, error) {
	w, err := s.CreateFile()
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return uuid.Nil, schederrors.Internal("copying body to blob", err)
	}
	return s.StoreFile(w)
}

// Delete removes a sealed blob.
func (s *DiskStore) Delete(id uuid.UUID) error {
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return schederrors.NotFound("blob not found")
		}
		return schederrors.Internal("deleting blob", err)
	}
	return nil
}

func (s *DiskStore) path(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String())
}
