// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package blob

import (
	"bytes"
	"io"
	"sync"

	"github.com/google/uuid"

	schederrors "github.com/kristinsson/tcsched/pkg/errors"
)

// MemoryStore is an in-memory Store, used by tests and by the default dev
// server. Sealed blobs live in a map guarded by a single mutex, the same
// single-lock concurrency model the job database uses.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[uuid.UUID][]byte
}

// NewMemoryStore constructs an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[uuid.UUID][]byte)}
}

type memoryWriter struct {
	buf    *bytes.Buffer
	sealed bool
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	if w.sealed {
		return 0, io.ErrClosedPipe
	}
	return w.buf.Write(p)
}

func (w *memoryWriter) Close() error { return nil }

// CreateFile returns a fresh in-memory sink.
func (s *MemoryStore) CreateFile() (Writer, error) {
	return &memoryWriter{buf: &bytes.Buffer{}}, nil
}

// StoreFile seals w, assigning it a fresh blob id.
func (s *MemoryStore) StoreFile(w Writer) (uuid.UUID, error) {
	mw, ok := w.(*memoryWriter)
	if !ok {
		return uuid.Nil, schederrors.Internal("writer not produced by this store", nil)
	}
	if mw.sealed {
		return uuid.Nil, schederrors.Internal("writer already sealed", nil)
	}
	mw.sealed = true

	id := uuid.New()
	s.mu.Lock()
	s.blobs[id] = mw.buf.Bytes()
	s.mu.Unlock()
	return id, nil
}

type memoryReader struct {
	*bytes.Reader
}

func (memoryReader) Close() error { return nil }

// ReadFile opens a sealed blob for random-access reads.
func (s *MemoryStore) ReadFile(id uuid.UUID) (ReadSeekCloser, error) {
	s.mu.RLock()
	content, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, schederrors.NotFound("blob not found")
	}
	return memoryReader{bytes.NewReader(content)}, nil
}

// BodyToNewFile copies body into a fresh sealed blob in one step.
func (s *MemoryStore) BodyToNewFile(body io.Reader) (uuid.UUID, error) {
	w, err := s.CreateFile()
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := io.Copy(w, body); err != nil {
		return uuid.Nil, schederrors.Internal("copying body to blob", err)
	}
	return s.StoreFile(w)
}

// Delete removes a sealed blob.
func (s *MemoryStore) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		return schederrors.NotFound("blob not found")
	}
	delete(s.blobs, id)
	return nil
}
