// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package blob implements the content-addressable blob store: an opaque
// write-then-seal sink that returns an id, and a by-id random-access
// reader. The scheduler never interprets blob contents.
package blob

import (
	"io"

	"github.com/google/uuid"
)

// Writer is an append-only byte sink returned by CreateFile. It is not yet
// addressable by id until passed to Store.
type Writer interface {
	io.Writer
	io.Closer
}

// ReadSeekCloser is what ReadFile returns: a sealed blob opened for
// random-access reads, supporting HTTP Range semantics at the boundary.
type ReadSeekCloser interface {
	io.ReadSeeker
	io.Closer
}

// Store is the contract consumed by the scheduler for blob storage.
type Store interface {
	// CreateFile returns a fresh append-only sink, not yet addressable.
	CreateFile() (Writer, error)

	// StoreFile seals w and returns the blob id under which its content
	// becomes immutable and readable. w must have been returned by
	// CreateFile on this Store and not already sealed.
	StoreFile(w Writer) (uuid.UUID, error)

	// ReadFile opens a sealed blob for random-access reads. Returns a
	// NotFound-tagged error if id is unknown.
	ReadFile(id uuid.UUID) (ReadSeekCloser, error)

	// BodyToNewFile is the convenience sink+seal used by HTTP upload
	// handlers: copies body into a fresh file and immediately seals it.
	BodyToNewFile(body io.Reader) (uuid.UUID, error)

	// Delete removes a sealed blob; callers must ensure no concurrent reader
	// holds the id. The job manager's DeleteJob does not call it, so a
	// deleted job's blobs stay in the store.
	Delete(id uuid.UUID) error
}
