// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package auth implements opaque bearer-token issuance and per-object
// membership checks: the server stores a token to set-of-authorized-
// object-ids mapping, and checking access is a membership test.
//
// An atomic counter seeds fresh tokens and a single RWMutex-guarded map
// holds the token to object-id-set relation.
package auth

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Authenticator issues opaque tokens and checks token→object membership.
type Authenticator interface {
	// NewToken mints a fresh token with an empty authorized-object set.
	NewToken() string

	// DeleteToken invalidates a token and everything it was authorized for.
	DeleteToken(token string)

	// Grant authorizes token for obj.
	Grant(token string, obj uuid.UUID)

	// Revoke removes obj from token's authorized set.
	Revoke(token string, obj uuid.UUID)

	// Check reports whether token is known and authorized for obj.
	Check(token string, obj uuid.UUID) bool

	// Valid reports whether token is known at all, independent of any
	// particular object — used for routes with no object in scope (e.g.
	// GET /api/allocate_task, GET /api/job).
	Valid(token string) bool
}

// LocalAuthenticator is an in-memory Authenticator. The zero value is not
// usable; use NewLocalAuthenticator.
type LocalAuthenticator struct {
	counter uint64
	mu      sync.RWMutex
	objects map[string]map[uuid.UUID]struct{}
}

// NewLocalAuthenticator constructs an empty in-memory authenticator.
func NewLocalAuthenticator() *LocalAuthenticator {
	return &LocalAuthenticator{objects: make(map[string]map[uuid.UUID]struct{})}
}

// NewToken mints a token derived from a monotonic counter plus a random
// suffix, so tokens are both unpredictable and trivially ordered for
// debugging/log correlation.
func (a *LocalAuthenticator) NewToken() string {
	seq := atomic.AddUint64(&a.counter, 1)
	token := strconv.FormatUint(seq, 36) + "." + uuid.New().String()

	a.mu.Lock()
	a.objects[token] = make(map[uuid.UUID]struct{})
	a.mu.Unlock()
	return token
}

// DeleteToken invalidates token.
func (a *LocalAuthenticator) DeleteToken(token string) {
	a.mu.Lock()
	delete(a.objects, token)
	a.mu.Unlock()
}

// Grant authorizes token for obj. A no-op if token is unknown.
func (a *LocalAuthenticator) Grant(token string, obj uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	set, ok := a.objects[token]
	if !ok {
		return
	}
	set[obj] = struct{}{}
}

// Revoke removes obj from token's authorized set.
func (a *LocalAuthenticator) Revoke(token string, obj uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if set, ok := a.objects[token]; ok {
		delete(set, obj)
	}
}

// Check reports whether token is known and authorized for obj.
func (a *LocalAuthenticator) Check(token string, obj uuid.UUID) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	set, ok := a.objects[token]
	if !ok {
		return false
	}
	_, authorized := set[obj]
	return authorized
}

// Valid reports whether token is known at all.
func (a *LocalAuthenticator) Valid(token string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.objects[token]
	return ok
}
