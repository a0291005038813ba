// Copyright (c) 2026 Torii. All rights reserved.
// Author: khoi.buiminh.dev@gmail.com

package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/khoiminh/torii/internal/platform/apperr"
	"github.com/khoiminh/torii/internal/platform/dberr"
)

// MemoryStore is an in-memory implementation of both session repositories.
//
// It mirrors the PostgreSQL implementation's contracts exactly — including
// the exactly-one-winner guarantee of Rotate — under a single mutex. Used by
// the service tests; not intended for production traffic.
type MemoryStore struct {
	mu         sync.Mutex
	principals map[string]*Principal          // keyed by ID
	emails     map[string]string              // lowercase email -> ID
	tokens     map[string]*RefreshTokenRecord // keyed by TokenHash
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		principals: make(map[string]*Principal),
		emails:     make(map[string]string),
		tokens:     make(map[string]*RefreshTokenRecord),
	}
}

// # PrincipalRepository

// Create persists a new principal, rejecting duplicate emails.
func (store *MemoryStore) Create(_ context.Context, principal *Principal) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	key := strings.ToLower(principal.Email)
	if _, exists := store.emails[key]; exists {
		return apperr.DuplicateIdentity()
	}

	clone := *principal
	store.principals[principal.ID] = &clone
	store.emails[key] = principal.ID

	return nil
}

// FindByID returns the principal with the given ID.
func (store *MemoryStore) FindByID(_ context.Context, id string) (*Principal, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	principal, ok := store.principals[id]
	if !ok {
		return nil, dberr.ErrNotFound
	}

	clone := *principal
	return &clone, nil
}

// FindByEmail returns the principal with the given email (case-insensitive).
func (store *MemoryStore) FindByEmail(_ context.Context, email string) (*Principal, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	id, ok := store.emails[strings.ToLower(email)]
	if !ok {
		return nil, dberr.ErrNotFound
	}

	clone := *store.principals[id]
	return &clone, nil
}

// UpdateCredentialHash replaces the principal's credential hash.
func (store *MemoryStore) UpdateCredentialHash(_ context.Context, principalID, newHash string, now time.Time) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	principal, ok := store.principals[principalID]
	if !ok {
		return dberr.ErrNotFound
	}

	principal.CredentialHash = newHash
	principal.UpdatedAt = now

	return nil
}

// TouchLastLogin stamps the principal's last successful login.
func (store *MemoryStore) TouchLastLogin(_ context.Context, principalID string, now time.Time) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	principal, ok := store.principals[principalID]
	if !ok {
		return dberr.ErrNotFound
	}

	stamp := now
	principal.LastLoginAt = &stamp
	principal.UpdatedAt = now

	return nil
}

// Deactivate soft-closes the account.
func (store *MemoryStore) Deactivate(_ context.Context, principalID string, now time.Time) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	principal, ok := store.principals[principalID]
	if !ok {
		return dberr.ErrNotFound
	}

	principal.IsActive = false
	principal.UpdatedAt = now

	return nil
}

// # RefreshTokenRepository

// Store inserts a new active refresh record.
func (store *MemoryStore) Store(_ context.Context, record *RefreshTokenRecord) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, exists := store.tokens[record.TokenHash]; exists {
		return apperr.DuplicateIdentity()
	}

	clone := *record
	store.tokens[record.TokenHash] = &clone

	return nil
}

// LookupActive returns the record for tokenHash only if it is active at 'now'.
func (store *MemoryStore) LookupActive(_ context.Context, tokenHash string, now time.Time) (*RefreshTokenRecord, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	record, ok := store.tokens[tokenHash]
	if !ok || !record.ActiveAt(now) {
		return nil, dberr.ErrNotFound
	}

	clone := *record
	return &clone, nil
}

// Rotate atomically revokes the old record and inserts its successor.
//
// The mutex plays the role of the database's row lock: the active check and
// the state transition happen as one critical section, so concurrent callers
// presenting the same hash see exactly one winner.
func (store *MemoryStore) Rotate(_ context.Context, oldTokenHash string, successor *RefreshTokenRecord, now time.Time) (*RefreshTokenRecord, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	old, ok := store.tokens[oldTokenHash]
	if !ok || !old.ActiveAt(now) {
		return nil, ErrAlreadyRotated
	}

	stamp := now
	reason := ReasonRotated
	replacedBy := successor.TokenHash
	old.RevokedAt = &stamp
	old.RevokedReason = &reason
	old.ReplacedByHash = &replacedBy

	inserted := *successor
	inserted.OwnerID = old.OwnerID
	store.tokens[inserted.TokenHash] = &inserted

	clone := inserted
	return &clone, nil
}

// RevokeOne revokes the single active record matching tokenHash (idempotent).
func (store *MemoryStore) RevokeOne(_ context.Context, tokenHash string, reason RevocationReason, now time.Time) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	record, ok := store.tokens[tokenHash]
	if !ok || record.RevokedAt != nil {
		return nil
	}

	stamp := now
	record.RevokedAt = &stamp
	record.RevokedReason = &reason

	return nil
}

// RevokeAll revokes every currently-active record owned by a principal.
func (store *MemoryStore) RevokeAll(_ context.Context, ownerID string, reason RevocationReason, now time.Time) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var revoked int64
	for _, record := range store.tokens {
		if record.OwnerID != ownerID || record.RevokedAt != nil {
			continue
		}

		stamp := now
		recordReason := reason
		record.RevokedAt = &stamp
		record.RevokedReason = &recordReason
		revoked++
	}

	return revoked, nil
}

// DetectReuse returns the record for tokenHash regardless of state.
func (store *MemoryStore) DetectReuse(_ context.Context, tokenHash string) (*RefreshTokenRecord, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	record, ok := store.tokens[tokenHash]
	if !ok {
		return nil, dberr.ErrNotFound
	}

	clone := *record
	return &clone, nil
}

// PurgeExpired deletes records whose expiry predates 'before'.
func (store *MemoryStore) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var purged int64
	for hash, record := range store.tokens {
		if record.ExpiresAt.After(before) {
			continue
		}
		delete(store.tokens, hash)
		purged++
	}

	return purged, nil
}

// ActiveCount reports how many of a principal's records are active at 'now'.
// Test helper.
func (store *MemoryStore) ActiveCount(ownerID string, now time.Time) int {
	store.mu.Lock()
	defer store.mu.Unlock()

	count := 0
	for _, record := range store.tokens {
		if record.OwnerID == ownerID && record.ActiveAt(now) {
			count++
		}
	}

	return count
}

// # ReuseMonitor

// MemoryReuseMonitor records reuse incidents in memory. Test double for the
// Redis-backed monitor.
type MemoryReuseMonitor struct {
	mu        sync.Mutex
	incidents map[string]int // ownerID -> incident count
}

// NewMemoryReuseMonitor creates an empty MemoryReuseMonitor.
func NewMemoryReuseMonitor() *MemoryReuseMonitor {
	return &MemoryReuseMonitor{incidents: make(map[string]int)}
}

// RecordIncident notes a reuse incident for ownerID.
func (monitor *MemoryReuseMonitor) RecordIncident(_ context.Context, ownerID, _ string) error {
	monitor.mu.Lock()
	defer monitor.mu.Unlock()

	monitor.incidents[ownerID]++
	return nil
}

// IncidentCount reports the incidents recorded for ownerID. Test helper.
func (monitor *MemoryReuseMonitor) IncidentCount(ownerID string) int {
	monitor.mu.Lock()
	defer monitor.mu.Unlock()

	return monitor.incidents[ownerID]
}
