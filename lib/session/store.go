/*
 * Copyright 2022 Medicines Discovery Catapult
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *     http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package session owns the process-wide cache of original/placeholder
// mappings. Entries live under an opaque session handle, expire after a TTL
// measured from last use, and are evicted least-recently-used first when the
// store is at capacity. Nothing in here is ever written to disk.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when a handle is unknown or its entry has expired.
var ErrNotFound = errors.New("session not found")

const (
	DefaultCapacity = 1000
	DefaultTTL      = time.Hour
)

// Store is safe for concurrent use. Operations on different sessions do not
// contend beyond the store-level map lookup.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

func New(capacity int, ttl time.Duration) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		entries:  make(map[string]*Entry, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create mints a new entry under a fresh handle, evicting the least recently
// used entry first if the store is full after sweeping expired ones.
func (s *Store) Create() *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	if len(s.entries) >= s.capacity {
		s.evictOldestLocked()
	}

	now := s.now()
	entry := &Entry{
		handle:     uuid.NewString(),
		forward:    make(map[string]string),
		reverse:    make(map[string]string),
		createdAt:  now,
		lastUsedAt: now,
	}
	s.entries[entry.handle] = entry
	return entry
}

// Get returns the entry for handle, refreshing its last-used timestamp.
func (s *Store) Get(handle string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[handle]
	if !ok {
		return nil, ErrNotFound
	}
	now := s.now()
	if now.Sub(entry.lastUsedAt) > s.ttl {
		delete(s.entries, handle)
		return nil, ErrNotFound
	}
	entry.lastUsedAt = now
	return entry, nil
}

// GetReadOnly is Get for deanonymisation: the returned entry must not be
// mutated. Reading still counts as use for TTL purposes.
func (s *Store) GetReadOnly(handle string) (*Entry, error) {
	return s.Get(handle)
}

// Release removes an entry explicitly, e.g. when a freshly created session is
// discarded because its anonymisation walk failed.
func (s *Store) Release(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, handle)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes all expired entries and returns how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

// StartSweeper runs a background sweep at the given interval until ctx is
// cancelled. The lazy sweep on every Create makes this optional.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					log.Debug().Int("expired", n).Msg("swept mapping store")
				}
			}
		}
	}()
}

func (s *Store) sweepLocked() int {
	now := s.now()
	removed := 0
	for handle, entry := range s.entries {
		if now.Sub(entry.lastUsedAt) > s.ttl {
			delete(s.entries, handle)
			removed++
		}
	}
	return removed
}

func (s *Store) evictOldestLocked() {
	var oldestHandle string
	var oldest time.Time
	for handle, entry := range s.entries {
		if oldestHandle == "" || entry.lastUsedAt.Before(oldest) {
			oldestHandle = handle
			oldest = entry.lastUsedAt
		}
	}
	if oldestHandle != "" {
		delete(s.entries, oldestHandle)
		log.Debug().Str("session", oldestHandle).Msg("evicted least recently used session")
	}
}
