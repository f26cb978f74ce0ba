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

package session

import (
	"sync"
	"time"
)

// Entry is one session's bidirectional mapping. forward and reverse are exact
// inverses: reverse[forward[k]] == k for every key k.
//
// Callers serialise access to one entry through Lock/Unlock for the duration
// of a payload's walk; concurrent walks on different entries never contend.
type Entry struct {
	mu sync.Mutex

	handle     string
	forward    map[string]string // original -> placeholder
	reverse    map[string]string // placeholder -> original
	createdAt  time.Time
	lastUsedAt time.Time
}

func (e *Entry) Lock()   { e.mu.Lock() }
func (e *Entry) Unlock() { e.mu.Unlock() }

func (e *Entry) Handle() string       { return e.handle }
func (e *Entry) CreatedAt() time.Time { return e.createdAt }

// Len returns the number of mapped originals. Callers must hold the entry
// lock, as for all map accessors below.
func (e *Entry) Len() int { return len(e.forward) }

// Placeholder returns the token already mapped to original, if any.
func (e *Entry) Placeholder(original string) (string, bool) {
	token, ok := e.forward[original]
	return token, ok
}

// Original returns the text a token maps back to, if any.
func (e *Entry) Original(token string) (string, bool) {
	original, ok := e.reverse[token]
	return original, ok
}

// HasToken reports whether token is already bound, to any original.
func (e *Entry) HasToken(token string) bool {
	_, ok := e.reverse[token]
	return ok
}

// Insert binds original and token in both directions.
func (e *Entry) Insert(original, token string) {
	e.forward[original] = token
	e.reverse[token] = original
}

// Remove unbinds an original, keeping the two maps exact inverses. Used to
// roll back a payload's partial mappings when its walk fails.
func (e *Entry) Remove(original string) {
	if token, ok := e.forward[original]; ok {
		delete(e.forward, original)
		delete(e.reverse, token)
	}
}
