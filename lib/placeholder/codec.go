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

// Package placeholder converts accepted entity spans into stable tokens of
// the form <ENTITY_TYPE_hex8> and parses them back out of text during
// deanonymisation. Tokens are derived deterministically from the entity type,
// the original text and the session handle, so repeated mentions of one
// entity inside a session collapse to one token.
package placeholder

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/llm-privacy/anonymisation-api/lib/session"
)

// ErrCollision means distinct originals kept deriving the same token even
// after salting. With 32 bits of token entropy this is effectively
// unreachable; it is surfaced as an internal error rather than accepted.
var ErrCollision = errors.New("placeholder collision could not be resolved")

const maxDeriveAttempts = 8

// tokenPattern is the placeholder grammar. Anything else in the text is left
// alone during decoding.
var tokenPattern = regexp.MustCompile(`<([A-Z_]+)_([0-9a-f]{8})>`)

// Encode returns the token for original within the given session entry,
// deriving and storing a fresh one on first encounter. The caller must hold
// the entry lock.
func Encode(entry *session.Entry, entityType, original string) (string, error) {
	if token, ok := entry.Placeholder(original); ok {
		return token, nil
	}

	prefix := normaliseType(entityType)
	for salt := 0; salt < maxDeriveAttempts; salt++ {
		token := derive(prefix, original, entry.Handle(), salt)
		// a different original may already own this token (hash collision);
		// re-derive with the next salt
		if entry.HasToken(token) {
			continue
		}
		entry.Insert(original, token)
		return token, nil
	}
	return "", fmt.Errorf("%w: type %s", ErrCollision, prefix)
}

// Decode substitutes every known placeholder token in s with its original
// text. Tokens the entry does not know (stale or foreign sessions) stay in
// place: decoding fails open rather than failing the call. The caller must
// hold the entry lock.
func Decode(entry *session.Entry, s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	return tokenPattern.ReplaceAllStringFunc(s, func(token string) string {
		if original, ok := entry.Original(token); ok {
			return original
		}
		return token
	})
}

// IsToken reports whether s is exactly one placeholder token.
func IsToken(s string) bool {
	m := tokenPattern.FindString(s)
	return m == s && m != ""
}

func derive(prefix, original, handle string, salt int) string {
	h := blake3.New()
	h.Write([]byte(handle))
	h.Write([]byte{0})
	h.Write([]byte(prefix))
	h.Write([]byte{0})
	h.Write([]byte(original))
	h.Write([]byte{0, byte(salt)})
	sum := h.Sum(nil)
	return fmt.Sprintf("<%s_%s>", prefix, hex.EncodeToString(sum[:4]))
}

// normaliseType folds an entity type into the token grammar's [A-Z_]+ class.
func normaliseType(entityType string) string {
	upper := strings.ToUpper(entityType)
	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "ENTITY"
	}
	return b.String()
}
