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

// Package cache stores detector output per analysed string so repeated leaves
// (retried payloads, common phrases) skip the external recognition call.
package cache

import (
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/llm-privacy/anonymisation-api/lib"
)

// Detection is the value we store per (language, text) pair.
type Detection struct {
	Language   string          `json:"language"`
	Candidates []lib.Candidate `json:"candidates"`
}

type Client interface {
	// Get returns the cached detection for key, or (nil, nil) on a miss.
	Get(key string) (*Detection, error)
	Set(key string, detection *Detection) error
	Ready() bool
}

// Key derives the cache key for a leaf. Hashing keeps raw text out of cache
// keys, which matters when the backend is shared.
func Key(language, text string) string {
	h := blake3.New()
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return "detect:" + hex.EncodeToString(sum[:16])
}
