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

package profile

import "strings"

// Skiplist holds terms which must never be treated as entities, matched
// case-insensitively.
type Skiplist struct {
	terms map[string]bool
}

func NewSkiplist(terms []string) Skiplist {
	s := Skiplist{terms: make(map[string]bool, len(terms))}
	for _, t := range terms {
		s.terms[strings.ToLower(strings.TrimSpace(t))] = true
	}
	return s
}

// Allowed returns true if text is not a skip term.
func (s Skiplist) Allowed(text string) bool {
	if len(s.terms) == 0 {
		return true
	}
	return !s.terms[strings.ToLower(strings.TrimSpace(text))]
}
