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

// Package anonymiser binds the structure walker, matcher, placeholder codec
// and mapping store into the two engine operations: Anonymise and
// Deanonymise.
package anonymiser

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/llm-privacy/anonymisation-api/lib/document"
	"github.com/llm-privacy/anonymisation-api/lib/match"
	"github.com/llm-privacy/anonymisation-api/lib/placeholder"
	"github.com/llm-privacy/anonymisation-api/lib/profile"
	"github.com/llm-privacy/anonymisation-api/lib/recogniser"
	"github.com/llm-privacy/anonymisation-api/lib/session"
)

type Config struct {
	// MaxDepth bounds payload nesting. Zero means document.DefaultMaxDepth.
	MaxDepth int
	// MinLeafLength: string leaves shorter than this are passed through
	// without matching. Zero means DefaultMinLeafLength.
	MinLeafLength int
	// DefaultLanguage is handed to the detector for every leaf. Empty means
	// "en".
	DefaultLanguage string
}

const DefaultMinLeafLength = 5

// Stats carries non-fatal diagnostics back to the caller.
type Stats struct {
	// Replaced counts substituted occurrences per entity type.
	Replaced map[string]int `json:"replaced"`
}

func (s Stats) Total() int {
	total := 0
	for _, n := range s.Replaced {
		total += n
	}
	return total
}

type Anonymiser struct {
	store      *session.Store
	profiles   *profile.Resolver
	matcher    *match.Matcher
	recogniser recogniser.Client
	cfg        Config
}

func New(store *session.Store, profiles *profile.Resolver, matcher *match.Matcher, rec recogniser.Client, cfg Config) *Anonymiser {
	if cfg.MinLeafLength <= 0 {
		cfg.MinLeafLength = DefaultMinLeafLength
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	return &Anonymiser{
		store:      store,
		profiles:   profiles,
		matcher:    matcher,
		recogniser: rec,
		cfg:        cfg,
	}
}

// Anonymise walks doc, replacing accepted entity spans with placeholder
// tokens recorded under a session. With an empty handle a new session is
// minted; a stale or unknown handle also starts a fresh session, since
// forward calls can always begin a new mapping. The handle is always
// returned.
//
// Either every new mapping from this payload commits, or none do: on any
// walk failure the entry's additions are rolled back and a freshly created
// session is discarded.
func (a *Anonymiser) Anonymise(ctx context.Context, doc document.Value, profileName, handle string) (document.Value, string, Stats, error) {
	start := time.Now()

	prof, err := a.profiles.Resolve(profileName)
	if err != nil {
		return document.Value{}, "", Stats{}, err
	}

	entry, created, err := a.acquireEntry(handle)
	if err != nil {
		return document.Value{}, "", Stats{}, err
	}
	entry.Lock()
	defer entry.Unlock()

	stats := Stats{Replaced: map[string]int{}}
	var added []string
	detectorDown := false

	visit := func(s string) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if a.skipLeaf(s, prof) {
			return s, nil
		}

		detected, err := a.recogniser.Recognise(ctx, s, a.cfg.DefaultLanguage)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// degrade to custom-entity matching only
			if !detectorDown {
				log.Warn().Err(err).Msg("recogniser unavailable, matching custom entities only")
				detectorDown = true
			}
			detected = nil
		}

		spans := a.matcher.Match(s, prof, detected)
		if len(spans) == 0 {
			return s, nil
		}

		var b strings.Builder
		last := 0
		for _, span := range spans {
			_, existed := entry.Placeholder(span.Text)
			token, err := placeholder.Encode(entry, span.EntityType, span.Text)
			if err != nil {
				return "", err
			}
			if !existed {
				added = append(added, span.Text)
			}
			b.WriteString(s[last:span.Start])
			b.WriteString(token)
			last = span.End
			stats.Replaced[span.EntityType]++
		}
		b.WriteString(s[last:])
		return b.String(), nil
	}

	walker := document.Walker{
		MaxDepth:    a.cfg.MaxDepth,
		Visit:       visit,
		SkipElement: skipSystemMessages,
	}

	out, err := walker.Walk(doc)
	if err != nil {
		for _, original := range added {
			entry.Remove(original)
		}
		if created {
			a.store.Release(entry.Handle())
		}
		return document.Value{}, "", Stats{}, err
	}

	log.Info().
		Str("session", entry.Handle()).
		Int("entities", stats.Total()).
		Dur("took", time.Since(start)).
		Msg("anonymisation complete")

	return out, entry.Handle(), stats, nil
}

// Deanonymise walks doc, restoring original text for every placeholder token
// known to the session. Unknown tokens stay in place. A missing or expired
// session is a hard error: the mapping is irrecoverable.
func (a *Anonymiser) Deanonymise(ctx context.Context, doc document.Value, handle string) (document.Value, error) {
	start := time.Now()

	entry, err := a.store.GetReadOnly(handle)
	if err != nil {
		return document.Value{}, err
	}
	entry.Lock()
	defer entry.Unlock()

	walker := document.Walker{
		MaxDepth: a.cfg.MaxDepth,
		Visit: func(s string) (string, error) {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			return placeholder.Decode(entry, s), nil
		},
	}

	out, err := walker.Walk(doc)
	if err != nil {
		return document.Value{}, err
	}

	log.Info().
		Str("session", handle).
		Dur("took", time.Since(start)).
		Msg("deanonymisation complete")

	return out, nil
}

// Ready reports whether the external detector is reachable. The engine still
// operates without it, on custom entities alone.
func (a *Anonymiser) Ready() bool {
	return a.recogniser.Ready()
}

func (a *Anonymiser) acquireEntry(handle string) (*session.Entry, bool, error) {
	if handle == "" {
		return a.store.Create(), true, nil
	}
	entry, err := a.store.Get(handle)
	if errors.Is(err, session.ErrNotFound) {
		log.Warn().Str("session", handle).Msg("session expired or unknown, starting a new one")
		return a.store.Create(), true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry, false, nil
}

// skipLeaf applies the leaf-level fast paths: very short strings, configured
// skip terms, and UUID-shaped identifiers which are opaque by construction.
func (a *Anonymiser) skipLeaf(s string, prof profile.Profile) bool {
	if len(s) < a.cfg.MinLeafLength {
		return true
	}
	if prof.Skip(s) {
		return true
	}
	return isUUIDShaped(s)
}

const (
	uuidLength    = 36
	uuidDashCount = 4
)

func isUUIDShaped(s string) bool {
	return len(s) == uuidLength && strings.Count(s, "-") == uuidDashCount
}

// skipSystemMessages keeps entries of a "messages" sequence with role
// "system" untouched: prompt scaffolding is the caller's own text, not user
// data.
func skipSystemMessages(key string, element document.Value) bool {
	if key != "messages" || element.Kind() != document.Mapping {
		return false
	}
	role, ok := element.Member("role")
	return ok && role.Kind() == document.String && role.Text() == "system"
}
