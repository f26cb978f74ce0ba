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

// Package match combines exact custom-entity lookup, fuzzy matching against
// custom entity lists and thresholded detector candidates into one ranked,
// non-overlapping set of entity spans.
package match

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/llm-privacy/anonymisation-api/lib"
	"github.com/llm-privacy/anonymisation-api/lib/profile"
	"github.com/llm-privacy/anonymisation-api/lib/text"
)

// Source identifies which match stage produced a span. Lower values win ties
// during conflict resolution.
type Source uint8

const (
	SourceExact Source = iota
	SourceFuzzy
	SourceDetector
)

func (s Source) String() string {
	switch s {
	case SourceExact:
		return "exact"
	case SourceFuzzy:
		return "fuzzy"
	case SourceDetector:
		return "detector"
	}
	return "unknown"
}

// Span is a located, typed occurrence of sensitive text. Start and End are
// byte offsets, End exclusive.
type Span struct {
	Text       string
	Start      int
	End        int
	EntityType string
	Score      float64
	Source     Source
}

type Config struct {
	// MinEntityLength is the minimum length in runes for fuzzy windows and
	// fuzzy-eligible custom entities. Exact matching ignores it.
	MinEntityLength int
	// MaxPhraseWords caps custom-entity phrases and fuzzy windows, in words.
	MaxPhraseWords int
}

const (
	DefaultMinEntityLength = 4
	DefaultMaxPhraseWords  = 3
)

type Matcher struct {
	cfg Config
}

func New(cfg Config) *Matcher {
	if cfg.MinEntityLength <= 0 {
		cfg.MinEntityLength = DefaultMinEntityLength
	}
	if cfg.MaxPhraseWords <= 0 {
		cfg.MaxPhraseWords = DefaultMaxPhraseWords
	}
	return &Matcher{cfg: cfg}
}

// Match returns the final non-overlapping span set for one string, ordered by
// start offset. Candidates are the detector's output for the same string.
func (m *Matcher) Match(s string, p profile.Profile, candidates []lib.Candidate) []Span {
	if s == "" {
		return nil
	}

	spans := m.exactSpans(s, p)
	if p.FuzzyMatch.Enabled {
		spans = append(spans, m.fuzzySpans(s, p)...)
	}
	spans = append(spans, detectorSpans(s, p, candidates)...)

	return resolveConflicts(spans)
}

// exactSpans finds case-sensitive or case-insensitive literal occurrences of
// every custom entity. A literal shorter than the fuzzy minimum is still
// eligible here.
func (m *Matcher) exactSpans(s string, p profile.Profile) []Span {
	haystack := s
	caseSensitive := p.CaseSensitive
	if !caseSensitive {
		lowered := strings.ToLower(s)
		// offsets into the folded string are only valid when folding keeps
		// byte lengths; fall back to exact case otherwise
		if len(lowered) == len(s) {
			haystack = lowered
		} else {
			caseSensitive = true
		}
	}

	var spans []Span
	for entityType, literals := range p.CustomEntities {
		for _, literal := range literals {
			if literal == "" || len(strings.Fields(literal)) > m.cfg.MaxPhraseWords {
				continue
			}
			needle := literal
			if !caseSensitive {
				if lowered := strings.ToLower(literal); len(lowered) == len(literal) {
					needle = lowered
				}
			}
			for _, start := range indexAll(haystack, needle) {
				matched := s[start : start+len(needle)]
				if p.Skip(matched) {
					continue
				}
				spans = append(spans, Span{
					Text:       matched,
					Start:      start,
					End:        start + len(needle),
					EntityType: entityType,
					Score:      1.0,
					Source:     SourceExact,
				})
			}
		}
	}
	return spans
}

// fuzzySpans compares every n-gram window of the string against every custom
// entity literal, keeping windows whose similarity meets the entity type's
// fuzzy threshold.
func (m *Matcher) fuzzySpans(s string, p profile.Profile) []Span {
	tokens := text.Tokenize(s)
	if len(tokens) == 0 {
		return nil
	}

	type normalisedLiteral struct {
		entityType string
		folded     string
		threshold  int
	}
	var literals []normalisedLiteral
	for entityType, values := range p.CustomEntities {
		threshold := p.FuzzyThresholdFor(entityType)
		for _, v := range values {
			if utf8.RuneCountInString(v) < m.cfg.MinEntityLength {
				continue
			}
			literals = append(literals, normalisedLiteral{
				entityType: entityType,
				folded:     text.Normalize(v),
				threshold:  threshold,
			})
		}
	}
	if len(literals) == 0 {
		return nil
	}

	var spans []Span
	for i := range tokens {
		for j := i; j < len(tokens) && j-i < m.cfg.MaxPhraseWords; j++ {
			window := s[tokens[i].Start:tokens[j].End]
			if utf8.RuneCountInString(window) < m.cfg.MinEntityLength {
				continue
			}
			if p.Skip(window) {
				continue
			}
			folded := text.Normalize(window)

			// keep the single best literal per window and entity type
			best := map[string]int{}
			for _, lit := range literals {
				ratio := Ratio(folded, lit.folded)
				if ratio < lit.threshold {
					continue
				}
				if ratio > best[lit.entityType] {
					best[lit.entityType] = ratio
				}
			}
			for entityType, ratio := range best {
				spans = append(spans, Span{
					Text:       window,
					Start:      tokens[i].Start,
					End:        tokens[j].End,
					EntityType: entityType,
					Score:      float64(ratio) / 100,
					Source:     SourceFuzzy,
				})
			}
		}
	}
	return spans
}

// detectorSpans filters external recogniser candidates by the profile's
// per-type thresholds and discards malformed or skip-listed spans.
func detectorSpans(s string, p profile.Profile, candidates []lib.Candidate) []Span {
	var spans []Span
	for _, c := range candidates {
		if c.Start < 0 || c.End <= c.Start || c.End > len(s) {
			continue
		}
		if c.Score < p.ThresholdFor(c.EntityType) {
			continue
		}
		matched := s[c.Start:c.End]
		if p.Skip(matched) {
			continue
		}
		spans = append(spans, Span{
			Text:       matched,
			Start:      c.Start,
			End:        c.End,
			EntityType: c.EntityType,
			Score:      c.Score,
			Source:     SourceDetector,
		})
	}
	return spans
}

// resolveConflicts sorts spans by (start asc, length desc, score desc, source
// priority) and greedily keeps spans that do not overlap a previously kept
// one. Longest match wins at each position.
func resolveConflicts(spans []Span) []Span {
	if len(spans) == 0 {
		return nil
	}

	sort.SliceStable(spans, func(i, j int) bool {
		a, b := spans[i], spans[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if la, lb := a.End-a.Start, b.End-b.Start; la != lb {
			return la > lb
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Source < b.Source
	})

	kept := make([]Span, 0, len(spans))
	for _, s := range spans {
		overlaps := false
		for _, k := range kept {
			if s.Start < k.End && k.Start < s.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, s)
		}
	}
	return kept
}

// indexAll returns the start offsets of all non-overlapping occurrences of
// needle in haystack.
func indexAll(haystack, needle string) []int {
	var offsets []int
	for from := 0; ; {
		i := strings.Index(haystack[from:], needle)
		if i < 0 {
			break
		}
		offsets = append(offsets, from+i)
		from += i + len(needle)
	}
	return offsets
}
