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

// Package profile supplies the per-profile matching configuration consumed by
// the matcher: detector score thresholds, custom entity lists, fuzzy match
// settings and skip terms.
package profile

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"
)

// DefaultKey is the threshold map key applied to entity types that have no
// explicit entry.
const DefaultKey = "DEFAULT"

const (
	fallbackDetectorThreshold = 0.85
	fallbackFuzzyThreshold    = 80
)

// Profile is immutable once resolved for a request.
type Profile struct {
	Description    string              `yaml:"description"`
	Thresholds     map[string]float64  `yaml:"thresholds"`
	CustomEntities map[string][]string `yaml:"custom_entities"`
	FuzzyMatch     FuzzyMatch          `yaml:"fuzzy_match"`
	SkipTerms      []string            `yaml:"skip_terms"`

	// CaseSensitive controls exact custom-entity matching. Fuzzy matching
	// is always case-insensitive.
	CaseSensitive bool `yaml:"case_sensitive"`

	skiplist Skiplist
}

type FuzzyMatch struct {
	Enabled    bool           `yaml:"enabled"`
	Thresholds map[string]int `yaml:"thresholds"`
}

// ThresholdFor returns the detector acceptance threshold for an entity type,
// falling back to the profile's DEFAULT entry.
func (p Profile) ThresholdFor(entityType string) float64 {
	if t, ok := p.Thresholds[entityType]; ok {
		return t
	}
	if t, ok := p.Thresholds[DefaultKey]; ok {
		return t
	}
	return fallbackDetectorThreshold
}

// FuzzyThresholdFor returns the minimum similarity (0..100) for a fuzzy match
// on the given entity type.
func (p Profile) FuzzyThresholdFor(entityType string) int {
	if t, ok := p.FuzzyMatch.Thresholds[entityType]; ok {
		return t
	}
	if t, ok := p.FuzzyMatch.Thresholds[DefaultKey]; ok {
		return t
	}
	return fallbackFuzzyThreshold
}

// Skip reports whether the given text is a configured skip term.
func (p Profile) Skip(text string) bool {
	return !p.skiplist.Allowed(text)
}

// Load returns unmarshalled profiles from a YAML file at the given path. The
// file holds a top level "profiles" mapping of profile name to profile.
func Load(path string) (map[string]Profile, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		log.Error().Msg(fmt.Sprintf("could not find profiles at %v", path))
		return nil, err
	}

	type profileFile struct {
		Profiles map[string]Profile `yaml:"profiles"`
	}

	var pf profileFile
	if err := yaml.Unmarshal(bytes, &pf); err != nil {
		log.Error().Msg(fmt.Sprintf("could not load profiles from %v", path))
		return nil, err
	}
	if len(pf.Profiles) == 0 {
		return nil, fmt.Errorf("no profiles found in %v", path)
	}

	log.Info().Int("profiles", len(pf.Profiles)).Msg(fmt.Sprintf("profiles set from %v", path))

	return pf.Profiles, nil
}

// Defaults returns the built-in profile set, used when no profile file is
// configured or the configured one cannot be read.
func Defaults() map[string]Profile {
	defaults := Profile{
		Thresholds: map[string]float64{
			"PERSON":        0.85,
			"EMAIL_ADDRESS": 0.75,
			"PHONE_NUMBER":  0.75,
			"LOCATION":      0.90,
			"DATE_TIME":     0.95,
			"NRP":           0.85,
			"IP_ADDRESS":    0.75,
			"DOMAIN_NAME":   0.80,
			"URL":           0.80,
			DefaultKey:      0.85,
		},
		FuzzyMatch: FuzzyMatch{
			Enabled: false,
			Thresholds: map[string]int{
				DefaultKey: 80,
			},
		},
		SkipTerms: []string{
			"en", "de", "en-US", "en-GB", "de-DE",
			"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
			"january", "february", "march", "april", "may", "june", "july",
			"august", "september", "october", "november", "december",
		},
	}

	return map[string]Profile{"default": defaults}
}
