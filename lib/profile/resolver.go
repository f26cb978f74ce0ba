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

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ErrUnknownProfile is returned by a strict resolver when the requested
// profile is not configured.
var ErrUnknownProfile = errors.New("unknown profile")

// Resolver maps a logical profile name to a Profile. Unknown names fall back
// to the default profile unless the resolver is strict.
type Resolver struct {
	profiles    map[string]Profile
	defaultName string
	strict      bool
}

func NewResolver(profiles map[string]Profile, defaultName string, strict bool) (*Resolver, error) {
	if len(profiles) == 0 {
		profiles = Defaults()
	}
	if defaultName == "" {
		defaultName = "default"
	}
	if _, ok := profiles[defaultName]; !ok {
		return nil, fmt.Errorf("default profile %q is not configured", defaultName)
	}

	compiled := make(map[string]Profile, len(profiles))
	for name, p := range profiles {
		p.skiplist = NewSkiplist(p.SkipTerms)
		compiled[name] = p
	}

	return &Resolver{
		profiles:    compiled,
		defaultName: defaultName,
		strict:      strict,
	}, nil
}

// Resolve returns the named profile. An empty name resolves to the default.
func (r *Resolver) Resolve(name string) (Profile, error) {
	if name == "" {
		name = r.defaultName
	}
	if p, ok := r.profiles[name]; ok {
		return p, nil
	}
	if r.strict {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	log.Warn().Str("profile", name).Str("fallback", r.defaultName).Msg("unknown profile, using default")
	return r.profiles[r.defaultName], nil
}

// Names lists the configured profile names.
func (r *Resolver) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	return names
}
