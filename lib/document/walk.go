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

package document

import "errors"

// ErrTooDeep is returned when a document nests beyond Walker.MaxDepth.
var ErrTooDeep = errors.New("structure exceeds maximum nesting depth")

const DefaultMaxDepth = 64

// VisitString rewrites one string leaf.
type VisitString func(s string) (string, error)

// Walker rebuilds a document, applying Visit to every string leaf. Mapping
// keys, numbers, booleans and nulls pass through untouched, and both
// sequence order and mapping key order are preserved.
type Walker struct {
	// MaxDepth bounds recursion. Zero means DefaultMaxDepth.
	MaxDepth int

	Visit VisitString

	// SkipElement, when set, is consulted for each element of a sequence
	// stored under a mapping key. Elements it returns true for are copied
	// through without visiting their leaves.
	SkipElement func(key string, element Value) bool
}

func (w Walker) Walk(v Value) (Value, error) {
	maxDepth := w.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return w.walk(v, "", maxDepth)
}

func (w Walker) walk(v Value, parentKey string, depth int) (Value, error) {
	if depth <= 0 {
		return Value{}, ErrTooDeep
	}

	switch v.kind {
	case String:
		if w.Visit == nil {
			return v, nil
		}
		s, err := w.Visit(v.str)
		if err != nil {
			return Value{}, err
		}
		return StringValue(s), nil

	case Sequence:
		items := make([]Value, len(v.seq))
		for i, item := range v.seq {
			if w.SkipElement != nil && w.SkipElement(parentKey, item) {
				items[i] = item
				continue
			}
			walked, err := w.walk(item, parentKey, depth-1)
			if err != nil {
				return Value{}, err
			}
			items[i] = walked
		}
		return SequenceValue(items...), nil

	case Mapping:
		members := make([]Member, len(v.members))
		for i, m := range v.members {
			walked, err := w.walk(m.Value, m.Key, depth-1)
			if err != nil {
				return Value{}, err
			}
			members[i] = Member{Key: m.Key, Value: walked}
		}
		return MappingValue(members...), nil

	default:
		return v, nil
	}
}
