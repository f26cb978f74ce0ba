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

// Package document models arbitrary JSON payloads as a closed tagged variant
// so that the engine can rewrite string leaves while reproducing everything
// else byte-for-byte. encoding/json maps are unusable here: they lose key
// order and coerce numbers to float64, both of which break exact round-trips.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	Sequence
	Mapping
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Sequence:
		return "sequence"
	case Mapping:
		return "mapping"
	}
	return "unknown"
}

// Value is one node of a JSON document. The zero value is JSON null.
type Value struct {
	kind    Kind
	boolean bool
	number  json.Number
	str     string
	seq     []Value
	members []Member
}

// Member is a single key/value pair of a Mapping. Members keep the order in
// which keys appeared in the source document.
type Member struct {
	Key   string
	Value Value
}

func NullValue() Value               { return Value{kind: Null} }
func BoolValue(b bool) Value         { return Value{kind: Bool, boolean: b} }
func NumberValue(n json.Number) Value { return Value{kind: Number, number: n} }
func StringValue(s string) Value     { return Value{kind: String, str: s} }
func SequenceValue(items ...Value) Value {
	return Value{kind: Sequence, seq: items}
}
func MappingValue(members ...Member) Value {
	return Value{kind: Mapping, members: members}
}

func (v Value) Kind() Kind          { return v.kind }
func (v Value) Bool() bool          { return v.boolean }
func (v Value) Number() json.Number { return v.number }
func (v Value) Items() []Value      { return v.seq }
func (v Value) Members() []Member   { return v.members }

// Text returns the string payload of a String value, and "" for every other
// kind. Deliberately not named String: that would satisfy fmt.Stringer and
// make %v print nothing for non-string values.
func (v Value) Text() string { return v.str }

// Member returns the value stored under key and whether it exists. Only the
// first member with the key is considered.
func (v Value) Member(key string) (Value, bool) {
	if v.kind != Mapping {
		return Value{}, false
	}
	for _, m := range v.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// WithMember returns a copy of a Mapping with key set to val, replacing the
// first existing member or appending a new one. On non-mappings it returns a
// fresh single-member Mapping.
func (v Value) WithMember(key string, val Value) Value {
	if v.kind != Mapping {
		return MappingValue(Member{Key: key, Value: val})
	}
	members := make([]Member, len(v.members))
	copy(members, v.members)
	for i, m := range members {
		if m.Key == key {
			members[i].Value = val
			return MappingValue(members...)
		}
	}
	return MappingValue(append(members, Member{Key: key, Value: val})...)
}

// WithoutMember returns a copy of a Mapping with every member named key
// removed. Non-mappings are returned unchanged.
func (v Value) WithoutMember(key string) Value {
	if v.kind != Mapping {
		return v
	}
	members := make([]Member, 0, len(v.members))
	for _, m := range v.members {
		if m.Key != key {
			members = append(members, m)
		}
	}
	return MappingValue(members...)
}

// Equal reports deep equality, including sequence order and mapping key order.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Null:
		return true
	case Bool:
		return a.boolean == b.boolean
	case Number:
		return a.number == b.number
	case String:
		return a.str == b.str
	case Sequence:
		if len(a.seq) != len(b.seq) {
			return false
		}
		for i := range a.seq {
			if !Equal(a.seq[i], b.seq[i]) {
				return false
			}
		}
		return true
	case Mapping:
		if len(a.members) != len(b.members) {
			return false
		}
		for i := range a.members {
			if a.members[i].Key != b.members[i].Key {
				return false
			}
			if !Equal(a.members[i].Value, b.members[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// Parse decodes JSON bytes into a Value.
func Parse(b []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	// reject trailing garbage
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, errors.New("unexpected data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			var members []Member
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("mapping key is not a string: %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				members = append(members, Member{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Value{}, err
			}
			return MappingValue(members...), nil
		case '[':
			var items []Value
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Value{}, err
			}
			return SequenceValue(items...), nil
		}
		return Value{}, fmt.Errorf("unexpected delimiter %v", t)
	case nil:
		return NullValue(), nil
	case bool:
		return BoolValue(t), nil
	case json.Number:
		return NumberValue(t), nil
	case string:
		return StringValue(t), nil
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}

// UnmarshalJSON lets a Value sit directly inside request envelope structs.
func (v *Value) UnmarshalJSON(b []byte) error {
	parsed, err := Parse(b)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalJSON writes the value back out, preserving member order and the
// original textual form of numbers. String output is HTML-escaped the way
// encoding/json does it (angle brackets become unicode escapes), which
// decodes back to the same text; use Encode when the serialised bytes must
// show placeholder tokens literally.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v, true); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode serialises the value without HTML escaping, so placeholder tokens
// like <PERSON_1a2b3c4d> appear verbatim in the output.
func (v Value) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v, false); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v Value, escapeHTML bool) error {
	switch v.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		if v.boolean {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		if v.number == "" {
			buf.WriteString("0")
		} else {
			buf.WriteString(string(v.number))
		}
	case String:
		if err := encodeString(buf, v.str, escapeHTML); err != nil {
			return err
		}
	case Sequence:
		buf.WriteByte('[')
		for i, item := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, item, escapeHTML); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Mapping:
		buf.WriteByte('{')
		for i, m := range v.members {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, m.Key, escapeHTML); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encodeValue(buf, m.Value, escapeHTML); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

func encodeString(buf *bytes.Buffer, s string, escapeHTML bool) error {
	if escapeHTML {
		b, err := json.Marshal(s)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
	var quoted bytes.Buffer
	enc := json.NewEncoder(&quoted)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode appends a newline after the value
	buf.Write(bytes.TrimSuffix(quoted.Bytes(), []byte("\n")))
	return nil
}
