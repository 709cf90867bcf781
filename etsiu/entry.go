// Copyright The Notary Project Authors.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package etsiu

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/internal/encoding/base64url"
)

// Tag is the single top-level key of an etsiU entry.
type Tag string

// Known component tags.
const (
	TagXVals  Tag = "xVals"
	TagRVals  Tag = "rVals"
	TagSigTst Tag = "sigTst"
	TagArcTst Tag = "arcTst"
	TagTstVd  Tag = "tstVd"
	TagCSig   Tag = "cSig"
	TagSigPSt Tag = "sigPSt"
)

// Known reports whether t is one of the component tags handled by this
// package. Unknown components are carried through unchanged.
func (t Tag) Known() bool {
	switch t {
	case TagXVals, TagRVals, TagSigTst, TagArcTst, TagTstVd, TagCSig, TagSigPSt:
		return true
	}
	return false
}

// Mode is the incorporation mode of etsiU entries.
type Mode int

const (
	// ModeUnset is the mode of an empty ledger.
	ModeUnset Mode = iota

	// ModeBase64URL incorporates each entry as a base64url string of its
	// JSON object.
	ModeBase64URL

	// ModeClear incorporates each entry as a clear JSON object.
	ModeClear
)

// String returns the name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeUnset:
		return "unset"
	case ModeBase64URL:
		return "base64url"
	case ModeClear:
		return "clear"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Entry is one etsiU component. Entries are immutable; the wire form is kept
// exactly as it was parsed or generated.
type Entry struct {
	tag   Tag
	value json.RawMessage
	mode  Mode

	// wire is the string content in ModeBase64URL and the compacted JSON
	// object in ModeClear.
	wire []byte
}

// NewEntry marshals value under tag in the given incorporation mode.
func NewEntry(tag Tag, value any, mode Mode) (Entry, error) {
	if mode != ModeBase64URL && mode != ModeClear {
		return Entry{}, fmt.Errorf("etsiU entry %q: invalid incorporation mode %s", tag, mode)
	}
	raw, err := marshal(value)
	if err != nil {
		return Entry{}, fmt.Errorf("etsiU entry %q: %w", tag, err)
	}
	object, err := marshal(map[Tag]json.RawMessage{tag: raw})
	if err != nil {
		return Entry{}, fmt.Errorf("etsiU entry %q: %w", tag, err)
	}
	e := Entry{tag: tag, value: raw, mode: mode}
	if mode == ModeBase64URL {
		e.wire = []byte(base64url.Encode(object))
	} else {
		e.wire = object
	}
	return e, nil
}

// ParseEntry parses one element of the etsiU array. A JSON string is a
// ModeBase64URL entry, a JSON object a ModeClear entry. Either way the
// object must hold exactly one key.
func ParseEntry(data json.RawMessage) (Entry, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Entry{}, errdef.Malformed(errdef.RuleJSON, "empty etsiU entry")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return Entry{}, errdef.Malformed(errdef.RuleJSON, "etsiU entry is not a JSON string").Wrap(err)
		}
		object, err := base64url.Decode(s)
		if err != nil {
			return Entry{}, errdef.Malformed(errdef.RuleBase64URL, "etsiU entry is not base64url encoded").Wrap(err)
		}
		tag, value, err := singleKey(object)
		if err != nil {
			return Entry{}, err
		}
		return Entry{tag: tag, value: value, mode: ModeBase64URL, wire: []byte(s)}, nil
	case '{':
		tag, value, err := singleKey(data)
		if err != nil {
			return Entry{}, err
		}
		compacted, err := compact(data)
		if err != nil {
			return Entry{}, err
		}
		return Entry{tag: tag, value: value, mode: ModeClear, wire: compacted}, nil
	}
	return Entry{}, errdef.Malformed(errdef.RuleJSON, "etsiU entry must be a base64url string or a JSON object")
}

// Tag returns the component tag.
func (e Entry) Tag() Tag {
	return e.tag
}

// Mode returns the incorporation mode.
func (e Entry) Mode() Mode {
	return e.mode
}

// Value returns the compacted JSON value under the tag.
func (e Entry) Value() json.RawMessage {
	return append(json.RawMessage(nil), e.value...)
}

// Decode unmarshals the component value into v.
func (e Entry) Decode(v any) error {
	if err := json.Unmarshal(e.value, v); err != nil {
		return errdef.Malformed(errdef.RuleJSON, "invalid %q component", e.tag).Wrap(err)
	}
	return nil
}

// WireBytes returns the bytes an archive timestamp covers for this entry:
// the base64url string content, or the clear JSON object as serialized.
func (e Entry) WireBytes() []byte {
	return append([]byte(nil), e.wire...)
}

// MarshalJSON returns the entry as it appears in the etsiU array.
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.mode == ModeBase64URL {
		return marshal(string(e.wire))
	}
	return append([]byte(nil), e.wire...), nil
}

// Recode returns the entry re-incorporated in mode. The component value is
// preserved; the wire bytes change.
func (e Entry) Recode(mode Mode) (Entry, error) {
	if e.mode == mode {
		return e, nil
	}
	return NewEntry(e.tag, e.value, mode)
}

// Equal reports whether e and other have the same wire form.
func (e Entry) Equal(other Entry) bool {
	return e.tag == other.tag && e.mode == other.mode && bytes.Equal(e.wire, other.wire)
}

// singleKey returns the only key of the JSON object in data and its
// compacted value.
func singleKey(data []byte) (Tag, json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return "", nil, errdef.Malformed(errdef.RuleJSON, "invalid etsiU entry").Wrap(err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return "", nil, errdef.Malformed(errdef.RuleJSON, "etsiU entry is not a JSON object")
	}
	var keys []string
	var value json.RawMessage
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return "", nil, errdef.Malformed(errdef.RuleJSON, "invalid etsiU entry").Wrap(err)
		}
		key, ok := tok.(string)
		if !ok {
			return "", nil, errdef.Malformed(errdef.RuleJSON, "invalid etsiU entry key")
		}
		keys = append(keys, key)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return "", nil, errdef.Malformed(errdef.RuleJSON, "invalid value for etsiU component %q", key).Wrap(err)
		}
		value = raw
	}
	if _, err := dec.Token(); err != nil {
		return "", nil, errdef.Malformed(errdef.RuleJSON, "invalid etsiU entry").Wrap(err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return "", nil, errdef.Malformed(errdef.RuleJSON, "trailing data after etsiU entry")
	}
	if len(keys) != 1 {
		return "", nil, errdef.Malformed(errdef.RuleMultiKeyEntry, "an etsiU entry must contain exactly one component, found %d %q", len(keys), keys)
	}
	compacted, err := compact(value)
	if err != nil {
		return "", nil, err
	}
	return Tag(keys[0]), compacted, nil
}

func compact(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, errdef.Malformed(errdef.RuleJSON, "invalid JSON").Wrap(err)
	}
	return buf.Bytes(), nil
}

// marshal encodes v as compact JSON without HTML escaping.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
