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

package jws

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/notaryproject/jades-go/errdef"
)

// Header parameter names.
const (
	HeaderAlg     = "alg"
	HeaderCty     = "cty"
	HeaderKid     = "kid"
	HeaderX5c     = "x5c"
	HeaderX5tS256 = "x5t#S256"
	HeaderTyp     = "typ"
	HeaderB64     = "b64"
	HeaderCrit    = "crit"

	HeaderSigT    = "sigT"
	HeaderX5tO    = "x5t#o"
	HeaderSigX5ts = "sigX5t#S"
	HeaderSrCms   = "srCms"
	HeaderSigPl   = "sigPl"
	HeaderSrAts   = "srAts"
	HeaderAdoTst  = "adoTst"
	HeaderSigPID  = "sigPId"
	HeaderSigD    = "sigD"
)

// registeredHeaders are defined by RFC 7515 and RFC 7518 and never listed
// in "crit".
var registeredHeaders = map[string]bool{
	"alg": true, "jku": true, "jwk": true, "kid": true, "x5u": true,
	"x5c": true, "x5t": true, "x5t#S256": true, "typ": true, "cty": true,
	"crit": true, "enc": true, "zip": true, "epk": true, "apu": true,
	"apv": true, "iv": true, "tag": true, "p2s": true, "p2c": true,
}

// criticalHeaders are the extension headers this module understands when
// they appear in "crit".
var criticalHeaders = map[string]bool{
	HeaderSigT: true, HeaderX5tO: true, HeaderSigX5ts: true,
	HeaderSrCms: true, HeaderSigPl: true, HeaderSrAts: true,
	HeaderAdoTst: true, HeaderSigPID: true, HeaderSigD: true,
	HeaderB64: true,
}

// IsRegisteredHeader reports whether name is an RFC 7515/7518 header.
func IsRegisteredHeader(name string) bool {
	return registeredHeaders[name]
}

// IsSupportedCritical reports whether name may be listed in "crit".
func IsSupportedCritical(name string) bool {
	return criticalHeaders[name]
}

// Header is a JSON object that keeps the order of its members.
type Header struct {
	keys   []string
	values map[string]json.RawMessage
}

// NewHeader returns an empty header.
func NewHeader() *Header {
	return &Header{values: make(map[string]json.RawMessage)}
}

// Len returns the number of members.
func (h *Header) Len() int {
	if h == nil {
		return 0
	}
	return len(h.keys)
}

// Keys returns the member names in order.
func (h *Header) Keys() []string {
	if h == nil {
		return nil
	}
	return append([]string(nil), h.keys...)
}

// Has reports whether the member exists.
func (h *Header) Has(name string) bool {
	if h == nil {
		return false
	}
	_, ok := h.values[name]
	return ok
}

// Get returns the raw member value.
func (h *Header) Get(name string) (json.RawMessage, bool) {
	if h == nil {
		return nil, false
	}
	v, ok := h.values[name]
	return v, ok
}

// Decode unmarshals the member into v. It returns false when the member is
// absent.
func (h *Header) Decode(name string, v any) (bool, error) {
	raw, ok := h.Get(name)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, errdef.Malformed(errdef.RuleHeader, "invalid %q header", name).Wrap(err)
	}
	return true, nil
}

// Set marshals v into the member. An existing member keeps its position.
func (h *Header) Set(name string, v any) error {
	raw, err := marshalJSON(v)
	if err != nil {
		return err
	}
	h.SetRaw(name, raw)
	return nil
}

// SetRaw stores raw JSON into the member.
func (h *Header) SetRaw(name string, raw json.RawMessage) {
	if h.values == nil {
		h.values = make(map[string]json.RawMessage)
	}
	if _, ok := h.values[name]; !ok {
		h.keys = append(h.keys, name)
	}
	h.values[name] = append(json.RawMessage(nil), raw...)
}

// Delete removes the member.
func (h *Header) Delete(name string) {
	if !h.Has(name) {
		return
	}
	delete(h.values, name)
	for i, k := range h.keys {
		if k == name {
			h.keys = append(h.keys[:i:i], h.keys[i+1:]...)
			break
		}
	}
}

// Clone returns a deep copy of h.
func (h *Header) Clone() *Header {
	out := NewHeader()
	if h == nil {
		return out
	}
	for _, k := range h.keys {
		out.SetRaw(k, h.values[k])
	}
	return out
}

// MarshalJSON encodes the members in order.
func (h *Header) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range h.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := marshalJSON(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(h.values[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping member order. Duplicate
// member names are rejected (RFC 7515 section 4).
func (h *Header) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return errdef.Malformed(errdef.RuleJSON, "invalid JSON object").Wrap(err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errdef.Malformed(errdef.RuleJSON, "expected a JSON object")
	}
	out := NewHeader()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return errdef.Malformed(errdef.RuleJSON, "invalid JSON object").Wrap(err)
		}
		name, ok := tok.(string)
		if !ok {
			return errdef.Malformed(errdef.RuleJSON, "invalid member name")
		}
		if out.Has(name) {
			return errdef.Malformed(errdef.RuleDuplicateHeader, "duplicate member %q", name)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return errdef.Malformed(errdef.RuleJSON, "invalid value for member %q", name).Wrap(err)
		}
		var compacted bytes.Buffer
		if err := json.Compact(&compacted, raw); err != nil {
			return errdef.Malformed(errdef.RuleJSON, "invalid value for member %q", name).Wrap(err)
		}
		out.SetRaw(name, compacted.Bytes())
	}
	if _, err := dec.Token(); err != nil {
		return errdef.Malformed(errdef.RuleJSON, "invalid JSON object").Wrap(err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return errdef.Malformed(errdef.RuleJSON, "trailing data after JSON object")
	}
	*h = *out
	return nil
}

// marshalJSON encodes v as compact JSON without HTML escaping, so the bytes
// match what a JOSE producer would emit.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
