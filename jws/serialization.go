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

// Package jws models JAdES signatures as JWS envelopes and maps them to and
// from the three JWS serializations.
//
// Reference: RFC 7515 JSON Web Signature (JWS), RFC 7797 JWS Unencoded
// Payload Option.
package jws

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/internal/encoding/base64url"
)

// Media types of serialized signatures.
const (
	MediaTypeCompact = "application/jose"
	MediaTypeJSON    = "application/jose+json"
)

// Serialization is a JWS wire form.
type Serialization int

const (
	// Compact is the period separated base64url triplet (RFC 7515 7.1).
	Compact Serialization = iota + 1

	// Flattened is the single signature JSON object (RFC 7515 7.2.2).
	Flattened

	// General is the JSON object with a "signatures" array (RFC 7515 7.2.1).
	General
)

// String returns the name of the serialization.
func (s Serialization) String() string {
	switch s {
	case Compact:
		return "compact"
	case Flattened:
		return "flattened"
	case General:
		return "general"
	}
	return fmt.Sprintf("serialization(%d)", int(s))
}

// MediaType returns the media type of the serialization.
func (s Serialization) MediaType() string {
	if s == Compact {
		return MediaTypeCompact
	}
	return MediaTypeJSON
}

// IsJSON reports whether s is one of the JSON serializations.
func (s Serialization) IsJSON() bool {
	return s == Flattened || s == General
}

// ParseSerialization parses the name of a serialization.
func ParseSerialization(name string) (Serialization, error) {
	switch strings.ToLower(name) {
	case "compact":
		return Compact, nil
	case "flattened", "flattened_json":
		return Flattened, nil
	case "general", "json", "general_json":
		return General, nil
	}
	return 0, fmt.Errorf("unknown JWS serialization %q", name)
}

// Document is a parsed JWS: one or more signatures over a common payload.
type Document struct {
	Serialization Serialization
	Signatures    []*Envelope

	// members is the top-level JSON object d was parsed from.
	members *Header
}

// Parse parses a JWS in any serialization.
func Parse(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return ParseJSON(trimmed)
	}
	env, err := ParseCompact(string(trimmed))
	if err != nil {
		return nil, err
	}
	return &Document{Serialization: Compact, Signatures: []*Envelope{env}}, nil
}

// ParseCompact parses the JWS Compact Serialization. An empty payload
// segment is a detached payload.
func ParseCompact(serialized string) (*Envelope, error) {
	parts := strings.Split(serialized, ".")
	if len(parts) != 3 {
		return nil, wrapCompact(errdef.Malformed(errdef.RuleCompactSerialization,
			"expected 3 segments, found %d", len(parts)))
	}
	header, err := decodeProtected(parts[0])
	if err != nil {
		return nil, wrapCompact(err)
	}
	sig, err := base64url.Decode(parts[2])
	if err != nil {
		return nil, wrapCompact(errdef.Malformed(errdef.RuleBase64URL, "signature is not base64url encoded").Wrap(err))
	}
	e := &Envelope{
		protected: parts[0],
		header:    header,
		signature: sig,
		detached:  parts[1] == "",
	}
	if e.detached {
		return e, nil
	}
	if e.B64() {
		payload, err := base64url.Decode(parts[1])
		if err != nil {
			return nil, wrapCompact(errdef.Malformed(errdef.RuleBase64URL, "payload is not base64url encoded").Wrap(err))
		}
		e.payload = payload
		return e, nil
	}
	payload := []byte(parts[1])
	if err := CheckUnencodedPayload(payload, Compact); err != nil {
		return nil, wrapCompact(err)
	}
	e.payload = payload
	return e, nil
}

// ParseJSON parses the flattened or general JWS JSON Serialization.
func ParseJSON(data []byte) (*Document, error) {
	top := NewHeader()
	if err := json.Unmarshal(data, top); err != nil {
		return nil, wrapJSON(err)
	}
	var payload *string
	payloadUTF8 := true
	if raw, ok := top.Get("payload"); ok {
		// encoding/json replaces invalid UTF-8 with U+FFFD, so validate the
		// raw member first.
		payloadUTF8 = base64url.IsUTF8(raw)
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, wrapJSON(errdef.Malformed(errdef.RuleJSON, "payload must be a string").Wrap(err))
		}
		payload = &s
	}

	var units []jsonSignature
	var objects []*Header
	serialization := Flattened
	if raw, ok := top.Get("signatures"); ok {
		for _, member := range []string{"protected", "header", "signature"} {
			if top.Has(member) {
				return nil, wrapJSON(errdef.Malformed(errdef.RuleGeneralSignatures,
					"member %q is not allowed next to \"signatures\"", member))
			}
		}
		if err := json.Unmarshal(raw, &units); err != nil {
			return nil, wrapJSON(errdef.Malformed(errdef.RuleGeneralSignatures, "invalid signatures array").Wrap(err))
		}
		if err := json.Unmarshal(raw, &objects); err != nil {
			return nil, wrapJSON(errdef.Malformed(errdef.RuleGeneralSignatures, "invalid signatures array").Wrap(err))
		}
		if len(units) == 0 {
			return nil, wrapJSON(errdef.Malformed(errdef.RuleGeneralSignatures, "signatures array is empty"))
		}
		serialization = General
	} else {
		var unit jsonSignature
		if err := json.Unmarshal(data, &unit); err != nil {
			return nil, wrapJSON(err)
		}
		units = []jsonSignature{unit}
		objects = []*Header{top}
	}

	doc := &Document{Serialization: serialization, members: top}
	for i, unit := range units {
		e, err := unit.envelope(payload, payloadUTF8, serialization)
		if err != nil {
			return nil, wrapJSON(fmt.Errorf("signature %d: %w", i, err))
		}
		e.members = objects[i]
		doc.Signatures = append(doc.Signatures, e)
	}
	if err := checkSharedB64(doc.Signatures); err != nil {
		return nil, wrapJSON(err)
	}
	return doc, nil
}

// jsonSignature is one signature of a JSON serialization.
type jsonSignature struct {
	Protected string  `json:"protected"`
	Header    *Header `json:"header,omitempty"`
	Signature string  `json:"signature"`
}

func (u jsonSignature) envelope(payload *string, payloadUTF8 bool, serialization Serialization) (*Envelope, error) {
	if u.Protected == "" {
		return nil, errdef.Malformed(errdef.RuleHeader, "missing protected header")
	}
	header, err := decodeProtected(u.Protected)
	if err != nil {
		return nil, err
	}
	sig, err := base64url.Decode(u.Signature)
	if err != nil {
		return nil, errdef.Malformed(errdef.RuleBase64URL, "signature is not base64url encoded").Wrap(err)
	}
	e := &Envelope{
		protected: u.Protected,
		header:    header,
		signature: sig,
		detached:  payload == nil,
	}
	if u.Header.Len() > 0 {
		e.unprotected = u.Header.Clone()
	}
	if e.detached {
		return e, nil
	}
	if e.B64() {
		b, err := base64url.Decode(*payload)
		if err != nil {
			return nil, errdef.Malformed(errdef.RuleBase64URL, "payload is not base64url encoded").Wrap(err)
		}
		e.payload = b
		return e, nil
	}
	if !payloadUTF8 && serialization != Compact {
		return nil, errUnencodedUTF8(serialization)
	}
	b := []byte(*payload)
	if err := CheckUnencodedPayload(b, serialization); err != nil {
		return nil, err
	}
	e.payload = b
	return e, nil
}

// CheckUnencodedPayload validates a b64=false payload for a serialization.
func CheckUnencodedPayload(payload []byte, s Serialization) error {
	if s == Compact {
		if !base64url.IsSafeLiteral(payload) {
			return errdef.Malformed(errdef.RuleUnsafePayload,
				"The payload contains not URL-safe characters! With Unencoded Payload ('b64' = false) only ASCII characters in ranges %%x20-2D and %%x2F-7E are allowed for a COMPACT_SERIALIZATION!").
				WithSerialization(s.String())
		}
		return nil
	}
	if !base64url.IsUTF8(payload) {
		return errUnencodedUTF8(s)
	}
	return nil
}

func errUnencodedUTF8(s Serialization) error {
	return errdef.Malformed(errdef.RuleInvalidUTF8Payload,
		"The payload contains not valid content! With Unencoded Payload ('b64' = false) only UTF-8 characters are allowed!").
		WithSerialization(s.String())
}

// checkSharedB64 enforces a single b64 value across parallel signatures.
func checkSharedB64(signatures []*Envelope) error {
	for _, e := range signatures[1:] {
		if e.B64() != signatures[0].B64() {
			return errdef.Malformed(errdef.RuleB64Mismatch,
				"'b64' header values of all signatures must be the same").WithSignature(e.ID())
		}
	}
	return nil
}

// Generate serializes d in d.Serialization. Members of a parsed JSON
// serialization that are not part of the JWS model are written back in
// their original order.
func (d *Document) Generate() ([]byte, error) {
	return generate(d.Signatures, d.Serialization, d.members)
}

// Generate serializes signatures over a common payload in the requested
// serialization.
func Generate(signatures []*Envelope, s Serialization) ([]byte, error) {
	return generate(signatures, s, nil)
}

func generate(signatures []*Envelope, s Serialization, members *Header) ([]byte, error) {
	if len(signatures) == 0 {
		return nil, errdef.Missing(errdef.RuleNoSignature, "no signature to serialize")
	}
	switch s {
	case Compact:
		if len(signatures) > 1 {
			return nil, errdef.Unsupported(errdef.RuleCompactParallel,
				"parallel signatures are not supported with the compact serialization").WithSerialization(s.String())
		}
		return generateCompact(signatures[0])
	case Flattened:
		if len(signatures) > 1 {
			return nil, errdef.Unsupported(errdef.RuleFlattenedSignatures,
				"the flattened serialization holds exactly one signature, found %d", len(signatures)).WithSerialization(s.String())
		}
		return generateFlattened(signatures[0])
	case General:
		return generateGeneral(signatures, members)
	}
	return nil, fmt.Errorf("unknown JWS serialization %d", int(s))
}

func generateCompact(e *Envelope) ([]byte, error) {
	if e.HasUnprotectedHeader() {
		return nil, errdef.Unsupported(errdef.RuleCompactUnsignedData,
			"the compact serialization cannot carry an unprotected header").
			WithSignature(e.ID()).WithSerialization(Compact.String())
	}
	var payload []byte
	if !e.detached {
		if !e.B64() {
			if err := CheckUnencodedPayload(e.payload, Compact); err != nil {
				return nil, err
			}
		}
		payload = e.PayloadRepresentation()
	}
	var buf bytes.Buffer
	buf.WriteString(e.protected)
	buf.WriteByte('.')
	buf.Write(payload)
	buf.WriteByte('.')
	buf.WriteString(e.SignatureB64())
	return buf.Bytes(), nil
}

func generateFlattened(e *Envelope) ([]byte, error) {
	top := NewHeader()
	if err := setPayload(top, []*Envelope{e}, Flattened); err != nil {
		return nil, err
	}
	if err := setSignature(top, e); err != nil {
		return nil, err
	}
	return arrange(top, e.members).MarshalJSON()
}

func generateGeneral(signatures []*Envelope, members *Header) ([]byte, error) {
	if err := checkSharedB64(signatures); err != nil {
		return nil, err
	}
	top := NewHeader()
	if err := setPayload(top, signatures, General); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range signatures {
		if i > 0 {
			buf.WriteByte(',')
		}
		unit := NewHeader()
		if err := setSignature(unit, e); err != nil {
			return nil, err
		}
		b, err := arrange(unit, e.members).MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	top.SetRaw("signatures", buf.Bytes())
	return arrange(top, members).MarshalJSON()
}

// jsonMembers are the members of a JWS JSON serialization that are rebuilt
// from the envelopes.
var jsonMembers = map[string]bool{
	"payload": true, "signatures": true, "protected": true, "header": true, "signature": true,
}

// arrange returns out with the member order of the object it was parsed
// from. Members of parsed that are not JWS members keep their original value.
// When out has members parsed lacks, as after a change of serialization, out
// keeps its order and each unknown member follows the JWS member it followed
// in parsed.
func arrange(out, parsed *Header) *Header {
	if parsed.Len() == 0 {
		return out
	}
	res := NewHeader()
	same := true
	for _, k := range out.Keys() {
		if !parsed.Has(k) {
			same = false
			break
		}
	}
	if same {
		for _, k := range parsed.Keys() {
			src := parsed
			if jsonMembers[k] {
				src = out
			}
			if v, ok := src.Get(k); ok {
				res.SetRaw(k, v)
			}
		}
		return res
	}

	following := make(map[string][]string)
	prev := ""
	for _, k := range parsed.Keys() {
		if jsonMembers[k] {
			prev = k
			continue
		}
		following[prev] = append(following[prev], k)
	}
	put := func(anchor string) {
		for _, k := range following[anchor] {
			v, _ := parsed.Get(k)
			res.SetRaw(k, v)
		}
		delete(following, anchor)
	}
	put("")
	for _, k := range out.Keys() {
		v, _ := out.Get(k)
		res.SetRaw(k, v)
		put(k)
	}
	for _, k := range parsed.Keys() {
		put(k)
	}
	return res
}

// setPayload writes the shared payload member. All signatures must agree on
// the payload and on whether it is detached.
func setPayload(top *Header, signatures []*Envelope, s Serialization) error {
	first := signatures[0]
	for _, e := range signatures[1:] {
		if e.detached != first.detached || !bytes.Equal(e.payload, first.payload) {
			return errdef.Malformed(errdef.RuleGeneralSignatures,
				"parallel signatures must share the same payload").WithSignature(e.ID())
		}
	}
	if first.detached {
		return nil
	}
	if !first.B64() {
		if err := CheckUnencodedPayload(first.payload, s); err != nil {
			return err
		}
	}
	return top.Set("payload", string(first.PayloadRepresentation()))
}

func setSignature(unit *Header, e *Envelope) error {
	if err := unit.Set("protected", e.protected); err != nil {
		return err
	}
	if e.HasUnprotectedHeader() {
		raw, err := e.unprotected.MarshalJSON()
		if err != nil {
			return err
		}
		unit.SetRaw("header", raw)
	} else if e.members.Has("header") {
		unit.SetRaw("header", json.RawMessage("{}"))
	}
	return unit.Set("signature", e.SignatureB64())
}

func wrapCompact(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidCompactSerialization, err)
}

func wrapJSON(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidJSONSerialization, err)
}
