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
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/etsiu"
	"github.com/notaryproject/jades-go/internal/encoding/base64url"
)

// idNamespace scopes the name based UUIDs used as signature identifiers.
var idNamespace = uuid.MustParse("0d5f5a3e-5b7e-4f3c-9b0a-6a1d2c3e4f50")

// Envelope is one signature unit: a protected header, an optional payload,
// the signature value and an unprotected header.
//
// The protected header, the payload and the signature value are fixed at
// construction. Methods that change the unprotected header return a new
// Envelope and leave the receiver untouched.
type Envelope struct {
	protected   string
	header      *Header
	payload     []byte
	detached    bool
	signature   []byte
	unprotected *Header

	// members is the JSON object e was parsed from, if any.
	members *Header
}

// EncodeProtected returns the base64url form of a protected header.
func EncodeProtected(h *Header) (string, error) {
	b, err := h.MarshalJSON()
	if err != nil {
		return "", err
	}
	return base64url.Encode(b), nil
}

// SigningInput returns the JWS Signing Input (RFC 7515 section 5.1, RFC 7797
// section 3) for a protected header and a payload.
func SigningInput(protected string, payload []byte, b64 bool) []byte {
	return SigningInputFromRepresentation(protected, payloadRepresentation(payload, b64))
}

// SigningInputFromRepresentation joins the protected header and an already
// encoded payload representation, as produced by detachment mechanisms that
// encode each referenced document separately.
func SigningInputFromRepresentation(protected string, representation []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(protected) + 1 + len(representation))
	buf.WriteString(protected)
	buf.WriteByte('.')
	buf.Write(representation)
	return buf.Bytes()
}

// NewEnvelope assembles a signed envelope. protected is the exact base64url
// string that was signed.
func NewEnvelope(protected string, payload []byte, detached bool, signature []byte) (*Envelope, error) {
	header, err := decodeProtected(protected)
	if err != nil {
		return nil, err
	}
	e := &Envelope{
		protected: protected,
		header:    header,
		detached:  detached,
		signature: append([]byte(nil), signature...),
	}
	if !detached {
		e.payload = append([]byte{}, payload...)
	}
	return e, nil
}

func decodeProtected(protected string) (*Header, error) {
	raw, err := base64url.Decode(protected)
	if err != nil {
		return nil, errdef.Malformed(errdef.RuleBase64URL, "protected header is not base64url encoded").Wrap(err)
	}
	header := NewHeader()
	if err := json.Unmarshal(raw, header); err != nil {
		var derr *errdef.Error
		if errors.As(err, &derr) {
			return nil, derr
		}
		return nil, errdef.Malformed(errdef.RuleJSON, "protected header is not a JSON object").Wrap(err)
	}
	if !header.Has(HeaderAlg) {
		return nil, errdef.Malformed(errdef.RuleHeader, "protected header is missing %q", HeaderAlg)
	}
	if err := checkCritical(header); err != nil {
		return nil, err
	}
	return header, nil
}

// checkCritical validates "crit" per RFC 7515 section 4.1.11: a non-empty
// list of understood extension headers, each present in the protected header.
func checkCritical(header *Header) error {
	var crit []string
	found, err := header.Decode(HeaderCrit, &crit)
	if err != nil {
		return errdef.Malformed(errdef.RuleHeader, "%q must be an array of header names", HeaderCrit).Wrap(err)
	}
	if !found {
		return nil
	}
	if len(crit) == 0 {
		return errdef.Malformed(errdef.RuleHeader, "%q must not be empty", HeaderCrit)
	}
	for _, name := range crit {
		switch {
		case IsRegisteredHeader(name):
			return errdef.Malformed(errdef.RuleHeader, "%q lists the registered header %q", HeaderCrit, name)
		case !IsSupportedCritical(name):
			return errdef.Unsupported(errdef.RuleHeader, "critical header %q is not understood", name)
		case !header.Has(name):
			return errdef.Malformed(errdef.RuleHeader, "critical header %q is not in the protected header", name)
		}
	}
	return nil
}

// Protected returns the protected header as base64url.
func (e *Envelope) Protected() string {
	return e.protected
}

// ProtectedHeader returns a copy of the decoded protected header.
func (e *Envelope) ProtectedHeader() *Header {
	return e.header.Clone()
}

// Algorithm returns the "alg" header value.
func (e *Envelope) Algorithm() string {
	var alg string
	e.header.Decode(HeaderAlg, &alg)
	return alg
}

// B64 returns the "b64" header value. It defaults to true.
func (e *Envelope) B64() bool {
	b64 := true
	e.header.Decode(HeaderB64, &b64)
	return b64
}

// Detached reports whether the payload is carried outside the envelope.
func (e *Envelope) Detached() bool {
	return e.detached
}

// Payload returns a copy of the payload, or nil when detached.
func (e *Envelope) Payload() []byte {
	if e.detached {
		return nil
	}
	return append([]byte{}, e.payload...)
}

// PayloadRepresentation returns the payload as it appears in the signing
// input: base64url encoded unless b64 is false, empty when detached.
func (e *Envelope) PayloadRepresentation() []byte {
	if e.detached {
		return []byte{}
	}
	return payloadRepresentation(e.payload, e.B64())
}

func payloadRepresentation(payload []byte, b64 bool) []byte {
	if b64 {
		return []byte(base64url.Encode(payload))
	}
	return append([]byte{}, payload...)
}

// SigningInput returns the bytes covered by the signature value. For a
// detached envelope the caller supplies the payload representation computed
// from the detached documents.
func (e *Envelope) SigningInput(detachedRepresentation []byte) []byte {
	if e.detached {
		return SigningInputFromRepresentation(e.protected, detachedRepresentation)
	}
	return SigningInput(e.protected, e.payload, e.B64())
}

// Signature returns a copy of the raw signature value.
func (e *Envelope) Signature() []byte {
	return append([]byte(nil), e.signature...)
}

// SignatureB64 returns the base64url signature value.
func (e *Envelope) SignatureB64() string {
	return base64url.Encode(e.signature)
}

// ID returns the signature identifier, a name based UUID derived from the
// signature value. It is stable across parsing and serialization. Two
// signatures with the same value, such as deterministic RSA signatures of
// the same input, share an identifier; Find refuses such an identifier.
func (e *Envelope) ID() string {
	return "id-" + uuid.NewSHA1(idNamespace, e.signature).String()
}

// UnprotectedHeader returns a copy of the unprotected header. It is empty
// when the envelope has none.
func (e *Envelope) UnprotectedHeader() *Header {
	return e.unprotected.Clone()
}

// HasUnprotectedHeader reports whether the envelope carries any unprotected
// header member.
func (e *Envelope) HasUnprotectedHeader() bool {
	return e.unprotected.Len() > 0
}

// WithUnprotectedHeader returns a copy of e using h as unprotected header.
func (e *Envelope) WithUnprotectedHeader(h *Header) *Envelope {
	out := e.Clone()
	if h.Len() == 0 {
		out.unprotected = nil
	} else {
		out.unprotected = h.Clone()
	}
	return out
}

// Ledger parses the etsiU ledger. An envelope without one yields an empty
// ledger.
func (e *Envelope) Ledger() (*etsiu.Ledger, error) {
	raw, ok := e.unprotected.Get(etsiu.HeaderName)
	if !ok {
		return &etsiu.Ledger{}, nil
	}
	l, err := etsiu.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("signature %s: %w", e.ID(), err)
	}
	return l, nil
}

// WithLedger returns a copy of e carrying l as its etsiU ledger. An empty
// ledger removes the member.
func (e *Envelope) WithLedger(l *etsiu.Ledger) (*Envelope, error) {
	h := e.UnprotectedHeader()
	if l == nil || l.Len() == 0 {
		h.Delete(etsiu.HeaderName)
		return e.WithUnprotectedHeader(h), nil
	}
	raw, err := l.MarshalJSON()
	if err != nil {
		return nil, err
	}
	h.SetRaw(etsiu.HeaderName, raw)
	return e.WithUnprotectedHeader(h), nil
}

// Clone returns a deep copy of e.
func (e *Envelope) Clone() *Envelope {
	out := &Envelope{
		protected: e.protected,
		header:    e.header.Clone(),
		detached:  e.detached,
		signature: append([]byte(nil), e.signature...),
	}
	if !e.detached {
		out.payload = append([]byte{}, e.payload...)
	}
	if e.unprotected != nil {
		out.unprotected = e.unprotected.Clone()
	}
	if e.members != nil {
		out.members = e.members.Clone()
	}
	return out
}
