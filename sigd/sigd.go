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

// Package sigd implements the detached content mechanisms of the JAdES sigD
// header parameter (ETSI TS 119 182-1 clause 5.2.8).
package sigd

import (
	"bytes"
	"crypto"
	"fmt"
	"strings"

	"github.com/notaryproject/jades-go/document"
	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/internal/encoding/base64url"
	"github.com/notaryproject/jades-go/jws"
)

// baseURI prefixes the mId of every mechanism.
const baseURI = "http://uri.etsi.org/19182/"

// Mechanism is a detached content mechanism.
type Mechanism int

const (
	// NoSigD detaches a single document without a sigD header.
	NoSigD Mechanism = iota + 1

	// HTTPHeaders signs HTTP header fields. It requires b64=false.
	HTTPHeaders

	// ObjectIDByURI signs the concatenation of the referenced documents.
	ObjectIDByURI

	// ObjectIDByURIHash signs the digests of the referenced documents
	// embedded in the sigD header, with an empty JWS payload.
	ObjectIDByURIHash
)

var mechanismNames = map[Mechanism]string{
	NoSigD:            "NO_SIG_D",
	HTTPHeaders:       "HTTP_HEADERS",
	ObjectIDByURI:     "OBJECT_ID_BY_URI",
	ObjectIDByURIHash: "OBJECT_ID_BY_URI_HASH",
}

var mechanismURIs = map[Mechanism]string{
	HTTPHeaders:       baseURI + "HttpHeaders",
	ObjectIDByURI:     baseURI + "ObjectIdByURI",
	ObjectIDByURIHash: baseURI + "ObjectIdByURIHash",
}

// String returns the configuration name of m.
func (m Mechanism) String() string {
	if name, ok := mechanismNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mechanism(%d)", int(m))
}

// URI returns the mId value of m, or empty for NoSigD.
func (m Mechanism) URI() string {
	return mechanismURIs[m]
}

// ParseMechanism parses a mechanism configuration name.
func ParseMechanism(name string) (Mechanism, error) {
	for m, n := range mechanismNames {
		if strings.EqualFold(n, name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown sigD mechanism %q", name)
}

// mechanismFromURI resolves an mId value.
func mechanismFromURI(uri string) (Mechanism, bool) {
	for m, u := range mechanismURIs {
		if u == uri {
			return m, true
		}
	}
	return 0, false
}

// SigD is the value of the sigD header parameter.
type SigD struct {
	MID   string   `json:"mId"`
	Pars  []string `json:"pars"`
	HashM string   `json:"hashM,omitempty"`
	HashV []string `json:"hashV,omitempty"`
	Ctys  []string `json:"ctys,omitempty"`
}

// Mechanism returns the mechanism named by the mId member.
func (s *SigD) Mechanism() (Mechanism, error) {
	m, ok := mechanismFromURI(s.MID)
	if !ok {
		return 0, errdef.Unsupported(errdef.RuleSigD, "the 'sigD' mechanism %q is not supported", s.MID)
	}
	return m, nil
}

var hashIDs = map[crypto.Hash]string{
	crypto.SHA256: "S256",
	crypto.SHA384: "S384",
	crypto.SHA512: "S512",
}

// HashID returns the JAdES identifier of a digest algorithm used in hashM.
func HashID(h crypto.Hash) (string, error) {
	if id, ok := hashIDs[h]; ok {
		return id, nil
	}
	return "", errdef.Unsupported(errdef.RuleAlgorithm, "digest algorithm %v has no JAdES identifier", h)
}

// ParseHashID resolves a hashM identifier.
func ParseHashID(id string) (crypto.Hash, error) {
	for h, s := range hashIDs {
		if s == id {
			return h, nil
		}
	}
	return 0, errdef.Unsupported(errdef.RuleAlgorithm, "unknown hashM identifier %q", id)
}

// Check validates the documents for a detached signature using m.
func Check(m Mechanism, docs []document.Document, b64 bool) error {
	if len(docs) == 0 {
		return errdef.Missing(errdef.RuleMissingDocuments, "the detached content is not provided").WithMechanism(m.String())
	}
	switch m {
	case NoSigD:
		if len(docs) > 1 {
			return errdef.Unsupported(errdef.RuleSigD,
				"Only one detached document is allowed with '%s' mechanism!", m).WithMechanism(m.String())
		}
		return nil
	case HTTPHeaders:
		if b64 {
			return errdef.Unsupported(errdef.RuleSigD,
				"'%s' SigD Mechanism can be used only with non-base64url encoded payload!", m.URI()).WithMechanism(m.String())
		}
		for _, doc := range docs {
			if _, ok := doc.(*document.HTTPHeader); !ok {
				return errdef.Malformed(errdef.RuleDocument,
					"document %q is not an HTTP header", doc.Name()).WithMechanism(m.String())
			}
		}
		return nil
	case ObjectIDByURI, ObjectIDByURIHash:
		seen := make(map[string]bool)
		for _, doc := range docs {
			name := doc.Name()
			if name == "" {
				return errdef.Malformed(errdef.RuleDocument,
					"the signed document must have a name with '%s' mechanism", m).WithMechanism(m.String())
			}
			if seen[name] {
				return errdef.Malformed(errdef.RuleDocument,
					"the documents contain elements with the same name %q", name).WithMechanism(m.String())
			}
			seen[name] = true
		}
		return nil
	}
	return errdef.Unsupported(errdef.RuleSigD, "the 'sigD' mechanism '%s' is not supported", m)
}

// Header builds the sigD header value for m. NoSigD has no header and
// returns nil. hash is the reference digest algorithm of ObjectIDByURIHash.
func Header(m Mechanism, docs []document.Document, b64 bool, hash crypto.Hash) (*SigD, error) {
	if err := Check(m, docs, b64); err != nil {
		return nil, err
	}
	switch m {
	case NoSigD:
		return nil, nil
	case HTTPHeaders:
		s := &SigD{MID: m.URI()}
		seen := make(map[string]bool)
		for _, doc := range docs {
			name := strings.ToLower(doc.Name())
			if !seen[name] {
				seen[name] = true
				s.Pars = append(s.Pars, name)
			}
		}
		return s, nil
	}

	s := &SigD{MID: m.URI()}
	for _, doc := range docs {
		s.Pars = append(s.Pars, doc.Name())
	}
	if m == ObjectIDByURIHash {
		id, err := HashID(hash)
		if err != nil {
			return nil, err
		}
		s.HashM = id
		for _, doc := range docs {
			sum, err := referenceDigest(doc, b64, hash)
			if err != nil {
				return nil, fmt.Errorf("failed to digest document %q: %w", doc.Name(), err)
			}
			s.HashV = append(s.HashV, base64url.Encode(sum))
		}
	}
	for _, doc := range docs {
		s.Ctys = append(s.Ctys, ContentType(doc.MediaType()))
	}
	return s, nil
}

// referenceDigest returns the hashV digest of doc: the digest of the raw
// content when b64 is false, of the base64url content otherwise. Digest-only
// documents always contribute their own digest.
func referenceDigest(doc document.Document, b64 bool, hash crypto.Hash) ([]byte, error) {
	content, ok := doc.Content()
	if !b64 || !ok {
		return doc.Digest(hash)
	}
	encoded := document.New([]byte(base64url.Encode(content)), "", "")
	return encoded.Digest(hash)
}

// ContentType returns the RFC 7515 form of a media type, omitting the
// "application/" prefix when no other slash is present.
func ContentType(mediaType string) string {
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	if rest, ok := strings.CutPrefix(mediaType, "application/"); ok && !strings.Contains(rest, "/") {
		return rest
	}
	return mediaType
}

// FromHeader returns the detachment mechanism declared by a protected
// header. A header without sigD yields NoSigD and a nil value.
func FromHeader(h *jws.Header) (Mechanism, *SigD, error) {
	var s SigD
	found, err := h.Decode(jws.HeaderSigD, &s)
	if err != nil {
		return 0, nil, errdef.Malformed(errdef.RuleSigD, "invalid 'sigD' header").Wrap(err)
	}
	if !found {
		return NoSigD, nil, nil
	}
	m, err := s.Mechanism()
	if err != nil {
		return 0, nil, err
	}
	if len(s.Pars) == 0 {
		return 0, nil, errdef.Malformed(errdef.RuleSigD, "'sigD' has no 'pars'").WithMechanism(m.String())
	}
	if m == ObjectIDByURIHash && len(s.HashV) != len(s.Pars) {
		return 0, nil, errdef.Malformed(errdef.RuleSigD,
			"'hashV' has %d elements, want %d", len(s.HashV), len(s.Pars)).WithMechanism(m.String())
	}
	return m, &s, nil
}

// Resolve orders docs as referenced by the pars member. Every reference must
// resolve to exactly one document.
func (s *SigD) Resolve(docs []document.Document) ([]document.Document, error) {
	m, err := s.Mechanism()
	if err != nil {
		return nil, err
	}
	byName := make(map[string][]document.Document)
	for _, doc := range docs {
		name := doc.Name()
		if m == HTTPHeaders {
			name = strings.ToLower(name)
		}
		byName[name] = append(byName[name], doc)
	}
	var out []document.Document
	for _, par := range s.Pars {
		matched := byName[par]
		if len(matched) == 0 {
			return nil, errdef.Missing(errdef.RuleMissingDocuments,
				"no document found for reference %q", par).WithMechanism(m.String())
		}
		if m != HTTPHeaders && len(matched) > 1 {
			return nil, errdef.Malformed(errdef.RuleDocument,
				"reference %q matches %d documents", par, len(matched)).WithMechanism(m.String())
		}
		out = append(out, matched...)
	}
	return out, nil
}

// VerifyHashes compares the hashV digests against the documents resolved by
// Resolve.
func (s *SigD) VerifyHashes(docs []document.Document, b64 bool) error {
	hash, err := ParseHashID(s.HashM)
	if err != nil {
		return err
	}
	if len(docs) != len(s.HashV) {
		return errdef.Malformed(errdef.RuleSigD, "'hashV' has %d elements for %d documents", len(s.HashV), len(docs))
	}
	for i, doc := range docs {
		sum, err := referenceDigest(doc, b64, hash)
		if err != nil {
			return err
		}
		if base64url.Encode(sum) != s.HashV[i] {
			return errdef.Malformed(errdef.RuleSigD, "digest of document %q does not match 'hashV'", doc.Name()).
				WithMechanism(ObjectIDByURIHash.String())
		}
	}
	return nil
}

// Payload returns the JWS payload representation that enters the signing
// input of a detached signature. It is empty for ObjectIDByURIHash.
func Payload(m Mechanism, docs []document.Document, b64 bool) ([]byte, error) {
	if m == ObjectIDByURIHash {
		return []byte{}, nil
	}
	return Octets(m, docs, b64)
}

// Octets returns the bytes of the signed data objects, as covered by content
// and archive timestamps: the ordered concatenation of each document, base64url
// encoded unless b64 is false, or the HTTP header octets.
func Octets(m Mechanism, docs []document.Document, b64 bool) ([]byte, error) {
	if err := Check(m, docs, b64); err != nil {
		return nil, err
	}
	if m == HTTPHeaders {
		return headerOctets(docs), nil
	}
	var buf bytes.Buffer
	for _, doc := range docs {
		content, ok := doc.Content()
		if !ok {
			return nil, errdef.Missing(errdef.RuleMissingDocuments,
				"the content of document %q is not available", doc.Name()).WithMechanism(m.String())
		}
		if b64 {
			buf.WriteString(base64url.Encode(content))
		} else {
			buf.Write(content)
		}
	}
	return buf.Bytes(), nil
}

// headerOctets builds the signing string of HTTP header fields: one
// "name: value" line per lowercased field name in first appearance order,
// repeated fields joined with ", ", lines separated by a newline.
func headerOctets(docs []document.Document) []byte {
	var names []string
	values := make(map[string][]string)
	for _, doc := range docs {
		name := strings.ToLower(doc.Name())
		if _, ok := values[name]; !ok {
			names = append(names, name)
		}
		content, _ := doc.Content()
		values[name] = append(values[name], strings.TrimSpace(string(content)))
	}
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, name+": "+strings.Join(values[name], ", "))
	}
	return []byte(strings.Join(lines, "\n"))
}
