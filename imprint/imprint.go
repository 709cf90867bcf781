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

// Package imprint builds the byte sequences attested by JAdES timestamps.
package imprint

import (
	"bytes"
	"crypto"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"errors"
	"fmt"

	"github.com/notaryproject/jades-go/document"
	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/etsiu"
	"github.com/notaryproject/jades-go/jws"
	"github.com/notaryproject/jades-go/sigd"
)

// Kind is a timestamp kind.
type Kind int

const (
	// KindContent is a content timestamp (adoTst).
	KindContent Kind = iota + 1

	// KindSignature is a signature timestamp (sigTst).
	KindSignature

	// KindArchive is an archive timestamp (arcTst).
	KindArchive
)

// String returns the header or ledger name of the timestamp kind.
func (k Kind) String() string {
	switch k {
	case KindContent:
		return jws.HeaderAdoTst
	case KindSignature:
		return string(etsiu.TagSigTst)
	case KindArchive:
		return string(etsiu.TagArcTst)
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// HasDetachedContent is implemented by inputs carrying the documents of a
// detached signature.
type HasDetachedContent interface {
	DetachedContents() []document.Document
}

// Documents is a list of detached documents.
type Documents []document.Document

// DetachedContents implements HasDetachedContent.
func (d Documents) DetachedContents() []document.Document {
	return d
}

// SignedData returns the representation of the signed data of e as covered
// by timestamps. For an enveloping signature it is the JWS payload
// representation. For a detached signature it is computed from the documents
// of content by the signature's detachment mechanism; with
// OBJECT_ID_BY_URI_HASH the documents must match the signed "hashV" digests.
func SignedData(e *jws.Envelope, content HasDetachedContent) ([]byte, error) {
	if !e.Detached() {
		return e.PayloadRepresentation(), nil
	}
	var docs []document.Document
	if content != nil {
		docs = content.DetachedContents()
	}
	m, s, err := sigd.FromHeader(e.ProtectedHeader())
	if err != nil {
		return nil, err
	}
	if s != nil {
		if docs, err = s.Resolve(docs); err != nil {
			return nil, withSignature(err, e)
		}
		if m == sigd.ObjectIDByURIHash {
			if err := s.VerifyHashes(docs, e.B64()); err != nil {
				return nil, withSignature(err, e)
			}
		}
	}
	out, err := sigd.Octets(m, docs, e.B64())
	if err != nil {
		return nil, withSignature(err, e)
	}
	return out, nil
}

func withSignature(err error, e *jws.Envelope) error {
	var derr *errdef.Error
	if errors.As(err, &derr) {
		return derr.WithSignature(e.ID())
	}
	return err
}

// Content returns the content imprint of documents about to be signed.
func Content(m sigd.Mechanism, docs []document.Document, b64 bool) ([]byte, error) {
	return sigd.Octets(m, docs, b64)
}

// Signature returns the signature imprint: the protected header, the signed
// data and the signature value joined by periods.
func Signature(e *jws.Envelope, signedData []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(e.Protected())
	buf.WriteByte('.')
	buf.Write(signedData)
	buf.WriteByte('.')
	buf.WriteString(e.SignatureB64())
	return buf.Bytes()
}

// Archive returns the archive imprint over the first cutoff entries of l:
// the signed data, the protected header and the signature value each
// followed by a period, then every entry before cutoff as it appears on the
// wire.
//
// A new archive timestamp uses cutoff l.Len() before it is appended. A
// stored archive timestamp is verified with its own ledger index.
func Archive(e *jws.Envelope, l *etsiu.Ledger, cutoff int, signedData []byte) ([]byte, error) {
	if cutoff < 0 || cutoff > l.Len() {
		return nil, fmt.Errorf("archive imprint cutoff %d out of range [0, %d]", cutoff, l.Len())
	}
	var buf bytes.Buffer
	buf.Write(signedData)
	buf.WriteByte('.')
	buf.WriteString(e.Protected())
	buf.WriteByte('.')
	buf.WriteString(e.SignatureB64())
	buf.WriteByte('.')
	for _, entry := range l.Prefix(cutoff) {
		buf.Write(entry.WireBytes())
	}
	return buf.Bytes(), nil
}

// Digest hashes an imprint.
func Digest(h crypto.Hash, imprint []byte) ([]byte, error) {
	if !h.Available() {
		return nil, errdef.Unsupported(errdef.RuleAlgorithm, "digest algorithm %v is not available", h)
	}
	d := h.New()
	d.Write(imprint)
	return d.Sum(nil), nil
}
