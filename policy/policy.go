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

// Package policy handles explicit signature policies: the signed "sigPId"
// header and the unsigned "sigPSt" policy store component.
package policy

import (
	"bytes"
	"context"
	"crypto"
	"encoding/base64"

	"github.com/notaryproject/jades-go/document"
	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/etsiu"
	"github.com/notaryproject/jades-go/internal/encoding/base64url"
	"github.com/notaryproject/jades-go/jws"
	"github.com/notaryproject/jades-go/log"
	"github.com/notaryproject/jades-go/sigd"
)

// Policy is an explicit signature policy.
type Policy struct {
	// ID is the policy identifier, usually an OID URN. It is required.
	ID string

	// Description of the policy.
	Description string

	// DigestAlgorithm and Digest identify the policy document.
	DigestAlgorithm crypto.Hash
	Digest          []byte

	// SPURI locates the policy document.
	SPURI string

	// SpDocSpecification identifies the technical specification of the
	// policy document.
	SpDocSpecification string
}

// OID is an identifier with an optional description.
type OID struct {
	ID   string `json:"id"`
	Desc string `json:"desc,omitempty"`
}

// Qualifier is one member of "sigPQuals". Exactly one field is set.
type Qualifier struct {
	SPURI   string `json:"spURI,omitempty"`
	SpDSpec *OID   `json:"spDSpec,omitempty"`
}

// Identifier is the value of the "sigPId" header.
type Identifier struct {
	ID     OID         `json:"id"`
	DigAlg string      `json:"digAlg,omitempty"`
	DigVal string      `json:"digVal,omitempty"`
	Quals  []Qualifier `json:"sigPQuals,omitempty"`
}

// Identifier returns the "sigPId" header value of p.
func (p Policy) Identifier() (*Identifier, error) {
	if p.ID == "" {
		return nil, errdef.Malformed(errdef.RuleHeader,
			"Implicit policy is not allowed in JAdES! The signaturePolicyId attribute is required!")
	}
	id := &Identifier{ID: OID{ID: p.ID, Desc: p.Description}}
	if p.DigestAlgorithm != 0 && len(p.Digest) > 0 {
		alg, err := sigd.HashID(p.DigestAlgorithm)
		if err != nil {
			return nil, err
		}
		id.DigAlg = alg
		id.DigVal = base64url.Encode(p.Digest)
	}
	if p.SPURI != "" {
		id.Quals = append(id.Quals, Qualifier{SPURI: p.SPURI})
	}
	if p.SpDocSpecification != "" {
		id.Quals = append(id.Quals, Qualifier{SpDSpec: &OID{ID: p.SpDocSpecification}})
	}
	return id, nil
}

// FromHeader decodes the "sigPId" header. It reports false when absent.
func FromHeader(h *jws.Header) (*Identifier, bool, error) {
	var id Identifier
	found, err := h.Decode(jws.HeaderSigPID, &id)
	if err != nil {
		return nil, false, errdef.Malformed(errdef.RuleHeader, "invalid %q header", jws.HeaderSigPID).Wrap(err)
	}
	if !found {
		return nil, false, nil
	}
	return &id, true, nil
}

// Digest returns the declared policy digest. It reports false when the
// identifier carries none.
func (id *Identifier) Digest() (crypto.Hash, []byte, bool, error) {
	if id.DigAlg == "" || id.DigVal == "" {
		return 0, nil, false, nil
	}
	h, err := sigd.ParseHashID(id.DigAlg)
	if err != nil {
		return 0, nil, false, err
	}
	v, err := base64url.Decode(id.DigVal)
	if err != nil {
		return 0, nil, false, errdef.Malformed(errdef.RuleBase64URL, "'digVal' is not base64url encoded").Wrap(err)
	}
	return h, v, true, nil
}

// Store is a signature policy store record: the policy document itself or
// the specification identifying it.
type Store struct {
	Document           []byte
	SpDocSpecification *etsiu.SpDSpec
}

// AddStore appends a "sigPSt" component to the ledger of e. An existing
// record is replaced at the end of the ledger unless an archive timestamp
// covers it. mode is used when the ledger is empty.
func AddStore(ctx context.Context, e *jws.Envelope, store Store, mode etsiu.Mode) (*jws.Envelope, error) {
	logger := log.GetLogger(log.WithSignature(ctx, e.ID()))
	if len(store.Document) == 0 && store.SpDocSpecification == nil {
		return nil, errdef.Missing(errdef.RuleMissingPolicy,
			"the signature policy store requires a policy document or its specification").WithSignature(e.ID())
	}
	id, found, err := FromHeader(e.ProtectedHeader())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errdef.Missing(errdef.RuleMissingPolicy,
			"the signature does not contain a signature policy identifier").WithSignature(e.ID())
	}
	if len(store.Document) > 0 {
		if err := checkDigest(id, store.Document); err != nil {
			return nil, err.WithSignature(e.ID())
		}
	}

	value := etsiu.SigPSt{SpDSpec: store.SpDocSpecification}
	if len(store.Document) > 0 {
		value.SigPolDoc = base64.StdEncoding.EncodeToString(store.Document)
	}
	l, err := e.Ledger()
	if err != nil {
		return nil, err
	}
	entryMode := l.Mode()
	if entryMode == etsiu.ModeUnset {
		entryMode = mode
	}
	if entryMode == etsiu.ModeUnset {
		entryMode = etsiu.ModeBase64URL
	}
	entry, err := etsiu.NewEntry(etsiu.TagSigPSt, value, entryMode)
	if err != nil {
		return nil, err
	}

	if i := l.LastIndexOf(etsiu.TagSigPSt); i >= 0 {
		if l.LastIndexOf(etsiu.TagArcTst) > i {
			return nil, errdef.Unsupported(errdef.RuleCoveredByArchive,
				"the signature policy store is covered by an archive timestamp and cannot be replaced").WithSignature(e.ID())
		}
		logger.Debugf("replacing the signature policy store at etsiU index %d", i)
		if err := l.Replace(i, entry); err != nil {
			return nil, err
		}
	} else {
		if err := l.Append(entry); err != nil {
			return nil, err
		}
		logger.Debugf("appended the signature policy store at etsiU index %d", l.Len()-1)
	}
	return e.WithLedger(l)
}

func checkDigest(id *Identifier, doc []byte) *errdef.Error {
	h, want, ok, err := id.Digest()
	if err != nil {
		return errdef.Malformed(errdef.RulePolicyDigest, "invalid policy digest").Wrap(err)
	}
	if !ok {
		return nil
	}
	got, err := document.New(doc, "", "").Digest(h)
	if err != nil {
		return errdef.Unsupported(errdef.RuleAlgorithm, "policy digest algorithm %v", h).Wrap(err)
	}
	if !bytes.Equal(got, want) {
		return errdef.Malformed(errdef.RulePolicyDigest,
			"the digest of the signature policy document does not match the signature policy identifier")
	}
	return nil
}
