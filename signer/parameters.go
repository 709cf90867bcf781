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

package signer

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/notaryproject/jades-go/jws"
	"github.com/notaryproject/jades-go/policy"
	"github.com/notaryproject/jades-go/sigd"
)

// Packaging is the placement of the signed content.
type Packaging int

const (
	// Enveloping carries the content as the JWS payload.
	Enveloping Packaging = iota

	// Detached leaves the content out of the JWS.
	Detached
)

// String returns the name of the packaging.
func (p Packaging) String() string {
	switch p {
	case Enveloping:
		return "ENVELOPING"
	case Detached:
		return "DETACHED"
	}
	return fmt.Sprintf("packaging(%d)", int(p))
}

// Parameters configures the creation of a B-level signature. The zero value
// produces an enveloping, base64url encoded, compact signature with the
// certificate chain embedded.
type Parameters struct {
	// Signer holds the signing key. It is required.
	Signer Signer

	// Packaging places the content in or outside the JWS.
	Packaging Packaging

	// Mechanism is the detachment mechanism of a detached signature.
	// Defaults to sigd.NoSigD.
	Mechanism sigd.Mechanism

	// Unencoded sets the "b64" header to false (RFC 7797).
	Unencoded bool

	// Serialization of the produced document. Defaults to jws.Compact.
	Serialization jws.Serialization

	// SigningTime is the claimed signing time. Defaults to the current time.
	SigningTime time.Time

	// DigestAlgorithm digests referenced documents for the
	// OBJECT_ID_BY_URI_HASH mechanism. Defaults to SHA-256.
	DigestAlgorithm crypto.Hash

	// IncludeKeyID adds a "kid" header holding the DER IssuerSerial of
	// the signing certificate.
	IncludeKeyID bool

	// OmitCertificateChain leaves out the "x5c" header.
	OmitCertificateChain bool

	// IncludeType adds a "typ" header matching the serialization.
	IncludeType bool

	// ContentType overrides the "cty" header of an enveloping signature.
	ContentType string

	// CommitmentTypes are URIs of signer commitments ("srCms").
	CommitmentTypes []string

	// Location is the claimed signature production place ("sigPl").
	Location *Location

	// ClaimedRoles are claimed signer attributes ("srAts").
	ClaimedRoles []string

	// SignedAssertions are signed assertions ("srAts").
	SignedAssertions []string

	// ContentTimestamps are timestamp tokens over the content ("adoTst").
	ContentTimestamps [][]byte

	// Policy identifies the signature policy ("sigPId").
	Policy *policy.Policy
}

// SigningCertificate implements HasSigningCertificate.
func (p Parameters) SigningCertificate() *x509.Certificate {
	if p.Signer == nil {
		return nil
	}
	if chain := p.Signer.CertificateChain(); len(chain) > 0 {
		return chain[0]
	}
	return nil
}

// withDefaults fills unset fields.
func (p Parameters) withDefaults() Parameters {
	if p.Mechanism == 0 {
		p.Mechanism = sigd.NoSigD
	}
	if p.Serialization == 0 {
		p.Serialization = jws.Compact
	}
	if p.SigningTime.IsZero() {
		p.SigningTime = time.Now()
	}
	if p.DigestAlgorithm == 0 {
		p.DigestAlgorithm = crypto.SHA256
	}
	return p
}

// Location is a signature production place.
type Location struct {
	Country             string `json:"addressCountry,omitempty"`
	Locality            string `json:"addressLocality,omitempty"`
	Region              string `json:"addressRegion,omitempty"`
	PostOfficeBoxNumber string `json:"postOfficeBoxNumber,omitempty"`
	PostalCode          string `json:"postalCode,omitempty"`
	StreetAddress       string `json:"streetAddress,omitempty"`
}

// IsEmpty reports whether no field is set.
func (l *Location) IsEmpty() bool {
	return l == nil || *l == Location{}
}
