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
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"github.com/notaryproject/jades-go/document"
	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/etsiu"
	"github.com/notaryproject/jades-go/internal/encoding/base64url"
	"github.com/notaryproject/jades-go/jws"
	"github.com/notaryproject/jades-go/sigd"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// signingTimeFormat is the RFC 3339 form of "sigT", in UTC with second
// precision.
const signingTimeFormat = "2006-01-02T15:04:05Z"

// qualifiedValues is a JAdES qArray element.
type qualifiedValues struct {
	MediaType string   `json:"mediaType"`
	Encoding  string   `json:"encoding"`
	QVals     []string `json:"qVals"`
}

type signerAttributes struct {
	Claimed          []qualifiedValues `json:"claimed,omitempty"`
	SignedAssertions []qualifiedValues `json:"signedAssertions,omitempty"`
}

type commitment struct {
	CommID struct {
		ID string `json:"id"`
	} `json:"commId"`
}

// buildHeader returns the protected header of a new signature. Members are
// added in a fixed order and "crit" comes last.
func buildHeader(p Parameters, docs []document.Document) (*jws.Header, error) {
	h := jws.NewHeader()
	set := func(name string, v any) error {
		if err := h.Set(name, v); err != nil {
			return fmt.Errorf("failed to set %q header: %w", name, err)
		}
		return nil
	}

	if err := set(jws.HeaderAlg, p.Signer.Algorithm()); err != nil {
		return nil, err
	}
	if p.Packaging == Enveloping {
		cty := p.ContentType
		if cty == "" && len(docs) == 1 && docs[0].MediaType() != "" {
			cty = sigd.ContentType(docs[0].MediaType())
		}
		if cty != "" {
			if err := set(jws.HeaderCty, cty); err != nil {
				return nil, err
			}
		}
	}

	if err := setKeyIdentifiers(h, p, p.IncludeKeyID); err != nil {
		return nil, err
	}
	if chain := p.Signer.CertificateChain(); len(chain) > 0 {
		if !p.OmitCertificateChain {
			encoded := make([]string, len(chain))
			for i, cert := range chain {
				encoded[i] = base64.StdEncoding.EncodeToString(cert.Raw)
			}
			if err := set(jws.HeaderX5c, encoded); err != nil {
				return nil, err
			}
		}
	}
	if p.IncludeType {
		typ := "jose+json"
		if p.Serialization == jws.Compact {
			typ = "jose"
		}
		if err := set(jws.HeaderTyp, typ); err != nil {
			return nil, err
		}
	}
	if p.Unencoded {
		if err := set(jws.HeaderB64, false); err != nil {
			return nil, err
		}
	}

	if err := set(jws.HeaderSigT, p.SigningTime.UTC().Format(signingTimeFormat)); err != nil {
		return nil, err
	}
	if len(p.CommitmentTypes) > 0 {
		srCms := make([]commitment, len(p.CommitmentTypes))
		for i, uri := range p.CommitmentTypes {
			if uri == "" {
				return nil, errdef.Malformed(errdef.RuleHeader, "commitment type %d has no identifier", i)
			}
			srCms[i].CommID.ID = uri
		}
		if err := set(jws.HeaderSrCms, srCms); err != nil {
			return nil, err
		}
	}
	if !p.Location.IsEmpty() {
		if err := set(jws.HeaderSigPl, p.Location); err != nil {
			return nil, err
		}
	}
	if len(p.ClaimedRoles) > 0 || len(p.SignedAssertions) > 0 {
		var attrs signerAttributes
		if len(p.ClaimedRoles) > 0 {
			attrs.Claimed = []qualifiedValues{{MediaType: "text/plain", Encoding: "binary", QVals: p.ClaimedRoles}}
		}
		if len(p.SignedAssertions) > 0 {
			attrs.SignedAssertions = []qualifiedValues{{MediaType: "text/plain", Encoding: "binary", QVals: p.SignedAssertions}}
		}
		if err := set(jws.HeaderSrAts, attrs); err != nil {
			return nil, err
		}
	}
	if len(p.ContentTimestamps) > 0 {
		if err := set(jws.HeaderAdoTst, etsiu.NewTstContainer(p.ContentTimestamps...)); err != nil {
			return nil, err
		}
	}
	if p.Policy != nil {
		id, err := p.Policy.Identifier()
		if err != nil {
			return nil, err
		}
		if err := set(jws.HeaderSigPID, id); err != nil {
			return nil, err
		}
	}
	if p.Packaging == Detached {
		s, err := sigd.Header(p.Mechanism, docs, !p.Unencoded, p.DigestAlgorithm)
		if err != nil {
			return nil, err
		}
		if s != nil {
			if err := set(jws.HeaderSigD, s); err != nil {
				return nil, err
			}
		}
	}

	var crit []string
	for _, name := range h.Keys() {
		if !jws.IsRegisteredHeader(name) {
			crit = append(crit, name)
		}
	}
	if len(crit) > 0 {
		if err := set(jws.HeaderCrit, crit); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// setKeyIdentifiers adds "x5t#S256" for the signing certificate of c, preceded
// by an issuer-serial "kid" when withKid is set. Nothing is added when the
// certificate is unknown.
func setKeyIdentifiers(h *jws.Header, c HasSigningCertificate, withKid bool) error {
	cert := c.SigningCertificate()
	if cert == nil {
		return nil
	}
	if withKid {
		kid, err := issuerSerial(cert)
		if err != nil {
			return err
		}
		if err := h.Set(jws.HeaderKid, base64.StdEncoding.EncodeToString(kid)); err != nil {
			return fmt.Errorf("failed to set %q header: %w", jws.HeaderKid, err)
		}
	}
	thumbprint := sha256.Sum256(cert.Raw)
	if err := h.Set(jws.HeaderX5tS256, base64url.Encode(thumbprint[:])); err != nil {
		return fmt.Errorf("failed to set %q header: %w", jws.HeaderX5tS256, err)
	}
	return nil
}

// issuerSerial returns the DER encoded IssuerSerial (RFC 5035) of cert:
// the issuer as a directoryName GeneralName and the serial number.
func issuerSerial(cert *x509.Certificate) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1(asn1.Tag(4).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) {
				b.AddBytes(cert.RawIssuer)
			})
		})
		b.AddASN1BigInt(cert.SerialNumber)
	})
	return b.Bytes()
}
