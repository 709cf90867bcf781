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

// Package pkix matches certificate names and orders certificate chains.
package pkix

import (
	"bytes"
	"crypto/x509"
	"fmt"

	ldapv3 "github.com/go-ldap/ldap/v3"
)

// EqualDN reports whether two RFC 4514 distinguished names are equal,
// ignoring attribute type case and surrounding whitespace.
func EqualDN(a, b string) (bool, error) {
	dnA, err := ldapv3.ParseDN(a)
	if err != nil {
		return false, fmt.Errorf("distinguished name (DN) %q is not valid: %w", a, err)
	}
	dnB, err := ldapv3.ParseDN(b)
	if err != nil {
		return false, fmt.Errorf("distinguished name (DN) %q is not valid: %w", b, err)
	}
	return dnA.Equal(dnB), nil
}

// IsIssuedBy reports whether the issuer name of cert matches the subject of
// issuer. Byte equality is tried first; differently encoded names fall back
// to DN comparison.
func IsIssuedBy(cert, issuer *x509.Certificate) bool {
	if bytes.Equal(cert.RawIssuer, issuer.RawSubject) {
		return true
	}
	equal, err := EqualDN(cert.Issuer.String(), issuer.Subject.String())
	return err == nil && equal
}

// IsSelfIssued reports whether cert names itself as issuer.
func IsSelfIssued(cert *x509.Certificate) bool {
	return IsIssuedBy(cert, cert)
}

// CompleteChain extends chain with issuers found in pool until a self-issued
// certificate is reached or no issuer is known.
func CompleteChain(chain, pool []*x509.Certificate) []*x509.Certificate {
	if len(chain) == 0 {
		return nil
	}
	out := append([]*x509.Certificate(nil), chain...)
	for len(out) <= len(chain)+len(pool) {
		last := out[len(out)-1]
		if IsSelfIssued(last) {
			break
		}
		issuer := findIssuer(last, pool)
		if issuer == nil || contains(out, issuer) {
			break
		}
		out = append(out, issuer)
	}
	return out
}

// Leaf returns the first certificate of certs that issued none of the
// others, or nil when certs is empty.
func Leaf(certs []*x509.Certificate) *x509.Certificate {
next:
	for _, c := range certs {
		for _, other := range certs {
			if !other.Equal(c) && IsIssuedBy(other, c) {
				continue next
			}
		}
		return c
	}
	if len(certs) > 0 {
		return certs[0]
	}
	return nil
}

func findIssuer(cert *x509.Certificate, pool []*x509.Certificate) *x509.Certificate {
	for _, candidate := range pool {
		if IsIssuedBy(cert, candidate) && cert.CheckSignatureFrom(candidate) == nil {
			return candidate
		}
	}
	return nil
}

func contains(certs []*x509.Certificate, cert *x509.Certificate) bool {
	for _, c := range certs {
		if c.Equal(cert) {
			return true
		}
	}
	return false
}
