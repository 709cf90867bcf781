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

// Package tsatest provides an in-process timestamp authority with a freshly
// generated certificate chain for tests.
package tsatest

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"net/http/httptest"
	"sync/atomic"

	"github.com/notaryproject/jades-go/internal/testpki"
	"github.com/notaryproject/jades-go/tsa"
)

var (
	oidExtKeyUsage       = asn1.ObjectIdentifier{2, 5, 29, 37}
	oidTimeStampingUsage = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 8}
)

// Authority is a test timestamp authority. It counts issued tokens.
type Authority struct {
	*tsa.LocalTimestamper

	// CA issued the timestamping certificate. It signs CRLs and OCSP
	// responses for it.
	CA *testpki.CA

	Root     *x509.Certificate
	Leaf     *x509.Certificate
	LeafKey  *ecdsa.PrivateKey
	requests atomic.Int64
}

// New generates a root CA and a timestamping leaf certificate.
func New() (*Authority, error) {
	return NewNamed("Test TSA")
}

// NewNamed is New with the common name of the timestamping certificate.
func NewNamed(cn string) (*Authority, error) {
	ca, err := testpki.NewCA(cn + " Root")
	if err != nil {
		return nil, err
	}
	// RFC 3161 requires a single, critical, timestamping extended key usage.
	eku, err := asn1.Marshal([]asn1.ObjectIdentifier{oidTimeStampingUsage})
	if err != nil {
		return nil, err
	}
	leaf, leafKey, err := ca.Issue(&x509.Certificate{
		Subject:         pkix.Name{CommonName: cn, Country: []string{"US"}},
		ExtraExtensions: []pkix.Extension{{Id: oidExtKeyUsage, Critical: true, Value: eku}},
	})
	if err != nil {
		return nil, err
	}
	local, err := tsa.NewLocalTimestamper(leafKey, []*x509.Certificate{leaf, ca.Cert})
	if err != nil {
		return nil, err
	}
	return &Authority{LocalTimestamper: local, CA: ca, Root: ca.Cert, Leaf: leaf, LeafKey: leafKey}, nil
}

// Roots returns a pool holding the root certificate.
func (a *Authority) Roots() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(a.Root)
	return pool
}

// CRL returns an empty CRL of the root covering the timestamping
// certificate.
func (a *Authority) CRL() ([]byte, error) {
	return a.CA.CRL()
}

// Timestamp implements tsa.Timestamper and counts the request.
func (a *Authority) Timestamp(ctx context.Context, message []byte, hash crypto.Hash) ([]byte, error) {
	a.requests.Add(1)
	return a.LocalTimestamper.Timestamp(ctx, message, hash)
}

// Requests returns the number of tokens requested through Timestamp.
func (a *Authority) Requests() int {
	return int(a.requests.Load())
}

// NewServer starts an HTTP server answering RFC 3161 queries. The caller
// closes it.
func (a *Authority) NewServer() *httptest.Server {
	return httptest.NewServer(a.LocalTimestamper)
}
