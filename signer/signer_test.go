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
	"context"
	"crypto"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"math/big"
	"reflect"
	"testing"
	"time"

	"github.com/notaryproject/jades-go/document"
	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/jws"
	"github.com/notaryproject/jades-go/policy"
	"github.com/notaryproject/jades-go/sigd"
	"github.com/notaryproject/notation-core-go/signature"
	"github.com/notaryproject/notation-core-go/testhelper"
)

type keyCertPair struct {
	name  string
	key   crypto.PrivateKey
	certs []*x509.Certificate
	alg   string
}

var keyCertPairs []*keyCertPair

func init() {
	rsaRoot := testhelper.GetRSARootCertificate()
	for _, k := range []struct {
		size int
		alg  string
	}{{2048, "PS256"}, {3072, "PS384"}, {4096, "PS512"}} {
		tuple := testhelper.GetRSACertTuple(k.size)
		keyCertPairs = append(keyCertPairs, &keyCertPair{
			name:  k.alg,
			key:   tuple.PrivateKey,
			certs: []*x509.Certificate{tuple.Cert, rsaRoot.Cert},
			alg:   k.alg,
		})
	}
	ecRoot := testhelper.GetECRootCertificate()
	for _, c := range []struct {
		curve elliptic.Curve
		alg   string
	}{{elliptic.P256(), "ES256"}, {elliptic.P384(), "ES384"}, {elliptic.P521(), "ES512"}} {
		tuple := testhelper.GetECCertTuple(c.curve)
		keyCertPairs = append(keyCertPairs, &keyCertPair{
			name:  c.alg,
			key:   tuple.PrivateKey,
			certs: []*x509.Certificate{tuple.Cert, ecRoot.Cert},
			alg:   c.alg,
		})
	}
}

func testSigner(t *testing.T) *LocalSigner {
	t.Helper()
	s, err := NewLocalSigner(keyCertPairs[0].key, keyCertPairs[0].certs)
	if err != nil {
		t.Fatalf("NewLocalSigner() error = %v", err)
	}
	return s
}

var signingTime = time.Date(2024, 5, 6, 7, 8, 9, 0, time.FixedZone("CET", 3600))

func TestSignEnveloping(t *testing.T) {
	doc := document.New([]byte(`{"hello":"world"}`), "hello.json", "application/json")
	for _, pair := range keyCertPairs {
		t.Run(pair.name, func(t *testing.T) {
			s, err := NewLocalSigner(pair.key, pair.certs)
			if err != nil {
				t.Fatalf("NewLocalSigner() error = %v", err)
			}
			if s.Algorithm() != pair.alg {
				t.Fatalf("Algorithm() = %s, want %s", s.Algorithm(), pair.alg)
			}
			d, err := Sign(context.Background(), []document.Document{doc}, Parameters{
				Signer:      s,
				SigningTime: signingTime,
			})
			if err != nil {
				t.Fatalf("Sign() error = %v", err)
			}
			if d.Serialization != jws.Compact || len(d.Signatures) != 1 {
				t.Fatalf("Sign() = %v with %d signatures", d.Serialization, len(d.Signatures))
			}
			e := d.Signatures[0]
			if err := Verify(e, nil, pair.certs[0]); err != nil {
				t.Fatalf("Verify() error = %v", err)
			}

			h := e.ProtectedHeader()
			wantKeys := []string{"alg", "cty", "x5t#S256", "x5c", "sigT", "crit"}
			if got := h.Keys(); !reflect.DeepEqual(got, wantKeys) {
				t.Fatalf("header keys = %v, want %v", got, wantKeys)
			}
			var cty, sigT string
			var crit []string
			h.Decode("cty", &cty)
			h.Decode("sigT", &sigT)
			h.Decode("crit", &crit)
			if cty != "json" || sigT != "2024-05-06T06:08:09Z" || !reflect.DeepEqual(crit, []string{"sigT"}) {
				t.Fatalf("cty=%q sigT=%q crit=%v", cty, sigT, crit)
			}

			chain, err := CertificateChain(e)
			if err != nil || len(chain) != 2 || !chain[0].Equal(pair.certs[0]) {
				t.Fatalf("CertificateChain() = %d certificates, %v", len(chain), err)
			}
		})
	}
}

func TestSignDetachedObjectIDByURIHash(t *testing.T) {
	s := testSigner(t)
	docs := []document.Document{
		document.New([]byte("first"), "first.txt", "text/plain"),
		document.New([]byte("second"), "second.bin", ""),
	}
	d, err := Sign(context.Background(), docs, Parameters{
		Signer:        s,
		Packaging:     Detached,
		Mechanism:     sigd.ObjectIDByURIHash,
		Serialization: jws.Flattened,
		SigningTime:   signingTime,
	})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	e := d.Signatures[0]
	if !e.Detached() {
		t.Fatal("signature is not detached")
	}
	m, sd, err := sigd.FromHeader(e.ProtectedHeader())
	if err != nil || m != sigd.ObjectIDByURIHash {
		t.Fatalf("FromHeader() = %v, %v", m, err)
	}
	if err := sd.VerifyHashes(docs, true); err != nil {
		t.Fatalf("VerifyHashes() error = %v", err)
	}
	var crit []string
	e.ProtectedHeader().Decode(jws.HeaderCrit, &crit)
	if !reflect.DeepEqual(crit, []string{"sigT", "sigD"}) {
		t.Fatalf("crit = %v", crit)
	}
	// The signed payload is empty.
	if err := Verify(e, []byte{}, s.SigningCertificate()); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	out, err := d.Generate()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := jws.Parse(out)
	if err != nil || !parsed.Signatures[0].Detached() {
		t.Fatalf("Parse() = %v", err)
	}
}

func TestSignRejects(t *testing.T) {
	s := testSigner(t)
	unsafe := document.New([]byte("a.b"), "", "")
	tests := []struct {
		name   string
		docs   []document.Document
		params Parameters
		rule   errdef.Rule
	}{
		{
			name:   "no documents",
			params: Parameters{Signer: s},
			rule:   errdef.RuleMissingDocuments,
		},
		{
			name:   "unsafe compact unencoded payload",
			docs:   []document.Document{unsafe},
			params: Parameters{Signer: s, Unencoded: true},
			rule:   errdef.RuleUnsafePayload,
		},
		{
			name:   "enveloping two documents",
			docs:   []document.Document{unsafe, unsafe},
			params: Parameters{Signer: s},
			rule:   errdef.RuleDocument,
		},
		{
			name:   "no sigD with two documents",
			docs:   []document.Document{document.New([]byte("1"), "1", ""), document.New([]byte("2"), "2", "")},
			params: Parameters{Signer: s, Packaging: Detached},
			rule:   errdef.RuleSigD,
		},
		{
			name:   "http headers with b64",
			docs:   []document.Document{document.NewHTTPHeader("x-a", "b")},
			params: Parameters{Signer: s, Packaging: Detached, Mechanism: sigd.HTTPHeaders},
			rule:   errdef.RuleSigD,
		},
		{
			name:   "implicit policy",
			docs:   []document.Document{document.New([]byte("x"), "", "")},
			params: Parameters{Signer: s, Policy: &policy.Policy{}},
			rule:   errdef.RuleHeader,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Sign(context.Background(), tt.docs, tt.params)
			if !errdef.IsRule(err, tt.rule) {
				t.Fatalf("Sign() error = %v, want rule %s", err, tt.rule)
			}
		})
	}
	if _, err := Sign(context.Background(), []document.Document{unsafe}, Parameters{}); err == nil {
		t.Fatal("Sign() without signer succeeded")
	}
}

func TestSignUnencodedJSON(t *testing.T) {
	s := testSigner(t)
	doc := document.New([]byte("a.b with spaces and ünïcode"), "", "")
	d, err := Sign(context.Background(), []document.Document{doc}, Parameters{
		Signer:        s,
		Unencoded:     true,
		Serialization: jws.Flattened,
	})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	e := d.Signatures[0]
	if e.B64() {
		t.Fatal("b64 header not set to false")
	}
	if err := Verify(e, nil, s.SigningCertificate()); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
}

func TestSignOptionalHeaders(t *testing.T) {
	s := testSigner(t)
	doc := document.New([]byte("content"), "content.txt", "text/plain")
	d, err := Sign(context.Background(), []document.Document{doc}, Parameters{
		Signer:               s,
		Serialization:        jws.General,
		SigningTime:          signingTime,
		IncludeKeyID:         true,
		OmitCertificateChain: true,
		IncludeType:          true,
		CommitmentTypes:      []string{"http://uri.etsi.org/01903/v1.2.2#ProofOfOrigin"},
		Location:             &Location{Country: "LU", Locality: "Luxembourg"},
		ClaimedRoles:         []string{"manager"},
		ContentTimestamps:    [][]byte{[]byte("token")},
		Policy: &policy.Policy{
			ID:              "urn:oid:1.2.3.4",
			DigestAlgorithm: crypto.SHA256,
			Digest:          make([]byte, 32),
			SPURI:           "https://example.com/policy",
		},
	})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	h := d.Signatures[0].ProtectedHeader()
	want := []string{"alg", "cty", "kid", "x5t#S256", "typ", "sigT", "srCms", "sigPl", "srAts", "adoTst", "sigPId", "crit"}
	if got := h.Keys(); !reflect.DeepEqual(got, want) {
		t.Fatalf("header keys = %v, want %v", got, want)
	}
	var crit []string
	h.Decode(jws.HeaderCrit, &crit)
	if wantCrit := []string{"sigT", "srCms", "sigPl", "srAts", "adoTst", "sigPId"}; !reflect.DeepEqual(crit, wantCrit) {
		t.Fatalf("crit = %v, want %v", crit, wantCrit)
	}
	var typ string
	h.Decode(jws.HeaderTyp, &typ)
	if typ != "jose+json" {
		t.Fatalf("typ = %s", typ)
	}
	id, found, err := policy.FromHeader(h)
	if err != nil || !found || id.ID.ID != "urn:oid:1.2.3.4" || id.DigAlg != "S256" {
		t.Fatalf("policy.FromHeader() = %+v, %v, %v", id, found, err)
	}

	var kid string
	h.Decode(jws.HeaderKid, &kid)
	der, err := base64.StdEncoding.DecodeString(kid)
	if err != nil {
		t.Fatal(err)
	}
	var parsed struct {
		Issuer asn1.RawValue
		Serial *big.Int
	}
	if rest, err := asn1.Unmarshal(der, &parsed); err != nil || len(rest) != 0 {
		t.Fatalf("kid is not an IssuerSerial: %v", err)
	}
	if parsed.Serial.Cmp(s.SigningCertificate().SerialNumber) != 0 {
		t.Fatal("kid serial number mismatch")
	}
}

func TestSignParallel(t *testing.T) {
	first := testSigner(t)
	second, err := NewLocalSigner(keyCertPairs[3].key, keyCertPairs[3].certs)
	if err != nil {
		t.Fatal(err)
	}
	doc := document.New([]byte("shared"), "", "")
	ctx := context.Background()
	d, err := Sign(ctx, []document.Document{doc}, Parameters{Signer: first, Serialization: jws.Flattened})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := SignParallel(ctx, d, []document.Document{doc}, Parameters{Signer: second, Serialization: jws.Compact}); !errdef.IsRule(err, errdef.RuleCompactParallel) {
		t.Fatalf("SignParallel(compact) error = %v", err)
	}
	if _, err := SignParallel(ctx, d, []document.Document{doc}, Parameters{Signer: second, Unencoded: true}); !errdef.IsRule(err, errdef.RuleB64Mismatch) {
		t.Fatalf("SignParallel(b64=false) error = %v", err)
	}
	other := document.New([]byte("different"), "", "")
	if _, err := SignParallel(ctx, d, []document.Document{other}, Parameters{Signer: second}); !errdef.IsRule(err, errdef.RuleGeneralSignatures) {
		t.Fatalf("SignParallel(other payload) error = %v", err)
	}

	out, err := SignParallel(ctx, d, []document.Document{doc}, Parameters{Signer: second})
	if err != nil {
		t.Fatalf("SignParallel() error = %v", err)
	}
	if out.Serialization != jws.General || len(out.Signatures) != 2 {
		t.Fatalf("SignParallel() = %v with %d signatures", out.Serialization, len(out.Signatures))
	}
	if len(d.Signatures) != 1 {
		t.Fatal("SignParallel() modified the input document")
	}
	for i, cert := range []*x509.Certificate{first.SigningCertificate(), second.SigningCertificate()} {
		if err := Verify(out.Signatures[i], nil, cert); err != nil {
			t.Fatalf("Verify(%d) error = %v", i, err)
		}
	}
}

// pluginSigner is a notation signer producing JWS signature values.
type pluginSigner struct {
	local *LocalSigner
}

func (p *pluginSigner) Sign(payload []byte) ([]byte, []*x509.Certificate, error) {
	sig, err := p.local.Sign(context.Background(), payload)
	return sig, p.local.CertificateChain(), err
}

func (p *pluginSigner) KeySpec() (signature.KeySpec, error) {
	return signature.KeySpec{Type: signature.KeyTypeRSA, Size: 2048}, nil
}

func TestFromSignatureSigner(t *testing.T) {
	local := testSigner(t)
	s, err := FromSignatureSigner(&pluginSigner{local: local}, local.CertificateChain())
	if err != nil {
		t.Fatalf("FromSignatureSigner() error = %v", err)
	}
	if s.Algorithm() != "PS256" {
		t.Fatalf("Algorithm() = %s", s.Algorithm())
	}
	d, err := Sign(context.Background(), []document.Document{document.New([]byte("x"), "", "")}, Parameters{Signer: s})
	if err != nil {
		t.Fatal(err)
	}
	if err := Verify(d.Signatures[0], nil, local.SigningCertificate()); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if _, err := FromSignatureSigner(nil, nil); err == nil {
		t.Fatal("FromSignatureSigner(nil) succeeded")
	}
}

func TestHashOf(t *testing.T) {
	for alg, want := range map[string]crypto.Hash{"PS256": crypto.SHA256, "ES384": crypto.SHA384, "PS512": crypto.SHA512} {
		if got, err := HashOf(alg); err != nil || got != want {
			t.Errorf("HashOf(%s) = %v, %v", alg, got, err)
		}
	}
	if _, err := HashOf("none"); !errdef.IsRule(err, errdef.RuleAlgorithm) {
		t.Fatalf("HashOf(none) error = %v", err)
	}
}
