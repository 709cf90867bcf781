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
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/internal/encoding/base64url"
	"github.com/notaryproject/jades-go/jws"
	"github.com/notaryproject/notation-core-go/signature"
)

// Signer is the signing key collaborator. It never exposes private key
// material to the signature engine.
type Signer interface {
	// Sign returns the raw JWS signature value over signingInput.
	Sign(ctx context.Context, signingInput []byte) ([]byte, error)

	// Algorithm returns the JWS "alg" value of the signatures produced.
	Algorithm() string

	// CertificateChain returns the signing certificate followed by its
	// chain, or nil when unknown.
	CertificateChain() []*x509.Certificate
}

// HasSigningCertificate is implemented by inputs that know the signing
// certificate.
type HasSigningCertificate interface {
	SigningCertificate() *x509.Certificate
}

// signingMethods maps notation key spec algorithms to JWS signing methods.
var signingMethods = map[signature.Algorithm]jwt.SigningMethod{
	signature.AlgorithmPS256: jwt.SigningMethodPS256,
	signature.AlgorithmPS384: jwt.SigningMethodPS384,
	signature.AlgorithmPS512: jwt.SigningMethodPS512,
	signature.AlgorithmES256: jwt.SigningMethodES256,
	signature.AlgorithmES384: jwt.SigningMethodES384,
	signature.AlgorithmES512: jwt.SigningMethodES512,
}

// SigningMethod returns the JWS signing method for a signature algorithm.
func SigningMethod(alg signature.Algorithm) (jwt.SigningMethod, error) {
	method, ok := signingMethods[alg]
	if !ok {
		return nil, errdef.Unsupported(errdef.RuleAlgorithm, "signature algorithm %v is not supported", alg)
	}
	return method, nil
}

// HashOf returns the digest algorithm of a JWS "alg" value.
func HashOf(alg string) (crypto.Hash, error) {
	switch alg {
	case "PS256", "RS256", "ES256":
		return crypto.SHA256, nil
	case "PS384", "RS384", "ES384":
		return crypto.SHA384, nil
	case "PS512", "RS512", "ES512":
		return crypto.SHA512, nil
	}
	return 0, errdef.Unsupported(errdef.RuleAlgorithm, "signature algorithm %q is not supported", alg)
}

// LocalSigner signs with a private key held in memory.
type LocalSigner struct {
	method    jwt.SigningMethod
	key       crypto.PrivateKey
	certChain []*x509.Certificate
}

// NewLocalSigner returns a signer for key and its certificate chain. The key
// must match the leaf certificate and have a supported key spec.
func NewLocalSigner(key crypto.PrivateKey, certChain []*x509.Certificate) (*LocalSigner, error) {
	local, err := signature.NewLocalSigner(certChain, key)
	if err != nil {
		return nil, err
	}
	keySpec, err := local.KeySpec()
	if err != nil {
		return nil, err
	}
	method, err := SigningMethod(keySpec.SignatureAlgorithm())
	if err != nil {
		return nil, err
	}
	return &LocalSigner{
		method:    method,
		key:       local.PrivateKey(),
		certChain: certChain,
	}, nil
}

// Sign implements Signer.
func (s *LocalSigner) Sign(ctx context.Context, signingInput []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	encoded, err := s.method.Sign(string(signingInput), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign with %s: %w", s.method.Alg(), err)
	}
	return base64url.Decode(encoded)
}

// Algorithm implements Signer.
func (s *LocalSigner) Algorithm() string {
	return s.method.Alg()
}

// CertificateChain implements Signer.
func (s *LocalSigner) CertificateChain() []*x509.Certificate {
	return s.certChain
}

// SigningCertificate implements HasSigningCertificate.
func (s *LocalSigner) SigningCertificate() *x509.Certificate {
	return s.certChain[0]
}

// remoteSigner adapts a notation signer, such as a plugin backed key, whose
// signature values are already in JWS form.
type remoteSigner struct {
	base      signature.Signer
	alg       string
	certChain []*x509.Certificate
}

// FromSignatureSigner wraps a notation signature.Signer. certChain may be
// nil, in which case the chain returned by the first signing operation is
// not available to the header builder.
func FromSignatureSigner(s signature.Signer, certChain []*x509.Certificate) (Signer, error) {
	if s == nil {
		return nil, errors.New("nil signer")
	}
	keySpec, err := s.KeySpec()
	if err != nil {
		return nil, err
	}
	method, err := SigningMethod(keySpec.SignatureAlgorithm())
	if err != nil {
		return nil, err
	}
	return &remoteSigner{base: s, alg: method.Alg(), certChain: certChain}, nil
}

func (s *remoteSigner) Sign(ctx context.Context, signingInput []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig, _, err := s.base.Sign(signingInput)
	return sig, err
}

func (s *remoteSigner) Algorithm() string { return s.alg }

func (s *remoteSigner) CertificateChain() []*x509.Certificate { return s.certChain }

// Verify checks the signature value of e against the public key of cert.
// detachedRepresentation is the payload representation of a detached
// signature and is ignored otherwise.
func Verify(e *jws.Envelope, detachedRepresentation []byte, cert *x509.Certificate) error {
	method := jwt.GetSigningMethod(e.Algorithm())
	if method == nil {
		return errdef.Unsupported(errdef.RuleAlgorithm, "signature algorithm %q is not supported", e.Algorithm()).
			WithSignature(e.ID())
	}
	input := e.SigningInput(detachedRepresentation)
	if err := method.Verify(string(input), e.SignatureB64(), cert.PublicKey); err != nil {
		return fmt.Errorf("signature %s: invalid signature value: %w", e.ID(), err)
	}
	return nil
}

// CertificateChain returns the certificates of the "x5c" header of e. It
// returns nil when the header is absent.
func CertificateChain(e *jws.Envelope) ([]*x509.Certificate, error) {
	var encoded []string
	found, err := e.ProtectedHeader().Decode(jws.HeaderX5c, &encoded)
	if err != nil {
		return nil, errdef.Malformed(errdef.RuleHeader, "invalid %q header", jws.HeaderX5c).WithSignature(e.ID()).Wrap(err)
	}
	if !found {
		return nil, nil
	}
	certs := make([]*x509.Certificate, 0, len(encoded))
	for i, s := range encoded {
		der, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, errdef.Malformed(errdef.RuleHeader, "%s[%d] is not base64 encoded", jws.HeaderX5c, i).
				WithSignature(e.ID()).Wrap(err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, errdef.Malformed(errdef.RuleHeader, "%s[%d] is not a certificate", jws.HeaderX5c, i).
				WithSignature(e.ID()).Wrap(err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}
