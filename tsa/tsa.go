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

// Package tsa obtains, parses and verifies RFC 3161 timestamp tokens.
//
// A Timestamper is given the message to timestamp and the hash algorithm of
// the message imprint. It returns the DER encoded TimeStampToken, which the
// augmentation packages store without interpreting it.
package tsa

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"math/big"
	"time"

	"github.com/digitorus/timestamp"
	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/tspclient-go"
)

// Timestamper is the timestamp-authority collaborator.
type Timestamper interface {
	// Timestamp returns a DER encoded TimeStampToken whose message imprint
	// is the digest of message under hash.
	Timestamp(ctx context.Context, message []byte, hash crypto.Hash) ([]byte, error)
}

// Token is the content of a parsed timestamp token.
type Token struct {
	// Raw is the DER encoded token.
	Raw []byte

	// GenTime is the time asserted by the authority.
	GenTime time.Time

	// HashAlgorithm and HashedMessage form the message imprint.
	HashAlgorithm crypto.Hash
	HashedMessage []byte

	SerialNumber *big.Int

	// Certificates are the certificates embedded in the token.
	Certificates []*x509.Certificate
}

// ParseToken parses a DER encoded TimeStampToken.
func ParseToken(der []byte) (*Token, error) {
	ts, err := timestamp.Parse(der)
	if err != nil {
		return nil, errdef.Malformed(errdef.RuleTimestampToken, "failed to parse timestamp token").Wrap(err)
	}
	return &Token{
		Raw:           der,
		GenTime:       ts.Time,
		HashAlgorithm: ts.HashAlgorithm,
		HashedMessage: ts.HashedMessage,
		SerialNumber:  ts.SerialNumber,
		Certificates:  ts.Certificates,
	}, nil
}

// Matches reports whether the token's message imprint is the digest of
// message.
func (t *Token) Matches(message []byte) bool {
	if !t.HashAlgorithm.Available() {
		return false
	}
	h := t.HashAlgorithm.New()
	h.Write(message)
	return bytes.Equal(h.Sum(nil), t.HashedMessage)
}

// VerifyToken checks the token signature against roots and its message
// imprint against message. It returns the parsed token and the verified
// certificate chain of the authority.
func VerifyToken(ctx context.Context, der, message []byte, roots *x509.CertPool) (*Token, []*x509.Certificate, error) {
	signed, err := tspclient.ParseSignedToken(der)
	if err != nil {
		return nil, nil, errdef.Malformed(errdef.RuleTimestampToken, "failed to parse timestamp token").Wrap(err)
	}
	info, err := signed.Info()
	if err != nil {
		return nil, nil, errdef.Malformed(errdef.RuleTimestampToken, "failed to read timestamp token info").Wrap(err)
	}
	ts, err := info.Validate(message)
	if err != nil {
		return nil, nil, fmt.Errorf("timestamp token does not cover the message: %w", err)
	}
	chain, err := signed.Verify(ctx, x509.VerifyOptions{
		CurrentTime: ts.Value,
		Roots:       roots,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to verify timestamp token: %w", err)
	}
	token, err := ParseToken(der)
	if err != nil {
		return nil, nil, err
	}
	return token, chain, nil
}

// hashAlgorithms are the imprint algorithms accepted by the timestampers.
var hashAlgorithms = map[crypto.Hash]bool{
	crypto.SHA256: true,
	crypto.SHA384: true,
	crypto.SHA512: true,
}

func checkHash(h crypto.Hash) error {
	if !hashAlgorithms[h] || !h.Available() {
		return errdef.Unsupported(errdef.RuleAlgorithm, "unsupported timestamp imprint hash algorithm %v", h)
	}
	return nil
}
