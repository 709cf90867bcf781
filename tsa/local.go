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

package tsa

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/digitorus/timestamp"
	"github.com/notaryproject/jades-go/log"
)

const (
	requestMediaType  = "application/timestamp-query"
	responseMediaType = "application/timestamp-reply"

	// maxRequestSize bounds the body of an HTTP timestamp query.
	maxRequestSize = 64 * 1024
)

// DefaultPolicy is the TSA policy of a LocalTimestamper created without one.
var DefaultPolicy = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 57264, 1, 1}

// LocalTimestamper is an in-process timestamp authority. It also serves
// RFC 3161 queries over HTTP.
type LocalTimestamper struct {
	cert   *x509.Certificate
	chain  []*x509.Certificate
	signer crypto.Signer

	// Policy is the TSA policy of issued tokens.
	Policy asn1.ObjectIdentifier

	// Clock returns the time asserted in issued tokens. Defaults to
	// time.Now.
	Clock func() time.Time
}

// NewLocalTimestamper returns an authority signing with key. chain starts
// with the certificate of key; it must allow timestamping.
func NewLocalTimestamper(key crypto.Signer, chain []*x509.Certificate) (*LocalTimestamper, error) {
	if key == nil {
		return nil, errors.New("timestamp authority key is required")
	}
	if len(chain) == 0 {
		return nil, errors.New("timestamp authority certificate is required")
	}
	return &LocalTimestamper{
		cert:   chain[0],
		chain:  chain,
		signer: key,
		Policy: DefaultPolicy,
	}, nil
}

// Certificate returns the signing certificate of the authority.
func (t *LocalTimestamper) Certificate() *x509.Certificate {
	return t.cert
}

// Timestamp implements Timestamper.
func (t *LocalTimestamper) Timestamp(ctx context.Context, message []byte, hash crypto.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkHash(hash); err != nil {
		return nil, err
	}
	h := hash.New()
	h.Write(message)
	resp, err := t.respond(hash, h.Sum(nil), nil, true)
	if err != nil {
		return nil, err
	}
	ts, err := timestamp.ParseResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp response: %w", err)
	}
	log.GetLogger(ctx).Debugf("issued local timestamp %v at %s", ts.SerialNumber, ts.Time.Format(time.RFC3339))
	return ts.RawToken, nil
}

// ServeHTTP answers RFC 3161 timestamp queries.
func (t *LocalTimestamper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != requestMediaType {
		http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		http.Error(w, "failed to read request", http.StatusBadRequest)
		return
	}
	req, err := timestamp.ParseRequest(body)
	if err != nil {
		http.Error(w, "malformed timestamp query", http.StatusBadRequest)
		return
	}
	if err := checkHash(req.HashAlgorithm); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := t.respond(req.HashAlgorithm, req.HashedMessage, req.Nonce, req.Certificates)
	if err != nil {
		log.GetLogger(r.Context()).Errorf("failed to issue timestamp: %v", err)
		http.Error(w, "failed to issue timestamp", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", responseMediaType)
	w.Write(resp)
}

// respond returns a DER encoded TimeStampResp.
func (t *LocalTimestamper) respond(hash crypto.Hash, hashed []byte, nonce *big.Int, certReq bool) ([]byte, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 127))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	now := time.Now
	if t.Clock != nil {
		now = t.Clock
	}
	policy := t.Policy
	if len(policy) == 0 {
		policy = DefaultPolicy
	}
	ts := timestamp.Timestamp{
		HashAlgorithm:     hash,
		HashedMessage:     hashed,
		Time:              now().UTC().Truncate(time.Second),
		Accuracy:          time.Second,
		SerialNumber:      serial,
		Policy:            policy,
		Nonce:             nonce,
		AddTSACertificate: certReq,
	}
	if certReq && len(t.chain) > 1 {
		ts.Certificates = t.chain[1:]
	}
	resp, err := ts.CreateResponseWithOpts(t.cert, t.signer, crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("failed to create timestamp response: %w", err)
	}
	return resp, nil
}
