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
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"

	"github.com/notaryproject/jades-go/log"
	"github.com/notaryproject/tspclient-go"
)

// HTTPTimestamper requests tokens from a remote RFC 3161 authority.
type HTTPTimestamper struct {
	endpoint string
	client   tspclient.Timestamper

	// roots, when set, are used to verify every received token.
	roots *x509.CertPool
}

// NewHTTPTimestamper returns a timestamper posting to endpoint. A nil
// httpClient uses http.DefaultClient. When roots is not nil every token is
// verified against it before being returned.
func NewHTTPTimestamper(httpClient *http.Client, endpoint string, roots *x509.CertPool) (*HTTPTimestamper, error) {
	if endpoint == "" {
		return nil, errors.New("timestamp authority endpoint is required")
	}
	client, err := tspclient.NewHTTPTimestamper(httpClient, endpoint)
	if err != nil {
		return nil, err
	}
	return &HTTPTimestamper{endpoint: endpoint, client: client, roots: roots}, nil
}

// Timestamp implements Timestamper.
func (t *HTTPTimestamper) Timestamp(ctx context.Context, message []byte, hash crypto.Hash) ([]byte, error) {
	if err := checkHash(hash); err != nil {
		return nil, err
	}
	logger := log.GetLogger(ctx)
	req, err := tspclient.NewRequest(tspclient.RequestOptions{
		Content:       message,
		HashAlgorithm: hash,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create timestamp request: %w", err)
	}
	logger.Debugf("requesting timestamp from %s", t.endpoint)
	resp, err := t.client.Timestamp(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("timestamp request to %s failed: %w", t.endpoint, err)
	}
	signed, err := resp.SignedToken()
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp response from %s: %w", t.endpoint, err)
	}
	info, err := signed.Info()
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp response from %s: %w", t.endpoint, err)
	}
	if _, err := info.Validate(message); err != nil {
		return nil, fmt.Errorf("timestamp from %s does not cover the message: %w", t.endpoint, err)
	}
	token := resp.TimestampToken.FullBytes
	if t.roots != nil {
		if _, _, err := VerifyToken(ctx, token, message, t.roots); err != nil {
			return nil, err
		}
	}
	return token, nil
}
