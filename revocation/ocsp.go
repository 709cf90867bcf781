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

package revocation

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/notaryproject/jades-go/internal/io"
	"github.com/notaryproject/jades-go/log"
	"golang.org/x/crypto/ocsp"
)

const (
	// maxOCSPResponseSize bounds OCSP response bodies.
	maxOCSPResponseSize = 20 * 1024

	defaultOCSPTimeout = 2 * time.Second
)

// OCSPClient fetches OCSP responses from the responders named in the
// authority information access extension of a certificate.
type OCSPClient struct {
	// HTTPClient defaults to a client with a two second timeout.
	HTTPClient *http.Client

	// Hash is the CertID hash algorithm. Defaults to SHA-256.
	Hash crypto.Hash
}

// Fetch returns the first response, good or revoked, obtained for cert.
func (c *OCSPClient) Fetch(ctx context.Context, cert, issuer *x509.Certificate) ([]byte, error) {
	if len(cert.OCSPServer) == 0 {
		return nil, errors.New("certificate has no OCSP responder")
	}
	hash := c.Hash
	if hash == 0 {
		hash = crypto.SHA256
	}
	req, err := ocsp.CreateRequest(cert, issuer, &ocsp.RequestOptions{Hash: hash})
	if err != nil {
		return nil, fmt.Errorf("failed to create OCSP request: %w", err)
	}
	logger := log.GetLogger(ctx)
	var errs []error
	for _, server := range cert.OCSPServer {
		raw, err := c.post(ctx, server, req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		resp, err := ocsp.ParseResponseForCert(raw, cert, issuer)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid OCSP response from %s: %w", server, err))
			continue
		}
		if resp.Status == ocsp.Unknown {
			errs = append(errs, fmt.Errorf("OCSP responder %s does not know the certificate", server))
			continue
		}
		logger.Debugf("fetched OCSP response for %q from %s", cert.Subject, server)
		return raw, nil
	}
	return nil, errors.Join(errs...)
}

func (c *OCSPClient) post(ctx context.Context, server string, body []byte) ([]byte, error) {
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultOCSPTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/ocsp-request")
	req.Header.Set("Accept", "application/ocsp-response")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OCSP request to %s failed: %w", server, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OCSP request to %s failed with status %s", server, resp.Status)
	}
	raw, err := io.ReadAll(resp.Body, maxOCSPResponseSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read OCSP response from %s: %w", server, err)
	}
	return raw, nil
}
