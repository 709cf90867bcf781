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
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"

	"github.com/notaryproject/jades-go/internal/pkix"
	"github.com/notaryproject/jades-go/log"
	corecrl "github.com/notaryproject/notation-core-go/revocation/crl"
	"golang.org/x/crypto/ocsp"
)

// OnlineSource fetches revocation data from the locations named in the
// certificates: OCSP first, then CRL distribution points.
type OnlineSource struct {
	// OCSP is nil to skip OCSP.
	OCSP *OCSPClient

	// CRL fetches http(s) distribution points. Nil skips them.
	CRL corecrl.Fetcher

	// LDAP fetches ldap:// distribution points. Nil skips them.
	LDAP *LDAPFetcher

	// Certificates complete partial chains.
	Certificates []*x509.Certificate
}

// NewOnlineSource returns a source using httpClient for OCSP and CRL
// requests. cache may be nil.
func NewOnlineSource(httpClient *http.Client, cache corecrl.Cache) (*OnlineSource, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultOCSPTimeout}
	}
	fetcher, err := corecrl.NewHTTPFetcher(httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create CRL fetcher: %w", err)
	}
	fetcher.Cache = cache
	return &OnlineSource{
		OCSP: &OCSPClient{HTTPClient: httpClient},
		CRL:  fetcher,
	}, nil
}

// Collect implements Source.
func (s *OnlineSource) Collect(ctx context.Context, chain []*x509.Certificate) (*Data, error) {
	logger := log.GetLogger(ctx)
	full := pkix.CompleteChain(chain, s.Certificates)
	d := &Data{Certificates: full}
	for i, cert := range full {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		issuer, needed := issuerAt(full, i)
		if !needed {
			continue
		}
		if issuer == nil {
			logger.Debugf("issuer of %q is unknown", cert.Subject)
			d.Missing = append(d.Missing, cert)
			continue
		}
		if s.OCSP != nil && len(cert.OCSPServer) > 0 {
			resp, err := s.OCSP.Fetch(ctx, cert, issuer)
			if err == nil {
				d.OCSPResponses = append(d.OCSPResponses, resp)
				continue
			}
			logger.Debugf("OCSP failed for %q: %v", cert.Subject, err)
		}
		crls, err := s.fetchCRLs(ctx, cert, issuer)
		if err != nil {
			logger.Debugf("CRL failed for %q: %v", cert.Subject, err)
			d.Missing = append(d.Missing, cert)
			continue
		}
		d.CRLs = append(d.CRLs, crls...)
	}
	return d, nil
}

// fetchCRLs returns the CRLs of the first distribution point that could be
// fetched and is signed by issuer.
func (s *OnlineSource) fetchCRLs(ctx context.Context, cert, issuer *x509.Certificate) ([][]byte, error) {
	var errs []error
	for _, dp := range cert.CRLDistributionPoints {
		var crls [][]byte
		switch {
		case isLDAP(dp):
			if s.LDAP == nil {
				continue
			}
			der, err := s.LDAP.Fetch(ctx, dp)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			crls = [][]byte{der}
		default:
			if s.CRL == nil {
				continue
			}
			bundle, err := s.CRL.Fetch(ctx, dp)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			crls = [][]byte{bundle.BaseCRL.Raw}
			if bundle.DeltaCRL != nil {
				crls = append(crls, bundle.DeltaCRL.Raw)
			}
		}
		var invalid error
		for _, der := range crls {
			if err := checkCRL(der, issuer); err != nil {
				invalid = err
				break
			}
		}
		if invalid != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dp, invalid))
			continue
		}
		return crls, nil
	}
	if len(errs) == 0 {
		return nil, errNoCRL
	}
	return nil, errors.Join(errs...)
}

// StaticSource serves validation material known in advance.
type StaticSource struct {
	// Certificates complete partial chains.
	Certificates []*x509.Certificate

	// CRLs and OCSPResponses are DER encoded. Each is returned for the
	// certificates it covers.
	CRLs          [][]byte
	OCSPResponses [][]byte
}

// Collect implements Source.
func (s *StaticSource) Collect(ctx context.Context, chain []*x509.Certificate) (*Data, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full := pkix.CompleteChain(chain, s.Certificates)
	d := &Data{Certificates: full}
	for i, cert := range full {
		issuer, needed := issuerAt(full, i)
		if !needed {
			continue
		}
		if issuer == nil {
			d.Missing = append(d.Missing, cert)
			continue
		}
		found := false
		for _, raw := range s.OCSPResponses {
			if _, err := ocsp.ParseResponseForCert(raw, cert, issuer); err == nil {
				d.OCSPResponses = append(d.OCSPResponses, raw)
				found = true
			}
		}
		for _, der := range s.CRLs {
			if checkCRL(der, issuer) == nil {
				d.CRLs = append(d.CRLs, der)
				found = true
			}
		}
		if !found {
			d.Missing = append(d.Missing, cert)
		}
	}
	return d, nil
}
