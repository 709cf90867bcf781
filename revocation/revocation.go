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

// Package revocation gathers certificate chains and revocation proofs (CRL
// and OCSP) for long-term signature levels. It decides nothing about trust:
// it only collects the material a validator will need later.
package revocation

import (
	"context"
	"crypto/x509"
	"fmt"
	"strings"

	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/internal/pkix"
	"github.com/notaryproject/jades-go/log"
)

// Data is the validation material of a certificate chain.
type Data struct {
	// Certificates is the chain, leaf first, up to a self-issued
	// certificate when one is known.
	Certificates []*x509.Certificate

	// CRLs are DER encoded certificate revocation lists.
	CRLs [][]byte

	// OCSPResponses are DER encoded OCSP responses.
	OCSPResponses [][]byte

	// Missing lists the certificates for which no revocation data was
	// found.
	Missing []*x509.Certificate
}

// Merge appends the content of other to d.
func (d *Data) Merge(other *Data) {
	if other == nil {
		return
	}
	d.Certificates = append(d.Certificates, other.Certificates...)
	d.CRLs = append(d.CRLs, other.CRLs...)
	d.OCSPResponses = append(d.OCSPResponses, other.OCSPResponses...)
	d.Missing = append(d.Missing, other.Missing...)
}

// Source is the certificate and revocation collaborator.
type Source interface {
	// Collect returns the validation material of chain, whose first
	// element is the certificate to cover. The chain may be partial.
	Collect(ctx context.Context, chain []*x509.Certificate) (*Data, error)
}

// AlertPolicy decides what happens when revocation data is missing.
type AlertPolicy int

const (
	// AlertFail makes missing revocation data an error.
	AlertFail AlertPolicy = iota

	// AlertWarn logs a warning.
	AlertWarn

	// AlertSilent ignores missing revocation data.
	AlertSilent
)

// String returns the name of the policy.
func (p AlertPolicy) String() string {
	switch p {
	case AlertFail:
		return "fail"
	case AlertWarn:
		return "warn"
	case AlertSilent:
		return "silent"
	}
	return fmt.Sprintf("alertPolicy(%d)", int(p))
}

// ParseAlertPolicy parses "fail", "warn" or "silent". The empty string is
// AlertFail.
func ParseAlertPolicy(s string) (AlertPolicy, error) {
	switch strings.ToLower(s) {
	case "", "fail":
		return AlertFail, nil
	case "warn":
		return AlertWarn, nil
	case "silent":
		return AlertSilent, nil
	}
	return 0, fmt.Errorf("unknown missing revocation alert policy %q", s)
}

// Check applies p to the certificates listed in d.Missing.
func (p AlertPolicy) Check(ctx context.Context, d *Data) error {
	if d == nil || len(d.Missing) == 0 {
		return nil
	}
	names := make([]string, len(d.Missing))
	for i, cert := range d.Missing {
		names[i] = fmt.Sprintf("%q", cert.Subject.String())
	}
	err := errdef.Missing(errdef.RuleMissingRevocation,
		"revocation data is missing for certificate(s) %s", strings.Join(names, ", "))
	logger := log.GetLogger(ctx)
	switch p {
	case AlertWarn:
		logger.Warn(err.Error())
		return nil
	case AlertSilent:
		logger.Debug(err.Error())
		return nil
	}
	return err
}

// issuerAt returns the issuer of chain[i], or nil when it is self-issued or
// its issuer is not in the chain.
func issuerAt(chain []*x509.Certificate, i int) (*x509.Certificate, bool) {
	cert := chain[i]
	if pkix.IsSelfIssued(cert) {
		return nil, false
	}
	if i+1 < len(chain) && pkix.IsIssuedBy(cert, chain[i+1]) {
		return chain[i+1], true
	}
	return nil, true
}
