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

package etsiu

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// PkiOb is a base64 encoded PKI object (certificate, CRL, OCSP response or
// timestamp token).
type PkiOb struct {
	Encoding string `json:"encoding,omitempty"`
	Val      string `json:"val"`
}

// NewPkiOb wraps DER bytes.
func NewPkiOb(der []byte) PkiOb {
	return PkiOb{Val: base64.StdEncoding.EncodeToString(der)}
}

// Bytes decodes the object.
func (p PkiOb) Bytes() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(p.Val)
	if err != nil {
		return nil, fmt.Errorf("invalid pki object encoding: %w", err)
	}
	return b, nil
}

// CertVal is one element of xVals.
type CertVal struct {
	X509Cert  *PkiOb          `json:"x509Cert,omitempty"`
	OtherCert json.RawMessage `json:"otherCert,omitempty"`
}

// XVals is the certificate values component.
type XVals []CertVal

// NewXVals builds xVals from certificates.
func NewXVals(certs []*x509.Certificate) XVals {
	out := make(XVals, 0, len(certs))
	for _, cert := range certs {
		ob := NewPkiOb(cert.Raw)
		out = append(out, CertVal{X509Cert: &ob})
	}
	return out
}

// Certificates parses the X.509 certificates. Other certificate types are
// skipped.
func (x XVals) Certificates() ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for i, v := range x {
		if v.X509Cert == nil {
			continue
		}
		der, err := v.X509Cert.Bytes()
		if err != nil {
			return nil, fmt.Errorf("xVals[%d]: %w", i, err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("xVals[%d]: %w", i, err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// RVals is the revocation values component.
type RVals struct {
	CRLVals   []PkiOb           `json:"crlVals,omitempty"`
	OCSPVals  []PkiOb           `json:"ocspVals,omitempty"`
	OtherVals []json.RawMessage `json:"otherVals,omitempty"`
}

// NewRVals builds rVals from DER encoded CRLs and OCSP responses.
func NewRVals(crls, ocsps [][]byte) RVals {
	var r RVals
	for _, c := range crls {
		r.CRLVals = append(r.CRLVals, NewPkiOb(c))
	}
	for _, o := range ocsps {
		r.OCSPVals = append(r.OCSPVals, NewPkiOb(o))
	}
	return r
}

// IsEmpty reports whether r carries no revocation data.
func (r RVals) IsEmpty() bool {
	return len(r.CRLVals) == 0 && len(r.OCSPVals) == 0 && len(r.OtherVals) == 0
}

// CRLs decodes the CRL values.
func (r RVals) CRLs() ([][]byte, error) {
	return decodeAll("crlVals", r.CRLVals)
}

// OCSPs decodes the OCSP response values.
func (r RVals) OCSPs() ([][]byte, error) {
	return decodeAll("ocspVals", r.OCSPVals)
}

// TstVd is the validation data scoped to an archive timestamp.
type TstVd struct {
	XVals XVals  `json:"xVals,omitempty"`
	RVals *RVals `json:"rVals,omitempty"`
}

// IsEmpty reports whether v carries no validation data.
func (v TstVd) IsEmpty() bool {
	return len(v.XVals) == 0 && (v.RVals == nil || v.RVals.IsEmpty())
}

// TstToken is one timestamp token of a container.
type TstToken struct {
	Type     string `json:"type,omitempty"`
	Encoding string `json:"encoding,omitempty"`
	Val      string `json:"val"`
}

// TstContainer is the value of sigTst, arcTst and adoTst.
type TstContainer struct {
	CanonAlg  string     `json:"canonAlg,omitempty"`
	TstTokens []TstToken `json:"tstTokens"`
}

// NewTstContainer wraps DER encoded timestamp tokens.
func NewTstContainer(tokens ...[]byte) TstContainer {
	c := TstContainer{TstTokens: make([]TstToken, 0, len(tokens))}
	for _, t := range tokens {
		c.TstTokens = append(c.TstTokens, TstToken{Val: base64.StdEncoding.EncodeToString(t)})
	}
	return c
}

// Tokens decodes the DER timestamp tokens.
func (c TstContainer) Tokens() ([][]byte, error) {
	out := make([][]byte, 0, len(c.TstTokens))
	for i, t := range c.TstTokens {
		b, err := base64.StdEncoding.DecodeString(t.Val)
		if err != nil {
			return nil, fmt.Errorf("tstTokens[%d]: invalid encoding: %w", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// SpDSpec describes a signature policy document held by a policy store.
type SpDSpec struct {
	ID   string `json:"id"`
	Desc string `json:"desc,omitempty"`
}

// SigPSt is the signature policy store component.
type SigPSt struct {
	SigPolDoc string   `json:"sigPolDoc,omitempty"`
	SpDSpec   *SpDSpec `json:"spDSpec,omitempty"`
}

// Document decodes the embedded policy document.
func (s SigPSt) Document() ([]byte, error) {
	if s.SigPolDoc == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s.SigPolDoc)
}

func decodeAll(name string, obs []PkiOb) ([][]byte, error) {
	out := make([][]byte, 0, len(obs))
	for i, ob := range obs {
		b, err := ob.Bytes()
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		out = append(out, b)
	}
	return out, nil
}
