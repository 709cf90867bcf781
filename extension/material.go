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

package extension

import (
	"context"
	"crypto/x509"
	"fmt"
	"slices"

	"github.com/notaryproject/jades-go/etsiu"
	set "github.com/notaryproject/jades-go/internal/container"
	"github.com/notaryproject/jades-go/internal/pkix"
	"github.com/notaryproject/jades-go/jws"
	"github.com/notaryproject/jades-go/revocation"
	"github.com/notaryproject/jades-go/signer"
	"github.com/notaryproject/jades-go/tsa"
	"github.com/opencontainers/go-digest"
)

// material accumulates certificates and revocation values, skipping any
// value whose digest was seen before.
type material struct {
	seen  set.Set[digest.Digest]
	certs []*x509.Certificate
	crls  [][]byte
	ocsps [][]byte
}

func newMaterial() *material {
	return &material{seen: set.New[digest.Digest]()}
}

// cover marks values as already present in the signature.
func (m *material) cover(values ...[]byte) {
	for _, v := range values {
		m.seen.Add(digest.FromBytes(v))
	}
}

func (m *material) coverCertificates(certs []*x509.Certificate) {
	for _, cert := range certs {
		m.cover(cert.Raw)
	}
}

func (m *material) add(d *revocation.Data) {
	for _, cert := range d.Certificates {
		if m.seen.Add(digest.FromBytes(cert.Raw)) {
			m.certs = append(m.certs, cert)
		}
	}
	for _, crl := range d.CRLs {
		if m.seen.Add(digest.FromBytes(crl)) {
			m.crls = append(m.crls, crl)
		}
	}
	for _, resp := range d.OCSPResponses {
		if m.seen.Add(digest.FromBytes(resp)) {
			m.ocsps = append(m.ocsps, resp)
		}
	}
}

func (m *material) xVals() etsiu.XVals {
	return etsiu.NewXVals(m.certs)
}

func (m *material) rVals() etsiu.RVals {
	return etsiu.NewRVals(m.crls, m.ocsps)
}

func (m *material) hasRevocation() bool {
	return len(m.crls) > 0 || len(m.ocsps) > 0
}

// coverLedger marks the certificates and revocation values of every xVals,
// rVals and tstVd entry of l.
func (m *material) coverLedger(l *etsiu.Ledger) error {
	for i, entry := range l.Entries() {
		var (
			x   etsiu.XVals
			r   *etsiu.RVals
			err error
		)
		switch entry.Tag() {
		case etsiu.TagXVals:
			err = entry.Decode(&x)
		case etsiu.TagRVals:
			r = &etsiu.RVals{}
			err = entry.Decode(r)
		case etsiu.TagTstVd:
			var vd etsiu.TstVd
			err = entry.Decode(&vd)
			x, r = vd.XVals, vd.RVals
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("etsiU entry %d: %w", i, err)
		}
		certs, err := x.Certificates()
		if err != nil {
			return fmt.Errorf("etsiU entry %d: %w", i, err)
		}
		m.coverCertificates(certs)
		if r == nil {
			continue
		}
		crls, err := r.CRLs()
		if err != nil {
			return fmt.Errorf("etsiU entry %d: %w", i, err)
		}
		ocsps, err := r.OCSPs()
		if err != nil {
			return fmt.Errorf("etsiU entry %d: %w", i, err)
		}
		m.cover(crls...)
		m.cover(ocsps...)
	}
	return nil
}

// collect queries source once per distinct leaf and applies policy to the
// certificates left without revocation data.
func collect(ctx context.Context, source revocation.Source, policy revocation.AlertPolicy, chains [][]*x509.Certificate) (*revocation.Data, error) {
	leaves := set.New[digest.Digest]()
	merged := &revocation.Data{}
	for _, chain := range chains {
		if len(chain) == 0 || !leaves.Add(digest.FromBytes(chain[0].Raw)) {
			continue
		}
		d, err := source.Collect(ctx, chain)
		if err != nil {
			return nil, fmt.Errorf("failed to collect validation data for %q: %w", chain[0].Subject, err)
		}
		merged.Merge(d)
	}
	if err := policy.Check(ctx, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// ledgerTokens returns the timestamp tokens of the entries of l tagged with
// one of tags.
func ledgerTokens(l *etsiu.Ledger, tags ...etsiu.Tag) ([][]byte, error) {
	var out [][]byte
	for i, entry := range l.Entries() {
		if !slices.Contains(tags, entry.Tag()) {
			continue
		}
		var c etsiu.TstContainer
		if err := entry.Decode(&c); err != nil {
			return nil, fmt.Errorf("etsiU entry %d: %w", i, err)
		}
		tokens, err := c.Tokens()
		if err != nil {
			return nil, fmt.Errorf("etsiU entry %d: %w", i, err)
		}
		out = append(out, tokens...)
	}
	return out, nil
}

// contentTokens returns the tokens of the adoTst protected header.
func contentTokens(e *jws.Envelope) ([][]byte, error) {
	var c etsiu.TstContainer
	found, err := e.ProtectedHeader().Decode(jws.HeaderAdoTst, &c)
	if err != nil {
		return nil, fmt.Errorf("invalid %q header: %w", jws.HeaderAdoTst, err)
	}
	if !found {
		return nil, nil
	}
	return c.Tokens()
}

// tokenChains returns the certificate chain of the authority of each token,
// leaf first.
func tokenChains(tokens [][]byte) ([][]*x509.Certificate, error) {
	var chains [][]*x509.Certificate
	for _, der := range tokens {
		token, err := tsa.ParseToken(der)
		if err != nil {
			return nil, err
		}
		leaf := pkix.Leaf(token.Certificates)
		if leaf == nil {
			continue
		}
		chains = append(chains, pkix.CompleteChain([]*x509.Certificate{leaf}, token.Certificates))
	}
	return chains, nil
}

// counterSignatureChains returns the x5c chains of every counter-signature
// nested in e, at any depth.
func counterSignatureChains(e *jws.Envelope) ([][]*x509.Certificate, error) {
	var chains [][]*x509.Certificate
	err := jws.Walk(e, func(n *jws.Node) error {
		if n.Parent == nil {
			return nil
		}
		chain, err := signer.CertificateChain(n.Envelope)
		if err != nil {
			return err
		}
		if len(chain) > 0 {
			chains = append(chains, chain)
		}
		return nil
	})
	return chains, err
}
