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

package config

import (
	"crypto/x509"
	"net/http"

	"github.com/notaryproject/jades-go/dir"
	"github.com/notaryproject/jades-go/extension"
	"github.com/notaryproject/jades-go/revocation"
	"github.com/notaryproject/jades-go/signer"
	"github.com/notaryproject/jades-go/tsa"
	corecrl "github.com/notaryproject/notation-core-go/revocation/crl"
)

// noCache disables the CRL file cache.
const noCache = "-"

// LocalSigner loads the signing key of the profile. It returns nil when the
// profile has no signer section.
func (p *Profile) LocalSigner() (*signer.LocalSigner, error) {
	if p.Signer == nil {
		return nil, nil
	}
	key, err := readPrivateKey(p.path(p.Signer.KeyFile))
	if err != nil {
		return nil, fieldError("signer.key-file", err, "failed to read private key")
	}
	chain, err := p.readCertificates("signer.cert-file", []string{p.Signer.CertFile})
	if err != nil {
		return nil, err
	}
	others, err := p.readCertificates("signer.other-certs", p.Signer.OtherCerts)
	if err != nil {
		return nil, err
	}
	s, err := signer.NewLocalSigner(key, append(chain, others...))
	if err != nil {
		return nil, fieldError("signer", err, "invalid signing key")
	}
	return s, nil
}

// SigningParameters returns the B-level parameters of the profile.
func (p *Profile) SigningParameters() (signer.Parameters, error) {
	s, err := p.LocalSigner()
	if err != nil {
		return signer.Parameters{}, err
	}
	params := signer.Parameters{Unencoded: p.UnencodedPayload}
	if s != nil {
		params.Signer = s
	}
	if params.Packaging, err = p.packaging(); err != nil {
		return signer.Parameters{}, err
	}
	if params.Mechanism, err = p.mechanism(); err != nil {
		return signer.Parameters{}, err
	}
	if params.Serialization, err = p.serialization(); err != nil {
		return signer.Parameters{}, err
	}
	if params.DigestAlgorithm, err = p.digestAlgorithm(); err != nil {
		return signer.Parameters{}, err
	}
	return params, nil
}

// Timestamper returns the signature timestamp authority, or nil when the
// profile names none.
func (p *Profile) Timestamper() (tsa.Timestamper, error) {
	return p.timestamper("timestamp", p.Timestamp)
}

// ArchiveTimestamper returns the archive timestamp authority, or nil when
// archive timestamps use the signature timestamp authority.
func (p *Profile) ArchiveTimestamper() (tsa.Timestamper, error) {
	return p.timestamper("archive-timestamp", p.ArchiveTimestamp)
}

func (p *Profile) timestamper(field string, cfg *TimestampConfig) (tsa.Timestamper, error) {
	if cfg == nil {
		return nil, nil
	}
	var roots *x509.CertPool
	if len(cfg.RootCerts) > 0 {
		certs, err := p.readCertificates(field+".root-certs", cfg.RootCerts)
		if err != nil {
			return nil, err
		}
		roots = x509.NewCertPool()
		for _, cert := range certs {
			roots.AddCert(cert)
		}
	}
	var client *http.Client
	if cfg.Timeout > 0 {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	ts, err := tsa.NewHTTPTimestamper(client, cfg.URL, roots)
	if err != nil {
		return nil, fieldError(field+".url", err, "invalid timestamp authority")
	}
	if cfg.RateLimit > 0 {
		return tsa.NewRateLimited(ts, cfg.RateLimit, cfg.Burst), nil
	}
	return ts, nil
}

// RevocationSource returns the source of validation data, or nil when the
// profile has no revocation section.
func (p *Profile) RevocationSource() (revocation.Source, error) {
	r := p.Revocation
	if r == nil {
		return nil, nil
	}
	certs, err := p.readCertificates("revocation.certificates", r.Certificates)
	if err != nil {
		return nil, err
	}
	if r.Offline {
		src := &revocation.StaticSource{Certificates: certs}
		for _, name := range r.CRLs {
			der, err := readCRL(p.path(name))
			if err != nil {
				return nil, fieldError("revocation.crls", err, "failed to read CRL %q", name)
			}
			src.CRLs = append(src.CRLs, der)
		}
		return src, nil
	}

	var cache corecrl.Cache
	if !r.DisableCRL && r.CRLCacheDir != noCache {
		root := r.CRLCacheDir
		if root == "" {
			if root, err = dir.CRLFileCacheFS().SysPath(); err != nil {
				return nil, err
			}
		} else {
			root = p.path(root)
		}
		fileCache, err := revocation.NewFileCache(root)
		if err != nil {
			return nil, fieldError("revocation.crl-cache-dir", err, "unusable CRL cache")
		}
		cache = fileCache
	}
	var client *http.Client
	if r.OCSPTimeout > 0 {
		client = &http.Client{Timeout: r.OCSPTimeout}
	}
	src, err := revocation.NewOnlineSource(client, cache)
	if err != nil {
		return nil, err
	}
	src.Certificates = certs
	if r.DisableOCSP {
		src.OCSP = nil
	}
	if r.DisableCRL {
		src.CRL = nil
	}
	if r.LDAP {
		src.LDAP = &revocation.LDAPFetcher{}
	}
	return src, nil
}

// ExtensionOptions returns the extension options of the profile. Detached
// documents and metrics are left to the caller.
func (p *Profile) ExtensionOptions() (extension.Options, error) {
	var (
		opts extension.Options
		err  error
	)
	if opts.Level, err = p.level(); err != nil {
		return opts, err
	}
	if opts.Serialization, err = p.serialization(); err != nil {
		return opts, err
	}
	if opts.Mode, err = p.mode(); err != nil {
		return opts, err
	}
	if opts.DigestAlgorithm, err = p.digestAlgorithm(); err != nil {
		return opts, err
	}
	if opts.AlertPolicy, err = p.alertPolicy(); err != nil {
		return opts, err
	}
	if opts.Timestamper, err = p.Timestamper(); err != nil {
		return opts, err
	}
	if opts.ArchiveTimestamper, err = p.ArchiveTimestamper(); err != nil {
		return opts, err
	}
	if opts.Revocation, err = p.RevocationSource(); err != nil {
		return opts, err
	}
	opts.Concurrency = p.Concurrency
	return opts, nil
}
