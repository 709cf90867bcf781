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

// Package config loads JAdES profiles from YAML files and builds the
// signing, timestamping and revocation collaborators they describe.
//
// A profile looks like:
//
//	level: LTA
//	serialization: flattened
//	incorporation-mode: base64url
//	digest-algorithm: SHA-256
//	signer:
//	  key-file: signer.key
//	  cert-file: signer.crt
//	timestamp:
//	  url: http://tsa.example.com
//	  root-certs: [tsa-root.crt]
//	  rate-limit: 5
//	revocation:
//	  alert-policy: warn
//	  ldap: true
//
// Relative file names are resolved against the directory of the profile.
package config

import (
	"bytes"
	"crypto"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/notaryproject/jades-go/dir"
	"github.com/notaryproject/jades-go/etsiu"
	"github.com/notaryproject/jades-go/extension"
	"github.com/notaryproject/jades-go/jws"
	"github.com/notaryproject/jades-go/revocation"
	"github.com/notaryproject/jades-go/sigd"
	"github.com/notaryproject/jades-go/signer"
	"gopkg.in/yaml.v3"
)

// maxProfileSize bounds profile files.
const maxProfileSize = 1 << 20

// Profile reflects a jades.yaml file.
type Profile struct {
	// Level is the extension target, e.g. "LT" or "JAdES-BASELINE-LTA".
	Level string `yaml:"level"`

	// Serialization is "compact", "flattened" or "general".
	Serialization string `yaml:"serialization"`

	// IncorporationMode is "base64url" or "clear".
	IncorporationMode string `yaml:"incorporation-mode"`

	// DigestAlgorithm is "SHA-256", "SHA-384" or "SHA-512".
	DigestAlgorithm string `yaml:"digest-algorithm"`

	// Packaging is "enveloping" or "detached".
	Packaging string `yaml:"packaging"`

	// Mechanism is the sigD mechanism of detached signatures.
	Mechanism string `yaml:"sigd-mechanism"`

	UnencodedPayload bool `yaml:"unencoded-payload"`

	// Concurrency bounds the parallel signatures extended at once.
	Concurrency int `yaml:"concurrency"`

	Signer           *SignerConfig     `yaml:"signer"`
	Timestamp        *TimestampConfig  `yaml:"timestamp"`
	ArchiveTimestamp *TimestampConfig  `yaml:"archive-timestamp"`
	Revocation       *RevocationConfig `yaml:"revocation"`

	// base resolves relative file names.
	base string
}

// SignerConfig names a PEM/DER key pair.
type SignerConfig struct {
	KeyFile    string   `yaml:"key-file"`
	CertFile   string   `yaml:"cert-file"`
	OtherCerts []string `yaml:"other-certs"`
}

// TimestampConfig configures an RFC 3161 timestamp authority.
type TimestampConfig struct {
	URL string `yaml:"url"`

	// RootCerts verify every token received. Empty skips verification.
	RootCerts []string `yaml:"root-certs"`

	Timeout time.Duration `yaml:"timeout"`

	// RateLimit is the maximum number of requests per second. Zero means
	// unlimited.
	RateLimit float64 `yaml:"rate-limit"`
	Burst     int     `yaml:"burst"`
}

// RevocationConfig configures the collection of validation data.
type RevocationConfig struct {
	// Offline serves only the configured certificates and CRLs.
	Offline bool `yaml:"offline"`

	DisableOCSP bool          `yaml:"disable-ocsp"`
	DisableCRL  bool          `yaml:"disable-crl"`
	OCSPTimeout time.Duration `yaml:"ocsp-timeout"`

	// CRLCacheDir defaults to the user cache directory. "-" disables the
	// cache.
	CRLCacheDir string `yaml:"crl-cache-dir"`

	// LDAP enables ldap:// CRL distribution points.
	LDAP bool `yaml:"ldap"`

	// Certificates complete partial chains.
	Certificates []string `yaml:"certificates"`

	// CRLs are served by an offline source.
	CRLs []string `yaml:"crls"`

	// AlertPolicy is "fail", "warn" or "silent".
	AlertPolicy string `yaml:"alert-policy"`
}

// Load reads and validates the profile at path. An empty path loads
// jades.yaml from the user config directory.
func Load(path string) (*Profile, error) {
	if path == "" {
		var err error
		if path, err = dir.ConfigFS().SysPath(dir.PathProfile); err != nil {
			return nil, err
		}
	}
	data, err := readRegularFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.base = filepath.Dir(path)
	return p, nil
}

// Parse decodes and validates a YAML profile. Unknown fields are errors.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigError{Message: "invalid YAML", Err: err}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// readRegularFile reads path, refusing directories and symbolic links.
func readRegularFile(path string) ([]byte, error) {
	fileInfo, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	mode := fileInfo.Mode()
	if mode.IsDir() || mode&fs.ModeSymlink != 0 {
		return nil, fmt.Errorf("%q: %w", path, ErrNotRegularFile)
	}
	if fileInfo.Size() > maxProfileSize {
		return nil, fmt.Errorf("%q exceeds %d bytes", path, maxProfileSize)
	}
	return os.ReadFile(path)
}

// Validate checks every value of p.
func (p *Profile) Validate() error {
	checks := []func() error{
		func() error { _, err := p.level(); return err },
		func() error { _, err := p.serialization(); return err },
		func() error { _, err := p.mode(); return err },
		func() error { _, err := p.digestAlgorithm(); return err },
		func() error { _, err := p.packaging(); return err },
		func() error { _, err := p.mechanism(); return err },
		func() error { _, err := p.alertPolicy(); return err },
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	if p.Concurrency < 0 {
		return fieldError("concurrency", nil, "must not be negative")
	}
	if p.Signer != nil {
		if p.Signer.KeyFile == "" {
			return fieldError("signer.key-file", nil, "required field is missing")
		}
		if p.Signer.CertFile == "" {
			return fieldError("signer.cert-file", nil, "required field is missing")
		}
	}
	for field, ts := range map[string]*TimestampConfig{"timestamp": p.Timestamp, "archive-timestamp": p.ArchiveTimestamp} {
		if err := ts.validate(field); err != nil {
			return err
		}
	}
	if r := p.Revocation; r != nil && r.Offline && r.LDAP {
		return fieldError("revocation.ldap", nil, "cannot be enabled for an offline source")
	}
	return nil
}

func (t *TimestampConfig) validate(field string) error {
	if t == nil {
		return nil
	}
	if t.URL == "" {
		return fieldError(field+".url", nil, "required field is missing")
	}
	if t.Timeout < 0 {
		return fieldError(field+".timeout", nil, "must not be negative")
	}
	if t.RateLimit < 0 {
		return fieldError(field+".rate-limit", nil, "must not be negative")
	}
	if t.Burst < 0 {
		return fieldError(field+".burst", nil, "must not be negative")
	}
	return nil
}

func (p *Profile) level() (extension.Level, error) {
	if p.Level == "" {
		return extension.LevelB, nil
	}
	level, err := extension.ParseLevel(p.Level)
	if err != nil {
		return 0, fieldError("level", err, "invalid level %q", p.Level)
	}
	return level, nil
}

// serialization returns zero when unset, leaving the default to the
// operation.
func (p *Profile) serialization() (jws.Serialization, error) {
	if p.Serialization == "" {
		return 0, nil
	}
	s, err := jws.ParseSerialization(p.Serialization)
	if err != nil {
		return 0, fieldError("serialization", err, "invalid serialization %q", p.Serialization)
	}
	return s, nil
}

func (p *Profile) mode() (etsiu.Mode, error) {
	switch strings.ToLower(p.IncorporationMode) {
	case "":
		return etsiu.ModeUnset, nil
	case "base64url":
		return etsiu.ModeBase64URL, nil
	case "clear":
		return etsiu.ModeClear, nil
	}
	return 0, fieldError("incorporation-mode", nil, "unknown incorporation mode %q", p.IncorporationMode)
}

var digestAlgorithms = map[string]crypto.Hash{
	"SHA256": crypto.SHA256,
	"SHA384": crypto.SHA384,
	"SHA512": crypto.SHA512,
	"S256":   crypto.SHA256,
	"S384":   crypto.SHA384,
	"S512":   crypto.SHA512,
}

func (p *Profile) digestAlgorithm() (crypto.Hash, error) {
	if p.DigestAlgorithm == "" {
		return 0, nil
	}
	name := strings.ToUpper(strings.ReplaceAll(p.DigestAlgorithm, "-", ""))
	if h, ok := digestAlgorithms[name]; ok {
		return h, nil
	}
	return 0, fieldError("digest-algorithm", nil, "unsupported digest algorithm %q", p.DigestAlgorithm)
}

func (p *Profile) packaging() (signer.Packaging, error) {
	switch strings.ToLower(p.Packaging) {
	case "", "enveloping":
		return signer.Enveloping, nil
	case "detached":
		return signer.Detached, nil
	}
	return 0, fieldError("packaging", nil, "unknown packaging %q", p.Packaging)
}

func (p *Profile) mechanism() (sigd.Mechanism, error) {
	if p.Mechanism == "" {
		return 0, nil
	}
	m, err := sigd.ParseMechanism(p.Mechanism)
	if err != nil {
		return 0, fieldError("sigd-mechanism", err, "invalid sigD mechanism %q", p.Mechanism)
	}
	return m, nil
}

func (p *Profile) alertPolicy() (revocation.AlertPolicy, error) {
	if p.Revocation == nil {
		return revocation.AlertFail, nil
	}
	policy, err := revocation.ParseAlertPolicy(p.Revocation.AlertPolicy)
	if err != nil {
		return 0, fieldError("revocation.alert-policy", err, "invalid alert policy")
	}
	return policy, nil
}

// path resolves a file name of the profile.
func (p *Profile) path(name string) string {
	if filepath.IsAbs(name) || p.base == "" {
		return name
	}
	return filepath.Join(p.base, name)
}
