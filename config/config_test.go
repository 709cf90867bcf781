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
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/notaryproject/jades-go/document"
	"github.com/notaryproject/jades-go/etsiu"
	"github.com/notaryproject/jades-go/extension"
	"github.com/notaryproject/jades-go/internal/testpki"
	"github.com/notaryproject/jades-go/jws"
	"github.com/notaryproject/jades-go/revocation"
	"github.com/notaryproject/jades-go/signer"
	"github.com/notaryproject/jades-go/tsa"
	"github.com/notaryproject/jades-go/tsa/tsatest"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
}

func writePEM(t *testing.T, path, blockType string, der []byte) {
	t.Helper()
	writeFile(t, path, pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{name: "empty"},
		{name: "full", yaml: `
level: JAdES-BASELINE-LTA
serialization: flattened
incorporation-mode: clear
digest-algorithm: SHA-384
packaging: detached
sigd-mechanism: OBJECT_ID_BY_URI_HASH
concurrency: 4
timestamp:
  url: http://tsa.example.com
  timeout: 10s
  rate-limit: 2.5
revocation:
  alert-policy: warn
  ldap: true
`},
		{name: "bad level", yaml: "level: LTV", field: "level"},
		{name: "bad serialization", yaml: "serialization: xml", field: "serialization"},
		{name: "bad mode", yaml: "incorporation-mode: hex", field: "incorporation-mode"},
		{name: "bad digest", yaml: "digest-algorithm: MD5", field: "digest-algorithm"},
		{name: "bad packaging", yaml: "packaging: enveloped", field: "packaging"},
		{name: "bad mechanism", yaml: "sigd-mechanism: URL", field: "sigd-mechanism"},
		{name: "bad alert policy", yaml: "revocation:\n  alert-policy: shout", field: "revocation.alert-policy"},
		{name: "negative concurrency", yaml: "concurrency: -1", field: "concurrency"},
		{name: "signer without key", yaml: "signer:\n  cert-file: a.crt", field: "signer.key-file"},
		{name: "signer without cert", yaml: "signer:\n  key-file: a.key", field: "signer.cert-file"},
		{name: "timestamp without url", yaml: "timestamp:\n  timeout: 1s", field: "timestamp.url"},
		{name: "archive timestamp rate", yaml: "archive-timestamp:\n  url: http://a\n  rate-limit: -1", field: "archive-timestamp.rate-limit"},
		{name: "offline ldap", yaml: "revocation:\n  offline: true\n  ldap: true", field: "revocation.ldap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse([]byte(tt.yaml))
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Parse() error = %v", err)
				}
				if p == nil {
					t.Fatal("Parse() returned nil profile")
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Parse() error = %v, want ConfigError", err)
			}
			if cfgErr.Field != tt.field {
				t.Fatalf("ConfigError.Field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestParseUnknownField(t *testing.T) {
	_, err := Parse([]byte("level: T\nlevle: LT\n"))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Err == nil {
		t.Fatalf("Parse() error = %v, want ConfigError wrapping the YAML error", err)
	}
	if !strings.Contains(err.Error(), "levle") {
		t.Fatalf("Parse() error = %q does not name the field", err)
	}
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "jades.yaml")
	writeFile(t, path, []byte("level: T\nserialization: general\n"))

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	opts, err := p.ExtensionOptions()
	if err != nil {
		t.Fatalf("ExtensionOptions() error = %v", err)
	}
	if opts.Level != extension.LevelT || opts.Serialization != jws.General {
		t.Fatalf("ExtensionOptions() = %+v", opts)
	}
	if opts.Timestamper != nil || opts.Revocation != nil {
		t.Fatal("collaborators configured without profile sections")
	}
	if got := p.path("certs/root.crt"); got != filepath.Join(root, "certs", "root.crt") {
		t.Fatalf("path() = %q", got)
	}
}

func TestLoadRejectsNonRegularFiles(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "jades.yaml")
	writeFile(t, target, []byte("level: B\n"))
	link := filepath.Join(root, "link.yaml")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks are not supported: %v", err)
	}

	for _, path := range []string{root, link} {
		if _, err := Load(path); !errors.Is(err, ErrNotRegularFile) {
			t.Fatalf("Load(%q) error = %v, want %v", path, err, ErrNotRegularFile)
		}
	}
	if _, err := Load(filepath.Join(root, "missing.yaml")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Load() error = %v, want %v", err, fs.ErrNotExist)
	}
}

func TestProfileSignAndExtend(t *testing.T) {
	root := t.TempDir()
	ca, err := testpki.NewCA("Config Test Root")
	if err != nil {
		t.Fatal(err)
	}
	leaf, key, err := ca.IssueLeaf("Config Test Signer")
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	writePEM(t, filepath.Join(root, "signer.key"), "EC PRIVATE KEY", keyDER)
	writePEM(t, filepath.Join(root, "signer.crt"), "CERTIFICATE", leaf.Raw)
	writeFile(t, filepath.Join(root, "ca.der"), ca.Cert.Raw)

	authority, err := tsatest.New()
	if err != nil {
		t.Fatal(err)
	}
	server := authority.NewServer()
	defer server.Close()
	writePEM(t, filepath.Join(root, "tsa-root.crt"), "CERTIFICATE", authority.Root.Raw)

	crl, err := ca.CRL()
	if err != nil {
		t.Fatal(err)
	}
	tsaCRL, err := authority.CRL()
	if err != nil {
		t.Fatal(err)
	}
	writePEM(t, filepath.Join(root, "ca.crl"), "X509 CRL", crl)
	writeFile(t, filepath.Join(root, "tsa.crl"), tsaCRL)

	profile := `
level: LT
serialization: flattened
incorporation-mode: clear
signer:
  key-file: signer.key
  cert-file: signer.crt
  other-certs: [ca.der]
timestamp:
  url: ` + server.URL + `
  root-certs: [tsa-root.crt]
  timeout: 5s
  rate-limit: 10
revocation:
  offline: true
  crls: [ca.crl, tsa.crl]
`
	path := filepath.Join(root, "jades.yaml")
	writeFile(t, path, []byte(profile))
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	params, err := p.SigningParameters()
	if err != nil {
		t.Fatalf("SigningParameters() error = %v", err)
	}
	if got := params.Signer.CertificateChain(); len(got) != 2 || !got[1].Equal(ca.Cert) {
		t.Fatalf("signer chain = %d certificates, want leaf and CA", len(got))
	}
	ctx := context.Background()
	signed, err := signer.Sign(ctx, []document.Document{document.New([]byte("profile"), "", "")}, params)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if signed.Serialization != jws.Flattened {
		t.Fatalf("Serialization = %s, want flattened", signed.Serialization)
	}

	opts, err := p.ExtensionOptions()
	if err != nil {
		t.Fatalf("ExtensionOptions() error = %v", err)
	}
	if _, ok := opts.Timestamper.(*tsa.RateLimited); !ok {
		t.Fatalf("Timestamper = %T, want *tsa.RateLimited", opts.Timestamper)
	}
	if _, ok := opts.Revocation.(*revocation.StaticSource); !ok {
		t.Fatalf("Revocation = %T, want *revocation.StaticSource", opts.Revocation)
	}
	extended, err := extension.Extend(ctx, signed, opts)
	if err != nil {
		t.Fatalf("Extend() error = %v", err)
	}
	if level, _ := extension.LevelOf(extended.Signatures[0]); level != extension.LevelLT {
		t.Fatalf("LevelOf() = %s, want LT", level)
	}
	l, err := extended.Signatures[0].Ledger()
	if err != nil {
		t.Fatal(err)
	}
	if l.Mode() != etsiu.ModeClear {
		t.Fatalf("Mode() = %s, want clear", l.Mode())
	}
}

func TestRevocationSourceOnline(t *testing.T) {
	root := t.TempDir()
	ca, err := testpki.NewCA("Online Root")
	if err != nil {
		t.Fatal(err)
	}
	writePEM(t, filepath.Join(root, "ca.crt"), "CERTIFICATE", ca.Cert.Raw)
	p, err := Parse([]byte(`
revocation:
  disable-ocsp: true
  ocsp-timeout: 1s
  crl-cache-dir: cache
  ldap: true
  certificates: [ca.crt]
`))
	if err != nil {
		t.Fatal(err)
	}
	p.base = root

	src, err := p.RevocationSource()
	if err != nil {
		t.Fatalf("RevocationSource() error = %v", err)
	}
	online, ok := src.(*revocation.OnlineSource)
	if !ok {
		t.Fatalf("RevocationSource() = %T, want *revocation.OnlineSource", src)
	}
	if online.OCSP != nil || online.CRL == nil || online.LDAP == nil {
		t.Fatalf("OnlineSource = %+v", online)
	}
	if len(online.Certificates) != 1 || !online.Certificates[0].Equal(ca.Cert) {
		t.Fatal("certificates not loaded")
	}
	if info, err := os.Stat(filepath.Join(root, "cache")); err != nil || !info.IsDir() {
		t.Fatalf("CRL cache directory not created: %v", err)
	}
}

func TestSignerErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "bad.key"), []byte("not a key"))
	p := &Profile{
		Signer: &SignerConfig{KeyFile: "bad.key", CertFile: "missing.crt"},
		base:   root,
	}
	_, err := p.LocalSigner()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "signer.key-file" {
		t.Fatalf("LocalSigner() error = %v, want signer.key-file ConfigError", err)
	}
	if s, err := (&Profile{}).LocalSigner(); s != nil || err != nil {
		t.Fatalf("LocalSigner() = %v, %v, want nil, nil", s, err)
	}
}
