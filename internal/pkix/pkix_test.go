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

package pkix

import (
	"crypto/x509"
	"reflect"
	"testing"

	"github.com/notaryproject/notation-core-go/testhelper"
)

func TestEqualDN(t *testing.T) {
	tests := []struct {
		name    string
		a, b    string
		want    bool
		wantErr bool
	}{
		{
			name: "identical",
			a:    "C=US,ST=WA,O=Notary Project",
			b:    "C=US,ST=WA,O=Notary Project",
			want: true,
		},
		{
			name: "type case and spacing",
			a:    "c=US, st=WA, o=Notary Project",
			b:    "C=US,ST=WA,O=Notary Project",
			want: true,
		},
		{
			name: "different value",
			a:    "C=US,ST=WA,O=Notary Project",
			b:    "C=US,ST=CA,O=Notary Project",
		},
		{
			name:    "invalid",
			a:       "invalid",
			b:       "C=US",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EqualDN(tt.a, tt.b)
			if tt.wantErr != (err != nil) {
				t.Fatalf("EqualDN() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("EqualDN() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsIssuedBy(t *testing.T) {
	root := testhelper.GetRSARootCertificate()
	leaf := testhelper.GetRSACertTuple(2048)
	if !IsIssuedBy(leaf.Cert, root.Cert) {
		t.Fatal("leaf is not issued by root")
	}
	if IsIssuedBy(root.Cert, leaf.Cert) {
		t.Fatal("root is issued by leaf")
	}
	if !IsSelfIssued(root.Cert) || IsSelfIssued(leaf.Cert) {
		t.Fatal("IsSelfIssued() mismatch")
	}
}

func TestCompleteChain(t *testing.T) {
	root := testhelper.GetRSARootCertificate().Cert
	leaf := testhelper.GetRSACertTuple(3072).Cert
	other := testhelper.GetECRootCertificate().Cert

	tests := []struct {
		name  string
		chain []*x509.Certificate
		pool  []*x509.Certificate
		want  []*x509.Certificate
	}{
		{name: "empty"},
		{name: "issuer in pool", chain: []*x509.Certificate{leaf}, pool: []*x509.Certificate{other, root}, want: []*x509.Certificate{leaf, root}},
		{name: "issuer unknown", chain: []*x509.Certificate{leaf}, pool: []*x509.Certificate{other}, want: []*x509.Certificate{leaf}},
		{name: "already complete", chain: []*x509.Certificate{leaf, root}, pool: []*x509.Certificate{root}, want: []*x509.Certificate{leaf, root}},
		{name: "self issued", chain: []*x509.Certificate{root}, pool: []*x509.Certificate{leaf}, want: []*x509.Certificate{root}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompleteChain(tt.chain, tt.pool); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("CompleteChain() returned %d certificates, want %d", len(got), len(tt.want))
			}
		})
	}
}

func TestLeaf(t *testing.T) {
	root := testhelper.GetRSARootCertificate().Cert
	leaf := testhelper.GetRSACertTuple(2048).Cert
	if got := Leaf([]*x509.Certificate{root, leaf}); !got.Equal(leaf) {
		t.Fatalf("Leaf() = %q, want %q", got.Subject, leaf.Subject)
	}
	if got := Leaf(nil); got != nil {
		t.Fatalf("Leaf(nil) = %v, want nil", got)
	}
}
