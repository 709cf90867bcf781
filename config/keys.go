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
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	corex509 "github.com/notaryproject/notation-core-go/x509"
)

// readPrivateKey reads a PEM or DER encoded private key.
func readPrivateKey(path string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return parsePKCS8OrLegacy(data)
	}
	switch block.Type {
	case "PRIVATE KEY":
		return x509.ParsePKCS8PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	}
	return nil, fmt.Errorf("unsupported PEM block type: %s", block.Type)
}

func parsePKCS8OrLegacy(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	return nil, errors.New("no PEM data or DER private key found")
}

// readCertificates reads every certificate of the PEM or DER files.
func (p *Profile) readCertificates(field string, names []string) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for _, name := range names {
		read, err := corex509.ReadCertificateFile(p.path(name))
		if err != nil {
			return nil, fieldError(field, err, "failed to read certificates from %q", name)
		}
		certs = append(certs, read...)
	}
	return certs, nil
}

// readCRL reads a PEM ("X509 CRL") or DER encoded CRL.
func readCRL(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	der := data
	if block, _ := pem.Decode(data); block != nil {
		if block.Type != "X509 CRL" {
			return nil, fmt.Errorf("unsupported PEM block type: %s", block.Type)
		}
		der = block.Bytes
	}
	if _, err := x509.ParseRevocationList(der); err != nil {
		return nil, err
	}
	return der, nil
}
