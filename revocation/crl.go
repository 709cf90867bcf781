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
	"net/url"
	"strings"
	"time"

	ldapv3 "github.com/go-ldap/ldap/v3"
	"github.com/notaryproject/jades-go/log"
)

// defaultLDAPAttribute holds the CRL in X.500 directories.
const defaultLDAPAttribute = "certificateRevocationList;binary"

// LDAPFetcher downloads CRLs from ldap:// distribution points.
type LDAPFetcher struct {
	// Timeout bounds each search. Defaults to five seconds.
	Timeout time.Duration

	// Dial opens a connection to an "ldap://host:port" address. Defaults to
	// ldapv3.DialURL.
	Dial func(addr string) (ldapv3.Client, error)
}

// ldapLocation is a parsed RFC 4516 LDAP URL.
type ldapLocation struct {
	addr      string
	dn        string
	attribute string
}

// parseLDAPURL parses "ldap://host[:port]/dn?attribute".
func parseLDAPURL(raw string) (*ldapLocation, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid LDAP URL %q: %w", raw, err)
	}
	if !strings.EqualFold(u.Scheme, "ldap") && !strings.EqualFold(u.Scheme, "ldaps") {
		return nil, fmt.Errorf("invalid LDAP URL %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid LDAP URL %q: no host", raw)
	}
	dn := strings.TrimPrefix(u.Path, "/")
	if _, err := ldapv3.ParseDN(dn); err != nil || dn == "" {
		return nil, fmt.Errorf("invalid LDAP URL %q: distinguished name %q is not valid", raw, dn)
	}
	attribute := defaultLDAPAttribute
	if q := u.RawQuery; q != "" {
		attribute, _, _ = strings.Cut(q, "?")
		if unescaped, err := url.QueryUnescape(attribute); err == nil {
			attribute = unescaped
		}
	}
	return &ldapLocation{
		addr:      strings.ToLower(u.Scheme) + "://" + u.Host,
		dn:        dn,
		attribute: attribute,
	}, nil
}

// searcher is the subset of ldapv3.Client used to read a CRL.
type searcher interface {
	Search(*ldapv3.SearchRequest) (*ldapv3.SearchResult, error)
}

// Fetch returns the DER encoded CRL published at rawURL.
func (f *LDAPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	loc, err := parseLDAPURL(rawURL)
	if err != nil {
		return nil, err
	}
	dial := f.Dial
	if dial == nil {
		dial = func(addr string) (ldapv3.Client, error) {
			return ldapv3.DialURL(addr)
		}
	}
	conn, err := dial(loc.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", loc.addr, err)
	}
	defer conn.Close()
	log.GetLogger(ctx).Debugf("searching CRL at %s", rawURL)
	return f.search(conn, loc)
}

func (f *LDAPFetcher) search(conn searcher, loc *ldapLocation) ([]byte, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	req := ldapv3.NewSearchRequest(
		loc.dn,
		ldapv3.ScopeBaseObject,
		ldapv3.NeverDerefAliases,
		1,
		int(timeout/time.Second),
		false,
		"(objectClass=*)",
		[]string{loc.attribute},
		nil,
	)
	result, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("LDAP search for %q failed: %w", loc.dn, err)
	}
	if len(result.Entries) == 0 {
		return nil, fmt.Errorf("LDAP entry %q not found", loc.dn)
	}
	entry := result.Entries[0]
	base, _, _ := strings.Cut(loc.attribute, ";")
	for _, name := range []string{loc.attribute, base} {
		if v := entry.GetRawAttributeValue(name); len(v) > 0 {
			return v, nil
		}
	}
	return nil, fmt.Errorf("LDAP entry %q has no %q attribute", loc.dn, loc.attribute)
}

// checkCRL parses der and checks that issuer signed it.
func checkCRL(der []byte, issuer *x509.Certificate) error {
	rl, err := x509.ParseRevocationList(der)
	if err != nil {
		return fmt.Errorf("invalid CRL: %w", err)
	}
	if err := rl.CheckSignatureFrom(issuer); err != nil {
		return fmt.Errorf("CRL is not signed by %q: %w", issuer.Subject, err)
	}
	return nil
}

func isLDAP(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	return strings.HasPrefix(lower, "ldap://") || strings.HasPrefix(lower, "ldaps://")
}

var errNoCRL = errors.New("no CRL distribution point could be fetched")
