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
	"crypto"
	"crypto/x509"
	"fmt"

	"github.com/notaryproject/jades-go/document"
	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/etsiu"
	"github.com/notaryproject/jades-go/imprint"
	"github.com/notaryproject/jades-go/jws"
	"github.com/notaryproject/jades-go/log"
	"github.com/notaryproject/jades-go/sigd"
	"github.com/notaryproject/jades-go/tsa"
)

// Timestamp is a verified timestamp of a signature.
type Timestamp struct {
	// Kind is the timestamp kind.
	Kind imprint.Kind

	// Index is the etsiU position of the entry holding the token, or -1
	// for a content timestamp.
	Index int

	// Token is the parsed token.
	Token *tsa.Token

	// Chain is the verified chain of the authority. It is nil when no
	// roots were given.
	Chain []*x509.Certificate
}

// VerifyTimestamps recomputes the imprint of every content, signature and
// archive timestamp of e and checks it against the token. An archive
// timestamp is checked against the ledger truncated at its own index.
//
// When roots is not nil the token signatures are verified too.
func VerifyTimestamps(ctx context.Context, e *jws.Envelope, docs []document.Document, roots *x509.CertPool) ([]Timestamp, error) {
	l, err := e.Ledger()
	if err != nil {
		return nil, err
	}
	signedData, err := imprint.SignedData(e, imprint.Documents(docs))
	if err != nil {
		return nil, err
	}

	var out []Timestamp
	check := func(kind imprint.Kind, index int, der, message []byte) error {
		token, chain, err := verifyToken(ctx, der, message, roots)
		if err != nil {
			where := "content timestamp"
			if index >= 0 {
				where = fmt.Sprintf("%s at etsiU index %d", kind, index)
			}
			return errdef.Malformed(errdef.RuleTimestampToken, "%s does not verify", where).WithSignature(e.ID()).Wrap(err)
		}
		out = append(out, Timestamp{Kind: kind, Index: index, Token: token, Chain: chain})
		return nil
	}

	content, err := contentTokens(e)
	if err != nil {
		return nil, err
	}
	for _, der := range content {
		if err := check(imprint.KindContent, -1, der, signedData); err != nil {
			return nil, err
		}
	}
	for i, entry := range l.Entries() {
		var message []byte
		var kind imprint.Kind
		switch entry.Tag() {
		case etsiu.TagSigTst:
			kind, message = imprint.KindSignature, imprint.Signature(e, signedData)
		case etsiu.TagArcTst:
			kind = imprint.KindArchive
			if message, err = imprint.Archive(e, l, i, signedData); err != nil {
				return nil, err
			}
		default:
			continue
		}
		var c etsiu.TstContainer
		if err := entry.Decode(&c); err != nil {
			return nil, fmt.Errorf("etsiU entry %d: %w", i, err)
		}
		ders, err := c.Tokens()
		if err != nil {
			return nil, fmt.Errorf("etsiU entry %d: %w", i, err)
		}
		for _, der := range ders {
			if err := check(kind, i, der, message); err != nil {
				return nil, err
			}
		}
	}
	log.GetLogger(ctx).Debugf("verified %d timestamp(s) of signature %s", len(out), e.ID())
	return out, nil
}

func verifyToken(ctx context.Context, der, message []byte, roots *x509.CertPool) (*tsa.Token, []*x509.Certificate, error) {
	if roots != nil {
		return tsa.VerifyToken(ctx, der, message, roots)
	}
	token, err := tsa.ParseToken(der)
	if err != nil {
		return nil, nil, err
	}
	if !token.Matches(message) {
		return nil, nil, fmt.Errorf("message imprint mismatch")
	}
	return token, nil, nil
}

// ContentTimestamp obtains a content timestamp over documents about to be
// signed, for signer.Parameters.ContentTimestamps. Mechanism 0 stands for an
// enveloping signature of a single document.
func ContentTimestamp(ctx context.Context, ts tsa.Timestamper, m sigd.Mechanism, docs []document.Document, b64 bool, hash crypto.Hash) ([]byte, error) {
	if m == 0 {
		m = sigd.NoSigD
	}
	message, err := imprint.Content(m, docs, b64)
	if err != nil {
		return nil, err
	}
	opts := Options{Timestamper: ts, DigestAlgorithm: hash}.withDefaults()
	return opts.timestamp(ctx, imprint.KindContent, message)
}
