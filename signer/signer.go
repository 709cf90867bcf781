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

// Package signer creates B-level JAdES signatures.
package signer

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/notaryproject/jades-go/document"
	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/jws"
	"github.com/notaryproject/jades-go/log"
	"github.com/notaryproject/jades-go/sigd"
)

// Sign signs docs and returns a single signature document in the requested
// serialization.
func Sign(ctx context.Context, docs []document.Document, params Parameters) (*jws.Document, error) {
	p := params.withDefaults()
	e, err := sign(ctx, docs, p)
	if err != nil {
		return nil, err
	}
	return &jws.Document{Serialization: p.Serialization, Signatures: []*jws.Envelope{e}}, nil
}

// SignParallel adds a signature over the same content to an existing
// document. The result always uses the general JSON serialization.
func SignParallel(ctx context.Context, existing *jws.Document, docs []document.Document, params Parameters) (*jws.Document, error) {
	p := params.withDefaults()
	if existing == nil || len(existing.Signatures) == 0 {
		return nil, errdef.Missing(errdef.RuleNoSignature, "no signature to add a parallel signature to")
	}
	if params.Serialization == jws.Compact {
		return nil, errdef.Unsupported(errdef.RuleCompactParallel,
			"parallel signatures are not supported with the compact serialization").WithSerialization(jws.Compact.String())
	}
	p.Serialization = jws.General

	first := existing.Signatures[0]
	if first.B64() == p.Unencoded {
		return nil, errdef.Malformed(errdef.RuleB64Mismatch,
			"'b64' header values of all signatures must be the same").WithSignature(first.ID())
	}
	if first.Detached() != (p.Packaging == Detached) {
		return nil, errdef.Unsupported(errdef.RuleDocument,
			"a parallel signature must use the packaging of the existing signatures").WithSignature(first.ID())
	}

	e, err := sign(ctx, docs, p)
	if err != nil {
		return nil, err
	}
	if !e.Detached() && !bytes.Equal(e.Payload(), first.Payload()) {
		return nil, errdef.Malformed(errdef.RuleGeneralSignatures,
			"parallel signatures must share the same payload").WithSignature(first.ID())
	}
	out := existing.Clone()
	out.Serialization = jws.General
	out.Signatures = append(out.Signatures, e)
	return out, nil
}

func sign(ctx context.Context, docs []document.Document, p Parameters) (*jws.Envelope, error) {
	if p.Signer == nil {
		return nil, errors.New("nil signer")
	}
	if len(docs) == 0 {
		return nil, errdef.Missing(errdef.RuleMissingDocuments, "documents to sign must be provided")
	}
	logger := log.GetLogger(ctx)
	b64 := !p.Unencoded

	var payload []byte
	switch p.Packaging {
	case Enveloping:
		if len(docs) > 1 {
			return nil, errdef.Unsupported(errdef.RuleDocument,
				"an enveloping signature covers exactly one document, found %d", len(docs))
		}
		content, ok := docs[0].Content()
		if !ok {
			return nil, errdef.Missing(errdef.RuleMissingDocuments,
				"the content of document %q is not available", docs[0].Name())
		}
		if !b64 {
			if err := jws.CheckUnencodedPayload(content, p.Serialization); err != nil {
				return nil, err
			}
		}
		payload = content
	case Detached:
		if err := sigd.Check(p.Mechanism, docs, b64); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown packaging %d", int(p.Packaging))
	}

	header, err := buildHeader(p, docs)
	if err != nil {
		return nil, err
	}
	protected, err := jws.EncodeProtected(header)
	if err != nil {
		return nil, err
	}

	var input []byte
	if p.Packaging == Enveloping {
		input = jws.SigningInput(protected, payload, b64)
	} else {
		repr, err := sigd.Payload(p.Mechanism, docs, b64)
		if err != nil {
			return nil, err
		}
		input = jws.SigningInputFromRepresentation(protected, repr)
	}

	logger.Debugf("signing with %s, packaging %s, serialization %s", p.Signer.Algorithm(), p.Packaging, p.Serialization)
	sig, err := p.Signer.Sign(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	e, err := jws.NewEnvelope(protected, payload, p.Packaging == Detached, sig)
	if err != nil {
		return nil, err
	}
	logger.Infof("created signature %s", e.ID())
	return e, nil
}
