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

// Package countersign creates, attaches, verifies and extends JAdES
// counter-signatures.
//
// A counter-signature signs the raw signature value of its target and is
// stored as a cSig entry of the target's etsiU ledger. Targets are addressed
// by signature identifier anywhere in the counter-signature tree.
package countersign

import (
	"bytes"
	"context"
	"crypto/x509"
	"fmt"

	"github.com/notaryproject/jades-go/document"
	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/etsiu"
	"github.com/notaryproject/jades-go/extension"
	"github.com/notaryproject/jades-go/internal/encoding/base64url"
	"github.com/notaryproject/jades-go/jws"
	"github.com/notaryproject/jades-go/log"
	"github.com/notaryproject/jades-go/metrics"
	"github.com/notaryproject/jades-go/sigd"
	"github.com/notaryproject/jades-go/signer"
)

// HasCounterSignatureTarget is implemented by inputs naming the signature to
// counter-sign.
type HasCounterSignatureTarget interface {
	CounterSignatureTarget() string
}

// Target names a signature by identifier.
type Target string

// CounterSignatureTarget implements HasCounterSignatureTarget.
func (t Target) CounterSignatureTarget() string {
	return string(t)
}

// Parameters configures a counter-signature.
type Parameters struct {
	// Parameters are the signing parameters of the counter-signature.
	// Packaging defaults to enveloping; a detached counter-signature uses
	// sigd.NoSigD. Serialization must be compact or flattened.
	signer.Parameters

	// TargetID is the identifier of the signature to counter-sign.
	TargetID string

	// Mode is the incorporation mode of the cSig entry when the target has
	// no etsiU entries yet.
	Mode etsiu.Mode

	// Metrics is optional.
	Metrics *metrics.Collector
}

// CounterSignatureTarget implements HasCounterSignatureTarget.
func (p Parameters) CounterSignatureTarget() string {
	return p.TargetID
}

// check validates the packaging and serialization of a counter-signature.
func (p Parameters) check() error {
	switch p.Packaging {
	case signer.Enveloping:
	case signer.Detached:
		if p.Mechanism != 0 && p.Mechanism != sigd.NoSigD {
			return errdef.Unsupported(errdef.RuleCounterSignPackaging,
				"The SigDMechanism '%s' is not supported by JAdES Counter Signature!", p.Mechanism).WithMechanism(p.Mechanism.String())
		}
	default:
		return errdef.Unsupported(errdef.RuleCounterSignPackaging,
			"The SignaturePackaging '%s' is not supported by JAdES Counter Signature!", p.Packaging)
	}
	if p.Serialization == jws.General {
		return errdef.Unsupported(errdef.RuleCounterSignPackaging,
			"the general JSON serialization is not supported for a JAdES counter signature").WithSerialization(p.Serialization.String())
	}
	return nil
}

// ToBeCounterSigned returns the bytes a counter-signature of the signature
// named by target signs: its raw signature value.
func ToBeCounterSigned(d *jws.Document, target HasCounterSignatureTarget) ([]byte, error) {
	if d == nil {
		return nil, errdef.Missing(errdef.RuleNoSignature, "no signature found")
	}
	node, _, err := jws.FindInDocument(d, target.CounterSignatureTarget())
	if err != nil {
		return nil, err
	}
	return node.Envelope.Signature(), nil
}

// CounterSign signs the signature params.TargetID of d and attaches the
// counter-signature to it. It returns the updated document and the
// counter-signature.
func CounterSign(ctx context.Context, d *jws.Document, params Parameters) (*jws.Document, *jws.Envelope, error) {
	if err := params.check(); err != nil {
		return nil, nil, err
	}
	id := params.CounterSignatureTarget()
	node, _, err := find(d, id)
	if err != nil {
		return nil, nil, err
	}
	if err := checkNotTimestamped(node); err != nil {
		return nil, nil, err
	}
	value := node.Envelope.Signature()
	signed, err := signer.Sign(ctx, []document.Document{document.New(value, "", "")}, params.Parameters)
	if err != nil {
		return nil, nil, err
	}
	counter := signed.Signatures[0]
	out, err := Attach(ctx, d, id, counter, AttachOptions{
		Compact: signed.Serialization == jws.Compact,
		Mode:    params.Mode,
	})
	if err != nil {
		return nil, nil, err
	}
	params.Metrics.CounterSignature()
	return out, counter, nil
}

// AttachOptions controls Attach.
type AttachOptions struct {
	// Compact stores the counter-signature as a compact serialization
	// string. A counter-signature with unsigned properties is always
	// stored as a flattened JSON object.
	Compact bool

	// Mode is the incorporation mode of the cSig entry when the target has
	// no etsiU entries yet.
	Mode etsiu.Mode
}

// Attach appends counter as a cSig entry to the signature id of d, which may
// be nested at any depth. d is not modified.
func Attach(ctx context.Context, d *jws.Document, id string, counter *jws.Envelope, opts AttachOptions) (*jws.Document, error) {
	node, index, err := find(d, id)
	if err != nil {
		return nil, err
	}
	if err := checkNotTimestamped(node); err != nil {
		return nil, err
	}
	if err := checkCounterSignedValue(counter, node.Envelope); err != nil {
		return nil, err
	}
	value, err := jws.MarshalCounterSignature(counter, opts.Compact && !counter.HasUnprotectedHeader())
	if err != nil {
		return nil, err
	}
	l := node.Ledger()
	if _, err := l.Add(etsiu.TagCSig, value, opts.Mode); err != nil {
		return nil, fmt.Errorf("signature %s: %w", id, err)
	}
	target, err := node.Envelope.WithLedger(l)
	if err != nil {
		return nil, err
	}
	root, err := node.Replace(target)
	if err != nil {
		return nil, err
	}
	out := d.Clone()
	out.Signatures[index] = root
	log.GetLogger(ctx).Infof("attached counter signature %s to signature %s at etsiU index %d", counter.ID(), id, l.Len()-1)
	return out, nil
}

// Verify checks the counter-signature id of d: it must sign the current
// signature value of its parent and its own signature value must verify
// against the certificate of its x5c header.
func Verify(d *jws.Document, id string) error {
	node, _, err := find(d, id)
	if err != nil {
		return err
	}
	if node.Parent == nil {
		return errdef.Missing(errdef.RuleSignatureNotFound, "signature %q is not a counter signature", id).WithSignature(id)
	}
	if err := checkCounterSignedValue(node.Envelope, node.Parent.Envelope); err != nil {
		return err
	}
	if node.Envelope.Detached() {
		// the signature value was checked against the parent above
		return nil
	}
	leaf, err := signingCertificate(node.Envelope)
	if err != nil {
		return err
	}
	return signer.Verify(node.Envelope, nil, leaf)
}

// Extend extends the counter-signature id of d to opts.Level. The
// counter-signed value stands in for the detached content. A counter-signature
// already covered by a timestamp of a master signature is refused; a
// top-level signature is extended like extension.ExtendSignature does.
func Extend(ctx context.Context, d *jws.Document, id string, opts extension.Options) (*jws.Document, error) {
	node, index, err := find(d, id)
	if err != nil {
		return nil, err
	}
	if err := checkNotTimestamped(node); err != nil {
		return nil, err
	}
	if node.Parent != nil && node.Envelope.Detached() {
		opts.Documents = []document.Document{document.New(node.Parent.Envelope.Signature(), "", "")}
	}
	extended, err := extension.ExtendSignature(ctx, node.Envelope, opts)
	if err != nil {
		return nil, err
	}
	root, err := node.Replace(extended)
	if err != nil {
		return nil, err
	}
	out := d.Clone()
	out.Signatures[index] = root
	return out, nil
}

// find locates id in a document that can hold unsigned properties.
func find(d *jws.Document, id string) (*jws.Node, int, error) {
	if d == nil || len(d.Signatures) == 0 {
		return nil, -1, errdef.Missing(errdef.RuleNoSignature, "no signature found")
	}
	if d.Serialization == jws.Compact {
		return nil, -1, errdef.Unsupported(errdef.RuleCompactUnsignedData,
			"a compact signature cannot hold counter signatures, convert it to a JSON serialization first").
			WithSerialization(d.Serialization.String())
	}
	return jws.FindInDocument(d, id)
}

// checkNotTimestamped refuses a node covered by a timestamp of an ancestor.
func checkNotTimestamped(node *jws.Node) error {
	master, tag, ok := node.TimestampedBy()
	if !ok {
		return nil
	}
	return errdef.Unsupported(errdef.RuleTimestampedByMaster,
		"the signature is timestamped by a master signature (%s of %s)", tag, master.ID()).WithSignature(node.ID())
}

// checkCounterSignedValue checks that counter signs the signature value of
// target: an enveloping counter-signature holds it as payload, a detached one
// must verify over it.
func checkCounterSignedValue(counter, target *jws.Envelope) error {
	if !counter.Detached() {
		if !bytes.Equal(counter.Payload(), target.Signature()) {
			return errdef.Malformed(errdef.RuleCounterSignedValue,
				"the counter signature does not sign the signature value of %s", target.ID()).WithSignature(counter.ID())
		}
		return nil
	}
	leaf, err := signingCertificate(counter)
	if err != nil {
		return err
	}
	if err := signer.Verify(counter, representation(target.Signature(), counter.B64()), leaf); err != nil {
		return errdef.Malformed(errdef.RuleCounterSignedValue,
			"the detached counter signature does not sign the signature value of %s", target.ID()).
			WithSignature(counter.ID()).Wrap(err)
	}
	return nil
}

// signingCertificate returns the first certificate of the x5c header of e.
func signingCertificate(e *jws.Envelope) (*x509.Certificate, error) {
	chain, err := signer.CertificateChain(e)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, errdef.Missing(errdef.RuleMissingCertificate, "the counter signature carries no signing certificate").WithSignature(e.ID())
	}
	return chain[0], nil
}

func representation(value []byte, b64 bool) []byte {
	if b64 {
		return []byte(base64url.Encode(value))
	}
	return value
}
