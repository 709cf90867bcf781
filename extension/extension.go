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

// Package extension augments JAdES signatures from one baseline level to a
// higher one: T adds a signature timestamp, LT the certificates and
// revocation data, LTA an archive timestamp.
//
// Extension never mutates its input. The etsiU ledger of a copy is grown and
// the copy returned, so a cancelled or failed extension leaves nothing half
// updated.
package extension

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/etsiu"
	"github.com/notaryproject/jades-go/imprint"
	"github.com/notaryproject/jades-go/jws"
	"github.com/notaryproject/jades-go/log"
	"github.com/notaryproject/jades-go/metrics"
	"github.com/notaryproject/jades-go/signer"
	"golang.org/x/sync/errgroup"
)

// Extend extends every signature of d to opts.Level. Parallel signatures are
// extended concurrently. The result uses opts.Serialization, or the input
// serialization when unset.
func Extend(ctx context.Context, d *jws.Document, opts Options) (*jws.Document, error) {
	if d == nil || len(d.Signatures) == 0 {
		return nil, errdef.Missing(errdef.RuleNoSignature, "no signature to extend")
	}
	if err := opts.Level.validate(); err != nil {
		return nil, err
	}
	to := opts.Serialization
	if to == 0 {
		to = d.Serialization
	}
	if to == jws.Compact && opts.Level > LevelB {
		return nil, errdef.Unsupported(errdef.RuleCompactUnsignedData,
			"extension to level %s requires a JSON serialization", opts.Level).WithSerialization(to.String())
	}
	converted, err := d.Convert(to, jws.ConvertOptions{})
	if err != nil {
		return nil, err
	}

	extended := make([]*jws.Envelope, len(converted.Signatures))
	g, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	for i, e := range converted.Signatures {
		g.Go(func() error {
			out, err := ExtendSignature(gctx, e, opts)
			if err != nil {
				return err
			}
			extended[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := converted.Clone()
	out.Signatures = extended
	return out, nil
}

// ExtendSignature extends a single signature to opts.Level and returns the
// extended copy.
//
// Requesting a level already reached returns an unchanged copy, except for
// LevelLTA which always appends a new archive timestamp.
func ExtendSignature(ctx context.Context, e *jws.Envelope, opts Options) (out *jws.Envelope, err error) {
	if err := opts.Level.validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	logger := log.GetLogger(ctx)
	defer func() {
		if err != nil {
			opts.Metrics.Augmentation(opts.Level.String(), metrics.OutcomeError)
		}
	}()

	l, err := e.Ledger()
	if err != nil {
		return nil, err
	}
	current := levelOf(l)
	if opts.Level != LevelLTA && opts.Level <= current {
		logger.Debugf("signature %s is already at level %s, nothing to do for %s", e.ID(), current, opts.Level)
		opts.Metrics.Augmentation(opts.Level.String(), metrics.OutcomeNoop)
		return e.Clone(), nil
	}

	signedData, err := imprint.SignedData(e, opts)
	if err != nil {
		return nil, err
	}
	a := &augmenter{
		opts:       opts,
		envelope:   e,
		signedData: signedData,
		ledger:     l.Clone(),
	}
	if !a.ledger.Contains(etsiu.TagSigTst) {
		if err := a.addSignatureTimestamp(ctx); err != nil {
			return nil, err
		}
	}
	if opts.Level >= LevelLT && !hasValidationData(a.ledger) {
		if err := a.addValidationData(ctx); err != nil {
			return nil, err
		}
	}
	if opts.Level == LevelLTA {
		if err := a.addArchiveTimestamp(ctx); err != nil {
			return nil, err
		}
	}

	out, err = e.WithLedger(a.ledger)
	if err != nil {
		return nil, err
	}
	logger.Infof("extended signature %s from level %s to %s", e.ID(), current, opts.Level)
	opts.Metrics.Augmentation(opts.Level.String(), metrics.OutcomeSuccess)
	return out, nil
}

// augmenter grows the ledger copy of one signature.
type augmenter struct {
	opts       Options
	envelope   *jws.Envelope
	signedData []byte
	ledger     *etsiu.Ledger
}

func (a *augmenter) add(ctx context.Context, tag etsiu.Tag, value any) error {
	if _, err := a.ledger.Add(tag, value, a.opts.Mode); err != nil {
		return fmt.Errorf("signature %s: %w", a.envelope.ID(), err)
	}
	log.GetLogger(ctx).Debugf("appended %q to signature %s at etsiU index %d", tag, a.envelope.ID(), a.ledger.Len()-1)
	a.opts.Metrics.EntryAppended(string(tag))
	return nil
}

func (a *augmenter) addSignatureTimestamp(ctx context.Context) error {
	message := imprint.Signature(a.envelope, a.signedData)
	token, err := a.opts.timestamp(ctx, imprint.KindSignature, message)
	if err != nil {
		return err
	}
	return a.add(ctx, etsiu.TagSigTst, etsiu.NewTstContainer(token))
}

// addValidationData appends xVals and rVals for the signing chain, the
// authorities of the signature timestamps and the nested counter-signatures.
// Certificates of the x5c header are not repeated.
func (a *augmenter) addValidationData(ctx context.Context) error {
	chain, err := signer.CertificateChain(a.envelope)
	if err != nil {
		return err
	}
	if len(chain) == 0 {
		return errdef.Missing(errdef.RuleMissingCertificate,
			"the signature carries no certificate chain to build level %s from", LevelLT).WithSignature(a.envelope.ID())
	}
	tokens, err := ledgerTokens(a.ledger, etsiu.TagSigTst)
	if err != nil {
		return err
	}
	content, err := contentTokens(a.envelope)
	if err != nil {
		return err
	}
	tsaChains, err := tokenChains(append(content, tokens...))
	if err != nil {
		return err
	}
	nested, err := counterSignatureChains(a.envelope)
	if err != nil {
		return err
	}

	chains := append([][]*x509.Certificate{chain}, tsaChains...)
	chains = append(chains, nested...)
	data, err := collect(ctx, a.opts.Revocation, a.opts.AlertPolicy, chains)
	if err != nil {
		return errorFor(a.envelope, err)
	}
	m := newMaterial()
	m.coverCertificates(chain)
	m.add(data)

	// An empty xVals still records that validation data was gathered.
	if len(m.certs) > 0 || !m.hasRevocation() {
		if err := a.add(ctx, etsiu.TagXVals, m.xVals()); err != nil {
			return err
		}
	}
	if m.hasRevocation() {
		return a.add(ctx, etsiu.TagRVals, m.rVals())
	}
	return nil
}

// addArchiveTimestamp appends a tstVd with the validation data of earlier
// timestamps not yet present in the signature, if any, then an arcTst
// covering every entry before it.
func (a *augmenter) addArchiveTimestamp(ctx context.Context) error {
	tokens, err := ledgerTokens(a.ledger, etsiu.TagSigTst, etsiu.TagArcTst)
	if err != nil {
		return err
	}
	content, err := contentTokens(a.envelope)
	if err != nil {
		return err
	}
	chains, err := tokenChains(append(content, tokens...))
	if err != nil {
		return err
	}
	if len(chains) > 0 {
		data, err := collect(ctx, a.opts.Revocation, a.opts.AlertPolicy, chains)
		if err != nil {
			return errorFor(a.envelope, err)
		}
		x5c, err := signer.CertificateChain(a.envelope)
		if err != nil {
			return err
		}
		m := newMaterial()
		m.coverCertificates(x5c)
		if err := m.coverLedger(a.ledger); err != nil {
			return fmt.Errorf("signature %s: %w", a.envelope.ID(), err)
		}
		m.add(data)
		vd := etsiu.TstVd{XVals: m.xVals()}
		if m.hasRevocation() {
			r := m.rVals()
			vd.RVals = &r
		}
		if !vd.IsEmpty() {
			if err := a.add(ctx, etsiu.TagTstVd, vd); err != nil {
				return err
			}
		}
	}

	message, err := imprint.Archive(a.envelope, a.ledger, a.ledger.Len(), a.signedData)
	if err != nil {
		return err
	}
	token, err := a.opts.timestamp(ctx, imprint.KindArchive, message)
	if err != nil {
		return err
	}
	return a.add(ctx, etsiu.TagArcTst, etsiu.NewTstContainer(token))
}

// errorFor names e in structured errors that carry no signature yet.
func errorFor(e *jws.Envelope, err error) error {
	var derr *errdef.Error
	if errors.As(err, &derr) && derr.SignatureID == "" {
		return derr.WithSignature(e.ID())
	}
	return err
}
