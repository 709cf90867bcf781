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

// Package jades signs, augments and counter-signs JAdES signatures given as
// serialized bytes.
//
// The functions of this package parse their input, delegate to the signer,
// extension, countersign and policy packages, and serialize the result.
// Service binds them to a config.Profile.
package jades

import (
	"context"
	"fmt"

	"github.com/notaryproject/jades-go/config"
	"github.com/notaryproject/jades-go/countersign"
	"github.com/notaryproject/jades-go/document"
	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/etsiu"
	"github.com/notaryproject/jades-go/extension"
	"github.com/notaryproject/jades-go/jws"
	"github.com/notaryproject/jades-go/log"
	"github.com/notaryproject/jades-go/metrics"
	"github.com/notaryproject/jades-go/policy"
	"github.com/notaryproject/jades-go/signer"
)

// Sign creates a B-level signature over docs.
func Sign(ctx context.Context, docs []document.Document, params signer.Parameters) ([]byte, error) {
	d, err := signer.Sign(ctx, docs, params)
	if err != nil {
		return nil, err
	}
	return d.Generate()
}

// SignParallel adds a B-level signature over docs to sig. The result uses
// the general JSON serialization.
func SignParallel(ctx context.Context, sig []byte, docs []document.Document, params signer.Parameters) ([]byte, error) {
	d, err := jws.Parse(sig)
	if err != nil {
		return nil, err
	}
	if d, err = signer.SignParallel(ctx, d, docs, params); err != nil {
		return nil, err
	}
	return d.Generate()
}

// Extend augments every signature of sig to opts.Level.
func Extend(ctx context.Context, sig []byte, opts extension.Options) ([]byte, error) {
	d, err := jws.Parse(sig)
	if err != nil {
		return nil, err
	}
	if d, err = extension.Extend(ctx, d, opts); err != nil {
		return nil, err
	}
	return d.Generate()
}

// CounterSign counter-signs the signature params.TargetID of sig. A compact
// input is converted to the flattened serialization first, since only a
// JSON serialization can carry the cSig entry.
func CounterSign(ctx context.Context, sig []byte, params countersign.Parameters) ([]byte, error) {
	d, err := jws.Parse(sig)
	if err != nil {
		return nil, err
	}
	if d.Serialization == jws.Compact {
		log.GetLogger(ctx).Debug("converting the compact signature to the flattened serialization")
		if d, err = d.Convert(jws.Flattened, jws.ConvertOptions{}); err != nil {
			return nil, err
		}
	}
	if d, _, err = countersign.CounterSign(ctx, d, params); err != nil {
		return nil, err
	}
	return d.Generate()
}

// ExtendCounterSignature augments the counter-signature id of sig.
func ExtendCounterSignature(ctx context.Context, sig []byte, id string, opts extension.Options) ([]byte, error) {
	d, err := jws.Parse(sig)
	if err != nil {
		return nil, err
	}
	if d, err = countersign.Extend(ctx, d, id, opts); err != nil {
		return nil, err
	}
	return d.Generate()
}

// AddPolicyStore attaches a signature policy store to the signature id of
// sig.
func AddPolicyStore(ctx context.Context, sig []byte, id string, store policy.Store, mode etsiu.Mode) ([]byte, error) {
	d, err := jws.Parse(sig)
	if err != nil {
		return nil, err
	}
	if d.Serialization == jws.Compact {
		return nil, errdef.Unsupported(errdef.RuleCompactUnsignedData,
			"a compact signature cannot hold a signature policy store").WithSerialization(d.Serialization.String())
	}
	for i, e := range d.Signatures {
		if e.ID() != id {
			continue
		}
		updated, err := policy.AddStore(ctx, e, store, mode)
		if err != nil {
			return nil, err
		}
		d.Signatures[i] = updated
		return d.Generate()
	}
	return nil, errdef.Missing(errdef.RuleSignatureNotFound, "no signature with id %q", id).WithSignature(id)
}

// Convert re-serializes sig. A mode other than etsiu.ModeUnset
// re-incorporates the etsiU entries.
func Convert(sig []byte, to jws.Serialization, mode etsiu.Mode) ([]byte, error) {
	d, err := jws.Parse(sig)
	if err != nil {
		return nil, err
	}
	if d, err = d.Convert(to, jws.ConvertOptions{Mode: mode}); err != nil {
		return nil, err
	}
	return d.Generate()
}

// SignatureLevel is the baseline level of one signature.
type SignatureLevel struct {
	ID    string
	Level extension.Level
}

// Levels reports the level of every top-level signature of sig, in order.
func Levels(sig []byte) ([]SignatureLevel, error) {
	d, err := jws.Parse(sig)
	if err != nil {
		return nil, err
	}
	levels := make([]SignatureLevel, 0, len(d.Signatures))
	for _, e := range d.Signatures {
		level, err := extension.LevelOf(e)
		if err != nil {
			return nil, err
		}
		levels = append(levels, SignatureLevel{ID: e.ID(), Level: level})
	}
	return levels, nil
}

// Service runs the operations of this package with the collaborators of a
// profile.
type Service struct {
	params  signer.Parameters
	opts    extension.Options
	mode    etsiu.Mode
	metrics *metrics.Collector
}

// NewService builds the signer, timestamp authorities and revocation source
// of p. m may be nil.
func NewService(p *config.Profile, m *metrics.Collector) (*Service, error) {
	params, err := p.SigningParameters()
	if err != nil {
		return nil, err
	}
	opts, err := p.ExtensionOptions()
	if err != nil {
		return nil, err
	}
	opts.Metrics = m
	return &Service{params: params, opts: opts, mode: opts.Mode, metrics: m}, nil
}

// Level returns the target level of s.
func (s *Service) Level() extension.Level {
	return s.opts.Level
}

// Sign signs docs and extends the signature to the profile level.
func (s *Service) Sign(ctx context.Context, docs []document.Document) ([]byte, error) {
	if s.params.Signer == nil {
		return nil, errdef.Missing(errdef.RuleMissingCertificate, "the profile has no signer")
	}
	d, err := signer.Sign(ctx, docs, s.params)
	if err != nil {
		return nil, err
	}
	if s.opts.Level > extension.LevelB {
		opts := s.opts
		if s.params.Packaging == signer.Detached {
			opts.Documents = docs
		}
		if d, err = extension.Extend(ctx, d, opts); err != nil {
			return nil, fmt.Errorf("failed to extend the new signature: %w", err)
		}
	}
	return d.Generate()
}

// Extend extends sig to the profile level. docs are the detached documents.
func (s *Service) Extend(ctx context.Context, sig []byte, docs []document.Document) ([]byte, error) {
	opts := s.opts
	opts.Documents = docs
	return Extend(ctx, sig, opts)
}

// CounterSign counter-signs the signature id of sig with the profile signer.
func (s *Service) CounterSign(ctx context.Context, sig []byte, id string) ([]byte, error) {
	if s.params.Signer == nil {
		return nil, errdef.Missing(errdef.RuleMissingCertificate, "the profile has no signer")
	}
	params := s.params
	// A counter-signature is never general JSON.
	if params.Serialization == jws.General {
		params.Serialization = jws.Flattened
	}
	return CounterSign(ctx, sig, countersign.Parameters{
		Parameters: params,
		TargetID:   id,
		Mode:       s.mode,
		Metrics:    s.metrics,
	})
}
