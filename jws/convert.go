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

package jws

import (
	"fmt"

	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/etsiu"
)

// ConvertOptions controls Document.Convert.
type ConvertOptions struct {
	// Mode re-incorporates the etsiU entries of every signature in the given
	// mode. ModeUnset keeps the current mode.
	Mode etsiu.Mode
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	out := &Document{Serialization: d.Serialization}
	if d.members != nil {
		out.members = d.members.Clone()
	}
	for _, e := range d.Signatures {
		out.Signatures = append(out.Signatures, e.Clone())
	}
	return out
}

// Convert returns a copy of d in serialization to. The incorporation mode of
// the etsiU ledgers is preserved unless opts.Mode asks for another one.
func (d *Document) Convert(to Serialization, opts ConvertOptions) (*Document, error) {
	if len(d.Signatures) == 0 {
		return nil, errdef.Missing(errdef.RuleNoSignature, "no signature to convert")
	}
	switch to {
	case Compact:
		if len(d.Signatures) > 1 {
			return nil, errdef.Unsupported(errdef.RuleCompactParallel,
				"cannot convert %d parallel signatures to the compact serialization", len(d.Signatures)).
				WithSerialization(to.String())
		}
		if d.Signatures[0].HasUnprotectedHeader() {
			return nil, errdef.Unsupported(errdef.RuleCompactUnsignedData,
				"cannot convert a signature with unsigned properties to the compact serialization").
				WithSignature(d.Signatures[0].ID()).WithSerialization(to.String())
		}
	case Flattened:
		if len(d.Signatures) > 1 {
			return nil, errdef.Unsupported(errdef.RuleFlattenedSignatures,
				"cannot convert %d parallel signatures to the flattened serialization", len(d.Signatures)).
				WithSerialization(to.String())
		}
	case General:
	default:
		return nil, fmt.Errorf("unknown JWS serialization %d", int(to))
	}

	out := &Document{Serialization: to}
	if to == d.Serialization {
		out.members = d.members
	}
	for _, e := range d.Signatures {
		if !e.detached && !e.B64() {
			if err := CheckUnencodedPayload(e.payload, to); err != nil {
				return nil, err
			}
		}
		converted, err := recode(e, opts.Mode)
		if err != nil {
			return nil, err
		}
		out.Signatures = append(out.Signatures, converted)
	}
	return out, nil
}

// recode re-incorporates the ledger of e in mode. Archive timestamps cover
// the wire form of earlier entries, so a ledger holding one is refused.
func recode(e *Envelope, mode etsiu.Mode) (*Envelope, error) {
	if mode == etsiu.ModeUnset {
		return e.Clone(), nil
	}
	l, err := e.Ledger()
	if err != nil {
		return nil, err
	}
	if l.Len() == 0 || l.Mode() == mode {
		return e.Clone(), nil
	}
	if l.Contains(etsiu.TagArcTst) {
		return nil, errdef.Unsupported(errdef.RuleModeChange,
			"cannot change the incorporation mode from %s to %s: an archive timestamp covers the current entries", l.Mode(), mode).
			WithSignature(e.ID())
	}
	recoded, err := l.Recode(mode)
	if err != nil {
		return nil, err
	}
	return e.WithLedger(recoded)
}
