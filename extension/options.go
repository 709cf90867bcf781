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
	"time"

	"github.com/notaryproject/jades-go/document"
	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/etsiu"
	"github.com/notaryproject/jades-go/imprint"
	"github.com/notaryproject/jades-go/internal/pkix"
	"github.com/notaryproject/jades-go/jws"
	"github.com/notaryproject/jades-go/metrics"
	"github.com/notaryproject/jades-go/revocation"
	"github.com/notaryproject/jades-go/tsa"
)

// Options configures an extension. It is passed by value; the zero value
// of every optional field has a usable default.
type Options struct {
	// Level is the requested level. It is required.
	Level Level

	// Timestamper mints signature timestamps, and archive timestamps unless
	// ArchiveTimestamper is set. Required for LevelT and above.
	Timestamper tsa.Timestamper

	// ArchiveTimestamper mints archive timestamps.
	ArchiveTimestamper tsa.Timestamper

	// Revocation collects chains and revocation data for LevelLT and
	// above. When nil only the certificates already known are embedded
	// and every non self-issued certificate counts as missing revocation
	// data.
	Revocation revocation.Source

	// AlertPolicy handles missing revocation data. Defaults to
	// revocation.AlertFail.
	AlertPolicy revocation.AlertPolicy

	// DigestAlgorithm hashes timestamp imprints. Defaults to SHA-256.
	DigestAlgorithm crypto.Hash

	// Mode is the incorporation mode of a signature without etsiU entries.
	// An existing ledger keeps its mode. Defaults to etsiU.ModeBase64URL.
	Mode etsiu.Mode

	// Serialization of the result. Defaults to the input serialization.
	Serialization jws.Serialization

	// Documents are the detached documents.
	Documents []document.Document

	// Metrics is optional.
	Metrics *metrics.Collector

	// Concurrency bounds the parallel signatures extended at once. Zero
	// means no limit.
	Concurrency int
}

// DetachedContents implements imprint.HasDetachedContent.
func (o Options) DetachedContents() []document.Document {
	return o.Documents
}

func (o Options) withDefaults() Options {
	if o.DigestAlgorithm == 0 {
		o.DigestAlgorithm = crypto.SHA256
	}
	if o.ArchiveTimestamper == nil {
		o.ArchiveTimestamper = o.Timestamper
	}
	if o.Revocation == nil {
		o.Revocation = knownCertificates{}
	}
	return o
}

// timestamp obtains a token of kind over message and checks its imprint.
func (o Options) timestamp(ctx context.Context, kind imprint.Kind, message []byte) ([]byte, error) {
	ts := o.Timestamper
	if kind == imprint.KindArchive {
		ts = o.ArchiveTimestamper
	}
	if ts == nil {
		return nil, errdef.Missing(errdef.RuleMissingTimestamper, "a timestamper is required to create %s", kind)
	}
	start := time.Now()
	der, err := ts.Timestamp(ctx, message, o.DigestAlgorithm)
	o.Metrics.Timestamp(kind.String(), start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain %s: %w", kind, err)
	}
	token, err := tsa.ParseToken(der)
	if err != nil {
		return nil, err
	}
	if !token.Matches(message) {
		return nil, errdef.Malformed(errdef.RuleTimestampToken, "the %s token does not cover the requested imprint", kind)
	}
	return der, nil
}

// knownCertificates is the revocation source used when none is configured.
type knownCertificates struct{}

func (knownCertificates) Collect(ctx context.Context, chain []*x509.Certificate) (*revocation.Data, error) {
	d := &revocation.Data{Certificates: chain}
	for _, cert := range chain {
		if !pkix.IsSelfIssued(cert) {
			d.Missing = append(d.Missing, cert)
		}
	}
	return d, nil
}
