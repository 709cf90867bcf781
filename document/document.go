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

// Package document provides the documents a signature covers: in-memory
// bytes, files, HTTP header pseudo-documents and digest-only references.
package document

import (
	"crypto"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/notaryproject/jades-go/errdef"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Document is content covered by a signature.
type Document interface {
	// Name identifies the document in a sigD header. It may be empty for
	// enveloped content.
	Name() string

	// MediaType is the content type, or empty when unknown.
	MediaType() string

	// Content returns the raw bytes. Digest-only documents return false.
	Content() ([]byte, bool)

	// Digest returns the digest of the content under h.
	Digest(h crypto.Hash) ([]byte, error)
}

// Algorithm maps a hash function to its go-digest algorithm.
func Algorithm(h crypto.Hash) (digest.Algorithm, error) {
	switch h {
	case crypto.SHA256:
		return digest.SHA256, nil
	case crypto.SHA384:
		return digest.SHA384, nil
	case crypto.SHA512:
		return digest.SHA512, nil
	}
	return "", fmt.Errorf("unsupported digest algorithm %v", h)
}

// Hash maps a go-digest algorithm to its hash function.
func Hash(alg digest.Algorithm) (crypto.Hash, error) {
	switch alg {
	case digest.SHA256:
		return crypto.SHA256, nil
	case digest.SHA384:
		return crypto.SHA384, nil
	case digest.SHA512:
		return crypto.SHA512, nil
	}
	return 0, fmt.Errorf("unsupported digest algorithm %q", alg)
}

func digestBytes(h crypto.Hash, content []byte) ([]byte, error) {
	alg, err := Algorithm(h)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(alg.FromBytes(content).Encoded())
}

// InMemory is a document held in memory.
type InMemory struct {
	name      string
	mediaType string
	content   []byte
}

// New returns an in-memory document.
func New(content []byte, name, mediaType string) *InMemory {
	return &InMemory{
		name:      name,
		mediaType: mediaType,
		content:   append([]byte{}, content...),
	}
}

// ReadFile reads a file into an in-memory document named after the file's
// base name.
func ReadFile(path, mediaType string) (*InMemory, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return &InMemory{
		name:      filepath.Base(path),
		mediaType: mediaType,
		content:   content,
	}, nil
}

// Name implements Document.
func (d *InMemory) Name() string { return d.name }

// MediaType implements Document.
func (d *InMemory) MediaType() string { return d.mediaType }

// Content implements Document.
func (d *InMemory) Content() ([]byte, bool) {
	return append([]byte{}, d.content...), true
}

// Digest implements Document.
func (d *InMemory) Digest(h crypto.Hash) ([]byte, error) {
	return digestBytes(h, d.content)
}

// DigestOnly is a document known only by its digest. Its content can be
// compared by digest but never re-read.
type DigestOnly struct {
	name      string
	mediaType string
	digests   map[digest.Algorithm]digest.Digest
}

// NewDigestOnly returns a digest-only document from one or more digests.
func NewDigestOnly(name, mediaType string, digests ...digest.Digest) (*DigestOnly, error) {
	d := &DigestOnly{
		name:      name,
		mediaType: mediaType,
		digests:   make(map[digest.Algorithm]digest.Digest),
	}
	for _, dgst := range digests {
		if err := dgst.Validate(); err != nil {
			return nil, errdef.Malformed(errdef.RuleDocument, "invalid digest for document %q", name).Wrap(err)
		}
		d.digests[dgst.Algorithm()] = dgst
	}
	if len(d.digests) == 0 {
		return nil, errdef.Malformed(errdef.RuleDocument, "digest-only document %q needs a digest", name)
	}
	return d, nil
}

// FromDescriptor returns a digest-only document for an OCI descriptor. The
// document name is the descriptor's title annotation.
func FromDescriptor(desc ocispec.Descriptor) (*DigestOnly, error) {
	return NewDigestOnly(desc.Annotations[ocispec.AnnotationTitle], desc.MediaType, desc.Digest)
}

// Name implements Document.
func (d *DigestOnly) Name() string { return d.name }

// MediaType implements Document.
func (d *DigestOnly) MediaType() string { return d.mediaType }

// Content implements Document. Digest-only documents have no content.
func (d *DigestOnly) Content() ([]byte, bool) { return nil, false }

// Digest implements Document. Only the algorithms the document was created
// with are available.
func (d *DigestOnly) Digest(h crypto.Hash) ([]byte, error) {
	alg, err := Algorithm(h)
	if err != nil {
		return nil, err
	}
	dgst, ok := d.digests[alg]
	if !ok {
		return nil, errdef.Missing(errdef.RuleMissingDocuments,
			"digest-only document %q has no %s digest", d.name, alg)
	}
	return hex.DecodeString(dgst.Encoded())
}

// HTTPHeader is an HTTP header pseudo-document signed with the HttpHeaders
// detachment mechanism.
type HTTPHeader struct {
	name  string
	value string
}

// NewHTTPHeader returns an HTTP header document.
func NewHTTPHeader(name, value string) *HTTPHeader {
	return &HTTPHeader{name: name, value: value}
}

// Name implements Document.
func (d *HTTPHeader) Name() string { return d.name }

// Value returns the header value.
func (d *HTTPHeader) Value() string { return d.value }

// MediaType implements Document.
func (d *HTTPHeader) MediaType() string { return "" }

// Content implements Document.
func (d *HTTPHeader) Content() ([]byte, bool) { return []byte(d.value), true }

// Digest implements Document.
func (d *HTTPHeader) Digest(h crypto.Hash) ([]byte, error) {
	return digestBytes(h, []byte(d.value))
}

// Describe returns an OCI descriptor of doc using the SHA-256 digest. The
// size is unknown (zero) for digest-only documents.
func Describe(doc Document) (ocispec.Descriptor, error) {
	sum, err := doc.Digest(crypto.SHA256)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	desc := ocispec.Descriptor{
		MediaType: doc.MediaType(),
		Digest:    digest.NewDigestFromEncoded(digest.SHA256, hex.EncodeToString(sum)),
	}
	if content, ok := doc.Content(); ok {
		desc.Size = int64(len(content))
	}
	if name := doc.Name(); name != "" {
		desc.Annotations = map[string]string{ocispec.AnnotationTitle: name}
	}
	return desc, nil
}
