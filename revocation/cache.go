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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/notaryproject/jades-go/log"
	corecrl "github.com/notaryproject/notation-core-go/revocation/crl"
	"github.com/opencontainers/go-digest"
)

// tmpFileName is the pattern of temporary cache files.
const tmpFileName = "jades-crl-*"

// FileCache implements corecrl.Cache on the file system.
//
// Each CRL bundle is stored as raw DER, so that the exact bytes fetched from
// the distribution point can be embedded in a signature later. Files are
// written to a temporary name and renamed, which is atomic on UNIX-like
// platforms.
type FileCache struct {
	root string
}

// cacheEntry is the file content of a cached bundle.
type cacheEntry struct {
	URL   string    `json:"url"`
	Base  []byte    `json:"base"`
	Delta []byte    `json:"delta,omitempty"`
	Saved time.Time `json:"saved"`
}

// NewFileCache creates a FileCache rooted at root.
func NewFileCache(root string) (*FileCache, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("failed to create crl file cache: %w", err)
	}
	return &FileCache{root: root}, nil
}

// Get returns the bundle cached for url. A missing or expired bundle is
// corecrl.ErrCacheMiss.
func (c *FileCache) Get(ctx context.Context, url string) (*corecrl.Bundle, error) {
	logger := log.GetLogger(ctx)
	data, err := os.ReadFile(c.path(url))
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debugf("CRL file cache miss for %q", url)
			return nil, corecrl.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read CRL cache entry %q: %w", url, err)
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode CRL cache entry %q: %w", url, err)
	}
	if entry.URL != url {
		return nil, corecrl.ErrCacheMiss
	}

	bundle := &corecrl.Bundle{}
	if bundle.BaseCRL, err = x509.ParseRevocationList(entry.Base); err != nil {
		return nil, fmt.Errorf("failed to parse cached CRL %q: %w", url, err)
	}
	if len(entry.Delta) > 0 {
		if bundle.DeltaCRL, err = x509.ParseRevocationList(entry.Delta); err != nil {
			return nil, fmt.Errorf("failed to parse cached delta CRL %q: %w", url, err)
		}
	}

	now := time.Now()
	for _, rl := range []*x509.RevocationList{bundle.BaseCRL, bundle.DeltaCRL} {
		if rl == nil {
			continue
		}
		if rl.NextUpdate.IsZero() {
			return nil, fmt.Errorf("cached CRL %q has no NextUpdate", url)
		}
		if now.After(rl.NextUpdate) {
			logger.Infof("cached CRL %q expired at %s", url, rl.NextUpdate)
			return nil, corecrl.ErrCacheMiss
		}
	}
	return bundle, nil
}

// Set stores bundle under url.
func (c *FileCache) Set(ctx context.Context, url string, bundle *corecrl.Bundle) error {
	if bundle == nil || bundle.BaseCRL == nil {
		return errors.New("failed to store CRL bundle in file cache: bundle has no base CRL")
	}
	entry := cacheEntry{URL: url, Base: bundle.BaseCRL.Raw, Saved: time.Now().UTC()}
	if bundle.DeltaCRL != nil {
		entry.Delta = bundle.DeltaCRL.Raw
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to store CRL bundle in file cache: %w", err)
	}
	tmpFile, err := os.CreateTemp(c.root, tmpFileName)
	if err != nil {
		return fmt.Errorf("failed to store CRL bundle in file cache: %w", err)
	}
	defer os.Remove(tmpFile.Name())
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to store CRL bundle in file cache: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to store CRL bundle in file cache: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), c.path(url)); err != nil {
		return fmt.Errorf("failed to store CRL bundle in file cache: %w", err)
	}
	log.GetLogger(ctx).Debugf("cached CRL %q", url)
	return nil
}

// path returns the file of url within c.
func (c *FileCache) path(url string) string {
	return filepath.Join(c.root, digest.FromString(url).Encoded())
}
