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

package dir

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// SysFS is a file system rooted at a system directory that can also name
// the system path of its files.
type SysFS interface {
	fs.FS

	// SysPath joins items below the root. Items escaping the root are
	// refused.
	SysPath(items ...string) (string, error)
}

type rootedFS struct {
	fs.FS
	root string
}

func (r rootedFS) SysPath(items ...string) (string, error) {
	if len(items) == 0 {
		return r.root, nil
	}
	name := path.Join(items...)
	if !fs.ValidPath(name) {
		return "", fmt.Errorf("%q is not a path below %q", name, r.root)
	}
	return filepath.Join(r.root, filepath.FromSlash(name)), nil
}

// NewSysFS returns the SysFS rooted at root.
func NewSysFS(root string) SysFS {
	return rootedFS{FS: os.DirFS(root), root: root}
}

// ConfigFS is rooted at the user config directory.
func ConfigFS() SysFS {
	return NewSysFS(UserConfigDirPath())
}

// CRLFileCacheFS is rooted at the CRL file cache directory.
func CRLFileCacheFS() SysFS {
	return NewSysFS(filepath.Join(UserCacheDirPath(), PathCRLFileCache))
}
