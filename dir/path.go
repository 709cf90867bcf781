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

// Package dir implements the user level directory structure of jades-go.
//
// The profile lives in the user config directory:
//
//	{USER_CONFIG}/jades/jades.yaml
//
// Fetched CRLs are cached in the user cache directory:
//
//	{USER_CACHE}/jades/crl/
package dir

import (
	"os"
	"path/filepath"
)

var (
	// UserConfigDir is user level config directory.
	UserConfigDir string

	// UserCacheDir is user level cache directory.
	UserCacheDir string
)

// for mocking
var (
	userConfigDir = os.UserConfigDir
	userCacheDir  = os.UserCacheDir
)

const jades = "jades"

const (
	// PathProfile is the profile file name.
	PathProfile = "jades.yaml"

	// PathCRLFileCache is the CRL file cache directory name.
	PathCRLFileCache = "crl"
)

// loadUserPath resolves the user level directories. An unresolvable base
// directory leaves a relative "jades" directory.
func loadUserPath() {
	UserConfigDir = userDirPath(userConfigDir)
	UserCacheDir = userDirPath(userCacheDir)
}

func userDirPath(base func() (string, error)) string {
	dir, err := base()
	if err != nil {
		return jades
	}
	return filepath.Join(dir, jades)
}

// UserConfigDirPath returns the user level config directory path.
func UserConfigDirPath() string {
	if UserConfigDir == "" {
		loadUserPath()
	}
	return UserConfigDir
}

// UserCacheDirPath returns the user level cache directory path.
func UserCacheDirPath() string {
	if UserCacheDir == "" {
		loadUserPath()
	}
	return UserCacheDir
}
