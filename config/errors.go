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

package config

import (
	"errors"
	"fmt"
)

// ErrNotRegularFile is returned for profile paths that are directories or
// symbolic links.
var ErrNotRegularFile = errors.New("not a regular file (symlinks are not supported)")

// ConfigError is a profile value that cannot be used.
type ConfigError struct {
	// Field is the YAML path of the value, e.g. "timestamp.url".
	Field   string
	Message string
	Err     error
}

// Error returns the error message.
func (e *ConfigError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Field != "" {
		return fmt.Sprintf("config error in %q: %s", e.Field, msg)
	}
	return "config error: " + msg
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

func fieldError(field string, err error, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Message: fmt.Sprintf(format, args...), Err: err}
}
