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

// Package io bounds the size of remote responses.
package io

import (
	"bytes"
	"errors"
	"io"
)

// ErrLimitExceeded is returned when more than the allowed bytes are written.
var ErrLimitExceeded = errors.New("size limit exceeded")

// LimitedWriter writes to W at most N bytes in total.
type LimitedWriter struct {
	W io.Writer
	N int64
}

// LimitWriter returns a writer accepting at most limit bytes.
func LimitWriter(w io.Writer, limit int64) *LimitedWriter {
	return &LimitedWriter{W: w, N: limit}
}

// Write writes p, or fails with ErrLimitExceeded without writing anything
// when p does not fit in the remaining budget.
func (l *LimitedWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > l.N {
		return 0, ErrLimitExceeded
	}
	n, err := l.W.Write(p)
	l.N -= int64(n)
	return n, err
}

// ReadAll reads r until EOF. It fails with ErrLimitExceeded when r holds
// more than limit bytes.
func ReadAll(r io.Reader, limit int64) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(LimitWriter(&buf, limit), r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
