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

package io

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLimitWriter(t *testing.T) {
	var buf bytes.Buffer
	lw := LimitWriter(&buf, 10)
	for _, s := range []string{"hello", " worl"} {
		if _, err := lw.Write([]byte(s)); err != nil {
			t.Fatalf("Write(%q) error = %v", s, err)
		}
	}
	if _, err := lw.Write([]byte("d")); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	if buf.String() != "hello worl" {
		t.Fatalf("buffer = %q", buf.String())
	}
}

func TestReadAll(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		limit   int64
		wantErr bool
	}{
		{name: "empty", input: "", limit: 1},
		{name: "exact", input: "0123456789", limit: 10},
		{name: "over", input: "0123456789a", limit: 10, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadAll(strings.NewReader(tt.input), tt.limit)
			if tt.wantErr {
				if !errors.Is(err, ErrLimitExceeded) {
					t.Fatalf("ReadAll() error = %v, want ErrLimitExceeded", err)
				}
				return
			}
			if err != nil || string(got) != tt.input {
				t.Fatalf("ReadAll() = %q, %v", got, err)
			}
		})
	}
}
