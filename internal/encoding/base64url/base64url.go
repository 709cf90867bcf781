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

// Package base64url implements the strict unpadded base64url alphabet of
// RFC 4648 section 5 as used by JWS, and the literal checks applied to
// unencoded payloads (RFC 7797).
package base64url

import (
	"encoding/base64"
	"unicode/utf8"
)

var encoding = base64.RawURLEncoding.Strict()

// Encode returns the unpadded base64url form of data.
func Encode(data []byte) string {
	return encoding.EncodeToString(data)
}

// Decode decodes s, rejecting padding, characters outside the url-safe
// alphabet and non-zero trailing bits.
func Decode(s string) ([]byte, error) {
	return encoding.DecodeString(s)
}

// IsSafeLiteral reports whether every byte of b is in %x20-2D or %x2F-7E,
// the only characters a compact serialization with b64=false can carry.
func IsSafeLiteral(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c == '.' || c > 0x7e {
			return false
		}
	}
	return true
}

// IsUTF8 reports whether b is valid UTF-8, the requirement for unencoded
// payloads in JSON serializations.
func IsUTF8(b []byte) bool {
	return utf8.Valid(b)
}
