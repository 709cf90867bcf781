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

// Package errdef defines the closed set of error kinds returned by the
// signature augmentation packages.
//
// Every fatal condition is reported as an *Error carrying the kind, the rule
// that was violated and the identifiers needed to locate it. The message is
// formatted only when Error() is called.
package errdef

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error.
type Kind int

const (
	// KindMalformedInput reports input violating a wire or encoding rule.
	KindMalformedInput Kind = iota + 1

	// KindUnsupportedOperation reports an operation that is refused before
	// any mutation happens.
	KindUnsupportedOperation

	// KindMissingPrerequisite reports data the operation needs but could
	// not find.
	KindMissingPrerequisite
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindMalformedInput:
		return "malformed input"
	case KindUnsupportedOperation:
		return "unsupported operation"
	case KindMissingPrerequisite:
		return "missing prerequisite"
	}
	return fmt.Sprintf("unknown error kind %d", int(k))
}

// Rule names the violated rule.
type Rule string

// Malformed input rules.
const (
	RuleBase64URL            Rule = "base64url"
	RuleJSON                 Rule = "json"
	RuleDuplicateHeader      Rule = "duplicate-header"
	RuleCompactSerialization Rule = "compact-serialization"
	RuleFlattenedSignatures  Rule = "flattened-signatures"
	RuleGeneralSignatures    Rule = "general-signatures"
	RuleMultiKeyEntry        Rule = "multi-key-entry"
	RuleUnknownComponent     Rule = "unknown-component"
	RuleMixedMode            Rule = "mixed-incorporation-mode"
	RuleB64Mismatch          Rule = "b64-mismatch"
	RuleUnsafePayload        Rule = "unsafe-payload"
	RuleInvalidUTF8Payload   Rule = "invalid-utf8-payload"
	RuleHeader               Rule = "header"
	RuleSigD                 Rule = "sigd"
	RuleDocument             Rule = "document"
	RuleTimestampToken       Rule = "timestamp-token"
	RuleCounterSignedValue   Rule = "counter-signed-value"
	RulePolicyDigest         Rule = "policy-digest"
	RuleAmbiguousSignature   Rule = "ambiguous-signature-id"
)

// Unsupported operation rules.
const (
	RuleCompactParallel      Rule = "compact-parallel"
	RuleCompactUnsignedData  Rule = "compact-unsigned-data"
	RuleTimestampedByMaster  Rule = "timestamped-by-master"
	RuleCoveredByArchive     Rule = "covered-by-archive-timestamp"
	RuleCounterSignPackaging Rule = "counter-signature-packaging"
	RuleModeChange           Rule = "incorporation-mode-change"
	RuleAlgorithm            Rule = "algorithm"
	RuleLevel                Rule = "level"
)

// Missing prerequisite rules.
const (
	RuleNoSignature        Rule = "no-signature"
	RuleSignatureNotFound  Rule = "signature-not-found"
	RuleMissingDocuments   Rule = "missing-documents"
	RuleMissingCertificate Rule = "missing-certificates"
	RuleMissingRevocation  Rule = "missing-revocation"
	RuleMissingPolicy      Rule = "missing-policy"
	RuleMissingTimestamper Rule = "missing-timestamper"
)

// Error is the structured error returned by the augmentation packages.
type Error struct {
	// Kind is the error classification.
	Kind Kind

	// Rule names the violated rule.
	Rule Rule

	// SignatureID identifies the offending signature, if any.
	SignatureID string

	// Mechanism names the offending detachment mechanism, if any.
	Mechanism string

	// Serialization names the offending serialization, if any.
	Serialization string

	// Detail is a human readable description.
	Detail string

	// Err is the underlying error.
	Err error
}

// Error formats the message from the structured fields.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Rule != "" {
		b.WriteString(" [")
		b.WriteString(string(e.Rule))
		b.WriteString("]")
	}
	if e.SignatureID != "" {
		fmt.Fprintf(&b, " signature %q", e.SignatureID)
	}
	if e.Mechanism != "" {
		fmt.Fprintf(&b, " mechanism %s", e.Mechanism)
	}
	if e.Serialization != "" {
		fmt.Fprintf(&b, " serialization %s", e.Serialization)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same kind. When the target
// also names a rule, the rules must match too.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != 0 && t.Kind != e.Kind {
		return false
	}
	return t.Rule == "" || t.Rule == e.Rule
}

// Malformed returns a KindMalformedInput error.
func Malformed(rule Rule, format string, args ...any) *Error {
	return &Error{Kind: KindMalformedInput, Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

// Unsupported returns a KindUnsupportedOperation error.
func Unsupported(rule Rule, format string, args ...any) *Error {
	return &Error{Kind: KindUnsupportedOperation, Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

// Missing returns a KindMissingPrerequisite error.
func Missing(rule Rule, format string, args ...any) *Error {
	return &Error{Kind: KindMissingPrerequisite, Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

// WithSignature sets the offending signature identifier.
func (e *Error) WithSignature(id string) *Error {
	e.SignatureID = id
	return e
}

// WithMechanism sets the offending detachment mechanism.
func (e *Error) WithMechanism(m string) *Error {
	e.Mechanism = m
	return e
}

// WithSerialization sets the offending serialization.
func (e *Error) WithSerialization(s string) *Error {
	e.Serialization = s
	return e
}

// Wrap sets the underlying error.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	return errors.Is(err, &Error{Kind: k})
}

// IsRule reports whether err is an *Error violating rule r.
func IsRule(err error, r Rule) bool {
	return errors.Is(err, &Error{Rule: r})
}
