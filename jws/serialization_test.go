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

package jws

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/etsiu"
	"github.com/notaryproject/jades-go/internal/encoding/base64url"
)

// newTestEnvelope builds an envelope with an arbitrary signature value. The
// serialization layer never checks signature values.
func newTestEnvelope(t *testing.T, b64 bool, payload []byte, detached bool, sig string) *Envelope {
	t.Helper()
	h := NewHeader()
	h.Set(HeaderAlg, "ES256")
	if !b64 {
		h.Set(HeaderB64, false)
		h.Set(HeaderCrit, []string{HeaderB64})
	}
	protected, err := EncodeProtected(h)
	if err != nil {
		t.Fatal(err)
	}
	e, err := NewEnvelope(protected, payload, detached, []byte(sig))
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}
	return e
}

func withTestLedger(t *testing.T, e *Envelope, mode etsiu.Mode, tags ...etsiu.Tag) *Envelope {
	t.Helper()
	l, err := e.Ledger()
	if err != nil {
		t.Fatal(err)
	}
	for _, tag := range tags {
		if _, err := l.Add(tag, etsiu.NewTstContainer([]byte(tag)), mode); err != nil {
			t.Fatal(err)
		}
	}
	out, err := e.WithLedger(l)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestRoundTrip(t *testing.T) {
	protected := base64url.Encode([]byte(`{"alg":"ES256"}`))
	unencoded := base64url.Encode([]byte(`{"alg":"ES256","b64":false,"crit":["b64"]}`))
	sig := base64url.Encode([]byte("signature"))
	ledger := `["` + base64url.Encode([]byte(`{"sigTst":{"tstTokens":[{"val":"AQ=="}]}}`)) + `"]`
	tests := []struct {
		name string
		in   string
		want Serialization
	}{
		{"compact", protected + ".cGF5bG9hZA." + sig, Compact},
		{"compact detached", protected + ".." + sig, Compact},
		{"compact unencoded", unencoded + ".hello world." + sig, Compact},
		{"flattened", `{"payload":"cGF5bG9hZA","protected":"` + protected + `","header":{"etsiU":` + ledger + `},"signature":"` + sig + `"}`, Flattened},
		{"flattened detached", `{"protected":"` + protected + `","signature":"` + sig + `"}`, Flattened},
		{"flattened unencoded utf8", `{"payload":"héllo.wörld","protected":"` + unencoded + `","signature":"` + sig + `"}`, Flattened},
		{"flattened clear ledger", `{"payload":"","protected":"` + protected + `","header":{"kid":"k","etsiU":[{"sigTst":{"tstTokens":[]}}]},"signature":"` + sig + `"}`, Flattened},
		{"general", `{"payload":"cGF5bG9hZA","signatures":[{"protected":"` + protected + `","header":{"etsiU":` + ledger + `},"signature":"` + sig + `"},{"protected":"` + protected + `","signature":"c2lnMg"}]}`, General},
		{"flattened member order and unknown members", `{"protected":"` + protected + `","x-note":"kept","payload":"cGF5bG9hZA","header":{},"signature":"` + sig + `"}`, Flattened},
		{"general unknown members", `{"x-top":1,"payload":"cGF5bG9hZA","signatures":[{"protected":"` + protected + `","header":{},"x-unit":[1,2],"signature":"` + sig + `"}]}`, General},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.in))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if doc.Serialization != tt.want {
				t.Fatalf("Serialization = %s, want %s", doc.Serialization, tt.want)
			}
			out, err := doc.Generate()
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if string(out) != tt.in {
				t.Fatalf("Generate() =\n%s\nwant\n%s", out, tt.in)
			}
		})
	}
}

func TestRoundTripModuloWhitespace(t *testing.T) {
	protected := base64url.Encode([]byte(`{"alg":"ES256"}`))
	in := "{\n  \"payload\": \"cGF5bG9hZA\",\n  \"protected\": \"" + protected + "\",\n  \"header\": { \"kid\" : \"k\" },\n  \"signature\": \"c2ln\"\n}\n"
	want := `{"payload":"cGF5bG9hZA","protected":"` + protected + `","header":{"kid":"k"},"signature":"c2ln"}`
	doc, err := Parse([]byte(in))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	out, err := doc.Generate()
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != want {
		t.Fatalf("Generate() = %s, want %s", out, want)
	}
}

func TestUnknownMembersSurviveLedgerGrowth(t *testing.T) {
	protected := base64url.Encode([]byte(`{"alg":"ES256"}`))
	in := `{"x-before":true,"payload":"cGF5bG9hZA","protected":"` + protected + `","signature":"c2ln","x-after":"z"}`
	doc, err := Parse([]byte(in))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	doc.Signatures[0] = withTestLedger(t, doc.Signatures[0], etsiu.ModeClear, etsiu.TagSigTst)
	out, err := doc.Generate()
	if err != nil {
		t.Fatal(err)
	}
	want := `{"x-before":true,"payload":"cGF5bG9hZA","protected":"` + protected + `","header":{"etsiU":[{"sigTst":{"tstTokens":[{"val":"c2lnVHN0"}]}}]},"signature":"c2ln","x-after":"z"}`
	if string(out) != want {
		t.Fatalf("Generate() =\n%s\nwant\n%s", out, want)
	}
}

func TestParseRejects(t *testing.T) {
	protected := base64url.Encode([]byte(`{"alg":"ES256"}`))
	unencoded := base64url.Encode([]byte(`{"alg":"ES256","b64":false,"crit":["b64"]}`))
	tests := []struct {
		name     string
		in       string
		sentinel error
		rule     errdef.Rule
	}{
		{"two segments", protected + ".cGF5", ErrInvalidCompactSerialization, errdef.RuleCompactSerialization},
		{"padded payload", protected + ".cGF5bG9hZA==.c2ln", ErrInvalidCompactSerialization, errdef.RuleBase64URL},
		{"no alg", base64url.Encode([]byte(`{"kid":"x"}`)) + ".cGF5.c2ln", ErrInvalidCompactSerialization, errdef.RuleHeader},
		{"duplicate protected member", base64url.Encode([]byte(`{"alg":"ES256","alg":"none"}`)) + ".cGF5.c2ln", ErrInvalidCompactSerialization, errdef.RuleDuplicateHeader},
		{"compact unsafe literal", unencoded + ".aéb." + "c2ln", ErrInvalidCompactSerialization, errdef.RuleUnsafePayload},
		{"crit not understood", base64url.Encode([]byte(`{"alg":"ES256","exp":1,"crit":["exp"]}`)) + ".cGF5.c2ln", ErrInvalidCompactSerialization, errdef.RuleHeader},
		{"crit names absent header", base64url.Encode([]byte(`{"alg":"ES256","crit":["sigT"]}`)) + ".cGF5.c2ln", ErrInvalidCompactSerialization, errdef.RuleHeader},
		{"crit lists registered header", base64url.Encode([]byte(`{"alg":"ES256","crit":["alg"]}`)) + ".cGF5.c2ln", ErrInvalidCompactSerialization, errdef.RuleHeader},
		{"crit empty", base64url.Encode([]byte(`{"alg":"ES256","crit":[]}`)) + ".cGF5.c2ln", ErrInvalidCompactSerialization, errdef.RuleHeader},
		{"crit not an array", base64url.Encode([]byte(`{"alg":"ES256","crit":"sigT"}`)) + ".cGF5.c2ln", ErrInvalidCompactSerialization, errdef.RuleHeader},
		{"flattened with signatures", `{"protected":"` + protected + `","signature":"c2ln","signatures":[]}`, ErrInvalidJSONSerialization, errdef.RuleGeneralSignatures},
		{"empty signatures", `{"payload":"","signatures":[]}`, ErrInvalidJSONSerialization, errdef.RuleGeneralSignatures},
		{"invalid utf8 payload", "{\"payload\":\"\xff\",\"protected\":\"" + unencoded + "\",\"signature\":\"c2ln\"}", ErrInvalidJSONSerialization, ""},
		{"b64 mismatch", `{"payload":"abc","signatures":[{"protected":"` + protected + `","signature":"c2ln"},{"protected":"` + unencoded + `","signature":"c2ln"}]}`, ErrInvalidJSONSerialization, errdef.RuleB64Mismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.in))
			if err == nil {
				t.Fatal("Parse() expected error")
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("Parse() error = %v, want %v", err, tt.sentinel)
			}
			if tt.rule != "" && !errdef.IsRule(err, tt.rule) {
				t.Errorf("Parse() error = %v, want rule %s", err, tt.rule)
			}
		})
	}
}

func TestUnencodedPayloadMessages(t *testing.T) {
	err := CheckUnencodedPayload([]byte("a.b"), Compact)
	var derr *errdef.Error
	if !errors.As(err, &derr) {
		t.Fatalf("CheckUnencodedPayload() error = %v", err)
	}
	want := "The payload contains not URL-safe characters! With Unencoded Payload ('b64' = false) only ASCII characters in ranges %x20-2D and %x2F-7E are allowed for a COMPACT_SERIALIZATION!"
	if derr.Detail != want {
		t.Errorf("Detail = %q, want %q", derr.Detail, want)
	}
	err = CheckUnencodedPayload([]byte{0xc3, 0x28}, General)
	if !errdef.IsRule(err, errdef.RuleInvalidUTF8Payload) {
		t.Errorf("CheckUnencodedPayload() error = %v, want invalid UTF-8", err)
	}
	if err := CheckUnencodedPayload([]byte("a.b"), Flattened); err != nil {
		t.Errorf("CheckUnencodedPayload() flattened error = %v", err)
	}
}

func TestGenerateCompactRejects(t *testing.T) {
	e := newTestEnvelope(t, true, []byte("payload"), false, "sig")
	if _, err := Generate([]*Envelope{e, e}, Compact); !errdef.IsRule(err, errdef.RuleCompactParallel) {
		t.Errorf("Generate() error = %v, want compact-parallel", err)
	}
	withLedger := withTestLedger(t, e, etsiu.ModeBase64URL, etsiu.TagSigTst)
	if _, err := Generate([]*Envelope{withLedger}, Compact); !errdef.IsRule(err, errdef.RuleCompactUnsignedData) {
		t.Errorf("Generate() error = %v, want compact-unsigned-data", err)
	}
	if _, err := Generate([]*Envelope{e, e}, Flattened); !errdef.IsRule(err, errdef.RuleFlattenedSignatures) {
		t.Errorf("Generate() error = %v, want flattened-signatures", err)
	}
	if _, err := Generate(nil, General); !errdef.IsKind(err, errdef.KindMissingPrerequisite) {
		t.Errorf("Generate() error = %v, want missing prerequisite", err)
	}
}

func TestGenerateGeneralRejectsMixedB64(t *testing.T) {
	a := newTestEnvelope(t, true, []byte("payload"), false, "a")
	b := newTestEnvelope(t, false, []byte("payload"), false, "b")
	if _, err := Generate([]*Envelope{a, b}, General); !errdef.IsRule(err, errdef.RuleB64Mismatch) {
		t.Fatalf("Generate() error = %v, want b64 mismatch", err)
	}
}

func TestConvert(t *testing.T) {
	e := newTestEnvelope(t, true, []byte("payload"), false, "sig")
	doc := &Document{Serialization: Compact, Signatures: []*Envelope{e}}

	for _, to := range []Serialization{Flattened, General, Compact} {
		converted, err := doc.Convert(to, ConvertOptions{})
		if err != nil {
			t.Fatalf("Convert(%s) error = %v", to, err)
		}
		out, err := converted.Generate()
		if err != nil {
			t.Fatal(err)
		}
		parsed, err := Parse(out)
		if err != nil {
			t.Fatalf("Parse(%s) error = %v", to, err)
		}
		if parsed.Serialization != to {
			t.Fatalf("Serialization = %s, want %s", parsed.Serialization, to)
		}
		got := parsed.Signatures[0]
		if !bytes.Equal(got.Payload(), e.Payload()) || got.Protected() != e.Protected() || !bytes.Equal(got.Signature(), e.Signature()) {
			t.Fatalf("Convert(%s) lost signed content", to)
		}
		if got.ID() != e.ID() {
			t.Fatalf("signature id changed across conversion")
		}
	}
}

func TestConvertPreservesMode(t *testing.T) {
	e := withTestLedger(t, newTestEnvelope(t, true, []byte("p"), false, "sig"), etsiu.ModeClear, etsiu.TagSigTst)
	doc := &Document{Serialization: Flattened, Signatures: []*Envelope{e}}

	general, err := doc.Convert(General, ConvertOptions{})
	if err != nil {
		t.Fatal(err)
	}
	l, err := general.Signatures[0].Ledger()
	if err != nil {
		t.Fatal(err)
	}
	if l.Mode() != etsiu.ModeClear {
		t.Fatalf("Mode() = %s, want clear", l.Mode())
	}

	recoded, err := doc.Convert(General, ConvertOptions{Mode: etsiu.ModeBase64URL})
	if err != nil {
		t.Fatal(err)
	}
	l, err = recoded.Signatures[0].Ledger()
	if err != nil {
		t.Fatal(err)
	}
	if l.Mode() != etsiu.ModeBase64URL {
		t.Fatalf("Mode() = %s, want base64url", l.Mode())
	}
	if _, err := doc.Convert(Compact, ConvertOptions{}); !errdef.IsRule(err, errdef.RuleCompactUnsignedData) {
		t.Fatalf("Convert(compact) error = %v, want compact-unsigned-data", err)
	}
}

func TestConvertRefusesModeChangeUnderArchiveTimestamp(t *testing.T) {
	e := withTestLedger(t, newTestEnvelope(t, true, []byte("p"), false, "sig"), etsiu.ModeBase64URL, etsiu.TagSigTst, etsiu.TagArcTst)
	doc := &Document{Serialization: Flattened, Signatures: []*Envelope{e}}
	if _, err := doc.Convert(Flattened, ConvertOptions{Mode: etsiu.ModeClear}); !errdef.IsRule(err, errdef.RuleModeChange) {
		t.Fatalf("Convert() error = %v, want mode change refusal", err)
	}
}

func TestConvertChecksUnencodedPayload(t *testing.T) {
	e := newTestEnvelope(t, false, []byte("a.b"), false, "sig")
	doc := &Document{Serialization: Flattened, Signatures: []*Envelope{e}}
	if _, err := doc.Convert(Compact, ConvertOptions{}); !errdef.IsRule(err, errdef.RuleUnsafePayload) {
		t.Fatalf("Convert() error = %v, want unsafe payload", err)
	}
}

func TestEnvelopeAccessors(t *testing.T) {
	e := newTestEnvelope(t, false, []byte("raw payload"), false, "sig")
	if e.B64() {
		t.Fatal("B64() = true")
	}
	if e.Algorithm() != "ES256" {
		t.Fatalf("Algorithm() = %q", e.Algorithm())
	}
	if got := string(e.SigningInput(nil)); got != e.Protected()+".raw payload" {
		t.Fatalf("SigningInput() = %q", got)
	}
	d := newTestEnvelope(t, true, nil, true, "sig")
	if got := string(d.SigningInput([]byte("ZG9j"))); got != d.Protected()+".ZG9j" {
		t.Fatalf("SigningInput() detached = %q", got)
	}
	if d.Payload() != nil || len(d.PayloadRepresentation()) != 0 {
		t.Fatal("detached envelope exposes a payload")
	}
	if !reflect.DeepEqual(e.ProtectedHeader().Keys(), []string{"alg", "b64", "crit"}) {
		t.Fatalf("ProtectedHeader().Keys() = %v", e.ProtectedHeader().Keys())
	}
}
