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

package etsiu

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/internal/encoding/base64url"
)

var sampleValues = map[Tag]any{
	TagXVals:  XVals{{X509Cert: &PkiOb{Val: "AQID"}}},
	TagRVals:  NewRVals([][]byte{{1, 2}}, [][]byte{{3, 4}}),
	TagSigTst: NewTstContainer([]byte{5, 6}),
	TagArcTst: NewTstContainer([]byte{7, 8}),
	TagTstVd:  TstVd{XVals: XVals{{X509Cert: &PkiOb{Val: "CQo="}}}},
	TagCSig:   "eyJhbGciOiJFUzI1NiJ9.cGF5bG9hZA.c2ln",
	TagSigPSt: SigPSt{SigPolDoc: "AAEC", SpDSpec: &SpDSpec{ID: "urn:oid:1.2.3"}},
}

func TestParseEntry(t *testing.T) {
	object := `{"sigTst":{"tstTokens":[{"val":"BQY="}]}}`
	tests := []struct {
		name     string
		raw      string
		mode     Mode
		wire     string
		wantJSON string
	}{
		{
			name:     "base64url string",
			raw:      `"` + base64url.Encode([]byte(object)) + `"`,
			mode:     ModeBase64URL,
			wire:     base64url.Encode([]byte(object)),
			wantJSON: `"` + base64url.Encode([]byte(object)) + `"`,
		},
		{
			name:     "clear object with whitespace",
			raw:      "{ \"sigTst\" : { \"tstTokens\" : [ { \"val\" : \"BQY=\" } ] } }",
			mode:     ModeClear,
			wire:     object,
			wantJSON: object,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := ParseEntry(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("ParseEntry() error = %v", err)
			}
			if e.Tag() != TagSigTst {
				t.Errorf("Tag() = %q, want %q", e.Tag(), TagSigTst)
			}
			if e.Mode() != tt.mode {
				t.Errorf("Mode() = %s, want %s", e.Mode(), tt.mode)
			}
			if got := string(e.WireBytes()); got != tt.wire {
				t.Errorf("WireBytes() = %s, want %s", got, tt.wire)
			}
			b, err := e.MarshalJSON()
			if err != nil {
				t.Fatalf("MarshalJSON() error = %v", err)
			}
			if string(b) != tt.wantJSON {
				t.Errorf("MarshalJSON() = %s, want %s", b, tt.wantJSON)
			}
			var c TstContainer
			if err := e.Decode(&c); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			tokens, err := c.Tokens()
			if err != nil {
				t.Fatalf("Tokens() error = %v", err)
			}
			if !reflect.DeepEqual(tokens, [][]byte{{5, 6}}) {
				t.Errorf("Tokens() = %v", tokens)
			}
		})
	}
}

func TestParseEntryRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		rule errdef.Rule
	}{
		{"two keys clear", `{"sigTst":{},"arcTst":{}}`, errdef.RuleMultiKeyEntry},
		{"two keys encoded", `"` + base64url.Encode([]byte(`{"xVals":[],"rVals":{}}`)) + `"`, errdef.RuleMultiKeyEntry},
		{"duplicate key", `{"sigTst":{},"sigTst":{}}`, errdef.RuleMultiKeyEntry},
		{"no key", `{}`, errdef.RuleMultiKeyEntry},
		{"padded base64", `"eyJ4VmFscyI6W119=="`, errdef.RuleBase64URL},
		{"array", `[]`, errdef.RuleJSON},
		{"encoded non object", `"` + base64url.Encode([]byte(`[1]`)) + `"`, errdef.RuleJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEntry(json.RawMessage(tt.raw))
			if !errdef.IsRule(err, tt.rule) {
				t.Fatalf("ParseEntry() error = %v, want rule %s", err, tt.rule)
			}
			if !errdef.IsKind(err, errdef.KindMalformedInput) {
				t.Fatalf("ParseEntry() error kind = %v, want malformed input", err)
			}
		})
	}
}

func TestModeExclusivity(t *testing.T) {
	for _, first := range []Mode{ModeBase64URL, ModeClear} {
		other := ModeClear
		if first == ModeClear {
			other = ModeBase64URL
		}
		for tag, value := range sampleValues {
			t.Run(first.String()+"/"+string(tag), func(t *testing.T) {
				l := &Ledger{}
				if _, err := l.Add(TagSigTst, NewTstContainer([]byte{1}), first); err != nil {
					t.Fatalf("Add() error = %v", err)
				}
				e, err := NewEntry(tag, value, other)
				if err != nil {
					t.Fatalf("NewEntry() error = %v", err)
				}
				err = l.Append(e)
				if !errdef.IsRule(err, errdef.RuleMixedMode) {
					t.Fatalf("Append() error = %v, want mixed mode", err)
				}
				if l.Len() != 1 {
					t.Fatalf("Len() = %d after rejected append, want 1", l.Len())
				}
				// Add follows the established mode regardless of preference.
				added, err := l.Add(tag, value, other)
				if err != nil {
					t.Fatalf("Add() error = %v", err)
				}
				if added.Mode() != first {
					t.Fatalf("Add() mode = %s, want %s", added.Mode(), first)
				}
			})
		}
	}
}

func TestParseMixedLedger(t *testing.T) {
	encoded := base64url.Encode([]byte(`{"sigTst":{"tstTokens":[]}}`))
	_, err := Parse(json.RawMessage(`["` + encoded + `",{"xVals":[]}]`))
	if !errdef.IsRule(err, errdef.RuleMixedMode) {
		t.Fatalf("Parse() error = %v, want mixed mode", err)
	}
}

func TestLedgerRoundTrip(t *testing.T) {
	for _, mode := range []Mode{ModeBase64URL, ModeClear} {
		t.Run(mode.String(), func(t *testing.T) {
			l := &Ledger{}
			for _, tag := range []Tag{TagSigTst, TagXVals, TagRVals, TagArcTst, TagTstVd, TagArcTst} {
				if _, err := l.Add(tag, sampleValues[tag], mode); err != nil {
					t.Fatalf("Add(%s) error = %v", tag, err)
				}
			}
			data, err := json.Marshal(l)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			parsed, err := Parse(data)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if parsed.Len() != l.Len() || parsed.Mode() != mode {
				t.Fatalf("parsed ledger len=%d mode=%s", parsed.Len(), parsed.Mode())
			}
			for i := 0; i < l.Len(); i++ {
				if !parsed.At(i).Equal(l.At(i)) {
					t.Errorf("entry %d differs after round trip", i)
				}
			}
			again, err := json.Marshal(parsed)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(again) != string(data) {
				t.Errorf("round trip = %s, want %s", again, data)
			}
		})
	}
}

func TestLedgerLookup(t *testing.T) {
	l := &Ledger{}
	for _, tag := range []Tag{TagSigTst, TagXVals, TagArcTst, TagTstVd, TagArcTst} {
		if _, err := l.Add(tag, sampleValues[tag], ModeClear); err != nil {
			t.Fatal(err)
		}
	}
	if got := l.LastIndexOf(TagArcTst); got != 4 {
		t.Errorf("LastIndexOf(arcTst) = %d, want 4", got)
	}
	if got := l.LastIndexOf(TagCSig); got != -1 {
		t.Errorf("LastIndexOf(cSig) = %d, want -1", got)
	}
	if got := l.Indexes(TagArcTst); !reflect.DeepEqual(got, []int{2, 4}) {
		t.Errorf("Indexes(arcTst) = %v", got)
	}
	if got := len(l.Filter(TagArcTst)); got != 2 {
		t.Errorf("Filter(arcTst) returned %d entries", got)
	}
	if !l.Contains(TagTstVd) || l.Contains(TagRVals) {
		t.Error("Contains() mismatch")
	}
	if got := len(l.Prefix(2)); got != 2 {
		t.Errorf("Prefix(2) returned %d entries", got)
	}
}

func TestLedgerReplace(t *testing.T) {
	l := &Ledger{}
	for _, tag := range []Tag{TagSigTst, TagTstVd, TagArcTst} {
		if _, err := l.Add(tag, sampleValues[tag], ModeBase64URL); err != nil {
			t.Fatal(err)
		}
	}
	fresh, err := NewEntry(TagTstVd, TstVd{}, ModeBase64URL)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Replace(1, fresh); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	got := []Tag{l.At(0).Tag(), l.At(1).Tag(), l.At(2).Tag()}
	want := []Tag{TagSigTst, TagArcTst, TagTstVd}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order after Replace() = %v, want %v", got, want)
	}
	if err := l.Remove(5); err == nil {
		t.Fatal("Remove() out of range expected error")
	}
}

func TestLedgerReplaceKeepsMode(t *testing.T) {
	tests := []struct {
		name string
		tags []Tag
	}{
		{name: "only entry", tags: []Tag{TagSigPSt}},
		{name: "several entries", tags: []Tag{TagSigTst, TagSigPSt}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &Ledger{}
			for _, tag := range tt.tags {
				if _, err := l.Add(tag, sampleValues[tag], ModeBase64URL); err != nil {
					t.Fatal(err)
				}
			}
			clearEntry, err := NewEntry(TagSigPSt, sampleValues[TagSigPSt], ModeClear)
			if err != nil {
				t.Fatal(err)
			}
			if err := l.Replace(l.Len()-1, clearEntry); !errdef.IsRule(err, errdef.RuleMixedMode) {
				t.Fatalf("Replace() error = %v, want %s", err, errdef.RuleMixedMode)
			}
			if l.Len() != len(tt.tags) || l.Mode() != ModeBase64URL {
				t.Fatalf("ledger changed after a refused Replace(): len %d, mode %s", l.Len(), l.Mode())
			}
		})
	}
}

func TestUpdateCounterSignature(t *testing.T) {
	l := &Ledger{}
	if _, err := l.Add(TagCSig, "a.b.c", ModeClear); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Add(TagArcTst, sampleValues[TagArcTst], ModeClear); err != nil {
		t.Fatal(err)
	}
	updated, err := NewEntry(TagCSig, "a.b.d", ModeClear)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.UpdateCounterSignature(0, updated); err != nil {
		t.Fatalf("UpdateCounterSignature() error = %v", err)
	}
	if !l.At(0).Equal(updated) {
		t.Fatal("cSig entry was not updated in place")
	}
	if err := l.UpdateCounterSignature(1, updated); err == nil {
		t.Fatal("updating a non cSig entry expected error")
	}
}

func TestRecode(t *testing.T) {
	l := &Ledger{}
	if _, err := l.Add(TagSigTst, sampleValues[TagSigTst], ModeBase64URL); err != nil {
		t.Fatal(err)
	}
	recoded, err := l.Recode(ModeClear)
	if err != nil {
		t.Fatalf("Recode() error = %v", err)
	}
	if recoded.Mode() != ModeClear {
		t.Fatalf("Mode() = %s, want clear", recoded.Mode())
	}
	if string(recoded.At(0).Value()) != string(l.At(0).Value()) {
		t.Fatal("component value changed by Recode()")
	}
	if l.Mode() != ModeBase64URL {
		t.Fatal("Recode() mutated the source ledger")
	}
}

func TestXValsCertificatesRejectsGarbage(t *testing.T) {
	if _, err := (XVals{{X509Cert: &PkiOb{Val: "AQID"}}}).Certificates(); err == nil {
		t.Fatal("expected certificate parse error")
	}
}
