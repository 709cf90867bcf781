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
	"testing"

	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/etsiu"
)

// attach stores child as a cSig entry of parent.
func attach(t *testing.T, parent, child *Envelope, compact bool, mode etsiu.Mode) *Envelope {
	t.Helper()
	value, err := MarshalCounterSignature(child, compact)
	if err != nil {
		t.Fatalf("MarshalCounterSignature() error = %v", err)
	}
	l, err := parent.Ledger()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Add(etsiu.TagCSig, value, mode); err != nil {
		t.Fatal(err)
	}
	out, err := parent.WithLedger(l)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestTreeFindAndReplace(t *testing.T) {
	root := newTestEnvelope(t, true, []byte("document"), false, "root")
	child := newTestEnvelope(t, true, root.Signature(), false, "child")
	grandchild := newTestEnvelope(t, true, child.Signature(), false, "grandchild")

	child = attach(t, child, grandchild, false, etsiu.ModeClear)
	root = attach(t, root, child, false, etsiu.ModeBase64URL)

	var ids []string
	if err := Walk(root, func(n *Node) error {
		ids = append(ids, n.ID())
		return nil
	}); err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if len(ids) != 3 || ids[0] != root.ID() || ids[2] != grandchild.ID() {
		t.Fatalf("Walk() visited %v", ids)
	}

	n, err := Find(root, grandchild.ID())
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if n.Depth() != 2 {
		t.Fatalf("Depth() = %d, want 2", n.Depth())
	}
	if _, _, covered := n.TimestampedBy(); covered {
		t.Fatal("TimestampedBy() reported coverage without timestamps")
	}

	// Grow the grandchild's ledger and propagate it to the root.
	updated := withTestLedger(t, n.Envelope, etsiu.ModeClear, etsiu.TagSigTst)
	newRoot, err := n.Replace(updated)
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if newRoot.ID() != root.ID() {
		t.Fatal("Replace() changed the root signature")
	}
	again, err := Find(newRoot, grandchild.ID())
	if err != nil {
		t.Fatal(err)
	}
	if l := again.Ledger(); l.Len() != 1 || l.At(0).Tag() != etsiu.TagSigTst {
		t.Fatal("grandchild ledger was not propagated")
	}
	// The original tree is untouched.
	orig, err := Find(root, grandchild.ID())
	if err != nil {
		t.Fatal(err)
	}
	if orig.Ledger().Len() != 0 {
		t.Fatal("Replace() mutated the original tree")
	}
	// The root ledger keeps its length and mode.
	rootLedger, err := newRoot.Ledger()
	if err != nil {
		t.Fatal(err)
	}
	if rootLedger.Len() != 1 || rootLedger.Mode() != etsiu.ModeBase64URL {
		t.Fatalf("root ledger len=%d mode=%s", rootLedger.Len(), rootLedger.Mode())
	}
}

func TestTreeNotFound(t *testing.T) {
	root := newTestEnvelope(t, true, []byte("document"), false, "root")
	_, err := Find(root, "id-missing")
	if !errdef.IsRule(err, errdef.RuleSignatureNotFound) {
		t.Fatalf("Find() error = %v, want signature-not-found", err)
	}
	doc := &Document{Serialization: General, Signatures: []*Envelope{root}}
	if _, _, err := FindInDocument(doc, "id-missing"); !errdef.IsKind(err, errdef.KindMissingPrerequisite) {
		t.Fatalf("FindInDocument() error = %v", err)
	}
}

func TestTreeAmbiguousID(t *testing.T) {
	root := newTestEnvelope(t, true, []byte("document"), false, "root")
	child := newTestEnvelope(t, true, root.Signature(), false, "same value")
	root = attach(t, root, child, true, etsiu.ModeClear)
	root = attach(t, root, child, false, etsiu.ModeClear)

	if _, err := Find(root, child.ID()); !errdef.IsRule(err, errdef.RuleAmbiguousSignature) {
		t.Fatalf("Find() error = %v, want %s", err, errdef.RuleAmbiguousSignature)
	}
	if _, err := Find(root, root.ID()); err != nil {
		t.Fatalf("Find(root) error = %v", err)
	}

	other := newTestEnvelope(t, true, []byte("document"), false, "other root")
	doc := &Document{Serialization: General, Signatures: []*Envelope{other, other}}
	if _, _, err := FindInDocument(doc, other.ID()); !errdef.IsRule(err, errdef.RuleAmbiguousSignature) {
		t.Fatalf("FindInDocument() error = %v, want %s", err, errdef.RuleAmbiguousSignature)
	}
	single := &Document{Serialization: General, Signatures: []*Envelope{other, root}}
	if _, i, err := FindInDocument(single, root.ID()); err != nil || i != 1 {
		t.Fatalf("FindInDocument() = %d, %v, want 1", i, err)
	}
}

func TestTimestampedBy(t *testing.T) {
	root := newTestEnvelope(t, true, []byte("document"), false, "root")
	child := newTestEnvelope(t, true, root.Signature(), false, "child")
	root = attach(t, root, child, true, etsiu.ModeBase64URL)

	n, err := Find(root, child.ID())
	if err != nil {
		t.Fatal(err)
	}
	if !n.Compact {
		t.Fatal("compact cSig not detected")
	}
	if _, _, covered := n.TimestampedBy(); covered {
		t.Fatal("unexpected coverage")
	}

	stamped := withTestLedger(t, root, etsiu.ModeBase64URL, etsiu.TagArcTst)
	n, err = Find(stamped, child.ID())
	if err != nil {
		t.Fatal(err)
	}
	by, tag, covered := n.TimestampedBy()
	if !covered || tag != etsiu.TagArcTst || by.ID() != root.ID() {
		t.Fatalf("TimestampedBy() = %v, %s, %v", by, tag, covered)
	}
}

func TestCompactCounterSignatureBecomesFlattened(t *testing.T) {
	root := newTestEnvelope(t, true, []byte("document"), false, "root")
	child := newTestEnvelope(t, true, root.Signature(), false, "child")
	root = attach(t, root, child, true, etsiu.ModeClear)

	n, err := Find(root, child.ID())
	if err != nil {
		t.Fatal(err)
	}
	newRoot, err := n.Replace(withTestLedger(t, n.Envelope, etsiu.ModeClear, etsiu.TagSigTst))
	if err != nil {
		t.Fatal(err)
	}
	again, err := Find(newRoot, child.ID())
	if err != nil {
		t.Fatal(err)
	}
	if again.Compact {
		t.Fatal("counter signature with unsigned properties stayed compact")
	}
}
