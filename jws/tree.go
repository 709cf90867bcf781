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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/notaryproject/jades-go/errdef"
	"github.com/notaryproject/jades-go/etsiu"
)

// errStopWalk stops Walk early without error.
var errStopWalk = errors.New("stop walk")

// Node is a signature in a counter-signature tree. The root is a top-level
// signature; every other node lives in a cSig entry of its parent's ledger.
type Node struct {
	// Envelope is the signature at this node.
	Envelope *Envelope

	// Parent is nil for the root.
	Parent *Node

	// Index is the position of the cSig entry holding Envelope in the
	// parent ledger, or -1 for the root.
	Index int

	// Compact reports whether the cSig entry holds a compact serialization
	// string rather than a flattened JSON object.
	Compact bool

	ledger *etsiu.Ledger
}

// Root returns the tree rooted at e.
func Root(e *Envelope) (*Node, error) {
	l, err := e.Ledger()
	if err != nil {
		return nil, err
	}
	return &Node{Envelope: e, Index: -1, ledger: l}, nil
}

// ID returns the identifier of the signature at n.
func (n *Node) ID() string {
	return n.Envelope.ID()
}

// Depth returns 0 for the root and the nesting level otherwise.
func (n *Node) Depth() int {
	d := 0
	for p := n.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

// Ledger returns a copy of the node's etsiU ledger.
func (n *Node) Ledger() *etsiu.Ledger {
	return n.ledger.Clone()
}

// Children parses the counter-signatures held by n, in ledger order.
func (n *Node) Children() ([]*Node, error) {
	var children []*Node
	for _, i := range n.ledger.Indexes(etsiu.TagCSig) {
		e, compact, err := ParseCounterSignature(n.ledger.At(i).Value())
		if err != nil {
			return nil, fmt.Errorf("counter signature at etsiU index %d of %s: %w", i, n.ID(), err)
		}
		l, err := e.Ledger()
		if err != nil {
			return nil, err
		}
		children = append(children, &Node{
			Envelope: e,
			Parent:   n,
			Index:    i,
			Compact:  compact,
			ledger:   l,
		})
	}
	return children, nil
}

// Walk visits e and all its counter-signatures depth first, parents before
// children.
func Walk(e *Envelope, fn func(*Node) error) error {
	root, err := Root(e)
	if err != nil {
		return err
	}
	err = walk(root, fn)
	if errors.Is(err, errStopWalk) {
		return nil
	}
	return err
}

func walk(n *Node, fn func(*Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	children, err := n.Children()
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// Find locates the signature with the given identifier in the tree rooted
// at e. An identifier shared by two signatures is refused.
func Find(e *Envelope, id string) (*Node, error) {
	found, err := findAll(e, id, nil)
	if err != nil {
		return nil, err
	}
	return only(found, id)
}

// FindInDocument locates the signature with the given identifier among all
// signatures of d and their counter-signatures. It also returns the index of
// the top-level signature holding it.
func FindInDocument(d *Document, id string) (*Node, int, error) {
	var found []*Node
	index := -1
	for i, e := range d.Signatures {
		n := len(found)
		var err error
		if found, err = findAll(e, id, found); err != nil {
			return nil, -1, err
		}
		if len(found) > n && index < 0 {
			index = i
		}
	}
	node, err := only(found, id)
	if err != nil {
		return nil, -1, err
	}
	return node, index, nil
}

// findAll appends to found the nodes of the tree rooted at e carrying id. It
// stops after the second match.
func findAll(e *Envelope, id string, found []*Node) ([]*Node, error) {
	if len(found) > 1 {
		return found, nil
	}
	err := Walk(e, func(n *Node) error {
		if n.ID() == id {
			found = append(found, n)
			if len(found) > 1 {
				return errStopWalk
			}
		}
		return nil
	})
	return found, err
}

func only(found []*Node, id string) (*Node, error) {
	switch len(found) {
	case 0:
		return nil, errdef.Missing(errdef.RuleSignatureNotFound, "no signature with id %q", id).WithSignature(id)
	case 1:
		return found[0], nil
	}
	return nil, errdef.Malformed(errdef.RuleAmbiguousSignature,
		"more than one signature has the id %q", id).WithSignature(id)
}

// TimestampedBy returns the nearest ancestor whose ledger holds a signature
// or archive timestamp positioned after the cSig entry leading to n. Such a
// timestamp covers n; n must not change any more.
func (n *Node) TimestampedBy() (*Node, etsiu.Tag, bool) {
	for child, p := n, n.Parent; p != nil; child, p = p, p.Parent {
		for i := child.Index + 1; i < p.ledger.Len(); i++ {
			switch tag := p.ledger.At(i).Tag(); tag {
			case etsiu.TagSigTst, etsiu.TagArcTst:
				return p, tag, true
			}
		}
	}
	return nil, "", false
}

// Replace swaps the signature at n for updated and returns the new root
// envelope. Every ancestor cSig entry is rewritten in place. A compact
// counter-signature that gained an unprotected header is stored as a
// flattened JSON object.
func (n *Node) Replace(updated *Envelope) (*Envelope, error) {
	if n.Parent == nil {
		return updated, nil
	}
	compact := n.Compact && !updated.HasUnprotectedHeader()
	value, err := MarshalCounterSignature(updated, compact)
	if err != nil {
		return nil, err
	}
	l := n.Parent.ledger.Clone()
	entry, err := etsiu.NewEntry(etsiu.TagCSig, value, l.Mode())
	if err != nil {
		return nil, err
	}
	if err := l.UpdateCounterSignature(n.Index, entry); err != nil {
		return nil, err
	}
	parent, err := n.Parent.Envelope.WithLedger(l)
	if err != nil {
		return nil, err
	}
	return n.Parent.Replace(parent)
}

// ParseCounterSignature parses the value of a cSig component: a compact
// serialization string or a flattened JSON object.
func ParseCounterSignature(value json.RawMessage) (*Envelope, bool, error) {
	value = bytes.TrimSpace(value)
	if len(value) > 0 && value[0] == '"' {
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return nil, false, errdef.Malformed(errdef.RuleJSON, "invalid cSig string").Wrap(err)
		}
		e, err := ParseCompact(s)
		if err != nil {
			return nil, false, err
		}
		return e, true, nil
	}
	doc, err := ParseJSON(value)
	if err != nil {
		return nil, false, err
	}
	if doc.Serialization != Flattened {
		return nil, false, errdef.Malformed(errdef.RuleGeneralSignatures,
			"a counter signature must use the compact or flattened serialization")
	}
	return doc.Signatures[0], false, nil
}

// MarshalCounterSignature returns the cSig component value for e.
func MarshalCounterSignature(e *Envelope, compact bool) (json.RawMessage, error) {
	if compact {
		b, err := generateCompact(e)
		if err != nil {
			return nil, err
		}
		return marshalJSON(string(b))
	}
	return generateFlattened(e)
}
