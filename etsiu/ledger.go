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

// Package etsiu implements the ordered ledger of JAdES unsigned properties
// carried in the "etsiU" member of a JWS unprotected header
// (ETSI TS 119 182-1 section 5.3).
//
// A Ledger only grows at its end. Entry order is significant: an archive
// timestamp covers every entry positioned before it.
package etsiu

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/notaryproject/jades-go/errdef"
)

// HeaderName is the unprotected header member holding the ledger.
const HeaderName = "etsiU"

// Ledger is an ordered sequence of etsiU entries sharing one incorporation
// mode. The zero value is an empty ledger.
type Ledger struct {
	entries []Entry
}

// Parse parses the JSON array of an etsiU header member.
func Parse(data json.RawMessage) (*Ledger, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, errdef.Malformed(errdef.RuleJSON, "etsiU must be a JSON array").Wrap(err)
	}
	l := &Ledger{}
	for i, raw := range raws {
		e, err := ParseEntry(raw)
		if err != nil {
			return nil, fmt.Errorf("etsiU entry %d: %w", i, err)
		}
		if err := l.Append(e); err != nil {
			return nil, fmt.Errorf("etsiU entry %d: %w", i, err)
		}
	}
	return l, nil
}

// Mode returns the incorporation mode fixed by the first entry.
func (l *Ledger) Mode() Mode {
	if len(l.entries) == 0 {
		return ModeUnset
	}
	return l.entries[0].mode
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// At returns the entry at index i.
func (l *Ledger) At(i int) Entry {
	return l.entries[i]
}

// Entries returns a copy of the entries in ledger order.
func (l *Ledger) Entries() []Entry {
	return append([]Entry(nil), l.entries...)
}

// Prefix returns a copy of the entries strictly before index n.
func (l *Ledger) Prefix(n int) []Entry {
	if n > len(l.entries) {
		n = len(l.entries)
	}
	return append([]Entry(nil), l.entries[:n]...)
}

// Append adds e at the end. The first entry fixes the incorporation mode;
// an entry in the other mode is rejected.
func (l *Ledger) Append(e Entry) error {
	if mode := l.Mode(); mode != ModeUnset && e.mode != mode {
		return errdef.Malformed(errdef.RuleMixedMode,
			"etsiU entries are incorporated as %s, cannot append %s %q entry", mode, e.mode, e.tag)
	}
	l.entries = append(l.entries, e)
	return nil
}

// Add marshals value under tag in the ledger's mode and appends it. An empty
// ledger uses preferred, or ModeBase64URL when preferred is unset.
func (l *Ledger) Add(tag Tag, value any, preferred Mode) (Entry, error) {
	mode := l.Mode()
	if mode == ModeUnset {
		mode = preferred
	}
	if mode == ModeUnset {
		mode = ModeBase64URL
	}
	e, err := NewEntry(tag, value, mode)
	if err != nil {
		return Entry{}, err
	}
	if err := l.Append(e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Filter returns the entries tagged tag, in ledger order.
func (l *Ledger) Filter(tag Tag) []Entry {
	var out []Entry
	for _, e := range l.entries {
		if e.tag == tag {
			out = append(out, e)
		}
	}
	return out
}

// Indexes returns the positions of the entries tagged tag.
func (l *Ledger) Indexes(tag Tag) []int {
	var out []int
	for i, e := range l.entries {
		if e.tag == tag {
			out = append(out, i)
		}
	}
	return out
}

// LastIndexOf returns the position of the last entry tagged tag, or -1.
func (l *Ledger) LastIndexOf(tag Tag) int {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].tag == tag {
			return i
		}
	}
	return -1
}

// Contains reports whether an entry tagged tag exists.
func (l *Ledger) Contains(tag Tag) bool {
	return l.LastIndexOf(tag) >= 0
}

// Remove deletes the entry at index i. Entries after i shift down by one.
func (l *Ledger) Remove(i int) error {
	if i < 0 || i >= len(l.entries) {
		return fmt.Errorf("etsiU index %d out of range [0,%d)", i, len(l.entries))
	}
	l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
	return nil
}

// Replace removes the entry at index i and appends e at the end. e must be
// in the mode of l, even when it replaces the only entry.
func (l *Ledger) Replace(i int, e Entry) error {
	if i < 0 || i >= len(l.entries) {
		return fmt.Errorf("etsiU index %d out of range [0,%d)", i, len(l.entries))
	}
	if e.mode != l.Mode() {
		return errdef.Malformed(errdef.RuleMixedMode,
			"etsiU entries are incorporated as %s, cannot append %s %q entry", l.Mode(), e.mode, e.tag)
	}
	if err := l.Remove(i); err != nil {
		return err
	}
	return l.Append(e)
}

// UpdateCounterSignature swaps the cSig entry at index i for e, keeping its
// position. It is the only in-place mutation; the nested signature it holds
// has grown its own ledger.
func (l *Ledger) UpdateCounterSignature(i int, e Entry) error {
	if i < 0 || i >= len(l.entries) {
		return fmt.Errorf("etsiU index %d out of range [0,%d)", i, len(l.entries))
	}
	if l.entries[i].tag != TagCSig || e.tag != TagCSig {
		return fmt.Errorf("etsiU entry %d: only %q entries can be updated in place", i, TagCSig)
	}
	if e.mode != l.entries[i].mode {
		return errdef.Malformed(errdef.RuleMixedMode,
			"etsiU entries are incorporated as %s, cannot store %s %q entry", l.Mode(), e.mode, e.tag)
	}
	l.entries[i] = e
	return nil
}

// Recode returns a copy of l with every entry re-incorporated in mode.
func (l *Ledger) Recode(mode Mode) (*Ledger, error) {
	out := &Ledger{}
	for i, e := range l.entries {
		re, err := e.Recode(mode)
		if err != nil {
			return nil, fmt.Errorf("etsiU entry %d: %w", i, err)
		}
		out.entries = append(out.entries, re)
	}
	return out, nil
}

// Clone returns an independent copy of l.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return &Ledger{}
	}
	return &Ledger{entries: append([]Entry(nil), l.entries...)}
}

// MarshalJSON returns the etsiU JSON array.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range l.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := e.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
