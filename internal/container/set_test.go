package set

import "testing"

func TestSet(t *testing.T) {
	s := New("a", "b")
	if !s.Contains("a") || s.Contains("c") {
		t.Fatal("Contains() mismatch")
	}
	if s.Add("a") {
		t.Fatal("Add() of an existing element reported it as new")
	}
	if !s.Add("c") || !s.Contains("c") {
		t.Fatal("Add() did not add a new element")
	}
	if len(s) != 3 {
		t.Fatalf("len = %d, want 3", len(s))
	}
}
