package main

import (
	"bytes"
	"testing"
)

func TestNormalizeJSON(t *testing.T) {
	a := []byte(`{"b": 2, "a": 1}`)
	b := []byte(`{"a":1,"b":2}`)

	if !bytes.Equal(normalizeJSON(a), normalizeJSON(b)) {
		t.Errorf("normalizeJSON(%s) != normalizeJSON(%s)", a, b)
	}

	// Distinct documents stay distinct.
	c := []byte(`{"a":1,"b":3}`)
	if bytes.Equal(normalizeJSON(a), normalizeJSON(c)) {
		t.Errorf("normalizeJSON(%s) == normalizeJSON(%s)", a, c)
	}

	// Invalid JSON passes through unchanged.
	bad := []byte(`{not json`)
	if !bytes.Equal(normalizeJSON(bad), bad) {
		t.Error("invalid JSON should pass through unchanged")
	}
}
