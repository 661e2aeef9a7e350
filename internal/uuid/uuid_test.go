// Package uuid tests for UUID generation and validation.
package uuid

import "testing"

// TestNew verifies generated ids are valid v4 UUIDs.
func TestNew(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New()
		if !IsValid(id) {
			t.Fatalf("New() produced invalid UUID v4: %q", id)
		}
		if seen[id] {
			t.Fatalf("New() produced duplicate UUID: %q", id)
		}
		seen[id] = true
	}
}

// TestIsValid checks the strict v4 validation.
func TestIsValid(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  bool
	}{
		{"valid v4", "9b2b1d61-33a1-4f0d-8f5e-1a2b3c4d5e6f", true},
		{"uppercase", "9B2B1D61-33A1-4F0D-8F5E-1A2B3C4D5E6F", true},
		{"wrong version", "9b2b1d61-33a1-1f0d-8f5e-1a2b3c4d5e6f", false},
		{"wrong variant", "9b2b1d61-33a1-4f0d-1f5e-1a2b3c4d5e6f", false},
		{"no dashes", "9b2b1d6133a14f0d8f5e1a2b3c4d5e6f", false},
		{"empty", "", false},
		{"garbage", "not-a-uuid", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValid(tc.input); got != tc.want {
				t.Errorf("IsValid(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

// TestValidate checks error reporting.
func TestValidate(t *testing.T) {
	if err := Validate(New()); err != nil {
		t.Errorf("Validate of generated UUID failed: %v", err)
	}
	if err := Validate("bogus"); err == nil {
		t.Error("Expected error for invalid UUID")
	}
}
