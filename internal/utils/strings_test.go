package utils

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := map[string]string{
		"(555) 010-0199":   "5550100199",
		"+1 555 010 0199":  "+15550100199",
		"  ":               "",
		"555.010.0199 x12": "555010019912",
	}
	for in, want := range tests {
		if got := NormalizePhone(in); got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsValidPhone(t *testing.T) {
	if !IsValidPhone("(555) 010-0199") {
		t.Fatal("expected a formatted US number to be valid")
	}
	if IsValidPhone("555-01") || IsValidPhone("") {
		t.Fatal("expected short numbers to be rejected")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Ada@Example.COM "); got != "ada@example.com" {
		t.Fatalf("got %q", got)
	}
}

func TestPathSegment(t *testing.T) {
	tests := []struct{ in, want string }{
		{"ASH-2030-0001", "ASH-2030-0001"},
		{"../../etc/passwd", "etc-passwd"},
		{"inv 42 / x", "inv-42-x"},
		{"///", "invoice"},
	}
	for _, tt := range tests {
		if got := PathSegment(tt.in, "invoice"); got != tt.want {
			t.Errorf("PathSegment(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
