package identifier

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ids := []string{
		"sections",
		"cpsc 310",
		"a/b/c",
		"weird!@#$%^&*()id",
		"unicode-Ω-id",
	}
	for _, id := range ids {
		enc := Encode(id)
		dec, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode(%q) error: %v", enc, err)
		}
		if dec != id {
			t.Errorf("round trip mismatch: %q -> %q -> %q", id, enc, dec)
		}
	}
}

func TestValidateRejectsIllegalIds(t *testing.T) {
	for _, id := range []string{"", "   ", "has_underscore", "\t\n "} {
		if err := Validate(id); err == nil {
			t.Errorf("Validate(%q) = nil, want error", id)
		}
	}
}

func TestValidateAcceptsLegalIds(t *testing.T) {
	for _, id := range []string{"sections", "a/b", "my-dataset", " leading space ok"} {
		if err := Validate(id); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", id, err)
		}
	}
}
