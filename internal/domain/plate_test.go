package domain

import "testing"

func TestValidPlate(t *testing.T) {
	valid := []string{"ABC-123", "AB-1234", "A1B-123", "XYZ-999"}
	for _, plate := range valid {
		if !ValidPlate(plate) {
			t.Errorf("ValidPlate(%q) = false, muốn true", plate)
		}
	}

	invalid := []string{"", "ABC123", "ABCD-123", "AB-123", "abc-123", "AB-12345", "A-1234"}
	for _, plate := range invalid {
		if ValidPlate(plate) {
			t.Errorf("ValidPlate(%q) = true, muốn false", plate)
		}
	}
}

func TestNormalizePlate(t *testing.T) {
	if got := NormalizePlate("  abc-123 "); got != "ABC-123" {
		t.Fatalf("NormalizePlate = %q, muốn ABC-123", got)
	}
}
