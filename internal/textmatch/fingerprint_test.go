package textmatch

import "testing"

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("Call for Proposals — Spring Festival", "City Arts Council", "Lisbon")
	b := Fingerprint("Call for Proposals — Spring Festival", "City Arts Council", "Lisbon")
	if a != b {
		t.Fatalf("same inputs produced different fingerprints: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("expected 16 hex chars, got %d (%s)", len(a), a)
	}
}

func TestFingerprint_FillerWordsIgnored(t *testing.T) {
	a := Fingerprint("Call for Proposals: Spring Festival", "City Arts Council", "Lisbon")
	b := Fingerprint("Spring Festival — open call", "City Arts Council", "Lisbon")
	if a != b {
		t.Fatalf("filler-only title differences must not change the fingerprint: %s vs %s", a, b)
	}
}

func TestFingerprint_ContentChangesHash(t *testing.T) {
	a := Fingerprint("Spring Festival", "City Arts Council", "Lisbon")
	if b := Fingerprint("Spring Festival 2025", "City Arts Council", "Lisbon"); a == b {
		t.Fatal("different titles must fingerprint differently")
	}
	if b := Fingerprint("Spring Festival", "City Arts Council", "Porto"); a == b {
		t.Fatal("different cities must fingerprint differently")
	}
}
