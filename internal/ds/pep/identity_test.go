package pep

import "testing"

func TestLocalPatientHashesIdentifierValue(t *testing.T) {
	got, err := LocalPatient("http://fhir.health.gov.il/identifier/il-national-id|123")
	if err != nil {
		t.Fatalf("LocalPatient: %v", err)
	}
	// sha256("123"), hex
	want := "Patient/a665a45920422f9d417e4867efdc4fb8a04a1f3fff1fa07e998e86f7f7a27ae3"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLocalPatientIgnoresSystem(t *testing.T) {
	a, err := LocalPatient("system-a|99887766")
	if err != nil {
		t.Fatalf("LocalPatient: %v", err)
	}
	b, err := LocalPatient("system-b|99887766")
	if err != nil {
		t.Fatalf("LocalPatient: %v", err)
	}
	if a != b {
		t.Error("the same identifier value must map to the same local patient")
	}
}

func TestLocalPatientRejectsMalformedInput(t *testing.T) {
	for _, input := range []string{"", "99887766", "system|"} {
		if _, err := LocalPatient(input); err == nil {
			t.Errorf("LocalPatient(%q): expected error", input)
		}
	}
}
