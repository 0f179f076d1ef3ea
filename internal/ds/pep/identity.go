package pep

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// LocalPatient maps the PCM token's "system|value" patient into the Data
// Source's logical subject: the identifier value hashed so the national id
// never appears in local tokens or logs.
func LocalPatient(patient string) (string, error) {
	_, value, ok := strings.Cut(patient, "|")
	if !ok || value == "" {
		return "", fmt.Errorf("patient %q is not of the form system|value", patient)
	}
	sum := sha256.Sum256([]byte(value))
	return "Patient/" + hex.EncodeToString(sum[:]), nil
}
