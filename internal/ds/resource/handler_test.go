package resource

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const localPatient = "Patient/a665a45920422f9d417e4867efdc4fb8a04a1f3fff1fa07e998e86f7f7a27ae3"

func mintToken(t *testing.T, secret []byte, patient string, method jwt.SigningMethod, key interface{}) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":     "sp-client",
		"patient": patient,
		"iat":     now.Unix(),
		"exp":     now.Add(30 * time.Second).Unix(),
	}
	if key == nil {
		key = secret
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	return signed
}

func newTestServer(t *testing.T, secret []byte) (*echo.Echo, *ObservationStore) {
	t.Helper()
	store := NewObservationStore()
	e := echo.New()
	NewHandler(secret, store, zerolog.Nop()).RegisterRoutes(e)
	return e, store
}

func get(e *echo.Echo, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/fhir/Observation", nil)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestObservationsForPatient(t *testing.T) {
	secret := []byte("internal-secret")
	e, store := newTestServer(t, secret)
	store.Add(localPatient, &Observation{ID: "obs-1", Status: "final", ValueString: "measles: immune"})
	store.Add(localPatient, &Observation{ID: "obs-2", Status: "final", ValueString: "rubella: immune"})
	store.Add("Patient/other", &Observation{ID: "obs-3", Status: "final"})

	rec := get(e, mintToken(t, secret, localPatient, jwt.SigningMethodHS256, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var bundle struct {
		ResourceType string `json:"resourceType"`
		Type         string `json:"type"`
		Entry        []struct {
			Resource Observation `json:"resource"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &bundle); err != nil {
		t.Fatalf("decoding bundle: %v", err)
	}
	if bundle.ResourceType != "Bundle" || bundle.Type != "collection" {
		t.Errorf("bundle = %s/%s, want Bundle/collection", bundle.ResourceType, bundle.Type)
	}
	if len(bundle.Entry) != 2 {
		t.Fatalf("entry count = %d, want 2", len(bundle.Entry))
	}
	for _, entry := range bundle.Entry {
		if entry.Resource.Subject.Reference != localPatient {
			t.Errorf("entry subject = %q, want %q", entry.Resource.Subject.Reference, localPatient)
		}
	}
}

func TestObservationsEmptyForUnknownPatient(t *testing.T) {
	secret := []byte("internal-secret")
	e, _ := newTestServer(t, secret)

	rec := get(e, mintToken(t, secret, "Patient/nobody", jwt.SigningMethodHS256, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var bundle struct {
		Entry []json.RawMessage `json:"entry"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &bundle); err != nil {
		t.Fatalf("decoding bundle: %v", err)
	}
	if len(bundle.Entry) != 0 {
		t.Errorf("entry count = %d, want 0", len(bundle.Entry))
	}
}

func TestObservationsRequireBearer(t *testing.T) {
	e, _ := newTestServer(t, []byte("internal-secret"))
	if rec := get(e, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestObservationsRejectForeignTokens(t *testing.T) {
	secret := []byte("internal-secret")
	e, _ := newTestServer(t, secret)

	// Wrong secret.
	if rec := get(e, mintToken(t, secret, localPatient, jwt.SigningMethodHS256, []byte("other-secret"))); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret: status = %d, want 401", rec.Code)
	}
	// Opaque garbage.
	if rec := get(e, "b3f1c2d4-not-a-jwt"); rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage bearer: status = %d, want 401", rec.Code)
	}
}

func TestParseLocalTokenRejectsRS256(t *testing.T) {
	secret := []byte("internal-secret")
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	// An externally minted RS256 token must not pass, whatever its claims.
	token := mintToken(t, secret, localPatient, jwt.SigningMethodRS256, key)
	if _, err := ParseLocalToken(secret, token); err == nil {
		t.Error("expected rejection of a non-HS256 token")
	}
}

func TestParseLocalTokenRequiresPatient(t *testing.T) {
	secret := []byte("internal-secret")
	token := mintToken(t, secret, "", jwt.SigningMethodHS256, nil)
	if _, err := ParseLocalToken(secret, token); err == nil {
		t.Error("expected rejection of a token without a patient claim")
	}
}

func TestParseLocalTokenRoundTrip(t *testing.T) {
	secret := []byte("internal-secret")
	claims, err := ParseLocalToken(secret, mintToken(t, secret, localPatient, jwt.SigningMethodHS256, nil))
	if err != nil {
		t.Fatalf("ParseLocalToken: %v", err)
	}
	if claims.Patient != localPatient {
		t.Errorf("patient = %q", claims.Patient)
	}
}
