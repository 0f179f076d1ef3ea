package resource

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hdp/pcm/internal/platform/fhir"
)

// Handler is the Data Source resource server. It trusts only the internal
// token minted by the PEP; the consent binding already happened upstream, so
// scopes are not re-enforced here.
type Handler struct {
	secret []byte
	store  *ObservationStore
	logger zerolog.Logger
}

func NewHandler(secret []byte, store *ObservationStore, logger zerolog.Logger) *Handler {
	return &Handler{secret: secret, store: store, logger: logger}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/fhir/Observation", h.Observations)
}

func (h *Handler) Observations(c echo.Context) error {
	bearer := bearerToken(c)
	if bearer == "" {
		return c.JSON(http.StatusUnauthorized, fhir.LoginOutcome("bearer token required"))
	}
	claims, err := ParseLocalToken(h.secret, bearer)
	if err != nil {
		h.logger.Warn().Err(err).Msg("rejected bearer at resource server")
		return c.JSON(http.StatusUnauthorized, fhir.LoginOutcome("bearer token is not a valid local token"))
	}

	observations := h.store.ForPatient(claims.Patient)
	resources := make([]interface{}, len(observations))
	for i, o := range observations {
		resources[i] = o
	}
	return c.JSON(http.StatusOK, fhir.NewCollectionBundle(resources))
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
