package pep

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hdp/pcm/internal/platform/auth"
)

// LocalTokenHeader carries the minted internal token back to the gateway,
// which rewrites it into the upstream Authorization header.
const LocalTokenHeader = "X-Local-Token"

// Handler is the policy enforcement point the gateway consults with a
// sub-request per inbound data request.
type Handler struct {
	pcm        *PCMClient
	secret     []byte
	certHeader string
	logger     zerolog.Logger
}

func NewHandler(pcm *PCMClient, secret []byte, certHeader string, logger zerolog.Logger) *Handler {
	return &Handler{pcm: pcm, secret: secret, certHeader: certHeader, logger: logger}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/auth-check", h.AuthCheck)
}

func (h *Handler) AuthCheck(c echo.Context) error {
	ctx := c.Request().Context()

	bearer := bearerToken(c)
	if bearer == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "bearer token required")
	}

	result, err := h.pcm.Introspect(ctx, bearer)
	if err != nil {
		h.logger.Error().Err(err).Msg("introspection unavailable")
		return echo.NewHTTPError(http.StatusUnauthorized, "token could not be verified")
	}
	if !result.Active {
		return echo.NewHTTPError(http.StatusUnauthorized, "token is not active")
	}

	h.checkThumbprint(c, &result.TokenRecord)

	localPatient, err := LocalPatient(result.Patient)
	if err != nil {
		h.logger.Warn().Err(err).Str("client_id", result.ClientID).Msg("token carries no usable patient")
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	local, err := MintLocalToken(h.secret, &result.TokenRecord, localPatient)
	if err != nil {
		h.logger.Error().Err(err).Msg("minting local token")
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	c.Response().Header().Set(LocalTokenHeader, local)
	return c.NoContent(http.StatusOK)
}

// checkThumbprint compares the gateway-forwarded client certificate against
// the token's holder-of-key confirmation. Advisory: a mismatch is logged and
// the request proceeds.
func (h *Handler) checkThumbprint(c echo.Context, rec *auth.TokenRecord) {
	escaped := c.Request().Header.Get(h.certHeader)
	if escaped == "" {
		return
	}
	cert, err := auth.ParseEscapedCertificate(escaped)
	if err != nil {
		h.logger.Warn().Err(err).Msg("gateway client certificate header unparseable")
		return
	}
	peer := auth.Thumbprint(cert.Raw)
	if peer != rec.Cnf.X5tS256 {
		h.logger.Warn().
			Str("client_id", rec.ClientID).
			Str("token_x5t", rec.Cnf.X5tS256).
			Str("peer_x5t", peer).
			Msg("gateway peer certificate does not match the token confirmation")
	}
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
