package consent

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hdp/pcm/internal/platform/fhir"
)

// UIHandler exposes the approval collaborator's fixed mutation paths on the
// plain-HTTP UI listener. Rendering lives outside this server.
type UIHandler struct {
	svc *Service
}

func NewUIHandler(svc *Service) *UIHandler {
	return &UIHandler{svc: svc}
}

func (h *UIHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/consents/:id/approve", h.Approve)
	e.POST("/consents/:id/reject", h.Reject)
}

type approveRequest struct {
	CustodianOrgIDs []string `json:"custodianOrgIds"`
}

func (h *UIHandler) Approve(c echo.Context) error {
	id := c.Param("id")
	var req approveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	approved, err := h.svc.Approve(c.Request().Context(), id, req.CustodianOrgIDs)
	if err != nil {
		return fhir.WriteError(c, "Consent", id, err)
	}
	return c.JSON(http.StatusOK, approved)
}

func (h *UIHandler) Reject(c echo.Context) error {
	id := c.Param("id")
	rejected, err := h.svc.Reject(c.Request().Context(), id)
	if err != nil {
		return fhir.WriteError(c, "Consent", id, err)
	}
	return c.JSON(http.StatusOK, rejected)
}
