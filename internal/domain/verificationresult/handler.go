package verificationresult

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hdp/pcm/internal/platform/auth"
	"github.com/hdp/pcm/internal/platform/fhir"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r4 *echo.Group) {
	r4.GET("/VerificationResult", h.Search)
	r4.GET("/VerificationResult/:id", h.Get)
	r4.POST("/VerificationResult", h.Create)
}

func (h *Handler) Create(c echo.Context) error {
	var v VerificationResult
	if err := c.Bind(&v); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	created, err := h.svc.Create(c.Request().Context(), auth.CallerFrom(c), &v)
	if err != nil {
		return fhir.WriteError(c, "VerificationResult", v.ID, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) Get(c echo.Context) error {
	id := c.Param("id")
	v, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return fhir.WriteError(c, "VerificationResult", id, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Search(c echo.Context) error {
	results, err := h.svc.Search(c.Request().Context(), SearchParams{
		Target: c.QueryParam("target"),
		Status: c.QueryParam("status"),
	})
	if err != nil {
		return fhir.WriteError(c, "VerificationResult", "", err)
	}
	resources := make([]interface{}, len(results))
	for i, v := range results {
		resources[i] = v
	}
	return c.JSON(http.StatusOK, fhir.NewSearchBundle(resources, c.Request().URL.RequestURI()))
}
