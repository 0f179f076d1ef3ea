package healthcareservice

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
	r4.GET("/HealthcareService", h.Search)
	r4.GET("/HealthcareService/:id", h.Get)
	r4.POST("/HealthcareService", h.Create)
	r4.PUT("/HealthcareService/:id", h.Update)
}

func (h *Handler) Create(c echo.Context) error {
	var hs HealthcareService
	if err := c.Bind(&hs); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	created, err := h.svc.Create(c.Request().Context(), auth.CallerFrom(c), &hs)
	if err != nil {
		return fhir.WriteError(c, "HealthcareService", hs.ID, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) Get(c echo.Context) error {
	id := c.Param("id")
	hs, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return fhir.WriteError(c, "HealthcareService", id, err)
	}
	return c.JSON(http.StatusOK, hs)
}

func (h *Handler) Update(c echo.Context) error {
	id := c.Param("id")
	var hs HealthcareService
	if err := c.Bind(&hs); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	updated, err := h.svc.Update(c.Request().Context(), auth.CallerFrom(c), id, &hs)
	if err != nil {
		return fhir.WriteError(c, "HealthcareService", id, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Search(c echo.Context) error {
	services, err := h.svc.Search(c.Request().Context(), SearchParams{
		ProvidedBy: c.QueryParam("providedBy"),
		Category:   c.QueryParam("category"),
		Type:       c.QueryParam("type"),
		Identifier: c.QueryParam("identifier"),
		Name:       c.QueryParam("name"),
		Active:     c.QueryParam("active"),
	})
	if err != nil {
		return fhir.WriteError(c, "HealthcareService", "", err)
	}
	resources := make([]interface{}, len(services))
	for i, s := range services {
		resources[i] = s
	}
	return c.JSON(http.StatusOK, fhir.NewSearchBundle(resources, c.Request().URL.RequestURI()))
}
