package endpoint

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
	r4.GET("/Endpoint", h.Search)
	r4.GET("/Endpoint/:id", h.Get)
	r4.POST("/Endpoint", h.Create)
	r4.PUT("/Endpoint/:id", h.Update)
}

func (h *Handler) Create(c echo.Context) error {
	var e Endpoint
	if err := c.Bind(&e); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	created, err := h.svc.Create(c.Request().Context(), auth.CallerFrom(c), &e)
	if err != nil {
		return fhir.WriteError(c, "Endpoint", e.ID, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) Get(c echo.Context) error {
	id := c.Param("id")
	e, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return fhir.WriteError(c, "Endpoint", id, err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Update(c echo.Context) error {
	id := c.Param("id")
	var e Endpoint
	if err := c.Bind(&e); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	updated, err := h.svc.Update(c.Request().Context(), auth.CallerFrom(c), id, &e)
	if err != nil {
		return fhir.WriteError(c, "Endpoint", id, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Search(c echo.Context) error {
	endpoints, err := h.svc.Search(c.Request().Context(), SearchParams{
		Thumbprint: c.QueryParam("thumbprint"),
	})
	if err != nil {
		return fhir.WriteError(c, "Endpoint", "", err)
	}
	resources := make([]interface{}, len(endpoints))
	for i, e := range endpoints {
		resources[i] = e
	}
	return c.JSON(http.StatusOK, fhir.NewSearchBundle(resources, c.Request().URL.RequestURI()))
}
