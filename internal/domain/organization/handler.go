package organization

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hdp/pcm/internal/platform/auth"
	"github.com/hdp/pcm/internal/platform/fhir"
)

type Handler struct {
	svc      *Service
	includes *fhir.IncludeResolver
}

func NewHandler(svc *Service, includes *fhir.IncludeResolver) *Handler {
	return &Handler{svc: svc, includes: includes}
}

func (h *Handler) RegisterRoutes(r4 *echo.Group) {
	r4.GET("/Organization", h.Search)
	r4.GET("/Organization/:id", h.Get)
	r4.POST("/Organization", h.Create)
	r4.PUT("/Organization/:id", h.Update)
}

func (h *Handler) Create(c echo.Context) error {
	var org Organization
	if err := c.Bind(&org); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	created, err := h.svc.Create(c.Request().Context(), auth.CallerFrom(c), &org)
	if err != nil {
		return fhir.WriteError(c, "Organization", org.ID, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) Get(c echo.Context) error {
	id := c.Param("id")
	org, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return fhir.WriteError(c, "Organization", id, err)
	}
	return c.JSON(http.StatusOK, org)
}

func (h *Handler) Update(c echo.Context) error {
	id := c.Param("id")
	var org Organization
	if err := c.Bind(&org); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	updated, err := h.svc.Update(c.Request().Context(), auth.CallerFrom(c), id, &org)
	if err != nil {
		return fhir.WriteError(c, "Organization", id, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Search(c echo.Context) error {
	ctx := c.Request().Context()
	params := SearchParams{
		Type:       c.QueryParam("type"),
		Name:       c.QueryParam("name"),
		Identifier: c.QueryParam("identifier"),
	}
	orgs, err := h.svc.Search(ctx, params)
	if err != nil {
		return fhir.WriteError(c, "Organization", "", err)
	}

	resources := make([]interface{}, len(orgs))
	for i, o := range orgs {
		resources[i] = o
	}
	bundle := fhir.NewSearchBundle(resources, c.Request().URL.RequestURI())
	if h.includes != nil {
		query := c.QueryParams()
		bundle.AddIncludes(h.includes.Resolve(ctx, resources, query["_include"], query["_include:iterate"], nil))
	}
	return c.JSON(http.StatusOK, bundle)
}
