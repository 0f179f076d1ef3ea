package consent

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
	r4.GET("/Consent", h.Search)
	r4.GET("/Consent/:id", h.Get)
	r4.POST("/Consent", h.Create)
	r4.PUT("/Consent/:id", h.Update)
}

func (h *Handler) Create(c echo.Context) error {
	var consent Consent
	if err := c.Bind(&consent); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	created, err := h.svc.Create(c.Request().Context(), auth.CallerFrom(c), &consent)
	if err != nil {
		return fhir.WriteError(c, "Consent", consent.ID, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) Get(c echo.Context) error {
	id := c.Param("id")
	consent, err := h.svc.Get(c.Request().Context(), auth.CallerFrom(c), id)
	if err != nil {
		return fhir.WriteError(c, "Consent", id, err)
	}
	return c.JSON(http.StatusOK, consent)
}

func (h *Handler) Update(c echo.Context) error {
	id := c.Param("id")
	var consent Consent
	if err := c.Bind(&consent); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	updated, err := h.svc.Update(c.Request().Context(), auth.CallerFrom(c), id, &consent)
	if err != nil {
		return fhir.WriteError(c, "Consent", id, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Search(c echo.Context) error {
	ctx := c.Request().Context()
	consents, err := h.svc.Search(ctx, auth.CallerFrom(c), SearchParams{
		ID:                c.QueryParam("_id"),
		Status:            c.QueryParam("status"),
		Patient:           c.QueryParam("patient"),
		PatientIdentifier: c.QueryParam("patient.identifier"),
		PCMService:        c.QueryParam("pcm-service"),
	})
	if err != nil {
		return fhir.WriteError(c, "Consent", "", err)
	}

	resources := make([]interface{}, len(consents))
	for i, cn := range consents {
		resources[i] = cn
	}
	bundle := fhir.NewSearchBundle(resources, c.Request().URL.RequestURI())
	if h.includes != nil {
		// Include expansion walks only from the caller's visible matches, so
		// a non-admin never sees organizations or endpoints that are not
		// reachable through a consent they are party to.
		query := c.QueryParams()
		bundle.AddIncludes(h.includes.Resolve(ctx, resources, query["_include"], query["_include:iterate"], nil))
	}
	return c.JSON(http.StatusOK, bundle)
}
