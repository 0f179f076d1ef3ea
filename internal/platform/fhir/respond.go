package fhir

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// WriteError maps a domain error to the FHIR error surface: forbidden -> 403,
// not found -> 404, conflict -> 409, anything else -> 400.
func WriteError(c echo.Context, resourceType, id string, err error) error {
	switch {
	case errors.Is(err, ErrForbidden):
		return c.JSON(http.StatusForbidden, ForbiddenOutcome(err.Error()))
	case errors.Is(err, ErrNotFound):
		return c.JSON(http.StatusNotFound, NotFoundOutcome(resourceType, id))
	case errors.Is(err, ErrConflict):
		return c.JSON(http.StatusConflict, NewOperationOutcome(IssueSeverityError, IssueTypeConflict, err.Error()))
	default:
		return c.JSON(http.StatusBadRequest, ErrorOutcome(err.Error()))
	}
}
