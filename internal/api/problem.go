package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	domainerr "github.com/habittks/habit-tks/internal/errors"
	"github.com/habittks/habit-tks/internal/requestid"
)

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}

func statusTitle(code int) string {
	if t := http.StatusText(code); t != "" {
		return t
	}
	return "Error"
}

func problemType(code int) string {
	switch code {
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return "invalid_body"
	case fiber.StatusTooManyRequests:
		return "rate_limit_exceeded"
	}
	return strings.ReplaceAll(strings.ToLower(statusTitle(code)), " ", "_")
}

// fail renders err as a problem response. Domain kinds map to 4xx codes;
// everything else is logged and reported as 500.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	var be *bindError
	if errors.As(err, &be) {
		return problemResponse(c, fiber.StatusBadRequest, be.kind, "Bad Request", be.detail)
	}

	switch domainerr.KindOf(err) {
	case domainerr.ErrNotFound:
		return problemResponse(c, fiber.StatusNotFound, "not_found", "Not Found", domainerr.Message(err))
	case domainerr.ErrAccessDenied:
		return problemResponse(c, fiber.StatusForbidden, "access_denied", "Forbidden", domainerr.Message(err))
	case domainerr.ErrInvalidOperation:
		return problemResponse(c, fiber.StatusConflict, "invalid_operation", "Conflict", domainerr.Message(err))
	case domainerr.ErrValidation:
		return problemResponse(c, fiber.StatusBadRequest, "validation_failed", "Bad Request", domainerr.Message(err))
	}

	s.metrics.RecordError("api", "internal")
	s.logger.Error().
		Err(err).
		Str("path", c.Path()).
		Str("method", c.Method()).
		Str("request_id", requestid.FromCtx(c)).
		Msg("unhandled error")

	detail := "An internal error occurred"
	if s.config.Development {
		detail = err.Error()
	}
	return problemResponse(c, fiber.StatusInternalServerError, "internal_error", "Internal Server Error", detail)
}
