package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"racecal-backend/internal/apperr"
	"racecal-backend/internal/instrument"
	"racecal-backend/internal/logging"
)

// RegisterRoutes mounts the engine operations under /api. Reads need an
// authenticated caller; writes additionally need the admin role.
func RegisterRoutes(app *fiber.App, h *Handler, authMW, adminMW fiber.Handler) {
	api := app.Group("/api", authMW)

	api.Get("/_meta/entities", h.Entities)
	api.Post("/:entity/query", h.Query)
	api.Post("/:entity/export", h.Export)
	api.Post("/:entity/bulk/preview", h.Preview)
	api.Post("/:entity/import/validate", h.Validate)

	api.Post("/:entity/bulk/execute", adminMW, h.Execute)
	api.Post("/:entity/bulk/disconnect", adminMW, h.Disconnect)
	api.Post("/:entity/import/reconcile", adminMW, h.Reconcile)
}

// Instrument makes inst available to every engine call of the request.
func Instrument(inst instrument.Instrumenter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.SetUserContext(instrument.WithInstrumenter(c.UserContext(), inst))
		return c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log *logging.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			var appErr *apperr.AppError
			if errors.As(err, &appErr) {
				status = appErr.Status
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		log.LogRequest(c.Method(), c.Path(), status, time.Since(start))
		return err
	}
}

// ErrorHandler renders AppErrors with their status and hides everything
// else behind a 500.
func ErrorHandler(log *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *apperr.AppError
		if errors.As(err, &appErr) {
			return c.Status(appErr.Status).JSON(apperr.ErrorResponse{Error: appErr})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(apperr.ErrorResponse{
				Error: apperr.New("HTTP_ERROR", fiberErr.Code, fiberErr.Message),
			})
		}

		log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
		return c.Status(fiber.StatusInternalServerError).JSON(apperr.ErrorResponse{
			Error: apperr.New("INTERNAL_ERROR", fiber.StatusInternalServerError, "Internal server error"),
		})
	}
}
