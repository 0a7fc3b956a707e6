package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"racecal-backend/internal/apperr"
	"racecal-backend/internal/auth"
	"racecal-backend/internal/engine"
	"racecal-backend/internal/filter"
	"racecal-backend/internal/logging"
)

type Handler struct {
	engine *engine.Engine
	log    *logging.Logger
}

func NewHandler(e *engine.Engine, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{engine: e, log: log.Component("api")}
}

type queryRequest struct {
	Filter filter.Expression `json:"filter"`
	Limit  int               `json:"limit"`
}

type mutationRequest struct {
	Filter    filter.Expression `json:"filter"`
	Operation engine.Operation  `json:"operation"`
}

func invalidPayload(err error) *apperr.AppError {
	return apperr.New("INVALID_PAYLOAD", fiber.StatusBadRequest, "Invalid JSON body: "+err.Error())
}

// parseBody decodes an optional JSON body. An empty body leaves v untouched.
func parseBody(c *fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(v); err != nil {
		return invalidPayload(err)
	}
	return nil
}

// Entities handles GET /api/_meta/entities
func (h *Handler) Entities(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.engine.DescribeEntities()})
}

// Query handles POST /api/:entity/query
func (h *Handler) Query(c *fiber.Ctx) error {
	var req queryRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	records, err := h.engine.Query(c.UserContext(), c.Params("entity"), req.Filter, req.Limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": records,
		"meta": fiber.Map{"count": len(records)},
	})
}

// Preview handles POST /api/:entity/bulk/preview
func (h *Handler) Preview(c *fiber.Ctx) error {
	var req mutationRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	preview, err := h.engine.Preview(c.UserContext(), c.Params("entity"), req.Filter, req.Operation)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": preview})
}

// Execute handles POST /api/:entity/bulk/execute
func (h *Handler) Execute(c *fiber.Ctx) error {
	var req mutationRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := h.engine.Execute(c.UserContext(), c.Params("entity"), req.Filter, req.Operation)
	return h.mutationResponse(c, res, err)
}

// Disconnect handles POST /api/:entity/bulk/disconnect
func (h *Handler) Disconnect(c *fiber.Ctx) error {
	var req mutationRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := h.engine.DisconnectRelation(c.UserContext(), c.Params("entity"), req.Filter, req.Operation)
	return h.mutationResponse(c, res, err)
}

// mutationResponse reports a rolled-back mutation together with its result.
func (h *Handler) mutationResponse(c *fiber.Ctx, res *engine.MutationResult, err error) error {
	if err == nil {
		return c.JSON(fiber.Map{"data": res})
	}
	var appErr *apperr.AppError
	if res != nil && errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(fiber.Map{"data": res, "error": appErr})
	}
	return err
}

func (h *Handler) parseBatch(c *fiber.Ctx) (*engine.ImportBatch, error) {
	if len(c.Body()) == 0 {
		return nil, apperr.InvalidBatch("request body must be an import batch")
	}
	var batch engine.ImportBatch
	if err := c.BodyParser(&batch); err != nil {
		return nil, apperr.InvalidBatch("malformed import batch: " + err.Error())
	}
	return &batch, nil
}

// Validate handles POST /api/:entity/import/validate
func (h *Handler) Validate(c *fiber.Ctx) error {
	batch, err := h.parseBatch(c)
	if err != nil {
		return err
	}
	report, err := h.engine.Validate(c.UserContext(), batch, c.Params("entity"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// Reconcile handles POST /api/:entity/import/reconcile?policy=&dry_run=&condition=
func (h *Handler) Reconcile(c *fiber.Ctx) error {
	policy, err := engine.ParseConflictResolution(c.Query("policy"))
	if err != nil {
		return err
	}
	dryRun := false
	if raw := c.Query("dry_run"); raw != "" {
		if dryRun, err = strconv.ParseBool(raw); err != nil {
			return apperr.InvalidBatch("dry_run must be true or false")
		}
	}
	batch, err := h.parseBatch(c)
	if err != nil {
		return err
	}

	opts := engine.ImportOptions{Condition: c.Query("condition")}
	if id := auth.GetIdentity(c); id != nil {
		opts.ActingIdentity = id.ID
	}
	res, err := h.engine.Reconcile(c.UserContext(), batch, c.Params("entity"), policy, dryRun, opts)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": res})
}

// Export handles POST /api/:entity/export
func (h *Handler) Export(c *fiber.Ctx) error {
	var req queryRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	batch, err := h.engine.Export(c.UserContext(), c.Params("entity"), req.Filter)
	if err != nil {
		return err
	}
	return c.JSON(batch)
}
