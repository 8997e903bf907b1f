package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/carwash-scan-terminal/internal/model"
	"github.com/fairyhunter13/carwash-scan-terminal/internal/service"
)

// HeaderMerchantID selects the merchant a terminal request is made for.
const HeaderMerchantID = "X-Merchant-ID"

// TerminalServiceInterface defines the interface for scan terminal business logic.
type TerminalServiceInterface interface {
	Scan(ctx context.Context, terminalID, merchantID, code string) (*model.SessionSnapshot, error)
	ConfirmWash(ctx context.Context, terminalID, merchantID string, details model.WashSubmission) (*model.SessionSnapshot, error)
	CancelWash(terminalID, merchantID string) (*model.SessionSnapshot, error)
	RedeemReward(ctx context.Context, terminalID, merchantID string) (*model.SessionSnapshot, error)
	Reset(terminalID, merchantID string) (*model.SessionSnapshot, error)
	Snapshot(terminalID, merchantID string) *model.SessionSnapshot
}

// TerminalHandler handles HTTP requests from scan terminals.
type TerminalHandler struct {
	service         TerminalServiceInterface
	validator       *validator.Validate
	defaultMerchant string
}

// NewTerminalHandler creates a new TerminalHandler. defaultMerchant is used
// when a request carries no X-Merchant-ID header.
func NewTerminalHandler(svc TerminalServiceInterface, v *validator.Validate, defaultMerchant string) *TerminalHandler {
	return &TerminalHandler{service: svc, validator: v, defaultMerchant: defaultMerchant}
}

// Register mounts the terminal routes on router.
func (h *TerminalHandler) Register(router fiber.Router) {
	terminals := router.Group("/terminals/:terminal")
	terminals.Get("/session", h.GetSession)
	terminals.Delete("/session", h.ResetSession)
	terminals.Post("/scan", h.Scan)
	terminals.Post("/wash", h.ConfirmWash)
	terminals.Delete("/wash", h.CancelWash)
	terminals.Post("/reward/redeem", h.RedeemReward)
}

// formatValidationError converts validator errors to operator-facing messages.
func formatValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			field := fe.Field()
			tag := fe.Tag()

			switch field {
			case "ServiceName":
				if tag == "required" || tag == "notblank" {
					return "invalid request: service name is required"
				}
				if tag == "max" {
					return "invalid request: service name exceeds maximum length of 255"
				}
				return "invalid request: service name is invalid"
			case "Price":
				if tag == "gte" {
					return "invalid request: price cannot be negative"
				}
				return "invalid request: price is invalid"
			case "CarPlateNumber":
				return "invalid request: car plate number exceeds maximum length of 32"
			case "Notes":
				return "invalid request: notes exceed maximum length of 1000"
			case "Code":
				return "invalid request: code exceeds maximum length of 512"
			default:
				return "invalid request: " + field + " is invalid"
			}
		}
	}
	return "invalid request"
}

// GetSession handles GET /api/terminals/:terminal/session.
func (h *TerminalHandler) GetSession(c *fiber.Ctx) error {
	terminalID, merchantID, ok := h.identify(c)
	if !ok {
		return nil
	}
	return c.JSON(h.service.Snapshot(terminalID, merchantID))
}

// Scan handles POST /api/terminals/:terminal/scan. Every processed scan
// answers 200 with the result card, including invalid and error variants.
func (h *TerminalHandler) Scan(c *fiber.Ctx) error {
	terminalID, merchantID, ok := h.identify(c)
	if !ok {
		return nil
	}

	var req model.ScanRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	snap, err := h.service.Scan(c.UserContext(), terminalID, merchantID, req.Code)
	if err != nil {
		return h.sessionError(c, "scan", snap, err)
	}
	return c.JSON(snap)
}

// ConfirmWash handles POST /api/terminals/:terminal/wash.
func (h *TerminalHandler) ConfirmWash(c *fiber.Ctx) error {
	terminalID, merchantID, ok := h.identify(c)
	if !ok {
		return nil
	}

	// Details are validated by the session after its state checks, so a
	// rejected form is kept on the terminal
	var req model.WashSubmission
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	snap, err := h.service.ConfirmWash(c.UserContext(), terminalID, merchantID, req)
	if err != nil {
		return h.sessionError(c, "confirm_wash", snap, err)
	}

	log.Info().
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Str("terminal_id", terminalID).
		Str("merchant_id", merchantID).
		Msg("wash confirmed")

	return c.JSON(snap)
}

// CancelWash handles DELETE /api/terminals/:terminal/wash.
func (h *TerminalHandler) CancelWash(c *fiber.Ctx) error {
	terminalID, merchantID, ok := h.identify(c)
	if !ok {
		return nil
	}
	snap, err := h.service.CancelWash(terminalID, merchantID)
	if err != nil {
		return h.sessionError(c, "cancel_wash", snap, err)
	}
	return c.JSON(snap)
}

// RedeemReward handles POST /api/terminals/:terminal/reward/redeem.
func (h *TerminalHandler) RedeemReward(c *fiber.Ctx) error {
	terminalID, merchantID, ok := h.identify(c)
	if !ok {
		return nil
	}
	snap, err := h.service.RedeemReward(c.UserContext(), terminalID, merchantID)
	if err != nil {
		return h.sessionError(c, "redeem_reward", snap, err)
	}
	return c.JSON(snap)
}

// ResetSession handles DELETE /api/terminals/:terminal/session.
func (h *TerminalHandler) ResetSession(c *fiber.Ctx) error {
	terminalID, merchantID, ok := h.identify(c)
	if !ok {
		return nil
	}
	snap, err := h.service.Reset(terminalID, merchantID)
	if err != nil {
		return h.sessionError(c, "reset", snap, err)
	}
	return c.JSON(snap)
}

// identify reads the terminal and merchant ids, writing a 400 response and
// returning false when either is missing.
func (h *TerminalHandler) identify(c *fiber.Ctx) (string, string, bool) {
	terminalID := strings.TrimSpace(c.Params("terminal"))
	if terminalID == "" {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: terminal is required"})
		return "", "", false
	}

	merchantID := strings.TrimSpace(c.Get(HeaderMerchantID))
	if merchantID == "" {
		merchantID = h.defaultMerchant
	}
	if merchantID == "" {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: merchant id is required"})
		return "", "", false
	}
	return terminalID, merchantID, true
}

// sessionError maps service errors to HTTP responses carrying the session
// snapshot, so the terminal can redraw after a rejected action.
func (h *TerminalHandler) sessionError(c *fiber.Ctx, op string, snap *model.SessionSnapshot, err error) error {
	status := fiber.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, service.ErrSessionBusy):
		status, message = fiber.StatusConflict, "scan session busy"
	case errors.Is(err, service.ErrNoCustomerResult):
		status, message = fiber.StatusConflict, "no customer scanned"
	case errors.Is(err, service.ErrWashNotAllowed):
		status, message = fiber.StatusConflict, "wash already recorded today"
	case errors.Is(err, service.ErrNoRewardResult):
		status, message = fiber.StatusConflict, "no reward scanned"
	case errors.Is(err, service.ErrRewardNotRedeemable):
		status, message = fiber.StatusConflict, "reward cannot be redeemed"
	case errors.Is(err, service.ErrInvalidWash):
		status, message = fiber.StatusBadRequest, formatValidationError(err)
	case errors.Is(err, service.ErrWashFailed), errors.Is(err, service.ErrRedeemFailed):
		status = fiber.StatusBadGateway
		message = "loyalty platform rejected the request"
		if snap != nil && snap.LastError != "" {
			message = snap.LastError
		}
	}

	event := log.Warn()
	if status >= fiber.StatusInternalServerError {
		event = log.Error()
	}
	event.
		Err(err).
		Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Str("operation", op).
		Int("status", status).
		Msg("terminal request failed")

	body := fiber.Map{"error": message}
	if snap != nil {
		body["session"] = snap
	}
	return c.Status(status).JSON(body)
}
