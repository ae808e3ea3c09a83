package handlers

import (
	"Pasarku-Backend/domain"
	"Pasarku-Backend/internal/api/presenters"
	"Pasarku-Backend/pkg/wallet"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type (
	WalletAdminHandler interface {
		GetSettings(c *fiber.Ctx) error
		UpdateSettings(c *fiber.Ctx) error
		AdjustCoins(c *fiber.Ctx) error
		PromoteCoins(c *fiber.Ctx) error
		ListWallets(c *fiber.Ctx) error
		ExpireCoins(c *fiber.Ctx) error
		Reconcile(c *fiber.Ctx) error
	}

	walletAdminHandler struct {
		walletService wallet.WalletService
		expiryService wallet.ExpiryService
		validator     *validator.Validate
	}
)

func NewWalletAdminHandler(walletService wallet.WalletService, expiryService wallet.ExpiryService, validator *validator.Validate) WalletAdminHandler {
	return &walletAdminHandler{
		walletService: walletService,
		expiryService: expiryService,
		validator:     validator,
	}
}

func (h *walletAdminHandler) GetSettings(c *fiber.Ctx) error {
	resp, err := h.walletService.GetSettings(c.Context())
	if err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedGetSettings, err)
	}

	return presenters.SuccessResponse(c, resp, fiber.StatusOK, domain.MessageSuccessGetSettings)
}

func (h *walletAdminHandler) UpdateSettings(c *fiber.Ctx) error {
	req := new(domain.UpdateWalletSettingsRequest)
	if err := c.BodyParser(req); err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedBodyRequest, err)
	}

	if err := h.validator.Struct(req); err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedUpdateSettings, err)
	}

	resp, err := h.walletService.UpdateSettings(c.Context(), *req)
	if err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedUpdateSettings, err)
	}

	return presenters.SuccessResponse(c, resp, fiber.StatusOK, domain.MessageSuccessUpdateSettings)
}

func (h *walletAdminHandler) AdjustCoins(c *fiber.Ctx) error {
	req := new(domain.AdjustCoinsRequest)
	if err := c.BodyParser(req); err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedBodyRequest, err)
	}

	if err := h.validator.Struct(req); err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedAdjustCoins, err)
	}

	resp, err := h.walletService.ManualAdjust(c.Context(), req.UserID, req.Amount, req.Description)
	if err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedAdjustCoins, err)
	}

	return presenters.SuccessResponse(c, resp, fiber.StatusOK, domain.MessageSuccessAdjustCoins)
}

func (h *walletAdminHandler) PromoteCoins(c *fiber.Ctx) error {
	req := new(domain.PromoteCoinsRequest)
	if err := c.BodyParser(req); err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedBodyRequest, err)
	}

	if err := h.validator.Struct(req); err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedPromoteCoins, err)
	}

	resp, err := h.walletService.PromoteCoins(c.Context(), req.UserID, req.Amount, req.Description)
	if err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedPromoteCoins, err)
	}

	return presenters.SuccessResponse(c, resp, fiber.StatusOK, domain.MessageSuccessPromoteCoins)
}

func (h *walletAdminHandler) ListWallets(c *fiber.Ctx) error {
	page, err := strconv.Atoi(c.Query("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit < 1 {
		limit = 20
	}

	wallets, count, err := h.walletService.ListWallets(c.Context(), page, limit)
	if err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedListWallets, err)
	}

	return presenters.SuccessResponse(c, fiber.Map{
		"wallets": wallets,
		"pagination": fiber.Map{
			"page":        page,
			"limit":       limit,
			"total":       count,
			"total_pages": (count + int64(limit) - 1) / int64(limit),
		},
	}, fiber.StatusOK, domain.MessageSuccessListWallets)
}

func (h *walletAdminHandler) ExpireCoins(c *fiber.Ctx) error {
	resp, err := h.expiryService.ProcessExpiredCoins(c.Context(), time.Now())
	if err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedExpireCoins, err)
	}

	return presenters.SuccessResponse(c, resp, fiber.StatusOK, domain.MessageSuccessExpireCoins)
}

func (h *walletAdminHandler) Reconcile(c *fiber.Ctx) error {
	report, err := h.expiryService.ReconcileAll(c.Context())
	if err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedReconcile, err)
	}

	return presenters.SuccessResponse(c, report, fiber.StatusOK, domain.MessageSuccessReconcile)
}
