package handlers

import (
	"Pasarku-Backend/domain"
	"Pasarku-Backend/internal/api/presenters"
	"Pasarku-Backend/pkg/wallet"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type (
	WalletHandler interface {
		GetWallet(c *fiber.Ctx) error
		GetTransactionHistory(c *fiber.Ctx) error
		RedeemCoins(c *fiber.Ctx) error
		SpendReservedCoins(c *fiber.Ctx) error
		ReleaseReservedCoins(c *fiber.Ctx) error
		ProcessFirstPurchaseReward(c *fiber.Ctx) error
	}

	walletHandler struct {
		walletService wallet.WalletService
		validator     *validator.Validate
	}
)

func NewWalletHandler(walletService wallet.WalletService, validator *validator.Validate) WalletHandler {
	return &walletHandler{
		walletService: walletService,
		validator:     validator,
	}
}

func (h *walletHandler) GetWallet(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	resp, err := h.walletService.GetWallet(c.Context(), userID)
	if err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedGetWallet, err)
	}

	return presenters.SuccessResponse(c, resp, fiber.StatusOK, domain.MessageSuccessGetWallet)
}

func (h *walletHandler) GetTransactionHistory(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	page, err := strconv.Atoi(c.Query("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit < 1 {
		limit = 20
	}

	transactions, count, err := h.walletService.GetTransactionHistory(c.Context(), userID, page, limit)
	if err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedGetHistory, err)
	}

	return presenters.SuccessResponse(c, fiber.Map{
		"transactions": transactions,
		"pagination": fiber.Map{
			"page":        page,
			"limit":       limit,
			"total":       count,
			"total_pages": (count + int64(limit) - 1) / int64(limit),
		},
	}, fiber.StatusOK, domain.MessageSuccessGetHistory)
}

func (h *walletHandler) RedeemCoins(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	req := new(domain.RedeemCoinsRequest)
	if err := c.BodyParser(req); err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedBodyRequest, err)
	}

	if err := h.validator.Struct(req); err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedRedeemCoins, err)
	}

	resp, err := h.walletService.RedeemCoins(c.Context(), userID, req.Amount, req.OrderID)
	if err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedRedeemCoins, err)
	}

	return presenters.SuccessResponse(c, resp, fiber.StatusOK, domain.MessageSuccessRedeemCoins)
}

func (h *walletHandler) SpendReservedCoins(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	req := new(domain.SpendReservedRequest)
	if err := c.BodyParser(req); err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedBodyRequest, err)
	}

	if err := h.validator.Struct(req); err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedSpendCoins, err)
	}

	resp, err := h.walletService.SpendReservedCoins(c.Context(), userID, req.Amount, req.OrderID)
	if err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedSpendCoins, err)
	}

	return presenters.SuccessResponse(c, resp, fiber.StatusOK, domain.MessageSuccessSpendCoins)
}

func (h *walletHandler) ReleaseReservedCoins(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	req := new(domain.ReleaseReservedRequest)
	if err := c.BodyParser(req); err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedBodyRequest, err)
	}

	if err := h.validator.Struct(req); err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedReleaseCoins, err)
	}

	resp, err := h.walletService.ReleaseReservedCoins(c.Context(), userID, req.Amount, req.OrderID)
	if err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedReleaseCoins, err)
	}

	return presenters.SuccessResponse(c, resp, fiber.StatusOK, domain.MessageSuccessReleaseCoins)
}

func (h *walletHandler) ProcessFirstPurchaseReward(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	req := new(domain.FirstPurchaseRequest)
	if err := c.BodyParser(req); err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedBodyRequest, err)
	}

	if err := h.validator.Struct(req); err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedFirstPurchase, err)
	}

	resp, err := h.walletService.ProcessFirstPurchaseReward(c.Context(), userID, req.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrRewardAlreadyGranted) {
			return presenters.SuccessResponse(c, nil, fiber.StatusOK, domain.MessageRewardAlreadyGranted)
		}
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedFirstPurchase, err)
	}
	if resp == nil {
		return presenters.SuccessResponse(c, nil, fiber.StatusOK, domain.MessageRewardSkipped)
	}

	return presenters.SuccessResponse(c, resp, fiber.StatusOK, domain.MessageSuccessFirstPurchase)
}
