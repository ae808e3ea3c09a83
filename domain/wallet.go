package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	MessageSuccessGetWallet       = "wallet retrieved successfully"
	MessageSuccessGetHistory      = "wallet transaction history retrieved successfully"
	MessageSuccessRedeemCoins     = "coins redeemed successfully"
	MessageSuccessSpendCoins      = "reserved coins spent successfully"
	MessageSuccessReleaseCoins    = "reserved coins released successfully"
	MessageSuccessFirstPurchase   = "first purchase reward granted"
	MessageSuccessAdjustCoins     = "wallet adjusted successfully"
	MessageSuccessPromoteCoins    = "promotional coins granted successfully"
	MessageSuccessGetSettings     = "wallet settings retrieved successfully"
	MessageSuccessUpdateSettings  = "wallet settings updated successfully"
	MessageSuccessListWallets     = "wallets retrieved successfully"
	MessageSuccessExpireCoins     = "expired coins processed successfully"
	MessageSuccessReconcile       = "wallet reconciliation completed"
	MessageRewardAlreadyGranted   = "first purchase reward already granted"
	MessageRewardSkipped          = "first purchase reward not applicable"
	MessageFailedGetWallet        = "failed to retrieve wallet"
	MessageFailedGetHistory       = "failed to retrieve wallet transaction history"
	MessageFailedRedeemCoins      = "failed to redeem coins"
	MessageFailedSpendCoins       = "failed to spend reserved coins"
	MessageFailedReleaseCoins     = "failed to release reserved coins"
	MessageFailedFirstPurchase    = "failed to grant first purchase reward"
	MessageFailedAdjustCoins      = "failed to adjust wallet"
	MessageFailedPromoteCoins     = "failed to grant promotional coins"
	MessageFailedGetSettings      = "failed to retrieve wallet settings"
	MessageFailedUpdateSettings   = "failed to update wallet settings"
	MessageFailedListWallets      = "failed to retrieve wallets"
	MessageFailedExpireCoins      = "failed to process expired coins"
	MessageFailedReconcile        = "failed to reconcile wallets"

	ErrWalletNotFound       = errors.New("wallet not found")
	ErrWalletDisabled       = errors.New("coin wallet is disabled")
	ErrInsufficientBalance  = errors.New("insufficient coin balance")
	ErrInsufficientReserved = errors.New("insufficient reserved coins")
	ErrRedeemLimitExceeded  = errors.New("redeem amount exceeds the allowed limit")
	ErrInvalidAmount        = errors.New("invalid coin amount")
	ErrRewardAlreadyGranted = errors.New("first purchase reward already granted")
	ErrSettingsNotFound     = errors.New("wallet settings not found")
)

// WalletReference is the closed set of things a ledger row can point
// at. Construct one with the Ref* helpers so the id column's meaning
// stays fixed per kind.
type WalletReference struct {
	Type string
	ID   *uuid.UUID
}

func RefFirstPurchase(orderID uuid.UUID) WalletReference {
	return WalletReference{Type: "FIRST_PURCHASE", ID: &orderID}
}

func RefManualAdjustment() WalletReference {
	return WalletReference{Type: "MANUAL_ADJUSTMENT"}
}

func RefPromotion() WalletReference {
	return WalletReference{Type: "PROMOTION"}
}

func RefOrder(orderID uuid.UUID) WalletReference {
	return WalletReference{Type: "ORDER", ID: &orderID}
}

func RefExpired(creditTxID uuid.UUID) WalletReference {
	return WalletReference{Type: "EXPIRED", ID: &creditTxID}
}

type (
	WalletResponse struct {
		UserID           string `json:"user_id"`
		Balance          int    `json:"balance"`
		ReservedBalance  int    `json:"reserved_balance"`
		LifetimeEarned   int    `json:"lifetime_earned"`
		LifetimeRedeemed int    `json:"lifetime_redeemed"`
	}

	WalletTransactionResponse struct {
		ID              string     `json:"id"`
		Amount          int        `json:"amount"`
		TransactionType string     `json:"transaction_type"`
		ReferenceType   string     `json:"reference_type"`
		ReferenceID     *string    `json:"reference_id,omitempty"`
		Description     string     `json:"description"`
		ExpiresAt       *time.Time `json:"expires_at,omitempty"`
		CreatedAt       time.Time  `json:"created_at"`
	}

	RedeemCoinsRequest struct {
		Amount  int    `json:"amount" validate:"required,min=1"`
		OrderID string `json:"order_id" validate:"required,uuid"`
	}

	RedeemCoinsResponse struct {
		Wallet         WalletResponse `json:"wallet"`
		DiscountAmount float64        `json:"discount_amount"`
	}

	SpendReservedRequest struct {
		Amount  int    `json:"amount" validate:"required,min=1"`
		OrderID string `json:"order_id" validate:"required,uuid"`
	}

	ReleaseReservedRequest struct {
		Amount  int    `json:"amount" validate:"required,min=1"`
		OrderID string `json:"order_id" validate:"required,uuid"`
	}

	FirstPurchaseRequest struct {
		OrderID string `json:"order_id" validate:"required,uuid"`
	}

	AdjustCoinsRequest struct {
		UserID      string `json:"user_id" validate:"required,uuid"`
		Amount      int    `json:"amount" validate:"required"`
		Description string `json:"description" validate:"required"`
	}

	PromoteCoinsRequest struct {
		UserID      string `json:"user_id" validate:"required,uuid"`
		Amount      int    `json:"amount" validate:"required,min=1"`
		Description string `json:"description" validate:"required"`
	}

	WalletSettingsResponse struct {
		IsEnabled           bool    `json:"is_enabled"`
		CoinToCurrencyRatio float64 `json:"coin_to_currency_ratio"`
		MaxRedeemableCoins  int     `json:"max_redeemable_coins"`
		FirstPurchaseCoins  int     `json:"first_purchase_coins"`
		CoinExpiryDays      int     `json:"coin_expiry_days"`
	}

	// Pointer fields so a PATCH only touches what it carries.
	UpdateWalletSettingsRequest struct {
		IsEnabled           *bool    `json:"is_enabled,omitempty"`
		CoinToCurrencyRatio *float64 `json:"coin_to_currency_ratio,omitempty" validate:"omitempty,min=0"`
		MaxRedeemableCoins  *int     `json:"max_redeemable_coins,omitempty" validate:"omitempty,min=0"`
		FirstPurchaseCoins  *int     `json:"first_purchase_coins,omitempty" validate:"omitempty,min=0"`
		CoinExpiryDays      *int     `json:"coin_expiry_days,omitempty" validate:"omitempty,min=0"`
	}

	WalletSummary struct {
		UserID           string `json:"user_id"`
		Username         string `json:"username"`
		Balance          int    `json:"balance"`
		ReservedBalance  int    `json:"reserved_balance"`
		LifetimeEarned   int    `json:"lifetime_earned"`
		LifetimeRedeemed int    `json:"lifetime_redeemed"`
	}

	ExpireCoinsResponse struct {
		CoinsExpired   int `json:"coins_expired"`
		CreditsSwept   int `json:"credits_swept"`
		CreditsSkipped int `json:"credits_skipped"`
	}

	WalletDrift struct {
		UserID           string `json:"user_id"`
		RecordedBalance  int    `json:"recorded_balance"`
		ComputedBalance  int    `json:"computed_balance"`
		RecordedReserved int    `json:"recorded_reserved"`
		ComputedReserved int    `json:"computed_reserved"`
	}

	ReconciliationReport struct {
		CheckedAt      time.Time     `json:"checked_at"`
		WalletsChecked int           `json:"wallets_checked"`
		Drifts         []WalletDrift `json:"drifts"`
	}
)
