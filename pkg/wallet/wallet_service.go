package wallet

import (
	"Pasarku-Backend/domain"
	"Pasarku-Backend/entities"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderWalletWriter persists the decided discount onto the order record
// once reserved coins are spent. The checkout collaborator owns the
// order schema and supplies the implementation.
type OrderWalletWriter interface {
	RecordWalletUsage(ctx context.Context, orderID uuid.UUID, coinsUsed int, discount decimal.Decimal) error
}

type noopOrderWriter struct{}

func (noopOrderWriter) RecordWalletUsage(ctx context.Context, orderID uuid.UUID, coinsUsed int, discount decimal.Decimal) error {
	return nil
}

func NewNoopOrderWriter() OrderWalletWriter {
	return noopOrderWriter{}
}

type (
	WalletService interface {
		GetWallet(ctx context.Context, userID string) (*domain.WalletResponse, error)
		GetTransactionHistory(ctx context.Context, userID string, page, limit int) ([]*domain.WalletTransactionResponse, int64, error)

		AddCoins(ctx context.Context, userID string, amount int, reference domain.WalletReference, description string) (*domain.WalletResponse, error)
		ProcessFirstPurchaseReward(ctx context.Context, userID, orderID string) (*domain.WalletResponse, error)
		ManualAdjust(ctx context.Context, userID string, amount int, description string) (*domain.WalletResponse, error)
		PromoteCoins(ctx context.Context, userID string, amount int, description string) (*domain.WalletResponse, error)

		RedeemCoins(ctx context.Context, userID string, amount int, orderID string) (*domain.RedeemCoinsResponse, error)
		SpendReservedCoins(ctx context.Context, userID string, amount int, orderID string) (*domain.WalletResponse, error)
		ReleaseReservedCoins(ctx context.Context, userID string, amount int, orderID string) (*domain.WalletResponse, error)

		GetSettings(ctx context.Context) (*domain.WalletSettingsResponse, error)
		UpdateSettings(ctx context.Context, req domain.UpdateWalletSettingsRequest) (*domain.WalletSettingsResponse, error)
		ListWallets(ctx context.Context, page, limit int) ([]*domain.WalletSummary, int64, error)
	}

	walletService struct {
		walletRepository WalletRepository
		orderWriter      OrderWalletWriter
	}
)

func NewWalletService(walletRepository WalletRepository, orderWriter OrderWalletWriter) WalletService {
	if orderWriter == nil {
		orderWriter = noopOrderWriter{}
	}
	return &walletService{
		walletRepository: walletRepository,
		orderWriter:      orderWriter,
	}
}

func toWalletResponse(wallet *entities.Wallet) *domain.WalletResponse {
	return &domain.WalletResponse{
		UserID:           wallet.UserID.String(),
		Balance:          wallet.Balance,
		ReservedBalance:  wallet.ReservedBalance,
		LifetimeEarned:   wallet.LifetimeEarned,
		LifetimeRedeemed: wallet.LifetimeRedeemed,
	}
}

func (s *walletService) GetWallet(ctx context.Context, userID string) (*domain.WalletResponse, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, domain.ErrParseUUID
	}

	wallet, err := s.walletRepository.GetWalletByUserID(ctx, uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No credit has ever been issued; present the empty wallet.
			return &domain.WalletResponse{UserID: userID}, nil
		}
		return nil, err
	}
	return toWalletResponse(wallet), nil
}

func (s *walletService) GetTransactionHistory(ctx context.Context, userID string, page, limit int) ([]*domain.WalletTransactionResponse, int64, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, 0, domain.ErrParseUUID
	}

	wallet, err := s.walletRepository.GetWalletByUserID(ctx, uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []*domain.WalletTransactionResponse{}, 0, nil
		}
		return nil, 0, err
	}

	transactions, count, err := s.walletRepository.GetTransactions(ctx, wallet.ID, page, limit)
	if err != nil {
		return nil, 0, err
	}

	result := make([]*domain.WalletTransactionResponse, 0, len(transactions))
	for _, tx := range transactions {
		var refID *string
		if tx.ReferenceID != nil {
			id := tx.ReferenceID.String()
			refID = &id
		}
		result = append(result, &domain.WalletTransactionResponse{
			ID:              tx.ID.String(),
			Amount:          tx.Amount,
			TransactionType: tx.TransactionType,
			ReferenceType:   tx.ReferenceType,
			ReferenceID:     refID,
			Description:     tx.Description,
			ExpiresAt:       tx.ExpiresAt,
			CreatedAt:       tx.CreatedAt,
		})
	}

	return result, count, nil
}

// creditExpiry computes the expiry timestamp for a freshly issued
// credit, or nil when expiry is disabled.
func creditExpiry(settings *entities.WalletSettings, now time.Time) *time.Time {
	if settings == nil || settings.CoinExpiryDays <= 0 {
		return nil
	}
	expiresAt := now.AddDate(0, 0, settings.CoinExpiryDays)
	return &expiresAt
}

func (s *walletService) settings(ctx context.Context) (*entities.WalletSettings, error) {
	settings, err := s.walletRepository.GetSettings(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return settings, nil
}

func (s *walletService) AddCoins(ctx context.Context, userID string, amount int, reference domain.WalletReference, description string) (*domain.WalletResponse, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, domain.ErrParseUUID
	}

	settings, err := s.settings(ctx)
	if err != nil {
		return nil, err
	}

	wallet, err := s.walletRepository.GetOrCreateWallet(ctx, uid)
	if err != nil {
		return nil, err
	}

	updated, err := s.walletRepository.ApplyLedgerEntry(ctx, wallet.ID, LedgerEntry{
		Amount:      amount,
		Type:        entities.TransactionTypeCredit,
		Reference:   reference,
		Description: description,
		ExpiresAt:   creditExpiry(settings, time.Now()),
	})
	if err != nil {
		return nil, err
	}
	return toWalletResponse(updated), nil
}

// ProcessFirstPurchaseReward grants the one-time bonus for a completed
// first order. Returns (nil, nil) when the feature is disabled and
// ErrRewardAlreadyGranted when the bonus was already issued; the
// partial unique index on FIRST_PURCHASE rows makes the grant
// exactly-once even when completion events race.
func (s *walletService) ProcessFirstPurchaseReward(ctx context.Context, userID, orderID string) (*domain.WalletResponse, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, domain.ErrParseUUID
	}
	oid, err := uuid.Parse(orderID)
	if err != nil {
		return nil, domain.ErrParseUUID
	}

	settings, err := s.settings(ctx)
	if err != nil {
		return nil, err
	}
	if settings == nil || !settings.IsEnabled || settings.FirstPurchaseCoins <= 0 {
		return nil, nil
	}

	wallet, err := s.walletRepository.GetOrCreateWallet(ctx, uid)
	if err != nil {
		return nil, err
	}

	granted, err := s.walletRepository.HasFirstPurchaseReward(ctx, wallet.ID)
	if err != nil {
		return nil, err
	}
	if granted {
		return nil, domain.ErrRewardAlreadyGranted
	}

	updated, err := s.walletRepository.ApplyLedgerEntry(ctx, wallet.ID, LedgerEntry{
		Amount:      settings.FirstPurchaseCoins,
		Type:        entities.TransactionTypeCredit,
		Reference:   domain.RefFirstPurchase(oid),
		Description: fmt.Sprintf("First purchase reward of %d coins", settings.FirstPurchaseCoins),
		ExpiresAt:   creditExpiry(settings, time.Now()),
	})
	if err != nil {
		return nil, err
	}
	return toWalletResponse(updated), nil
}

func (s *walletService) ManualAdjust(ctx context.Context, userID string, amount int, description string) (*domain.WalletResponse, error) {
	if amount == 0 {
		return nil, domain.ErrInvalidAmount
	}
	if amount > 0 {
		return s.AddCoins(ctx, userID, amount, domain.RefManualAdjustment(), description)
	}

	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, domain.ErrParseUUID
	}
	wallet, err := s.walletRepository.GetWalletByUserID(ctx, uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, err
	}

	updated, err := s.walletRepository.ApplyLedgerEntry(ctx, wallet.ID, LedgerEntry{
		Amount:      amount,
		Type:        entities.TransactionTypeDebit,
		Reference:   domain.RefManualAdjustment(),
		Description: description,
	})
	if err != nil {
		return nil, err
	}
	return toWalletResponse(updated), nil
}

func (s *walletService) PromoteCoins(ctx context.Context, userID string, amount int, description string) (*domain.WalletResponse, error) {
	return s.AddCoins(ctx, userID, amount, domain.RefPromotion(), description)
}

// RedeemCoins is the reserve step of checkout redemption: coins leave
// the spendable balance immediately and wait in the reserved pool until
// the order is finalized (SpendReservedCoins) or abandoned
// (ReleaseReservedCoins). The returned discount is what the caller
// subtracts from the order total.
func (s *walletService) RedeemCoins(ctx context.Context, userID string, amount int, orderID string) (*domain.RedeemCoinsResponse, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, domain.ErrParseUUID
	}
	oid, err := uuid.Parse(orderID)
	if err != nil {
		return nil, domain.ErrParseUUID
	}

	settings, err := s.settings(ctx)
	if err != nil {
		return nil, err
	}
	if settings == nil || !settings.IsEnabled {
		return nil, domain.ErrWalletDisabled
	}
	if amount > settings.MaxRedeemableCoins {
		return nil, domain.ErrRedeemLimitExceeded
	}

	wallet, err := s.walletRepository.GetWalletByUserID(ctx, uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, err
	}

	// The discount is decided here, once, and stored on the RESERVED
	// row; later ratio changes never touch an in-flight redemption.
	discount := settings.CoinToCurrencyRatio.Mul(decimal.NewFromInt(int64(amount))).Round(2)

	updated, err := s.walletRepository.ApplyLedgerEntry(ctx, wallet.ID, LedgerEntry{
		Amount:      -amount,
		Type:        entities.TransactionTypeReserved,
		Reference:   domain.RefOrder(oid),
		Description: fmt.Sprintf("Reserved %d coins for order %s", amount, orderID),
		Discount:    discount,
	})
	if err != nil {
		return nil, err
	}

	return &domain.RedeemCoinsResponse{
		Wallet:         *toWalletResponse(updated),
		DiscountAmount: discount.InexactFloat64(),
	}, nil
}

// SpendReservedCoins finalizes a prior redemption once the order is
// durably placed. It drains the reserved pool only; the spendable
// balance was already charged by RedeemCoins. The discount written to
// the order is the one decided at redemption, read back from the
// order's RESERVED rows and prorated over the coins actually spent.
func (s *walletService) SpendReservedCoins(ctx context.Context, userID string, amount int, orderID string) (*domain.WalletResponse, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, domain.ErrParseUUID
	}
	oid, err := uuid.Parse(orderID)
	if err != nil {
		return nil, domain.ErrParseUUID
	}

	wallet, err := s.walletRepository.GetWalletByUserID(ctx, uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, err
	}

	reservedCoins, reservedDiscount, err := s.walletRepository.SumOrderReservations(ctx, wallet.ID, oid)
	if err != nil {
		return nil, err
	}
	if reservedCoins < amount {
		return nil, domain.ErrInsufficientReserved
	}
	discount := reservedDiscount.
		Mul(decimal.NewFromInt(int64(amount))).
		Div(decimal.NewFromInt(int64(reservedCoins))).
		Round(2)

	updated, err := s.walletRepository.ApplyLedgerEntry(ctx, wallet.ID, LedgerEntry{
		Amount:      -amount,
		Type:        entities.TransactionTypeSpent,
		Reference:   domain.RefOrder(oid),
		Description: fmt.Sprintf("Spent %d reserved coins on order %s", amount, orderID),
		Discount:    discount,
	})
	if err != nil {
		return nil, err
	}

	if err := s.orderWriter.RecordWalletUsage(ctx, oid, amount, discount); err != nil {
		return nil, err
	}

	return toWalletResponse(updated), nil
}

// ReleaseReservedCoins returns reserved coins to the spendable balance
// after an abandoned checkout. Lifetime counters are untouched.
func (s *walletService) ReleaseReservedCoins(ctx context.Context, userID string, amount int, orderID string) (*domain.WalletResponse, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, domain.ErrParseUUID
	}
	oid, err := uuid.Parse(orderID)
	if err != nil {
		return nil, domain.ErrParseUUID
	}

	wallet, err := s.walletRepository.GetWalletByUserID(ctx, uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, err
	}

	updated, err := s.walletRepository.ApplyLedgerEntry(ctx, wallet.ID, LedgerEntry{
		Amount:      amount,
		Type:        entities.TransactionTypeReleased,
		Reference:   domain.RefOrder(oid),
		Description: fmt.Sprintf("Released %d reserved coins from order %s", amount, orderID),
	})
	if err != nil {
		return nil, err
	}
	return toWalletResponse(updated), nil
}

func toSettingsResponse(settings *entities.WalletSettings) *domain.WalletSettingsResponse {
	return &domain.WalletSettingsResponse{
		IsEnabled:           settings.IsEnabled,
		CoinToCurrencyRatio: settings.CoinToCurrencyRatio.InexactFloat64(),
		MaxRedeemableCoins:  settings.MaxRedeemableCoins,
		FirstPurchaseCoins:  settings.FirstPurchaseCoins,
		CoinExpiryDays:      settings.CoinExpiryDays,
	}
}

func (s *walletService) GetSettings(ctx context.Context) (*domain.WalletSettingsResponse, error) {
	settings, err := s.walletRepository.GetSettings(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSettingsNotFound
		}
		return nil, err
	}
	return toSettingsResponse(settings), nil
}

func (s *walletService) UpdateSettings(ctx context.Context, req domain.UpdateWalletSettingsRequest) (*domain.WalletSettingsResponse, error) {
	if req.CoinToCurrencyRatio != nil && *req.CoinToCurrencyRatio < 0 {
		return nil, domain.ErrInvalidAmount
	}
	settings, err := s.walletRepository.UpdateSettings(ctx, req)
	if err != nil {
		return nil, err
	}
	return toSettingsResponse(settings), nil
}

func (s *walletService) ListWallets(ctx context.Context, page, limit int) ([]*domain.WalletSummary, int64, error) {
	return s.walletRepository.ListWalletSummaries(ctx, page, limit)
}
