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
	"gorm.io/gorm/clause"
)

// ErrAlreadyReversed is returned when an EXPIRED row already references
// the credit being reversed. The sweep treats it as "done, skip".
var ErrAlreadyReversed = errors.New("credit transaction already reversed")

// LedgerEntry is the single input shape for every balance mutation.
type LedgerEntry struct {
	Amount      int
	Type        string
	Reference   domain.WalletReference
	Description string
	ExpiresAt   *time.Time
	Discount    decimal.Decimal
}

type (
	WalletRepository interface {
		GetWalletByUserID(ctx context.Context, userID uuid.UUID) (*entities.Wallet, error)
		GetWalletByID(ctx context.Context, walletID uuid.UUID) (*entities.Wallet, error)
		GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*entities.Wallet, error)
		ApplyLedgerEntry(ctx context.Context, walletID uuid.UUID, entry LedgerEntry) (*entities.Wallet, error)
		ReverseExpiredCredit(ctx context.Context, credit *entities.WalletTransaction) (*entities.Wallet, bool, error)
		GetTransactions(ctx context.Context, walletID uuid.UUID, page, limit int) ([]*entities.WalletTransaction, int64, error)
		HasFirstPurchaseReward(ctx context.Context, walletID uuid.UUID) (bool, error)
		GetExpiredCredits(ctx context.Context, asOf time.Time) ([]*entities.WalletTransaction, error)
		SumOrderReservations(ctx context.Context, walletID, orderID uuid.UUID) (int, decimal.Decimal, error)
		SumTransactionAmounts(ctx context.Context, walletID uuid.UUID, types []string) (int, error)
		ListWalletSummaries(ctx context.Context, page, limit int) ([]*domain.WalletSummary, int64, error)
		ListWallets(ctx context.Context, offset, limit int) ([]*entities.Wallet, error)

		GetSettings(ctx context.Context) (*entities.WalletSettings, error)
		UpdateSettings(ctx context.Context, req domain.UpdateWalletSettingsRequest) (*entities.WalletSettings, error)
	}

	walletRepository struct {
		db *gorm.DB
	}
)

func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepository{
		db: db,
	}
}

func (r *walletRepository) GetWalletByUserID(ctx context.Context, userID uuid.UUID) (*entities.Wallet, error) {
	var wallet entities.Wallet
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *walletRepository) GetWalletByID(ctx context.Context, walletID uuid.UUID) (*entities.Wallet, error) {
	var wallet entities.Wallet
	if err := r.db.WithContext(ctx).
		Where("id = ?", walletID).
		First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// GetOrCreateWallet inserts a zero wallet unless one exists, riding the
// user_id unique index so concurrent first calls cannot create
// duplicates. The loser of the race reads the winner's row.
func (r *walletRepository) GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*entities.Wallet, error) {
	wallet := &entities.Wallet{
		ID:     uuid.New(),
		UserID: userID,
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(wallet).Error; err != nil {
		return nil, err
	}
	return r.GetWalletByUserID(ctx, userID)
}

// poolMove describes how a transaction type maps onto the wallet's
// counters: the column expressions to apply and the guard that must
// hold for the move to be legal.
type poolMove struct {
	updates   map[string]interface{}
	guard     string
	guardArgs []interface{}
	guardErr  error
}

func moveForEntry(entry LedgerEntry) (*poolMove, error) {
	amount := entry.Amount
	switch entry.Type {
	case entities.TransactionTypeCredit:
		if amount <= 0 {
			return nil, domain.ErrInvalidAmount
		}
		return &poolMove{
			updates: map[string]interface{}{
				"balance":         gorm.Expr("balance + ?", amount),
				"lifetime_earned": gorm.Expr("lifetime_earned + ?", amount),
			},
		}, nil
	case entities.TransactionTypeDebit:
		if amount >= 0 {
			return nil, domain.ErrInvalidAmount
		}
		return &poolMove{
			updates: map[string]interface{}{
				"balance": gorm.Expr("balance + ?", amount),
			},
			guard:     "balance + ? >= 0",
			guardArgs: []interface{}{amount},
			guardErr:  domain.ErrInsufficientBalance,
		}, nil
	case entities.TransactionTypeReserved:
		if amount >= 0 {
			return nil, domain.ErrInvalidAmount
		}
		return &poolMove{
			updates: map[string]interface{}{
				"balance":          gorm.Expr("balance + ?", amount),
				"reserved_balance": gorm.Expr("reserved_balance - ?", amount),
			},
			guard:     "balance + ? >= 0",
			guardArgs: []interface{}{amount},
			guardErr:  domain.ErrInsufficientBalance,
		}, nil
	case entities.TransactionTypeSpent:
		if amount >= 0 {
			return nil, domain.ErrInvalidAmount
		}
		return &poolMove{
			updates: map[string]interface{}{
				"reserved_balance":  gorm.Expr("reserved_balance + ?", amount),
				"lifetime_redeemed": gorm.Expr("lifetime_redeemed - ?", amount),
			},
			guard:     "reserved_balance + ? >= 0",
			guardArgs: []interface{}{amount},
			guardErr:  domain.ErrInsufficientReserved,
		}, nil
	case entities.TransactionTypeReleased:
		if amount <= 0 {
			return nil, domain.ErrInvalidAmount
		}
		return &poolMove{
			updates: map[string]interface{}{
				"balance":          gorm.Expr("balance + ?", amount),
				"reserved_balance": gorm.Expr("reserved_balance - ?", amount),
			},
			guard:     "reserved_balance - ? >= 0",
			guardArgs: []interface{}{amount},
			guardErr:  domain.ErrInsufficientReserved,
		}, nil
	default:
		// EXPIRED rows only flow through ReverseExpiredCredit, which
		// owns the clamp.
		return nil, domain.ErrInvalidAmount
	}
}

// insertLedgerRow appends the transaction row for an entry, mapping
// unique-index collisions onto the sentinel for the reference kind.
func (r *walletRepository) insertLedgerRow(tx *gorm.DB, walletID uuid.UUID, entry LedgerEntry) error {
	row := &entities.WalletTransaction{
		ID:              uuid.New(),
		WalletID:        walletID,
		Amount:          entry.Amount,
		TransactionType: entry.Type,
		ReferenceType:   entry.Reference.Type,
		ReferenceID:     entry.Reference.ID,
		Description:     entry.Description,
		ExpiresAt:       entry.ExpiresAt,
		Discount:        entry.Discount,
	}
	if err := tx.Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			switch entry.Reference.Type {
			case entities.ReferenceFirstPurchase:
				return domain.ErrRewardAlreadyGranted
			case entities.ReferenceExpired:
				return ErrAlreadyReversed
			}
		}
		return err
	}
	return nil
}

// ApplyLedgerEntry is the single choke point for balance mutation: the
// transaction row insert and the wallet counter move commit or roll
// back together. The counter move is a guarded UPDATE whose WHERE
// clause re-checks the balance precondition, so concurrent mutations
// against the same wallet serialize on the row and a stale read can
// never drive a pool negative.
func (r *walletRepository) ApplyLedgerEntry(ctx context.Context, walletID uuid.UUID, entry LedgerEntry) (*entities.Wallet, error) {
	move, err := moveForEntry(entry)
	if err != nil {
		return nil, err
	}

	var wallet entities.Wallet
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", walletID).First(&wallet).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrWalletNotFound
			}
			return err
		}

		update := tx.Model(&entities.Wallet{}).Where("id = ?", walletID)
		if move.guard != "" {
			update = update.Where(move.guard, move.guardArgs...)
		}
		res := update.Updates(move.updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// The wallet exists; the guard rejected the move.
			return move.guardErr
		}

		if err := r.insertLedgerRow(tx, walletID, entry); err != nil {
			return err
		}

		return tx.Where("id = ?", walletID).First(&wallet).Error
	})
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// ReverseExpiredCredit applies the EXPIRED reversal for a credit row
// and reports whether the spendable balance had to be clamped at zero.
// The plain guarded subtraction is attempted first; only when the
// guard itself observes the shortfall does the clamped update run, so
// the clamp signal comes from the atomic move, not a prior read.
func (r *walletRepository) ReverseExpiredCredit(ctx context.Context, credit *entities.WalletTransaction) (*entities.Wallet, bool, error) {
	if credit.Amount <= 0 {
		return nil, false, domain.ErrInvalidAmount
	}

	var wallet entities.Wallet
	clamped := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", credit.WalletID).First(&wallet).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrWalletNotFound
			}
			return err
		}

		res := tx.Model(&entities.Wallet{}).
			Where("id = ? AND balance - ? >= 0", credit.WalletID, credit.Amount).
			Update("balance", gorm.Expr("balance - ?", credit.Amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			clamped = true
			if err := tx.Model(&entities.Wallet{}).
				Where("id = ?", credit.WalletID).
				Update("balance", gorm.Expr("CASE WHEN balance - ? >= 0 THEN balance - ? ELSE 0 END", credit.Amount, credit.Amount)).Error; err != nil {
				return err
			}
		}

		entry := LedgerEntry{
			Amount:      -credit.Amount,
			Type:        entities.TransactionTypeExpired,
			Reference:   domain.RefExpired(credit.ID),
			Description: fmt.Sprintf("Expired %d coins credited on %s", credit.Amount, credit.CreatedAt.Format("2006-01-02")),
		}
		if err := r.insertLedgerRow(tx, credit.WalletID, entry); err != nil {
			return err
		}

		return tx.Where("id = ?", credit.WalletID).First(&wallet).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &wallet, clamped, nil
}

// GetTransactions pages the history newest first, id as tiebreak so
// rows sharing a timestamp keep a stable order. Count and page come
// from the same transaction.
func (r *walletRepository) GetTransactions(ctx context.Context, walletID uuid.UUID, page, limit int) ([]*entities.WalletTransaction, int64, error) {
	var transactions []*entities.WalletTransaction
	var count int64
	offset := (page - 1) * limit

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entities.WalletTransaction{}).
			Where("wallet_id = ?", walletID).
			Count(&count).Error; err != nil {
			return err
		}

		return tx.Where("wallet_id = ?", walletID).
			Order("created_at DESC, id DESC").
			Offset(offset).
			Limit(limit).
			Find(&transactions).Error
	})
	if err != nil {
		return nil, 0, err
	}

	return transactions, count, nil
}

func (r *walletRepository) HasFirstPurchaseReward(ctx context.Context, walletID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&entities.WalletTransaction{}).
		Where("wallet_id = ? AND reference_type = ?", walletID, entities.ReferenceFirstPurchase).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetExpiredCredits returns CREDIT rows past their expiry that no
// EXPIRED row references yet. Exclusion is an anti-join over the log
// itself, so the sweep stays append-only and naturally idempotent.
func (r *walletRepository) GetExpiredCredits(ctx context.Context, asOf time.Time) ([]*entities.WalletTransaction, error) {
	var credits []*entities.WalletTransaction
	if err := r.db.WithContext(ctx).
		Where("transaction_type = ?", entities.TransactionTypeCredit).
		Where("expires_at IS NOT NULL AND expires_at <= ?", asOf).
		Where("NOT EXISTS (SELECT 1 FROM wallet_transactions reversals WHERE reversals.transaction_type = ? AND reversals.reference_id = wallet_transactions.id)",
			entities.TransactionTypeExpired).
		Order("expires_at ASC").
		Find(&credits).Error; err != nil {
		return nil, err
	}
	return credits, nil
}

// SumOrderReservations totals the coins and the decided discount
// reserved against one order, so spending settles at the rate fixed at
// redemption time.
func (r *walletRepository) SumOrderReservations(ctx context.Context, walletID, orderID uuid.UUID) (int, decimal.Decimal, error) {
	var result struct {
		Coins    int
		Discount decimal.Decimal
	}
	if err := r.db.WithContext(ctx).
		Model(&entities.WalletTransaction{}).
		Where("wallet_id = ? AND transaction_type = ? AND reference_id = ?",
			walletID, entities.TransactionTypeReserved, orderID).
		Select("COALESCE(SUM(-amount), 0) as coins, COALESCE(SUM(discount), 0) as discount").
		Scan(&result).Error; err != nil {
		return 0, decimal.Zero, err
	}
	return result.Coins, result.Discount, nil
}

func (r *walletRepository) SumTransactionAmounts(ctx context.Context, walletID uuid.UUID, types []string) (int, error) {
	var total int
	query := r.db.WithContext(ctx).
		Model(&entities.WalletTransaction{}).
		Where("wallet_id = ? AND transaction_type IN ?", walletID, types).
		Select("COALESCE(SUM(amount), 0) as total")
	if err := query.Row().Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *walletRepository) ListWalletSummaries(ctx context.Context, page, limit int) ([]*domain.WalletSummary, int64, error) {
	var summaries []*domain.WalletSummary
	var count int64
	offset := (page - 1) * limit

	if err := r.db.WithContext(ctx).
		Model(&entities.Wallet{}).
		Count(&count).Error; err != nil {
		return nil, 0, err
	}

	if err := r.db.WithContext(ctx).
		Model(&entities.Wallet{}).
		Select("wallets.user_id, users.username, wallets.balance, wallets.reserved_balance, wallets.lifetime_earned, wallets.lifetime_redeemed").
		Joins("JOIN users ON users.id = wallets.user_id").
		Order("users.username ASC").
		Offset(offset).
		Limit(limit).
		Scan(&summaries).Error; err != nil {
		return nil, 0, err
	}

	return summaries, count, nil
}

func (r *walletRepository) ListWallets(ctx context.Context, offset, limit int) ([]*entities.Wallet, error) {
	var wallets []*entities.Wallet
	if err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&wallets).Error; err != nil {
		return nil, err
	}
	return wallets, nil
}

func (r *walletRepository) GetSettings(ctx context.Context) (*entities.WalletSettings, error) {
	var settings entities.WalletSettings
	if err := r.db.WithContext(ctx).
		First(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

func defaultSettings() *entities.WalletSettings {
	return &entities.WalletSettings{
		ID:                  uuid.New(),
		Singleton:           true,
		IsEnabled:           true,
		CoinToCurrencyRatio: decimal.NewFromFloat(0.01),
		MaxRedeemableCoins:  500,
		FirstPurchaseCoins:  50,
		CoinExpiryDays:      365,
	}
}

// UpdateSettings merges the partial update into the single settings
// row, creating it with defaults on first write. The insert rides the
// singleton unique index so racing first writes converge on one row,
// the losers re-reading the winner's.
func (r *walletRepository) UpdateSettings(ctx context.Context, req domain.UpdateWalletSettingsRequest) (*entities.WalletSettings, error) {
	var settings entities.WalletSettings
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&settings).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			settings = *defaultSettings()
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "singleton"}},
				DoNothing: true,
			}).Create(&settings).Error; err != nil {
				return err
			}
			// Re-read through a clear struct: if the insert lost the
			// race, First with our primary key set would miss the
			// winner's row.
			settings = entities.WalletSettings{}
			if err := tx.First(&settings).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		}

		if req.IsEnabled != nil {
			settings.IsEnabled = *req.IsEnabled
		}
		if req.CoinToCurrencyRatio != nil {
			settings.CoinToCurrencyRatio = decimal.NewFromFloat(*req.CoinToCurrencyRatio)
		}
		if req.MaxRedeemableCoins != nil {
			settings.MaxRedeemableCoins = *req.MaxRedeemableCoins
		}
		if req.FirstPurchaseCoins != nil {
			settings.FirstPurchaseCoins = *req.FirstPurchaseCoins
		}
		if req.CoinExpiryDays != nil {
			settings.CoinExpiryDays = *req.CoinExpiryDays
		}

		return tx.Save(&settings).Error
	})
	if err != nil {
		return nil, err
	}
	return &settings, nil
}
