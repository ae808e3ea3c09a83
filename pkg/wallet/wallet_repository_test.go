package wallet

import (
	migration "Pasarku-Backend/cmd/database/migrate"
	"Pasarku-Backend/domain"
	"Pasarku-Backend/entities"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB opens an isolated in-memory database per test. A single
// connection keeps sqlite serialized, which is what the guarded-update
// discipline expects concurrent callers to queue on.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.Migrate(db))
	return db
}

func TestGetOrCreateWalletIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	first, err := repo.GetOrCreateWallet(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, userID, first.UserID)
	assert.Equal(t, 0, first.Balance)

	second, err := repo.GetOrCreateWallet(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&entities.Wallet{}).Where("user_id = ?", userID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestGetOrCreateWalletConcurrent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	const callers = 8
	ids := make([]uuid.UUID, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			wallet, err := repo.GetOrCreateWallet(ctx, userID)
			if assert.NoError(t, err) {
				ids[i] = wallet.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
}

func TestApplyLedgerEntryWalletNotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)

	_, err := repo.ApplyLedgerEntry(context.Background(), uuid.New(), LedgerEntry{
		Amount:    100,
		Type:      entities.TransactionTypeCredit,
		Reference: domain.RefManualAdjustment(),
	})
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestApplyLedgerEntryRejectsWrongSign(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()

	wallet, err := repo.GetOrCreateWallet(ctx, uuid.New())
	require.NoError(t, err)

	cases := []struct {
		txType string
		amount int
	}{
		{entities.TransactionTypeCredit, -10},
		{entities.TransactionTypeCredit, 0},
		{entities.TransactionTypeDebit, 10},
		{entities.TransactionTypeReserved, 10},
		{entities.TransactionTypeSpent, 10},
		{entities.TransactionTypeReleased, -10},
		{entities.TransactionTypeExpired, 10},
		{"UNKNOWN", 10},
	}
	for _, tc := range cases {
		_, err := repo.ApplyLedgerEntry(ctx, wallet.ID, LedgerEntry{
			Amount:    tc.amount,
			Type:      tc.txType,
			Reference: domain.RefManualAdjustment(),
		})
		assert.ErrorIs(t, err, domain.ErrInvalidAmount, "type %s amount %d", tc.txType, tc.amount)
	}
}

func TestApplyLedgerEntryInsufficientBalance(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()

	wallet, err := repo.GetOrCreateWallet(ctx, uuid.New())
	require.NoError(t, err)

	_, err = repo.ApplyLedgerEntry(ctx, wallet.ID, LedgerEntry{
		Amount:    -1,
		Type:      entities.TransactionTypeDebit,
		Reference: domain.RefManualAdjustment(),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// The rejected move must leave no trace in the log.
	var count int64
	require.NoError(t, db.Model(&entities.WalletTransaction{}).Where("wallet_id = ?", wallet.ID).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestApplyLedgerEntryFirstPurchaseUnique(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()

	wallet, err := repo.GetOrCreateWallet(ctx, uuid.New())
	require.NoError(t, err)

	orderID := uuid.New()
	updated, err := repo.ApplyLedgerEntry(ctx, wallet.ID, LedgerEntry{
		Amount:    50,
		Type:      entities.TransactionTypeCredit,
		Reference: domain.RefFirstPurchase(orderID),
	})
	require.NoError(t, err)
	assert.Equal(t, 50, updated.Balance)

	// The duplicate insert must roll back the whole unit of work,
	// counter update included.
	_, err = repo.ApplyLedgerEntry(ctx, wallet.ID, LedgerEntry{
		Amount:    50,
		Type:      entities.TransactionTypeCredit,
		Reference: domain.RefFirstPurchase(uuid.New()),
	})
	assert.ErrorIs(t, err, domain.ErrRewardAlreadyGranted)

	after, err := repo.GetWalletByID(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, after.Balance)
	assert.Equal(t, 50, after.LifetimeEarned)
}

func TestGetTransactionsStableOrderOnTiedTimestamps(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()

	wallet, err := repo.GetOrCreateWallet(ctx, uuid.New())
	require.NoError(t, err)

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		row := &entities.WalletTransaction{
			ID:              uuid.New(),
			WalletID:        wallet.ID,
			Amount:          10,
			TransactionType: entities.TransactionTypeCredit,
			ReferenceType:   entities.ReferencePromotion,
			Timestamp:       entities.Timestamp{CreatedAt: at, UpdatedAt: at},
		}
		require.NoError(t, db.Create(row).Error)
		ids = append(ids, row.ID.String())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))

	listed, count, err := repo.GetTransactions(ctx, wallet.ID, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
	require.Len(t, listed, 3)
	for i, tx := range listed {
		assert.Equal(t, ids[i], tx.ID.String())
	}
}

func TestReverseExpiredCredit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()

	wallet, err := repo.GetOrCreateWallet(ctx, uuid.New())
	require.NoError(t, err)

	expiresAt := time.Now().Add(-time.Hour)
	_, err = repo.ApplyLedgerEntry(ctx, wallet.ID, LedgerEntry{
		Amount:    100,
		Type:      entities.TransactionTypeCredit,
		Reference: domain.RefPromotion(),
		ExpiresAt: &expiresAt,
	})
	require.NoError(t, err)

	var credit entities.WalletTransaction
	require.NoError(t, db.Where("wallet_id = ? AND transaction_type = ?",
		wallet.ID, entities.TransactionTypeCredit).First(&credit).Error)

	updated, clamped, err := repo.ReverseExpiredCredit(ctx, &credit)
	require.NoError(t, err)
	assert.False(t, clamped)
	assert.Equal(t, 0, updated.Balance)

	_, _, err = repo.ReverseExpiredCredit(ctx, &credit)
	assert.ErrorIs(t, err, ErrAlreadyReversed)
}

func TestReverseExpiredCreditClampsShortfall(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()

	wallet, err := repo.GetOrCreateWallet(ctx, uuid.New())
	require.NoError(t, err)

	expiresAt := time.Now().Add(-time.Hour)
	_, err = repo.ApplyLedgerEntry(ctx, wallet.ID, LedgerEntry{
		Amount:    100,
		Type:      entities.TransactionTypeCredit,
		Reference: domain.RefPromotion(),
		ExpiresAt: &expiresAt,
	})
	require.NoError(t, err)
	_, err = repo.ApplyLedgerEntry(ctx, wallet.ID, LedgerEntry{
		Amount:    -60,
		Type:      entities.TransactionTypeDebit,
		Reference: domain.RefManualAdjustment(),
	})
	require.NoError(t, err)

	var credit entities.WalletTransaction
	require.NoError(t, db.Where("wallet_id = ? AND transaction_type = ?",
		wallet.ID, entities.TransactionTypeCredit).First(&credit).Error)

	// Only 40 spendable coins remain for a 100-coin reversal.
	updated, clamped, err := repo.ReverseExpiredCredit(ctx, &credit)
	require.NoError(t, err)
	assert.True(t, clamped)
	assert.Equal(t, 0, updated.Balance)
}

func TestUpdateSettingsCreateThenPartial(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()

	_, err := repo.GetSettings(ctx)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	ratio := 0.1
	created, err := repo.UpdateSettings(ctx, domain.UpdateWalletSettingsRequest{
		CoinToCurrencyRatio: &ratio,
	})
	require.NoError(t, err)
	assert.True(t, created.IsEnabled)
	assert.Equal(t, 500, created.MaxRedeemableCoins)
	assert.InDelta(t, 0.1, created.CoinToCurrencyRatio.InexactFloat64(), 1e-9)

	maxCoins := 200
	updated, err := repo.UpdateSettings(ctx, domain.UpdateWalletSettingsRequest{
		MaxRedeemableCoins: &maxCoins,
	})
	require.NoError(t, err)
	assert.Equal(t, 200, updated.MaxRedeemableCoins)
	assert.InDelta(t, 0.1, updated.CoinToCurrencyRatio.InexactFloat64(), 1e-9)

	var count int64
	require.NoError(t, db.Model(&entities.WalletSettings{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestUpdateSettingsConcurrentFirstWrite(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			maxCoins := 100 + i
			_, err := repo.UpdateSettings(context.Background(), domain.UpdateWalletSettingsRequest{
				MaxRedeemableCoins: &maxCoins,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var count int64
	require.NoError(t, db.Model(&entities.WalletSettings{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestListWalletSummaries(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()

	for _, name := range []string{"anisa", "budi"} {
		user := &entities.User{
			ID:       uuid.New(),
			Username: name,
			Email:    name + "@example.com",
			Password: "hashed",
		}
		require.NoError(t, db.Create(user).Error)

		wallet, err := repo.GetOrCreateWallet(ctx, user.ID)
		require.NoError(t, err)
		_, err = repo.ApplyLedgerEntry(ctx, wallet.ID, LedgerEntry{
			Amount:    100,
			Type:      entities.TransactionTypeCredit,
			Reference: domain.RefManualAdjustment(),
		})
		require.NoError(t, err)
	}

	summaries, count, err := repo.ListWalletSummaries(ctx, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
	require.Len(t, summaries, 2)
	assert.Equal(t, "anisa", summaries[0].Username)
	assert.Equal(t, 100, summaries[0].Balance)
	assert.Equal(t, "budi", summaries[1].Username)
}
