package wallet

import (
	"Pasarku-Backend/domain"
	"Pasarku-Backend/entities"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type capturingAlert struct {
	mu       sync.Mutex
	subjects []string
	bodies   []string
}

func (a *capturingAlert) send(subject, body string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subjects = append(a.subjects, subject)
	a.bodies = append(a.bodies, body)
	return nil
}

func (a *capturingAlert) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subjects)
}

func newExpiryFixture(t *testing.T) (*gorm.DB, WalletRepository, ExpiryService, *capturingAlert) {
	t.Helper()
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	alert := &capturingAlert{}
	return db, repo, NewExpiryService(repo, nil, alert.send), alert
}

func creditWithExpiry(t *testing.T, repo WalletRepository, walletID uuid.UUID, amount int, expiresAt time.Time) {
	t.Helper()
	_, err := repo.ApplyLedgerEntry(context.Background(), walletID, LedgerEntry{
		Amount:      amount,
		Type:        entities.TransactionTypeCredit,
		Reference:   domain.RefPromotion(),
		Description: "expiring credit",
		ExpiresAt:   &expiresAt,
	})
	require.NoError(t, err)
}

func TestProcessExpiredCoins(t *testing.T) {
	_, repo, svc, alert := newExpiryFixture(t)
	ctx := context.Background()
	now := time.Now()

	wallet, err := repo.GetOrCreateWallet(ctx, uuid.New())
	require.NoError(t, err)

	creditWithExpiry(t, repo, wallet.ID, 100, now.Add(-time.Hour))
	creditWithExpiry(t, repo, wallet.ID, 40, now.Add(time.Hour))

	resp, err := svc.ProcessExpiredCoins(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 100, resp.CoinsExpired)
	assert.Equal(t, 1, resp.CreditsSwept)
	assert.Equal(t, 0, resp.CreditsSkipped)

	after, err := repo.GetWalletByID(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, after.Balance)
	assert.Equal(t, 140, after.LifetimeEarned)
	assert.Zero(t, alert.count())
}

func TestProcessExpiredCoinsIdempotent(t *testing.T) {
	_, repo, svc, _ := newExpiryFixture(t)
	ctx := context.Background()
	now := time.Now()

	wallet, err := repo.GetOrCreateWallet(ctx, uuid.New())
	require.NoError(t, err)
	creditWithExpiry(t, repo, wallet.ID, 100, now.Add(-time.Hour))

	first, err := svc.ProcessExpiredCoins(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, first.CreditsSwept)

	second, err := svc.ProcessExpiredCoins(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, second.CreditsSwept)
	assert.Equal(t, 0, second.CoinsExpired)

	after, err := repo.GetWalletByID(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.Balance)
}

func TestProcessExpiredCoinsClampsAndAlerts(t *testing.T) {
	_, repo, svc, alert := newExpiryFixture(t)
	ctx := context.Background()
	now := time.Now()

	wallet, err := repo.GetOrCreateWallet(ctx, uuid.New())
	require.NoError(t, err)
	creditWithExpiry(t, repo, wallet.ID, 100, now.Add(-time.Hour))

	// Reserve part of the soon-to-expire credit so only 40 spendable
	// coins remain when the sweep reverses 100.
	_, err = repo.ApplyLedgerEntry(ctx, wallet.ID, LedgerEntry{
		Amount:    -60,
		Type:      entities.TransactionTypeReserved,
		Reference: domain.RefOrder(uuid.New()),
	})
	require.NoError(t, err)

	resp, err := svc.ProcessExpiredCoins(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.CreditsSwept)
	assert.Equal(t, 100, resp.CoinsExpired)

	after, err := repo.GetWalletByID(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.Balance)
	assert.Equal(t, 60, after.ReservedBalance)
	assert.Equal(t, 1, alert.count())
}

func TestReconcileWalletConsistent(t *testing.T) {
	_, repo, svc, _ := newExpiryFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	wallet, err := repo.GetOrCreateWallet(ctx, userID)
	require.NoError(t, err)
	creditWithExpiry(t, repo, wallet.ID, 200, time.Now().Add(24*time.Hour))
	_, err = repo.ApplyLedgerEntry(ctx, wallet.ID, LedgerEntry{
		Amount:    -50,
		Type:      entities.TransactionTypeReserved,
		Reference: domain.RefOrder(uuid.New()),
	})
	require.NoError(t, err)

	drift, err := svc.ReconcileWallet(ctx, userID.String())
	require.NoError(t, err)
	assert.Nil(t, drift)
}

func TestReconcileWalletDetectsCorruptedBalance(t *testing.T) {
	db, repo, svc, _ := newExpiryFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	wallet, err := repo.GetOrCreateWallet(ctx, userID)
	require.NoError(t, err)
	creditWithExpiry(t, repo, wallet.ID, 200, time.Now().Add(24*time.Hour))

	err = db.Exec("UPDATE wallets SET balance = 175 WHERE id = ?", wallet.ID).Error
	require.NoError(t, err)

	drift, err := svc.ReconcileWallet(ctx, userID.String())
	require.NoError(t, err)
	require.NotNil(t, drift)
	assert.Equal(t, 175, drift.RecordedBalance)
	assert.Equal(t, 200, drift.ComputedBalance)
	assert.Equal(t, userID.String(), drift.UserID)
}

func TestReconcileWalletNotFound(t *testing.T) {
	_, _, svc, _ := newExpiryFixture(t)

	_, err := svc.ReconcileWallet(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestReconcileAll(t *testing.T) {
	db, repo, svc, alert := newExpiryFixture(t)
	ctx := context.Background()

	clean, err := repo.GetOrCreateWallet(ctx, uuid.New())
	require.NoError(t, err)
	creditWithExpiry(t, repo, clean.ID, 100, time.Now().Add(24*time.Hour))

	dirty, err := repo.GetOrCreateWallet(ctx, uuid.New())
	require.NoError(t, err)
	creditWithExpiry(t, repo, dirty.ID, 100, time.Now().Add(24*time.Hour))
	err = db.Exec("UPDATE wallets SET balance = 90 WHERE id = ?", dirty.ID).Error
	require.NoError(t, err)

	report, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.WalletsChecked)
	require.Len(t, report.Drifts, 1)
	assert.Equal(t, dirty.UserID.String(), report.Drifts[0].UserID)
	assert.Equal(t, 1, alert.count())
}
