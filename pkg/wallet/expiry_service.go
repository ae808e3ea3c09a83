package wallet

import (
	"Pasarku-Backend/domain"
	"Pasarku-Backend/entities"
	"Pasarku-Backend/internal/utils/storage"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func parseUserID(userID string) (uuid.UUID, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, domain.ErrParseUUID
	}
	return uid, nil
}

// AlertFunc delivers an operational alert. Wired to the mailing utility
// in production; tests substitute their own.
type AlertFunc func(subject, body string) error

type (
	ExpiryService interface {
		// ProcessExpiredCoins reverses every eligible expired credit
		// exactly once and reports the coins reversed. One failed
		// reversal never aborts the batch; the sweep is idempotent and
		// the candidate is retried on the next run.
		ProcessExpiredCoins(ctx context.Context, asOf time.Time) (*domain.ExpireCoinsResponse, error)

		// ReconcileWallet recomputes both pools from the transaction
		// log and returns the drift, or nil when consistent.
		ReconcileWallet(ctx context.Context, userID string) (*domain.WalletDrift, error)

		ReconcileAll(ctx context.Context) (*domain.ReconciliationReport, error)
	}

	expiryService struct {
		walletRepository WalletRepository
		archive          storage.AwsS3
		alert            AlertFunc
	}
)

const reconcileBatchSize = 200

func NewExpiryService(walletRepository WalletRepository, archive storage.AwsS3, alert AlertFunc) ExpiryService {
	if alert == nil {
		alert = func(subject, body string) error { return nil }
	}
	return &expiryService{
		walletRepository: walletRepository,
		archive:          archive,
		alert:            alert,
	}
}

func (s *expiryService) ProcessExpiredCoins(ctx context.Context, asOf time.Time) (*domain.ExpireCoinsResponse, error) {
	candidates, err := s.walletRepository.GetExpiredCredits(ctx, asOf)
	if err != nil {
		return nil, err
	}

	resp := &domain.ExpireCoinsResponse{}
	for _, credit := range candidates {
		_, clamped, err := s.walletRepository.ReverseExpiredCredit(ctx, credit)
		if errors.Is(err, ErrAlreadyReversed) {
			// A concurrent sweep won the race on this credit.
			resp.CreditsSkipped++
			continue
		}
		if err != nil {
			log.Errorf("expiry sweep: failed to reverse credit %s: %v", credit.ID, err)
			resp.CreditsSkipped++
			continue
		}

		if clamped {
			// The ledger and the balance disagreed before this sweep
			// touched the wallet.
			msg := fmt.Sprintf("wallet %s: expiring credit %s of %d coins exceeded the spendable balance", credit.WalletID, credit.ID, credit.Amount)
			log.Warnf("expiry sweep clamped a balance to zero: %s", msg)
			if err := s.alert("Coin wallet balance clamped during expiry sweep", msg); err != nil {
				log.Errorf("expiry sweep: alert delivery failed: %v", err)
			}
		}

		resp.CoinsExpired += credit.Amount
		resp.CreditsSwept++
	}

	return resp, nil
}

var spendablePoolTypes = []string{
	entities.TransactionTypeCredit,
	entities.TransactionTypeDebit,
	entities.TransactionTypeReserved,
	entities.TransactionTypeReleased,
	entities.TransactionTypeExpired,
}

func (s *expiryService) driftFor(ctx context.Context, wallet *entities.Wallet) (*domain.WalletDrift, error) {
	spendable, err := s.walletRepository.SumTransactionAmounts(ctx, wallet.ID, spendablePoolTypes)
	if err != nil {
		return nil, err
	}
	reservedOut, err := s.walletRepository.SumTransactionAmounts(ctx, wallet.ID, []string{
		entities.TransactionTypeReserved,
		entities.TransactionTypeReleased,
	})
	if err != nil {
		return nil, err
	}
	spent, err := s.walletRepository.SumTransactionAmounts(ctx, wallet.ID, []string{
		entities.TransactionTypeSpent,
	})
	if err != nil {
		return nil, err
	}
	reserved := -reservedOut + spent

	if wallet.Balance == spendable && wallet.ReservedBalance == reserved {
		return nil, nil
	}
	return &domain.WalletDrift{
		UserID:           wallet.UserID.String(),
		RecordedBalance:  wallet.Balance,
		ComputedBalance:  spendable,
		RecordedReserved: wallet.ReservedBalance,
		ComputedReserved: reserved,
	}, nil
}

func (s *expiryService) ReconcileWallet(ctx context.Context, userID string) (*domain.WalletDrift, error) {
	uid, err := parseUserID(userID)
	if err != nil {
		return nil, err
	}
	wallet, err := s.walletRepository.GetWalletByUserID(ctx, uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, err
	}
	return s.driftFor(ctx, wallet)
}

func (s *expiryService) ReconcileAll(ctx context.Context) (*domain.ReconciliationReport, error) {
	report := &domain.ReconciliationReport{
		CheckedAt: time.Now(),
		Drifts:    []domain.WalletDrift{},
	}

	for offset := 0; ; offset += reconcileBatchSize {
		wallets, err := s.walletRepository.ListWallets(ctx, offset, reconcileBatchSize)
		if err != nil {
			return nil, err
		}
		if len(wallets) == 0 {
			break
		}
		for _, wallet := range wallets {
			drift, err := s.driftFor(ctx, wallet)
			if err != nil {
				return nil, err
			}
			report.WalletsChecked++
			if drift != nil {
				report.Drifts = append(report.Drifts, *drift)
			}
		}
		if len(wallets) < reconcileBatchSize {
			break
		}
	}

	if len(report.Drifts) > 0 {
		body := fmt.Sprintf("%d of %d wallets drifted from their transaction log", len(report.Drifts), report.WalletsChecked)
		if err := s.alert("Coin wallet reconciliation found drift", body); err != nil {
			log.Errorf("reconciliation: alert delivery failed: %v", err)
		}
	}

	s.archiveReport(ctx, report)
	return report, nil
}

// archiveReport uploads the report for audit. Best effort: a missing or
// failing archive never fails the reconciliation itself.
func (s *expiryService) archiveReport(ctx context.Context, report *domain.ReconciliationReport) {
	if s.archive == nil {
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		log.Errorf("reconciliation: failed to encode report: %v", err)
		return
	}
	key := fmt.Sprintf("wallet-audit/reconciliation-%s.json", report.CheckedAt.Format("2006-01-02T15-04-05"))
	if _, err := s.archive.UploadBytes(ctx, key, "application/json", payload); err != nil {
		log.Errorf("reconciliation: failed to archive report: %v", err)
	}
}
