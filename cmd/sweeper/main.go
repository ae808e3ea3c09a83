// Command sweeper runs a single expiry sweep followed by a full wallet
// reconciliation, then exits. Scheduling is left to cron or an
// equivalent external scheduler.
package main

import (
	"Pasarku-Backend/cmd/config"
	"Pasarku-Backend/internal/utils"
	"Pasarku-Backend/internal/utils/mailing"
	"Pasarku-Backend/internal/utils/storage"
	"Pasarku-Backend/pkg/wallet"
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

func main() {
	utils.LoadConfig()

	db, err := config.ConnectDB()
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	walletRepository := wallet.NewWalletRepository(db)
	expiryService := wallet.NewExpiryService(walletRepository, storage.NewAwsS3(), mailing.SendOpsAlert)

	ctx := context.Background()

	result, err := expiryService.ProcessExpiredCoins(ctx, time.Now())
	if err != nil {
		log.Fatalf("expiry sweep failed: %v", err)
	}
	log.Infof("expiry sweep reversed %d coins across %d credits (%d skipped)",
		result.CoinsExpired, result.CreditsSwept, result.CreditsSkipped)

	report, err := expiryService.ReconcileAll(ctx)
	if err != nil {
		log.Fatalf("reconciliation failed: %v", err)
	}
	log.Infof("reconciliation checked %d wallets, %d drifted",
		report.WalletsChecked, len(report.Drifts))
}
