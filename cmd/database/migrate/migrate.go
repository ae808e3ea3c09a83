package migration

import (
	"Pasarku-Backend/entities"
	"fmt"
	"log"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&entities.User{}); err != nil {
		log.Fatalf("Error migrating user database: %v", err)
		return err
	}
	if err := db.AutoMigrate(&entities.Wallet{}); err != nil {
		log.Fatalf("Error migrating wallet database: %v", err)
		return err
	}
	if err := db.AutoMigrate(&entities.WalletTransaction{}); err != nil {
		log.Fatalf("Error migrating wallet transaction database: %v", err)
		return err
	}
	if err := db.AutoMigrate(&entities.WalletSettings{}); err != nil {
		log.Fatalf("Error migrating wallet settings database: %v", err)
		return err
	}

	// The first purchase reward is granted at most once per wallet, and
	// a credit is reversed by at most one EXPIRED row. Both are
	// enforced by partial unique indexes, which AutoMigrate cannot
	// express.
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_wallet_tx_first_purchase ON wallet_transactions (wallet_id) WHERE reference_type = 'FIRST_PURCHASE';")
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_wallet_tx_expired_ref ON wallet_transactions (reference_id) WHERE transaction_type = 'EXPIRED';")

	fmt.Println("Database migration complete")
	return nil
}
