package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction types. The pool a row moves coins through is fixed by its
// type: CREDIT, DEBIT, RELEASED and EXPIRED apply Amount to the
// spendable balance; RESERVED moves coins from spendable into the
// reserved pool; SPENT drains the reserved pool into LifetimeRedeemed.
const (
	TransactionTypeCredit   = "CREDIT"
	TransactionTypeDebit    = "DEBIT"
	TransactionTypeReserved = "RESERVED"
	TransactionTypeSpent    = "SPENT"
	TransactionTypeReleased = "RELEASED"
	TransactionTypeExpired  = "EXPIRED"
)

// Reference kinds. ReferenceID holds an order id for FIRST_PURCHASE and
// ORDER rows, and the originating CREDIT row id for EXPIRED rows.
const (
	ReferenceFirstPurchase    = "FIRST_PURCHASE"
	ReferenceManualAdjustment = "MANUAL_ADJUSTMENT"
	ReferencePromotion        = "PROMOTION"
	ReferenceOrder            = "ORDER"
	ReferenceExpired          = "EXPIRED"
)

type Wallet struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UserID           uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Balance          int       `gorm:"not null;default:0" json:"balance"`
	ReservedBalance  int       `gorm:"not null;default:0" json:"reserved_balance"`
	LifetimeEarned   int       `gorm:"not null;default:0" json:"lifetime_earned"`
	LifetimeRedeemed int       `gorm:"not null;default:0" json:"lifetime_redeemed"`

	User         *User                `gorm:"foreignKey:UserID"`
	Transactions []*WalletTransaction `gorm:"foreignKey:WalletID"`
	Timestamp
}

// WalletTransaction rows are append-only. Corrections are compensating
// rows (e.g. an EXPIRED row reversing a CREDIT row), never updates.
type WalletTransaction struct {
	ID              uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	WalletID        uuid.UUID  `gorm:"type:uuid;index;not null" json:"wallet_id"`
	Amount          int        `gorm:"not null" json:"amount"`
	TransactionType string     `gorm:"type:varchar(16);index;not null" json:"transaction_type"`
	ReferenceType   string     `gorm:"type:varchar(32);index;not null" json:"reference_type"`
	ReferenceID     *uuid.UUID `gorm:"type:uuid;index" json:"reference_id,omitempty"`
	Description     string     `json:"description"`
	ExpiresAt       *time.Time `gorm:"index" json:"expires_at,omitempty"`

	// Discount is the currency value decided for a RESERVED row at
	// redemption time; spending the reservation settles against this
	// value, not the ratio current at spend time. Zero for other types.
	Discount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"discount"`

	Wallet *Wallet `gorm:"foreignKey:WalletID"`
	Timestamp
}

// WalletSettings is a single-row table: created once with defaults,
// updated in place afterwards. Singleton is constant true under a
// unique index so racing first writes collide on insert.
type WalletSettings struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	Singleton           bool            `gorm:"uniqueIndex;not null;default:true" json:"-"`
	IsEnabled           bool            `gorm:"not null;default:true" json:"is_enabled"`
	CoinToCurrencyRatio decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"coin_to_currency_ratio"`
	MaxRedeemableCoins  int             `gorm:"not null;default:0" json:"max_redeemable_coins"`
	FirstPurchaseCoins  int             `gorm:"not null;default:0" json:"first_purchase_coins"`
	CoinExpiryDays      int             `gorm:"not null;default:0" json:"coin_expiry_days"`

	Timestamp
}
