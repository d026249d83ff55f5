package models

import "time"

const (
	TransactionTypeUsage     = "usage"
	TransactionTypePurchase  = "purchase"
	TransactionTypeRefund    = "refund"
	TransactionTypeBonus     = "bonus"
	TransactionTypePromotion = "promotion"
)

// CreditTransaction is the append-only ledger entry for any credit balance
// change. Amount is signed: negative for usage, positive for purchase,
// refund, bonus or promotion. Rows are never updated or deleted.
type CreditTransaction struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;index" json:"user_id"`
	Amount           int       `gorm:"not null" json:"amount"`
	TransactionType  string    `gorm:"type:varchar(20);not null;index" json:"transaction_type"`
	PaymentReference string    `gorm:"type:varchar(191);default:''" json:"payment_reference,omitempty"`
	MetadataJSON     string    `gorm:"type:text" json:"metadata_json,omitempty"`
	CreatedAt        time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// IsValidTransactionType reports whether t is one of the known ledger types.
func IsValidTransactionType(t string) bool {
	switch t {
	case TransactionTypeUsage, TransactionTypePurchase, TransactionTypeRefund,
		TransactionTypeBonus, TransactionTypePromotion:
		return true
	default:
		return false
	}
}
