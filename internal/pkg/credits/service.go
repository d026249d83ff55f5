package credits

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/proshotai/proshot/app/models"
	"github.com/proshotai/proshot/internal/pkg/cache"
	"gorm.io/gorm"
)

var (
	// ErrInsufficientCredits signals a rejected debit; nothing was mutated.
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidType         = errors.New("unknown transaction type")
	ErrUserNotFound        = errors.New("user not found")
)

// Service is the credit ledger: every balance mutation is one conditional
// UPDATE plus an appended CreditTransaction row, both inside a single DB
// transaction. The check and the decrement are never separate statements,
// so concurrent debits can not drive the balance negative.
type Service struct {
	db *gorm.DB
}

// NewService creates a ledger service from a GORM DB handle.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Debit withdraws amount credits from the user and appends a usage entry.
// Returns ErrInsufficientCredits without mutating anything when the balance
// does not cover the amount.
func (s *Service) Debit(ctx context.Context, userID uint, amount int, metadata map[string]any) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var balance int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ? AND credits >= ?", userID, amount).
			UpdateColumn("credits", gorm.Expr("credits - ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Either the user is missing or the balance is too low.
			var user models.User
			if err := tx.Select("id", "credits").First(&user, userID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrUserNotFound
				}
				return err
			}
			balance = user.Credits
			return ErrInsufficientCredits
		}

		entry := &models.CreditTransaction{
			UserID:          userID,
			Amount:          -amount,
			TransactionType: models.TransactionTypeUsage,
			MetadataJSON:    marshalMetadata(metadata),
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		var user models.User
		if err := tx.Select("credits").First(&user, userID).Error; err != nil {
			return err
		}
		balance = user.Credits
		return nil
	})
	if err != nil {
		return balance, err
	}

	cache.InvalidateCredits(userID)
	return balance, nil
}

// Grant adds amount credits outside the debit path (purchase, refund, bonus
// or promotion) and appends a positive ledger entry.
func (s *Service) Grant(ctx context.Context, userID uint, amount int, txType, paymentRef string, metadata map[string]any) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if !models.IsValidTransactionType(txType) || txType == models.TransactionTypeUsage {
		return 0, ErrInvalidType
	}

	var balance int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ?", userID).
			UpdateColumn("credits", gorm.Expr("credits + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}

		entry := &models.CreditTransaction{
			UserID:           userID,
			Amount:           amount,
			TransactionType:  txType,
			PaymentReference: paymentRef,
			MetadataJSON:     marshalMetadata(metadata),
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		var user models.User
		if err := tx.Select("credits").First(&user, userID).Error; err != nil {
			return err
		}
		balance = user.Credits
		return nil
	})
	if err != nil {
		return 0, err
	}

	cache.InvalidateCredits(userID)
	return balance, nil
}

// Balance reads the user's current credit balance.
func (s *Service) Balance(ctx context.Context, userID uint) (int, error) {
	var user models.User
	err := s.db.WithContext(ctx).Select("credits").First(&user, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return user.Credits, nil
}

// Transactions returns one page of the user's ledger, newest first, plus the
// total row count for pagination.
func (s *Service) Transactions(ctx context.Context, userID uint, page, pageSize int) ([]models.CreditTransaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.CreditTransaction{}).
		Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.CreditTransaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error
	return entries, total, err
}

// UsageStats aggregates the user's ledger by transaction type.
type UsageStats struct {
	TotalUsed        int   `json:"total_used"`
	TotalPurchased   int   `json:"total_purchased"`
	TotalGifted      int   `json:"total_gifted"`
	TotalRefunded    int   `json:"total_refunded"`
	CurrentBalance   int   `json:"current_balance"`
	TransactionCount int64 `json:"transaction_count"`
}

// Stats computes usage statistics over the user's full ledger.
func (s *Service) Stats(ctx context.Context, userID uint) (*UsageStats, error) {
	var entries []models.CreditTransaction
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&entries).Error; err != nil {
		return nil, err
	}

	stats := &UsageStats{TransactionCount: int64(len(entries))}
	for _, e := range entries {
		amount := e.Amount
		if amount < 0 {
			amount = -amount
		}
		switch e.TransactionType {
		case models.TransactionTypeUsage:
			stats.TotalUsed += amount
		case models.TransactionTypePurchase:
			stats.TotalPurchased += amount
		case models.TransactionTypeBonus, models.TransactionTypePromotion:
			stats.TotalGifted += amount
		case models.TransactionTypeRefund:
			stats.TotalRefunded += amount
		}
	}

	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats.CurrentBalance = balance
	return stats, nil
}

func marshalMetadata(metadata map[string]any) string {
	if len(metadata) == 0 {
		return ""
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return ""
	}
	return string(b)
}
