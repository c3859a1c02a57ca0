package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bobbystable/voicepay-backend/pkg/db/models"
	"github.com/bobbystable/voicepay-backend/pkg/enums"
)

// PaymentUpdate carries the fields written when a bill is settled.
type PaymentUpdate struct {
	Amount             decimal.Decimal
	Reference          string
	ConfirmationNumber string
	PaidAt             time.Time
}

// Repository manages persistence for payable reservations and orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindReservationByNumber(ctx context.Context, number string) (*models.Reservation, error)
	FindOrderByNumber(ctx context.Context, number string) (*models.Order, error)
	MarkReservationPaid(ctx context.Context, number string, update PaymentUpdate) (bool, error)
	MarkOrderPaid(ctx context.Context, number string, update PaymentUpdate) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindReservationByNumber(ctx context.Context, number string) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Where("number = ?", number).
		First(&reservation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) FindOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("number = ?", number).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) MarkReservationPaid(ctx context.Context, number string, update PaymentUpdate) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("number = ? AND payment_status = ?", number, enums.PaymentStatusUnpaid).
		Updates(paidColumns(update))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkOrderPaid(ctx context.Context, number string, update PaymentUpdate) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("number = ? AND payment_status = ?", number, enums.PaymentStatusUnpaid).
		Updates(paidColumns(update))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// paidColumns builds the single atomic update. The unpaid guard in the
// WHERE clause is what makes duplicate completions a no-op.
func paidColumns(update PaymentUpdate) map[string]any {
	return map[string]any{
		"payment_status":      enums.PaymentStatusPaid,
		"paid_amount":         update.Amount,
		"payment_reference":   update.Reference,
		"confirmation_number": update.ConfirmationNumber,
		"paid_at":             update.PaidAt,
	}
}
