package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bobbystable/voicepay-backend/pkg/enums"
)

// Reservation is a table booking with an attached bill. Number is the
// six digit code guests read back over the phone.
type Reservation struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Number             string              `gorm:"column:number;not null;uniqueIndex"`
	Name               string              `gorm:"column:name;not null"`
	Phone              string              `gorm:"column:phone;not null"`
	PartySize          int                 `gorm:"column:party_size;not null"`
	ReservationTime    time.Time           `gorm:"column:reservation_time;not null"`
	SpecialRequests    *string             `gorm:"column:special_requests"`
	BillTotal          decimal.Decimal     `gorm:"column:bill_total;type:numeric(10,2);not null"`
	PaymentStatus      enums.PaymentStatus `gorm:"column:payment_status;not null;default:'unpaid'"`
	PaymentReference   *string             `gorm:"column:payment_reference"`
	PaidAmount         *decimal.Decimal    `gorm:"column:paid_amount;type:numeric(10,2)"`
	ConfirmationNumber *string             `gorm:"column:confirmation_number"`
	PaidAt             *time.Time          `gorm:"column:paid_at"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
