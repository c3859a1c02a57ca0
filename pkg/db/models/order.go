package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bobbystable/voicepay-backend/pkg/enums"
)

// Order is a pickup or delivery food order.
type Order struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Number             string              `gorm:"column:number;not null;uniqueIndex"`
	CustomerName       string              `gorm:"column:customer_name;not null"`
	Phone              string              `gorm:"column:phone;not null"`
	OrderType          string              `gorm:"column:order_type;not null;default:'pickup'"`
	Total              decimal.Decimal     `gorm:"column:total;type:numeric(10,2);not null"`
	PaymentStatus      enums.PaymentStatus `gorm:"column:payment_status;not null;default:'unpaid'"`
	PaymentReference   *string             `gorm:"column:payment_reference"`
	PaidAmount         *decimal.Decimal    `gorm:"column:paid_amount;type:numeric(10,2)"`
	ConfirmationNumber *string             `gorm:"column:confirmation_number"`
	PaidAt             *time.Time          `gorm:"column:paid_at"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

// OrderItem is a single line on an order.
type OrderItem struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID    uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	MenuItemID *uuid.UUID      `gorm:"column:menu_item_id;type:uuid"`
	Name       string          `gorm:"column:name;not null"`
	Quantity   int             `gorm:"column:quantity;not null;default:1"`
	UnitPrice  decimal.Decimal `gorm:"column:unit_price;type:numeric(10,2);not null"`
}
