package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bobbystable/voicepay-backend/pkg/db/models"
	"github.com/bobbystable/voicepay-backend/pkg/enums"
	pkgerrors "github.com/bobbystable/voicepay-backend/pkg/errors"
)

// LineItem is one line of an itemized bill summary.
type LineItem struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Payable is the payment-facing view of a reservation or order.
type Payable struct {
	Kind               enums.TargetKind
	Number             string
	Name               string
	Phone              string
	Total              decimal.Decimal
	PaymentStatus      enums.PaymentStatus
	ConfirmationNumber string
	Items              []LineItem
}

// Paid reports whether the bill is already settled.
func (p *Payable) Paid() bool {
	return p != nil && p.PaymentStatus == enums.PaymentStatusPaid
}

// Describe returns the human-readable identifier spoken on the call.
func (p *Payable) Describe() string {
	if p == nil {
		return ""
	}
	if p.Kind == enums.TargetKindOrder {
		return fmt.Sprintf("order %s", p.Number)
	}
	return fmt.Sprintf("reservation %s", p.Number)
}

// Service resolves payables by speakable number and settles them.
type Service interface {
	FindByNumber(ctx context.Context, kind enums.TargetKind, number string) (*Payable, error)
	MarkPaid(ctx context.Context, kind enums.TargetKind, number string, update PaymentUpdate) (bool, error)
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) FindByNumber(ctx context.Context, kind enums.TargetKind, number string) (*Payable, error) {
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target number is required")
	}

	switch kind {
	case enums.TargetKindReservation:
		reservation, err := s.repo.FindReservationByNumber(ctx, number)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find reservation")
		}
		if reservation == nil {
			return nil, nil
		}
		return reservationPayable(reservation), nil
	case enums.TargetKindOrder:
		order, err := s.repo.FindOrderByNumber(ctx, number)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order")
		}
		if order == nil {
			return nil, nil
		}
		return orderPayable(order), nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid target kind %q", kind))
	}
}

// MarkPaid transitions the payable from unpaid to paid in one update.
// It reports false when the guard matched no row, which means the bill
// was already settled by an earlier delivery.
func (s *service) MarkPaid(ctx context.Context, kind enums.TargetKind, number string, update PaymentUpdate) (bool, error) {
	if number == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "target number is required")
	}
	if !update.Amount.IsPositive() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "paid amount must be positive")
	}
	if update.ConfirmationNumber == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "confirmation number is required")
	}

	var (
		updated bool
		err     error
	)
	switch kind {
	case enums.TargetKindReservation:
		updated, err = s.repo.MarkReservationPaid(ctx, number, update)
	case enums.TargetKindOrder:
		updated, err = s.repo.MarkOrderPaid(ctx, number, update)
	default:
		return false, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid target kind %q", kind))
	}
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark paid")
	}
	return updated, nil
}

func reservationPayable(reservation *models.Reservation) *Payable {
	confirmation := ""
	if reservation.ConfirmationNumber != nil {
		confirmation = *reservation.ConfirmationNumber
	}
	return &Payable{
		Kind:               enums.TargetKindReservation,
		Number:             reservation.Number,
		Name:               reservation.Name,
		Phone:              reservation.Phone,
		Total:              reservation.BillTotal,
		PaymentStatus:      reservation.PaymentStatus,
		ConfirmationNumber: confirmation,
	}
}

func orderPayable(order *models.Order) *Payable {
	confirmation := ""
	if order.ConfirmationNumber != nil {
		confirmation = *order.ConfirmationNumber
	}
	items := make([]LineItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, LineItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return &Payable{
		Kind:               enums.TargetKindOrder,
		Number:             order.Number,
		Name:               order.CustomerName,
		Phone:              order.Phone,
		Total:              order.Total,
		PaymentStatus:      order.PaymentStatus,
		ConfirmationNumber: confirmation,
		Items:              items,
	}
}
