package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bobbystable/voicepay-backend/pkg/enums"
)

func newLedgerService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := newLedgerDB(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	return svc, conn
}

func TestServiceFindByNumberReservation(t *testing.T) {
	svc, conn := newLedgerService(t)
	seedReservation(t, conn, "123456")

	payable, err := svc.FindByNumber(context.Background(), enums.TargetKindReservation, "123456")
	require.NoError(t, err)
	require.NotNil(t, payable)
	assert.Equal(t, enums.TargetKindReservation, payable.Kind)
	assert.Equal(t, "Alex Rivera", payable.Name)
	assert.False(t, payable.Paid())
	assert.Equal(t, "reservation 123456", payable.Describe())
}

func TestServiceFindByNumberOrderMapsItems(t *testing.T) {
	svc, conn := newLedgerService(t)
	seedOrder(t, conn, "654321")

	payable, err := svc.FindByNumber(context.Background(), enums.TargetKindOrder, "654321")
	require.NoError(t, err)
	require.NotNil(t, payable)
	assert.Equal(t, "order 654321", payable.Describe())
	require.Len(t, payable.Items, 2)
	assert.Equal(t, 2, payable.Items[0].Quantity)
	assert.True(t, payable.Items[0].UnitPrice.Equal(decimal.NewFromFloat(14.00)))
}

func TestServiceFindByNumberValidation(t *testing.T) {
	svc, _ := newLedgerService(t)

	_, err := svc.FindByNumber(context.Background(), enums.TargetKindReservation, "")
	require.Error(t, err)

	_, err = svc.FindByNumber(context.Background(), enums.TargetKind("table"), "123456")
	require.Error(t, err)
}

func TestServiceFindByNumberMissingIsNilNil(t *testing.T) {
	svc, _ := newLedgerService(t)

	payable, err := svc.FindByNumber(context.Background(), enums.TargetKindReservation, "000000")
	require.NoError(t, err)
	assert.Nil(t, payable)
}

func TestServiceMarkPaidValidation(t *testing.T) {
	svc, _ := newLedgerService(t)
	valid := PaymentUpdate{
		Amount:             decimal.NewFromFloat(10),
		ConfirmationNumber: "CONF-AB12CD34",
	}

	_, err := svc.MarkPaid(context.Background(), enums.TargetKindReservation, "", valid)
	require.Error(t, err)

	noAmount := valid
	noAmount.Amount = decimal.Zero
	_, err = svc.MarkPaid(context.Background(), enums.TargetKindReservation, "123456", noAmount)
	require.Error(t, err)

	noCode := valid
	noCode.ConfirmationNumber = ""
	_, err = svc.MarkPaid(context.Background(), enums.TargetKindReservation, "123456", noCode)
	require.Error(t, err)

	_, err = svc.MarkPaid(context.Background(), enums.TargetKind("table"), "123456", valid)
	require.Error(t, err)
}

func TestServiceMarkPaidRoundTrip(t *testing.T) {
	svc, conn := newLedgerService(t)
	seedReservation(t, conn, "123456")

	updated, err := svc.MarkPaid(context.Background(), enums.TargetKindReservation, "123456", PaymentUpdate{
		Amount:             decimal.NewFromFloat(52.75),
		Reference:          "ref-1",
		ConfirmationNumber: "CONF-AB12CD34",
	})
	require.NoError(t, err)
	require.True(t, updated)

	payable, err := svc.FindByNumber(context.Background(), enums.TargetKindReservation, "123456")
	require.NoError(t, err)
	require.NotNil(t, payable)
	assert.True(t, payable.Paid())
	assert.Equal(t, "CONF-AB12CD34", payable.ConfirmationNumber)
}
