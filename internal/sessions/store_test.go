package sessions

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobbystable/voicepay-backend/pkg/enums"
)

func reservationTarget(number string) Target {
	return Target{Kind: enums.TargetKindReservation, Number: number}
}

func TestStartRequiresCallID(t *testing.T) {
	store := NewStore(0)
	_, err := store.Start("", reservationTarget("123456"))
	require.Error(t, err)
}

func TestStartIsIdempotentForSameCall(t *testing.T) {
	store := NewStore(0)

	first, err := store.Start("call-1", reservationTarget("123456"))
	require.NoError(t, err)
	assert.Equal(t, StepStarted, first.Step)

	again, err := store.Start("call-1", Target{})
	require.NoError(t, err)
	assert.Equal(t, first.Target, again.Target, "known target must survive a bare re-start")
	assert.Equal(t, 1, store.Len())
}

func TestStartNewTargetBeforeConfirmationResetsDialogue(t *testing.T) {
	store := NewStore(0)

	_, err := store.Start("call-1", reservationTarget("123456"))
	require.NoError(t, err)
	_, err = store.UpdateStep("call-1", StepAwaitingConfirmation)
	require.NoError(t, err)

	sess, err := store.Start("call-1", Target{Kind: enums.TargetKindOrder, Number: "654321"})
	require.NoError(t, err)
	assert.Equal(t, enums.TargetKindOrder, sess.Target.Kind)
	assert.Equal(t, StepStarted, sess.Step)
}

func TestStartKeepsTargetOnceConfirmed(t *testing.T) {
	store := NewStore(0)

	_, err := store.Start("call-1", reservationTarget("123456"))
	require.NoError(t, err)
	_, err = store.UpdateStep("call-1", StepConfirmed)
	require.NoError(t, err)

	sess, err := store.Start("call-1", reservationTarget("999999"))
	require.NoError(t, err)
	assert.Equal(t, "123456", sess.Target.Number)
	assert.Equal(t, StepConfirmed, sess.Step)
}

func TestUpdateAmountFrozenOnceConfirmed(t *testing.T) {
	store := NewStore(0)

	_, err := store.Start("call-1", reservationTarget("123456"))
	require.NoError(t, err)

	_, err = store.Update("call-1", func(s *Session) error {
		s.Amount = decimal.NewFromFloat(42.50)
		s.Step = StepConfirmed
		return nil
	})
	require.NoError(t, err)

	sess, err := store.Update("call-1", func(s *Session) error {
		s.Amount = decimal.NewFromFloat(99.99)
		return nil
	})
	require.Error(t, err)
	assert.True(t, sess.Amount.Equal(decimal.NewFromFloat(42.50)), "amount must not move after confirmation")
}

func TestUpdateAmountMayChangeBeforeConfirmation(t *testing.T) {
	store := NewStore(0)

	_, err := store.Start("call-1", reservationTarget("123456"))
	require.NoError(t, err)

	sess, err := store.Update("call-1", func(s *Session) error {
		s.Amount = decimal.NewFromFloat(10)
		return nil
	})
	require.NoError(t, err)

	sess, err = store.Update("call-1", func(s *Session) error {
		s.Amount = decimal.NewFromFloat(12)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, sess.Amount.Equal(decimal.NewFromInt(12)))
}

func TestUpdateConfirmationNumberSetOnce(t *testing.T) {
	store := NewStore(0)

	_, err := store.Start("call-1", reservationTarget("123456"))
	require.NoError(t, err)

	_, err = store.Update("call-1", func(s *Session) error {
		s.ConfirmationNumber = "AB12CD34"
		return nil
	})
	require.NoError(t, err)

	sess, err := store.Update("call-1", func(s *Session) error {
		s.ConfirmationNumber = "ZZ99ZZ99"
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, "AB12CD34", sess.ConfirmationNumber)
}

func TestUpdateUnknownCallReturnsNotFound(t *testing.T) {
	store := NewStore(0)
	_, err := store.Update("ghost", func(s *Session) error { return nil })
	require.Error(t, err)
}

func TestEndRemovesSession(t *testing.T) {
	store := NewStore(0)

	_, err := store.Start("call-1", reservationTarget("123456"))
	require.NoError(t, err)

	sess, ok := store.End("call-1")
	require.True(t, ok)
	assert.Equal(t, "call-1", sess.CallID)

	_, ok = store.Get("call-1")
	assert.False(t, ok)

	_, ok = store.End("call-1")
	assert.False(t, ok)
}

func TestSweepExpiredEvictsIdleSessions(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base
	store := NewStore(30 * time.Minute).WithClock(func() time.Time { return current })

	_, err := store.Start("stale", reservationTarget("111111"))
	require.NoError(t, err)

	current = base.Add(20 * time.Minute)
	_, err = store.Start("fresh", reservationTarget("222222"))
	require.NoError(t, err)

	// stale is 31 minutes idle, fresh 11.
	removed := store.SweepExpired(base.Add(31 * time.Minute))
	assert.Equal(t, 1, removed)

	_, ok := store.Get("stale")
	assert.False(t, ok)
	_, ok = store.Get("fresh")
	assert.True(t, ok)
}

func TestSweepExpiredKeepsSessionExactlyAtTTL(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(30 * time.Minute).WithClock(func() time.Time { return base })

	_, err := store.Start("call-1", reservationTarget("123456"))
	require.NoError(t, err)

	removed := store.SweepExpired(base.Add(30 * time.Minute))
	assert.Equal(t, 0, removed, "eviction requires strictly more than the TTL of idleness")
}

func TestStepRankOrdering(t *testing.T) {
	order := []Step{
		StepStarted,
		StepAwaitingConfirmation,
		StepConfirmed,
		StepCollectingCard,
		StepCompleted,
	}
	for i := 1; i < len(order); i++ {
		assert.Greater(t, order[i].Rank(), order[i-1].Rank())
	}
	assert.True(t, StepCompleted.Terminal())
	assert.True(t, StepFailed.Terminal())
	assert.True(t, StepCancelled.Terminal())
	assert.False(t, StepCollectingCard.Terminal())
}
