package sessions

import (
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/bobbystable/voicepay-backend/pkg/errors"
)

const DefaultTTL = 30 * time.Minute

// Store holds at most one live payment session per call id. All access
// runs under a single mutex; expected concurrency is one conversation
// turn plus the occasional webhook per call.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewStore builds a session store with the given idle TTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

// Start opens a session for callID or merges target information into an
// existing one. Fields gathered on earlier turns are never dropped.
func (s *Store) Start(callID string, target Target) (Session, error) {
	if callID == "" {
		return Session{}, pkgerrors.New(pkgerrors.CodeValidation, "call id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess, ok := s.sessions[callID]
	if !ok {
		sess = &Session{
			CallID:    callID,
			Step:      StepStarted,
			StartedAt: now,
		}
		s.sessions[callID] = sess
	}
	if !target.IsZero() {
		if sess.Target.IsZero() {
			sess.Target = target
		} else if sess.Target != target && !sess.Step.Terminal() && sess.Step.Rank() < StepConfirmed.Rank() {
			// A new target before confirmation restarts the dialogue.
			sess.Target = target
			sess.Step = StepStarted
		}
	}
	sess.LastUpdated = now
	return *sess, nil
}

// Get returns a copy of the session for callID.
func (s *Store) Get(callID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[callID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Update applies fn to the session under the store lock and enforces the
// immutability invariants: the amount cannot change once the customer
// confirmed it, and a confirmation number is written at most once.
func (s *Store) Update(callID string, fn func(*Session) error) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[callID]
	if !ok {
		return Session{}, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no payment session for call %s", callID))
	}

	prevAmount := sess.Amount
	prevRank := sess.Step.Rank()
	prevConfirmation := sess.ConfirmationNumber

	if err := fn(sess); err != nil {
		return *sess, err
	}

	if prevRank >= StepConfirmed.Rank() && !sess.Amount.Equal(prevAmount) {
		sess.Amount = prevAmount
		return *sess, pkgerrors.New(pkgerrors.CodeStateConflict, "amount is fixed once confirmed")
	}
	if prevConfirmation != "" && sess.ConfirmationNumber != prevConfirmation {
		sess.ConfirmationNumber = prevConfirmation
		return *sess, pkgerrors.New(pkgerrors.CodeStateConflict, "confirmation number is already set")
	}

	sess.LastUpdated = s.now()
	return *sess, nil
}

// UpdateStep moves the session to the given step.
func (s *Store) UpdateStep(callID string, step Step) (Session, error) {
	return s.Update(callID, func(sess *Session) error {
		sess.Step = step
		return nil
	})
}

// End removes and returns the session for callID.
func (s *Store) End(callID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[callID]
	if !ok {
		return Session{}, false
	}
	delete(s.sessions, callID)
	return *sess, true
}

// SweepExpired evicts sessions idle longer than the TTL and returns how
// many were removed.
func (s *Store) SweepExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for callID, sess := range s.sessions {
		if now.Sub(sess.LastUpdated) > s.ttl {
			delete(s.sessions, callID)
			removed++
		}
	}
	return removed
}

// All returns a snapshot of every live session, for the debug endpoint.
func (s *Store) All() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	return out
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
