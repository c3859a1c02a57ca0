package governor

import (
	"fmt"
	"sync"
	"time"
)

// Cooldowns per function. Different operations have different natural
// repeat semantics: a double-submitted reservation is expensive to undo,
// while payment sub-steps legitimately follow each other quickly.
const (
	cooldownCreateReservation = 5 * time.Second
	cooldownCreateOrder       = 10 * time.Second
	cooldownLookup            = 10 * time.Second
	cooldownPaymentStep       = 5 * time.Second
	cooldownCatalog           = 60 * time.Second
	cooldownDefault           = 30 * time.Second
)

var cooldownByFunction = map[string]time.Duration{
	"create_reservation": cooldownCreateReservation,
	"update_reservation": cooldownCreateReservation,
	"create_order":       cooldownCreateOrder,
	"get_reservation":    cooldownLookup,
	"get_order":          cooldownLookup,
	"get_card_details":   cooldownPaymentStep,
	"pay_reservation":    cooldownPaymentStep,
	"pay_order":          cooldownPaymentStep,
	"get_menu":           cooldownCatalog,
}

// catalogFunctions only cool down when a cached result already exists;
// a cold fetch is always allowed through.
var catalogFunctions = map[string]bool{
	"get_menu": true,
}

// Decision is the admission verdict for one invocation.
type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

type record struct {
	lastCalled map[string]time.Time
	cached     map[string]bool
	touched    time.Time
}

// Governor applies per-conversation, per-function cooldowns to repeated
// invocations from the conversational agent.
type Governor struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time
}

// New builds an empty governor.
func New() *Governor {
	return &Governor{
		records: make(map[string]*record),
		now:     time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (g *Governor) WithClock(now func() time.Time) *Governor {
	if now != nil {
		g.now = now
	}
	return g
}

// CooldownFor returns the cooldown window applied to the named function.
func CooldownFor(function string) time.Duration {
	if d, ok := cooldownByFunction[function]; ok {
		return d
	}
	return cooldownDefault
}

// Admit decides whether the function may run for this conversation.
// Unknown conversations and missing records are treated as never called.
func (g *Governor) Admit(conversationID, function string) Decision {
	if conversationID == "" || function == "" {
		return Decision{Allowed: true}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[conversationID]
	if !ok {
		return Decision{Allowed: true}
	}

	if catalogFunctions[function] && !rec.cached[function] {
		return Decision{Allowed: true}
	}

	last, ok := rec.lastCalled[function]
	if !ok {
		return Decision{Allowed: true}
	}

	cooldown := CooldownFor(function)
	elapsed := g.now().Sub(last)
	if elapsed >= cooldown {
		return Decision{Allowed: true}
	}

	remaining := (cooldown - elapsed).Round(time.Second)
	if remaining <= 0 {
		remaining = time.Second
	}
	return Decision{
		Allowed:    false,
		RetryAfter: remaining,
		Reason:     fmt.Sprintf("I'm already working on that. Give me just a moment and ask again in about %d seconds if you need to.", int(remaining.Seconds())),
	}
}

// Record notes that the function ran for this conversation.
func (g *Governor) Record(conversationID, function string) {
	if conversationID == "" || function == "" {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	rec := g.ensureRecord(conversationID)
	rec.lastCalled[function] = g.now()
	rec.touched = g.now()
}

// RecordCatalogResult marks that a successful catalog fetch is cached
// for the conversation, arming the catalog cooldown.
func (g *Governor) RecordCatalogResult(conversationID, function string) {
	if conversationID == "" || !catalogFunctions[function] {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	rec := g.ensureRecord(conversationID)
	rec.cached[function] = true
	rec.touched = g.now()
}

// Prune drops conversations untouched for longer than maxAge and returns
// how many were removed.
func (g *Governor) Prune(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-maxAge)
	removed := 0
	for id, rec := range g.records {
		if rec.touched.Before(cutoff) {
			delete(g.records, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked conversations.
func (g *Governor) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.records)
}

func (g *Governor) ensureRecord(conversationID string) *record {
	rec, ok := g.records[conversationID]
	if !ok {
		rec = &record{
			lastCalled: make(map[string]time.Time),
			cached:     make(map[string]bool),
		}
		g.records[conversationID] = rec
	}
	return rec
}
