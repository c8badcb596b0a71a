package admission

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	DefaultMaxConcurrent = 3
	DefaultCooldown      = 30 * time.Second
)

// Reason tells the caller why a request was not admitted.
type Reason string

const (
	ReasonCooldown Reason = "cooldown"
	ReasonCapacity Reason = "capacity"
	// ReasonInFlight is returned when the caller already holds a slot.
	ReasonInFlight Reason = "in_flight"
)

// RejectedError is returned by TryAdmit when the request must not proceed.
// For cooldown Detail is the number of whole seconds left; for capacity it is
// the caller's estimated queue position.
type RejectedError struct {
	Reason Reason
	Detail int
}

func (e *RejectedError) Error() string {
	switch e.Reason {
	case ReasonCooldown:
		return fmt.Sprintf("admission rejected: cooldown, %ds left", e.Detail)
	case ReasonCapacity:
		return fmt.Sprintf("admission rejected: capacity, position %d", e.Detail)
	default:
		return fmt.Sprintf("admission rejected: %s", e.Reason)
	}
}

// AsRejected unwraps a rejection from err.
func AsRejected(err error) (*RejectedError, bool) {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// Config bounds the controller.
type Config struct {
	MaxConcurrent int
	Cooldown      time.Duration
}

type slotEntry struct {
	token      uint64
	acquiredAt time.Time
}

// Controller decides whether a caller may start a new request. Slot and
// cooldown state live here and are guarded by mu; nothing is global.
type Controller struct {
	mu        sync.Mutex
	max       int
	cooldown  time.Duration
	slots     map[int64]slotEntry
	cooldowns *ttlcache.Cache[int64, time.Time]
	nextToken uint64
}

// NewController builds a controller, substituting defaults for zero values.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}

	// Marks outlive the window so expiry is only housekeeping; the elapsed
	// check in TryAdmit is authoritative.
	cooldowns := ttlcache.New(
		ttlcache.WithTTL[int64, time.Time](2*cfg.Cooldown),
		ttlcache.WithDisableTouchOnHit[int64, time.Time](),
	)

	return &Controller{
		max:       cfg.MaxConcurrent,
		cooldown:  cfg.Cooldown,
		slots:     make(map[int64]slotEntry),
		cooldowns: cooldowns,
	}
}

// TryAdmit admits callerID or returns a *RejectedError.
func (c *Controller) TryAdmit(callerID int64, now time.Time) (*Slot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cooldowns.DeleteExpired()

	if item := c.cooldowns.Get(callerID); item != nil {
		elapsed := now.Sub(item.Value())
		if elapsed < c.cooldown {
			left := int(math.Ceil((c.cooldown - elapsed).Seconds()))
			return nil, &RejectedError{Reason: ReasonCooldown, Detail: left}
		}
	}

	if _, held := c.slots[callerID]; held {
		return nil, &RejectedError{Reason: ReasonInFlight}
	}

	if len(c.slots) >= c.max {
		return nil, &RejectedError{Reason: ReasonCapacity, Detail: len(c.slots) + 1}
	}

	c.nextToken++
	entry := slotEntry{token: c.nextToken, acquiredAt: now}
	c.slots[callerID] = entry
	c.cooldowns.Set(callerID, now, ttlcache.DefaultTTL)

	return &Slot{
		controller: c,
		callerID:   callerID,
		token:      entry.token,
		AcquiredAt: now,
	}, nil
}

// Release drops whatever slot callerID holds. It is a no-op when none is held.
func (c *Controller) Release(callerID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.slots, callerID)
}

// releaseToken drops the slot only if it is still the one identified by token,
// so a late release from an expired request cannot free a newer admission.
func (c *Controller) releaseToken(callerID int64, token uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.slots[callerID]; ok && entry.token == token {
		delete(c.slots, callerID)
	}
}

// Active returns the number of held slots.
func (c *Controller) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

// Holds reports whether callerID currently holds a slot.
func (c *Controller) Holds(callerID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.slots[callerID]
	return ok
}

// Slot is the handle of one admission. Release may be called from any number
// of exit paths; only the first call has an effect.
type Slot struct {
	controller *Controller
	callerID   int64
	token      uint64
	once       sync.Once
	AcquiredAt time.Time
}

// CallerID returns the identity the slot was granted to.
func (s *Slot) CallerID() int64 {
	return s.callerID
}

// Release returns the slot to the controller.
func (s *Slot) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.controller.releaseToken(s.callerID, s.token)
	})
}
