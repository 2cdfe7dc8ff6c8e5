// Package quota tracks per-service daily usage and arbitrates which backend variant serves a request.
package quota

import (
	"context"
	"strconv"
	"time"
)

// Limit is a daily call allowance. Unlimited disables the cap.
type Limit int64

// Unlimited is the sentinel for services without a daily cap.
const Unlimited Limit = -1

// IsUnlimited reports whether l is the Unlimited sentinel.
func (l Limit) IsUnlimited() bool {
	return l < 0
}

func (l Limit) String() string {
	if l.IsUnlimited() {
		return "unlimited"
	}
	return strconv.FormatInt(int64(l), 10)
}

// Counter is the persisted usage record for one service.
type Counter struct {
	Service    string    `json:"service"`
	DailyCalls int64     `json:"daily_calls"`
	DailyLimit Limit     `json:"daily_limit"`
	LastReset  time.Time `json:"last_reset"`
	Exceeded   bool      `json:"exceeded"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Available reports DailyCalls < DailyLimit.
func (c Counter) Available() bool {
	return c.DailyLimit.IsUnlimited() || c.DailyCalls < int64(c.DailyLimit)
}

// Remaining is max(0, DailyLimit-DailyCalls), or Unlimited.
func (c Counter) Remaining() int64 {
	if c.DailyLimit.IsUnlimited() {
		return int64(Unlimited)
	}
	return max(0, int64(c.DailyLimit)-c.DailyCalls)
}

// syncExceeded restores Exceeded == (DailyCalls >= DailyLimit).
func (c *Counter) syncExceeded() {
	c.Exceeded = !c.Available()
}

// Store persists counters. Implementations live in internal/store.
type Store interface {
	Get(ctx context.Context, service string) (Counter, bool, error)
	Upsert(ctx context.Context, counter Counter) error
}
