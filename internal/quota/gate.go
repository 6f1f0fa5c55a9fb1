// Package quota enforces the weekly refinement word allowance.
package quota

import (
	"context"
	"fmt"
	"time"

	"vochat/internal/domain"
)

const (
	DefaultFreeWeeklyWords = 2000
	// ProWeeklyWords is reported to clients for unlimited accounts.
	ProWeeklyWords = 999999
)

// UsageReader sums metered usage since a point in time.
type UsageReader interface {
	SumUsage(ctx context.Context, accountID, eventType string, since time.Time) (int, error)
}

// Decision is a point-in-time snapshot of an account's allowance.
type Decision struct {
	Allowed     bool
	Remaining   int
	Limit       int
	Used        int
	Unlimited   bool
	WindowStart time.Time
}

// Gate answers whether an account may spend more refinement words.
type Gate struct {
	usage     UsageReader
	freeLimit int
	pro       map[string]struct{}
	now       func() time.Time
}

// NewGate builds a gate. freeLimit <= 0 selects the default.
func NewGate(usage UsageReader, freeLimit int, proAccounts []string) *Gate {
	if freeLimit <= 0 {
		freeLimit = DefaultFreeWeeklyWords
	}
	pro := make(map[string]struct{}, len(proAccounts))
	for _, id := range proAccounts {
		pro[id] = struct{}{}
	}
	return &Gate{usage: usage, freeLimit: freeLimit, pro: pro, now: time.Now}
}

// IsPro reports whether the account has no weekly cap.
func (g *Gate) IsPro(accountID string) bool {
	_, ok := g.pro[accountID]
	return ok
}

// Check reads the current week's usage. It never writes.
func (g *Gate) Check(ctx context.Context, accountID string) (Decision, error) {
	start := WeekStart(g.now())
	used, err := g.usage.SumUsage(ctx, accountID, domain.UsageEventRefineWords, start)
	if err != nil {
		return Decision{}, fmt.Errorf("read weekly usage: %w", err)
	}

	d := Decision{Used: used, WindowStart: start}
	if g.IsPro(accountID) {
		d.Unlimited = true
		d.Limit = ProWeeklyWords
	} else {
		d.Limit = g.freeLimit
	}
	d.Allowed = d.Unlimited || used < d.Limit
	d.Remaining = d.Limit - used
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	return d, nil
}

// Err returns the quota error for a denied decision, or nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &domain.QuotaExceededError{Used: d.Used, Limit: d.Limit}
}

// WeekStart returns Monday 00:00 UTC of the week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset)
}
