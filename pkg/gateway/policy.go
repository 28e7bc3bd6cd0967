package gateway

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/quantarc/binance-gateway/core"
)

// policyGate enforces per-class rate limits and daily call budgets declared
// in tool policies. Keys default to the tool name when the policy has no
// LimitKey, so unrelated tools never share a bucket by accident.
type policyGate struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	budgets  map[string]*dailyBudget
	clock    func() time.Time
}

// dailyBudget counts calls against a per-day allowance. The counter resets
// at midnight UTC.
type dailyBudget struct {
	limit float64
	used  float64
	day   time.Time
}

func newPolicyGate() *policyGate {
	return &policyGate{
		limiters: make(map[string]*rate.Limiter),
		budgets:  make(map[string]*dailyBudget),
		clock:    time.Now,
	}
}

// admit checks the tool's policy without blocking. The budget is only
// committed once the rate gate also admits, so a rejection consumes nothing.
func (g *policyGate) admit(name string, p core.ToolPolicy) error {
	key := p.LimitKey
	if key == "" {
		key = name
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var budget *dailyBudget
	if p.BudgetPerDay > 0 {
		budget = g.budgets[key]
		today := midnightUTC(g.clock())
		if budget == nil {
			budget = &dailyBudget{limit: p.BudgetPerDay, day: today}
			g.budgets[key] = budget
		}
		if !budget.day.Equal(today) {
			budget.used = 0
			budget.day = today
		}
		budget.limit = p.BudgetPerDay

		if budget.used+1 > budget.limit {
			return fmt.Errorf("%w: daily budget for %s exhausted (%.0f calls/day)", core.ErrRateLimited, key, budget.limit)
		}
	}

	if p.RateLimitPerSec > 0 {
		lim, ok := g.limiters[key]
		if !ok {
			burst := p.Burst
			if burst <= 0 {
				burst = 1
			}
			lim = rate.NewLimiter(rate.Limit(p.RateLimitPerSec), burst)
			g.limiters[key] = lim
		}
		if !lim.Allow() {
			return fmt.Errorf("%w: %s calls are limited to %g/s", core.ErrRateLimited, key, p.RateLimitPerSec)
		}
	}

	if budget != nil {
		budget.used++
	}
	return nil
}

// budgetUsed reports today's use for a key, mainly for status endpoints.
func (g *policyGate) budgetUsed(key string) (used, limit float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	budget, ok := g.budgets[key]
	if !ok {
		return 0, 0
	}
	if !budget.day.Equal(midnightUTC(g.clock())) {
		return 0, budget.limit
	}
	return budget.used, budget.limit
}

func midnightUTC(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
