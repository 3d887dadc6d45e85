package policy

import "strings"

// DefaultFreeLimit is the number of completed exchanges a non-whitelisted
// user gets.
const DefaultFreeLimit = 8

// QuotaDecision is the outcome of a quota check for one user.
type QuotaDecision struct {
	Allowed   bool
	Unlimited bool
	Used      int
	Limit     int
	Remaining int
}

// Quota enforces the free-tier exchange limit. Whitelisted ids are exempt.
// A limit of zero or less disables the quota for everyone.
type Quota struct {
	limit     int
	whitelist map[string]struct{}
}

func NewQuota(limit int, whitelist []string) Quota {
	q := Quota{limit: limit, whitelist: make(map[string]struct{}, len(whitelist))}
	for _, id := range whitelist {
		id = strings.TrimSpace(id)
		if id != "" {
			q.whitelist[id] = struct{}{}
		}
	}
	return q
}

// Exempt reports whether userID bypasses the quota.
func (q Quota) Exempt(userID string) bool {
	if q.limit <= 0 {
		return true
	}
	_, ok := q.whitelist[strings.TrimSpace(userID)]
	return ok
}

// Decide checks whether a user who has completed used exchanges may start
// another one.
func (q Quota) Decide(userID string, used int) QuotaDecision {
	if q.Exempt(userID) {
		return QuotaDecision{Allowed: true, Unlimited: true, Used: used, Limit: q.limit}
	}
	remaining := q.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return QuotaDecision{
		Allowed:   used < q.limit,
		Used:      used,
		Limit:     q.limit,
		Remaining: remaining,
	}
}
