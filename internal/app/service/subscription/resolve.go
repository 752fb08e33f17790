package subscription

import (
	"sort"
	"time"

	"github.com/retgrow/billing/internal/models"
)

// ResolveEffective picks the row that governs access at now: among ACTIVE rows and
// CANCELLED rows still inside their period, the highest plan priority wins, then the
// newest created_at. Returns nil when no row qualifies.
func ResolveEffective(rows []*models.Subscription, now time.Time) *models.Subscription {
	var best *models.Subscription
	for _, r := range rows {
		if !r.IsEffective(now) {
			continue
		}
		if best == nil || outranks(r, best) {
			best = r
		}
	}
	return best
}

func outranks(a, b *models.Subscription) bool {
	if pa, pb := a.Plan.Priority(), b.Plan.Priority(); pa != pb {
		return pa > pb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	// UUIDv7 ids sort by creation time
	return a.ID > b.ID
}

// newestFirst orders rows for history listings.
func newestFirst(rows []*models.Subscription) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID > rows[j].ID
	})
}
