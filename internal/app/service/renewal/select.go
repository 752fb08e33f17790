package renewal

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/pkg/types"
)

// IsDue reports whether sub should be charged at now.
func IsDue(sub *models.Subscription, now time.Time) bool {
	if sub == nil || !sub.AutoRenew || !sub.Plan.IsPaid() {
		return false
	}
	if lo.FromPtr(sub.PaymentToken) == "" || sub.EndDate == nil || sub.EndDate.After(now) {
		return false
	}
	return sub.Status == types.SubscriptionStatusActive || sub.Status == types.SubscriptionStatusCancelled
}

// SelectCandidates keeps the due rows and reduces them to one per user: ACTIVE beats
// expired, then the newest row wins. The result is ordered by end date, oldest first.
func SelectCandidates(rows []*models.Subscription, now time.Time) []*models.Subscription {
	best := make(map[string]*models.Subscription)
	for _, sub := range rows {
		if !IsDue(sub, now) {
			continue
		}
		cur, ok := best[sub.UserID]
		if !ok || preferred(sub, cur) {
			best[sub.UserID] = sub
		}
	}

	out := lo.Values(best)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EndDate.Equal(*out[j].EndDate) {
			return out[i].EndDate.Before(*out[j].EndDate)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func preferred(a, b *models.Subscription) bool {
	aActive := a.Status == types.SubscriptionStatusActive
	bActive := b.Status == types.SubscriptionStatusActive
	if aActive != bActive {
		return aActive
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
