package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/retgrow/billing/pkg/types"
)

func TestSubscriptionEffective(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name      string
		sub       *Subscription
		effective bool
		expired   bool
	}{
		{"active free without end date", &Subscription{Status: types.SubscriptionStatusActive}, true, false},
		{"active past end date", &Subscription{Status: types.SubscriptionStatusActive, EndDate: &past}, true, false},
		{"cancelled in grace", &Subscription{Status: types.SubscriptionStatusCancelled, EndDate: &future}, true, false},
		{"cancelled after end", &Subscription{Status: types.SubscriptionStatusCancelled, EndDate: &past}, false, true},
		{"cancelled at end instant", &Subscription{Status: types.SubscriptionStatusCancelled, EndDate: &now}, false, true},
		{"cancelled without end date", &Subscription{Status: types.SubscriptionStatusCancelled}, false, false},
		{"nil", nil, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.effective, tc.sub.IsEffective(now))
			require.Equal(t, tc.expired, tc.sub.IsExpired(now))
		})
	}
}

func TestTransactionMetadataString(t *testing.T) {
	txn := &Transaction{Metadata: map[string]interface{}{"email": "u@example.com", "n": 1}}
	require.Equal(t, "u@example.com", txn.MetadataString("email"))
	require.Equal(t, "", txn.MetadataString("n"))
	require.Equal(t, "", (*Transaction)(nil).MetadataString("email"))
}
