package statistics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/retgrow/billing/internal/app/service/subscription"
	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/pkg/apperr"
	"github.com/retgrow/billing/pkg/tool"
	"github.com/retgrow/billing/pkg/types"
)

type StatisticType string

const (
	StatisticTypeDailyTransactionCount   StatisticType = "daily_transaction_count"
	StatisticTypeDailyRevenue            StatisticType = "daily_revenue"
	StatisticTypeTotalRevenue            StatisticType = "total_revenue"
	StatisticTypeDailyNewSubscriberCount StatisticType = "daily_new_subscriber_count"
	StatisticTypeActiveSubscriptionCount StatisticType = "active_subscription_count"
	StatisticTypeDailySubscriberCount    StatisticType = "daily_subscriber_count"
	StatisticTypeRenewalSuccessRate      StatisticType = "renewal_success_rate"
)

// transactionFilterFields may narrow the ledger based statistics only.
var transactionFilterFields = []string{"provider", "plan", "billing_cycle", "currency", "kind", "status", "created_at"}

var validFilters = map[StatisticType]bool{
	StatisticTypeDailyTransactionCount: true,
	StatisticTypeDailyRevenue:          true,
	StatisticTypeTotalRevenue:          true,
}

type StatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type StatisticRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	DataItems []*StatisticDataItem  `json:"data_items"`
}

func (r *StatisticRequest) Validate() error {
	if r == nil || len(r.DataItems) == 0 {
		return apperr.Validation("data_items must not be empty")
	}
	for _, f := range r.Filters {
		if err := f.Validate(transactionFilterFields); err != nil {
			return apperr.Validation(err.Error())
		}
	}
	return nil
}

// Build composes the WHERE clause for ledger statistics.
func (r *StatisticRequest) Build(builder clause.Builder) {
	if len(r.Filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	types.FiltersAnd(r.Filters).Build(builder)
}

type StatisticResponseDataItem struct {
	Date   string          `json:"date"`
	Label  string          `json:"label,omitempty"`
	Value  decimal.Decimal `json:"value"`
	Value2 int64           `json:"value2,omitempty"`
	Value3 int64           `json:"value3,omitempty"`
}

type StatisticResponse struct {
	DataItems map[StatisticType][]StatisticResponseDataItem `json:"data_items"`
}

// Service provides statistics operations
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) *Service {
	return &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// dateExpr renders a timestamp column as YYYY-MM-DD for the active dialect.
func (s *Service) dateExpr(column string) string {
	if s.db.Dialector.Name() == "sqlite" {
		return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", column)
	}
	return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM-DD')", column)
}

func (s *Service) ledger(ctx context.Context, request *StatisticRequest) *gorm.DB {
	return s.db.WithContext(ctx).Table(models.Transaction{}.TableName()).
		Where(clause.Where{Exprs: []clause.Expression{request}})
}

func (s *Service) getDailyTransactionCount(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	day := s.dateExpr("created_at")
	q := s.ledger(ctx, request).
		Select(day + " as date, count(*) as value").
		Group(day).
		Order("date")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyRevenue(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	day := s.dateExpr("completed_at")
	q := s.ledger(ctx, request).
		Select(day+" as date, currency AS label, sum(amount) as value").
		Where("status = ?", types.TransactionStatusSuccess).
		Group(day).
		Group("currency").
		Order("date").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// getTotalRevenue is the running total of daily revenue per currency.
func (s *Service) getTotalRevenue(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	daily, err := s.getDailyRevenue(ctx, request)
	if err != nil {
		return nil, err
	}
	running := map[string]decimal.Decimal{}
	out := make([]StatisticResponseDataItem, 0, len(daily))
	for _, d := range daily {
		running[d.Label] = running[d.Label].Add(d.Value)
		out = append(out, StatisticResponseDataItem{Date: d.Date, Label: d.Label, Value: running[d.Label]})
	}
	return out, nil
}

func (s *Service) getDailyNewSubscriberCount(ctx context.Context, _ *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	day := s.dateExpr("created_at")
	q := s.db.WithContext(ctx).Table(models.Subscription{}.TableName()).
		Select(day+" as date, count(DISTINCT user_id) as value").
		Where("plan <> ?", types.PlanFree).
		Group(day).
		Order("date")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getActiveSubscriptionCount(ctx context.Context, _ *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table(models.Subscription{}.TableName()).
		Select("plan as label, count(*) as value").
		Where("plan <> ?", types.PlanFree).
		Where("status = ? OR (status = ? AND end_date > ?)", types.SubscriptionStatusActive, types.SubscriptionStatusCancelled, s.now()).
		Group("plan").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailySubscriberCount(ctx context.Context, _ *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table(models.SubscriptionDailySnapshot{}.TableName()).
		Select("snapshot_date as date, plan as label, count(*) as value").
		Group("snapshot_date").
		Group("plan").
		Order("snapshot_date").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// getRenewalSuccessRate reports, per day, the percentage of settled renewal charges that
// succeeded (value), the settled total (value2) and the successes (value3).
func (s *Service) getRenewalSuccessRate(ctx context.Context, _ *StatisticRequest) ([]StatisticResponseDataItem, error) {
	type row struct {
		Date    string
		Total   int64
		Success int64
	}
	var rows []row
	day := s.dateExpr("created_at")
	err := s.db.WithContext(ctx).Table(models.Transaction{}.TableName()).
		Select(day+" as date, count(*) as total, sum(CASE WHEN status = ? THEN 1 ELSE 0 END) as success", types.TransactionStatusSuccess).
		Where("kind = ? AND status <> ?", types.TransactionKindRenewal, types.TransactionStatusPending).
		Group(day).
		Order("date").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return lo.Map(rows, func(r row, _ int) StatisticResponseDataItem {
		rate := decimal.Zero
		if r.Total > 0 {
			rate = decimal.NewFromInt(r.Success).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(r.Total)).Round(2)
		}
		return StatisticResponseDataItem{Date: r.Date, Value: rate, Value2: r.Total, Value3: r.Success}
	}), nil
}

func (s *Service) getStatistic(ctx context.Context, request *StatisticRequest, dataItem *StatisticDataItem) ([]StatisticResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeDailyTransactionCount:
		return s.getDailyTransactionCount(ctx, request)
	case StatisticTypeDailyRevenue:
		return s.getDailyRevenue(ctx, request)
	case StatisticTypeTotalRevenue:
		return s.getTotalRevenue(ctx, request)
	case StatisticTypeDailyNewSubscriberCount:
		return s.getDailyNewSubscriberCount(ctx, request)
	case StatisticTypeActiveSubscriptionCount:
		return s.getActiveSubscriptionCount(ctx, request)
	case StatisticTypeDailySubscriberCount:
		return s.getDailySubscriberCount(ctx, request)
	case StatisticTypeRenewalSuccessRate:
		return s.getRenewalSuccessRate(ctx, request)
	default:
		return nil, apperr.Validationf("invalid data item id: %s", dataItem.ID)
	}
}

// GetBillingStatistic computes the requested data items concurrently. Items that do
// not support the request's filters come back empty.
func (s *Service) GetBillingStatistic(ctx context.Context, request *StatisticRequest) (*StatisticResponse, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	var wg sync.WaitGroup
	errChan := make(chan error, len(request.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []StatisticResponseDataItem], len(request.DataItems))

	for _, item := range request.DataItems {
		wg.Add(1)
		go func(di *StatisticDataItem) {
			defer wg.Done()
			if len(request.Filters) > 0 && !validFilters[di.ID] {
				resChan <- &lo.Entry[StatisticType, []StatisticResponseDataItem]{Key: di.ID, Value: nil}
				return
			}
			res, err := s.getStatistic(ctx, request, di)
			if err != nil {
				errChan <- err
				return
			}
			resChan <- &lo.Entry[StatisticType, []StatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	go func() { wg.Wait(); close(errChan); close(resChan) }()

	results := make(map[StatisticType][]StatisticResponseDataItem)
	for i := 0; i < len(request.DataItems); i++ {
		select {
		case err := <-errChan:
			if err != nil {
				return nil, err
			}
		case entry := <-resChan:
			results[entry.Key] = entry.Value
		}
	}
	return &StatisticResponse{DataItems: results}, nil
}

// SnapshotSubscriptions stores every paying user's effective subscription for the UTC
// day of at. Re-running on the same day overwrites that day's rows.
func (s *Service) SnapshotSubscriptions(ctx context.Context, at time.Time) (int, error) {
	at = at.UTC()
	var rows []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("plan <> ?", types.PlanFree).
		Where("status = ? OR (status = ? AND end_date > ?)", types.SubscriptionStatusActive, types.SubscriptionStatusCancelled, at).
		Find(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load subscriptions: %w", err)
	}

	byUser := lo.GroupBy(rows, func(r *models.Subscription) string { return r.UserID })
	users := lo.Keys(byUser)
	sort.Strings(users)

	date := at.Format(time.DateOnly)
	snaps := make([]*models.SubscriptionDailySnapshot, 0, len(users))
	for _, uid := range users {
		eff := subscription.ResolveEffective(byUser[uid], at)
		if eff == nil {
			continue
		}
		snaps = append(snaps, &models.SubscriptionDailySnapshot{
			ID:             tool.GenerateUUIDV7(),
			UserID:         uid,
			SubscriptionID: eff.ID,
			Plan:           eff.Plan,
			Status:         eff.Status,
			AutoRenew:      eff.AutoRenew,
			EndDate:        eff.EndDate,
			SnapshotDate:   date,
		})
	}
	if len(snaps) == 0 {
		return 0, nil
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "snapshot_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"subscription_id", "plan", "status", "auto_renew", "end_date", "updated_at"}),
	}).CreateInBatches(snaps, 200).Error
	if err != nil {
		return 0, fmt.Errorf("failed to save snapshots: %w", err)
	}
	return len(snaps), nil
}

var Module = fx.Options(
	fx.Provide(New),
)
