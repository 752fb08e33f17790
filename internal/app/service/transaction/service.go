package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/retgrow/billing/internal/app/service/catalog"
	"github.com/retgrow/billing/internal/app/service/gateway"
	"github.com/retgrow/billing/internal/app/service/notifier"
	"github.com/retgrow/billing/internal/app/service/subscription"
	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/pkg/apperr"
	"github.com/retgrow/billing/pkg/config"
	"github.com/retgrow/billing/pkg/tool"
	"github.com/retgrow/billing/pkg/types"
)

type Service struct {
	cfg      *config.Config
	log      *zap.SugaredLogger
	db       *gorm.DB
	gateways *gateway.Registry
	subSvc   *subscription.Service
	users    catalog.UserDirectory
	notify   notifier.Notifier

	verifyGroup singleflight.Group
	now         func() time.Time
}

func NewService(
	cfg *config.Config,
	log *zap.SugaredLogger,
	db *gorm.DB,
	gateways *gateway.Registry,
	sub *subscription.Service,
	users catalog.UserDirectory,
	notify notifier.Notifier,
) *Service {
	return &Service{
		cfg:      cfg,
		log:      log,
		db:       db,
		gateways: gateways,
		subSvc:   sub,
		users:    users,
		notify:   notify,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var _ TransactionManager = (*Service)(nil)

func (s *Service) currency() string {
	if s.cfg != nil && s.cfg.Billing.Currency != "" {
		return s.cfg.Billing.Currency
	}
	return types.DefaultCurrency
}

// GetTransaction returns the user's own transaction by reference.
func (s *Service) GetTransaction(ctx context.Context, userID, reference string) (*models.Transaction, error) {
	txn, err := s.findByReference(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}
	if txn.UserID != userID {
		return nil, apperr.NotFound("Transaction not found")
	}
	return txn, nil
}

// ListUserTransactions is the user's billing history, newest first.
func (s *Service) ListUserTransactions(ctx context.Context, userID string, from, size int) (*ScanTransactionsResponse, error) {
	return s.ScanTransactions(ctx, &ScanTransactionsRequest{
		Filters: []*types.CommonFilter{{Field: "user_id", Operator: types.CommonFilterOperatorEq, Values: []any{userID}}},
		From:    from,
		Size:    size,
		SortBy:  "created_at",
	})
}

// ScanTransactions implements paginated/admin listing with filters
func (s *Service) ScanTransactions(ctx context.Context, req *ScanTransactionsRequest) (*ScanTransactionsResponse, error) {
	if req == nil {
		return nil, apperr.Validation("nil request")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.Size > 100 {
		req.Size = 100
	}
	if req.From < 0 {
		req.From = 0
	}
	for _, f := range req.Filters {
		if err := f.Validate(ScanFields); err != nil {
			return nil, apperr.Validation(err.Error())
		}
	}
	if req.SortBy == "" {
		req.SortBy = "created_at"
	}
	if !lo.Contains(ScanFields, req.SortBy) {
		return nil, apperr.Validationf("sort field not allowed: %s", req.SortBy)
	}

	tx := s.db.WithContext(ctx).Model(&models.Transaction{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{types.FiltersAnd(req.Filters)}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	var rows []*models.Transaction
	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: req.SortBy}, Desc: req.SortOrder != "asc"},
		{Column: clause.Column{Name: "id"}, Desc: req.SortOrder != "asc"},
	}})
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return &ScanTransactionsResponse{Items: rows, Total: total}, nil
}

func (s *Service) findByReference(ctx context.Context, tx *gorm.DB, reference string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := tx.WithContext(ctx).Where("reference = ?", reference).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Transaction not found")
		}
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	return &txn, nil
}

// createWithUniqueReference inserts txn, regenerating the reference on collision.
func (s *Service) createWithUniqueReference(ctx context.Context, txn *models.Transaction) error {
	const attempts = 3
	var lastErr error
	for i := 0; i < attempts; i++ {
		if txn.Reference == "" || i > 0 {
			txn.Reference = tool.GenerateReference()
		}
		lastErr = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(txn).Error; err != nil {
				return err
			}
			return s.writeLog(ctx, tx, types.TransactionChangeReasonCreated, nil, txn, nil)
		})
		if lastErr == nil {
			return nil
		}
		var n int64
		if err := s.db.WithContext(ctx).Model(&models.Transaction{}).Where("reference = ?", txn.Reference).Count(&n).Error; err != nil || n == 0 {
			break
		}
	}
	return fmt.Errorf("failed to create transaction: %w", lastErr)
}

// transition moves a PENDING row to a terminal state. It reports false when another
// writer settled the row first.
func (s *Service) transition(ctx context.Context, tx *gorm.DB, txn *models.Transaction, updates map[string]interface{}) (bool, error) {
	updates["updated_at"] = s.now()
	res := tx.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", txn.ID, types.TransactionStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to update transaction %s: %w", txn.Reference, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Service) writeLog(ctx context.Context, tx *gorm.DB, reason types.TransactionChangeReason, before, after *models.Transaction, extra datatypes.JSONMap) error {
	if extra == nil {
		extra = datatypes.JSONMap{}
	}
	row := &models.TransactionLog{
		ID:            tool.GenerateUUIDV7(),
		UserID:        after.UserID,
		TransactionID: after.ID,
		Reference:     after.Reference,
		Reason:        reason,
		Before:        datatypes.NewJSONType(before),
		After:         datatypes.NewJSONType(after),
		Extra:         extra,
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to save transaction log: %w", err)
	}
	return nil
}

func mergeMetadata(base datatypes.JSONMap, kv map[string]interface{}) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range kv {
		out[k] = v
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
