package coupons

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
	"github.com/angelmondragon/shopledger-backend/pkg/logger"
	"github.com/angelmondragon/shopledger-backend/pkg/money"
)

// Rejection reasons carried in the "reason" detail of validation errors.
const (
	ReasonNotFound            = "not_found"
	ReasonNotYetValid         = "not_yet_valid"
	ReasonExpired             = "expired"
	ReasonUsageLimitReached   = "usage_limit_reached"
	ReasonPerUserLimitReached = "per_user_limit_reached"
	ReasonBelowMinimum        = "below_minimum"
)

// Service validates and redeems coupon codes.
type Service interface {
	Validate(ctx context.Context, code string, userID *uuid.UUID, subtotalCents int) (*models.Coupon, error)
	RecordUsage(ctx context.Context, tx *gorm.DB, coupon *models.Coupon, userID *uuid.UUID, orderID uuid.UUID, discountCents int) error
	ListAvailable(ctx context.Context, userID *uuid.UUID, subtotalCents int) ([]models.Coupon, error)
}

type ServiceParams struct {
	Repository Repository
	Logger     *logger.Logger
	Clock      func() time.Time
}

type service struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{repo: params.Repository, logg: params.Logger, now: now}, nil
}

func rejected(reason, message string, extra map[string]any) error {
	details := map[string]any{"reason": reason}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(details)
}

// Validate checks the code against, in order: existence and active flag,
// validity window, global usage limit, per-user limit (signed-in users
// only) and minimum order amount.
func (s *service) Validate(ctx context.Context, code string, userID *uuid.UUID, subtotalCents int) (*models.Coupon, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, rejected(ReasonNotFound, "coupon code is required", nil)
	}
	coupon, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, rejected(ReasonNotFound, "coupon not found", map[string]any{"code": normalized})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	if err := s.check(ctx, coupon, userID, subtotalCents); err != nil {
		return nil, err
	}
	return coupon, nil
}

func (s *service) check(ctx context.Context, coupon *models.Coupon, userID *uuid.UUID, subtotalCents int) error {
	now := s.now()
	if !coupon.IsActive {
		return rejected(ReasonNotFound, "coupon not found", map[string]any{"code": coupon.Code})
	}
	if now.Before(coupon.ValidFrom) {
		return rejected(ReasonNotYetValid, "coupon is not valid yet", map[string]any{"valid_from": coupon.ValidFrom})
	}
	if now.After(coupon.ValidUntil) {
		return rejected(ReasonExpired, "coupon has expired", map[string]any{"valid_until": coupon.ValidUntil})
	}
	if coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit {
		return rejected(ReasonUsageLimitReached, "coupon usage limit reached", nil)
	}
	if userID != nil {
		used, err := s.repo.CountUserUsages(ctx, coupon.ID, *userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count coupon usages")
		}
		if used >= int64(coupon.UsageLimitPerUser) {
			return rejected(ReasonPerUserLimitReached, "coupon already used", nil)
		}
	}
	if coupon.MinOrderCents != nil && subtotalCents < *coupon.MinOrderCents {
		return rejected(ReasonBelowMinimum, "order is below the coupon minimum", map[string]any{
			"min_order": money.Format(*coupon.MinOrderCents),
		})
	}
	return nil
}

// RecordUsage redeems the coupon inside the order transaction. Guests
// consume the global limit but leave no per-user usage row.
func (s *service) RecordUsage(ctx context.Context, tx *gorm.DB, coupon *models.Coupon, userID *uuid.UUID, orderID uuid.UUID, discountCents int) error {
	if coupon == nil {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "coupon redemption requires a transaction")
	}
	repo := s.repo.WithTx(tx)
	ok, err := repo.IncrementUsage(ctx, coupon.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment coupon usage")
	}
	if !ok {
		return rejected(ReasonUsageLimitReached, "coupon usage limit reached", nil)
	}
	if userID != nil {
		usage := &models.CouponUsage{
			CouponID:      coupon.ID,
			UserID:        *userID,
			OrderID:       orderID,
			DiscountCents: discountCents,
		}
		if err := repo.CreateUsage(ctx, usage); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record coupon usage")
		}
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"coupon_code": coupon.Code,
		"order_id":    orderID.String(),
		"discount":    money.Format(discountCents),
	})
	s.logg.Info(logCtx, "coupon redeemed")
	return nil
}

// ListAvailable returns the in-window coupons the owner could apply to a
// cart of subtotalCents right now.
func (s *service) ListAvailable(ctx context.Context, userID *uuid.UUID, subtotalCents int) ([]models.Coupon, error) {
	rows, err := s.repo.ListActive(ctx, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list coupons")
	}
	out := make([]models.Coupon, 0, len(rows))
	for i := range rows {
		err := s.check(ctx, &rows[i], userID, subtotalCents)
		if err == nil {
			out = append(out, rows[i])
			continue
		}
		if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			return nil, err
		}
	}
	return out, nil
}
