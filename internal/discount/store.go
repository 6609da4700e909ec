package discount

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/calvindo/checkout-pricing/internal/pricing"
)

// PGStore persists discount records in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

// GetByCode loads a record by code, matching case-insensitively.
func (s *PGStore) GetByCode(ctx context.Context, code string) (Record, error) {
	if s == nil || s.Pool == nil {
		return Record{}, errors.New("discount store not configured")
	}
	var (
		record     Record
		id         pgtype.UUID
		kind       string
		amount     string
		minSub     string
		productIDs []pgtype.UUID
		startsAt   pgtype.Timestamptz
		endsAt     pgtype.Timestamptz
		usageLimit pgtype.Int4
	)
	err := s.Pool.QueryRow(ctx, `
		SELECT id, code, kind, amount::text, min_subtotal::text, product_ids,
		       starts_at, ends_at, usage_limit, used_count
		FROM discounts WHERE lower(code) = lower($1)`, code,
	).Scan(&id, &record.Code, &kind, &amount, &minSub, &productIDs,
		&startsAt, &endsAt, &usageLimit, &record.UsedCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get discount: %w", err)
	}

	record.ID = uuid.UUID(id.Bytes)
	record.Kind = pricing.DiscountKind(kind)
	if record.Amount, err = decimal.NewFromString(amount); err != nil {
		return Record{}, fmt.Errorf("parse discount amount: %w", err)
	}
	if record.MinSubtotal, err = decimal.NewFromString(minSub); err != nil {
		return Record{}, fmt.Errorf("parse discount min subtotal: %w", err)
	}
	for _, pid := range productIDs {
		if pid.Valid {
			record.ProductIDs = append(record.ProductIDs, uuid.UUID(pid.Bytes))
		}
	}
	if startsAt.Valid {
		t := startsAt.Time
		record.StartsAt = &t
	}
	if endsAt.Valid {
		t := endsAt.Time
		record.EndsAt = &t
	}
	if usageLimit.Valid {
		limit := usageLimit.Int32
		record.UsageLimit = &limit
	}
	return record, nil
}

// IncrementUsage bumps the redemption counter for a code.
func (s *PGStore) IncrementUsage(ctx context.Context, code string) error {
	if s == nil || s.Pool == nil {
		return errors.New("discount store not configured")
	}
	tag, err := s.Pool.Exec(ctx,
		`UPDATE discounts SET used_count = used_count + 1 WHERE lower(code) = lower($1)`, code)
	if err != nil {
		return fmt.Errorf("increment discount usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
