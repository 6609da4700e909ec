package tax

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PGStore persists jurisdiction rates in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

// FindRate returns the rate for an exact (country, region) pair.
func (s *PGStore) FindRate(ctx context.Context, country, region string) (decimal.Decimal, error) {
	if s == nil || s.Pool == nil {
		return decimal.Zero, errors.New("tax store not configured")
	}
	var raw string
	err := s.Pool.QueryRow(ctx,
		`SELECT rate::text FROM tax_rates WHERE country = $1 AND region = $2`,
		strings.ToUpper(strings.TrimSpace(country)), strings.ToUpper(strings.TrimSpace(region)),
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrNoRate
		}
		return decimal.Zero, fmt.Errorf("find tax rate: %w", err)
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse tax rate: %w", err)
	}
	return rate, nil
}

// ListRates returns every persisted jurisdiction rate.
func (s *PGStore) ListRates(ctx context.Context) ([]Rate, error) {
	if s == nil || s.Pool == nil {
		return nil, errors.New("tax store not configured")
	}
	rows, err := s.Pool.Query(ctx, `SELECT country, region, rate::text FROM tax_rates ORDER BY country, region`)
	if err != nil {
		return nil, fmt.Errorf("list tax rates: %w", err)
	}
	defer rows.Close()

	var rates []Rate
	for rows.Next() {
		var (
			r   Rate
			raw string
		)
		if err := rows.Scan(&r.Country, &r.Region, &raw); err != nil {
			return nil, err
		}
		if r.Rate, err = decimal.NewFromString(raw); err != nil {
			return nil, fmt.Errorf("parse tax rate: %w", err)
		}
		rates = append(rates, r)
	}
	return rates, rows.Err()
}
